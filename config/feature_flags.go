package config

import (
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"
)

// FeatureFlags manages feature toggles with gradual rollout by student email.
type FeatureFlags struct {
	mu sync.RWMutex

	features map[string]*Feature

	// email -> feature -> enabled
	userOverrides map[string]map[string]bool
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Enabled     bool   `json:"enabled"`

	// RolloutPercent (0-100). Students are bucketed by a hash of their email.
	RolloutPercent int `json:"rolloutPercent"`
}

// FeatureContext provides context for feature flag evaluation.
type FeatureContext struct {
	Email string
}

// Predefined feature flag names.
const (
	FeatureChatFreeMode    = "chat.free_mode"    // Free discussion mode
	FeatureChatSummaries   = "chat.summaries"    // Background summary updates
	FeatureSyllabusPublic  = "syllabus.public"   // Public syllabus links
	FeatureChatFocusModule = "chat.focus_module" // Module selection narrows context
)

// LoadFeatureFlags loads feature flags from environment variables.
func LoadFeatureFlags() *FeatureFlags {
	ff := NewFeatureFlags()
	ff.loadFromEnvironment()
	return ff
}

// NewFeatureFlags returns flags with their defaults and no env overrides.
func NewFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:      make(map[string]*Feature),
		userOverrides: make(map[string]map[string]bool),
	}
	ff.initializeDefaults()
	return ff
}

func (ff *FeatureFlags) initializeDefaults() {
	for _, f := range []*Feature{
		{Name: FeatureChatFreeMode, Description: "Allow free discussion outside the program", Enabled: true, RolloutPercent: 100},
		{Name: FeatureChatSummaries, Description: "Summarize exchanges after each reply", Enabled: true, RolloutPercent: 100},
		{Name: FeatureSyllabusPublic, Description: "Serve published syllabi anonymously", Enabled: true, RolloutPercent: 100},
		{Name: FeatureChatFocusModule, Description: "Send only the focused module once selected", Enabled: true, RolloutPercent: 100},
	} {
		ff.features[f.Name] = f
	}
}

// loadFromEnvironment applies FEATURE_<NAME>=true|false|<percent>.
// Example: FEATURE_CHAT_FREE_MODE=false
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		val := os.Getenv(featureNameToEnvKey(name))
		if val == "" {
			continue
		}
		if b, err := strconv.ParseBool(val); err == nil {
			feature.Enabled = b
			if b {
				feature.RolloutPercent = 100
			} else {
				feature.RolloutPercent = 0
			}
			continue
		}
		if p, err := strconv.Atoi(val); err == nil && p >= 0 && p <= 100 {
			feature.Enabled = p > 0
			feature.RolloutPercent = p
		}
	}
}

// featureNameToEnvKey converts "chat.free_mode" to "FEATURE_CHAT_FREE_MODE".
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled checks if a feature is enabled for the given context.
func (ff *FeatureFlags) IsEnabled(featureName string, ctx *FeatureContext) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	if ctx != nil && ctx.Email != "" {
		if overrides, ok := ff.userOverrides[strings.ToLower(ctx.Email)]; ok {
			if enabled, ok := overrides[featureName]; ok {
				return enabled
			}
		}
	}

	feature, ok := ff.features[featureName]
	if !ok {
		return false
	}
	if !feature.Enabled {
		return false
	}
	if feature.RolloutPercent < 100 && ctx != nil && ctx.Email != "" {
		return isInRollout(ctx.Email, featureName, feature.RolloutPercent)
	}
	return feature.RolloutPercent > 0
}

// EnabledFor is IsEnabled for a student email.
func (ff *FeatureFlags) EnabledFor(featureName, email string) bool {
	return ff.IsEnabled(featureName, &FeatureContext{Email: email})
}

// isInRollout hashes email+feature so a student stays in their bucket.
func isInRollout(email, featureName string, percent int) bool {
	h := fnv.New32a()
	h.Write([]byte(featureName))
	h.Write([]byte(strings.ToLower(email)))
	return int(h.Sum32()%100) < percent
}

// SetUserOverride forces a feature on or off for one student. Emails are
// matched case-insensitively.
func (ff *FeatureFlags) SetUserOverride(email, featureName string, enabled bool) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if _, ok := ff.features[featureName]; !ok {
		return ErrFeatureNotFound
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if _, ok := ff.userOverrides[email]; !ok {
		ff.userOverrides[email] = make(map[string]bool)
	}
	ff.userOverrides[email][featureName] = enabled
	return nil
}

// ClearUserOverride drops the override of one student for a feature.
func (ff *FeatureFlags) ClearUserOverride(email, featureName string) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	email = strings.ToLower(strings.TrimSpace(email))
	delete(ff.userOverrides[email], featureName)
	if len(ff.userOverrides[email]) == 0 {
		delete(ff.userOverrides, email)
	}
}

// UserOverrides returns a copy of the overrides set for featureName, keyed
// by email.
func (ff *FeatureFlags) UserOverrides(featureName string) map[string]bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	out := make(map[string]bool)
	for email, overrides := range ff.userOverrides {
		if enabled, ok := overrides[featureName]; ok {
			out[email] = enabled
		}
	}
	return out
}

// SetRolloutPercent updates the rollout percentage for a feature.
func (ff *FeatureFlags) SetRolloutPercent(featureName string, percent int) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}
	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}
	feature.RolloutPercent = percent
	feature.Enabled = percent > 0
	return nil
}

// EnableFeature enables a feature at 100% rollout.
func (ff *FeatureFlags) EnableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 100)
}

// DisableFeature disables a feature completely.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 0)
}

// GetAllFeatures returns a copy of all feature configurations.
func (ff *FeatureFlags) GetAllFeatures() map[string]Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	result := make(map[string]Feature, len(ff.features))
	for k, v := range ff.features {
		result[k] = *v
	}
	return result
}

var (
	ErrFeatureNotFound       = &FeatureFlagError{Message: "feature not found"}
	ErrInvalidRolloutPercent = &FeatureFlagError{Message: "rollout percent must be 0-100"}
)

// FeatureFlagError represents a feature flag error.
type FeatureFlagError struct {
	Message string
}

func (e *FeatureFlagError) Error() string {
	return e.Message
}
