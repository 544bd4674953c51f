package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_HOST", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, int64(100), cfg.Quota.MonthlyLimit)
	assert.Equal(t, 30*time.Minute, cfg.Session.IdleTTL)
	assert.Equal(t, "sqlite", cfg.Database.Driver())
	assert.Equal(t, "mentor.db", cfg.Database.SQLitePath())
	assert.Equal(t, 3000, cfg.HTTP.Port)
	assert.False(t, cfg.UseRedisQuota())
	assert.True(t, cfg.Features.EnabledFor(FeatureChatFreeMode, "a@x.fr"))
}

func TestLoad_DotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("STUDENT_MONTHLY_MESSAGE_LIMIT=7\nMENTOR_MODEL=gpt-test\n"), 0o600))
	t.Setenv("ENV_FILE", path)
	t.Cleanup(func() {
		os.Unsetenv("STUDENT_MONTHLY_MESSAGE_LIMIT")
		os.Unsetenv("MENTOR_MODEL")
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, int64(7), cfg.Quota.MonthlyLimit)
	assert.Equal(t, "gpt-test", cfg.Completion.MentorModel)
}

func TestValidate(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("APP_ENV", "production")
	t.Setenv("APP_TIMEZONE", "Mars/Olympus")
	t.Setenv("DATABASE_URL", "mysql://nope")
	t.Setenv("STUDENT_MONTHLY_MESSAGE_LIMIT", "0")
	t.Setenv("QUOTA_STORE", "etcd")

	_, err := Load()
	require.Error(t, err)
	for _, want := range []string{
		"APP_TIMEZONE", "DATABASE_URL", "OPENAI_API_KEY", "ADMIN_API_KEY_HASHES",
		"STUDENT_MONTHLY_MESSAGE_LIMIT", "QUOTA_STORE",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestDatabaseConfig_Driver(t *testing.T) {
	assert.Equal(t, "postgres", DatabaseConfig{URL: "postgres://u:p@h/db"}.Driver())
	assert.Equal(t, "postgres", DatabaseConfig{URL: "postgresql://u:p@h/db"}.Driver())
	assert.Equal(t, "sqlite", DatabaseConfig{URL: "sqlite:///tmp/x.db"}.Driver())
	assert.Equal(t, "", DatabaseConfig{URL: "mysql://x"}.Driver())
}

func TestFeatureFlags(t *testing.T) {
	ff := NewFeatureFlags()

	require.NoError(t, ff.DisableFeature(FeatureChatFreeMode))
	assert.False(t, ff.EnabledFor(FeatureChatFreeMode, "a@x.fr"))
	assert.False(t, ff.IsEnabled(FeatureChatFreeMode, nil))

	require.NoError(t, ff.SetUserOverride(" Beta@X.fr", FeatureChatFreeMode, true))
	assert.True(t, ff.EnabledFor(FeatureChatFreeMode, "beta@x.fr"))
	assert.True(t, ff.EnabledFor(FeatureChatFreeMode, "BETA@x.fr"))
	assert.Equal(t, map[string]bool{"beta@x.fr": true}, ff.UserOverrides(FeatureChatFreeMode))
	assert.ErrorIs(t, ff.SetUserOverride("beta@x.fr", "nope", true), ErrFeatureNotFound)

	ff.ClearUserOverride("beta@x.fr", FeatureChatFreeMode)
	assert.False(t, ff.EnabledFor(FeatureChatFreeMode, "beta@x.fr"))
	assert.Empty(t, ff.UserOverrides(FeatureChatFreeMode))

	require.NoError(t, ff.EnableFeature(FeatureChatFreeMode))
	assert.True(t, ff.EnabledFor(FeatureChatFreeMode, "a@x.fr"))

	assert.ErrorIs(t, ff.SetRolloutPercent("nope", 10), ErrFeatureNotFound)
	assert.ErrorIs(t, ff.SetRolloutPercent(FeatureChatSummaries, 101), ErrInvalidRolloutPercent)

	// Rollout buckets are stable per email.
	require.NoError(t, ff.SetRolloutPercent(FeatureChatSummaries, 50))
	first := ff.EnabledFor(FeatureChatSummaries, "c@x.fr")
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, ff.EnabledFor(FeatureChatSummaries, "c@x.fr"))
	}
}

func TestFeatureFlags_Environment(t *testing.T) {
	t.Setenv("FEATURE_CHAT_SUMMARIES", "false")
	t.Setenv("FEATURE_SYLLABUS_PUBLIC", "30")

	ff := LoadFeatureFlags()
	all := ff.GetAllFeatures()
	assert.False(t, all[FeatureChatSummaries].Enabled)
	assert.Equal(t, 30, all[FeatureSyllabusPublic].RolloutPercent)
}
