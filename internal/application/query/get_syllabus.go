// Package query contains the read operations of mentor-hub.
package query

import (
	"context"

	"github.com/mentor-hub/mentor-hub/internal/domain/shared"
	"github.com/mentor-hub/mentor-hub/internal/domain/syllabus"
)

// FeatureSyllabusPublic gates anonymous syllabus reads.
const FeatureSyllabusPublic = "syllabus.public"

// FeatureChecker reports feature flags. An empty email means "anonymous".
type FeatureChecker interface {
	EnabledFor(feature, email string) bool
}

// ══════════════════════════════════════════════════════════════════════════════
// GET SYLLABUS QUERY
// Anonymous read of a published program through its share token.
// ══════════════════════════════════════════════════════════════════════════════

// GetSyllabusQuery contains the share token.
type GetSyllabusQuery struct {
	Token string
}

// GetSyllabusHandler handles GetSyllabusQuery.
type GetSyllabusHandler struct {
	publisher *syllabus.Publisher
	features  FeatureChecker
}

// NewGetSyllabusHandler creates a new GetSyllabusHandler. features may be nil.
func NewGetSyllabusHandler(publisher *syllabus.Publisher, features FeatureChecker) *GetSyllabusHandler {
	return &GetSyllabusHandler{publisher: publisher, features: features}
}

// Handle resolves the token. A disabled public syllabus behaves as if no
// program were published.
func (h *GetSyllabusHandler) Handle(ctx context.Context, q GetSyllabusQuery) (*syllabus.PublicProgram, error) {
	if h.features != nil && !h.features.EnabledFor(FeatureSyllabusPublic, "") {
		return nil, shared.ErrSyllabusNotFound
	}
	return h.publisher.Resolve(ctx, q.Token)
}
