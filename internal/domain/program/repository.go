package program

import "context"

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository stores programs and their publish state.
type Repository interface {
	// GetByKey returns the program. Returns shared.ErrProgramNotFound if absent.
	GetByKey(ctx context.Context, key string) (*Program, error)

	// List returns all programs ordered by key.
	List(ctx context.Context) ([]*Program, error)

	// Upsert creates or replaces the program content. Publish state and
	// CreatedAt of an existing program are preserved.
	Upsert(ctx context.Context, p *Program) error

	// Delete removes the program. Returns shared.ErrProgramNotFound if absent.
	Delete(ctx context.Context, key string) error

	// GetByPublishToken returns the published program holding token.
	// Returns shared.ErrProgramNotFound when no published program matches.
	GetByPublishToken(ctx context.Context, token string) (*Program, error)

	// SavePublishState replaces the publish state. Any token the program held
	// before that differs from the new one is recorded as revoked.
	SavePublishState(ctx context.Context, key string, state PublishState) error

	// RotatePublishToken saves state only if the program is currently
	// published, checking and writing in one step. Returns
	// shared.ErrNotPublished otherwise.
	RotatePublishToken(ctx context.Context, key string, state PublishState) error

	// TokenRevoked reports whether token was ever revoked.
	TokenRevoked(ctx context.Context, token string) (bool, error)
}
