package redis

import (
	"context"
	"errors"
	"time"

	"github.com/mentor-hub/mentor-hub/internal/domain/session"
)

// SessionStore implements session.Store. Each session is one JSON value whose
// TTL is reset on every Save.
type SessionStore struct {
	cache *Cache
}

// NewSessionStore creates a SessionStore.
func NewSessionStore(cache *Cache) *SessionStore {
	return &SessionStore{cache: cache}
}

var _ session.Store = (*SessionStore)(nil)

// Get returns the stored state, or nil when absent, expired or undecodable.
func (s *SessionStore) Get(ctx context.Context, id string) (*session.State, error) {
	var st session.State
	err := s.cache.GetJSON(ctx, SessionKey(id), &st)
	switch {
	case err == nil:
		return &st, nil
	case errors.Is(err, ErrCacheMiss), errors.Is(err, ErrCacheSerialization):
		return nil, nil
	default:
		return nil, err
	}
}

// Save writes the state with ttl.
func (s *SessionStore) Save(ctx context.Context, id string, state session.State, ttl time.Duration) error {
	return s.cache.SetJSON(ctx, SessionKey(id), state, ttl)
}
