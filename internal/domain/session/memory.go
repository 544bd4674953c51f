package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process TTL Store. Expired records are dropped lazily
// on read and by Sweep.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time
}

type memoryItem struct {
	state     State
	expiresAt time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]memoryItem), now: time.Now}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[id]
	if !ok {
		return nil, nil
	}
	if !s.now().Before(it.expiresAt) {
		delete(s.items, id)
		return nil, nil
	}
	st := it.state
	return &st, nil
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, id string, state State, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[id] = memoryItem{state: state, expiresAt: s.now().Add(ttl)}
	return nil
}

// Sweep removes expired records and returns how many were dropped.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for id, it := range s.items {
		if !now.Before(it.expiresAt) {
			delete(s.items, id)
			n++
		}
	}
	return n
}
