package usage

import (
	"context"
	"sync"
	"sync/atomic"
)

// MemoryCounter is an in-process Counter for development and tests.
type MemoryCounter struct {
	counts sync.Map // key -> *atomic.Int64
}

// NewMemoryCounter creates an empty counter.
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{}
}

func memoryKey(email, period string) string { return period + "|" + email }

// Count implements Counter.
func (c *MemoryCounter) Count(_ context.Context, email, period string) (int64, error) {
	v, ok := c.counts.Load(memoryKey(email, period))
	if !ok {
		return 0, nil
	}
	return v.(*atomic.Int64).Load(), nil
}

// Increment implements Counter.
func (c *MemoryCounter) Increment(_ context.Context, email, period string) (int64, error) {
	v, _ := c.counts.LoadOrStore(memoryKey(email, period), new(atomic.Int64))
	return v.(*atomic.Int64).Add(1), nil
}
