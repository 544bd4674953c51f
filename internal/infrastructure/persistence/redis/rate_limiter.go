package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed-window request limiter shared by all API replicas.
type RateLimiter struct {
	cache  *Cache
	limit  int64
	window time.Duration
	now    func() time.Time
}

// NewRateLimiter allows limit requests per identifier per window.
func NewRateLimiter(cache *Cache, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{cache: cache, limit: int64(limit), window: window, now: time.Now}
}

// Allow counts one request for identifier and reports whether it fits the window.
func (l *RateLimiter) Allow(ctx context.Context, identifier string) (bool, error) {
	slot := l.now().UnixNano() / int64(l.window)
	key := RateLimitKey(identifier, slot)

	var incr *redis.IntCmd
	_, err := l.cache.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, l.window)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("rate limit: %w", err)
	}
	return incr.Val() <= l.limit, nil
}
