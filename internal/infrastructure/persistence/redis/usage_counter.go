package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mentor-hub/mentor-hub/internal/domain/usage"
	"github.com/mentor-hub/mentor-hub/pkg/timeutil"
)

// usageGrace keeps a finished period readable for a while after it ends.
const usageGrace = 7 * 24 * time.Hour

// UsageCounter implements usage.Counter with INCR. Keys expire after the
// end of their period.
type UsageCounter struct {
	cache *Cache
}

// NewUsageCounter creates a UsageCounter.
func NewUsageCounter(cache *Cache) *UsageCounter {
	return &UsageCounter{cache: cache}
}

var _ usage.Counter = (*UsageCounter)(nil)

// Count returns the current count, 0 when absent.
func (c *UsageCounter) Count(ctx context.Context, email, period string) (int64, error) {
	n, err := c.cache.client.Get(ctx, UsageKey(period, email)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read usage: %w", err)
	}
	return n, nil
}

// Increment adds one and sets the expiry in the same MULTI block.
func (c *UsageCounter) Increment(ctx context.Context, email, period string) (int64, error) {
	key := UsageKey(period, email)

	var incr *redis.IntCmd
	_, err := c.cache.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		if start, err := timeutil.ParsePeriod(period); err == nil {
			pipe.ExpireAt(ctx, key, timeutil.PeriodEnd(start).Add(usageGrace))
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("increment usage: %w", err)
	}
	return incr.Val(), nil
}
