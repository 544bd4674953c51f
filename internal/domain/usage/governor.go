// Package usage enforces the per-student monthly message quota.
//
// The quota counter lives in the store and is incremented atomically there;
// the Governor never holds a lock or keeps counts in memory.
package usage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mentor-hub/mentor-hub/internal/domain/shared"
	"github.com/mentor-hub/mentor-hub/pkg/timeutil"
)

// Record is the stored usage of one student for one period.
type Record struct {
	Email     string    `json:"email"`
	Period    string    `json:"period"`
	Count     int64     `json:"count"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Counter is the store side of the governor.
type Counter interface {
	// Count returns the current count, 0 when no record exists.
	Count(ctx context.Context, email, period string) (int64, error)

	// Increment atomically creates the record with count 1 or adds 1 to it,
	// and returns the post-increment count.
	Increment(ctx context.Context, email, period string) (int64, error)
}

// Decision is the outcome of a quota check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Count   int64  `json:"count"`
	Limit   int64  `json:"limit"`
	Period  string `json:"period"`
}

// Governor applies a monthly limit on top of a Counter.
type Governor struct {
	counter Counter
	clock   timeutil.Clock
}

// NewGovernor creates a Governor. A nil clock means the system clock.
func NewGovernor(counter Counter, clock timeutil.Clock) *Governor {
	if clock == nil {
		clock = timeutil.SystemClock()
	}
	return &Governor{counter: counter, clock: clock}
}

// NormalizeEmail trims and lower-cases an address so that casing variants
// share one quota.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CurrentPeriod returns the period key for now.
func (g *Governor) CurrentPeriod() string {
	return timeutil.Period(g.clock.Now())
}

// CheckOnly reports whether one more message would be allowed without
// consuming anything. On store failure it denies.
func (g *Governor) CheckOnly(ctx context.Context, email string, limit int64) (Decision, error) {
	period := g.CurrentPeriod()

	count, err := g.counter.Count(ctx, NormalizeEmail(email), period)
	if err != nil {
		return denied(limit, period), fmt.Errorf("%w: read: %w", shared.ErrUsageStoreFailed, err)
	}

	return Decision{
		Allowed: count < limit,
		Count:   count,
		Limit:   limit,
		Period:  period,
	}, nil
}

// CheckAndIncrement consumes one message and reports whether it fits the limit.
// The increment happens before the comparison, so a denied request still
// counts. On store failure it denies with Count = limit+1.
func (g *Governor) CheckAndIncrement(ctx context.Context, email string, limit int64) (Decision, error) {
	period := g.CurrentPeriod()

	count, err := g.counter.Increment(ctx, NormalizeEmail(email), period)
	if err != nil {
		return denied(limit, period), fmt.Errorf("%w: increment: %w", shared.ErrUsageStoreFailed, err)
	}

	return Decision{
		Allowed: count <= limit,
		Count:   count,
		Limit:   limit,
		Period:  period,
	}, nil
}

func denied(limit int64, period string) Decision {
	return Decision{Allowed: false, Count: limit + 1, Limit: limit, Period: period}
}
