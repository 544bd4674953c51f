package usage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mentor-hub/mentor-hub/internal/domain/shared"
	"github.com/mentor-hub/mentor-hub/pkg/timeutil"
)

type failingCounter struct{}

func (failingCounter) Count(context.Context, string, string) (int64, error) {
	return 0, errors.New("connection refused")
}

func (failingCounter) Increment(context.Context, string, string) (int64, error) {
	return 0, errors.New("connection refused")
}

var march = timeutil.FixedClock(time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC))

func TestGovernor_Boundary(t *testing.T) {
	ctx := context.Background()
	g := NewGovernor(NewMemoryCounter(), march)

	for i := 1; i <= 3; i++ {
		d, err := g.CheckAndIncrement(ctx, "a@x.fr", 3)
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d", i)
		assert.Equal(t, int64(i), d.Count)
		assert.Equal(t, "2026-03", d.Period)
	}

	d, err := g.CheckAndIncrement(ctx, "a@x.fr", 3)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, int64(4), d.Count)
	assert.Equal(t, int64(3), d.Limit)
}

func TestGovernor_CheckOnlyDoesNotMutate(t *testing.T) {
	ctx := context.Background()
	g := NewGovernor(NewMemoryCounter(), march)

	d, err := g.CheckOnly(ctx, "a@x.fr", 2)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(0), d.Count)

	_, _ = g.CheckAndIncrement(ctx, "a@x.fr", 2)
	_, _ = g.CheckAndIncrement(ctx, "a@x.fr", 2)

	for i := 0; i < 3; i++ {
		d, err = g.CheckOnly(ctx, "a@x.fr", 2)
		require.NoError(t, err)
		assert.False(t, d.Allowed)
		assert.Equal(t, int64(2), d.Count)
	}
}

func TestGovernor_Concurrent(t *testing.T) {
	ctx := context.Background()
	g := NewGovernor(NewMemoryCounter(), march)

	const n = 200
	counts := make([]int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := g.CheckAndIncrement(ctx, "a@x.fr", 100)
			assert.NoError(t, err)
			counts[i] = d.Count
		}(i)
	}
	wg.Wait()

	seen := make(map[int64]bool, n)
	for _, c := range counts {
		assert.False(t, seen[c], "duplicate count %d", c)
		seen[c] = true
	}
	for i := int64(1); i <= n; i++ {
		assert.True(t, seen[i], "missing count %d", i)
	}
}

func TestGovernor_PeriodRollover(t *testing.T) {
	ctx := context.Background()
	counter := NewMemoryCounter()

	feb := NewGovernor(counter, timeutil.FixedClock(time.Date(2026, 2, 28, 23, 59, 0, 0, time.UTC)))
	for i := 0; i < 5; i++ {
		_, _ = feb.CheckAndIncrement(ctx, "a@x.fr", 5)
	}
	d, _ := feb.CheckOnly(ctx, "a@x.fr", 5)
	assert.False(t, d.Allowed)

	mar := NewGovernor(counter, timeutil.FixedClock(time.Date(2026, 3, 1, 0, 1, 0, 0, time.UTC)))
	d, err := mar.CheckAndIncrement(ctx, "a@x.fr", 5)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(1), d.Count)
	assert.Equal(t, "2026-03", d.Period)
}

func TestGovernor_FailsClosed(t *testing.T) {
	ctx := context.Background()
	g := NewGovernor(failingCounter{}, march)

	d, err := g.CheckAndIncrement(ctx, "a@x.fr", 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrServiceUnavailable))
	assert.ErrorIs(t, err, shared.ErrUsageStoreFailed)
	assert.ErrorContains(t, err, "connection refused")
	assert.False(t, d.Allowed)
	assert.Equal(t, int64(11), d.Count)

	d, err = g.CheckOnly(ctx, "a@x.fr", 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrUsageStoreFailed)
	assert.False(t, d.Allowed)
}

func TestGovernor_EmailNormalized(t *testing.T) {
	ctx := context.Background()
	g := NewGovernor(NewMemoryCounter(), march)

	_, _ = g.CheckAndIncrement(ctx, "Alice@X.fr ", 10)
	d, _ := g.CheckAndIncrement(ctx, "alice@x.fr", 10)
	assert.Equal(t, int64(2), d.Count)
}
