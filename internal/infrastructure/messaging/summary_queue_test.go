package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mentor-hub/mentor-hub/internal/domain/summary"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recorder struct {
	mu   sync.Mutex
	seen []summary.Exchange
	done chan struct{}
}

func newRecorder(n int) *recorder {
	return &recorder{done: make(chan struct{}, n)}
}

func (r *recorder) handle(_ context.Context, ex summary.Exchange) error {
	r.mu.Lock()
	r.seen = append(r.seen, ex)
	r.mu.Unlock()
	r.done <- struct{}{}
	return nil
}

func waitFor(t *testing.T, ch <-chan struct{}, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d of %d jobs", i, n)
		}
	}
}

func TestSummaryQueue_DeliversJobs(t *testing.T) {
	rec := newRecorder(3)
	q := NewSummaryQueue(DefaultQueueConfig(), rec.handle, nil)
	require.NoError(t, q.Start(context.Background()))

	for _, msg := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(context.Background(), summary.Exchange{Email: "s@x.fr", UserMessage: msg, MentorReply: "ok"}))
	}
	waitFor(t, rec.done, 3)
	require.NoError(t, q.Close())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Len(t, rec.seen, 3)
	assert.Equal(t, QueueSnapshot{Published: 3, Processed: 3}, q.Metrics())
}

func TestSummaryQueue_RequestCancellationDoesNotReachHandler(t *testing.T) {
	gotErr := make(chan error, 1)
	q := NewSummaryQueue(DefaultQueueConfig(), func(ctx context.Context, _ summary.Exchange) error {
		gotErr <- ctx.Err()
		return nil
	}, nil)
	require.NoError(t, q.Start(context.Background()))
	defer q.Close()

	reqCtx, cancel := context.WithCancel(context.Background())
	require.NoError(t, q.Enqueue(reqCtx, summary.Exchange{Email: "s@x.fr"}))
	cancel()

	select {
	case err := <-gotErr:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("handler not called")
	}
}

func TestSummaryQueue_FailuresAreAckedAndCounted(t *testing.T) {
	done := make(chan struct{}, 2)
	calls := 0
	q := NewSummaryQueue(DefaultQueueConfig(), func(context.Context, summary.Exchange) error {
		defer func() { done <- struct{}{} }()
		calls++
		if calls == 1 {
			panic("boom")
		}
		return errors.New("backend down")
	}, nil)
	require.NoError(t, q.Start(context.Background()))

	require.NoError(t, q.Enqueue(context.Background(), summary.Exchange{Email: "s@x.fr"}))
	require.NoError(t, q.Enqueue(context.Background(), summary.Exchange{Email: "s@x.fr"}))
	waitFor(t, done, 2)
	require.NoError(t, q.Close())

	assert.Equal(t, int64(2), q.Metrics().Failed)
	assert.Equal(t, 2, calls)
}

func TestSummaryQueue_EnqueueAfterClose(t *testing.T) {
	q := NewSummaryQueue(DefaultQueueConfig(), func(context.Context, summary.Exchange) error { return nil }, nil)
	require.NoError(t, q.Start(context.Background()))
	require.NoError(t, q.Close())
	require.NoError(t, q.Close())

	assert.ErrorIs(t, q.Enqueue(context.Background(), summary.Exchange{}), ErrQueueClosed)
	assert.ErrorIs(t, q.Start(context.Background()), ErrQueueClosed)
}
