package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestScheduler_RunsJobsPeriodically(t *testing.T) {
	var runs atomic.Int32
	done := make(chan struct{})

	s := New(nil)
	require.NoError(t, s.Every(10*time.Millisecond, FuncJob{JobName: "tick", Fn: func(context.Context) error {
		if runs.Add(1) == 3 {
			close(done)
		}
		return nil
	}}))
	require.NoError(t, s.Start(context.Background()))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run three times")
	}
	require.NoError(t, s.Stop())

	res, ok := s.LastResult("tick")
	require.True(t, ok)
	assert.NoError(t, res.Err)
}

func TestScheduler_Registration(t *testing.T) {
	s := New(nil)
	job := FuncJob{JobName: "a", Fn: func(context.Context) error { return nil }}

	require.NoError(t, s.Every(time.Minute, job))
	assert.ErrorIs(t, s.Every(time.Minute, job), ErrJobAlreadyExists)
	assert.ErrorIs(t, s.Every(time.Minute, nil), ErrNilJob)
	assert.Error(t, s.Every(0, FuncJob{JobName: "b"}))

	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)
	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)
	require.NoError(t, s.Stop())
}

func TestScheduler_RunNowRecoversPanics(t *testing.T) {
	s := New(nil)
	boom := errors.New("boom")
	require.NoError(t, s.Every(time.Hour, FuncJob{JobName: "fails", Fn: func(context.Context) error { return boom }}))
	require.NoError(t, s.Every(time.Hour, FuncJob{JobName: "panics", Fn: func(context.Context) error { panic("oops") }}))

	res, err := s.RunNow(context.Background(), "fails")
	require.NoError(t, err)
	assert.ErrorIs(t, res.Err, boom)

	res, err = s.RunNow(context.Background(), "panics")
	require.NoError(t, err)
	assert.ErrorContains(t, res.Err, "panicked")

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}
