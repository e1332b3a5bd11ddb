package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRunNowRejectsOverlap(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	started := make(chan struct{})
	s, err := New("@hourly", func(context.Context) error {
		close(started)
		<-release
		return nil
	}, zap.NewNop())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.RunNow(context.Background()) }()
	<-started

	require.ErrorIs(t, s.RunNow(context.Background()), ErrRunInProgress)
	assert.False(t, s.Trigger())

	close(release)
	require.NoError(t, <-done)
}

func TestRunNowPropagatesError(t *testing.T) {
	t.Parallel()

	boom := errors.New("search page 1: upstream")
	var calls atomic.Int32
	s, err := New("", func(context.Context) error {
		if calls.Add(1) == 1 {
			return boom
		}
		return nil
	}, zap.NewNop())
	require.NoError(t, err)
	require.ErrorIs(t, s.RunNow(context.Background()), boom)
	require.NoError(t, s.RunNow(context.Background()), "lock is released after a failure")
}

func TestTriggerRunsInBackground(t *testing.T) {
	t.Parallel()

	var runs atomic.Int32
	s, err := New("@hourly", func(context.Context) error {
		runs.Add(1)
		return nil
	}, zap.NewNop())
	require.NoError(t, err)

	require.True(t, s.Trigger())
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	s.Stop()
}

func TestStartRunsOnScheduleAndStopCancels(t *testing.T) {
	t.Parallel()

	var runs atomic.Int32
	canceled := make(chan struct{}, 1)
	s, err := New("@every 1s", func(ctx context.Context) error {
		if runs.Add(1) == 1 {
			return nil
		}
		<-ctx.Done()
		canceled <- struct{}{}
		return ctx.Err()
	}, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background(), true))
	assert.False(t, s.Next().IsZero())
	require.Eventually(t, func() bool { return runs.Load() >= 2 }, 5*time.Second, 10*time.Millisecond)

	s.Stop()
	select {
	case <-canceled:
	case <-time.After(time.Second):
		t.Fatal("in-flight run was not canceled")
	}
}

func TestStartRejectsBadSpec(t *testing.T) {
	t.Parallel()

	s, err := New("every tuesday", func(context.Context) error { return nil }, zap.NewNop())
	require.NoError(t, err)
	require.Error(t, s.Start(context.Background(), false))

	s, err = New("", func(context.Context) error { return nil }, zap.NewNop())
	require.NoError(t, err)
	require.Error(t, s.Start(context.Background(), false))

	_, err = New("@hourly", nil, zap.NewNop())
	require.Error(t, err)
}
