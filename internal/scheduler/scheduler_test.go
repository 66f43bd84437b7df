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
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_InvalidSpec(t *testing.T) {
	t.Parallel()

	_, err := New("every now and then", time.Minute, nil)
	require.Error(t, err)
}

func TestNext(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, 5, 1, 10, 15, 0, 0, time.UTC)

	s, err := New("@every 30m", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, base.Add(30*time.Minute), s.Next(base))

	s, err = New("0 6 * * *", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 2, 6, 0, 0, 0, time.UTC), s.Next(base))
}

// TestWrap_SkipsOverlappingRuns fires the wrapped job while a run is in
// progress; the second trigger is skipped and logged.
func TestWrap_SkipsOverlappingRuns(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	s, err := New("@every 30m", time.Minute, zap.New(core))
	require.NoError(t, err)

	var runs int32
	started := make(chan struct{})
	release := make(chan struct{})
	job := s.wrap(context.Background(), func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		close(started)
		<-release
		return nil
	})

	done := make(chan struct{})
	go func() {
		job.Run()
		close(done)
	}()
	<-started

	job.Run()
	close(release)
	<-done

	assert.Equal(t, int32(1), atomic.LoadInt32(&runs))
	assert.Equal(t, 1, logs.FilterMessageSnippet("skipping trigger").Len())
}

func TestWrap_TimeoutAndErrors(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.ErrorLevel)
	s, err := New("@every 30m", 50*time.Millisecond, zap.New(core))
	require.NoError(t, err)

	var deadline bool
	s.wrap(context.Background(), func(ctx context.Context) error {
		_, deadline = ctx.Deadline()
		<-ctx.Done()
		return ctx.Err()
	}).Run()

	assert.True(t, deadline)
	assert.Equal(t, 1, logs.FilterMessage("scheduled run failed").Len())
}

// TestWrap_RecoversPanics keeps the scheduler alive after a panicking run.
func TestWrap_RecoversPanics(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.ErrorLevel)
	s, err := New("@every 30m", 0, zap.New(core))
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		s.wrap(context.Background(), func(context.Context) error { panic("boom") }).Run()
	})
	assert.Equal(t, 1, logs.Len())
}

func TestWrap_CancelledParentSkipsRun(t *testing.T) {
	t.Parallel()

	s, err := New("@every 30m", 0, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	s.wrap(ctx, func(context.Context) error {
		called = true
		return nil
	}).Run()
	assert.False(t, called)
}

// TestRun_RunNow fires immediately and returns once the context is
// cancelled and the run has finished.
func TestRun_RunNow(t *testing.T) {
	t.Parallel()

	s, err := New("@every 30m", time.Minute, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var runs int32
	ran := make(chan struct{})
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Run(ctx, func(context.Context) error {
			if atomic.AddInt32(&runs, 1) == 1 {
				close(ran)
			}
			return errors.New("source down")
		}, true)
	}()

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not run")
	}
	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&runs))
}

// TestRun_WaitsForImmediateRun does not return while the run started by
// runNow is still cleaning up after cancellation.
func TestRun_WaitsForImmediateRun(t *testing.T) {
	t.Parallel()

	s, err := New("@every 30m", time.Minute, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	var finished int32
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Run(ctx, func(runCtx context.Context) error {
			close(started)
			<-runCtx.Done()
			time.Sleep(100 * time.Millisecond)
			atomic.StoreInt32(&finished, 1)
			return runCtx.Err()
		}, true)
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not run")
	}
	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&finished), "Run returned before the immediate run finished")
}
