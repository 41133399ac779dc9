package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// memLocker is a process-local Locker used to exercise the runner without
// redis.
type memLocker struct {
	mu   sync.Mutex
	held map[string]bool
	err  error

	acquired int
	released int
}

func newMemLocker() *memLocker {
	return &memLocker{held: make(map[string]bool)}
}

func (l *memLocker) Acquire(ctx context.Context, key string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.err != nil {
		return func() {}, false, l.err
	}
	if l.held[key] {
		return func() {}, false, nil
	}

	l.held[key] = true
	l.acquired++

	var once sync.Once
	release := func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.held, key)
			l.released++
		})
	}
	return release, true, nil
}

func TestRunOnceExecutesTickAndReleasesLock(t *testing.T) {
	locker := newMemLocker()

	var ticks atomic.Int64
	runner := NewRunner("moderation", time.Second, locker, func(ctx context.Context) error {
		ticks.Add(1)
		return nil
	})

	runner.RunOnce(context.Background())
	require.EqualValues(t, 1, ticks.Load())
	require.Equal(t, 1, locker.acquired)
	require.Equal(t, 1, locker.released)

	// The lock is free again, so the next tick proceeds.
	runner.RunOnce(context.Background())
	require.EqualValues(t, 2, ticks.Load())
}

func TestRunOnceSkipsWhenLockBusy(t *testing.T) {
	locker := newMemLocker()

	// Another instance holds the sweep lock for this job type.
	release, ok, err := locker.Acquire(context.Background(), "sweep:lock:moderation")
	require.NoError(t, err)
	require.True(t, ok)
	defer release()

	var ticks atomic.Int64
	runner := NewRunner("moderation", time.Second, locker, func(ctx context.Context) error {
		ticks.Add(1)
		return nil
	})

	runner.RunOnce(context.Background())
	require.EqualValues(t, 0, ticks.Load())
}

func TestRunOnceSkipsOnLockError(t *testing.T) {
	locker := newMemLocker()
	locker.err = errors.New("redis unavailable")

	var ticks atomic.Int64
	runner := NewRunner("moderation", time.Second, locker, func(ctx context.Context) error {
		ticks.Add(1)
		return nil
	})

	runner.RunOnce(context.Background())
	require.EqualValues(t, 0, ticks.Load())
}

func TestRunOnceReleasesLockWhenTickFails(t *testing.T) {
	locker := newMemLocker()

	runner := NewRunner("moderation", time.Second, locker, func(ctx context.Context) error {
		return errors.New("tick failed")
	})

	runner.RunOnce(context.Background())
	require.Equal(t, 1, locker.acquired)
	require.Equal(t, 1, locker.released)
}

func TestRunOnceSingleFlightWithinProcess(t *testing.T) {
	locker := newMemLocker()

	started := make(chan struct{})
	unblock := make(chan struct{})
	var ticks atomic.Int64
	runner := NewRunner("moderation", time.Second, locker, func(ctx context.Context) error {
		ticks.Add(1)
		close(started)
		<-unblock
		return nil
	})

	done := make(chan struct{})
	go func() {
		runner.RunOnce(context.Background())
		close(done)
	}()
	<-started

	// A second tick while the first is still running is dropped, not queued.
	runner.RunOnce(context.Background())
	require.EqualValues(t, 1, ticks.Load())

	close(unblock)
	<-done
	require.EqualValues(t, 1, ticks.Load())
}

func TestRunLoopStopsOnCancel(t *testing.T) {
	locker := newMemLocker()

	var ticks atomic.Int64
	runner := NewRunner("moderation", 10*time.Millisecond, locker, func(ctx context.Context) error {
		ticks.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		runner.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return ticks.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runner did not stop after cancel")
	}
}
