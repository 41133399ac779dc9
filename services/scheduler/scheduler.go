package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"streamcoin-core/pkg/rediskey"

	"go.uber.org/zap"
)

// TickFunc runs one batch for a job type.
type TickFunc func(ctx context.Context) error

// Runner drives one periodic job type. Two layers keep ticks exclusive:
// within the process an atomic in-flight flag skips a tick while the previous
// one still runs, and across the fleet the Locker token ensures only one
// instance executes the sweep per tick. A busy lock skips the tick entirely —
// there is no queuing — and the timer tries again next interval.
type Runner struct {
	name     string
	interval time.Duration
	lockKey  string
	locker   Locker
	tick     TickFunc

	inFlight atomic.Bool
}

func NewRunner(name string, interval time.Duration, locker Locker, tick TickFunc) *Runner {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Runner{
		name:     name,
		interval: interval,
		lockKey:  rediskey.BuildSweepLockKey(name),
		locker:   locker,
		tick:     tick,
	}
}

func (r *Runner) Name() string { return r.name }

// Run loops until the context is cancelled.
func (r *Runner) Run(ctx context.Context) {
	zapLog := zap.L().With(zap.String("job_type", r.name))
	zapLog.Info("[Scheduler] started", zap.Duration("interval", r.interval))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.RunOnce(ctx)
		case <-ctx.Done():
			zapLog.Info("[Scheduler] stopped")
			return
		}
	}
}

// RunOnce attempts a single tick, honoring both exclusion layers.
func (r *Runner) RunOnce(ctx context.Context) {
	zapLog := zap.L().With(zap.String("job_type", r.name))

	if !r.inFlight.CompareAndSwap(false, true) {
		zapLog.Debug("[Scheduler] previous tick still running, skipping")
		return
	}
	defer r.inFlight.Store(false)

	release, ok, err := r.locker.Acquire(ctx, r.lockKey)
	if err != nil {
		zapLog.Error("[Scheduler] lock acquire failed", zap.Error(err))
		return
	}
	defer release()
	if !ok {
		zapLog.Debug("[Scheduler] lock busy, skipping tick")
		return
	}

	start := time.Now()
	if err := r.tick(ctx); err != nil {
		zapLog.Error("[Scheduler] tick failed", zap.Error(err))
		return
	}
	zapLog.Debug("[Scheduler] tick finished", zap.Duration("duration", time.Since(start)))
}
