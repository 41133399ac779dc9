// Package jobengine is the generic poll/claim/execute/retry primitive shared
// by every background work queue in the system: moderation analysis, chat
// outbox delivery, and media normalization all instantiate the same engine
// against their own job table instead of duplicating claim and backoff logic.
package jobengine

import (
	"context"
	"sync/atomic"
	"time"

	"streamcoin-core/pkg/backoff"
	"streamcoin-core/pkg/errutil"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// Config tunes one engine instantiation.
type Config struct {
	// Name identifies the job type in logs.
	Name string
	// BatchSize caps candidates fetched per tick.
	BatchSize int
	// MaxRetries is the retry budget before a job becomes failed_final.
	MaxRetries int
	// StuckAfter is how stale a processing row's last_tried_at must be
	// before the row is presumed abandoned and reclaimable.
	StuckAfter time.Duration
	// WorkTimeout is the hard per-item execution bound.
	WorkTimeout time.Duration
	// BackoffBase and BackoffCap bound the retry delay
	// min(cap, base * 2^(retryCount-1)).
	BackoffBase time.Duration
	BackoffCap  time.Duration
	// Concurrency bounds intra-batch parallelism. Row claiming already
	// serializes access per row; values <= 1 process the batch one item
	// at a time.
	Concurrency int
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 20
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.StuckAfter <= 0 {
		c.StuckAfter = 10 * time.Minute
	}
	if c.WorkTimeout <= 0 {
		c.WorkTimeout = time.Minute
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 30 * time.Second
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = 30 * time.Minute
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	return c
}

// WorkFunc executes one claimed job. It has no knowledge of the engine's
// retry and backoff bookkeeping; returning an error (or overrunning the
// timeout) marks the attempt failed and schedules a retry.
type WorkFunc[T any] func(ctx context.Context, job *T) error

// EligibleFunc lets an instantiation veto a candidate before claiming it
// (e.g. a local-file presence check). Returning false leaves the row
// untouched for a later tick.
type EligibleFunc[T any] func(job *T) bool

// TickStats summarizes one engine pass for logging and tests.
type TickStats struct {
	Selected  int
	Claimed   int
	Succeeded int
	Retried   int
	Exhausted int
	Skipped   int
}

type tickCounters struct {
	claimed   atomic.Int64
	succeeded atomic.Int64
	retried   atomic.Int64
	exhausted atomic.Int64
	skipped   atomic.Int64
}

type Engine[T any, P Row[T]] struct {
	db       *gorm.DB
	cfg      Config
	work     WorkFunc[T]
	eligible EligibleFunc[T]
}

func New[T any, P Row[T]](db *gorm.DB, cfg Config, work WorkFunc[T]) *Engine[T, P] {
	return &Engine[T, P]{
		db:   db,
		cfg:  cfg.withDefaults(),
		work: work,
	}
}

// WithEligible installs a pre-claim eligibility hook.
func (e *Engine[T, P]) WithEligible(fn EligibleFunc[T]) *Engine[T, P] {
	e.eligible = fn
	return e
}

func (e *Engine[T, P]) Name() string {
	return e.cfg.Name
}

// candidatePredicate is the single OR-predicate shared by candidate selection
// and the conditional claim update: pending rows, failed rows whose backoff
// elapsed, and processing rows abandoned past the stuck threshold.
func (e *Engine[T, P]) candidatePredicate(now time.Time) (string, []any) {
	return "status = ? OR (status = ? AND (next_retry_at IS NULL OR next_retry_at <= ?)) OR (status = ? AND last_tried_at < ?)",
		[]any{StatusPending, StatusFailed, now, StatusProcessing, now.Add(-e.cfg.StuckAfter)}
}

// RunTick performs one engine pass: select candidates oldest-first, claim
// each with an atomic conditional update, run the work function under the
// per-item timeout, and persist each outcome independently. One candidate's
// failure never aborts the rest of the batch.
func (e *Engine[T, P]) RunTick(ctx context.Context) (TickStats, error) {
	now := time.Now()
	pred, args := e.candidatePredicate(now)

	var rows []T
	if err := e.db.WithContext(ctx).
		Where(pred, args...).
		Order("created_at ASC").
		Limit(e.cfg.BatchSize).
		Find(&rows).Error; err != nil {
		return TickStats{}, err
	}

	var counters tickCounters

	g := new(errgroup.Group)
	g.SetLimit(e.cfg.Concurrency)
	for i := range rows {
		row := &rows[i]
		g.Go(func() error {
			e.processCandidate(ctx, row, &counters)
			return nil
		})
	}
	_ = g.Wait()

	stats := TickStats{
		Selected:  len(rows),
		Claimed:   int(counters.claimed.Load()),
		Succeeded: int(counters.succeeded.Load()),
		Retried:   int(counters.retried.Load()),
		Exhausted: int(counters.exhausted.Load()),
		Skipped:   int(counters.skipped.Load()),
	}

	if stats.Selected > 0 {
		zap.L().Info("job tick finished",
			zap.String("job_type", e.cfg.Name),
			zap.Int("selected", stats.Selected),
			zap.Int("claimed", stats.Claimed),
			zap.Int("succeeded", stats.Succeeded),
			zap.Int("retried", stats.Retried),
			zap.Int("exhausted", stats.Exhausted),
			zap.Int("skipped", stats.Skipped),
		)
	}

	return stats, nil
}

func (e *Engine[T, P]) processCandidate(ctx context.Context, row *T, counters *tickCounters) {
	p := P(row)
	state := p.State()

	zapLog := zap.L().With(
		zap.String("job_type", e.cfg.Name),
		zap.String("job_id", p.JobID()),
	)

	// The retry budget may have been exhausted by another worker after this
	// row was selected; finalize without running work.
	if state.RetryCount >= e.cfg.MaxRetries {
		if e.finalizeExhausted(ctx, p.JobID()) {
			counters.exhausted.Add(1)
			zapLog.Warn("retry budget exhausted, job finalized", zap.Int("retry_count", state.RetryCount))
		} else {
			counters.skipped.Add(1)
		}
		return
	}

	if e.eligible != nil && !e.eligible(row) {
		counters.skipped.Add(1)
		return
	}

	if !e.claim(ctx, p.JobID()) {
		counters.skipped.Add(1)
		return
	}
	counters.claimed.Add(1)

	err := e.runWork(ctx, row)
	if err == nil {
		e.recordSuccess(ctx, p.JobID())
		counters.succeeded.Add(1)
		return
	}

	retryCount := state.RetryCount + 1
	if retryCount >= e.cfg.MaxRetries {
		e.recordFinalFailure(ctx, p.JobID(), retryCount, err)
		counters.exhausted.Add(1)
		zapLog.Warn("job permanently failed", zap.Int("retry_count", retryCount), zap.Error(err))
		return
	}

	delay := backoff.Delay(retryCount, e.cfg.BackoffBase, e.cfg.BackoffCap)
	e.recordRetryableFailure(ctx, p.JobID(), retryCount, delay, err)
	counters.retried.Add(1)
	zapLog.Info("job failed, retry scheduled",
		zap.Int("retry_count", retryCount),
		zap.Duration("backoff", delay),
		zap.Error(err),
	)
}

// claim flips the row into processing with an atomic conditional update. The
// WHERE clause re-asserts the full candidate predicate, so exactly one of any
// number of racing workers sees RowsAffected == 1. This is the engine's sole
// concurrency-control mechanism; no external lock manager is involved.
func (e *Engine[T, P]) claim(ctx context.Context, jobID string) bool {
	now := time.Now()
	pred, args := e.candidatePredicate(now)

	var model T
	res := e.db.WithContext(ctx).Model(&model).
		Where("id = ?", jobID).
		Where(pred, args...).
		Updates(map[string]any{
			"status":        StatusProcessing,
			"last_tried_at": now,
		})
	if res.Error != nil {
		zap.L().Error("job claim failed",
			zap.String("job_type", e.cfg.Name),
			zap.String("job_id", jobID),
			zap.Error(res.Error),
		)
		return false
	}
	return res.RowsAffected == 1
}

// runWork executes the work function under a hard timeout. Work that ignores
// context cancellation still cannot hold up the engine: the attempt is
// recorded as a timeout and the goroutine is left to finish on its own.
func (e *Engine[T, P]) runWork(ctx context.Context, row *T) error {
	wctx, cancel := context.WithTimeout(ctx, e.cfg.WorkTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- e.work(wctx, row)
	}()

	select {
	case err := <-done:
		return err
	case <-wctx.Done():
		return errutil.Timeout("job work timed out", errutil.WithErr(wctx.Err()))
	}
}

func (e *Engine[T, P]) finalizeExhausted(ctx context.Context, jobID string) bool {
	now := time.Now()
	pred, args := e.candidatePredicate(now)

	var model T
	res := e.db.WithContext(ctx).Model(&model).
		Where("id = ?", jobID).
		Where(pred, args...).
		Updates(map[string]any{
			"status":        StatusFailedFinal,
			"last_tried_at": now,
		})
	return res.Error == nil && res.RowsAffected == 1
}

func (e *Engine[T, P]) recordSuccess(ctx context.Context, jobID string) {
	var model T
	err := e.db.WithContext(ctx).Model(&model).
		Where("id = ?", jobID).
		Updates(map[string]any{
			"status":        StatusDone,
			"next_retry_at": nil,
			"last_error":    "",
		}).Error
	if err != nil {
		zap.L().Error("failed to record job success",
			zap.String("job_type", e.cfg.Name),
			zap.String("job_id", jobID),
			zap.Error(err),
		)
	}
}

func (e *Engine[T, P]) recordRetryableFailure(ctx context.Context, jobID string, retryCount int, delay time.Duration, workErr error) {
	var model T
	err := e.db.WithContext(ctx).Model(&model).
		Where("id = ?", jobID).
		Updates(map[string]any{
			"status":        StatusFailed,
			"retry_count":   retryCount,
			"next_retry_at": time.Now().Add(delay),
			"last_error":    truncateError(workErr),
		}).Error
	if err != nil {
		zap.L().Error("failed to record job failure",
			zap.String("job_type", e.cfg.Name),
			zap.String("job_id", jobID),
			zap.Error(err),
		)
	}
}

func (e *Engine[T, P]) recordFinalFailure(ctx context.Context, jobID string, retryCount int, workErr error) {
	var model T
	err := e.db.WithContext(ctx).Model(&model).
		Where("id = ?", jobID).
		Updates(map[string]any{
			"status":        StatusFailedFinal,
			"retry_count":   retryCount,
			"next_retry_at": nil,
			"last_error":    truncateError(workErr),
		}).Error
	if err != nil {
		zap.L().Error("failed to record final job failure",
			zap.String("job_type", e.cfg.Name),
			zap.String("job_id", jobID),
			zap.Error(err),
		)
	}
}

const maxErrorLen = 500

func truncateError(err error) string {
	msg := err.Error()
	if len(msg) > maxErrorLen {
		return msg[:maxErrorLen]
	}
	return msg
}
