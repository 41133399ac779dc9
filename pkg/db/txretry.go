package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"streamcoin-core/pkg/backoff"
	"streamcoin-core/pkg/errutil"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	serializableAttempts = 4
	serializableBaseWait = 25 * time.Millisecond
	serializableCapWait  = 400 * time.Millisecond
)

// RunSerializable executes fn inside a serializable transaction and retries
// the whole transaction on serialization conflicts, up to a bound. Every
// code path that reads, checks, and writes a wallet balance must go through
// this wrapper; a mutator that skips it reintroduces lost-update risk for
// all of them.
//
// A conflict that survives all attempts is surfaced as errutil.StatusConflict.
func RunSerializable(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	var err error
	for attempt := 1; attempt <= serializableAttempts; attempt++ {
		err = db.WithContext(ctx).Transaction(fn, &sql.TxOptions{Isolation: sql.LevelSerializable})
		if err == nil || !IsSerializationFailure(err) {
			return err
		}

		wait := backoff.Delay(attempt, serializableBaseWait, serializableCapWait)
		zap.L().Debug("serialization conflict, retrying transaction",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return errutil.Conflict("transaction aborted after repeated serialization conflicts", errutil.WithErr(err))
}

// IsSerializationFailure reports whether err is a transient transaction
// conflict worth retrying: postgres serialization failures and deadlocks
// (SQLSTATE 40001 / 40P01) or sqlite lock contention in tests.
func IsSerializationFailure(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}

	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// IsUniqueViolation reports whether err is a unique-constraint violation,
// used by the event recorder to treat concurrent duplicate deliveries as
// idempotent success.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}
