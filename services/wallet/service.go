package wallet

import (
	"context"
	"errors"
	"time"

	"streamcoin-core/pkg/db"
	"streamcoin-core/pkg/db/pagination"
	"streamcoin-core/pkg/errutil"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Service struct {
	db   *gorm.DB
	node *snowflake.Node
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:   p.DB,
		node: p.Node,
	}
}

// GetForUpdate returns the wallet row for (userID, tenantID) under a
// row-level lock, creating it with balance 0 if absent. It must be called
// inside the same transaction as the mutation that follows; the returned
// snapshot is what Increment and Decrement operate on.
func (s *Service) GetForUpdate(ctx context.Context, tx *gorm.DB, userID, tenantID string) (*Wallet, error) {
	var w Wallet
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where(&Wallet{UserID: userID, TenantID: tenantID}).
		First(&w).Error
	if err == nil {
		return &w, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	now := time.Now()
	w = Wallet{
		ID:        s.node.Generate().String(),
		UserID:    userID,
		TenantID:  tenantID,
		Balance:   0,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if createErr := tx.WithContext(ctx).Create(&w).Error; createErr != nil {
		// Lost the race against a concurrent lazy create; lock the winner.
		if db.IsUniqueViolation(createErr) {
			err = tx.WithContext(ctx).
				Clauses(clause.Locking{Strength: "UPDATE"}).
				Where(&Wallet{UserID: userID, TenantID: tenantID}).
				First(&w).Error
			if err != nil {
				return nil, err
			}
			return &w, nil
		}
		return nil, createErr
	}

	return &w, nil
}

// Increment credits amount onto the locked snapshot and records an audit
// entry with the given reason code.
func (s *Service) Increment(ctx context.Context, tx *gorm.DB, w *Wallet, amount int64, reason string) (int64, error) {
	if amount <= 0 {
		return w.Balance, errutil.BadRequest("credit amount must be > 0")
	}
	return s.apply(ctx, tx, w, amount, reason)
}

// Decrement debits amount from the locked snapshot. It fails with
// InsufficientBalance when the balance would go negative, leaving the row
// unchanged.
func (s *Service) Decrement(ctx context.Context, tx *gorm.DB, w *Wallet, amount int64, reason string) (int64, error) {
	if amount <= 0 {
		return w.Balance, errutil.BadRequest("debit amount must be > 0")
	}
	if w.Balance < amount {
		return w.Balance, errutil.InsufficientBalance("wallet balance too low")
	}
	return s.apply(ctx, tx, w, -amount, reason)
}

func (s *Service) apply(ctx context.Context, tx *gorm.DB, w *Wallet, delta int64, reason string) (int64, error) {
	newBalance := w.Balance + delta

	res := tx.WithContext(ctx).Model(&Wallet{}).
		Where("id = ?", w.ID).
		Updates(map[string]any{
			"balance":    gorm.Expr("balance + ?", delta),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return w.Balance, res.Error
	}

	entry := WalletEntry{
		ID:           s.node.Generate().String(),
		WalletID:     w.ID,
		UserID:       w.UserID,
		TenantID:     w.TenantID,
		Amount:       delta,
		Reason:       reason,
		BalanceAfter: newBalance,
		CreatedAt:    time.Now(),
	}
	if err := tx.WithContext(ctx).Create(&entry).Error; err != nil {
		return w.Balance, err
	}

	w.Balance = newBalance
	return newBalance, nil
}

// Credit runs a standalone credit in its own serializable transaction.
func (s *Service) Credit(ctx context.Context, userID, tenantID string, amount int64, reason string) (int64, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	var balance int64
	err := db.RunSerializable(ctx, s.db, func(tx *gorm.DB) error {
		w, err := s.GetForUpdate(ctx, tx, userID, tenantID)
		if err != nil {
			return err
		}
		balance, err = s.Increment(ctx, tx, w, amount, reason)
		return err
	})
	if err != nil {
		zap.L().Error("wallet credit failed",
			zap.String("user_id", userID),
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
		return 0, err
	}
	return balance, nil
}

// Debit runs a standalone spend in its own serializable transaction. A
// rejected spend returns InsufficientBalance and leaves the wallet untouched.
func (s *Service) Debit(ctx context.Context, userID, tenantID string, amount int64, reason string) (int64, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	var balance int64
	err := db.RunSerializable(ctx, s.db, func(tx *gorm.DB) error {
		w, err := s.GetForUpdate(ctx, tx, userID, tenantID)
		if err != nil {
			return err
		}
		balance, err = s.Decrement(ctx, tx, w, amount, reason)
		return err
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// Balance returns the current balance, zero when the wallet has never been
// touched.
func (s *Service) Balance(ctx context.Context, userID, tenantID string) (int64, error) {
	var w Wallet
	err := s.db.WithContext(ctx).
		Where(&Wallet{UserID: userID, TenantID: tenantID}).
		First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return w.Balance, nil
}

// Entries lists the audit trail for one wallet, newest first.
func (s *Service) Entries(ctx context.Context, userID, tenantID string, limit int) ([]WalletEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []WalletEntry
	err := s.db.WithContext(ctx).
		Where(&WalletEntry{UserID: userID, TenantID: tenantID}).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// EntriesPage lists the audit trail newest first with keyset pagination.
// cursor is an opaque token from a previous page's PageInfo, empty for the
// first page.
func (s *Service) EntriesPage(ctx context.Context, userID, tenantID, cursor string, limit int) ([]WalletEntry, *pagination.PageInfo, error) {
	limit = pagination.ClampLimit(limit, 50, 250)

	q := s.db.WithContext(ctx).
		Where(&WalletEntry{UserID: userID, TenantID: tenantID})

	if cursor != "" {
		pos, err := pagination.DecodeCursor(cursor)
		if err != nil {
			return nil, nil, errutil.BadRequest("invalid cursor", errutil.WithErr(err))
		}
		q = q.Where("created_at < ? OR (created_at = ? AND id < ?)", pos.CreatedAt, pos.CreatedAt, pos.ID)
	}

	var entries []WalletEntry
	if err := q.Order("created_at DESC, id DESC").
		Limit(limit + 1).
		Find(&entries).Error; err != nil {
		return nil, nil, err
	}

	return pagination.BuildPageInfo(entries, limit, func(e WalletEntry) pagination.Cursor {
		return pagination.Cursor{CreatedAt: e.CreatedAt, ID: e.ID}
	})
}
