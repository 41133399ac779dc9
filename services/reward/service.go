package reward

import (
	"context"
	"errors"
	"time"

	"streamcoin-core/pkg/db"
	"streamcoin-core/pkg/errutil"
	"streamcoin-core/services/wallet"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Service struct {
	db     *gorm.DB
	node   *snowflake.Node
	wallet *wallet.Service
	asynq  *asynq.Client
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Node   *snowflake.Node
	Wallet *wallet.Service

	Asynq *asynq.Client `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:     p.DB,
		node:   p.Node,
		wallet: p.Wallet,
		asynq:  p.Asynq,
	}
}

// RecordEvent writes the ledger row for one external event and applies its
// coin effect in the same transaction: a direct wallet credit when the
// identity is already linked, otherwise an upsert-increment on the pending
// grant bucket. Either everything commits or nothing does.
//
// It is idempotent on (provider, providerEventID): a duplicate delivery is
// detected via a pre-check or the unique-violation catch and reported as
// duplicate=true with no side effects, never as an error.
func (s *Service) RecordEvent(ctx context.Context, in RecordEventInput) (*ExternalRewardEvent, bool, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	zapLog := zap.L().With(
		zap.String("provider", in.Provider),
		zap.String("provider_event_id", in.ProviderEventID),
		zap.String("tenant_id", in.TenantID),
	)

	if in.Provider == "" || in.ProviderEventID == "" {
		return nil, false, errutil.BadRequest("provider and provider_event_id are required")
	}
	if in.Status != EventStatusEligible && in.Status != EventStatusIgnored {
		return nil, false, errutil.BadRequest("status must be eligible or ignored")
	}

	// Fast path for redeliveries. Not the only safeguard: the unique index
	// catches the race two concurrent deliveries can still win.
	if existing, err := s.findEvent(ctx, in.Provider, in.ProviderEventID); err != nil {
		return nil, false, err
	} else if existing != nil {
		zapLog.Debug("duplicate event delivery ignored")
		return existing, true, nil
	}

	event := &ExternalRewardEvent{
		ID:                s.node.Generate().String(),
		Provider:          in.Provider,
		ProviderEventID:   in.ProviderEventID,
		TenantID:          in.TenantID,
		ExternalAccountID: in.ExternalAccountID,
		EventType:         in.EventType,
		Currency:          in.Currency,
		Amount:            in.Amount,
		CoinsToGrant:      in.CoinsToGrant,
		Status:            in.Status,
		Reason:            in.Reason,
		EventAt:           in.EventAt,
		RawPayload:        in.RawPayload,
		LinkedUserID:      in.LinkedUserID,
		CreatedAt:         time.Now(),
	}

	err := db.RunSerializable(ctx, s.db, func(tx *gorm.DB) error {
		if err := tx.Create(event).Error; err != nil {
			return err
		}

		if in.Status != EventStatusEligible || in.CoinsToGrant <= 0 {
			return nil
		}

		if in.LinkedUserID != nil {
			w, err := s.wallet.GetForUpdate(ctx, tx, *in.LinkedUserID, in.TenantID)
			if err != nil {
				return err
			}
			_, err = s.wallet.Increment(ctx, tx, w, in.CoinsToGrant, wallet.ReasonRewardEvent)
			return err
		}

		return s.accrue(ctx, tx, in)
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			existing, ferr := s.findEvent(ctx, in.Provider, in.ProviderEventID)
			if ferr != nil || existing == nil {
				return nil, false, errutil.Internal("duplicate event row not readable", errutil.WithErr(err))
			}
			zapLog.Debug("duplicate event delivery lost insert race, ignored")
			return existing, true, nil
		}
		zapLog.Error("failed to record event", zap.Error(err))
		return nil, false, err
	}

	return event, false, nil
}

// accrue upsert-increments the pending grant bucket for an unlinked identity.
// Multiple eligible events sum into coins_granted rather than overwrite, so
// streak and threshold bonuses accrue before the viewer ever links.
func (s *Service) accrue(ctx context.Context, tx *gorm.DB, in RecordEventInput) error {
	var grant PendingCoinGrant
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where(&PendingCoinGrant{
			Provider:          in.Provider,
			ExternalAccountID: in.ExternalAccountID,
			TenantID:          in.TenantID,
		}).
		First(&grant).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		now := time.Now()
		grant = PendingCoinGrant{
			ID:                s.node.Generate().String(),
			Provider:          in.Provider,
			ExternalAccountID: in.ExternalAccountID,
			TenantID:          in.TenantID,
			CoinsGranted:      in.CoinsToGrant,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		return tx.WithContext(ctx).Create(&grant).Error
	}
	if err != nil {
		return err
	}

	if grant.ClaimedAt != nil {
		// Terminal bucket: the identity already claimed, so the owner is
		// known. Credit the wallet directly instead of re-opening accrual.
		if grant.ClaimedByUserID == nil {
			return errutil.Internal("claimed grant bucket without claimer")
		}
		w, werr := s.wallet.GetForUpdate(ctx, tx, *grant.ClaimedByUserID, in.TenantID)
		if werr != nil {
			return werr
		}
		_, werr = s.wallet.Increment(ctx, tx, w, in.CoinsToGrant, wallet.ReasonRewardEvent)
		return werr
	}

	return tx.WithContext(ctx).Model(&PendingCoinGrant{}).
		Where("id = ?", grant.ID).
		Updates(map[string]any{
			"coins_granted": gorm.Expr("coins_granted + ?", in.CoinsToGrant),
			"updated_at":    time.Now(),
		}).Error
}

// ClaimPendingGrants sweeps every unclaimed bucket for the external identity
// — across all tenants, deliberately — and credits each wallet exactly once.
// The credit and the claim mark commit together; a second invocation finds
// nothing unclaimed and returns an empty slice with the wallets untouched,
// so account-link flows may call it repeatedly.
func (s *Service) ClaimPendingGrants(ctx context.Context, userID, provider, externalAccountID string) ([]ClaimResult, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	zapLog := zap.L().With(
		zap.String("user_id", userID),
		zap.String("provider", provider),
		zap.String("external_account_id", externalAccountID),
	)

	var results []ClaimResult
	err := db.RunSerializable(ctx, s.db, func(tx *gorm.DB) error {
		results = results[:0]

		var grants []PendingCoinGrant
		if err := tx.WithContext(ctx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("provider = ? AND external_account_id = ? AND claimed_at IS NULL", provider, externalAccountID).
			Order("tenant_id ASC").
			Find(&grants).Error; err != nil {
			return err
		}

		now := time.Now()
		for _, grant := range grants {
			// Conditional mark guards against a racing claim that slipped
			// between select and update.
			res := tx.WithContext(ctx).Model(&PendingCoinGrant{}).
				Where("id = ? AND claimed_at IS NULL", grant.ID).
				Updates(map[string]any{
					"claimed_at":         now,
					"claimed_by_user_id": userID,
					"updated_at":         now,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected != 1 {
				continue
			}

			w, err := s.wallet.GetForUpdate(ctx, tx, userID, grant.TenantID)
			if err != nil {
				return err
			}
			balance, err := s.wallet.Increment(ctx, tx, w, grant.CoinsGranted, wallet.ReasonGrantClaim)
			if err != nil {
				return err
			}

			results = append(results, ClaimResult{
				UserID:   userID,
				TenantID: grant.TenantID,
				Delta:    grant.CoinsGranted,
				Balance:  balance,
			})
		}

		return nil
	})
	if err != nil {
		zapLog.Error("failed to claim pending grants", zap.Error(err))
		return nil, err
	}

	if len(results) > 0 {
		zapLog.Info("claimed pending grants", zap.Int("buckets", len(results)))
		s.enqueueClaimNotifications(ctx, results)
	}

	return results, nil
}

// PendingBalance reports the unclaimed accrual for one bucket, zero when the
// bucket does not exist or is already claimed.
func (s *Service) PendingBalance(ctx context.Context, provider, externalAccountID, tenantID string) (int64, error) {
	var grant PendingCoinGrant
	err := s.db.WithContext(ctx).
		Where(&PendingCoinGrant{Provider: provider, ExternalAccountID: externalAccountID, TenantID: tenantID}).
		First(&grant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if grant.ClaimedAt != nil {
		return 0, nil
	}
	return grant.CoinsGranted, nil
}

func (s *Service) findEvent(ctx context.Context, provider, providerEventID string) (*ExternalRewardEvent, error) {
	var event ExternalRewardEvent
	err := s.db.WithContext(ctx).
		Where(&ExternalRewardEvent{Provider: provider, ProviderEventID: providerEventID}).
		First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}
