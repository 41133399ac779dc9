package reward

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const TaskCoinsClaimed = "coins:claimed"

// CoinsClaimedPayload is the asynq payload fanned out per credited wallet
// after a claim sweep commits.
type CoinsClaimedPayload struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
	Delta    int64  `json:"delta"`
	Balance  int64  `json:"balance"`
}

func NewCoinsClaimedTask(p CoinsClaimedPayload) *asynq.Task {
	payload, _ := json.Marshal(p)
	return asynq.NewTask(TaskCoinsClaimed, payload,
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Second),
		asynq.Queue("default"),
	)
}

// enqueueClaimNotifications dispatches one notification task per credited
// wallet. The claim already committed; an enqueue failure is logged and
// dropped rather than unwinding the credit.
func (s *Service) enqueueClaimNotifications(ctx context.Context, results []ClaimResult) {
	if s.asynq == nil {
		return
	}

	for _, r := range results {
		task := NewCoinsClaimedTask(CoinsClaimedPayload{
			UserID:   r.UserID,
			TenantID: r.TenantID,
			Delta:    r.Delta,
			Balance:  r.Balance,
		})
		if _, err := s.asynq.EnqueueContext(ctx, task); err != nil {
			zap.L().Error("failed to enqueue claim notification",
				zap.String("user_id", r.UserID),
				zap.String("tenant_id", r.TenantID),
				zap.Error(err),
			)
		}
	}
}

// Notifier delivers a claim notification to the user. Implementations live
// outside this package (chat message, push, etc.).
type Notifier interface {
	NotifyCoinsClaimed(ctx context.Context, p CoinsClaimedPayload) error
}

// HandleCoinsClaimedTask is the asynq handler for TaskCoinsClaimed.
func (s *Service) HandleCoinsClaimedTask(notifier Notifier) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload CoinsClaimedPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("invalid payload: %w", err)
		}

		zapLog := zap.L().With(
			zap.String("task_type", t.Type()),
			zap.String("user_id", payload.UserID),
			zap.String("tenant_id", payload.TenantID),
			zap.Int64("delta", payload.Delta),
		)

		if notifier == nil {
			zapLog.Info("coins claimed (no notifier configured)")
			return nil
		}

		if err := notifier.NotifyCoinsClaimed(ctx, payload); err != nil {
			zapLog.Error("failed to deliver claim notification", zap.Error(err))
			return err
		}

		zapLog.Info("claim notification delivered")
		return nil
	}
}
