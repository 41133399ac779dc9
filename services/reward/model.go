package reward

import (
	"time"

	"gorm.io/datatypes"
)

// Event status values. An ignored event is recorded for audit but has no
// coin effect; ignored vs. failed is an explicit, observable outcome.
const (
	EventStatusEligible = "eligible"
	EventStatusIgnored  = "ignored"
)

// ExternalRewardEvent is the immutable, deduplicated record of one external
// platform event and its intended coin effect. The unique index on
// (provider, provider_event_id) is the sole dedup authority: redelivered
// webhooks never create a second row. Rows are never mutated or deleted.
type ExternalRewardEvent struct {
	ID                string         `gorm:"column:id;primaryKey"`
	Provider          string         `gorm:"column:provider;uniqueIndex:idx_reward_events_provider_event"`
	ProviderEventID   string         `gorm:"column:provider_event_id;uniqueIndex:idx_reward_events_provider_event"`
	TenantID          string         `gorm:"column:tenant_id;index"`
	ExternalAccountID string         `gorm:"column:external_account_id;index"`
	EventType         string         `gorm:"column:event_type"`
	Currency          string         `gorm:"column:currency"`
	Amount            int64          `gorm:"column:amount"`
	CoinsToGrant      int64          `gorm:"column:coins_to_grant"`
	Status            string         `gorm:"column:status"`
	Reason            string         `gorm:"column:reason"`
	EventAt           time.Time      `gorm:"column:event_at"`
	RawPayload        datatypes.JSON `gorm:"column:raw_payload"`
	LinkedUserID      *string        `gorm:"column:linked_user_id"`
	CreatedAt         time.Time      `gorm:"column:created_at"`
}

func (ExternalRewardEvent) TableName() string { return "external_reward_events" }

// PendingCoinGrant accrues coins for an external identity that has not yet
// linked a platform account, one open bucket per
// (provider, external_account_id, tenant_id). While claimed_at is null the
// bucket is open and coins_granted only grows; once set the bucket is
// terminal.
type PendingCoinGrant struct {
	ID                string     `gorm:"column:id;primaryKey"`
	Provider          string     `gorm:"column:provider;uniqueIndex:idx_pending_grants_bucket"`
	ExternalAccountID string     `gorm:"column:external_account_id;uniqueIndex:idx_pending_grants_bucket"`
	TenantID          string     `gorm:"column:tenant_id;uniqueIndex:idx_pending_grants_bucket"`
	CoinsGranted      int64      `gorm:"column:coins_granted"`
	ClaimedAt         *time.Time `gorm:"column:claimed_at"`
	ClaimedByUserID   *string    `gorm:"column:claimed_by_user_id"`
	CreatedAt         time.Time  `gorm:"column:created_at"`
	UpdatedAt         time.Time  `gorm:"column:updated_at"`
}

func (PendingCoinGrant) TableName() string { return "pending_coin_grants" }

// RecordEventInput carries one external event across the ingestion boundary.
// The transport layer delivering it is not trusted to deduplicate.
type RecordEventInput struct {
	Provider          string
	ProviderEventID   string
	TenantID          string
	ExternalAccountID string
	EventType         string
	Currency          string
	Amount            int64
	CoinsToGrant      int64
	Status            string
	Reason            string
	EventAt           time.Time
	RawPayload        []byte
	LinkedUserID      *string
}

// ClaimResult describes one wallet credited by a claim sweep, for downstream
// notification.
type ClaimResult struct {
	UserID   string
	TenantID string
	Delta    int64
	Balance  int64
}
