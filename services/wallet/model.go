package wallet

import (
	"time"
)

// Wallet is the per (user, tenant) coin balance. The row is created lazily
// with balance 0 on first credit or debit and the balance column is only ever
// written through Service.Increment / Service.Decrement.
type Wallet struct {
	ID        string    `gorm:"column:id;primaryKey"`
	UserID    string    `gorm:"column:user_id;uniqueIndex:idx_wallets_user_tenant"`
	TenantID  string    `gorm:"column:tenant_id;uniqueIndex:idx_wallets_user_tenant"`
	Balance   int64     `gorm:"column:balance;not null"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (Wallet) TableName() string { return "wallets" }

// WalletEntry is the immutable audit trail: one row per balance mutation,
// carrying the signed delta, the reason code, and the resulting balance.
type WalletEntry struct {
	ID           string    `gorm:"column:id;primaryKey"`
	WalletID     string    `gorm:"column:wallet_id;index"`
	UserID       string    `gorm:"column:user_id"`
	TenantID     string    `gorm:"column:tenant_id"`
	Amount       int64     `gorm:"column:amount"`
	Reason       string    `gorm:"column:reason"`
	BalanceAfter int64     `gorm:"column:balance_after"`
	CreatedAt    time.Time `gorm:"column:created_at"`
}

func (WalletEntry) TableName() string { return "wallet_entries" }

// Reason codes recorded on every mutation.
const (
	ReasonRewardEvent = "reward_event"
	ReasonGrantClaim  = "grant_claim"
	ReasonSpend       = "spend"
	ReasonAdjustment  = "adjustment"
)
