package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PendingWithdrawal is a debit that was authorized and signed but not yet seen on chain.
// Its existence means Amount has already left the owner's balance.
type PendingWithdrawal struct {
	ID             uint64          `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID         uint64          `json:"user_id" gorm:"not null;index"`
	Address        string          `json:"address" gorm:"type:varchar(42);not null;uniqueIndex:idx_pending_address_nonce,priority:1"` // lowercase 0x hex
	Nonce          uint64          `json:"nonce" gorm:"not null;uniqueIndex:idx_pending_address_nonce,priority:2"`
	Amount         decimal.Decimal `json:"amount" gorm:"type:numeric(36,18);not null"`
	Timestamp      int64           `json:"timestamp" gorm:"not null"` // unix seconds, as signed
	IdempotencyKey string          `json:"-" gorm:"type:varchar(255)"`
	CreatedAt      time.Time       `json:"created_at" gorm:"index"`
}

func (PendingWithdrawal) TableName() string {
	return "pending_withdrawals"
}
