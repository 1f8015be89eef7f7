package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// JournalKind is the movement kind of a journal entry
type JournalKind string

const (
	JournalKindDeposit  JournalKind = "deposit"
	JournalKindWithdraw JournalKind = "withdraw"
)

// JournalEntry records a chain-confirmed movement. Entries are never updated or deleted;
// the unique tx_hash index is what stops a replayed event from being applied twice.
type JournalEntry struct {
	ID          uint64          `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID      uint64          `json:"user_id" gorm:"not null;index:idx_journal_created_user,priority:2"`
	Amount      decimal.Decimal `json:"amount" gorm:"type:numeric(36,18);not null"` // negative for withdrawals
	TxHash      string          `json:"tx_hash" gorm:"type:varchar(66);not null;uniqueIndex"`
	Address     string          `json:"address" gorm:"type:varchar(42);not null"` // emitting pool contract
	Kind        JournalKind     `json:"kind" gorm:"type:varchar(16);not null"`
	BlockNumber uint64          `json:"block_number"`
	CreatedAt   time.Time       `json:"created_at" gorm:"index:idx_journal_created_user,priority:1,sort:desc"`
}

func (JournalEntry) TableName() string {
	return "journal_entries"
}
