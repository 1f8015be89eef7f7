package models

import "time"

// CheckpointKind names one event stream of the pool contract
type CheckpointKind string

const (
	CheckpointDeposit  CheckpointKind = "deposit"
	CheckpointWithdraw CheckpointKind = "withdraw"
)

// Checkpoint is the last block height whose events were fully attempted for one kind
type Checkpoint struct {
	Kind        CheckpointKind `json:"kind" gorm:"primaryKey;type:varchar(16)"`
	BlockNumber uint64         `json:"block_number" gorm:"not null;default:0"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func (Checkpoint) TableName() string {
	return "checkpoints"
}
