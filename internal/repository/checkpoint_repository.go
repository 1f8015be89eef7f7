package repository

import (
	"context"
	"fmt"

	"github.com/0xArchitect/ludo-backend/internal/models"
	"github.com/0xArchitect/ludo-backend/internal/types"

	"gorm.io/gorm"
)

// CheckpointRepository defines the interface for Checkpoint data access
type CheckpointRepository interface {
	// Get returns the block height for kind, creating the row at initial when it does not exist
	Get(ctx context.Context, kind models.CheckpointKind, initial uint64) (uint64, error)
	// Advance moves the checkpoint forward; lower heights are ignored
	Advance(ctx context.Context, kind models.CheckpointKind, block uint64) error
}

type checkpointRepository struct {
	db *gorm.DB
}

// NewCheckpointRepository creates a new CheckpointRepository instance
func NewCheckpointRepository(db *gorm.DB) CheckpointRepository {
	return &checkpointRepository{db: db}
}

func (r *checkpointRepository) Get(ctx context.Context, kind models.CheckpointKind, initial uint64) (uint64, error) {
	var checkpoint models.Checkpoint
	err := r.db.WithContext(ctx).
		Where(models.Checkpoint{Kind: kind}).
		Attrs(models.Checkpoint{BlockNumber: initial}).
		FirstOrCreate(&checkpoint).Error
	if err != nil {
		return 0, fmt.Errorf("%w: load %s checkpoint: %v", types.ErrExternalUnavailable, kind, err)
	}
	return checkpoint.BlockNumber, nil
}

func (r *checkpointRepository) Advance(ctx context.Context, kind models.CheckpointKind, block uint64) error {
	err := r.db.WithContext(ctx).
		Model(&models.Checkpoint{}).
		Where("kind = ? AND block_number < ?", kind, block).
		Update("block_number", block).Error
	if err != nil {
		return fmt.Errorf("%w: advance %s checkpoint to %d: %v", types.ErrExternalUnavailable, kind, block, err)
	}
	return nil
}
