package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/0xArchitect/ludo-backend/internal/models"
	"github.com/0xArchitect/ludo-backend/internal/types"

	"gorm.io/gorm"
)

// JournalRepository defines the interface for JournalEntry data access
type JournalRepository interface {
	// Create appends an entry; a second entry for the same tx hash fails with types.ErrDuplicateEvent
	Create(ctx context.Context, entry *models.JournalEntry) error
	ExistsByTxHash(ctx context.Context, txHash string) (bool, error)
	// ListByUser returns entries newest first
	ListByUser(ctx context.Context, userID uint64, offset, limit int) ([]*models.JournalEntry, error)
}

type journalRepository struct {
	db *gorm.DB
}

// NewJournalRepository creates a new JournalRepository instance
func NewJournalRepository(db *gorm.DB) JournalRepository {
	return &journalRepository{db: db}
}

func (r *journalRepository) Create(ctx context.Context, entry *models.JournalEntry) error {
	err := r.db.WithContext(ctx).Create(entry).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: tx %s", types.ErrDuplicateEvent, entry.TxHash)
	}
	if err != nil {
		return fmt.Errorf("%w: append journal entry: %v", types.ErrExternalUnavailable, err)
	}
	return nil
}

func (r *journalRepository) ExistsByTxHash(ctx context.Context, txHash string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.JournalEntry{}).
		Where("tx_hash = ?", txHash).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("%w: lookup journal entry: %v", types.ErrExternalUnavailable, err)
	}
	return count > 0, nil
}

func (r *journalRepository) ListByUser(ctx context.Context, userID uint64, offset, limit int) ([]*models.JournalEntry, error) {
	var entries []*models.JournalEntry
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("%w: list journal entries: %v", types.ErrExternalUnavailable, err)
	}
	return entries, nil
}
