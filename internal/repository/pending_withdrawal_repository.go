package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/0xArchitect/ludo-backend/internal/models"
	"github.com/0xArchitect/ludo-backend/internal/types"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ErrPendingExists is returned when (address, nonce) already has a live pending withdrawal
var ErrPendingExists = errors.New("pending withdrawal already exists for address and nonce")

// PendingWithdrawalRepository defines the interface for PendingWithdrawal data access
type PendingWithdrawalRepository interface {
	Create(ctx context.Context, pending *models.PendingWithdrawal) error
	GetByID(ctx context.Context, id uint64) (*models.PendingWithdrawal, error)
	// FindByAddressNonce expects address in canonical lowercase form
	FindByAddressNonce(ctx context.Context, address string, nonce uint64) (*models.PendingWithdrawal, error)

	// Delete removes the row and reports whether it was still there
	Delete(ctx context.Context, id uint64) (bool, error)

	// ListCreatedBefore returns rows created before cutoff with id > afterID, in id order
	ListCreatedBefore(ctx context.Context, cutoff time.Time, afterID uint64, limit int) ([]*models.PendingWithdrawal, error)
	SumByUser(ctx context.Context, userID uint64) (decimal.Decimal, error)
	Count(ctx context.Context) (int64, error)
}

type pendingWithdrawalRepository struct {
	db *gorm.DB
}

// NewPendingWithdrawalRepository creates a new PendingWithdrawalRepository instance
func NewPendingWithdrawalRepository(db *gorm.DB) PendingWithdrawalRepository {
	return &pendingWithdrawalRepository{db: db}
}

func (r *pendingWithdrawalRepository) Create(ctx context.Context, pending *models.PendingWithdrawal) error {
	err := r.db.WithContext(ctx).Create(pending).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %s/%d", ErrPendingExists, pending.Address, pending.Nonce)
	}
	if err != nil {
		return fmt.Errorf("%w: create pending withdrawal: %v", types.ErrExternalUnavailable, err)
	}
	return nil
}

func (r *pendingWithdrawalRepository) GetByID(ctx context.Context, id uint64) (*models.PendingWithdrawal, error) {
	var pending models.PendingWithdrawal
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&pending).Error
	if err != nil {
		return nil, translatePendingError(err)
	}
	return &pending, nil
}

func (r *pendingWithdrawalRepository) FindByAddressNonce(ctx context.Context, address string, nonce uint64) (*models.PendingWithdrawal, error) {
	var pending models.PendingWithdrawal
	err := r.db.WithContext(ctx).
		Where("address = ? AND nonce = ?", address, nonce).
		First(&pending).Error
	if err != nil {
		return nil, translatePendingError(err)
	}
	return &pending, nil
}

func (r *pendingWithdrawalRepository) Delete(ctx context.Context, id uint64) (bool, error) {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.PendingWithdrawal{})
	if result.Error != nil {
		return false, fmt.Errorf("%w: delete pending withdrawal %d: %v", types.ErrExternalUnavailable, id, result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *pendingWithdrawalRepository) ListCreatedBefore(ctx context.Context, cutoff time.Time, afterID uint64, limit int) ([]*models.PendingWithdrawal, error) {
	var pending []*models.PendingWithdrawal
	query := r.db.WithContext(ctx).
		Where("created_at < ? AND id > ?", cutoff, afterID).
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&pending).Error; err != nil {
		return nil, fmt.Errorf("%w: list stale pending withdrawals: %v", types.ErrExternalUnavailable, err)
	}
	return pending, nil
}

func (r *pendingWithdrawalRepository) SumByUser(ctx context.Context, userID uint64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.db.WithContext(ctx).
		Model(&models.PendingWithdrawal{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("user_id = ?", userID).
		Row().
		Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: sum pending withdrawals: %v", types.ErrExternalUnavailable, err)
	}
	return sum, nil
}

func (r *pendingWithdrawalRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.PendingWithdrawal{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("%w: count pending withdrawals: %v", types.ErrExternalUnavailable, err)
	}
	return count, nil
}

func translatePendingError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: pending withdrawal", types.ErrNotFound)
	}
	return fmt.Errorf("%w: load pending withdrawal: %v", types.ErrExternalUnavailable, err)
}
