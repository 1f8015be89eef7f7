package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/0xArchitect/ludo-backend/internal/models"
	"github.com/0xArchitect/ludo-backend/internal/types"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AccountRepository defines the interface for Account data access
type AccountRepository interface {
	GetByID(ctx context.Context, id uint64) (*models.Account, error)

	// LockByID reads the account with SELECT ... FOR UPDATE.
	// Only meaningful inside Store.Transaction; the lock is held until commit or rollback.
	LockByID(ctx context.Context, id uint64) (*models.Account, error)

	UpdateBalance(ctx context.Context, id uint64, balance decimal.Decimal) error
}

type accountRepository struct {
	db *gorm.DB
}

// NewAccountRepository creates a new AccountRepository instance
func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) GetByID(ctx context.Context, id uint64) (*models.Account, error) {
	var account models.Account
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&account).Error
	if err != nil {
		return nil, translateAccountError(id, err)
	}
	return &account, nil
}

func (r *accountRepository) LockByID(ctx context.Context, id uint64) (*models.Account, error) {
	var account models.Account
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&account).Error
	if err != nil {
		return nil, translateAccountError(id, err)
	}
	return &account, nil
}

func (r *accountRepository) UpdateBalance(ctx context.Context, id uint64, balance decimal.Decimal) error {
	result := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ?", id).
		Update("balance", balance)
	if result.Error != nil {
		return fmt.Errorf("%w: update balance of user %d: %v", types.ErrExternalUnavailable, id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: user %d", types.ErrNotFound, id)
	}
	return nil
}

func translateAccountError(id uint64, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: user %d", types.ErrNotFound, id)
	}
	return fmt.Errorf("%w: load user %d: %v", types.ErrExternalUnavailable, id, err)
}
