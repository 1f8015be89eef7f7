package services

import (
	"context"
	"fmt"

	"github.com/0xArchitect/ludo-backend/internal/dto"
	"github.com/0xArchitect/ludo-backend/internal/repository"
	"github.com/0xArchitect/ludo-backend/internal/types"
)

// Paging limits for transaction history
const (
	DefaultTransactionsLimit = 20
	MaxTransactionsLimit     = 100
)

// AccountService answers read-only queries about an account
type AccountService struct {
	store repository.Store
}

// NewAccountService creates a new AccountService
func NewAccountService(store repository.Store) *AccountService {
	return &AccountService{store: store}
}

// Balance returns the spendable balance and the amount held by unsettled withdrawals
func (s *AccountService) Balance(ctx context.Context, userID uint64) (*dto.BalanceResponse, error) {
	if userID == 0 {
		return nil, fmt.Errorf("%w: missing identity", types.ErrUnauthorized)
	}
	account, err := s.store.Accounts().GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	pending, err := s.store.PendingWithdrawals().SumByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &dto.BalanceResponse{
		UserID:         account.ID,
		Balance:        account.Balance.String(),
		PendingBalance: pending.String(),
	}, nil
}

// Transactions returns the user's settled movements, newest first.
// A zero limit means the default page size.
func (s *AccountService) Transactions(ctx context.Context, userID uint64, offset, limit int) ([]dto.TransactionResponse, error) {
	if userID == 0 {
		return nil, fmt.Errorf("%w: missing identity", types.ErrUnauthorized)
	}
	if offset < 0 {
		return nil, fmt.Errorf("%w: offset must not be negative", types.ErrValidation)
	}
	if limit == 0 {
		limit = DefaultTransactionsLimit
	}
	if limit < 1 || limit > MaxTransactionsLimit {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", types.ErrValidation, MaxTransactionsLimit)
	}

	entries, err := s.store.Journal().ListByUser(ctx, userID, offset, limit)
	if err != nil {
		return nil, err
	}
	out := make([]dto.TransactionResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, dto.TransactionResponse{
			Amount:    e.Amount.String(),
			Address:   e.Address,
			TxHash:    e.TxHash,
			Type:      string(e.Kind),
			CreatedAt: e.CreatedAt,
		})
	}
	return out, nil
}
