package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/0xArchitect/ludo-backend/internal/models"
	"github.com/0xArchitect/ludo-backend/internal/repository"
	"github.com/0xArchitect/ludo-backend/internal/types"

	"github.com/shopspring/decimal"
)

var errScopeClosed = errors.New("account scope used after release")

// BalanceLedger serializes balance changes per user through a row lock
type BalanceLedger struct {
	store repository.Store
}

// NewBalanceLedger creates a new BalanceLedger
func NewBalanceLedger(store repository.Store) *BalanceLedger {
	return &BalanceLedger{store: store}
}

// AccountScope is an account row held under its exclusive lock.
// Debit and Credit are only valid while the WithAccount callback runs.
type AccountScope struct {
	ctx      context.Context
	tx       repository.Store
	account  models.Account
	original decimal.Decimal
	closed   bool
}

// WithAccount locks userID's row, runs fn and persists the resulting balance together with
// whatever fn wrote through scope.Store(). Any error from fn rolls back every write.
func (l *BalanceLedger) WithAccount(ctx context.Context, userID uint64, fn func(scope *AccountScope) error) error {
	return l.store.Transaction(ctx, func(tx repository.Store) error {
		account, err := tx.Accounts().LockByID(ctx, userID)
		if err != nil {
			return err
		}

		scope := &AccountScope{
			ctx:      ctx,
			tx:       tx,
			account:  *account,
			original: account.Balance,
		}
		defer func() { scope.closed = true }()

		if err := fn(scope); err != nil {
			return err
		}

		if scope.account.Balance.Equal(scope.original) {
			return nil
		}
		return tx.Accounts().UpdateBalance(ctx, userID, scope.account.Balance)
	})
}

// UserID of the locked account
func (s *AccountScope) UserID() uint64 {
	return s.account.ID
}

// Account returns a copy of the locked row with the in-scope balance
func (s *AccountScope) Account() models.Account {
	return s.account
}

// Balance is the balance including changes made in this scope
func (s *AccountScope) Balance() decimal.Decimal {
	return s.account.Balance
}

// Store is the transaction the lock lives in; companion writes must go through it
func (s *AccountScope) Store() repository.Store {
	return s.tx
}

// Debit subtracts amount, failing with types.ErrInsufficientFunds when it exceeds the balance
func (s *AccountScope) Debit(amount decimal.Decimal) error {
	if err := s.check(amount); err != nil {
		return err
	}
	if amount.GreaterThan(s.account.Balance) {
		return fmt.Errorf("%w: balance %s, requested %s", types.ErrInsufficientFunds, s.account.Balance, amount)
	}
	s.account.Balance = s.account.Balance.Sub(amount)
	return nil
}

// Credit adds amount
func (s *AccountScope) Credit(amount decimal.Decimal) error {
	if err := s.check(amount); err != nil {
		return err
	}
	s.account.Balance = s.account.Balance.Add(amount)
	return nil
}

func (s *AccountScope) check(amount decimal.Decimal) error {
	if s.closed {
		return errScopeClosed
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive, got %s", types.ErrValidation, amount)
	}
	return nil
}
