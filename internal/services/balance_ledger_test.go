package services

import (
	"context"
	"errors"
	"testing"

	"github.com/0xArchitect/ludo-backend/internal/models"
	"github.com/0xArchitect/ludo-backend/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBalanceLedger_DebitAndCredit(t *testing.T) {
	f := newFixture(t)
	f.seed(1, "100")
	ctx := context.Background()

	err := f.ledger.WithAccount(ctx, 1, func(scope *AccountScope) error {
		require.NoError(t, scope.Debit(decimal.NewFromInt(40)))
		assert.Equal(t, "60", scope.Balance().String())
		return scope.Credit(decimal.RequireFromString("0.5"))
	})
	require.NoError(t, err)
	assert.Equal(t, "60.5", f.balance(t, 1).String())
}

func TestBalanceLedger_InsufficientFunds(t *testing.T) {
	f := newFixture(t)
	f.seed(1, "100")

	err := f.ledger.WithAccount(context.Background(), 1, func(scope *AccountScope) error {
		return scope.Debit(decimal.NewFromInt(150))
	})
	require.ErrorIs(t, err, types.ErrInsufficientFunds)
	assert.Equal(t, "100", f.balance(t, 1).String())
}

func TestBalanceLedger_RejectsNonPositiveAmounts(t *testing.T) {
	f := newFixture(t)
	f.seed(1, "100")

	err := f.ledger.WithAccount(context.Background(), 1, func(scope *AccountScope) error {
		if err := scope.Credit(decimal.NewFromInt(-5)); err != nil {
			return err
		}
		return nil
	})
	require.ErrorIs(t, err, types.ErrValidation)

	err = f.ledger.WithAccount(context.Background(), 1, func(scope *AccountScope) error {
		return scope.Debit(decimal.Zero)
	})
	require.ErrorIs(t, err, types.ErrValidation)
	assert.Equal(t, "100", f.balance(t, 1).String())
}

func TestBalanceLedger_UnknownAccount(t *testing.T) {
	f := newFixture(t)
	err := f.ledger.WithAccount(context.Background(), 42, func(*AccountScope) error { return nil })
	require.ErrorIs(t, err, types.ErrNotFound)
}

func TestBalanceLedger_FailureRollsBackCompanionWrites(t *testing.T) {
	f := newFixture(t)
	f.seed(1, "100")
	ctx := context.Background()
	boom := errors.New("boom")

	err := f.ledger.WithAccount(ctx, 1, func(scope *AccountScope) error {
		require.NoError(t, scope.Debit(decimal.NewFromInt(10)))
		require.NoError(t, scope.Store().PendingWithdrawals().Create(ctx, &models.PendingWithdrawal{
			UserID:  1,
			Address: testAddress,
			Nonce:   7,
			Amount:  decimal.NewFromInt(10),
		}))
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, "100", f.balance(t, 1).String())
	assert.Equal(t, int64(0), f.pendingCount(t))
}

func TestBalanceLedger_ScopeUnusableAfterRelease(t *testing.T) {
	f := newFixture(t)
	f.seed(1, "100")

	var leaked *AccountScope
	require.NoError(t, f.ledger.WithAccount(context.Background(), 1, func(scope *AccountScope) error {
		leaked = scope
		return nil
	}))
	assert.ErrorIs(t, leaked.Debit(decimal.NewFromInt(1)), errScopeClosed)
	assert.Equal(t, "100", f.balance(t, 1).String())
}
