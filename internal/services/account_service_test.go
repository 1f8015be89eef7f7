package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/0xArchitect/ludo-backend/internal/auth"
	"github.com/0xArchitect/ludo-backend/internal/chain"
	"github.com/0xArchitect/ludo-backend/internal/types"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountService_BalanceIncludesPending(t *testing.T) {
	f := newFixture(t)
	f.seed(1, "100")
	ctx := context.Background()

	_, err := f.authorizer.Authorize(ctx, auth.Identity{UserID: 1}, withdraw("40"))
	require.NoError(t, err)

	resp, err := f.accounts.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), resp.UserID)
	assert.Equal(t, "60", resp.Balance)
	assert.Equal(t, "40", resp.PendingBalance)

	_, err = f.accounts.Balance(ctx, 2)
	require.ErrorIs(t, err, types.ErrNotFound)
}

func TestAccountService_TransactionsNewestFirst(t *testing.T) {
	f := newFixture(t)
	f.seed(7, "0")
	ctx := context.Background()

	f.chain.head = 100
	f.chain.addEvent(depositEvent(7, "1", "0x01", 1))
	f.chain.addEvent(depositEvent(7, "2", "0x02", 2))
	f.chain.addEvent(depositEvent(7, "3", "0x03", 3))
	_, err := f.reconciler.ReconcileOnce(ctx, chain.EventKindDeposit)
	require.NoError(t, err)

	txs, err := f.accounts.Transactions(ctx, 7, 0, 0)
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, "0x03", txs[0].TxHash)
	assert.Equal(t, "0x01", txs[2].TxHash)
	assert.Equal(t, "deposit", txs[0].Type)
	assert.Equal(t, "3", txs[0].Amount)

	page, err := f.accounts.Transactions(ctx, 7, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "0x02", page[0].TxHash)

	empty, err := f.accounts.Transactions(ctx, 8, 0, 20)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestAccountService_TransactionsPaging(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.accounts.Transactions(ctx, 1, -1, 10)
	require.ErrorIs(t, err, types.ErrValidation)
	_, err = f.accounts.Transactions(ctx, 1, 0, MaxTransactionsLimit+1)
	require.ErrorIs(t, err, types.ErrValidation)
	_, err = f.accounts.Transactions(ctx, 1, 0, -5)
	require.ErrorIs(t, err, types.ErrValidation)
	_, err = f.accounts.Transactions(ctx, 0, 0, 10)
	require.ErrorIs(t, err, types.ErrUnauthorized)
}

func TestPeriodicTask_RunsAndStops(t *testing.T) {
	logger, _ := test.NewNullLogger()
	var runs atomic.Int32
	task := NewPeriodicTask("test", 5*time.Millisecond, func(context.Context) {
		if runs.Add(1) == 2 {
			panic("tick failed")
		}
	}, logger)

	task.Start(context.Background())
	require.Eventually(t, func() bool { return runs.Load() >= 4 }, time.Second, time.Millisecond)
	task.Stop()

	stopped := runs.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, runs.Load())

	// stopping twice is harmless
	task.Stop()
}

func TestPeriodicTask_NonPositiveInterval(t *testing.T) {
	logger, hook := test.NewNullLogger()
	var runs atomic.Int32
	task := NewPeriodicTask("zero", 0, func(context.Context) { runs.Add(1) }, logger)
	assert.Equal(t, DefaultTaskInterval, task.interval)
	assert.NotNil(t, hook.LastEntry())

	task.Start(context.Background())
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, time.Millisecond)
	task.Stop()

	assert.Equal(t, DefaultTaskInterval, NewPeriodicTask("negative", -time.Second, func(context.Context) {}, logger).interval)
}
