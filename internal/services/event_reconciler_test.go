package services

import (
	"context"
	"testing"
	"time"

	"github.com/0xArchitect/ludo-backend/internal/auth"
	"github.com/0xArchitect/ludo-backend/internal/chain"
	"github.com/0xArchitect/ludo-backend/internal/events"
	"github.com/0xArchitect/ludo-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checkpoint(t *testing.T, f *fixture, kind models.CheckpointKind) uint64 {
	t.Helper()
	block, err := f.store.Checkpoints().Get(context.Background(), kind, 0)
	require.NoError(t, err)
	return block
}

func TestReconcile_DepositCreditedOnce(t *testing.T) {
	f := newFixture(t)
	f.seed(7, "1")
	ctx := context.Background()

	f.chain.head = 10
	f.chain.addEvent(depositEvent(7, "2.5", "0xaa", 4))

	res, err := f.reconciler.ReconcileOnce(ctx, chain.EventKindDeposit)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Applied)
	assert.Equal(t, "3.5", f.balance(t, 7).String())
	assert.Equal(t, uint64(10), checkpoint(t, f, models.CheckpointDeposit))

	// the same transaction reported again in a later window is not re-applied
	f.chain.head = 20
	f.chain.addEvent(depositEvent(7, "2.5", "0xaa", 15))
	res, err = f.reconciler.ReconcileOnce(ctx, chain.EventKindDeposit)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Applied)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, "3.5", f.balance(t, 7).String())

	entries, err := f.store.Journal().ListByUser(ctx, 7, 0, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "2.5", entries[0].Amount.String())
	assert.Equal(t, models.JournalKindDeposit, entries[0].Kind)
	assert.Equal(t, testPool, entries[0].Address)

	assert.Equal(t, []string{events.TypeDepositCredited}, f.notifier.types())
}

func TestReconcile_HalfOpenWindow(t *testing.T) {
	f := newFixture(t)
	f.seed(7, "0")
	ctx := context.Background()

	f.chain.head = 10
	f.chain.addEvent(depositEvent(7, "1", "0x01", 10))

	res, err := f.reconciler.ReconcileOnce(ctx, chain.EventKindDeposit)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Applied)
	assert.Equal(t, "0", f.balance(t, 7).String())

	f.chain.head = 11
	res, err = f.reconciler.ReconcileOnce(ctx, chain.EventKindDeposit)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Applied)
	assert.Equal(t, uint64(10), res.From)
	assert.Equal(t, uint64(11), res.To)
	assert.Equal(t, "1", f.balance(t, 7).String())

	assert.Equal(t, [][2]uint64{{0, 10}, {10, 11}}, f.chain.ranges)
}

func TestReconcile_NothingNewIsNoop(t *testing.T) {
	f := newFixture(t)
	f.chain.head = 0

	res, err := f.reconciler.ReconcileOnce(context.Background(), chain.EventKindDeposit)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), res.To)
	assert.Empty(t, f.chain.ranges)
}

func TestReconcile_FetchFailureKeepsCheckpoint(t *testing.T) {
	f := newFixture(t)
	f.seed(7, "0")
	f.chain.head = 10
	f.chain.fetchErr = errRPCDown

	_, err := f.reconciler.ReconcileOnce(context.Background(), chain.EventKindDeposit)
	require.Error(t, err)
	assert.Equal(t, uint64(0), checkpoint(t, f, models.CheckpointDeposit))
}

func TestReconcile_HeadFailure(t *testing.T) {
	f := newFixture(t)
	f.chain.headErr = errRPCDown

	_, err := f.reconciler.ReconcileOnce(context.Background(), chain.EventKindWithdrawal)
	require.ErrorIs(t, err, errRPCDown)
}

func TestReconcile_BadEventIsSkipped(t *testing.T) {
	f := newFixture(t)
	f.seed(7, "0")
	f.chain.head = 10
	f.chain.addEvent(depositEvent(99, "1", "0x01", 2)) // no such user
	f.chain.addEvent(depositEvent(7, "1", "0x02", 3))

	res, err := f.reconciler.ReconcileOnce(context.Background(), chain.EventKindDeposit)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Applied)
	assert.Equal(t, "1", f.balance(t, 7).String())
	assert.Equal(t, uint64(10), checkpoint(t, f, models.CheckpointDeposit))
}

func TestReconcile_MaxBlockRange(t *testing.T) {
	f := newFixture(t)
	f.reconciler.cfg = EventReconcilerConfig{StartBlock: 100, MaxBlockRange: 50}
	f.chain.head = 1000

	res, err := f.reconciler.ReconcileOnce(context.Background(), chain.EventKindDeposit)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), res.From)
	assert.Equal(t, uint64(150), res.To)
	assert.Equal(t, uint64(150), checkpoint(t, f, models.CheckpointDeposit))
}

func TestReconcile_WithdrawalSettlesPending(t *testing.T) {
	f := newFixture(t)
	f.seed(1, "100")
	ctx := context.Background()

	permit, err := f.authorizer.Authorize(ctx, auth.Identity{UserID: 1}, withdraw("40"))
	require.NoError(t, err)

	f.chain.head = 30
	f.chain.addEvent(withdrawalEvent(permit.Nonce, testAddress, "40", "0xbb", 21))

	res, err := f.reconciler.ReconcileOnce(ctx, chain.EventKindWithdrawal)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Applied)
	assert.Equal(t, "60", f.balance(t, 1).String())
	assert.Equal(t, int64(0), f.pendingCount(t))
	assert.Equal(t, uint64(30), checkpoint(t, f, models.CheckpointWithdraw))

	entries, err := f.store.Journal().ListByUser(ctx, 1, 0, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "-40", entries[0].Amount.String())
	assert.Equal(t, "0xbb", entries[0].TxHash)

	// the idempotency record went with the pending row, so the same request is a new withdrawal
	f.now = f.now.Add(2 * time.Second)
	again, err := f.authorizer.Authorize(ctx, auth.Identity{UserID: 1}, withdraw("40"))
	require.NoError(t, err)
	assert.NotEqual(t, permit.Nonce, again.Nonce)
	assert.Equal(t, "20", f.balance(t, 1).String())

	// replaying the settled event changes nothing
	f.chain.head = 40
	f.chain.addEvent(withdrawalEvent(permit.Nonce, testAddress, "40", "0xbb", 35))
	res, err = f.reconciler.ReconcileOnce(ctx, chain.EventKindWithdrawal)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Applied)
	assert.Equal(t, "20", f.balance(t, 1).String())
	assert.Equal(t, int64(1), f.pendingCount(t))
}

func TestReconcile_UnknownWithdrawalIgnored(t *testing.T) {
	f := newFixture(t)
	f.seed(1, "100")
	f.chain.head = 5
	f.chain.addEvent(withdrawalEvent(12345, testAddress, "1", "0xcc", 1))

	res, err := f.reconciler.ReconcileOnce(context.Background(), chain.EventKindWithdrawal)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Applied)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, "100", f.balance(t, 1).String())
}

func TestReconcile_StreamsAreIndependent(t *testing.T) {
	f := newFixture(t)
	f.chain.head = 8

	_, err := f.reconciler.ReconcileOnce(context.Background(), chain.EventKindDeposit)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), checkpoint(t, f, models.CheckpointDeposit))
	assert.Equal(t, uint64(0), checkpoint(t, f, models.CheckpointWithdraw))
}
