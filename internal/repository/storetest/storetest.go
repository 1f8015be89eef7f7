// Package storetest is a conformance suite every repository.Store implementation must pass
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/0xArchitect/ludo-backend/internal/models"
	"github.com/0xArchitect/ludo-backend/internal/repository"
	"github.com/0xArchitect/ludo-backend/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Seeder inserts an account directly, bypassing the Store
type Seeder func(t *testing.T, account models.Account)

// Run exercises store. Row ids, addresses and hashes are derived from the wall clock
// so the suite can run repeatedly against a shared database.
func Run(t *testing.T, store repository.Store, seed Seeder) {
	base := uint64(time.Now().UnixNano()/1000) % 1_000_000_000_000

	t.Run("Accounts", func(t *testing.T) { testAccounts(t, store, seed, base) })
	t.Run("TransactionRollback", func(t *testing.T) { testRollback(t, store, seed, base+10) })
	t.Run("PendingWithdrawals", func(t *testing.T) { testPending(t, store, seed, base+20) })
	t.Run("Journal", func(t *testing.T) { testJournal(t, store, seed, base+30) })
	t.Run("Checkpoints", func(t *testing.T) { testCheckpoints(t, store, base+40) })
}

func address(n uint64) string { return fmt.Sprintf("0x%040x", n) }
func txHash(n uint64) string  { return fmt.Sprintf("0x%064x", n) }

func testAccounts(t *testing.T, store repository.Store, seed Seeder, id uint64) {
	ctx := context.Background()
	seed(t, models.Account{ID: id, Balance: decimal.NewFromInt(100)})

	_, err := store.Accounts().GetByID(ctx, id+1)
	require.ErrorIs(t, err, types.ErrNotFound)
	require.ErrorIs(t, store.Accounts().UpdateBalance(ctx, id+1, decimal.NewFromInt(1)), types.ErrNotFound)

	err = store.Transaction(ctx, func(tx repository.Store) error {
		account, err := tx.Accounts().LockByID(ctx, id)
		if err != nil {
			return err
		}
		return tx.Accounts().UpdateBalance(ctx, id, account.Balance.Sub(decimal.RequireFromString("0.000000000000000001")))
	})
	require.NoError(t, err)

	account, err := store.Accounts().GetByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, account.Balance.Equal(decimal.RequireFromString("99.999999999999999999")), account.Balance.String())
}

func testRollback(t *testing.T, store repository.Store, seed Seeder, id uint64) {
	ctx := context.Background()
	seed(t, models.Account{ID: id, Balance: decimal.NewFromInt(50)})
	boom := errors.New("boom")

	err := store.Transaction(ctx, func(tx repository.Store) error {
		if err := tx.Accounts().UpdateBalance(ctx, id, decimal.Zero); err != nil {
			return err
		}
		// nested calls join the outer transaction
		if err := tx.Transaction(ctx, func(inner repository.Store) error {
			return inner.PendingWithdrawals().Create(ctx, &models.PendingWithdrawal{
				UserID: id, Address: address(id), Nonce: id, Amount: decimal.NewFromInt(50), Timestamp: 1,
			})
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	account, err := store.Accounts().GetByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, account.Balance.Equal(decimal.NewFromInt(50)))
	_, err = store.PendingWithdrawals().FindByAddressNonce(ctx, address(id), id)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func testPending(t *testing.T, store repository.Store, seed Seeder, id uint64) {
	ctx := context.Background()
	seed(t, models.Account{ID: id, Balance: decimal.Zero})
	repo := store.PendingWithdrawals()

	before, err := repo.Count(ctx)
	require.NoError(t, err)

	old := time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)
	first := &models.PendingWithdrawal{UserID: id, Address: address(id), Nonce: 1, Amount: decimal.NewFromInt(40), Timestamp: 1, CreatedAt: old}
	second := &models.PendingWithdrawal{UserID: id, Address: address(id), Nonce: 2, Amount: decimal.RequireFromString("2.5"), Timestamp: 2, CreatedAt: old.Add(time.Minute)}
	fresh := &models.PendingWithdrawal{UserID: id, Address: address(id + 1), Nonce: 1, Amount: decimal.NewFromInt(1), Timestamp: 3, CreatedAt: time.Now().Add(time.Hour)}
	for _, p := range []*models.PendingWithdrawal{second, first, fresh} {
		require.NoError(t, repo.Create(ctx, p))
		require.NotZero(t, p.ID)
	}

	dup := &models.PendingWithdrawal{UserID: id, Address: address(id), Nonce: 1, Amount: decimal.NewFromInt(1), Timestamp: 4}
	require.ErrorIs(t, repo.Create(ctx, dup), repository.ErrPendingExists)

	after, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, before+3, after)

	sum, err := repo.SumByUser(ctx, id)
	require.NoError(t, err)
	assert.True(t, sum.Equal(decimal.RequireFromString("43.5")), sum.String())

	found, err := repo.FindByAddressNonce(ctx, address(id), 2)
	require.NoError(t, err)
	assert.Equal(t, second.ID, found.ID)

	mine := func(afterID uint64) []uint64 {
		stale, err := repo.ListCreatedBefore(ctx, time.Now(), afterID, 0)
		require.NoError(t, err)
		var ids []uint64
		for _, p := range stale {
			if p.UserID == id {
				ids = append(ids, p.ID)
			}
		}
		return ids
	}
	assert.Equal(t, []uint64{second.ID, first.ID}, mine(0), "id order, fresh rows excluded")
	assert.Equal(t, []uint64{first.ID}, mine(second.ID))
	assert.Empty(t, mine(first.ID))

	deleted, err := repo.Delete(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = repo.Delete(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = repo.GetByID(ctx, first.ID)
	assert.ErrorIs(t, err, types.ErrNotFound)

	// the (address, nonce) slot is free again once settled
	require.NoError(t, repo.Create(ctx, &models.PendingWithdrawal{UserID: id, Address: address(id), Nonce: 1, Amount: decimal.NewFromInt(1), Timestamp: 5}))
}

func testJournal(t *testing.T, store repository.Store, seed Seeder, id uint64) {
	ctx := context.Background()
	seed(t, models.Account{ID: id, Balance: decimal.Zero})
	repo := store.Journal()
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := uint64(0); i < 3; i++ {
		require.NoError(t, repo.Create(ctx, &models.JournalEntry{
			UserID:      id,
			Amount:      decimal.NewFromInt(int64(i + 1)),
			TxHash:      txHash(id*10 + i),
			Address:     address(1),
			Kind:        models.JournalKindDeposit,
			BlockNumber: 100 + i,
			CreatedAt:   start.Add(time.Duration(i) * time.Minute),
		}))
	}

	err := repo.Create(ctx, &models.JournalEntry{
		UserID: id, Amount: decimal.NewFromInt(9), TxHash: txHash(id * 10), Address: address(1),
		Kind: models.JournalKindDeposit, CreatedAt: start,
	})
	require.ErrorIs(t, err, types.ErrDuplicateEvent)

	exists, err := repo.ExistsByTxHash(ctx, txHash(id*10+2))
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = repo.ExistsByTxHash(ctx, txHash(id*10+9))
	require.NoError(t, err)
	assert.False(t, exists)

	page, err := repo.ListByUser(ctx, id, 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, txHash(id*10+2), page[0].TxHash)
	assert.Equal(t, txHash(id*10+1), page[1].TxHash)

	page, err = repo.ListByUser(ctx, id, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, txHash(id*10), page[0].TxHash)

	page, err = repo.ListByUser(ctx, id, 5, 2)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func testCheckpoints(t *testing.T, store repository.Store, n uint64) {
	ctx := context.Background()
	kind := models.CheckpointKind(fmt.Sprintf("t%d", n%1_000_000_000))
	repo := store.Checkpoints()

	block, err := repo.Get(ctx, kind, 500)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), block)

	// initial only applies on creation
	block, err = repo.Get(ctx, kind, 7)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), block)

	require.NoError(t, repo.Advance(ctx, kind, 650))
	require.NoError(t, repo.Advance(ctx, kind, 600))
	block, err = repo.Get(ctx, kind, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(650), block)
}
