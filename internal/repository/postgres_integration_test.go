package repository_test

import (
	"context"
	"os"
	"testing"

	"github.com/0xArchitect/ludo-backend/internal/config"
	"github.com/0xArchitect/ludo-backend/internal/db"
	"github.com/0xArchitect/ludo-backend/internal/models"
	"github.com/0xArchitect/ludo-backend/internal/repository"
	"github.com/0xArchitect/ludo-backend/internal/repository/storetest"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a disposable Postgres database named by DATABASE_DSN
func TestGormStore_Postgres(t *testing.T) {
	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		t.Skip("DATABASE_DSN not set")
	}
	logger, _ := test.NewNullLogger()
	ctx := context.Background()

	gdb, err := db.Open(ctx, config.DatabaseConfig{DSN: dsn, MaxOpenConns: 5, MaxIdleConns: 2}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(gdb) })
	require.NoError(t, db.Migrate(ctx, gdb, logger))

	store := repository.NewStore(gdb)
	storetest.Run(t, store, func(t *testing.T, account models.Account) {
		require.NoError(t, gdb.WithContext(ctx).Create(&account).Error)
	})

	t.Run("BalanceCheckConstraint", func(t *testing.T) {
		account := models.Account{ID: 999_000_000_000_000 + uint64(os.Getpid()), Balance: decimal.NewFromInt(1)}
		require.NoError(t, gdb.WithContext(ctx).Save(&account).Error)
		assert.Error(t, store.Accounts().UpdateBalance(ctx, account.ID, decimal.NewFromInt(-1)))
	})
}
