package db

import (
	"context"
	"fmt"
	"time"

	"github.com/0xArchitect/ludo-backend/internal/config"
	"github.com/0xArchitect/ludo-backend/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to Postgres and sizes the pool.
// TranslateError is required: repositories rely on gorm.ErrDuplicatedKey.
func Open(ctx context.Context, cfg config.DatabaseConfig, log logrus.FieldLogger) (*gorm.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		SkipDefaultTransaction:                   true,
		DisableAutomaticPing:                     true,
		PrepareStmt:                              true,
		TranslateError:                           true,
		Logger:                                   logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	log.Info("✅ Database connected successfully")
	return db, nil
}

// Migrate creates or extends the ledger tables, then applies pending data migrations
func Migrate(ctx context.Context, db *gorm.DB, log logrus.FieldLogger) error {
	log.Info("🚀 Starting database schema migration with GORM AutoMigrate...")
	if err := db.WithContext(ctx).AutoMigrate(
		&models.Account{},
		&models.PendingWithdrawal{},
		&models.JournalEntry{},
		&models.Checkpoint{},
	); err != nil {
		return fmt.Errorf("AutoMigrate failed: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	if err := RunDataMigrations(ctx, sqlDB, log); err != nil {
		return fmt.Errorf("data migrations failed: %w", err)
	}

	log.Info("✅ Database schema migrated successfully")
	return nil
}

// Close releases the pool
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
