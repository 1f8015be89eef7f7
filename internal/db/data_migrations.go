package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"
)

// DataMigration is a one-off data fix recorded in schema_migrations_log
type DataMigration struct {
	Version     string
	Description string
	Up          func(ctx context.Context, tx *sql.Tx) (int64, error)
}

// GetDataMigrations returns all data migrations in apply order
func GetDataMigrations() []DataMigration {
	return []DataMigration{
		{
			Version:     "data_001",
			Description: "Lowercase pending withdrawal addresses",
			Up:          execAffected(`UPDATE pending_withdrawals SET address = LOWER(address) WHERE address <> LOWER(address)`),
		},
		{
			Version:     "data_002",
			Description: "Lowercase journal tx hashes and contract addresses",
			Up: execAffected(`UPDATE journal_entries SET tx_hash = LOWER(tx_hash), address = LOWER(address)
				WHERE tx_hash <> LOWER(tx_hash) OR address <> LOWER(address)`),
		},
	}
}

func execAffected(query string) func(context.Context, *sql.Tx) (int64, error) {
	return func(ctx context.Context, tx *sql.Tx) (int64, error) {
		res, err := tx.ExecContext(ctx, query)
		if err != nil {
			return 0, err
		}
		return res.RowsAffected()
	}
}

const createMigrationsLog = `
	CREATE TABLE IF NOT EXISTS schema_migrations_log (
		id SERIAL PRIMARY KEY,
		version VARCHAR(50) NOT NULL UNIQUE,
		description TEXT,
		executed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

// RunDataMigrations applies each migration not yet recorded, one transaction per migration
func RunDataMigrations(ctx context.Context, db *sql.DB, log logrus.FieldLogger) error {
	if _, err := db.ExecContext(ctx, createMigrationsLog); err != nil {
		return fmt.Errorf("create schema_migrations_log: %w", err)
	}

	for _, m := range GetDataMigrations() {
		var count int
		if err := db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM schema_migrations_log WHERE version = $1", m.Version,
		).Scan(&count); err != nil {
			return err
		}
		if count > 0 {
			log.WithField("version", m.Version).Debug("📋 Data migration already applied")
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		rows, err := m.Up(ctx, tx)
		if err == nil {
			_, err = tx.ExecContext(ctx,
				"INSERT INTO schema_migrations_log (version, description) VALUES ($1, $2)",
				m.Version, m.Description)
		}
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("%s: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}

		log.WithFields(logrus.Fields{"version": m.Version, "rows": rows}).Infof("✅ Data migration completed: %s", m.Description)
	}
	return nil
}
