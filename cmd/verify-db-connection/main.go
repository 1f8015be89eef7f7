package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/0xArchitect/ludo-backend/internal/config"

	_ "github.com/lib/pq"
)

type check struct {
	name  string
	query string
}

var requiredColumns = map[string][]string{
	"users":               {"id", "balance", "google2fa_secret"},
	"pending_withdrawals": {"id", "user_id", "address", "nonce", "amount", "timestamp", "created_at"},
	"journal_entries":     {"id", "user_id", "amount", "tx_hash", "address", "kind", "created_at"},
	"checkpoints":         {"kind", "block_number"},
}

// Each query counts violating rows; anything above zero is a problem
var invariantChecks = []check{
	{"negative balances", `SELECT COUNT(*) FROM users WHERE balance < 0`},
	{"pending withdrawals without account", `
		SELECT COUNT(*) FROM pending_withdrawals p
		LEFT JOIN users u ON u.id = p.user_id WHERE u.id IS NULL`},
	{"duplicate pending (address, nonce)", `
		SELECT COUNT(*) FROM (
			SELECT address, nonce FROM pending_withdrawals GROUP BY address, nonce HAVING COUNT(*) > 1
		) d`},
	{"duplicate journal tx hashes", `
		SELECT COUNT(*) FROM (
			SELECT LOWER(tx_hash) FROM journal_entries GROUP BY LOWER(tx_hash) HAVING COUNT(*) > 1
		) d`},
	{"non-canonical addresses", `
		SELECT (SELECT COUNT(*) FROM pending_withdrawals WHERE address <> LOWER(address))
		     + (SELECT COUNT(*) FROM journal_entries WHERE address <> LOWER(address) OR tx_hash <> LOWER(tx_hash))`},
	{"non-positive pending amounts", `SELECT COUNT(*) FROM pending_withdrawals WHERE amount <= 0`},
}

func main() {
	fmt.Println("🔍 Verifying ledger database connection and invariants...")

	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.RequireDatabase(); err != nil {
		log.Fatalf("%v", err)
	}

	sqlDB, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer sqlDB.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var dbName string
	if err := sqlDB.QueryRowContext(ctx, "SELECT current_database()").Scan(&dbName); err != nil {
		log.Fatalf("Failed to get database name: %v", err)
	}
	fmt.Printf("📋 Connected to database: %s\n", dbName)

	problems := 0

	fmt.Println("\n📋 Schema:")
	for table, columns := range requiredColumns {
		missing, err := missingColumns(ctx, sqlDB, table, columns)
		if err != nil {
			log.Fatalf("Failed to inspect %s: %v", table, err)
		}
		if len(missing) > 0 {
			problems++
			fmt.Printf("  ❌ %s missing columns %v (run `ledgerd migrate`)\n", table, missing)
			continue
		}
		fmt.Printf("  ✅ %s\n", table)
	}
	if problems > 0 {
		os.Exit(1)
	}

	fmt.Println("\n📋 Invariants:")
	for _, c := range invariantChecks {
		var count int64
		if err := sqlDB.QueryRowContext(ctx, c.query).Scan(&count); err != nil {
			log.Fatalf("Failed to check %s: %v", c.name, err)
		}
		if count > 0 {
			problems++
			fmt.Printf("  ❌ %s: %d\n", c.name, count)
			continue
		}
		fmt.Printf("  ✅ %s\n", c.name)
	}

	fmt.Println("\n📋 Checkpoints:")
	rows, err := sqlDB.QueryContext(ctx, `SELECT kind, block_number FROM checkpoints ORDER BY kind`)
	if err != nil {
		log.Fatalf("Failed to read checkpoints: %v", err)
	}
	defer rows.Close()
	for rows.Next() {
		var kind string
		var block int64
		if err := rows.Scan(&kind, &block); err != nil {
			log.Fatalf("Failed to scan checkpoint: %v", err)
		}
		fmt.Printf("  %s: next block %d\n", kind, block)
	}

	if problems > 0 {
		fmt.Printf("\n❌ %d problem(s) found\n", problems)
		os.Exit(1)
	}
	fmt.Println("\n✅ Database looks healthy")
}

func missingColumns(ctx context.Context, db *sql.DB, table string, columns []string) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT column_name FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	present := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		present[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var missing []string
	for _, c := range columns {
		if !present[c] {
			missing = append(missing, c)
		}
	}
	return missing, nil
}
