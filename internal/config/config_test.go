package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func clearEnv(t *testing.T) {
	for _, key := range []string{"DATABASE_DSN", "SERVER_PORT", "REDIS_HOST", "CHAIN_ID", "START_BLOCK", "RPC_URL", "POOL_ADDRESS", "PRIVATE_KEY", "JWT_PUBLIC_KEY_PATH"} {
		t.Setenv(key, "")
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
server:
  port: 9090
database:
  dsn: postgres://ludo@localhost/ludo
blockchain:
  rpc_url: http://localhost:8545
  pool_address: "0x5FbDB2315678afecb367f032d93F642f64180aa3"
  start_block: 1200
  max_block_range: 5000
reconciler:
  poll_interval: 5s
withdraw:
  throttle_interval: 0s
  request_scoped_idempotency: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "postgres://ludo@localhost/ludo", cfg.Database.DSN)
	assert.Equal(t, uint64(1200), cfg.Blockchain.StartBlock)
	assert.Equal(t, uint64(5000), cfg.Blockchain.MaxBlockRange)
	assert.Equal(t, 5*time.Second, cfg.Reconciler.PollInterval)
	assert.Equal(t, time.Duration(0), cfg.Withdraw.ThrottleInterval)
	assert.True(t, cfg.Withdraw.RequestScopedIdempotency)

	// untouched keys keep their defaults
	assert.Equal(t, 10*time.Minute, cfg.Reaper.PendingTimeout)
	assert.Equal(t, 300*time.Second, cfg.Withdraw.IdempotencyTTL)
	assert.Equal(t, int64(11155111), cfg.Blockchain.ChainID)
	assert.Equal(t, "LudoBalancePool", cfg.Blockchain.DomainName)
	assert.Equal(t, "", cfg.Redis.Addr())
	assert.NoError(t, cfg.RequireChain())
	assert.Error(t, cfg.RequireSigner())
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "server:\n  port: 9090\n")
	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("DATABASE_DSN", "postgres://env")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("CHAIN_ID", "1")
	t.Setenv("START_BLOCK", "42")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "postgres://env", cfg.Database.DSN)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr())
	assert.Equal(t, int64(1), cfg.Blockchain.ChainID)
	assert.Equal(t, uint64(42), cfg.Blockchain.StartBlock)
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "server: [not a map"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "reaper:\n  batch_size: 0\n"))
	assert.ErrorContains(t, err, "reaper.batch_size")

	t.Setenv("SERVER_PORT", "eighty")
	_, err = Load(writeConfig(t, ""))
	assert.ErrorContains(t, err, "SERVER_PORT")
}
