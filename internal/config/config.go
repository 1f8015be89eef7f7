package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config application configuration structure
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	NATS       NATSConfig       `yaml:"nats"`
	Blockchain BlockchainConfig `yaml:"blockchain"`
	Auth       AuthConfig       `yaml:"auth"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`
	Reaper     ReaperConfig     `yaml:"reaper"`
	Withdraw   WithdrawConfig   `yaml:"withdraw"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	CORS       CORSConfig       `yaml:"cors"`
	Admin      AdminConfig      `yaml:"admin"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Addr is host:port for net/http
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LogConfig logger configuration
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// DatabaseConfig Database configuration
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// RedisConfig Redis configuration. An empty host selects the in-process cache.
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Addr is host:port, or "" when Redis is not configured
func (r RedisConfig) Addr() string {
	if r.Host == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// NATSConfig NATS publisher configuration. An empty URL disables publishing.
type NATSConfig struct {
	URL           string `yaml:"url"`
	Timeout       int    `yaml:"timeout"`        // seconds
	ReconnectWait int    `yaml:"reconnect_wait"` // seconds
	MaxReconnects int    `yaml:"max_reconnects"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// BlockchainConfig pool contract and signer configuration
type BlockchainConfig struct {
	RPCURL        string        `yaml:"rpc_url"`
	PoolAddress   string        `yaml:"pool_address"`
	PrivateKey    string        `yaml:"private_key"`
	ChainID       int64         `yaml:"chain_id"`
	DomainName    string        `yaml:"domain_name"`
	DomainVersion string        `yaml:"domain_version"`
	StartBlock    uint64        `yaml:"start_block"`
	MaxBlockRange uint64        `yaml:"max_block_range"` // 0 = up to head
	RPCTimeout    time.Duration `yaml:"rpc_timeout"`     // 0 = no deadline
}

// AuthConfig identity token configuration
type AuthConfig struct {
	JWTPublicKeyPath string `yaml:"jwt_public_key_path"`
	Issuer           string `yaml:"issuer"`
}

// ReconcilerConfig event reconciler configuration
type ReconcilerConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}

// ReaperConfig stale pending reaper configuration
type ReaperConfig struct {
	Interval       time.Duration `yaml:"interval"`
	PendingTimeout time.Duration `yaml:"pending_timeout"`
	BatchSize      int           `yaml:"batch_size"`
}

// WithdrawConfig withdrawal endpoint configuration
type WithdrawConfig struct {
	RequestScopedIdempotency bool          `yaml:"request_scoped_idempotency"`
	IdempotencyTTL           time.Duration `yaml:"idempotency_ttl"`
	ThrottleInterval         time.Duration `yaml:"throttle_interval"` // 0 disables
}

// MonitoringConfig gauge refresh configuration
type MonitoringConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// CORSConfig CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowedOrigins"`
	AllowCredentials bool     `yaml:"allowCredentials"`
	MaxAge           int      `yaml:"maxAge"` // seconds
}

// AdminConfig access control for operational endpoints
type AdminConfig struct {
	AllowedIPs []string `yaml:"allowedIPs"` // IPs or CIDR ranges; empty = localhost only
}

// Default returns the configuration used for keys a file does not set
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080, ShutdownTimeout: 15 * time.Second},
		Log:    LogConfig{Level: "info", Format: "text"},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Redis: RedisConfig{Port: 6379},
		NATS: NATSConfig{
			Timeout:       10,
			ReconnectWait: 2,
			MaxReconnects: 10,
			SubjectPrefix: "ledger",
		},
		Blockchain: BlockchainConfig{
			ChainID:       11155111,
			DomainName:    "LudoBalancePool",
			DomainVersion: "1",
		},
		Reconciler: ReconcilerConfig{PollInterval: 30 * time.Second},
		Reaper: ReaperConfig{
			Interval:       10 * time.Minute,
			PendingTimeout: 10 * time.Minute,
			BatchSize:      100,
		},
		Withdraw: WithdrawConfig{
			IdempotencyTTL:   300 * time.Second,
			ThrottleInterval: 15 * time.Second,
		},
		Monitoring: MonitoringConfig{Interval: 10 * time.Second},
	}
}

// Load reads .env, the YAML file at path and environment overrides, in that order.
// With an empty path config.local.yaml is preferred over config.yaml, and a missing
// default file leaves the built-in defaults in place.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	explicit := path != ""
	if !explicit {
		path = "config.yaml"
		if _, err := os.Stat("config.local.yaml"); err == nil {
			path = "config.local.yaml"
		}
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case explicit || !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := overrideFromEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func overrideFromEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	str("DATABASE_DSN", &cfg.Database.DSN)
	str("SERVER_HOST", &cfg.Server.Host)
	str("REDIS_HOST", &cfg.Redis.Host)
	str("REDIS_PASSWORD", &cfg.Redis.Password)
	str("NATS_URL", &cfg.NATS.URL)
	str("RPC_URL", &cfg.Blockchain.RPCURL)
	str("POOL_ADDRESS", &cfg.Blockchain.PoolAddress)
	str("PRIVATE_KEY", &cfg.Blockchain.PrivateKey)
	str("JWT_PUBLIC_KEY_PATH", &cfg.Auth.JWTPublicKeyPath)
	str("LOG_LEVEL", &cfg.Log.Level)

	ints := []struct {
		key string
		dst *int
	}{
		{"SERVER_PORT", &cfg.Server.Port},
		{"REDIS_PORT", &cfg.Redis.Port},
	}
	for _, e := range ints {
		if v := os.Getenv(e.key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s %q: %w", e.key, v, err)
			}
			*e.dst = n
		}
	}

	if v := os.Getenv("CHAIN_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid CHAIN_ID %q: %w", v, err)
		}
		cfg.Blockchain.ChainID = id
	}
	if v := os.Getenv("START_BLOCK"); v != "" {
		block, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid START_BLOCK %q: %w", v, err)
		}
		cfg.Blockchain.StartBlock = block
	}
	return nil
}

// Validate checks values that are malformed regardless of which command runs
func (c *Config) Validate() error {
	var problems []string
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("log.format %q must be text or json", c.Log.Format))
	}
	if c.Reconciler.PollInterval <= 0 {
		problems = append(problems, "reconciler.poll_interval must be positive")
	}
	if c.Reaper.Interval <= 0 || c.Reaper.PendingTimeout <= 0 {
		problems = append(problems, "reaper.interval and reaper.pending_timeout must be positive")
	}
	if c.Reaper.BatchSize <= 0 {
		problems = append(problems, "reaper.batch_size must be positive")
	}
	if c.Withdraw.IdempotencyTTL <= 0 {
		problems = append(problems, "withdraw.idempotency_ttl must be positive")
	}
	if c.Withdraw.ThrottleInterval < 0 {
		problems = append(problems, "withdraw.throttle_interval must not be negative")
	}
	if c.Blockchain.ChainID <= 0 {
		problems = append(problems, "blockchain.chain_id must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// RequireDatabase fails when no DSN is configured
func (c *Config) RequireDatabase() error {
	if c.Database.DSN == "" {
		return errors.New("database.dsn (DATABASE_DSN) is required")
	}
	return nil
}

// RequireChain fails when the RPC endpoint or pool address is missing
func (c *Config) RequireChain() error {
	if c.Blockchain.RPCURL == "" {
		return errors.New("blockchain.rpc_url (RPC_URL) is required")
	}
	if c.Blockchain.PoolAddress == "" {
		return errors.New("blockchain.pool_address (POOL_ADDRESS) is required")
	}
	return nil
}

// RequireSigner fails when the withdrawal signer or token verifier is not configured
func (c *Config) RequireSigner() error {
	if c.Blockchain.PrivateKey == "" {
		return errors.New("blockchain.private_key (PRIVATE_KEY) is required")
	}
	if c.Auth.JWTPublicKeyPath == "" {
		return errors.New("auth.jwt_public_key_path (JWT_PUBLIC_KEY_PATH) is required")
	}
	return nil
}
