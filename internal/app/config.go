package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"

	"github.com/xenking/oolio-pos/internal/domain/currency"
)

// Storage backends.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Idempotency store backends.
const (
	IdempotencyMemory = "memory"
	IdempotencyRedis  = "redis"
)

// Config holds the complete application configuration, loadable from
// environment variables (POS_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Storage      string `default:"postgres" usage:"Storage backend: postgres or memory"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (POS_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	BaseCurrency string `default:"EUR" usage:"Currency every terminal trades in" flag:"base-currency"`
	Snapshot     SnapshotConfig
	Ledger       LedgerConfig
	Auth         AuthConfig
	Held         HeldConfig
	Catalog      CatalogConfig
	Idempotency  IdempotencyConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// SnapshotConfig controls where terminal state is persisted.
type SnapshotConfig struct {
	Dir string `default:"data/terminals" usage:"Directory for terminal snapshots" flag:"snapshot-dir"`
}

// LedgerConfig controls calls to the external ledger.
type LedgerConfig struct {
	Timeout time.Duration `default:"5s" usage:"Ledger call timeout" flag:"ledger-timeout"`
}

// AuthConfig controls cashier login throttling.
type AuthConfig struct {
	MaxAttempts int           `default:"5" usage:"Failed logins before lockout, 0 disables" flag:"auth-max-attempts"`
	Lockout     time.Duration `default:"5m" usage:"Lockout duration" flag:"auth-lockout"`
}

// HeldConfig controls parked orders.
type HeldConfig struct {
	TTL time.Duration `default:"0s" usage:"Held order expiry, 0 keeps them until the session closes" flag:"held-ttl"`
}

// CatalogConfig controls the product cache in front of the database.
type CatalogConfig struct {
	CacheSize int           `default:"4096" usage:"Cached catalog entries, 0 disables the cache" flag:"catalog-cache-size"`
	CacheTTL  time.Duration `default:"5m" usage:"How long a cached product is served before it is read again" flag:"catalog-cache-ttl"`
}

// IdempotencyConfig controls replay of mutating requests.
type IdempotencyConfig struct {
	Backend       string        `default:"memory" usage:"Idempotency store: memory or redis"`
	Size          int           `default:"10000" usage:"Entries kept by the memory store"`
	TTL           time.Duration `default:"24h" usage:"How long responses are replayable"`
	RedisAddr     string        `default:"localhost:6379" usage:"Redis address" flag:"redis-addr"`
	RedisPassword string        `usage:"Redis password" flag:"redis-password"`
	RedisDB       int           `default:"0" usage:"Redis database" flag:"redis-db"`
	KeyPrefix     string        `default:"pos:idempotency:" usage:"Redis key prefix"`
}

// RateLimitConfig controls the per-terminal sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"300" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "POS",
		Files:     []string{"config.yaml", "/etc/pos/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return errors.New("database URL is required: set POS_DATABASE_URL or DATABASE_URL")
		}
	case StorageMemory:
	default:
		return errors.Errorf("unknown storage backend %q", c.Storage)
	}

	cur, err := currency.Parse(c.BaseCurrency)
	if err != nil {
		return errors.Wrap(err, "base currency")
	}
	c.BaseCurrency = string(cur)

	switch c.Idempotency.Backend {
	case IdempotencyMemory, IdempotencyRedis:
	default:
		return errors.Errorf("unknown idempotency backend %q", c.Idempotency.Backend)
	}
	if c.Snapshot.Dir == "" {
		return errors.New("snapshot directory is required")
	}
	if c.Ledger.Timeout < 0 || c.Auth.Lockout < 0 || c.Held.TTL < 0 || c.Catalog.CacheTTL < 0 {
		return errors.New("durations must not be negative")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's POS_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
