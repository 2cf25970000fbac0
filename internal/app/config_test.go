package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func validConfig() Config {
	return Config{
		Addr:         "0.0.0.0:8080",
		Storage:      StoragePostgres,
		DatabaseURL:  "postgres://pos@localhost/pos",
		BaseCurrency: "eur",
		Snapshot:     SnapshotConfig{Dir: "data"},
		Ledger:       LedgerConfig{Timeout: 5 * time.Second},
		Idempotency:  IdempotencyConfig{Backend: IdempotencyMemory},
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.validate())
	require.Equal(t, "EUR", cfg.BaseCurrency)

	for name, mutate := range map[string]func(*Config){
		"no database":        func(c *Config) { c.DatabaseURL = "" },
		"unknown storage":    func(c *Config) { c.Storage = "sqlite" },
		"bad currency":       func(c *Config) { c.BaseCurrency = "EURO" },
		"unknown store":      func(c *Config) { c.Idempotency.Backend = "etcd" },
		"no snapshot dir":    func(c *Config) { c.Snapshot.Dir = "" },
		"negative lockout":   func(c *Config) { c.Auth.Lockout = -time.Second },
		"negative held ttl":  func(c *Config) { c.Held.TTL = -time.Minute },
		"negative cache ttl": func(c *Config) { c.Catalog.CacheTTL = -time.Minute },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			mutate(&cfg)
			require.Error(t, cfg.validate())
		})
	}
}

func TestConfigMemoryStorage(t *testing.T) {
	cfg := validConfig()
	cfg.Storage = StorageMemory
	cfg.DatabaseURL = ""
	require.NoError(t, cfg.validate())
}

func TestApplyPlatformDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/db")
	t.Setenv("PORT", "9090")

	cfg := Config{Addr: "0.0.0.0:8080"}
	cfg.applyPlatformDefaults()
	require.Equal(t, "postgres://platform/db", cfg.DatabaseURL)
	require.Equal(t, "0.0.0.0:9090", cfg.Addr)

	cfg = Config{Addr: "127.0.0.1:7000", DatabaseURL: "postgres://own/db"}
	cfg.applyPlatformDefaults()
	require.Equal(t, "postgres://own/db", cfg.DatabaseURL)
	require.Equal(t, "127.0.0.1:7000", cfg.Addr)
}

func TestOpenMemoryBackend(t *testing.T) {
	be, err := openMemory(zap.NewNop())
	require.NoError(t, err)
	defer be.close()
	require.Nil(t, be.db)

	p, err := be.catalog.GetByID(t.Context(), "espresso")
	require.NoError(t, err)
	require.Equal(t, "Espresso", p.Name)

	emp, err := be.employees.Verify(t.Context(), "e-100", "1234")
	require.NoError(t, err)
	require.Equal(t, "main", emp.BranchID)

	reg, err := be.registers.Register(t.Context(), "drawer-1")
	require.NoError(t, err)
	require.Equal(t, "EUR", string(reg.Currency))
}

func TestOpenMemoryIdempotency(t *testing.T) {
	store, pinger, closeFn, err := openIdempotency(t.Context(), IdempotencyConfig{Backend: IdempotencyMemory})
	require.NoError(t, err)
	defer closeFn()
	require.NotNil(t, store)
	require.Nil(t, pinger)
}
