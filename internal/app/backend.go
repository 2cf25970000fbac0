package app

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/xenking/oolio-pos/internal/cache"
	"github.com/xenking/oolio-pos/internal/demo"
	"github.com/xenking/oolio-pos/internal/domain/auth"
	"github.com/xenking/oolio-pos/internal/domain/currency"
	"github.com/xenking/oolio-pos/internal/domain/customer"
	"github.com/xenking/oolio-pos/internal/domain/payment"
	"github.com/xenking/oolio-pos/internal/domain/product"
	"github.com/xenking/oolio-pos/internal/domain/session"
	"github.com/xenking/oolio-pos/internal/storage/memory"
	"github.com/xenking/oolio-pos/internal/storage/postgres"
	"github.com/xenking/oolio-pos/pkg/health"
)

// bookingLedger commits settlements and lists them back per session.
type bookingLedger interface {
	payment.LedgerService
	session.SessionLedger
}

// backend is the set of collaborators a terminal lifecycle is built from.
type backend struct {
	catalog   product.Catalog
	employees auth.EmployeeDirectory
	customers customer.Directory
	registers payment.RegisterDirectory
	ledger    bookingLedger
	rates     currency.RateProvider
	reports   session.ReportSink

	// db is nil for the memory backend.
	db    health.Pinger
	close func()
}

func openBackend(ctx context.Context, lg *zap.Logger, cfg *Config) (*backend, error) {
	if cfg.Storage == StorageMemory {
		return openMemory(lg)
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "run migrations")
	}

	var catalog product.Catalog = postgres.NewCatalogRepository(pool)
	if cfg.Catalog.CacheSize > 0 {
		catalog = cache.NewCatalog(catalog, cfg.Catalog.CacheSize, cfg.Catalog.CacheTTL)
	}

	return &backend{
		catalog:   catalog,
		employees: postgres.NewEmployeeRepository(pool),
		customers: postgres.NewCustomerRepository(pool),
		registers: postgres.NewRegisterRepository(pool),
		ledger:    postgres.NewLedgerRepository(pool),
		rates:     postgres.NewRateRepository(pool),
		reports:   postgres.NewReportRepository(pool),
		db:        pool,
		close:     pool.Close,
	}, nil
}

// openMemory builds a process-local backend loaded with the demo dataset.
func openMemory(lg *zap.Logger) (*backend, error) {
	employees := memory.NewEmployees(bcrypt.DefaultCost)
	for _, s := range demo.Employees() {
		if err := employees.Add(s.Employee, s.PIN); err != nil {
			return nil, errors.Wrapf(err, "add employee %s", s.Employee.ID)
		}
	}
	registers := memory.NewRegisters(demo.Registers()...)
	lg.Warn("Using in-memory storage, state is lost on restart")

	return &backend{
		catalog:   memory.NewCatalog(demo.Products()...),
		employees: employees,
		customers: memory.NewCustomers(demo.Customers()...),
		registers: registers,
		ledger:    memory.NewLedger(registers),
		rates:     demo.RateTable(),
		reports:   &memory.Reports{},
		close:     func() {},
	}, nil
}

// openIdempotency returns the idempotency store and, for redis, a pinger for
// the readiness probe.
func openIdempotency(ctx context.Context, cfg IdempotencyConfig) (cache.IdempotencyStore, health.Pinger, func(), error) {
	if cfg.Backend != IdempotencyRedis {
		return cache.NewMemoryIdempotencyStore(cfg.Size, cfg.TTL), nil, func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	store := cache.NewRedisIdempotencyStore(client, cfg.KeyPrefix, cfg.TTL)
	if err := store.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, nil, nil, errors.Wrap(err, "ping redis")
	}
	return store, store, func() { _ = client.Close() }, nil
}
