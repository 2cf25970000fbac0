package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/xenking/oolio-pos/internal/demo"
	"github.com/xenking/oolio-pos/internal/domain/currency"
	"github.com/xenking/oolio-pos/internal/domain/customer"
	"github.com/xenking/oolio-pos/internal/domain/product"
	"github.com/xenking/oolio-pos/internal/storage/postgres"
)

type productJSON struct {
	ID       string          `json:"id"`
	Barcode  string          `json:"barcode"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
	TaxRate  decimal.Decimal `json:"tax_rate"`
}

func main() {
	var (
		databaseURL  string
		productsFile string
		pinCost      int
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "", "path to products JSON file (demo catalog when empty)")
	flag.IntVar(&pinCost, "pin-cost", bcrypt.DefaultCost, "bcrypt cost for employee PINs")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, pinCost); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile string, pinCost int) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, pool, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedEmployees(ctx, pool, pinCost); err != nil {
		return errors.Wrap(err, "seed employees")
	}
	if err := seedCustomers(ctx, pool); err != nil {
		return errors.Wrap(err, "seed customers")
	}
	if err := seedRegisters(ctx, pool); err != nil {
		return errors.Wrap(err, "seed registers")
	}
	if err := seedRates(ctx, pool); err != nil {
		return errors.Wrap(err, "seed rates")
	}
	return nil
}

func loadProducts(productsFile string) ([]product.Product, error) {
	if productsFile == "" {
		return demo.Products(), nil
	}

	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return nil, errors.Wrap(err, "read products file")
	}

	var raw []productJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "parse products JSON")
	}

	products := make([]product.Product, 0, len(raw))
	for _, p := range raw {
		cur, err := currency.Parse(p.Currency)
		if err != nil {
			return nil, errors.Wrapf(err, "product %s", p.ID)
		}
		products = append(products, product.Product{
			ID:       p.ID,
			Barcode:  p.Barcode,
			Name:     p.Name,
			Price:    p.Price,
			Currency: cur,
			TaxRate:  p.TaxRate,
			Active:   true,
		})
	}
	return products, nil
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool, productsFile string) error {
	products, err := loadProducts(productsFile)
	if err != nil {
		return err
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	return postgres.NewCatalogRepository(pool).Upsert(ctx, products)
}

func seedEmployees(ctx context.Context, pool *pgxpool.Pool, cost int) error {
	repo := postgres.NewEmployeeRepository(pool)
	for _, s := range demo.Employees() {
		hash, err := bcrypt.GenerateFromPassword([]byte(s.PIN), cost)
		if err != nil {
			return errors.Wrapf(err, "hash pin for %s", s.Employee.ID)
		}
		if err := repo.Upsert(ctx, s.Employee, hash); err != nil {
			return err
		}

		slog.Info("upserted employee", slog.String("id", s.Employee.ID), slog.String("name", s.Employee.Name))
	}
	return nil
}

func seedCustomers(ctx context.Context, pool *pgxpool.Pool) error {
	repo := postgres.NewCustomerRepository(pool)
	for _, a := range demo.Customers() {
		_, err := repo.Find(ctx, a.ID)
		switch {
		case err == nil:
			continue
		case !errors.Is(err, customer.ErrNotFound):
			return err
		}
		if _, err := repo.Create(ctx, a); err != nil {
			return err
		}

		slog.Info("created customer", slog.String("id", a.ID), slog.String("name", a.Name))
	}
	return nil
}

func seedRegisters(ctx context.Context, pool *pgxpool.Pool) error {
	repo := postgres.NewRegisterRepository(pool)
	for _, reg := range demo.Registers() {
		if err := repo.Upsert(ctx, reg); err != nil {
			return err
		}

		slog.Info("upserted register", slog.String("id", reg.ID), slog.String("currency", string(reg.Currency)))
	}
	return nil
}

func seedRates(ctx context.Context, pool *pgxpool.Pool) error {
	repo := postgres.NewRateRepository(pool)
	for _, r := range demo.Rates() {
		if err := repo.Upsert(ctx, r.From, r.To, r.Rate); err != nil {
			return err
		}

		slog.Info("upserted rate", slog.String("pair", string(r.From)+"/"+string(r.To)), slog.String("rate", r.Rate.String()))
	}
	return nil
}
