package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/oolio-pos/internal/domain/currency"
)

const (
	getRateSQL = `SELECT rate FROM exchange_rates WHERE base_currency = $1 AND quote_currency = $2`

	upsertRateSQL = `INSERT INTO exchange_rates (base_currency, quote_currency, rate)
		VALUES ($1, $2, $3)
		ON CONFLICT (base_currency, quote_currency) DO UPDATE SET rate = EXCLUDED.rate, updated_at = NOW()`
)

var _ currency.RateProvider = (*RateRepository)(nil)

// RateRepository reads conversion rates. A missing direct pair falls back to
// the inverse of the reverse pair.
type RateRepository struct {
	pool *pgxpool.Pool
}

// NewRateRepository returns a RateRepository that uses the given pool.
func NewRateRepository(pool *pgxpool.Pool) *RateRepository {
	return &RateRepository{pool: pool}
}

// Rate returns the multiplier converting from into to.
func (r *RateRepository) Rate(ctx context.Context, from, to currency.Currency) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	rate, err := r.lookup(ctx, from, to)
	if err == nil {
		return rate, nil
	}
	if !errors.Is(err, currency.ErrUnknownRate) {
		return decimal.Zero, err
	}
	inverse, err := r.lookup(ctx, to, from)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromInt(1).DivRound(inverse, 12), nil
}

func (r *RateRepository) lookup(ctx context.Context, from, to currency.Currency) (decimal.Decimal, error) {
	var rate decimal.Decimal
	err := r.pool.QueryRow(ctx, getRateSQL, string(from), string(to)).Scan(&rate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, errors.Wrapf(currency.ErrUnknownRate, "%s/%s", from, to)
		}
		return decimal.Zero, fmt.Errorf("getting rate %s/%s: %w", from, to, err)
	}
	return rate, nil
}

// Upsert stores a rate.
func (r *RateRepository) Upsert(ctx context.Context, from, to currency.Currency, rate decimal.Decimal) error {
	if _, err := r.pool.Exec(ctx, upsertRateSQL, string(from), string(to), rate); err != nil {
		return fmt.Errorf("upserting rate %s/%s: %w", from, to, err)
	}
	return nil
}
