// Package currency holds currency codes, minor-unit rounding and the
// exchange-rate capability used when prices enter a cart.
package currency

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Currency is an ISO 4217 code.
type Currency string

// ErrUnknownRate is returned by a RateProvider that has no rate for a pair.
var ErrUnknownRate = errors.New("exchange rate not available")

// minorUnits lists currencies whose minor unit is not two decimal places.
var minorUnits = map[Currency]int32{
	"JPY": 0,
	"KRW": 0,
	"CLP": 0,
	"ISK": 0,
	"BHD": 3,
	"KWD": 3,
	"OMR": 3,
	"TND": 3,
}

// Parse normalizes a currency code. It rejects codes that are not three letters.
func Parse(code string) (Currency, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 3 {
		return "", errors.Errorf("invalid currency code %q", code)
	}
	for i := range len(code) {
		if code[i] < 'A' || code[i] > 'Z' {
			return "", errors.Errorf("invalid currency code %q", code)
		}
	}
	return Currency(code), nil
}

// MinorUnits returns the number of decimal places of the currency's minor unit.
func (c Currency) MinorUnits() int32 {
	if n, ok := minorUnits[c]; ok {
		return n
	}
	return 2
}

// Round rounds an amount half-up (away from zero) to the currency minor unit.
func (c Currency) Round(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(c.MinorUnits())
}

// Format renders an amount with exactly the minor-unit number of decimals.
func (c Currency) Format(amount decimal.Decimal) string {
	return amount.StringFixed(c.MinorUnits())
}

func (c Currency) String() string { return string(c) }

// RateProvider returns the multiplier converting an amount in from into to.
type RateProvider interface {
	Rate(ctx context.Context, from, to Currency) (decimal.Decimal, error)
}

// Normalize converts price from its own currency into base using rates and
// rounds to the base minor unit. Same-currency prices are only rounded.
// It returns the converted price and the rate that was applied.
func Normalize(ctx context.Context, rates RateProvider, price decimal.Decimal, from, base Currency) (decimal.Decimal, decimal.Decimal, error) {
	if from == "" || from == base {
		return base.Round(price), decimal.NewFromInt(1), nil
	}
	if rates == nil {
		return decimal.Zero, decimal.Zero, errors.Wrapf(ErrUnknownRate, "%s->%s", from, base)
	}
	rate, err := rates.Rate(ctx, from, base)
	if err != nil {
		return decimal.Zero, decimal.Zero, errors.Wrapf(err, "rate %s->%s", from, base)
	}
	if !rate.IsPositive() {
		return decimal.Zero, decimal.Zero, errors.Errorf("non-positive rate %s for %s->%s", rate, from, base)
	}
	return base.Round(price.Mul(rate)), rate, nil
}

// Table is a fixed set of rates keyed by "FROM/TO". It is meant for tests and
// for terminals configured with a static rate sheet.
type Table map[string]decimal.Decimal

var _ RateProvider = Table(nil)

// Rate implements RateProvider. An inverse entry is used when the direct pair is missing.
func (t Table) Rate(_ context.Context, from, to Currency) (decimal.Decimal, error) {
	if r, ok := t[string(from)+"/"+string(to)]; ok {
		return r, nil
	}
	if r, ok := t[string(to)+"/"+string(from)]; ok && !r.IsZero() {
		return decimal.NewFromInt(1).DivRound(r, 12), nil
	}
	return decimal.Zero, ErrUnknownRate
}
