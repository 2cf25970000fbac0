// Package pricing turns cart lines and a discount into receipt totals.
//
// ComputeTotals is pure: the same lines, discount and currency always give the
// same Totals. Nothing in this package caches a total.
package pricing

import (
	"sort"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/oolio-pos/internal/domain/currency"
)

// Kind tells whether a line sells goods or takes them back.
type Kind string

const (
	// KindSale adds the line to the amount due.
	KindSale Kind = "sale"
	// KindReturn subtracts the line from the amount due.
	KindReturn Kind = "return"
)

// Valid reports whether k is a known line kind.
func (k Kind) Valid() bool {
	return k == KindSale || k == KindReturn
}

// Sign returns +1 for sales and -1 for returns.
func (k Kind) Sign() decimal.Decimal {
	if k == KindReturn {
		return minusOne
	}
	return one
}

// DiscountType enumerates the supported cart discount strategies.
type DiscountType string

const (
	// DiscountNone applies no discount.
	DiscountNone DiscountType = ""
	// DiscountAmount subtracts a fixed monetary amount.
	DiscountAmount DiscountType = "amount"
	// DiscountPercent subtracts a percentage of the pre-discount total.
	DiscountPercent DiscountType = "percent"
)

var (
	// ErrNegativeDiscount is returned for discounts below zero.
	ErrNegativeDiscount = errors.New("discount must not be negative")
	// ErrUnknownDiscountType is returned for an unsupported discount type.
	ErrUnknownDiscountType = errors.New("unknown discount type")
)

// Discount is the cart-level discount.
type Discount struct {
	Type  DiscountType
	Value decimal.Decimal
}

// Validate checks the discount type and sign.
func (d Discount) Validate() error {
	switch d.Type {
	case DiscountNone, DiscountAmount, DiscountPercent:
	default:
		return errors.Wrapf(ErrUnknownDiscountType, "%q", d.Type)
	}
	if d.Value.IsNegative() {
		return ErrNegativeDiscount
	}
	return nil
}

// IsZero reports whether the discount has no effect.
func (d Discount) IsZero() bool {
	return d.Type == DiscountNone || d.Value.IsZero()
}

// Line is the pricing view of a cart line. UnitPrice is already in the
// currency passed to ComputeTotals.
type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int
	TaxRate   decimal.Decimal
	Kind      Kind
}

// Gross returns quantity × unit price, unsigned.
func (l Line) Gross() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// TaxLine is the tax accumulated for one rate tier.
type TaxLine struct {
	Rate   decimal.Decimal
	Amount decimal.Decimal
}

// Totals is the result of a pricing run.
type Totals struct {
	Subtotal decimal.Decimal
	// TaxByRate has one entry per distinct rate, ordered by rate.
	TaxByRate      []TaxLine
	TaxTotal       decimal.Decimal
	PreDiscount    decimal.Decimal
	DiscountAmount decimal.Decimal
	GrandTotal     decimal.Decimal
}

// TaxFor returns the tax accumulated for rate, or zero.
func (t Totals) TaxFor(rate decimal.Decimal) decimal.Decimal {
	for _, tl := range t.TaxByRate {
		if tl.Rate.Equal(rate) {
			return tl.Amount
		}
	}
	return zero
}

var (
	hundred  = decimal.NewFromInt(100)
	one      = decimal.NewFromInt(1)
	minusOne = decimal.NewFromInt(-1)
	zero     = decimal.Zero
)

// ComputeTotals prices lines with the cart discount in currency cur.
//
// Tax is accumulated per distinct rate and each bucket is rounded to the
// currency minor unit. The discount is clamped to [0, |pre-discount total|]
// and always moves the total toward zero, so a discount can shrink a refund
// but never turn it into a charge or exceed it.
func ComputeTotals(lines []Line, d Discount, cur currency.Currency) Totals {
	subtotal := zero
	buckets := make(map[string]*TaxLine)

	for _, l := range lines {
		signed := l.Gross().Mul(l.Kind.Sign())
		subtotal = subtotal.Add(signed)

		key := l.TaxRate.String()
		b, ok := buckets[key]
		if !ok {
			b = &TaxLine{Rate: l.TaxRate, Amount: zero}
			buckets[key] = b
		}
		b.Amount = b.Amount.Add(signed.Mul(l.TaxRate).Div(hundred))
	}

	taxes := make([]TaxLine, 0, len(buckets))
	taxTotal := zero
	for _, b := range buckets {
		amount := cur.Round(b.Amount)
		taxes = append(taxes, TaxLine{Rate: b.Rate, Amount: amount})
		taxTotal = taxTotal.Add(amount)
	}
	sort.Slice(taxes, func(i, j int) bool {
		return taxes[i].Rate.LessThan(taxes[j].Rate)
	})

	subtotal = cur.Round(subtotal)
	pre := subtotal.Add(taxTotal)
	discount := discountAmount(d, pre, cur)

	return Totals{
		Subtotal:       subtotal,
		TaxByRate:      taxes,
		TaxTotal:       taxTotal,
		PreDiscount:    pre,
		DiscountAmount: discount,
		GrandTotal:     pre.Sub(discount),
	}
}

// discountAmount returns the signed discount for the pre-discount total.
func discountAmount(d Discount, pre decimal.Decimal, cur currency.Currency) decimal.Decimal {
	if d.IsZero() || pre.IsZero() {
		return zero
	}

	magnitude := pre.Abs()
	var amount decimal.Decimal
	switch d.Type {
	case DiscountAmount:
		amount = d.Value
	case DiscountPercent:
		amount = magnitude.Mul(d.Value).Div(hundred)
	default:
		return zero
	}

	amount = clamp(cur.Round(amount), zero, magnitude)
	if pre.IsNegative() {
		return amount.Neg()
	}
	return amount
}

// clamp bounds v to [lo, hi].
func clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}
