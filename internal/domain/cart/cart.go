// Package cart holds the live line-item collection of a terminal.
package cart

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/oolio-pos/internal/domain/currency"
	"github.com/xenking/oolio-pos/internal/domain/pricing"
)

// Line is a receipt line. UnitPrice is in the session base currency and is
// fixed when the line is created; SourcePrice, SourceCurrency and Rate record
// how it was derived.
type Line struct {
	ProductID string
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
	TaxRate   decimal.Decimal
	Kind      pricing.Kind

	SourcePrice    decimal.Decimal
	SourceCurrency currency.Currency
	Rate           decimal.Decimal
}

// Key identifies the line a product of a given kind merges into.
func (l Line) Key() LineKey {
	return LineKey{ProductID: l.ProductID, Kind: l.Kind}
}

// LineKey identifies a cart line.
type LineKey struct {
	ProductID string
	Kind      pricing.Kind
}

// Cart is a value copy of cart contents. Lines are in receipt order.
type Cart struct {
	Lines    []Line
	Discount pricing.Discount
}

// Clone returns a deep copy that shares no backing array with c.
func (c Cart) Clone() Cart {
	out := Cart{Discount: c.Discount}
	if c.Lines != nil {
		out.Lines = make([]Line, len(c.Lines))
		copy(out.Lines, c.Lines)
	}
	return out
}

// IsEmpty reports whether the cart has no lines.
func (c Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

// PricingLines converts the cart lines to pricing input.
func (c Cart) PricingLines() []pricing.Line {
	out := make([]pricing.Line, len(c.Lines))
	for i, l := range c.Lines {
		out[i] = pricing.Line{
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
			TaxRate:   l.TaxRate,
			Kind:      l.Kind,
		}
	}
	return out
}

// Totals prices the cart in the given currency.
func (c Cart) Totals(cur currency.Currency) pricing.Totals {
	return pricing.ComputeTotals(c.PricingLines(), c.Discount, cur)
}
