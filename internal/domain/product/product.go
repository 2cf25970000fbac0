package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/oolio-pos/internal/domain/currency"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product is a catalog item as the till sees it: its list price in the
// product's own currency and the tax tier it is sold under.
type Product struct {
	ID       string
	Barcode  string
	Name     string
	Price    decimal.Decimal
	Currency currency.Currency
	// TaxRate is a percentage, e.g. 20 for 20%.
	TaxRate decimal.Decimal
	Active  bool
}

// Catalog defines read operations for the product catalog.
type Catalog interface {
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByBarcode(ctx context.Context, barcode string) (*Product, error)
}
