package cart

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/oolio-pos/internal/domain/currency"
	"github.com/xenking/oolio-pos/internal/domain/poserr"
	"github.com/xenking/oolio-pos/internal/domain/pricing"
	"github.com/xenking/oolio-pos/internal/domain/product"
)

// Sentinel errors for cart mutations.
var (
	ErrSessionNotActive = errors.New("session not active")
	ErrInvalidQuantity  = errors.New("quantity must be greater than 0")
	ErrLineNotFound     = errors.New("line not found")
	ErrUnknownKind      = errors.New("unknown line kind")
	ErrInactiveProduct  = errors.New("product is not sellable")
	ErrQuantityTooLarge = errors.New("quantity exceeds the line maximum")
)

// MaxQuantity is the largest quantity a single line may carry.
const MaxQuantity = 1_000_000

// Gate reports whether the session bound to a Store accepts cart changes.
type Gate interface {
	Active() bool
	StateName() string
}

// Store is the mutable cart of a terminal. Every mutation returns totals
// freshly computed from the resulting lines; no total is ever stored.
//
// Store is not safe for concurrent use; its owner serializes access.
type Store struct {
	base  currency.Currency
	rates currency.RateProvider
	gate  Gate

	lines    []Line
	discount pricing.Discount
}

// NewStore creates an empty Store pricing in base and converting foreign
// prices with rates.
func NewStore(base currency.Currency, rates currency.RateProvider, gate Gate) *Store {
	return &Store{base: base, rates: rates, gate: gate}
}

// Currency returns the currency all line prices are normalized to.
func (s *Store) Currency() currency.Currency { return s.base }

func (s *Store) checkActive(op string) error {
	if s.gate != nil && !s.gate.Active() {
		return &poserr.StateError{Op: op, State: s.gate.StateName(), Err: ErrSessionNotActive}
	}
	return nil
}

// AddLine adds qty units of p. A line with the same product and kind has its
// quantity increased; otherwise a new line is appended. The price is
// converted to the base currency here and never again.
func (s *Store) AddLine(ctx context.Context, p product.Product, kind pricing.Kind, qty int) (pricing.Totals, error) {
	if err := s.checkActive("add line"); err != nil {
		return pricing.Totals{}, err
	}
	if !kind.Valid() {
		return pricing.Totals{}, poserr.Invalid("kind", ErrUnknownKind)
	}
	if qty < 1 {
		return pricing.Totals{}, poserr.Invalid("quantity", ErrInvalidQuantity)
	}
	if qty > MaxQuantity {
		return pricing.Totals{}, poserr.Invalid("quantity", ErrQuantityTooLarge)
	}
	if p.ID == "" {
		return pricing.Totals{}, poserr.Invalid("product", product.ErrNotFound)
	}
	if !p.Active {
		return pricing.Totals{}, poserr.Invalid("product", ErrInactiveProduct)
	}

	key := LineKey{ProductID: p.ID, Kind: kind}
	if i := s.indexOf(key); i >= 0 {
		if s.lines[i].Quantity > MaxQuantity-qty {
			return pricing.Totals{}, poserr.Invalid("quantity", ErrQuantityTooLarge)
		}
		s.lines[i].Quantity += qty
		return s.Totals(), nil
	}

	price, rate, err := currency.Normalize(ctx, s.rates, p.Price, p.Currency, s.base)
	if err != nil {
		if errors.Is(err, currency.ErrUnknownRate) {
			return pricing.Totals{}, poserr.Invalid("currency", err)
		}
		return pricing.Totals{}, poserr.External("normalize price", err)
	}

	s.lines = append(s.lines, Line{
		ProductID:      p.ID,
		Name:           p.Name,
		UnitPrice:      price,
		Quantity:       qty,
		TaxRate:        p.TaxRate,
		Kind:           kind,
		SourcePrice:    p.Price,
		SourceCurrency: p.Currency,
		Rate:           rate,
	})
	return s.Totals(), nil
}

// SetQuantity changes the quantity of a line by delta. The result never drops
// below 1; taking a line off the receipt requires RemoveLine. A result above
// MaxQuantity is rejected.
func (s *Store) SetQuantity(key LineKey, delta int) (pricing.Totals, error) {
	if err := s.checkActive("set quantity"); err != nil {
		return pricing.Totals{}, err
	}
	i := s.indexOf(key)
	if i < 0 {
		return pricing.Totals{}, poserr.Invalid("line", ErrLineNotFound)
	}
	if delta > MaxQuantity-s.lines[i].Quantity {
		return pricing.Totals{}, poserr.Invalid("quantity", ErrQuantityTooLarge)
	}
	// Quantities stay within [1, MaxQuantity], so only a large negative delta
	// can wrap.
	q := 1
	if delta > -s.lines[i].Quantity {
		q = s.lines[i].Quantity + delta
	}
	s.lines[i].Quantity = q
	return s.Totals(), nil
}

// RemoveLine deletes a line, keeping the order of the others.
func (s *Store) RemoveLine(key LineKey) (pricing.Totals, error) {
	if err := s.checkActive("remove line"); err != nil {
		return pricing.Totals{}, err
	}
	i := s.indexOf(key)
	if i < 0 {
		return pricing.Totals{}, poserr.Invalid("line", ErrLineNotFound)
	}
	s.lines = append(s.lines[:i], s.lines[i+1:]...)
	return s.Totals(), nil
}

// SetDiscount replaces the cart discount.
func (s *Store) SetDiscount(d pricing.Discount) (pricing.Totals, error) {
	if err := s.checkActive("set discount"); err != nil {
		return pricing.Totals{}, err
	}
	if err := d.Validate(); err != nil {
		return pricing.Totals{}, poserr.Invalid("discount", err)
	}
	s.discount = d
	return s.Totals(), nil
}

// Clear drops all lines and the discount together.
func (s *Store) Clear() pricing.Totals {
	s.lines = nil
	s.discount = pricing.Discount{}
	return s.Totals()
}

// Totals prices the current contents.
func (s *Store) Totals() pricing.Totals {
	return pricing.ComputeTotals(s.pricingLines(), s.discount, s.base)
}

// Empty reports whether the cart has no lines.
func (s *Store) Empty() bool {
	return len(s.lines) == 0
}

// Lines returns a copy of the lines in receipt order.
func (s *Store) Lines() []Line {
	return s.Snapshot().Lines
}

// Discount returns the current cart discount.
func (s *Store) Discount() pricing.Discount {
	return s.discount
}

// Snapshot returns a deep copy of the contents.
func (s *Store) Snapshot() Cart {
	return Cart{Lines: s.lines, Discount: s.discount}.Clone()
}

// Restore replaces the contents with a deep copy of c.
func (s *Store) Restore(c Cart) {
	cp := c.Clone()
	s.lines = cp.Lines
	s.discount = cp.Discount
}

func (s *Store) indexOf(key LineKey) int {
	for i, l := range s.lines {
		if l.Key() == key {
			return i
		}
	}
	return -1
}

func (s *Store) pricingLines() []pricing.Line {
	return Cart{Lines: s.lines}.PricingLines()
}
