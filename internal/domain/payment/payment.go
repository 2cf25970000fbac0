// Package payment commits priced carts to the ledger.
package payment

import (
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/oolio-pos/internal/domain/currency"
)

// ErrRegisterNotFound is returned when a register id is unknown.
var ErrRegisterNotFound = errors.New("register not found")

// ErrTransactionConflict is returned by a ledger when a transaction id is
// already booked for a different payment.
var ErrTransactionConflict = errors.New("transaction id already booked for a different payment")

// Transaction is a settled, immutable ledger entry. Amount is positive for
// income and negative for refunds and payouts.
type Transaction struct {
	ID         string
	SessionID  string
	Amount     decimal.Decimal
	Currency   currency.Currency
	Tender     Tender
	RegisterID string
	CustomerID string
	Timestamp  time.Time
}

// SameBooking reports whether o books the same payment as t: same session,
// register, currency, amount and tender kind. Timestamps and tender details
// such as card digits are not compared.
func (t Transaction) SameBooking(o Transaction) bool {
	return t.SessionID == o.SessionID &&
		t.RegisterID == o.RegisterID &&
		t.Currency == o.Currency &&
		t.Amount.Equal(o.Amount) &&
		kindOf(t.Tender) == kindOf(o.Tender)
}

func kindOf(t Tender) TenderKind {
	if t == nil {
		return ""
	}
	return t.Kind()
}

// Register is a ledger register (cash drawer, card clearing account, bank
// account, wallet) that settlements are booked against.
type Register struct {
	ID       string
	BranchID string
	Name     string
	Currency currency.Currency
	// Tenders lists accepted tender kinds. Empty accepts every kind.
	Tenders []TenderKind
	Balance decimal.Decimal
}

// Accepts reports whether the register takes the tender kind.
func (r Register) Accepts(kind TenderKind) bool {
	return len(r.Tenders) == 0 || slices.Contains(r.Tenders, kind)
}

// RegisterDirectory looks registers up by id.
type RegisterDirectory interface {
	Register(ctx context.Context, id string) (*Register, error)
}

// LedgerService is the external ledger. Both calls are idempotent by
// transaction id so a retry after a timeout never books twice. Creating a
// known id for a different payment fails with ErrTransactionConflict.
type LedgerService interface {
	CreateTransaction(ctx context.Context, tx Transaction) error
	UpdateRegisterBalance(ctx context.Context, registerID, txID string, delta decimal.Decimal) error
}
