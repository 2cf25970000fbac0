// Package session implements the cashier-session lifecycle of a terminal.
package session

import (
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/oolio-pos/internal/domain/auth"
	"github.com/xenking/oolio-pos/internal/domain/cart"
	"github.com/xenking/oolio-pos/internal/domain/currency"
	"github.com/xenking/oolio-pos/internal/domain/customer"
	"github.com/xenking/oolio-pos/internal/domain/held"
	"github.com/xenking/oolio-pos/internal/domain/payment"
	"github.com/xenking/oolio-pos/internal/domain/reconcile"
)

// State is a step of the terminal lifecycle.
type State string

const (
	StateSelectLocation State = "select_location"
	StateAuthenticate   State = "authenticate"
	StateOpenSession    State = "open_session"
	StateActive         State = "active"
	StateClosed         State = "closed"
)

// Status is the status of a Session. It only moves forward.
type Status string

const (
	StatusActive Status = "active"
	StatusClosed Status = "closed"
)

// Sentinel errors for lifecycle transitions.
var (
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
	ErrLocationRequired  = errors.New("branch and register are required")
	ErrRegisterBranch    = errors.New("register does not belong to branch")
	ErrWrongBranch       = errors.New("employee is not assigned to this branch")
	ErrLockedOut         = errors.New("too many failed login attempts")
	ErrNegativeBalance   = errors.New("amount must not be negative")
	ErrLiveCartNotEmpty  = errors.New("live cart is not empty")
	ErrNoSnapshot        = errors.New("no snapshot")
)

// Session is the bounded period a cashier trades on a register. The
// transaction list is append-only and ordered by commit.
type Session struct {
	ID             string
	BranchID       string
	RegisterID     string
	CashierID      string
	CashierName    string
	Currency       currency.Currency
	OpeningBalance decimal.Decimal
	Status         Status
	OpenedAt       time.Time
	ClosedAt       time.Time
	Transactions   []payment.Transaction
}

// Clone returns a copy that shares no transaction slice with s.
func (s Session) Clone() Session {
	s.Transactions = slices.Clone(s.Transactions)
	return s
}

// Transaction returns the settled transaction with id.
func (s Session) Transaction(id string) (payment.Transaction, bool) {
	for _, tx := range s.Transactions {
		if tx.ID == id {
			return tx, true
		}
	}
	return payment.Transaction{}, false
}

// Shift returns the ledger view used by the Z-report.
func (s Session) Shift() reconcile.Shift {
	return reconcile.Shift{
		SessionID:      s.ID,
		CashierID:      s.CashierID,
		BranchID:       s.BranchID,
		RegisterID:     s.RegisterID,
		Currency:       s.Currency,
		OpeningBalance: s.OpeningBalance,
		OpenedAt:       s.OpenedAt,
		Transactions:   slices.Clone(s.Transactions),
	}
}

// Snapshot is the durable state of a terminal.
type Snapshot struct {
	TerminalID string
	State      State
	BranchID   string
	RegisterID string
	Employee   *auth.Employee
	Session    *Session
	Cart       cart.Cart
	Customer   customer.Account
	Held       []held.Order
	SavedAt    time.Time
}

// Repository stores terminal snapshots. Save replaces the previous snapshot
// atomically; Load returns ErrNoSnapshot when nothing is stored.
type Repository interface {
	Load(ctx context.Context, terminalID string) (*Snapshot, error)
	Save(ctx context.Context, s *Snapshot) error
	Clear(ctx context.Context, terminalID string) error
}

// SessionLedger lists what the external ledger booked for a session, in
// commit order.
type SessionLedger interface {
	SessionTransactions(ctx context.Context, sessionID string) ([]payment.Transaction, error)
}

// ReportSink persists Z-reports of closed sessions.
type ReportSink interface {
	SaveReport(ctx context.Context, r reconcile.Report) error
}
