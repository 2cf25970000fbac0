package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/oolio-pos/internal/domain/payment"
	"github.com/xenking/oolio-pos/internal/domain/reconcile"
)

var _ payment.LedgerService = (*Ledger)(nil)

// Ledger records transactions and applies balance deltas to Registers. Both
// operations are idempotent by transaction id.
type Ledger struct {
	mu        sync.Mutex
	registers *Registers
	txs       []payment.Transaction
	booked    map[string]payment.Transaction
	posted    map[string]bool
}

// NewLedger returns a ledger updating balances in registers.
func NewLedger(registers *Registers) *Ledger {
	return &Ledger{
		registers: registers,
		booked:    make(map[string]payment.Transaction),
		posted:    make(map[string]bool),
	}
}

// CreateTransaction records tx unless its id is already booked. A booked id
// carrying a different payment is rejected.
func (l *Ledger) CreateTransaction(_ context.Context, tx payment.Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if prev, ok := l.booked[tx.ID]; ok {
		if !prev.SameBooking(tx) {
			return errors.Wrapf(payment.ErrTransactionConflict, "transaction %q", tx.ID)
		}
		return nil
	}
	l.booked[tx.ID] = tx
	l.txs = append(l.txs, tx)
	return nil
}

// UpdateRegisterBalance adds delta to the register once per transaction.
func (l *Ledger) UpdateRegisterBalance(_ context.Context, registerID, txID string, delta decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.posted[txID] {
		return nil
	}
	if err := l.registers.add(registerID, delta); err != nil {
		return err
	}
	l.posted[txID] = true
	return nil
}

// Transactions returns booked transactions in commit order.
func (l *Ledger) Transactions() []payment.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.txs)
}

// SessionTransactions returns the booked transactions of a session in
// commit order.
func (l *Ledger) SessionTransactions(_ context.Context, sessionID string) ([]payment.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []payment.Transaction
	for _, tx := range l.txs {
		if tx.SessionID == sessionID {
			out = append(out, tx)
		}
	}
	return out, nil
}

// Reports keeps Z-reports in memory.
type Reports struct {
	mu      sync.Mutex
	reports []reconcile.Report
}

// SaveReport appends r.
func (r *Reports) SaveReport(_ context.Context, rep reconcile.Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, rep)
	return nil
}

// List returns stored reports, oldest first.
func (r *Reports) List() []reconcile.Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.reports)
}
