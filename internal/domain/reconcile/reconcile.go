// Package reconcile builds the end-of-shift Z-report.
package reconcile

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/oolio-pos/internal/domain/currency"
	"github.com/xenking/oolio-pos/internal/domain/payment"
)

// Shift is the ledger view of a session that a report is computed from.
type Shift struct {
	SessionID      string
	CashierID      string
	BranchID       string
	RegisterID     string
	Currency       currency.Currency
	OpeningBalance decimal.Decimal
	OpenedAt       time.Time
	Transactions   []payment.Transaction
}

// TenderSummary aggregates the transactions of one tender kind.
type TenderSummary struct {
	Kind  payment.TenderKind
	Count int
	Total decimal.Decimal
}

// Report is the Z-report of a closed session. Variance is informational;
// a non-zero value never blocks closure.
type Report struct {
	SessionID      string
	CashierID      string
	BranchID       string
	RegisterID     string
	Currency       currency.Currency
	OpeningBalance decimal.Decimal
	Counted        decimal.Decimal
	ExpectedCash   decimal.Decimal
	Variance       decimal.Decimal
	Sales          decimal.Decimal
	Refunds        decimal.Decimal
	ByTender       []TenderSummary
	TxCount        int
	OpenedAt       time.Time
	ClosedAt       time.Time
}

// Balanced reports whether the counted cash matches the expectation.
func (r Report) Balanced() bool { return r.Variance.IsZero() }

// Tender returns the summary for kind.
func (r Report) Tender(kind payment.TenderKind) TenderSummary {
	for _, s := range r.ByTender {
		if s.Kind == kind {
			return s
		}
	}
	return TenderSummary{Kind: kind, Total: decimal.Zero}
}

// Compute derives the report. Expected cash is the opening balance plus the
// signed cash amounts; every tender kind appears in ByTender in fixed order,
// including kinds with no transactions.
func Compute(s Shift, counted decimal.Decimal, closedAt time.Time) Report {
	byKind := make(map[payment.TenderKind]*TenderSummary, len(payment.TenderKinds))
	summaries := make([]TenderSummary, len(payment.TenderKinds))
	for i, k := range payment.TenderKinds {
		summaries[i] = TenderSummary{Kind: k, Total: decimal.Zero}
		byKind[k] = &summaries[i]
	}

	sales, refunds := decimal.Zero, decimal.Zero
	for _, tx := range s.Transactions {
		sum := byKind[tx.Tender.Kind()]
		sum.Count++
		sum.Total = sum.Total.Add(tx.Amount)
		if tx.Amount.IsNegative() {
			refunds = refunds.Add(tx.Amount)
		} else {
			sales = sales.Add(tx.Amount)
		}
	}

	expected := s.OpeningBalance.Add(byKind[payment.KindCash].Total)
	return Report{
		SessionID:      s.SessionID,
		CashierID:      s.CashierID,
		BranchID:       s.BranchID,
		RegisterID:     s.RegisterID,
		Currency:       s.Currency,
		OpeningBalance: s.OpeningBalance,
		Counted:        counted,
		ExpectedCash:   expected,
		Variance:       counted.Sub(expected),
		Sales:          sales,
		Refunds:        refunds,
		ByTender:       summaries,
		TxCount:        len(s.Transactions),
		OpenedAt:       s.OpenedAt,
		ClosedAt:       closedAt,
	}
}
