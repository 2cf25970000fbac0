package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/oolio-pos/internal/domain/currency"
	"github.com/xenking/oolio-pos/internal/domain/payment"
	"github.com/xenking/oolio-pos/internal/domain/reconcile"
	"github.com/xenking/oolio-pos/internal/domain/session"
)

// ErrReportNotFound is returned when no Z-report exists for a session.
var ErrReportNotFound = errors.New("report not found")

const (
	insertReportSQL = `INSERT INTO z_reports
		(session_id, cashier_id, branch_id, register_id, currency, opening_balance, counted,
		 expected_cash, variance, sales, refunds, tx_count, by_tender, opened_at, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (session_id) DO NOTHING`

	getReportSQL = `SELECT session_id, cashier_id, branch_id, register_id, currency, opening_balance, counted,
		expected_cash, variance, sales, refunds, tx_count, by_tender, opened_at, closed_at
		FROM z_reports WHERE session_id = $1`
)

var _ session.ReportSink = (*ReportRepository)(nil)

type tenderSummaryRow struct {
	Kind  string          `json:"kind"`
	Count int             `json:"count"`
	Total decimal.Decimal `json:"total"`
}

// ReportRepository stores Z-reports. A report is written once per session.
type ReportRepository struct {
	pool *pgxpool.Pool
}

// NewReportRepository returns a ReportRepository that uses the given pool.
func NewReportRepository(pool *pgxpool.Pool) *ReportRepository {
	return &ReportRepository{pool: pool}
}

// SaveReport inserts rep. Saving the same session twice keeps the first.
func (r *ReportRepository) SaveReport(ctx context.Context, rep reconcile.Report) error {
	rows := make([]tenderSummaryRow, len(rep.ByTender))
	for i, s := range rep.ByTender {
		rows[i] = tenderSummaryRow{Kind: string(s.Kind), Count: s.Count, Total: s.Total}
	}
	byTender, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("marshaling tender summary: %w", err)
	}
	_, err = r.pool.Exec(ctx, insertReportSQL,
		rep.SessionID, rep.CashierID, rep.BranchID, rep.RegisterID, string(rep.Currency),
		rep.OpeningBalance, rep.Counted, rep.ExpectedCash, rep.Variance, rep.Sales, rep.Refunds,
		rep.TxCount, byTender, rep.OpenedAt, rep.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("saving report of session %q: %w", rep.SessionID, err)
	}
	return nil
}

// Get returns the report of a session.
func (r *ReportRepository) Get(ctx context.Context, sessionID string) (*reconcile.Report, error) {
	var (
		rep   reconcile.Report
		cur   string
		raw   []byte
		count int32
	)
	err := r.pool.QueryRow(ctx, getReportSQL, sessionID).Scan(
		&rep.SessionID, &rep.CashierID, &rep.BranchID, &rep.RegisterID, &cur,
		&rep.OpeningBalance, &rep.Counted, &rep.ExpectedCash, &rep.Variance, &rep.Sales, &rep.Refunds,
		&count, &raw, &rep.OpenedAt, &rep.ClosedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReportNotFound
		}
		return nil, fmt.Errorf("getting report of session %q: %w", sessionID, err)
	}
	var rows []tenderSummaryRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decoding tender summary: %w", err)
	}
	for _, s := range rows {
		rep.ByTender = append(rep.ByTender, reconcile.TenderSummary{Kind: payment.TenderKind(s.Kind), Count: s.Count, Total: s.Total})
	}
	rep.Currency = currency.Currency(cur)
	rep.TxCount = int(count)
	return &rep, nil
}
