package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/oolio-pos/internal/domain/currency"
	"github.com/xenking/oolio-pos/internal/domain/payment"
)

const (
	insertTransactionSQL = `INSERT INTO transactions
		(id, session_id, register_id, customer_id, amount, currency, tender_kind, tender, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`

	insertPostingSQL = `INSERT INTO register_postings (transaction_id, register_id, amount)
		VALUES ($1, $2, $3)
		ON CONFLICT (transaction_id) DO NOTHING`

	applyPostingSQL = `UPDATE registers SET balance = balance + $2 WHERE id = $1`

	getTransactionSQL = `SELECT id, session_id, register_id, customer_id, amount, currency, tender, created_at
		FROM transactions WHERE id = $1`

	listSessionTransactionsSQL = `SELECT id, session_id, register_id, customer_id, amount, currency, tender, created_at
		FROM transactions WHERE session_id = $1 ORDER BY created_at, id`
)

var _ payment.LedgerService = (*LedgerRepository)(nil)

// LedgerRepository books settled transactions. Both writes are idempotent by
// transaction id, so a retry after a timeout cannot double-book.
type LedgerRepository struct {
	pool *pgxpool.Pool
}

// NewLedgerRepository returns a LedgerRepository that uses the given pool.
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

// CreateTransaction inserts tx unless its id already exists. An existing row
// for a different payment fails with payment.ErrTransactionConflict.
func (r *LedgerRepository) CreateTransaction(ctx context.Context, tx payment.Transaction) error {
	tender, err := json.Marshal(payment.RecordOf(tx.Tender))
	if err != nil {
		return fmt.Errorf("marshaling tender: %w", err)
	}
	tag, err := r.pool.Exec(ctx, insertTransactionSQL,
		tx.ID, tx.SessionID, tx.RegisterID, tx.CustomerID, tx.Amount, string(tx.Currency),
		string(tx.Tender.Kind()), tender, tx.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("creating transaction %q: %w", tx.ID, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	rows, err := r.pool.Query(ctx, getTransactionSQL, tx.ID)
	if err != nil {
		return fmt.Errorf("reading booked transaction %q: %w", tx.ID, err)
	}
	booked, err := pgx.CollectExactlyOneRow(rows, scanTransaction)
	if err != nil {
		return fmt.Errorf("reading booked transaction %q: %w", tx.ID, err)
	}
	if !booked.SameBooking(tx) {
		return fmt.Errorf("transaction %q: %w", tx.ID, payment.ErrTransactionConflict)
	}
	return nil
}

// UpdateRegisterBalance records a posting for txID and applies delta to the
// register in the same database transaction. A repeated posting is a no-op.
func (r *LedgerRepository) UpdateRegisterBalance(ctx context.Context, registerID, txID string, delta decimal.Decimal) error {
	err := pgx.BeginFunc(ctx, r.pool, func(dbtx pgx.Tx) error {
		tag, err := dbtx.Exec(ctx, insertPostingSQL, txID, registerID, delta)
		if err != nil {
			return fmt.Errorf("inserting posting: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		tag, err = dbtx.Exec(ctx, applyPostingSQL, registerID, delta)
		if err != nil {
			return fmt.Errorf("applying posting: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return payment.ErrRegisterNotFound
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("updating balance of register %q: %w", registerID, err)
	}
	return nil
}

// SessionTransactions returns the booked transactions of a session in
// commit order.
func (r *LedgerRepository) SessionTransactions(ctx context.Context, sessionID string) ([]payment.Transaction, error) {
	rows, err := r.pool.Query(ctx, listSessionTransactionsSQL, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing transactions of session %q: %w", sessionID, err)
	}
	return pgx.CollectRows(rows, scanTransaction)
}

func scanTransaction(row pgx.CollectableRow) (payment.Transaction, error) {
	var (
		tx      payment.Transaction
		cur     string
		raw     []byte
		created time.Time
	)
	if err := row.Scan(&tx.ID, &tx.SessionID, &tx.RegisterID, &tx.CustomerID, &tx.Amount, &cur, &raw, &created); err != nil {
		return tx, err
	}
	var rec payment.TenderRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return tx, fmt.Errorf("decoding tender of %q: %w", tx.ID, err)
	}
	tender, err := rec.Tender()
	if err != nil {
		return tx, err
	}
	tx.Tender = tender
	tx.Currency = currency.Currency(cur)
	tx.Timestamp = created.UTC()
	return tx, nil
}
