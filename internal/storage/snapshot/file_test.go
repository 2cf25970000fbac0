package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/oolio-pos/internal/domain/auth"
	"github.com/xenking/oolio-pos/internal/domain/cart"
	"github.com/xenking/oolio-pos/internal/domain/customer"
	"github.com/xenking/oolio-pos/internal/domain/held"
	"github.com/xenking/oolio-pos/internal/domain/payment"
	"github.com/xenking/oolio-pos/internal/domain/pricing"
	"github.com/xenking/oolio-pos/internal/domain/session"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func testSnapshot() *session.Snapshot {
	at := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	c := cart.Cart{
		Lines: []cart.Line{{
			ProductID:      "mug",
			Name:           "Mug",
			UnitPrice:      d("9.50"),
			Quantity:       2,
			TaxRate:        d("20"),
			Kind:           pricing.KindSale,
			SourcePrice:    d("10.00"),
			SourceCurrency: "USD",
			Rate:           d("0.95"),
		}},
		Discount: pricing.Discount{Type: pricing.DiscountPercent, Value: d("5")},
	}
	return &session.Snapshot{
		TerminalID: "till-1",
		State:      session.StateActive,
		BranchID:   "b1",
		RegisterID: "drawer",
		Employee:   &auth.Employee{ID: "e1", Name: "Ann", BranchID: "b1"},
		Session: &session.Session{
			ID:             "s1",
			BranchID:       "b1",
			RegisterID:     "drawer",
			CashierID:      "e1",
			CashierName:    "Ann",
			Currency:       "EUR",
			OpeningBalance: d("100.00"),
			Status:         session.StatusActive,
			OpenedAt:       at,
			Transactions: []payment.Transaction{
				{ID: "tx1", SessionID: "s1", Amount: d("12.00"), Currency: "EUR", Tender: payment.Cash{Tendered: d("20")}, RegisterID: "drawer", Timestamp: at},
				{ID: "tx2", SessionID: "s1", Amount: d("-3.00"), Currency: "EUR", Tender: payment.Card{Brand: "visa", Last4: "4242"}, RegisterID: "drawer", CustomerID: "c1", Timestamp: at},
			},
		},
		Cart:     c,
		Customer: customer.Account{ID: "c1", Name: "Ada"},
		Held:     []held.Order{{ID: "h1", Cart: c, Customer: customer.Account{ID: "c2"}, CreatedAt: at}},
		SavedAt:  at,
	}
}

func TestFileRepository_SaveLoad(t *testing.T) {
	ctx := context.Background()
	repo, err := NewFileRepository(t.TempDir())
	require.NoError(t, err)
	want := testSnapshot()

	require.NoError(t, repo.Save(ctx, want))
	got, err := repo.Load(ctx, "till-1")
	require.NoError(t, err)

	assert.Equal(t, want.State, got.State)
	assert.Equal(t, want.Employee, got.Employee)
	assert.Equal(t, want.Customer, got.Customer)
	require.Len(t, got.Cart.Lines, 1)
	line := got.Cart.Lines[0]
	assert.True(t, d("9.50").Equal(line.UnitPrice))
	assert.Equal(t, 2, line.Quantity)
	assert.Equal(t, pricing.KindSale, line.Kind)
	assert.True(t, d("0.95").Equal(line.Rate))
	assert.Equal(t, pricing.DiscountPercent, got.Cart.Discount.Type)

	require.NotNil(t, got.Session)
	require.Len(t, got.Session.Transactions, 2)
	assert.Equal(t, "tx1", got.Session.Transactions[0].ID)
	cash, ok := got.Session.Transactions[0].Tender.(payment.Cash)
	require.True(t, ok)
	assert.True(t, d("20").Equal(cash.Tendered))
	assert.Equal(t, payment.KindCard, got.Session.Transactions[1].Tender.Kind())
	assert.True(t, d("-3.00").Equal(got.Session.Transactions[1].Amount))
	assert.True(t, want.Session.OpenedAt.Equal(got.Session.OpenedAt))

	require.Len(t, got.Held, 1)
	assert.Equal(t, "h1", got.Held[0].ID)
	assert.Equal(t, 2, got.Held[0].Cart.Lines[0].Quantity)
}

func TestFileRepository_SaveReplacesAndLeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo, err := NewFileRepository(dir)
	require.NoError(t, err)

	s := testSnapshot()
	require.NoError(t, repo.Save(ctx, s))
	s.State = session.StateClosed
	require.NoError(t, repo.Save(ctx, s))

	got, err := repo.Load(ctx, "till-1")
	require.NoError(t, err)
	assert.Equal(t, session.StateClosed, got.State)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "till-1"+fileSuffix, entries[0].Name())
}

func TestFileRepository_LoadMissing(t *testing.T) {
	repo, err := NewFileRepository(t.TempDir())
	require.NoError(t, err)

	_, err = repo.Load(context.Background(), "nope")
	require.ErrorIs(t, err, session.ErrNoSnapshot)
}

func TestFileRepository_LoadCorrupt(t *testing.T) {
	dir := t.TempDir()
	repo, err := NewFileRepository(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad"+fileSuffix), []byte("not gzip"), 0o600))

	_, err = repo.Load(context.Background(), "bad")
	require.Error(t, err)
	assert.NotErrorIs(t, err, session.ErrNoSnapshot)
}

func TestFileRepository_Clear(t *testing.T) {
	ctx := context.Background()
	repo, err := NewFileRepository(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, testSnapshot()))

	require.NoError(t, repo.Clear(ctx, "till-1"))
	require.NoError(t, repo.Clear(ctx, "till-1"))

	_, err = repo.Load(ctx, "till-1")
	require.ErrorIs(t, err, session.ErrNoSnapshot)
}
