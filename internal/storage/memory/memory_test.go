package memory

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/xenking/oolio-pos/internal/domain/auth"
	"github.com/xenking/oolio-pos/internal/domain/customer"
	"github.com/xenking/oolio-pos/internal/domain/payment"
	"github.com/xenking/oolio-pos/internal/domain/product"
)

func TestCatalog_Lookups(t *testing.T) {
	ctx := context.Background()
	c := NewCatalog(product.Product{ID: "p1", Barcode: "111", Name: "Tea"})

	p, err := c.GetByBarcode(ctx, "111")
	require.NoError(t, err)
	assert.Equal(t, "p1", p.ID)

	c.Put(product.Product{ID: "p1", Barcode: "222", Name: "Tea"})
	_, err = c.GetByBarcode(ctx, "111")
	require.ErrorIs(t, err, product.ErrNotFound)
	_, err = c.GetByID(ctx, "p2")
	require.ErrorIs(t, err, product.ErrNotFound)
}

func TestEmployees_Verify(t *testing.T) {
	ctx := context.Background()
	e := NewEmployees(bcrypt.MinCost)
	require.NoError(t, e.Add(auth.Employee{ID: "e1", Name: "Ann", BranchID: "b1"}, "1234"))

	emp, err := e.Verify(ctx, "e1", "1234")
	require.NoError(t, err)
	assert.Equal(t, "Ann", emp.Name)

	_, err = e.Verify(ctx, "e1", "9999")
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)
	_, err = e.Verify(ctx, "nobody", "1234")
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestCustomers_CreateAssignsID(t *testing.T) {
	ctx := context.Background()
	c := NewCustomers()

	a, err := c.Create(ctx, customer.Account{Name: "Ada"})
	require.NoError(t, err)
	require.NotEmpty(t, a.ID)

	got, err := c.Find(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.Name)

	_, err = c.Create(ctx, customer.Account{})
	require.Error(t, err)
}

func TestLedger_IdempotentByTransactionID(t *testing.T) {
	ctx := context.Background()
	regs := NewRegisters(payment.Register{ID: "drawer", Currency: "EUR"})
	l := NewLedger(regs)
	tx := payment.Transaction{ID: "tx-1", Amount: decimal.NewFromInt(10), Tender: payment.Cash{}, RegisterID: "drawer"}

	for range 3 {
		require.NoError(t, l.CreateTransaction(ctx, tx))
		require.NoError(t, l.UpdateRegisterBalance(ctx, "drawer", tx.ID, tx.Amount))
	}

	assert.Len(t, l.Transactions(), 1)
	reg, err := regs.Register(ctx, "drawer")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(10).Equal(reg.Balance))

	err = l.UpdateRegisterBalance(ctx, "ghost", "tx-2", decimal.NewFromInt(1))
	require.ErrorIs(t, err, payment.ErrRegisterNotFound)
}

func TestLedger_ReusedIDForDifferentPaymentConflicts(t *testing.T) {
	ctx := context.Background()
	regs := NewRegisters(payment.Register{ID: "drawer", Currency: "EUR"})
	l := NewLedger(regs)
	first := payment.Transaction{ID: "T1", SessionID: "s1", Amount: decimal.NewFromInt(150), Currency: "EUR", Tender: payment.Cash{}, RegisterID: "drawer"}
	require.NoError(t, l.CreateTransaction(ctx, first))

	tests := []struct {
		name string
		edit func(*payment.Transaction)
	}{
		{name: "other session", edit: func(tx *payment.Transaction) { tx.SessionID = "s2" }},
		{name: "other amount", edit: func(tx *payment.Transaction) { tx.Amount = decimal.NewFromInt(360) }},
		{name: "other register", edit: func(tx *payment.Transaction) { tx.RegisterID = "till" }},
		{name: "other tender", edit: func(tx *payment.Transaction) { tx.Tender = payment.Card{Brand: "visa", Last4: "4242"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := first
			tt.edit(&tx)
			require.ErrorIs(t, l.CreateTransaction(ctx, tx), payment.ErrTransactionConflict)
		})
	}

	retry := first
	retry.Timestamp = retry.Timestamp.Add(1)
	require.NoError(t, l.CreateTransaction(ctx, retry))
	assert.Len(t, l.Transactions(), 1)
}

func TestLedger_SessionTransactions(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(NewRegisters())
	for _, tx := range []payment.Transaction{
		{ID: "a", SessionID: "s1", Tender: payment.Cash{}},
		{ID: "b", SessionID: "s2", Tender: payment.Cash{}},
		{ID: "c", SessionID: "s1", Tender: payment.Cash{}},
	} {
		require.NoError(t, l.CreateTransaction(ctx, tx))
	}

	txs, err := l.SessionTransactions(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "a", txs[0].ID)
	assert.Equal(t, "c", txs[1].ID)
}
