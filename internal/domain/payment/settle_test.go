package payment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/oolio-pos/internal/domain/cart"
	"github.com/xenking/oolio-pos/internal/domain/poserr"
	"github.com/xenking/oolio-pos/internal/domain/pricing"
)

// --- Mock implementations ---

type mockLedger struct {
	mu        sync.Mutex
	txs       []Transaction
	seen      map[string]bool
	balances  map[string]decimal.Decimal
	createErr error
	updateErr error
	block     bool
}

func newMockLedger() *mockLedger {
	return &mockLedger{seen: map[string]bool{}, balances: map[string]decimal.Decimal{}}
}

func (m *mockLedger) CreateTransaction(ctx context.Context, tx Transaction) error {
	if m.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen[tx.ID] {
		return nil
	}
	m.seen[tx.ID] = true
	m.txs = append(m.txs, tx)
	return nil
}

func (m *mockLedger) UpdateRegisterBalance(_ context.Context, registerID, txID string, delta decimal.Decimal) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := registerID + "/" + txID
	if m.seen[key] {
		return nil
	}
	m.seen[key] = true
	m.balances[registerID] = m.balances[registerID].Add(delta)
	return nil
}

type mockRegisters struct {
	byID map[string]*Register
	err  error
}

func (m *mockRegisters) Register(_ context.Context, id string) (*Register, error) {
	if m.err != nil {
		return nil, m.err
	}
	r, ok := m.byID[id]
	if !ok {
		return nil, ErrRegisterNotFound
	}
	return r, nil
}

// --- Helpers ---

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func newRegisters(regs ...Register) *mockRegisters {
	byID := make(map[string]*Register, len(regs))
	for i := range regs {
		byID[regs[i].ID] = &regs[i]
	}
	return &mockRegisters{byID: byID}
}

func saleCart(price string, qty int) cart.Cart {
	return cart.Cart{Lines: []cart.Line{{
		ProductID: "p1",
		UnitPrice: d(price),
		Quantity:  qty,
		TaxRate:   decimal.Zero,
		Kind:      pricing.KindSale,
	}}}
}

func validRequest() Request {
	return Request{
		TransactionID: "tx-1",
		SessionID:     "s-1",
		SessionActive: true,
		SessionState:  "active",
		Currency:      "EUR",
		Cart:          saleCart("10.00", 2),
		Tender:        Cash{},
		RegisterID:    "drawer",
	}
}

func newTestSettler(t *testing.T, ledger *mockLedger, regs *mockRegisters, opts ...Option) *Settler {
	t.Helper()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	opts = append([]Option{WithClock(func() time.Time { return now })}, opts...)
	s, err := NewSettler(ledger, regs, opts...)
	require.NoError(t, err)
	return s
}

// --- Tests ---

func TestSettle_Success(t *testing.T) {
	ledger := newMockLedger()
	s := newTestSettler(t, ledger, newRegisters(Register{ID: "drawer", Currency: "EUR"}))

	res, err := s.Settle(context.Background(), validRequest())
	require.NoError(t, err)

	assert.Equal(t, "tx-1", res.Transaction.ID)
	assert.True(t, d("20.00").Equal(res.Transaction.Amount))
	assert.Equal(t, KindCash, res.Transaction.Tender.Kind())
	assert.Equal(t, "drawer", res.Transaction.RegisterID)
	assert.True(t, res.Change.IsZero())
	require.Len(t, ledger.txs, 1)
	assert.True(t, d("20.00").Equal(ledger.balances["drawer"]))
}

func TestSettle_GeneratesIDWhenMissing(t *testing.T) {
	ledger := newMockLedger()
	s := newTestSettler(t, ledger, newRegisters(Register{ID: "drawer", Currency: "EUR"}),
		WithIDGenerator(func() string { return "generated" }))
	req := validRequest()
	req.TransactionID = ""

	res, err := s.Settle(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "generated", res.Transaction.ID)
}

func TestSettle_Preconditions(t *testing.T) {
	regs := newRegisters(
		Register{ID: "drawer", Currency: "EUR", Tenders: []TenderKind{KindCash}},
		Register{ID: "usd", Currency: "USD"},
	)

	tests := []struct {
		name      string
		modify    func(*Request)
		wantErr   error
		wantState bool
	}{
		{
			name:      "closed session",
			modify:    func(r *Request) { r.SessionActive = false; r.SessionState = "closed" },
			wantErr:   ErrSessionClosed,
			wantState: true,
		},
		{
			name:    "no register",
			modify:  func(r *Request) { r.RegisterID = "" },
			wantErr: ErrNoRegisterSelected,
		},
		{
			name:    "unknown register",
			modify:  func(r *Request) { r.RegisterID = "ghost" },
			wantErr: ErrRegisterNotFound,
		},
		{
			name:    "empty cart",
			modify:  func(r *Request) { r.Cart = cart.Cart{} },
			wantErr: ErrEmptyCartNotPayable,
		},
		{
			name:    "tender not accepted",
			modify:  func(r *Request) { r.Tender = Card{Brand: "visa", Last4: "4242"} },
			wantErr: ErrRegisterIncompatible,
		},
		{
			name:    "currency mismatch",
			modify:  func(r *Request) { r.RegisterID = "usd" },
			wantErr: ErrRegisterIncompatible,
		},
		{
			name:    "nil tender",
			modify:  func(r *Request) { r.Tender = nil },
			wantErr: ErrUnknownTender,
		},
		{
			name:    "insufficient cash",
			modify:  func(r *Request) { r.Tender = Cash{Tendered: d("19.99")} },
			wantErr: ErrInsufficientTender,
		},
		{
			name:    "bank transfer without reference",
			modify:  func(r *Request) { r.Tender = BankTransfer{} },
			wantErr: ErrInvalidTender,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := newMockLedger()
			s := newTestSettler(t, ledger, regs)
			req := validRequest()
			tt.modify(&req)

			_, err := s.Settle(context.Background(), req)

			require.ErrorIs(t, err, tt.wantErr)
			if tt.wantState {
				assert.True(t, poserr.IsState(err))
			} else {
				assert.True(t, poserr.IsValidation(err))
			}
			assert.Empty(t, ledger.txs)
		})
	}
}

func TestSettle_CashChange(t *testing.T) {
	s := newTestSettler(t, newMockLedger(), newRegisters(Register{ID: "drawer", Currency: "EUR"}))
	req := validRequest()
	req.Tender = Cash{Tendered: d("50")}

	res, err := s.Settle(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, d("30.00").Equal(res.Change), "got %s", res.Change)
}

func TestSettle_PureReturnIsPayable(t *testing.T) {
	ledger := newMockLedger()
	s := newTestSettler(t, ledger, newRegisters(Register{ID: "drawer", Currency: "EUR"}))
	req := validRequest()
	req.Cart.Lines[0].Kind = pricing.KindReturn
	req.Tender = Cash{Tendered: d("5")}

	res, err := s.Settle(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, d("-20.00").Equal(res.Transaction.Amount))
	assert.True(t, res.Change.IsZero())
	assert.True(t, d("-20.00").Equal(ledger.balances["drawer"]))
}

func TestSettle_RecomputesTotalFromCart(t *testing.T) {
	s := newTestSettler(t, newMockLedger(), newRegisters(Register{ID: "drawer", Currency: "EUR"}))
	req := validRequest()
	req.Cart.Lines[0].TaxRate = d("20")
	req.Cart.Discount = pricing.Discount{Type: pricing.DiscountPercent, Value: d("10")}

	res, err := s.Settle(context.Background(), req)
	require.NoError(t, err)

	// 20.00 + 4.00 tax = 24.00, minus 10% = 21.60
	assert.True(t, d("21.60").Equal(res.Transaction.Amount), "got %s", res.Transaction.Amount)
	assert.True(t, d("21.60").Equal(res.Totals.GrandTotal))
}

func TestSettle_LedgerFailureIsRetryable(t *testing.T) {
	tests := []struct {
		name   string
		ledger func() *mockLedger
	}{
		{
			name: "create fails",
			ledger: func() *mockLedger {
				l := newMockLedger()
				l.createErr = errors.New("connection reset")
				return l
			},
		},
		{
			name: "balance update fails",
			ledger: func() *mockLedger {
				l := newMockLedger()
				l.updateErr = errors.New("connection reset")
				return l
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSettler(t, tt.ledger(), newRegisters(Register{ID: "drawer", Currency: "EUR"}))

			_, err := s.Settle(context.Background(), validRequest())

			require.Error(t, err)
			assert.True(t, poserr.IsRetryable(err))
		})
	}
}

func TestSettle_LedgerTimeout(t *testing.T) {
	ledger := newMockLedger()
	ledger.block = true
	s := newTestSettler(t, ledger, newRegisters(Register{ID: "drawer", Currency: "EUR"}),
		WithLedgerTimeout(10*time.Millisecond))

	_, err := s.Settle(context.Background(), validRequest())

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, poserr.IsRetryable(err))
}

func TestSettle_RetryWithSameIDBooksOnce(t *testing.T) {
	ledger := newMockLedger()
	s := newTestSettler(t, ledger, newRegisters(Register{ID: "drawer", Currency: "EUR"}))
	ctx := context.Background()

	_, err := s.Settle(ctx, validRequest())
	require.NoError(t, err)
	_, err = s.Settle(ctx, validRequest())
	require.NoError(t, err)

	assert.Len(t, ledger.txs, 1)
	assert.True(t, d("20.00").Equal(ledger.balances["drawer"]))
}

func TestSettle_ConflictingTransactionIDIsRejected(t *testing.T) {
	ledger := newMockLedger()
	ledger.createErr = errors.Wrap(ErrTransactionConflict, "transaction \"tx-1\"")
	s := newTestSettler(t, ledger, newRegisters(Register{ID: "drawer", Currency: "EUR"}))

	_, err := s.Settle(context.Background(), validRequest())

	require.ErrorIs(t, err, ErrTransactionConflict)
	var verr *poserr.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "transaction_id", verr.Field)
	assert.False(t, poserr.IsRetryable(err))
	assert.Empty(t, ledger.balances)
}

func TestTransaction_SameBooking(t *testing.T) {
	base := Transaction{ID: "tx", SessionID: "s1", RegisterID: "drawer", Currency: "EUR", Amount: d("10.00"), Tender: Cash{Tendered: d("20")}}

	same := base
	same.Amount = d("10")
	same.Tender = Cash{}
	same.Timestamp = time.Now()
	assert.True(t, base.SameBooking(same))

	other := base
	other.Tender = Crypto{}
	assert.False(t, base.SameBooking(other))
	other = base
	other.Currency = "USD"
	assert.False(t, base.SameBooking(other))
}

func TestSettle_RegisterLookupOutage(t *testing.T) {
	regs := &mockRegisters{err: errors.New("dial tcp: timeout")}
	s := newTestSettler(t, newMockLedger(), regs)

	_, err := s.Settle(context.Background(), validRequest())

	assert.True(t, poserr.IsRetryable(err))
}

func TestValidateTender(t *testing.T) {
	assert.NoError(t, ValidateTender(Cash{}))
	assert.NoError(t, ValidateTender(Card{Brand: "visa", Last4: "1234"}))
	assert.NoError(t, ValidateTender(Crypto{Network: "btc", TxHash: "abc"}))
	assert.ErrorIs(t, ValidateTender(Cash{Tendered: d("-1")}), ErrNegativeTendered)
	assert.ErrorIs(t, ValidateTender(Card{Last4: "12"}), ErrInvalidTender)
	assert.ErrorIs(t, ValidateTender(Crypto{}), ErrInvalidTender)
}

func TestParseTenderKind(t *testing.T) {
	k, err := ParseTenderKind("bank_transfer")
	require.NoError(t, err)
	assert.Equal(t, KindBankTransfer, k)

	_, err = ParseTenderKind("cheque")
	require.ErrorIs(t, err, ErrUnknownTender)
}

func TestTenderRecord_RoundTrip(t *testing.T) {
	tenders := []Tender{
		Cash{},
		Cash{Tendered: d("50.00")},
		Card{Brand: "visa", Last4: "4242", AuthCode: "A1"},
		BankTransfer{Reference: "INV-7"},
		Crypto{Network: "eth", TxHash: "0xabc"},
	}
	for _, want := range tenders {
		got, err := RecordOf(want).Tender()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := TenderRecord{Kind: "voucher"}.Tender()
	require.ErrorIs(t, err, ErrUnknownTender)
}
