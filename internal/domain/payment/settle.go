package payment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/oolio-pos/internal/domain/cart"
	"github.com/xenking/oolio-pos/internal/domain/currency"
	"github.com/xenking/oolio-pos/internal/domain/poserr"
	"github.com/xenking/oolio-pos/internal/domain/pricing"
)

const instrumentationName = "github.com/xenking/oolio-pos/internal/domain/payment"

// DefaultLedgerTimeout bounds a single ledger commit.
const DefaultLedgerTimeout = 5 * time.Second

// Sentinel errors for settlement.
var (
	ErrSessionClosed        = errors.New("session is not active")
	ErrNoRegisterSelected   = errors.New("no register selected")
	ErrRegisterIncompatible = errors.New("register does not accept this payment")
	ErrEmptyCartNotPayable  = errors.New("cart has no lines")
	ErrInsufficientTender   = errors.New("tendered cash is less than the total")
)

// Request is everything a settlement needs. Cart is a snapshot; the settler
// never mutates the live cart.
type Request struct {
	// TransactionID is the client-supplied id. Retrying with the same id books
	// at most once. A new id is generated when empty.
	TransactionID string
	SessionID     string
	SessionActive bool
	SessionState  string
	Currency      currency.Currency
	Cart          cart.Cart
	Tender        Tender
	RegisterID    string
	CustomerID    string
}

// Result is an acknowledged settlement.
type Result struct {
	Transaction Transaction
	Totals      pricing.Totals
	// Change owed to the customer for cash tendered above the total.
	Change decimal.Decimal
	// Replayed is set when the transaction id was already settled and the
	// stored transaction is returned instead of booking again.
	Replayed bool
}

// Settler validates payments and commits them to the ledger.
type Settler struct {
	ledger    LedgerService
	registers RegisterDirectory
	timeout   time.Duration
	now       func() time.Time
	newID     func() string
	lg        *zap.Logger
	tracer    trace.Tracer

	settled  metric.Int64Counter
	failures metric.Int64Counter
}

// Option configures a Settler.
type Option func(*Settler) error

// WithLedgerTimeout sets the deadline of each ledger commit.
func WithLedgerTimeout(d time.Duration) Option {
	return func(s *Settler) error {
		if d > 0 {
			s.timeout = d
		}
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(lg *zap.Logger) Option {
	return func(s *Settler) error {
		s.lg = lg
		return nil
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Settler) error {
		s.now = now
		return nil
	}
}

// WithIDGenerator overrides transaction id generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *Settler) error {
		s.newID = newID
		return nil
	}
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Settler) error {
		s.tracer = tp.Tracer(instrumentationName)
		return nil
	}
}

// WithMeterProvider registers settlement counters on mp.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Settler) error {
		return s.initMetrics(mp)
	}
}

// NewSettler creates a Settler committing to ledger.
func NewSettler(ledger LedgerService, registers RegisterDirectory, opts ...Option) (*Settler, error) {
	s := &Settler{
		ledger:    ledger,
		registers: registers,
		timeout:   DefaultLedgerTimeout,
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
		lg:        zap.NewNop(),
		tracer:    tracenoop.NewTracerProvider().Tracer(instrumentationName),
	}
	if err := s.initMetrics(metricnoop.NewMeterProvider()); err != nil {
		return nil, err
	}
	for _, o := range opts {
		if err := o(s); err != nil {
			return nil, errors.Wrap(err, "apply option")
		}
	}
	return s, nil
}

func (s *Settler) initMetrics(mp metric.MeterProvider) error {
	meter := mp.Meter(instrumentationName)
	var err error
	if s.settled, err = meter.Int64Counter("pos.settlements",
		metric.WithDescription("Settled transactions"),
	); err != nil {
		return errors.Wrap(err, "settlements counter")
	}
	if s.failures, err = meter.Int64Counter("pos.settlement.failures",
		metric.WithDescription("Settlements rejected or not acknowledged by the ledger"),
	); err != nil {
		return errors.Wrap(err, "failures counter")
	}
	return nil
}

// Settle validates req, prices the cart and commits one transaction. Only an
// acknowledged commit returns a Result. Nothing is retried here: a ledger
// failure comes back as a retryable ExternalError and the caller may repeat
// the request with the same TransactionID.
func (s *Settler) Settle(ctx context.Context, req Request) (_ Result, rerr error) {
	ctx, span := s.tracer.Start(ctx, "payment.Settle",
		trace.WithAttributes(
			attribute.String("pos.register", req.RegisterID),
			attribute.String("pos.session", req.SessionID),
		),
	)
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, "settle failed")
			kind := "unknown"
			if req.Tender != nil {
				kind = string(req.Tender.Kind())
			}
			s.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("tender", kind)))
		}
		span.End()
	}()

	if !req.SessionActive {
		return Result{}, &poserr.StateError{Op: "settle", State: req.SessionState, Err: ErrSessionClosed}
	}
	if req.RegisterID == "" {
		return Result{}, poserr.Invalid("register", ErrNoRegisterSelected)
	}
	if req.Cart.IsEmpty() {
		return Result{}, poserr.Invalid("cart", ErrEmptyCartNotPayable)
	}
	if err := ValidateTender(req.Tender); err != nil {
		return Result{}, poserr.Invalid("tender", err)
	}

	reg, err := s.registers.Register(ctx, req.RegisterID)
	switch {
	case errors.Is(err, ErrRegisterNotFound):
		return Result{}, poserr.Invalid("register", err)
	case err != nil:
		return Result{}, poserr.External("lookup register", err)
	}
	if reg.Currency != req.Currency {
		return Result{}, poserr.Invalid("register",
			errors.Wrapf(ErrRegisterIncompatible, "register currency %s, session currency %s", reg.Currency, req.Currency))
	}
	if !reg.Accepts(req.Tender.Kind()) {
		return Result{}, poserr.Invalid("register",
			errors.Wrapf(ErrRegisterIncompatible, "register %s does not take %s", reg.ID, req.Tender.Kind()))
	}

	totals := req.Cart.Totals(req.Currency)
	change, err := computeChange(req.Tender, totals.GrandTotal, req.Currency)
	if err != nil {
		return Result{}, poserr.Invalid("tender", err)
	}

	id := req.TransactionID
	if id == "" {
		id = s.newID()
	}
	tx := Transaction{
		ID:         id,
		SessionID:  req.SessionID,
		Amount:     totals.GrandTotal,
		Currency:   req.Currency,
		Tender:     req.Tender,
		RegisterID: reg.ID,
		CustomerID: req.CustomerID,
		Timestamp:  s.now().UTC(),
	}
	span.SetAttributes(attribute.String("pos.transaction", tx.ID))

	err = s.commit(ctx, tx)
	if errors.Is(err, ErrTransactionConflict) {
		return Result{}, poserr.Invalid("transaction_id", err)
	}
	if err != nil {
		s.lg.Warn("Ledger commit failed",
			zap.String("transaction_id", tx.ID),
			zap.String("register_id", tx.RegisterID),
			zap.Error(err),
		)
		return Result{}, poserr.External("commit transaction", err)
	}

	s.settled.Add(ctx, 1, metric.WithAttributes(attribute.String("tender", string(tx.Tender.Kind()))))
	s.lg.Info("Transaction settled",
		zap.String("transaction_id", tx.ID),
		zap.String("session_id", tx.SessionID),
		zap.String("register_id", tx.RegisterID),
		zap.String("tender", string(tx.Tender.Kind())),
		zap.String("amount", tx.Amount.String()),
	)

	return Result{Transaction: tx, Totals: totals, Change: change}, nil
}

func (s *Settler) commit(ctx context.Context, tx Transaction) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.ledger.CreateTransaction(ctx, tx); err != nil {
		return errors.Wrap(err, "create transaction")
	}
	if err := s.ledger.UpdateRegisterBalance(ctx, tx.RegisterID, tx.ID, tx.Amount); err != nil {
		return errors.Wrap(err, "update register balance")
	}
	return nil
}

// computeChange returns the change owed for a cash sale. Refunds and exact
// cash owe nothing.
func computeChange(t Tender, total decimal.Decimal, cur currency.Currency) (decimal.Decimal, error) {
	c, ok := t.(Cash)
	if !ok || c.Tendered.IsZero() || !total.IsPositive() {
		return decimal.Zero, nil
	}
	if c.Tendered.LessThan(total) {
		return decimal.Zero, errors.Wrapf(ErrInsufficientTender, "tendered %s, due %s",
			cur.Format(c.Tendered), cur.Format(total))
	}
	return cur.Round(c.Tendered.Sub(total)), nil
}
