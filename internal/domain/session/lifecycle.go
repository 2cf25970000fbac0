package session

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/xenking/oolio-pos/internal/domain/auth"
	"github.com/xenking/oolio-pos/internal/domain/cart"
	"github.com/xenking/oolio-pos/internal/domain/currency"
	"github.com/xenking/oolio-pos/internal/domain/customer"
	"github.com/xenking/oolio-pos/internal/domain/held"
	"github.com/xenking/oolio-pos/internal/domain/payment"
	"github.com/xenking/oolio-pos/internal/domain/poserr"
	"github.com/xenking/oolio-pos/internal/domain/pricing"
	"github.com/xenking/oolio-pos/internal/domain/product"
	"github.com/xenking/oolio-pos/internal/domain/reconcile"
)

// Options holds the collaborators and policies of a Lifecycle.
type Options struct {
	TerminalID string
	Currency   currency.Currency

	Catalog   product.Catalog
	Employees auth.EmployeeDirectory
	Customers customer.Directory
	Registers payment.RegisterDirectory
	Rates     currency.RateProvider
	Settler   *payment.Settler

	// Repository, Reports and Ledger are optional. With Ledger set, Restore
	// recovers transactions booked after the last snapshot was written.
	Repository Repository
	Reports    ReportSink
	Ledger     SessionLedger

	// MaxAuthAttempts of zero allows unlimited retries.
	MaxAuthAttempts int
	Lockout         time.Duration
	// HeldTTL of zero keeps held orders until recalled or discarded.
	HeldTTL time.Duration

	Logger        *zap.Logger
	MeterProvider metric.MeterProvider
	Now           func() time.Time
	NewID         func() string
}

// Lifecycle is the state machine of one terminal:
//
//	SelectLocation -> Authenticate -> OpenSession -> Active -> Closed
//
// It owns the live cart, the held orders and the session ledger. All methods
// are serialized by a single mutex, so the ledger order is the commit order.
type Lifecycle struct {
	mu sync.Mutex

	terminalID string
	currency   currency.Currency
	catalog    product.Catalog
	employees  auth.EmployeeDirectory
	customers  customer.Directory
	registers  payment.RegisterDirectory
	settler    *payment.Settler
	repo       Repository
	reports    ReportSink
	ledger     SessionLedger

	maxAttempts int
	lockout     time.Duration
	now         func() time.Time
	newID       func() string
	lg          *zap.Logger
	closedCount metric.Int64Counter

	state       State
	branchID    string
	registerID  string
	employee    *auth.Employee
	session     *Session
	customer    customer.Account
	cart        *cart.Store
	held        *held.Registry
	report      *reconcile.Report
	failures    int
	lockedUntil time.Time
}

// New creates a Lifecycle in StateSelectLocation.
func New(opts Options) (*Lifecycle, error) {
	switch {
	case opts.Catalog == nil:
		return nil, errors.New("catalog required")
	case opts.Employees == nil:
		return nil, errors.New("employee directory required")
	case opts.Customers == nil:
		return nil, errors.New("customer directory required")
	case opts.Registers == nil:
		return nil, errors.New("register directory required")
	case opts.Settler == nil:
		return nil, errors.New("settler required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MeterProvider == nil {
		opts.MeterProvider = metricnoop.NewMeterProvider()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.New().String() }
	}

	closedCount, err := opts.MeterProvider.Meter("github.com/xenking/oolio-pos/internal/domain/session").
		Int64Counter("pos.sessions.closed", metric.WithDescription("Closed cashier sessions"))
	if err != nil {
		return nil, errors.Wrap(err, "sessions counter")
	}

	l := &Lifecycle{
		terminalID:  opts.TerminalID,
		currency:    opts.Currency,
		catalog:     opts.Catalog,
		employees:   opts.Employees,
		customers:   opts.Customers,
		registers:   opts.Registers,
		settler:     opts.Settler,
		repo:        opts.Repository,
		reports:     opts.Reports,
		ledger:      opts.Ledger,
		maxAttempts: opts.MaxAuthAttempts,
		lockout:     opts.Lockout,
		now:         opts.Now,
		newID:       opts.NewID,
		lg:          opts.Logger.With(zap.String("terminal_id", opts.TerminalID)),
		closedCount: closedCount,
		state:       StateSelectLocation,
		held:        held.NewRegistry(opts.HeldTTL),
	}
	l.cart = cart.NewStore(opts.Currency, opts.Rates, gate{l})
	return l, nil
}

// gate exposes the lifecycle state to the cart store. It is only consulted
// while the lifecycle mutex is held.
type gate struct{ l *Lifecycle }

func (g gate) Active() bool      { return g.l.state == StateActive }
func (g gate) StateName() string { return string(g.l.state) }

// Info is a read-only view of the terminal.
type Info struct {
	TerminalID  string
	State       State
	Currency    currency.Currency
	BranchID    string
	RegisterID  string
	Employee    *auth.Employee
	Session     *Session
	Report      *reconcile.Report
	LockedUntil time.Time
}

// CartView is the live cart with its freshly computed totals.
type CartView struct {
	Cart     cart.Cart
	Customer customer.Account
	Totals   pricing.Totals
}

// SettleRequest describes a payment of the live cart.
type SettleRequest struct {
	TransactionID string
	Tender        payment.Tender
	// RegisterID defaults to the register chosen at SelectLocation.
	RegisterID string
}

// State returns the current lifecycle state.
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Currency returns the session base currency.
func (l *Lifecycle) Currency() currency.Currency { return l.currency }

// Info returns a copy of the terminal state.
func (l *Lifecycle) Info() Info {
	l.mu.Lock()
	defer l.mu.Unlock()

	info := Info{
		TerminalID:  l.terminalID,
		State:       l.state,
		Currency:    l.currency,
		BranchID:    l.branchID,
		RegisterID:  l.registerID,
		LockedUntil: l.lockedUntil,
	}
	if l.employee != nil {
		e := *l.employee
		info.Employee = &e
	}
	if l.session != nil {
		s := l.session.Clone()
		info.Session = &s
	}
	if l.report != nil {
		r := *l.report
		info.Report = &r
	}
	return info
}

// Session returns a copy of the current or last closed session.
func (l *Lifecycle) Session() (Session, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.session == nil {
		return Session{}, false
	}
	return l.session.Clone(), true
}

// Cart returns the live cart.
func (l *Lifecycle) Cart() CartView {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cartView()
}

// SelectLocation binds the terminal to a branch register. It may be repeated
// until a cashier has authenticated.
func (l *Lifecycle) SelectLocation(ctx context.Context, branchID, registerID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateSelectLocation && l.state != StateAuthenticate {
		return l.stateError("select location", ErrInvalidTransition)
	}
	if branchID == "" || registerID == "" {
		return poserr.Invalid("location", ErrLocationRequired)
	}

	reg, err := l.registers.Register(ctx, registerID)
	switch {
	case errors.Is(err, payment.ErrRegisterNotFound):
		return poserr.Invalid("register", err)
	case err != nil:
		return poserr.External("lookup register", err)
	}
	if reg.BranchID != branchID {
		return poserr.Invalid("register", errors.Wrapf(ErrRegisterBranch, "%s not in %s", registerID, branchID))
	}
	if reg.Currency != l.currency {
		return poserr.Invalid("register", errors.Wrapf(payment.ErrRegisterIncompatible,
			"register currency %s, terminal currency %s", reg.Currency, l.currency))
	}

	return l.mutate(ctx, func() error {
		l.branchID = branchID
		l.registerID = registerID
		l.employee = nil
		l.state = StateAuthenticate
		l.lg.Info("Location selected", zap.String("branch_id", branchID), zap.String("register_id", registerID))
		return nil
	})
}

// Authenticate checks cashier credentials. A mismatch keeps the terminal in
// StateAuthenticate; with MaxAuthAttempts set, repeated mismatches lock the
// terminal for the lockout duration.
func (l *Lifecycle) Authenticate(ctx context.Context, employeeID, pin string) (auth.Employee, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateAuthenticate {
		return auth.Employee{}, l.stateError("authenticate", ErrInvalidTransition)
	}
	now := l.now()
	if now.Before(l.lockedUntil) {
		return auth.Employee{}, l.stateError("authenticate",
			errors.Wrapf(ErrLockedOut, "retry after %s", l.lockedUntil.UTC().Format(time.RFC3339)))
	}

	emp, err := l.employees.Verify(ctx, employeeID, pin)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		l.failures++
		if l.maxAttempts > 0 && l.failures >= l.maxAttempts {
			l.lockedUntil = now.Add(l.lockout)
			l.failures = 0
			l.lg.Warn("Terminal locked after failed logins",
				zap.String("employee_id", employeeID),
				zap.Time("locked_until", l.lockedUntil),
			)
		}
		return auth.Employee{}, poserr.Invalid("credentials", err)
	case err != nil:
		return auth.Employee{}, poserr.External("verify employee", err)
	}
	if emp.BranchID != "" && emp.BranchID != l.branchID {
		return auth.Employee{}, poserr.Invalid("credentials", ErrWrongBranch)
	}

	err = l.mutate(ctx, func() error {
		l.failures = 0
		l.lockedUntil = time.Time{}
		e := *emp
		l.employee = &e
		l.state = StateOpenSession
		l.lg.Info("Cashier authenticated", zap.String("employee_id", emp.ID))
		return nil
	})
	if err != nil {
		return auth.Employee{}, err
	}
	return *emp, nil
}

// Open starts a session with the counted opening float.
func (l *Lifecycle) Open(ctx context.Context, openingBalance decimal.Decimal) (Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateOpenSession {
		return Session{}, l.stateError("open session", ErrInvalidTransition)
	}
	if openingBalance.IsNegative() {
		return Session{}, poserr.Invalid("opening_balance", ErrNegativeBalance)
	}

	err := l.mutate(ctx, func() error {
		l.session = &Session{
			ID:             l.newID(),
			BranchID:       l.branchID,
			RegisterID:     l.registerID,
			CashierID:      l.employee.ID,
			CashierName:    l.employee.Name,
			Currency:       l.currency,
			OpeningBalance: l.currency.Round(openingBalance),
			Status:         StatusActive,
			OpenedAt:       l.now().UTC(),
		}
		l.report = nil
		l.cart.Clear()
		l.customer = customer.Account{}
		l.state = StateActive
		l.lg.Info("Session opened",
			zap.String("session_id", l.session.ID),
			zap.String("cashier_id", l.session.CashierID),
			zap.String("opening_balance", l.session.OpeningBalance.String()),
		)
		return nil
	})
	if err != nil {
		return Session{}, err
	}
	return l.session.Clone(), nil
}

// Close counts the drawer, computes the Z-report and closes the session.
// The report is stored before anything is discarded; a sink failure leaves
// the session Active so closing can be retried. Variance never blocks.
func (l *Lifecycle) Close(ctx context.Context, counted decimal.Decimal) (reconcile.Report, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateActive {
		return reconcile.Report{}, l.stateError("close session", ErrInvalidTransition)
	}
	if counted.IsNegative() {
		return reconcile.Report{}, poserr.Invalid("counted", ErrNegativeBalance)
	}

	now := l.now().UTC()
	report := reconcile.Compute(l.session.Shift(), counted, now)
	if l.reports != nil {
		if err := l.reports.SaveReport(ctx, report); err != nil {
			return reconcile.Report{}, poserr.External("save report", err)
		}
	}

	l.session.Status = StatusClosed
	l.session.ClosedAt = now
	l.state = StateClosed
	l.report = &report
	l.cart.Clear()
	l.customer = customer.Account{}
	if n := l.held.Len(); n > 0 {
		l.lg.Warn("Discarding held orders at close", zap.Int("count", n))
		l.held.Load(nil)
	}
	if l.repo != nil {
		if err := l.repo.Clear(ctx, l.terminalID); err != nil {
			l.lg.Warn("Clear snapshot", zap.Error(err))
		}
	}

	l.closedCount.Add(ctx, 1, metric.WithAttributes(attribute.String("branch", l.branchID)))
	l.lg.Info("Session closed",
		zap.String("session_id", report.SessionID),
		zap.Int("transactions", report.TxCount),
		zap.String("expected_cash", report.ExpectedCash.String()),
		zap.String("variance", report.Variance.String()),
	)
	return report, nil
}

// Reset leaves StateClosed for the next shift.
func (l *Lifecycle) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateClosed {
		return l.stateError("reset", ErrInvalidTransition)
	}
	l.state = StateSelectLocation
	l.branchID = ""
	l.registerID = ""
	l.employee = nil
	l.session = nil
	l.report = nil
	return nil
}

// Restore loads the latest snapshot, if any.
func (l *Lifecycle) Restore(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.repo == nil {
		return nil
	}
	snap, err := l.repo.Load(ctx, l.terminalID)
	switch {
	case errors.Is(err, ErrNoSnapshot):
		return nil
	case err != nil:
		return poserr.External("load snapshot", err)
	}
	l.apply(snap)
	recovered, err := l.recoverBooked(ctx)
	if err != nil {
		return err
	}
	l.lg.Info("Terminal restored",
		zap.String("state", string(l.state)),
		zap.Int("lines", len(snap.Cart.Lines)),
		zap.Int("held", len(snap.Held)),
		zap.Int("recovered_transactions", recovered),
	)
	return nil
}

// recoverBooked merges transactions the ledger acknowledged but the restored
// session does not know about, keeping commit order.
func (l *Lifecycle) recoverBooked(ctx context.Context) (int, error) {
	if l.ledger == nil || l.session == nil || l.session.Status != StatusActive {
		return 0, nil
	}
	booked, err := l.ledger.SessionTransactions(ctx, l.session.ID)
	if err != nil {
		return 0, poserr.External("list session transactions", err)
	}

	var missing []payment.Transaction
	for _, tx := range booked {
		if _, ok := l.session.Transaction(tx.ID); !ok {
			missing = append(missing, tx)
		}
	}
	if len(missing) == 0 {
		return 0, nil
	}

	order := make(map[string]int, len(booked))
	for i, tx := range booked {
		order[tx.ID] = i
	}
	txs := slices.Concat(l.session.Transactions, missing)
	slices.SortStableFunc(txs, func(a, b payment.Transaction) int {
		ia, oka := order[a.ID]
		ib, okb := order[b.ID]
		if !oka || !okb {
			return a.Timestamp.Compare(b.Timestamp)
		}
		return cmp.Compare(ia, ib)
	})
	l.session.Transactions = txs

	for _, tx := range missing {
		l.lg.Warn("Recovered booked transaction missing from snapshot",
			zap.String("transaction_id", tx.ID),
			zap.String("amount", tx.Amount.String()),
		)
	}
	if err := l.persist(ctx); err != nil {
		l.lg.Warn("Save snapshot after recovery", zap.Error(err))
	}
	return len(missing), nil
}

// AddProduct adds qty units of a catalog product.
func (l *Lifecycle) AddProduct(ctx context.Context, productID string, kind pricing.Kind, qty int) (CartView, error) {
	return l.addLine(ctx, kind, qty, func() (*product.Product, error) {
		return l.catalog.GetByID(ctx, productID)
	})
}

// AddBarcode adds qty units of the product with barcode.
func (l *Lifecycle) AddBarcode(ctx context.Context, barcode string, kind pricing.Kind, qty int) (CartView, error) {
	return l.addLine(ctx, kind, qty, func() (*product.Product, error) {
		return l.catalog.GetByBarcode(ctx, barcode)
	})
}

func (l *Lifecycle) addLine(ctx context.Context, kind pricing.Kind, qty int, lookup func() (*product.Product, error)) (CartView, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.requireActive("add line"); err != nil {
		return CartView{}, err
	}
	p, err := lookup()
	switch {
	case errors.Is(err, product.ErrNotFound):
		return CartView{}, poserr.Invalid("product", err)
	case err != nil:
		return CartView{}, poserr.External("lookup product", err)
	}
	return l.mutateCart(ctx, func() error {
		_, err := l.cart.AddLine(ctx, *p, kind, qty)
		return err
	})
}

// SetQuantity changes a line quantity by delta, never below 1.
func (l *Lifecycle) SetQuantity(ctx context.Context, key cart.LineKey, delta int) (CartView, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mutateCart(ctx, func() error {
		_, err := l.cart.SetQuantity(key, delta)
		return err
	})
}

// RemoveLine takes a line off the receipt.
func (l *Lifecycle) RemoveLine(ctx context.Context, key cart.LineKey) (CartView, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mutateCart(ctx, func() error {
		_, err := l.cart.RemoveLine(key)
		return err
	})
}

// SetDiscount replaces the cart discount.
func (l *Lifecycle) SetDiscount(ctx context.Context, d pricing.Discount) (CartView, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mutateCart(ctx, func() error {
		_, err := l.cart.SetDiscount(d)
		return err
	})
}

// SetCustomer attaches a customer to the cart. An account with an id is
// looked up; one without an id but with a name is created; a zero account
// detaches the customer.
func (l *Lifecycle) SetCustomer(ctx context.Context, a customer.Account) (CartView, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.requireActive("set customer"); err != nil {
		return CartView{}, err
	}

	var (
		acc customer.Account
		err error
	)
	switch {
	case a.ID != "":
		var found *customer.Account
		found, err = l.customers.Find(ctx, a.ID)
		if found != nil {
			acc = *found
		}
	case a.Name != "":
		var created *customer.Account
		created, err = l.customers.Create(ctx, a)
		if created != nil {
			acc = *created
		}
	}
	switch {
	case errors.Is(err, customer.ErrNotFound):
		return CartView{}, poserr.Invalid("customer", err)
	case err != nil:
		return CartView{}, poserr.External("customer directory", err)
	}

	return l.mutateCart(ctx, func() error {
		l.customer = acc
		return nil
	})
}

// ClearCart drops lines, discount and customer together.
func (l *Lifecycle) ClearCart(ctx context.Context) (CartView, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mutateCart(ctx, func() error {
		l.cart.Clear()
		l.customer = customer.Account{}
		return nil
	})
}

// Hold parks the live cart and its customer, leaving the live cart empty.
func (l *Lifecycle) Hold(ctx context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.requireActive("hold"); err != nil {
		return "", err
	}
	l.pruneHeld()

	var id string
	err := l.mutate(ctx, func() error {
		var err error
		id, err = l.held.Hold(l.cart.Snapshot(), l.customer)
		if err != nil {
			return poserr.Invalid("cart", err)
		}
		l.cart.Clear()
		l.customer = customer.Account{}
		return nil
	})
	if err != nil {
		return "", err
	}
	l.lg.Debug("Cart held", zap.String("held_id", id))
	return id, nil
}

// Recall moves a held order back into the live cart, which must be empty.
func (l *Lifecycle) Recall(ctx context.Context, id string) (CartView, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.requireActive("recall"); err != nil {
		return CartView{}, err
	}
	if !l.cart.Empty() {
		return CartView{}, l.stateError("recall", ErrLiveCartNotEmpty)
	}
	return l.mutateCart(ctx, func() error {
		o, err := l.held.Take(id)
		if err != nil {
			return poserr.Invalid("held_order", err)
		}
		l.cart.Restore(o.Cart)
		l.customer = o.Customer
		return nil
	})
}

// Discard deletes a held order.
func (l *Lifecycle) Discard(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mutate(ctx, func() error {
		if err := l.held.Discard(id); err != nil {
			return poserr.Invalid("held_order", err)
		}
		return nil
	})
}

// HeldOrders lists held orders, oldest first.
func (l *Lifecycle) HeldOrders(ctx context.Context) []held.Order {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pruneHeld() > 0 {
		if err := l.persist(ctx); err != nil {
			l.lg.Warn("Save snapshot after prune", zap.Error(err))
		}
	}
	return l.held.List()
}

// HeldOrder returns one held order without recalling it.
func (l *Lifecycle) HeldOrder(ctx context.Context, id string) (held.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pruneHeld() > 0 {
		if err := l.persist(ctx); err != nil {
			l.lg.Warn("Save snapshot after prune", zap.Error(err))
		}
	}
	o, err := l.held.Get(id)
	if err != nil {
		return held.Order{}, poserr.Invalid("held_order", err)
	}
	return o, nil
}

// Settle pays the live cart. The cart is not cleared; the caller clears it
// once the receipt is rendered. A transaction id already present in the
// session ledger returns the booked transaction without calling the ledger.
func (l *Lifecycle) Settle(ctx context.Context, req SettleRequest) (payment.Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if req.TransactionID != "" && l.state == StateActive && l.session != nil {
		if tx, ok := l.session.Transaction(req.TransactionID); ok {
			return payment.Result{Transaction: tx, Replayed: true}, nil
		}
	}

	registerID := req.RegisterID
	if registerID == "" {
		registerID = l.registerID
	}
	preq := payment.Request{
		TransactionID: req.TransactionID,
		SessionActive: l.state == StateActive && l.session != nil && l.session.Status == StatusActive,
		SessionState:  string(l.state),
		Currency:      l.currency,
		Cart:          l.cart.Snapshot(),
		Tender:        req.Tender,
		RegisterID:    registerID,
		CustomerID:    l.customer.ID,
	}
	if l.session != nil {
		preq.SessionID = l.session.ID
	}

	res, err := l.settler.Settle(ctx, preq)
	if err != nil {
		return payment.Result{}, err
	}

	// The ledger acknowledged the commit; the local entry is final even if
	// the snapshot cannot be written. Restore recovers it from the ledger.
	l.session.Transactions = append(l.session.Transactions, res.Transaction)
	if err := l.persist(ctx); err != nil {
		l.lg.Error("Save snapshot after settlement",
			zap.String("transaction_id", res.Transaction.ID),
			zap.Error(err),
		)
	}
	return res, nil
}

func (l *Lifecycle) requireActive(op string) error {
	if l.state != StateActive {
		return l.stateError(op, cart.ErrSessionNotActive)
	}
	return nil
}

func (l *Lifecycle) stateError(op string, err error) error {
	return &poserr.StateError{Op: op, State: string(l.state), Err: err}
}

func (l *Lifecycle) cartView() CartView {
	return CartView{
		Cart:     l.cart.Snapshot(),
		Customer: l.customer,
		Totals:   l.cart.Totals(),
	}
}

func (l *Lifecycle) pruneHeld() int {
	dropped := l.held.Prune()
	if len(dropped) > 0 {
		l.lg.Info("Expired held orders dropped", zap.Strings("held_ids", dropped))
	}
	return len(dropped)
}

func (l *Lifecycle) mutateCart(ctx context.Context, fn func() error) (CartView, error) {
	if err := l.mutate(ctx, fn); err != nil {
		return CartView{}, err
	}
	return l.cartView(), nil
}

// mutate applies fn and writes a snapshot. When the snapshot cannot be
// written the in-memory state is rolled back, so memory never runs ahead of
// what a restart would restore.
func (l *Lifecycle) mutate(ctx context.Context, fn func() error) error {
	before := l.snapshot()
	if err := fn(); err != nil {
		return err
	}
	if err := l.persist(ctx); err != nil {
		l.apply(before)
		return poserr.External("save snapshot", err)
	}
	return nil
}

func (l *Lifecycle) persist(ctx context.Context) error {
	if l.repo == nil {
		return nil
	}
	return l.repo.Save(ctx, l.snapshot())
}

func (l *Lifecycle) snapshot() *Snapshot {
	s := &Snapshot{
		TerminalID: l.terminalID,
		State:      l.state,
		BranchID:   l.branchID,
		RegisterID: l.registerID,
		Cart:       l.cart.Snapshot(),
		Customer:   l.customer,
		Held:       l.held.List(),
		SavedAt:    l.now().UTC(),
	}
	if l.employee != nil {
		e := *l.employee
		s.Employee = &e
	}
	if l.session != nil {
		sess := l.session.Clone()
		s.Session = &sess
	}
	return s
}

func (l *Lifecycle) apply(s *Snapshot) {
	l.state = s.State
	l.branchID = s.BranchID
	l.registerID = s.RegisterID
	l.employee = nil
	if s.Employee != nil {
		e := *s.Employee
		l.employee = &e
	}
	l.session = nil
	if s.Session != nil {
		sess := s.Session.Clone()
		l.session = &sess
	}
	l.customer = s.Customer
	l.cart.Restore(s.Cart)
	l.held.Load(s.Held)
}
