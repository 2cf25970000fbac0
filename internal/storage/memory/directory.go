package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/xenking/oolio-pos/internal/domain/auth"
	"github.com/xenking/oolio-pos/internal/domain/customer"
	"github.com/xenking/oolio-pos/internal/domain/payment"
)

var (
	_ auth.EmployeeDirectory    = (*Employees)(nil)
	_ customer.Directory        = (*Customers)(nil)
	_ payment.RegisterDirectory = (*Registers)(nil)
)

type employeeEntry struct {
	employee auth.Employee
	pinHash  []byte
}

// Employees verifies PINs against bcrypt hashes.
type Employees struct {
	mu      sync.RWMutex
	cost    int
	entries map[string]employeeEntry
}

// NewEmployees returns an empty directory hashing PINs at cost.
func NewEmployees(cost int) *Employees {
	return &Employees{cost: cost, entries: make(map[string]employeeEntry)}
}

// Add registers an employee with a plain-text PIN.
func (e *Employees) Add(emp auth.Employee, pin string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), e.cost)
	if err != nil {
		return errors.Wrap(err, "hash pin")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.entries[emp.ID] = employeeEntry{employee: emp, pinHash: hash}
	return nil
}

// Verify checks pin for employeeID.
func (e *Employees) Verify(_ context.Context, employeeID, pin string) (*auth.Employee, error) {
	e.mu.RLock()
	entry, ok := e.entries[employeeID]
	e.mu.RUnlock()
	if !ok {
		return nil, auth.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(entry.pinHash, []byte(pin)); err != nil {
		return nil, auth.ErrInvalidCredentials
	}
	emp := entry.employee
	return &emp, nil
}

// Customers is an in-memory account directory.
type Customers struct {
	mu       sync.RWMutex
	accounts map[string]customer.Account
}

// NewCustomers returns a directory holding accounts.
func NewCustomers(accounts ...customer.Account) *Customers {
	c := &Customers{accounts: make(map[string]customer.Account, len(accounts))}
	for _, a := range accounts {
		c.accounts[a.ID] = a
	}
	return c
}

// Find returns the account with id.
func (c *Customers) Find(_ context.Context, id string) (*customer.Account, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.accounts[id]
	if !ok {
		return nil, customer.ErrNotFound
	}
	return &a, nil
}

// Create stores a new account, assigning an id when missing.
func (c *Customers) Create(_ context.Context, a customer.Account) (*customer.Account, error) {
	if a.Name == "" {
		return nil, fmt.Errorf("creating customer: name required")
	}
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accounts[a.ID] = a
	return &a, nil
}

// Registers is an in-memory register directory. Balances are updated by
// Ledger.
type Registers struct {
	mu   sync.RWMutex
	regs map[string]payment.Register
}

// NewRegisters returns a directory holding regs.
func NewRegisters(regs ...payment.Register) *Registers {
	r := &Registers{regs: make(map[string]payment.Register, len(regs))}
	for _, reg := range regs {
		r.regs[reg.ID] = reg
	}
	return r
}

// Register returns the register with id.
func (r *Registers) Register(_ context.Context, id string) (*payment.Register, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.regs[id]
	if !ok {
		return nil, payment.ErrRegisterNotFound
	}
	return &reg, nil
}

func (r *Registers) add(id string, delta decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.regs[id]
	if !ok {
		return payment.ErrRegisterNotFound
	}
	reg.Balance = reg.Balance.Add(delta)
	r.regs[id] = reg
	return nil
}
