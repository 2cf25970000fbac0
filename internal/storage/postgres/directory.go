package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/xenking/oolio-pos/internal/domain/auth"
	"github.com/xenking/oolio-pos/internal/domain/currency"
	"github.com/xenking/oolio-pos/internal/domain/customer"
	"github.com/xenking/oolio-pos/internal/domain/payment"
)

const (
	getEmployeeSQL = `SELECT id, name, branch_id, roles, pin_hash
		FROM employees WHERE id = $1 AND active = TRUE`

	upsertEmployeeSQL = `INSERT INTO employees (id, name, branch_id, roles, pin_hash)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, branch_id = EXCLUDED.branch_id,
			roles = EXCLUDED.roles, pin_hash = EXCLUDED.pin_hash, active = TRUE`

	getCustomerSQL    = `SELECT id, name, phone, email FROM customers WHERE id = $1`
	createCustomerSQL = `INSERT INTO customers (id, name, phone, email) VALUES ($1, $2, $3, $4)`

	getRegisterSQL = `SELECT id, branch_id, name, currency, tenders, balance
		FROM registers WHERE id = $1`

	upsertRegisterSQL = `INSERT INTO registers (id, branch_id, name, currency, tenders)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			branch_id = EXCLUDED.branch_id, name = EXCLUDED.name,
			currency = EXCLUDED.currency, tenders = EXCLUDED.tenders`
)

var (
	_ auth.EmployeeDirectory    = (*EmployeeRepository)(nil)
	_ customer.Directory        = (*CustomerRepository)(nil)
	_ payment.RegisterDirectory = (*RegisterRepository)(nil)
)

// EmployeeRepository verifies cashier PINs against bcrypt hashes.
type EmployeeRepository struct {
	pool *pgxpool.Pool
}

// NewEmployeeRepository returns an EmployeeRepository that uses the given pool.
func NewEmployeeRepository(pool *pgxpool.Pool) *EmployeeRepository {
	return &EmployeeRepository{pool: pool}
}

// Verify returns the active employee whose PIN matches.
func (r *EmployeeRepository) Verify(ctx context.Context, employeeID, pin string) (*auth.Employee, error) {
	var (
		e    auth.Employee
		hash string
	)
	err := r.pool.QueryRow(ctx, getEmployeeSQL, employeeID).Scan(&e.ID, &e.Name, &e.BranchID, &e.Roles, &hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("getting employee %q: %w", employeeID, err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)); err != nil {
		return nil, auth.ErrInvalidCredentials
	}
	return &e, nil
}

// Upsert stores an employee with an already hashed PIN.
func (r *EmployeeRepository) Upsert(ctx context.Context, e auth.Employee, pinHash []byte) error {
	roles := e.Roles
	if roles == nil {
		roles = []string{}
	}
	if _, err := r.pool.Exec(ctx, upsertEmployeeSQL, e.ID, e.Name, e.BranchID, roles, string(pinHash)); err != nil {
		return fmt.Errorf("upserting employee %q: %w", e.ID, err)
	}
	return nil
}

// CustomerRepository implements customer.Directory backed by PostgreSQL.
type CustomerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository returns a CustomerRepository that uses the given pool.
func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

// Find returns the customer with id.
func (r *CustomerRepository) Find(ctx context.Context, id string) (*customer.Account, error) {
	var a customer.Account
	err := r.pool.QueryRow(ctx, getCustomerSQL, id).Scan(&a.ID, &a.Name, &a.Phone, &a.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrNotFound
		}
		return nil, fmt.Errorf("getting customer %q: %w", id, err)
	}
	return &a, nil
}

// Create inserts a customer, assigning an id when missing.
func (r *CustomerRepository) Create(ctx context.Context, a customer.Account) (*customer.Account, error) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if _, err := r.pool.Exec(ctx, createCustomerSQL, a.ID, a.Name, a.Phone, a.Email); err != nil {
		return nil, fmt.Errorf("creating customer: %w", err)
	}
	return &a, nil
}

// RegisterRepository implements payment.RegisterDirectory backed by PostgreSQL.
type RegisterRepository struct {
	pool *pgxpool.Pool
}

// NewRegisterRepository returns a RegisterRepository that uses the given pool.
func NewRegisterRepository(pool *pgxpool.Pool) *RegisterRepository {
	return &RegisterRepository{pool: pool}
}

// Register returns the register with id, including its current balance.
func (r *RegisterRepository) Register(ctx context.Context, id string) (*payment.Register, error) {
	var (
		reg     payment.Register
		cur     string
		tenders []string
	)
	err := r.pool.QueryRow(ctx, getRegisterSQL, id).Scan(&reg.ID, &reg.BranchID, &reg.Name, &cur, &tenders, &reg.Balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payment.ErrRegisterNotFound
		}
		return nil, fmt.Errorf("getting register %q: %w", id, err)
	}
	reg.Currency = currency.Currency(cur)
	for _, t := range tenders {
		reg.Tenders = append(reg.Tenders, payment.TenderKind(t))
	}
	return &reg, nil
}

// Upsert stores register metadata. The balance is only changed by postings.
func (r *RegisterRepository) Upsert(ctx context.Context, reg payment.Register) error {
	tenders := make([]string, len(reg.Tenders))
	for i, t := range reg.Tenders {
		tenders[i] = string(t)
	}
	if _, err := r.pool.Exec(ctx, upsertRegisterSQL, reg.ID, reg.BranchID, reg.Name, string(reg.Currency), tenders); err != nil {
		return fmt.Errorf("upserting register %q: %w", reg.ID, err)
	}
	return nil
}
