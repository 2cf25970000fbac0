// Package auth holds the employee directory contract used to authenticate
// cashiers at a terminal.
package auth

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrInvalidCredentials is returned when an employee id and PIN do not match.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Employee identifies an authenticated cashier.
type Employee struct {
	ID       string
	Name     string
	BranchID string
	Roles    []string
}

// EmployeeDirectory checks cashier credentials.
type EmployeeDirectory interface {
	// Verify returns the employee when pin matches, or ErrInvalidCredentials.
	Verify(ctx context.Context, employeeID, pin string) (*Employee, error)
}
