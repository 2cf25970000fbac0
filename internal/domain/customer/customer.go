// Package customer describes the account directory consulted by the till.
package customer

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when no account matches the lookup.
var ErrNotFound = errors.New("customer not found")

// Account is the customer snapshot attached to carts, held orders and
// settled transactions.
type Account struct {
	ID    string
	Name  string
	Phone string
	Email string
}

// IsZero reports whether no customer is attached.
func (a Account) IsZero() bool { return a.ID == "" }

// Directory provides customer lookup and creation.
type Directory interface {
	Find(ctx context.Context, id string) (*Account, error)
	Create(ctx context.Context, a Account) (*Account, error)
}
