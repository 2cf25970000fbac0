// Package held stages suspended carts for later recall.
package held

import (
	"sort"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/oolio-pos/internal/domain/cart"
	"github.com/xenking/oolio-pos/internal/domain/customer"
)

// Sentinel errors for held orders.
var (
	ErrNotFound  = errors.New("held order not found")
	ErrEmptyCart = errors.New("cannot hold an empty cart")
)

// Order is a suspended cart with the customer it was rung up for.
type Order struct {
	ID        string
	Cart      cart.Cart
	Customer  customer.Account
	CreatedAt time.Time
}

func (o Order) clone() Order {
	o.Cart = o.Cart.Clone()
	return o
}

// Registry owns held orders. Entries are value copies and never reference the
// live cart. A zero TTL keeps orders until they are recalled or discarded.
type Registry struct {
	ttl    time.Duration
	now    func() time.Time
	newID  func() string
	orders map[string]Order
}

// NewRegistry creates an empty Registry.
func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{
		ttl:    ttl,
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
		orders: make(map[string]Order),
	}
}

// Hold stores a copy of c and returns its id.
func (r *Registry) Hold(c cart.Cart, cust customer.Account) (string, error) {
	if c.IsEmpty() {
		return "", ErrEmptyCart
	}
	o := Order{
		ID:        r.newID(),
		Cart:      c.Clone(),
		Customer:  cust,
		CreatedAt: r.now(),
	}
	r.orders[o.ID] = o
	return o.ID, nil
}

// Take removes and returns the held order. The caller decides whether the
// live cart may receive it.
func (r *Registry) Take(id string) (Order, error) {
	o, ok := r.orders[id]
	if !ok {
		return Order{}, errors.Wrapf(ErrNotFound, "%s", id)
	}
	delete(r.orders, id)
	return o.clone(), nil
}

// Get returns a copy of the held order without removing it.
func (r *Registry) Get(id string) (Order, error) {
	o, ok := r.orders[id]
	if !ok {
		return Order{}, errors.Wrapf(ErrNotFound, "%s", id)
	}
	return o.clone(), nil
}

// Discard deletes the held order irreversibly.
func (r *Registry) Discard(id string) error {
	if _, ok := r.orders[id]; !ok {
		return errors.Wrapf(ErrNotFound, "%s", id)
	}
	delete(r.orders, id)
	return nil
}

// List returns copies of all held orders, oldest first.
func (r *Registry) List() []Order {
	out := make([]Order, 0, len(r.orders))
	for _, o := range r.orders {
		out = append(out, o.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Len returns the number of held orders.
func (r *Registry) Len() int { return len(r.orders) }

// Prune drops orders older than the TTL and returns their ids.
func (r *Registry) Prune() []string {
	if r.ttl <= 0 {
		return nil
	}
	cutoff := r.now().Add(-r.ttl)
	var dropped []string
	for id, o := range r.orders {
		if o.CreatedAt.Before(cutoff) {
			delete(r.orders, id)
			dropped = append(dropped, id)
		}
	}
	sort.Strings(dropped)
	return dropped
}

// Load replaces the registry contents, used when restoring a terminal.
func (r *Registry) Load(orders []Order) {
	r.orders = make(map[string]Order, len(orders))
	for _, o := range orders {
		r.orders[o.ID] = o.clone()
	}
}
