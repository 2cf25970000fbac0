// Package cache holds read-through caches and idempotency stores used by the
// POS server.
package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/xenking/oolio-pos/internal/domain/product"
)

// DefaultCatalogSize is used when NewCatalog gets a non-positive size.
const DefaultCatalogSize = 4096

var _ product.Catalog = (*Catalog)(nil)

// Catalog is a read-through LRU cache in front of a product.Catalog. Misses
// and lookup errors are never cached, so a product added upstream becomes
// visible on the next scan. Entries expire after the configured TTL, which
// bounds how long a changed price keeps being served.
type Catalog struct {
	next      product.Catalog
	byID      *expirable.LRU[string, product.Product]
	byBarcode *expirable.LRU[string, string]
}

// NewCatalog wraps next with caches holding up to size products for ttl.
// A non-positive ttl keeps entries until they are evicted or purged.
func NewCatalog(next product.Catalog, size int, ttl time.Duration) *Catalog {
	if size <= 0 {
		size = DefaultCatalogSize
	}
	return &Catalog{
		next:      next,
		byID:      expirable.NewLRU[string, product.Product](size, nil, ttl),
		byBarcode: expirable.NewLRU[string, string](size, nil, ttl),
	}
}

// GetByID returns the product with id.
func (c *Catalog) GetByID(ctx context.Context, id string) (*product.Product, error) {
	if p, ok := c.byID.Get(id); ok {
		return &p, nil
	}
	p, err := c.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.store(*p)
	return p, nil
}

// GetByBarcode returns the product carrying barcode.
func (c *Catalog) GetByBarcode(ctx context.Context, barcode string) (*product.Product, error) {
	if id, ok := c.byBarcode.Get(barcode); ok {
		if p, ok := c.byID.Get(id); ok {
			return &p, nil
		}
	}
	p, err := c.next.GetByBarcode(ctx, barcode)
	if err != nil {
		return nil, err
	}
	c.store(*p)
	return p, nil
}

// Purge drops every cached product, e.g. after a catalog import.
func (c *Catalog) Purge() {
	c.byID.Purge()
	c.byBarcode.Purge()
}

// Len returns the number of cached products.
func (c *Catalog) Len() int { return c.byID.Len() }

func (c *Catalog) store(p product.Product) {
	c.byID.Add(p.ID, p)
	if p.Barcode != "" {
		c.byBarcode.Add(p.Barcode, p.ID)
	}
}
