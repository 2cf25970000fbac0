// Package memory provides in-process implementations of the till's
// collaborators. The server uses them when no database is configured.
package memory

import (
	"context"
	"sync"

	"github.com/xenking/oolio-pos/internal/domain/product"
)

var _ product.Catalog = (*Catalog)(nil)

// Catalog is an in-memory product catalog.
type Catalog struct {
	mu        sync.RWMutex
	byID      map[string]product.Product
	byBarcode map[string]string
}

// NewCatalog returns a catalog holding products.
func NewCatalog(products ...product.Product) *Catalog {
	c := &Catalog{
		byID:      make(map[string]product.Product, len(products)),
		byBarcode: make(map[string]string, len(products)),
	}
	for _, p := range products {
		c.Put(p)
	}
	return c
}

// Put inserts or replaces a product.
func (c *Catalog) Put(p product.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.byID[p.ID]; ok && old.Barcode != "" {
		delete(c.byBarcode, old.Barcode)
	}
	c.byID[p.ID] = p
	if p.Barcode != "" {
		c.byBarcode[p.Barcode] = p.ID
	}
}

// GetByID returns the product with id.
func (c *Catalog) GetByID(_ context.Context, id string) (*product.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

// GetByBarcode returns the product with barcode.
func (c *Catalog) GetByBarcode(_ context.Context, barcode string) (*product.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.byBarcode[barcode]
	if !ok {
		return nil, product.ErrNotFound
	}
	p := c.byID[id]
	return &p, nil
}
