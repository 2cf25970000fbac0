package cache

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/oolio-pos/internal/domain/product"
)

// --- Mock implementations ---

type countingCatalog struct {
	products map[string]product.Product
	calls    int
}

func (c *countingCatalog) GetByID(_ context.Context, id string) (*product.Product, error) {
	c.calls++
	p, ok := c.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (c *countingCatalog) GetByBarcode(_ context.Context, barcode string) (*product.Product, error) {
	c.calls++
	for _, p := range c.products {
		if p.Barcode == barcode {
			return &p, nil
		}
	}
	return nil, product.ErrNotFound
}

// --- Tests ---

func TestCatalog_ReadThrough(t *testing.T) {
	ctx := context.Background()
	next := &countingCatalog{products: map[string]product.Product{
		"tea": {ID: "tea", Barcode: "5000", Name: "Tea", Price: decimal.RequireFromString("2.50"), Currency: "EUR"},
	}}
	c := NewCatalog(next, 8, 0)

	for range 3 {
		p, err := c.GetByID(ctx, "tea")
		require.NoError(t, err)
		assert.Equal(t, "Tea", p.Name)
	}
	assert.Equal(t, 1, next.calls)

	p, err := c.GetByBarcode(ctx, "5000")
	require.NoError(t, err)
	assert.Equal(t, "tea", p.ID)
	assert.Equal(t, 2, next.calls)

	_, err = c.GetByBarcode(ctx, "5000")
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)
}

func TestCatalog_MissesAreNotCached(t *testing.T) {
	ctx := context.Background()
	next := &countingCatalog{products: map[string]product.Product{}}
	c := NewCatalog(next, 0, 0)

	_, err := c.GetByID(ctx, "ghost")
	require.ErrorIs(t, err, product.ErrNotFound)

	next.products["ghost"] = product.Product{ID: "ghost", Name: "Boo"}
	p, err := c.GetByID(ctx, "ghost")
	require.NoError(t, err)
	assert.Equal(t, "Boo", p.Name)
}

func TestCatalog_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	next := &countingCatalog{products: map[string]product.Product{"a": {ID: "a", Name: "A"}}}
	c := NewCatalog(next, 8, 0)

	p, err := c.GetByID(ctx, "a")
	require.NoError(t, err)
	p.Name = "changed"

	again, err := c.GetByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "A", again.Name)
}

func TestCatalog_Purge(t *testing.T) {
	ctx := context.Background()
	next := &countingCatalog{products: map[string]product.Product{"a": {ID: "a"}}}
	c := NewCatalog(next, 8, 0)

	_, err := c.GetByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())

	c.Purge()
	assert.Equal(t, 0, c.Len())
	_, err = c.GetByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)
}

func TestCatalog_EntriesExpire(t *testing.T) {
	ctx := context.Background()
	next := &countingCatalog{products: map[string]product.Product{
		"tea": {ID: "tea", Barcode: "5000", Name: "Tea", Price: decimal.RequireFromString("2.50"), Currency: "EUR"},
	}}
	c := NewCatalog(next, 8, 20*time.Millisecond)

	p, err := c.GetByBarcode(ctx, "5000")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("2.50").Equal(p.Price))

	repriced := next.products["tea"]
	repriced.Price = decimal.RequireFromString("2.90")
	next.products["tea"] = repriced

	require.Eventually(t, func() bool {
		p, err := c.GetByBarcode(ctx, "5000")
		return err == nil && decimal.RequireFromString("2.90").Equal(p.Price)
	}, time.Second, 10*time.Millisecond)
}

func TestMemoryIdempotencyStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryIdempotencyStore(16, time.Minute)

	r, err := s.Begin(ctx, "k1")
	require.NoError(t, err)
	assert.Nil(t, r)

	_, err = s.Begin(ctx, "k1")
	require.ErrorIs(t, err, ErrInProgress)

	want := Response{Status: 201, ContentType: "application/json", Body: []byte(`{"ok":true}`)}
	require.NoError(t, s.Complete(ctx, "k1", want))

	r, err = s.Begin(ctx, "k1")
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, want, *r)

	require.NoError(t, s.Release(ctx, "k1"))
	r, err = s.Begin(ctx, "k1")
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestMemoryIdempotencyStore_Expiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryIdempotencyStore(16, 20*time.Millisecond)

	_, err := s.Begin(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, s.Complete(ctx, "k", Response{Status: 200}))

	require.Eventually(t, func() bool {
		r, err := s.Begin(ctx, "k")
		return err == nil && r == nil
	}, time.Second, 10*time.Millisecond)
}

func TestResponseEncoding(t *testing.T) {
	want := Response{Status: 409, ContentType: "application/json", Body: []byte("{\"error\":\"x\"}\n")}
	got, err := decodeResponse(encodeResponse(want))
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = decodeResponse([]byte("not json"))
	require.Error(t, err)
}
