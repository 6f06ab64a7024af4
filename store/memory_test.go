package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/model"
)

func seedProduct(t *testing.T, s *MemoryStore, name string, stock int) model.Product {
	t.Helper()
	id, err := s.CreateProduct(context.Background(), model.ProductDraft{
		Name: name, Stock: stock, Price: decimal.NewFromInt(10), Type: "misc",
	})
	require.NoError(t, err)
	p, err := s.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p
}

func TestMemoryStore_CheckoutIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	a := seedProduct(t, s, "A", 1)
	b := seedProduct(t, s, "B", 0)
	require.NoError(t, s.CreateUser(ctx, "alice", "hash"))

	cart := []model.CartEntry{model.NewCartEntry(a, s.now()), model.NewCartEntry(b, s.now())}
	require.NoError(t, s.SetCart(ctx, "alice", cart))

	_, err := s.Checkout(ctx, "alice")
	var oos *OutOfStockError
	require.True(t, errors.As(err, &oos))
	assert.Equal(t, b.ID, oos.ProductID)

	gotA, _ := s.GetProduct(ctx, a.ID)
	gotB, _ := s.GetProduct(ctx, b.ID)
	assert.Equal(t, 1, gotA.Stock)
	assert.Equal(t, 0, gotB.Stock)

	u, err := s.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, cart, u.Cart)
}

func TestMemoryStore_CheckoutCountsRepeatedEntries(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	a := seedProduct(t, s, "A", 1)
	require.NoError(t, s.CreateUser(ctx, "alice", "hash"))
	require.NoError(t, s.SetCart(ctx, "alice", []model.CartEntry{
		model.NewCartEntry(a, s.now()), model.NewCartEntry(a, s.now()),
	}))

	_, err := s.Checkout(ctx, "alice")
	require.ErrorIs(t, err, ErrInsufficientStock)

	got, _ := s.GetProduct(ctx, a.ID)
	assert.Equal(t, 1, got.Stock)
}

func TestMemoryStore_DecrementStockNeverNegative(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	p := seedProduct(t, s, "P", 10)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.DecrementStock(ctx, p.ID, 1); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, ErrInsufficientStock)
			}
		}()
	}
	wg.Wait()

	got, _ := s.GetProduct(ctx, p.ID)
	assert.Equal(t, 10, ok)
	assert.Equal(t, 0, got.Stock)
}

func TestMemoryStore_UpdateKeepsReviewsAndPopularity(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	p := seedProduct(t, s, "P", 3)
	require.NoError(t, s.AppendReview(ctx, p.ID, model.Review{User: "bob", Message: "fine", Rating: 4}))
	require.NoError(t, s.IncrementPopularity(ctx, p.ID))

	price := decimal.NewFromInt(25)
	require.NoError(t, s.UpdateProduct(ctx, p.ID, model.ProductPatch{Price: &price}))

	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.Price.Equal(price))
	assert.Equal(t, "P", got.Name)
	assert.Equal(t, 1, got.Popularity)
	assert.Len(t, got.Reviews, 1)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	p := seedProduct(t, s, "P", 3)
	require.NoError(t, s.AppendReview(ctx, p.ID, model.Review{User: "bob", Message: "fine", Rating: 4}))

	got, _ := s.GetProduct(ctx, p.ID)
	got.Reviews[0].Message = "changed"
	got.Stock = 99

	again, _ := s.GetProduct(ctx, p.ID)
	assert.Equal(t, "fine", again.Reviews[0].Message)
	assert.Equal(t, 3, again.Stock)
}

func TestMemoryStore_ListByTypeIsCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, err := s.CreateProduct(ctx, model.ProductDraft{Name: "Shirt", Type: "clothes", Price: decimal.NewFromInt(5)})
	require.NoError(t, err)
	_, err = s.CreateProduct(ctx, model.ProductDraft{Name: "Pan", Type: "kitchen", Price: decimal.NewFromInt(5)})
	require.NoError(t, err)

	got, err := s.ListProductsByType(ctx, "Clothes")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Shirt", got[0].Name)
}
