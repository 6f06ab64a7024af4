package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"storefront/model"
)

// MemoryStore is an in-process Store. A single lock covers every document,
// so Checkout validates the whole cart before committing any decrement.
type MemoryStore struct {
	mu       sync.RWMutex
	products map[string]*model.Product
	users    map[string]*model.User
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products: make(map[string]*model.Product),
		users:    make(map[string]*model.User),
		now:      time.Now,
	}
}

func (s *MemoryStore) Close() error { return nil }

func copyProduct(p *model.Product) model.Product {
	out := *p
	if p.Sale != nil {
		sale := *p.Sale
		out.Sale = &sale
	}
	out.Reviews = append([]model.Review{}, p.Reviews...)
	return out
}

func copyCart(cart []model.CartEntry) []model.CartEntry {
	return append([]model.CartEntry{}, cart...)
}

func (s *MemoryStore) CreateProduct(_ context.Context, d model.ProductDraft) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	s.products[id] = &model.Product{
		ID:          id,
		Name:        d.Name,
		Stock:       d.Stock,
		Price:       d.Price,
		Description: d.Description,
		Image:       d.Image,
		Type:        d.Type,
		Reviews:     []model.Review{},
		CreatedAt:   s.now(),
	}
	return id, nil
}

func (s *MemoryStore) ListProducts(_ context.Context) ([]model.Product, error) {
	return s.filter(func(*model.Product) bool { return true }), nil
}

func (s *MemoryStore) ListProductsByType(_ context.Context, typ string) ([]model.Product, error) {
	typ = model.NormalizeType(typ)
	return s.filter(func(p *model.Product) bool { return p.Type == typ }), nil
}

func (s *MemoryStore) filter(keep func(*model.Product) bool) []model.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []model.Product{}
	for _, p := range s.products {
		if keep(p) {
			out = append(out, copyProduct(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *MemoryStore) GetProduct(_ context.Context, id string) (model.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return model.Product{}, fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	return copyProduct(p), nil
}

func (s *MemoryStore) UpdateProduct(_ context.Context, id string, patch model.ProductPatch) error {
	return s.withProduct(id, func(p *model.Product) error {
		patch.Apply(p)
		return nil
	})
}

func (s *MemoryStore) DecrementStock(_ context.Context, id string, amount int) error {
	if amount <= 0 {
		return errors.New("amount must be > 0")
	}
	return s.withProduct(id, func(p *model.Product) error {
		if p.Stock < amount {
			return fmt.Errorf("product %s has %d, requested %d: %w", id, p.Stock, amount, ErrInsufficientStock)
		}
		p.Stock -= amount
		return nil
	})
}

func (s *MemoryStore) AppendReview(_ context.Context, id string, r model.Review) error {
	return s.withProduct(id, func(p *model.Product) error {
		p.Reviews = append(p.Reviews, r)
		return nil
	})
}

func (s *MemoryStore) IncrementPopularity(_ context.Context, id string) error {
	return s.withProduct(id, func(p *model.Product) error {
		p.Popularity++
		return nil
	})
}

func (s *MemoryStore) withProduct(id string, fn func(*model.Product) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	return fn(p)
}

func (s *MemoryStore) CreateUser(_ context.Context, username, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[username]; ok {
		return fmt.Errorf("user %s: %w", username, ErrDuplicateUsername)
	}
	s.users[username] = &model.User{Username: username, PasswordHash: passwordHash, Cart: []model.CartEntry{}}
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context, username string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[username]
	if !ok {
		return model.User{}, fmt.Errorf("user %s: %w", username, ErrNotFound)
	}
	out := *u
	out.Cart = copyCart(u.Cart)
	return out, nil
}

func (s *MemoryStore) SetCart(_ context.Context, username string, cart []model.CartEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[username]
	if !ok {
		return fmt.Errorf("user %s: %w", username, ErrNotFound)
	}
	u.Cart = copyCart(cart)
	return nil
}

func (s *MemoryStore) ClearCart(ctx context.Context, username string) error {
	return s.SetCart(ctx, username, nil)
}

func (s *MemoryStore) Checkout(_ context.Context, username string) ([]model.CartEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[username]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", username, ErrNotFound)
	}
	if len(u.Cart) == 0 {
		return nil, ErrEmptyCart
	}

	demands := model.Demands(u.Cart)
	for _, d := range demands {
		p, ok := s.products[d.ProductID]
		if !ok || p.Stock < d.Quantity {
			return nil, &OutOfStockError{ProductID: d.ProductID, Name: d.Name, Requested: d.Quantity}
		}
	}
	for _, d := range demands {
		s.products[d.ProductID].Stock -= d.Quantity
	}

	committed := u.Cart
	u.Cart = []model.CartEntry{}
	return committed, nil
}
