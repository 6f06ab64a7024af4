package service

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"storefront/model"
	"storefront/store"
)

// Service coordinates the catalog, carts, checkout and reviews.
type Service struct {
	store store.Store
	now   func() time.Time

	// per-user mutexes so add-to-cart and checkout of one user never
	// interleave in this process. Keys are username -> *sync.Mutex
	locks sync.Map
}

func NewService(s store.Store) *Service {
	return &Service{store: s, now: time.Now}
}

// helper: acquire per-user lock (process-local). Returns unlock func.
func (s *Service) lockForUser(username string) func() {
	if v, ok := s.locks.Load(username); ok {
		m := v.(*sync.Mutex)
		m.Lock()
		return m.Unlock
	}
	actual, _ := s.locks.LoadOrStore(username, &sync.Mutex{})
	m := actual.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}

func (s *Service) CreateProduct(ctx context.Context, d model.ProductDraft) (string, error) {
	if err := d.Normalize(); err != nil {
		return "", err
	}
	id, err := s.store.CreateProduct(ctx, d)
	if err != nil {
		return "", err
	}
	log.Printf("product %s created: %q type=%s stock=%d", id, d.Name, d.Type, d.Stock)
	return id, nil
}

func (s *Service) ListProducts(ctx context.Context) ([]model.Product, error) {
	return s.store.ListProducts(ctx)
}

func (s *Service) ListProductsByType(ctx context.Context, typ string) ([]model.Product, error) {
	return s.store.ListProductsByType(ctx, typ)
}

// ViewProduct loads a product and counts the view towards its popularity.
func (s *Service) ViewProduct(ctx context.Context, id string) (model.Product, error) {
	p, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return p, err
	}
	if err := s.store.IncrementPopularity(ctx, id); err != nil {
		log.Printf("popularity %s: %v", id, err)
	} else {
		p.Popularity++
	}
	return p, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, patch model.ProductPatch) error {
	if id == "" {
		return &model.ValidationError{Field: "id", Reason: "required"}
	}
	if err := patch.Validate(); err != nil {
		return err
	}
	return s.store.UpdateProduct(ctx, id, patch)
}

// AddToCart appends a snapshot of the product to the user's cart.
func (s *Service) AddToCart(ctx context.Context, sess *Session, productID string) (model.CartEntry, error) {
	if sess == nil {
		return model.CartEntry{}, ErrUnauthenticated
	}
	unlock := s.lockForUser(sess.Username)
	defer unlock()

	p, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		return model.CartEntry{}, err
	}
	u, err := s.store.GetUser(ctx, sess.Username)
	if err != nil {
		return model.CartEntry{}, err
	}
	entry := model.NewCartEntry(p, s.now())
	if err := s.store.SetCart(ctx, sess.Username, append(u.Cart, entry)); err != nil {
		return model.CartEntry{}, err
	}
	return entry, nil
}

// Cart returns the user's cart compared against the live catalog.
func (s *Service) Cart(ctx context.Context, sess *Session) (CartView, error) {
	if sess == nil {
		return CartView{}, ErrUnauthenticated
	}
	u, err := s.store.GetUser(ctx, sess.Username)
	if err != nil {
		return CartView{}, err
	}

	live := map[string]*model.Product{}
	demand := map[string]int{}
	for _, e := range u.Cart {
		demand[e.ProductID]++
		if _, seen := live[e.ProductID]; seen {
			continue
		}
		p, err := s.store.GetProduct(ctx, e.ProductID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			live[e.ProductID] = nil
		case err != nil:
			return CartView{}, err
		default:
			live[e.ProductID] = &p
		}
	}

	view := CartView{Username: u.Username, Items: make([]CartItemView, 0, len(u.Cart))}
	for _, e := range u.Cart {
		item := CartItemView{CartEntry: e}
		if p := live[e.ProductID]; p == nil {
			item.Unavailable = true
		} else {
			item.LivePrice = p.EffectivePrice()
			item.PriceChanged = !item.LivePrice.Equal(e.EffectivePrice)
			item.Unavailable = p.Stock < demand[e.ProductID]
		}
		view.Total = view.Total.Add(e.EffectivePrice)
		view.Items = append(view.Items, item)
	}
	return view, nil
}

// Checkout commits the whole cart or nothing. It is not idempotent: a retry
// after success buys the (by then empty) cart again.
func (s *Service) Checkout(ctx context.Context, sess *Session) (model.Receipt, error) {
	if sess == nil {
		return model.Receipt{}, ErrUnauthenticated
	}
	unlock := s.lockForUser(sess.Username)
	defer unlock()

	committed, err := s.store.Checkout(ctx, sess.Username)
	if err != nil {
		return model.Receipt{}, err
	}
	r := model.NewReceipt(sess.Username, committed, s.now())
	log.Printf("checkout %s: %d lines, total %s", sess.Username, len(r.Lines), r.Total.StringFixed(2))
	return r, nil
}

func (s *Service) AddReview(ctx context.Context, sess *Session, productID, message string, rating int) error {
	if sess == nil {
		return ErrUnauthenticated
	}
	r := model.Review{User: sess.Username, Message: message, Rating: rating, CreatedAt: s.now()}
	if err := r.Validate(); err != nil {
		return err
	}
	return s.store.AppendReview(ctx, productID, r)
}

// DTOs
type CartItemView struct {
	model.CartEntry
	LivePrice    decimal.Decimal `json:"live_price"`
	PriceChanged bool            `json:"price_changed"`
	Unavailable  bool            `json:"unavailable"`
}

type CartView struct {
	Username string          `json:"username"`
	Items    []CartItemView  `json:"items"`
	Total    decimal.Decimal `json:"total"`
}
