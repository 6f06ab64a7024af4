package service

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"storefront/model"
	"storefront/store"
)

type CheckoutTestSuite struct {
	suite.Suite
	store *store.MemoryStore
	svc   *Service
}

func (s *CheckoutTestSuite) SetupTest() {
	s.store = store.NewMemoryStore()
	s.svc = NewService(s.store)
}

func (s *CheckoutTestSuite) product(name string, stock int, price string) string {
	id, err := s.svc.CreateProduct(ctx, model.ProductDraft{
		Name: name, Stock: stock, Price: decimal.RequireFromString(price), Type: "misc",
	})
	s.Require().NoError(err)
	return id
}

func (s *CheckoutTestSuite) user(name string) *Session {
	s.Require().NoError(s.store.CreateUser(ctx, name, "hash"))
	return &Session{Username: name}
}

func (s *CheckoutTestSuite) stock(id string) int {
	p, err := s.store.GetProduct(ctx, id)
	s.Require().NoError(err)
	return p.Stock
}

func (s *CheckoutTestSuite) cart(sess *Session) []model.CartEntry {
	u, err := s.store.GetUser(ctx, sess.Username)
	s.Require().NoError(err)
	return u.Cart
}

func (s *CheckoutTestSuite) TestCheckoutSuccess() {
	a := s.product("A", 5, "10")
	b := s.product("B", 3, "4.50")
	alice := s.user("alice")

	for _, id := range []string{a, b} {
		_, err := s.svc.AddToCart(ctx, alice, id)
		s.Require().NoError(err)
	}

	receipt, err := s.svc.Checkout(ctx, alice)
	s.Require().NoError(err)
	s.Equal(4, s.stock(a))
	s.Equal(2, s.stock(b))
	s.Empty(s.cart(alice))
	s.Len(receipt.Lines, 2)
	s.True(receipt.Total.Equal(decimal.RequireFromString("14.50")), receipt.Total.String())
}

func (s *CheckoutTestSuite) TestCheckoutAtomicity() {
	a := s.product("A", 1, "10")
	b := s.product("B", 1, "10")
	alice := s.user("alice")

	for _, id := range []string{a, b} {
		_, err := s.svc.AddToCart(ctx, alice, id)
		s.Require().NoError(err)
	}
	zero := 0
	s.Require().NoError(s.svc.UpdateProduct(ctx, b, model.ProductPatch{Stock: &zero}))
	before := s.cart(alice)

	_, err := s.svc.Checkout(ctx, alice)
	var oos *store.OutOfStockError
	s.Require().True(errors.As(err, &oos), "got %v", err)
	s.Equal(b, oos.ProductID)
	s.Equal("B", oos.Name)

	s.Equal(1, s.stock(a))
	s.Equal(0, s.stock(b))
	s.Equal(before, s.cart(alice))
}

func (s *CheckoutTestSuite) TestCheckoutEmptyCart() {
	alice := s.user("alice")
	_, err := s.svc.Checkout(ctx, alice)
	s.ErrorIs(err, store.ErrEmptyCart)
}

func (s *CheckoutTestSuite) TestAddToCartIsSnapshot() {
	p := s.product("P", 5, "10")
	alice := s.user("alice")

	entry, err := s.svc.AddToCart(ctx, alice, p)
	s.Require().NoError(err)

	twenty := decimal.NewFromInt(20)
	s.Require().NoError(s.svc.UpdateProduct(ctx, p, model.ProductPatch{Price: &twenty}))

	cart := s.cart(alice)
	s.Require().Len(cart, 1)
	s.Equal(entry.ID, cart[0].ID)
	s.True(cart[0].Price.Equal(decimal.NewFromInt(10)))

	view, err := s.svc.Cart(ctx, alice)
	s.Require().NoError(err)
	s.Require().Len(view.Items, 1)
	s.True(view.Items[0].PriceChanged)
	s.True(view.Items[0].LivePrice.Equal(twenty))
	s.True(view.Total.Equal(decimal.NewFromInt(10)))
}

func (s *CheckoutTestSuite) TestAddToCartSnapshotsSalePrice() {
	p := s.product("P", 5, "80")
	sale, err := model.NewSale(decimal.NewFromInt(25))
	s.Require().NoError(err)
	s.Require().NoError(s.svc.UpdateProduct(ctx, p, model.ProductPatch{Sale: sale}))
	alice := s.user("alice")

	entry, err := s.svc.AddToCart(ctx, alice, p)
	s.Require().NoError(err)
	s.True(entry.Price.Equal(decimal.NewFromInt(80)))
	s.True(entry.EffectivePrice.Equal(decimal.NewFromInt(60)))
}

func (s *CheckoutTestSuite) TestCartViewFlagsShortStock() {
	p := s.product("P", 1, "3")
	alice := s.user("alice")
	for i := 0; i < 2; i++ {
		_, err := s.svc.AddToCart(ctx, alice, p)
		s.Require().NoError(err)
	}

	view, err := s.svc.Cart(ctx, alice)
	s.Require().NoError(err)
	s.Require().Len(view.Items, 2)
	for _, it := range view.Items {
		s.True(it.Unavailable)
		s.False(it.PriceChanged)
	}
}

func (s *CheckoutTestSuite) TestAddToCartMissingProduct() {
	alice := s.user("alice")
	_, err := s.svc.AddToCart(ctx, alice, "nope")
	s.ErrorIs(err, store.ErrNotFound)
	s.Empty(s.cart(alice))
}

func (s *CheckoutTestSuite) TestConcurrentCheckoutSameProduct() {
	p := s.product("P", 1, "10")
	users := []*Session{s.user("alice"), s.user("bob")}
	for _, u := range users {
		_, err := s.svc.AddToCart(ctx, u, p)
		s.Require().NoError(err)
	}

	errs := make([]error, len(users))
	var wg sync.WaitGroup
	for i, u := range users {
		wg.Add(1)
		go func(i int, u *Session) {
			defer wg.Done()
			_, errs[i] = s.svc.Checkout(ctx, u)
		}(i, u)
	}
	wg.Wait()

	var ok, oos int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, store.ErrInsufficientStock):
			oos++
		default:
			s.Failf("unexpected error", "%v", err)
		}
	}
	s.Equal(1, ok)
	s.Equal(1, oos)
	s.Equal(0, s.stock(p))
}

func (s *CheckoutTestSuite) TestStockAccounting() {
	p := s.product("P", 7, "1")
	var sessions []*Session
	for i := 0; i < 10; i++ {
		sessions = append(sessions, s.user(fmt.Sprintf("user%d", i)))
	}
	for _, u := range sessions {
		_, err := s.svc.AddToCart(ctx, u, p)
		s.Require().NoError(err)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		committed int
	)
	for _, u := range sessions {
		wg.Add(1)
		go func(u *Session) {
			defer wg.Done()
			if _, err := s.svc.Checkout(ctx, u); err == nil {
				mu.Lock()
				committed++
				mu.Unlock()
			}
		}(u)
	}
	wg.Wait()

	s.Equal(7, committed)
	s.Equal(0, s.stock(p))
}

func (s *CheckoutTestSuite) TestReviewsAppendInOrder() {
	p := s.product("P", 1, "1")
	alice, bob := s.user("alice"), s.user("bob")

	s.Require().NoError(s.svc.AddReview(ctx, alice, p, "first", 5))
	s.Require().NoError(s.svc.AddReview(ctx, bob, p, "second", 2))
	s.ErrorIs(s.svc.AddReview(ctx, nil, p, "anon", 3), ErrUnauthenticated)

	got, err := s.store.GetProduct(ctx, p)
	s.Require().NoError(err)
	s.Require().Len(got.Reviews, 2)
	s.Equal("first", got.Reviews[0].Message)
	s.Equal("alice", got.Reviews[0].User)
	s.Equal("second", got.Reviews[1].Message)
}

func TestCheckoutTestSuite(t *testing.T) {
	suite.Run(t, new(CheckoutTestSuite))
}
