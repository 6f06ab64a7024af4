package store

import (
	"context"

	"storefront/model"
)

// CatalogStore holds product documents.
type CatalogStore interface {
	CreateProduct(ctx context.Context, d model.ProductDraft) (string, error)
	ListProducts(ctx context.Context) ([]model.Product, error)
	ListProductsByType(ctx context.Context, typ string) ([]model.Product, error)
	GetProduct(ctx context.Context, id string) (model.Product, error)
	UpdateProduct(ctx context.Context, id string, patch model.ProductPatch) error
	DecrementStock(ctx context.Context, id string, amount int) error
	AppendReview(ctx context.Context, id string, r model.Review) error
	IncrementPopularity(ctx context.Context, id string) error
}

// AccountStore holds user documents and their embedded carts.
type AccountStore interface {
	CreateUser(ctx context.Context, username, passwordHash string) error
	GetUser(ctx context.Context, username string) (model.User, error)
	SetCart(ctx context.Context, username string, cart []model.CartEntry) error
	ClearCart(ctx context.Context, username string) error
}

type Store interface {
	CatalogStore
	AccountStore

	// Checkout decrements stock for every entry of the user's cart and
	// clears the cart as one atomic unit. It returns the committed entries.
	// If any product lacks stock nothing is changed and an *OutOfStockError
	// is returned.
	Checkout(ctx context.Context, username string) ([]model.CartEntry, error)

	Close() error
}
