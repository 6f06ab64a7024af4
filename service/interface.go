package service

import (
	"context"

	"storefront/model"
)

type ServiceInterface interface {
	CreateProduct(ctx context.Context, d model.ProductDraft) (string, error)
	ListProducts(ctx context.Context) ([]model.Product, error)
	ListProductsByType(ctx context.Context, typ string) ([]model.Product, error)
	ViewProduct(ctx context.Context, id string) (model.Product, error)
	UpdateProduct(ctx context.Context, id string, patch model.ProductPatch) error

	AddToCart(ctx context.Context, sess *Session, productID string) (model.CartEntry, error)
	Cart(ctx context.Context, sess *Session) (CartView, error)
	Checkout(ctx context.Context, sess *Session) (model.Receipt, error)
	AddReview(ctx context.Context, sess *Session, productID, message string, rating int) error
}

type Authenticator interface {
	Register(ctx context.Context, username, password string) error
	Login(ctx context.Context, username, password string) (string, error)
	ParseToken(token string) (*Session, error)
}
