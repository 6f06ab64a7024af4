package service

import (
	"errors"

	"storefront/model"
	"storefront/store"
)

var (
	ErrUnauthenticated    = errors.New("login required")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Kind names the failure class of err for redirects and logs.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, model.ErrValidation):
		return "validation"
	case errors.Is(err, store.ErrInsufficientStock):
		return "out_of_stock"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	case errors.Is(err, store.ErrDuplicateUsername):
		return "duplicate_username"
	case errors.Is(err, store.ErrEmptyCart):
		return "empty_cart"
	default:
		return "internal"
	}
}
