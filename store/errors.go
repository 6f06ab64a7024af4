package store

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicateUsername = errors.New("username already taken")
	ErrEmptyCart         = errors.New("cart empty")
	// ErrInsufficientStock returned when requested qty exceeds available stock.
	ErrInsufficientStock = errors.New("insufficient stock")
)

// OutOfStockError names the product that failed a checkout.
type OutOfStockError struct {
	ProductID string
	Name      string
	Requested int
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("out of stock: %s (%s), requested %d", e.Name, e.ProductID, e.Requested)
}

func (e *OutOfStockError) Unwrap() error { return ErrInsufficientStock }
