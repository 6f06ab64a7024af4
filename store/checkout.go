package store

import (
	"context"

	"storefront/model"
)

// checkoutTxn is the set of operations one transactional checkout needs.
// Implementations run every call inside the same database transaction.
type checkoutTxn interface {
	// loadCart reads the user's cart and locks it for the transaction.
	loadCart(ctx context.Context, username string) ([]model.CartEntry, error)
	// takeStock decrements the product if it has at least d.Quantity units.
	// ok is false when it does not, or when the product is gone.
	takeStock(ctx context.Context, d model.Demand) (ok bool, err error)
	clearCart(ctx context.Context, username string) error
}

// runCheckout takes stock for every product in the cart and empties it. The
// first short product aborts with an *OutOfStockError and the caller rolls
// the transaction back.
func runCheckout(ctx context.Context, txn checkoutTxn, username string) ([]model.CartEntry, error) {
	cart, err := txn.loadCart(ctx, username)
	if err != nil {
		return nil, err
	}
	if len(cart) == 0 {
		return nil, ErrEmptyCart
	}
	for _, d := range model.Demands(cart) {
		ok, err := txn.takeStock(ctx, d)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &OutOfStockError{ProductID: d.ProductID, Name: d.Name, Requested: d.Quantity}
		}
	}
	if err := txn.clearCart(ctx, username); err != nil {
		return nil, err
	}
	return cart, nil
}
