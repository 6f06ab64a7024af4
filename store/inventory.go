package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// DecrementStock removes amount units in a single conditional update, so
// concurrent callers can never drive stock below zero.
func (s *PostgresStore) DecrementStock(ctx context.Context, id string, amount int) error {
	if amount <= 0 {
		return errors.New("amount must be > 0")
	}
	res, err := s.DB.ExecContext(ctx,
		`UPDATE products SET stock = stock - $1 WHERE id = $2 AND stock >= $1`, amount, id)
	if err != nil {
		return err
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if ra > 0 {
		return nil
	}

	var stock int
	err = s.DB.QueryRowContext(ctx, `SELECT stock FROM products WHERE id = $1`, id).Scan(&stock)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("product %s has %d, requested %d: %w", id, stock, amount, ErrInsufficientStock)
}

func (s *PostgresStore) IncrementPopularity(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE products SET popularity = popularity + 1 WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectRow(res, "product "+id)
}
