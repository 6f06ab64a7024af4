package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"storefront/model"
)

const productColumns = `id, name, stock, price, description, image, type, popularity, sale_discount, reviews, created_at`

// uniqueViolation is the Postgres SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

// PostgresStore keeps products and users as rows; the embedded review and
// cart arrays live in JSONB columns.
type PostgresStore struct {
	DB *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	DB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := DB.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{DB: DB}, nil
}

func (s *PostgresStore) Close() error { return s.DB.Close() }

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProduct(row rowScanner) (model.Product, error) {
	var (
		p       model.Product
		sale    decimal.NullDecimal
		reviews []byte
	)
	err := row.Scan(&p.ID, &p.Name, &p.Stock, &p.Price, &p.Description, &p.Image,
		&p.Type, &p.Popularity, &sale, &reviews, &p.CreatedAt)
	if err != nil {
		return p, err
	}
	if sale.Valid {
		p.Sale = &model.Sale{DiscountPercent: sale.Decimal}
	}
	p.Reviews = []model.Review{}
	if len(reviews) > 0 {
		if err := json.Unmarshal(reviews, &p.Reviews); err != nil {
			return p, fmt.Errorf("decode reviews of %s: %w", p.ID, err)
		}
	}
	return p, nil
}

// CreateProduct inserts a product and returns its id
func (s *PostgresStore) CreateProduct(ctx context.Context, d model.ProductDraft) (string, error) {
	id := uuid.NewString()
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO products (id, name, stock, price, description, image, type) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, d.Name, d.Stock, d.Price, d.Description, d.Image, d.Type,
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *PostgresStore) ListProducts(ctx context.Context) ([]model.Product, error) {
	return s.queryProducts(ctx, `SELECT `+productColumns+` FROM products ORDER BY created_at, id`)
}

func (s *PostgresStore) ListProductsByType(ctx context.Context, typ string) ([]model.Product, error) {
	return s.queryProducts(ctx,
		`SELECT `+productColumns+` FROM products WHERE type = $1 ORDER BY created_at, id`,
		model.NormalizeType(typ))
}

func (s *PostgresStore) queryProducts(ctx context.Context, q string, args ...interface{}) ([]model.Product, error) {
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetProduct(ctx context.Context, id string) (model.Product, error) {
	p, err := scanProduct(s.DB.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return p, fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	return p, err
}

// UpdateProduct writes only the fields set in the patch.
func (s *PostgresStore) UpdateProduct(ctx context.Context, id string, patch model.ProductPatch) error {
	if patch.Empty() {
		_, err := s.GetProduct(ctx, id)
		return err
	}
	var (
		sets []string
		args []interface{}
	)
	set := func(col string, v interface{}) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if patch.Name != nil {
		set("name", *patch.Name)
	}
	if patch.Stock != nil {
		set("stock", *patch.Stock)
	}
	if patch.Price != nil {
		set("price", *patch.Price)
	}
	if patch.Description != nil {
		set("description", *patch.Description)
	}
	if patch.Image != nil {
		set("image", *patch.Image)
	}
	if patch.Type != nil {
		set("type", *patch.Type)
	}
	if patch.Sale != nil {
		set("sale_discount", patch.Sale.DiscountPercent)
	}
	if patch.ClearSale {
		sets = append(sets, "sale_discount = NULL")
	}
	args = append(args, id)
	q := fmt.Sprintf(`UPDATE products SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args))

	res, err := s.DB.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	return expectRow(res, "product "+id)
}

func (s *PostgresStore) AppendReview(ctx context.Context, id string, r model.Review) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	res, err := s.DB.ExecContext(ctx,
		`UPDATE products SET reviews = reviews || jsonb_build_array($1::jsonb) WHERE id = $2`,
		string(b), id)
	if err != nil {
		return err
	}
	return expectRow(res, "product "+id)
}

func (s *PostgresStore) CreateUser(ctx context.Context, username, passwordHash string) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO users (username, password_hash) VALUES ($1, $2)`, username, passwordHash)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("user %s: %w", username, ErrDuplicateUsername)
	}
	return err
}

func (s *PostgresStore) GetUser(ctx context.Context, username string) (model.User, error) {
	var (
		u   model.User
		raw []byte
	)
	err := s.DB.QueryRowContext(ctx,
		`SELECT username, password_hash, cart FROM users WHERE username = $1`, username,
	).Scan(&u.Username, &u.PasswordHash, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return u, fmt.Errorf("user %s: %w", username, ErrNotFound)
	}
	if err != nil {
		return u, err
	}
	u.Cart, err = decodeCart(raw)
	return u, err
}

func (s *PostgresStore) SetCart(ctx context.Context, username string, cart []model.CartEntry) error {
	if cart == nil {
		cart = []model.CartEntry{}
	}
	b, err := json.Marshal(cart)
	if err != nil {
		return err
	}
	res, err := s.DB.ExecContext(ctx, `UPDATE users SET cart = $1::jsonb WHERE username = $2`, string(b), username)
	if err != nil {
		return err
	}
	return expectRow(res, "user "+username)
}

func (s *PostgresStore) ClearCart(ctx context.Context, username string) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE users SET cart = '[]'::jsonb WHERE username = $1`, username)
	if err != nil {
		return err
	}
	return expectRow(res, "user "+username)
}

// Checkout locks the user row, conditionally decrements each product in
// product-id order and clears the cart, all inside one transaction.
func (s *PostgresStore) Checkout(ctx context.Context, username string) ([]model.CartEntry, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	// no-op once committed
	defer func() { _ = tx.Rollback() }()

	txn := &pgCheckout{tx: tx}
	defer txn.close()

	cart, err := runCheckout(ctx, txn, username)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return cart, nil
}

var _ checkoutTxn = (*pgCheckout)(nil)

type pgCheckout struct {
	tx   *sql.Tx
	stmt *sql.Stmt
}

func (c *pgCheckout) loadCart(ctx context.Context, username string) ([]model.CartEntry, error) {
	var raw []byte
	err := c.tx.QueryRowContext(ctx, `SELECT cart FROM users WHERE username = $1 FOR UPDATE`, username).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", username, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return decodeCart(raw)
}

func (c *pgCheckout) takeStock(ctx context.Context, d model.Demand) (bool, error) {
	if c.stmt == nil {
		stmt, err := c.tx.PrepareContext(ctx, `UPDATE products SET stock = stock - $1 WHERE id = $2 AND stock >= $1`)
		if err != nil {
			return false, err
		}
		c.stmt = stmt
	}
	res, err := c.stmt.ExecContext(ctx, d.Quantity, d.ProductID)
	if err != nil {
		return false, err
	}
	ra, err := res.RowsAffected()
	return ra > 0, err
}

func (c *pgCheckout) clearCart(ctx context.Context, username string) error {
	_, err := c.tx.ExecContext(ctx, `UPDATE users SET cart = '[]'::jsonb WHERE username = $1`, username)
	return err
}

func (c *pgCheckout) close() {
	if c.stmt != nil {
		c.stmt.Close()
	}
}

func decodeCart(raw []byte) ([]model.CartEntry, error) {
	cart := []model.CartEntry{}
	if len(raw) == 0 {
		return cart, nil
	}
	if err := json.Unmarshal(raw, &cart); err != nil {
		return nil, fmt.Errorf("decode cart: %w", err)
	}
	return cart, nil
}

func expectRow(res sql.Result, what string) error {
	ra, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if ra == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}
