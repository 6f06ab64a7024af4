package model

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	// prices are stored as NUMERIC(12,2)
	maxPrice = decimal.RequireFromString("9999999999.99")
)

// MaxStock is the largest stock count a product can hold.
const MaxStock = math.MaxInt32

// centsOnly reports whether d has no digits beyond the second decimal place.
func centsOnly(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(2))
}

func checkStock(n int) error {
	if n < 0 {
		return invalid("stock", "must be >= 0")
	}
	if n > MaxStock {
		return invalid("stock", "too large")
	}
	return nil
}

func checkPrice(d decimal.Decimal) error {
	switch {
	case d.IsNegative():
		return invalid("price", "must be >= 0")
	case !centsOnly(d):
		return invalid("price", "at most 2 decimal places")
	case d.GreaterThan(maxPrice):
		return invalid("price", "too large")
	}
	return nil
}

// Sale is the on-sale variant of a product. A nil *Sale means the product is not on sale.
type Sale struct {
	DiscountPercent decimal.Decimal `json:"discount_percent"`
}

// NewSale validates the discount, which must be in (0, 100].
func NewSale(discount decimal.Decimal) (*Sale, error) {
	if !discount.IsPositive() || discount.GreaterThan(hundred) {
		return nil, invalid("discount", "must be greater than 0 and at most 100")
	}
	if !centsOnly(discount) {
		return nil, invalid("discount", "at most 2 decimal places")
	}
	return &Sale{DiscountPercent: discount}, nil
}

// Apply returns price reduced by the discount, rounded to cents.
func (s Sale) Apply(price decimal.Decimal) decimal.Decimal {
	return price.Mul(hundred.Sub(s.DiscountPercent)).Div(hundred).Round(2)
}

type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Stock       int             `json:"stock"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
	Image       string          `json:"image"`
	Type        string          `json:"type"`
	Popularity  int             `json:"popularity"`
	Sale        *Sale           `json:"sale,omitempty"`
	Reviews     []Review        `json:"reviews"`
	CreatedAt   time.Time       `json:"created_at"`
}

// EffectivePrice is the price a buyer pays right now.
func (p Product) EffectivePrice() decimal.Decimal {
	if p.Sale == nil {
		return p.Price
	}
	return p.Sale.Apply(p.Price)
}

// ProductDraft is the admin submission for a new product.
type ProductDraft struct {
	Name        string
	Stock       int
	Price       decimal.Decimal
	Description string
	Image       string
	Type        string
}

// Normalize trims the text fields, lower-cases the type and validates the draft.
func (d *ProductDraft) Normalize() error {
	d.Name = strings.TrimSpace(d.Name)
	d.Description = strings.TrimSpace(d.Description)
	d.Type = NormalizeType(d.Type)
	if d.Name == "" {
		return invalid("name", "required")
	}
	if d.Type == "" {
		return invalid("type", "required")
	}
	if err := checkStock(d.Stock); err != nil {
		return err
	}
	return checkPrice(d.Price)
}

// ProductPatch is a field-scoped update. Nil fields are left untouched.
type ProductPatch struct {
	Name        *string
	Stock       *int
	Price       *decimal.Decimal
	Description *string
	Image       *string
	Type        *string
	Sale        *Sale
	ClearSale   bool
}

func (p ProductPatch) Empty() bool {
	return p.Name == nil && p.Stock == nil && p.Price == nil && p.Description == nil &&
		p.Image == nil && p.Type == nil && p.Sale == nil && !p.ClearSale
}

// Validate normalizes the set fields in place and checks them.
func (p *ProductPatch) Validate() error {
	if p.Name != nil {
		n := strings.TrimSpace(*p.Name)
		if n == "" {
			return invalid("name", "must not be empty")
		}
		p.Name = &n
	}
	if p.Type != nil {
		t := NormalizeType(*p.Type)
		if t == "" {
			return invalid("type", "must not be empty")
		}
		p.Type = &t
	}
	if p.Stock != nil {
		if err := checkStock(*p.Stock); err != nil {
			return err
		}
	}
	if p.Price != nil {
		if err := checkPrice(*p.Price); err != nil {
			return err
		}
	}
	if p.Sale != nil {
		if p.ClearSale {
			return invalid("sale", "cannot both set and clear")
		}
		if _, err := NewSale(p.Sale.DiscountPercent); err != nil {
			return err
		}
	}
	return nil
}

// Apply writes the set fields onto prod. Reviews and popularity are never touched.
func (p ProductPatch) Apply(prod *Product) {
	if p.Name != nil {
		prod.Name = *p.Name
	}
	if p.Stock != nil {
		prod.Stock = *p.Stock
	}
	if p.Price != nil {
		prod.Price = *p.Price
	}
	if p.Description != nil {
		prod.Description = *p.Description
	}
	if p.Image != nil {
		prod.Image = *p.Image
	}
	if p.Type != nil {
		prod.Type = *p.Type
	}
	if p.Sale != nil {
		s := *p.Sale
		prod.Sale = &s
	}
	if p.ClearSale {
		prod.Sale = nil
	}
}

func NormalizeType(t string) string {
	return strings.ToLower(strings.TrimSpace(t))
}

// ParseStock parses a form value into a stock count.
func ParseStock(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, invalid("stock", "must be an integer")
	}
	if err := checkStock(n); err != nil {
		return 0, err
	}
	return n, nil
}

// ParsePrice parses a form value into a price.
func ParsePrice(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, invalid("price", "must be a number")
	}
	if err := checkPrice(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}
