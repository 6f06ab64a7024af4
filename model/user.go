package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type User struct {
	Username     string      `json:"username"`
	PasswordHash string      `json:"-"`
	Cart         []CartEntry `json:"cart"`
}

// CartEntry is a copy of a product taken when it was added to the cart.
// Later changes to the live product do not touch it.
type CartEntry struct {
	ID             string          `json:"id"`
	ProductID      string          `json:"product_id"`
	Name           string          `json:"name"`
	Type           string          `json:"type"`
	Image          string          `json:"image"`
	Price          decimal.Decimal `json:"price"`
	EffectivePrice decimal.Decimal `json:"effective_price"`
	AddedAt        time.Time       `json:"added_at"`
}

func NewCartEntry(p Product, at time.Time) CartEntry {
	return CartEntry{
		ID:             uuid.NewString(),
		ProductID:      p.ID,
		Name:           p.Name,
		Type:           p.Type,
		Image:          p.Image,
		Price:          p.Price,
		EffectivePrice: p.EffectivePrice(),
		AddedAt:        at,
	}
}
