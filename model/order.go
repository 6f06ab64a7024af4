package model

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Demand is the number of units of one product a cart asks for.
type Demand struct {
	ProductID string
	Name      string
	Quantity  int
}

// Demands totals cart entries per product, ordered by product id so that
// stores lock rows in a stable order.
func Demands(cart []CartEntry) []Demand {
	idx := map[string]int{}
	var out []Demand
	for _, e := range cart {
		i, ok := idx[e.ProductID]
		if !ok {
			i = len(out)
			idx[e.ProductID] = i
			out = append(out, Demand{ProductID: e.ProductID, Name: e.Name})
		}
		out[i].Quantity++
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ProductID < out[b].ProductID })
	return out
}

// Line is the quantity of one product bought at one snapshot price.
type Line struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// Lines groups cart entries by product and snapshot price, so a product added
// before and after a price change yields two lines.
func Lines(cart []CartEntry) []Line {
	type key struct {
		id    string
		price string
	}
	idx := map[key]int{}
	var out []Line
	for _, e := range cart {
		k := key{e.ProductID, e.EffectivePrice.String()}
		i, ok := idx[k]
		if !ok {
			i = len(out)
			idx[k] = i
			out = append(out, Line{ProductID: e.ProductID, Name: e.Name, UnitPrice: e.EffectivePrice})
		}
		out[i].Quantity++
	}
	for i := range out {
		out[i].Subtotal = out[i].UnitPrice.Mul(decimal.NewFromInt(int64(out[i].Quantity)))
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].ProductID != out[b].ProductID {
			return out[a].ProductID < out[b].ProductID
		}
		return out[a].UnitPrice.LessThan(out[b].UnitPrice)
	})
	return out
}

// Receipt describes a committed checkout.
type Receipt struct {
	Username     string          `json:"username"`
	Lines        []Line          `json:"lines"`
	Total        decimal.Decimal `json:"total"`
	CheckedOutAt time.Time       `json:"checked_out_at"`
}

func NewReceipt(username string, committed []CartEntry, at time.Time) Receipt {
	r := Receipt{Username: username, Lines: Lines(committed), CheckedOutAt: at}
	for _, l := range r.Lines {
		r.Total = r.Total.Add(l.Subtotal)
	}
	return r
}
