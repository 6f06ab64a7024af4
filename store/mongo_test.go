package store

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"storefront/model"
)

func TestProductUpdate_SetsOnlyPatchedFields(t *testing.T) {
	stock := 4
	upd := productUpdate(model.ProductPatch{Stock: &stock, ClearSale: true})

	set, ok := upd["$set"].(bson.M)
	require.True(t, ok)
	assert.Equal(t, bson.M{"stock": 4}, set)
	assert.Equal(t, bson.M{"sale": ""}, upd["$unset"])
	assert.NotContains(t, set, "reviews")
	assert.NotContains(t, set, "popularity")
}

func TestProductUpdate_SaleOnly(t *testing.T) {
	upd := productUpdate(model.ProductPatch{Sale: &model.Sale{DiscountPercent: decimal.NewFromInt(15)}})

	set := upd["$set"].(bson.M)
	sale, ok := set["sale"].(saleDoc)
	require.True(t, ok)
	assert.Equal(t, "15", sale.DiscountPercent.String())
	assert.NotContains(t, upd, "$unset")
}

func TestProductDoc_ModelKeepsDecimalPrecision(t *testing.T) {
	doc := productDoc{
		ID:        "p1",
		Name:      "Mug",
		Stock:     2,
		Price:     toDecimal128(decimal.RequireFromString("19.99")),
		Type:      "kitchen",
		Sale:      &saleDoc{DiscountPercent: toDecimal128(decimal.NewFromInt(50))},
		Reviews:   []reviewDoc{{User: "bob", Message: "ok", Rating: 3}},
		CreatedAt: time.Unix(0, 0).UTC(),
	}

	p, err := doc.model()
	require.NoError(t, err)
	assert.True(t, p.Price.Equal(decimal.RequireFromString("19.99")))
	assert.True(t, p.EffectivePrice().Equal(decimal.RequireFromString("10")))
	require.Len(t, p.Reviews, 1)
	assert.Equal(t, "bob", p.Reviews[0].User)
}

func TestCartDocs_PreserveSnapshotPrices(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cart := []model.CartEntry{{
		ID: "e1", ProductID: "p1", Name: "Mug",
		Price: decimal.RequireFromString("20"), EffectivePrice: decimal.RequireFromString("15.5"),
		AddedAt: at,
	}}

	got, err := fromCartDocs(toCartDocs(cart))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].EffectivePrice.Equal(decimal.RequireFromString("15.5")))
	assert.Equal(t, at, got[0].AddedAt)
	assert.Equal(t, "p1", got[0].ProductID)
}
