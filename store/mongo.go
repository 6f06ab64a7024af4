package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront/model"
)

type productDoc struct {
	ID          string               `bson:"_id"`
	Name        string               `bson:"name"`
	Stock       int                  `bson:"stock"`
	Price       primitive.Decimal128 `bson:"price"`
	Description string               `bson:"description"`
	Image       string               `bson:"image"`
	Type        string               `bson:"type"`
	Popularity  int                  `bson:"popularity"`
	Sale        *saleDoc             `bson:"sale,omitempty"`
	Reviews     []reviewDoc          `bson:"reviews"`
	CreatedAt   time.Time            `bson:"createdAt"`
}

type saleDoc struct {
	DiscountPercent primitive.Decimal128 `bson:"discountPercent"`
}

type reviewDoc struct {
	User      string    `bson:"user"`
	Message   string    `bson:"message"`
	Rating    int       `bson:"rating"`
	CreatedAt time.Time `bson:"createdAt"`
}

type userDoc struct {
	Username     string         `bson:"_id"`
	PasswordHash string         `bson:"passwordHash"`
	Cart         []cartEntryDoc `bson:"cart"`
}

type cartEntryDoc struct {
	ID             string               `bson:"id"`
	ProductID      string               `bson:"productId"`
	Name           string               `bson:"name"`
	Type           string               `bson:"type"`
	Image          string               `bson:"image"`
	Price          primitive.Decimal128 `bson:"price"`
	EffectivePrice primitive.Decimal128 `bson:"effectivePrice"`
	AddedAt        time.Time            `bson:"addedAt"`
}

func toDecimal128(d decimal.Decimal) primitive.Decimal128 {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		// decimal.String never produces unparseable output
		panic(err)
	}
	return v
}

func fromDecimal128(v primitive.Decimal128) (decimal.Decimal, error) {
	return decimal.NewFromString(v.String())
}

func toReviewDoc(r model.Review) reviewDoc {
	return reviewDoc{User: r.User, Message: r.Message, Rating: r.Rating, CreatedAt: r.CreatedAt}
}

func (d productDoc) model() (model.Product, error) {
	p := model.Product{
		ID:          d.ID,
		Name:        d.Name,
		Stock:       d.Stock,
		Description: d.Description,
		Image:       d.Image,
		Type:        d.Type,
		Popularity:  d.Popularity,
		Reviews:     make([]model.Review, 0, len(d.Reviews)),
		CreatedAt:   d.CreatedAt,
	}
	var err error
	if p.Price, err = fromDecimal128(d.Price); err != nil {
		return p, fmt.Errorf("product %s price: %w", d.ID, err)
	}
	if d.Sale != nil {
		discount, err := fromDecimal128(d.Sale.DiscountPercent)
		if err != nil {
			return p, fmt.Errorf("product %s discount: %w", d.ID, err)
		}
		p.Sale = &model.Sale{DiscountPercent: discount}
	}
	for _, r := range d.Reviews {
		p.Reviews = append(p.Reviews, model.Review{User: r.User, Message: r.Message, Rating: r.Rating, CreatedAt: r.CreatedAt})
	}
	return p, nil
}

func toCartDocs(cart []model.CartEntry) []cartEntryDoc {
	out := make([]cartEntryDoc, 0, len(cart))
	for _, e := range cart {
		out = append(out, cartEntryDoc{
			ID:             e.ID,
			ProductID:      e.ProductID,
			Name:           e.Name,
			Type:           e.Type,
			Image:          e.Image,
			Price:          toDecimal128(e.Price),
			EffectivePrice: toDecimal128(e.EffectivePrice),
			AddedAt:        e.AddedAt,
		})
	}
	return out
}

func fromCartDocs(docs []cartEntryDoc) ([]model.CartEntry, error) {
	out := make([]model.CartEntry, 0, len(docs))
	for _, d := range docs {
		price, err := fromDecimal128(d.Price)
		if err != nil {
			return nil, err
		}
		effective, err := fromDecimal128(d.EffectivePrice)
		if err != nil {
			return nil, err
		}
		out = append(out, model.CartEntry{
			ID:             d.ID,
			ProductID:      d.ProductID,
			Name:           d.Name,
			Type:           d.Type,
			Image:          d.Image,
			Price:          price,
			EffectivePrice: effective,
			AddedAt:        d.AddedAt,
		})
	}
	return out, nil
}

// productUpdate translates a patch into $set/$unset operators.
func productUpdate(patch model.ProductPatch) bson.M {
	set := bson.M{}
	if patch.Name != nil {
		set["name"] = *patch.Name
	}
	if patch.Stock != nil {
		set["stock"] = *patch.Stock
	}
	if patch.Price != nil {
		set["price"] = toDecimal128(*patch.Price)
	}
	if patch.Description != nil {
		set["description"] = *patch.Description
	}
	if patch.Image != nil {
		set["image"] = *patch.Image
	}
	if patch.Type != nil {
		set["type"] = *patch.Type
	}
	if patch.Sale != nil {
		set["sale"] = saleDoc{DiscountPercent: toDecimal128(patch.Sale.DiscountPercent)}
	}
	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = set
	}
	if patch.ClearSale {
		update["$unset"] = bson.M{"sale": ""}
	}
	return update
}

// MongoStore keeps products and users as documents. Checkout needs a
// replica set or sharded cluster because it runs in a transaction.
type MongoStore struct {
	client   *mongo.Client
	products *mongo.Collection
	users    *mongo.Collection
	now      func() time.Time
}

func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	db := client.Database(database)
	s := &MongoStore{
		client:   client,
		products: db.Collection("products"),
		users:    db.Collection("users"),
		now:      time.Now,
	}
	if _, err := s.products.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "type", Value: 1}}}); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("create type index: %w", err)
	}
	return s, nil
}

func (s *MongoStore) Close() error { return s.client.Disconnect(context.Background()) }

func (s *MongoStore) CreateProduct(ctx context.Context, d model.ProductDraft) (string, error) {
	doc := productDoc{
		ID:          uuid.NewString(),
		Name:        d.Name,
		Stock:       d.Stock,
		Price:       toDecimal128(d.Price),
		Description: d.Description,
		Image:       d.Image,
		Type:        d.Type,
		Reviews:     []reviewDoc{},
		CreatedAt:   s.now(),
	}
	if _, err := s.products.InsertOne(ctx, doc); err != nil {
		return "", err
	}
	return doc.ID, nil
}

func (s *MongoStore) ListProducts(ctx context.Context) ([]model.Product, error) {
	return s.findProducts(ctx, bson.M{})
}

func (s *MongoStore) ListProductsByType(ctx context.Context, typ string) ([]model.Product, error) {
	return s.findProducts(ctx, bson.M{"type": model.NormalizeType(typ)})
}

func (s *MongoStore) findProducts(ctx context.Context, filter bson.M) ([]model.Product, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.products.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []productDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]model.Product, 0, len(docs))
	for _, d := range docs {
		p, err := d.model()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *MongoStore) GetProduct(ctx context.Context, id string) (model.Product, error) {
	var doc productDoc
	err := s.products.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Product{}, fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Product{}, err
	}
	return doc.model()
}

func (s *MongoStore) UpdateProduct(ctx context.Context, id string, patch model.ProductPatch) error {
	if patch.Empty() {
		_, err := s.GetProduct(ctx, id)
		return err
	}
	return s.updateOne(ctx, s.products, id, productUpdate(patch))
}

func (s *MongoStore) DecrementStock(ctx context.Context, id string, amount int) error {
	if amount <= 0 {
		return errors.New("amount must be > 0")
	}
	res, err := s.products.UpdateOne(ctx,
		bson.M{"_id": id, "stock": bson.M{"$gte": amount}},
		bson.M{"$inc": bson.M{"stock": -amount}})
	if err != nil {
		return err
	}
	if res.MatchedCount > 0 {
		return nil
	}
	n, err := s.products.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	return fmt.Errorf("product %s, requested %d: %w", id, amount, ErrInsufficientStock)
}

func (s *MongoStore) AppendReview(ctx context.Context, id string, r model.Review) error {
	return s.updateOne(ctx, s.products, id, bson.M{"$push": bson.M{"reviews": toReviewDoc(r)}})
}

func (s *MongoStore) IncrementPopularity(ctx context.Context, id string) error {
	return s.updateOne(ctx, s.products, id, bson.M{"$inc": bson.M{"popularity": 1}})
}

func (s *MongoStore) CreateUser(ctx context.Context, username, passwordHash string) error {
	_, err := s.users.InsertOne(ctx, userDoc{Username: username, PasswordHash: passwordHash, Cart: []cartEntryDoc{}})
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("user %s: %w", username, ErrDuplicateUsername)
	}
	return err
}

func (s *MongoStore) GetUser(ctx context.Context, username string) (model.User, error) {
	var doc userDoc
	err := s.users.FindOne(ctx, bson.M{"_id": username}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.User{}, fmt.Errorf("user %s: %w", username, ErrNotFound)
	}
	if err != nil {
		return model.User{}, err
	}
	cart, err := fromCartDocs(doc.Cart)
	if err != nil {
		return model.User{}, err
	}
	return model.User{Username: doc.Username, PasswordHash: doc.PasswordHash, Cart: cart}, nil
}

func (s *MongoStore) SetCart(ctx context.Context, username string, cart []model.CartEntry) error {
	return s.updateOne(ctx, s.users, username, bson.M{"$set": bson.M{"cart": toCartDocs(cart)}})
}

func (s *MongoStore) ClearCart(ctx context.Context, username string) error {
	return s.SetCart(ctx, username, nil)
}

// Checkout runs the conditional decrements and the cart reset in one
// multi-document transaction. Writing the cart makes concurrent checkouts of
// the same user conflict, and the driver retries the loser.
func (s *MongoStore) Checkout(ctx context.Context, username string) ([]model.CartEntry, error) {
	sess, err := s.client.StartSession()
	if err != nil {
		return nil, err
	}
	defer sess.EndSession(ctx)

	res, err := sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return runCheckout(sc, mongoCheckout{users: s.users, products: s.products}, username)
	})
	if err != nil {
		return nil, err
	}
	return res.([]model.CartEntry), nil
}

// mongoCheckout issues its operations with the session context it is given,
// which ties them to the running transaction.
var _ checkoutTxn = mongoCheckout{}

type mongoCheckout struct {
	users    *mongo.Collection
	products *mongo.Collection
}

func (c mongoCheckout) loadCart(ctx context.Context, username string) ([]model.CartEntry, error) {
	var u userDoc
	err := c.users.FindOne(ctx, bson.M{"_id": username}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("user %s: %w", username, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return fromCartDocs(u.Cart)
}

func (c mongoCheckout) takeStock(ctx context.Context, d model.Demand) (bool, error) {
	r, err := c.products.UpdateOne(ctx,
		bson.M{"_id": d.ProductID, "stock": bson.M{"$gte": d.Quantity}},
		bson.M{"$inc": bson.M{"stock": -d.Quantity}})
	if err != nil {
		return false, err
	}
	return r.MatchedCount > 0, nil
}

func (c mongoCheckout) clearCart(ctx context.Context, username string) error {
	_, err := c.users.UpdateOne(ctx, bson.M{"_id": username}, bson.M{"$set": bson.M{"cart": []cartEntryDoc{}}})
	return err
}

func (s *MongoStore) updateOne(ctx context.Context, coll *mongo.Collection, id string, update bson.M) error {
	res, err := coll.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s %s: %w", coll.Name(), id, ErrNotFound)
	}
	return nil
}
