package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/plancart/internal/domain"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const cartTTL = 30 * 24 * time.Hour

type MongoOptions struct {
	URI         string
	Database    string
	MaxPoolSize uint64
}

// ConnectMongoDB opens a pooled client and verifies the server is reachable.
func ConnectMongoDB(ctx context.Context, o MongoOptions) (*mongo.Database, error) {
	if o.MaxPoolSize == 0 {
		o.MaxPoolSize = 100
	}
	clientOpts := options.Client().
		ApplyURI(o.URI).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(o.MaxPoolSize)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return client.Database(o.Database), nil
}

type MongoRepository struct {
	collection *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{collection: db.Collection("carts")}
}

// CreateIndexes expires carts that have not been touched for cartTTL.
func (m *MongoRepository) CreateIndexes(ctx context.Context) error {
	_, err := m.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "updated_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(int32(cartTTL.Seconds())),
	})
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

func (m *MongoRepository) CreateCart(ctx context.Context, cart *domain.Cart) error {
	_, err := m.collection.InsertOne(ctx, toDocument(cart))
	if mongo.IsDuplicateKeyError(err) {
		return ErrCartExists
	}
	if err != nil {
		return fmt.Errorf("failed to create cart: %w", err)
	}
	return nil
}

func (m *MongoRepository) GetCart(ctx context.Context, cartID string) (*domain.Cart, error) {
	var doc cartDocument
	err := m.collection.FindOne(ctx, bson.M{"_id": cartID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrCartNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	return doc.toDomain()
}

func (m *MongoRepository) SaveCart(ctx context.Context, cart *domain.Cart, expectedVersion uint64) error {
	filter := bson.M{"_id": cart.ID, "version": int64(expectedVersion)}

	result, err := m.collection.ReplaceOne(ctx, filter, toDocument(cart))
	if err != nil {
		return fmt.Errorf("failed to save cart: %w", err)
	}
	if result.MatchedCount > 0 {
		return nil
	}

	n, err := m.collection.CountDocuments(ctx, bson.M{"_id": cart.ID})
	if err != nil {
		return fmt.Errorf("failed to check cart: %w", err)
	}
	if n == 0 {
		return ErrCartNotFound
	}
	return ErrVersionConflict
}

func (m *MongoRepository) DeleteCart(ctx context.Context, cartID string) error {
	result, err := m.collection.DeleteOne(ctx, bson.M{"_id": cartID})
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrCartNotFound
	}
	return nil
}

// Amounts are stored as strings; decimal.Decimal has no BSON encoding.

type cartDocument struct {
	ID         string         `bson:"_id"`
	Items      []itemDocument `bson:"items"`
	Coupon     *couponDoc     `bson:"coupon,omitempty"`
	TaxPercent string         `bson:"tax_percent"`
	Currency   string         `bson:"currency"`
	Phase      string         `bson:"phase"`
	Version    int64          `bson:"version"`
	CreatedAt  time.Time      `bson:"created_at"`
	UpdatedAt  time.Time      `bson:"updated_at"`
}

type itemDocument struct {
	ID           string          `bson:"id"`
	PlanID       string          `bson:"plan_id"`
	Title        string          `bson:"title"`
	Subtitle     string          `bson:"subtitle"`
	Interval     string          `bson:"interval,omitempty"`
	BasePrice    string          `bson:"base_price"`
	PricePerUnit string          `bson:"price_per_unit"`
	Seats        int             `bson:"seats"`
	Quantity     int             `bson:"quantity"`
	AddOns       []addOnDocument `bson:"add_ons"`
}

type addOnDocument struct {
	ID      string `bson:"id"`
	Title   string `bson:"title"`
	Price   string `bson:"price"`
	Enabled bool   `bson:"enabled"`
}

type couponDoc struct {
	Code       string     `bson:"code"`
	Type       string     `bson:"type"`
	Amount     string     `bson:"amount"`
	ValidFrom  *time.Time `bson:"valid_from,omitempty"`
	ValidUntil *time.Time `bson:"valid_until,omitempty"`
	MaxUses    int        `bson:"max_uses"`
	Uses       int        `bson:"uses"`
}

func toDocument(c *domain.Cart) cartDocument {
	doc := cartDocument{
		ID:         c.ID,
		Items:      make([]itemDocument, 0, len(c.Items)),
		TaxPercent: c.TaxPercent.String(),
		Currency:   c.Currency,
		Phase:      string(c.Phase),
		Version:    int64(c.Version),
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
	for _, item := range c.Items {
		d := itemDocument{
			ID:           item.ID,
			PlanID:       item.PlanID,
			Title:        item.Title,
			Subtitle:     item.Subtitle,
			Interval:     string(item.Interval),
			BasePrice:    item.BasePrice.String(),
			PricePerUnit: item.PricePerUnit.String(),
			Seats:        item.Seats,
			Quantity:     item.Quantity,
			AddOns:       make([]addOnDocument, 0, len(item.AddOns)),
		}
		for _, a := range item.AddOns {
			d.AddOns = append(d.AddOns, addOnDocument{ID: a.ID, Title: a.Title, Price: a.Price.String(), Enabled: a.Enabled})
		}
		doc.Items = append(doc.Items, d)
	}
	if c.Coupon != nil {
		doc.Coupon = &couponDoc{
			Code:       c.Coupon.Code,
			Type:       string(c.Coupon.Type),
			Amount:     c.Coupon.Amount.String(),
			ValidFrom:  c.Coupon.ValidFrom,
			ValidUntil: c.Coupon.ValidUntil,
			MaxUses:    c.Coupon.MaxUses,
			Uses:       c.Coupon.Uses,
		}
	}
	return doc
}

func (d cartDocument) toDomain() (*domain.Cart, error) {
	tax, err := decimal.NewFromString(d.TaxPercent)
	if err != nil {
		return nil, fmt.Errorf("decode cart %s tax percent: %w", d.ID, err)
	}
	cart := &domain.Cart{
		ID:         d.ID,
		Items:      make([]domain.CartLineItem, 0, len(d.Items)),
		TaxPercent: tax,
		Currency:   d.Currency,
		Phase:      domain.Phase(d.Phase),
		Version:    uint64(d.Version),
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
	for _, it := range d.Items {
		item := domain.CartLineItem{
			ID:       it.ID,
			PlanID:   it.PlanID,
			Title:    it.Title,
			Subtitle: it.Subtitle,
			Interval: domain.BillingInterval(it.Interval),
			Seats:    it.Seats,
			Quantity: it.Quantity,
			AddOns:   make([]domain.LineAddOn, 0, len(it.AddOns)),
		}
		if item.BasePrice, err = decimal.NewFromString(it.BasePrice); err != nil {
			return nil, fmt.Errorf("decode item %s base price: %w", it.ID, err)
		}
		if item.PricePerUnit, err = decimal.NewFromString(it.PricePerUnit); err != nil {
			return nil, fmt.Errorf("decode item %s price per unit: %w", it.ID, err)
		}
		for _, a := range it.AddOns {
			price, err := decimal.NewFromString(a.Price)
			if err != nil {
				return nil, fmt.Errorf("decode add-on %s price: %w", a.ID, err)
			}
			item.AddOns = append(item.AddOns, domain.LineAddOn{ID: a.ID, Title: a.Title, Price: price, Enabled: a.Enabled})
		}
		cart.Items = append(cart.Items, item)
	}
	if d.Coupon != nil {
		amount, err := decimal.NewFromString(d.Coupon.Amount)
		if err != nil {
			return nil, fmt.Errorf("decode coupon %s amount: %w", d.Coupon.Code, err)
		}
		cart.Coupon = &domain.Coupon{
			Code:       d.Coupon.Code,
			Type:       domain.DiscountType(d.Coupon.Type),
			Amount:     amount,
			ValidFrom:  d.Coupon.ValidFrom,
			ValidUntil: d.Coupon.ValidUntil,
			MaxUses:    d.Coupon.MaxUses,
			Uses:       d.Coupon.Uses,
		}
	}
	return cart, nil
}
