package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fjod/plancart/internal/orders"
	"github.com/fjod/plancart/pkg/circuitbreaker"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

const (
	DefaultTopic = "checkout.completed"

	eventCheckoutCompleted = "checkout.completed"
)

// CheckoutCompleted is published once an order has been created for a cart.
type CheckoutCompleted struct {
	OrderID     string          `json:"order_id"`
	CartID      string          `json:"cart_id"`
	CartVersion uint64          `json:"cart_version"`
	CouponCode  string          `json:"coupon_code,omitempty"`
	ItemCount   int             `json:"item_count"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Discount    decimal.Decimal `json:"discount"`
	Tax         decimal.Decimal `json:"tax"`
	Total       decimal.Decimal `json:"total"`
	Currency    string          `json:"currency"`
	CompletedAt time.Time       `json:"completed_at"`
}

func NewCheckoutCompleted(o *orders.Order) CheckoutCompleted {
	return CheckoutCompleted{
		OrderID:     o.ID.String(),
		CartID:      o.CartID,
		CartVersion: o.CartVersion,
		CouponCode:  o.CouponCode,
		ItemCount:   len(o.Items),
		Subtotal:    o.Totals.Subtotal,
		Discount:    o.Totals.Discount,
		Tax:         o.Totals.Tax,
		Total:       o.Totals.Total,
		Currency:    o.Currency,
		CompletedAt: o.CreatedAt,
	}
}

type Publisher interface {
	PublishCheckoutCompleted(ctx context.Context, event CheckoutCompleted) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer  messageWriter
	breaker *circuitbreaker.Breaker[struct{}]
}

func NewKafkaPublisher(topic string, logger zerolog.Logger, brokers ...string) *KafkaPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return newKafkaPublisher(w, logger)
}

func newKafkaPublisher(w messageWriter, logger zerolog.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: w,
		breaker: circuitbreaker.New[struct{}](circuitbreaker.Settings{
			Name:                "kafka-publisher",
			ConsecutiveFailures: 3,
			OpenTimeout:         15 * time.Second,
		}, logger),
	}
}

func (p *KafkaPublisher) PublishCheckoutCompleted(ctx context.Context, event CheckoutCompleted) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal checkout event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.CartID), // cart_id for ordering
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventCheckoutCompleted)},
		},
	}

	_, err = p.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, p.writer.WriteMessages(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("publish checkout event: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Nop discards events. It is used when no brokers are configured.
type Nop struct{}

func (Nop) PublishCheckoutCompleted(context.Context, CheckoutCompleted) error { return nil }

func (Nop) Close() error { return nil }
