package orders

import (
	"errors"
	"time"

	"github.com/fjod/plancart/internal/domain"
	"github.com/google/uuid"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrDuplicateCheckout = errors.New("order for this checkout already exists")
)

type Status string

const StatusConfirmed Status = "CONFIRMED"

// Snapshot is the frozen cart content handed to order creation.
type Snapshot struct {
	CartID      string                `json:"cart_id"`
	CartVersion uint64                `json:"cart_version"`
	Items       []domain.CartLineItem `json:"items"`
	CouponCode  string                `json:"coupon_code,omitempty"`
	Totals      domain.Totals         `json:"totals"`
	Currency    string                `json:"currency"`
}

// NewSnapshot captures the cart as it is at checkout.
func NewSnapshot(cart *domain.Cart) Snapshot {
	s := Snapshot{
		CartID:      cart.ID,
		CartVersion: cart.Version,
		Items:       cart.Clone().Items,
		Totals:      cart.Totals(),
		Currency:    cart.Currency,
	}
	if cart.Coupon != nil {
		s.CouponCode = cart.Coupon.Code
	}
	return s
}

type Order struct {
	ID             uuid.UUID `json:"id"`
	IdempotencyKey string    `json:"-"`
	Snapshot
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func NewOrder(key string, snapshot Snapshot, now time.Time) *Order {
	return &Order{
		ID:             uuid.New(),
		IdempotencyKey: key,
		Snapshot:       snapshot,
		Status:         StatusConfirmed,
		CreatedAt:      now,
	}
}
