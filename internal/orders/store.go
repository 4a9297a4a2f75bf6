package orders

import (
	"context"

	"github.com/google/uuid"
)

// Store creates and reads orders. CreateOrder fails with ErrDuplicateCheckout
// when an order for the same idempotency key exists.
type Store interface {
	CreateOrder(ctx context.Context, order *Order) error
	GetOrder(ctx context.Context, id uuid.UUID) (*Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, key string) (*Order, error)
	Close() error
}
