package cache

import (
	"context"
	"errors"

	"github.com/fjod/plancart/internal/domain"
)

var (
	ErrCacheMiss = errors.New("cache miss")
	// ErrStaleWrite means a newer cart version was already committed.
	ErrStaleWrite = errors.New("stale cache write")
)

// CartCache holds recently read carts. Writes carry the cart version and are
// refused when a newer version has been recorded for the cart.
type CartCache interface {
	Get(ctx context.Context, cartID string) (*domain.Cart, error)
	Set(ctx context.Context, cart *domain.Cart) error
	// Invalidate drops the cached cart and records version as the floor for
	// later writes.
	Invalidate(ctx context.Context, cartID string, version uint64) error
}

// IdempotencyStore maps a checkout idempotency key to the order it produced.
type IdempotencyStore interface {
	// Reserve claims key for a new checkout. It reports false and the stored
	// order id when the key was claimed before; the order id is empty while
	// that checkout is still running.
	Reserve(ctx context.Context, key string) (bool, string, error)
	Complete(ctx context.Context, key, orderID string) error
	Release(ctx context.Context, key string) error
}

// Noop is a CartCache that stores nothing; every Get is a miss.
type Noop struct{}

func (Noop) Get(context.Context, string) (*domain.Cart, error) { return nil, ErrCacheMiss }

func (Noop) Set(context.Context, *domain.Cart) error { return nil }

func (Noop) Invalidate(context.Context, string, uint64) error { return nil }
