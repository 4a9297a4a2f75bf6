package repository

import (
	"context"
	"errors"

	"github.com/fjod/plancart/internal/domain"
)

var (
	ErrCartNotFound    = errors.New("cart not found")
	ErrCartExists      = errors.New("cart already exists")
	ErrVersionConflict = errors.New("cart was modified concurrently")
)

// CartRepository is the persistence boundary for carts. SaveCart only
// succeeds when the stored version still equals expectedVersion, so a writer
// holding a stale copy cannot overwrite a newer commit.
type CartRepository interface {
	CreateCart(ctx context.Context, cart *domain.Cart) error
	GetCart(ctx context.Context, cartID string) (*domain.Cart, error)
	SaveCart(ctx context.Context, cart *domain.Cart, expectedVersion uint64) error
	DeleteCart(ctx context.Context, cartID string) error
}
