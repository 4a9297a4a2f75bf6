package orders

import (
	"context"
	"errors"

	"github.com/fjod/plancart/pkg/circuitbreaker"
	"github.com/rs/zerolog"
)

// BreakerStore guards order creation with a circuit breaker. Duplicate
// checkouts are business outcomes and do not count as failures.
type BreakerStore struct {
	Store
	breaker *circuitbreaker.Breaker[struct{}]
}

func NewBreakerStore(store Store, settings circuitbreaker.Settings, logger zerolog.Logger) *BreakerStore {
	if settings.Name == "" {
		settings.Name = "orders"
	}
	settings.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, ErrDuplicateCheckout) || errors.Is(err, context.Canceled)
	}
	return &BreakerStore{
		Store:   store,
		breaker: circuitbreaker.New[struct{}](settings, logger),
	}
}

func (s *BreakerStore) CreateOrder(ctx context.Context, order *Order) error {
	_, err := s.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, s.Store.CreateOrder(ctx, order)
	})
	return err
}
