package repository

import (
	"context"
	"sync"

	"github.com/fjod/plancart/internal/domain"
)

// MemoryRepository keeps carts in a map keyed by cart id. Carts are cloned on
// the way in and out so callers never share state with the store.
type MemoryRepository struct {
	mu    sync.RWMutex
	carts map[string]*domain.Cart
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{carts: make(map[string]*domain.Cart)}
}

func (r *MemoryRepository) CreateCart(_ context.Context, cart *domain.Cart) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.carts[cart.ID]; ok {
		return ErrCartExists
	}
	r.carts[cart.ID] = cart.Clone()
	return nil
}

func (r *MemoryRepository) GetCart(_ context.Context, cartID string) (*domain.Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cart, ok := r.carts[cartID]
	if !ok {
		return nil, ErrCartNotFound
	}
	return cart.Clone(), nil
}

func (r *MemoryRepository) SaveCart(_ context.Context, cart *domain.Cart, expectedVersion uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.carts[cart.ID]
	if !ok {
		return ErrCartNotFound
	}
	if stored.Version != expectedVersion {
		return ErrVersionConflict
	}
	r.carts[cart.ID] = cart.Clone()
	return nil
}

func (r *MemoryRepository) DeleteCart(_ context.Context, cartID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.carts[cartID]; !ok {
		return ErrCartNotFound
	}
	delete(r.carts, cartID)
	return nil
}
