package service

import (
	"context"
	"errors"
	"sync"

	"github.com/fjod/plancart/internal/domain"
	"github.com/fjod/plancart/internal/orders"
	"github.com/fjod/plancart/internal/publisher"
	"github.com/fjod/plancart/internal/repository"
)

// conflictingRepository wraps a real repository and makes the next
// `conflicts` saves fail as if another writer had committed first.
type conflictingRepository struct {
	*repository.MemoryRepository
	m         sync.RWMutex
	conflicts int
	saves     int
}

func (r *conflictingRepository) SaveCart(ctx context.Context, cart *domain.Cart, expected uint64) error {
	r.m.Lock()
	r.saves++
	if r.conflicts > 0 {
		r.conflicts--
		r.m.Unlock()
		// Simulate the competing commit so the retry sees a newer version.
		current, err := r.MemoryRepository.GetCart(ctx, cart.ID)
		if err != nil {
			return err
		}
		next := current.Clone()
		next.Version++
		if err := r.MemoryRepository.SaveCart(ctx, next, current.Version); err != nil {
			return err
		}
		return repository.ErrVersionConflict
	}
	r.m.Unlock()
	return r.MemoryRepository.SaveCart(ctx, cart, expected)
}

func (r *conflictingRepository) Saves() int {
	r.m.RLock()
	defer r.m.RUnlock()
	return r.saves
}

// clearFailingRepository fails saves that would clear a cart while armed.
type clearFailingRepository struct {
	*repository.MemoryRepository
	m     sync.RWMutex
	armed bool
}

func (r *clearFailingRepository) SaveCart(ctx context.Context, cart *domain.Cart, expected uint64) error {
	r.m.RLock()
	fail := r.armed && cart.Phase == domain.PhaseCleared
	r.m.RUnlock()
	if fail {
		return errors.New("write timeout")
	}
	return r.MemoryRepository.SaveCart(ctx, cart, expected)
}

func (r *clearFailingRepository) setArmed(armed bool) {
	r.m.Lock()
	defer r.m.Unlock()
	r.armed = armed
}

type mockPublisher struct {
	m      sync.RWMutex
	events []publisher.CheckoutCompleted
	err    error
}

func (p *mockPublisher) PublishCheckoutCompleted(_ context.Context, e publisher.CheckoutCompleted) error {
	p.m.Lock()
	defer p.m.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *mockPublisher) Close() error { return nil }

func (p *mockPublisher) Events() []publisher.CheckoutCompleted {
	p.m.RLock()
	defer p.m.RUnlock()
	return append([]publisher.CheckoutCompleted(nil), p.events...)
}

type failingOrders struct {
	*orders.MemoryStore
	m   sync.RWMutex
	err error
}

func (f *failingOrders) CreateOrder(ctx context.Context, o *orders.Order) error {
	f.m.RLock()
	err := f.err
	f.m.RUnlock()
	if err != nil {
		return err
	}
	return f.MemoryStore.CreateOrder(ctx, o)
}

func (f *failingOrders) setErr(err error) {
	f.m.Lock()
	defer f.m.Unlock()
	f.err = err
}
