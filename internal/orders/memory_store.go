package orders

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[uuid.UUID]*Order
	byKey  map[string]uuid.UUID
	outbox []OutboxEvent
	nextID int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:  make(map[uuid.UUID]*Order),
		byKey: make(map[string]uuid.UUID),
	}
}

func (s *MemoryStore) CreateOrder(_ context.Context, order *Order) error {
	event, err := newOutboxEvent(order)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byKey[order.IdempotencyKey]; ok {
		return ErrDuplicateCheckout
	}
	stored := *order
	s.byID[order.ID] = &stored
	s.byKey[order.IdempotencyKey] = order.ID

	s.nextID++
	event.ID = s.nextID
	s.outbox = append(s.outbox, event)
	return nil
}

func (s *MemoryStore) GetOrder(_ context.Context, id uuid.UUID) (*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.byID[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	out := *o
	return &out, nil
}

func (s *MemoryStore) GetOrderByIdempotencyKey(ctx context.Context, key string) (*Order, error) {
	s.mu.RLock()
	id, ok := s.byKey[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrOrderNotFound
	}
	return s.GetOrder(ctx, id)
}

func (s *MemoryStore) PendingEvents(_ context.Context, limit int) ([]OutboxEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.outbox)
	if limit > 0 && limit < n {
		n = limit
	}
	return append([]OutboxEvent(nil), s.outbox[:n]...), nil
}

// MarkPublished drops the event; published events are not kept in memory.
func (s *MemoryStore) MarkPublished(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, e := range s.outbox {
		if e.ID == id {
			s.outbox = append(s.outbox[:i], s.outbox[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
