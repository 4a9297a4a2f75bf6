package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const EventCheckoutCompleted = "checkout.completed"

// OutboxEvent is recorded atomically with its order and relayed to the
// message broker later. Payload is the order encoded as JSON.
type OutboxEvent struct {
	ID        int64
	OrderID   uuid.UUID
	CartID    string
	EventType string
	Payload   []byte
	CreatedAt time.Time
}

// Outbox exposes events that were not yet relayed, oldest first.
type Outbox interface {
	PendingEvents(ctx context.Context, limit int) ([]OutboxEvent, error)
	MarkPublished(ctx context.Context, id int64) error
}

func newOutboxEvent(o *Order) (OutboxEvent, error) {
	payload, err := json.Marshal(o)
	if err != nil {
		return OutboxEvent{}, fmt.Errorf("marshal outbox payload: %w", err)
	}
	return OutboxEvent{
		OrderID:   o.ID,
		CartID:    o.CartID,
		EventType: EventCheckoutCompleted,
		Payload:   payload,
		CreatedAt: o.CreatedAt,
	}, nil
}

// Order decodes the payload back into the order it was written for.
func (e OutboxEvent) Order() (*Order, error) {
	var o Order
	if err := json.Unmarshal(e.Payload, &o); err != nil {
		return nil, fmt.Errorf("decode outbox event %d: %w", e.ID, err)
	}
	return &o, nil
}
