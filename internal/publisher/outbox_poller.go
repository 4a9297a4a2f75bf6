package publisher

import (
	"context"
	"time"

	"github.com/fjod/plancart/internal/orders"
	"github.com/rs/zerolog"
)

const (
	defaultPollInterval = time.Second
	defaultBatchSize    = 100
)

// OutboxPoller relays checkout events recorded with their orders to a
// Publisher. An event is marked published only after the publish succeeded,
// so delivery is at least once.
type OutboxPoller struct {
	source   orders.Outbox
	pub      Publisher
	interval time.Duration
	batch    int
	logger   zerolog.Logger
}

func NewOutboxPoller(source orders.Outbox, pub Publisher, interval time.Duration, logger zerolog.Logger) *OutboxPoller {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if pub == nil {
		pub = Nop{}
	}
	return &OutboxPoller{
		source:   source,
		pub:      pub,
		interval: interval,
		batch:    defaultBatchSize,
		logger:   logger.With().Str("component", "outbox-poller").Logger(),
	}
}

// Run polls until ctx is cancelled.
func (p *OutboxPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.processPending(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// processPending returns the number of events relayed.
func (p *OutboxPoller) processPending(ctx context.Context) int {
	events, err := p.source.PendingEvents(ctx, p.batch)
	if err != nil {
		p.logger.Error().Err(err).Msg("Failed to fetch outbox events")
		return 0
	}

	relayed := 0
	for _, event := range events {
		order, err := event.Order()
		if err != nil {
			p.logger.Error().Err(err).Int64("event_id", event.ID).Msg("Skipping undecodable outbox event")
			continue
		}
		if err := p.pub.PublishCheckoutCompleted(ctx, NewCheckoutCompleted(order)); err != nil {
			p.logger.Warn().Err(err).Int64("event_id", event.ID).Msg("Failed to publish outbox event")
			// keep ordering per cart: later events wait for the next tick
			return relayed
		}
		if err := p.source.MarkPublished(ctx, event.ID); err != nil {
			p.logger.Error().Err(err).Int64("event_id", event.ID).Msg("Failed to mark outbox event published")
			continue
		}
		relayed++
	}
	return relayed
}
