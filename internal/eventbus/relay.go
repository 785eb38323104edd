/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/inspectd/internal/events"
)

const drainTimeout = 5 * time.Second

// Relay forwards every local bus event to the configured publishers.
type Relay struct {
	bus        *events.Bus
	sub        events.Subscriber
	once       sync.Once
	publishers []Publisher
	logger     zerolog.Logger
}

// NewRelay creates a relay. The bus subscription is taken here, so events
// published before Start runs are buffered rather than lost. With no
// publishers Start returns immediately.
func NewRelay(bus *events.Bus, logger zerolog.Logger, publishers ...Publisher) *Relay {
	r := &Relay{
		bus:        bus,
		publishers: publishers,
		logger:     logger.With().Str("component", "event_relay").Logger(),
	}
	if len(publishers) > 0 {
		r.sub = bus.Subscribe(events.AllTypes...)
	}
	return r
}

func (r *Relay) unsubscribe() {
	if r.sub == nil {
		return
	}
	r.once.Do(func() { r.bus.Unsubscribe(r.sub) })
}

// Start forwards events until ctx is done. Publish errors are logged and the
// event is dropped for that publisher.
func (r *Relay) Start(ctx context.Context) {
	if r.sub == nil {
		return
	}
	sub := r.sub
	defer r.unsubscribe()

	for {
		select {
		case <-ctx.Done():
			r.drain(sub)
			return
		case payload, ok := <-sub:
			if !ok {
				return
			}
			r.forward(ctx, payload)
		}
	}
}

// drain forwards events already buffered when the relay is stopped.
func (r *Relay) drain(sub events.Subscriber) {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case payload, ok := <-sub:
			if !ok {
				return
			}
			r.forward(ctx, payload)
		default:
			return
		}
	}
}

func (r *Relay) forward(ctx context.Context, payload events.Payload) {
	eventType := payload.Type()
	for _, p := range r.publishers {
		if err := p.Publish(ctx, eventType, payload); err != nil {
			r.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("forward event failed")
		}
	}
}

// Close drops the bus subscription and closes every publisher.
func (r *Relay) Close() error {
	r.unsubscribe()
	var first error
	for _, p := range r.publishers {
		if err := p.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
