/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import "sync"

// EventType enumerates event categories.
type EventType string

const (
	// Calendar events
	EventCalendarCreated     EventType = "event.created"
	EventCalendarUpdated     EventType = "event.updated"
	EventCalendarConfirmed   EventType = "event.confirmed"
	EventCalendarRescheduled EventType = "event.rescheduled"
	EventCalendarCancelled   EventType = "event.cancelled"
	EventCalendarDeleted     EventType = "event.deleted"
	EventConflictDetected    EventType = "event.conflict"

	// Booking outcomes
	EventBookingCreated  EventType = "booking.created"
	EventBookingRejected EventType = "booking.rejected"

	EventAvailabilityUpdated EventType = "availability.updated"

	// Assignment ledger
	EventAssignmentTransition EventType = "assignment.transition"

	// SLA scan results
	EventSLANearDeadline EventType = "sla.near_deadline"
	EventSLABreached     EventType = "sla.breached"

	// Notifications handed to the delivery service
	EventNotification EventType = "notification"
)

// AllTypes lists every event type the services publish.
var AllTypes = []EventType{
	EventCalendarCreated,
	EventCalendarUpdated,
	EventCalendarConfirmed,
	EventCalendarRescheduled,
	EventCalendarCancelled,
	EventCalendarDeleted,
	EventConflictDetected,
	EventBookingCreated,
	EventBookingRejected,
	EventAvailabilityUpdated,
	EventAssignmentTransition,
	EventSLANearDeadline,
	EventSLABreached,
	EventNotification,
}

// KeyEventType is set on every delivered payload.
const KeyEventType = "event_type"

// Payload generic event payload.
type Payload map[string]any

// Type returns the event type stamped on the payload by Publish.
func (p Payload) Type() EventType {
	s, _ := p[KeyEventType].(string)
	return EventType(s)
}

// Subscriber receives event payloads.
type Subscriber chan Payload

// Bus implements a simple in-process pubsub. Delivery never blocks the
// publisher: a full subscriber drops the event.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventType][]Subscriber
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]Subscriber)}
}

// Subscribe registers one subscriber for all of the given event types.
func (b *Bus) Subscribe(eventTypes ...EventType) Subscriber {
	ch := make(Subscriber, 64)
	b.mu.Lock()
	for _, et := range eventTypes {
		b.subs[et] = append(b.subs[et], ch)
	}
	b.mu.Unlock()
	return ch
}

// Publish sends a copy of payload, stamped with its type, to subscribers.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	// The read lock is held while sending so Unsubscribe cannot close a
	// channel mid-send. Sends never block.
	b.mu.RLock()
	defer b.mu.RUnlock()
	subs := b.subs[eventType]
	if len(subs) == 0 {
		return
	}

	msg := make(Payload, len(payload)+1)
	for k, v := range payload {
		msg[k] = v
	}
	msg[KeyEventType] = string(eventType)

	for _, sub := range subs {
		select {
		case sub <- msg:
		default:
		}
	}
}

// Unsubscribe removes the subscriber from every type it was registered for
// and closes it.
func (b *Bus) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for et, subs := range b.subs {
		for i, candidate := range subs {
			if candidate == sub {
				b.subs[et] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
	close(sub)
}
