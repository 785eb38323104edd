/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus forwards in-process bus events to external brokers so the
// notification delivery service and other consumers can react to them.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/friendsincode/inspectd/internal/events"
)

// Publisher delivers an event to an external broker.
type Publisher interface {
	Publish(ctx context.Context, eventType events.EventType, payload events.Payload) error
	Close() error
}

// Message is the wire envelope shared by every broker.
type Message struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
	MessageID string           `json:"message_id"` // consumers deduplicate on this
}

func marshalMessage(eventType events.EventType, payload events.Payload, nodeID string) ([]byte, error) {
	body := make(events.Payload, len(payload))
	for k, v := range payload {
		if k == events.KeyEventType {
			continue
		}
		body[k] = v
	}
	return json.Marshal(Message{
		EventType: eventType,
		Payload:   body,
		Timestamp: time.Now().UTC(),
		NodeID:    nodeID,
		MessageID: uuid.NewString(),
	})
}

// UnmarshalMessage parses a broker message.
func UnmarshalMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal event message: %w", err)
	}
	return &msg, nil
}

// NodeID identifies this process in published messages.
func NodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "inspectd"
	}
	return host + "-" + uuid.NewString()[:8]
}

// subject joins the configured prefix and the event type, e.g. "inspectd.booking.created".
func subject(prefix string, eventType events.EventType) string {
	if prefix == "" {
		return string(eventType)
	}
	return prefix + "." + string(eventType)
}
