/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/friendsincode/inspectd/internal/events"
)

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL           string
	Token         string
	SubjectPrefix string

	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: "inspectd",
		MaxReconnects: -1, // unlimited
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// NATSPublisher publishes events on "<prefix>.<event_type>" subjects.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
	nodeID string
	logger zerolog.Logger
}

// NewNATSPublisher connects to NATS. The connection reconnects on its own;
// publishes during an outage are buffered by the client.
func NewNATSPublisher(cfg NATSConfig, nodeID string, logger zerolog.Logger) (*NATSPublisher, error) {
	logger = logger.With().Str("component", "nats_publisher").Logger()

	opts := []nats.Option{
		nats.Name("inspectd-" + nodeID),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", cfg.URL, err)
	}

	logger.Info().Str("url", cfg.URL).Str("prefix", cfg.SubjectPrefix).Msg("NATS publisher initialized")

	return &NATSPublisher{conn: conn, prefix: cfg.SubjectPrefix, nodeID: nodeID, logger: logger}, nil
}

// Publish sends one event.
func (p *NATSPublisher) Publish(_ context.Context, eventType events.EventType, payload events.Payload) error {
	data, err := marshalMessage(eventType, payload, p.nodeID)
	if err != nil {
		return err
	}
	if err := p.conn.Publish(subject(p.prefix, eventType), data); err != nil {
		return fmt.Errorf("nats publish %s: %w", eventType, err)
	}
	return nil
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
		return fmt.Errorf("drain nats: %w", err)
	}
	return nil
}
