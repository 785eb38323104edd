/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package sla

import (
	"context"
	"time"

	"github.com/friendsincode/inspectd/internal/telemetry"
)

// Scanner runs Scan on a fixed interval while this instance is leader.
type Scanner struct {
	svc      *Service
	interval time.Duration
	window   time.Duration
	isLeader func() bool
}

// NewScanner creates a periodic scanner. A nil isLeader means always leader.
func NewScanner(svc *Service, interval, window time.Duration, isLeader func() bool) *Scanner {
	if isLeader == nil {
		isLeader = func() bool { return true }
	}
	return &Scanner{svc: svc, interval: interval, window: window, isLeader: isLeader}
}

// Run blocks until ctx is done.
func (s *Scanner) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.svc.logger.Info().Dur("interval", s.interval).Dur("window", s.window).Msg("periodic sla scan started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce scans if leader and reports whether a scan ran.
func (s *Scanner) RunOnce(ctx context.Context) bool {
	if !s.isLeader() {
		telemetry.SLAScanRunsTotal.WithLabelValues("skipped").Inc()
		return false
	}
	scanCtx, cancel := context.WithTimeout(ctx, s.interval+time.Minute)
	defer cancel()

	if _, err := s.svc.Scan(scanCtx, s.window); err != nil {
		telemetry.SLAScanRunsTotal.WithLabelValues("error").Inc()
		s.svc.logger.Error().Err(err).Msg("periodic sla scan failed")
		return true
	}
	telemetry.SLAScanRunsTotal.WithLabelValues("success").Inc()
	return true
}
