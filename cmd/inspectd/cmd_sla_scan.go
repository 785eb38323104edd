/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/inspectd/internal/db"
	"github.com/friendsincode/inspectd/internal/eventbus"
	"github.com/friendsincode/inspectd/internal/events"
	"github.com/friendsincode/inspectd/internal/notifications"
	"github.com/friendsincode/inspectd/internal/server"
	"github.com/friendsincode/inspectd/internal/sla"
)

var scanWindowHours int

var slaScanCmd = &cobra.Command{
	Use:   "sla-scan",
	Short: "Alert on assignments near or past their SLA due date",
	Long: `Run one SLA scan pass.

Open assignments due within the window get a near-deadline alert and
overdue ones a breach alert. Each assignment is alerted at most once
per kind, so the command is meant to run periodically from cron or a
Kubernetes CronJob.

Examples:
  # Use INSPECTD_NEAR_DEADLINE_HOURS (default 24)
  inspectd sla-scan

  # Look 48 hours ahead
  inspectd sla-scan --window-hours=48
`,
	RunE: runSLAScan,
}

func init() {
	slaScanCmd.Flags().IntVar(&scanWindowHours, "window-hours", 0, "Near-deadline look-ahead in hours (0 = configured default)")
	rootCmd.AddCommand(slaScanCmd)
}

func runSLAScan(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	window := cfg.NearDeadlineWindow()
	if scanWindowHours > 0 {
		window = time.Duration(scanWindowHours) * time.Hour
	}

	database, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer func() { _ = db.Close(database) }()

	table, err := sla.LoadTable(cfg.SLATablePath)
	if err != nil {
		return fmt.Errorf("load sla table: %w", err)
	}

	client := server.NewRedisClient(cfg)
	if client != nil {
		defer client.Close()
	}
	publishers, err := server.NewPublishers(cfg, client, logger)
	if err != nil {
		return err
	}

	bus := events.NewBus()
	relay := eventbus.NewRelay(bus, logger, publishers...)
	defer relay.Close()

	relayCtx, stopRelay := context.WithCancel(cmd.Context())
	relayDone := make(chan struct{})
	go func() {
		relay.Start(relayCtx)
		close(relayDone)
	}()

	notifier := notifications.NewService(database, bus, server.NotificationChannel(publishers), logger)
	svc := sla.NewService(database, table, bus, notifier, logger)

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
	defer cancel()
	result, scanErr := svc.Scan(ctx, window)

	stopRelay()
	<-relayDone

	if scanErr != nil {
		return fmt.Errorf("sla scan: %w", scanErr)
	}

	logger.Info().
		Dur("window", window).
		Int("near_deadline", result.NearDeadline).
		Int("breached", result.Breached).
		Int("alert_errors", result.AlertErrors).
		Msg("sla scan complete")
	fmt.Printf("near deadline: %d, breached: %d, alert errors: %d\n", result.NearDeadline, result.Breached, result.AlertErrors)
	return nil
}
