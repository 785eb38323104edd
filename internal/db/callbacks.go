/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/friendsincode/inspectd/internal/telemetry"
)

const startedAtKey = "inspectd:started_at"

// registrar matches the callback handle returned by Before and After.
type registrar interface {
	Register(name string, fn func(*gorm.DB)) error
}

// RegisterCallbacks times every query, create, update, delete, row and raw
// statement and counts failures by ErrorClass.
func RegisterCallbacks(database *gorm.DB) error {
	cb := database.Callback()
	if err := register("query", cb.Query().Before("gorm:query"), cb.Query().After("gorm:query")); err != nil {
		return err
	}
	if err := register("create", cb.Create().Before("gorm:create"), cb.Create().After("gorm:create")); err != nil {
		return err
	}
	if err := register("update", cb.Update().Before("gorm:update"), cb.Update().After("gorm:update")); err != nil {
		return err
	}
	if err := register("delete", cb.Delete().Before("gorm:delete"), cb.Delete().After("gorm:delete")); err != nil {
		return err
	}
	if err := register("row", cb.Row().Before("gorm:row"), cb.Row().After("gorm:row")); err != nil {
		return err
	}
	return register("raw", cb.Raw().Before("gorm:raw"), cb.Raw().After("gorm:raw"))
}

func register[R registrar](operation string, before, after R) error {
	if err := before.Register("telemetry:before_"+operation, markStart); err != nil {
		return fmt.Errorf("register %s timer: %w", operation, err)
	}
	if err := after.Register("telemetry:after_"+operation, observe(operation)); err != nil {
		return fmt.Errorf("register %s observer: %w", operation, err)
	}
	return nil
}

func markStart(tx *gorm.DB) {
	tx.InstanceSet(startedAtKey, time.Now())
}

func observe(operation string) func(*gorm.DB) {
	return func(tx *gorm.DB) {
		v, ok := tx.InstanceGet(startedAtKey)
		if !ok {
			return
		}
		started, ok := v.(time.Time)
		if !ok {
			return
		}

		table := tx.Statement.Table
		if table == "" {
			table = "unknown"
		}
		telemetry.DatabaseQueryDuration.WithLabelValues(operation, table).Observe(time.Since(started).Seconds())

		if class := Classify(tx.Error); class != ErrorClassNone {
			telemetry.DatabaseErrorsTotal.WithLabelValues(operation, string(class)).Inc()
		}
	}
}

// UpdateConnectionMetrics publishes pool statistics; the server calls it on a ticker.
func UpdateConnectionMetrics(database *gorm.DB) {
	sqlDB, err := database.DB()
	if err != nil {
		return
	}
	telemetry.DatabaseConnectionsActive.Set(float64(sqlDB.Stats().OpenConnections))
}
