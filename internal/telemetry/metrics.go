/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP API
var (
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "inspectd_api_request_duration_seconds",
		Help:    "API request latency by method, route and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inspectd_api_requests_total",
		Help: "API requests by method, route and status.",
	}, []string{"method", "endpoint", "status"})

	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "inspectd_api_active_connections",
		Help: "In-flight API requests.",
	})

	APIRateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inspectd_api_rate_limited_total",
		Help: "Mutations rejected by the per-caller rate limiter.",
	})
)

// Database
var (
	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "inspectd_database_query_duration_seconds",
		Help:    "Database operation latency by operation and table.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	DatabaseErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inspectd_database_errors_total",
		Help: "Database errors by operation.",
	}, []string{"operation", "kind"})

	DatabaseConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "inspectd_database_connections_active",
		Help: "Open database connections.",
	})
)

// Scheduling
var (
	BookingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inspectd_bookings_total",
		Help: "Inspection booking attempts by outcome.",
	}, []string{"outcome"})

	ConflictsDetectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inspectd_conflicts_detected_total",
		Help: "Conflicting events found by the detector, by operation.",
	}, []string{"operation"})

	BookingLockWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "inspectd_booking_lock_wait_seconds",
		Help:    "Time spent acquiring booking locks.",
		Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
	})
)

// Assignments and SLA
var (
	AssignmentTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inspectd_assignment_transitions_total",
		Help: "Accepted assignment transitions by action.",
	}, []string{"action"})

	SLABreachesFound = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "inspectd_sla_breached_assignments",
		Help: "Open assignments past their due date at the last scan, by job type.",
	}, []string{"job_type"})

	NotificationFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inspectd_notification_failures_total",
		Help: "Best-effort notifications that could not be recorded or published.",
	}, []string{"kind"})
)

// Leader election for periodic work
var (
	LeaderElectionStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "inspectd_leader_election_status",
		Help: "1 while this instance holds the named leadership lease.",
	}, []string{"election", "instance_id"})

	LeaderElectionChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inspectd_leader_election_changes_total",
		Help: "Leadership acquisitions and losses.",
	}, []string{"election", "instance_id", "change"})

	SLAScanRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inspectd_sla_scan_runs_total",
		Help: "In-process SLA scan passes by result.",
	}, []string{"result"})
)

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
