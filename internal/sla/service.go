/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package sla

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/inspectd/internal/apperr"
	"github.com/friendsincode/inspectd/internal/events"
	"github.com/friendsincode/inspectd/internal/models"
	"github.com/friendsincode/inspectd/internal/telemetry"
)

var openStatuses = []models.AssignmentStatus{
	models.AssignmentStatusAssigned,
	models.AssignmentStatusAccepted,
	models.AssignmentStatusInProgress,
}

// Alerter delivers SLA alerts for one assignment.
type Alerter interface {
	SendSLAAlert(ctx context.Context, a *models.JobAssignment, breached bool) error
}

// Service answers SLA queries over stored assignments.
type Service struct {
	db      *gorm.DB
	table   *Table
	bus     *events.Bus
	alerter Alerter
	logger  zerolog.Logger
	now     func() time.Time
}

// NewService creates an SLA service. bus and alerter may be nil.
func NewService(db *gorm.DB, table *Table, bus *events.Bus, alerter Alerter, logger zerolog.Logger) *Service {
	if table == nil {
		table = DefaultTable()
	}
	return &Service{
		db:      db,
		table:   table,
		bus:     bus,
		alerter: alerter,
		logger:  logger.With().Str("component", "sla").Logger(),
		now:     time.Now,
	}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Table returns the rule table in use.
func (s *Service) Table() *Table { return s.table }

// NearDeadline returns open assignments due within window from now, soonest first.
func (s *Service) NearDeadline(ctx context.Context, window time.Duration) ([]models.JobAssignment, error) {
	if window <= 0 {
		return nil, apperr.Validation("window must be positive")
	}
	now := s.now().UTC()
	var out []models.JobAssignment
	err := s.db.WithContext(ctx).
		Where("status IN ?", openStatuses).
		Where("due_date >= ? AND due_date <= ?", now, now.Add(window)).
		Order("due_date ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("near-deadline assignments: %w", err)
	}
	return out, nil
}

// Breached returns open assignments already past their due date, most overdue first.
func (s *Service) Breached(ctx context.Context) ([]models.JobAssignment, error) {
	var out []models.JobAssignment
	err := s.db.WithContext(ctx).
		Where("status IN ?", openStatuses).
		Where("due_date < ?", s.now().UTC()).
		Order("due_date ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("breached assignments: %w", err)
	}
	return out, nil
}

// StatsFilter narrows Statistics. Zero fields match everything.
type StatsFilter struct {
	JobType    models.JobType
	Role       models.RoleName
	AssigneeID string
	From       time.Time // assigned at or after
	To         time.Time // assigned before
}

// Stat aggregates one (job type, role) group.
type Stat struct {
	JobType         models.JobType  `json:"job_type"`
	Role            models.RoleName `json:"role"`
	Total           int             `json:"total"`
	Completed       int             `json:"completed"`
	Cancelled       int             `json:"cancelled"`
	Open            int             `json:"open"`
	OnTime          int             `json:"on_time"`
	OnTimeRate      float64         `json:"on_time_rate"`
	MeanActualHours float64         `json:"mean_actual_hours"`
}

// Statistics groups matching assignments by job type and role. On-time rate
// and mean duration are taken over non-cancelled assignments.
func (s *Service) Statistics(ctx context.Context, f StatsFilter) ([]Stat, error) {
	if !f.From.IsZero() && !f.To.IsZero() && !f.To.After(f.From) {
		return nil, apperr.Validation("to must be after from")
	}
	q := s.db.WithContext(ctx).Model(&models.JobAssignment{})
	if f.JobType != "" {
		q = q.Where("job_type = ?", f.JobType)
	}
	if f.Role != "" {
		q = q.Where("role = ?", models.NormalizeRole(f.Role))
	}
	if f.AssigneeID != "" {
		q = q.Where("assignee_id = ?", f.AssigneeID)
	}
	if !f.From.IsZero() {
		q = q.Where("assigned_at >= ?", f.From.UTC())
	}
	if !f.To.IsZero() {
		q = q.Where("assigned_at < ?", f.To.UTC())
	}

	var rows []models.JobAssignment
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load assignments: %w", err)
	}

	type key struct {
		jobType models.JobType
		role    models.RoleName
	}
	type acc struct {
		Stat
		hours float64
	}
	groups := make(map[key]*acc)
	now := s.now().UTC()
	for i := range rows {
		a := &rows[i]
		k := key{a.JobType, a.Role}
		g, ok := groups[k]
		if !ok {
			g = &acc{Stat: Stat{JobType: a.JobType, Role: a.Role}}
			groups[k] = g
		}
		g.Total++
		switch a.Status {
		case models.AssignmentStatusCancelled:
			g.Cancelled++
			continue
		case models.AssignmentStatusCompleted:
			g.Completed++
		default:
			g.Open++
		}
		calc := Calculate(a, now)
		g.hours += calc.ActualDurationHours
		if calc.IsOnTime {
			g.OnTime++
		}
	}

	out := make([]Stat, 0, len(groups))
	for _, g := range groups {
		if counted := g.Total - g.Cancelled; counted > 0 {
			g.OnTimeRate = float64(g.OnTime) / float64(counted)
			g.MeanActualHours = g.hours / float64(counted)
		}
		out = append(out, g.Stat)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JobType != out[j].JobType {
			return out[i].JobType < out[j].JobType
		}
		return out[i].Role < out[j].Role
	})
	return out, nil
}

// ScanResult summarizes one Scan pass.
type ScanResult struct {
	NearDeadline int `json:"near_deadline"`
	Breached     int `json:"breached"`
	AlertErrors  int `json:"alert_errors"`
}

// Scan publishes near-deadline and breach events and alerts for every open
// assignment in either state.
func (s *Service) Scan(ctx context.Context, window time.Duration) (*ScanResult, error) {
	near, err := s.NearDeadline(ctx, window)
	if err != nil {
		return nil, err
	}
	breached, err := s.Breached(ctx)
	if err != nil {
		return nil, err
	}

	res := &ScanResult{NearDeadline: len(near), Breached: len(breached)}
	for i := range near {
		res.AlertErrors += s.alert(ctx, &near[i], false)
	}

	perType := make(map[models.JobType]int)
	for i := range breached {
		perType[breached[i].JobType]++
		res.AlertErrors += s.alert(ctx, &breached[i], true)
	}
	telemetry.SLABreachesFound.Reset()
	for jt, n := range perType {
		telemetry.SLABreachesFound.WithLabelValues(string(jt)).Set(float64(n))
	}

	s.logger.Info().
		Int("near_deadline", res.NearDeadline).
		Int("breached", res.Breached).
		Int("alert_errors", res.AlertErrors).
		Msg("sla scan complete")
	return res, nil
}

func (s *Service) alert(ctx context.Context, a *models.JobAssignment, breached bool) int {
	if s.bus != nil {
		et := events.EventSLANearDeadline
		if breached {
			et = events.EventSLABreached
		}
		s.bus.Publish(et, events.Payload{
			"resource_type": "job_assignment",
			"resource_id":   a.ID,
			"assignee_id":   a.AssigneeID,
			"job_type":      string(a.JobType),
			"due_date":      a.DueDate.UTC().Format(time.RFC3339),
		})
	}
	if s.alerter == nil {
		return 0
	}
	if err := s.alerter.SendSLAAlert(ctx, a, breached); err != nil {
		s.logger.Warn().Err(err).Str("assignment_id", a.ID).Bool("breached", breached).Msg("sla alert failed")
		return 1
	}
	return 0
}
