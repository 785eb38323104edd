/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/friendsincode/inspectd/internal/apperr"
	"github.com/friendsincode/inspectd/internal/assignment"
	"github.com/friendsincode/inspectd/internal/audit"
	"github.com/friendsincode/inspectd/internal/auth"
	"github.com/friendsincode/inspectd/internal/availability"
	"github.com/friendsincode/inspectd/internal/cache"
	"github.com/friendsincode/inspectd/internal/calendar"
	"github.com/friendsincode/inspectd/internal/notifications"
	"github.com/friendsincode/inspectd/internal/policy"
	"github.com/friendsincode/inspectd/internal/sla"
)

// Deps are the services the HTTP surface exposes.
type Deps struct {
	DB            *gorm.DB
	JWTSecret     []byte
	Calendar      *calendar.Service
	Availability  *availability.Store
	Assignments   *assignment.Service
	SLA           *sla.Service
	Notifications *notifications.Service
	Audit         *audit.Service
	Cache         *cache.Cache

	NearDeadlineWindow time.Duration
	RateLimit          rate.Limit
	RateBurst          int
}

// API exposes HTTP handlers.
type API struct {
	db            *gorm.DB
	jwtSecret     []byte
	calendar      *calendar.Service
	availability  *availability.Store
	assignments   *assignment.Service
	sla           *sla.Service
	notifications *notifications.Service
	auditSvc      *audit.Service
	cache         *cache.Cache
	limiter       *callerLimiter
	nearDeadline  time.Duration
	logger        zerolog.Logger
}

// New creates the API router wrapper.
func New(d Deps, logger zerolog.Logger) *API {
	if d.NearDeadlineWindow <= 0 {
		d.NearDeadlineWindow = 24 * time.Hour
	}
	if d.RateLimit <= 0 {
		d.RateLimit = rate.Limit(5)
	}
	if d.RateBurst <= 0 {
		d.RateBurst = 10
	}
	return &API{
		db:            d.DB,
		jwtSecret:     d.JWTSecret,
		calendar:      d.Calendar,
		availability:  d.Availability,
		assignments:   d.Assignments,
		sla:           d.SLA,
		notifications: d.Notifications,
		auditSvc:      d.Audit,
		cache:         d.Cache,
		limiter:       newCallerLimiter(d.RateLimit, d.RateBurst),
		nearDeadline:  d.NearDeadlineWindow,
		logger:        logger.With().Str("component", "api").Logger(),
	}
}

// Routes mounts API routes on provided router.
func (a *API) Routes(r chi.Router) {
	r.Get("/health", a.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)

		r.Group(func(pr chi.Router) {
			pr.Use(auth.Middleware(a.jwtSecret))

			pr.Route("/events", func(r chi.Router) {
				r.With(a.rateLimit).Post("/", a.handleEventCreate)
				r.Route("/{eventID}", func(r chi.Router) {
					r.Get("/", a.handleEventGet)
					r.Patch("/", a.handleEventUpdate)
					r.Delete("/", a.handleEventDelete)
					r.Post("/confirm", a.handleEventConfirm)
					r.Post("/reschedule", a.handleEventReschedule)
					r.Post("/cancel", a.handleEventCancel)
				})
			})

			pr.With(a.rateLimit).Post("/bookings/inspections", a.handleBookInspection)

			pr.Route("/actors/{actorID}", func(r chi.Router) {
				r.Get("/slots", a.handleSlots)
				r.Get("/conflicts", a.handleConflicts)
				r.Get("/upcoming", a.handleUpcoming)
				r.Get("/calendar.ics", a.handleCalendarExport)
				r.Get("/availability", a.handleAvailabilityGet)
				r.Put("/availability", a.handleAvailabilityPut)
			})

			pr.Route("/assignments", func(r chi.Router) {
				r.With(a.rateLimit, a.requireElevated).Post("/", a.handleAssignmentCreate)
				r.Route("/sla", func(r chi.Router) {
					r.Use(a.requireElevated)
					r.Get("/near-deadline", a.handleSLANearDeadline)
					r.Get("/breached", a.handleSLABreached)
					r.Get("/statistics", a.handleSLAStatistics)
				})
				r.Route("/{assignmentID}", func(r chi.Router) {
					r.Get("/", a.handleAssignmentGet)
					r.Get("/history", a.handleAssignmentHistory)
					r.With(a.rateLimit).Post("/accept", a.handleAssignmentAccept)
					r.With(a.rateLimit).Post("/start", a.handleAssignmentStart)
					r.With(a.rateLimit).Post("/complete", a.handleAssignmentComplete)
					r.With(a.rateLimit).Post("/cancel", a.handleAssignmentCancel)
					r.With(a.rateLimit).Post("/reassign", a.handleAssignmentReassign)
					r.Get("/comments", a.handleCommentsList)
					r.Post("/comments", a.handleCommentAdd)
					r.Get("/attachments", a.handleAttachmentsList)
					r.Post("/attachments", a.handleAttachmentAdd)
				})
			})

			pr.Get("/notifications", a.handleNotificationsList)
			pr.With(a.requireElevated).Get("/audit", a.handleAuditList)
		})
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err != nil || sqlDB.PingContext(r.Context()) != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, map[string]string{"status": status})
}

func (a *API) requireElevated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := auth.ActorFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		if !actor.IsElevated() {
			writeError(w, http.StatusForbidden, "forbidden", "insufficient role")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// actor returns the authenticated caller. Routes using it sit behind the
// auth middleware.
func actor(r *http.Request) policy.Actor {
	a, _ := auth.ActorFromContext(r.Context())
	return a
}

// decode reads a JSON body, rejecting unknown fields.
func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.Validation("invalid JSON body: %v", err)
	}
	return nil
}

func queryTime(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, apperr.Validation("%s is required", name)
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	return time.Time{}, apperr.Validation("%s must be an RFC 3339 timestamp or YYYY-MM-DD date", name)
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Validation("%s must be an integer", name)
	}
	return v, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}

// fail maps a service error onto an HTTP status.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		switch appErr.Kind {
		case apperr.KindValidation:
			writeError(w, http.StatusBadRequest, string(appErr.Kind), appErr.Message)
			return
		case apperr.KindNotFound:
			writeError(w, http.StatusNotFound, string(appErr.Kind), appErr.Message)
			return
		case apperr.KindAuthorization:
			writeError(w, http.StatusForbidden, string(appErr.Kind), appErr.Message)
			return
		case apperr.KindConstraint:
			writeError(w, http.StatusConflict, string(appErr.Kind), appErr.Message)
			return
		}
	}
	a.logger.Error().Err(err).Str("path", r.URL.Path).Str("method", r.Method).Msg("request failed")
	writeError(w, http.StatusInternalServerError, "internal", "internal server error")
}
