/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/friendsincode/inspectd/internal/api"
	"github.com/friendsincode/inspectd/internal/assignment"
	"github.com/friendsincode/inspectd/internal/audit"
	"github.com/friendsincode/inspectd/internal/availability"
	"github.com/friendsincode/inspectd/internal/cache"
	"github.com/friendsincode/inspectd/internal/calendar"
	"github.com/friendsincode/inspectd/internal/config"
	"github.com/friendsincode/inspectd/internal/db"
	"github.com/friendsincode/inspectd/internal/eventbus"
	"github.com/friendsincode/inspectd/internal/events"
	"github.com/friendsincode/inspectd/internal/leadership"
	"github.com/friendsincode/inspectd/internal/locks"
	"github.com/friendsincode/inspectd/internal/models"
	"github.com/friendsincode/inspectd/internal/notifications"
	"github.com/friendsincode/inspectd/internal/sla"
	"github.com/friendsincode/inspectd/internal/telemetry"
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg           *config.Config
	logger        zerolog.Logger
	router        chi.Router
	httpServer    *http.Server
	metricsServer *http.Server
	closers       []func() error

	db    *gorm.DB
	redis *redis.Client
	bus   *events.Bus
	relay *eventbus.Relay
	api   *api.API

	auditSvc *audit.Service
	scanner  *sla.Scanner
	election *leadership.Election

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies.
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	for _, warn := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(warn)
	}

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware)
	router.Use(telemetry.MetricsMiddleware)
	router.Use(middleware.Timeout(30 * time.Second))

	srv := &Server{
		cfg:    cfg,
		logger: logger,
		router: router,
		bus:    events.NewBus(),
	}

	if err := srv.initDependencies(); err != nil {
		_ = srv.Close()
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	srv.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort),
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	if cfg.MetricsBind != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", telemetry.Handler())
		srv.metricsServer = &http.Server{
			Addr:              cfg.MetricsBind,
			Handler:           metricsMux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	return srv, nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Cache-Control", "no-store")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

// requestLogger logs one structured line per request.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	logger = logger.With().Str("component", "http").Logger()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Debug().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}

// NewRedisClient returns a client when any component needs Redis, nil otherwise.
func NewRedisClient(cfg *config.Config) *redis.Client {
	if cfg.LockBackend != config.LockRedis && !cfg.CacheEnabled {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

// NewPublishers builds the external event publishers the configuration enables.
func NewPublishers(cfg *config.Config, client *redis.Client, logger zerolog.Logger) ([]eventbus.Publisher, error) {
	nodeID := eventbus.NodeID()
	var publishers []eventbus.Publisher

	if cfg.NATSURL != "" {
		natsCfg := eventbus.DefaultNATSConfig()
		natsCfg.URL = cfg.NATSURL
		natsCfg.SubjectPrefix = cfg.EventSubjectPrefix
		p, err := eventbus.NewNATSPublisher(natsCfg, nodeID, logger)
		if err != nil {
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		publishers = append(publishers, p)
	}

	if client != nil {
		redisCfg := eventbus.DefaultRedisConfig()
		redisCfg.ChannelPrefix = cfg.EventSubjectPrefix
		publishers = append(publishers, eventbus.NewRedisPublisher(client, redisCfg, nodeID, logger))
	}
	return publishers, nil
}

// NotificationChannel picks broker delivery when events leave the process.
func NotificationChannel(publishers []eventbus.Publisher) models.NotificationChannel {
	if len(publishers) > 0 {
		return models.NotificationChannelBroker
	}
	return models.NotificationChannelInApp
}

func (s *Server) initDependencies() error {
	database, err := db.Connect(s.cfg)
	if err != nil {
		return err
	}
	s.db = database
	s.DeferClose(func() error { return db.Close(database) })

	if err := db.RegisterCallbacks(database); err != nil {
		return fmt.Errorf("register db callbacks: %w", err)
	}
	if err := db.Migrate(database); err != nil {
		return err
	}

	s.redis = NewRedisClient(s.cfg)
	if s.redis != nil {
		client := s.redis
		s.DeferClose(client.Close)
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			if s.cfg.LockBackend == config.LockRedis {
				return fmt.Errorf("redis unavailable for booking locks: %w", err)
			}
			s.logger.Warn().Err(err).Msg("redis unavailable, cache falls back to local tier")
		}
	}

	var locker locks.Locker = locks.NewLocal()
	if s.cfg.LockBackend == config.LockRedis {
		lockCfg := locks.DefaultRedisConfig()
		lockCfg.LeaseDuration = s.cfg.LockTTL
		locker = locks.NewRedis(s.redis, lockCfg, s.logger)
	}

	cacheCfg := cache.DefaultConfig()
	cacheCfg.AvailabilityTTL = s.cfg.CacheTTL
	var cacheClient *redis.Client
	if s.cfg.CacheEnabled {
		cacheClient = s.redis
	}
	entityCache := cache.New(cacheCfg, cacheClient, s.logger)

	publishers, err := NewPublishers(s.cfg, s.redis, s.logger)
	if err != nil {
		return err
	}
	s.relay = eventbus.NewRelay(s.bus, s.logger, publishers...)
	s.DeferClose(s.relay.Close)

	table, err := sla.LoadTable(s.cfg.SLATablePath)
	if err != nil {
		return fmt.Errorf("load sla table: %w", err)
	}

	notifier := notifications.NewService(database, s.bus, NotificationChannel(publishers), s.logger)
	avail := availability.NewStore(database, entityCache, s.bus, s.logger)
	calendarSvc := calendar.NewService(database, avail, locker, notifier, s.bus, s.logger)
	assignmentSvc := assignment.NewService(database, table, s.bus, notifier, s.logger)
	slaSvc := sla.NewService(database, table, s.bus, notifier, s.logger)
	s.auditSvc = audit.NewService(database, s.bus, s.logger)

	if s.cfg.SLAScanInterval > 0 {
		// Replicas sharing redis locks elect one scanner.
		var leader leadership.Leader = leadership.Single{}
		if s.cfg.LockBackend == config.LockRedis {
			election, err := leadership.NewElection(s.redis, leadership.DefaultConfig("sla-scan"), s.logger)
			if err != nil {
				return fmt.Errorf("sla scan election: %w", err)
			}
			s.election = election
			leader = election
		}
		s.scanner = sla.NewScanner(slaSvc, s.cfg.SLAScanInterval, s.cfg.NearDeadlineWindow(), leader.IsLeader)
	}

	s.api = api.New(api.Deps{
		DB:                 database,
		JWTSecret:          []byte(s.cfg.JWTSigningKey),
		Calendar:           calendarSvc,
		Availability:       avail,
		Assignments:        assignmentSvc,
		SLA:                slaSvc,
		Notifications:      notifier,
		Audit:              s.auditSvc,
		Cache:              entityCache,
		NearDeadlineWindow: s.cfg.NearDeadlineWindow(),
		RateLimit:          rate.Limit(s.cfg.RateLimitRPS),
		RateBurst:          s.cfg.RateLimitBurst,
	}, s.logger)

	s.logger.Info().
		Str("db_backend", string(s.cfg.DBBackend)).
		Str("lock_backend", string(s.cfg.LockBackend)).
		Bool("cache_redis", cacheClient != nil).
		Int("event_publishers", len(publishers)).
		Dur("sla_scan_interval", s.cfg.SLAScanInterval).
		Msg("dependencies initialized")
	return nil
}

func (s *Server) configureRoutes() {
	s.api.Routes(s.router)
}

// Router exposes the configured router.
func (s *Server) Router() chi.Router {
	return s.router
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// MetricsServer exposes the metrics listener, nil when disabled.
func (s *Server) MetricsServer() *http.Server {
	return s.metricsServer
}

// Close releases owned resources in reverse order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	if s.auditSvc != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			s.auditSvc.Start(ctx)
		}()
	}

	if s.relay != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			s.relay.Start(ctx)
		}()
	}

	if s.election != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			s.election.Run(ctx)
		}()
	}

	if s.scanner != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			s.scanner.Run(ctx)
		}()
	}

	// Start database metrics updater
	if s.db != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					db.UpdateConnectionMetrics(s.db)
				}
			}
		}()
	}
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}
