package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/inspectd/internal/config"
	"github.com/friendsincode/inspectd/internal/eventbus"
	"github.com/friendsincode/inspectd/internal/models"
)

func TestSecurityHeadersMiddleware_BaselineHeaders(t *testing.T) {
	h := securityHeadersMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("X-Content-Type-Options=%q, want nosniff", got)
	}
	if got := rr.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("X-Frame-Options=%q, want DENY", got)
	}
	if got := rr.Header().Get("Strict-Transport-Security"); got != "" {
		t.Fatalf("expected no HSTS on non-HTTPS request, got %q", got)
	}
}

func TestSecurityHeadersMiddleware_SetsHSTSOnHTTPS(t *testing.T) {
	h := securityHeadersMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get("Strict-Transport-Security"); got != "max-age=31536000; includeSubDomains" {
		t.Fatalf("Strict-Transport-Security=%q", got)
	}
}

func testConfig() *config.Config {
	return &config.Config{
		Environment:    "test",
		HTTPBind:       "127.0.0.1",
		HTTPPort:       0,
		DBBackend:      config.DatabaseSQLite,
		DBDSN:          ":memory:",
		JWTSigningKey:  "test-secret",
		LockBackend:    config.LockLocal,
		LockTTL:        10 * time.Second,
		CacheTTL:       time.Minute,
		RateLimitRPS:   5,
		RateLimitBurst: 10,
	}
}

func TestNewWiresLocalOnlyStack(t *testing.T) {
	srv, err := New(testConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = srv.Close() })

	if srv.MetricsServer() != nil {
		t.Fatal("metrics server should be disabled without a bind address")
	}

	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("health: expected 200, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/events/x", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("protected route: expected 401, got %d", rr.Code)
	}
}

func TestSLAScannerRunsWithoutElectionOnLocalLocks(t *testing.T) {
	cfg := testConfig()
	cfg.SLAScanInterval = time.Minute
	srv, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = srv.Close() })

	if srv.scanner == nil {
		t.Fatal("expected periodic sla scanner")
	}
	if srv.election != nil {
		t.Fatal("local locks should not start a leader election")
	}
}

func TestLocalConfigNeedsNoRedisOrBroker(t *testing.T) {
	cfg := testConfig()
	if NewRedisClient(cfg) != nil {
		t.Fatal("local locks without cache should not create a redis client")
	}

	publishers, err := NewPublishers(cfg, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewPublishers: %v", err)
	}
	if len(publishers) != 0 {
		t.Fatalf("expected no publishers, got %d", len(publishers))
	}
	if NotificationChannel(publishers) != models.NotificationChannelInApp {
		t.Fatal("expected in-app notifications without a broker")
	}
	if NotificationChannel([]eventbus.Publisher{nil}) != models.NotificationChannelBroker {
		t.Fatal("expected broker notifications with a publisher")
	}

	cfg.CacheEnabled = true
	client := NewRedisClient(cfg)
	if client == nil {
		t.Fatal("enabled cache should create a redis client")
	}
	_ = client.Close()
}
