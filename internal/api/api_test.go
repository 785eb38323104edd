package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/inspectd/internal/assignment"
	"github.com/friendsincode/inspectd/internal/audit"
	"github.com/friendsincode/inspectd/internal/auth"
	"github.com/friendsincode/inspectd/internal/availability"
	"github.com/friendsincode/inspectd/internal/cache"
	"github.com/friendsincode/inspectd/internal/calendar"
	"github.com/friendsincode/inspectd/internal/db"
	"github.com/friendsincode/inspectd/internal/events"
	"github.com/friendsincode/inspectd/internal/locks"
	"github.com/friendsincode/inspectd/internal/models"
	"github.com/friendsincode/inspectd/internal/notifications"
	"github.com/friendsincode/inspectd/internal/sla"
)

var (
	testSecret = []byte("test-secret")
	// 2026-03-02 is a Monday.
	testNow = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	sqlDB, _ := database.DB()
	sqlDB.SetMaxOpenConns(1)
	if err := db.Migrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return database
}

type testServer struct {
	db      *gorm.DB
	handler http.Handler
}

func newTestServer(t *testing.T, limit rate.Limit, burst int) *testServer {
	t.Helper()
	database := setupTestDB(t)
	bus := events.NewBus()
	clock := func() time.Time { return testNow }
	c := cache.New(cache.DefaultConfig(), nil, zerolog.Nop())

	notifier := notifications.NewService(database, bus, models.NotificationChannelInApp, zerolog.Nop())
	avail := availability.NewStore(database, c, bus, zerolog.Nop())
	cal := calendar.NewService(database, avail, locks.NewLocal(), notifier, bus, zerolog.Nop()).WithClock(clock)
	assignments := assignment.NewService(database, sla.DefaultTable(), bus, notifier, zerolog.Nop()).WithClock(clock)
	slaSvc := sla.NewService(database, sla.DefaultTable(), bus, notifier, zerolog.Nop()).WithClock(clock)

	a := New(Deps{
		DB:            database,
		JWTSecret:     testSecret,
		Calendar:      cal,
		Availability:  avail,
		Assignments:   assignments,
		SLA:           slaSvc,
		Notifications: notifier,
		Audit:         audit.NewService(database, bus, zerolog.Nop()),
		Cache:         c,
		RateLimit:     limit,
		RateBurst:     burst,
	}, zerolog.Nop())

	r := chi.NewRouter()
	a.Routes(r)
	return &testServer{db: database, handler: r}
}

func token(t *testing.T, uid string, roles ...string) string {
	t.Helper()
	tok, err := auth.Issue(testSecret, auth.Claims{UserID: uid, Roles: roles}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return tok
}

func (s *testServer) do(t *testing.T, method, path, tok string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
}

func availabilityBody(maxDaily int) map[string]any {
	hours := make([]map[string]any, 0, 5)
	for d := 1; d <= 5; d++ {
		hours = append(hours, map[string]any{"day_of_week": d, "start_time": "08:00", "end_time": "18:00", "is_available": true})
	}
	return map[string]any{
		"timezone":      "UTC",
		"is_active":     true,
		"working_hours": hours,
		"constraints":   map[string]any{"max_daily_bookings": maxDaily},
	}
}

func bookingBody(actorID string, start, end time.Time) map[string]any {
	return map[string]any{
		"actor_id":   actorID,
		"role":       "inspector",
		"start_time": start.Format(time.RFC3339),
		"end_time":   end.Format(time.RFC3339),
	}
}

func TestHealthIsPublic(t *testing.T) {
	s := newTestServer(t, 0, 0)
	for _, path := range []string{"/health", "/api/v1/health"} {
		rr := s.do(t, http.MethodGet, path, "", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rr.Code)
		}
	}
}

func TestRoutesRequireToken(t *testing.T) {
	s := newTestServer(t, 0, 0)
	rr := s.do(t, http.MethodGet, "/api/v1/actors/insp/upcoming", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestBookingFlowAndErrorMapping(t *testing.T) {
	s := newTestServer(t, 0, 0)
	insp := token(t, "insp", "inspector")
	officer := token(t, "officer", "officer")

	if rr := s.do(t, http.MethodPut, "/api/v1/actors/insp/availability", officer, availabilityBody(1)); rr.Code != http.StatusForbidden {
		t.Fatalf("foreign availability update: expected 403, got %d", rr.Code)
	}
	if rr := s.do(t, http.MethodPut, "/api/v1/actors/insp/availability", insp, availabilityBody(1)); rr.Code != http.StatusOK {
		t.Fatalf("availability update: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	start := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		body    map[string]any
		code    int
		message string
	}{
		{
			name:    "inverted window",
			body:    bookingBody("insp", start, start.Add(-time.Hour)),
			code:    http.StatusBadRequest,
			message: "end time must be after start time",
		},
		{
			name:    "no availability",
			body:    bookingBody("nobody", start, start.Add(time.Hour)),
			code:    http.StatusConflict,
			message: "availability not configured",
		},
		{
			name: "booked",
			body: bookingBody("insp", start, start.Add(time.Hour)),
			code: http.StatusCreated,
		},
		{
			name:    "daily capacity",
			body:    bookingBody("insp", start.Add(3*time.Hour), start.Add(4*time.Hour)),
			code:    http.StatusConflict,
			message: "daily booking limit of 1 reached",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := s.do(t, http.MethodPost, "/api/v1/bookings/inspections", officer, tt.body)
			if rr.Code != tt.code {
				t.Fatalf("expected %d, got %d body=%s", tt.code, rr.Code, rr.Body.String())
			}
			if tt.message != "" {
				var resp map[string]string
				decodeBody(t, rr, &resp)
				if resp["message"] != tt.message {
					t.Fatalf("message = %q, want %q", resp["message"], tt.message)
				}
			}
		})
	}

	rr := s.do(t, http.MethodGet, "/api/v1/actors/insp/upcoming?days=7", insp, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("upcoming: expected 200, got %d", rr.Code)
	}
	var upcoming struct {
		Events []models.CalendarEvent `json:"events"`
	}
	decodeBody(t, rr, &upcoming)
	if len(upcoming.Events) != 1 || upcoming.Events[0].EventType != models.EventTypeInspection {
		t.Fatalf("unexpected upcoming events %+v", upcoming.Events)
	}

	if rr := s.do(t, http.MethodGet, "/api/v1/actors/insp/upcoming", officer, nil); rr.Code != http.StatusForbidden {
		t.Fatalf("foreign upcoming: expected 403, got %d", rr.Code)
	}

	rr = s.do(t, http.MethodGet, "/api/v1/notifications", insp, nil)
	var inbox struct {
		Total int64 `json:"total"`
	}
	decodeBody(t, rr, &inbox)
	if inbox.Total != 1 {
		t.Fatalf("expected a booking confirmation, got %d notifications", inbox.Total)
	}
}

func TestBookingIdempotencyKey(t *testing.T) {
	s := newTestServer(t, 0, 0)
	insp := token(t, "insp", "inspector")
	if rr := s.do(t, http.MethodPut, "/api/v1/actors/insp/availability", insp, availabilityBody(0)); rr.Code != http.StatusOK {
		t.Fatalf("availability update: %d", rr.Code)
	}

	start := time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)
	body := bookingBody("insp", start, start.Add(time.Hour))

	first := s.do(t, http.MethodPost, "/api/v1/bookings/inspections", insp, body, "Idempotency-Key", "k-1")
	if first.Code != http.StatusCreated {
		t.Fatalf("first: expected 201, got %d body=%s", first.Code, first.Body.String())
	}
	var created models.CalendarEvent
	decodeBody(t, first, &created)

	second := s.do(t, http.MethodPost, "/api/v1/bookings/inspections", insp, body, "Idempotency-Key", "k-1")
	if second.Code != http.StatusOK || second.Header().Get("Idempotent-Replay") != "true" {
		t.Fatalf("replay: expected 200 replay, got %d", second.Code)
	}
	var replay map[string]string
	decodeBody(t, second, &replay)
	if replay["id"] != created.ID {
		t.Fatalf("replay id = %q, want %q", replay["id"], created.ID)
	}

	var count int64
	s.db.Model(&models.CalendarEvent{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected one event, got %d", count)
	}
}

func TestAssignmentLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t, 0, 0)
	mgr := token(t, "mgr", "manager")
	insp := token(t, "insp", "inspector")

	createBody := map[string]any{"subject_id": "app-7", "assignee_id": "insp", "job_type": "FARM_INSPECTION"}
	if rr := s.do(t, http.MethodPost, "/api/v1/assignments", insp, createBody); rr.Code != http.StatusForbidden {
		t.Fatalf("inspector create: expected 403, got %d", rr.Code)
	}

	rr := s.do(t, http.MethodPost, "/api/v1/assignments", mgr, createBody)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	var created struct {
		ID  string               `json:"id"`
		SLA models.AssignmentSLA `json:"sla"`
	}
	decodeBody(t, rr, &created)
	if created.SLA.ExpectedDurationHours != 120 {
		t.Fatalf("expected 120h SLA, got %+v", created.SLA)
	}

	base := "/api/v1/assignments/" + created.ID
	if rr := s.do(t, http.MethodPost, base+"/start", insp, nil); rr.Code != http.StatusConflict {
		t.Fatalf("start before accept: expected 409, got %d", rr.Code)
	}
	for _, step := range []string{"/accept", "/start"} {
		if rr := s.do(t, http.MethodPost, base+step, insp, nil); rr.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d body=%s", step, rr.Code, rr.Body.String())
		}
	}

	incomplete := map[string]any{"report_ref": "r-1", "recommendation": "approve", "summary": "ok"}
	if rr := s.do(t, http.MethodPost, base+"/complete", insp, incomplete); rr.Code != http.StatusBadRequest {
		t.Fatalf("incomplete evidence: expected 400, got %d", rr.Code)
	}
	complete := map[string]any{"report_ref": "r-1", "score": 0, "recommendation": "approve", "summary": "ok"}
	if rr := s.do(t, http.MethodPost, base+"/complete", insp, complete); rr.Code != http.StatusOK {
		t.Fatalf("complete: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = s.do(t, http.MethodGet, base+"/history", insp, nil)
	var history struct {
		History []models.AssignmentHistory `json:"history"`
	}
	decodeBody(t, rr, &history)
	if len(history.History) != 4 {
		t.Fatalf("expected 4 history rows, got %d", len(history.History))
	}

	if rr := s.do(t, http.MethodGet, "/api/v1/assignments/sla/statistics", insp, nil); rr.Code != http.StatusForbidden {
		t.Fatalf("inspector statistics: expected 403, got %d", rr.Code)
	}
	if rr := s.do(t, http.MethodGet, "/api/v1/assignments/sla/statistics?job_type=FARM_INSPECTION", mgr, nil); rr.Code != http.StatusOK {
		t.Fatalf("statistics: expected 200, got %d", rr.Code)
	}
}

func TestUnknownResourcesReturnNotFound(t *testing.T) {
	s := newTestServer(t, 0, 0)
	mgr := token(t, "mgr", "manager")

	for _, path := range []string{
		"/api/v1/events/00000000-0000-0000-0000-000000000000",
		"/api/v1/assignments/00000000-0000-0000-0000-000000000000",
		"/api/v1/actors/ghost/availability",
	} {
		if rr := s.do(t, http.MethodGet, path, mgr, nil); rr.Code != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", path, rr.Code)
		}
	}
}

func TestCalendarExportContentType(t *testing.T) {
	s := newTestServer(t, 0, 0)
	insp := token(t, "insp", "inspector")

	rr := s.do(t, http.MethodGet, "/api/v1/actors/insp/calendar.ics", insp, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.HasPrefix(rr.Header().Get("Content-Type"), "text/calendar") {
		t.Fatalf("unexpected content type %q", rr.Header().Get("Content-Type"))
	}
	if !strings.Contains(rr.Body.String(), "BEGIN:VCALENDAR") {
		t.Fatal("body is not an iCalendar feed")
	}
}

func TestMutationsAreRateLimited(t *testing.T) {
	s := newTestServer(t, rate.Limit(0.001), 1)
	insp := token(t, "insp", "inspector")
	body := bookingBody("insp", testNow.Add(48*time.Hour), testNow.Add(49*time.Hour))

	first := s.do(t, http.MethodPost, "/api/v1/bookings/inspections", insp, body)
	if first.Code == http.StatusTooManyRequests {
		t.Fatal("first request should not be limited")
	}
	second := s.do(t, http.MethodPost, "/api/v1/bookings/inspections", insp, body)
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", second.Code)
	}

	other := s.do(t, http.MethodPost, "/api/v1/bookings/inspections", token(t, "insp2", "inspector"), body)
	if other.Code == http.StatusTooManyRequests {
		t.Fatal("limits are per caller")
	}
}
