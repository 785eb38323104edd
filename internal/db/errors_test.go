package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/inspectd/internal/models"
	"github.com/friendsincode/inspectd/internal/telemetry"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, ErrorClassNone},
		{"not found", gorm.ErrRecordNotFound, ErrorClassNone},
		{"translated duplicate", gorm.ErrDuplicatedKey, ErrorClassDuplicateKey},
		{"translated check", fmt.Errorf("save: %w", gorm.ErrCheckConstraintViolated), ErrorClassCheck},
		{"postgres trigger", fmt.Errorf("save event: %w", &pgconn.PgError{Code: "23514"}), ErrorClassCheck},
		{"postgres exclusion", &pgconn.PgError{Code: "23P01"}, ErrorClassCheck},
		{"postgres unique", &pgconn.PgError{Code: "23505"}, ErrorClassDuplicateKey},
		{"postgres syntax", &pgconn.PgError{Code: "42601"}, ErrorClassQuery},
		{"mysql duplicate", &mysql.MySQLError{Number: 1062}, ErrorClassDuplicateKey},
		{"mysql foreign key", &mysql.MySQLError{Number: 1452}, ErrorClassForeignKey},
		{"sqlite unique", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}, ErrorClassDuplicateKey},
		{"sqlite trigger", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintTrigger}, ErrorClassCheck},
		{"sqlite busy", sqlite3.Error{Code: sqlite3.ErrBusy}, ErrorClassQuery},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), ErrorClassTimeout},
		{"canceled", context.Canceled, ErrorClassCanceled},
		{"other", errors.New("boom"), ErrorClassQuery},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Fatalf("Classify(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestCallbacksCountErrorsByClass(t *testing.T) {
	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := RegisterCallbacks(database); err != nil {
		t.Fatalf("register callbacks: %v", err)
	}
	if err := Migrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	counter := telemetry.DatabaseErrorsTotal.WithLabelValues("create", string(ErrorClassDuplicateKey))
	before := counterValue(t, counter)

	first := models.ActorAvailability{ID: "00000000-0000-0000-0000-000000000001", ActorID: "insp", Timezone: "UTC"}
	if err := database.Create(&first).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	dup := models.ActorAvailability{ID: "00000000-0000-0000-0000-000000000002", ActorID: "insp", Timezone: "UTC"}
	err = database.Create(&dup).Error
	if !IsDuplicateKey(err) {
		t.Fatalf("expected duplicate key, got %v", err)
	}

	if got := counterValue(t, counter) - before; got != 1 {
		t.Fatalf("duplicate_key errors recorded = %v, want 1", got)
	}
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("read counter: %v", err)
	}
	return m.GetCounter().GetValue()
}
