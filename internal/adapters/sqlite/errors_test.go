package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"github.com/example/certs/internal/db"
	"github.com/example/certs/internal/ports/secondary"
)

const retryCourse = "course-v1:edX+DemoX+Demo_Course"

// openSchemaDB opens an in-memory database with the authoritative schema.
func openSchemaDB(t *testing.T) *sqlx.DB {
	t.Helper()
	raw, err := sql.Open(db.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	raw.SetMaxOpenConns(1)
	t.Cleanup(func() { raw.Close() })
	if _, err := raw.Exec(db.GetSchemaSQL()); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
	return sqlx.NewDb(raw, db.DriverSQLite)
}

func insertRawCertificate(ctx context.Context, q *sqlx.DB, userID int64, status string) error {
	now := time.Now().UTC()
	_, err := q.ExecContext(ctx, `INSERT INTO generated_certificates
		(user_id, course_key, status, mode, grade, created_at, modified_at)
		VALUES (?, ?, ?, 'verified', '0.40', ?, ?)`, userID, retryCourse, status, now, now)
	return err
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		conflict bool
	}{
		{"sqlite busy", sqlite3.Error{Code: sqlite3.ErrBusy}, true},
		{"sqlite unique", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}, true},
		{"sqlite not null", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintNotNull}, false},
		{"postgres unique", &pgconn.PgError{Code: pgUniqueViolation}, true},
		{"postgres serialization", &pgconn.PgError{Code: pgSerializationFailure}, true},
		{"postgres wrapped deadlock", fmt.Errorf("exec: %w", &pgconn.PgError{Code: pgDeadlockDetected}), true},
		{"postgres foreign key", &pgconn.PgError{Code: "23503"}, false},
		{"plain error", errors.New("disk full"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errors.Is(classify(tt.err), secondary.ErrConflict)
			if got != tt.conflict {
				t.Errorf("expected conflict=%v, got %v", tt.conflict, got)
			}
		})
	}

	if classify(nil) != nil {
		t.Error("expected nil for nil error")
	}
}

func TestWithConflictRetry(t *testing.T) {
	ctx := context.Background()
	conflict := classify(&pgconn.PgError{Code: pgUniqueViolation})

	t.Run("succeeds after conflicts", func(t *testing.T) {
		calls := 0
		err := withConflictRetry(ctx, func() error {
			calls++
			if calls < maxConflictAttempts {
				return conflict
			}
			return nil
		})
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if calls != maxConflictAttempts {
			t.Errorf("expected %d calls, got %d", maxConflictAttempts, calls)
		}
	})

	t.Run("gives up", func(t *testing.T) {
		calls := 0
		err := withConflictRetry(ctx, func() error {
			calls++
			return conflict
		})
		if !errors.Is(err, secondary.ErrConflict) {
			t.Errorf("expected ErrConflict, got %v", err)
		}
		if calls != maxConflictAttempts {
			t.Errorf("expected %d calls, got %d", maxConflictAttempts, calls)
		}
	})

	t.Run("other errors are not retried", func(t *testing.T) {
		calls := 0
		err := withConflictRetry(ctx, func() error {
			calls++
			return secondary.ErrInvalid
		})
		if !errors.Is(err, secondary.ErrInvalid) || calls != 1 {
			t.Errorf("expected one call returning ErrInvalid, got %d calls and %v", calls, err)
		}
	})
}

// A create that loses the race to a concurrent insert hits the unique
// constraint; the retry must update the winner's row, not add another one.
func TestUpsert_UniqueViolationRetriesAsUpdate(t *testing.T) {
	sdb := openSchemaDB(t)
	repo := NewCertificateRepository(sdb)
	ctx := context.Background()

	if err := insertRawCertificate(ctx, sdb, 42, "notpassing"); err != nil {
		t.Fatalf("failed to seed certificate: %v", err)
	}

	fields := secondary.CertificateFields{Status: "downloadable", Mode: "verified", Grade: "0.91", Source: "test"}
	var (
		result *secondary.UpsertResult
		calls  int
	)
	err := withConflictRetry(ctx, func() error {
		calls++
		if calls == 1 {
			// Stale view: this attempt believes no row exists yet.
			return classify(insertRawCertificate(ctx, sdb, 42, "downloadable"))
		}
		var err error
		result, err = repo.upsertOnce(ctx, 42, retryCourse, fields)
		return err
	})
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 attempts, got %d", calls)
	}
	if result.Created || !result.Changed || result.PreviousStatus != "notpassing" {
		t.Errorf("expected update from notpassing, got created=%v changed=%v previous=%q",
			result.Created, result.Changed, result.PreviousStatus)
	}

	var count int
	if err := sdb.Get(&count, "SELECT COUNT(*) FROM generated_certificates WHERE user_id = 42"); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected one certificate row, got %d", count)
	}
}

func TestRowLock(t *testing.T) {
	sqliteDB := openSchemaDB(t)
	pgDB := sqlx.NewDb(sqliteDB.DB, db.DriverPostgres)

	if got := rowLock(pgDB, true); got != " FOR UPDATE" {
		t.Errorf("expected FOR UPDATE on postgres, got %q", got)
	}
	if got := rowLock(pgDB, false); got != "" {
		t.Errorf("expected no lock for plain reads, got %q", got)
	}
	if got := rowLock(sqliteDB, true); got != "" {
		t.Errorf("expected no lock on sqlite, got %q", got)
	}
}
