// Package sqlite contains database/sql implementations of the repository
// interfaces. SQLite is the default backend; the same queries run on Postgres
// through the pgx stdlib driver after placeholder rebinding.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"

	"github.com/example/certs/internal/ports/secondary"
)

// maxConflictAttempts bounds in-place retries of transient storage errors.
const maxConflictAttempts = 3

// Postgres SQLSTATE codes treated as transient.
const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// classify wraps transient driver errors with secondary.ErrConflict.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if isTransient(err) {
		return fmt.Errorf("%w: %v", secondary.ErrConflict, err)
	}
	return err
}

func isTransient(err error) bool {
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch {
		case liteErr.Code == sqlite3.ErrBusy, liteErr.Code == sqlite3.ErrLocked:
			return true
		case liteErr.ExtendedCode == sqlite3.ErrConstraintUnique,
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
			return true
		}
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation, pgSerializationFailure, pgDeadlockDetected:
			return true
		}
	}
	return false
}

// withConflictRetry runs fn until it succeeds, fails with a non-conflict
// error, or exhausts maxConflictAttempts.
func withConflictRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= maxConflictAttempts; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, secondary.ErrConflict) {
			return err
		}
		if attempt == maxConflictAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 10 * time.Millisecond):
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", maxConflictAttempts, err)
}
