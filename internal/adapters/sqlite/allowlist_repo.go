package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/example/certs/internal/ports/secondary"
)

// AllowlistRepository implements secondary.AllowlistRepository.
type AllowlistRepository struct {
	db *sqlx.DB
}

// NewAllowlistRepository creates a new allowlist repository.
func NewAllowlistRepository(db *sqlx.DB) *AllowlistRepository {
	return &AllowlistRepository{db: db}
}

const allowlistSelectCols = "id, user_id, course_key, enabled, notes, created_at"

func scanAllowlist(scanner interface {
	Scan(dest ...any) error
}) (*secondary.AllowlistRecord, error) {
	record := &secondary.AllowlistRecord{}
	var createdAt sql.NullTime
	if err := scanner.Scan(&record.ID, &record.UserID, &record.CourseKey, &record.Enabled, &record.Notes, &createdAt); err != nil {
		return nil, err
	}
	record.CreatedAt = createdAt.Time
	return record, nil
}

// Get returns the allowlist entry for (user, course), or nil if none exists.
func (r *AllowlistRepository) Get(ctx context.Context, userID int64, courseKey string) (*secondary.AllowlistRecord, error) {
	row := r.db.QueryRowContext(ctx,
		r.db.Rebind("SELECT "+allowlistSelectCols+" FROM certificate_allowlist WHERE user_id = ? AND course_key = ?"),
		userID, courseKey,
	)
	record, err := scanAllowlist(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get allowlist entry: %w", err)
	}
	return record, nil
}

// Upsert adds or updates an allowlist entry.
func (r *AllowlistRepository) Upsert(ctx context.Context, entry *secondary.AllowlistRecord) error {
	return withConflictRetry(ctx, func() error {
		existing, err := r.Get(ctx, entry.UserID, entry.CourseKey)
		if err != nil {
			return err
		}
		if existing != nil {
			_, err = r.db.ExecContext(ctx,
				r.db.Rebind("UPDATE certificate_allowlist SET enabled = ?, notes = ? WHERE id = ?"),
				entry.Enabled, entry.Notes, existing.ID,
			)
			if err != nil {
				return fmt.Errorf("failed to update allowlist entry: %w", classify(err))
			}
			entry.ID = existing.ID
			return nil
		}

		err = r.db.QueryRowContext(ctx,
			r.db.Rebind("INSERT INTO certificate_allowlist (user_id, course_key, enabled, notes) VALUES (?, ?, ?, ?) RETURNING id"),
			entry.UserID, entry.CourseKey, entry.Enabled, entry.Notes,
		).Scan(&entry.ID)
		if err != nil {
			return fmt.Errorf("failed to create allowlist entry: %w", classify(err))
		}
		return nil
	})
}

// Remove deletes the allowlist entry for (user, course).
func (r *AllowlistRepository) Remove(ctx context.Context, userID int64, courseKey string) error {
	res, err := r.db.ExecContext(ctx,
		r.db.Rebind("DELETE FROM certificate_allowlist WHERE user_id = ? AND course_key = ?"),
		userID, courseKey,
	)
	if err != nil {
		return fmt.Errorf("failed to remove allowlist entry: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("allowlist entry for user %d in %s: %w", userID, courseKey, secondary.ErrNotFound)
	}
	return nil
}

// ListByCourse returns entries for a course ordered by user, optionally only enabled ones.
func (r *AllowlistRepository) ListByCourse(ctx context.Context, courseKey string, enabledOnly bool) ([]*secondary.AllowlistRecord, error) {
	query := "SELECT " + allowlistSelectCols + " FROM certificate_allowlist WHERE course_key = ?"
	args := []any{courseKey}
	if enabledOnly {
		query += " AND enabled = ?"
		args = append(args, true)
	}
	query += " ORDER BY user_id ASC"

	rows, err := r.db.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list allowlist: %w", err)
	}
	defer rows.Close()

	var entries []*secondary.AllowlistRecord
	for rows.Next() {
		record, err := scanAllowlist(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan allowlist entry: %w", err)
		}
		entries = append(entries, record)
	}
	return entries, rows.Err()
}

var _ secondary.AllowlistRepository = (*AllowlistRepository)(nil)
