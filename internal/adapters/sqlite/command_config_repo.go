package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/example/certs/internal/ports/secondary"
)

// CommandConfigRepository implements secondary.CommandConfigRepository.
// Rows are append-only; the newest row per name is current.
type CommandConfigRepository struct {
	db *sqlx.DB
}

// NewCommandConfigRepository creates a new command configuration repository.
func NewCommandConfigRepository(db *sqlx.DB) *CommandConfigRepository {
	return &CommandConfigRepository{db: db}
}

// Current returns the latest configuration row for a command, or nil.
func (r *CommandConfigRepository) Current(ctx context.Context, name string) (*secondary.CommandConfigRecord, error) {
	record := &secondary.CommandConfigRecord{}
	err := r.db.QueryRowContext(ctx,
		r.db.Rebind("SELECT id, name, enabled, arguments, changed_at FROM command_configurations WHERE name = ? ORDER BY id DESC LIMIT 1"),
		name,
	).Scan(&record.ID, &record.Name, &record.Enabled, &record.Arguments, &record.ChangedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get command configuration: %w", err)
	}
	return record, nil
}

// Save appends a new configuration row.
func (r *CommandConfigRepository) Save(ctx context.Context, record *secondary.CommandConfigRecord) error {
	if record.ChangedAt.IsZero() {
		record.ChangedAt = time.Now().UTC()
	}
	err := r.db.QueryRowContext(ctx,
		r.db.Rebind("INSERT INTO command_configurations (name, enabled, arguments, changed_at) VALUES (?, ?, ?, ?) RETURNING id"),
		record.Name, record.Enabled, record.Arguments, record.ChangedAt,
	).Scan(&record.ID)
	if err != nil {
		return fmt.Errorf("failed to save command configuration: %w", err)
	}
	return nil
}

var _ secondary.CommandConfigRepository = (*CommandConfigRepository)(nil)
