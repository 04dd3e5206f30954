package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/example/certs/internal/ports/secondary"
)

// InvalidationRepository implements secondary.InvalidationRepository.
type InvalidationRepository struct {
	db *sqlx.DB
}

// NewInvalidationRepository creates a new invalidation repository.
func NewInvalidationRepository(db *sqlx.DB) *InvalidationRepository {
	return &InvalidationRepository{db: db}
}

// GetActive returns the newest active invalidation for a certificate, or nil.
func (r *InvalidationRepository) GetActive(ctx context.Context, certID int64) (*secondary.InvalidationRecord, error) {
	var createdAt sql.NullTime
	record := &secondary.InvalidationRecord{}
	err := r.db.QueryRowContext(ctx,
		r.db.Rebind(`SELECT id, certificate_id, invalidator_id, notes, active, created_at
			FROM certificate_invalidations
			WHERE certificate_id = ? AND active = ?
			ORDER BY id DESC LIMIT 1`),
		certID, true,
	).Scan(&record.ID, &record.CertificateID, &record.InvalidatorID, &record.Notes, &record.Active, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invalidation: %w", err)
	}
	record.CreatedAt = createdAt.Time
	return record, nil
}

// Create records a new active invalidation.
func (r *InvalidationRepository) Create(ctx context.Context, record *secondary.InvalidationRecord) error {
	err := r.db.QueryRowContext(ctx,
		r.db.Rebind("INSERT INTO certificate_invalidations (certificate_id, invalidator_id, notes, active) VALUES (?, ?, ?, ?) RETURNING id"),
		record.CertificateID, record.InvalidatorID, record.Notes, true,
	).Scan(&record.ID)
	if err != nil {
		return fmt.Errorf("failed to create invalidation: %w", classify(err))
	}
	record.Active = true
	return nil
}

// Deactivate marks every invalidation of the certificate inactive.
func (r *InvalidationRepository) Deactivate(ctx context.Context, certID int64) error {
	_, err := r.db.ExecContext(ctx,
		r.db.Rebind("UPDATE certificate_invalidations SET active = ? WHERE certificate_id = ? AND active = ?"),
		false, certID, true,
	)
	if err != nil {
		return fmt.Errorf("failed to deactivate invalidations: %w", err)
	}
	return nil
}

var _ secondary.InvalidationRepository = (*InvalidationRepository)(nil)
