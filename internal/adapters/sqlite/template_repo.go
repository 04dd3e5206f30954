package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/example/certs/internal/ports/secondary"
)

// TemplateRepository implements secondary.TemplateRepository.
type TemplateRepository struct {
	db *sqlx.DB
}

// NewTemplateRepository creates a new certificate template repository.
func NewTemplateRepository(db *sqlx.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// GetByIDs returns the templates with the given IDs, ordered by ID.
func (r *TemplateRepository) GetByIDs(ctx context.Context, ids []int64) ([]*secondary.TemplateRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In("SELECT id, name, template, is_active, modified_at FROM certificate_templates WHERE id IN (?) ORDER BY id ASC", ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build template query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get templates: %w", err)
	}
	defer rows.Close()

	var templates []*secondary.TemplateRecord
	for rows.Next() {
		t := &secondary.TemplateRecord{}
		var modifiedAt sql.NullTime
		if err := rows.Scan(&t.ID, &t.Name, &t.Template, &t.IsActive, &modifiedAt); err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		t.ModifiedAt = modifiedAt.Time
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

// UpdateTemplate replaces the template body.
func (r *TemplateRepository) UpdateTemplate(ctx context.Context, id int64, template string) error {
	res, err := r.db.ExecContext(ctx,
		r.db.Rebind("UPDATE certificate_templates SET template = ?, modified_at = ? WHERE id = ?"),
		template, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update template: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("template %d: %w", id, secondary.ErrNotFound)
	}
	return nil
}

var _ secondary.TemplateRepository = (*TemplateRepository)(nil)
