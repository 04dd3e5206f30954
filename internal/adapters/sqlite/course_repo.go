package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/example/certs/internal/ports/secondary"
)

// CourseRepository reads course metadata: overviews, beta testers, site
// organizations and program membership.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository creates a new course repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// GetOverview returns the course overview, or nil if the course is unknown.
func (r *CourseRepository) GetOverview(ctx context.Context, courseKey string) (*secondary.CourseOverviewRecord, error) {
	o := &secondary.CourseOverviewRecord{}
	err := r.db.QueryRowContext(ctx,
		r.db.Rebind("SELECT course_key, display_name, org, html_certs_enabled, self_paced, idv_exempt FROM course_overviews WHERE course_key = ?"),
		courseKey,
	).Scan(&o.CourseKey, &o.DisplayName, &o.Org, &o.HTMLCertsEnabled, &o.SelfPaced, &o.IDVExempt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get course overview: %w", err)
	}
	return o, nil
}

// SetIDVExempt sets whether the course waives identity verification.
func (r *CourseRepository) SetIDVExempt(ctx context.Context, courseKey string, exempt bool) error {
	res, err := r.db.ExecContext(ctx,
		r.db.Rebind("UPDATE course_overviews SET idv_exempt = ? WHERE course_key = ?"),
		exempt, courseKey,
	)
	if err != nil {
		return fmt.Errorf("failed to update course overview: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("course %s: %w", courseKey, secondary.ErrNotFound)
	}
	return nil
}

// IsBetaTester reports whether the user is a beta tester in the course.
func (r *CourseRepository) IsBetaTester(ctx context.Context, userID int64, courseKey string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		r.db.Rebind("SELECT COUNT(*) FROM beta_testers WHERE user_id = ? AND course_key = ?"),
		userID, courseKey,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check beta tester: %w", err)
	}
	return n > 0, nil
}

// OrgsForSite returns the organizations served by a site.
func (r *CourseRepository) OrgsForSite(ctx context.Context, site string) ([]string, error) {
	return r.strings(ctx, "SELECT org FROM site_orgs WHERE site = ? ORDER BY org ASC", site)
}

// ProgramsForCourse returns the UUIDs of programs containing the course.
func (r *CourseRepository) ProgramsForCourse(ctx context.Context, courseKey string) ([]string, error) {
	return r.strings(ctx, "SELECT program_uuid FROM program_courses WHERE course_key = ? ORDER BY program_uuid ASC", courseKey)
}

// CourseKeysForOrgs returns every known course run owned by the organizations.
func (r *CourseRepository) CourseKeysForOrgs(ctx context.Context, orgs []string) ([]string, error) {
	if len(orgs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In("SELECT course_key FROM course_overviews WHERE org IN (?) ORDER BY course_key ASC", orgs)
	if err != nil {
		return nil, fmt.Errorf("failed to build course query: %w", err)
	}
	return r.strings(ctx, query, args...)
}

func (r *CourseRepository) strings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query course metadata: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan course metadata: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

var (
	_ secondary.CourseProvider       = (*CourseRepository)(nil)
	_ secondary.CourseSettingsWriter = (*CourseRepository)(nil)
	_ secondary.ProgramProvider      = (*CourseRepository)(nil)
)
