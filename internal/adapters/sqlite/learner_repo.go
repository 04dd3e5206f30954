package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/example/certs/internal/ports/secondary"
)

// LearnerRepository reads the collaborator tables owned by the platform:
// users, enrollments, grades, verifications and retirements. It also writes
// the subset of that state that arrives through lifecycle signals.
type LearnerRepository struct {
	db *sqlx.DB
}

// NewLearnerRepository creates a new learner repository.
func NewLearnerRepository(db *sqlx.DB) *LearnerRepository {
	return &LearnerRepository{db: db}
}

// GetEnrollment returns the enrollment for (user, course), or nil.
func (r *LearnerRepository) GetEnrollment(ctx context.Context, userID int64, courseKey string) (*secondary.EnrollmentRecord, error) {
	e := &secondary.EnrollmentRecord{}
	err := r.db.QueryRowContext(ctx,
		r.db.Rebind("SELECT user_id, course_key, mode, is_active FROM enrollments WHERE user_id = ? AND course_key = ?"),
		userID, courseKey,
	).Scan(&e.UserID, &e.CourseKey, &e.Mode, &e.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get enrollment: %w", err)
	}
	return e, nil
}

// ListActiveEnrollments returns every active enrollment of a user.
func (r *LearnerRepository) ListActiveEnrollments(ctx context.Context, userID int64) ([]*secondary.EnrollmentRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		r.db.Rebind("SELECT user_id, course_key, mode, is_active FROM enrollments WHERE user_id = ? AND is_active = ? ORDER BY course_key ASC"),
		userID, true,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}
	defer rows.Close()

	var enrollments []*secondary.EnrollmentRecord
	for rows.Next() {
		e := &secondary.EnrollmentRecord{}
		if err := rows.Scan(&e.UserID, &e.CourseKey, &e.Mode, &e.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan enrollment: %w", err)
		}
		enrollments = append(enrollments, e)
	}
	return enrollments, rows.Err()
}

// SetEnrollment creates or replaces an enrollment. Used by the signal and
// seed commands to simulate platform updates.
func (r *LearnerRepository) SetEnrollment(ctx context.Context, e *secondary.EnrollmentRecord) error {
	_, err := r.db.ExecContext(ctx,
		r.db.Rebind(`INSERT INTO enrollments (user_id, course_key, mode, is_active) VALUES (?, ?, ?, ?)
			ON CONFLICT (user_id, course_key) DO UPDATE SET mode = excluded.mode, is_active = excluded.is_active`),
		e.UserID, e.CourseKey, e.Mode, e.IsActive,
	)
	if err != nil {
		return fmt.Errorf("failed to set enrollment: %w", err)
	}
	return nil
}

const gradeSelectCols = "id, user_id, course_key, percent, letter_grade, passed, modified_at"

func scanGrade(scanner interface {
	Scan(dest ...any) error
}) (*secondary.GradeRecord, error) {
	g := &secondary.GradeRecord{}
	var modifiedAt sql.NullTime
	if err := scanner.Scan(&g.ID, &g.UserID, &g.CourseKey, &g.Percent, &g.LetterGrade, &g.Passed, &modifiedAt); err != nil {
		return nil, err
	}
	g.ModifiedAt = modifiedAt.Time
	return g, nil
}

// GetGrade returns the course grade for (user, course), or nil.
func (r *LearnerRepository) GetGrade(ctx context.Context, userID int64, courseKey string) (*secondary.GradeRecord, error) {
	row := r.db.QueryRowContext(ctx,
		r.db.Rebind("SELECT "+gradeSelectCols+" FROM grades WHERE user_id = ? AND course_key = ?"),
		userID, courseKey,
	)
	g, err := scanGrade(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get grade: %w", err)
	}
	return g, nil
}

// ListModifiedGrades returns grades modified in [after, before), ordered by ID.
func (r *LearnerRepository) ListModifiedGrades(ctx context.Context, filters secondary.GradeFilters) ([]*secondary.GradeRecord, error) {
	query := "SELECT " + gradeSelectCols + " FROM grades WHERE 1=1"
	args := []any{}

	if len(filters.CourseKeys) > 0 {
		query += " AND course_key IN (?)"
		args = append(args, filters.CourseKeys)
	}
	if !filters.ModifiedAfter.IsZero() {
		query += " AND modified_at >= ?"
		args = append(args, filters.ModifiedAfter.UTC())
	}
	if !filters.ModifiedBefore.IsZero() {
		query += " AND modified_at < ?"
		args = append(args, filters.ModifiedBefore.UTC())
	}
	if filters.AfterID > 0 {
		query += " AND id > ?"
		args = append(args, filters.AfterID)
	}
	query += " ORDER BY id ASC"
	if filters.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filters.Limit)
	}

	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to build grade query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list grades: %w", err)
	}
	defer rows.Close()

	var grades []*secondary.GradeRecord
	for rows.Next() {
		g, err := scanGrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan grade: %w", err)
		}
		grades = append(grades, g)
	}
	return grades, rows.Err()
}

// SetGrade creates or replaces a course grade.
func (r *LearnerRepository) SetGrade(ctx context.Context, g *secondary.GradeRecord) error {
	_, err := r.db.ExecContext(ctx,
		r.db.Rebind(`INSERT INTO grades (user_id, course_key, percent, letter_grade, passed, modified_at) VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (user_id, course_key) DO UPDATE SET
				percent = excluded.percent, letter_grade = excluded.letter_grade,
				passed = excluded.passed, modified_at = excluded.modified_at`),
		g.UserID, g.CourseKey, g.Percent, g.LetterGrade, g.Passed, g.ModifiedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to set grade: %w", err)
	}
	return nil
}

// VerificationStatus returns the identity verification status of a user.
// Users without a row report VerificationNone.
func (r *LearnerRepository) VerificationStatus(ctx context.Context, userID int64) (string, error) {
	var status string
	err := r.db.QueryRowContext(ctx,
		r.db.Rebind("SELECT status FROM verifications WHERE user_id = ?"),
		userID,
	).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return secondary.VerificationNone, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get verification status: %w", err)
	}
	return status, nil
}

// SetVerificationStatus records the identity verification status of a user.
func (r *LearnerRepository) SetVerificationStatus(ctx context.Context, userID int64, status string) error {
	_, err := r.db.ExecContext(ctx,
		r.db.Rebind(`INSERT INTO verifications (user_id, status, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT (user_id) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at`),
		userID, status,
	)
	if err != nil {
		return fmt.Errorf("failed to set verification status: %w", err)
	}
	return nil
}

// GetProfile returns the profile of a user.
func (r *LearnerRepository) GetProfile(ctx context.Context, userID int64) (*secondary.ProfileRecord, error) {
	p := &secondary.ProfileRecord{}
	err := r.db.QueryRowContext(ctx,
		r.db.Rebind("SELECT id, username, email, name, is_active FROM users WHERE id = ?"),
		userID,
	).Scan(&p.ID, &p.Username, &p.Email, &p.Name, &p.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %d: %w", userID, secondary.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

// ListRetiredUserIDs returns users whose retirement has completed.
func (r *LearnerRepository) ListRetiredUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT user_id FROM retirements WHERE state = 'complete' ORDER BY user_id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list retired users: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan retired user: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

var (
	_ secondary.EnrollmentProvider   = (*LearnerRepository)(nil)
	_ secondary.GradeProvider        = (*LearnerRepository)(nil)
	_ secondary.VerificationProvider = (*LearnerRepository)(nil)
	_ secondary.ProfileProvider      = (*LearnerRepository)(nil)
)

var _ secondary.LearnerStateWriter = (*LearnerRepository)(nil)
