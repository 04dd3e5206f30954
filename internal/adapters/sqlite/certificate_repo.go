package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/example/certs/internal/core/mode"
	"github.com/example/certs/internal/core/status"
	"github.com/example/certs/internal/ports/secondary"
)

// CertificateRepository implements secondary.CertificateRepository.
type CertificateRepository struct {
	db *sqlx.DB
}

// NewCertificateRepository creates a new certificate repository.
func NewCertificateRepository(db *sqlx.DB) *CertificateRepository {
	return &CertificateRepository{db: db}
}

const certificateSelectCols = "id, user_id, course_key, status, mode, grade, verify_uuid, download_uuid, download_url, cert_key, name, error_reason, distinction, created_at, modified_at"

// scanCertificate scans a certificate row into a CertificateRecord.
func scanCertificate(scanner interface {
	Scan(dest ...any) error
}) (*secondary.CertificateRecord, error) {
	record := &secondary.CertificateRecord{}
	err := scanner.Scan(
		&record.ID, &record.UserID, &record.CourseKey, &record.Status, &record.Mode, &record.Grade,
		&record.VerifyUUID, &record.DownloadUUID, &record.DownloadURL, &record.Key, &record.Name,
		&record.ErrorReason, &record.Distinction, &record.CreatedAt, &record.ModifiedAt,
	)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// queryer is satisfied by both *sqlx.DB and *sqlx.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	Rebind(query string) string
	DriverName() string
}

// rowLock returns the locking clause for a read that precedes a write in the
// same transaction. SQLite has no row locks; its single writer connection
// already serializes the read-modify-write.
func rowLock(q queryer, lock bool) string {
	if lock && sqlx.BindType(q.DriverName()) == sqlx.DOLLAR {
		return " FOR UPDATE"
	}
	return ""
}

func getCertificate(ctx context.Context, q queryer, userID int64, courseKey string, lock bool) (*secondary.CertificateRecord, error) {
	row := q.QueryRowContext(ctx,
		q.Rebind("SELECT "+certificateSelectCols+" FROM generated_certificates WHERE user_id = ? AND course_key = ?"+rowLock(q, lock)),
		userID, courseKey,
	)
	record, err := scanCertificate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get certificate: %w", classify(err))
	}
	return record, nil
}

func getCertificateByID(ctx context.Context, q queryer, id int64, lock bool) (*secondary.CertificateRecord, error) {
	row := q.QueryRowContext(ctx,
		q.Rebind("SELECT "+certificateSelectCols+" FROM generated_certificates WHERE id = ?"+rowLock(q, lock)),
		id,
	)
	record, err := scanCertificate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("certificate %d: %w", id, secondary.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get certificate: %w", classify(err))
	}
	return record, nil
}

// Get returns the certificate for (user, course), or nil if none exists.
func (r *CertificateRepository) Get(ctx context.Context, userID int64, courseKey string) (*secondary.CertificateRecord, error) {
	return getCertificate(ctx, r.db, userID, courseKey, false)
}

// GetByID retrieves a certificate by its ID.
func (r *CertificateRepository) GetByID(ctx context.Context, id int64) (*secondary.CertificateRecord, error) {
	return getCertificateByID(ctx, r.db, id, false)
}

// List retrieves certificates matching the given filters, ordered by ID.
func (r *CertificateRepository) List(ctx context.Context, filters secondary.CertificateFilters) ([]*secondary.CertificateRecord, error) {
	query := "SELECT " + certificateSelectCols + " FROM generated_certificates WHERE 1=1"
	args := []any{}

	if len(filters.Statuses) > 0 {
		query += " AND status IN (?)"
		args = append(args, filters.Statuses)
	}
	if len(filters.CourseKeys) > 0 {
		query += " AND course_key IN (?)"
		args = append(args, filters.CourseKeys)
	}
	if len(filters.UserIDs) > 0 {
		query += " AND user_id IN (?)"
		args = append(args, filters.UserIDs)
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
		return nil, fmt.Errorf("failed to build certificate query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list certificates: %w", classify(err))
	}
	defer rows.Close()

	var certs []*secondary.CertificateRecord
	for rows.Next() {
		record, err := scanCertificate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan certificate: %w", err)
		}
		certs = append(certs, record)
	}

	return certs, rows.Err()
}

// Upsert creates or updates the certificate for (user, course) atomically.
// Unique violations from a concurrent insert are retried through the
// fetch-then-update path so a second record is never created.
func (r *CertificateRepository) Upsert(ctx context.Context, userID int64, courseKey string, fields secondary.CertificateFields) (*secondary.UpsertResult, error) {
	if err := validateFields(fields); err != nil {
		return nil, err
	}

	var result *secondary.UpsertResult
	err := withConflictRetry(ctx, func() error {
		var err error
		result, err = r.upsertOnce(ctx, userID, courseKey, fields)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert certificate: %w", err)
	}
	return result, nil
}

func (r *CertificateRepository) upsertOnce(ctx context.Context, userID int64, courseKey string, fields secondary.CertificateFields) (*secondary.UpsertResult, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, classify(err)
	}
	defer tx.Rollback()

	existing, err := getCertificate(ctx, tx, userID, courseKey, true)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	if existing == nil {
		record := &secondary.CertificateRecord{
			UserID:     userID,
			CourseKey:  courseKey,
			CreatedAt:  now,
			ModifiedAt: now,
		}
		applyFields(record, fields)
		if record.VerifyUUID == "" {
			record.VerifyUUID = newHexUUID()
		}

		err = tx.QueryRowContext(ctx, tx.Rebind(`
			INSERT INTO generated_certificates
				(user_id, course_key, status, mode, grade, verify_uuid, download_uuid, download_url,
				 cert_key, name, error_reason, distinction, created_at, modified_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id`),
			record.UserID, record.CourseKey, record.Status, record.Mode, record.Grade, record.VerifyUUID,
			record.DownloadUUID, record.DownloadURL, record.Key, record.Name, record.ErrorReason,
			record.Distinction, record.CreatedAt, record.ModifiedAt,
		).Scan(&record.ID)
		if err != nil {
			return nil, classify(err)
		}

		if err := insertHistory(ctx, tx, record, fields.Source, now); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, classify(err)
		}
		return &secondary.UpsertResult{Certificate: record, Created: true, Changed: true}, nil
	}

	updated := *existing
	applyFields(&updated, fields)
	if existing.VerifyUUID != "" {
		updated.VerifyUUID = existing.VerifyUUID
	}

	result := &secondary.UpsertResult{
		Certificate:    &updated,
		PreviousStatus: existing.Status,
	}
	if sameState(existing, &updated) {
		result.Certificate = existing
		return result, tx.Commit()
	}

	updated.ModifiedAt = now
	if err := updateCertificate(ctx, tx, &updated); err != nil {
		return nil, err
	}
	if err := insertHistory(ctx, tx, &updated, fields.Source, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, classify(err)
	}

	result.Changed = true
	return result, nil
}

// MarkUnverified records that the learner lacks identity verification.
func (r *CertificateRepository) MarkUnverified(ctx context.Context, id int64, newMode, source string) (*secondary.TransitionResult, error) {
	return r.transition(ctx, id, source, func(c *secondary.CertificateRecord) {
		c.Status = string(status.Unverified)
		if newMode != "" {
			c.Mode = newMode
		}
		c.Grade = ""
		c.ErrorReason = ""
		c.DownloadUUID = ""
		c.DownloadURL = ""
	})
}

// MarkNotPassing records a failing grade.
func (r *CertificateRepository) MarkNotPassing(ctx context.Context, id int64, grade, source string) (*secondary.TransitionResult, error) {
	return r.transition(ctx, id, source, func(c *secondary.CertificateRecord) {
		c.Status = string(status.NotPassing)
		c.Grade = grade
		c.ErrorReason = ""
		c.DownloadUUID = ""
		c.DownloadURL = ""
	})
}

// Invalidate moves the certificate to the unavailable terminal status.
// The verify UUID is kept so a later regeneration reuses it.
func (r *CertificateRepository) Invalidate(ctx context.Context, id int64, newMode, source string) (*secondary.TransitionResult, error) {
	return r.transition(ctx, id, source, func(c *secondary.CertificateRecord) {
		c.Status = string(status.Unavailable)
		if newMode != "" {
			c.Mode = newMode
		}
		c.Grade = ""
		c.ErrorReason = ""
		c.DownloadUUID = ""
		c.DownloadURL = ""
	})
}

func (r *CertificateRepository) transition(ctx context.Context, id int64, source string, apply func(*secondary.CertificateRecord)) (*secondary.TransitionResult, error) {
	var result *secondary.TransitionResult
	err := withConflictRetry(ctx, func() error {
		tx, err := r.db.BeginTxx(ctx, nil)
		if err != nil {
			return classify(err)
		}
		defer tx.Rollback()

		existing, err := getCertificateByID(ctx, tx, id, true)
		if err != nil {
			return err
		}

		updated := *existing
		apply(&updated)

		result = &secondary.TransitionResult{
			Certificate:    existing,
			PreviousStatus: existing.Status,
		}
		if sameState(existing, &updated) {
			return tx.Commit()
		}

		now := time.Now().UTC()
		updated.ModifiedAt = now
		if err := updateCertificate(ctx, tx, &updated); err != nil {
			return err
		}
		if err := insertHistory(ctx, tx, &updated, source, now); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return classify(err)
		}

		result.Certificate = &updated
		result.Changed = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to transition certificate %d: %w", id, err)
	}
	return result, nil
}

// AssignVerifyUUID sets the verify UUID only if it is currently empty.
func (r *CertificateRepository) AssignVerifyUUID(ctx context.Context, id int64, verifyUUID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		r.db.Rebind("UPDATE generated_certificates SET verify_uuid = ?, modified_at = ? WHERE id = ? AND verify_uuid = ''"),
		verifyUUID, time.Now().UTC(), id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to assign verify uuid: %w", classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

// BulkPurgeName clears the name of every certificate owned by the users.
func (r *CertificateRepository) BulkPurgeName(ctx context.Context, userIDs []int64) (int64, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}
	return r.bulkUpdate(ctx, "UPDATE generated_certificates SET name = '' WHERE name <> '' AND user_id IN (?)", userIDs)
}

// BulkClearDownload clears download URL and UUID on the certificates.
func (r *CertificateRepository) BulkClearDownload(ctx context.Context, certIDs []int64) (int64, error) {
	if len(certIDs) == 0 {
		return 0, nil
	}
	return r.bulkUpdate(ctx,
		"UPDATE generated_certificates SET download_url = '', download_uuid = '' WHERE (download_url <> '' OR download_uuid <> '') AND id IN (?)",
		certIDs,
	)
}

func (r *CertificateRepository) bulkUpdate(ctx context.Context, query string, ids []int64) (int64, error) {
	query, args, err := sqlx.In(query, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to build bulk update: %w", err)
	}
	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to bulk update certificates: %w", classify(err))
	}
	return res.RowsAffected()
}

// History returns the audit trail of a certificate, oldest first.
func (r *CertificateRepository) History(ctx context.Context, certID int64) ([]*secondary.CertificateHistoryRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		r.db.Rebind("SELECT id, certificate_id, status, mode, grade, source, created_at FROM certificate_history WHERE certificate_id = ? ORDER BY id ASC"),
		certID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query certificate history: %w", err)
	}
	defer rows.Close()

	var history []*secondary.CertificateHistoryRecord
	for rows.Next() {
		h := &secondary.CertificateHistoryRecord{}
		if err := rows.Scan(&h.ID, &h.CertificateID, &h.Status, &h.Mode, &h.Grade, &h.Source, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan certificate history: %w", err)
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

func updateCertificate(ctx context.Context, tx *sqlx.Tx, c *secondary.CertificateRecord) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(`
		UPDATE generated_certificates SET
			status = ?, mode = ?, grade = ?, verify_uuid = ?, download_uuid = ?, download_url = ?,
			cert_key = ?, name = ?, error_reason = ?, distinction = ?, modified_at = ?
		WHERE id = ?`),
		c.Status, c.Mode, c.Grade, c.VerifyUUID, c.DownloadUUID, c.DownloadURL,
		c.Key, c.Name, c.ErrorReason, c.Distinction, c.ModifiedAt, c.ID,
	)
	return classify(err)
}

func insertHistory(ctx context.Context, tx *sqlx.Tx, c *secondary.CertificateRecord, source string, at time.Time) error {
	_, err := tx.ExecContext(ctx,
		tx.Rebind("INSERT INTO certificate_history (certificate_id, status, mode, grade, source, created_at) VALUES (?, ?, ?, ?, ?, ?)"),
		c.ID, c.Status, c.Mode, c.Grade, source, at,
	)
	if err != nil {
		return fmt.Errorf("failed to record certificate history: %w", classify(err))
	}
	return nil
}

func applyFields(c *secondary.CertificateRecord, f secondary.CertificateFields) {
	c.Status = f.Status
	c.Mode = f.Mode
	c.Grade = f.Grade
	c.Name = f.Name
	c.VerifyUUID = f.VerifyUUID
	c.DownloadUUID = f.DownloadUUID
	c.DownloadURL = f.DownloadURL
	c.Key = f.Key
	c.ErrorReason = f.ErrorReason
	c.Distinction = f.Distinction
}

// sameState reports whether two records agree on every mutable column.
func sameState(a, b *secondary.CertificateRecord) bool {
	return a.Status == b.Status &&
		a.Mode == b.Mode &&
		a.Grade == b.Grade &&
		a.VerifyUUID == b.VerifyUUID &&
		a.DownloadUUID == b.DownloadUUID &&
		a.DownloadURL == b.DownloadURL &&
		a.Key == b.Key &&
		a.Name == b.Name &&
		a.ErrorReason == b.ErrorReason &&
		a.Distinction == b.Distinction
}

func validateFields(f secondary.CertificateFields) error {
	s, err := status.Parse(f.Status)
	if err != nil {
		return fmt.Errorf("%w: %v", secondary.ErrInvalid, err)
	}
	if strings.TrimSpace(f.Mode) == "" {
		return fmt.Errorf("%w: mode is required", secondary.ErrInvalid)
	}
	if s == status.Downloadable {
		if f.Grade == "" {
			return fmt.Errorf("%w: downloadable certificate requires a grade", secondary.ErrInvalid)
		}
		if !mode.IsEligibleForCertificate(f.Mode, false) {
			return fmt.Errorf("%w: mode %q is not eligible for a downloadable certificate", secondary.ErrInvalid, f.Mode)
		}
	}
	return nil
}

// newHexUUID returns a random UUID as 32 lowercase hex characters.
func newHexUUID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

var _ secondary.CertificateRepository = (*CertificateRepository)(nil)
