package app

import (
	"context"
	"fmt"
	"time"

	"github.com/example/certs/internal/core/mode"
	"github.com/example/certs/internal/ports/primary"
	"github.com/example/certs/internal/ports/secondary"
)

// AdminServiceImpl implements the AdminService interface. Every edit that
// can change eligibility is followed by a lifecycle re-evaluation.
type AdminServiceImpl struct {
	certs         secondary.CertificateRepository
	allowlist     secondary.AllowlistRepository
	invalidations secondary.InvalidationRepository
	configs       secondary.CommandConfigRepository
	eventLog      secondary.EventLogRepository
	writer        secondary.LearnerStateWriter
	courses       secondary.CourseSettingsWriter
	lifecycle     primary.LifecycleService
}

// NewAdminService creates a new AdminService with injected dependencies.
func NewAdminService(
	certs secondary.CertificateRepository,
	allowlist secondary.AllowlistRepository,
	invalidations secondary.InvalidationRepository,
	configs secondary.CommandConfigRepository,
	eventLog secondary.EventLogRepository,
	writer secondary.LearnerStateWriter,
	courses secondary.CourseSettingsWriter,
	lifecycle primary.LifecycleService,
) *AdminServiceImpl {
	return &AdminServiceImpl{
		certs:         certs,
		allowlist:     allowlist,
		invalidations: invalidations,
		configs:       configs,
		eventLog:      eventLog,
		writer:        writer,
		courses:       courses,
		lifecycle:     lifecycle,
	}
}

// AddToAllowlist adds (or re-enables) an allowlist entry.
func (s *AdminServiceImpl) AddToAllowlist(ctx context.Context, userID int64, courseKey, notes string) (*primary.Outcome, error) {
	if err := s.allowlist.Upsert(ctx, &secondary.AllowlistRecord{
		UserID:    userID,
		CourseKey: courseKey,
		Enabled:   true,
		Notes:     notes,
	}); err != nil {
		return nil, fmt.Errorf("failed to add allowlist entry: %w", err)
	}
	return s.lifecycle.AllowlistChanged(ctx, userID, courseKey)
}

// RemoveFromAllowlist deletes an allowlist entry.
func (s *AdminServiceImpl) RemoveFromAllowlist(ctx context.Context, userID int64, courseKey string) (*primary.Outcome, error) {
	if err := s.allowlist.Remove(ctx, userID, courseKey); err != nil {
		return nil, fmt.Errorf("failed to remove allowlist entry: %w", err)
	}
	return s.lifecycle.AllowlistChanged(ctx, userID, courseKey)
}

// ListAllowlist returns every entry of the course.
func (s *AdminServiceImpl) ListAllowlist(ctx context.Context, courseKey string) ([]*primary.AllowlistEntry, error) {
	records, err := s.allowlist.ListByCourse(ctx, courseKey, false)
	if err != nil {
		return nil, fmt.Errorf("failed to list allowlist: %w", err)
	}
	entries := make([]*primary.AllowlistEntry, len(records))
	for i, r := range records {
		entries[i] = &primary.AllowlistEntry{
			UserID:    r.UserID,
			CourseKey: r.CourseKey,
			Enabled:   r.Enabled,
			Notes:     r.Notes,
			CreatedAt: r.CreatedAt,
		}
	}
	return entries, nil
}

// Invalidate records an active invalidation on an existing certificate.
func (s *AdminServiceImpl) Invalidate(ctx context.Context, req primary.InvalidateRequest) (*primary.Outcome, error) {
	cert, err := s.requireCertificate(ctx, req.UserID, req.CourseKey)
	if err != nil {
		return nil, err
	}
	if err := s.invalidations.Create(ctx, &secondary.InvalidationRecord{
		CertificateID: cert.ID,
		InvalidatorID: req.InvalidatorID,
		Notes:         req.Notes,
		Active:        true,
	}); err != nil {
		return nil, fmt.Errorf("failed to create invalidation: %w", err)
	}
	return s.lifecycle.InvalidationChanged(ctx, req.UserID, req.CourseKey)
}

// Reinstate deactivates the certificate's invalidations.
func (s *AdminServiceImpl) Reinstate(ctx context.Context, userID int64, courseKey string) (*primary.Outcome, error) {
	cert, err := s.requireCertificate(ctx, userID, courseKey)
	if err != nil {
		return nil, err
	}
	if err := s.invalidations.Deactivate(ctx, cert.ID); err != nil {
		return nil, fmt.Errorf("failed to deactivate invalidations: %w", err)
	}
	return s.lifecycle.InvalidationChanged(ctx, userID, courseKey)
}

// RecordGrade stores a grade update and signals it.
func (s *AdminServiceImpl) RecordGrade(ctx context.Context, userID int64, courseKey, percent string, passed bool) (*primary.Outcome, error) {
	if err := s.writer.SetGrade(ctx, &secondary.GradeRecord{
		UserID:     userID,
		CourseKey:  courseKey,
		Percent:    percent,
		Passed:     passed,
		ModifiedAt: time.Now().UTC(),
	}); err != nil {
		return nil, fmt.Errorf("failed to record grade: %w", err)
	}
	return s.lifecycle.GradeChanged(ctx, userID, courseKey)
}

// RecordEnrollment stores an enrollment update and signals the mode change.
func (s *AdminServiceImpl) RecordEnrollment(ctx context.Context, userID int64, courseKey, enrollmentMode string, active bool) (*primary.Outcome, error) {
	enrollmentMode = mode.Normalize(enrollmentMode)
	if err := s.writer.SetEnrollment(ctx, &secondary.EnrollmentRecord{
		UserID:    userID,
		CourseKey: courseKey,
		Mode:      enrollmentMode,
		IsActive:  active,
	}); err != nil {
		return nil, fmt.Errorf("failed to record enrollment: %w", err)
	}
	if !active {
		return s.lifecycle.Evaluate(ctx, primary.EvaluateRequest{UserID: userID, CourseKey: courseKey, GenerationMode: primary.GenerationModeSelf})
	}
	return s.lifecycle.EnrollmentModeChanged(ctx, userID, courseKey, enrollmentMode)
}

// RecordVerification stores a verification result and signals it.
func (s *AdminServiceImpl) RecordVerification(ctx context.Context, userID int64, verification string) ([]*primary.Outcome, error) {
	switch verification {
	case secondary.VerificationNone, secondary.VerificationPending, secondary.VerificationApproved,
		secondary.VerificationDenied, secondary.VerificationExpired:
	default:
		return nil, fmt.Errorf("%w: unknown verification status %q", secondary.ErrInvalid, verification)
	}
	if err := s.writer.SetVerificationStatus(ctx, userID, verification); err != nil {
		return nil, fmt.Errorf("failed to record verification: %w", err)
	}
	return s.lifecycle.VerificationChanged(ctx, userID)
}

// GetCertificate returns the certificate for (user, course).
func (s *AdminServiceImpl) GetCertificate(ctx context.Context, userID int64, courseKey string) (*primary.Certificate, error) {
	cert, err := s.requireCertificate(ctx, userID, courseKey)
	if err != nil {
		return nil, err
	}
	return recordToCertificate(cert), nil
}

// CertificateHistory returns the audit trail, oldest first.
func (s *AdminServiceImpl) CertificateHistory(ctx context.Context, userID int64, courseKey string) ([]*primary.HistoryEntry, error) {
	cert, err := s.requireCertificate(ctx, userID, courseKey)
	if err != nil {
		return nil, err
	}
	records, err := s.certs.History(ctx, cert.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	entries := make([]*primary.HistoryEntry, len(records))
	for i, r := range records {
		entries[i] = &primary.HistoryEntry{
			Status:    r.Status,
			Mode:      r.Mode,
			Grade:     r.Grade,
			Source:    r.Source,
			CreatedAt: r.CreatedAt,
		}
	}
	return entries, nil
}

// ListEvents returns stored lifecycle events, newest first.
func (s *AdminServiceImpl) ListEvents(ctx context.Context, courseKey string, limit int) ([]*primary.EventEntry, error) {
	records, err := s.eventLog.List(ctx, courseKey, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	entries := make([]*primary.EventEntry, len(records))
	for i, r := range records {
		entries[i] = &primary.EventEntry{
			SignalName: r.SignalName,
			UserID:     r.UserID,
			CourseKey:  r.CourseKey,
			Status:     r.Status,
			CreatedAt:  r.CreatedAt,
		}
	}
	return entries, nil
}

// SetCommandConfig appends a new current configuration row.
func (s *AdminServiceImpl) SetCommandConfig(ctx context.Context, name string, enabled bool, arguments string) error {
	if err := s.configs.Save(ctx, &secondary.CommandConfigRecord{
		Name:      name,
		Enabled:   enabled,
		Arguments: arguments,
	}); err != nil {
		return fmt.Errorf("failed to save command configuration: %w", err)
	}
	return nil
}

// GetCommandConfig returns the current configuration row.
func (s *AdminServiceImpl) GetCommandConfig(ctx context.Context, name string) (*primary.CommandConfig, error) {
	r, err := s.configs.Current(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to load command configuration: %w", err)
	}
	if r == nil {
		return nil, fmt.Errorf("command configuration %s: %w", name, secondary.ErrNotFound)
	}
	return &primary.CommandConfig{Name: r.Name, Enabled: r.Enabled, Arguments: r.Arguments, ChangedAt: r.ChangedAt}, nil
}

// SetCourseIDVExempt waives or restores identity verification for a course.
func (s *AdminServiceImpl) SetCourseIDVExempt(ctx context.Context, courseKey string, exempt bool) error {
	if err := s.courses.SetIDVExempt(ctx, courseKey, exempt); err != nil {
		return fmt.Errorf("failed to update course: %w", err)
	}
	return nil
}

func (s *AdminServiceImpl) requireCertificate(ctx context.Context, userID int64, courseKey string) (*secondary.CertificateRecord, error) {
	cert, err := s.certs.Get(ctx, userID, courseKey)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch certificate: %w", err)
	}
	if cert == nil {
		return nil, fmt.Errorf("certificate for user %d in %s: %w", userID, courseKey, secondary.ErrNotFound)
	}
	return cert, nil
}

var _ primary.AdminService = (*AdminServiceImpl)(nil)
