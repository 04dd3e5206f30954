package app

import (
	"context"
	"fmt"

	"github.com/example/certs/internal/core/coursekey"
	"github.com/example/certs/internal/core/eligibility"
	"github.com/example/certs/internal/core/status"
	"github.com/example/certs/internal/ports/secondary"
)

// Toggles are the process-wide switches, read once at startup.
type Toggles struct {
	AutoGenerationEnabled     bool
	IDVEnforced               bool
	HTMLCertsEnabled          bool
	HonorCertificatesDisabled bool
}

// LearnerData groups the read-only collaborators owned by other systems.
type LearnerData struct {
	Enrollments   secondary.EnrollmentProvider
	Grades        secondary.GradeProvider
	Verifications secondary.VerificationProvider
	Profiles      secondary.ProfileProvider
	Courses       secondary.CourseProvider
}

// ContextLoader pre-fetches every input of an eligibility decision.
type ContextLoader struct {
	certs         secondary.CertificateRepository
	allowlist     secondary.AllowlistRepository
	invalidations secondary.InvalidationRepository
	learners      LearnerData
	toggles       Toggles
}

// NewContextLoader creates a ContextLoader with injected dependencies.
func NewContextLoader(
	certs secondary.CertificateRepository,
	allowlist secondary.AllowlistRepository,
	invalidations secondary.InvalidationRepository,
	learners LearnerData,
	toggles Toggles,
) *ContextLoader {
	return &ContextLoader{
		certs:         certs,
		allowlist:     allowlist,
		invalidations: invalidations,
		learners:      learners,
		toggles:       toggles,
	}
}

// Loaded is a decision context together with the records it was built from.
type Loaded struct {
	Context      eligibility.Context
	Existing     *secondary.CertificateRecord // nil when no certificate exists
	Verification string
}

// Load builds the decision context for (user, course).
func (l *ContextLoader) Load(ctx context.Context, userID int64, courseKey string) (*Loaded, error) {
	key, err := coursekey.Parse(courseKey)
	if err != nil {
		return nil, err
	}

	c := eligibility.Context{
		UserID:                    userID,
		CourseKey:                 courseKey,
		IsCCX:                     key.IsCCX(),
		AutoGenerationEnabled:     l.toggles.AutoGenerationEnabled,
		IDVEnforced:               l.toggles.IDVEnforced,
		HTMLCertsEnabled:          l.toggles.HTMLCertsEnabled,
		HonorCertificatesDisabled: l.toggles.HonorCertificatesDisabled,
	}

	enrollment, err := l.learners.Enrollments.GetEnrollment(ctx, userID, courseKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load enrollment: %w", err)
	}
	if enrollment != nil && enrollment.IsActive {
		c.EnrollmentMode = enrollment.Mode
	}

	grade, err := l.learners.Grades.GetGrade(ctx, userID, courseKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load grade: %w", err)
	}
	if grade != nil {
		c.Grade = grade.Percent
		c.GradePassing = grade.Passed
	}

	entry, err := l.allowlist.Get(ctx, userID, courseKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load allowlist entry: %w", err)
	}
	c.Allowlisted = entry != nil && entry.Enabled

	existing, err := l.certs.Get(ctx, userID, courseKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}
	if existing != nil {
		c.Existing = &eligibility.ExistingCertificate{Status: status.Status(existing.Status), Mode: existing.Mode}
		inv, err := l.invalidations.GetActive(ctx, existing.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load invalidation: %w", err)
		}
		c.InvalidationActive = inv != nil
	}

	overview, err := l.learners.Courses.GetOverview(ctx, courseKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load course overview: %w", err)
	}
	if overview != nil {
		c.CourseOverviewExists = true
		c.CourseHTMLCerts = overview.HTMLCertsEnabled
		c.CourseIDVExempt = overview.IDVExempt
	}

	c.IsBetaTester, err = l.learners.Courses.IsBetaTester(ctx, userID, courseKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load beta testers: %w", err)
	}

	verification, err := l.learners.Verifications.VerificationStatus(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load verification status: %w", err)
	}
	c.UserVerified = verification == secondary.VerificationApproved

	return &Loaded{Context: c, Existing: existing, Verification: verification}, nil
}
