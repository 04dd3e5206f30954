// Package eligibility contains the pure certificate eligibility rules.
// Decide is a pure function: every input is pre-fetched into Context by the
// caller, including the platform toggles.
package eligibility

import (
	"github.com/example/certs/internal/core/mode"
	"github.com/example/certs/internal/core/status"
)

// allowlistDefaultGrade is recorded when an allowlisted learner has no grade.
const allowlistDefaultGrade = "0.0"

// ExistingCertificate is the minimal view of a stored certificate.
type ExistingCertificate struct {
	Status status.Status
	Mode   string
}

// Context carries every input of an eligibility decision.
type Context struct {
	UserID    int64
	CourseKey string

	// Enrollment
	EnrollmentMode string // empty when the user is not enrolled

	// Grade
	Grade        string // decimal percent, empty when no grade exists
	GradePassing bool

	Allowlisted        bool
	InvalidationActive bool
	Existing           *ExistingCertificate // nil when no certificate exists

	// Course overview
	CourseOverviewExists bool
	CourseHTMLCerts      bool // course-level HTML certificate flag
	CourseIDVExempt      bool // course waives identity verification
	IsCCX                bool

	IsBetaTester bool
	UserVerified bool

	// Platform toggles
	AutoGenerationEnabled     bool
	IDVEnforced               bool
	HTMLCertsEnabled          bool
	HonorCertificatesDisabled bool
}

// Decide evaluates whether a certificate should be generated, updated or left alone.
// Rules (allowlist path):
//   - Active invalidation always wins
//   - Auto generation must be enabled
//   - Enrollment mode must be certificate-eligible
//   - Missing verification blocks unless the mode is a non-verified mode
//     or the course is IDV-exempt
//   - A downloadable certificate is final unless the enrollment became newly eligible
//   - HTML certificates must be enabled for the course
//
// The regular path additionally rejects CCX courses and beta testers and
// requires a passing grade, checked before verification.
func Decide(ctx Context) Decision {
	if ctx.InvalidationActive {
		return Invalidate(ctx.EnrollmentMode)
	}

	if !ctx.AutoGenerationEnabled {
		return Skip(ReasonAutoGenerationDisabled)
	}

	if !mode.IsEligibleForCertificate(ctx.EnrollmentMode, ctx.HonorCertificatesDisabled) {
		return Skip(ReasonIneligibleMode)
	}

	grade := ctx.Grade

	if ctx.Allowlisted {
		if grade == "" {
			grade = allowlistDefaultGrade
		}
	} else {
		if ctx.IsCCX {
			return Skip(ReasonCCX)
		}
		if ctx.IsBetaTester {
			return Skip(ReasonBetaTester)
		}
		if !ctx.GradePassing || grade == "" {
			if ctx.Existing != nil {
				return SetNotPassing(ctx.EnrollmentMode, grade)
			}
			return Skip(ReasonNotPassing)
		}
	}

	if verificationMissing(ctx) {
		return SetUnverified(ctx.EnrollmentMode)
	}

	if ctx.Existing != nil && ctx.Existing.Status == status.Downloadable && !newlyEligible(ctx) {
		return Skip(ReasonAlreadyFinal)
	}

	if !ctx.CourseOverviewExists || !ctx.HTMLCertsEnabled || !ctx.CourseHTMLCerts {
		return Skip(ReasonNoHTMLCertificates)
	}

	return Generate(ctx.EnrollmentMode, grade)
}

// verificationMissing reports whether the IDV requirement blocks generation.
// Non-verified modes and IDV-exempt courses never require verification.
func verificationMissing(ctx Context) bool {
	if !ctx.IDVEnforced || ctx.UserVerified || ctx.CourseIDVExempt {
		return false
	}
	return !mode.IsNonVerified(ctx.EnrollmentMode)
}

// newlyEligible reports whether the current enrollment mode qualifies for a
// certificate the stored record does not reflect: either the stored mode was
// ineligible or the learner changed mode since generation.
func newlyEligible(ctx Context) bool {
	if ctx.Existing == nil {
		return true
	}
	if !mode.IsEligibleForCertificate(ctx.EnrollmentMode, ctx.HonorCertificatesDisabled) {
		return false
	}
	if !mode.IsEligibleForCertificate(ctx.Existing.Mode, ctx.HonorCertificatesDisabled) {
		return true
	}
	return ctx.Existing.Mode != ctx.EnrollmentMode
}
