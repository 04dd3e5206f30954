package secondary

import (
	"context"
	"time"
)

// Verification statuses reported by VerificationProvider.
const (
	VerificationNone     = "none"
	VerificationPending  = "pending"
	VerificationApproved = "approved"
	VerificationDenied   = "denied"
	VerificationExpired  = "expired"
)

// EnrollmentProvider exposes learner enrollments owned by another system.
type EnrollmentProvider interface {
	// GetEnrollment returns the enrollment for (user, course), or nil.
	GetEnrollment(ctx context.Context, userID int64, courseKey string) (*EnrollmentRecord, error)

	// ListActiveEnrollments returns every active enrollment of a user.
	ListActiveEnrollments(ctx context.Context, userID int64) ([]*EnrollmentRecord, error)
}

// EnrollmentRecord is a learner enrollment.
type EnrollmentRecord struct {
	UserID    int64
	CourseKey string
	Mode      string
	IsActive  bool
}

// GradeProvider exposes persisted course grades.
type GradeProvider interface {
	// GetGrade returns the course grade for (user, course), or nil.
	GetGrade(ctx context.Context, userID int64, courseKey string) (*GradeRecord, error)

	// ListModifiedGrades returns grades modified in [after, before), ordered by ID.
	ListModifiedGrades(ctx context.Context, filters GradeFilters) ([]*GradeRecord, error)
}

// GradeRecord is a persisted course grade.
type GradeRecord struct {
	ID          int64
	UserID      int64
	CourseKey   string
	Percent     string // Decimal string, e.g. "0.87"
	LetterGrade string
	Passed      bool
	ModifiedAt  time.Time
}

// GradeFilters contains filter options for listing grades.
type GradeFilters struct {
	CourseKeys     []string
	ModifiedAfter  time.Time
	ModifiedBefore time.Time
	AfterID        int64
	Limit          int
}

// LearnerStateWriter records platform-side learner changes that arrive as
// lifecycle signals (grade updates, mode changes, verification results).
type LearnerStateWriter interface {
	SetEnrollment(ctx context.Context, enrollment *EnrollmentRecord) error
	SetGrade(ctx context.Context, grade *GradeRecord) error
	SetVerificationStatus(ctx context.Context, userID int64, status string) error
}

// VerificationProvider exposes identity verification state.
type VerificationProvider interface {
	// VerificationStatus returns one of the Verification* constants.
	VerificationStatus(ctx context.Context, userID int64) (string, error)
}

// ProfileProvider exposes user accounts and profiles.
type ProfileProvider interface {
	// GetProfile returns the profile of a user.
	GetProfile(ctx context.Context, userID int64) (*ProfileRecord, error)

	// ListRetiredUserIDs returns users whose retirement has completed.
	ListRetiredUserIDs(ctx context.Context) ([]int64, error)
}

// ProfileRecord is a user account with profile fields.
type ProfileRecord struct {
	ID       int64
	Username string
	Email    string
	Name     string
	IsActive bool
}

// CourseProvider exposes course metadata.
type CourseProvider interface {
	// GetOverview returns the course overview, or nil if the course is unknown.
	GetOverview(ctx context.Context, courseKey string) (*CourseOverviewRecord, error)

	// IsBetaTester reports whether the user is a beta tester in the course.
	IsBetaTester(ctx context.Context, userID int64, courseKey string) (bool, error)

	// OrgsForSite returns the organizations served by a site.
	OrgsForSite(ctx context.Context, site string) ([]string, error)

	// CourseKeysForOrgs returns every known course run owned by the organizations.
	CourseKeysForOrgs(ctx context.Context, orgs []string) ([]string, error)
}

// CourseOverviewRecord is course metadata relevant to certificates.
type CourseOverviewRecord struct {
	CourseKey        string
	DisplayName      string
	Org              string
	HTMLCertsEnabled bool
	SelfPaced        bool
	IDVExempt        bool // Verified learners need no identity verification
}

// CourseSettingsWriter updates operator-controlled course flags.
type CourseSettingsWriter interface {
	// SetIDVExempt sets whether the course waives identity verification.
	// Returns ErrNotFound when the course is unknown.
	SetIDVExempt(ctx context.Context, courseKey string, exempt bool) error
}

// ProgramProvider exposes program membership of courses.
type ProgramProvider interface {
	// ProgramsForCourse returns the UUIDs of programs containing the course.
	ProgramsForCourse(ctx context.Context, courseKey string) ([]string, error)
}
