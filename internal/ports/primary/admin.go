package primary

import (
	"context"
	"time"
)

// AdminService defines the primary port for operator tooling around
// certificates: allowlist and invalidation edits, learner state updates,
// inspection, and DB-backed command arguments.
type AdminService interface {
	AddToAllowlist(ctx context.Context, userID int64, courseKey, notes string) (*Outcome, error)
	RemoveFromAllowlist(ctx context.Context, userID int64, courseKey string) (*Outcome, error)
	ListAllowlist(ctx context.Context, courseKey string) ([]*AllowlistEntry, error)

	// Invalidate records an active invalidation and re-evaluates the certificate.
	Invalidate(ctx context.Context, req InvalidateRequest) (*Outcome, error)

	// Reinstate deactivates invalidations and re-evaluates the certificate.
	Reinstate(ctx context.Context, userID int64, courseKey string) (*Outcome, error)

	RecordGrade(ctx context.Context, userID int64, courseKey, percent string, passed bool) (*Outcome, error)
	RecordEnrollment(ctx context.Context, userID int64, courseKey, mode string, active bool) (*Outcome, error)
	RecordVerification(ctx context.Context, userID int64, status string) ([]*Outcome, error)

	GetCertificate(ctx context.Context, userID int64, courseKey string) (*Certificate, error)
	CertificateHistory(ctx context.Context, userID int64, courseKey string) ([]*HistoryEntry, error)
	ListEvents(ctx context.Context, courseKey string, limit int) ([]*EventEntry, error)

	SetCommandConfig(ctx context.Context, name string, enabled bool, arguments string) error
	GetCommandConfig(ctx context.Context, name string) (*CommandConfig, error)

	// SetCourseIDVExempt waives or restores identity verification for a
	// course. Existing unverified certificates are left for
	// regenerate_noidv_cert.
	SetCourseIDVExempt(ctx context.Context, courseKey string, exempt bool) error
}

// InvalidateRequest is the input to Invalidate.
type InvalidateRequest struct {
	UserID        int64
	CourseKey     string
	InvalidatorID int64
	Notes         string
}

// AllowlistEntry is the public view of an allowlist row.
type AllowlistEntry struct {
	UserID    int64
	CourseKey string
	Enabled   bool
	Notes     string
	CreatedAt time.Time
}

// EventEntry is the public view of a stored lifecycle event.
type EventEntry struct {
	SignalName string
	UserID     int64
	CourseKey  string
	Status     string
	CreatedAt  time.Time
}

// CommandConfig is the public view of a command configuration row.
type CommandConfig struct {
	Name      string
	Enabled   bool
	Arguments string
	ChangedAt time.Time
}
