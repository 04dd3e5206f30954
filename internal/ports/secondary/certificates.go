// Package secondary defines the secondary ports (driven adapters) for the application.
// These are the interfaces through which the application drives external systems.
package secondary

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by lookups by primary key that match nothing.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a transient storage failure (unique violation,
	// busy database, serialization failure). Callers may retry.
	ErrConflict = errors.New("storage conflict")

	// ErrInvalid is returned when a write would break a record invariant.
	ErrInvalid = errors.New("invalid record")
)

// CertificateRepository defines the secondary port for certificate persistence.
type CertificateRepository interface {
	// Get returns the certificate for (user, course), or nil if none exists.
	Get(ctx context.Context, userID int64, courseKey string) (*CertificateRecord, error)

	// GetByID retrieves a certificate by its ID.
	GetByID(ctx context.Context, id int64) (*CertificateRecord, error)

	// List retrieves certificates matching the given filters, ordered by ID.
	List(ctx context.Context, filters CertificateFilters) ([]*CertificateRecord, error)

	// Upsert creates or updates the certificate for (user, course) atomically.
	// An existing non-empty verify UUID is never overwritten.
	Upsert(ctx context.Context, userID int64, courseKey string, fields CertificateFields) (*UpsertResult, error)

	// MarkUnverified records that the learner lacks identity verification.
	MarkUnverified(ctx context.Context, id int64, mode, source string) (*TransitionResult, error)

	// MarkNotPassing records a failing grade.
	MarkNotPassing(ctx context.Context, id int64, grade, source string) (*TransitionResult, error)

	// Invalidate moves the certificate to the unavailable terminal status.
	Invalidate(ctx context.Context, id int64, mode, source string) (*TransitionResult, error)

	// AssignVerifyUUID sets the verify UUID only if it is currently empty.
	AssignVerifyUUID(ctx context.Context, id int64, verifyUUID string) (bool, error)

	// BulkPurgeName clears the name of every certificate owned by the users.
	// Writes no history.
	BulkPurgeName(ctx context.Context, userIDs []int64) (int64, error)

	// BulkClearDownload clears download URL and UUID on the certificates.
	// Writes no history.
	BulkClearDownload(ctx context.Context, certIDs []int64) (int64, error)

	// History returns the audit trail of a certificate, oldest first.
	History(ctx context.Context, certID int64) ([]*CertificateHistoryRecord, error)
}

// CertificateRecord represents a generated certificate as stored in persistence.
type CertificateRecord struct {
	ID           int64
	UserID       int64
	CourseKey    string
	Status       string
	Mode         string
	Grade        string // Empty string means no grade
	VerifyUUID   string
	DownloadUUID string
	DownloadURL  string
	Key          string
	Name         string
	ErrorReason  string
	Distinction  bool
	CreatedAt    time.Time
	ModifiedAt   time.Time
}

// CertificateFields are the mutable fields written by Upsert.
type CertificateFields struct {
	Status       string
	Mode         string
	Grade        string
	Name         string
	VerifyUUID   string // Allocated on create when empty
	DownloadUUID string
	DownloadURL  string
	Key          string
	ErrorReason  string
	Distinction  bool
	Source       string // Recorded in history
}

// UpsertResult describes the outcome of an Upsert.
type UpsertResult struct {
	Certificate    *CertificateRecord
	Created        bool
	Changed        bool   // False when the stored record already matched
	PreviousStatus string // Empty when Created
}

// TransitionResult describes the outcome of an audited status transition.
type TransitionResult struct {
	Certificate    *CertificateRecord
	PreviousStatus string
	Changed        bool
}

// CertificateFilters contains filter options for querying certificates.
type CertificateFilters struct {
	Statuses       []string
	CourseKeys     []string
	UserIDs        []int64
	ModifiedAfter  time.Time // Inclusive; zero means unbounded
	ModifiedBefore time.Time // Exclusive; zero means unbounded
	AfterID        int64     // Keyset cursor
	Limit          int
}

// CertificateHistoryRecord is one audited mutation of a certificate.
type CertificateHistoryRecord struct {
	ID            int64
	CertificateID int64
	Status        string
	Mode          string
	Grade         string
	Source        string
	CreatedAt     time.Time
}

// AllowlistRepository defines the secondary port for the certificate allowlist.
type AllowlistRepository interface {
	// Get returns the allowlist entry for (user, course), or nil if none exists.
	Get(ctx context.Context, userID int64, courseKey string) (*AllowlistRecord, error)

	// Upsert adds or updates an allowlist entry.
	Upsert(ctx context.Context, entry *AllowlistRecord) error

	// Remove deletes the allowlist entry for (user, course).
	Remove(ctx context.Context, userID int64, courseKey string) error

	// ListByCourse returns entries for a course, optionally only enabled ones.
	ListByCourse(ctx context.Context, courseKey string, enabledOnly bool) ([]*AllowlistRecord, error)
}

// AllowlistRecord represents an allowlist entry.
type AllowlistRecord struct {
	ID        int64
	UserID    int64
	CourseKey string
	Enabled   bool
	Notes     string
	CreatedAt time.Time
}

// InvalidationRepository defines the secondary port for certificate invalidations.
type InvalidationRepository interface {
	// GetActive returns the active invalidation for a certificate, or nil.
	GetActive(ctx context.Context, certID int64) (*InvalidationRecord, error)

	// Create records a new active invalidation.
	Create(ctx context.Context, record *InvalidationRecord) error

	// Deactivate marks every invalidation of the certificate inactive.
	Deactivate(ctx context.Context, certID int64) error
}

// InvalidationRecord represents an invalidation entry.
type InvalidationRecord struct {
	ID            int64
	CertificateID int64
	InvalidatorID int64
	Notes         string
	Active        bool
	CreatedAt     time.Time
}

// CommandConfigRepository stores DB-backed arguments for batch commands.
type CommandConfigRepository interface {
	// Current returns the latest configuration row for a command, or nil.
	Current(ctx context.Context, name string) (*CommandConfigRecord, error)

	// Save appends a new configuration row; the newest row is current.
	Save(ctx context.Context, record *CommandConfigRecord) error
}

// CommandConfigRecord is one configuration row.
type CommandConfigRecord struct {
	ID        int64
	Name      string // e.g. CertificateGenerationCommandConfiguration
	Enabled   bool
	Arguments string // shell-style tokenized
	ChangedAt time.Time
}

// TemplateRepository stores certificate templates.
type TemplateRepository interface {
	// GetByIDs returns the templates with the given IDs.
	GetByIDs(ctx context.Context, ids []int64) ([]*TemplateRecord, error)

	// UpdateTemplate replaces the template body.
	UpdateTemplate(ctx context.Context, id int64, template string) error
}

// TemplateRecord is a certificate template row.
type TemplateRecord struct {
	ID         int64
	Name       string
	Template   string
	IsActive   bool
	ModifiedAt time.Time
}
