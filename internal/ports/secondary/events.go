package secondary

import (
	"context"
	"time"
)

// Lifecycle signal names.
const (
	SignalCertificateCreated = "certificate.created.v1"
	SignalCertificateChanged = "certificate.changed.v1"
	SignalCertificateRevoked = "certificate.revoked.v1"
)

// CertificateEvent is the payload of a certificate lifecycle signal.
type CertificateEvent struct {
	SignalName     string      `json:"signal_name"`
	User           EventUser   `json:"user"`
	Course         EventCourse `json:"course"`
	Mode           string      `json:"mode"`
	Grade          string      `json:"grade"`
	CurrentStatus  string      `json:"current_status"`
	DownloadURL    string      `json:"download_url"`
	Name           string      `json:"name"`
	VerifyUUID     string      `json:"verify_uuid"`
	GenerationMode string      `json:"generation_mode,omitempty"` // self or batch, created events only
	Time           time.Time   `json:"time"`
}

// EventUser identifies the certificate owner.
type EventUser struct {
	ID       int64        `json:"id"`
	IsActive bool         `json:"is_active"`
	PII      EventUserPII `json:"pii"`
}

// EventUserPII carries personally identifying fields.
type EventUserPII struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Name     string `json:"name"`
}

// EventCourse identifies the course run.
type EventCourse struct {
	CourseKey string `json:"course_key"`
}

// EventPublisher defines the secondary port for emitting lifecycle signals.
// Implementations must not return subscriber failures to the caller.
type EventPublisher interface {
	Publish(ctx context.Context, event CertificateEvent)
}

// EventLogRepository persists emitted events.
type EventLogRepository interface {
	// Append stores an event.
	Append(ctx context.Context, event CertificateEvent) error

	// List returns stored events for a course, newest first. Empty courseKey lists all.
	List(ctx context.Context, courseKey string, limit int) ([]*EventLogRecord, error)

	// CountBySignal returns the number of stored events per signal name.
	CountBySignal(ctx context.Context) (map[string]int, error)
}

// EventLogRecord is a stored event.
type EventLogRecord struct {
	ID         int64
	SignalName string
	UserID     int64
	CourseKey  string
	Status     string
	Payload    []byte
	CreatedAt  time.Time
}

// CredentialsClient defines the secondary port for the external credentials service.
type CredentialsClient interface {
	// PostGrade sends a course grade.
	PostGrade(ctx context.Context, grade CredentialsGrade) error

	// PostCertificate awards or revokes a course certificate credential.
	PostCertificate(ctx context.Context, cert CredentialsCertificate) error
}

// CredentialsGrade is the grade payload sent to the credentials service.
type CredentialsGrade struct {
	Username    string `json:"username"`
	CourseRun   string `json:"course_run"`
	LetterGrade string `json:"letter_grade"`
	Percent     string `json:"percent_grade"`
	Verified    bool   `json:"verified"`
}

// CredentialsCertificate is the credential payload sent to the credentials service.
type CredentialsCertificate struct {
	Username   string `json:"username"`
	CourseRun  string `json:"course_run"`
	Mode       string `json:"certificate_type"`
	Status     string `json:"status"` // awarded or revoked
	VerifyUUID string `json:"uuid"`
}
