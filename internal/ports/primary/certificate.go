// Package primary defines the primary ports (driving adapters) for the application.
// These are the interfaces through which the CLI and workers drive the core.
package primary

import (
	"context"
	"time"
)

// Generation modes.
const (
	GenerationModeSelf  = "self"
	GenerationModeBatch = "batch"
)

// GenerationService defines the primary port for writing certificates.
// It is the only path that mutates a certificate's status.
type GenerationService interface {
	// Generate runs the creation filter and upserts the certificate.
	Generate(ctx context.Context, req GenerateRequest) (*Certificate, error)

	// MarkUnverified records that the learner lacks identity verification.
	MarkUnverified(ctx context.Context, userID int64, courseKey, mode string) (*Certificate, error)

	// MarkNotPassing records a failing grade on an existing certificate.
	MarkNotPassing(ctx context.Context, userID int64, courseKey, grade string) (*Certificate, error)

	// Invalidate moves an existing certificate to unavailable.
	Invalidate(ctx context.Context, userID int64, courseKey, mode string) (*Certificate, error)
}

// GenerateRequest is the input to Generate.
type GenerateRequest struct {
	UserID         int64
	CourseKey      string
	Status         string
	Mode           string
	Grade          string
	GenerationMode string // self or batch
}

// Certificate is the public view of a generated certificate.
type Certificate struct {
	ID           int64
	UserID       int64
	CourseKey    string
	Status       string
	Mode         string
	Grade        string
	VerifyUUID   string
	DownloadUUID string
	DownloadURL  string
	Name         string
	ErrorReason  string
	CreatedAt    time.Time
	ModifiedAt   time.Time
}

// HistoryEntry is one audited mutation of a certificate.
type HistoryEntry struct {
	Status    string
	Mode      string
	Grade     string
	Source    string
	CreatedAt time.Time
}
