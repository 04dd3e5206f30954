package primary

import (
	"context"
	"time"
)

// CommandService defines the primary port for administrative batch commands.
type CommandService interface {
	// GenerateCertificates evaluates each user in batch generation mode.
	GenerateCertificates(ctx context.Context, req GenerateCertificatesRequest) (*CommandResult, error)

	// RegenerateNoIDV re-evaluates unverified certificates in the courses.
	RegenerateNoIDV(ctx context.Context, req RegenerateNoIDVRequest) (*CommandResult, error)

	// RegenerateUnverified re-evaluates unverified certificates of users whose
	// verification is now approved.
	RegenerateUnverified(ctx context.Context, req RegenerateUnverifiedRequest) (*CommandResult, error)

	// PurgePII clears the name on certificates of fully retired users.
	PurgePII(ctx context.Context, dryRun bool) (*CommandResult, error)

	// PurgePDFReferences clears download fields without emitting events.
	PurgePDFReferences(ctx context.Context, certIDs []int64, dryRun bool) (*CommandResult, error)

	// FixCertRecords repairs inconsistent certificate records.
	FixCertRecords(ctx context.Context, limit int) (*CommandResult, error)

	// ModifyTemplates queues a string replacement over certificate templates.
	ModifyTemplates(ctx context.Context, req ModifyTemplatesRequest) (*CommandResult, error)

	// NotifyCredentials replays certificate and grade changes to the credentials bridge.
	NotifyCredentials(ctx context.Context, req NotifyCredentialsRequest) (*CommandResult, error)
}

// GenerateCertificatesRequest drives cert_generation and cert_allowlist_generation.
type GenerateCertificatesRequest struct {
	UserIDs   []int64
	CourseKey string
	Allowlist bool // Only allowlisted learners; empty UserIDs means the whole allowlist
}

// RegenerateNoIDVRequest drives regenerate_noidv_cert.
type RegenerateNoIDVRequest struct {
	CourseKeys []string
	BatchSize  int
	Sleep      time.Duration
}

// RegenerateUnverifiedRequest drives regenerate_unverified_certs.
type RegenerateUnverifiedRequest struct {
	Noop      bool
	BatchSize int
	Sleep     time.Duration
}

// ModifyTemplatesRequest drives modify_cert_template.
type ModifyTemplatesRequest struct {
	OldText     string  `json:"old_text"`
	NewText     string  `json:"new_text"`
	TemplateIDs []int64 `json:"template_ids"`
	DryRun      bool    `json:"dry_run"`
}

// NotifyCredentialsRequest drives notify_credentials.
type NotifyCredentialsRequest struct {
	DryRun    bool
	Site      string
	Courses   []string
	StartDate time.Time
	EndDate   time.Time
	Delay     time.Duration
	PageSize  int
}

// CommandResult summarizes a batch command run.
type CommandResult struct {
	Processed int
	Enqueued  int
	Updated   int
	Skipped   int
	Failed    int
	DryRun    bool
	TaskID    int64 // Set by commands that hand work to the worker
	Outcomes  []*Outcome
}
