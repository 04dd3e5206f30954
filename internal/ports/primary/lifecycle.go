package primary

import "context"

// Outcome actions.
const (
	ActionEnqueued  = "enqueued"
	ActionUpdated   = "updated"
	ActionUnchanged = "unchanged"
	ActionSkipped   = "skipped"
	ActionPrevented = "prevented"
)

// LifecycleService defines the primary port for platform signals that may
// change a learner's certificate.
type LifecycleService interface {
	// GradeChanged re-evaluates after a persisted grade update.
	GradeChanged(ctx context.Context, userID int64, courseKey string) (*Outcome, error)

	// EnrollmentModeChanged re-evaluates using the new enrollment mode.
	EnrollmentModeChanged(ctx context.Context, userID int64, courseKey, mode string) (*Outcome, error)

	// VerificationChanged re-evaluates every active enrollment of the user.
	VerificationChanged(ctx context.Context, userID int64) ([]*Outcome, error)

	// AllowlistChanged re-evaluates after an allowlist edit.
	AllowlistChanged(ctx context.Context, userID int64, courseKey string) (*Outcome, error)

	// InvalidationChanged re-evaluates after an invalidation is added or removed.
	InvalidationChanged(ctx context.Context, userID int64, courseKey string) (*Outcome, error)

	// Evaluate decides and applies the decision for (user, course).
	Evaluate(ctx context.Context, req EvaluateRequest) (*Outcome, error)
}

// EvaluateRequest is the input to Evaluate.
type EvaluateRequest struct {
	UserID         int64
	CourseKey      string
	GenerationMode string
	ModeOverride   string // Used instead of the stored enrollment mode when set
}

// Outcome reports what an evaluation did.
type Outcome struct {
	UserID      int64
	CourseKey   string
	Decision    string // Rendered decision, e.g. "skip(beta-tester)"
	Kind        string
	Reason      string
	Action      string
	TaskID      int64
	Certificate *Certificate
}
