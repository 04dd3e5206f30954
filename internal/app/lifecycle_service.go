package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/example/certs/internal/core/eligibility"
	"github.com/example/certs/internal/core/status"
	"github.com/example/certs/internal/filter"
	"github.com/example/certs/internal/ports/primary"
	"github.com/example/certs/internal/ports/secondary"
)

// GenerateTaskPayload is the payload of a certificates.generate task.
type GenerateTaskPayload struct {
	UserID               int64  `json:"user_id"`
	CourseKey            string `json:"course_key"`
	GenerationMode       string `json:"generation_mode"`
	ExpectedVerification string `json:"expected_verification_status"`
}

// GradeNotifier forwards grade changes downstream.
type GradeNotifier interface {
	NotifyGrade(ctx context.Context, userID int64, courseKey string) error
}

// LifecycleServiceImpl implements the LifecycleService interface.
// Generate decisions are routed through the task queue keyed by (user, course)
// so transitions for one pair are applied in trigger order; every other
// decision is applied synchronously.
type LifecycleServiceImpl struct {
	loader      *ContextLoader
	generation  primary.GenerationService
	enrollments secondary.EnrollmentProvider
	tasks       TaskEnqueuer
	grades      GradeNotifier
	metrics     *Metrics
	logger      *slog.Logger
}

// NewLifecycleService creates a new LifecycleService with injected dependencies.
// grades may be nil when no credentials service is configured.
func NewLifecycleService(
	loader *ContextLoader,
	generation primary.GenerationService,
	enrollments secondary.EnrollmentProvider,
	tasks TaskEnqueuer,
	grades GradeNotifier,
	metrics *Metrics,
	logger *slog.Logger,
) *LifecycleServiceImpl {
	if logger == nil {
		logger = slog.Default()
	}
	return &LifecycleServiceImpl{
		loader:      loader,
		generation:  generation,
		enrollments: enrollments,
		tasks:       tasks,
		grades:      grades,
		metrics:     metrics,
		logger:      logger,
	}
}

// GradeChanged re-evaluates after a persisted grade update and forwards the
// grade to the credentials bridge.
func (s *LifecycleServiceImpl) GradeChanged(ctx context.Context, userID int64, courseKey string) (*primary.Outcome, error) {
	if s.grades != nil {
		if err := s.grades.NotifyGrade(ctx, userID, courseKey); err != nil {
			s.logger.Error("failed to notify grade change", "user_id", userID, "course_key", courseKey, "error", err)
		}
	}
	return s.Evaluate(ctx, primary.EvaluateRequest{UserID: userID, CourseKey: courseKey, GenerationMode: primary.GenerationModeSelf})
}

// EnrollmentModeChanged re-evaluates using the new mode.
func (s *LifecycleServiceImpl) EnrollmentModeChanged(ctx context.Context, userID int64, courseKey, mode string) (*primary.Outcome, error) {
	return s.Evaluate(ctx, primary.EvaluateRequest{
		UserID:         userID,
		CourseKey:      courseKey,
		GenerationMode: primary.GenerationModeSelf,
		ModeOverride:   mode,
	})
}

// VerificationChanged re-evaluates every active enrollment of the user.
// A failing course is logged and does not stop the others.
func (s *LifecycleServiceImpl) VerificationChanged(ctx context.Context, userID int64) ([]*primary.Outcome, error) {
	enrollments, err := s.enrollments.ListActiveEnrollments(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}

	outcomes := make([]*primary.Outcome, 0, len(enrollments))
	for _, e := range enrollments {
		out, err := s.Evaluate(ctx, primary.EvaluateRequest{UserID: userID, CourseKey: e.CourseKey, GenerationMode: primary.GenerationModeSelf})
		if err != nil {
			s.logger.Error("re-evaluation after verification change failed",
				"user_id", userID, "course_key", e.CourseKey, "error", err)
			continue
		}
		outcomes = append(outcomes, out)
	}
	return outcomes, nil
}

// AllowlistChanged re-evaluates after an allowlist edit.
func (s *LifecycleServiceImpl) AllowlistChanged(ctx context.Context, userID int64, courseKey string) (*primary.Outcome, error) {
	return s.Evaluate(ctx, primary.EvaluateRequest{UserID: userID, CourseKey: courseKey, GenerationMode: primary.GenerationModeBatch})
}

// InvalidationChanged re-evaluates after an invalidation edit.
func (s *LifecycleServiceImpl) InvalidationChanged(ctx context.Context, userID int64, courseKey string) (*primary.Outcome, error) {
	return s.Evaluate(ctx, primary.EvaluateRequest{UserID: userID, CourseKey: courseKey, GenerationMode: primary.GenerationModeBatch})
}

// Evaluate decides for (user, course) and applies the decision.
func (s *LifecycleServiceImpl) Evaluate(ctx context.Context, req primary.EvaluateRequest) (*primary.Outcome, error) {
	loaded, err := s.load(ctx, req)
	if err != nil {
		return nil, err
	}
	decision := eligibility.Decide(loaded.Context)
	s.metrics.Decision(decision)

	out := newOutcome(req.UserID, req.CourseKey, decision)
	if decision.Kind == eligibility.KindGenerate {
		id, err := s.tasks.Enqueue(ctx, TaskGenerateCertificate, GenerateTaskPayload{
			UserID:               req.UserID,
			CourseKey:            req.CourseKey,
			GenerationMode:       req.GenerationMode,
			ExpectedVerification: loaded.Verification,
		}, orderingKey(req.UserID, req.CourseKey), 0)
		if err != nil {
			return nil, err
		}
		out.Action = primary.ActionEnqueued
		out.TaskID = id
		s.logger.Info("certificate generation enqueued",
			"user_id", req.UserID, "course_key", req.CourseKey, "task_id", id, "decision", decision.String())
		return out, nil
	}
	return s.apply(ctx, out, decision, loaded, req.GenerationMode)
}

// HandleGenerateTask is the certificates.generate task handler. Everything
// is re-derived at run time; a verification status that moved since enqueue
// re-queues the task instead of racing the verification update.
func (s *LifecycleServiceImpl) HandleGenerateTask(ctx context.Context, task *secondary.QueuedTask) error {
	var p GenerateTaskPayload
	if err := decodePayload(task, &p); err != nil {
		return err
	}

	loaded, err := s.load(ctx, primary.EvaluateRequest{UserID: p.UserID, CourseKey: p.CourseKey})
	if err != nil {
		return err
	}
	if p.ExpectedVerification != "" && loaded.Verification != p.ExpectedVerification {
		return Retryable(fmt.Errorf("verification status for user %d is %q, expected %q",
			p.UserID, loaded.Verification, p.ExpectedVerification))
	}

	decision := eligibility.Decide(loaded.Context)
	s.metrics.Decision(decision)
	out := newOutcome(p.UserID, p.CourseKey, decision)

	if decision.Kind == eligibility.KindGenerate {
		_, err := s.generation.Generate(ctx, primary.GenerateRequest{
			UserID:         p.UserID,
			CourseKey:      p.CourseKey,
			Status:         string(decision.Status),
			Mode:           decision.Mode,
			Grade:          decision.Grade,
			GenerationMode: p.GenerationMode,
		})
		if filter.IsNotAllowed(err) {
			return Permanent(err)
		}
		return err
	}

	_, err = s.apply(ctx, out, decision, loaded, p.GenerationMode)
	return err
}

// apply performs every non-enqueue decision synchronously.
func (s *LifecycleServiceImpl) apply(
	ctx context.Context,
	out *primary.Outcome,
	decision eligibility.Decision,
	loaded *Loaded,
	generationMode string,
) (*primary.Outcome, error) {
	userID, courseKey := out.UserID, out.CourseKey
	var (
		cert *primary.Certificate
		err  error
	)

	switch decision.Kind {
	case eligibility.KindSkip:
		out.Action = primary.ActionSkipped
		s.logger.Debug("certificate evaluation skipped", "user_id", userID, "course_key", courseKey, "reason", decision.Reason)
		return out, nil

	case eligibility.KindSetUnverified:
		if loaded.Existing == nil {
			cert, err = s.generation.Generate(ctx, primary.GenerateRequest{
				UserID:         userID,
				CourseKey:      courseKey,
				Status:         string(status.Unverified),
				Mode:           decision.Mode,
				GenerationMode: generationMode,
			})
		} else {
			cert, err = s.generation.MarkUnverified(ctx, userID, courseKey, decision.Mode)
		}

	case eligibility.KindSetNotPassing:
		cert, err = s.generation.MarkNotPassing(ctx, userID, courseKey, decision.Grade)

	case eligibility.KindInvalidate:
		if loaded.Existing == nil {
			out.Action = primary.ActionSkipped
			return out, nil
		}
		cert, err = s.generation.Invalidate(ctx, userID, courseKey, decision.Mode)

	default:
		return nil, fmt.Errorf("unhandled decision %s", decision)
	}

	if err != nil {
		if filter.IsNotAllowed(err) {
			out.Action = primary.ActionPrevented
			return out, nil
		}
		return nil, err
	}

	out.Certificate = cert
	out.Action = primary.ActionUpdated
	if loaded.Existing != nil && cert != nil && sameCertificateState(loaded.Existing, cert) {
		out.Action = primary.ActionUnchanged
	}
	return out, nil
}

func (s *LifecycleServiceImpl) load(ctx context.Context, req primary.EvaluateRequest) (*Loaded, error) {
	loaded, err := s.loader.Load(ctx, req.UserID, req.CourseKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load eligibility context for user %d in %s: %w", req.UserID, req.CourseKey, err)
	}
	if req.ModeOverride != "" {
		loaded.Context.EnrollmentMode = req.ModeOverride
	}
	return loaded, nil
}

func newOutcome(userID int64, courseKey string, d eligibility.Decision) *primary.Outcome {
	return &primary.Outcome{
		UserID:    userID,
		CourseKey: courseKey,
		Decision:  d.String(),
		Kind:      string(d.Kind),
		Reason:    string(d.Reason),
	}
}

func sameCertificateState(before *secondary.CertificateRecord, after *primary.Certificate) bool {
	return before.Status == after.Status && before.Mode == after.Mode && before.Grade == after.Grade
}

// orderingKey serializes tasks for one (user, course) pair.
func orderingKey(userID int64, courseKey string) string {
	return strconv.FormatInt(userID, 10) + ":" + courseKey
}

// isNotFound reports whether err wraps secondary.ErrNotFound.
func isNotFound(err error) bool {
	return errors.Is(err, secondary.ErrNotFound)
}

var _ primary.LifecycleService = (*LifecycleServiceImpl)(nil)
