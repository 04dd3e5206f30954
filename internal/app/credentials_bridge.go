package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/example/certs/internal/core/mode"
	"github.com/example/certs/internal/core/status"
	"github.com/example/certs/internal/ports/secondary"
)

// Credential statuses sent to the credentials service.
const (
	CredentialAwarded = "awarded"
	CredentialRevoked = "revoked"
)

const defaultProgramCacheSize = 1024

var errNoCredentialsClient = errors.New("credentials service is not configured")

// CredentialsBridge forwards interesting certificate and grade changes of
// program courses to the credentials service through the task queue.
type CredentialsBridge struct {
	programs    secondary.ProgramProvider
	profiles    secondary.ProfileProvider
	enrollments secondary.EnrollmentProvider
	grades      secondary.GradeProvider
	client      secondary.CredentialsClient
	tasks       TaskEnqueuer
	cache       *lru.Cache[string, bool]
	metrics     *Metrics
	logger      *slog.Logger
}

// NewCredentialsBridge creates a bridge. cacheSize bounds the number of
// course program-membership answers kept in memory.
func NewCredentialsBridge(
	programs secondary.ProgramProvider,
	learners LearnerData,
	client secondary.CredentialsClient,
	tasks TaskEnqueuer,
	cacheSize int,
	metrics *Metrics,
	logger *slog.Logger,
) (*CredentialsBridge, error) {
	if cacheSize <= 0 {
		cacheSize = defaultProgramCacheSize
	}
	cache, err := lru.New[string, bool](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create program cache: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialsBridge{
		programs:    programs,
		profiles:    learners.Profiles,
		enrollments: learners.Enrollments,
		grades:      learners.Grades,
		client:      client,
		tasks:       tasks,
		cache:       cache,
		metrics:     metrics,
		logger:      logger,
	}, nil
}

// Name identifies the bridge as an event subscriber.
func (b *CredentialsBridge) Name() string { return "credentials-bridge" }

// Handle consumes certificate.changed events.
func (b *CredentialsBridge) Handle(ctx context.Context, event secondary.CertificateEvent) error {
	if event.SignalName != secondary.SignalCertificateChanged {
		return nil
	}
	_, err := b.notifyCertificate(ctx, event.User.ID, event.User.PII.Username, event.Course.CourseKey,
		event.Mode, event.CurrentStatus, event.VerifyUUID)
	return err
}

// NotifyCertificate forwards a stored certificate. It reports whether a
// task was enqueued.
func (b *CredentialsBridge) NotifyCertificate(ctx context.Context, cert *secondary.CertificateRecord) (bool, error) {
	username, err := b.username(ctx, cert.UserID)
	if err != nil {
		return false, err
	}
	return b.notifyCertificate(ctx, cert.UserID, username, cert.CourseKey, cert.Mode, cert.Status, cert.VerifyUUID)
}

func (b *CredentialsBridge) notifyCertificate(ctx context.Context, userID int64, username, courseKey, certMode, certStatus, verifyUUID string) (bool, error) {
	if !interestingCertificate(certMode, certStatus) {
		return false, nil
	}
	inProgram, err := b.inProgram(ctx, courseKey)
	if err != nil || !inProgram {
		return false, err
	}

	credential := CredentialRevoked
	if status.IsPassing(status.Status(certStatus)) {
		credential = CredentialAwarded
	}
	if _, err := b.tasks.Enqueue(ctx, TaskUpdateCredential, secondary.CredentialsCertificate{
		Username:   username,
		CourseRun:  courseKey,
		Mode:       certMode,
		Status:     credential,
		VerifyUUID: verifyUUID,
	}, credentialsOrderingKey(userID, courseKey), 0); err != nil {
		return false, err
	}
	b.metrics.CredentialsEnqueued(TaskUpdateCredential)
	return true, nil
}

// NotifyGrade forwards the stored grade of (user, course) when the learner's
// enrollment is credentials-interesting and the course belongs to a program.
func (b *CredentialsBridge) NotifyGrade(ctx context.Context, userID int64, courseKey string) error {
	_, err := b.notifyGrade(ctx, userID, courseKey)
	return err
}

// NotifyGradeRecord forwards a stored grade. It reports whether a task was enqueued.
func (b *CredentialsBridge) NotifyGradeRecord(ctx context.Context, grade *secondary.GradeRecord) (bool, error) {
	return b.notifyGrade(ctx, grade.UserID, grade.CourseKey)
}

func (b *CredentialsBridge) notifyGrade(ctx context.Context, userID int64, courseKey string) (bool, error) {
	enrollment, err := b.enrollments.GetEnrollment(ctx, userID, courseKey)
	if err != nil {
		return false, fmt.Errorf("failed to load enrollment: %w", err)
	}
	if enrollment == nil || !mode.IsCredentialsInteresting(enrollment.Mode) {
		return false, nil
	}
	inProgram, err := b.inProgram(ctx, courseKey)
	if err != nil || !inProgram {
		return false, err
	}

	grade, err := b.grades.GetGrade(ctx, userID, courseKey)
	if err != nil {
		return false, fmt.Errorf("failed to load grade: %w", err)
	}
	if grade == nil {
		return false, nil
	}
	username, err := b.username(ctx, userID)
	if err != nil {
		return false, err
	}

	if _, err := b.tasks.Enqueue(ctx, TaskSendGrade, secondary.CredentialsGrade{
		Username:    username,
		CourseRun:   courseKey,
		LetterGrade: grade.LetterGrade,
		Percent:     grade.Percent,
		Verified:    !mode.IsNonVerified(enrollment.Mode),
	}, credentialsOrderingKey(userID, courseKey), 0); err != nil {
		return false, err
	}
	b.metrics.CredentialsEnqueued(TaskSendGrade)
	return true, nil
}

// HandleSendGrade posts a queued grade.
func (b *CredentialsBridge) HandleSendGrade(ctx context.Context, task *secondary.QueuedTask) error {
	var grade secondary.CredentialsGrade
	if err := decodePayload(task, &grade); err != nil {
		return err
	}
	if b.client == nil {
		return Permanent(errNoCredentialsClient)
	}
	return classifyCredentialsError(b.client.PostGrade(ctx, grade))
}

// HandleUpdateCredential posts a queued certificate credential.
func (b *CredentialsBridge) HandleUpdateCredential(ctx context.Context, task *secondary.QueuedTask) error {
	var cert secondary.CredentialsCertificate
	if err := decodePayload(task, &cert); err != nil {
		return err
	}
	if b.client == nil {
		return Permanent(errNoCredentialsClient)
	}
	return classifyCredentialsError(b.client.PostCertificate(ctx, cert))
}

// inProgram reports whether the course appears in any program, caching the answer.
func (b *CredentialsBridge) inProgram(ctx context.Context, courseKey string) (bool, error) {
	if v, ok := b.cache.Get(courseKey); ok {
		return v, nil
	}
	programs, err := b.programs.ProgramsForCourse(ctx, courseKey)
	if err != nil {
		return false, fmt.Errorf("failed to load programs for %s: %w", courseKey, err)
	}
	in := len(programs) > 0
	b.cache.Add(courseKey, in)
	return in, nil
}

func (b *CredentialsBridge) username(ctx context.Context, userID int64) (string, error) {
	p, err := b.profiles.GetProfile(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to load profile of user %d: %w", userID, err)
	}
	return p.Username, nil
}

// interestingCertificate reports whether a certificate change is forwarded.
func interestingCertificate(certMode, certStatus string) bool {
	if !mode.IsCredentialsInteresting(certMode) {
		return false
	}
	s := status.Status(certStatus)
	return s == status.Downloadable || s == status.NotPassing
}

// temporary is implemented by client errors that may succeed on retry.
type temporary interface {
	Temporary() bool
}

// classifyCredentialsError maps client failures onto task retry semantics:
// rejected requests fail permanently, everything else is retried.
func classifyCredentialsError(err error) error {
	if err == nil {
		return nil
	}
	var t temporary
	if errors.As(err, &t) && !t.Temporary() {
		return Permanent(err)
	}
	return Retryable(err)
}

func credentialsOrderingKey(userID int64, courseKey string) string {
	return "credentials:" + orderingKey(userID, courseKey)
}
