package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/certs/internal/core/status"
	"github.com/example/certs/internal/ctxutil"
	"github.com/example/certs/internal/filter"
	"github.com/example/certs/internal/ports/primary"
	"github.com/example/certs/internal/ports/secondary"
)

// GenerationServiceImpl implements the GenerationService interface.
// Lifecycle events are published only after the store call has committed.
type GenerationServiceImpl struct {
	certs    secondary.CertificateRepository
	profiles secondary.ProfileProvider
	pipeline *filter.Pipeline
	events   secondary.EventPublisher
	metrics  *Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewGenerationService creates a new GenerationService with injected dependencies.
func NewGenerationService(
	certs secondary.CertificateRepository,
	profiles secondary.ProfileProvider,
	pipeline *filter.Pipeline,
	events secondary.EventPublisher,
	metrics *Metrics,
	logger *slog.Logger,
) *GenerationServiceImpl {
	if logger == nil {
		logger = slog.Default()
	}
	return &GenerationServiceImpl{
		certs:    certs,
		profiles: profiles,
		pipeline: pipeline,
		events:   events,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Generate runs the creation filter, then creates or refreshes the certificate.
func (s *GenerationServiceImpl) Generate(ctx context.Context, req primary.GenerateRequest) (*primary.Certificate, error) {
	data, err := s.pipeline.Run(ctx, filter.Data{
		UserID:         req.UserID,
		CourseKey:      req.CourseKey,
		Mode:           req.Mode,
		Status:         req.Status,
		Grade:          req.Grade,
		GenerationMode: req.GenerationMode,
	})
	if err != nil {
		if filter.IsNotAllowed(err) {
			s.metrics.Prevented()
			s.logger.Error("certificate generation prevented",
				"user_id", req.UserID, "course_key", req.CourseKey, "error", err)
		}
		return nil, err
	}

	st, err := status.Parse(data.Status)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", secondary.ErrInvalid, err)
	}

	existing, err := s.certs.Get(ctx, data.UserID, data.CourseKey)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch certificate: %w", err)
	}
	verifyUUID := ""
	if existing != nil {
		verifyUUID = existing.VerifyUUID
	}
	if verifyUUID == "" {
		verifyUUID = newVerifyUUID()
	}

	profile, err := s.profile(ctx, data.UserID)
	if err != nil {
		return nil, err
	}

	grade := data.Grade
	if st == status.Unverified {
		// Unverified placeholders never carry a grade.
		grade = ""
	}

	result, err := s.certs.Upsert(ctx, data.UserID, data.CourseKey, secondary.CertificateFields{
		Status:     string(st),
		Mode:       data.Mode,
		Grade:      grade,
		Name:       preferredName(profile),
		VerifyUUID: verifyUUID,
		Source:     ctxutil.SourceFromContext(ctx),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert certificate: %w", err)
	}

	if result.Changed {
		s.publish(ctx, result.Certificate, profile, result.PreviousStatus, data.GenerationMode)
	}
	s.logger.Info("certificate generated",
		"user_id", data.UserID,
		"course_key", data.CourseKey,
		"status", result.Certificate.Status,
		"mode", result.Certificate.Mode,
		"created", result.Created,
		"changed", result.Changed,
		"generation_mode", data.GenerationMode,
	)
	return recordToCertificate(result.Certificate), nil
}

// MarkUnverified records that the learner lacks identity verification.
func (s *GenerationServiceImpl) MarkUnverified(ctx context.Context, userID int64, courseKey, mode string) (*primary.Certificate, error) {
	return s.transition(ctx, userID, courseKey, "mark unverified", func(id int64, source string) (*secondary.TransitionResult, error) {
		return s.certs.MarkUnverified(ctx, id, mode, source)
	})
}

// MarkNotPassing records a failing grade on an existing certificate.
func (s *GenerationServiceImpl) MarkNotPassing(ctx context.Context, userID int64, courseKey, grade string) (*primary.Certificate, error) {
	return s.transition(ctx, userID, courseKey, "mark not passing", func(id int64, source string) (*secondary.TransitionResult, error) {
		return s.certs.MarkNotPassing(ctx, id, grade, source)
	})
}

// Invalidate moves an existing certificate to unavailable.
func (s *GenerationServiceImpl) Invalidate(ctx context.Context, userID int64, courseKey, mode string) (*primary.Certificate, error) {
	return s.transition(ctx, userID, courseKey, "invalidate", func(id int64, source string) (*secondary.TransitionResult, error) {
		return s.certs.Invalidate(ctx, id, mode, source)
	})
}

func (s *GenerationServiceImpl) transition(
	ctx context.Context,
	userID int64,
	courseKey, action string,
	apply func(id int64, source string) (*secondary.TransitionResult, error),
) (*primary.Certificate, error) {
	existing, err := s.certs.Get(ctx, userID, courseKey)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch certificate: %w", err)
	}
	if existing == nil {
		return nil, fmt.Errorf("cannot %s: no certificate for user %d in %s: %w", action, userID, courseKey, secondary.ErrNotFound)
	}

	result, err := apply(existing.ID, ctxutil.SourceFromContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to %s certificate: %w", action, err)
	}
	if result.Changed {
		profile, err := s.profile(ctx, userID)
		if err != nil {
			return nil, err
		}
		s.publish(ctx, result.Certificate, profile, result.PreviousStatus, "")
		s.logger.Info("certificate transitioned",
			"user_id", userID,
			"course_key", courseKey,
			"from", result.PreviousStatus,
			"to", result.Certificate.Status,
		)
	}
	return recordToCertificate(result.Certificate), nil
}

// profile returns the user's profile, or nil when the account is unknown.
func (s *GenerationServiceImpl) profile(ctx context.Context, userID int64) (*secondary.ProfileRecord, error) {
	p, err := s.profiles.GetProfile(ctx, userID)
	if errors.Is(err, secondary.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	return p, nil
}

// publish emits the lifecycle events implied by a committed change:
// changed always, created when the certificate became passing, revoked when
// it stopped being passing.
func (s *GenerationServiceImpl) publish(
	ctx context.Context,
	cert *secondary.CertificateRecord,
	profile *secondary.ProfileRecord,
	previous, generationMode string,
) {
	base := secondary.CertificateEvent{
		User:          secondary.EventUser{ID: cert.UserID},
		Course:        secondary.EventCourse{CourseKey: cert.CourseKey},
		Mode:          cert.Mode,
		Grade:         cert.Grade,
		CurrentStatus: cert.Status,
		DownloadURL:   cert.DownloadURL,
		Name:          cert.Name,
		VerifyUUID:    cert.VerifyUUID,
		Time:          s.now().UTC(),
	}
	if profile != nil {
		base.User.IsActive = profile.IsActive
		base.User.PII = secondary.EventUserPII{Username: profile.Username, Email: profile.Email, Name: profile.Name}
	}

	wasPassing := status.IsPassing(status.Status(previous))
	isPassing := status.IsPassing(status.Status(cert.Status))

	if isPassing && !wasPassing {
		created := base
		created.SignalName = secondary.SignalCertificateCreated
		created.GenerationMode = generationMode
		s.events.Publish(ctx, created)
	}
	if wasPassing && !isPassing {
		revoked := base
		revoked.SignalName = secondary.SignalCertificateRevoked
		s.events.Publish(ctx, revoked)
	}
	changed := base
	changed.SignalName = secondary.SignalCertificateChanged
	s.events.Publish(ctx, changed)
}

// newVerifyUUID returns a random UUID as 32 lowercase hex characters.
func newVerifyUUID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

var _ primary.GenerationService = (*GenerationServiceImpl)(nil)
