package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/certs/internal/core/status"
	"github.com/example/certs/internal/ports/primary"
	"github.com/example/certs/internal/ports/secondary"
)

// Batch defaults.
const (
	DefaultBatchSize      = 10000
	DefaultSleep          = 10 * time.Second
	DefaultNotifyPageSize = 100
	templateOrderingKey   = "certificate-templates"
	reasonNotOnAllowlist  = "not-on-allowlist"
)

// CredentialsReplayer re-sends stored records to the credentials bridge.
type CredentialsReplayer interface {
	NotifyCertificate(ctx context.Context, cert *secondary.CertificateRecord) (bool, error)
	NotifyGradeRecord(ctx context.Context, grade *secondary.GradeRecord) (bool, error)
}

// Sleeper pauses between batches. It returns early with ctx's error.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// CommandServiceImpl implements the CommandService interface.
type CommandServiceImpl struct {
	certs     secondary.CertificateRepository
	allowlist secondary.AllowlistRepository
	templates secondary.TemplateRepository
	learners  LearnerData
	lifecycle primary.LifecycleService
	replayer  CredentialsReplayer
	tasks     TaskEnqueuer
	sleep     Sleeper
	logger    *slog.Logger
}

// NewCommandService creates a new CommandService with injected dependencies.
func NewCommandService(
	certs secondary.CertificateRepository,
	allowlist secondary.AllowlistRepository,
	templates secondary.TemplateRepository,
	learners LearnerData,
	lifecycle primary.LifecycleService,
	replayer CredentialsReplayer,
	tasks TaskEnqueuer,
	sleep Sleeper,
	logger *slog.Logger,
) *CommandServiceImpl {
	if sleep == nil {
		sleep = SleepContext
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandServiceImpl{
		certs:     certs,
		allowlist: allowlist,
		templates: templates,
		learners:  learners,
		lifecycle: lifecycle,
		replayer:  replayer,
		tasks:     tasks,
		sleep:     sleep,
		logger:    logger,
	}
}

// GenerateCertificates evaluates each user of the course in batch mode.
// For the allowlist variant, users not on the allowlist are skipped and an
// empty user list means every enabled allowlist entry.
func (s *CommandServiceImpl) GenerateCertificates(ctx context.Context, req primary.GenerateCertificatesRequest) (*primary.CommandResult, error) {
	users := req.UserIDs
	if req.Allowlist && len(users) == 0 {
		entries, err := s.allowlist.ListByCourse(ctx, req.CourseKey, true)
		if err != nil {
			return nil, fmt.Errorf("failed to list allowlist: %w", err)
		}
		for _, e := range entries {
			users = append(users, e.UserID)
		}
	}

	res := &primary.CommandResult{}
	for _, userID := range users {
		if req.Allowlist {
			entry, err := s.allowlist.Get(ctx, userID, req.CourseKey)
			if err != nil {
				return nil, fmt.Errorf("failed to load allowlist entry: %w", err)
			}
			if entry == nil || !entry.Enabled {
				res.Processed++
				res.Skipped++
				res.Outcomes = append(res.Outcomes, &primary.Outcome{
					UserID:    userID,
					CourseKey: req.CourseKey,
					Kind:      "skip",
					Reason:    reasonNotOnAllowlist,
					Decision:  "skip(" + reasonNotOnAllowlist + ")",
					Action:    primary.ActionSkipped,
				})
				continue
			}
		}
		s.evaluate(ctx, res, userID, req.CourseKey)
	}
	return res, nil
}

// RegenerateNoIDV re-evaluates unverified certificates of the courses,
// batch by batch.
func (s *CommandServiceImpl) RegenerateNoIDV(ctx context.Context, req primary.RegenerateNoIDVRequest) (*primary.CommandResult, error) {
	res := &primary.CommandResult{}
	for _, courseKey := range req.CourseKeys {
		err := s.eachPage(ctx, secondary.CertificateFilters{
			Statuses:   []string{string(status.Unverified)},
			CourseKeys: []string{courseKey},
		}, req.BatchSize, req.Sleep, func(cert *secondary.CertificateRecord) error {
			s.evaluate(ctx, res, cert.UserID, cert.CourseKey)
			return nil
		})
		if err != nil {
			return res, err
		}
	}
	return res, nil
}

// RegenerateUnverified re-evaluates unverified certificates whose owners
// are now verified. With Noop set it only counts them.
func (s *CommandServiceImpl) RegenerateUnverified(ctx context.Context, req primary.RegenerateUnverifiedRequest) (*primary.CommandResult, error) {
	res := &primary.CommandResult{DryRun: req.Noop}
	verified := make(map[int64]bool)

	err := s.eachPage(ctx, secondary.CertificateFilters{
		Statuses: []string{string(status.Unverified)},
	}, req.BatchSize, req.Sleep, func(cert *secondary.CertificateRecord) error {
		ok, seen := verified[cert.UserID]
		if !seen {
			st, err := s.learners.Verifications.VerificationStatus(ctx, cert.UserID)
			if err != nil {
				return fmt.Errorf("failed to load verification status: %w", err)
			}
			ok = st == secondary.VerificationApproved
			verified[cert.UserID] = ok
		}
		if !ok {
			res.Skipped++
			return nil
		}
		if req.Noop {
			res.Processed++
			s.logger.Info("would regenerate unverified certificate", "user_id", cert.UserID, "course_key", cert.CourseKey)
			return nil
		}
		s.evaluate(ctx, res, cert.UserID, cert.CourseKey)
		return nil
	})
	return res, err
}

// PurgePII clears the name on every certificate of a fully retired user.
func (s *CommandServiceImpl) PurgePII(ctx context.Context, dryRun bool) (*primary.CommandResult, error) {
	res := &primary.CommandResult{DryRun: dryRun}
	retired, err := s.learners.Profiles.ListRetiredUserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list retired users: %w", err)
	}
	if len(retired) == 0 {
		return res, nil
	}

	if dryRun {
		certs, err := s.certs.List(ctx, secondary.CertificateFilters{UserIDs: retired})
		if err != nil {
			return nil, err
		}
		for _, c := range certs {
			res.Processed++
			if c.Name != "" {
				res.Updated++
			}
		}
		return res, nil
	}

	n, err := s.certs.BulkPurgeName(ctx, retired)
	if err != nil {
		return nil, fmt.Errorf("failed to purge names: %w", err)
	}
	res.Processed = int(n)
	res.Updated = int(n)
	s.logger.Info("purged PII from certificates", "users", len(retired), "certificates", n)
	return res, nil
}

// PurgePDFReferences clears download URL and UUID. No events are emitted.
func (s *CommandServiceImpl) PurgePDFReferences(ctx context.Context, certIDs []int64, dryRun bool) (*primary.CommandResult, error) {
	res := &primary.CommandResult{DryRun: dryRun}
	if dryRun {
		for _, id := range certIDs {
			cert, err := s.certs.GetByID(ctx, id)
			if isNotFound(err) {
				res.Skipped++
				continue
			}
			if err != nil {
				return nil, err
			}
			res.Processed++
			if cert.DownloadURL != "" || cert.DownloadUUID != "" {
				res.Updated++
			}
		}
		return res, nil
	}

	n, err := s.certs.BulkClearDownload(ctx, certIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to clear download references: %w", err)
	}
	res.Processed = len(certIDs)
	res.Updated = int(n)
	return res, nil
}

// FixCertRecords assigns missing verify UUIDs to downloadable certificates
// and re-evaluates certificates stuck in error. limit bounds the number of
// records touched; zero means no bound.
func (s *CommandServiceImpl) FixCertRecords(ctx context.Context, limit int) (*primary.CommandResult, error) {
	res := &primary.CommandResult{}
	errDone := errors.New("limit reached")
	reached := func() bool { return limit > 0 && res.Processed >= limit }

	err := s.eachPage(ctx, secondary.CertificateFilters{
		Statuses: []string{string(status.Downloadable)},
	}, DefaultBatchSize, 0, func(cert *secondary.CertificateRecord) error {
		if cert.VerifyUUID != "" {
			return nil
		}
		if reached() {
			return errDone
		}
		res.Processed++
		ok, err := s.certs.AssignVerifyUUID(ctx, cert.ID, newVerifyUUID())
		if err != nil {
			res.Failed++
			s.logger.Error("failed to assign verify uuid", "certificate_id", cert.ID, "error", err)
			return nil
		}
		if ok {
			res.Updated++
		}
		return nil
	})
	if err != nil && !errors.Is(err, errDone) {
		return res, err
	}

	err = s.eachPage(ctx, secondary.CertificateFilters{
		Statuses: []string{string(status.Error)},
	}, DefaultBatchSize, 0, func(cert *secondary.CertificateRecord) error {
		if reached() {
			return errDone
		}
		s.evaluate(ctx, res, cert.UserID, cert.CourseKey)
		return nil
	})
	if err != nil && !errors.Is(err, errDone) {
		return res, err
	}
	return res, nil
}

// ModifyTemplates validates the templates exist and queues the replacement
// for the worker.
func (s *CommandServiceImpl) ModifyTemplates(ctx context.Context, req primary.ModifyTemplatesRequest) (*primary.CommandResult, error) {
	if req.OldText == "" {
		return nil, fmt.Errorf("%w: old text must not be empty", secondary.ErrInvalid)
	}
	if len(req.TemplateIDs) == 0 {
		return nil, fmt.Errorf("%w: no templates given", secondary.ErrInvalid)
	}
	found, err := s.templates.GetByIDs(ctx, req.TemplateIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}
	if missing := missingTemplates(req.TemplateIDs, found); len(missing) > 0 {
		return nil, fmt.Errorf("templates %v: %w", missing, secondary.ErrNotFound)
	}

	id, err := s.tasks.Enqueue(ctx, TaskModifyCertificateTemplate, req, templateOrderingKey, 0)
	if err != nil {
		return nil, err
	}
	return &primary.CommandResult{Processed: len(found), Enqueued: 1, DryRun: req.DryRun, TaskID: id}, nil
}

// HandleModifyTemplate is the certificates.modify_template task handler.
func (s *CommandServiceImpl) HandleModifyTemplate(ctx context.Context, task *secondary.QueuedTask) error {
	var req primary.ModifyTemplatesRequest
	if err := decodePayload(task, &req); err != nil {
		return err
	}
	templates, err := s.templates.GetByIDs(ctx, req.TemplateIDs)
	if err != nil {
		return fmt.Errorf("failed to load templates: %w", err)
	}
	for _, t := range templates {
		if !strings.Contains(t.Template, req.OldText) {
			s.logger.Info("template does not contain text, skipping", "template_id", t.ID)
			continue
		}
		updated := strings.ReplaceAll(t.Template, req.OldText, req.NewText)
		if req.DryRun {
			s.logger.Info("would update template", "template_id", t.ID, "name", t.Name)
			continue
		}
		if err := s.templates.UpdateTemplate(ctx, t.ID, updated); err != nil {
			return fmt.Errorf("failed to update template %d: %w", t.ID, err)
		}
		s.logger.Info("template updated", "template_id", t.ID, "name", t.Name)
	}
	return nil
}

// NotifyCredentials replays certificates and grades modified in the date
// range to the credentials bridge, page by page with Delay between pages.
func (s *CommandServiceImpl) NotifyCredentials(ctx context.Context, req primary.NotifyCredentialsRequest) (*primary.CommandResult, error) {
	res := &primary.CommandResult{DryRun: req.DryRun}
	courseKeys, err := s.notifyCourseKeys(ctx, req)
	if err != nil {
		return nil, err
	}
	if req.Site != "" && len(courseKeys) == 0 {
		s.logger.Warn("site has no courses, nothing to notify", "site", req.Site)
		return res, nil
	}
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = DefaultNotifyPageSize
	}

	err = s.eachPage(ctx, secondary.CertificateFilters{
		CourseKeys:     courseKeys,
		ModifiedAfter:  req.StartDate,
		ModifiedBefore: req.EndDate,
	}, pageSize, req.Delay, func(cert *secondary.CertificateRecord) error {
		res.Processed++
		if req.DryRun {
			return nil
		}
		sent, err := s.replayer.NotifyCertificate(ctx, cert)
		s.tallyReplay(res, sent, err, "certificate_id", cert.ID)
		return nil
	})
	if err != nil {
		return res, err
	}

	var afterID int64
	for {
		grades, err := s.learners.Grades.ListModifiedGrades(ctx, secondary.GradeFilters{
			CourseKeys:     courseKeys,
			ModifiedAfter:  req.StartDate,
			ModifiedBefore: req.EndDate,
			AfterID:        afterID,
			Limit:          pageSize,
		})
		if err != nil {
			return res, err
		}
		for _, g := range grades {
			afterID = g.ID
			res.Processed++
			if req.DryRun {
				continue
			}
			sent, err := s.replayer.NotifyGradeRecord(ctx, g)
			s.tallyReplay(res, sent, err, "grade_id", g.ID)
		}
		if len(grades) < pageSize {
			return res, nil
		}
		if err := s.sleep(ctx, req.Delay); err != nil {
			return res, err
		}
	}
}

func (s *CommandServiceImpl) notifyCourseKeys(ctx context.Context, req primary.NotifyCredentialsRequest) ([]string, error) {
	keys := append([]string(nil), req.Courses...)
	if req.Site == "" {
		return keys, nil
	}
	orgs, err := s.learners.Courses.OrgsForSite(ctx, req.Site)
	if err != nil {
		return nil, fmt.Errorf("failed to load site orgs: %w", err)
	}
	if len(orgs) == 0 {
		return keys, nil
	}
	siteKeys, err := s.learners.Courses.CourseKeysForOrgs(ctx, orgs)
	if err != nil {
		return nil, fmt.Errorf("failed to load site courses: %w", err)
	}
	return append(keys, siteKeys...), nil
}

func (s *CommandServiceImpl) tallyReplay(res *primary.CommandResult, sent bool, err error, idKey string, id int64) {
	switch {
	case err != nil:
		res.Failed++
		s.logger.Error("failed to notify credentials", idKey, id, "error", err)
	case sent:
		res.Enqueued++
	default:
		res.Skipped++
	}
}

// evaluate runs one evaluation and folds the outcome into res. Failures are
// logged and counted so the batch continues with the next learner.
func (s *CommandServiceImpl) evaluate(ctx context.Context, res *primary.CommandResult, userID int64, courseKey string) {
	res.Processed++
	out, err := s.lifecycle.Evaluate(ctx, primary.EvaluateRequest{
		UserID:         userID,
		CourseKey:      courseKey,
		GenerationMode: primary.GenerationModeBatch,
	})
	if err != nil {
		res.Failed++
		s.logger.Error("certificate evaluation failed", "user_id", userID, "course_key", courseKey, "error", err)
		return
	}
	res.Outcomes = append(res.Outcomes, out)
	switch out.Action {
	case primary.ActionEnqueued:
		res.Enqueued++
	case primary.ActionUpdated:
		res.Updated++
	default:
		res.Skipped++
	}
}

// eachPage walks certificates matching filters by keyset pages of size,
// sleeping between full pages. fn returning an error stops the walk.
func (s *CommandServiceImpl) eachPage(
	ctx context.Context,
	filters secondary.CertificateFilters,
	size int,
	pause time.Duration,
	fn func(*secondary.CertificateRecord) error,
) error {
	if size <= 0 {
		size = DefaultBatchSize
	}
	filters.Limit = size
	for {
		page, err := s.certs.List(ctx, filters)
		if err != nil {
			return err
		}
		for _, cert := range page {
			filters.AfterID = cert.ID
			if err := fn(cert); err != nil {
				return err
			}
		}
		if len(page) < size {
			return nil
		}
		if err := s.sleep(ctx, pause); err != nil {
			return err
		}
	}
}

func missingTemplates(ids []int64, found []*secondary.TemplateRecord) []int64 {
	have := make(map[int64]bool, len(found))
	for _, t := range found {
		have[t.ID] = true
	}
	var missing []int64
	for _, id := range ids {
		if !have[id] {
			missing = append(missing, id)
		}
	}
	return missing
}

var _ primary.CommandService = (*CommandServiceImpl)(nil)
