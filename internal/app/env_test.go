package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/example/certs/internal/adapters/events"
	"github.com/example/certs/internal/adapters/sqlite"
	"github.com/example/certs/internal/db"
	"github.com/example/certs/internal/filter"
	"github.com/example/certs/internal/logging"
	"github.com/example/certs/internal/ports/secondary"
)

const demoCourse = db.DemoCourseKey

// ============================================================================
// Test Environment
// ============================================================================

// testEnv wires the services over an in-memory database seeded with the
// development fixtures (see db.SeedFixtures).
type testEnv struct {
	db         *sqlx.DB
	certs      *sqlite.CertificateRepository
	allowlist  *sqlite.AllowlistRepository
	queue      *sqlite.TaskQueue
	templates  *sqlite.TemplateRepository
	learners   *sqlite.LearnerRepository
	courses    *countingCourses
	bus        *events.Bus
	captured   *capturedEvents
	creds      *fakeCredentialsClient
	metrics    *Metrics
	generation *GenerationServiceImpl
	dispatcher *Dispatcher
	lifecycle  *LifecycleServiceImpl
	bridge     *CredentialsBridge
	commands   *CommandServiceImpl
	admin      *AdminServiceImpl
	sleeps     []time.Duration
}

type envOptions struct {
	toggles Toggles
	steps   []filter.Step
}

func defaultToggles() Toggles {
	return Toggles{AutoGenerationEnabled: true, IDVEnforced: true, HTMLCertsEnabled: true}
}

func withToggles(t Toggles) func(*envOptions) {
	return func(o *envOptions) { o.toggles = t }
}

func withSteps(steps ...filter.Step) func(*envOptions) {
	return func(o *envOptions) { o.steps = steps }
}

func newTestEnv(t *testing.T, opts ...func(*envOptions)) *testEnv {
	t.Helper()

	o := envOptions{toggles: defaultToggles()}
	for _, opt := range opts {
		opt(&o)
	}

	raw, err := db.Open(db.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { raw.Close() })
	if err := db.SeedFixtures(raw, db.DriverSQLite); err != nil {
		t.Fatalf("failed to seed fixtures: %v", err)
	}
	sdb := sqlx.NewDb(raw, db.DriverSQLite)
	logger := logging.Discard()

	env := &testEnv{
		db:        sdb,
		certs:     sqlite.NewCertificateRepository(sdb),
		allowlist: sqlite.NewAllowlistRepository(sdb),
		queue:     sqlite.NewTaskQueue(sdb),
		templates: sqlite.NewTemplateRepository(sdb),
		learners:  sqlite.NewLearnerRepository(sdb),
		courses:   &countingCourses{CourseRepository: sqlite.NewCourseRepository(sdb)},
		captured:  &capturedEvents{},
		creds:     &fakeCredentialsClient{},
		metrics:   NewMetrics(),
	}
	learners := LearnerData{
		Enrollments:   env.learners,
		Grades:        env.learners,
		Verifications: env.learners,
		Profiles:      env.learners,
		Courses:       env.courses,
	}
	eventLog := sqlite.NewEventLogRepository(sdb)
	invalidations := sqlite.NewInvalidationRepository(sdb)

	env.bus = events.NewBus(logger)
	env.bus.Subscribe(events.EventLogSubscriber(eventLog))
	env.bus.Subscribe(env.captured)

	env.dispatcher = NewDispatcher(env.queue, DispatcherOptions{MaxRetries: 2}, env.metrics, logger)
	env.generation = NewGenerationService(env.certs, env.learners, filter.NewPipeline(o.steps, false, logger), env.bus, env.metrics, logger)

	env.bridge, err = NewCredentialsBridge(env.courses, learners, env.creds, env.dispatcher, 16, env.metrics, logger)
	if err != nil {
		t.Fatalf("failed to create bridge: %v", err)
	}
	env.bus.Subscribe(env.bridge)

	loader := NewContextLoader(env.certs, env.allowlist, invalidations, learners, o.toggles)
	env.lifecycle = NewLifecycleService(loader, env.generation, env.learners, env.dispatcher, env.bridge, env.metrics, logger)
	sleep := func(ctx context.Context, d time.Duration) error {
		env.sleeps = append(env.sleeps, d)
		return nil
	}
	env.commands = NewCommandService(env.certs, env.allowlist, env.templates, learners, env.lifecycle, env.bridge, env.dispatcher, sleep, logger)
	env.admin = NewAdminService(env.certs, env.allowlist, invalidations, sqlite.NewCommandConfigRepository(sdb), eventLog, env.learners, env.courses, env.lifecycle)

	env.dispatcher.Register(TaskGenerateCertificate, env.lifecycle.HandleGenerateTask)
	env.dispatcher.Register(TaskSendGrade, env.bridge.HandleSendGrade)
	env.dispatcher.Register(TaskUpdateCredential, env.bridge.HandleUpdateCredential)
	env.dispatcher.Register(TaskModifyCertificateTemplate, env.commands.HandleModifyTemplate)

	return env
}

// drain runs every runnable task.
func (e *testEnv) drain(t *testing.T) int {
	t.Helper()
	n, err := e.dispatcher.Drain(context.Background())
	if err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	return n
}

// cert returns the stored certificate, failing the test if absent.
func (e *testEnv) cert(t *testing.T, userID int64, courseKey string) *secondary.CertificateRecord {
	t.Helper()
	c, err := e.certs.Get(context.Background(), userID, courseKey)
	if err != nil {
		t.Fatalf("failed to get certificate: %v", err)
	}
	if c == nil {
		t.Fatalf("expected certificate for user %d in %s", userID, courseKey)
	}
	return c
}

// seedCert writes a certificate through the store.
func (e *testEnv) seedCert(t *testing.T, userID int64, courseKey string, fields secondary.CertificateFields) *secondary.CertificateRecord {
	t.Helper()
	if fields.Source == "" {
		fields.Source = "test"
	}
	res, err := e.certs.Upsert(context.Background(), userID, courseKey, fields)
	if err != nil {
		t.Fatalf("failed to seed certificate: %v", err)
	}
	return res.Certificate
}

func (e *testEnv) setVerification(t *testing.T, userID int64, status string) {
	t.Helper()
	if err := e.learners.SetVerificationStatus(context.Background(), userID, status); err != nil {
		t.Fatalf("failed to set verification: %v", err)
	}
}

// ============================================================================
// Fakes
// ============================================================================

// capturedEvents records published events.
type capturedEvents struct {
	mu     sync.Mutex
	events []secondary.CertificateEvent
}

func (c *capturedEvents) Name() string { return "capture" }

func (c *capturedEvents) Handle(_ context.Context, e secondary.CertificateEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *capturedEvents) count(signal string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.events {
		if e.SignalName == signal {
			n++
		}
	}
	return n
}

func (c *capturedEvents) last(signal string) *secondary.CertificateEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.events) - 1; i >= 0; i-- {
		if c.events[i].SignalName == signal {
			e := c.events[i]
			return &e
		}
	}
	return nil
}

// countingCourses counts program lookups to observe the bridge's cache.
type countingCourses struct {
	*sqlite.CourseRepository
	mu      sync.Mutex
	lookups int
}

func (c *countingCourses) ProgramsForCourse(ctx context.Context, courseKey string) ([]string, error) {
	c.mu.Lock()
	c.lookups++
	c.mu.Unlock()
	return c.CourseRepository.ProgramsForCourse(ctx, courseKey)
}

func (c *countingCourses) programLookups() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookups
}

// fakeCredentialsClient implements secondary.CredentialsClient for testing.
type fakeCredentialsClient struct {
	grades []secondary.CredentialsGrade
	certs  []secondary.CredentialsCertificate
	err    error
}

func (f *fakeCredentialsClient) PostGrade(_ context.Context, g secondary.CredentialsGrade) error {
	if f.err != nil {
		return f.err
	}
	f.grades = append(f.grades, g)
	return nil
}

func (f *fakeCredentialsClient) PostCertificate(_ context.Context, c secondary.CredentialsCertificate) error {
	if f.err != nil {
		return f.err
	}
	f.certs = append(f.certs, c)
	return nil
}

var _ secondary.CredentialsClient = (*fakeCredentialsClient)(nil)
