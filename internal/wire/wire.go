// Package wire provides dependency injection for the certs application.
// It creates singleton services with lazy initialization.
package wire

import (
	"database/sql"
	"log"
	"log/slog"
	"os"
	"sync"

	"github.com/jmoiron/sqlx"

	"github.com/example/certs/internal/adapters/credentials"
	"github.com/example/certs/internal/adapters/events"
	"github.com/example/certs/internal/adapters/sqlite"
	"github.com/example/certs/internal/app"
	"github.com/example/certs/internal/config"
	"github.com/example/certs/internal/db"
	"github.com/example/certs/internal/filter"
	"github.com/example/certs/internal/logging"
	"github.com/example/certs/internal/ports/primary"
	"github.com/example/certs/internal/ports/secondary"
)

var (
	cfg               *config.Config
	logger            *slog.Logger
	database          *sql.DB
	metrics           *app.Metrics
	bus               *events.Bus
	dispatcher        *app.Dispatcher
	generationService primary.GenerationService
	lifecycleService  primary.LifecycleService
	commandService    primary.CommandService
	adminService      primary.AdminService
	commandConfigs    secondary.CommandConfigRepository
	once              sync.Once
)

// Config returns the resolved configuration.
func Config() *config.Config {
	once.Do(initServices)
	return cfg
}

// Logger returns the shared structured logger.
func Logger() *slog.Logger {
	once.Do(initServices)
	return logger
}

// DB returns the raw database handle.
func DB() *sql.DB {
	once.Do(initServices)
	return database
}

// Metrics returns the process counters.
func Metrics() *app.Metrics {
	once.Do(initServices)
	return metrics
}

// Bus returns the lifecycle event bus.
func Bus() *events.Bus {
	once.Do(initServices)
	return bus
}

// Dispatcher returns the task dispatcher with every handler registered.
func Dispatcher() *app.Dispatcher {
	once.Do(initServices)
	return dispatcher
}

// GenerationService returns the singleton GenerationService instance.
func GenerationService() primary.GenerationService {
	once.Do(initServices)
	return generationService
}

// LifecycleService returns the singleton LifecycleService instance.
func LifecycleService() primary.LifecycleService {
	once.Do(initServices)
	return lifecycleService
}

// CommandService returns the singleton CommandService instance.
func CommandService() primary.CommandService {
	once.Do(initServices)
	return commandService
}

// AdminService returns the singleton AdminService instance.
func AdminService() primary.AdminService {
	once.Do(initServices)
	return adminService
}

// CommandConfigs returns the repository backing --args-from-database.
func CommandConfigs() secondary.CommandConfigRepository {
	once.Do(initServices)
	return commandConfigs
}

// initServices initializes all services and their dependencies.
// This is called once via sync.Once.
func initServices() {
	wd, err := os.Getwd()
	if err != nil {
		log.Fatalf("failed to resolve working directory: %v", err)
	}
	cfg, err = config.Load(wd)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err = logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		log.Fatalf("failed to configure logging: %v", err)
	}

	database, err = db.Open(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}
	sdb := sqlx.NewDb(database, driverName(cfg.DatabaseDriver))

	// Repository adapters (secondary ports)
	certRepo := sqlite.NewCertificateRepository(sdb)
	allowlistRepo := sqlite.NewAllowlistRepository(sdb)
	invalidationRepo := sqlite.NewInvalidationRepository(sdb)
	templateRepo := sqlite.NewTemplateRepository(sdb)
	eventLogRepo := sqlite.NewEventLogRepository(sdb)
	learnerRepo := sqlite.NewLearnerRepository(sdb)
	courseRepo := sqlite.NewCourseRepository(sdb)
	queue := sqlite.NewTaskQueue(sdb)
	commandConfigs = sqlite.NewCommandConfigRepository(sdb)

	learners := app.LearnerData{
		Enrollments:   learnerRepo,
		Grades:        learnerRepo,
		Verifications: learnerRepo,
		Profiles:      learnerRepo,
		Courses:       courseRepo,
	}

	pipeline, err := filter.NewRegistry().Build(cfg.FilterSteps, cfg.FilterFailSilently, logger)
	if err != nil {
		log.Fatalf("failed to build generation filters: %v", err)
	}

	metrics = app.NewMetrics()
	metrics.Publish("certs")

	bus = events.NewBus(logger)
	bus.Subscribe(events.EventLogSubscriber(eventLogRepo))

	dispatcher = app.NewDispatcher(queue, app.DispatcherOptions{
		Concurrency:  cfg.Concurrency,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff(),
		PollInterval: cfg.PollInterval(),
	}, metrics, logger)

	generation := app.NewGenerationService(certRepo, learnerRepo, pipeline, bus, metrics, logger)

	bridge, err := app.NewCredentialsBridge(courseRepo, learners, credentialsClient(cfg), dispatcher, cfg.ProgramCacheSize, metrics, logger)
	if err != nil {
		log.Fatalf("failed to initialize credentials bridge: %v", err)
	}
	bus.Subscribe(bridge)

	loader := app.NewContextLoader(certRepo, allowlistRepo, invalidationRepo, learners, app.Toggles{
		AutoGenerationEnabled:     cfg.AutoGenerationEnabled,
		IDVEnforced:               cfg.IDVEnforced,
		HTMLCertsEnabled:          cfg.HTMLCertsEnabled,
		HonorCertificatesDisabled: cfg.HonorCertificatesDisabled,
	})
	lifecycle := app.NewLifecycleService(loader, generation, learnerRepo, dispatcher, bridge, metrics, logger)
	commands := app.NewCommandService(certRepo, allowlistRepo, templateRepo, learners, lifecycle, bridge, dispatcher, app.SleepContext, logger)

	dispatcher.Register(app.TaskGenerateCertificate, lifecycle.HandleGenerateTask)
	dispatcher.Register(app.TaskSendGrade, bridge.HandleSendGrade)
	dispatcher.Register(app.TaskUpdateCredential, bridge.HandleUpdateCredential)
	dispatcher.Register(app.TaskModifyCertificateTemplate, commands.HandleModifyTemplate)

	generationService = generation
	lifecycleService = lifecycle
	commandService = commands
	adminService = app.NewAdminService(certRepo, allowlistRepo, invalidationRepo, commandConfigs, eventLogRepo, learnerRepo, courseRepo, lifecycle)
}

// credentialsClient returns nil when no credentials service is configured.
// The nil must be an untyped interface so the bridge can detect it.
func credentialsClient(c *config.Config) secondary.CredentialsClient {
	if c.CredentialsURL == "" {
		return nil
	}
	return credentials.NewClient(c.CredentialsURL, c.CredentialsToken, c.CredentialsTimeout())
}

func driverName(driver string) string {
	if driver == "" {
		return db.DriverSQLite
	}
	return driver
}
