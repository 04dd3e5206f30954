package db

import (
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Migration represents a database migration
type Migration struct {
	Version int
	Name    string
	Up      func(tx *sql.Tx, driver string) error
}

// migrations is the list of all migrations in order
var migrations = []Migration{
	{
		Version: 1,
		Name:    "create_certificate_schema",
		Up: func(tx *sql.Tx, driver string) error {
			_, err := tx.Exec(SchemaFor(driver))
			return err
		},
	},
	{
		Version: 2,
		Name:    "seed_default_command_configurations",
		Up:      migrationV2,
	},
	{
		Version: 3,
		Name:    "add_course_idv_exempt",
		Up:      migrationV3,
	},
}

// LatestVersion returns the highest known migration version.
func LatestVersion() int {
	return migrations[len(migrations)-1].Version
}

// InitSchema creates the schema_version table and runs pending migrations.
func InitSchema(database *sql.DB, driver string) error {
	_, err := database.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	return RunMigrations(database, driver)
}

// RunMigrations executes all pending migrations
func RunMigrations(database *sql.DB, driver string) error {
	var currentVersion int
	err := database.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, err := database.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", migration.Version, err)
		}

		if err := migration.Up(tx, driver); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", migration.Version, migration.Name, err)
		}

		_, err = tx.Exec(sqlx.Rebind(sqlx.BindType(driver), "INSERT INTO schema_version (version) VALUES (?)"), migration.Version)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// migrationV2 inserts disabled configuration rows for every DB-backed command
// so operators can enable them with `certs config set`.
func migrationV2(tx *sql.Tx, driver string) error {
	names := []string{
		"CertificateGenerationCommandConfiguration",
		"AllowListGenerationConfiguration",
		"NotifyCredentialsConfig",
		"ModifiedCertificateTemplateCommandConfiguration",
		"PurgeReferencestoPDFCertificatesCommandConfiguration",
	}
	query := sqlx.Rebind(sqlx.BindType(driver),
		"INSERT INTO command_configurations (name, enabled, arguments, changed_at) VALUES (?, ?, '', CURRENT_TIMESTAMP)")
	for _, name := range names {
		if _, err := tx.Exec(query, name, false); err != nil {
			return fmt.Errorf("seed %s: %w", name, err)
		}
	}
	return nil
}

// migrationV3 adds the course-level flag that lifts the identity
// verification requirement. Databases created at v1 with the current schema
// already have the column.
func migrationV3(tx *sql.Tx, driver string) error {
	exists, err := hasColumn(tx, driver, "course_overviews", "idv_exempt")
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	def := "0"
	if driver == DriverPostgres {
		def = "FALSE"
	}
	if _, err := tx.Exec("ALTER TABLE course_overviews ADD COLUMN idv_exempt BOOLEAN NOT NULL DEFAULT " + def); err != nil {
		return fmt.Errorf("failed to add idv_exempt column: %w", err)
	}
	return nil
}

func hasColumn(tx *sql.Tx, driver, table, column string) (bool, error) {
	query := "SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?"
	if driver == DriverPostgres {
		query = "SELECT COUNT(*) FROM information_schema.columns WHERE table_name = $1 AND column_name = $2"
	}
	var n int
	if err := tx.QueryRow(query, table, column).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to inspect %s.%s: %w", table, column, err)
	}
	return n > 0, nil
}
