package db

import (
	"testing"
)

func TestOpen_RunsMigrations(t *testing.T) {
	database, err := Open(DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer database.Close()

	var version int
	if err := database.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version); err != nil {
		t.Fatalf("failed to read schema version: %v", err)
	}
	if version != LatestVersion() {
		t.Errorf("expected schema version %d, got %d", LatestVersion(), version)
	}

	var configs int
	if err := database.QueryRow("SELECT COUNT(*) FROM command_configurations WHERE enabled = 0").Scan(&configs); err != nil {
		t.Fatalf("failed to count command configurations: %v", err)
	}
	if configs != 5 {
		t.Errorf("expected 5 disabled command configurations, got %d", configs)
	}

	// Re-running is a no-op.
	if err := InitSchema(database, DriverSQLite); err != nil {
		t.Fatalf("second InitSchema failed: %v", err)
	}
	if err := database.QueryRow("SELECT COUNT(*) FROM command_configurations").Scan(&configs); err != nil {
		t.Fatalf("failed to count command configurations: %v", err)
	}
	if configs != 5 {
		t.Errorf("expected migrations to run once, got %d configuration rows", configs)
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	if _, err := Open("mysql", "x"); err == nil {
		t.Error("expected error for unsupported driver")
	}
	if _, err := Open(DriverPostgres, ""); err == nil {
		t.Error("expected error for postgres without DSN")
	}
}

func TestSeedFixtures(t *testing.T) {
	database, err := Open(DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer database.Close()

	if err := SeedFixtures(database, DriverSQLite); err != nil {
		t.Fatalf("SeedFixtures failed: %v", err)
	}

	var users int
	if err := database.QueryRow("SELECT COUNT(*) FROM users").Scan(&users); err != nil {
		t.Fatalf("failed to count users: %v", err)
	}
	if users != 5 {
		t.Errorf("expected 5 users, got %d", users)
	}

	if err := SeedFixtures(database, DriverSQLite); err == nil {
		t.Error("expected reseeding to fail on duplicate keys")
	}
}

func TestSchemaFor(t *testing.T) {
	if SchemaFor(DriverPostgres) != PostgresSchemaSQL {
		t.Error("expected postgres schema for pgx")
	}
	if SchemaFor(DriverSQLite) != GetSchemaSQL() {
		t.Error("expected sqlite schema for sqlite3")
	}
}

func TestMigrationV3_AddsIDVExemptToOlderDatabases(t *testing.T) {
	database, err := Open(DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer database.Close()

	// Roll the database back to v2.
	if _, err := database.Exec("ALTER TABLE course_overviews DROP COLUMN idv_exempt"); err != nil {
		t.Fatalf("failed to drop column: %v", err)
	}
	if _, err := database.Exec("DELETE FROM schema_version WHERE version = 3"); err != nil {
		t.Fatalf("failed to reset schema version: %v", err)
	}

	if err := InitSchema(database, DriverSQLite); err != nil {
		t.Fatalf("InitSchema failed: %v", err)
	}
	if _, err := database.Exec("INSERT INTO course_overviews (course_key, idv_exempt) VALUES ('course-v1:edX+NoIDV+2024', 1)"); err != nil {
		t.Errorf("expected idv_exempt column after migration: %v", err)
	}
}
