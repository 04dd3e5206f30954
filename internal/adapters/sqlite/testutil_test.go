// Package sqlite_test contains integration tests for the SQL repositories.
//
// # Schema Protection
//
// This file is the SINGLE POINT where the database schema is loaded for tests.
// All test setup functions use db.GetSchemaSQL() to ensure tests run against
// the authoritative schema, preventing drift between test and production.
//
// DO NOT hardcode CREATE TABLE statements in test files. Instead, use
// setupTestDB() and the seed* helpers.
package sqlite_test

import (
	"database/sql"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/example/certs/internal/db"
)

// setupTestDB creates an in-memory database with the authoritative schema.
// ":memory:" databases are per connection, so the pool is pinned to one.
func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	testDB, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	testDB.SetMaxOpenConns(1)

	// Use the authoritative schema from schema.go
	_, err = testDB.Exec(db.GetSchemaSQL())
	if err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	t.Cleanup(func() {
		testDB.Close()
	})

	return sqlx.NewDb(testDB, "sqlite3")
}

// seedUser inserts a test user.
func seedUser(t *testing.T, db *sqlx.DB, id int64, username, name string) {
	t.Helper()
	_, err := db.Exec("INSERT INTO users (id, username, email, name, is_active) VALUES (?, ?, ?, ?, 1)",
		id, username, username+"@example.com", name)
	if err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
}

// seedCertificate inserts a certificate row directly and returns its ID.
func seedCertificate(t *testing.T, db *sqlx.DB, userID int64, courseKey, status, mode, verifyUUID string) int64 {
	t.Helper()
	now := time.Now().UTC()
	var id int64
	err := db.QueryRow(`INSERT INTO generated_certificates
		(user_id, course_key, status, mode, grade, verify_uuid, download_url, download_uuid, created_at, modified_at)
		VALUES (?, ?, ?, ?, '0.9', ?, 'https://example.com/cert.pdf', 'dl-1', ?, ?) RETURNING id`,
		userID, courseKey, status, mode, verifyUUID, now, now,
	).Scan(&id)
	if err != nil {
		t.Fatalf("failed to seed certificate: %v", err)
	}
	return id
}

// seedCourse inserts a course overview.
func seedCourse(t *testing.T, db *sqlx.DB, courseKey, org string, htmlCerts bool) {
	t.Helper()
	_, err := db.Exec("INSERT INTO course_overviews (course_key, display_name, org, html_certs_enabled) VALUES (?, ?, ?, ?)",
		courseKey, "Demo "+courseKey, org, htmlCerts)
	if err != nil {
		t.Fatalf("failed to seed course: %v", err)
	}
}
