package db

// SchemaSQL is the complete schema for fresh SQLite installs.
// This schema reflects the current state after all migrations.
//
// # Schema Drift Protection
//
// This is the SINGLE SOURCE OF TRUTH for the SQLite schema. All tests use
// this schema via GetSchemaSQL(). If repository code references a column
// that doesn't exist here, tests fail immediately with "no such column".
//
// PostgresSchemaSQL mirrors this schema for the pgx driver. Keep the two in
// sync: same tables, same columns, same unique constraints.
const SchemaSQL = `
-- Users (collaborator data: accounts and profiles)
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	email TEXT NOT NULL DEFAULT '',
	name TEXT NOT NULL DEFAULT '',
	is_active BOOLEAN NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS retirements (
	user_id INTEGER PRIMARY KEY,
	state TEXT NOT NULL CHECK(state IN ('pending', 'complete')) DEFAULT 'pending',
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Enrollments, grades and identity verification (collaborator data)
CREATE TABLE IF NOT EXISTS enrollments (
	user_id INTEGER NOT NULL,
	course_key TEXT NOT NULL,
	mode TEXT NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT 1,
	PRIMARY KEY (user_id, course_key)
);

CREATE TABLE IF NOT EXISTS grades (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL,
	course_key TEXT NOT NULL,
	percent TEXT NOT NULL DEFAULT '',
	letter_grade TEXT NOT NULL DEFAULT '',
	passed BOOLEAN NOT NULL DEFAULT 0,
	modified_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(user_id, course_key)
);

CREATE INDEX IF NOT EXISTS idx_grades_modified ON grades(modified_at);

CREATE TABLE IF NOT EXISTS verifications (
	user_id INTEGER PRIMARY KEY,
	status TEXT NOT NULL CHECK(status IN ('none', 'pending', 'approved', 'denied', 'expired')) DEFAULT 'none',
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Course metadata (collaborator data)
CREATE TABLE IF NOT EXISTS course_overviews (
	course_key TEXT PRIMARY KEY,
	display_name TEXT NOT NULL DEFAULT '',
	org TEXT NOT NULL DEFAULT '',
	html_certs_enabled BOOLEAN NOT NULL DEFAULT 1,
	self_paced BOOLEAN NOT NULL DEFAULT 0,
	idv_exempt BOOLEAN NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS beta_testers (
	user_id INTEGER NOT NULL,
	course_key TEXT NOT NULL,
	PRIMARY KEY (user_id, course_key)
);

CREATE TABLE IF NOT EXISTS program_courses (
	program_uuid TEXT NOT NULL,
	course_key TEXT NOT NULL,
	PRIMARY KEY (program_uuid, course_key)
);

CREATE TABLE IF NOT EXISTS site_orgs (
	site TEXT NOT NULL,
	org TEXT NOT NULL,
	PRIMARY KEY (site, org)
);

-- Generated certificates (one per user and course run)
CREATE TABLE IF NOT EXISTS generated_certificates (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL,
	course_key TEXT NOT NULL,
	status TEXT NOT NULL,
	mode TEXT NOT NULL,
	grade TEXT NOT NULL DEFAULT '',
	verify_uuid TEXT NOT NULL DEFAULT '',
	download_uuid TEXT NOT NULL DEFAULT '',
	download_url TEXT NOT NULL DEFAULT '',
	cert_key TEXT NOT NULL DEFAULT '',
	name TEXT NOT NULL DEFAULT '',
	error_reason TEXT NOT NULL DEFAULT '',
	distinction BOOLEAN NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	modified_at DATETIME NOT NULL,
	UNIQUE(user_id, course_key)
);

CREATE INDEX IF NOT EXISTS idx_certificates_status ON generated_certificates(status);
CREATE INDEX IF NOT EXISTS idx_certificates_course ON generated_certificates(course_key);
CREATE INDEX IF NOT EXISTS idx_certificates_modified ON generated_certificates(modified_at);

CREATE TABLE IF NOT EXISTS certificate_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	certificate_id INTEGER NOT NULL,
	status TEXT NOT NULL,
	mode TEXT NOT NULL,
	grade TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	FOREIGN KEY (certificate_id) REFERENCES generated_certificates(id)
);

CREATE INDEX IF NOT EXISTS idx_certificate_history_cert ON certificate_history(certificate_id);

CREATE TABLE IF NOT EXISTS certificate_allowlist (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL,
	course_key TEXT NOT NULL,
	enabled BOOLEAN NOT NULL DEFAULT 1,
	notes TEXT NOT NULL DEFAULT '',
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(user_id, course_key)
);

CREATE TABLE IF NOT EXISTS certificate_invalidations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	certificate_id INTEGER NOT NULL,
	invalidator_id INTEGER NOT NULL DEFAULT 0,
	notes TEXT NOT NULL DEFAULT '',
	active BOOLEAN NOT NULL DEFAULT 1,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (certificate_id) REFERENCES generated_certificates(id)
);

CREATE INDEX IF NOT EXISTS idx_invalidations_cert ON certificate_invalidations(certificate_id);

CREATE TABLE IF NOT EXISTS certificate_templates (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	template TEXT NOT NULL DEFAULT '',
	is_active BOOLEAN NOT NULL DEFAULT 1,
	modified_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Batch command configuration rows (newest row per name is current)
CREATE TABLE IF NOT EXISTS command_configurations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	enabled BOOLEAN NOT NULL DEFAULT 0,
	arguments TEXT NOT NULL DEFAULT '',
	changed_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_command_configurations_name ON command_configurations(name);

-- Emitted lifecycle events
CREATE TABLE IF NOT EXISTS certificate_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	signal_name TEXT NOT NULL,
	user_id INTEGER NOT NULL,
	course_key TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT '',
	payload TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_certificate_events_course ON certificate_events(course_key);

-- Persistent task queue
CREATE TABLE IF NOT EXISTS tasks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	kind TEXT NOT NULL,
	payload TEXT NOT NULL,
	ordering_key TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL CHECK(status IN ('queued', 'running', 'done', 'failed')) DEFAULT 'queued',
	attempts INTEGER NOT NULL DEFAULT 0,
	run_at DATETIME NOT NULL,
	claimed_at DATETIME,
	last_error TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_runnable ON tasks(status, run_at);
CREATE INDEX IF NOT EXISTS idx_tasks_ordering ON tasks(ordering_key, status);
`

// PostgresSchemaSQL is the Postgres rendition of SchemaSQL.
const PostgresSchemaSQL = `
CREATE TABLE IF NOT EXISTS users (
	id BIGINT PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	email TEXT NOT NULL DEFAULT '',
	name TEXT NOT NULL DEFAULT '',
	is_active BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS retirements (
	user_id BIGINT PRIMARY KEY,
	state TEXT NOT NULL CHECK(state IN ('pending', 'complete')) DEFAULT 'pending',
	updated_at TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS enrollments (
	user_id BIGINT NOT NULL,
	course_key TEXT NOT NULL,
	mode TEXT NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	PRIMARY KEY (user_id, course_key)
);

CREATE TABLE IF NOT EXISTS grades (
	id BIGSERIAL PRIMARY KEY,
	user_id BIGINT NOT NULL,
	course_key TEXT NOT NULL,
	percent TEXT NOT NULL DEFAULT '',
	letter_grade TEXT NOT NULL DEFAULT '',
	passed BOOLEAN NOT NULL DEFAULT FALSE,
	modified_at TIMESTAMPTZ DEFAULT NOW(),
	UNIQUE(user_id, course_key)
);

CREATE INDEX IF NOT EXISTS idx_grades_modified ON grades(modified_at);

CREATE TABLE IF NOT EXISTS verifications (
	user_id BIGINT PRIMARY KEY,
	status TEXT NOT NULL CHECK(status IN ('none', 'pending', 'approved', 'denied', 'expired')) DEFAULT 'none',
	updated_at TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS course_overviews (
	course_key TEXT PRIMARY KEY,
	display_name TEXT NOT NULL DEFAULT '',
	org TEXT NOT NULL DEFAULT '',
	html_certs_enabled BOOLEAN NOT NULL DEFAULT TRUE,
	self_paced BOOLEAN NOT NULL DEFAULT FALSE,
	idv_exempt BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS beta_testers (
	user_id BIGINT NOT NULL,
	course_key TEXT NOT NULL,
	PRIMARY KEY (user_id, course_key)
);

CREATE TABLE IF NOT EXISTS program_courses (
	program_uuid TEXT NOT NULL,
	course_key TEXT NOT NULL,
	PRIMARY KEY (program_uuid, course_key)
);

CREATE TABLE IF NOT EXISTS site_orgs (
	site TEXT NOT NULL,
	org TEXT NOT NULL,
	PRIMARY KEY (site, org)
);

CREATE TABLE IF NOT EXISTS generated_certificates (
	id BIGSERIAL PRIMARY KEY,
	user_id BIGINT NOT NULL,
	course_key TEXT NOT NULL,
	status TEXT NOT NULL,
	mode TEXT NOT NULL,
	grade TEXT NOT NULL DEFAULT '',
	verify_uuid TEXT NOT NULL DEFAULT '',
	download_uuid TEXT NOT NULL DEFAULT '',
	download_url TEXT NOT NULL DEFAULT '',
	cert_key TEXT NOT NULL DEFAULT '',
	name TEXT NOT NULL DEFAULT '',
	error_reason TEXT NOT NULL DEFAULT '',
	distinction BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL,
	modified_at TIMESTAMPTZ NOT NULL,
	UNIQUE(user_id, course_key)
);

CREATE INDEX IF NOT EXISTS idx_certificates_status ON generated_certificates(status);
CREATE INDEX IF NOT EXISTS idx_certificates_course ON generated_certificates(course_key);
CREATE INDEX IF NOT EXISTS idx_certificates_modified ON generated_certificates(modified_at);

CREATE TABLE IF NOT EXISTS certificate_history (
	id BIGSERIAL PRIMARY KEY,
	certificate_id BIGINT NOT NULL REFERENCES generated_certificates(id),
	status TEXT NOT NULL,
	mode TEXT NOT NULL,
	grade TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_certificate_history_cert ON certificate_history(certificate_id);

CREATE TABLE IF NOT EXISTS certificate_allowlist (
	id BIGSERIAL PRIMARY KEY,
	user_id BIGINT NOT NULL,
	course_key TEXT NOT NULL,
	enabled BOOLEAN NOT NULL DEFAULT TRUE,
	notes TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ DEFAULT NOW(),
	UNIQUE(user_id, course_key)
);

CREATE TABLE IF NOT EXISTS certificate_invalidations (
	id BIGSERIAL PRIMARY KEY,
	certificate_id BIGINT NOT NULL REFERENCES generated_certificates(id),
	invalidator_id BIGINT NOT NULL DEFAULT 0,
	notes TEXT NOT NULL DEFAULT '',
	active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_invalidations_cert ON certificate_invalidations(certificate_id);

CREATE TABLE IF NOT EXISTS certificate_templates (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	template TEXT NOT NULL DEFAULT '',
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	modified_at TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS command_configurations (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	enabled BOOLEAN NOT NULL DEFAULT FALSE,
	arguments TEXT NOT NULL DEFAULT '',
	changed_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_command_configurations_name ON command_configurations(name);

CREATE TABLE IF NOT EXISTS certificate_events (
	id BIGSERIAL PRIMARY KEY,
	signal_name TEXT NOT NULL,
	user_id BIGINT NOT NULL,
	course_key TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT '',
	payload TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_certificate_events_course ON certificate_events(course_key);

CREATE TABLE IF NOT EXISTS tasks (
	id BIGSERIAL PRIMARY KEY,
	kind TEXT NOT NULL,
	payload TEXT NOT NULL,
	ordering_key TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL CHECK(status IN ('queued', 'running', 'done', 'failed')) DEFAULT 'queued',
	attempts INTEGER NOT NULL DEFAULT 0,
	run_at TIMESTAMPTZ NOT NULL,
	claimed_at TIMESTAMPTZ,
	last_error TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_runnable ON tasks(status, run_at);
CREATE INDEX IF NOT EXISTS idx_tasks_ordering ON tasks(ordering_key, status);
`

// GetSchemaSQL returns the authoritative SQLite schema for use by tests.
// Tests should use this instead of hardcoding their own schema to prevent drift.
func GetSchemaSQL() string {
	return SchemaSQL
}
