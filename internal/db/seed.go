package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// DemoCourseKey is the course run used by the development fixtures.
const DemoCourseKey = "course-v1:edX+DemoX+2024"

// SeedFixtures populates the database with development fixtures covering
// the main eligibility paths: a passing verified learner, an allowlisted
// failing learner, an honor learner without verification, a beta tester,
// and a learner whose retirement has completed.
func SeedFixtures(database *sql.DB, driver string) error {
	now := time.Now().UTC()
	exec := func(query string, args ...any) error {
		_, err := database.Exec(sqlx.Rebind(sqlx.BindType(driver), query), args...)
		return err
	}

	// Users
	users := []struct {
		id             int64
		username, name string
	}{
		{42, "ada", "Ada Lovelace"},
		{43, "grace", "Grace Hopper"},
		{44, "alan", ""},
		{45, "barbara", "Barbara Liskov"},
		{46, "retired_user_46", "Edsger Dijkstra"},
	}
	for _, u := range users {
		if err := exec(
			"INSERT INTO users (id, username, email, name, is_active) VALUES (?, ?, ?, ?, ?)",
			u.id, u.username, u.username+"@example.com", u.name, true,
		); err != nil {
			return fmt.Errorf("seed users: %w", err)
		}
	}

	// Courses
	courses := []struct {
		key, name, org string
		htmlCerts      bool
	}{
		{DemoCourseKey, "Demo Course", "edX", true},
		{"course-v1:edX+HonorX+2024", "Honor Course", "edX", true},
		{"ccx-v1:edX+DemoX+2024+ccx@3", "Demo CCX", "edX", true},
		{"course-v1:MITx+6.00x+2024", "Intro to CS", "MITx", false},
	}
	for _, c := range courses {
		if err := exec(
			"INSERT INTO course_overviews (course_key, display_name, org, html_certs_enabled, self_paced) VALUES (?, ?, ?, ?, ?)",
			c.key, c.name, c.org, c.htmlCerts, false,
		); err != nil {
			return fmt.Errorf("seed courses: %w", err)
		}
	}

	// Enrollments
	enrollments := []struct {
		userID int64
		course string
		mode   string
	}{
		{42, DemoCourseKey, "verified"},
		{43, DemoCourseKey, "verified"},
		{44, "course-v1:edX+HonorX+2024", "honor"},
		{45, DemoCourseKey, "verified"},
		{46, DemoCourseKey, "verified"},
	}
	for _, e := range enrollments {
		if err := exec(
			"INSERT INTO enrollments (user_id, course_key, mode, is_active) VALUES (?, ?, ?, ?)",
			e.userID, e.course, e.mode, true,
		); err != nil {
			return fmt.Errorf("seed enrollments: %w", err)
		}
	}

	// Grades
	grades := []struct {
		userID  int64
		course  string
		percent string
		letter  string
		passed  bool
	}{
		{42, DemoCourseKey, "0.87", "B", true},
		{43, DemoCourseKey, "0.31", "", false},
		{44, "course-v1:edX+HonorX+2024", "0.92", "A", true},
		{45, DemoCourseKey, "0.95", "A", true},
		{46, DemoCourseKey, "0.80", "B", true},
	}
	for _, g := range grades {
		if err := exec(
			"INSERT INTO grades (user_id, course_key, percent, letter_grade, passed, modified_at) VALUES (?, ?, ?, ?, ?, ?)",
			g.userID, g.course, g.percent, g.letter, g.passed, now,
		); err != nil {
			return fmt.Errorf("seed grades: %w", err)
		}
	}

	// Identity verification
	for _, v := range []struct {
		userID int64
		status string
	}{
		{42, "approved"},
		{43, "approved"},
		{44, "none"},
		{45, "approved"},
		{46, "approved"},
	} {
		if err := exec("INSERT INTO verifications (user_id, status) VALUES (?, ?)", v.userID, v.status); err != nil {
			return fmt.Errorf("seed verifications: %w", err)
		}
	}

	if err := exec("INSERT INTO certificate_allowlist (user_id, course_key, enabled, notes) VALUES (?, ?, ?, ?)",
		43, DemoCourseKey, true, "course staff"); err != nil {
		return fmt.Errorf("seed allowlist: %w", err)
	}
	if err := exec("INSERT INTO beta_testers (user_id, course_key) VALUES (?, ?)", 45, DemoCourseKey); err != nil {
		return fmt.Errorf("seed beta testers: %w", err)
	}
	if err := exec("INSERT INTO retirements (user_id, state) VALUES (?, ?)", 46, "complete"); err != nil {
		return fmt.Errorf("seed retirements: %w", err)
	}
	if err := exec("INSERT INTO program_courses (program_uuid, course_key) VALUES (?, ?)",
		"6f9b1a2c8d7e4f30a1b2c3d4e5f60718", DemoCourseKey); err != nil {
		return fmt.Errorf("seed programs: %w", err)
	}
	if err := exec("INSERT INTO site_orgs (site, org) VALUES (?, ?)", "learn.example.com", "edX"); err != nil {
		return fmt.Errorf("seed site orgs: %w", err)
	}
	if err := exec("INSERT INTO certificate_templates (name, template, is_active) VALUES (?, ?, ?)",
		"default", "<h1>Certificate of Achievement</h1><p>edX Demo Org</p>", true); err != nil {
		return fmt.Errorf("seed templates: %w", err)
	}

	return nil
}
