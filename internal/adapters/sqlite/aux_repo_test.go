package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/certs/internal/adapters/sqlite"
	"github.com/example/certs/internal/ports/secondary"
)

func TestAllowlistRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewAllowlistRepository(db)
	ctx := context.Background()

	entry := &secondary.AllowlistRecord{UserID: 42, CourseKey: demoCourse, Enabled: true, Notes: "staff"}
	if err := repo.Upsert(ctx, entry); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if entry.ID == 0 {
		t.Error("expected ID to be assigned")
	}

	got, err := repo.Get(ctx, 42, demoCourse)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil || !got.Enabled || got.Notes != "staff" {
		t.Fatalf("unexpected entry: %+v", got)
	}

	// Upsert of an existing entry updates in place.
	if err := repo.Upsert(ctx, &secondary.AllowlistRecord{UserID: 42, CourseKey: demoCourse, Enabled: false}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := repo.Upsert(ctx, &secondary.AllowlistRecord{UserID: 43, CourseKey: demoCourse, Enabled: true}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	all, err := repo.ListByCourse(ctx, demoCourse, false)
	if err != nil {
		t.Fatalf("ListByCourse failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 entries, got %d", len(all))
	}
	enabled, err := repo.ListByCourse(ctx, demoCourse, true)
	if err != nil {
		t.Fatalf("ListByCourse failed: %v", err)
	}
	if len(enabled) != 1 || enabled[0].UserID != 43 {
		t.Errorf("expected only user 43 enabled, got %+v", enabled)
	}

	if err := repo.Remove(ctx, 42, demoCourse); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := repo.Remove(ctx, 42, demoCourse); !errors.Is(err, secondary.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	got, _ = repo.Get(ctx, 42, demoCourse)
	if got != nil {
		t.Error("expected entry removed")
	}
}

func TestInvalidationRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewInvalidationRepository(db)
	ctx := context.Background()

	certID := seedCertificate(t, db, 42, demoCourse, "downloadable", "verified", "u")

	got, err := repo.GetActive(ctx, certID)
	if err != nil {
		t.Fatalf("GetActive failed: %v", err)
	}
	if got != nil {
		t.Fatal("expected no active invalidation")
	}

	record := &secondary.InvalidationRecord{CertificateID: certID, InvalidatorID: 1, Notes: "plagiarism"}
	if err := repo.Create(ctx, record); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err = repo.GetActive(ctx, certID)
	if err != nil {
		t.Fatalf("GetActive failed: %v", err)
	}
	if got == nil || got.Notes != "plagiarism" || !got.Active {
		t.Fatalf("unexpected invalidation: %+v", got)
	}

	if err := repo.Deactivate(ctx, certID); err != nil {
		t.Fatalf("Deactivate failed: %v", err)
	}
	got, _ = repo.GetActive(ctx, certID)
	if got != nil {
		t.Error("expected invalidation deactivated")
	}
}

func TestCommandConfigRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewCommandConfigRepository(db)
	ctx := context.Background()
	name := "CertificateGenerationCommandConfiguration"

	got, err := repo.Current(ctx, name)
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if got != nil {
		t.Fatal("expected no configuration")
	}

	if err := repo.Save(ctx, &secondary.CommandConfigRecord{Name: name, Enabled: false, Arguments: "--user 1"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := repo.Save(ctx, &secondary.CommandConfigRecord{Name: name, Enabled: true, Arguments: "--user 1 2 --course-key course-v1:edX+DemoX+2024"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err = repo.Current(ctx, name)
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if !got.Enabled || got.Arguments != "--user 1 2 --course-key course-v1:edX+DemoX+2024" {
		t.Errorf("expected newest row, got %+v", got)
	}
}

func TestTemplateRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewTemplateRepository(db)
	ctx := context.Background()

	_, err := db.Exec("INSERT INTO certificate_templates (id, name, template) VALUES (1, 'a', '<p>Old Org</p>'), (2, 'b', '<p>Other</p>')")
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	templates, err := repo.GetByIDs(ctx, []int64{1, 2, 3})
	if err != nil {
		t.Fatalf("GetByIDs failed: %v", err)
	}
	if len(templates) != 2 {
		t.Fatalf("expected 2 templates, got %d", len(templates))
	}

	if err := repo.UpdateTemplate(ctx, 1, "<p>New Org</p>"); err != nil {
		t.Fatalf("UpdateTemplate failed: %v", err)
	}
	templates, _ = repo.GetByIDs(ctx, []int64{1})
	if templates[0].Template != "<p>New Org</p>" {
		t.Errorf("expected updated body, got %q", templates[0].Template)
	}

	if err := repo.UpdateTemplate(ctx, 99, "x"); !errors.Is(err, secondary.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestEventLogRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewEventLogRepository(db)
	ctx := context.Background()

	events := []secondary.CertificateEvent{
		{SignalName: secondary.SignalCertificateChanged, User: secondary.EventUser{ID: 42}, Course: secondary.EventCourse{CourseKey: demoCourse}, CurrentStatus: "downloadable"},
		{SignalName: secondary.SignalCertificateCreated, User: secondary.EventUser{ID: 42}, Course: secondary.EventCourse{CourseKey: demoCourse}, CurrentStatus: "downloadable"},
		{SignalName: secondary.SignalCertificateChanged, User: secondary.EventUser{ID: 7}, Course: secondary.EventCourse{CourseKey: "course-v1:edX+Other+2024"}, Time: time.Now()},
	}
	for _, e := range events {
		if err := repo.Append(ctx, e); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	forCourse, err := repo.List(ctx, demoCourse, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(forCourse) != 2 {
		t.Fatalf("expected 2 events, got %d", len(forCourse))
	}
	if forCourse[0].SignalName != secondary.SignalCertificateCreated {
		t.Errorf("expected newest first, got %s", forCourse[0].SignalName)
	}

	counts, err := repo.CountBySignal(ctx)
	if err != nil {
		t.Fatalf("CountBySignal failed: %v", err)
	}
	if counts[secondary.SignalCertificateChanged] != 2 || counts[secondary.SignalCertificateCreated] != 1 {
		t.Errorf("unexpected counts: %v", counts)
	}
}

func TestLearnerRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewLearnerRepository(db)
	ctx := context.Background()

	seedUser(t, db, 42, "ada", "Ada Lovelace")

	profile, err := repo.GetProfile(ctx, 42)
	if err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}
	if profile.Username != "ada" || profile.Name != "Ada Lovelace" || !profile.IsActive {
		t.Errorf("unexpected profile: %+v", profile)
	}
	if _, err := repo.GetProfile(ctx, 1); !errors.Is(err, secondary.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := repo.SetEnrollment(ctx, &secondary.EnrollmentRecord{UserID: 42, CourseKey: demoCourse, Mode: "audit", IsActive: true}); err != nil {
		t.Fatalf("SetEnrollment failed: %v", err)
	}
	if err := repo.SetEnrollment(ctx, &secondary.EnrollmentRecord{UserID: 42, CourseKey: demoCourse, Mode: "verified", IsActive: true}); err != nil {
		t.Fatalf("SetEnrollment failed: %v", err)
	}
	enrollment, err := repo.GetEnrollment(ctx, 42, demoCourse)
	if err != nil {
		t.Fatalf("GetEnrollment failed: %v", err)
	}
	if enrollment.Mode != "verified" {
		t.Errorf("expected upgraded mode, got %q", enrollment.Mode)
	}
	active, err := repo.ListActiveEnrollments(ctx, 42)
	if err != nil {
		t.Fatalf("ListActiveEnrollments failed: %v", err)
	}
	if len(active) != 1 {
		t.Errorf("expected 1 active enrollment, got %d", len(active))
	}

	status, err := repo.VerificationStatus(ctx, 42)
	if err != nil {
		t.Fatalf("VerificationStatus failed: %v", err)
	}
	if status != secondary.VerificationNone {
		t.Errorf("expected none, got %q", status)
	}
	if err := repo.SetVerificationStatus(ctx, 42, secondary.VerificationApproved); err != nil {
		t.Fatalf("SetVerificationStatus failed: %v", err)
	}
	status, _ = repo.VerificationStatus(ctx, 42)
	if status != secondary.VerificationApproved {
		t.Errorf("expected approved, got %q", status)
	}

	modified := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := repo.SetGrade(ctx, &secondary.GradeRecord{UserID: 42, CourseKey: demoCourse, Percent: "0.87", LetterGrade: "B", Passed: true, ModifiedAt: modified}); err != nil {
		t.Fatalf("SetGrade failed: %v", err)
	}
	grade, err := repo.GetGrade(ctx, 42, demoCourse)
	if err != nil {
		t.Fatalf("GetGrade failed: %v", err)
	}
	if grade.Percent != "0.87" || !grade.Passed {
		t.Errorf("unexpected grade: %+v", grade)
	}

	inRange, err := repo.ListModifiedGrades(ctx, secondary.GradeFilters{
		ModifiedAfter:  modified.Add(-time.Hour),
		ModifiedBefore: modified.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("ListModifiedGrades failed: %v", err)
	}
	if len(inRange) != 1 {
		t.Errorf("expected 1 grade in range, got %d", len(inRange))
	}
	outOfRange, _ := repo.ListModifiedGrades(ctx, secondary.GradeFilters{ModifiedAfter: modified.Add(time.Hour)})
	if len(outOfRange) != 0 {
		t.Errorf("expected no grades after range, got %d", len(outOfRange))
	}

	if _, err := db.Exec("INSERT INTO retirements (user_id, state) VALUES (42, 'complete'), (7, 'pending')"); err != nil {
		t.Fatalf("seed retirements failed: %v", err)
	}
	retired, err := repo.ListRetiredUserIDs(ctx)
	if err != nil {
		t.Fatalf("ListRetiredUserIDs failed: %v", err)
	}
	if len(retired) != 1 || retired[0] != 42 {
		t.Errorf("expected [42], got %v", retired)
	}
}

func TestCourseRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewCourseRepository(db)
	ctx := context.Background()

	seedCourse(t, db, demoCourse, "edX", true)
	seedCourse(t, db, "course-v1:MITx+6.00x+2024", "MITx", false)
	if _, err := db.Exec("INSERT INTO beta_testers (user_id, course_key) VALUES (5, ?)", demoCourse); err != nil {
		t.Fatalf("seed beta failed: %v", err)
	}
	if _, err := db.Exec("INSERT INTO site_orgs (site, org) VALUES ('learn.example.com', 'edX')"); err != nil {
		t.Fatalf("seed site failed: %v", err)
	}
	if _, err := db.Exec("INSERT INTO program_courses (program_uuid, course_key) VALUES ('prog-1', ?)", demoCourse); err != nil {
		t.Fatalf("seed program failed: %v", err)
	}

	overview, err := repo.GetOverview(ctx, demoCourse)
	if err != nil {
		t.Fatalf("GetOverview failed: %v", err)
	}
	if overview == nil || !overview.HTMLCertsEnabled || overview.Org != "edX" {
		t.Errorf("unexpected overview: %+v", overview)
	}
	missing, err := repo.GetOverview(ctx, "course-v1:None+X+1")
	if err != nil || missing != nil {
		t.Errorf("expected nil overview, got %+v (err %v)", missing, err)
	}

	beta, err := repo.IsBetaTester(ctx, 5, demoCourse)
	if err != nil || !beta {
		t.Errorf("expected beta tester, got %v (err %v)", beta, err)
	}
	beta, _ = repo.IsBetaTester(ctx, 6, demoCourse)
	if beta {
		t.Error("expected user 6 not to be a beta tester")
	}

	orgs, err := repo.OrgsForSite(ctx, "learn.example.com")
	if err != nil || len(orgs) != 1 || orgs[0] != "edX" {
		t.Errorf("unexpected orgs: %v (err %v)", orgs, err)
	}
	keys, err := repo.CourseKeysForOrgs(ctx, orgs)
	if err != nil || len(keys) != 1 || keys[0] != demoCourse {
		t.Errorf("unexpected course keys: %v (err %v)", keys, err)
	}

	programs, err := repo.ProgramsForCourse(ctx, demoCourse)
	if err != nil || len(programs) != 1 {
		t.Errorf("expected one program, got %v (err %v)", programs, err)
	}
}
