package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/certs/internal/adapters/sqlite"
	"github.com/example/certs/internal/ports/secondary"
)

const demoCourse = "course-v1:edX+DemoX+2024"

func downloadableFields(grade string) secondary.CertificateFields {
	return secondary.CertificateFields{
		Status: "downloadable",
		Mode:   "verified",
		Grade:  grade,
		Name:   "Ada Lovelace",
		Source: "test",
	}
}

func TestCertificateRepository_Upsert_Create(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewCertificateRepository(db)
	ctx := context.Background()

	result, err := repo.Upsert(ctx, 42, demoCourse, downloadableFields("0.87"))
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if !result.Created || !result.Changed {
		t.Errorf("expected created and changed, got created=%v changed=%v", result.Created, result.Changed)
	}
	if result.PreviousStatus != "" {
		t.Errorf("expected empty previous status, got %q", result.PreviousStatus)
	}

	cert := result.Certificate
	if cert.ID == 0 {
		t.Error("expected ID to be assigned")
	}
	if len(cert.VerifyUUID) != 32 {
		t.Errorf("expected 32-char verify uuid, got %q", cert.VerifyUUID)
	}

	stored, err := repo.Get(ctx, 42, demoCourse)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if stored == nil {
		t.Fatal("expected stored certificate")
	}
	if stored.Status != "downloadable" || stored.Mode != "verified" || stored.Grade != "0.87" {
		t.Errorf("unexpected stored certificate: %+v", stored)
	}
	if stored.VerifyUUID != cert.VerifyUUID {
		t.Errorf("expected verify uuid %q, got %q", cert.VerifyUUID, stored.VerifyUUID)
	}
	if stored.Name != "Ada Lovelace" {
		t.Errorf("expected name 'Ada Lovelace', got %q", stored.Name)
	}
}

func TestCertificateRepository_Upsert_PreservesVerifyUUID(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewCertificateRepository(db)
	ctx := context.Background()

	first, err := repo.Upsert(ctx, 42, demoCourse, downloadableFields("0.87"))
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	fields := downloadableFields("0.91")
	fields.VerifyUUID = "ffffffffffffffffffffffffffffffff"
	second, err := repo.Upsert(ctx, 42, demoCourse, fields)
	if err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}

	if second.Created {
		t.Error("expected update, got create")
	}
	if second.PreviousStatus != "downloadable" {
		t.Errorf("expected previous status downloadable, got %q", second.PreviousStatus)
	}
	if second.Certificate.ID != first.Certificate.ID {
		t.Errorf("expected same record, got IDs %d and %d", first.Certificate.ID, second.Certificate.ID)
	}
	if second.Certificate.VerifyUUID != first.Certificate.VerifyUUID {
		t.Errorf("verify uuid changed from %q to %q", first.Certificate.VerifyUUID, second.Certificate.VerifyUUID)
	}
	if second.Certificate.Grade != "0.91" {
		t.Errorf("expected grade 0.91, got %q", second.Certificate.Grade)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM generated_certificates WHERE user_id = 42").Scan(&count); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected exactly one record, got %d", count)
	}
}

func TestCertificateRepository_Upsert_Unchanged(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewCertificateRepository(db)
	ctx := context.Background()

	first, err := repo.Upsert(ctx, 42, demoCourse, downloadableFields("0.87"))
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	fields := downloadableFields("0.87")
	fields.VerifyUUID = first.Certificate.VerifyUUID
	second, err := repo.Upsert(ctx, 42, demoCourse, fields)
	if err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}
	if second.Changed {
		t.Error("expected identical upsert to report no change")
	}

	history, err := repo.History(ctx, first.Certificate.ID)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("expected 1 history row, got %d", len(history))
	}
}

func TestCertificateRepository_Upsert_Validation(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewCertificateRepository(db)
	ctx := context.Background()

	tests := []struct {
		name   string
		fields secondary.CertificateFields
	}{
		{"unknown status", secondary.CertificateFields{Status: "shiny", Mode: "verified"}},
		{"empty mode", secondary.CertificateFields{Status: "notpassing", Grade: "0.1"}},
		{"downloadable without grade", secondary.CertificateFields{Status: "downloadable", Mode: "verified"}},
		{"downloadable in audit", secondary.CertificateFields{Status: "downloadable", Mode: "audit", Grade: "0.9"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := repo.Upsert(ctx, 7, demoCourse, tt.fields)
			if !errors.Is(err, secondary.ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}

	cert, err := repo.Get(ctx, 7, demoCourse)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if cert != nil {
		t.Error("expected no record after rejected writes")
	}
}

func TestCertificateRepository_Get_NotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewCertificateRepository(db)

	cert, err := repo.Get(context.Background(), 1, demoCourse)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if cert != nil {
		t.Errorf("expected nil, got %+v", cert)
	}

	_, err = repo.GetByID(context.Background(), 999)
	if !errors.Is(err, secondary.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCertificateRepository_MarkNotPassing(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewCertificateRepository(db)
	ctx := context.Background()

	id := seedCertificate(t, db, 42, demoCourse, "downloadable", "verified", "abc123")

	result, err := repo.MarkNotPassing(ctx, id, "0.2", "grade-changed")
	if err != nil {
		t.Fatalf("MarkNotPassing failed: %v", err)
	}
	if !result.Changed {
		t.Error("expected change")
	}
	if result.PreviousStatus != "downloadable" {
		t.Errorf("expected previous status downloadable, got %q", result.PreviousStatus)
	}

	cert := result.Certificate
	if cert.Status != "notpassing" || cert.Grade != "0.2" {
		t.Errorf("unexpected certificate: status=%q grade=%q", cert.Status, cert.Grade)
	}
	if cert.DownloadURL != "" || cert.DownloadUUID != "" {
		t.Error("expected download fields cleared")
	}
	if cert.VerifyUUID != "abc123" {
		t.Errorf("expected verify uuid kept, got %q", cert.VerifyUUID)
	}

	history, err := repo.History(ctx, id)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 1 || history[0].Source != "grade-changed" || history[0].Status != "notpassing" {
		t.Errorf("unexpected history: %+v", history)
	}

	// Second identical transition is a no-op.
	again, err := repo.MarkNotPassing(ctx, id, "0.2", "grade-changed")
	if err != nil {
		t.Fatalf("MarkNotPassing failed: %v", err)
	}
	if again.Changed {
		t.Error("expected repeated transition to be a no-op")
	}
}

func TestCertificateRepository_MarkUnverified(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewCertificateRepository(db)
	ctx := context.Background()

	id := seedCertificate(t, db, 42, demoCourse, "downloadable", "verified", "abc123")

	result, err := repo.MarkUnverified(ctx, id, "professional", "idv")
	if err != nil {
		t.Fatalf("MarkUnverified failed: %v", err)
	}
	cert := result.Certificate
	if cert.Status != "unverified" || cert.Mode != "professional" || cert.Grade != "" {
		t.Errorf("unexpected certificate: %+v", cert)
	}
}

func TestCertificateRepository_Invalidate(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewCertificateRepository(db)
	ctx := context.Background()

	id := seedCertificate(t, db, 42, demoCourse, "downloadable", "verified", "abc123")

	result, err := repo.Invalidate(ctx, id, "", "invalidation")
	if err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	cert := result.Certificate
	if cert.Status != "unavailable" {
		t.Errorf("expected unavailable, got %q", cert.Status)
	}
	if cert.Mode != "verified" {
		t.Errorf("expected mode kept when empty, got %q", cert.Mode)
	}
	if cert.VerifyUUID != "abc123" {
		t.Errorf("expected verify uuid kept, got %q", cert.VerifyUUID)
	}

	_, err = repo.Invalidate(ctx, 999, "", "invalidation")
	if !errors.Is(err, secondary.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCertificateRepository_InvalidateThenRegenerate(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewCertificateRepository(db)
	ctx := context.Background()

	first, err := repo.Upsert(ctx, 42, demoCourse, downloadableFields("0.87"))
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if _, err := repo.Invalidate(ctx, first.Certificate.ID, "", "test"); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}

	again, err := repo.Upsert(ctx, 42, demoCourse, downloadableFields("0.87"))
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if again.PreviousStatus != "unavailable" {
		t.Errorf("expected previous status unavailable, got %q", again.PreviousStatus)
	}
	if again.Certificate.VerifyUUID != first.Certificate.VerifyUUID {
		t.Error("expected original verify uuid after regeneration")
	}
}

func TestCertificateRepository_BulkPurgeName(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewCertificateRepository(db)
	ctx := context.Background()

	for _, userID := range []int64{1, 2, 3} {
		if _, err := repo.Upsert(ctx, userID, demoCourse, downloadableFields("0.9")); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	n, err := repo.BulkPurgeName(ctx, []int64{1, 3})
	if err != nil {
		t.Fatalf("BulkPurgeName failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 rows purged, got %d", n)
	}

	kept, _ := repo.Get(ctx, 2, demoCourse)
	if kept.Name != "Ada Lovelace" {
		t.Errorf("expected user 2 name kept, got %q", kept.Name)
	}
	purged, _ := repo.Get(ctx, 3, demoCourse)
	if purged.Name != "" {
		t.Errorf("expected user 3 name purged, got %q", purged.Name)
	}

	history, _ := repo.History(ctx, purged.ID)
	if len(history) != 1 {
		t.Errorf("expected purge to write no history, got %d rows", len(history))
	}

	n, err = repo.BulkPurgeName(ctx, nil)
	if err != nil || n != 0 {
		t.Errorf("expected no-op for empty input, got n=%d err=%v", n, err)
	}
}

func TestCertificateRepository_BulkClearDownload(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewCertificateRepository(db)
	ctx := context.Background()

	a := seedCertificate(t, db, 1, demoCourse, "downloadable", "verified", "u1")
	b := seedCertificate(t, db, 2, demoCourse, "downloadable", "verified", "u2")

	n, err := repo.BulkClearDownload(ctx, []int64{a})
	if err != nil {
		t.Fatalf("BulkClearDownload failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 row cleared, got %d", n)
	}

	cleared, _ := repo.GetByID(ctx, a)
	if cleared.DownloadURL != "" || cleared.DownloadUUID != "" {
		t.Errorf("expected download fields cleared, got %+v", cleared)
	}
	untouched, _ := repo.GetByID(ctx, b)
	if untouched.DownloadURL == "" {
		t.Error("expected other certificate untouched")
	}
}

func TestCertificateRepository_List(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewCertificateRepository(db)
	ctx := context.Background()

	other := "course-v1:edX+Other+2024"
	seedCertificate(t, db, 1, demoCourse, "downloadable", "verified", "u1")
	seedCertificate(t, db, 2, demoCourse, "unverified", "verified", "u2")
	seedCertificate(t, db, 3, other, "unverified", "verified", "u3")

	tests := []struct {
		name    string
		filters secondary.CertificateFilters
		want    int
	}{
		{"all", secondary.CertificateFilters{}, 3},
		{"by status", secondary.CertificateFilters{Statuses: []string{"unverified"}}, 2},
		{"by course", secondary.CertificateFilters{CourseKeys: []string{other}}, 1},
		{"by status and course", secondary.CertificateFilters{Statuses: []string{"unverified"}, CourseKeys: []string{demoCourse}}, 1},
		{"by users", secondary.CertificateFilters{UserIDs: []int64{1, 3}}, 2},
		{"limit", secondary.CertificateFilters{Limit: 2}, 2},
		{"modified in future", secondary.CertificateFilters{ModifiedAfter: time.Now().Add(time.Hour)}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			certs, err := repo.List(ctx, tt.filters)
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if len(certs) != tt.want {
				t.Errorf("expected %d certificates, got %d", tt.want, len(certs))
			}
		})
	}

	page, err := repo.List(ctx, secondary.CertificateFilters{Limit: 1})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	next, err := repo.List(ctx, secondary.CertificateFilters{AfterID: page[0].ID, Limit: 10})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(next) != 2 {
		t.Errorf("expected 2 certificates after cursor, got %d", len(next))
	}
}

func TestCertificateRepository_AssignVerifyUUID(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewCertificateRepository(db)
	ctx := context.Background()

	empty := seedCertificate(t, db, 1, demoCourse, "downloadable", "verified", "")
	set := seedCertificate(t, db, 2, demoCourse, "downloadable", "verified", "existing")

	ok, err := repo.AssignVerifyUUID(ctx, empty, "new-uuid")
	if err != nil || !ok {
		t.Fatalf("expected assignment, got ok=%v err=%v", ok, err)
	}

	ok, err = repo.AssignVerifyUUID(ctx, set, "new-uuid")
	if err != nil {
		t.Fatalf("AssignVerifyUUID failed: %v", err)
	}
	if ok {
		t.Error("expected existing verify uuid to be kept")
	}
	cert, _ := repo.GetByID(ctx, set)
	if cert.VerifyUUID != "existing" {
		t.Errorf("expected 'existing', got %q", cert.VerifyUUID)
	}
}
