package sqlite_test

import (
	"context"
	"testing"

	"github.com/example/certs/internal/adapters/sqlite"
	"github.com/example/certs/internal/ports/secondary"
)

// Integration tests verify cross-repository workflows and constraints.

// ============================================================================
// Invalidation Lifecycle Tests
// ============================================================================

func TestIntegration_InvalidateAndReinstate(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	certs := sqlite.NewCertificateRepository(db)
	invalidations := sqlite.NewInvalidationRepository(db)

	created, err := certs.Upsert(ctx, 42, demoCourse, downloadableFields("0.91"))
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	certID := created.Certificate.ID

	if err := invalidations.Create(ctx, &secondary.InvalidationRecord{CertificateID: certID, InvalidatorID: 7, Notes: "academic integrity"}); err != nil {
		t.Fatalf("Create invalidation failed: %v", err)
	}
	revoked, err := certs.Invalidate(ctx, certID, "", "cli:invalidation")
	if err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if !revoked.Changed || revoked.PreviousStatus != "downloadable" {
		t.Errorf("expected change from downloadable, got changed=%v previous=%q", revoked.Changed, revoked.PreviousStatus)
	}

	// Reinstate: deactivate, then regenerate under the same verify UUID.
	if err := invalidations.Deactivate(ctx, certID); err != nil {
		t.Fatalf("Deactivate failed: %v", err)
	}
	if active, _ := invalidations.GetActive(ctx, certID); active != nil {
		t.Fatal("expected no active invalidation after reinstate")
	}
	fields := downloadableFields("0.91")
	fields.Source = "task:certificates.generate"
	regenerated, err := certs.Upsert(ctx, 42, demoCourse, fields)
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if regenerated.Certificate.ID != certID {
		t.Errorf("expected same row %d, got %d", certID, regenerated.Certificate.ID)
	}
	if regenerated.Certificate.VerifyUUID != created.Certificate.VerifyUUID {
		t.Error("expected verify uuid to survive invalidation")
	}

	history, err := certs.History(ctx, certID)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	var statuses, sources []string
	for _, h := range history {
		statuses = append(statuses, h.Status)
		sources = append(sources, h.Source)
	}
	if len(history) != 3 || statuses[1] != "unavailable" || statuses[2] != "downloadable" {
		t.Fatalf("unexpected history statuses: %v", statuses)
	}
	if sources[1] != "cli:invalidation" || sources[2] != "task:certificates.generate" {
		t.Errorf("unexpected history sources: %v", sources)
	}
}

// ============================================================================
// Batch Selection Tests
// ============================================================================

func TestIntegration_AllowlistDrivesCertificateSelection(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	certs := sqlite.NewCertificateRepository(db)
	allowlist := sqlite.NewAllowlistRepository(db)

	for _, userID := range []int64{42, 43, 44} {
		seedCertificate(t, db, userID, demoCourse, "unverified", "verified", "")
	}
	seedCertificate(t, db, 45, "course-v1:edX+HonorX+2024", "unverified", "honor", "")

	for _, entry := range []*secondary.AllowlistRecord{
		{UserID: 42, CourseKey: demoCourse, Enabled: true},
		{UserID: 44, CourseKey: demoCourse, Enabled: false, Notes: "paused"},
	} {
		if err := allowlist.Upsert(ctx, entry); err != nil {
			t.Fatalf("allowlist Upsert failed: %v", err)
		}
	}

	entries, err := allowlist.ListByCourse(ctx, demoCourse, true)
	if err != nil {
		t.Fatalf("ListByCourse failed: %v", err)
	}
	var userIDs []int64
	for _, e := range entries {
		userIDs = append(userIDs, e.UserID)
	}
	if len(userIDs) != 1 || userIDs[0] != 42 {
		t.Fatalf("expected only enabled entry for user 42, got %v", userIDs)
	}

	selected, err := certs.List(ctx, secondary.CertificateFilters{
		Statuses:   []string{"unverified"},
		CourseKeys: []string{demoCourse},
		UserIDs:    userIDs,
	})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(selected) != 1 || selected[0].UserID != 42 {
		t.Errorf("expected one certificate for user 42, got %d", len(selected))
	}
}
