package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/example/certs/internal/ctxutil"
	"github.com/example/certs/internal/ports/secondary"
)

func TestAdmin_HistoryAndEvents(t *testing.T) {
	env := newTestEnv(t)
	ctx := ctxutil.WithSource(context.Background(), "cli:test")

	if _, err := env.generation.Generate(ctx, generateReq(42, "0.87")); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if _, err := env.generation.Invalidate(ctx, 42, demoCourse, ""); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}

	history, err := env.admin.CertificateHistory(ctx, 42, demoCourse)
	if err != nil {
		t.Fatalf("CertificateHistory failed: %v", err)
	}
	if len(history) != 2 || history[0].Status != "downloadable" || history[1].Status != "unavailable" {
		t.Fatalf("unexpected history %+v", history)
	}
	if history[1].Source != "cli:test" {
		t.Errorf("expected source recorded, got %q", history[1].Source)
	}

	events, err := env.admin.ListEvents(ctx, demoCourse, 10)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	// created + changed, then revoked + changed.
	if len(events) != 4 {
		t.Fatalf("expected 4 stored events, got %d", len(events))
	}
	if events[0].SignalName != secondary.SignalCertificateChanged || events[0].Status != "unavailable" {
		t.Errorf("expected newest event first, got %+v", events[0])
	}
}

func TestAdmin_CommandConfig(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	const name = "CertificateGenerationCommandConfiguration"

	cfg, err := env.admin.GetCommandConfig(ctx, name)
	if err != nil {
		t.Fatalf("GetCommandConfig failed: %v", err)
	}
	if cfg.Enabled {
		t.Error("expected seeded configuration disabled")
	}

	if err := env.admin.SetCommandConfig(ctx, name, true, "--user 42 --course-key "+demoCourse); err != nil {
		t.Fatalf("SetCommandConfig failed: %v", err)
	}
	cfg, err = env.admin.GetCommandConfig(ctx, name)
	if err != nil {
		t.Fatalf("GetCommandConfig failed: %v", err)
	}
	if !cfg.Enabled || !strings.Contains(cfg.Arguments, "--user 42") {
		t.Errorf("expected newest row current, got %+v", cfg)
	}

	if _, err := env.admin.GetCommandConfig(ctx, "Missing"); !errors.Is(err, secondary.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAdmin_AllowlistRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.admin.AddToAllowlist(ctx, 42, demoCourse, "exception"); err != nil {
		t.Fatalf("AddToAllowlist failed: %v", err)
	}
	entries, err := env.admin.ListAllowlist(ctx, demoCourse)
	if err != nil {
		t.Fatalf("ListAllowlist failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected seeded and added entries, got %+v", entries)
	}

	if _, err := env.admin.RemoveFromAllowlist(ctx, 42, demoCourse); err != nil {
		t.Fatalf("RemoveFromAllowlist failed: %v", err)
	}
	if _, err := env.admin.RemoveFromAllowlist(ctx, 42, demoCourse); !errors.Is(err, secondary.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second removal, got %v", err)
	}
}

func TestAdmin_RecordVerificationRejectsUnknown(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.admin.RecordVerification(context.Background(), 42, "maybe"); !errors.Is(err, secondary.ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
}

func TestAdmin_InvalidateRequiresCertificate(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.admin.Reinstate(context.Background(), 42, demoCourse); !errors.Is(err, secondary.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
