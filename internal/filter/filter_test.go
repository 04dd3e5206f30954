package filter

import (
	"context"
	"errors"
	"testing"
)

func baseData() Data {
	return Data{
		UserID:         42,
		CourseKey:      "course-v1:edX+DemoX+2024",
		Mode:           "verified",
		Status:         "downloadable",
		Grade:          "0.87",
		GenerationMode: "self",
	}
}

func failingStep(name string, err error) Step {
	return StepFunc{StepName: name, Fn: func(context.Context, Data) (Overrides, error) { return nil, err }}
}

func overrideStep(name string, o Overrides) Step {
	return StepFunc{StepName: name, Fn: func(context.Context, Data) (Overrides, error) { return o, nil }}
}

func TestPipeline_Run(t *testing.T) {
	tests := []struct {
		name         string
		steps        []Step
		failSilently bool
		want         Data
		wantErr      bool
		wantNotAllow string
	}{
		{
			name:  "no steps passes data through",
			steps: nil,
			want:  baseData(),
		},
		{
			name:  "overrides apply in order",
			steps: []Step{overrideStep("a", Overrides{FieldMode: "honor"}), overrideStep("b", Overrides{FieldGrade: "0.5", FieldMode: "professional"})},
			want: func() Data {
				d := baseData()
				d.Mode = "professional"
				d.Grade = "0.5"
				return d
			}(),
		},
		{
			name:         "prevent creation aborts",
			steps:        []Step{failingStep("veto", Prevent("nope")), overrideStep("after", Overrides{FieldMode: "honor"})},
			wantErr:      true,
			wantNotAllow: "nope",
		},
		{
			name:         "prevent creation aborts even when silent",
			steps:        []Step{failingStep("veto", Prevent("nope"))},
			failSilently: true,
			wantErr:      true,
			wantNotAllow: "nope",
		},
		{
			name:    "step error aborts when not silent",
			steps:   []Step{failingStep("broken", errors.New("boom"))},
			wantErr: true,
		},
		{
			name:         "step error is skipped when silent",
			steps:        []Step{failingStep("broken", errors.New("boom")), overrideStep("next", Overrides{FieldStatus: "generating"})},
			failSilently: true,
			want: func() Data {
				d := baseData()
				d.Status = "generating"
				return d
			}(),
		},
		{
			name:    "unknown override field aborts",
			steps:   []Step{overrideStep("bad", Overrides{"colour": "blue"})},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPipeline(tt.steps, tt.failSilently, nil)
			got, err := p.Run(context.Background(), baseData())

			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if tt.wantNotAllow != "" {
					var notAllowed *NotAllowedError
					if !errors.As(err, &notAllowed) {
						t.Fatalf("expected NotAllowedError, got %T: %v", err, err)
					}
					if notAllowed.Message != tt.wantNotAllow {
						t.Errorf("expected message %q, got %q", tt.wantNotAllow, notAllowed.Message)
					}
				} else if IsNotAllowed(err) {
					t.Errorf("expected plain step error, got NotAllowedError")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestPipeline_NilIsNoop(t *testing.T) {
	var p *Pipeline
	got, err := p.Run(context.Background(), baseData())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != baseData() {
		t.Errorf("expected data unchanged, got %+v", got)
	}
	if p.Len() != 0 {
		t.Errorf("expected zero length, got %d", p.Len())
	}
}

func TestRegistry_Build(t *testing.T) {
	r := NewRegistry()

	p, err := r.Build([]string{StepNormalizeMode, StepPreventBatchGeneration}, false, nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if p.Len() != 2 {
		t.Errorf("expected 2 steps, got %d", p.Len())
	}

	if _, err := r.Build([]string{"does-not-exist"}, false, nil); err == nil {
		t.Error("expected error for unknown step")
	}

	r.Register("custom", func() Step { return overrideStep("custom", nil) })
	found := false
	for _, name := range r.Names() {
		if name == "custom" {
			found = true
		}
	}
	if !found {
		t.Error("expected registered step in Names()")
	}
}

func TestBuiltinSteps(t *testing.T) {
	r := NewRegistry()

	t.Run("prevent batch generation", func(t *testing.T) {
		p, _ := r.Build([]string{StepPreventBatchGeneration}, false, nil)
		d := baseData()
		if _, err := p.Run(context.Background(), d); err != nil {
			t.Errorf("self generation should pass, got %v", err)
		}
		d.GenerationMode = "batch"
		if _, err := p.Run(context.Background(), d); !IsNotAllowed(err) {
			t.Errorf("expected NotAllowedError for batch, got %v", err)
		}
	})

	t.Run("normalize mode", func(t *testing.T) {
		p, _ := r.Build([]string{StepNormalizeMode}, false, nil)
		d := baseData()
		d.Mode = "  Verified "
		got, err := p.Run(context.Background(), d)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Mode != "verified" {
			t.Errorf("expected 'verified', got %q", got.Mode)
		}
	})

	t.Run("require passing status", func(t *testing.T) {
		p, _ := r.Build([]string{StepRequirePassingStatus}, false, nil)
		d := baseData()
		if _, err := p.Run(context.Background(), d); err != nil {
			t.Errorf("downloadable should pass, got %v", err)
		}
		d.Status = "unverified"
		if _, err := p.Run(context.Background(), d); !IsNotAllowed(err) {
			t.Errorf("expected NotAllowedError for unverified, got %v", err)
		}
	})
}
