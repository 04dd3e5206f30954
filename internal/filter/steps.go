package filter

import (
	"context"

	"github.com/example/certs/internal/core/mode"
	"github.com/example/certs/internal/core/status"
)

// Built-in step identifiers.
const (
	StepPreventBatchGeneration = "prevent-batch-generation"
	StepNormalizeMode          = "normalize-mode"
	StepRequirePassingStatus   = "require-passing-status"
)

var builtins = map[string]Factory{
	StepPreventBatchGeneration: func() Step {
		return StepFunc{StepName: StepPreventBatchGeneration, Fn: preventBatchGeneration}
	},
	StepNormalizeMode: func() Step {
		return StepFunc{StepName: StepNormalizeMode, Fn: normalizeMode}
	},
	StepRequirePassingStatus: func() Step {
		return StepFunc{StepName: StepRequirePassingStatus, Fn: requirePassingStatus}
	},
}

func preventBatchGeneration(_ context.Context, data Data) (Overrides, error) {
	if data.GenerationMode == "batch" {
		return nil, Prevent("batch certificate generation is disabled")
	}
	return nil, nil
}

func normalizeMode(_ context.Context, data Data) (Overrides, error) {
	normalized := mode.Normalize(data.Mode)
	if normalized == data.Mode {
		return nil, nil
	}
	return Overrides{FieldMode: normalized}, nil
}

// requirePassingStatus vetoes any request that would not produce an earned
// certificate, e.g. unverified placeholders.
func requirePassingStatus(_ context.Context, data Data) (Overrides, error) {
	if !status.IsPassing(status.Status(data.Status)) {
		return nil, Prevent("only passing certificates may be created, got " + data.Status)
	}
	return nil, nil
}
