// Package filter implements the certificate creation-requested pipeline.
//
// A pipeline is an ordered list of named steps. Each step sees the current
// generation request and may return overrides for any of its fields, or abort
// generation by returning a PreventCreation error.
package filter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Override keys accepted from steps.
const (
	FieldMode           = "mode"
	FieldStatus         = "status"
	FieldGrade          = "grade"
	FieldGenerationMode = "generation_mode"
)

// Data is the generation request a step receives.
type Data struct {
	UserID         int64
	CourseKey      string
	Mode           string
	Status         string
	Grade          string
	GenerationMode string
}

// Overrides replaces fields of Data by key. Nil means no change.
type Overrides map[string]string

// Step is one stage of the pipeline.
type Step interface {
	Name() string
	Run(ctx context.Context, data Data) (Overrides, error)
}

// StepFunc adapts a function to the Step interface.
type StepFunc struct {
	StepName string
	Fn       func(ctx context.Context, data Data) (Overrides, error)
}

// Name returns the step identifier.
func (s StepFunc) Name() string { return s.StepName }

// Run invokes the wrapped function.
func (s StepFunc) Run(ctx context.Context, data Data) (Overrides, error) { return s.Fn(ctx, data) }

// PreventCreation is returned by a step to veto generation.
// It aborts the pipeline even when failures are configured to be silent.
type PreventCreation struct {
	Message string
}

func (p *PreventCreation) Error() string { return p.Message }

// Prevent returns a PreventCreation error.
func Prevent(message string) error {
	return &PreventCreation{Message: message}
}

// NotAllowedError reports that the pipeline refused generation.
type NotAllowedError struct {
	Step    string
	Message string
}

func (e *NotAllowedError) Error() string {
	return fmt.Sprintf("certificate generation not allowed: %s", e.Message)
}

// IsNotAllowed reports whether err carries a NotAllowedError.
func IsNotAllowed(err error) bool {
	var notAllowed *NotAllowedError
	return errors.As(err, &notAllowed)
}

// Factory builds a fresh step.
type Factory func() Step

// Registry maps step identifiers to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a registry preloaded with the built-in steps.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	for name, f := range builtins {
		r.factories[name] = f
	}
	return r
}

// Register adds or replaces a step factory.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Names returns the registered step identifiers in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build creates a pipeline from an ordered list of step identifiers.
// Unknown identifiers are a configuration error.
func (r *Registry) Build(names []string, failSilently bool, logger *slog.Logger) (*Pipeline, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	steps := make([]Step, 0, len(names))
	for _, name := range names {
		f, ok := r.factories[name]
		if !ok {
			return nil, fmt.Errorf("unknown filter step %q", name)
		}
		steps = append(steps, f())
	}
	return NewPipeline(steps, failSilently, logger), nil
}

// Pipeline runs steps in order.
type Pipeline struct {
	steps        []Step
	failSilently bool
	logger       *slog.Logger
}

// NewPipeline creates a pipeline over the given steps.
func NewPipeline(steps []Step, failSilently bool, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{steps: steps, failSilently: failSilently, logger: logger}
}

// Len returns the number of configured steps.
func (p *Pipeline) Len() int {
	if p == nil {
		return 0
	}
	return len(p.steps)
}

// Run passes data through every step and returns the transformed request.
// A PreventCreation from any step yields a NotAllowedError. Any other step
// error aborts with that error unless the pipeline fails silently, in which
// case the step is skipped.
func (p *Pipeline) Run(ctx context.Context, data Data) (Data, error) {
	if p == nil {
		return data, nil
	}
	for _, step := range p.steps {
		overrides, err := step.Run(ctx, data)
		if err != nil {
			var prevent *PreventCreation
			if errors.As(err, &prevent) {
				return data, &NotAllowedError{Step: step.Name(), Message: prevent.Message}
			}
			if p.failSilently {
				p.logger.Warn("filter step failed, continuing",
					"step", step.Name(), "user_id", data.UserID, "course_key", data.CourseKey, "error", err)
				continue
			}
			return data, fmt.Errorf("filter step %s failed: %w", step.Name(), err)
		}

		data, err = apply(data, overrides)
		if err != nil {
			if p.failSilently {
				p.logger.Warn("filter step returned bad overrides, continuing", "step", step.Name(), "error", err)
				continue
			}
			return data, fmt.Errorf("filter step %s: %w", step.Name(), err)
		}
	}
	return data, nil
}

func apply(data Data, overrides Overrides) (Data, error) {
	out := data
	for key, value := range overrides {
		switch key {
		case FieldMode:
			out.Mode = value
		case FieldStatus:
			out.Status = value
		case FieldGrade:
			out.Grade = value
		case FieldGenerationMode:
			out.GenerationMode = value
		default:
			return data, fmt.Errorf("unknown override field %q", key)
		}
	}
	return out, nil
}
