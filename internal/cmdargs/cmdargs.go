// Package cmdargs handles batch command arguments: shell-style tokenization of
// database-stored argument strings and typed validation of parsed options.
package cmdargs

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/mattn/go-shellwords"

	"github.com/example/certs/internal/core/coursekey"
	"github.com/example/certs/internal/ports/secondary"
)

// ConfigError reports invalid or missing command arguments, an unparsable
// course key, or a disabled database configuration.
type ConfigError struct {
	Msg string
	Err error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Errorf builds a ConfigError.
func Errorf(format string, args ...any) error {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

// IsConfigError reports whether err carries a ConfigError.
func IsConfigError(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr)
}

// Tokenize splits an argument string the way a POSIX shell would.
func Tokenize(arguments string) ([]string, error) {
	parser := shellwords.NewParser()
	tokens, err := parser.Parse(arguments)
	if err != nil {
		return nil, &ConfigError{Msg: "failed to tokenize arguments", Err: err}
	}
	return tokens, nil
}

// FromDatabase loads and tokenizes the current arguments for a command.
// A missing or disabled configuration row is a ConfigError.
func FromDatabase(ctx context.Context, repo secondary.CommandConfigRepository, name string) ([]string, error) {
	record, err := repo.Current(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", name, err)
	}
	if record == nil {
		return nil, Errorf("%s has no configuration row", name)
	}
	if !record.Enabled {
		return nil, Errorf("%s is disabled, but --args-from-database was requested", name)
	}
	return Tokenize(record.Arguments)
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			if name := fld.Tag.Get("flag"); name != "" {
				return "--" + name
			}
			return fld.Name
		})
		mustRegister(validate, "coursekey", func(fl validator.FieldLevel) bool {
			_, err := coursekey.Parse(fl.Field().String())
			return err == nil
		})
		mustRegister(validate, "isodate", func(fl validator.FieldLevel) bool {
			v := fl.Field().String()
			return v == "" || isISODate(v)
		})
	})
	return validate
}

// mustRegister panics when a custom tag cannot be registered; otherwise
// every field using the tag would fail or skip validation.
func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("cmdargs: register %q validation: %v", tag, err))
	}
}

// Validate checks struct tags on parsed command options and converts
// failures into a single ConfigError naming the offending flags.
func Validate(opts any) error {
	err := validatorInstance().Struct(opts)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ConfigError{Msg: "invalid arguments", Err: err}
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return &ConfigError{Msg: "invalid arguments: " + strings.Join(msgs, "; ")}
}

func describe(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "coursekey":
		return fmt.Sprintf("%s: invalid course key %q", field, fe.Value())
	case "isodate":
		return fmt.Sprintf("%s: expected YYYY-MM-DD, got %q", field, fe.Value())
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	}
	return fmt.Sprintf("%s failed %q validation", field, fe.Tag())
}
