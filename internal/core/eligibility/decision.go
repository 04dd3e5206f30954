package eligibility

import (
	"fmt"

	"github.com/example/certs/internal/core/status"
)

// Kind identifies which variant of Decision was produced.
type Kind string

const (
	KindGenerate      Kind = "generate"
	KindSetUnverified Kind = "set_unverified"
	KindSetNotPassing Kind = "set_notpassing"
	KindInvalidate    Kind = "invalidate"
	KindSkip          Kind = "skip"
)

// Reason explains why a Skip decision was made.
type Reason string

const (
	ReasonNone                   Reason = ""
	ReasonAutoGenerationDisabled Reason = "auto-generation-disabled"
	ReasonIneligibleMode         Reason = "ineligible-mode"
	ReasonCCX                    Reason = "ccx"
	ReasonBetaTester             Reason = "beta-tester"
	ReasonNotPassing             Reason = "not-passing"
	ReasonAlreadyFinal           Reason = "already-final"
	ReasonNoHTMLCertificates     Reason = "no-html-certificates"
)

// Decision is the outcome of Decide. Only the fields relevant to Kind are set:
//
//	Generate       Status, Mode, Grade
//	SetUnverified  Mode
//	SetNotPassing  Mode, Grade
//	Invalidate     Mode
//	Skip           Reason
type Decision struct {
	Kind   Kind
	Status status.Status
	Mode   string
	Grade  string
	Reason Reason
}

// Generate builds a decision to create or refresh a passing certificate.
func Generate(mode, grade string) Decision {
	return Decision{Kind: KindGenerate, Status: status.Downloadable, Mode: mode, Grade: grade}
}

// SetUnverified builds a decision to record a missing identity verification.
func SetUnverified(mode string) Decision {
	return Decision{Kind: KindSetUnverified, Status: status.Unverified, Mode: mode}
}

// SetNotPassing builds a decision to record a failing grade on an existing certificate.
func SetNotPassing(mode, grade string) Decision {
	return Decision{Kind: KindSetNotPassing, Status: status.NotPassing, Mode: mode, Grade: grade}
}

// Invalidate builds a decision to revoke the certificate.
func Invalidate(mode string) Decision {
	return Decision{Kind: KindInvalidate, Status: status.Unavailable, Mode: mode}
}

// Skip builds a no-op decision.
func Skip(reason Reason) Decision {
	return Decision{Kind: KindSkip, Reason: reason}
}

// IsSkip reports whether the decision requires no action.
func (d Decision) IsSkip() bool { return d.Kind == KindSkip }

// String renders the decision for logs and CLI output.
func (d Decision) String() string {
	switch d.Kind {
	case KindGenerate:
		return fmt.Sprintf("generate(status=%s, mode=%s, grade=%s)", d.Status, d.Mode, d.Grade)
	case KindSetUnverified:
		return fmt.Sprintf("set_unverified(mode=%s)", d.Mode)
	case KindSetNotPassing:
		return fmt.Sprintf("set_notpassing(mode=%s, grade=%s)", d.Mode, d.Grade)
	case KindInvalidate:
		return fmt.Sprintf("invalidate(mode=%s)", d.Mode)
	case KindSkip:
		return fmt.Sprintf("skip(%s)", d.Reason)
	}
	return string(d.Kind)
}
