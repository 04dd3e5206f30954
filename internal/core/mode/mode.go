// Package mode classifies course enrollment modes for certificate purposes.
// Modes are an open set of string slugs; unknown slugs are treated as
// certificate-eligible, verification-requiring modes.
package mode

import "strings"

const (
	Audit                    = "audit"
	Honor                    = "honor"
	Verified                 = "verified"
	Professional             = "professional"
	NoIDProfessional         = "no-id-professional"
	Masters                  = "masters"
	Credit                   = "credit"
	ExecutiveEducation       = "executive-education"
	PaidExecutiveEducation   = "paid-executive-education"
	UnpaidExecutiveEducation = "unpaid-executive-education"
	PaidBootcamp             = "paid-bootcamp"
	UnpaidBootcamp           = "unpaid-bootcamp"
)

// Known lists the modes this package has explicit rules for.
var Known = []string{
	Audit, Honor, Verified, Professional, NoIDProfessional, Masters, Credit,
	ExecutiveEducation, PaidExecutiveEducation, UnpaidExecutiveEducation,
	PaidBootcamp, UnpaidBootcamp,
}

var nonVerified = map[string]bool{
	Honor:            true,
	Audit:            true,
	NoIDProfessional: true,
}

var credentialsInteresting = map[string]bool{
	Verified:                 true,
	Professional:             true,
	NoIDProfessional:         true,
	Masters:                  true,
	ExecutiveEducation:       true,
	PaidExecutiveEducation:   true,
	UnpaidExecutiveEducation: true,
	PaidBootcamp:             true,
	UnpaidBootcamp:           true,
}

// Normalize trims and lowercases a mode slug.
func Normalize(m string) string {
	return strings.ToLower(strings.TrimSpace(m))
}

// IsEligibleForCertificate reports whether learners enrolled in mode m can
// earn a certificate. Audit never can; honor cannot when honor certificates
// are disabled platform-wide.
func IsEligibleForCertificate(m string, honorDisabled bool) bool {
	switch m {
	case "", Audit:
		return false
	case Honor:
		return !honorDisabled
	}
	return true
}

// IsNonVerified reports whether m is a mode that does not inherently
// require identity verification.
func IsNonVerified(m string) bool {
	return nonVerified[m]
}

// IsCredentialsInteresting reports whether certificates in mode m are
// forwarded to the credentials service. Every credit variant counts.
func IsCredentialsInteresting(m string) bool {
	if credentialsInteresting[m] {
		return true
	}
	return m == Credit || strings.HasPrefix(m, Credit+"-")
}
