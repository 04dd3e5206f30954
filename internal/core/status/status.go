// Package status contains the certificate status vocabulary.
// This is part of the Functional Core - no I/O, only pure functions.
package status

import "fmt"

// Status represents the possible states of a generated certificate.
type Status string

const (
	Deleted         Status = "deleted"
	Deleting        Status = "deleting"
	Downloadable    Status = "downloadable"
	Error           Status = "error"
	Generating      Status = "generating"
	NotPassing      Status = "notpassing"
	Restricted      Status = "restricted"
	Unavailable     Status = "unavailable"
	Auditing        Status = "auditing"
	AuditPassing    Status = "audit_passing"
	AuditNotPassing Status = "audit_notpassing"
	HonorPassing    Status = "honor_passing"
	Unverified      Status = "unverified"
	Invalidated     Status = "invalidated"
	Requesting      Status = "requesting"
)

var all = []Status{
	Deleted,
	Deleting,
	Downloadable,
	Error,
	Generating,
	NotPassing,
	Restricted,
	Unavailable,
	Auditing,
	AuditPassing,
	AuditNotPassing,
	HonorPassing,
	Unverified,
	Invalidated,
	Requesting,
}

var known = func() map[Status]struct{} {
	m := make(map[Status]struct{}, len(all))
	for _, s := range all {
		m[s] = struct{}{}
	}
	return m
}()

// All returns every status in the vocabulary.
// The returned slice is a copy; callers may modify it.
func All() []Status {
	out := make([]Status, len(all))
	copy(out, all)
	return out
}

// Parse converts a stored string into a Status.
// Unknown strings are rejected because the vocabulary is closed.
func Parse(s string) (Status, error) {
	st := Status(s)
	if _, ok := known[st]; !ok {
		return "", fmt.Errorf("unknown certificate status %q", s)
	}
	return st, nil
}

// Valid reports whether s belongs to the vocabulary.
func (s Status) Valid() bool {
	_, ok := known[s]
	return ok
}

func (s Status) String() string { return string(s) }

// IsPassing reports whether a certificate in status s counts as earned.
func IsPassing(s Status) bool {
	return s == Downloadable || s == Generating
}

// IsRefundable reports whether an enrollment whose certificate is in status s
// may still be refunded.
func IsRefundable(s Status) bool {
	switch s {
	case Downloadable, Generating, Unavailable:
		return false
	}
	return true
}
