// Package coursekey parses opaque course run identifiers.
//
// Three forms are accepted:
//
//	course-v1:Org+Course+Run
//	ccx-v1:Org+Course+Run+ccx@7
//	Org/Course/Run (legacy slash-separated)
package coursekey

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	prefixV1  = "course-v1:"
	prefixCCX = "ccx-v1:"
)

var partPattern = regexp.MustCompile(`^[A-Za-z0-9_.~\-]+$`)

// Key is a parsed course run key.
type Key struct {
	Org    string
	Course string
	Run    string
	CCX    string // empty unless the key addresses a custom course variant
	legacy bool
}

// Parse parses a course key string.
func Parse(raw string) (Key, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Key{}, fmt.Errorf("course key is empty")
	}

	switch {
	case strings.HasPrefix(s, prefixV1):
		parts := strings.Split(strings.TrimPrefix(s, prefixV1), "+")
		if len(parts) != 3 {
			return Key{}, fmt.Errorf("invalid course key %q: expected Org+Course+Run", raw)
		}
		k := Key{Org: parts[0], Course: parts[1], Run: parts[2]}
		return k, k.validate(raw)

	case strings.HasPrefix(s, prefixCCX):
		parts := strings.Split(strings.TrimPrefix(s, prefixCCX), "+")
		if len(parts) != 4 || !strings.HasPrefix(parts[3], "ccx@") {
			return Key{}, fmt.Errorf("invalid ccx key %q: expected Org+Course+Run+ccx@ID", raw)
		}
		k := Key{Org: parts[0], Course: parts[1], Run: parts[2], CCX: strings.TrimPrefix(parts[3], "ccx@")}
		if k.CCX == "" {
			return Key{}, fmt.Errorf("invalid ccx key %q: missing ccx id", raw)
		}
		return k, k.validate(raw)

	case strings.Count(s, "/") == 2:
		parts := strings.Split(s, "/")
		k := Key{Org: parts[0], Course: parts[1], Run: parts[2], legacy: true}
		return k, k.validate(raw)
	}

	return Key{}, fmt.Errorf("invalid course key %q", raw)
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(raw string) Key {
	k, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return k
}

func (k Key) validate(raw string) error {
	for _, p := range []string{k.Org, k.Course, k.Run} {
		if !partPattern.MatchString(p) {
			return fmt.Errorf("invalid course key %q: bad component %q", raw, p)
		}
	}
	return nil
}

// IsCCX reports whether the key addresses a custom course variant.
func (k Key) IsCCX() bool {
	return k.CCX != ""
}

// String returns the canonical serialized form.
func (k Key) String() string {
	switch {
	case k.CCX != "":
		return fmt.Sprintf("%s%s+%s+%s+ccx@%s", prefixCCX, k.Org, k.Course, k.Run, k.CCX)
	case k.legacy:
		return fmt.Sprintf("%s/%s/%s", k.Org, k.Course, k.Run)
	}
	return fmt.Sprintf("%s%s+%s+%s", prefixV1, k.Org, k.Course, k.Run)
}

// ParseAll parses every key, failing on the first invalid one.
func ParseAll(raw []string) ([]Key, error) {
	keys := make([]Key, 0, len(raw))
	for _, r := range raw {
		k, err := Parse(r)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}
