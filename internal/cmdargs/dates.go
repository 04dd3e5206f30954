package cmdargs

import (
	"time"
)

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// ParseDate accepts a date, a date with time, or an RFC 3339 timestamp.
// Values without a zone are UTC.
func ParseDate(v string) (time.Time, error) {
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.ParseInLocation(layout, v, time.UTC)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, &ConfigError{Msg: "invalid date " + v, Err: lastErr}
}

func isISODate(v string) bool {
	_, err := ParseDate(v)
	return err == nil
}
