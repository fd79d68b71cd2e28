// Package schedule handles topic time windows: timestamp parsing, the
// skew-corrected clock, and per-student temporary-open overrides.
package schedule

import (
	"strings"
	"time"
)

// Manila is the fixed UTC+8 zone used to read timestamps that carry no offset.
var Manila = time.FixedZone("PHT", 8*60*60)

var zonedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
}

var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp reads a schedule timestamp. Values with an offset are
// instants; zone-less values are read in Manila time. Empty or unparsable
// input reports ok=false, meaning "no constraint".
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, Manila); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Before reports whether the timestamp s is set and strictly after now,
// i.e. the window has not started yet.
func Before(now time.Time, s string) bool {
	t, ok := ParseTimestamp(s)
	return ok && now.Before(t)
}

// Passed reports whether the timestamp s is set and now is at or after it.
func Passed(now time.Time, s string) bool {
	t, ok := ParseTimestamp(s)
	return ok && !now.Before(t)
}

// FormatLocal renders t as a zone-less Manila timestamp, the shape teachers
// enter in schedule forms.
func FormatLocal(t time.Time) string {
	return t.In(Manila).Format("2006-01-02T15:04")
}
