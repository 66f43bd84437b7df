package normalize

import (
	"strings"
	"time"
)

// DateLayout is the canonical output form of a date column.
const DateLayout = "2006-01-02"

// DateTimeLayout is the canonical output form of a date-time column.
const DateTimeLayout = "2006-01-02 15:04:05"

// Offset-carrying layouts come first so a zone in the input is never ignored.
// Fractional seconds are accepted by time.Parse after the seconds field even
// when the layout omits them.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05Z07",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006-1-2",
	// day-first forms used by the CRM's date custom fields
	"2/1/2006",
	"2-1-2006",
	"2.1.2006",
	"2/1/2006 15:04",
	"2/1/2006 15:04:05",
}

// ParseTime parses s against the accepted layouts. The returned time keeps
// the offset written in s; inputs without one are UTC.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ConvertDate returns the calendar date of s as YYYY-MM-DD. The date is the
// one written in s, in s's own offset; time of day is dropped.
func ConvertDate(s string) (string, bool) {
	t, ok := ParseTime(s)
	if !ok {
		return "", false
	}
	return t.Format(DateLayout), true
}

// ConvertDateTime returns s as YYYY-MM-DD HH:MM:SS in UTC.
func ConvertDateTime(s string) (string, bool) {
	t, ok := ParseTime(s)
	if !ok {
		return "", false
	}
	return t.UTC().Format(DateTimeLayout), true
}
