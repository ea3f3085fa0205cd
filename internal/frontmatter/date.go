package frontmatter

import (
	"strings"
	"time"
)

// Layouts that carry an explicit offset. Fractional seconds are accepted by
// time.Parse after the seconds field even when the layout omits them.
var offsetLayouts = []string{
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05 -07:00",
	"2006-01-02 15:04:05Z07:00",
	time.RFC3339,
	"2006-01-02T15:04:05-0700",
	"2006-01-02 15:04 -0700",
	"2006-01-02T15:04Z07:00",
}

// Layouts without an offset; only usable with WithDefaultLocation.
var localLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// DateLayout is the layout Format writes dates in.
const DateLayout = "2006-01-02 15:04:05.999999999 -0700"

// ParseDate reads a date-time in any layout Parse accepts for the date field.
func ParseDate(raw string, opts ...Option) (time.Time, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	return parseDate(raw, o.location)
}

func parseDate(raw string, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(raw)

	for _, layout := range offsetLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return fixed(t), nil
		}
	}

	for _, layout := range localLayouts {
		if loc == nil {
			if _, err := time.Parse(layout, s); err == nil {
				return time.Time{}, &InvalidValueError{Field: KeyDate, Reason: "missing timezone offset in " + quote(s)}
			}
			continue
		}
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return fixed(t), nil
		}
	}

	return time.Time{}, &InvalidValueError{Field: KeyDate, Reason: "unrecognized date-time " + quote(s)}
}

// fixed pins t to a fixed-offset zone so it never depends on the host's
// time zone database.
func fixed(t time.Time) time.Time {
	_, offset := t.Zone()
	return t.In(time.FixedZone("", offset))
}

func quote(s string) string {
	return `"` + s + `"`
}
