package timeutil

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

var tzSuffixRE = regexp.MustCompile(`([+-]\d{2}:?\d{2}|Z)$`)

var timestampLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseTimestamp accepts RFC3339 or a zone-less wall clock timestamp. Offsets
// are honoured; zone-less values are read as UTC.
func ParseTimestamp(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, errors.New("timestamp is required")
	}
	if parsed, err := time.Parse(time.RFC3339Nano, trimmed); err == nil {
		return parsed.UTC(), nil
	}
	trimmed = tzSuffixRE.ReplaceAllString(trimmed, "")
	for _, layout := range timestampLayouts {
		if parsed, err := time.ParseInLocation(layout, trimmed, time.UTC); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, errors.New("invalid timestamp")
}

func ParseOptionalTimestamp(value string) (*time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	parsed, err := ParseTimestamp(value)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

// ParseDate parses a YYYY-MM-DD calendar date in UTC.
func ParseDate(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, errors.New("date is required")
	}
	return time.ParseInLocation("2006-01-02", trimmed, time.UTC)
}

// ModelYearBounds returns the accepted vehicle model year range at now.
func ModelYearBounds(now time.Time) (int, int) {
	return 1900, now.Year() + 1
}
