package pipeline

import (
	"strings"
	"time"
	"unicode"
)

// ParseSince turns a human-friendly window argument ("1 hour",
// "30 minutes", "24h", "2d", or an ISO timestamp) into the window's lower
// bound. Unparseable input falls back to one hour before now.
func ParseSince(s string, now time.Time) time.Time {
	now = now.UTC()
	s = strings.TrimSpace(s)
	if s == "" {
		return now.Add(-time.Hour)
	}

	// Timestamps first, on the original casing: time.Parse matches the
	// literal T/Z case-sensitively.
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}

	s = strings.ToLower(s)
	switch {
	case strings.HasSuffix(s, "h") || strings.Contains(s, "hour"):
		return now.Add(-time.Duration(leadingNumber(s, 1)) * time.Hour)
	case strings.HasSuffix(s, "m") || strings.Contains(s, "min"):
		return now.Add(-time.Duration(leadingNumber(s, 30)) * time.Minute)
	case strings.HasSuffix(s, "d") || strings.Contains(s, "day"):
		return now.Add(-time.Duration(leadingNumber(s, 1)) * 24 * time.Hour)
	}
	return now.Add(-time.Hour)
}

// leadingNumber extracts the digits embedded in the argument, or the
// fallback when there are none.
func leadingNumber(s string, fallback int) int {
	n := 0
	found := false
	for _, r := range s {
		if unicode.IsDigit(r) {
			n = n*10 + int(r-'0')
			found = true
		}
	}
	if !found {
		return fallback
	}
	return n
}
