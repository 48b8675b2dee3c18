package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseSince(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		input    string
		expected time.Time
	}{
		{"empty defaults to one hour", "", now.Add(-time.Hour)},
		{"hour word", "1 hour", now.Add(-time.Hour)},
		{"hours word", "6 hours", now.Add(-6 * time.Hour)},
		{"hour suffix", "2h", now.Add(-2 * time.Hour)},
		{"minutes word", "30 minutes", now.Add(-30 * time.Minute)},
		{"minute suffix", "45m", now.Add(-45 * time.Minute)},
		{"days word", "2 days", now.Add(-48 * time.Hour)},
		{"day suffix", "1d", now.Add(-24 * time.Hour)},
		{"bare hour falls back to one", "hour", now.Add(-time.Hour)},
		{"rfc3339", "2026-08-27T06:30:00Z", time.Date(2026, 8, 27, 6, 30, 0, 0, time.UTC)},
		{"datetime without zone", "2026-08-27T06:30:00", time.Date(2026, 8, 27, 6, 30, 0, 0, time.UTC)},
		{"date only", "2026-08-27", time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)},
		{"garbage falls back", "soon", now.Add(-time.Hour)},
		{"mixed case and padding", "  1 Hour ", now.Add(-time.Hour)},
		{"rfc3339 with padding", "  2026-08-27T06:30:00Z ", time.Date(2026, 8, 27, 6, 30, 0, 0, time.UTC)},
		{"rfc3339 with offset", "2026-08-27T06:30:00+02:00", time.Date(2026, 8, 27, 4, 30, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseSince(tt.input, now))
		})
	}
}
