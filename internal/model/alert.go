package model

import "time"

// Alert types produced by the detection rules.
const (
	AlertTypeHorizontalScan = "horizontal_scan"
	AlertTypeVerticalScan   = "vertical_scan"
	AlertTypeHighConnVolume = "high_connection_volume"
)

// Alert lifecycle states.
const (
	StatusNew           = "new"
	StatusEnriched      = "enriched"
	StatusSnoozed       = "snoozed"
	StatusFalsePositive = "false_positive"
)

// Alert is a scored finding. Before persistence it is a candidate produced
// by a rule; ID and CreatedAt are assigned when the writer inserts it.
// SrcIP/DstIP are empty strings when the pattern has no single endpoint
// on that side (e.g. a horizontal scan characterizes the source's fan-out).
type Alert struct {
	ID         int64          `json:"id"`
	AlertType  string         `json:"alert_type"`
	SrcIP      string         `json:"src_ip,omitempty"`
	DstIP      string         `json:"dst_ip,omitempty"`
	Score      int            `json:"score"`
	Evidence   map[string]any `json:"evidence"`
	Enrichment map[string]any `json:"enrichment,omitempty"`
	Status     string         `json:"status"`
	CreatedAt  time.Time      `json:"created_at"`
}

// DedupKey is the in-run dedup key for a candidate. The persisted
// uniqueness key is this plus the UTC calendar day of insertion.
func (a *Alert) DedupKey() string {
	return a.AlertType + "|" + a.SrcIP + "|" + a.DstIP
}

// Subjects returns the distinct non-empty endpoints of the alert, source
// first. Each is an independent enrichment subject.
func (a *Alert) Subjects() []string {
	var subjects []string
	if a.SrcIP != "" {
		subjects = append(subjects, a.SrcIP)
	}
	if a.DstIP != "" && a.DstIP != a.SrcIP {
		subjects = append(subjects, a.DstIP)
	}
	return subjects
}

// ClampScore bounds a raw rule score to the 0-100 alert scale.
func ClampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
