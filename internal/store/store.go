package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"net-scout/internal/model"
)

var (
	// ErrDuplicateAlert means an alert for the same (type, src, dst) already
	// exists for the current UTC day. Callers treat it as "already
	// recorded", not a failure.
	ErrDuplicateAlert = errors.New("duplicate alert for key and day")

	// ErrNotFound is returned for lookups of absent alerts.
	ErrNotFound = errors.New("not found")
)

// HorizontalAggregate is one source IP's fan-out inside the window.
type HorizontalAggregate struct {
	SrcIP     string
	DstCount  int
	ConnCount int
}

// VerticalAggregate is one (src, dst) pair's distinct destination ports.
type VerticalAggregate struct {
	SrcIP string
	DstIP string
	Ports int
}

// VolumeAggregate is one source IP's total event count inside the window.
type VolumeAggregate struct {
	SrcIP      string
	TotalConns int
}

// CacheEntry is one enrichment cache row, keyed by "kind:subject".
// A nil Result with a present entry means "lookup attempted, no data".
type CacheEntry struct {
	Subject   string          `json:"subject"`
	Kind      string          `json:"kind"`
	Result    json.RawMessage `json:"result"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// AlertFilter narrows ListAlerts. Zero values mean "no constraint".
type AlertFilter struct {
	Since     *time.Time
	AlertType string
	SrcIP     string
	DstIP     string
	MinScore  *int
	Limit     int
}

// EventStore is the read-only aggregate view over the connection-event log.
// Thresholds use strict greater-than semantics; results are ordered by the
// primary aggregate descending and capped at limit.
type EventStore interface {
	HorizontalAggregates(ctx context.Context, since time.Time, dstThreshold, connThreshold, limit int) ([]HorizontalAggregate, error)
	VerticalAggregates(ctx context.Context, since time.Time, portsThreshold, limit int) ([]VerticalAggregate, error)
	VolumeAggregates(ctx context.Context, since time.Time, connThreshold, limit int) ([]VolumeAggregate, error)

	// LatestGeo returns, per IP, the geo attributes of the most recent
	// event where the IP appears as either endpoint and has geodata.
	LatestGeo(ctx context.Context, ips []string) (map[string]model.Geo, error)
}

// AlertStore persists and reads alerts. InsertAlert assigns ID and is
// idempotent per (type, src, dst, UTC day) via ErrDuplicateAlert.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert *model.Alert) error
	GetAlert(ctx context.Context, id int64) (*model.Alert, error)
	ListAlerts(ctx context.Context, filter AlertFilter) ([]model.Alert, error)
	ListUnenriched(ctx context.Context, limit int) ([]model.Alert, error)
	UpdateEnrichment(ctx context.Context, id int64, enrichment map[string]any, status string) error
	UpdateStatus(ctx context.Context, id int64, status string) error
}

// CacheStore is the enrichment lookup cache. Get returns (nil, nil) on a
// miss; Set upserts in place, last write wins, no expiry.
type CacheStore interface {
	CacheGet(ctx context.Context, subjectKey string) (*CacheEntry, error)
	CacheSet(ctx context.Context, subjectKey, kind string, result any) error
	CacheList(ctx context.Context, limit int) ([]CacheEntry, error)
}

// Store is the full persistence surface of net-scout.
type Store interface {
	EventStore
	AlertStore
	CacheStore

	Ping(ctx context.Context) error
	Close() error
}

// SubjectKey builds the composite cache key for a lookup.
func SubjectKey(kind, subject string) string {
	return kind + ":" + subject
}
