package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"net-scout/internal/model"
)

// MemoryStore is an in-memory Store used by tests and local development.
// It mirrors the PostgreSQL semantics, including the per-day alert
// uniqueness key with NULL endpoints folded to ''.
type MemoryStore struct {
	mu     sync.RWMutex
	events []model.ConnectionEvent
	alerts []model.Alert
	cache  map[string]CacheEntry
	nextID int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cache:  make(map[string]CacheEntry),
		nextID: 1,
	}
}

// AddEvent appends a connection event to the log. Test/seed helper; the
// core never writes events.
func (s *MemoryStore) AddEvent(event model.ConnectionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }
func (s *MemoryStore) Close() error                   { return nil }

func (s *MemoryStore) HorizontalAggregates(ctx context.Context, since time.Time, dstThreshold, connThreshold, limit int) ([]HorizontalAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type bucket struct {
		dsts  map[string]bool
		conns int
	}
	buckets := make(map[string]*bucket)
	for _, e := range s.events {
		if e.Timestamp.Before(since) {
			continue
		}
		b := buckets[e.SrcIP]
		if b == nil {
			b = &bucket{dsts: make(map[string]bool)}
			buckets[e.SrcIP] = b
		}
		b.dsts[e.DstIP] = true
		b.conns++
	}

	var aggs []HorizontalAggregate
	for src, b := range buckets {
		if len(b.dsts) > dstThreshold || b.conns > connThreshold {
			aggs = append(aggs, HorizontalAggregate{SrcIP: src, DstCount: len(b.dsts), ConnCount: b.conns})
		}
	}
	sort.Slice(aggs, func(i, j int) bool {
		if aggs[i].DstCount != aggs[j].DstCount {
			return aggs[i].DstCount > aggs[j].DstCount
		}
		return aggs[i].ConnCount > aggs[j].ConnCount
	})
	if len(aggs) > limit {
		aggs = aggs[:limit]
	}
	return aggs, nil
}

func (s *MemoryStore) VerticalAggregates(ctx context.Context, since time.Time, portsThreshold, limit int) ([]VerticalAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ports := make(map[string]map[int]bool)
	for _, e := range s.events {
		if e.Timestamp.Before(since) {
			continue
		}
		key := e.SrcIP + "|" + e.DstIP
		if ports[key] == nil {
			ports[key] = make(map[int]bool)
		}
		ports[key][e.DstPort] = true
	}

	var aggs []VerticalAggregate
	for key, set := range ports {
		if len(set) > portsThreshold {
			parts := strings.SplitN(key, "|", 2)
			aggs = append(aggs, VerticalAggregate{SrcIP: parts[0], DstIP: parts[1], Ports: len(set)})
		}
	}
	sort.Slice(aggs, func(i, j int) bool { return aggs[i].Ports > aggs[j].Ports })
	if len(aggs) > limit {
		aggs = aggs[:limit]
	}
	return aggs, nil
}

func (s *MemoryStore) VolumeAggregates(ctx context.Context, since time.Time, connThreshold, limit int) ([]VolumeAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for _, e := range s.events {
		if !e.Timestamp.Before(since) {
			counts[e.SrcIP]++
		}
	}

	var aggs []VolumeAggregate
	for src, n := range counts {
		if n > connThreshold {
			aggs = append(aggs, VolumeAggregate{SrcIP: src, TotalConns: n})
		}
	}
	sort.Slice(aggs, func(i, j int) bool { return aggs[i].TotalConns > aggs[j].TotalConns })
	if len(aggs) > limit {
		aggs = aggs[:limit]
	}
	return aggs, nil
}

func (s *MemoryStore) LatestGeo(ctx context.Context, ips []string) (map[string]model.Geo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[string]bool, len(ips))
	for _, ip := range ips {
		wanted[ip] = true
	}

	sorted := make([]model.ConnectionEvent, len(s.events))
	copy(sorted, s.events)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.After(sorted[j].Timestamp) })

	geo := make(map[string]model.Geo)
	for _, e := range sorted {
		if e.Geo == nil {
			continue
		}
		for _, candidate := range []string{e.SrcIP, e.DstIP} {
			if wanted[candidate] {
				if _, seen := geo[candidate]; !seen {
					geo[candidate] = *e.Geo
				}
			}
		}
	}
	return geo, nil
}

func alertUniqueKey(alertType, srcIP, dstIP string, createdAt time.Time) string {
	return fmt.Sprintf("%s|%s|%s|%s", alertType, srcIP, dstIP, createdAt.UTC().Format("2006-01-02"))
}

func (s *MemoryStore) InsertAlert(ctx context.Context, alert *model.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := alertUniqueKey(alert.AlertType, alert.SrcIP, alert.DstIP, alert.CreatedAt)
	for _, existing := range s.alerts {
		if alertUniqueKey(existing.AlertType, existing.SrcIP, existing.DstIP, existing.CreatedAt) == key {
			return ErrDuplicateAlert
		}
	}

	alert.ID = s.nextID
	s.nextID++
	s.alerts = append(s.alerts, *alert)
	return nil
}

func (s *MemoryStore) GetAlert(ctx context.Context, id int64) (*model.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.alerts {
		if s.alerts[i].ID == id {
			a := s.alerts[i]
			return &a, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListAlerts(ctx context.Context, filter AlertFilter) ([]model.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}

	sorted := make([]model.Alert, len(s.alerts))
	copy(sorted, s.alerts)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CreatedAt.After(sorted[j].CreatedAt) })

	var out []model.Alert
	for _, a := range sorted {
		if filter.Since != nil && a.CreatedAt.Before(*filter.Since) {
			continue
		}
		if filter.AlertType != "" && a.AlertType != filter.AlertType {
			continue
		}
		if filter.SrcIP != "" && !strings.Contains(a.SrcIP, filter.SrcIP) {
			continue
		}
		if filter.DstIP != "" && !strings.Contains(a.DstIP, filter.DstIP) {
			continue
		}
		if filter.MinScore != nil && a.Score < *filter.MinScore {
			continue
		}
		out = append(out, a)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) ListUnenriched(ctx context.Context, limit int) ([]model.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sorted := make([]model.Alert, len(s.alerts))
	copy(sorted, s.alerts)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CreatedAt.After(sorted[j].CreatedAt) })

	var out []model.Alert
	for _, a := range sorted {
		if a.Enrichment == nil {
			out = append(out, a)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *MemoryStore) UpdateEnrichment(ctx context.Context, id int64, enrichment map[string]any, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.alerts {
		if s.alerts[i].ID == id {
			s.alerts[i].Enrichment = enrichment
			s.alerts[i].Status = status
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id int64, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.alerts {
		if s.alerts[i].ID == id {
			s.alerts[i].Status = status
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) CacheGet(ctx context.Context, subjectKey string) (*CacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.cache[subjectKey]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (s *MemoryStore) CacheSet(ctx context.Context, subjectKey, kind string, result any) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal cache result: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[subjectKey] = CacheEntry{
		Subject:   subjectKey,
		Kind:      kind,
		Result:    json.RawMessage(payload),
		UpdatedAt: time.Now().UTC(),
	}
	return nil
}

func (s *MemoryStore) CacheList(ctx context.Context, limit int) ([]CacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 500
	}
	entries := make([]CacheEntry, 0, len(s.cache))
	for _, entry := range s.cache {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].UpdatedAt.After(entries[j].UpdatedAt) })
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}
