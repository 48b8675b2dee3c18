package enrich

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"net-scout/internal/alert"
	"net-scout/internal/config"
	"net-scout/internal/model"
	"net-scout/internal/store"
	"net-scout/internal/trace"
)

// Outcome is one alert's enrichment result in a batch.
type Outcome struct {
	AlertID  int64  `json:"alert_id"`
	Subjects int    `json:"subjects"`
	Error    string `json:"error,omitempty"`
}

// Enricher orchestrates best-effort lookups for alert subjects. Per
// subject the provider chain is strictly sequential: cache check, call,
// cache write, politeness sleep. Concurrency happens across alerts only,
// bounded by the worker count.
type Enricher struct {
	cache     store.CacheStore
	alerts    store.AlertStore
	providers []Provider
	sleep     time.Duration
	workers   int
	logger    *logrus.Logger
	metrics   *alert.Metrics

	// sleepFn is swapped in tests to avoid real politeness delays.
	sleepFn func(time.Duration)
}

// New wires the configured provider chain in fixed order: rdns, whois,
// traceroute, then pdns when credentials exist.
func New(cache store.CacheStore, alerts store.AlertStore, events store.EventStore, cfg config.EnrichmentConfig, logger *logrus.Logger) *Enricher {
	correlator := trace.NewCorrelator(events, logger)

	var providers []Provider
	if cfg.EnableRDNS {
		providers = append(providers, NewRDNSProvider(cfg.RDNSWait))
	}
	if cfg.EnableWhois {
		providers = append(providers, NewWhoisProvider(cfg.WhoisWait))
	}
	if cfg.EnableTraceroute {
		providers = append(providers, NewTracerouteProvider(cfg.TracerouteHops, cfg.TracerouteWait, correlator))
	}
	if cfg.PDNSEnabled() {
		providers = append(providers, NewPDNSProvider(cfg.PDNSAPIURL, cfg.PDNSAPIKey, 8*time.Second))
	} else {
		logger.Debug("Passive DNS credentials not configured, provider skipped")
	}

	return &Enricher{
		cache:     cache,
		alerts:    alerts,
		providers: providers,
		sleep:     cfg.Sleep,
		workers:   cfg.Workers,
		logger:    logger,
		sleepFn:   time.Sleep,
	}
}

// NewWithProviders builds an enricher around an explicit provider chain.
func NewWithProviders(cache store.CacheStore, alerts store.AlertStore, providers []Provider, sleep time.Duration, workers int, logger *logrus.Logger) *Enricher {
	if workers <= 0 {
		workers = 1
	}
	return &Enricher{
		cache:     cache,
		alerts:    alerts,
		providers: providers,
		sleep:     sleep,
		workers:   workers,
		logger:    logger,
		sleepFn:   time.Sleep,
	}
}

func (e *Enricher) SetMetrics(m *alert.Metrics) {
	e.metrics = m
}

// EnrichSubject runs the provider chain for one subject, cache first. The
// politeness sleep applies only after cache-miss external calls, never
// after a hit. Every result, including error payloads and nil "no data",
// is cached so a repeat lookup never re-invokes the provider.
func (e *Enricher) EnrichSubject(ctx context.Context, subject string) map[string]any {
	result := make(map[string]any)
	for _, p := range e.providers {
		key := store.SubjectKey(p.Kind(), subject)

		if cached, ok := e.cacheLookup(ctx, key); ok {
			result[p.Kind()] = cached
			if e.metrics != nil {
				e.metrics.EnrichmentCached.WithLabelValues(p.Kind()).Inc()
			}
			continue
		}

		value := p.Lookup(ctx, subject)
		result[p.Kind()] = value
		if e.metrics != nil {
			e.metrics.EnrichmentCalls.WithLabelValues(p.Kind(), outcomeOf(value)).Inc()
		}
		if err := e.cache.CacheSet(ctx, key, p.Kind(), value); err != nil {
			e.logger.Warnf("Failed to cache %s result for %s: %v", p.Kind(), subject, err)
		}
		e.sleepFn(e.sleep)
	}
	return result
}

// cacheLookup reads a cache entry, treating malformed stored JSON as a
// miss so the next call repairs the entry in place.
func (e *Enricher) cacheLookup(ctx context.Context, key string) (any, bool) {
	entry, err := e.cache.CacheGet(ctx, key)
	if err != nil {
		e.logger.Warnf("Cache read failed for %s: %v", key, err)
		return nil, false
	}
	if entry == nil {
		return nil, false
	}
	if len(entry.Result) == 0 {
		return nil, true
	}
	var value any
	if err := json.Unmarshal(entry.Result, &value); err != nil {
		return nil, false
	}
	return value, true
}

// EnrichAlert enriches both endpoints of one alert independently and
// updates the stored row. The alert row itself was persisted before any
// enrichment began; this update never changes created_at.
func (e *Enricher) EnrichAlert(ctx context.Context, a *model.Alert) Outcome {
	out := Outcome{AlertID: a.ID}
	enrichment := make(map[string]any)

	if a.SrcIP != "" {
		enrichment["src"] = e.EnrichSubject(ctx, a.SrcIP)
		out.Subjects++
	}
	if a.DstIP != "" && a.DstIP != a.SrcIP {
		enrichment["dst"] = e.EnrichSubject(ctx, a.DstIP)
		out.Subjects++
	}

	if err := e.alerts.UpdateEnrichment(ctx, a.ID, enrichment, model.StatusEnriched); err != nil {
		e.logger.Errorf("Failed to store enrichment for alert %d: %v", a.ID, err)
		out.Error = err.Error()
		return out
	}
	e.logger.Infof("Enriched alert %d (src=%s dst=%s)", a.ID, a.SrcIP, a.DstIP)
	return out
}

// EnrichBatch enriches up to limit alerts that have no enrichment yet,
// newest first, across the bounded worker pool. One alert's failure never
// stops the rest; progress, when set, is reported per completed alert.
func (e *Enricher) EnrichBatch(ctx context.Context, limit int, progress func(done, total int)) ([]Outcome, error) {
	alerts, err := e.alerts.ListUnenriched(ctx, limit)
	if err != nil {
		return nil, err
	}
	if len(alerts) == 0 {
		e.logger.Info("No alerts to enrich")
		return nil, nil
	}

	outcomes := make([]Outcome, len(alerts))
	jobs := make(chan int)
	var done int
	var mu sync.Mutex
	var wg sync.WaitGroup

	workers := e.workers
	if workers > len(alerts) {
		workers = len(alerts)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				outcomes[i] = e.EnrichAlert(ctx, &alerts[i])
				mu.Lock()
				done++
				if progress != nil {
					progress(done, len(alerts))
				}
				mu.Unlock()
			}
		}()
	}
	for i := range alerts {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return outcomes, nil
}

// EnrichByID enriches one alert regardless of its current enrichment.
func (e *Enricher) EnrichByID(ctx context.Context, alertID int64) (Outcome, error) {
	a, err := e.alerts.GetAlert(ctx, alertID)
	if err != nil {
		return Outcome{AlertID: alertID}, err
	}
	return e.EnrichAlert(ctx, a), nil
}

func outcomeOf(value any) string {
	switch v := value.(type) {
	case nil:
		return "empty"
	case map[string]any:
		if _, failed := v["error"]; failed {
			return "error"
		}
	case string:
		// Tool wrappers embed failures as "<tool> error: ..." strings.
		if strings.Contains(v, " error: ") {
			return "error"
		}
	}
	return "ok"
}
