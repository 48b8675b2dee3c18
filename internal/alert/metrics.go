package alert

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus instruments for detection and enrichment.
// All instruments are registered on the registry passed to NewMetrics so
// tests and concurrent instances never collide on the default registry.
type Metrics struct {
	RuleCandidates *prometheus.CounterVec
	RuleFailures   *prometheus.CounterVec
	RuleDuration   *prometheus.HistogramVec

	AlertsInserted *prometheus.CounterVec
	AlertsSkipped  prometheus.Counter

	EnrichmentCalls  *prometheus.CounterVec
	EnrichmentCached *prometheus.CounterVec
}

// NewMetrics creates and registers the net-scout metric set.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RuleCandidates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netscout_rule_candidates_total",
			Help: "Candidate alerts produced per detection rule",
		}, []string{"rule"}),
		RuleFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netscout_rule_failures_total",
			Help: "Detection rule evaluation failures",
		}, []string{"rule"}),
		RuleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "netscout_rule_duration_seconds",
			Help:    "Detection rule evaluation duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"rule"}),
		AlertsInserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netscout_alerts_inserted_total",
			Help: "Alerts newly recorded, by type",
		}, []string{"type"}),
		AlertsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "netscout_alerts_skipped_total",
			Help: "Alerts suppressed as same-day duplicates",
		}),
		EnrichmentCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netscout_enrichment_calls_total",
			Help: "External enrichment lookups, by provider kind and outcome",
		}, []string{"kind", "outcome"}),
		EnrichmentCached: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netscout_enrichment_cache_hits_total",
			Help: "Enrichment lookups served from the cache, by provider kind",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		m.RuleCandidates, m.RuleFailures, m.RuleDuration,
		m.AlertsInserted, m.AlertsSkipped,
		m.EnrichmentCalls, m.EnrichmentCached,
	)
	return m
}
