package rules

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"net-scout/internal/alert"
	"net-scout/internal/model"
)

// Rule produces candidate alerts for one detection pattern over the window
// [since, now). Rules have no side effects on the event store.
type Rule interface {
	Name() string
	Detect(ctx context.Context, since time.Time) ([]model.Alert, error)
}

// RuleError records a single rule's failure without aborting the run.
type RuleError struct {
	Rule string
	Err  error
}

// Engine runs the registered rules and merges their candidates. Rules are
// independent read-only queries, so they execute concurrently; the merged
// order follows registration order regardless of completion order.
type Engine struct {
	rules     []Rule
	maxAlerts int
	metrics   *alert.Metrics
	logger    *logrus.Logger
	mu        sync.RWMutex
}

// NewEngine creates an engine capped at maxAlerts candidates per run.
func NewEngine(maxAlerts int, logger *logrus.Logger) *Engine {
	if maxAlerts <= 0 {
		maxAlerts = 500
	}
	return &Engine{
		maxAlerts: maxAlerts,
		logger:    logger,
	}
}

// SetMetrics attaches per-rule Prometheus instruments.
func (e *Engine) SetMetrics(m *alert.Metrics) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.metrics = m
}

func (e *Engine) RegisterRule(rule Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = append(e.rules, rule)
	e.logger.Infof("Registered rule: %s", rule.Name())
}

// Run evaluates all rules against the window and returns the deduplicated,
// capped candidate list. A failing rule is reported in the returned
// RuleError slice; the other rules still contribute their candidates.
//
// Composition order: each rule orders and caps its own result set, results
// are concatenated in registration order, candidates sharing
// (type, src, dst) are dropped first-occurrence-wins, then the run-level
// cap applies.
func (e *Engine) Run(ctx context.Context, since time.Time) ([]model.Alert, []RuleError) {
	e.mu.RLock()
	rules := make([]Rule, len(e.rules))
	copy(rules, e.rules)
	metrics := e.metrics
	e.mu.RUnlock()

	results := make([][]model.Alert, len(rules))
	failures := make([]error, len(rules))

	var wg sync.WaitGroup
	for i, rule := range rules {
		wg.Add(1)
		go func(i int, rule Rule) {
			defer wg.Done()
			start := time.Now()
			alerts, err := rule.Detect(ctx, since)
			if err != nil {
				failures[i] = err
				e.logger.Errorf("Rule %s failed: %v", rule.Name(), err)
				return
			}
			results[i] = alerts
			if metrics != nil {
				metrics.RuleCandidates.WithLabelValues(rule.Name()).Add(float64(len(alerts)))
				metrics.RuleDuration.WithLabelValues(rule.Name()).Observe(time.Since(start).Seconds())
			}
			e.logger.Debugf("Rule %s produced %d candidates in %v", rule.Name(), len(alerts), time.Since(start))
		}(i, rule)
	}
	wg.Wait()

	var ruleErrors []RuleError
	for i, err := range failures {
		if err != nil {
			ruleErrors = append(ruleErrors, RuleError{Rule: rules[i].Name(), Err: err})
		}
	}

	seen := make(map[string]bool)
	var merged []model.Alert
	for _, alerts := range results {
		for _, a := range alerts {
			key := a.DedupKey()
			if seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, a)
			if len(merged) >= e.maxAlerts {
				return merged, ruleErrors
			}
		}
	}
	return merged, ruleErrors
}
