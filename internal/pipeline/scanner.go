package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"net-scout/internal/alert"
	"net-scout/internal/config"
	"net-scout/internal/enrich"
	"net-scout/internal/model"
	"net-scout/internal/progress"
	"net-scout/internal/rules"
	"net-scout/internal/store"
	"net-scout/internal/trace"
)

// Scanner is the invocation surface of net-scout: one-shot detection runs,
// alert enrichment and live path traces, shared by the CLI and the API.
type Scanner struct {
	store       store.Store
	cfg         *config.Config
	engine      *rules.Engine
	enricher    *enrich.Enricher
	correlator  *trace.Correlator
	tracer      *enrich.TracerouteProvider
	rdns        *enrich.RDNSProvider
	broadcaster *progress.Broadcaster
	notifiers   []alert.Notifier
	metrics     *alert.Metrics
	logger      *logrus.Logger
}

// DetectionResult summarizes one detection run.
type DetectionResult struct {
	RunID        string           `json:"run_id"`
	Since        time.Time        `json:"since"`
	Candidates   int              `json:"candidates"`
	Inserted     int              `json:"inserted"`
	Skipped      int              `json:"skipped"`
	Errors       int              `json:"errors"`
	DryRun       bool             `json:"dry_run"`
	RuleFailures []string         `json:"rule_failures,omitempty"`
	Enriched     []enrich.Outcome `json:"enriched,omitempty"`
}

// TraceResult is the outcome of a live path trace.
type TraceResult struct {
	Target    string      `json:"target"`
	Hops      []model.Hop `json:"hops"`
	RawOutput string      `json:"raw_output"`
}

func NewScanner(st store.Store, cfg *config.Config, logger *logrus.Logger) *Scanner {
	correlator := trace.NewCorrelator(st, logger)
	return &Scanner{
		store:       st,
		cfg:         cfg,
		engine:      rules.NewEngineWithBuiltins(st, cfg.Detection, logger),
		enricher:    enrich.New(st, st, st, cfg.Enrichment, logger),
		correlator:  correlator,
		tracer:      enrich.NewTracerouteProvider(cfg.Enrichment.TracerouteHops, cfg.Enrichment.TracerouteWait, correlator),
		rdns:        enrich.NewRDNSProvider(cfg.Enrichment.RDNSWait),
		broadcaster: progress.NewBroadcaster(logger),
		logger:      logger,
	}
}

// Progress exposes the structured progress stream for status endpoints.
func (s *Scanner) Progress() *progress.Broadcaster {
	return s.broadcaster
}

func (s *Scanner) RegisterNotifier(n alert.Notifier) {
	s.notifiers = append(s.notifiers, n)
}

// SetMetrics attaches Prometheus instruments to the run path.
func (s *Scanner) SetMetrics(m *alert.Metrics) {
	s.metrics = m
	s.engine.SetMetrics(m)
	s.enricher.SetMetrics(m)
}

// RunDetection evaluates all rules over [since, now), persists the
// candidates idempotently and optionally enriches the batch. The store
// must be reachable before any work begins; everything after that is
// per-item best effort.
func (s *Scanner) RunDetection(ctx context.Context, since time.Time, enrichAfter, dryRun bool) (*DetectionResult, error) {
	if err := s.store.Ping(ctx); err != nil {
		return nil, fmt.Errorf("store not found: %w", err)
	}

	result := &DetectionResult{
		RunID:  progress.NewRunID(),
		Since:  since,
		DryRun: dryRun,
	}
	s.logger.Infof("Scanning since %s", since.UTC().Format(time.RFC3339))
	s.broadcaster.Publish(progress.Event{
		RunID: result.RunID, Stage: progress.StageScan,
		Message: "scanning since " + since.UTC().Format(time.RFC3339),
	})

	candidates, ruleErrs := s.engine.Run(ctx, since)
	result.Candidates = len(candidates)
	for _, re := range ruleErrs {
		result.RuleFailures = append(result.RuleFailures, re.Rule)
		if s.metrics != nil {
			s.metrics.RuleFailures.WithLabelValues(re.Rule).Inc()
		}
	}
	s.logger.Infof("%d candidate alerts detected", len(candidates))
	s.broadcaster.Publish(progress.Event{
		RunID: result.RunID, Stage: progress.StageScan,
		Message: fmt.Sprintf("%d candidate alerts detected", len(candidates)),
		Total:   len(candidates),
	})

	writer := alert.NewWriter(s.store, dryRun, s.logger)
	writer.SetMetrics(s.metrics)
	for _, n := range s.notifiers {
		writer.RegisterNotifier(n)
	}

	for i, candidate := range candidates {
		outcome, err := writer.Write(ctx, candidate)
		switch {
		case err != nil:
			result.Errors++
		case outcome == alert.OutcomeInserted:
			result.Inserted++
		default:
			result.Skipped++
		}
		s.broadcaster.Publish(progress.Event{
			RunID: result.RunID, Stage: progress.StageScan,
			Processed: i + 1, Total: len(candidates),
		})
	}

	if enrichAfter && !dryRun {
		outcomes, err := s.enrichBatch(ctx, result.RunID, s.cfg.Enrichment.MaxPerRun)
		if err != nil {
			s.logger.Errorf("Enrichment after scan failed: %v", err)
		} else {
			result.Enriched = outcomes
		}
	}

	s.broadcaster.Publish(progress.Event{
		RunID: result.RunID, Stage: progress.StageScan,
		Processed: len(candidates), Total: len(candidates), Finished: true,
		Message: "scan complete",
	})
	s.logger.Info("Scan complete")
	return result, nil
}

// EnrichAlerts enriches up to limit alerts lacking enrichment, newest
// first. A non-positive limit uses the interactive cap.
func (s *Scanner) EnrichAlerts(ctx context.Context, limit int) ([]enrich.Outcome, error) {
	if err := s.store.Ping(ctx); err != nil {
		return nil, fmt.Errorf("store not found: %w", err)
	}
	if limit <= 0 {
		limit = s.cfg.Enrichment.MaxInteractive
	}
	return s.enrichBatch(ctx, progress.NewRunID(), limit)
}

// EnrichAlert enriches one alert by id.
func (s *Scanner) EnrichAlert(ctx context.Context, alertID int64) (enrich.Outcome, error) {
	if err := s.store.Ping(ctx); err != nil {
		return enrich.Outcome{}, fmt.Errorf("store not found: %w", err)
	}
	runID := progress.NewRunID()
	s.broadcaster.Publish(progress.Event{
		RunID: runID, Stage: progress.StageEnrich,
		Message: fmt.Sprintf("enriching alert %d", alertID), Total: 1,
	})
	outcome, err := s.enricher.EnrichByID(ctx, alertID)
	s.broadcaster.Publish(progress.Event{
		RunID: runID, Stage: progress.StageEnrich,
		Processed: 1, Total: 1, Finished: true,
	})
	return outcome, err
}

func (s *Scanner) enrichBatch(ctx context.Context, runID string, limit int) ([]enrich.Outcome, error) {
	s.broadcaster.Publish(progress.Event{
		RunID: runID, Stage: progress.StageEnrich,
		Message: fmt.Sprintf("enriching up to %d alerts", limit),
	})
	outcomes, err := s.enricher.EnrichBatch(ctx, limit, func(done, total int) {
		s.broadcaster.Publish(progress.Event{
			RunID: runID, Stage: progress.StageEnrich,
			Processed: done, Total: total,
		})
	})
	s.broadcaster.Publish(progress.Event{
		RunID: runID, Stage: progress.StageEnrich,
		Processed: len(outcomes), Total: len(outcomes), Finished: true,
		Message: "enrichment complete",
	})
	return outcomes, err
}

// RunTrace runs a live path trace against an explicit target, or against
// the alert's destination (falling back to its source) when alertID is
// given. Hops get best-effort reverse names and geo attributes.
func (s *Scanner) RunTrace(ctx context.Context, target string, alertID int64, maxHops int) (*TraceResult, error) {
	if err := s.store.Ping(ctx); err != nil {
		return nil, fmt.Errorf("store not found: %w", err)
	}

	if target == "" && alertID > 0 {
		a, err := s.store.GetAlert(ctx, alertID)
		if err != nil {
			return nil, err
		}
		if a.DstIP != "" {
			target = a.DstIP
		} else {
			target = a.SrcIP
		}
		if target == "" {
			return nil, fmt.Errorf("no target ip available for alert %d", alertID)
		}
	}
	if target == "" {
		return nil, fmt.Errorf("target or alert id required")
	}

	tracer := s.tracer
	if maxHops > 0 && maxHops != s.cfg.Enrichment.TracerouteHops {
		tracer = enrich.NewTracerouteProvider(maxHops, s.cfg.Enrichment.TracerouteWait, s.correlator)
	}

	runID := progress.NewRunID()
	s.broadcaster.Publish(progress.Event{
		RunID: runID, Stage: progress.StageTrace,
		Message: "tracing " + target, Total: 1,
	})

	value := tracer.Lookup(ctx, target)
	payload, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("no traceroute output: %v", value)
	}
	raw, _ := payload["raw"].(string)
	hops, _ := payload["hops"].([]model.Hop)
	if raw == "" {
		return nil, fmt.Errorf("no traceroute output")
	}

	for i := range hops {
		if hops[i].IP == "" || hops[i].RDNS != "" {
			continue
		}
		if name, ok := s.rdns.Lookup(ctx, hops[i].IP).(string); ok {
			hops[i].RDNS = name
		}
	}

	s.broadcaster.Publish(progress.Event{
		RunID: runID, Stage: progress.StageTrace,
		Processed: 1, Total: 1, Finished: true,
	})
	return &TraceResult{Target: target, Hops: hops, RawOutput: raw}, nil
}
