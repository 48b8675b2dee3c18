package alert

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"net-scout/internal/model"
	"net-scout/internal/store"
)

// Outcome classifies one candidate's persistence result. Skipped means a
// row for the same (type, src, dst) already exists for the current UTC
// day; it is a normal outcome, not an error.
type Outcome string

const (
	OutcomeInserted Outcome = "inserted"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeError    Outcome = "error"
)

// Writer persists candidate alerts idempotently. The store's uniqueness
// constraint is the sole mutual exclusion between concurrent runs; a
// constraint violation is read back as "already recorded".
type Writer struct {
	alerts    store.AlertStore
	dryRun    bool
	notifiers []Notifier
	metrics   *Metrics
	logger    *logrus.Logger
	now       func() time.Time
}

func NewWriter(alerts store.AlertStore, dryRun bool, logger *logrus.Logger) *Writer {
	return &Writer{
		alerts: alerts,
		dryRun: dryRun,
		logger: logger,
		now:    time.Now,
	}
}

func (w *Writer) RegisterNotifier(n Notifier) {
	w.notifiers = append(w.notifiers, n)
}

func (w *Writer) SetMetrics(m *Metrics) {
	w.metrics = m
}

// Write attempts to persist one candidate. In dry-run mode it performs the
// same duplicate check against the store for observability but never
// writes. On a real insert the row is stamped with the current time, not
// an event timestamp.
func (w *Writer) Write(ctx context.Context, candidate model.Alert) (Outcome, error) {
	candidate.CreatedAt = w.now().UTC()
	if candidate.Status == "" {
		candidate.Status = model.StatusNew
	}

	if w.dryRun {
		return w.dryRunCheck(ctx, candidate)
	}

	err := w.alerts.InsertAlert(ctx, &candidate)
	if errors.Is(err, store.ErrDuplicateAlert) {
		w.logger.Infof("[SKIPPED - duplicate] %s %s %s", candidate.AlertType, candidate.SrcIP, candidate.DstIP)
		if w.metrics != nil {
			w.metrics.AlertsSkipped.Inc()
		}
		return OutcomeSkipped, nil
	}
	if err != nil {
		w.logger.Errorf("Failed to insert alert: %v", err)
		return OutcomeError, err
	}

	w.logger.Infof("[INSERTED] %s %s %s score=%d", candidate.AlertType, candidate.SrcIP, candidate.DstIP, candidate.Score)
	if w.metrics != nil {
		w.metrics.AlertsInserted.WithLabelValues(candidate.AlertType).Inc()
	}
	for _, n := range w.notifiers {
		if err := n.SendAlert(candidate); err != nil {
			w.logger.Errorf("Failed to send alert notification: %v", err)
		}
	}
	return OutcomeInserted, nil
}

// dryRunCheck reports what Write would have done without touching the
// store: would-insert or would-skip against today's existing rows. The
// endpoint filters narrow the scan and the explicit limit keeps a busy
// day from truncating it past a matching row.
func (w *Writer) dryRunCheck(ctx context.Context, candidate model.Alert) (Outcome, error) {
	dayStart := candidate.CreatedAt.Truncate(24 * time.Hour)
	existing, err := w.alerts.ListAlerts(ctx, store.AlertFilter{
		AlertType: candidate.AlertType,
		SrcIP:     candidate.SrcIP,
		DstIP:     candidate.DstIP,
		Since:     &dayStart,
		Limit:     100000,
	})
	if err != nil {
		return OutcomeError, err
	}
	for _, a := range existing {
		if a.SrcIP == candidate.SrcIP && a.DstIP == candidate.DstIP {
			w.logger.Infof("[DRY RUN] would skip duplicate: %s %s %s", candidate.AlertType, candidate.SrcIP, candidate.DstIP)
			return OutcomeSkipped, nil
		}
	}
	w.logger.Infof("[DRY RUN] would insert: %s %s %s score=%d", candidate.AlertType, candidate.SrcIP, candidate.DstIP, candidate.Score)
	return OutcomeInserted, nil
}
