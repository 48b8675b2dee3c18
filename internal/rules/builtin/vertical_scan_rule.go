package builtin

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"net-scout/internal/model"
	"net-scout/internal/store"
)

// VerticalScanRule flags (src, dst) pairs where the source probed many
// distinct destination ports inside the window.
type VerticalScanRule struct {
	events         store.EventStore
	portsThreshold int
	limit          int
	logger         *logrus.Logger
}

func NewVerticalScanRule(events store.EventStore, portsThreshold, limit int, logger *logrus.Logger) *VerticalScanRule {
	return &VerticalScanRule{
		events:         events,
		portsThreshold: portsThreshold,
		limit:          limit,
		logger:         logger,
	}
}

func (r *VerticalScanRule) Name() string {
	return model.AlertTypeVerticalScan
}

func (r *VerticalScanRule) Detect(ctx context.Context, since time.Time) ([]model.Alert, error) {
	aggs, err := r.events.VerticalAggregates(ctx, since, r.portsThreshold, r.limit)
	if err != nil {
		return nil, err
	}

	sinceISO := since.UTC().Format(time.RFC3339)
	var alerts []model.Alert
	for _, a := range aggs {
		alerts = append(alerts, model.Alert{
			AlertType: model.AlertTypeVerticalScan,
			SrcIP:     a.SrcIP,
			DstIP:     a.DstIP,
			Score:     model.ClampScore(a.Ports),
			Evidence: map[string]any{
				"ports": a.Ports,
				"since": sinceISO,
			},
			Status: model.StatusNew,
		})
	}
	return alerts, nil
}
