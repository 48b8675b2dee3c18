package builtin

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"net-scout/internal/model"
	"net-scout/internal/store"
)

// HorizontalScanRule flags sources that contact many distinct destinations,
// or simply generate an outsized number of connections, inside the window.
// The alert has no dst_ip: it characterizes the source's fan-out.
type HorizontalScanRule struct {
	events         store.EventStore
	dstIPThreshold int
	connThreshold  int
	limit          int
	logger         *logrus.Logger
}

func NewHorizontalScanRule(events store.EventStore, dstIPThreshold, connThreshold, limit int, logger *logrus.Logger) *HorizontalScanRule {
	return &HorizontalScanRule{
		events:         events,
		dstIPThreshold: dstIPThreshold,
		connThreshold:  connThreshold,
		limit:          limit,
		logger:         logger,
	}
}

func (r *HorizontalScanRule) Name() string {
	return model.AlertTypeHorizontalScan
}

func (r *HorizontalScanRule) Detect(ctx context.Context, since time.Time) ([]model.Alert, error) {
	aggs, err := r.events.HorizontalAggregates(ctx, since, r.dstIPThreshold, r.connThreshold, r.limit)
	if err != nil {
		return nil, err
	}

	sinceISO := since.UTC().Format(time.RFC3339)
	var alerts []model.Alert
	for _, a := range aggs {
		alerts = append(alerts, model.Alert{
			AlertType: model.AlertTypeHorizontalScan,
			SrcIP:     a.SrcIP,
			Score:     model.ClampScore(a.DstCount + a.ConnCount/10),
			Evidence: map[string]any{
				"dst_count":  a.DstCount,
				"conn_count": a.ConnCount,
				"since":      sinceISO,
			},
			Status: model.StatusNew,
		})
	}
	return alerts, nil
}
