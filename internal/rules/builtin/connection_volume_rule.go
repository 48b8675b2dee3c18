package builtin

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"net-scout/internal/model"
	"net-scout/internal/store"
)

// ConnectionVolumeRule flags sources whose total connection count inside
// the window exceeds the threshold, regardless of destination spread.
type ConnectionVolumeRule struct {
	events        store.EventStore
	connThreshold int
	limit         int
	logger        *logrus.Logger
}

func NewConnectionVolumeRule(events store.EventStore, connThreshold, limit int, logger *logrus.Logger) *ConnectionVolumeRule {
	return &ConnectionVolumeRule{
		events:        events,
		connThreshold: connThreshold,
		limit:         limit,
		logger:        logger,
	}
}

func (r *ConnectionVolumeRule) Name() string {
	return model.AlertTypeHighConnVolume
}

func (r *ConnectionVolumeRule) Detect(ctx context.Context, since time.Time) ([]model.Alert, error) {
	aggs, err := r.events.VolumeAggregates(ctx, since, r.connThreshold, r.limit)
	if err != nil {
		return nil, err
	}

	sinceISO := since.UTC().Format(time.RFC3339)
	var alerts []model.Alert
	for _, a := range aggs {
		alerts = append(alerts, model.Alert{
			AlertType: model.AlertTypeHighConnVolume,
			SrcIP:     a.SrcIP,
			Score:     model.ClampScore(a.TotalConns / 2),
			Evidence: map[string]any{
				"total_conns": a.TotalConns,
				"since":       sinceISO,
			},
			Status: model.StatusNew,
		})
	}
	return alerts, nil
}
