package trace

import (
	"context"

	"github.com/sirupsen/logrus"

	"net-scout/internal/model"
	"net-scout/internal/store"
)

// Correlator attaches approximate geo attributes to hops and subjects by
// searching historical connection events where the IP appears as either
// endpoint with geodata, most recent first. It never mutates events.
type Correlator struct {
	events store.EventStore
	logger *logrus.Logger
}

func NewCorrelator(events store.EventStore, logger *logrus.Logger) *Correlator {
	return &Correlator{events: events, logger: logger}
}

// AnnotateHops fills in geo attributes for every hop whose IP has
// historical event geodata. Hops without a match are left untouched;
// lookup failures only log.
func (c *Correlator) AnnotateHops(ctx context.Context, hops []model.Hop) {
	var ips []string
	seen := make(map[string]bool)
	for _, h := range hops {
		if h.IP != "" && !seen[h.IP] {
			seen[h.IP] = true
			ips = append(ips, h.IP)
		}
	}
	if len(ips) == 0 {
		return
	}

	geo, err := c.events.LatestGeo(ctx, ips)
	if err != nil {
		c.logger.Warnf("Geo correlation failed: %v", err)
		return
	}

	for i := range hops {
		g, ok := geo[hops[i].IP]
		if !ok {
			continue
		}
		lat, lon := g.Latitude, g.Longitude
		hops[i].Lat = &lat
		hops[i].Lon = &lon
		hops[i].Country = g.Country
		hops[i].State = g.Region
		hops[i].City = g.City
	}
}

// SubjectGeo returns the most recent geodata for a single IP, or nil when
// no event carries any.
func (c *Correlator) SubjectGeo(ctx context.Context, ip string) (*model.Geo, error) {
	if ip == "" {
		return nil, nil
	}
	geo, err := c.events.LatestGeo(ctx, []string{ip})
	if err != nil {
		return nil, err
	}
	if g, ok := geo[ip]; ok {
		return &g, nil
	}
	return nil, nil
}
