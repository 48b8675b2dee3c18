package builtin

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"net-scout/internal/model"
	"net-scout/internal/store"
)

// seedFanOut adds one connection per distinct destination from src.
func seedFanOut(st *store.MemoryStore, src string, dsts int, at time.Time) {
	for i := 0; i < dsts; i++ {
		st.AddEvent(model.ConnectionEvent{
			Timestamp: at,
			SrcIP:     src,
			DstIP:     fmt.Sprintf("10.1.%d.%d", i/250, i%250),
			DstPort:   443,
		})
	}
}

func TestHorizontalScanRule_ThresholdIsStrict(t *testing.T) {
	now := time.Now().UTC()
	since := now.Add(-time.Hour)
	logger := logrus.New()

	// Exactly at the destination threshold: not flagged.
	st := store.NewMemoryStore()
	seedFanOut(st, "10.0.0.5", 50, now)
	rule := NewHorizontalScanRule(st, 50, 200, 200, logger)
	alerts, err := rule.Detect(context.Background(), since)
	require.NoError(t, err)
	assert.Empty(t, alerts)

	// One past it: flagged.
	st.AddEvent(model.ConnectionEvent{Timestamp: now, SrcIP: "10.0.0.5", DstIP: "10.9.9.9", DstPort: 443})
	alerts, err = rule.Detect(context.Background(), since)
	require.NoError(t, err)
	require.Len(t, alerts, 1)

	a := alerts[0]
	assert.Equal(t, model.AlertTypeHorizontalScan, a.AlertType)
	assert.Equal(t, "10.0.0.5", a.SrcIP)
	assert.Empty(t, a.DstIP)
	assert.Equal(t, 51, a.Evidence["dst_count"])
	assert.Equal(t, 51, a.Evidence["conn_count"])
	assert.Equal(t, 51+51/10, a.Score)
	assert.Equal(t, model.StatusNew, a.Status)
}

func TestHorizontalScanRule_ConnCountAloneTriggers(t *testing.T) {
	now := time.Now().UTC()
	st := store.NewMemoryStore()
	// 201 connections to a single destination: dst fan-out is 1 but the
	// connection threshold alone fires the rule.
	for i := 0; i < 201; i++ {
		st.AddEvent(model.ConnectionEvent{Timestamp: now, SrcIP: "10.0.0.5", DstIP: "10.1.0.1", DstPort: 443})
	}

	rule := NewHorizontalScanRule(st, 50, 200, 200, logrus.New())
	alerts, err := rule.Detect(context.Background(), now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, 1, alerts[0].Evidence["dst_count"])
	assert.Equal(t, 201, alerts[0].Evidence["conn_count"])
	assert.Equal(t, 1+201/10, alerts[0].Score)
}

func TestHorizontalScanRule_ScoreClampedAt100(t *testing.T) {
	now := time.Now().UTC()
	st := store.NewMemoryStore()
	seedFanOut(st, "10.0.0.5", 500, now)

	rule := NewHorizontalScanRule(st, 50, 200, 200, logrus.New())
	alerts, err := rule.Detect(context.Background(), now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, 100, alerts[0].Score)
}

func TestHorizontalScanRule_IgnoresEventsBeforeWindow(t *testing.T) {
	now := time.Now().UTC()
	st := store.NewMemoryStore()
	seedFanOut(st, "10.0.0.5", 60, now.Add(-3*time.Hour))

	rule := NewHorizontalScanRule(st, 50, 200, 200, logrus.New())
	alerts, err := rule.Detect(context.Background(), now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestVerticalScanRule_ThresholdIsStrict(t *testing.T) {
	now := time.Now().UTC()
	since := now.Add(-time.Hour)
	st := store.NewMemoryStore()
	for port := 1; port <= 50; port++ {
		st.AddEvent(model.ConnectionEvent{Timestamp: now, SrcIP: "10.0.0.5", DstIP: "10.1.0.1", DstPort: port})
	}

	rule := NewVerticalScanRule(st, 50, 200, logrus.New())
	alerts, err := rule.Detect(context.Background(), since)
	require.NoError(t, err)
	assert.Empty(t, alerts)

	st.AddEvent(model.ConnectionEvent{Timestamp: now, SrcIP: "10.0.0.5", DstIP: "10.1.0.1", DstPort: 51})
	alerts, err = rule.Detect(context.Background(), since)
	require.NoError(t, err)
	require.Len(t, alerts, 1)

	a := alerts[0]
	assert.Equal(t, model.AlertTypeVerticalScan, a.AlertType)
	assert.Equal(t, "10.0.0.5", a.SrcIP)
	assert.Equal(t, "10.1.0.1", a.DstIP)
	assert.Equal(t, 51, a.Evidence["ports"])
	assert.Equal(t, 51, a.Score)
}

func TestVerticalScanRule_RepeatedPortsCountOnce(t *testing.T) {
	now := time.Now().UTC()
	st := store.NewMemoryStore()
	// 200 probes over only 40 distinct ports: below the threshold.
	for i := 0; i < 200; i++ {
		st.AddEvent(model.ConnectionEvent{Timestamp: now, SrcIP: "10.0.0.5", DstIP: "10.1.0.1", DstPort: i%40 + 1})
	}

	rule := NewVerticalScanRule(st, 50, 200, logrus.New())
	alerts, err := rule.Detect(context.Background(), now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestConnectionVolumeRule_ThresholdAndScore(t *testing.T) {
	now := time.Now().UTC()
	since := now.Add(-time.Hour)
	st := store.NewMemoryStore()
	for i := 0; i < 200; i++ {
		st.AddEvent(model.ConnectionEvent{Timestamp: now, SrcIP: "10.0.0.5", DstIP: "10.1.0.1", DstPort: 443})
	}

	rule := NewConnectionVolumeRule(st, 200, 200, logrus.New())
	alerts, err := rule.Detect(context.Background(), since)
	require.NoError(t, err)
	assert.Empty(t, alerts)

	st.AddEvent(model.ConnectionEvent{Timestamp: now, SrcIP: "10.0.0.5", DstIP: "10.1.0.1", DstPort: 443})
	alerts, err = rule.Detect(context.Background(), since)
	require.NoError(t, err)
	require.Len(t, alerts, 1)

	a := alerts[0]
	assert.Equal(t, model.AlertTypeHighConnVolume, a.AlertType)
	assert.Equal(t, "10.0.0.5", a.SrcIP)
	assert.Empty(t, a.DstIP)
	assert.Equal(t, 201, a.Evidence["total_conns"])
	assert.Equal(t, 100, a.Score)
}

func TestConnectionVolumeRule_ScoreIsHalfOfTotal(t *testing.T) {
	now := time.Now().UTC()
	st := store.NewMemoryStore()
	for i := 0; i < 120; i++ {
		st.AddEvent(model.ConnectionEvent{Timestamp: now, SrcIP: "10.0.0.5", DstIP: "10.1.0.1", DstPort: 443})
	}

	rule := NewConnectionVolumeRule(st, 100, 200, logrus.New())
	alerts, err := rule.Detect(context.Background(), now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, 60, alerts[0].Score)
}

func TestRules_PerRuleLimitCapsResults(t *testing.T) {
	now := time.Now().UTC()
	st := store.NewMemoryStore()
	for s := 0; s < 5; s++ {
		seedFanOut(st, fmt.Sprintf("10.0.%d.5", s), 60, now)
	}

	rule := NewHorizontalScanRule(st, 50, 200, 3, logrus.New())
	alerts, err := rule.Detect(context.Background(), now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Len(t, alerts, 3)
}
