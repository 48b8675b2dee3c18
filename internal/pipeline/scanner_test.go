package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"net-scout/internal/config"
	"net-scout/internal/model"
	"net-scout/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	// Disable external lookups so runs never shell out or hit the network.
	cfg.Enrichment.EnableRDNS = false
	cfg.Enrichment.EnableWhois = false
	cfg.Enrichment.EnableTraceroute = false
	cfg.Enrichment.TracerouteHops = 20
	cfg.Enrichment.Sleep = time.Millisecond
	cfg.Enrichment.MaxPerRun = 50
	require.NoError(t, cfg.Validate())
	return cfg
}

func seedHorizontalScan(st *store.MemoryStore, src string, dsts int, at time.Time) {
	for i := 0; i < dsts; i++ {
		st.AddEvent(model.ConnectionEvent{
			Timestamp: at,
			SrcIP:     src,
			DstIP:     fmt.Sprintf("10.1.%d.%d", i/250, i%250),
			DstPort:   443,
		})
	}
}

func TestRunDetection_EndToEnd(t *testing.T) {
	st := store.NewMemoryStore()
	now := time.Now().UTC()
	seedHorizontalScan(st, "10.0.0.5", 60, now)

	scanner := NewScanner(st, testConfig(t), logrus.New())
	result, err := scanner.RunDetection(context.Background(), now.Add(-time.Hour), false, false)
	require.NoError(t, err)

	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, 1, result.Candidates)
	assert.Equal(t, 1, result.Inserted)
	assert.Zero(t, result.Skipped)
	assert.Zero(t, result.Errors)
	assert.Empty(t, result.RuleFailures)

	alerts, err := st.ListAlerts(context.Background(), store.AlertFilter{})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	a := alerts[0]
	assert.Equal(t, model.AlertTypeHorizontalScan, a.AlertType)
	assert.Equal(t, "10.0.0.5", a.SrcIP)
	assert.Empty(t, a.DstIP)
	assert.Equal(t, 60+60/10, a.Score)
	assert.Equal(t, model.StatusNew, a.Status)
}

func TestRunDetection_SecondRunSameDaySkips(t *testing.T) {
	st := store.NewMemoryStore()
	now := time.Now().UTC()
	seedHorizontalScan(st, "10.0.0.5", 60, now)

	scanner := NewScanner(st, testConfig(t), logrus.New())
	since := now.Add(-time.Hour)

	first, err := scanner.RunDetection(context.Background(), since, false, false)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Inserted)

	second, err := scanner.RunDetection(context.Background(), since, false, false)
	require.NoError(t, err)
	assert.Zero(t, second.Inserted)
	assert.Equal(t, 1, second.Skipped)

	alerts, err := st.ListAlerts(context.Background(), store.AlertFilter{})
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
}

func TestRunDetection_DryRunWritesNothing(t *testing.T) {
	st := store.NewMemoryStore()
	now := time.Now().UTC()
	seedHorizontalScan(st, "10.0.0.5", 60, now)

	scanner := NewScanner(st, testConfig(t), logrus.New())
	result, err := scanner.RunDetection(context.Background(), now.Add(-time.Hour), true, true)
	require.NoError(t, err)

	assert.True(t, result.DryRun)
	assert.Equal(t, 1, result.Candidates)
	assert.Equal(t, 1, result.Inserted) // would-insert
	assert.Empty(t, result.Enriched)

	alerts, err := st.ListAlerts(context.Background(), store.AlertFilter{})
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestRunDetection_QuietWindowProducesNothing(t *testing.T) {
	st := store.NewMemoryStore()
	now := time.Now().UTC()
	st.AddEvent(model.ConnectionEvent{Timestamp: now, SrcIP: "10.0.0.5", DstIP: "10.1.0.1", DstPort: 443})

	scanner := NewScanner(st, testConfig(t), logrus.New())
	result, err := scanner.RunDetection(context.Background(), now.Add(-time.Hour), false, false)
	require.NoError(t, err)
	assert.Zero(t, result.Candidates)
	assert.Zero(t, result.Inserted)
}

func TestRunDetection_VerticalScanScenario(t *testing.T) {
	st := store.NewMemoryStore()
	now := time.Now().UTC()
	for port := 1; port <= 60; port++ {
		st.AddEvent(model.ConnectionEvent{Timestamp: now, SrcIP: "10.0.0.5", DstIP: "10.1.0.1", DstPort: port})
	}

	scanner := NewScanner(st, testConfig(t), logrus.New())
	result, err := scanner.RunDetection(context.Background(), now.Add(-time.Hour), false, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Candidates)

	alerts, err := st.ListAlerts(context.Background(), store.AlertFilter{AlertType: model.AlertTypeVerticalScan})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "10.1.0.1", alerts[0].DstIP)
	assert.Equal(t, 60, alerts[0].Score)
}

func TestRunDetection_PublishesProgress(t *testing.T) {
	st := store.NewMemoryStore()
	now := time.Now().UTC()
	seedHorizontalScan(st, "10.0.0.5", 60, now)

	scanner := NewScanner(st, testConfig(t), logrus.New())
	sub := scanner.Progress().Subscribe()
	defer scanner.Progress().Unsubscribe(sub)

	result, err := scanner.RunDetection(context.Background(), now.Add(-time.Hour), false, false)
	require.NoError(t, err)

	snapshot := scanner.Progress().Snapshot()
	require.Contains(t, snapshot, "scan")
	final := snapshot["scan"]
	assert.Equal(t, result.RunID, final.RunID)
	assert.True(t, final.Finished)
	assert.Equal(t, 100, final.Percent())

	// The subscriber saw at least the initial and final events.
	assert.GreaterOrEqual(t, len(sub.Channel), 2)
}

func TestEnrichAlerts_DefaultsToInteractiveCap(t *testing.T) {
	st := store.NewMemoryStore()
	cfg := testConfig(t)
	base := time.Now().UTC()
	for i := 0; i < cfg.Enrichment.MaxInteractive+5; i++ {
		a := &model.Alert{
			AlertType: model.AlertTypeHorizontalScan,
			SrcIP:     fmt.Sprintf("10.0.%d.5", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, st.InsertAlert(context.Background(), a))
	}

	scanner := NewScanner(st, cfg, logrus.New())
	outcomes, err := scanner.EnrichAlerts(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, outcomes, cfg.Enrichment.MaxInteractive)
}

func TestRunTrace_RequiresTarget(t *testing.T) {
	scanner := NewScanner(store.NewMemoryStore(), testConfig(t), logrus.New())
	_, err := scanner.RunTrace(context.Background(), "", 0, 20)
	assert.Error(t, err)
}

func TestRunTrace_UnknownAlert(t *testing.T) {
	scanner := NewScanner(store.NewMemoryStore(), testConfig(t), logrus.New())
	_, err := scanner.RunTrace(context.Background(), "", 404, 20)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
