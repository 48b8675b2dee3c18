package store

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"net-scout/internal/model"
)

func TestMemoryStore_InsertAlertAssignsIDs(t *testing.T) {
	st := NewMemoryStore()
	now := time.Now().UTC()

	a := &model.Alert{AlertType: model.AlertTypeHorizontalScan, SrcIP: "10.0.0.5", CreatedAt: now}
	require.NoError(t, st.InsertAlert(context.Background(), a))
	assert.Equal(t, int64(1), a.ID)

	b := &model.Alert{AlertType: model.AlertTypeVerticalScan, SrcIP: "10.0.0.5", DstIP: "10.1.0.1", CreatedAt: now}
	require.NoError(t, st.InsertAlert(context.Background(), b))
	assert.Equal(t, int64(2), b.ID)
}

func TestMemoryStore_DuplicatePerDayRejected(t *testing.T) {
	st := NewMemoryStore()
	day := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)

	first := &model.Alert{AlertType: model.AlertTypeHorizontalScan, SrcIP: "10.0.0.5", CreatedAt: day}
	require.NoError(t, st.InsertAlert(context.Background(), first))

	// Same key later the same UTC day.
	dup := &model.Alert{AlertType: model.AlertTypeHorizontalScan, SrcIP: "10.0.0.5", CreatedAt: day.Add(8 * time.Hour)}
	assert.ErrorIs(t, st.InsertAlert(context.Background(), dup), ErrDuplicateAlert)

	// Next day is a fresh key.
	next := &model.Alert{AlertType: model.AlertTypeHorizontalScan, SrcIP: "10.0.0.5", CreatedAt: day.Add(24 * time.Hour)}
	assert.NoError(t, st.InsertAlert(context.Background(), next))

	// An empty dst participates in the key; two alerts differing only in
	// type are distinct.
	other := &model.Alert{AlertType: model.AlertTypeHighConnVolume, SrcIP: "10.0.0.5", CreatedAt: day}
	assert.NoError(t, st.InsertAlert(context.Background(), other))
}

func TestMemoryStore_ListAlertsFilters(t *testing.T) {
	st := NewMemoryStore()
	base := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	ctx := context.Background()

	require.NoError(t, st.InsertAlert(ctx, &model.Alert{
		AlertType: model.AlertTypeHorizontalScan, SrcIP: "10.0.0.5", Score: 66, CreatedAt: base,
	}))
	require.NoError(t, st.InsertAlert(ctx, &model.Alert{
		AlertType: model.AlertTypeVerticalScan, SrcIP: "10.0.0.5", DstIP: "10.1.0.1", Score: 51, CreatedAt: base.Add(time.Minute),
	}))
	require.NoError(t, st.InsertAlert(ctx, &model.Alert{
		AlertType: model.AlertTypeHighConnVolume, SrcIP: "192.168.1.9", Score: 30, CreatedAt: base.Add(2 * time.Minute),
	}))

	all, err := st.ListAlerts(ctx, AlertFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	// Newest first.
	assert.Equal(t, model.AlertTypeHighConnVolume, all[0].AlertType)

	byType, err := st.ListAlerts(ctx, AlertFilter{AlertType: model.AlertTypeVerticalScan})
	require.NoError(t, err)
	require.Len(t, byType, 1)
	assert.Equal(t, "10.1.0.1", byType[0].DstIP)

	bySrc, err := st.ListAlerts(ctx, AlertFilter{SrcIP: "10.0.0."})
	require.NoError(t, err)
	assert.Len(t, bySrc, 2)

	minScore := 50
	byScore, err := st.ListAlerts(ctx, AlertFilter{MinScore: &minScore})
	require.NoError(t, err)
	assert.Len(t, byScore, 2)

	since := base.Add(90 * time.Second)
	bySince, err := st.ListAlerts(ctx, AlertFilter{Since: &since})
	require.NoError(t, err)
	assert.Len(t, bySince, 1)

	limited, err := st.ListAlerts(ctx, AlertFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestMemoryStore_ListUnenrichedNewestFirst(t *testing.T) {
	st := NewMemoryStore()
	base := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	ctx := context.Background()

	old := &model.Alert{AlertType: model.AlertTypeHorizontalScan, SrcIP: "10.0.0.1", CreatedAt: base}
	newer := &model.Alert{AlertType: model.AlertTypeHorizontalScan, SrcIP: "10.0.0.2", CreatedAt: base.Add(time.Hour)}
	enriched := &model.Alert{AlertType: model.AlertTypeHorizontalScan, SrcIP: "10.0.0.3", CreatedAt: base.Add(2 * time.Hour)}
	require.NoError(t, st.InsertAlert(ctx, old))
	require.NoError(t, st.InsertAlert(ctx, newer))
	require.NoError(t, st.InsertAlert(ctx, enriched))
	require.NoError(t, st.UpdateEnrichment(ctx, enriched.ID, map[string]any{"src": map[string]any{}}, model.StatusEnriched))

	pending, err := st.ListUnenriched(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "10.0.0.2", pending[0].SrcIP)
	assert.Equal(t, "10.0.0.1", pending[1].SrcIP)

	capped, err := st.ListUnenriched(ctx, 1)
	require.NoError(t, err)
	require.Len(t, capped, 1)
	assert.Equal(t, "10.0.0.2", capped[0].SrcIP)
}

func TestMemoryStore_UpdateStatus(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	a := &model.Alert{AlertType: model.AlertTypeHorizontalScan, SrcIP: "10.0.0.5", CreatedAt: time.Now().UTC()}
	require.NoError(t, st.InsertAlert(ctx, a))

	require.NoError(t, st.UpdateStatus(ctx, a.ID, model.StatusSnoozed))
	stored, err := st.GetAlert(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSnoozed, stored.Status)

	assert.ErrorIs(t, st.UpdateStatus(ctx, 404, model.StatusSnoozed), ErrNotFound)
}

func TestMemoryStore_CacheMissReturnsNilNil(t *testing.T) {
	st := NewMemoryStore()
	entry, err := st.CacheGet(context.Background(), SubjectKey("rdns", "203.0.113.9"))
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestMemoryStore_CacheUpsertLastWriteWins(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	key := SubjectKey("rdns", "203.0.113.9")

	require.NoError(t, st.CacheSet(ctx, key, "rdns", "old.example.net"))
	require.NoError(t, st.CacheSet(ctx, key, "rdns", "new.example.net"))

	entry, err := st.CacheGet(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, entry)

	var value string
	require.NoError(t, json.Unmarshal(entry.Result, &value))
	assert.Equal(t, "new.example.net", value)

	entries, err := st.CacheList(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestMemoryStore_HorizontalAggregatesOrderedByFanOut(t *testing.T) {
	st := NewMemoryStore()
	now := time.Now().UTC()
	for i := 0; i < 60; i++ {
		st.AddEvent(model.ConnectionEvent{Timestamp: now, SrcIP: "10.0.0.1", DstIP: ipFor(i), DstPort: 443})
	}
	for i := 0; i < 80; i++ {
		st.AddEvent(model.ConnectionEvent{Timestamp: now, SrcIP: "10.0.0.2", DstIP: ipFor(i), DstPort: 443})
	}

	aggs, err := st.HorizontalAggregates(context.Background(), now.Add(-time.Hour), 50, 200, 10)
	require.NoError(t, err)
	require.Len(t, aggs, 2)
	assert.Equal(t, "10.0.0.2", aggs[0].SrcIP)
	assert.Equal(t, 80, aggs[0].DstCount)
	assert.Equal(t, "10.0.0.1", aggs[1].SrcIP)
}

func ipFor(i int) string {
	return fmt.Sprintf("10.1.%d.%d", i/250, i%250)
}
