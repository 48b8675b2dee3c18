package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"net-scout/internal/config"
	"net-scout/internal/model"
	"net-scout/internal/pipeline"
	"net-scout/internal/store"
	"net-scout/internal/trace"
)

type Handlers struct {
	store      store.Store
	scanner    *pipeline.Scanner
	correlator *trace.Correlator
	cfg        *config.Config
	logger     *logrus.Logger
	upgrader   websocket.Upgrader
}

func NewHandlers(st store.Store, scanner *pipeline.Scanner, cfg *config.Config, logger *logrus.Logger) *Handlers {
	return &Handlers{
		store:      st,
		scanner:    scanner,
		correlator: trace.NewCorrelator(st, logger),
		cfg:        cfg,
		logger:     logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// alertView is an alert plus the approximate location of its most relevant
// endpoint, for the map view.
type alertView struct {
	model.Alert
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// GetAlerts lists stored alerts with optional filters.
func (h *Handlers) GetAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := store.AlertFilter{
		AlertType: q.Get("type"),
		SrcIP:     q.Get("src"),
		DstIP:     q.Get("dst"),
	}
	if v := q.Get("since"); v != "" {
		since := pipeline.ParseSince(v, time.Now())
		filter.Since = &since
	}
	if v := q.Get("min_score"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.MinScore = &n
		}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}

	alerts, err := h.store.ListAlerts(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	views := make([]alertView, 0, len(alerts))
	for _, a := range alerts {
		view := alertView{Alert: a}
		ip := a.DstIP
		if ip == "" {
			ip = a.SrcIP
		}
		if ip != "" {
			if geo, err := h.correlator.SubjectGeo(r.Context(), ip); err == nil && geo != nil {
				view.Latitude = &geo.Latitude
				view.Longitude = &geo.Longitude
			}
		}
		views = append(views, view)
	}

	writeJSON(w, http.StatusOK, map[string]any{"alerts": views})
}

type runScanRequest struct {
	Since  string `json:"since"`
	Enrich bool   `json:"enrich"`
	DryRun bool   `json:"dry_run"`
}

// RunScan starts a detection run in the background. Progress is observable
// via /api/status and the websocket stream.
func (h *Handlers) RunScan(w http.ResponseWriter, r *http.Request) {
	var req runScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err.Error() != "EOF" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Since == "" {
		req.Since = h.cfg.Detection.DefaultSince
	}
	since := pipeline.ParseSince(req.Since, time.Now())

	go func() {
		if _, err := h.scanner.RunDetection(context.Background(), since, req.Enrich, req.DryRun); err != nil {
			h.logger.Errorf("Background scan failed: %v", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status": "started",
		"since":  since.UTC().Format(time.RFC3339),
	})
}

type enrichAlertRequest struct {
	AlertID  int64   `json:"alert_id"`
	AlertIDs []int64 `json:"alert_ids"`
	Limit    int     `json:"limit"`
}

// EnrichAlert enriches one alert by id, synchronously.
func (h *Handlers) EnrichAlert(w http.ResponseWriter, r *http.Request) {
	var req enrichAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AlertID == 0 {
		writeError(w, http.StatusBadRequest, "alert_id required")
		return
	}

	outcome, err := h.scanner.EnrichAlert(r.Context(), req.AlertID)
	if err != nil {
		if err == store.ErrNotFound {
			writeError(w, http.StatusNotFound, "alert not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// EnrichBulk enriches a set of alerts or the newest unenriched up to a
// limit, in the background.
func (h *Handlers) EnrichBulk(w http.ResponseWriter, r *http.Request) {
	var req enrichAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	switch {
	case len(req.AlertIDs) > 0:
		go func() {
			for _, id := range req.AlertIDs {
				if _, err := h.scanner.EnrichAlert(context.Background(), id); err != nil {
					h.logger.Errorf("Failed to enrich alert %d: %v", id, err)
				}
			}
		}()
	case req.Limit > 0:
		go func() {
			if _, err := h.scanner.EnrichAlerts(context.Background(), req.Limit); err != nil {
				h.logger.Errorf("Bulk enrichment failed: %v", err)
			}
		}()
	default:
		writeError(w, http.StatusBadRequest, "alert_ids or limit required")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "started"})
}

// GetEnrichmentCache lists recent cache entries.
func (h *Handlers) GetEnrichmentCache(w http.ResponseWriter, r *http.Request) {
	limit := 500
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	entries, err := h.store.CacheList(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cache": entries})
}

type snoozeRequest struct {
	AlertID int64  `json:"alert_id"`
	Action  string `json:"action"`
}

// SnoozeAlert marks an alert snoozed or false-positive.
func (h *Handlers) SnoozeAlert(w http.ResponseWriter, r *http.Request) {
	var req snoozeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AlertID == 0 {
		writeError(w, http.StatusBadRequest, "alert_id required")
		return
	}
	if req.Action == "" {
		req.Action = "snooze"
	}

	var status string
	switch req.Action {
	case "snooze":
		status = model.StatusSnoozed
	case "false_positive":
		status = model.StatusFalsePositive
	default:
		writeError(w, http.StatusBadRequest, "invalid action")
		return
	}

	if err := h.store.UpdateStatus(r.Context(), req.AlertID, status); err != nil {
		if err == store.ErrNotFound {
			writeError(w, http.StatusNotFound, "alert not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "alert_id": req.AlertID, "action": req.Action})
}

// GetTrace returns the stored trace data for an alert. Enrichment written
// by older runs may only carry raw text; that is parsed and geo-annotated
// on the fly.
func (h *Handlers) GetTrace(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.URL.Query().Get("alert_id"), 10, 64)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, "alert_id required")
		return
	}

	a, err := h.store.GetAlert(r.Context(), id)
	if err != nil {
		if err == store.ErrNotFound {
			writeError(w, http.StatusNotFound, "alert not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var hops any
	var raw string
	for _, side := range []string{"dst", "src"} {
		sideMap, _ := a.Enrichment[side].(map[string]any)
		tr, _ := sideMap["traceroute"].(map[string]any)
		if tr == nil {
			continue
		}
		if raw == "" {
			raw, _ = tr["raw"].(string)
		}
		if hops == nil {
			// JSON-round-tripped enrichment carries []any; rows enriched
			// in-process still hold the typed hop slice.
			switch list := tr["hops"].(type) {
			case []any:
				if len(list) > 0 {
					hops = list
				}
			case []model.Hop:
				if len(list) > 0 {
					hops = list
				}
			}
		}
	}
	if hops == nil && raw != "" {
		parsed := trace.Parse(raw)
		h.correlator.AnnotateHops(r.Context(), parsed)
		hops = parsed
	}
	if hops == nil {
		hops = []any{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"hops":       hops,
		"raw_output": raw,
		"src_ip":     a.SrcIP,
		"dst_ip":     a.DstIP,
	})
}

type traceRunRequest struct {
	AlertID int64  `json:"alert_id"`
	Target  string `json:"target"`
	MaxHops int    `json:"max_hops"`
}

// TraceRun runs a live path trace for a target or an alert's endpoint.
func (h *Handlers) TraceRun(w http.ResponseWriter, r *http.Request) {
	var req traceRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Target == "" && req.AlertID == 0 {
		writeError(w, http.StatusBadRequest, "target or alert_id required")
		return
	}
	if req.MaxHops <= 0 {
		req.MaxHops = 30
	}

	result, err := h.scanner.RunTrace(r.Context(), req.Target, req.AlertID, req.MaxHops)
	if err != nil {
		if err == store.ErrNotFound {
			writeError(w, http.StatusNotFound, "alert not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetStatus reports the latest progress event per stage.
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	snapshot := h.scanner.Progress().Snapshot()
	out := make(map[string]any, len(snapshot))
	for stage, evt := range snapshot {
		out[stage] = map[string]any{
			"run_id":    evt.RunID,
			"message":   evt.Message,
			"processed": evt.Processed,
			"total":     evt.Total,
			"percent":   evt.Percent(),
			"finished":  evt.Finished,
			"timestamp": evt.Timestamp,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"stages": out})
}

// StreamProgress pushes progress events over a websocket.
func (h *Handlers) StreamProgress(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sub := h.scanner.Progress().Subscribe()
	defer h.scanner.Progress().Unsubscribe(sub)

	h.logger.Infof("Progress subscriber %s connected from %s", sub.ID, r.RemoteAddr)

	// Reader goroutine to detect client disconnect.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case evt := <-sub.Channel:
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// Health is a liveness probe that also checks the store.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Errorf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
