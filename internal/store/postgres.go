package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"net-scout/internal/model"
)

// PostgresStore backs net-scout with a PostgreSQL database. The ip_events
// table is owned by the ingestion side; this store only reads it.
type PostgresStore struct {
	db     *sql.DB
	logger *logrus.Logger
}

// NewPostgresStore opens the database and verifies connectivity.
func NewPostgresStore(dsn string, logger *logrus.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresStore{db: db, logger: logger}, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the alert and cache tables and their indexes if
// missing. Safe to run on every start. The alert uniqueness index folds
// NULL endpoints to '' so same-day re-detection of single-endpoint
// patterns still collides.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS scout_alerts (
			id BIGSERIAL PRIMARY KEY,
			alert_type TEXT NOT NULL,
			src_ip TEXT,
			dst_ip TEXT,
			score INTEGER NOT NULL DEFAULT 0,
			evidence_json TEXT,
			enrichment_json TEXT,
			status TEXT NOT NULL DEFAULT 'new',
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_scout_alerts_unique
			ON scout_alerts (alert_type, COALESCE(src_ip, ''), COALESCE(dst_ip, ''),
				((created_at AT TIME ZONE 'UTC')::date))`,
		`CREATE TABLE IF NOT EXISTS scout_enrichment_cache (
			id BIGSERIAL PRIMARY KEY,
			subject TEXT NOT NULL UNIQUE,
			kind TEXT,
			result_json TEXT,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema migration failed: %w", err)
		}
	}
	s.logger.Debug("Ensured scout_alerts and scout_enrichment_cache schema")
	return nil
}

func (s *PostgresStore) HorizontalAggregates(ctx context.Context, since time.Time, dstThreshold, connThreshold, limit int) ([]HorizontalAggregate, error) {
	query := `
		SELECT src_ip, COUNT(DISTINCT dst_ip) AS dst_count, COUNT(*) AS conn_count
		FROM ip_events
		WHERE timestamp >= $1
		GROUP BY src_ip
		HAVING COUNT(DISTINCT dst_ip) > $2 OR COUNT(*) > $3
		ORDER BY dst_count DESC, conn_count DESC
		LIMIT $4`

	rows, err := s.db.QueryContext(ctx, query, since, dstThreshold, connThreshold, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query horizontal aggregates: %w", err)
	}
	defer rows.Close()

	var aggs []HorizontalAggregate
	for rows.Next() {
		var a HorizontalAggregate
		if err := rows.Scan(&a.SrcIP, &a.DstCount, &a.ConnCount); err != nil {
			return nil, fmt.Errorf("failed to scan horizontal aggregate: %w", err)
		}
		aggs = append(aggs, a)
	}
	return aggs, rows.Err()
}

func (s *PostgresStore) VerticalAggregates(ctx context.Context, since time.Time, portsThreshold, limit int) ([]VerticalAggregate, error) {
	query := `
		SELECT src_ip, dst_ip, COUNT(DISTINCT dst_port) AS ports
		FROM ip_events
		WHERE timestamp >= $1
		GROUP BY src_ip, dst_ip
		HAVING COUNT(DISTINCT dst_port) > $2
		ORDER BY ports DESC
		LIMIT $3`

	rows, err := s.db.QueryContext(ctx, query, since, portsThreshold, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query vertical aggregates: %w", err)
	}
	defer rows.Close()

	var aggs []VerticalAggregate
	for rows.Next() {
		var a VerticalAggregate
		if err := rows.Scan(&a.SrcIP, &a.DstIP, &a.Ports); err != nil {
			return nil, fmt.Errorf("failed to scan vertical aggregate: %w", err)
		}
		aggs = append(aggs, a)
	}
	return aggs, rows.Err()
}

func (s *PostgresStore) VolumeAggregates(ctx context.Context, since time.Time, connThreshold, limit int) ([]VolumeAggregate, error) {
	query := `
		SELECT src_ip, COUNT(*) AS total_conns
		FROM ip_events
		WHERE timestamp >= $1
		GROUP BY src_ip
		HAVING COUNT(*) > $2
		ORDER BY total_conns DESC
		LIMIT $3`

	rows, err := s.db.QueryContext(ctx, query, since, connThreshold, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query volume aggregates: %w", err)
	}
	defer rows.Close()

	var aggs []VolumeAggregate
	for rows.Next() {
		var a VolumeAggregate
		if err := rows.Scan(&a.SrcIP, &a.TotalConns); err != nil {
			return nil, fmt.Errorf("failed to scan volume aggregate: %w", err)
		}
		aggs = append(aggs, a)
	}
	return aggs, rows.Err()
}

func (s *PostgresStore) LatestGeo(ctx context.Context, ips []string) (map[string]model.Geo, error) {
	geo := make(map[string]model.Geo)
	if len(ips) == 0 {
		return geo, nil
	}

	query := `
		SELECT src_ip, dst_ip, latitude, longitude, country, region, city
		FROM ip_events
		WHERE (src_ip = ANY($1) OR dst_ip = ANY($1))
			AND latitude IS NOT NULL AND longitude IS NOT NULL
		ORDER BY timestamp DESC`

	rows, err := s.db.QueryContext(ctx, query, pq.Array(ips))
	if err != nil {
		return nil, fmt.Errorf("failed to query event geodata: %w", err)
	}
	defer rows.Close()

	wanted := make(map[string]bool, len(ips))
	for _, ip := range ips {
		wanted[ip] = true
	}

	for rows.Next() {
		var srcIP, dstIP string
		var lat, lon float64
		var country, region, city sql.NullString
		if err := rows.Scan(&srcIP, &dstIP, &lat, &lon, &country, &region, &city); err != nil {
			return nil, fmt.Errorf("failed to scan event geodata: %w", err)
		}
		g := model.Geo{
			Latitude:  lat,
			Longitude: lon,
			Country:   country.String,
			Region:    region.String,
			City:      city.String,
		}
		// Rows arrive newest first; the first row naming an IP wins,
		// src endpoint checked before dst.
		for _, candidate := range []string{srcIP, dstIP} {
			if wanted[candidate] {
				if _, seen := geo[candidate]; !seen {
					geo[candidate] = g
				}
			}
		}
	}
	return geo, rows.Err()
}

func (s *PostgresStore) InsertAlert(ctx context.Context, alert *model.Alert) error {
	evidence, err := json.Marshal(alert.Evidence)
	if err != nil {
		return fmt.Errorf("failed to marshal evidence: %w", err)
	}
	var enrichment sql.NullString
	if alert.Enrichment != nil {
		b, err := json.Marshal(alert.Enrichment)
		if err != nil {
			return fmt.Errorf("failed to marshal enrichment: %w", err)
		}
		enrichment = sql.NullString{String: string(b), Valid: true}
	}

	query := `
		INSERT INTO scout_alerts (alert_type, src_ip, dst_ip, score, evidence_json, enrichment_json, status, created_at)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5, $6, $7, $8)
		RETURNING id`

	err = s.db.QueryRowContext(ctx, query,
		alert.AlertType, alert.SrcIP, alert.DstIP, alert.Score,
		string(evidence), enrichment, alert.Status, alert.CreatedAt,
	).Scan(&alert.ID)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrDuplicateAlert
		}
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAlert(ctx context.Context, id int64) (*model.Alert, error) {
	query := `
		SELECT id, alert_type, src_ip, dst_ip, score, evidence_json, enrichment_json, status, created_at
		FROM scout_alerts WHERE id = $1`

	alert, err := scanAlert(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query alert %d: %w", id, err)
	}
	return alert, nil
}

func (s *PostgresStore) ListAlerts(ctx context.Context, filter AlertFilter) ([]model.Alert, error) {
	query := `
		SELECT id, alert_type, src_ip, dst_ip, score, evidence_json, enrichment_json, status, created_at
		FROM scout_alerts`

	var clauses []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Since != nil {
		clauses = append(clauses, "created_at >= "+arg(*filter.Since))
	}
	if filter.AlertType != "" {
		clauses = append(clauses, "alert_type = "+arg(filter.AlertType))
	}
	if filter.SrcIP != "" {
		p := arg("%" + filter.SrcIP + "%")
		clauses = append(clauses, "src_ip LIKE "+p)
	}
	if filter.DstIP != "" {
		p := arg("%" + filter.DstIP + "%")
		clauses = append(clauses, "dst_ip LIKE "+p)
	}
	if filter.MinScore != nil {
		clauses = append(clauses, "score >= "+arg(*filter.MinScore))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	query += " ORDER BY created_at DESC LIMIT " + arg(limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	return collectAlerts(rows)
}

func (s *PostgresStore) ListUnenriched(ctx context.Context, limit int) ([]model.Alert, error) {
	query := `
		SELECT id, alert_type, src_ip, dst_ip, score, evidence_json, enrichment_json, status, created_at
		FROM scout_alerts
		WHERE enrichment_json IS NULL OR enrichment_json = ''
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unenriched alerts: %w", err)
	}
	defer rows.Close()

	return collectAlerts(rows)
}

func (s *PostgresStore) UpdateEnrichment(ctx context.Context, id int64, enrichment map[string]any, status string) error {
	b, err := json.Marshal(enrichment)
	if err != nil {
		return fmt.Errorf("failed to marshal enrichment: %w", err)
	}
	// created_at is never touched by enrichment updates.
	res, err := s.db.ExecContext(ctx,
		`UPDATE scout_alerts SET enrichment_json = $1, status = $2 WHERE id = $3`,
		string(b), status, id)
	if err != nil {
		return fmt.Errorf("failed to update alert %d enrichment: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id int64, status string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE scout_alerts SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update alert %d status: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CacheGet(ctx context.Context, subjectKey string) (*CacheEntry, error) {
	var entry CacheEntry
	var result sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT subject, kind, result_json, updated_at FROM scout_enrichment_cache WHERE subject = $1`,
		subjectKey,
	).Scan(&entry.Subject, &entry.Kind, &result, &entry.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query cache entry: %w", err)
	}
	if result.Valid {
		entry.Result = json.RawMessage(result.String)
	}
	return &entry, nil
}

func (s *PostgresStore) CacheSet(ctx context.Context, subjectKey, kind string, result any) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal cache result: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO scout_enrichment_cache (subject, kind, result_json, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (subject) DO UPDATE SET
			kind = EXCLUDED.kind,
			result_json = EXCLUDED.result_json,
			updated_at = EXCLUDED.updated_at`,
		subjectKey, kind, string(payload), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert cache entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) CacheList(ctx context.Context, limit int) ([]CacheEntry, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT subject, kind, result_json, updated_at FROM scout_enrichment_cache ORDER BY updated_at DESC LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query cache entries: %w", err)
	}
	defer rows.Close()

	var entries []CacheEntry
	for rows.Next() {
		var entry CacheEntry
		var result sql.NullString
		if err := rows.Scan(&entry.Subject, &entry.Kind, &result, &entry.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cache entry: %w", err)
		}
		if result.Valid {
			entry.Result = json.RawMessage(result.String)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (*model.Alert, error) {
	var alert model.Alert
	var srcIP, dstIP, evidence, enrichment sql.NullString
	err := row.Scan(&alert.ID, &alert.AlertType, &srcIP, &dstIP, &alert.Score,
		&evidence, &enrichment, &alert.Status, &alert.CreatedAt)
	if err != nil {
		return nil, err
	}
	alert.SrcIP = srcIP.String
	alert.DstIP = dstIP.String
	alert.Evidence = decodeJSONMap(evidence.String)
	if enrichment.Valid && enrichment.String != "" {
		alert.Enrichment = decodeJSONMap(enrichment.String)
	}
	return &alert, nil
}

func collectAlerts(rows *sql.Rows) ([]model.Alert, error) {
	var alerts []model.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, *alert)
	}
	return alerts, rows.Err()
}

// decodeJSONMap parses stored payload text, treating malformed JSON as an
// empty map rather than an error.
func decodeJSONMap(raw string) map[string]any {
	m := map[string]any{}
	if raw == "" {
		return m
	}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return map[string]any{}
	}
	return m
}
