package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// LastAlertedAt returns the cooldown record for a ticker, or nil if
// the ticker has never alerted.
func (s *Store) LastAlertedAt(ctx context.Context, ticker string) (*AlertState, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT ticker, last_alerted_at, last_score FROM alert_state WHERE ticker = ?`,
		ticker)

	var st AlertState
	err := row.Scan(&st.Ticker, &st.LastAlertedAt, &st.LastScore)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("store: scan alert state: %w", err)
	}
	return &st, nil
}

// TouchAlertState upserts the cooldown timestamp for a ticker. Uses
// the store's native atomic upsert so independent processes sharing
// the database cannot lose updates.
func (s *Store) TouchAlertState(ctx context.Context, ticker string, score float64, at int64) error {
	if at == 0 {
		at = time.Now().UnixMilli()
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO alert_state (ticker, last_alerted_at, last_score)
		VALUES (?, ?, ?)
		ON CONFLICT(ticker) DO UPDATE SET
			last_alerted_at = excluded.last_alerted_at,
			last_score      = excluded.last_score`,
		ticker, at, score)
	if err != nil {
		return fmt.Errorf("store: touch alert state %s: %w", ticker, err)
	}
	return nil
}

// LogAlert appends an alert to the audit log.
func (s *Store) LogAlert(ctx context.Context, a *AlertEntry) error {
	if a.ID == "" {
		a.ID = s.newID()
	}
	if a.CreatedAt == 0 {
		a.CreatedAt = time.Now().UnixMilli()
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO alert_log (id, ticker, score, summary, delivered, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.Ticker, a.Score, a.Summary, boolInt(a.Delivered), a.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: log alert %s: %w", a.Ticker, err)
	}
	return nil
}

// ListAlerts returns recent alert log entries, newest first.
func (s *Store) ListAlerts(ctx context.Context, limit int) ([]*AlertEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, ticker, score, summary, delivered, created_at
		FROM alert_log ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*AlertEntry
	for rows.Next() {
		var a AlertEntry
		var delivered int
		if err := rows.Scan(&a.ID, &a.Ticker, &a.Score, &a.Summary, &delivered, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan alert: %w", err)
		}
		a.Delivered = delivered != 0
		alerts = append(alerts, &a)
	}
	return alerts, rows.Err()
}

// Stats returns aggregate row counts for the status endpoint.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	queries := []struct {
		sql  string
		dest *int
	}{
		{`SELECT COUNT(*) FROM source_records`, &st.SourceRecords},
		{`SELECT COUNT(*) FROM mention_events`, &st.MentionEvents},
		{`SELECT COUNT(*) FROM channel_targets`, &st.ChannelTargets},
		{`SELECT COUNT(*) FROM market_samples`, &st.MarketSamples},
		{`SELECT COUNT(*) FROM pipeline_runs`, &st.PipelineRuns},
		{`SELECT COUNT(*) FROM alert_log`, &st.AlertsEmitted},
	}
	for _, q := range queries {
		if err := s.DB.QueryRowContext(ctx, q.sql).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("store: stats: %w", err)
		}
	}
	return &st, nil
}
