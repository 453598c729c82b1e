package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// InsertResults appends correlation results for one run.
func (s *Store) InsertResults(ctx context.Context, results []*CorrelationResult) error {
	now := time.Now().UnixMilli()
	for _, r := range results {
		if r.ID == "" {
			r.ID = s.newID()
		}
		if r.ComputedAt == 0 {
			r.ComputedAt = now
		}
		_, err := s.DB.ExecContext(ctx,
			`INSERT INTO correlation_results (id, run_id, symbol, window_start, window_end,
			mention_count, trailing_avg, volume_growth_rate, score, risk_tag, computed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.RunID, r.Symbol, r.WindowStart, r.WindowEnd,
			r.MentionCount, r.TrailingAvg, r.VolumeGrowthRate, r.Score, r.RiskTag, r.ComputedAt)
		if err != nil {
			return fmt.Errorf("store: insert result %s: %w", r.Symbol, err)
		}
	}
	return nil
}

// ResultsForRun returns the correlation results of one run, sorted by
// descending score then symbol.
func (s *Store) ResultsForRun(ctx context.Context, runID string) ([]*CorrelationResult, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, run_id, symbol, window_start, window_end,
		mention_count, trailing_avg, volume_growth_rate, score, risk_tag, computed_at
		FROM correlation_results WHERE run_id = ?
		ORDER BY score DESC, symbol ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*CorrelationResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func scanResult(rows *sql.Rows) (*CorrelationResult, error) {
	var r CorrelationResult
	err := rows.Scan(&r.ID, &r.RunID, &r.Symbol, &r.WindowStart, &r.WindowEnd,
		&r.MentionCount, &r.TrailingAvg, &r.VolumeGrowthRate, &r.Score, &r.RiskTag, &r.ComputedAt)
	if err != nil {
		return nil, fmt.Errorf("store: scan result: %w", err)
	}
	return &r, nil
}
