package store

import (
	"context"
	"fmt"
	"sort"
)

// RecordMentions writes one observation of ticker counts for a source
// record. Tickers are resolved against known_symbols first; unknown
// tickers are silently dropped since they cannot be joined to market
// data. Rows are keyed by (source_id, ticker, observed_at), so
// replaying the same observation is idempotent while distinct
// observation times build a time series.
func (s *Store) RecordMentions(ctx context.Context, sourceID string, counts map[string]int, observedAt int64) (int, error) {
	if len(counts) == 0 {
		return 0, nil
	}

	// Deterministic write order.
	tickers := make([]string, 0, len(counts))
	for t := range counts {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	written := 0
	for _, t := range tickers {
		known, err := s.IsKnownSymbol(ctx, t)
		if err != nil {
			return written, fmt.Errorf("store: resolve symbol %s: %w", t, err)
		}
		if !known {
			continue
		}
		_, err = s.DB.ExecContext(ctx,
			`INSERT INTO mention_events (id, source_id, ticker, count, observed_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(source_id, ticker, observed_at) DO UPDATE SET
				count = excluded.count`,
			s.newID(), sourceID, t, counts[t], observedAt,
		)
		if err != nil {
			return written, fmt.Errorf("store: record mention %s/%s: %w", sourceID, t, err)
		}
		written++
	}
	return written, nil
}

// MentionCount sums mention counts for a ticker inside [start, end].
func (s *Store) MentionCount(ctx context.Context, ticker string, start, end int64) (int, error) {
	var total int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(count), 0) FROM mention_events
		WHERE ticker = ? AND observed_at >= ? AND observed_at <= ?`,
		ticker, start, end).Scan(&total)
	return total, err
}

// MentionedTickers returns the distinct tickers with at least one
// mention inside [start, end], sorted for deterministic analysis.
func (s *Store) MentionedTickers(ctx context.Context, start, end int64) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT DISTINCT ticker FROM mention_events
		WHERE observed_at >= ? AND observed_at <= ?
		ORDER BY ticker ASC`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickers []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		tickers = append(tickers, t)
	}
	return tickers, rows.Err()
}

// TrailingAverage returns the average per-window mention count for a
// ticker over the trailing period before windowStart, split into
// windows of the same length. Zero when there is no history.
func (s *Store) TrailingAverage(ctx context.Context, ticker string, windowStart, windowLen int64, windows int) (float64, error) {
	if windows <= 0 || windowLen <= 0 {
		return 0, nil
	}
	trailingStart := windowStart - windowLen*int64(windows)
	var total int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(count), 0) FROM mention_events
		WHERE ticker = ? AND observed_at >= ? AND observed_at < ?`,
		ticker, trailingStart, windowStart).Scan(&total)
	if err != nil {
		return 0, err
	}
	return float64(total) / float64(windows), nil
}
