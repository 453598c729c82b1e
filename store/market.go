package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// InsertSamples appends market samples. The series is append-only; the
// store is a cache of external market data, not the source of truth.
func (s *Store) InsertSamples(ctx context.Context, samples []*MarketSample) error {
	now := time.Now().UnixMilli()
	for _, m := range samples {
		if m.ID == "" {
			m.ID = s.newID()
		}
		if m.SampledAt == 0 {
			m.SampledAt = now
		}
		_, err := s.DB.ExecContext(ctx,
			`INSERT INTO market_samples (id, symbol, price_usd, volume_24h, market_cap, provider, sampled_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			m.ID, m.Symbol, m.PriceUSD, m.Volume24h, m.MarketCap, m.Provider, m.SampledAt)
		if err != nil {
			return fmt.Errorf("store: insert sample %s: %w", m.Symbol, err)
		}
	}
	return nil
}

// RecentSamples returns the newest samples for a symbol inside
// [start, end], most recent first, at most limit rows.
func (s *Store) RecentSamples(ctx context.Context, symbol string, start, end int64, limit int) ([]*MarketSample, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, symbol, price_usd, volume_24h, market_cap, provider, sampled_at
		FROM market_samples
		WHERE symbol = ? AND sampled_at >= ? AND sampled_at <= ?
		ORDER BY sampled_at DESC LIMIT ?`,
		symbol, start, end, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []*MarketSample
	for rows.Next() {
		m, err := scanSample(rows)
		if err != nil {
			return nil, err
		}
		samples = append(samples, m)
	}
	return samples, rows.Err()
}

func scanSample(rows *sql.Rows) (*MarketSample, error) {
	var m MarketSample
	err := rows.Scan(&m.ID, &m.Symbol, &m.PriceUSD, &m.Volume24h, &m.MarketCap,
		&m.Provider, &m.SampledAt)
	if err != nil {
		return nil, fmt.Errorf("store: scan sample: %w", err)
	}
	return &m, nil
}
