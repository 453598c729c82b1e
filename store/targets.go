package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AddTarget inserts a discovered channel target if the handle is new.
// Known handles are left untouched (dedup by handle).
func (s *Store) AddTarget(ctx context.Context, t *ChannelTarget) error {
	if t.DiscoveredAt == 0 {
		t.DiscoveredAt = time.Now().UnixMilli()
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO channel_targets (handle, url, discovered_at, validated, unreachable, last_error)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(handle) DO NOTHING`,
		t.Handle, t.URL, t.DiscoveredAt, boolInt(t.Validated), boolInt(t.Unreachable), t.LastError)
	if err != nil {
		return fmt.Errorf("store: add target %s: %w", t.Handle, err)
	}
	return nil
}

// ListTargets returns all channel targets. Unreachable targets are
// included; callers decide whether to skip them.
func (s *Store) ListTargets(ctx context.Context) ([]*ChannelTarget, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT handle, url, discovered_at, validated, unreachable, last_scraped_at, last_error
		FROM channel_targets ORDER BY discovered_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var targets []*ChannelTarget
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

// MarkTargetValidated records a successful reachability probe.
func (s *Store) MarkTargetValidated(ctx context.Context, handle string) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE channel_targets SET validated = 1, unreachable = 0, last_error = ''
		WHERE handle = ?`, handle)
	return err
}

// MarkTargetUnreachable marks a target as unreachable with the probe
// error. The row stays; the next discovery cycle may revalidate it.
func (s *Store) MarkTargetUnreachable(ctx context.Context, handle, errMsg string) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE channel_targets SET unreachable = 1, last_error = ? WHERE handle = ?`,
		errMsg, handle)
	return err
}

// TouchTargetScraped updates last_scraped_at after a scrape pass.
func (s *Store) TouchTargetScraped(ctx context.Context, handle string) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE channel_targets SET last_scraped_at = ? WHERE handle = ?`,
		time.Now().UnixMilli(), handle)
	return err
}

func scanTarget(rows *sql.Rows) (*ChannelTarget, error) {
	var t ChannelTarget
	var validated, unreachable int
	var lastScraped sql.NullInt64
	err := rows.Scan(&t.Handle, &t.URL, &t.DiscoveredAt, &validated, &unreachable,
		&lastScraped, &t.LastError)
	if err != nil {
		return nil, fmt.Errorf("store: scan target: %w", err)
	}
	t.Validated = validated != 0
	t.Unreachable = unreachable != 0
	t.LastScrapedAt = lastScraped.Int64
	return &t, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isNoRows(err error) bool {
	return err == sql.ErrNoRows
}
