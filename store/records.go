package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// UpsertRecords writes scraped records keyed by external ID. A record
// seen before keeps its first_seen_at and raw_text but refreshes
// engagement metrics and last_seen_at, so re-scraping the same item
// never creates a duplicate row.
func (s *Store) UpsertRecords(ctx context.Context, records []*SourceRecord) error {
	now := time.Now().UnixMilli()
	for _, r := range records {
		if r.FirstSeenAt == 0 {
			r.FirstSeenAt = now
		}
		if r.LastSeenAt == 0 {
			r.LastSeenAt = now
		}
		_, err := s.DB.ExecContext(ctx,
			`INSERT INTO source_records (external_id, source_kind, url, author, posted_at,
			likes, comments, shares, raw_text, first_seen_at, last_seen_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(external_id) DO UPDATE SET
				likes        = excluded.likes,
				comments     = excluded.comments,
				shares       = excluded.shares,
				last_seen_at = excluded.last_seen_at`,
			r.ExternalID, r.Kind, r.URL, r.Author, nullInt(r.PostedAt),
			r.Likes, r.Comments, r.Shares, r.RawText, r.FirstSeenAt, r.LastSeenAt,
		)
		if err != nil {
			return fmt.Errorf("store: upsert record %s: %w", r.ExternalID, err)
		}
	}
	return nil
}

// GetRecord retrieves a source record by external ID, or nil.
func (s *Store) GetRecord(ctx context.Context, externalID string) (*SourceRecord, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT external_id, source_kind, url, author, posted_at,
		likes, comments, shares, raw_text, first_seen_at, last_seen_at
		FROM source_records WHERE external_id = ?`, externalID)

	var r SourceRecord
	var postedAt sql.NullInt64
	err := row.Scan(&r.ExternalID, &r.Kind, &r.URL, &r.Author, &postedAt,
		&r.Likes, &r.Comments, &r.Shares, &r.RawText, &r.FirstSeenAt, &r.LastSeenAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("store: scan record: %w", err)
	}
	r.PostedAt = postedAt.Int64
	return &r, nil
}

// CountRecords returns the number of source records, optionally
// filtered by kind (empty kind counts all).
func (s *Store) CountRecords(ctx context.Context, kind SourceKind) (int, error) {
	var count int
	var err error
	if kind == "" {
		err = s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM source_records`).Scan(&count)
	} else {
		err = s.DB.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM source_records WHERE source_kind = ?`, kind).Scan(&count)
	}
	return count, err
}

func nullInt(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}
