package store

import (
	"context"
	"testing"
	"time"

	"github.com/mentionwatch/mentionwatch/dbopen"
	_ "modernc.org/sqlite"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	return NewStore(db)
}

func TestApplySchema(t *testing.T) {
	// WHAT: Verify the schema creates all tables without error.
	// WHY: Schema is the foundation — if it fails, nothing works.
	s := openTestStore(t)
	tables := []string{
		"source_records", "mention_events", "channel_targets", "known_symbols",
		"market_samples", "correlation_results", "pipeline_runs", "alert_state", "alert_log",
	}
	for _, table := range tables {
		var name string
		err := s.DB.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}
}

func TestUpsertRecordsIdempotent(t *testing.T) {
	// WHAT: Re-upserting the same external_id updates metadata without a new row.
	// WHY: Re-scraping overlapping result sets must never duplicate records.
	s := openTestStore(t)
	ctx := context.Background()

	rec := &SourceRecord{
		ExternalID: "vid-001",
		Kind:       KindVideo,
		URL:        "https://example.com/v/001",
		Author:     "alice",
		Likes:      10,
		RawText:    "to the moon $BTC",
	}
	if err := s.UpsertRecords(ctx, []*SourceRecord{rec}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	// Same ID, refreshed engagement.
	again := &SourceRecord{
		ExternalID: "vid-001",
		Kind:       KindVideo,
		URL:        "https://example.com/v/001",
		Author:     "alice",
		Likes:      25,
		RawText:    "different text must not overwrite",
	}
	if err := s.UpsertRecords(ctx, []*SourceRecord{again}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	count, err := s.CountRecords(ctx, KindVideo)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("row count: got %d, want 1", count)
	}

	got, err := s.GetRecord(ctx, "vid-001")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Likes != 25 {
		t.Errorf("likes not refreshed: got %d, want 25", got.Likes)
	}
	if got.RawText != "to the moon $BTC" {
		t.Errorf("raw_text should keep first value, got %q", got.RawText)
	}
}

func TestRecordMentionsDropsUnknown(t *testing.T) {
	// WHAT: Unknown tickers are silently dropped, not an error.
	// WHY: Unknown symbols cannot be joined to market data.
	s := openTestStore(t)
	ctx := context.Background()

	seedRecord(t, s, "vid-1")
	if err := s.SeedSymbols(ctx, map[string]string{"BTC": "Bitcoin"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	written, err := s.RecordMentions(ctx, "vid-1", map[string]int{"BTC": 3, "NOPE": 7}, 1000)
	if err != nil {
		t.Fatalf("record mentions: %v", err)
	}
	if written != 1 {
		t.Errorf("written: got %d, want 1", written)
	}

	total, err := s.MentionCount(ctx, "BTC", 0, 2000)
	if err != nil {
		t.Fatalf("mention count: %v", err)
	}
	if total != 3 {
		t.Errorf("BTC count: got %d, want 3", total)
	}
	if n, _ := s.MentionCount(ctx, "NOPE", 0, 2000); n != 0 {
		t.Errorf("NOPE should have no mentions, got %d", n)
	}
}

func TestRecordMentionsIdempotentPerObservation(t *testing.T) {
	// WHAT: Replaying the same (source, ticker, observed_at) does not duplicate.
	// WHY: Pipeline re-runs over the same scrape must not inflate the series.
	s := openTestStore(t)
	ctx := context.Background()

	seedRecord(t, s, "vid-1")
	s.SeedSymbols(ctx, map[string]string{"ETH": ""})

	for i := 0; i < 3; i++ {
		if _, err := s.RecordMentions(ctx, "vid-1", map[string]int{"ETH": 2}, 5000); err != nil {
			t.Fatalf("record mentions: %v", err)
		}
	}

	var rows int
	s.DB.QueryRow(`SELECT COUNT(*) FROM mention_events WHERE ticker='ETH'`).Scan(&rows)
	if rows != 1 {
		t.Errorf("mention rows: got %d, want 1", rows)
	}

	// A later observation time appends to the series.
	s.RecordMentions(ctx, "vid-1", map[string]int{"ETH": 1}, 6000)
	s.DB.QueryRow(`SELECT COUNT(*) FROM mention_events WHERE ticker='ETH'`).Scan(&rows)
	if rows != 2 {
		t.Errorf("mention rows after new observation: got %d, want 2", rows)
	}
}

func TestTrailingAverage(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	seedRecord(t, s, "vid-1")
	s.SeedSymbols(ctx, map[string]string{"SOL": ""})

	// Two trailing windows of 1000ms before windowStart=3000: [1000,2000) and [2000,3000).
	s.RecordMentions(ctx, "vid-1", map[string]int{"SOL": 4}, 1500)
	s.RecordMentions(ctx, "vid-1", map[string]int{"SOL": 2}, 2500)

	avg, err := s.TrailingAverage(ctx, "SOL", 3000, 1000, 2)
	if err != nil {
		t.Fatalf("trailing average: %v", err)
	}
	if avg != 3 {
		t.Errorf("avg: got %v, want 3", avg)
	}

	// No history yields zero.
	avg, _ = s.TrailingAverage(ctx, "XRP", 3000, 1000, 2)
	if avg != 0 {
		t.Errorf("no-history avg: got %v, want 0", avg)
	}
}

func TestTargetsDedupAndMarking(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tgt := &ChannelTarget{Handle: "@cryptochat", URL: "https://t.example/cryptochat"}
	if err := s.AddTarget(ctx, tgt); err != nil {
		t.Fatalf("add: %v", err)
	}
	// Duplicate handle is a no-op.
	if err := s.AddTarget(ctx, &ChannelTarget{Handle: "@cryptochat", URL: "other"}); err != nil {
		t.Fatalf("dup add: %v", err)
	}

	targets, err := s.ListTargets(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(targets) != 1 {
		t.Fatalf("targets: got %d, want 1", len(targets))
	}
	if targets[0].URL != "https://t.example/cryptochat" {
		t.Errorf("url overwritten on dup add: %q", targets[0].URL)
	}

	// Unreachable targets are marked, never deleted.
	if err := s.MarkTargetUnreachable(ctx, "@cryptochat", "dns failure"); err != nil {
		t.Fatalf("mark unreachable: %v", err)
	}
	targets, _ = s.ListTargets(ctx)
	if len(targets) != 1 || !targets[0].Unreachable {
		t.Fatal("target should remain, marked unreachable")
	}
	if targets[0].LastError != "dns failure" {
		t.Errorf("last_error: %q", targets[0].LastError)
	}

	if err := s.MarkTargetValidated(ctx, "@cryptochat"); err != nil {
		t.Fatalf("mark validated: %v", err)
	}
	targets, _ = s.ListTargets(ctx)
	if !targets[0].Validated || targets[0].Unreachable {
		t.Error("validated should clear unreachable")
	}
}

func TestMarketSamples(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	samples := []*MarketSample{
		{Symbol: "BTC", PriceUSD: 100, Volume24h: 1000, Provider: "primary", SampledAt: 1000},
		{Symbol: "BTC", PriceUSD: 110, Volume24h: 2000, Provider: "fallback", SampledAt: 2000},
		{Symbol: "ETH", PriceUSD: 10, Volume24h: 500, Provider: "primary", SampledAt: 1500},
	}
	if err := s.InsertSamples(ctx, samples); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := s.RecentSamples(ctx, "BTC", 0, 3000, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("samples: got %d, want 2", len(got))
	}
	if got[0].SampledAt != 2000 || got[1].SampledAt != 1000 {
		t.Error("samples should be newest first")
	}
	// Provider-agnostic: both providers land in the same series.
	if got[0].Provider != "fallback" || got[1].Provider != "primary" {
		t.Error("both providers should appear in the series")
	}
}

func TestRunLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	run := &PipelineRun{ID: "run-1", Mode: "full", State: "running"}
	if err := s.InsertRun(ctx, run); err != nil {
		t.Fatalf("insert run: %v", err)
	}

	run.Strategy = "manual"
	run.StagesJSON = `[{"stage":"market_refresh","status":"ok"}]`
	if err := s.UpdateRun(ctx, run); err != nil {
		t.Fatalf("update run: %v", err)
	}

	run.State = "completed"
	if err := s.FinishRun(ctx, run); err != nil {
		t.Fatalf("finish run: %v", err)
	}

	got, err := s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if got.State != "completed" || got.Strategy != "manual" {
		t.Errorf("run: %+v", got)
	}
	if got.FinishedAt == 0 {
		t.Error("finished_at not set")
	}

	runs, err := s.ListRuns(ctx, 10)
	if err != nil || len(runs) != 1 {
		t.Fatalf("list runs: %v, %d", err, len(runs))
	}
}

func TestAlertStateUpsert(t *testing.T) {
	// WHAT: Cooldown state persists and upserts atomically by ticker.
	// WHY: Cooldown must survive restarts; the DB row is the truth.
	s := openTestStore(t)
	ctx := context.Background()

	st, err := s.LastAlertedAt(ctx, "BTC")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if st != nil {
		t.Fatal("expected nil state for unseen ticker")
	}

	if err := s.TouchAlertState(ctx, "BTC", 1.5, 1000); err != nil {
		t.Fatalf("touch: %v", err)
	}
	if err := s.TouchAlertState(ctx, "BTC", 2.5, 2000); err != nil {
		t.Fatalf("touch again: %v", err)
	}

	st, _ = s.LastAlertedAt(ctx, "BTC")
	if st == nil || st.LastAlertedAt != 2000 || st.LastScore != 2.5 {
		t.Errorf("state: %+v", st)
	}

	var rows int
	s.DB.QueryRow(`SELECT COUNT(*) FROM alert_state`).Scan(&rows)
	if rows != 1 {
		t.Errorf("alert_state rows: got %d, want 1", rows)
	}
}

func TestStats(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	seedRecord(t, s, "vid-1")
	s.LogAlert(ctx, &AlertEntry{Ticker: "BTC", Score: 2, Summary: "spike"})

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.SourceRecords != 1 || st.AlertsEmitted != 1 {
		t.Errorf("stats: %+v", st)
	}
}

func seedRecord(t *testing.T, s *Store, id string) {
	t.Helper()
	err := s.UpsertRecords(context.Background(), []*SourceRecord{{
		ExternalID: id,
		Kind:       KindVideo,
		PostedAt:   time.Now().UnixMilli(),
	}})
	if err != nil {
		t.Fatalf("seed record: %v", err)
	}
}
