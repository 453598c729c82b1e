package store

import "database/sql"

// Schema is the complete mentionwatch schema. All timestamps are
// UnixMilli integers. The store is the only writer to these tables.
const Schema = `
-- Normalized scraped items (posts, comments, channel messages)
CREATE TABLE IF NOT EXISTS source_records (
    external_id   TEXT PRIMARY KEY,
    source_kind   TEXT NOT NULL,
    url           TEXT NOT NULL DEFAULT '',
    author        TEXT NOT NULL DEFAULT '',
    posted_at     INTEGER,
    likes         INTEGER NOT NULL DEFAULT 0,
    comments      INTEGER NOT NULL DEFAULT 0,
    shares        INTEGER NOT NULL DEFAULT 0,
    raw_text      TEXT NOT NULL DEFAULT '',
    first_seen_at INTEGER NOT NULL,
    last_seen_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_source_records_kind ON source_records(source_kind, last_seen_at DESC);

-- Ticker mentions: append-only time series
CREATE TABLE IF NOT EXISTS mention_events (
    id          TEXT PRIMARY KEY,
    source_id   TEXT NOT NULL REFERENCES source_records(external_id) ON DELETE CASCADE,
    ticker      TEXT NOT NULL,
    count       INTEGER NOT NULL DEFAULT 1,
    observed_at INTEGER NOT NULL,
    UNIQUE(source_id, ticker, observed_at)
);
CREATE INDEX IF NOT EXISTS idx_mention_events_ticker ON mention_events(ticker, observed_at DESC);

-- Channel scrape targets: discovered, validated, never deleted
CREATE TABLE IF NOT EXISTS channel_targets (
    handle          TEXT PRIMARY KEY,
    url             TEXT NOT NULL DEFAULT '',
    discovered_at   INTEGER NOT NULL,
    validated       INTEGER NOT NULL DEFAULT 0,
    unreachable     INTEGER NOT NULL DEFAULT 0,
    last_scraped_at INTEGER,
    last_error      TEXT NOT NULL DEFAULT ''
);

-- Known tradeable symbols; mentions of anything else are dropped
CREATE TABLE IF NOT EXISTS known_symbols (
    symbol  TEXT PRIMARY KEY,
    name    TEXT NOT NULL DEFAULT '',
    enabled INTEGER NOT NULL DEFAULT 1
);

-- Market samples: append-only cache of external market data
CREATE TABLE IF NOT EXISTS market_samples (
    id         TEXT PRIMARY KEY,
    symbol     TEXT NOT NULL,
    price_usd  REAL NOT NULL DEFAULT 0,
    volume_24h REAL NOT NULL DEFAULT 0,
    market_cap REAL NOT NULL DEFAULT 0,
    provider   TEXT NOT NULL DEFAULT '',
    sampled_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_market_samples_symbol ON market_samples(symbol, sampled_at DESC);

-- Correlation output: new rows per pipeline run
CREATE TABLE IF NOT EXISTS correlation_results (
    id                 TEXT PRIMARY KEY,
    run_id             TEXT NOT NULL,
    symbol             TEXT NOT NULL,
    window_start       INTEGER NOT NULL,
    window_end         INTEGER NOT NULL,
    mention_count      INTEGER NOT NULL DEFAULT 0,
    trailing_avg       REAL NOT NULL DEFAULT 0,
    volume_growth_rate REAL NOT NULL DEFAULT 0,
    score              REAL NOT NULL DEFAULT 0,
    risk_tag           TEXT NOT NULL DEFAULT 'low',
    computed_at        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_correlation_results_run ON correlation_results(run_id);
CREATE INDEX IF NOT EXISTS idx_correlation_results_symbol ON correlation_results(symbol, computed_at DESC);

-- Pipeline run reports
CREATE TABLE IF NOT EXISTS pipeline_runs (
    id          TEXT PRIMARY KEY,
    mode        TEXT NOT NULL,
    strategy    TEXT NOT NULL DEFAULT '',
    state       TEXT NOT NULL,
    started_at  INTEGER NOT NULL,
    finished_at INTEGER,
    stages_json TEXT NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_pipeline_runs_started ON pipeline_runs(started_at DESC);

-- Per-ticker alert cooldown state; survives restarts
CREATE TABLE IF NOT EXISTS alert_state (
    ticker          TEXT PRIMARY KEY,
    last_alerted_at INTEGER NOT NULL,
    last_score      REAL NOT NULL DEFAULT 0
);

-- Audit of emitted alerts, including failed deliveries
CREATE TABLE IF NOT EXISTS alert_log (
    id         TEXT PRIMARY KEY,
    ticker     TEXT NOT NULL,
    score      REAL NOT NULL DEFAULT 0,
    summary    TEXT NOT NULL DEFAULT '',
    delivered  INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alert_log_time ON alert_log(created_at DESC);
`

// ApplySchema creates all tables and indexes on the given database.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
