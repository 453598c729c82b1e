package store

// SourceKind identifies where a scraped record came from.
type SourceKind string

const (
	KindVideo          SourceKind = "video"
	KindChannelMessage SourceKind = "channel_message"
	KindDiscovery      SourceKind = "discovery"
)

// SourceRecord is a normalized scraped item. Created by a scraper,
// consumed once by the extractor, persisted for audit. Re-scraping the
// same external ID refreshes engagement metrics only.
type SourceRecord struct {
	ExternalID  string     `json:"external_id"`
	Kind        SourceKind `json:"source_kind"`
	URL         string     `json:"url"`
	Author      string     `json:"author"`
	PostedAt    int64      `json:"posted_at,omitempty"`
	Likes       int64      `json:"likes"`
	Comments    int64      `json:"comments"`
	Shares      int64      `json:"shares"`
	RawText     string     `json:"raw_text"`
	FirstSeenAt int64      `json:"first_seen_at"`
	LastSeenAt  int64      `json:"last_seen_at"`
}

// MentionEvent is one ticker observation on one source record.
type MentionEvent struct {
	ID         string `json:"id"`
	SourceID   string `json:"source_id"`
	Ticker     string `json:"ticker"`
	Count      int    `json:"count"`
	ObservedAt int64  `json:"observed_at"`
}

// ChannelTarget is a discovered channel handle. Targets are never
// deleted, only marked unreachable or stale.
type ChannelTarget struct {
	Handle        string `json:"handle"`
	URL           string `json:"url"`
	DiscoveredAt  int64  `json:"discovered_at"`
	Validated     bool   `json:"validated"`
	Unreachable   bool   `json:"unreachable"`
	LastScrapedAt int64  `json:"last_scraped_at,omitempty"`
	LastError     string `json:"last_error,omitempty"`
}

// MarketSample is one point of the append-only market time series.
// Both the primary and the fallback provider write this shape.
type MarketSample struct {
	ID        string  `json:"id"`
	Symbol    string  `json:"symbol"`
	PriceUSD  float64 `json:"price_usd"`
	Volume24h float64 `json:"volume_24h"`
	MarketCap float64 `json:"market_cap"`
	Provider  string  `json:"provider"`
	SampledAt int64   `json:"sampled_at"`
}

// CorrelationResult is one scored symbol for one analysis window.
// Recomputed each run; new rows per run, never mutated in place.
type CorrelationResult struct {
	ID               string  `json:"id"`
	RunID            string  `json:"run_id"`
	Symbol           string  `json:"symbol"`
	WindowStart      int64   `json:"window_start"`
	WindowEnd        int64   `json:"window_end"`
	MentionCount     int     `json:"mention_count"`
	TrailingAvg      float64 `json:"trailing_avg"`
	VolumeGrowthRate float64 `json:"volume_growth_rate"`
	Score            float64 `json:"score"`
	RiskTag          string  `json:"risk_tag"`
	ComputedAt       int64   `json:"computed_at"`
}

// PipelineRun is the persisted report of one orchestration run.
// StagesJSON is an ordered JSON array of per-stage results, appended
// as each stage completes and immutable once the run ends.
type PipelineRun struct {
	ID         string `json:"id"`
	Mode       string `json:"mode"`
	Strategy   string `json:"strategy"`
	State      string `json:"state"`
	StartedAt  int64  `json:"started_at"`
	FinishedAt int64  `json:"finished_at,omitempty"`
	StagesJSON string `json:"stages_json"`
}

// AlertState is the per-ticker cooldown record.
type AlertState struct {
	Ticker        string  `json:"ticker"`
	LastAlertedAt int64   `json:"last_alerted_at"`
	LastScore     float64 `json:"last_score"`
}

// AlertEntry is one row of the alert audit log.
type AlertEntry struct {
	ID        string  `json:"id"`
	Ticker    string  `json:"ticker"`
	Score     float64 `json:"score"`
	Summary   string  `json:"summary"`
	Delivered bool    `json:"delivered"`
	CreatedAt int64   `json:"created_at"`
}

// Stats are aggregate row counts for the status endpoint.
type Stats struct {
	SourceRecords  int `json:"source_records"`
	MentionEvents  int `json:"mention_events"`
	ChannelTargets int `json:"channel_targets"`
	MarketSamples  int `json:"market_samples"`
	PipelineRuns   int `json:"pipeline_runs"`
	AlertsEmitted  int `json:"alerts_emitted"`
}
