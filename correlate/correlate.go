// Package correlate scores social mention activity against market
// movement. One Analyze call covers one time window, reads only from
// the store, and is deterministic: same stored data, same window, same
// output.
package correlate

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/mentionwatch/mentionwatch/store"
)

// Risk tags on a scored symbol.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// Weights blend the two signal components into the score. They should
// sum to 1 but the engine does not enforce it; relative magnitude is
// what matters.
type Weights struct {
	MentionDelta float64 `yaml:"mention_delta"`
	VolumeGrowth float64 `yaml:"volume_growth"`
}

// Config tunes the engine.
type Config struct {
	// WindowLen is the analysis window length. Default: 1h.
	WindowLen time.Duration `yaml:"window_len"`
	// TrailingWindows is how many same-length windows before the
	// current one feed the mention baseline. Default: 6.
	TrailingWindows int `yaml:"trailing_windows"`
	// MinMentions is the noise floor: symbols with fewer mentions in
	// the window are not scored. Default: 3.
	MinMentions int `yaml:"min_mentions"`
	// Weights blend mention delta and volume growth. Default: 0.6/0.4.
	Weights Weights `yaml:"weights"`
	// MediumRisk and HighRisk are the score boundaries of the risk
	// buckets. Defaults: 0.5 and 1.5.
	MediumRisk float64 `yaml:"medium_risk"`
	HighRisk   float64 `yaml:"high_risk"`
}

func (c Config) defaults() Config {
	if c.WindowLen <= 0 {
		c.WindowLen = time.Hour
	}
	if c.TrailingWindows <= 0 {
		c.TrailingWindows = 6
	}
	if c.MinMentions <= 0 {
		c.MinMentions = 3
	}
	if c.Weights.MentionDelta == 0 && c.Weights.VolumeGrowth == 0 {
		c.Weights = Weights{MentionDelta: 0.6, VolumeGrowth: 0.4}
	}
	if c.MediumRisk <= 0 {
		c.MediumRisk = 0.5
	}
	if c.HighRisk <= c.MediumRisk {
		c.HighRisk = 1.5
	}
	return c
}

// ResultStore is the slice of the store the engine reads and writes.
type ResultStore interface {
	MentionedTickers(ctx context.Context, start, end int64) ([]string, error)
	MentionCount(ctx context.Context, ticker string, start, end int64) (int, error)
	TrailingAverage(ctx context.Context, ticker string, windowStart, windowLen int64, windows int) (float64, error)
	RecentSamples(ctx context.Context, symbol string, start, end int64, limit int) ([]*store.MarketSample, error)
	InsertResults(ctx context.Context, results []*store.CorrelationResult) error
}

// Engine computes correlation results.
type Engine struct {
	store  ResultStore
	cfg    Config
	logger *slog.Logger
}

// NewEngine creates an Engine.
func NewEngine(s ResultStore, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: s, cfg: cfg.defaults(), logger: logger}
}

// Analyze scores every symbol mentioned in the window ending at end,
// persists the results under runID, and returns them sorted by
// descending score. Symbols below the mention noise floor are skipped.
func (e *Engine) Analyze(ctx context.Context, runID string, end time.Time) ([]*store.CorrelationResult, error) {
	windowEnd := end.UnixMilli()
	windowLen := e.cfg.WindowLen.Milliseconds()
	windowStart := windowEnd - windowLen

	tickers, err := e.store.MentionedTickers(ctx, windowStart, windowEnd)
	if err != nil {
		return nil, fmt.Errorf("correlate: list tickers: %w", err)
	}

	var results []*store.CorrelationResult
	for _, sym := range tickers {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		count, err := e.store.MentionCount(ctx, sym, windowStart, windowEnd)
		if err != nil {
			return nil, fmt.Errorf("correlate: count %s: %w", sym, err)
		}
		if count < e.cfg.MinMentions {
			continue
		}

		trailing, err := e.store.TrailingAverage(ctx, sym, windowStart, windowLen, e.cfg.TrailingWindows)
		if err != nil {
			return nil, fmt.Errorf("correlate: trailing %s: %w", sym, err)
		}

		growth, err := e.volumeGrowth(ctx, sym, windowStart, windowEnd)
		if err != nil {
			return nil, fmt.Errorf("correlate: volume %s: %w", sym, err)
		}

		score := e.score(count, trailing, growth)
		results = append(results, &store.CorrelationResult{
			RunID:            runID,
			Symbol:           sym,
			WindowStart:      windowStart,
			WindowEnd:        windowEnd,
			MentionCount:     count,
			TrailingAvg:      trailing,
			VolumeGrowthRate: growth,
			Score:            score,
			RiskTag:          e.riskTag(score),
		})
	}

	sortResults(results)
	if err := e.store.InsertResults(ctx, results); err != nil {
		return nil, fmt.Errorf("correlate: persist: %w", err)
	}
	e.logger.Info("analysis complete", "run_id", runID,
		"candidates", len(tickers), "scored", len(results))
	return results, nil
}

// score blends the normalized mention delta with volume growth.
// The delta is normalized against the trailing baseline with a floor
// of 1 so a symbol with no history cannot divide by zero.
func (e *Engine) score(count int, trailing, growth float64) float64 {
	base := trailing
	if base < 1 {
		base = 1
	}
	delta := (float64(count) - trailing) / base
	return e.cfg.Weights.MentionDelta*delta + e.cfg.Weights.VolumeGrowth*growth
}

// volumeGrowth compares the two most recent market samples inside the
// window. Fewer than two samples, or a zero older volume, yields 0:
// no market movement signal rather than a fabricated one.
func (e *Engine) volumeGrowth(ctx context.Context, symbol string, start, end int64) (float64, error) {
	samples, err := e.store.RecentSamples(ctx, symbol, start, end, 2)
	if err != nil {
		return 0, err
	}
	if len(samples) < 2 {
		return 0, nil
	}
	newest, older := samples[0], samples[1]
	if older.Volume24h <= 0 {
		return 0, nil
	}
	return (newest.Volume24h - older.Volume24h) / older.Volume24h, nil
}

func (e *Engine) riskTag(score float64) string {
	switch {
	case score < e.cfg.MediumRisk:
		return RiskLow
	case score < e.cfg.HighRisk:
		return RiskMedium
	default:
		return RiskHigh
	}
}

// sortResults orders by descending score, symbol as tiebreak, matching
// the store's read order.
func sortResults(results []*store.CorrelationResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Symbol < results[j].Symbol
	})
}
