// Package alert turns correlation results into user-facing alerts.
//
// The Gate applies thresholds and a persisted per-ticker cooldown, so
// a restart cannot re-fire an alert the previous process already sent.
// Delivery goes through Sink implementations; the gate logs every
// emitted alert regardless of delivery outcome.
package alert

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mentionwatch/mentionwatch/store"
)

// Disclaimer is attached to every alert summary. Signals describe
// social chatter, not investment advice, and scored symbols are by
// construction pump-risk candidates.
const Disclaimer = "Automated social-signal detection. High manipulation risk. Not financial advice."

// Alert is one qualifying signal ready for delivery.
type Alert struct {
	Ticker       string  `json:"ticker"`
	Score        float64 `json:"score"`
	MentionCount int     `json:"mention_count"`
	TrailingAvg  float64 `json:"trailing_avg"`
	VolumeGrowth float64 `json:"volume_growth"`
	RiskTag      string  `json:"risk_tag"`
	Summary      string  `json:"summary"`
	CreatedAt    int64   `json:"created_at"`
}

// Sink delivers alerts somewhere external.
type Sink interface {
	Deliver(ctx context.Context, a Alert) error
}

// Config tunes the gate.
type Config struct {
	// ScoreThreshold is the absolute score a result must reach.
	// Default: 1.0.
	ScoreThreshold float64 `yaml:"score_threshold"`
	// SpikeFactor is the relative trigger: mentions at least this
	// multiple of the trailing baseline qualify even below the score
	// threshold. Default: 3.
	SpikeFactor float64 `yaml:"spike_factor"`
	// Cooldown suppresses repeat alerts per ticker. Default: 6h.
	Cooldown time.Duration `yaml:"cooldown"`
}

func (c Config) defaults() Config {
	if c.ScoreThreshold <= 0 {
		c.ScoreThreshold = 1.0
	}
	if c.SpikeFactor <= 0 {
		c.SpikeFactor = 3
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 6 * time.Hour
	}
	return c
}

// StateStore is the slice of the store the gate needs for cooldown
// persistence and the audit log.
type StateStore interface {
	LastAlertedAt(ctx context.Context, ticker string) (*store.AlertState, error)
	TouchAlertState(ctx context.Context, ticker string, score float64, at int64) error
	LogAlert(ctx context.Context, a *store.AlertEntry) error
}

// Gate filters correlation results into alerts.
type Gate struct {
	store  StateStore
	sink   Sink
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// NewGate creates a Gate. sink may be nil; alerts are then logged to
// the audit trail only.
func NewGate(s StateStore, sink Sink, cfg Config, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{store: s, sink: sink, cfg: cfg.defaults(), logger: logger, now: time.Now}
}

// Evaluate walks one run's results and emits an alert for each that
// qualifies and is off cooldown. Emitted alerts update the cooldown
// state before delivery is attempted, so a crashing sink cannot cause
// a re-fire on restart.
func (g *Gate) Evaluate(ctx context.Context, results []*store.CorrelationResult) ([]Alert, error) {
	now := g.now()
	nowMs := now.UnixMilli()

	var emitted []Alert
	for _, r := range results {
		if ctx.Err() != nil {
			return emitted, ctx.Err()
		}
		if !g.qualifies(r) {
			continue
		}

		state, err := g.store.LastAlertedAt(ctx, r.Symbol)
		if err != nil {
			return emitted, fmt.Errorf("alert: cooldown lookup %s: %w", r.Symbol, err)
		}
		if state != nil && nowMs-state.LastAlertedAt < g.cfg.Cooldown.Milliseconds() {
			g.logger.Debug("alert suppressed by cooldown", "ticker", r.Symbol,
				"last_alerted_at", state.LastAlertedAt)
			continue
		}

		a := g.build(r, nowMs)
		if err := g.store.TouchAlertState(ctx, r.Symbol, r.Score, nowMs); err != nil {
			return emitted, fmt.Errorf("alert: touch state %s: %w", r.Symbol, err)
		}

		delivered := false
		if g.sink != nil {
			if err := g.sink.Deliver(ctx, a); err != nil {
				g.logger.Error("alert delivery failed", "ticker", r.Symbol, "error", err)
			} else {
				delivered = true
			}
		}
		if err := g.store.LogAlert(ctx, &store.AlertEntry{
			Ticker:    a.Ticker,
			Score:     a.Score,
			Summary:   a.Summary,
			Delivered: delivered,
			CreatedAt: nowMs,
		}); err != nil {
			return emitted, fmt.Errorf("alert: log %s: %w", r.Symbol, err)
		}

		emitted = append(emitted, a)
		g.logger.Info("alert emitted", "ticker", a.Ticker, "score", a.Score,
			"risk", a.RiskTag, "delivered", delivered)
	}
	return emitted, nil
}

// qualifies applies the absolute-or-relative trigger.
func (g *Gate) qualifies(r *store.CorrelationResult) bool {
	if r.Score >= g.cfg.ScoreThreshold {
		return true
	}
	base := r.TrailingAvg
	if base < 1 {
		base = 1
	}
	return float64(r.MentionCount) >= g.cfg.SpikeFactor*base
}

func (g *Gate) build(r *store.CorrelationResult, nowMs int64) Alert {
	summary := fmt.Sprintf(
		"%s: %d mentions (baseline %.1f), volume growth %+.0f%%, score %.2f, risk %s. %s",
		r.Symbol, r.MentionCount, r.TrailingAvg, r.VolumeGrowthRate*100,
		r.Score, r.RiskTag, Disclaimer)
	return Alert{
		Ticker:       r.Symbol,
		Score:        r.Score,
		MentionCount: r.MentionCount,
		TrailingAvg:  r.TrailingAvg,
		VolumeGrowth: r.VolumeGrowthRate,
		RiskTag:      r.RiskTag,
		Summary:      summary,
		CreatedAt:    nowMs,
	}
}
