package market

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mentionwatch/mentionwatch/store"
)

// SampleStore is the slice of the store the refresher writes to.
type SampleStore interface {
	ListSymbols(ctx context.Context) ([]string, error)
	InsertSamples(ctx context.Context, samples []*store.MarketSample) error
}

// Refresher pulls one round of samples for every known symbol and
// appends them to the market series. Primary first; any primary error
// degrades to the fallback provider for the same round.
type Refresher struct {
	store    SampleStore
	primary  Provider
	fallback Provider
	logger   *slog.Logger
}

// NewRefresher creates a Refresher. fallback may be nil when only one
// provider is configured.
func NewRefresher(s SampleStore, primary, fallback Provider, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{store: s, primary: primary, fallback: fallback, logger: logger}
}

// Refresh fetches and stores one sampling round. It returns the number
// of samples written and the provider that served them.
func (r *Refresher) Refresh(ctx context.Context) (int, string, error) {
	symbols, err := r.store.ListSymbols(ctx)
	if err != nil {
		return 0, "", fmt.Errorf("market: list symbols: %w", err)
	}
	if len(symbols) == 0 {
		r.logger.Warn("market: no symbols configured, nothing to refresh")
		return 0, "", nil
	}

	samples, err := r.primary.Sample(ctx, symbols)
	provider := r.primary.Name()
	if err != nil {
		if r.fallback == nil {
			return 0, "", fmt.Errorf("market: primary failed, no fallback: %w", err)
		}
		r.logger.Warn("market: primary provider failed, using fallback",
			"provider", r.primary.Name(), "error", err)
		samples, err = r.fallback.Sample(ctx, symbols)
		provider = r.fallback.Name()
		if err != nil {
			return 0, "", fmt.Errorf("market: both providers failed: %w", err)
		}
	}

	if err := r.store.InsertSamples(ctx, samples); err != nil {
		return 0, "", fmt.Errorf("market: store samples: %w", err)
	}
	r.logger.Info("market refresh complete", "provider", provider,
		"symbols", len(symbols), "samples", len(samples))
	return len(samples), provider, nil
}
