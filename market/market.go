// Package market fetches crypto price and volume snapshots.
//
// Two HTTP providers implement the same Provider contract: a primary
// quote API and a differently-shaped fallback. The Refresher asks the
// primary first and falls back on any error, tagging each stored
// sample with the provider that produced it so mixed series stay
// auditable.
package market

import (
	"context"
	"errors"

	"github.com/mentionwatch/mentionwatch/store"
)

// ErrNoData means the provider answered but had quotes for none of the
// requested symbols.
var ErrNoData = errors.New("market: no data for requested symbols")

// Provider returns current samples for the given symbols. Symbols the
// provider does not know are omitted, not errors.
type Provider interface {
	Name() string
	Sample(ctx context.Context, symbols []string) ([]*store.MarketSample, error)
}
