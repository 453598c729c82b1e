package market

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/mentionwatch/mentionwatch/store"
)

// FallbackProvider speaks the fallback asset API. Its wire format
// differs from the primary's: an envelope under "data" with numbers
// encoded as strings.
type FallbackProvider struct {
	client *client
}

// NewFallbackProvider creates the fallback provider.
func NewFallbackProvider(cfg ClientConfig) *FallbackProvider {
	return &FallbackProvider{client: newClient("fallback", cfg)}
}

func (f *FallbackProvider) Name() string { return "fallback" }

type fallbackAsset struct {
	Symbol       string `json:"symbol"`
	PriceUSD     string `json:"priceUsd"`
	VolumeUSD24h string `json:"volumeUsd24Hr"`
	MarketCapUSD string `json:"marketCapUsd"`
}

type fallbackResponse struct {
	Data []fallbackAsset `json:"data"`
}

// Sample fetches quotes for the symbols in one batched request.
func (f *FallbackProvider) Sample(ctx context.Context, symbols []string) ([]*store.MarketSample, error) {
	if len(symbols) == 0 {
		return nil, nil
	}

	query := url.Values{"ids": {strings.Join(symbols, ",")}}
	var resp fallbackResponse
	if err := f.client.get(ctx, "/v2/assets", query, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, ErrNoData
	}

	samples := make([]*store.MarketSample, 0, len(resp.Data))
	for _, a := range resp.Data {
		samples = append(samples, &store.MarketSample{
			Symbol:    strings.ToUpper(a.Symbol),
			PriceUSD:  parseDecimal(a.PriceUSD),
			Volume24h: parseDecimal(a.VolumeUSD24h),
			MarketCap: parseDecimal(a.MarketCapUSD),
			Provider:  f.Name(),
		})
	}
	return samples, nil
}

// parseDecimal reads the API's string-encoded numbers. Malformed
// values become 0 rather than failing the whole batch.
func parseDecimal(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}
