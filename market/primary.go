package market

import (
	"context"
	"net/url"
	"strings"

	"github.com/mentionwatch/mentionwatch/store"
)

// PrimaryProvider speaks the primary quote API: one GET for a batch of
// symbols, numeric JSON fields.
type PrimaryProvider struct {
	client *client
}

// NewPrimaryProvider creates the primary provider.
func NewPrimaryProvider(cfg ClientConfig) *PrimaryProvider {
	return &PrimaryProvider{client: newClient("primary", cfg)}
}

func (p *PrimaryProvider) Name() string { return "primary" }

type primaryQuote struct {
	Symbol    string  `json:"symbol"`
	PriceUSD  float64 `json:"price_usd"`
	Volume24h float64 `json:"volume_24h"`
	MarketCap float64 `json:"market_cap"`
}

type primaryResponse struct {
	Markets []primaryQuote `json:"markets"`
}

// Sample fetches quotes for the symbols in one batched request.
func (p *PrimaryProvider) Sample(ctx context.Context, symbols []string) ([]*store.MarketSample, error) {
	if len(symbols) == 0 {
		return nil, nil
	}

	query := url.Values{"symbols": {strings.Join(symbols, ",")}}
	var resp primaryResponse
	if err := p.client.get(ctx, "/v1/markets", query, &resp); err != nil {
		return nil, err
	}
	if len(resp.Markets) == 0 {
		return nil, ErrNoData
	}

	samples := make([]*store.MarketSample, 0, len(resp.Markets))
	for _, q := range resp.Markets {
		samples = append(samples, &store.MarketSample{
			Symbol:    strings.ToUpper(q.Symbol),
			PriceUSD:  q.PriceUSD,
			Volume24h: q.Volume24h,
			MarketCap: q.MarketCap,
			Provider:  p.Name(),
		})
	}
	return samples, nil
}
