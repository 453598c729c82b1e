package config

import (
	"strings"
	"testing"
	"time"
)

const validYAML = `
db_path: /var/lib/mentionwatch/data.db
symbols:
  BTC: Bitcoin
  ETH: Ethereum
video:
  search_url: "https://vid.example.com/search?q={term}"
  terms: [crypto, memecoin]
discovery:
  page_url: "https://channels.example.com/top"
market:
  primary:
    base_url: "https://quotes.example.com"
  fallback:
    base_url: "https://assets.example.com"
scheduler:
  interval: 15m
`

func TestParseValidConfig(t *testing.T) {
	cfg, err := Parse([]byte(validYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.DBPath != "/var/lib/mentionwatch/data.db" {
		t.Errorf("db path = %q", cfg.DBPath)
	}
	if len(cfg.Symbols) != 2 || cfg.Symbols["BTC"] != "Bitcoin" {
		t.Errorf("symbols = %v", cfg.Symbols)
	}
	if cfg.Scheduler.Interval.Std() != 15*time.Minute {
		t.Errorf("interval = %v", cfg.Scheduler.Interval.Std())
	}
	// Defaults fill the gaps.
	if cfg.HTTPAddr == "" || cfg.Retry.MaxAttempts != 3 {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.Browser.RecycleInterval.Std() != 4*time.Hour {
		t.Errorf("browser recycle = %v", cfg.Browser.RecycleInterval.Std())
	}
}

func TestValidationRejectsMissingRequired(t *testing.T) {
	base := map[string]string{
		"db":        "db_path: /tmp/mw.db\n",
		"symbols":   "symbols: {BTC: Bitcoin}\n",
		"video":     "video: {search_url: \"https://v.example.com/s?q={term}\"}\n",
		"discovery": "discovery: {page_url: \"https://c.example.com/top\"}\n",
		"market":    "market: {primary: {base_url: \"https://q.example.com\"}}\n",
	}
	cases := []struct {
		name    string
		drop    string
		wantErr string
	}{
		{"no db path", "db", "db_path"},
		{"no symbols", "symbols", "symbol"},
		{"no search url", "video", "search_url"},
		{"no discovery page", "discovery", "page_url"},
		{"no primary market", "market", "market.primary"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var doc strings.Builder
			for key, snippet := range base {
				if key == c.drop {
					continue
				}
				doc.WriteString(snippet)
			}
			_, err := Parse([]byte(doc.String()))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), c.wantErr) {
				t.Errorf("error %q does not mention %q", err, c.wantErr)
			}
		})
	}
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	if _, err := Parse([]byte("db_path: [unclosed")); err == nil {
		t.Fatal("expected parse error")
	}
}
