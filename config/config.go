// Package config loads the mentionwatch YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mentionwatch/mentionwatch/alert"
	"github.com/mentionwatch/mentionwatch/correlate"
	"github.com/mentionwatch/mentionwatch/scrape"
)

// ErrInvalid marks configuration the process cannot start with.
var ErrInvalid = errors.New("config: invalid configuration")

// Duration is a time.Duration that unmarshals from YAML scalars like
// "30m" or "2s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("config: bad duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the top-level mentionwatch configuration.
type Config struct {
	DBPath   string `yaml:"db_path"`
	HTTPAddr string `yaml:"http_addr"`
	// Symbols maps ticker symbol to display name. These seed the
	// known-symbol dictionary; mentions of anything else are dropped.
	Symbols map[string]string `yaml:"symbols"`

	Browser   BrowserConfig   `yaml:"browser"`
	Video     VideoConfig     `yaml:"video"`
	Channels  ChannelConfig   `yaml:"channels"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Limits    LimitsConfig    `yaml:"limits"`
	Retry     RetryConfig     `yaml:"retry"`
	Market    MarketConfig    `yaml:"market"`
	Correlate CorrelateConfig `yaml:"correlate"`
	Alert     AlertConfig     `yaml:"alert"`
	Agent     AgentConfig     `yaml:"agent"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	RemoteURL       string   `yaml:"remote_url"`
	Headless        *bool    `yaml:"headless"`
	RecycleInterval Duration `yaml:"recycle_interval"`
	NavigateTimeout Duration `yaml:"navigate_timeout"`
}

// VideoConfig targets the short-video platform search.
type VideoConfig struct {
	// SearchURL is the search page template with a {term} placeholder.
	SearchURL string                `yaml:"search_url"`
	Terms     []string              `yaml:"terms"`
	Selectors scrape.VideoSelectors `yaml:"selectors"`
}

// ChannelConfig targets public channel pages.
type ChannelConfig struct {
	Selectors scrape.ChannelSelectors `yaml:"selectors"`
}

// DiscoveryConfig targets the channel-discovery page.
type DiscoveryConfig struct {
	PageURL   string                    `yaml:"page_url"`
	UserAgent string                    `yaml:"user_agent"`
	Selectors scrape.DiscoverySelectors `yaml:"selectors"`
}

// LimitsConfig bounds every scraper invocation.
type LimitsConfig struct {
	MaxItems    int      `yaml:"max_items"`
	MaxDuration Duration `yaml:"max_duration"`
	PageDelay   Duration `yaml:"page_delay"`
	MaxScrolls  int      `yaml:"max_scrolls"`
}

// ToLimits converts to the scraper limits type.
func (l LimitsConfig) ToLimits() scrape.Limits {
	return scrape.Limits{
		MaxItems:    l.MaxItems,
		MaxDuration: l.MaxDuration.Std(),
		PageDelay:   l.PageDelay.Std(),
		MaxScrolls:  l.MaxScrolls,
	}
}

// RetryConfig tunes the shared retry policy.
type RetryConfig struct {
	MaxAttempts int      `yaml:"max_attempts"`
	BaseDelay   Duration `yaml:"base_delay"`
}

// ProviderConfig is one market data endpoint.
type ProviderConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// MarketConfig holds both market providers. Fallback is optional.
type MarketConfig struct {
	Primary  ProviderConfig `yaml:"primary"`
	Fallback ProviderConfig `yaml:"fallback"`
}

// CorrelateConfig mirrors the engine tuning with YAML durations.
type CorrelateConfig struct {
	WindowLen       Duration          `yaml:"window_len"`
	TrailingWindows int               `yaml:"trailing_windows"`
	MinMentions     int               `yaml:"min_mentions"`
	Weights         correlate.Weights `yaml:"weights"`
	MediumRisk      float64           `yaml:"medium_risk"`
	HighRisk        float64           `yaml:"high_risk"`
}

// ToEngine converts to the correlation engine config.
func (c CorrelateConfig) ToEngine() correlate.Config {
	return correlate.Config{
		WindowLen:       c.WindowLen.Std(),
		TrailingWindows: c.TrailingWindows,
		MinMentions:     c.MinMentions,
		Weights:         c.Weights,
		MediumRisk:      c.MediumRisk,
		HighRisk:        c.HighRisk,
	}
}

// GateConfig mirrors the alert gate settings with YAML durations.
type GateConfig struct {
	ScoreThreshold float64  `yaml:"score_threshold"`
	SpikeFactor    float64  `yaml:"spike_factor"`
	Cooldown       Duration `yaml:"cooldown"`
}

// ToGate converts to the alert gate config.
func (g GateConfig) ToGate() alert.Config {
	return alert.Config{
		ScoreThreshold: g.ScoreThreshold,
		SpikeFactor:    g.SpikeFactor,
		Cooldown:       g.Cooldown.Std(),
	}
}

// AlertConfig holds the gate settings and the delivery webhook.
type AlertConfig struct {
	Gate       GateConfig `yaml:"gate"`
	WebhookURL string     `yaml:"webhook_url"`
}

// AgentConfig launches the MCP agent. Empty command disables the
// agent strategy; every run is then manual.
type AgentConfig struct {
	Command  []string `yaml:"command"`
	ToolName string   `yaml:"tool_name"`
}

// SchedulerConfig controls the periodic run trigger.
type SchedulerConfig struct {
	Interval Duration `yaml:"interval"`
}

// LoadFile reads and validates a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse reads and validates configuration bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8710"
	}
	if c.Browser.RecycleInterval <= 0 {
		c.Browser.RecycleInterval = Duration(4 * time.Hour)
	}
	if c.Browser.NavigateTimeout <= 0 {
		c.Browser.NavigateTimeout = Duration(30 * time.Second)
	}
	if len(c.Video.Terms) == 0 {
		c.Video.Terms = []string{"crypto"}
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.BaseDelay <= 0 {
		c.Retry.BaseDelay = Duration(2 * time.Second)
	}
	if c.Scheduler.Interval <= 0 {
		c.Scheduler.Interval = Duration(30 * time.Minute)
	}
}

// validate rejects configurations the process cannot start with.
func (c *Config) validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("%w: db_path is required", ErrInvalid)
	}
	if len(c.Symbols) == 0 {
		return fmt.Errorf("%w: at least one symbol is required", ErrInvalid)
	}
	if c.Video.SearchURL == "" {
		return fmt.Errorf("%w: video.search_url is required", ErrInvalid)
	}
	if c.Discovery.PageURL == "" {
		return fmt.Errorf("%w: discovery.page_url is required", ErrInvalid)
	}
	if c.Market.Primary.BaseURL == "" {
		return fmt.Errorf("%w: market.primary.base_url is required", ErrInvalid)
	}
	return nil
}
