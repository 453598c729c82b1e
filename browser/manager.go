package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// Config configures the browser manager.
type Config struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	RemoteURL string

	// RecycleInterval is the maximum lifetime of a Chrome process
	// before it is killed and relaunched. Default: 4h.
	RecycleInterval time.Duration

	// NavigateTimeout bounds each navigation + load wait. Default: 30s.
	NavigateTimeout time.Duration

	// Headless controls whether Chrome runs without a display. Default: true.
	Headless *bool

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.RecycleInterval <= 0 {
		c.RecycleInterval = 4 * time.Hour
	}
	if c.NavigateTimeout <= 0 {
		c.NavigateTimeout = 30 * time.Second
	}
	if c.Headless == nil {
		v := true
		c.Headless = &v
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager owns the Chrome lifecycle and implements Session.
type Manager struct {
	cfg     Config
	mu      sync.RWMutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	startAt time.Time
	closed  bool
}

// NewManager creates a browser Manager. Call Start to launch Chrome.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg}
}

// Start launches Chrome (or connects to a remote instance).
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("browser: manager is closed")
	}

	b, err := m.launch()
	if err != nil {
		return err
	}
	m.browser = b
	m.startAt = time.Now()

	go m.recycleLoop(ctx)

	return nil
}

// Open creates a stealth tab, navigates it, and waits for load.
func (m *Manager) Open(ctx context.Context, url string) (Page, error) {
	m.mu.RLock()
	b := m.browser
	m.mu.RUnlock()
	if b == nil {
		return nil, fmt.Errorf("browser: not started")
	}
	return openTab(ctx, b, url, m.cfg.NavigateTimeout, m.cfg.Logger)
}

// Close shuts down Chrome. Safe to call multiple times.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return m.cleanup()
}

func (m *Manager) launch() (*rod.Browser, error) {
	log := m.cfg.Logger

	var wsURL string
	if m.cfg.RemoteURL != "" {
		wsURL = m.cfg.RemoteURL
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New().Headless(*m.cfg.Headless)
		// Anti-detection flag; scraped platforms block obvious automation.
		l = l.Set("disable-blink-features", "AutomationControlled")

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		log.Info("browser: launched local chrome", "url", wsURL)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}

	if err := b.IgnoreCertErrors(true); err != nil {
		log.Warn("browser: ignore cert errors failed", "error", err)
	}

	return b, nil
}

func (m *Manager) cleanup() error {
	if m.browser != nil {
		m.browser.Close()
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
	return nil
}

// recycleLoop restarts Chrome when it exceeds its lifetime. Long scrape
// sessions leak renderer memory; a periodic restart is cheaper than
// tracking it.
func (m *Manager) recycleLoop(ctx context.Context) {
	log := m.cfg.Logger
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			if m.closed || m.browser == nil {
				m.mu.Unlock()
				return
			}
			if time.Since(m.startAt) <= m.cfg.RecycleInterval {
				m.mu.Unlock()
				continue
			}
			log.Info("browser: recycle interval reached", "uptime", time.Since(m.startAt))
			if err := m.cleanup(); err != nil {
				log.Warn("browser: cleanup during recycle", "error", err)
			}
			b, err := m.launch()
			if err != nil {
				log.Error("browser: relaunch failed", "error", err)
				m.mu.Unlock()
				continue
			}
			m.browser = b
			m.startAt = time.Now()
			m.mu.Unlock()
			log.Info("browser: recycled")
		}
	}
}
