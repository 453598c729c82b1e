// Entry point for the mentionwatch service: config, store, browser,
// pipeline orchestrator, periodic scheduler, and the chi control API.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "modernc.org/sqlite"

	"github.com/mentionwatch/mentionwatch/agent"
	"github.com/mentionwatch/mentionwatch/alert"
	"github.com/mentionwatch/mentionwatch/browser"
	"github.com/mentionwatch/mentionwatch/config"
	"github.com/mentionwatch/mentionwatch/correlate"
	"github.com/mentionwatch/mentionwatch/dbopen"
	"github.com/mentionwatch/mentionwatch/market"
	"github.com/mentionwatch/mentionwatch/pipeline"
	"github.com/mentionwatch/mentionwatch/retry"
	"github.com/mentionwatch/mentionwatch/scrape"
	"github.com/mentionwatch/mentionwatch/store"
	"github.com/mentionwatch/mentionwatch/ticker"
)

func main() {
	configPath := env("CONFIG", "mentionwatch.yaml")
	logLevel := env("LOG_LEVEL", "info")

	// Logging.
	var lvl slog.Level
	switch logLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	cfg, err := config.LoadFile(configPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Store.
	db, err := dbopen.Open(cfg.DBPath, dbopen.WithMkdirAll(), dbopen.WithSchema(store.Schema))
	if err != nil {
		slog.Error("open db", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	st := store.NewStore(db)

	if err := st.SeedSymbols(ctx, cfg.Symbols); err != nil {
		slog.Error("seed symbols", "error", err)
		os.Exit(1)
	}
	symbols, err := st.ListSymbols(ctx)
	if err != nil {
		slog.Error("list symbols", "error", err)
		os.Exit(1)
	}

	// Browser.
	mgr := browser.NewManager(browser.Config{
		RemoteURL:       cfg.Browser.RemoteURL,
		RecycleInterval: cfg.Browser.RecycleInterval.Std(),
		NavigateTimeout: cfg.Browser.NavigateTimeout.Std(),
		Headless:        cfg.Browser.Headless,
		Logger:          logger,
	})
	if err := mgr.Start(ctx); err != nil {
		slog.Error("start browser", "error", err)
		os.Exit(1)
	}
	defer mgr.Close()

	// Shared retry policy for scrapers.
	policy := retry.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay.Std(),
		Logger:      logger,
	}

	// Components.
	extractor := ticker.New(symbols)
	videoScraper := scrape.NewVideoScraper(mgr, cfg.Video.SearchURL, cfg.Video.Selectors, policy, logger)
	channelScraper := scrape.NewChannelScraper(mgr, st, cfg.Channels.Selectors, policy, logger)
	discoveryScraper := scrape.NewDiscoveryScraper(mgr, cfg.Discovery.PageURL,
		cfg.Discovery.Selectors, policy, cfg.Discovery.UserAgent, logger)

	refresher := market.NewRefresher(st,
		market.NewPrimaryProvider(market.ClientConfig{
			BaseURL: cfg.Market.Primary.BaseURL,
			APIKey:  cfg.Market.Primary.APIKey,
			Logger:  logger,
		}),
		fallbackProvider(cfg.Market.Fallback, logger),
		logger)

	engine := correlate.NewEngine(st, cfg.Correlate.ToEngine(), logger)

	var sink *alert.Webhook
	if cfg.Alert.WebhookURL != "" {
		sink = alert.NewWebhook(cfg.Alert.WebhookURL, alert.WithWebhookLogger(logger))
	}
	var gateSink alert.Sink
	if sink != nil {
		gateSink = sink
	}
	gate := alert.NewGate(st, gateSink, cfg.Alert.Gate.ToGate(), logger)

	var executor agent.Executor
	if len(cfg.Agent.Command) > 0 {
		mcpExec := agent.NewMCPExecutor(agent.MCPConfig{
			Command:  cfg.Agent.Command,
			ToolName: cfg.Agent.ToolName,
			Logger:   logger,
		})
		defer mcpExec.Close()
		executor = mcpExec
	}

	// Pipeline. The orchestrator pointer is late-bound so the sync
	// stage can read the current run ID.
	var orch *pipeline.Orchestrator
	deps := &stageDeps{
		store:     st,
		extractor: extractor,
		video:     videoScraper,
		channels:  channelScraper,
		discovery: discoveryScraper,
		refresher: refresher,
		engine:    engine,
		gate:      gate,
		sink:      sink,
		limits:    cfg.Limits.ToLimits(),
		terms:     cfg.Video.Terms,
		runID:     func() string { return orch.Status().RunID },
		logger:    logger,
	}
	orch = pipeline.NewOrchestrator(st, pipeline.Config{
		FullStages:     deps.fullStages(),
		PeriodicStages: deps.periodicStages(),
		TestStages:     deps.testStages(),
		Executor:       executor,
		Logger:         logger,
	})
	defer orch.Stop()

	sched := pipeline.NewScheduler(orch, pipeline.SchedulerConfig{
		Interval: cfg.Scheduler.Interval.Std(),
		Logger:   logger,
	})
	go sched.Run(ctx)

	// Control API.
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/api/pipeline/start", func(w http.ResponseWriter, req *http.Request) {
		mode := req.URL.Query().Get("mode")
		if mode == "" {
			mode = pipeline.ModeFull
		}
		if mode != pipeline.ModeFull && mode != pipeline.ModePeriodic && mode != pipeline.ModeTest {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown mode"})
			return
		}
		runID, err := orch.Start(req.Context(), mode)
		if err != nil {
			if errors.Is(err, pipeline.ErrAlreadyRunning) {
				writeJSON(w, http.StatusConflict, orch.Status())
				return
			}
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID, "mode": mode})
	})

	r.Post("/api/pipeline/stop", func(w http.ResponseWriter, _ *http.Request) {
		orch.Stop()
		writeJSON(w, http.StatusOK, orch.Status())
	})

	r.Get("/api/pipeline/status", func(w http.ResponseWriter, req *http.Request) {
		stats, err := st.Stats(req.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"pipeline": orch.Status(),
			"stats":    stats,
		})
	})

	r.Get("/api/runs", func(w http.ResponseWriter, req *http.Request) {
		runs, err := st.ListRuns(req.Context(), 50)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, runs)
	})

	r.Get("/api/runs/{runID}", func(w http.ResponseWriter, req *http.Request) {
		run, err := st.GetRun(req.Context(), chi.URLParam(req, "runID"))
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		if run == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
			return
		}
		writeJSON(w, http.StatusOK, run)
	})

	r.Get("/api/runs/{runID}/results", func(w http.ResponseWriter, req *http.Request) {
		results, err := st.ResultsForRun(req.Context(), chi.URLParam(req, "runID"))
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, results)
	})

	r.Get("/api/alerts", func(w http.ResponseWriter, req *http.Request) {
		alerts, err := st.ListAlerts(req.Context(), 50)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, alerts)
	})

	// HTTP server.
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	orch.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}

func fallbackProvider(cfg config.ProviderConfig, logger *slog.Logger) market.Provider {
	if cfg.BaseURL == "" {
		return nil
	}
	return market.NewFallbackProvider(market.ClientConfig{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Logger:  logger,
	})
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
