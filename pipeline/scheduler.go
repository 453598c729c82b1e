package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// SchedulerConfig configures the periodic trigger.
type SchedulerConfig struct {
	// Interval between periodic runs. Default: 30 minutes.
	Interval time.Duration `yaml:"interval"`
	Logger   *slog.Logger  `yaml:"-"`
}

func (c *SchedulerConfig) defaults() {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Minute
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Scheduler triggers periodic runs on a ticker. A tick that lands
// while a run is still in flight is skipped, never queued; the next
// tick tries again.
type Scheduler struct {
	orch   *Orchestrator
	config SchedulerConfig
}

// NewScheduler creates a Scheduler driving the given orchestrator.
func NewScheduler(orch *Orchestrator, cfg SchedulerConfig) *Scheduler {
	cfg.defaults()
	return &Scheduler{orch: orch, config: cfg}
}

// Run triggers periodic runs until ctx is cancelled. Blocks.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.trigger(ctx)
		}
	}
}

func (s *Scheduler) trigger(ctx context.Context) {
	if s.orch.Running() {
		s.config.Logger.Info("scheduler: run in progress, skipping tick")
		return
	}
	runID, err := s.orch.Start(ctx, ModePeriodic)
	if err != nil {
		if errors.Is(err, ErrAlreadyRunning) {
			s.config.Logger.Info("scheduler: run in progress, skipping tick")
			return
		}
		s.config.Logger.Error("scheduler: start run", "error", err)
		return
	}
	s.config.Logger.Info("scheduler: periodic run started", "run_id", runID)
}
