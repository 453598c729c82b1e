package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mentionwatch/mentionwatch/agent"
	"github.com/mentionwatch/mentionwatch/idgen"
	"github.com/mentionwatch/mentionwatch/store"
)

// RunStore persists run reports.
type RunStore interface {
	InsertRun(ctx context.Context, run *store.PipelineRun) error
	UpdateRun(ctx context.Context, run *store.PipelineRun) error
	FinishRun(ctx context.Context, run *store.PipelineRun) error
}

// Status is a snapshot of the orchestrator for the status endpoint.
type Status struct {
	State    string `json:"state"`
	RunID    string `json:"run_id,omitempty"`
	Mode     string `json:"mode,omitempty"`
	Strategy string `json:"strategy,omitempty"`
	Stage    string `json:"stage,omitempty"`
}

// Config wires the orchestrator.
type Config struct {
	// FullStages is the stage order of a full run.
	FullStages []Stage
	// PeriodicStages is the stage order of a scheduler-triggered run.
	PeriodicStages []Stage
	// TestStages is the stage order of a test run. Empty falls back to
	// PeriodicStages.
	TestStages []Stage
	// Executor is the agent strategy. Nil means manual-only.
	Executor agent.Executor
	Logger   *slog.Logger
}

// Orchestrator runs the pipeline. One instance, one run at a time.
type Orchestrator struct {
	cfg   Config
	runs  RunStore
	newID idgen.Generator

	mu      sync.Mutex
	running bool
	status  Status
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(runs RunStore, cfg Config) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Orchestrator{
		cfg:    cfg,
		runs:   runs,
		newID:  idgen.New,
		status: Status{State: StateIdle},
	}
}

// Start launches a run in the background and returns its ID. A second
// Start while a run is in flight is rejected, never queued.
func (o *Orchestrator) Start(ctx context.Context, mode string) (string, error) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return "", ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	runID := o.newID()
	o.running = true
	o.cancel = cancel
	o.done = make(chan struct{})
	o.status = Status{State: StateInitializing, RunID: runID, Mode: mode}
	done := o.done
	o.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()
		o.execute(runCtx, runID, mode)

		o.mu.Lock()
		o.running = false
		o.cancel = nil
		o.mu.Unlock()
	}()
	return runID, nil
}

// RunOnce executes a run synchronously. Used by Start's goroutine and
// directly by callers that want to block, like one-shot CLI runs.
func (o *Orchestrator) RunOnce(ctx context.Context, mode string) (*store.PipelineRun, error) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	runID := o.newID()
	o.running = true
	o.status = Status{State: StateInitializing, RunID: runID, Mode: mode}
	o.mu.Unlock()

	run := o.execute(ctx, runID, mode)

	o.mu.Lock()
	o.running = false
	o.mu.Unlock()
	return run, nil
}

// Stop asks the in-flight run to wind down and waits for it. A stopped
// run finishes the stage it is in and records what it got to. No-op
// when idle.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	cancel, done := o.cancel, o.done
	o.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	if done != nil {
		<-done
	}
}

// Status returns the current orchestrator snapshot.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// Running reports whether a run is in flight.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// execute walks one run through its stages and persists the report.
func (o *Orchestrator) execute(ctx context.Context, runID, mode string) *store.PipelineRun {
	log := o.cfg.Logger.With("run_id", runID, "mode", mode)

	stages := o.cfg.FullStages
	switch mode {
	case ModePeriodic:
		stages = o.cfg.PeriodicStages
	case ModeTest:
		stages = o.cfg.TestStages
		if len(stages) == 0 {
			stages = o.cfg.PeriodicStages
		}
	}

	strategy := StrategyAgent
	if o.cfg.Executor == nil {
		strategy = StrategyManual
	}

	run := &store.PipelineRun{
		ID:       runID,
		Mode:     mode,
		Strategy: strategy,
		State:    StateInitializing,
	}
	if err := o.runs.InsertRun(ctx, run); err != nil {
		log.Error("persist run start failed", "error", err)
		run.State = StateFailed
		o.setStatus(Status{State: StateIdle})
		return run
	}

	var results []StageResult
	failed := 0

	for _, stage := range stages {
		if ctx.Err() != nil {
			break
		}

		o.setStatus(Status{State: StateRunning, RunID: runID, Mode: mode,
			Strategy: strategy, Stage: stage.Name})
		run.State = StateRunning

		res, downgraded := o.runStage(ctx, stage, strategy, log)
		if downgraded {
			// The agent is gone for this run; every later stage runs
			// manually. The run itself keeps going.
			strategy = StrategyManual
			run.Strategy = StrategyManual
		}
		if res.Status != "ok" {
			failed++
		}
		results = append(results, res)

		run.StagesJSON = marshalResults(results)
		if err := o.runs.UpdateRun(ctx, run); err != nil {
			log.Warn("persist stage result failed", "stage", stage.Name, "error", err)
		}
	}

	// Degraded needs at least one success and one failure; a run where
	// everything failed, or that never got a stage done, is Failed. A
	// strategy downgrade alone does not degrade the run.
	succeeded := len(results) - failed
	switch {
	case failed == 0 && succeeded > 0:
		run.State = StateCompleted
	case failed > 0 && succeeded > 0:
		run.State = StateDegraded
	default:
		run.State = StateFailed
	}

	run.StagesJSON = marshalResults(results)
	if err := o.runs.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		log.Error("persist run finish failed", "error", err)
	}

	o.setStatus(Status{State: StateIdle})
	log.Info("run finished", "state", run.State, "strategy", run.Strategy,
		"stages", len(results), "failed", failed)
	return run
}

// runStage executes one stage under the current strategy. The second
// return value reports an agent-unavailable downgrade; the stage is
// then re-run manually inside the same call.
func (o *Orchestrator) runStage(ctx context.Context, stage Stage, strategy string, log *slog.Logger) (StageResult, bool) {
	start := time.Now()
	res := StageResult{Name: stage.Name, Strategy: strategy, StartedAt: start.UnixMilli()}
	downgraded := false

	var err error
	if strategy == StrategyAgent {
		err = o.cfg.Executor.ExecuteStage(ctx, stage.Name, nil)
		if errors.Is(err, agent.ErrUnavailable) {
			log.Warn("agent unavailable, downgrading run to manual",
				"stage", stage.Name, "error", err)
			downgraded = true
			res.Strategy = StrategyManual
			err = stage.Run(ctx)
		}
	} else {
		err = stage.Run(ctx)
	}

	res.DurationMs = time.Since(start).Milliseconds()
	if err != nil {
		res.Status = "failed"
		res.Error = err.Error()
		log.Error("stage failed", "stage", stage.Name, "strategy", res.Strategy, "error", err)
	} else {
		res.Status = "ok"
		log.Info("stage complete", "stage", stage.Name, "strategy", res.Strategy,
			"duration_ms", res.DurationMs)
	}
	return res, downgraded
}

func (o *Orchestrator) setStatus(s Status) {
	o.mu.Lock()
	o.status = s
	o.mu.Unlock()
}

func marshalResults(results []StageResult) string {
	data, err := json.Marshal(results)
	if err != nil {
		return "[]"
	}
	return string(data)
}
