// Package pipeline sequences the mentionwatch stages: market refresh,
// scraping, discovery, correlation, and alerting.
//
// One Orchestrator instance owns the run lifecycle. A run walks an
// ordered stage list under a single strategy decision: stages go to
// the external agent first, and the run degrades to in-process manual
// execution the moment the agent is unavailable. Stage failures are
// recorded and do not stop later stages. Every run is persisted with
// its per-stage results, so the run history survives restarts.
package pipeline

import (
	"context"
	"errors"
)

// Run states. A run moves Initializing -> Running and ends in exactly
// one of Completed, Degraded, or Failed. Idle describes the
// orchestrator between runs, not a persisted run.
const (
	StateIdle         = "idle"
	StateInitializing = "initializing"
	StateRunning      = "running"
	StateCompleted    = "completed"
	StateDegraded     = "degraded"
	StateFailed       = "failed"
)

// Execution strategies.
const (
	StrategyAgent  = "agent"
	StrategyManual = "manual"
)

// Run modes. Full covers every stage; periodic is the lighter refresh
// cycle the scheduler triggers; test runs the analysis stages over
// already-stored data without touching any external source.
const (
	ModeFull     = "full"
	ModePeriodic = "periodic"
	ModeTest     = "test"
)

// ErrAlreadyRunning is returned by Start while a run is in flight.
var ErrAlreadyRunning = errors.New("pipeline: run already in progress")

// StageResult is the persisted outcome of one stage in one run.
type StageResult struct {
	Name       string `json:"name"`
	Strategy   string `json:"strategy"`
	Status     string `json:"status"` // "ok" or "failed"
	Error      string `json:"error,omitempty"`
	StartedAt  int64  `json:"started_at"`
	DurationMs int64  `json:"duration_ms"`
}

// Stage is one named unit of work with its in-process implementation.
// The agent strategy invokes the stage by name; the manual strategy
// calls Run directly.
type Stage struct {
	Name string
	Run  StageFunc
}

// StageFunc is the in-process implementation of a stage.
type StageFunc func(ctx context.Context) error
