package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mentionwatch/mentionwatch/agent"
	"github.com/mentionwatch/mentionwatch/dbopen"
	"github.com/mentionwatch/mentionwatch/store"
	_ "modernc.org/sqlite"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	return store.NewStore(dbopen.OpenMemory(t, dbopen.WithSchema(store.Schema)))
}

// scriptedExecutor fails availability or stages per script.
type scriptedExecutor struct {
	mu          sync.Mutex
	unavailable bool
	failStages  map[string]bool
	executed    []string
}

func (s *scriptedExecutor) ExecuteStage(_ context.Context, stage string, _ map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unavailable {
		return fmt.Errorf("%w: connect refused", agent.ErrUnavailable)
	}
	if s.failStages[stage] {
		return fmt.Errorf("agent: stage %s: boom", stage)
	}
	s.executed = append(s.executed, stage)
	return nil
}

func (s *scriptedExecutor) Close() error { return nil }

// tracker records manual stage invocations.
type tracker struct {
	mu  sync.Mutex
	ran []string
}

func (tr *tracker) stage(name string, err error) Stage {
	return Stage{Name: name, Run: func(context.Context) error {
		tr.mu.Lock()
		tr.ran = append(tr.ran, name)
		tr.mu.Unlock()
		return err
	}}
}

func (tr *tracker) names() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]string(nil), tr.ran...)
}

func stageResults(t *testing.T, run *store.PipelineRun) []StageResult {
	t.Helper()
	var results []StageResult
	if err := json.Unmarshal([]byte(run.StagesJSON), &results); err != nil {
		t.Fatalf("parse stages json %q: %v", run.StagesJSON, err)
	}
	return results
}

func TestRunAllStagesViaAgent(t *testing.T) {
	s := openTestStore(t)
	exec := &scriptedExecutor{}
	tr := &tracker{}

	o := NewOrchestrator(s, Config{
		FullStages: []Stage{tr.stage("market", nil), tr.stage("video", nil)},
		Executor:   exec,
	})
	run, err := o.RunOnce(context.Background(), ModeFull)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if run.State != StateCompleted || run.Strategy != StrategyAgent {
		t.Fatalf("run = %s/%s, want completed/agent", run.State, run.Strategy)
	}
	if len(exec.executed) != 2 {
		t.Errorf("agent executed %v", exec.executed)
	}
	if len(tr.names()) != 0 {
		t.Errorf("manual stages ran despite healthy agent: %v", tr.names())
	}
}

func TestAgentUnavailableFallsBackWithinRun(t *testing.T) {
	// WHAT: The agent refuses the session; the same run finishes every
	// stage manually and records the manual strategy.
	// WHY: Strategy fallback is a degraded continuation of one run,
	// not a new run.
	s := openTestStore(t)
	exec := &scriptedExecutor{unavailable: true}
	tr := &tracker{}

	o := NewOrchestrator(s, Config{
		FullStages: []Stage{tr.stage("market", nil), tr.stage("video", nil), tr.stage("correlate", nil)},
		Executor:   exec,
	})
	run, err := o.RunOnce(context.Background(), ModeFull)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if run.State != StateCompleted {
		t.Errorf("state = %s, want completed (fallback alone is not degradation)", run.State)
	}
	if run.Strategy != StrategyManual {
		t.Errorf("strategy = %s, want manual", run.Strategy)
	}
	if got := tr.names(); len(got) != 3 {
		t.Fatalf("manual stages = %v, want all three", got)
	}

	results := stageResults(t, run)
	for _, r := range results {
		if r.Strategy != StrategyManual || r.Status != "ok" {
			t.Errorf("stage result = %+v", r)
		}
	}
}

func TestStageFailureRecordedRunContinues(t *testing.T) {
	// WHAT: A failing middle stage is recorded and later stages still
	// run; the run ends degraded.
	s := openTestStore(t)
	tr := &tracker{}

	o := NewOrchestrator(s, Config{
		FullStages: []Stage{
			tr.stage("market", nil),
			tr.stage("video", errors.New("selector broke")),
			tr.stage("correlate", nil),
		},
	})
	run, err := o.RunOnce(context.Background(), ModeFull)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if run.State != StateDegraded {
		t.Fatalf("state = %s, want degraded", run.State)
	}
	if got := tr.names(); len(got) != 3 {
		t.Fatalf("stages ran = %v, want all three despite failure", got)
	}

	results := stageResults(t, run)
	if results[1].Status != "failed" || results[1].Error == "" {
		t.Errorf("failed stage result = %+v", results[1])
	}
	if results[2].Status != "ok" {
		t.Errorf("downstream stage result = %+v", results[2])
	}
}

func TestAllStagesFailingIsFailedRun(t *testing.T) {
	s := openTestStore(t)
	tr := &tracker{}

	o := NewOrchestrator(s, Config{
		FullStages: []Stage{tr.stage("a", errors.New("x")), tr.stage("b", errors.New("y"))},
	})
	run, err := o.RunOnce(context.Background(), ModeFull)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if run.State != StateFailed {
		t.Fatalf("state = %s, want failed", run.State)
	}
}

func TestStartRejectsOverlap(t *testing.T) {
	// WHAT: Start during an in-flight run returns ErrAlreadyRunning
	// and does not queue a second run.
	s := openTestStore(t)

	release := make(chan struct{})
	started := make(chan struct{})
	blocking := Stage{Name: "slow", Run: func(ctx context.Context) error {
		close(started)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}}

	o := NewOrchestrator(s, Config{FullStages: []Stage{blocking}})
	if _, err := o.Start(context.Background(), ModeFull); err != nil {
		t.Fatalf("start: %v", err)
	}
	<-started

	if _, err := o.Start(context.Background(), ModeFull); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second start error = %v, want ErrAlreadyRunning", err)
	}

	close(release)
	o.Stop()

	runs, err := s.ListRuns(context.Background(), 10)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}
}

func TestStopEndsRunCooperatively(t *testing.T) {
	// WHAT: Stop cancels the run context; the run records what it got
	// to and ends failed, and the orchestrator returns to idle.
	s := openTestStore(t)
	tr := &tracker{}

	blocking := Stage{Name: "slow", Run: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}

	o := NewOrchestrator(s, Config{
		FullStages: []Stage{tr.stage("first", nil), blocking, tr.stage("never", nil)},
	})
	runID, err := o.Start(context.Background(), ModeFull)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	// Let the run reach the blocking stage, then stop it.
	deadline := time.After(5 * time.Second)
	for o.Status().Stage != "slow" {
		select {
		case <-deadline:
			t.Fatal("run never reached the blocking stage")
		case <-time.After(time.Millisecond):
		}
	}
	o.Stop()

	run, err := s.GetRun(context.Background(), runID)
	if err != nil || run == nil {
		t.Fatalf("get run: %v", err)
	}
	// The first stage succeeded and the stopped one failed.
	if run.State != StateDegraded {
		t.Errorf("state = %s, want degraded after stop", run.State)
	}
	if run.FinishedAt == 0 {
		t.Error("stopped run has no finish time")
	}
	for _, name := range tr.names() {
		if name == "never" {
			t.Error("stage after stop still ran")
		}
	}
	if o.Status().State != StateIdle {
		t.Errorf("status = %+v, want idle", o.Status())
	}
}

func TestPeriodicModeUsesPeriodicStages(t *testing.T) {
	s := openTestStore(t)
	tr := &tracker{}

	o := NewOrchestrator(s, Config{
		FullStages:     []Stage{tr.stage("market", nil), tr.stage("video", nil)},
		PeriodicStages: []Stage{tr.stage("discovery", nil), tr.stage("correlate", nil)},
	})
	run, err := o.RunOnce(context.Background(), ModePeriodic)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if run.Mode != ModePeriodic {
		t.Errorf("mode = %s", run.Mode)
	}
	want := []string{"discovery", "correlate"}
	got := tr.names()
	if len(got) != len(want) {
		t.Fatalf("stages = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("stage %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestTestModeUsesTestStages(t *testing.T) {
	s := openTestStore(t)
	tr := &tracker{}

	o := NewOrchestrator(s, Config{
		FullStages: []Stage{tr.stage("market", nil)},
		TestStages: []Stage{tr.stage("correlate", nil), tr.stage("alert", nil)},
	})
	run, err := o.RunOnce(context.Background(), ModeTest)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if run.Mode != ModeTest || run.State != StateCompleted {
		t.Errorf("run = %s/%s", run.Mode, run.State)
	}
	want := []string{"correlate", "alert"}
	got := tr.names()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("stages = %v, want %v", got, want)
	}
}

func TestSchedulerSkipsWhileRunning(t *testing.T) {
	s := openTestStore(t)

	release := make(chan struct{})
	started := make(chan struct{})
	o := NewOrchestrator(s, Config{
		PeriodicStages: []Stage{{Name: "slow", Run: func(ctx context.Context) error {
			close(started)
			select {
			case <-release:
			case <-ctx.Done():
			}
			return nil
		}}},
	})
	sched := NewScheduler(o, SchedulerConfig{Interval: time.Hour})

	sched.trigger(context.Background())
	<-started
	// Second tick lands mid-run: skipped, not queued.
	sched.trigger(context.Background())

	close(release)
	o.Stop()

	runs, err := s.ListRuns(context.Background(), 10)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1 (tick during run must be skipped)", len(runs))
	}
}
