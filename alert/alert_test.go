package alert

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mentionwatch/mentionwatch/dbopen"
	"github.com/mentionwatch/mentionwatch/store"
	_ "modernc.org/sqlite"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	return store.NewStore(dbopen.OpenMemory(t, dbopen.WithSchema(store.Schema)))
}

// captureSink records delivered alerts.
type captureSink struct {
	alerts []Alert
	err    error
}

func (c *captureSink) Deliver(_ context.Context, a Alert) error {
	if c.err != nil {
		return c.err
	}
	c.alerts = append(c.alerts, a)
	return nil
}

func result(symbol string, score float64, mentions int, trailing float64) *store.CorrelationResult {
	return &store.CorrelationResult{
		RunID:        "run-1",
		Symbol:       symbol,
		Score:        score,
		MentionCount: mentions,
		TrailingAvg:  trailing,
		RiskTag:      "medium",
	}
}

func TestGateEmitsAboveScoreThreshold(t *testing.T) {
	s := openTestStore(t)
	sink := &captureSink{}
	g := NewGate(s, sink, Config{ScoreThreshold: 1.0}, nil)

	emitted, err := g.Evaluate(context.Background(), []*store.CorrelationResult{
		result("BTC", 1.5, 10, 5),
		result("ETH", 0.2, 4, 8),
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(emitted) != 1 || emitted[0].Ticker != "BTC" {
		t.Fatalf("emitted = %+v, want only BTC", emitted)
	}
	if len(sink.alerts) != 1 {
		t.Fatalf("delivered %d alerts, want 1", len(sink.alerts))
	}
	if !strings.Contains(emitted[0].Summary, Disclaimer) {
		t.Error("summary missing risk disclaimer")
	}
}

func TestGateRelativeSpikeTrigger(t *testing.T) {
	// WHAT: Mentions at 3x the baseline alert even with a low score.
	s := openTestStore(t)
	sink := &captureSink{}
	g := NewGate(s, sink, Config{ScoreThreshold: 10, SpikeFactor: 3}, nil)

	emitted, err := g.Evaluate(context.Background(), []*store.CorrelationResult{
		result("PEPE", 0.4, 9, 2), // 9 >= 3*2
		result("DOGE", 0.4, 5, 2), // 5 < 6
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(emitted) != 1 || emitted[0].Ticker != "PEPE" {
		t.Fatalf("emitted = %+v, want only PEPE", emitted)
	}
}

func TestGateCooldownSuppressesRepeat(t *testing.T) {
	// WHAT: Two qualifying evaluations inside the cooldown emit once;
	// after the cooldown expires the same ticker may alert again.
	// WHY: Cooldown state is persisted, so this also covers restart
	// behavior: the second Evaluate uses only what the store remembers.
	s := openTestStore(t)
	sink := &captureSink{}

	current := time.Now()
	g := NewGate(s, sink, Config{ScoreThreshold: 1, Cooldown: time.Hour}, nil)
	g.now = func() time.Time { return current }

	results := []*store.CorrelationResult{result("BTC", 2, 10, 1)}

	if _, err := g.Evaluate(context.Background(), results); err != nil {
		t.Fatalf("first evaluate: %v", err)
	}
	current = current.Add(10 * time.Minute)
	if _, err := g.Evaluate(context.Background(), results); err != nil {
		t.Fatalf("second evaluate: %v", err)
	}
	if len(sink.alerts) != 1 {
		t.Fatalf("delivered %d alerts inside cooldown, want 1", len(sink.alerts))
	}

	current = current.Add(2 * time.Hour)
	if _, err := g.Evaluate(context.Background(), results); err != nil {
		t.Fatalf("third evaluate: %v", err)
	}
	if len(sink.alerts) != 2 {
		t.Fatalf("delivered %d alerts after cooldown expiry, want 2", len(sink.alerts))
	}
}

func TestGateCooldownSurvivesNewGate(t *testing.T) {
	// Fresh Gate over the same store inherits the cooldown.
	s := openTestStore(t)
	results := []*store.CorrelationResult{result("BTC", 2, 10, 1)}

	first := NewGate(s, &captureSink{}, Config{ScoreThreshold: 1, Cooldown: time.Hour}, nil)
	if _, err := first.Evaluate(context.Background(), results); err != nil {
		t.Fatalf("first evaluate: %v", err)
	}

	sink := &captureSink{}
	second := NewGate(s, sink, Config{ScoreThreshold: 1, Cooldown: time.Hour}, nil)
	emitted, err := second.Evaluate(context.Background(), results)
	if err != nil {
		t.Fatalf("second evaluate: %v", err)
	}
	if len(emitted) != 0 || len(sink.alerts) != 0 {
		t.Fatal("restarted gate re-fired inside cooldown")
	}
}

func TestGateLogsFailedDelivery(t *testing.T) {
	// WHAT: A failing sink still produces an audit log row, marked
	// undelivered, and the cooldown still engages.
	s := openTestStore(t)
	sink := &captureSink{err: errors.New("webhook down")}
	g := NewGate(s, sink, Config{ScoreThreshold: 1}, nil)

	emitted, err := g.Evaluate(context.Background(), []*store.CorrelationResult{
		result("BTC", 2, 10, 1),
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(emitted) != 1 {
		t.Fatalf("emitted = %d, want 1", len(emitted))
	}

	logged, err := s.ListAlerts(context.Background(), 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(logged) != 1 || logged[0].Delivered {
		t.Fatalf("log = %+v, want one undelivered entry", logged)
	}

	state, err := s.LastAlertedAt(context.Background(), "BTC")
	if err != nil || state == nil {
		t.Fatalf("cooldown state missing after failed delivery: %v", err)
	}
}

func TestWebhookRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 2 {
			http.Error(w, "busy", http.StatusBadGateway)
			return
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, WithWebhookRetries(3))
	err := w.Deliver(context.Background(), Alert{Ticker: "BTC", Score: 2})
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("server called %d times, want 2", calls.Load())
	}
}

func TestWebhookExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, WithWebhookRetries(1))
	if err := w.Deliver(context.Background(), Alert{Ticker: "BTC"}); err == nil {
		t.Fatal("expected error after exhausted retries")
	}
}
