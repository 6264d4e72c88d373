package runner

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/sony/gobreaker"

	"github.com/aristath/swarm/internal/events"
	"github.com/aristath/swarm/internal/ledger"
)

type fakeEnricher struct {
	mu    sync.Mutex
	enr   Enrichment
	err   error
	calls int
}

func (f *fakeEnricher) GetRelevantContext(ctx context.Context, description string) (Enrichment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.enr, f.err
}

type fakeDetector struct {
	warnings []Warning
	err      error
}

func (f *fakeDetector) Detect(ctx context.Context, agentID, description string) ([]Warning, error) {
	return f.warnings, f.err
}

func (f *fakeDetector) FormatWarnings(warnings []Warning) string {
	var parts []string
	for _, w := range warnings {
		parts = append(parts, "WARNING: "+w.Pattern)
	}
	return strings.Join(parts, "\n")
}

func enrichedRunner(t *testing.T, enricher ContextEnricher, detector AntiPatternDetector, proc *fakeProc) (*Runner, *ledger.Store) {
	t.Helper()

	store, err := ledger.OpenMemory(context.Background())
	if err != nil {
		t.Fatalf("failed to open memory store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	bus := events.NewBus()
	t.Cleanup(bus.Close)

	pool := &fakePool{proc: proc}
	r := New(Config{}, store, pool, bus, enricher, detector, nil)
	t.Cleanup(r.StopAll)
	return r, store
}

func TestEnrichDescription(t *testing.T) {
	proc := &fakeProc{id: "p1", ready: true, reply: "ok"}
	enricher := &fakeEnricher{enr: Enrichment{HasContext: true, Prompt: "Earlier decisions: use sqlite."}}
	detector := &fakeDetector{warnings: []Warning{{Pattern: "repeated-failure"}}}
	r, store := enrichedRunner(t, enricher, detector, proc)
	ctx := context.Background()

	id, _ := store.CreateTask(ctx, "s1", ledger.Spec{Description: "add an index", Category: "coder"})

	if err := r.ExecuteImmediateTask(ctx, "s1", id, "chat", "c1"); err != nil {
		t.Fatalf("ExecuteImmediateTask failed: %v", err)
	}

	if proc.sentCount() != 1 {
		t.Fatalf("expected 1 message, got %d", proc.sentCount())
	}
	sent := proc.sent[0]
	if !strings.HasPrefix(sent, "Earlier decisions: use sqlite.") {
		t.Errorf("enrichment prompt should lead the description:\n%s", sent)
	}
	if !strings.Contains(sent, "add an index") {
		t.Errorf("original description missing:\n%s", sent)
	}
	if !strings.HasSuffix(sent, "WARNING: repeated-failure") {
		t.Errorf("warnings should trail the description:\n%s", sent)
	}
}

func TestEnrichmentFailureIsBestEffort(t *testing.T) {
	proc := &fakeProc{id: "p1", ready: true, reply: "ok"}
	enricher := &fakeEnricher{err: errors.New("memory service down")}
	detector := &fakeDetector{err: errors.New("detector down")}
	r, store := enrichedRunner(t, enricher, detector, proc)
	ctx := context.Background()

	id, _ := store.CreateTask(ctx, "s1", ledger.Spec{Description: "plain task"})

	if err := r.ExecuteImmediateTask(ctx, "s1", id, "chat", "c1"); err != nil {
		t.Fatalf("enrichment failure must not block execution: %v", err)
	}

	task, _ := store.Get(ctx, id)
	if task.Status != ledger.StatusCompleted {
		t.Errorf("task should still complete, got %s", task.Status)
	}
	if proc.sent[0] != "plain task" {
		t.Errorf("description should be unmodified, got %q", proc.sent[0])
	}
}

func TestEnricherBreakerOpens(t *testing.T) {
	proc := &fakeProc{id: "p1", ready: true, reply: "ok"}
	enricher := &fakeEnricher{err: errors.New("always down")}
	r, _ := enrichedRunner(t, enricher, nil, proc)
	ctx := context.Background()

	// Five consecutive failures trip the breaker.
	for i := 0; i < 5; i++ {
		if _, err := r.enrichContext(ctx, "x"); err == nil {
			t.Fatal("expected enricher error")
		}
	}

	before := enricher.calls
	_, err := r.enrichContext(ctx, "x")
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("expected open breaker, got %v", err)
	}
	if enricher.calls != before {
		t.Error("open breaker must not call the enricher")
	}
}

func TestBreakerIgnoresCancellation(t *testing.T) {
	proc := &fakeProc{id: "p1", ready: true, reply: "ok"}
	enricher := &fakeEnricher{err: context.Canceled}
	r, _ := enrichedRunner(t, enricher, nil, proc)
	ctx := context.Background()

	// Cancellation is the caller's doing, not the collaborator failing:
	// it must never trip the breaker.
	for i := 0; i < 10; i++ {
		r.enrichContext(ctx, "x")
	}

	_, err := r.enrichContext(ctx, "x")
	if errors.Is(err, gobreaker.ErrOpenState) {
		t.Error("cancellations must not open the breaker")
	}
}
