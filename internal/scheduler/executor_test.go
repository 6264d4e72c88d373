package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/aristath/swarm/internal/ledger"
)

func executorStore(t *testing.T) *ledger.Store {
	t.Helper()

	store, err := ledger.OpenMemory(context.Background())
	if err != nil {
		t.Fatalf("failed to open memory store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func seedWave(t *testing.T, store *ledger.Store, wave int, ids ...string) Wave {
	t.Helper()

	w := Wave{Number: wave}
	for _, id := range ids {
		_, err := store.CreateTask(context.Background(), "s1", ledger.Spec{
			ID:          id,
			Description: "task " + id,
			Wave:        wave,
		})
		if err != nil {
			t.Fatalf("failed to seed task %s: %v", id, err)
		}
		w.Tasks = append(w.Tasks, WaveTask{ID: id, WorkerID: "w", Description: "task " + id})
	}
	return w
}

func TestWaveExecutorFailForward(t *testing.T) {
	store := executorStore(t)
	ctx := context.Background()

	wave := seedWave(t, store, 2, "t1", "t2", "t3")

	execute := func(ctx context.Context, task WaveTask) (string, error) {
		if task.ID == "t2" {
			return "", errors.New("worker crashed")
		}
		return "ok", nil
	}

	report, err := NewWaveExecutor(store, 4).Run(ctx, []Wave{wave}, execute)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.Completed != 2 || report.Failed != 1 || report.Skipped != 0 {
		t.Errorf("expected 2/1/0, got %d/%d/%d", report.Completed, report.Failed, report.Skipped)
	}
	if report.CompletedWaves != 1 {
		t.Errorf("a failure must not abort the wave, got %d completed waves", report.CompletedWaves)
	}

	failed, _ := store.Get(ctx, "t2")
	if failed.Status != ledger.StatusFailed || failed.Result != "worker crashed" {
		t.Errorf("t2 not recorded as failed: %s %q", failed.Status, failed.Result)
	}
	done, _ := store.Get(ctx, "t1")
	if done.Status != ledger.StatusCompleted {
		t.Errorf("t1 should be completed, got %s", done.Status)
	}
}

func TestWaveExecutorLaterWaveRunsAfterFailure(t *testing.T) {
	store := executorStore(t)
	ctx := context.Background()

	_, err := store.CreateBatch(ctx, "s1", []ledger.Spec{
		{ID: "t1", Description: "a", Wave: 1},
		{ID: "t2", Description: "b", Wave: 1},
		{ID: "t3", Description: "c", Wave: 2, DependsOn: []string{"t1", "t2"}},
	})
	if err != nil {
		t.Fatalf("CreateBatch failed: %v", err)
	}

	waves := []Wave{
		{Number: 1, Tasks: []WaveTask{
			{ID: "t1", WorkerID: "w"},
			{ID: "t2", WorkerID: "w"},
		}},
		{Number: 2, Tasks: []WaveTask{
			{ID: "t3", WorkerID: "w", DependsOn: []string{"t1", "t2"}},
		}},
	}

	execute := func(ctx context.Context, task WaveTask) (string, error) {
		if task.ID == "t2" {
			return "", errors.New("boom")
		}
		return "ok", nil
	}

	report, err := NewWaveExecutor(store, 4).Run(ctx, waves, execute)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// t2's failure does not stop wave 2: the executor trusts the caller's
	// static wave plan and fails forward.
	if report.Completed != 2 || report.Failed != 1 || report.Skipped != 0 {
		t.Errorf("expected 2/1/0, got %d/%d/%d", report.Completed, report.Failed, report.Skipped)
	}

	t3, _ := store.Get(ctx, "t3")
	if t3.Status != ledger.StatusCompleted {
		t.Errorf("t3 should complete, got %s", t3.Status)
	}
}

func TestWaveExecutorSequencesWaves(t *testing.T) {
	store := executorStore(t)
	ctx := context.Background()

	wave1 := seedWave(t, store, 1, "a1", "a2")
	wave2 := seedWave(t, store, 2, "b1")

	var mu sync.Mutex
	var order []string
	execute := func(ctx context.Context, task WaveTask) (string, error) {
		mu.Lock()
		order = append(order, task.ID)
		mu.Unlock()
		return "ok", nil
	}

	// Deliberately pass waves out of order; Run must sort them.
	report, err := NewWaveExecutor(store, 4).Run(ctx, []Wave{wave2, wave1}, execute)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Completed != 3 || report.CompletedWaves != 2 {
		t.Errorf("unexpected report: %+v", report)
	}

	if len(order) != 3 || order[2] != "b1" {
		t.Errorf("wave 2 must run after wave 1 drained, got order %v", order)
	}
}

func TestWaveExecutorSkipsLostClaims(t *testing.T) {
	store := executorStore(t)
	ctx := context.Background()

	wave := seedWave(t, store, 1, "t1", "t2")

	// Another worker already holds t1.
	if _, err := store.Claim(ctx, "t1", "someone-else"); err != nil {
		t.Fatalf("pre-claim failed: %v", err)
	}

	execute := func(ctx context.Context, task WaveTask) (string, error) {
		if task.ID == "t1" {
			t.Error("lost claim must not execute")
		}
		return "ok", nil
	}

	report, err := NewWaveExecutor(store, 4).Run(ctx, []Wave{wave}, execute)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Skipped != 1 || report.Completed != 1 {
		t.Errorf("expected 1 skipped and 1 completed, got %+v", report)
	}
}

func TestWaveExecutorConcurrencyLimit(t *testing.T) {
	store := executorStore(t)
	ctx := context.Background()

	ids := make([]string, 8)
	for i := range ids {
		ids[i] = fmt.Sprintf("t%d", i)
	}
	wave := seedWave(t, store, 1, ids...)

	var mu sync.Mutex
	running, peak := 0, 0
	gate := make(chan struct{})
	var gateOnce sync.Once

	execute := func(ctx context.Context, task WaveTask) (string, error) {
		mu.Lock()
		running++
		if running > peak {
			peak = running
		}
		if running == 2 {
			gateOnce.Do(func() { close(gate) })
		}
		mu.Unlock()

		<-gate

		mu.Lock()
		running--
		mu.Unlock()
		return "ok", nil
	}

	report, err := NewWaveExecutor(store, 2).Run(ctx, []Wave{wave}, execute)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Completed != 8 {
		t.Errorf("expected all 8 completed, got %d", report.Completed)
	}
	if peak > 2 {
		t.Errorf("expected at most 2 concurrent tasks, saw %d", peak)
	}
}

func TestWaveExecutorCancelledContext(t *testing.T) {
	store := executorStore(t)

	wave := seedWave(t, store, 1, "t1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewWaveExecutor(store, 4).Run(ctx, []Wave{wave}, func(ctx context.Context, task WaveTask) (string, error) {
		t.Error("execute must not run after cancellation")
		return "", nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
