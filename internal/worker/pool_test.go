package worker

import (
	"context"
	"testing"
	"time"
)

func testPool(maxPerRole int) *Pool {
	return NewPool(map[string]Command{
		"coder": {Name: "echo"},
	}, Options{MaxPerRole: maxPerRole})
}

func TestGetUnknownRole(t *testing.T) {
	pool := testPool(2)

	_, err := pool.Get("src", "ch", "ghost")
	if err == nil {
		t.Fatal("expected error for unconfigured role")
	}
}

func TestGetSpawnsUpToCap(t *testing.T) {
	pool := testPool(2)

	a, err := pool.Get("src", "ch", "coder")
	if err != nil || !a.Ready() {
		t.Fatalf("first get: ready=%v err=%v", a.Ready(), err)
	}
	b, err := pool.Get("src", "ch", "coder")
	if err != nil || !b.Ready() {
		t.Fatalf("second get: ready=%v err=%v", b.Ready(), err)
	}
	if a.ID() == b.ID() {
		t.Error("distinct gets while busy must yield distinct processes")
	}
	if pool.Count("coder") != 2 {
		t.Errorf("expected 2 live processes, got %d", pool.Count("coder"))
	}
}

func TestGetSaturatedReturnsNotReady(t *testing.T) {
	pool := testPool(1)

	a, _ := pool.Get("src", "ch", "coder")
	if !a.Ready() {
		t.Fatal("first handle should be ready")
	}

	b, err := pool.Get("src", "ch", "coder")
	if err != nil {
		t.Fatalf("saturated get must not error: %v", err)
	}
	if b.Ready() {
		t.Error("saturated pool must hand out a not-ready handle")
	}

	// The overflow handle is untracked.
	if pool.Count("coder") != 1 {
		t.Errorf("expected 1 tracked process, got %d", pool.Count("coder"))
	}

	// Releasing the overflow handle is a no-op.
	pool.Release("coder", b)
	if pool.Count("coder") != 1 {
		t.Errorf("releasing overflow handle changed the pool: %d", pool.Count("coder"))
	}
}

func TestReleaseEnablesReuse(t *testing.T) {
	pool := testPool(1)

	a, _ := pool.Get("src", "ch", "coder")
	pool.Release("coder", a)

	b, err := pool.Get("src", "ch", "coder")
	if err != nil {
		t.Fatalf("get after release failed: %v", err)
	}
	if b.ID() != a.ID() {
		t.Error("released process should be reused, not respawned")
	}
	if !b.Ready() {
		t.Error("reused process should be ready")
	}
}

func TestReleaseNil(t *testing.T) {
	pool := testPool(1)
	pool.Release("coder", nil) // must not panic
}

func TestSendMessageNotReady(t *testing.T) {
	pool := testPool(1)

	pool.Get("src", "ch", "coder")
	overflow, _ := pool.Get("src", "ch", "coder")

	if _, err := overflow.SendMessage(context.Background(), "hi"); err == nil {
		t.Error("not-ready handle must refuse to send")
	}
}

func TestCleanupIdle(t *testing.T) {
	pool := NewPool(map[string]Command{
		"coder": {Name: "echo"},
	}, Options{MaxPerRole: 2, IdleTimeout: 10 * time.Millisecond})

	// One process stays busy, a second goes idle.
	busy, _ := pool.Get("src", "ch", "coder")
	_ = busy
	idle, _ := pool.Get("src", "ch", "coder")
	pool.Release("coder", idle)

	time.Sleep(20 * time.Millisecond)

	removed := pool.CleanupIdle()
	if removed != 1 {
		t.Errorf("expected 1 idle process removed, got %d", removed)
	}
	if pool.Count("coder") != 1 {
		t.Errorf("busy process must survive, count=%d", pool.Count("coder"))
	}
}

func TestCleanupHungIgnoresIdle(t *testing.T) {
	pool := NewPool(map[string]Command{
		"coder": {Name: "echo"},
	}, Options{MaxPerRole: 2, HungTimeout: time.Millisecond})

	a, _ := pool.Get("src", "ch", "coder")
	pool.Release("coder", a)
	time.Sleep(5 * time.Millisecond)

	// No subprocess is running, so nothing qualifies as hung.
	if n := pool.CleanupHung(); n != 0 {
		t.Errorf("expected no hung processes, got %d", n)
	}
}
