package scheduler

import (
	"testing"

	"github.com/aristath/swarm/internal/ledger"
)

func task(id string, status ledger.Status, deps ...string) *ledger.Task {
	return &ledger.Task{ID: id, SessionID: "s1", Status: status, DependsOn: deps}
}

func TestCheckReady(t *testing.T) {
	g := NewGraph([]*ledger.Task{
		task("a", ledger.StatusCompleted),
		task("b", ledger.StatusPending, "a"),
	})

	check := g.Check("b")
	if check.State != Ready {
		t.Errorf("expected Ready, got %v (%v)", check.State, check.Details)
	}
}

func TestCheckNoDependencies(t *testing.T) {
	g := NewGraph([]*ledger.Task{task("a", ledger.StatusPending)})

	if check := g.Check("a"); check.State != Ready {
		t.Errorf("expected Ready, got %v", check.State)
	}
}

func TestCheckBlocked(t *testing.T) {
	tests := []struct {
		name   string
		status ledger.Status
	}{
		{"pending dependency", ledger.StatusPending},
		{"claimed dependency", ledger.StatusClaimed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGraph([]*ledger.Task{
				task("a", tt.status),
				task("b", ledger.StatusPending, "a"),
			})

			check := g.Check("b")
			if check.State != Blocked {
				t.Errorf("expected Blocked, got %v", check.State)
			}
			if len(check.Details) != 1 || check.Details[0] != "a" {
				t.Errorf("expected details [a], got %v", check.Details)
			}
		})
	}
}

func TestCheckFailedDependency(t *testing.T) {
	g := NewGraph([]*ledger.Task{
		task("a", ledger.StatusFailed),
		task("b", ledger.StatusPending, "a"),
	})

	check := g.Check("b")
	if check.State != FailedDependency {
		t.Errorf("expected FailedDependency, got %v", check.State)
	}
}

func TestCheckFailedBeatsBlocked(t *testing.T) {
	// One failed and one pending dependency: failure wins, the task can
	// never run no matter how long it waits.
	g := NewGraph([]*ledger.Task{
		task("a", ledger.StatusFailed),
		task("b", ledger.StatusPending),
		task("c", ledger.StatusPending, "a", "b"),
	})

	check := g.Check("c")
	if check.State != FailedDependency {
		t.Errorf("expected FailedDependency, got %v", check.State)
	}
	if len(check.Details) != 1 || check.Details[0] != "a" {
		t.Errorf("expected details [a], got %v", check.Details)
	}
}

func TestCheckMissingDependency(t *testing.T) {
	g := NewGraph([]*ledger.Task{
		task("b", ledger.StatusPending, "ghost"),
	})

	check := g.Check("b")
	if check.State != MissingDependency {
		t.Errorf("expected MissingDependency, got %v", check.State)
	}
	if len(check.Details) != 1 || check.Details[0] != "ghost" {
		t.Errorf("expected details [ghost], got %v", check.Details)
	}
}

func TestCheckSelfCycle(t *testing.T) {
	g := NewGraph([]*ledger.Task{
		task("a", ledger.StatusPending, "a"),
	})

	check := g.Check("a")
	if check.State != Cyclic {
		t.Errorf("expected Cyclic, got %v", check.State)
	}
}

func TestCheckTransitiveCycle(t *testing.T) {
	g := NewGraph([]*ledger.Task{
		task("a", ledger.StatusPending, "b"),
		task("b", ledger.StatusPending, "c"),
		task("c", ledger.StatusPending, "a"),
	})

	for _, id := range []string{"a", "b", "c"} {
		if check := g.Check(id); check.State != Cyclic {
			t.Errorf("task %s: expected Cyclic, got %v", id, check.State)
		}
	}
}

func TestCheckDiamondIsNotCycle(t *testing.T) {
	// d -> b -> a and d -> c -> a: a is reached twice but never revisits d.
	g := NewGraph([]*ledger.Task{
		task("a", ledger.StatusCompleted),
		task("b", ledger.StatusCompleted, "a"),
		task("c", ledger.StatusCompleted, "a"),
		task("d", ledger.StatusPending, "b", "c"),
	})

	check := g.Check("d")
	if check.State != Ready {
		t.Errorf("expected Ready for diamond, got %v (%v)", check.State, check.Details)
	}
}

func TestCheckCycleBehindCompletedDependency(t *testing.T) {
	// The cycle sits among pending tasks; a completed dependency elsewhere
	// must not mask it.
	g := NewGraph([]*ledger.Task{
		task("done", ledger.StatusCompleted),
		task("x", ledger.StatusPending, "done", "y"),
		task("y", ledger.StatusPending, "x"),
	})

	if check := g.Check("x"); check.State != Cyclic {
		t.Errorf("expected Cyclic, got %v", check.State)
	}
}

func TestCheckUnknownTask(t *testing.T) {
	g := NewGraph(nil)

	if check := g.Check("nope"); check.State != MissingDependency {
		t.Errorf("expected MissingDependency for unknown task, got %v", check.State)
	}
}
