// Package scheduler holds the dependency-ordering logic shared by the
// static wave executor and the continuous runner: readiness checks, cycle
// detection, batch validation, and advisory file-conflict detection.
package scheduler

import (
	"github.com/aristath/swarm/internal/ledger"
)

// CheckState classifies a pending task's dependency situation.
type CheckState int

const (
	// Ready: every dependency is completed; the task may be claimed.
	Ready CheckState = iota
	// Blocked: some dependency is still pending or claimed; retry later.
	Blocked
	// FailedDependency: a prerequisite failed; the task can never run and
	// should be forced to failed without being claimed.
	FailedDependency
	// MissingDependency: a declared dependency id does not exist.
	MissingDependency
	// Cyclic: the task depends on itself, directly or transitively.
	Cyclic
)

// Check is the result of a dependency inspection. Details names the
// offending dependency ids for the non-Ready states.
type Check struct {
	State   CheckState
	Details []string
}

// Graph is an in-memory view of a session's tasks used for dependency
// checks. It never mutates the ledger.
type Graph struct {
	tasks map[string]*ledger.Task
}

// NewGraph builds a graph over the given tasks.
func NewGraph(tasks []*ledger.Task) *Graph {
	m := make(map[string]*ledger.Task, len(tasks))
	for _, task := range tasks {
		m[task.ID] = task
	}
	return &Graph{tasks: m}
}

// Check inspects one task's dependencies. Cycles are reported first so a
// cyclic task is never treated as merely blocked.
func (g *Graph) Check(taskID string) Check {
	task, ok := g.tasks[taskID]
	if !ok {
		return Check{State: MissingDependency, Details: []string{taskID}}
	}

	if cyclic := g.cycleThrough(task); len(cyclic) > 0 {
		return Check{State: Cyclic, Details: cyclic}
	}

	var missing, failed, blocked []string
	for _, depID := range task.DependsOn {
		dep, ok := g.tasks[depID]
		if !ok {
			missing = append(missing, depID)
			continue
		}
		switch dep.Status {
		case ledger.StatusFailed:
			failed = append(failed, depID)
		case ledger.StatusCompleted:
			// resolved
		default:
			blocked = append(blocked, depID)
		}
	}

	switch {
	case len(failed) > 0:
		return Check{State: FailedDependency, Details: failed}
	case len(missing) > 0:
		return Check{State: MissingDependency, Details: missing}
	case len(blocked) > 0:
		return Check{State: Blocked, Details: blocked}
	}
	return Check{State: Ready}
}

// cycleThrough returns the task's own id if a depth-first walk starting
// from its declared dependencies revisits it (including the direct
// self-reference). The visited set guarantees each node is expanded at
// most once per check, so diamond-shaped graphs stay linear.
func (g *Graph) cycleThrough(task *ledger.Task) []string {
	visited := make(map[string]bool)
	stack := append([]string(nil), task.DependsOn...)

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if id == task.ID {
			return []string{task.ID}
		}
		if visited[id] {
			continue
		}
		visited[id] = true

		if dep, ok := g.tasks[id]; ok {
			stack = append(stack, dep.DependsOn...)
		}
	}
	return nil
}
