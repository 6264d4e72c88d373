package scheduler

import (
	"fmt"
	"strings"

	"github.com/gammazero/toposort"

	"github.com/aristath/swarm/internal/ledger"
)

// ValidateBatch runs a topological sort over a batch of task specs and
// returns an error if the batch contains a dependency cycle or a direct
// self-reference. Dependencies pointing outside the batch are assumed to
// be already-persisted tasks and are ignored here; they cannot close a
// cycle because existing tasks never gain edges to new ids.
func ValidateBatch(specs []ledger.Spec) error {
	inBatch := make(map[string]bool, len(specs))
	for _, spec := range specs {
		if spec.ID != "" {
			inBatch[spec.ID] = true
		}
	}

	var edges []toposort.Edge
	for _, spec := range specs {
		if spec.ID == "" {
			// Generated ids cannot be referenced by other specs.
			continue
		}
		inner := 0
		for _, depID := range spec.DependsOn {
			if depID == spec.ID {
				return fmt.Errorf("task %q depends on itself", spec.ID)
			}
			if !inBatch[depID] {
				continue
			}
			// Edge (depID, taskID) means depID must come before taskID
			edges = append(edges, toposort.Edge{depID, spec.ID})
			inner++
		}
		if inner == 0 {
			// Keep isolated tasks in the sort so the count check below holds
			edges = append(edges, toposort.Edge{nil, spec.ID})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return fmt.Errorf("task batch contains cycle: %w", err)
	}

	order := make([]string, 0, len(sorted))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}

	if len(order) != len(inBatch) {
		missing := []string{}
		found := make(map[string]bool, len(order))
		for _, id := range order {
			found[id] = true
		}
		for id := range inBatch {
			if !found[id] {
				missing = append(missing, id)
			}
		}
		return fmt.Errorf("topological sort lost %d tasks: %s", len(missing), strings.Join(missing, ", "))
	}

	return nil
}
