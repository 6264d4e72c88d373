// Package session computes progress views over the task ledger.
// A session has no stored record of its own; it exists as the set of
// tasks that reference its id.
package session

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/aristath/swarm/internal/ledger"
	"github.com/aristath/swarm/internal/scheduler"
)

// Progress aggregates a session's task counts by status.
type Progress struct {
	Total       int
	Completed   int
	Failed      int
	Claimed     int
	Pending     int
	CurrentWave int
	TotalWaves  int
}

// Tracker reads and batches tasks through the ledger. It owns no state of
// its own; every query is a fresh aggregation.
type Tracker struct {
	store *ledger.Store
}

// NewTracker creates a Tracker over the given ledger.
func NewTracker(store *ledger.Store) *Tracker {
	return &Tracker{store: store}
}

// CreateSession generates a fresh session identifier. No storage side
// effect occurs until tasks are added.
func (t *Tracker) CreateSession() string {
	return uuid.NewString()
}

// AddTasks inserts all specs in one transaction (all-or-nothing). The
// batch is validated for dependency cycles before any row is written;
// dependencies on tasks outside the batch must already exist in the
// ledger.
func (t *Tracker) AddTasks(ctx context.Context, sessionID string, specs []ledger.Spec) ([]string, error) {
	if err := scheduler.ValidateBatch(specs); err != nil {
		return nil, fmt.Errorf("rejecting task batch: %w", err)
	}
	return t.store.CreateBatch(ctx, sessionID, specs)
}

// GetProgress returns status counts plus wave position for a session.
func (t *Tracker) GetProgress(ctx context.Context, sessionID string) (*Progress, error) {
	tasks, err := t.store.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	p := &Progress{Total: len(tasks)}
	waves := map[int]bool{}
	for _, task := range tasks {
		waves[task.Wave] = true
		switch task.Status {
		case ledger.StatusCompleted:
			p.Completed++
		case ledger.StatusFailed:
			p.Failed++
		case ledger.StatusClaimed:
			p.Claimed++
		case ledger.StatusPending:
			p.Pending++
		}
	}
	p.TotalWaves = len(waves)
	p.CurrentWave = currentWave(tasks)

	return p, nil
}

// CurrentWave returns the lowest wave number that still has a pending
// task. When nothing is pending it returns one past the highest wave
// among all tasks ("past the end"); zero for an empty session.
func (t *Tracker) CurrentWave(ctx context.Context, sessionID string) (int, error) {
	tasks, err := t.store.ListBySession(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	return currentWave(tasks), nil
}

// IsWaveComplete reports whether every task with the given wave number is
// terminal. Vacuously true if the wave has no tasks.
func (t *Tracker) IsWaveComplete(ctx context.Context, sessionID string, wave int) (bool, error) {
	tasks, err := t.store.ListBySession(ctx, sessionID)
	if err != nil {
		return false, err
	}

	for _, task := range tasks {
		if task.Wave == wave && !task.Status.Terminal() {
			return false, nil
		}
	}
	return true, nil
}

// IsSessionComplete reports whether every task in the session is terminal.
// Vacuously true for zero tasks.
func (t *Tracker) IsSessionComplete(ctx context.Context, sessionID string) (bool, error) {
	tasks, err := t.store.ListBySession(ctx, sessionID)
	if err != nil {
		return false, err
	}

	for _, task := range tasks {
		if !task.Status.Terminal() {
			return false, nil
		}
	}
	return true, nil
}

// AdvanceWave returns the lowest wave that still has pending work, but
// only once every earlier wave is fully terminal. The second return is
// false while an earlier wave is still open or when no pending work
// remains.
func (t *Tracker) AdvanceWave(ctx context.Context, sessionID string) (int, bool, error) {
	tasks, err := t.store.ListBySession(ctx, sessionID)
	if err != nil {
		return 0, false, err
	}

	next := -1
	for _, task := range tasks {
		if task.Status == ledger.StatusPending && (next == -1 || task.Wave < next) {
			next = task.Wave
		}
	}
	if next == -1 {
		return 0, false, nil
	}

	// An in-flight task in an earlier wave keeps that wave open.
	for _, task := range tasks {
		if task.Wave < next && !task.Status.Terminal() {
			return 0, false, nil
		}
	}

	return next, true, nil
}

func currentWave(tasks []*ledger.Task) int {
	lowest := -1
	maxWave := -1
	for _, task := range tasks {
		if task.Wave > maxWave {
			maxWave = task.Wave
		}
		if task.Status == ledger.StatusPending && (lowest == -1 || task.Wave < lowest) {
			lowest = task.Wave
		}
	}
	if lowest != -1 {
		return lowest
	}
	return maxWave + 1 // past the end; 0 for an empty session
}
