package scheduler

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/aristath/swarm/internal/ledger"
)

// WaveTask is one task in a statically known wave.
type WaveTask struct {
	ID          string
	WorkerID    string
	Description string
	Category    string
	Files       []string
	DependsOn   []string
}

// Wave is a batch of tasks intended to run concurrently. Waves execute
// strictly in ascending Number order.
type Wave struct {
	Number int
	Tasks  []WaveTask
}

// ExecuteFunc runs a single task's payload and returns its result text.
// It delegates to the external worker pool.
type ExecuteFunc func(ctx context.Context, task WaveTask) (string, error)

// Outcome is the per-task result of a wave execution.
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeFailed
	OutcomeSkipped // claim lost: the task was already taken or terminal
)

// String returns the lower-case outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	case OutcomeSkipped:
		return "skipped"
	}
	return "unknown"
}

// TaskResult records one task's outcome within a wave run.
type TaskResult struct {
	TaskID  string
	Wave    int
	Outcome Outcome
	Result  string
	Err     error
}

// WaveReport aggregates a full wave-executor run.
type WaveReport struct {
	Completed      int
	Failed         int
	Skipped        int
	TotalWaves     int
	CompletedWaves int
	Results        []TaskResult // in wave order
}

// WaveExecutor runs statically known waves against the ledger: claim every
// task in a wave, execute the claimed ones concurrently, wait for the
// whole wave, then proceed. Failures never abort later waves
// (fail-forward) and are never retried here.
type WaveExecutor struct {
	store *ledger.Store
	limit int
}

// NewWaveExecutor creates a WaveExecutor with the given concurrency limit
// per wave (defaults to 4 when <= 0).
func NewWaveExecutor(store *ledger.Store, limit int) *WaveExecutor {
	if limit <= 0 {
		limit = 4
	}
	return &WaveExecutor{store: store, limit: limit}
}

// Run executes the waves in ascending wave-number order. Wave N+1 never
// starts before every task of wave N reached a terminal outcome for this
// invocation. Context cancellation stops between waves and aborts in-wave
// execution via the errgroup context.
func (e *WaveExecutor) Run(ctx context.Context, waves []Wave, execute ExecuteFunc) (*WaveReport, error) {
	ordered := append([]Wave(nil), waves...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Number < ordered[j].Number })

	report := &WaveReport{TotalWaves: len(ordered)}

	for _, wave := range ordered {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		// Each goroutine writes only its own slot, so the slice needs no lock.
		results := make([]TaskResult, len(wave.Tasks))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.limit)

		for i, task := range wave.Tasks {
			claimed, err := e.store.Claim(ctx, task.ID, task.WorkerID)
			if err != nil {
				return report, err
			}
			if !claimed {
				// Already taken or terminal; siblings are unaffected.
				results[i] = TaskResult{TaskID: task.ID, Wave: wave.Number, Outcome: OutcomeSkipped}
				continue
			}

			i, task := i, task
			g.Go(func() error {
				result, execErr := execute(gctx, task)
				if execErr != nil {
					if _, err := e.store.Fail(gctx, task.ID, execErr.Error()); err != nil {
						return err
					}
					results[i] = TaskResult{TaskID: task.ID, Wave: wave.Number, Outcome: OutcomeFailed, Err: execErr}
					return nil
				}

				if _, err := e.store.Complete(gctx, task.ID, result); err != nil {
					return err
				}
				results[i] = TaskResult{TaskID: task.ID, Wave: wave.Number, Outcome: OutcomeCompleted, Result: result}
				return nil
			})
		}

		// Sequential-wave, parallel-task contract: wait for the whole wave.
		if err := g.Wait(); err != nil {
			report.Results = append(report.Results, results...)
			return report, err
		}

		for _, r := range results {
			switch r.Outcome {
			case OutcomeCompleted:
				report.Completed++
			case OutcomeFailed:
				report.Failed++
			case OutcomeSkipped:
				report.Skipped++
			}
		}
		report.Results = append(report.Results, results...)
		report.CompletedWaves++
	}

	return report, nil
}
