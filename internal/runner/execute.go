package runner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/aristath/swarm/internal/events"
	"github.com/aristath/swarm/internal/ledger"
)

// ErrWrongSession is returned by ExecuteImmediateTask when the task
// belongs to a different session than requested.
var ErrWrongSession = errors.New("task belongs to a different session")

// ErrNotClaimable is returned by ExecuteImmediateTask when the task could
// not be claimed (already taken or terminal).
var ErrNotClaimable = errors.New("task could not be claimed")

// ExecuteImmediateTask bypasses the poll cycle for externally triggered
// work (e.g., a mention in a chat channel). Unlike the poll path, which
// silently skips, it returns an error if the task does not exist, belongs
// to a different session, or cannot be claimed. Execution outcomes are
// absorbed into ledger state as usual.
func (r *Runner) ExecuteImmediateTask(ctx context.Context, sessionID, taskID, source, channelID string) error {
	task, err := r.ledger.Get(ctx, taskID)
	if err != nil {
		return err
	}
	if task.SessionID != sessionID {
		return fmt.Errorf("%w: task %s is in session %s", ErrWrongSession, taskID, task.SessionID)
	}

	role := r.resolveRole(task)
	claimed, err := r.ledger.Claim(ctx, taskID, "worker:"+role)
	if err != nil {
		return err
	}
	if !claimed {
		return fmt.Errorf("%w: %s", ErrNotClaimable, taskID)
	}

	r.runTask(ctx, task, source, channelID)
	return nil
}

// runTask executes a single already-claimed task: enrich the description,
// acquire a worker, apply the busy guard, send, and record the outcome.
// Shared by the poll and immediate paths.
func (r *Runner) runTask(ctx context.Context, task *ledger.Task, source, channelID string) {
	role := task.Category
	if role == "" {
		role = r.cfg.DefaultRole
	}

	description := r.enrichDescription(ctx, role, task)

	proc, err := r.pool.Get(source, channelID, role)
	if err != nil {
		// No worker was acquired, so there is nothing to release.
		r.handleFailure(ctx, task, fmt.Errorf("failed to acquire worker: %w", err))
		return
	}

	if !proc.Ready() {
		// Busy guard: no capacity right now. Return the task to pending
		// without penalty; a future poll cycle retries it.
		r.pool.Release(role, proc)
		if _, err := r.ledger.Defer(ctx, task.ID); err != nil {
			log.Printf("ERROR: failed to defer task %s: %v", task.ID, err)
		}
		r.bus.Publish(events.TopicTask, events.TaskDeferredEvent{
			SessionID: task.SessionID,
			ID:        task.ID,
			Role:      role,
			Timestamp: time.Now(),
		})
		return
	}

	start := time.Now()
	response, err := proc.SendMessage(ctx, description)
	r.pool.Release(role, proc)

	if err != nil {
		r.handleFailure(ctx, task, err)
		return
	}

	if _, err := r.ledger.Complete(ctx, task.ID, response); err != nil {
		log.Printf("ERROR: failed to complete task %s: %v", task.ID, err)
		return
	}

	r.bus.Publish(events.TopicTask, events.TaskCompletedEvent{
		SessionID: task.SessionID,
		ID:        task.ID,
		Result:    response,
		Duration:  time.Since(start),
		Timestamp: time.Now(),
	})
	r.scheduleCheckpoint(task.SessionID)
}

// enrichDescription prepends relevant context and appends anti-pattern
// warnings to the task description. Both collaborators are best-effort:
// their failures are logged and never block execution.
func (r *Runner) enrichDescription(ctx context.Context, role string, task *ledger.Task) string {
	description := task.Description

	if r.enricher != nil {
		enr, err := r.enrichContext(ctx, task.Description)
		if err != nil {
			log.Printf("WARNING: context enrichment failed for task %s: %v", task.ID, err)
		} else if enr.HasContext && enr.Prompt != "" {
			description = enr.Prompt + "\n\n" + description
		}
	}

	if r.detector != nil {
		warnings, err := r.detectAntiPatterns(ctx, role, task.Description)
		if err != nil {
			log.Printf("WARNING: anti-pattern detection failed for task %s: %v", task.ID, err)
		} else if len(warnings) > 0 {
			description = description + "\n\n" + r.detector.FormatWarnings(warnings)
		}
	}

	return description
}

// handleFailure applies the retry policy after a failed execution: retry
// while under the limit, otherwise record a terminal failure.
func (r *Runner) handleFailure(ctx context.Context, task *ledger.Task, execErr error) {
	// Read the retry count fresh; the in-memory copy may predate earlier
	// attempts.
	fresh, err := r.ledger.Get(ctx, task.ID)
	if err != nil {
		log.Printf("ERROR: failed to reload task %s after failure: %v", task.ID, err)
		return
	}

	if fresh.RetryCount < r.cfg.MaxRetries {
		if ok, err := r.ledger.Retry(ctx, task.ID); err != nil {
			log.Printf("ERROR: failed to retry task %s: %v", task.ID, err)
			return
		} else if !ok {
			return
		}
		r.bus.Publish(events.TopicTask, events.TaskRetriedEvent{
			SessionID:  task.SessionID,
			ID:         task.ID,
			Attempt:    fresh.RetryCount + 1,
			MaxRetries: r.cfg.MaxRetries,
			Err:        execErr.Error(),
			Timestamp:  time.Now(),
		})
		return
	}

	if ok, err := r.ledger.Fail(ctx, task.ID, execErr.Error()); err != nil {
		log.Printf("ERROR: failed to mark task %s failed: %v", task.ID, err)
		return
	} else if !ok {
		return
	}

	r.bus.Publish(events.TopicTask, events.TaskFailedEvent{
		SessionID: task.SessionID,
		ID:        task.ID,
		Err:       execErr.Error(),
		Timestamp: time.Now(),
	})
	r.scheduleCheckpoint(task.SessionID)
}
