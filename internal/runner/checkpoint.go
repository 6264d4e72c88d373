package runner

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/aristath/swarm/internal/ledger"
)

// checkpointFailureLimit suppresses repeated save-failure warnings after
// this many consecutive failures per session.
const checkpointFailureLimit = 3

// scheduleCheckpoint arms (or re-arms) the debounced checkpoint timer for
// a session. A burst of task events collapses into a single save.
func (r *Runner) scheduleCheckpoint(sessionID string) {
	if r.ckpts == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if timer, ok := r.ckptTimers[sessionID]; ok {
		timer.Stop()
	}
	r.ckptTimers[sessionID] = time.AfterFunc(r.cfg.CheckpointDebounce, func() {
		r.mu.Lock()
		delete(r.ckptTimers, sessionID)
		r.mu.Unlock()
		r.saveCheckpointNow(context.Background(), sessionID)
	})
}

// saveCheckpointNow persists a checkpoint immediately, with a short
// exponential-backoff retry. Always best-effort: failures are logged
// (with noise suppression) and never block task execution.
func (r *Runner) saveCheckpointNow(ctx context.Context, sessionID string) {
	if r.ckpts == nil {
		return
	}

	summary, openFiles, nextSteps, err := r.checkpointContent(ctx, sessionID)
	if err != nil {
		log.Printf("WARNING: failed to build checkpoint for session %s: %v", sessionID, err)
		return
	}

	operation := func() error {
		return r.ckpts.SaveCheckpoint(ctx, sessionID, summary, openFiles, nextSteps)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxInterval = 2 * time.Second

	saveErr := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, 3), ctx))

	r.mu.Lock()
	defer r.mu.Unlock()

	if saveErr != nil {
		r.ckptFailures[sessionID]++
		if r.ckptFailures[sessionID] <= checkpointFailureLimit {
			log.Printf("WARNING: checkpoint save failed for session %s: %v", sessionID, saveErr)
			if r.ckptFailures[sessionID] == checkpointFailureLimit {
				log.Printf("WARNING: suppressing further checkpoint warnings for session %s", sessionID)
			}
		}
		return
	}
	r.ckptFailures[sessionID] = 0
}

// checkpointContent summarizes the session's current state: progress
// counts, the files claimed tasks own, and what remains.
func (r *Runner) checkpointContent(ctx context.Context, sessionID string) (summary string, openFiles []string, nextSteps string, err error) {
	tasks, err := r.ledger.ListBySession(ctx, sessionID)
	if err != nil {
		return "", nil, "", err
	}

	completed, failed, claimed, pending := 0, 0, 0, 0
	fileSet := map[string]bool{}
	for _, task := range tasks {
		switch task.Status {
		case ledger.StatusCompleted:
			completed++
		case ledger.StatusFailed:
			failed++
		case ledger.StatusClaimed:
			claimed++
			for _, f := range task.FilesOwned {
				fileSet[f] = true
			}
		case ledger.StatusPending:
			pending++
		}
	}

	for f := range fileSet {
		openFiles = append(openFiles, f)
	}

	summary = fmt.Sprintf("%d/%d tasks done (%d completed, %d failed, %d in flight, %d pending)",
		completed+failed, len(tasks), completed, failed, claimed, pending)

	var steps []string
	if pending > 0 {
		steps = append(steps, fmt.Sprintf("resume %d pending tasks", pending))
	}
	if claimed > 0 {
		steps = append(steps, fmt.Sprintf("await %d in-flight tasks", claimed))
	}
	if len(steps) == 0 {
		steps = append(steps, "session complete")
	}
	nextSteps = strings.Join(steps, "; ")

	return summary, openFiles, nextSteps, nil
}
