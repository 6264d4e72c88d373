// Package runner implements the continuous task runner: a per-session
// polling loop plus an immediate event-driven execution path, layered on
// the ledger's atomic claim semantics. Collaborators (worker pool,
// context enrichment, anti-pattern detection, checkpoint persistence) are
// constructor-injected interfaces.
package runner

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/aristath/swarm/internal/events"
	"github.com/aristath/swarm/internal/ledger"
	"github.com/aristath/swarm/internal/scheduler"
)

// Config holds runner policy knobs. Zero values select the defaults.
type Config struct {
	PollInterval       time.Duration // default 30s
	MaxRetries         int           // default 3
	LeaseMaxAge        time.Duration // default 10m
	CheckpointDebounce time.Duration // default 5s
	DefaultRole        string        // role used when a task has no category
	Source             string        // pool keying for poll-driven work
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 30 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.LeaseMaxAge <= 0 {
		c.LeaseMaxAge = 10 * time.Minute
	}
	if c.CheckpointDebounce <= 0 {
		c.CheckpointDebounce = 5 * time.Second
	}
	if c.DefaultRole == "" {
		c.DefaultRole = "worker"
	}
	if c.Source == "" {
		c.Source = "runner"
	}
	return c
}

type sessionLoop struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Runner coordinates dynamically discovered pending work for long-running
// sessions. Enricher, detector, and checkpoints may be nil; those
// features are then disabled.
type Runner struct {
	cfg      Config
	ledger   Ledger
	pool     Pool
	enricher ContextEnricher
	detector AntiPatternDetector
	ckpts    CheckpointStore
	bus      *events.Bus
	breakers *breakerRegistry

	mu           sync.Mutex
	sessions     map[string]*sessionLoop
	polling      map[string]bool // per-session in-flight poll guard
	ckptTimers   map[string]*time.Timer
	ckptFailures map[string]int

	dispatches sync.WaitGroup
}

// New creates a Runner. Only ledger, pool, and bus are required.
func New(cfg Config, l Ledger, pool Pool, bus *events.Bus, enricher ContextEnricher, detector AntiPatternDetector, ckpts CheckpointStore) *Runner {
	return &Runner{
		cfg:          cfg.withDefaults(),
		ledger:       l,
		pool:         pool,
		enricher:     enricher,
		detector:     detector,
		ckpts:        ckpts,
		bus:          bus,
		breakers:     newBreakerRegistry(),
		sessions:     make(map[string]*sessionLoop),
		polling:      make(map[string]bool),
		ckptTimers:   make(map[string]*time.Timer),
		ckptFailures: make(map[string]int),
	}
}

// StartSession begins a fixed-interval polling loop for the session and
// immediately performs one poll cycle. Idempotent: a second call on a
// running session logs a warning and does nothing.
func (r *Runner) StartSession(ctx context.Context, sessionID string) {
	r.mu.Lock()
	if _, running := r.sessions[sessionID]; running {
		r.mu.Unlock()
		log.Printf("WARNING: session %s is already running", sessionID)
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	loop := &sessionLoop{cancel: cancel, done: make(chan struct{})}
	r.sessions[sessionID] = loop
	r.mu.Unlock()

	go func() {
		defer close(loop.done)

		r.pollCycle(loopCtx, sessionID)

		ticker := time.NewTicker(r.cfg.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				r.pollCycle(loopCtx, sessionID)
			}
		}
	}()
}

// StopSession cancels the session's polling loop. Idempotent. In-flight
// task executions already dispatched are not cancelled; they will still
// record their outcomes in the ledger.
func (r *Runner) StopSession(sessionID string) {
	r.mu.Lock()
	loop, ok := r.sessions[sessionID]
	if ok {
		delete(r.sessions, sessionID)
	}
	r.mu.Unlock()

	if ok {
		loop.cancel()
	}
}

// StopAll stops every active session's polling loop, cancels pending
// checkpoint timers, and waits for dispatched executions to finish.
func (r *Runner) StopAll() {
	r.mu.Lock()
	loops := make([]*sessionLoop, 0, len(r.sessions))
	for id, loop := range r.sessions {
		loops = append(loops, loop)
		delete(r.sessions, id)
	}
	for id, timer := range r.ckptTimers {
		timer.Stop()
		delete(r.ckptTimers, id)
	}
	r.mu.Unlock()

	for _, loop := range loops {
		loop.cancel()
		<-loop.done
	}

	r.dispatches.Wait()
}

// pollCycle performs one scheduling pass for a session. Overlapping timer
// fires are serialized per session by the polling guard; distinct sessions
// poll concurrently. Never returns an error: the loop runs unattended, so
// every failure becomes a log line, a ledger transition, or an event.
func (r *Runner) pollCycle(ctx context.Context, sessionID string) {
	r.mu.Lock()
	if r.polling[sessionID] {
		r.mu.Unlock()
		return
	}
	r.polling[sessionID] = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.polling, sessionID)
		r.mu.Unlock()
	}()

	// Stale leases anywhere in the ledger are reclaimed opportunistically,
	// not just this session's.
	if n, err := r.ledger.ExpireStaleLeases(ctx, r.cfg.LeaseMaxAge); err != nil {
		log.Printf("ERROR: failed to expire stale leases: %v", err)
	} else if n > 0 {
		log.Printf("Reclaimed %d stale task leases", n)
	}

	if n := r.pool.CleanupIdle(); n > 0 {
		log.Printf("Cleaned up %d idle worker processes", n)
	}
	if n := r.pool.CleanupHung(); n > 0 {
		log.Printf("Cleaned up %d hung worker processes", n)
	}

	all, err := r.ledger.ListBySession(ctx, sessionID)
	if err != nil {
		log.Printf("ERROR: failed to list session %s tasks: %v", sessionID, err)
		return
	}

	if sessionComplete(all) {
		r.finishSession(ctx, sessionID, all)
		return
	}

	graph := scheduler.NewGraph(all)

	pending, err := r.ledger.ListPending(ctx, sessionID)
	if err != nil {
		log.Printf("ERROR: failed to list pending tasks for session %s: %v", sessionID, err)
		return
	}

	for _, task := range pending {
		if ctx.Err() != nil {
			return
		}
		r.considerTask(ctx, graph, task)
	}
}

// considerTask runs the dependency, conflict, and claim steps for one
// pending task, then dispatches it without awaiting completion.
func (r *Runner) considerTask(ctx context.Context, graph *scheduler.Graph, task *ledger.Task) {
	check := graph.Check(task.ID)
	switch check.State {
	case scheduler.Cyclic:
		// Cycles can never resolve; fail terminally rather than skipping
		// forever so the session can still complete.
		reason := fmt.Sprintf("dependency cycle through task %s", task.ID)
		log.Printf("WARNING: task %s has a dependency cycle, marking failed", task.ID)
		if ok, err := r.ledger.FailPending(ctx, task.ID, reason); err != nil {
			log.Printf("ERROR: failed to fail cyclic task %s: %v", task.ID, err)
		} else if ok {
			r.emitFailed(task, reason)
		}
		return

	case scheduler.FailedDependency:
		reason := fmt.Sprintf("dependency failed: %s", strings.Join(check.Details, ", "))
		if ok, err := r.ledger.FailPending(ctx, task.ID, reason); err != nil {
			log.Printf("ERROR: failed to propagate failure to task %s: %v", task.ID, err)
		} else if ok {
			r.emitFailed(task, reason)
		}
		return

	case scheduler.MissingDependency:
		log.Printf("WARNING: task %s depends on unknown tasks: %s", task.ID, strings.Join(check.Details, ", "))
		return

	case scheduler.Blocked:
		return
	}

	// Advisory only: overlapping owned files produce telemetry, not a lock.
	if claimed, err := r.ledger.ListClaimed(ctx, task.SessionID); err != nil {
		log.Printf("ERROR: failed to list claimed tasks for conflict check: %v", err)
	} else if files, ids := scheduler.FindConflicts(task, claimed); len(files) > 0 {
		r.bus.Publish(events.TopicTask, events.FileConflictEvent{
			SessionID:        task.SessionID,
			ID:               task.ID,
			Files:            files,
			ConflictingTasks: ids,
			Timestamp:        time.Now(),
		})
	}

	role := r.resolveRole(task)
	claimed, err := r.ledger.Claim(ctx, task.ID, "worker:"+role)
	if err != nil {
		log.Printf("ERROR: failed to claim task %s: %v", task.ID, err)
		return
	}
	if !claimed {
		// Raced by another poller or the immediate path; not an error.
		return
	}

	// Fire-and-forget: the poll loop does not await task completion. The
	// dispatch keeps running after StopSession; the ledger is the
	// synchronization point for its eventual outcome.
	r.dispatches.Add(1)
	go func() {
		defer r.dispatches.Done()
		r.runTask(context.Background(), task, r.cfg.Source, "")
	}()
}

// finishSession stops the polling loop and emits session-complete with an
// immediate checkpoint.
func (r *Runner) finishSession(ctx context.Context, sessionID string, tasks []*ledger.Task) {
	completed, failed := 0, 0
	for _, task := range tasks {
		switch task.Status {
		case ledger.StatusCompleted:
			completed++
		case ledger.StatusFailed:
			failed++
		}
	}

	r.StopSession(sessionID)

	r.bus.Publish(events.TopicSession, events.SessionCompleteEvent{
		SessionID: sessionID,
		Completed: completed,
		Failed:    failed,
		Timestamp: time.Now(),
	})

	r.saveCheckpointNow(ctx, sessionID)
}

func (r *Runner) resolveRole(task *ledger.Task) string {
	if task.Category != "" {
		return task.Category
	}
	log.Printf("WARNING: task %s has no category, using default role %q", task.ID, r.cfg.DefaultRole)
	return r.cfg.DefaultRole
}

func sessionComplete(tasks []*ledger.Task) bool {
	for _, task := range tasks {
		if !task.Status.Terminal() {
			return false
		}
	}
	return true
}

func (r *Runner) emitFailed(task *ledger.Task, reason string) {
	r.bus.Publish(events.TopicTask, events.TaskFailedEvent{
		SessionID: task.SessionID,
		ID:        task.ID,
		Err:       reason,
		Timestamp: time.Now(),
	})
	r.scheduleCheckpoint(task.SessionID)
}
