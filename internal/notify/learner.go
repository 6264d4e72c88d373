package notify

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/aristath/swarm/internal/events"
	"github.com/aristath/swarm/internal/ledger"
	"github.com/aristath/swarm/internal/runner"
)

// roleFromTask recovers the worker role for an outcome; completed/failed
// events do not carry the role, so the learner looks the task up.
func roleFromTask(ctx context.Context, store *ledger.Store, taskID, fallback string) string {
	task, err := store.Get(ctx, taskID)
	if err != nil || task.Category == "" {
		return fallback
	}
	return task.Category
}

// Learner persists task outcomes so future sessions can be warned about
// recurring failures. Best-effort: storage errors are logged, never
// propagated.
type Learner struct {
	bus         *events.Bus
	store       *ledger.Store
	defaultRole string

	mu   sync.Mutex
	sub  <-chan events.Event
	done chan struct{}
}

// NewLearner creates a Learner recording into the given ledger.
func NewLearner(bus *events.Bus, store *ledger.Store, defaultRole string) *Learner {
	if defaultRole == "" {
		defaultRole = "worker"
	}
	return &Learner{bus: bus, store: store, defaultRole: defaultRole}
}

// Start subscribes to task events and begins recording outcomes.
func (l *Learner) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sub != nil {
		return
	}

	l.sub = l.bus.Subscribe(events.TopicTask, 0)
	l.done = make(chan struct{})

	go func(sub <-chan events.Event, done chan struct{}) {
		defer close(done)
		for ev := range sub {
			l.record(ev)
		}
	}(l.sub, l.done)
}

// Stop detaches from the bus and waits for the record loop to drain.
func (l *Learner) Stop() {
	l.mu.Lock()
	sub, done := l.sub, l.done
	l.sub, l.done = nil, nil
	l.mu.Unlock()

	if sub == nil {
		return
	}
	l.bus.Unsubscribe(sub)
	<-done
}

func (l *Learner) record(ev events.Event) {
	ctx := context.Background()

	switch e := ev.(type) {
	case events.TaskCompletedEvent:
		role := roleFromTask(ctx, l.store, e.ID, l.defaultRole)
		if err := l.store.RecordOutcome(ctx, e.SessionID, e.ID, role, true, ""); err != nil {
			log.Printf("WARNING: failed to record outcome for task %s: %v", e.ID, err)
		}
	case events.TaskFailedEvent:
		role := roleFromTask(ctx, l.store, e.ID, l.defaultRole)
		if err := l.store.RecordOutcome(ctx, e.SessionID, e.ID, role, false, e.Err); err != nil {
			log.Printf("WARNING: failed to record outcome for task %s: %v", e.ID, err)
		}
	}
}

// Detector is a ledger-backed anti-pattern detector: it warns when a role
// has accumulated repeated failures.
type Detector struct {
	store            *ledger.Store
	failureThreshold int
}

// NewDetector creates a Detector. threshold <= 0 defaults to 3.
func NewDetector(store *ledger.Store, threshold int) *Detector {
	if threshold <= 0 {
		threshold = 3
	}
	return &Detector{store: store, failureThreshold: threshold}
}

// Detect returns a warning when the role's recorded failures meet the
// threshold.
func (d *Detector) Detect(ctx context.Context, agentID, description string) ([]runner.Warning, error) {
	stats, err := d.store.StatsByRole(ctx, agentID)
	if err != nil {
		return nil, err
	}

	if stats.FailureCount < d.failureThreshold {
		return nil, nil
	}

	return []runner.Warning{{
		AgentID:        agentID,
		Pattern:        "repeated-failure",
		FailureCount:   stats.FailureCount,
		LastError:      stats.LastError,
		Recommendation: fmt.Sprintf("role %q has failed %d times; consider splitting the task or reviewing its instructions", agentID, stats.FailureCount),
	}}, nil
}

// FormatWarnings renders warnings as a block the runner appends to the
// task description.
func (d *Detector) FormatWarnings(warnings []runner.Warning) string {
	if len(warnings) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Known failure patterns for this role:\n")
	for _, w := range warnings {
		fmt.Fprintf(&b, "- [%s] %d prior failures (last: %s). %s\n",
			w.Pattern, w.FailureCount, w.LastError, w.Recommendation)
	}
	return strings.TrimRight(b.String(), "\n")
}
