// Package notify contains the lifecycle event consumers: a reporter that
// renders human-readable notifications and a learner that persists
// outcomes for anti-pattern detection. Both consume read-only event
// copies and never block or error back into the emitter.
package notify

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/aristath/swarm/internal/events"
)

// Reporter renders lifecycle events as colored one-line notifications.
type Reporter struct {
	bus *events.Bus
	out io.Writer

	mu   sync.Mutex
	sub  <-chan events.Event
	done chan struct{}
}

// NewReporter creates a Reporter writing to out (os.Stdout when nil).
func NewReporter(bus *events.Bus, out io.Writer) *Reporter {
	if out == nil {
		out = os.Stdout
	}
	return &Reporter{bus: bus, out: out}
}

// Start subscribes to all topics and begins rendering.
func (r *Reporter) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sub != nil {
		return
	}

	r.sub = r.bus.SubscribeAll(0)
	r.done = make(chan struct{})

	go func(sub <-chan events.Event, done chan struct{}) {
		defer close(done)
		for ev := range sub {
			fmt.Fprintln(r.out, render(ev))
		}
	}(r.sub, r.done)
}

// Stop detaches from the bus and waits for the render loop to drain.
func (r *Reporter) Stop() {
	r.mu.Lock()
	sub, done := r.sub, r.done
	r.sub, r.done = nil, nil
	r.mu.Unlock()

	if sub == nil {
		return
	}
	r.bus.Unsubscribe(sub)
	<-done
}

var (
	okColor   = color.New(color.FgGreen)
	failColor = color.New(color.FgRed)
	warnColor = color.New(color.FgYellow)
	infoColor = color.New(color.FgCyan)
)

func render(ev events.Event) string {
	switch e := ev.(type) {
	case events.TaskCompletedEvent:
		return okColor.Sprintf("✓ task %s completed in %s", e.ID, e.Duration.Round(1e6))
	case events.TaskFailedEvent:
		return failColor.Sprintf("✗ task %s failed: %s", e.ID, e.Err)
	case events.TaskRetriedEvent:
		return warnColor.Sprintf("↻ task %s retry %d/%d: %s", e.ID, e.Attempt, e.MaxRetries, e.Err)
	case events.TaskDeferredEvent:
		return warnColor.Sprintf("… task %s deferred, no %s capacity", e.ID, e.Role)
	case events.SessionCompleteEvent:
		return infoColor.Sprintf("■ session %s complete (%d ok, %d failed)", e.SessionID, e.Completed, e.Failed)
	case events.FileConflictEvent:
		return warnColor.Sprintf("! task %s file conflict on %s with %s",
			e.ID, strings.Join(e.Files, ", "), strings.Join(e.ConflictingTasks, ", "))
	}
	return fmt.Sprintf("event %s", ev.EventType())
}
