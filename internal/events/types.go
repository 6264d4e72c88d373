package events

import (
	"time"
)

// Event is the base interface for all lifecycle events.
type Event interface {
	EventType() string
	Session() string
}

// Topic constants
const (
	TopicTask    = "task"
	TopicSession = "session"
)

// Event type constants
const (
	EventTypeTaskCompleted   = "task.completed"
	EventTypeTaskFailed      = "task.failed"
	EventTypeTaskRetried     = "task.retried"
	EventTypeTaskDeferred    = "task.deferred"
	EventTypeSessionComplete = "session.complete"
	EventTypeFileConflict    = "task.file-conflict"
)

// TaskCompletedEvent is published when a task's worker reports success.
type TaskCompletedEvent struct {
	SessionID string
	ID        string
	Result    string
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskCompletedEvent) EventType() string { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) Session() string   { return e.SessionID }

// TaskFailedEvent is published when a task exhausts its retries or its
// dependency chain makes it unrunnable.
type TaskFailedEvent struct {
	SessionID string
	ID        string
	Err       string
	Timestamp time.Time
}

func (e TaskFailedEvent) EventType() string { return EventTypeTaskFailed }
func (e TaskFailedEvent) Session() string   { return e.SessionID }

// TaskRetriedEvent is published when a failed execution is returned to
// pending for another attempt.
type TaskRetriedEvent struct {
	SessionID  string
	ID         string
	Attempt    int
	MaxRetries int
	Err        string
	Timestamp  time.Time
}

func (e TaskRetriedEvent) EventType() string { return EventTypeTaskRetried }
func (e TaskRetriedEvent) Session() string   { return e.SessionID }

// TaskDeferredEvent is published when a claimed task is returned to pending
// because no worker capacity was available.
type TaskDeferredEvent struct {
	SessionID string
	ID        string
	Role      string
	Timestamp time.Time
}

func (e TaskDeferredEvent) EventType() string { return EventTypeTaskDeferred }
func (e TaskDeferredEvent) Session() string   { return e.SessionID }

// SessionCompleteEvent is published once every task in a session is terminal.
type SessionCompleteEvent struct {
	SessionID string
	Completed int
	Failed    int
	Timestamp time.Time
}

func (e SessionCompleteEvent) EventType() string { return EventTypeSessionComplete }
func (e SessionCompleteEvent) Session() string   { return e.SessionID }

// FileConflictEvent is advisory: two tasks in the same session declare
// overlapping files. It never blocks claiming.
type FileConflictEvent struct {
	SessionID        string
	ID               string
	Files            []string
	ConflictingTasks []string
	Timestamp        time.Time
}

func (e FileConflictEvent) EventType() string { return EventTypeFileConflict }
func (e FileConflictEvent) Session() string   { return e.SessionID }
