package ledger

import (
	"time"
)

// Status represents the scheduling state of a task.
// Transitions are guarded: every change is a conditional update on the
// current status, so two racing callers can never both win.
type Status int

const (
	StatusPending   Status = iota // Waiting to be claimed
	StatusClaimed                 // Exclusively held by a worker (leased)
	StatusCompleted               // Finished successfully
	StatusFailed                  // Finished with an error
)

// String returns the lower-case name used in logs and progress output.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusClaimed:
		return "claimed"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether the status is a final outcome.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Task is the unit of work tracked by the ledger.
type Task struct {
	ID          string
	SessionID   string
	Description string     // Free-text instruction for the worker
	Category    string     // Worker role; empty means the configured default
	Priority    int        // Higher runs first among ready tasks of a wave
	Wave        int        // Waves execute in ascending order
	Status      Status
	ClaimedBy   string     // Worker id holding the lease
	ClaimedAt   *time.Time // Lease start; nil unless claimed
	CompletedAt *time.Time // Set on terminal completion
	Result      string     // Success payload or error text
	FilesOwned  []string   // Advisory conflict detection only, never a lock
	DependsOn   []string   // Task ids that must complete first
	RetryCount  int        // Times returned to pending after a failed run
}

// Spec describes a task to be created. ID is optional; a UUID is
// generated when empty.
type Spec struct {
	ID          string
	Description string
	Category    string
	Priority    int
	Wave        int
	FilesOwned  []string
	DependsOn   []string
}
