package runner

import (
	"context"
	"time"

	"github.com/aristath/swarm/internal/ledger"
)

// Ledger is the slice of the task ledger the runner depends on. The
// concrete implementation is ledger.Store; tests substitute their own.
type Ledger interface {
	Claim(ctx context.Context, taskID, workerID string) (bool, error)
	Complete(ctx context.Context, taskID, result string) (bool, error)
	Fail(ctx context.Context, taskID, result string) (bool, error)
	FailPending(ctx context.Context, taskID, result string) (bool, error)
	Retry(ctx context.Context, taskID string) (bool, error)
	Defer(ctx context.Context, taskID string) (bool, error)
	ExpireStaleLeases(ctx context.Context, maxAge time.Duration) (int, error)
	Get(ctx context.Context, taskID string) (*ledger.Task, error)
	ListBySession(ctx context.Context, sessionID string) ([]*ledger.Task, error)
	ListPending(ctx context.Context, sessionID string) ([]*ledger.Task, error)
	ListClaimed(ctx context.Context, sessionID string) ([]*ledger.Task, error)
}

// Process is a worker handle obtained from the pool.
type Process interface {
	ID() string
	Ready() bool
	SendMessage(ctx context.Context, text string) (string, error)
}

// Pool grants and reclaims worker processes. Get never blocks on capacity:
// a saturated pool returns a handle whose Ready() is false.
type Pool interface {
	Get(source, channelID, roleID string) (Process, error)
	Release(roleID string, proc Process)
	CleanupIdle() int
	CleanupHung() int
}

// Enrichment is contextual text to prepend to a task description.
type Enrichment struct {
	HasContext bool
	Prompt     string
	Decisions  []string
}

// ContextEnricher supplies decision-memory context for a task description.
// Best-effort: failures are logged and ignored.
type ContextEnricher interface {
	GetRelevantContext(ctx context.Context, description string) (Enrichment, error)
}

// Warning describes a recurring failure pattern for a worker role.
type Warning struct {
	AgentID        string
	Pattern        string
	FailureCount   int
	LastError      string
	Recommendation string
}

// AntiPatternDetector warns about failure patterns before execution.
// Best-effort: failures are logged and ignored.
type AntiPatternDetector interface {
	Detect(ctx context.Context, agentID, description string) ([]Warning, error)
	FormatWarnings(warnings []Warning) string
}

// CheckpointStore persists session checkpoints, fire-and-forget.
type CheckpointStore interface {
	SaveCheckpoint(ctx context.Context, sessionID, summary string, openFiles []string, nextSteps string) error
}
