package worker

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Command describes how to invoke the agent CLI serving one worker role.
type Command struct {
	Name string   // CLI binary (e.g., "claude")
	Args []string // Default args prepended to every invocation
}

// CLIProcess is a pooled worker backed by a subprocess-per-message agent
// CLI. A process handles one message at a time; Ready reports whether the
// handle granted by the pool is actually usable.
type CLIProcess struct {
	id      string
	role    string
	source  string
	channel string
	command Command

	mu        sync.Mutex
	busy      bool
	notReady  bool
	lastUsed  time.Time
	startedAt time.Time
	cmd       *exec.Cmd // set while a subprocess is running
}

func newCLIProcess(role, source, channel string, command Command) *CLIProcess {
	return &CLIProcess{
		id:       uuid.NewString(),
		role:     role,
		source:   source,
		channel:  channel,
		command:  command,
		lastUsed: time.Now(),
	}
}

// ID returns the process identifier, used as the ledger's claimedBy value.
func (p *CLIProcess) ID() string { return p.id }

// Role returns the worker role this process serves.
func (p *CLIProcess) Role() string { return p.role }

// Ready reports whether the process can accept a message. A handle handed
// out by a saturated pool reports false; callers should release it and
// defer the task.
func (p *CLIProcess) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.notReady
}

// SendMessage invokes the agent CLI with the given text and returns its
// stdout. The subprocess runs in its own process group so a hung agent can
// be killed cleanly.
func (p *CLIProcess) SendMessage(ctx context.Context, text string) (string, error) {
	p.mu.Lock()
	if p.notReady {
		p.mu.Unlock()
		return "", fmt.Errorf("process for role %q is not ready", p.role)
	}

	args := append(append([]string(nil), p.command.Args...), "-p", text)
	cmd := newCommand(ctx, p.command.Name, args...)
	p.cmd = cmd
	p.startedAt = time.Now()
	p.mu.Unlock()

	stdout, _, err := executeCommand(cmd)

	p.mu.Lock()
	p.cmd = nil
	p.lastUsed = time.Now()
	p.mu.Unlock()

	if err != nil {
		return "", fmt.Errorf("worker %q failed: %w", p.role, err)
	}

	return strings.TrimSpace(string(stdout)), nil
}

// kill terminates a running subprocess, if any. Returns true if a process
// was killed.
func (p *CLIProcess) kill() bool {
	p.mu.Lock()
	cmd := p.cmd
	p.mu.Unlock()

	if cmd == nil {
		return false
	}
	return killProcessGroup(cmd) == nil
}
