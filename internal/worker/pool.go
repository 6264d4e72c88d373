// Package worker provides the default worker pool: subprocess-backed agent
// processes grouped by role, with idle and hung process cleanup. The
// runner consumes it through a narrow interface and is agnostic to this
// implementation.
package worker

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// Options configures pool capacity and cleanup thresholds.
type Options struct {
	MaxPerRole  int           // Max live processes per role (default 4)
	IdleTimeout time.Duration // Remove idle processes after this (default 10m)
	HungTimeout time.Duration // Kill busy processes running longer (default 15m)
}

// Pool manages CLI worker processes keyed by role.
type Pool struct {
	mu       sync.Mutex
	commands map[string]Command // role -> CLI invocation
	procs    map[string][]*CLIProcess
	opts     Options
}

// NewPool creates a pool for the given role commands.
func NewPool(commands map[string]Command, opts Options) *Pool {
	if opts.MaxPerRole <= 0 {
		opts.MaxPerRole = 4
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 10 * time.Minute
	}
	if opts.HungTimeout <= 0 {
		opts.HungTimeout = 15 * time.Minute
	}
	return &Pool{
		commands: commands,
		procs:    make(map[string][]*CLIProcess),
		opts:     opts,
	}
}

// Get returns a process for the given role. When the pool is saturated the
// returned handle reports Ready() == false; the caller should release it
// and defer the work rather than block.
func (p *Pool) Get(source, channelID, roleID string) (*CLIProcess, error) {
	command, ok := p.commands[roleID]
	if !ok {
		return nil, fmt.Errorf("no worker command configured for role %q", roleID)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, proc := range p.procs[roleID] {
		proc.mu.Lock()
		if !proc.busy {
			proc.busy = true
			proc.mu.Unlock()
			return proc, nil
		}
		proc.mu.Unlock()
	}

	if len(p.procs[roleID]) < p.opts.MaxPerRole {
		proc := newCLIProcess(roleID, source, channelID, command)
		proc.busy = true
		p.procs[roleID] = append(p.procs[roleID], proc)
		return proc, nil
	}

	// Saturated: hand out an untracked not-ready handle (busy guard).
	proc := newCLIProcess(roleID, source, channelID, command)
	proc.notReady = true
	return proc, nil
}

// Release returns a process to the pool. Not-ready handles from a
// saturated Get are simply discarded.
func (p *Pool) Release(roleID string, proc *CLIProcess) {
	if proc == nil {
		return
	}

	proc.mu.Lock()
	defer proc.mu.Unlock()
	if proc.notReady {
		return
	}
	proc.busy = false
	proc.lastUsed = time.Now()
}

// CleanupIdle removes processes that have been idle longer than the idle
// timeout. Returns the number removed.
func (p *Pool) CleanupIdle() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	cutoff := time.Now().Add(-p.opts.IdleTimeout)
	removed := 0

	for role, procs := range p.procs {
		kept := procs[:0]
		for _, proc := range procs {
			proc.mu.Lock()
			idle := !proc.busy && proc.lastUsed.Before(cutoff)
			proc.mu.Unlock()
			if idle {
				removed++
				continue
			}
			kept = append(kept, proc)
		}
		p.procs[role] = kept
	}

	return removed
}

// CleanupHung kills and removes processes whose current subprocess has been
// running longer than the hung timeout. Returns the number killed.
func (p *Pool) CleanupHung() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	cutoff := time.Now().Add(-p.opts.HungTimeout)
	removed := 0

	for role, procs := range p.procs {
		kept := procs[:0]
		for _, proc := range procs {
			proc.mu.Lock()
			hung := proc.busy && proc.cmd != nil && proc.startedAt.Before(cutoff)
			proc.mu.Unlock()
			if hung {
				if proc.kill() {
					log.Printf("WARNING: killed hung worker process %s (role %s)", proc.ID(), role)
				}
				removed++
				continue
			}
			kept = append(kept, proc)
		}
		p.procs[role] = kept
	}

	return removed
}

// Count returns the number of live processes for a role. Useful for tests
// and monitoring.
func (p *Pool) Count(roleID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.procs[roleID])
}
