// Package cli wires the coordination core into cobra commands.
package cli

import (
	"context"
	"time"

	"github.com/aristath/swarm/internal/config"
	"github.com/aristath/swarm/internal/ledger"
	"github.com/aristath/swarm/internal/runner"
	"github.com/aristath/swarm/internal/worker"
)

// openStore loads config and opens the ledger it points at.
func openStore(ctx context.Context) (*config.SwarmConfig, *ledger.Store, error) {
	cfg, err := config.LoadDefault()
	if err != nil {
		return nil, nil, err
	}

	store, err := ledger.Open(ctx, cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}

	return cfg, store, nil
}

// buildPool creates the worker pool from configured role commands.
func buildPool(cfg *config.SwarmConfig) *worker.Pool {
	commands := make(map[string]worker.Command, len(cfg.Workers))
	for role, wc := range cfg.Workers {
		commands[role] = worker.Command{Name: wc.Command, Args: wc.Args}
	}
	return worker.NewPool(commands, worker.Options{
		MaxPerRole: cfg.Runner.Concurrency,
	})
}

// runnerConfig converts the file config into runner policy.
func runnerConfig(cfg *config.SwarmConfig) runner.Config {
	return runner.Config{
		PollInterval:       time.Duration(cfg.Runner.PollIntervalSeconds) * time.Second,
		MaxRetries:         cfg.Runner.MaxRetries,
		LeaseMaxAge:        time.Duration(cfg.Runner.LeaseMaxAgeMinutes) * time.Minute,
		CheckpointDebounce: time.Duration(cfg.Runner.CheckpointDebounceSeconds) * time.Second,
		DefaultRole:        cfg.Runner.DefaultRole,
		Source:             "cli",
	}
}

// poolAdapter narrows *worker.Pool to the runner's Pool port.
type poolAdapter struct {
	pool *worker.Pool
}

func (p poolAdapter) Get(source, channelID, roleID string) (runner.Process, error) {
	proc, err := p.pool.Get(source, channelID, roleID)
	if err != nil {
		return nil, err
	}
	return proc, nil
}

func (p poolAdapter) Release(roleID string, proc runner.Process) {
	if cp, ok := proc.(*worker.CLIProcess); ok {
		p.pool.Release(roleID, cp)
	}
}

func (p poolAdapter) CleanupIdle() int { return p.pool.CleanupIdle() }
func (p poolAdapter) CleanupHung() int { return p.pool.CleanupHung() }
