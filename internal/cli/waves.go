package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/aristath/swarm/internal/ledger"
	"github.com/aristath/swarm/internal/scheduler"
)

// WavesCmd runs a session's pending tasks through the static wave
// executor: each wave in order, tasks within a wave in parallel.
func WavesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "waves <session-id>",
		Short: "Execute a session's pending tasks wave by wave",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			pending, err := store.ListPending(ctx, args[0])
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				fmt.Println("no pending tasks")
				return nil
			}

			waves := groupWaves(pending, cfg.Runner.DefaultRole)
			pool := buildPool(cfg)

			execute := func(ctx context.Context, task scheduler.WaveTask) (string, error) {
				role := task.Category
				if role == "" {
					role = cfg.Runner.DefaultRole
				}
				proc, err := pool.Get("cli", "", role)
				if err != nil {
					return "", err
				}
				defer pool.Release(role, proc)

				if !proc.Ready() {
					return "", fmt.Errorf("no worker capacity for role %q", role)
				}
				return proc.SendMessage(ctx, task.Description)
			}

			executor := scheduler.NewWaveExecutor(store, cfg.Runner.Concurrency)
			report, err := executor.Run(ctx, waves, execute)
			if err != nil {
				return err
			}

			fmt.Printf("waves: %d/%d  completed: %d  failed: %d  skipped: %d\n",
				report.CompletedWaves, report.TotalWaves, report.Completed, report.Failed, report.Skipped)
			for _, r := range report.Results {
				fmt.Printf("  [wave %d] %s: %s\n", r.Wave, r.TaskID, r.Outcome)
			}
			return nil
		},
	}
}

// groupWaves buckets tasks by wave number, ascending.
func groupWaves(tasks []*ledger.Task, defaultRole string) []scheduler.Wave {
	byWave := map[int][]scheduler.WaveTask{}
	for _, task := range tasks {
		role := task.Category
		if role == "" {
			role = defaultRole
		}
		byWave[task.Wave] = append(byWave[task.Wave], scheduler.WaveTask{
			ID:          task.ID,
			WorkerID:    "worker:" + role,
			Description: task.Description,
			Category:    task.Category,
			Files:       task.FilesOwned,
			DependsOn:   task.DependsOn,
		})
	}

	numbers := make([]int, 0, len(byWave))
	for n := range byWave {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	waves := make([]scheduler.Wave, 0, len(numbers))
	for _, n := range numbers {
		waves = append(waves, scheduler.Wave{Number: n, Tasks: byWave[n]})
	}
	return waves
}
