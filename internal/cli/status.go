package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/aristath/swarm/internal/session"
)

// StatusCmd prints a session's progress.
func StatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <session-id>",
		Short: "Show session progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			_, store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			tracker := session.NewTracker(store)
			progress, err := tracker.GetProgress(ctx, args[0])
			if err != nil {
				return err
			}

			fmt.Printf("session %s\n", args[0])
			fmt.Printf("  total:     %d\n", progress.Total)
			color.Green("  completed: %d", progress.Completed)
			color.Red("  failed:    %d", progress.Failed)
			color.Yellow("  claimed:   %d", progress.Claimed)
			fmt.Printf("  pending:   %d\n", progress.Pending)
			fmt.Printf("  wave:      %d of %d\n", progress.CurrentWave, progress.TotalWaves)

			complete, err := tracker.IsSessionComplete(ctx, args[0])
			if err != nil {
				return err
			}
			if complete {
				color.Green("  session is complete")
			}
			return nil
		},
	}
}
