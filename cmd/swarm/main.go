package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aristath/swarm/internal/cli"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "swarm",
		Short: "swarm - coordinator for batches of interdependent agent tasks",
		Long: `swarm coordinates autonomous worker agents executing a shared batch of
interdependent tasks: exactly-once-in-flight claims, dependency ordering,
stale-lease recovery, and wave-sequenced parallel execution.`,
	}

	rootCmd.AddCommand(cli.AddCmd())
	rootCmd.AddCommand(cli.RunCmd())
	rootCmd.AddCommand(cli.StatusCmd())
	rootCmd.AddCommand(cli.WavesCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
