package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aristath/swarm/internal/events"
	"github.com/aristath/swarm/internal/notify"
	"github.com/aristath/swarm/internal/runner"
)

// RunCmd starts the continuous runner for one session and blocks until
// the session completes or a shutdown signal arrives.
func RunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <session-id>",
		Short: "Run a session's tasks until the session completes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID := args[0]

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			bus := events.NewBus()
			defer bus.Close()

			pool := buildPool(cfg)
			detector := notify.NewDetector(store, 0)

			reporter := notify.NewReporter(bus, nil)
			reporter.Start()
			defer reporter.Stop()

			learner := notify.NewLearner(bus, store, cfg.Runner.DefaultRole)
			learner.Start()
			defer learner.Stop()

			// The session-complete subscription must exist before the first
			// poll cycle, or a vacuously complete session's event is lost.
			done := bus.Subscribe(events.TopicSession, 1)

			r := runner.New(runnerConfig(cfg), store, poolAdapter{pool}, bus, nil, detector, store)
			r.StartSession(ctx, sessionID)
			defer r.StopAll()

			select {
			case <-ctx.Done():
				fmt.Println("shutdown signal received")
			case ev := <-done:
				if sc, ok := ev.(events.SessionCompleteEvent); ok {
					fmt.Printf("session %s finished: %d completed, %d failed\n",
						sc.SessionID, sc.Completed, sc.Failed)
				}
			}
			return nil
		},
	}
}
