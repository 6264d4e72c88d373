package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aristath/swarm/internal/ledger"
	"github.com/aristath/swarm/internal/session"
)

// taskFile is the JSON shape accepted by `swarm add`.
type taskFile struct {
	Tasks []taskEntry `json:"tasks"`
}

type taskEntry struct {
	ID          string   `json:"id,omitempty"`
	Description string   `json:"description"`
	Category    string   `json:"category,omitempty"`
	Priority    int      `json:"priority,omitempty"`
	Wave        int      `json:"wave,omitempty"`
	Files       []string `json:"files,omitempty"`
	DependsOn   []string `json:"depends_on,omitempty"`
}

// AddCmd registers a batch of tasks with a session.
func AddCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "add [session-id]",
		Short: "Register a task batch (creates a session when no id is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading task file: %w", err)
			}

			var tf taskFile
			if err := json.Unmarshal(data, &tf); err != nil {
				return fmt.Errorf("parsing task file: %w", err)
			}
			if len(tf.Tasks) == 0 {
				return fmt.Errorf("task file %s contains no tasks", file)
			}

			_, store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			tracker := session.NewTracker(store)

			sessionID := ""
			if len(args) == 1 {
				sessionID = args[0]
			} else {
				sessionID = tracker.CreateSession()
			}

			specs := make([]ledger.Spec, len(tf.Tasks))
			for i, t := range tf.Tasks {
				specs[i] = ledger.Spec{
					ID:          t.ID,
					Description: t.Description,
					Category:    t.Category,
					Priority:    t.Priority,
					Wave:        t.Wave,
					FilesOwned:  t.Files,
					DependsOn:   t.DependsOn,
				}
			}

			ids, err := tracker.AddTasks(ctx, sessionID, specs)
			if err != nil {
				return err
			}

			fmt.Printf("session %s\n", sessionID)
			for _, id := range ids {
				fmt.Printf("  task %s\n", id)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "tasks.json", "JSON file describing the task batch")
	return cmd
}
