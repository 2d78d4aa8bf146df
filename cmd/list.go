package cmd

import (
	"fmt"
	"sort"

	"brokerCtl/internal/model"
	"brokerCtl/internal/storage"

	"github.com/spf13/cobra"
)

func ListCmd(store *storage.Store) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded tasks by state",
		RunE: func(cmd *cobra.Command, args []string) error {
			state, _ := cmd.Flags().GetString("state")
			if state == "" {
				return fmt.Errorf("the --state flag is required")
			}

			outcomes, err := store.ListByState(state)
			if err != nil {
				return fmt.Errorf("failed to list tasks: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(outcomes) == 0 {
				fmt.Fprintf(out, "No tasks found in state: %s\n", state)
				return nil
			}
			fmt.Fprintf(out, "--- Tasks in '%s' state ---\n", state)
			printOutcomes(out, outcomes)
			return nil
		},
	}
	cmd.Flags().String("state", "", "Filter tasks by state (pending, completed, failed, canceled, timeout, aborted, interrupted)")
	cmd.MarkFlagRequired("state")
	return cmd
}

func StatusCmd(store *storage.Store) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show a summary of recorded task states",
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := store.GetStats()
			if err != nil {
				return fmt.Errorf("failed to get stats: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "--- Task History ---")
			if len(stats) == 0 {
				fmt.Fprintln(out, "No tasks recorded.")
				return nil
			}

			states := make([]string, 0, len(stats))
			for state := range stats {
				states = append(states, state)
			}
			sort.Strings(states)
			total := 0
			for _, state := range states {
				fmt.Fprintf(out, "%s: \t%d\n", state, stats[state])
				total += stats[state]
			}
			fmt.Fprintf(out, "total: \t%d (dead: %d)\n", total, stats[model.StateFailed]+stats[model.StateTimeout]+stats[model.StateAborted])
			return nil
		},
	}
	return cmd
}
