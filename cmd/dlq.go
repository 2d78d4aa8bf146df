package cmd

import (
	"fmt"
	"log"

	"brokerCtl/internal/config"
	"brokerCtl/internal/model"
	"brokerCtl/internal/storage"

	"github.com/spf13/cobra"
)

func DlqCmd(store *storage.Store, cfg *config.Config) *cobra.Command {
	dlqCmd := &cobra.Command{
		Use:   "dlq",
		Short: "Manage failed and timed-out tasks",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all tasks in the DLQ",
		RunE: func(cmd *cobra.Command, args []string) error {
			outcomes, err := store.ListDead()
			if err != nil {
				return fmt.Errorf("failed to list DLQ tasks: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(outcomes) == 0 {
				fmt.Fprintln(out, "Dead Letter Queue is empty.")
				return nil
			}
			fmt.Fprintln(out, "--- Tasks in DLQ ---")
			printOutcomes(out, outcomes)
			return nil
		},
	}

	retryCmd := &cobra.Command{
		Use:   "retry [task-id]",
		Short: "Run a task from the DLQ again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prev, err := store.RetryDeadTask(args[0])
			if err != nil {
				return err
			}
			log.Printf("Task %s moved from DLQ to 'pending' state.", prev.ID)

			outcomes, err := runTasks(cmd.Context(), cmd.OutOrStdout(), store, cfg, []model.TaskDescriptor{prev.Descriptor})
			if len(outcomes) == 0 || outcomes[0].State == model.StateRejected {
				// The rerun never started, so the task stays in the DLQ.
				if restoreErr := store.RecordOutcome(*prev); restoreErr != nil {
					log.Printf("Task %s: restoring DLQ state: %v", prev.ID, restoreErr)
				}
			}
			return err
		},
	}

	dlqCmd.AddCommand(listCmd)
	dlqCmd.AddCommand(retryCmd)
	return dlqCmd
}
