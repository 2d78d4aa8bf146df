package cmd

import (
	"fmt"
	"strings"

	"brokerCtl/internal/config"
	"brokerCtl/internal/model"
	"brokerCtl/internal/storage"

	"github.com/spf13/cobra"
)

func RunCmd(store *storage.Store, cfg *config.Config) *cobra.Command {
	var (
		desc    model.TaskDescriptor
		timeout float64
		env     []string
	)

	runCmd := &cobra.Command{
		Use:   "run [flags] -- <command> [args...]",
		Short: "Run one command through the broker and wait for it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vars, err := parseEnv(env)
			if err != nil {
				return err
			}
			desc.Command = args
			desc.Env = vars
			desc.TimeoutSeconds = timeout
			desc = desc.Normalize()

			_, err = runTasks(cmd.Context(), cmd.OutOrStdout(), store, cfg, []model.TaskDescriptor{desc})
			return err
		},
	}

	runCmd.Flags().StringVar(&desc.ID, "id", "", "Task id (generated when empty)")
	runCmd.Flags().Float64Var(&timeout, "timeout", 0, "Timeout in seconds (0 uses the configured default)")
	runCmd.Flags().StringVar(&desc.WorkDir, "workdir", "", "Working directory")
	runCmd.Flags().StringArrayVar(&env, "env", nil, "Environment override KEY=VALUE (repeatable)")
	runCmd.Flags().StringVar(&desc.LogPath, "log", "", "Per-task log file")
	return runCmd
}

func parseEnv(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	vars := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --env value %q, expected KEY=VALUE", pair)
		}
		vars[k] = v
	}
	return vars, nil
}
