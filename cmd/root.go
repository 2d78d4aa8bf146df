package cmd

import (
	"brokerCtl/internal/config"
	"brokerCtl/internal/storage"

	"github.com/spf13/cobra"
)

func NewRootCmd(store *storage.Store, cfg *config.Config) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "brokerCtl",
		Short:         "Run shell commands with a concurrency cap, timeouts and retries",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(RunCmd(store, cfg))
	rootCmd.AddCommand(EnqueueCmd(store, cfg))
	rootCmd.AddCommand(ListCmd(store))
	rootCmd.AddCommand(StatusCmd(store))
	rootCmd.AddCommand(DlqCmd(store, cfg))
	rootCmd.AddCommand(ConfigCmd(cfg))
	return rootCmd
}

func Execute(store *storage.Store, cfg *config.Config) error {
	return NewRootCmd(store, cfg).Execute()
}
