package cmd

import (
	"github.com/spf13/cobra"
	"lesson-worker/config"
)

func Root(config *config.Config) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "lesson-worker",
		Short:        "lesson media pipeline: API, worker and watchdog",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(
		server(config),
		worker(config),
		watchdog(config),
		sweep(config),
		journalCmd(config),
		progressCmd(config),
	)
	return rootCmd
}
