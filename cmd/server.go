package cmd

import (
	"fmt"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"lesson-worker/config"
	server2 "lesson-worker/server"
)

func server(config *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "start http server",
		Run: func(cmd *cobra.Command, args []string) {
			server2.RunHttp(config)
		},
	}
}

func worker(config *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "consume lesson pipeline jobs",
		Run: func(cmd *cobra.Command, args []string) {
			server2.RunWorker(config)
		},
	}
}

func watchdog(config *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "watchdog",
		Short: "reap stuck sub-tasks and collect deleted media on an interval",
		Run: func(cmd *cobra.Command, args []string) {
			server2.RunWatchdog(config)
		},
	}
}

func sweep(config *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "run one watchdog pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := server2.Sweep(server2.SetupLogger(config), config)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if result.Skipped {
				fmt.Fprintln(out, "another replica holds the sweep lock, nothing done")
				return nil
			}
			fmt.Fprintf(out, "reaped %s stuck %s, collected %s deleted %s (%d failed)\n",
				humanize.Comma(int64(result.Reaped)), plural(result.Reaped, "task"),
				humanize.Comma(int64(result.Collected)), plural(result.Collected, "lesson"),
				result.GCFailures)
			return nil
		},
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
