package main

import (
	"log/slog"

	"github.com/spf13/cobra"
)

var version = "dev"

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "servicecounter",
		Short: "servicecounter - a staffed service counter run by cooperating agents",
		Long: `servicecounter simulates a service counter. A customer talks to the counter,
which can ask a broker to identify the procedure the customer needs and a reviewer
to check submitted documents. An observer decides when the conversation is over,
and the reviewer scores the whole session at the end.`,
		Version:      version,
		SilenceUsage: true,
	}

	debugLogging := cmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if *debugLogging {
			slog.SetLogLoggerLevel(slog.LevelDebug)
		}
	}

	cmd.AddCommand(newRunCommand())
	cmd.AddCommand(newCheckCommand())
	cmd.AddCommand(newResultsCommand())
	cmd.AddCommand(newInitCommand())
	cmd.AddCommand(newSessionCommand())

	return cmd
}

func execute() error {
	rootCmd := newRootCommand()
	return rootCmd.Execute()
}
