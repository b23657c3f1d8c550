package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/spboyer/servicecounter/internal/session"
)

func newSessionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "View session event logs",
		Long: `View session event logs.

Session logs are NDJSON files written by "servicecounter run --session-log".
They record the session start, each turn, delegations, issues, observer
verdicts and the final score.`,
	}

	cmd.AddCommand(newSessionListCommand())
	cmd.AddCommand(newSessionViewCommand())

	return cmd
}

func newSessionListCommand() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded session logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("dir") {
				if cfg, err := loadProjectConfig(); err == nil && cfg.Paths.SessionLogs != "" {
					dir = cfg.Resolve(cfg.Paths.SessionLogs)
				}
			}
			absDir, err := filepath.Abs(dir)
			if err != nil {
				return err
			}

			files, err := session.ListSessions(absDir)
			if err != nil {
				return fmt.Errorf("listing sessions: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(files) == 0 {
				fmt.Fprintln(out, "No session logs found.") //nolint:errcheck
				return nil
			}

			fmt.Fprintf(out, "%-40s %-8s %s\n", "File", "Events", "Modified") //nolint:errcheck
			fmt.Fprintln(out, "─────────────────────────────────────────────────────────────────") //nolint:errcheck
			for _, f := range files {
				fmt.Fprintf(out, "%-40s %-8d %s\n", f.Name, f.NumEvents, f.ModTime.Format("2006-01-02 15:04:05")) //nolint:errcheck
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", ".", "Directory to search for session logs")

	return cmd
}

func newSessionViewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "view <session-file>",
		Short: "View a session timeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := session.ReadEvents(args[0])
			if err != nil {
				return fmt.Errorf("reading session: %w", err)
			}

			session.RenderTimeline(cmd.OutOrStdout(), events)
			return nil
		},
	}

	return cmd
}
