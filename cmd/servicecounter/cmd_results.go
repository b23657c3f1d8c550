package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spboyer/servicecounter/internal/results"
)

func newResultsCommand() *cobra.Command {
	var (
		jobType string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "results [result.json]",
		Short: "Show scored sessions",
		Long: `Show the sessions recorded in the result store, newest first.

The store path defaults to the one in .servicecounter.yaml (result.json).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadProjectConfig()
			if err != nil {
				return err
			}
			path := cfg.Resolve(cfg.Paths.Results)
			if len(args) == 1 {
				path = args[0]
			}

			doc, err := results.NewFileStore(path).Load()
			if err != nil {
				return err
			}

			entries := results.Filter(doc.Result, jobType)
			if limit > 0 && len(entries) > limit {
				entries = entries[:limit]
			}

			out := cmd.OutOrStdout()
			results.RenderTable(out, entries)
			if scored, mean := results.Summary(entries); scored > 0 {
				fmt.Fprintf(out, "\n%d scored session(s), mean total score %.2f\n", scored, mean) //nolint:errcheck
				if scored > 1 {
					ci := results.Interval(entries, 0.95, nil)
					fmt.Fprintf(out, "95%% interval: %.2f to %.2f\n", ci.Lower, ci.Upper) //nolint:errcheck
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&jobType, "job-type", "", "Only show sessions for this job type")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Show at most this many sessions")

	return cmd
}
