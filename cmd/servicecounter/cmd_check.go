package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spboyer/servicecounter/internal/validation"
)

func newCheckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [job.yaml] [tasks.yaml]",
		Short: "Validate the job description and task catalog",
		Long: `Validate the job description and task catalog before opening the counter.

Both documents are checked against their schemas, then against the rules the
session relies on: unique indicator names, known collaborators, positive task
ids and existing reference documents. Paths default to .servicecounter.yaml.`,
		Args: cobra.MaximumNArgs(2),
		RunE: checkCommandE,
	}
	return cmd
}

//nolint:errcheck
func checkCommandE(cmd *cobra.Command, args []string) error {
	cfg, err := loadProjectConfig()
	if err != nil {
		return err
	}
	jobPath := cfg.Resolve(cfg.Paths.Job)
	tasksPath := cfg.Resolve(cfg.Paths.Tasks)
	if len(args) > 0 {
		jobPath = args[0]
	}
	if len(args) > 1 {
		tasksPath = args[1]
	}

	report, err := validation.CheckDocuments(jobPath, tasksPath)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printSection := func(path string, errs []string) {
		if len(errs) == 0 {
			fmt.Fprintf(out, "✅ %s\n", path)
			return
		}
		fmt.Fprintf(out, "❌ %s\n", path)
		for _, e := range errs {
			fmt.Fprintf(out, "   - %s\n", e)
		}
	}
	printSection(jobPath, report.JobErrors)
	printSection(tasksPath, report.TaskErrors)

	if !report.OK() {
		return fmt.Errorf("validation failed with %d problem(s)", len(report.JobErrors)+len(report.TaskErrors))
	}
	fmt.Fprintln(out, "\nReady to open the counter.")
	return nil
}
