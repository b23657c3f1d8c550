package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/spboyer/servicecounter/internal/wizard"
)

func newInitCommand() *cobra.Command {
	var (
		noPrompt bool
		force    bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold a job description and task catalog",
		Long: `Create job.yaml and tasks.yaml (or the paths in .servicecounter.yaml).

On a terminal an interactive form asks for the workplace, the review indicators
and a first task. With --no-prompt a sample City Hall counter is written.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadProjectConfig()
			if err != nil {
				return err
			}
			jobPath := cfg.Resolve(cfg.Paths.Job)
			tasksPath := cfg.Resolve(cfg.Paths.Tasks)

			scaffold := wizard.Defaults()
			if !noPrompt {
				scaffold, err = wizard.RunJobWizard(cmd.InOrStdin(), cmd.OutOrStdout(), scaffold)
				if err != nil {
					return err
				}
			}

			if err := wizard.Write(scaffold, jobPath, tasksPath, force); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Created %s\n", jobPath)   //nolint:errcheck
			fmt.Fprintf(out, "Created %s\n", tasksPath) //nolint:errcheck
			for _, task := range scaffold.Tasks {
				if task.Reference == "" {
					continue
				}
				if _, err := os.Stat(task.Reference); err != nil {
					fmt.Fprintf(out, "Note: task %d expects a reference document at %s\n", task.ID, task.Reference) //nolint:errcheck
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noPrompt, "no-prompt", false, "Write the sample scaffold without asking")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing files")

	return cmd
}
