// Package hooks runs user-configured commands before and after a counter
// session.
package hooks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// Command is a single hook command.
type Command struct {
	Command          string `yaml:"command" json:"command"`
	WorkingDirectory string `yaml:"working_directory,omitempty" json:"working_directory,omitempty"`
	ExitCodes        []int  `yaml:"exit_codes,omitempty" json:"exit_codes,omitempty"`
	ErrorOnFail      bool   `yaml:"error_on_fail,omitempty" json:"error_on_fail,omitempty"`
}

// Config holds the session lifecycle hooks.
type Config struct {
	BeforeSession []Command `yaml:"before_session,omitempty" json:"before_session,omitempty"`
	AfterSession  []Command `yaml:"after_session,omitempty" json:"after_session,omitempty"`
}

// Environment variables handed to hook commands.
const (
	EnvSessionID  = "SERVICECOUNTER_SESSION_ID"
	EnvResults    = "SERVICECOUNTER_RESULTS"
	EnvTranscript = "SERVICECOUNTER_TRANSCRIPT"
	EnvTotalScore = "SERVICECOUNTER_TOTAL_SCORE"
)

// Runner executes hook commands at lifecycle points.
type Runner struct {
	// Output receives combined command output. Nil discards it.
	Output io.Writer
	// Env is appended to the current process environment.
	Env map[string]string
}

// Execute runs every hook for a lifecycle point in order. point names it
// ("before_session") in logs and errors.
func (r *Runner) Execute(ctx context.Context, point string, cmds []Command) error {
	for i, c := range cmds {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("hook %s: context canceled: %w", point, err)
		}
		if err := r.run(ctx, point, i, c); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) run(ctx context.Context, point string, index int, c Command) error {
	if strings.TrimSpace(c.Command) == "" {
		return fmt.Errorf("hook %s[%d]: empty command", point, index)
	}

	parts := strings.Fields(c.Command)
	//nolint:gosec // hook commands come from the project config
	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	cmd.Dir = c.WorkingDirectory
	cmd.Env = os.Environ()
	for k, v := range r.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	output, err := cmd.CombinedOutput()
	if r.Output != nil && len(output) > 0 {
		fmt.Fprintf(r.Output, "[hook:%s] %s", point, output) //nolint:errcheck
	}

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return r.fail(c, fmt.Errorf("hook %s[%d]: %w", point, index, err))
		}
		exitCode = exitErr.ExitCode()
	}

	if !acceptable(exitCode, c.ExitCodes) {
		return r.fail(c, fmt.Errorf("hook %s[%d]: command exited with code %d", point, index, exitCode))
	}
	return nil
}

func (r *Runner) fail(c Command, err error) error {
	if c.ErrorOnFail {
		return err
	}
	slog.Warn("Hook failed, continuing", "command", c.Command, "error", err)
	return nil
}

// acceptable reports whether exitCode is allowed. An empty list allows only 0.
func acceptable(exitCode int, allowed []int) bool {
	if len(allowed) == 0 {
		return exitCode == 0
	}
	for _, code := range allowed {
		if exitCode == code {
			return true
		}
	}
	return false
}
