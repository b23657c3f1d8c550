package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/spboyer/servicecounter/internal/frontend"
	"github.com/spboyer/servicecounter/internal/hooks"
	"github.com/spboyer/servicecounter/internal/models"
	"github.com/spboyer/servicecounter/internal/oracle"
	"github.com/spboyer/servicecounter/internal/orchestration"
	"github.com/spboyer/servicecounter/internal/projectconfig"
	"github.com/spboyer/servicecounter/internal/results"
	"github.com/spboyer/servicecounter/internal/session"
)

type runOptions struct {
	jobPath       string
	tasksPath     string
	hooks         hooks.Config
	model         string
	oracleName    string
	scriptPath    string
	ui            string
	resultsPath   string
	transcriptDir string
	sessionLog    bool
	sessionLogDir string
	oracleTimeout time.Duration
	pollInterval  time.Duration
}

func newRunCommand() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Open the counter and talk to it",
		Long: `Open the service counter for one customer session.

The job description and task catalog are read from --job and --tasks (or the
paths in .servicecounter.yaml). When the session ends, the reviewer scores it
and the outcome is appended to the result store.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadProjectConfig()
			if err != nil {
				return err
			}
			opts.applyDefaults(cmd, cfg)
			return runSession(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.jobPath, "job", "", "Job description file (default: job.yaml)")
	cmd.Flags().StringVar(&opts.tasksPath, "tasks", "", "Task catalog file (default: tasks.yaml)")
	cmd.Flags().StringVar(&opts.model, "model", "", "Model used by every role")
	cmd.Flags().StringVar(&opts.oracleName, "oracle", "", "Oracle backend: copilot, mock")
	cmd.Flags().StringVar(&opts.scriptPath, "script", "", "Response script for --oracle mock")
	cmd.Flags().StringVar(&opts.ui, "ui", "", "Front end: auto, tui, console")
	cmd.Flags().StringVar(&opts.resultsPath, "results", "", "Result store file (default: result.json)")
	cmd.Flags().StringVar(&opts.transcriptDir, "transcript-dir", "", "Directory to save the session transcript (default: transcripts)")
	cmd.Flags().BoolVar(&opts.sessionLog, "session-log", false, "Write an NDJSON session event log")
	cmd.Flags().StringVar(&opts.sessionLogDir, "session-log-dir", "", "Directory for session event logs (default: current directory)")
	cmd.Flags().DurationVar(&opts.oracleTimeout, "oracle-timeout", 0, "Limit for a single oracle call, e.g. 90s (0 uses the configured default)")
	cmd.Flags().DurationVar(&opts.pollInterval, "poll-interval", 0, "How often the front end is polled while idle")

	return cmd
}

func loadProjectConfig() (*projectconfig.ProjectConfig, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}
	return projectconfig.Load(cwd)
}

// applyDefaults fills every flag the user did not set from the project config.
func (o *runOptions) applyDefaults(cmd *cobra.Command, cfg *projectconfig.ProjectConfig) {
	set := func(name string, dst *string, value string) {
		if !cmd.Flags().Changed(name) {
			*dst = value
		}
	}
	set("job", &o.jobPath, cfg.Resolve(cfg.Paths.Job))
	set("tasks", &o.tasksPath, cfg.Resolve(cfg.Paths.Tasks))
	set("results", &o.resultsPath, cfg.Resolve(cfg.Paths.Results))
	set("transcript-dir", &o.transcriptDir, cfg.Resolve(cfg.Paths.Transcripts))
	set("session-log-dir", &o.sessionLogDir, cfg.Resolve(cfg.Paths.SessionLogs))
	set("model", &o.model, cfg.Defaults.Model)
	set("oracle", &o.oracleName, cfg.Defaults.Oracle)
	set("ui", &o.ui, cfg.Defaults.UI)

	if !cmd.Flags().Changed("session-log") && cfg.Defaults.SessionLog != nil {
		o.sessionLog = *cfg.Defaults.SessionLog
	}
	if !cmd.Flags().Changed("oracle-timeout") {
		o.oracleTimeout = cfg.OracleTimeout()
	}
	if !cmd.Flags().Changed("poll-interval") {
		o.pollInterval = cfg.PollInterval()
	}
	if o.sessionLogDir == "" {
		o.sessionLogDir = "."
	}
	if o.transcriptDir == "" {
		o.transcriptDir = projectconfig.DefaultTranscripts
	}
	o.hooks = cfg.Hooks
}

func runSession(cmd *cobra.Command, opts *runOptions) error {
	job, err := models.LoadJobDescription(opts.jobPath)
	if err != nil {
		return fmt.Errorf("failed to load job description: %w", err)
	}
	catalog, err := models.LoadTaskCatalog(opts.tasksPath)
	if err != nil {
		return fmt.Errorf("failed to load task catalog: %w", err)
	}

	o, closeOracle, err := newOracle(opts)
	if err != nil {
		return err
	}
	defer closeOracle()

	store := results.NewFileStore(opts.resultsPath)
	if err := store.Init(); err != nil {
		return err
	}

	info := models.SessionInfo{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		Model:     opts.model,
	}

	loopOpts := []orchestration.LoopOption{
		orchestration.WithSessionInfo(info),
		orchestration.WithPollInterval(opts.pollInterval),
		orchestration.WithTranscriptDir(opts.transcriptDir),
	}
	if opts.sessionLog {
		logger, err := session.NewJSONLogger(session.DefaultLogPath(opts.sessionLogDir, info.StartedAt), info.ID)
		if err != nil {
			return fmt.Errorf("opening session log: %w", err)
		}
		defer logger.Close() //nolint:errcheck
		loopOpts = append(loopOpts, orchestration.WithEventLogger(logger))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	in, out := cmd.InOrStdin(), cmd.OutOrStdout()
	ui, err := chooseUI(opts.ui, in, out)
	if err != nil {
		return err
	}

	hookRunner := &hooks.Runner{
		Output: out,
		Env: map[string]string{
			hooks.EnvSessionID: info.ID,
			hooks.EnvResults:   store.Path(),
		},
	}
	if err := hookRunner.Execute(ctx, "before_session", opts.hooks.BeforeSession); err != nil {
		return err
	}

	var result *orchestration.Result
	switch ui {
	case "tui":
		result, err = runWithTUI(ctx, o, job, catalog, store, loopOpts)
	default:
		result, err = runWithConsole(ctx, in, out, o, job, catalog, store, loopOpts)
	}
	if result != nil {
		printSessionSummary(out, info, result, store.Path())
	}
	if err != nil {
		return fmt.Errorf("session failed: %w", err)
	}

	if result.TranscriptPath != "" {
		hookRunner.Env[hooks.EnvTranscript] = result.TranscriptPath
	}
	if result.Outcome != nil {
		hookRunner.Env[hooks.EnvTotalScore] = strconv.FormatFloat(result.Outcome.TotalScore, 'f', -1, 64)
	}
	return hookRunner.Execute(context.WithoutCancel(ctx), "after_session", opts.hooks.AfterSession)
}

// newOracle builds the configured oracle, bounded by the oracle timeout.
func newOracle(opts *runOptions) (oracle.Oracle, func(), error) {
	switch opts.oracleName {
	case "copilot", "copilot-sdk":
		co := oracle.NewCopilotOracle(opts.model, nil)
		closeFn := func() {
			if err := co.Close(); err != nil {
				slog.Warn("Closing oracle", "error", err)
			}
		}
		return oracle.WithTimeout(co, opts.oracleTimeout), closeFn, nil
	case "mock":
		if opts.scriptPath == "" {
			return nil, nil, errors.New("--oracle mock requires --script")
		}
		script, err := oracle.LoadScript(opts.scriptPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load oracle script: %w", err)
		}
		return oracle.WithTimeout(oracle.NewScriptedOracle(*script), opts.oracleTimeout), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown oracle: %s (supported: copilot, mock)", opts.oracleName)
	}
}

// chooseUI resolves "auto" to the TUI when both ends are terminals.
func chooseUI(ui string, in io.Reader, out io.Writer) (string, error) {
	switch ui {
	case "tui", "console":
		return ui, nil
	case "", "auto":
		if isTerminal(in) && isTerminal(out) {
			return "tui", nil
		}
		return "console", nil
	default:
		return "", fmt.Errorf("unknown ui: %s (supported: auto, tui, console)", ui)
	}
}

func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func runWithConsole(ctx context.Context, in io.Reader, out io.Writer, o oracle.Oracle, job *models.JobDescription, catalog *models.TaskCatalog, store results.Store, loopOpts []orchestration.LoopOption) (*orchestration.Result, error) {
	console := frontend.NewConsole(in, out, frontend.WithSpinner(isTerminal(out)))
	defer console.Close() //nolint:errcheck

	fmt.Fprintf(out, "Welcome to %s (%s). Type /image <path> to attach a document, /quit to leave.\n", job.Workplace, job.JobType) //nolint:errcheck

	loop := orchestration.NewLoop(o, job, catalog, console, store, loopOpts...)
	return loop.Run(ctx)
}

func runWithTUI(ctx context.Context, o oracle.Oracle, job *models.JobDescription, catalog *models.TaskCatalog, store results.Store, loopOpts []orchestration.LoopOption) (*orchestration.Result, error) {
	// The chat window owns the screen; log lines would tear it.
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.DiscardHandler))
	defer slog.SetDefault(prev)

	tui := frontend.NewTUI(fmt.Sprintf("%s · %s", job.Workplace, job.JobType))

	loop := orchestration.NewLoop(o, job, catalog, tui, store, loopOpts...)
	loop.OnStateChange(func(change orchestration.StateChange) {
		tui.SetStatus(change.State.String())
	})

	var result *orchestration.Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer tui.Close() //nolint:errcheck
		r, err := loop.Run(gctx)
		result = r
		return err
	})
	g.Go(tui.Run)

	err := g.Wait()
	return result, err
}

//nolint:errcheck
func printSessionSummary(w io.Writer, info models.SessionInfo, result *orchestration.Result, storePath string) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Session %s ended after %d turn(s).\n", info.ID, result.State.Turns)
	if result.State.ActiveTask != nil {
		fmt.Fprintf(w, "Procedure: #%d\n", *result.State.ActiveTask)
	}
	if n := len(result.State.Issues); n > 0 {
		fmt.Fprintf(w, "Issues: %d\n", n)
		for _, issue := range result.State.Issues {
			fmt.Fprintf(w, "  - %s\n", issue.Error())
		}
	}
	if result.Outcome == nil {
		fmt.Fprintln(w, "The session was not scored.")
		return
	}

	fmt.Fprintf(w, "Total score: %g\n", result.Outcome.TotalScore)
	if reason := strings.TrimSpace(result.Outcome.TotalReason); reason != "" {
		fmt.Fprintf(w, "  %s\n", reason)
	}
	for _, name := range sortedIndicators(result.Outcome) {
		score := result.Outcome.Indicators[name]
		fmt.Fprintf(w, "  %-20s %g\n", name, score.Score)
	}
	fmt.Fprintf(w, "Result saved to: %s\n", storePath)
	if result.TranscriptPath != "" {
		fmt.Fprintf(w, "Transcript saved to: %s\n", result.TranscriptPath)
	}
}

func sortedIndicators(outcome *models.ReviewOutcome) []string {
	names := make([]string, 0, len(outcome.Indicators))
	for name := range outcome.Indicators {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
