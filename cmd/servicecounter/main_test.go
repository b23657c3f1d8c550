package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spboyer/servicecounter/internal/models"
	"github.com/spboyer/servicecounter/internal/results"
	"github.com/spboyer/servicecounter/internal/session"
	"github.com/spboyer/servicecounter/internal/wizard"
)

// writeDocuments scaffolds job.yaml and tasks.yaml in dir with every
// reference document present.
func writeDocuments(t *testing.T, dir string) (jobPath, tasksPath string) {
	t.Helper()
	jobPath = filepath.Join(dir, "job.yaml")
	tasksPath = filepath.Join(dir, "tasks.yaml")
	require.NoError(t, wizard.Write(wizard.Defaults(), jobPath, tasksPath, false))

	ref := filepath.Join(dir, "references", "moving-form.png")
	require.NoError(t, os.MkdirAll(filepath.Dir(ref), 0o755))
	require.NoError(t, os.WriteFile(ref, []byte("png"), 0o644))
	return jobPath, tasksPath
}

func jsonLine(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

// writeScript writes a one-turn script: the counter asks the broker, the
// broker picks task 2 and the observer ends the session.
func writeScript(t *testing.T, dir string) string {
	t.Helper()
	script := map[string]any{
		"responses": map[string][]string{
			"counter": {
				jsonLine(t, map[string]any{
					"desire": "move", "current_situation": "new address", "language": "English",
					"own_thought": "", "need_help_colleague": "broker",
				}),
				jsonLine(t, map[string]any{"response": "Please fill in the moving form.", "language": "English", "own_thought": ""}),
			},
			"broker": {
				jsonLine(t, map[string]any{
					"task_number": 2, "requirements": "moving form", "status": "started",
					"next_action": "hand out the form", "own_thought": "",
				}),
			},
			"observer": {
				jsonLine(t, map[string]any{"is_need_of_continuation": 0, "reason": "customer has what they need", "own_thought": ""}),
			},
			"reviewer": {
				jsonLine(t, map[string]any{
					"indicators": map[string]any{
						"accuracy": map[string]any{"score": 5, "reason": "right form"},
						"courtesy": map[string]any{"score": 4, "reason": "polite"},
					},
					"total_score":  4.5,
					"total_reason": "helpful",
				}),
			},
		},
	}
	data, err := json.Marshal(script)
	require.NoError(t, err)

	path := filepath.Join(dir, "script.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func runCLI(t *testing.T, cmd *cobra.Command, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRunCommandScriptedSession(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	jobPath, tasksPath := writeDocuments(t, dir)
	scriptPath := writeScript(t, dir)
	resultsPath := filepath.Join(dir, "out", "result.json")
	transcripts := filepath.Join(dir, "transcripts")
	logs := filepath.Join(dir, "logs")

	out, err := runCLI(t, newRootCommand(), "I moved last week\n",
		"run",
		"--job", jobPath,
		"--tasks", tasksPath,
		"--oracle", "mock",
		"--script", scriptPath,
		"--ui", "console",
		"--results", resultsPath,
		"--transcript-dir", transcripts,
		"--session-log",
		"--session-log-dir", logs,
		"--poll-interval", "5ms",
	)
	require.NoError(t, err, out)

	assert.Contains(t, out, "Welcome to City Hall")
	assert.Contains(t, out, "counter: Please fill in the moving form.")
	assert.Contains(t, out, "ended after 1 turn(s)")
	assert.Contains(t, out, "Procedure: #2")
	assert.Contains(t, out, "Total score: 4.5")
	assert.Contains(t, out, "Transcript saved to:")

	doc, err := results.NewFileStore(resultsPath).Load()
	require.NoError(t, err)
	require.Len(t, doc.Result, 1)
	entry := doc.Result[0]
	assert.Equal(t, "Resident Services", entry.JobType)
	require.NotNil(t, entry.ActiveTask)
	assert.Equal(t, 2, *entry.ActiveTask)
	assert.Equal(t, 4.5, entry.Outcome.TotalScore)

	files, err := session.ListSessions(logs)
	require.NoError(t, err)
	require.Len(t, files, 1)
	events, err := session.ReadEvents(files[0].Path)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, session.EventSessionStart, events[0].Type)
	assert.Equal(t, session.EventSessionEnd, events[len(events)-1].Type)

	matches, err := filepath.Glob(filepath.Join(transcripts, "*.json"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestRunCommandWritesTranscriptByDefault(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeDocuments(t, dir)
	scriptPath := writeScript(t, dir)

	out, err := runCLI(t, newRootCommand(), "I moved last week\n",
		"run",
		"--oracle", "mock",
		"--script", scriptPath,
		"--ui", "console",
		"--poll-interval", "5ms",
	)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Transcript saved to:")

	matches, err := filepath.Glob(filepath.Join(dir, "transcripts", "resident-services-*.json"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	var exported models.SessionTranscript
	require.NoError(t, json.Unmarshal(data, &exported))
	assert.NotEmpty(t, exported.Transcript)
	require.NotNil(t, exported.Outcome)
	assert.Equal(t, 4.5, exported.Outcome.TotalScore)
}

func TestRunCommandErrors(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	jobPath, tasksPath := writeDocuments(t, dir)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{
			name:    "missing job",
			args:    []string{"--job", filepath.Join(dir, "nope.yaml"), "--tasks", tasksPath},
			wantErr: "failed to load job description",
		},
		{
			name:    "unknown oracle",
			args:    []string{"--job", jobPath, "--tasks", tasksPath, "--oracle", "crystal-ball"},
			wantErr: "unknown oracle: crystal-ball",
		},
		{
			name:    "mock without script",
			args:    []string{"--job", jobPath, "--tasks", tasksPath, "--oracle", "mock"},
			wantErr: "--oracle mock requires --script",
		},
		{
			name:    "unknown ui",
			args:    []string{"--job", jobPath, "--tasks", tasksPath, "--oracle", "mock", "--script", writeScript(t, dir), "--ui", "hologram"},
			wantErr: "unknown ui: hologram",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, newRunCommand(), "", tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestChooseUI(t *testing.T) {
	in := strings.NewReader("")
	var out bytes.Buffer

	ui, err := chooseUI("auto", in, &out)
	require.NoError(t, err)
	assert.Equal(t, "console", ui, "non-terminal streams fall back to the console")

	ui, err = chooseUI("tui", in, &out)
	require.NoError(t, err)
	assert.Equal(t, "tui", ui)

	_, err = chooseUI("web", in, &out)
	assert.Error(t, err)
}

func TestRunOptionsUseProjectConfig(t *testing.T) {
	dir := t.TempDir()
	config := `paths:
  job: config/job.yaml
  results: data/result.json
defaults:
  oracle: mock
  oracleTimeout: 30
  pollIntervalMs: 250
  sessionLog: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".servicecounter.yaml"), []byte(config), 0o644))
	t.Chdir(dir)

	cmd := newRunCommand()
	require.NoError(t, cmd.Flags().Set("oracle", "copilot"))

	cfg, err := loadProjectConfig()
	require.NoError(t, err)

	opts := &runOptions{oracleName: "copilot"}
	opts.applyDefaults(cmd, cfg)

	assert.Equal(t, filepath.Join(cfg.Dir(), "config", "job.yaml"), opts.jobPath)
	assert.Equal(t, filepath.Join(cfg.Dir(), "tasks.yaml"), opts.tasksPath)
	assert.Equal(t, filepath.Join(cfg.Dir(), "data", "result.json"), opts.resultsPath)
	assert.Equal(t, "copilot", opts.oracleName, "flags win over the config file")
	assert.Equal(t, 30*time.Second, opts.oracleTimeout)
	assert.Equal(t, 250*time.Millisecond, opts.pollInterval)
	assert.True(t, opts.sessionLog)
	assert.Equal(t, ".", opts.sessionLogDir)
	assert.Equal(t, filepath.Join(cfg.Dir(), "transcripts"), opts.transcriptDir)
}

func TestCheckCommand(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	jobPath, tasksPath := writeDocuments(t, dir)

	out, err := runCLI(t, newCheckCommand(), "", jobPath, tasksPath)
	require.NoError(t, err)
	assert.Contains(t, out, "✅ "+jobPath)
	assert.Contains(t, out, "Ready to open the counter.")
}

func TestCheckCommandReportsProblems(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	jobPath := filepath.Join(dir, "job.yaml")
	tasksPath := filepath.Join(dir, "tasks.yaml")
	require.NoError(t, wizard.Write(wizard.Defaults(), jobPath, tasksPath, false))

	out, err := runCLI(t, newCheckCommand(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
	assert.Contains(t, out, "❌ tasks.yaml")
	assert.Contains(t, out, "moving-form.png not found")
}

func TestResultsCommand(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "result.json")
	store := results.NewFileStore(path)

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, jobType := range []string{"Resident Services", "Tax Office", "Resident Services"} {
		require.NoError(t, store.Append(results.Entry{
			GeneratedAt: base.Add(time.Duration(i) * time.Hour),
			SessionID:   "s" + string(rune('1'+i)),
			Workplace:   "City Hall",
			JobType:     jobType,
			Turns:       i + 1,
			Outcome:     &models.ReviewOutcome{TotalScore: float64(i + 2), TotalReason: "ok"},
		}))
	}

	out, err := runCLI(t, newResultsCommand(), "", "--job-type", "resident services")
	require.NoError(t, err)
	assert.Contains(t, out, "JOB TYPE")
	assert.NotContains(t, out, "Tax Office")
	assert.Contains(t, out, "2 scored session(s), mean total score 3.00")
	assert.Contains(t, out, "95% interval:")

	out, err = runCLI(t, newResultsCommand(), "", path, "-n", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "1 scored session(s), mean total score 4.00")
}

func TestResultsCommandEmptyStore(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	out, err := runCLI(t, newResultsCommand(), "", filepath.Join(dir, "missing.json"))
	require.NoError(t, err)
	assert.Contains(t, out, "No results recorded.")
}

func TestInitCommandNoPrompt(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	out, err := runCLI(t, newInitCommand(), "", "--no-prompt")
	require.NoError(t, err)
	assert.Contains(t, out, "Created job.yaml")
	assert.Contains(t, out, "Created tasks.yaml")
	assert.Contains(t, out, "expects a reference document")

	job, err := models.LoadJobDescription(filepath.Join(dir, "job.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "City Hall", job.Workplace)

	_, err = runCLI(t, newInitCommand(), "", "--no-prompt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = runCLI(t, newInitCommand(), "", "--no-prompt", "--force")
	require.NoError(t, err)
}

func TestSessionCommands(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	logger, err := session.NewJSONLogger(session.DefaultLogPath(dir, started), "abc")
	require.NoError(t, err)
	require.NoError(t, logger.Log(session.NewEvent(session.EventSessionStart, session.SessionStartData("City Hall", "Resident Services", "mock", 2))))
	require.NoError(t, logger.Log(session.NewEvent(session.EventTurnStart, session.TurnStartData(1, "hello", false))))
	require.NoError(t, logger.Close())

	out, err := runCLI(t, newSessionCommand(), "", "list", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "20260301T090000Z-session.jsonl")

	out, err = runCLI(t, newSessionCommand(), "", "view", logger.Path())
	require.NoError(t, err)
	assert.Contains(t, out, "Session started  City Hall / Resident Services")
	assert.Contains(t, out, "Turn 1: hello")
}
