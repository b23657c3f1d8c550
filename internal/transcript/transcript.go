package transcript

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spboyer/servicecounter/internal/ledger"
	"github.com/spboyer/servicecounter/internal/models"
)

// unsafeChars matches anything that should not end up in a filename. Letters
// of any script are kept so job types in other languages stay readable.
var unsafeChars = regexp.MustCompile(`[^\p{L}\p{N}_-]`)

func sanitizeName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.ReplaceAll(s, " ", "-")
	s = unsafeChars.ReplaceAllString(s, "")
	if s == "" {
		s = "unnamed"
	}
	return s
}

// sessionSuffixLen is how much of the session ID goes into a filename.
const sessionSuffixLen = 8

// Filename returns the transcript filename for a session of jobType. The
// leading part of sessionID keeps sessions started in the same second apart.
func Filename(jobType string, ts time.Time, sessionID string) string {
	name := fmt.Sprintf("%s-%s", sanitizeName(jobType), ts.Format("20060102-150405"))
	if id := unsafeChars.ReplaceAllString(sessionID, ""); id != "" {
		if r := []rune(id); len(r) > sessionSuffixLen {
			id = string(r[:sessionSuffixLen])
		}
		name += "-" + id
	}
	return name + ".json"
}

// Write serializes a SessionTranscript and writes it to dir.
func Write(dir string, t *models.SessionTranscript) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create transcript dir: %w", err)
	}

	name := Filename(t.JobType, t.StartedAt, t.SessionID)
	path := filepath.Join(dir, name)

	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal transcript: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write transcript: %w", err)
	}

	return path, nil
}

// BuildSessionTranscript assembles the exported record of a finished session.
func BuildSessionTranscript(info models.SessionInfo, job *models.JobDescription, state *models.SessionState, l *ledger.Ledger, outcome *models.ReviewOutcome, completedAt time.Time) *models.SessionTranscript {
	t := &models.SessionTranscript{
		SessionID:   info.ID,
		Model:       info.Model,
		StartedAt:   info.StartedAt,
		CompletedAt: completedAt,
		DurationMs:  completedAt.Sub(info.StartedAt).Milliseconds(),
		Transcript:  l.Transcript(),
		Outcome:     outcome,
	}
	if t.Transcript == nil {
		t.Transcript = []string{}
	}
	if job != nil {
		t.Workplace = job.Workplace
		t.JobType = job.JobType
	}
	if state != nil {
		t.ActiveTask = state.ActiveTask
		t.Turns = state.Turns
		t.Steps = state.StepCount
		t.Issues = state.Issues
	}
	return t
}
