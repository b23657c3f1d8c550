package models

import "time"

// SessionTranscript is the per-session JSON file written to the transcript directory.
type SessionTranscript struct {
	SessionID   string         `json:"session_id"`
	Workplace   string         `json:"workplace"`
	JobType     string         `json:"job_type"`
	Model       string         `json:"model,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt time.Time      `json:"completed_at"`
	DurationMs  int64          `json:"duration_ms"`
	ActiveTask  *int           `json:"active_task,omitempty"`
	Turns       int            `json:"turns"`
	Steps       int            `json:"steps"`
	Transcript  []string       `json:"transcript"`
	Issues      []Issue        `json:"issues,omitempty"`
	Outcome     *ReviewOutcome `json:"outcome,omitempty"`
}
