package models

import (
	"fmt"
	"time"
)

// CustomerTurn is one utterance collected by the front end.
type CustomerTurn struct {
	Text string
	// ImagePath is the optional submitted artifact. Empty when nothing was attached.
	ImagePath string
}

// IssueKind classifies non-fatal problems absorbed into the conversation.
type IssueKind string

const (
	// IssueInvalidFieldValue is a well-formed field whose value fails a domain check.
	IssueInvalidFieldValue IssueKind = "invalid_field_value"
	// IssueMissingPrecondition is an operation requested before its prerequisite state exists.
	IssueMissingPrecondition IssueKind = "missing_precondition"
	// IssueResourceUnavailable is a front end that went away or a required artifact that is absent.
	IssueResourceUnavailable IssueKind = "resource_unavailable"
)

// Issue is a recorded, non-fatal problem. It never aborts a session.
type Issue struct {
	Kind   IssueKind `json:"kind"`
	Role   Role      `json:"role"`
	Field  string    `json:"field"`
	Value  string    `json:"value,omitempty"`
	Detail string    `json:"detail,omitempty"`
	Step   int       `json:"step"`
}

func (i Issue) Error() string {
	msg := fmt.Sprintf("%s: %s.%s", i.Kind, i.Role, i.Field)
	if i.Value != "" {
		msg += fmt.Sprintf(" = %q", i.Value)
	}
	if i.Detail != "" {
		msg += ": " + i.Detail
	}
	return msg
}

// SessionState is the orchestrator-owned state of one session.
type SessionState struct {
	// ActiveTask is set by a valid broker decision and never cleared.
	ActiveTask *int    `json:"active_task,omitempty"`
	Running    bool    `json:"running"`
	StepCount  int     `json:"step_count"`
	Turns      int     `json:"turns"`
	Issues     []Issue `json:"issues,omitempty"`
}

// IndicatorScore is the reviewer's verdict on a single indicator.
type IndicatorScore struct {
	Score          float64 `json:"score" mapstructure:"score"`
	Reason         string  `json:"reason" mapstructure:"reason"`
	NeedCorrection string  `json:"need_correction" mapstructure:"need_correction"`
}

// ReviewOutcome is the final, scored review of a whole session.
type ReviewOutcome struct {
	Indicators  map[string]IndicatorScore `json:"indicators" mapstructure:"indicators"`
	TotalScore  float64                   `json:"total_score" mapstructure:"total_score"`
	TotalReason string                    `json:"total_reason" mapstructure:"total_reason"`
}

// CorrectnessReview is the reviewer's comparison of a submission against a
// task's reference artifact.
type CorrectnessReview struct {
	Approved       bool    `json:"is_approved"`
	Score          float64 `json:"correctness_score"`
	Reason         string  `json:"reason"`
	NeedCorrection string  `json:"need_correction"`
}

// ContinuationVerdict is the observer's decision for one turn.
type ContinuationVerdict struct {
	Continue bool   `json:"continue"`
	Reason   string `json:"reason"`
}

// SessionInfo carries values computed once at session start.
type SessionInfo struct {
	ID        string    `json:"session_id"`
	StartedAt time.Time `json:"started_at"`
	Model     string    `json:"model,omitempty"`
}
