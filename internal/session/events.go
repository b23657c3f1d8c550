package session

import "time"

// EventType identifies the kind of session event.
type EventType string

const (
	EventSessionStart EventType = "session_start"
	EventSessionEnd   EventType = "session_complete"
	EventTurnStart    EventType = "turn_start"
	EventDelegation   EventType = "delegation"
	EventIssue        EventType = "issue"
	EventReply        EventType = "reply"
	EventVerdict      EventType = "verdict"
	EventError        EventType = "error"
)

// Event is a single timestamped entry in a session log.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	SessionID string         `json:"session_id,omitempty"`
	Type      EventType      `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
}

// NewEvent creates an event with the current timestamp.
func NewEvent(t EventType, data map[string]any) Event {
	return Event{
		Timestamp: time.Now().UTC(),
		Type:      t,
		Data:      data,
	}
}

// SessionStartData returns event data for a session start.
func SessionStartData(workplace, jobType, model string, taskCount int) map[string]any {
	return map[string]any{
		"workplace":  workplace,
		"job_type":   jobType,
		"model":      model,
		"task_count": taskCount,
	}
}

// SessionCompleteData returns event data for a session end.
func SessionCompleteData(turns, issues int, totalScore float64, durationMs int64) map[string]any {
	return map[string]any{
		"turns":       turns,
		"issues":      issues,
		"total_score": totalScore,
		"duration_ms": durationMs,
	}
}

// TurnStartData returns event data for a customer turn.
func TurnStartData(turn int, text string, hasImage bool) map[string]any {
	return map[string]any{
		"turn":      turn,
		"text":      text,
		"has_image": hasImage,
	}
}

// DelegationData returns event data for a collaborator being asked to act.
func DelegationData(target string, activeTask int) map[string]any {
	d := map[string]any{"target": target}
	if activeTask > 0 {
		d["active_task"] = activeTask
	}
	return d
}

// IssueData returns event data for a recorded, non-fatal issue.
func IssueData(kind, role, field, value, detail string) map[string]any {
	return map[string]any{
		"kind":   kind,
		"role":   role,
		"field":  field,
		"value":  value,
		"detail": detail,
	}
}

// ReplyData returns event data for a reply shown to the customer.
func ReplyData(text string) map[string]any {
	return map[string]any{"text": text}
}

// VerdictData returns event data for the observer's decision.
func VerdictData(continueSession bool, reason string) map[string]any {
	return map[string]any{
		"continue": continueSession,
		"reason":   reason,
	}
}

// ErrorData returns event data for an error.
func ErrorData(message string, details map[string]any) map[string]any {
	d := map[string]any{
		"message": message,
	}
	for k, v := range details {
		d[k] = v
	}
	return d
}
