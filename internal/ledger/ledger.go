// Package ledger holds the conversational state shared by every agent call.
//
// A Ledger keeps two views of the same ordered turns: a machine-oriented
// history used to rebuild context for the model, and a human-readable
// transcript used for scoring and audit. Both views are always extended
// together. A Ledger is never modified in place; Extend returns a new value.
package ledger

import (
	"fmt"
	"strings"

	"github.com/spboyer/servicecounter/internal/models"
)

// Message is one turn in the machine-oriented history.
type Message struct {
	Role models.Role `json:"role"`
	// Prompt is the instruction that produced Content. Empty for customer and system turns.
	Prompt  string   `json:"prompt,omitempty"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// Ledger is an immutable snapshot of the conversation.
type Ledger struct {
	history    []Message
	transcript []string
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{}
}

// Extend returns a new ledger with msg appended to both views. The receiver
// is left untouched, so a nil receiver is treated as empty.
func (l *Ledger) Extend(msg Message) *Ledger {
	var history []Message
	var transcript []string
	if l != nil {
		history = l.history
		transcript = l.transcript
	}

	next := &Ledger{
		history:    make([]Message, len(history), len(history)+1),
		transcript: make([]string, len(transcript), len(transcript)+1),
	}
	copy(next.history, history)
	copy(next.transcript, transcript)

	msg.Images = append([]string(nil), msg.Images...)
	next.history = append(next.history, msg)
	next.transcript = append(next.transcript, TranscriptLine(msg.Role, msg.Content))
	return next
}

// Note returns a new ledger with a system-authored turn.
func (l *Ledger) Note(text string) *Ledger {
	return l.Extend(Message{Role: models.RoleSystem, Content: text})
}

// Len returns the number of turns.
func (l *Ledger) Len() int {
	if l == nil {
		return 0
	}
	return len(l.history)
}

// History returns a copy of the machine-oriented view.
func (l *Ledger) History() []Message {
	if l == nil {
		return nil
	}
	out := make([]Message, len(l.history))
	copy(out, l.history)
	return out
}

// Transcript returns a copy of the human-readable view.
func (l *Ledger) Transcript() []string {
	if l == nil {
		return nil
	}
	out := make([]string, len(l.transcript))
	copy(out, l.transcript)
	return out
}

// Last returns the most recent turn.
func (l *Ledger) Last() (Message, bool) {
	if l.Len() == 0 {
		return Message{}, false
	}
	return l.history[len(l.history)-1], true
}

// TranscriptText joins the transcript into one newline separated block.
func (l *Ledger) TranscriptText() string {
	if l == nil {
		return ""
	}
	return strings.Join(l.transcript, "\n")
}

// TranscriptLine formats a single transcript entry.
func TranscriptLine(role models.Role, content string) string {
	return fmt.Sprintf("%s: %s", role, strings.TrimSpace(content))
}
