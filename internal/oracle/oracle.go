// Package oracle is the model invocation boundary. An Oracle receives a
// role-scoped instruction plus the current ledger and returns the raw model
// text together with the ledger extended by that exchange.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spboyer/servicecounter/internal/ledger"
	"github.com/spboyer/servicecounter/internal/models"
)

//go:generate go tool mockgen -source=oracle.go -destination=mocks/mock_oracle.go -package=mocks

// Oracle maps an instruction and conversational context to a raw response.
type Oracle interface {
	Call(ctx context.Context, req *Request) (*Response, error)
}

// Request is a single role-scoped model call.
type Request struct {
	Role              models.Role
	SystemInstruction string
	UserInstruction   string
	// ImagePaths are artifacts the model should look at, in order.
	ImagePaths []string
	Ledger     *ledger.Ledger
}

// Response is the model's raw answer and the ledger that now includes it.
type Response struct {
	Raw    string
	Ledger *ledger.Ledger
}

// ErrTimeout is returned when a call does not finish within its bounded wait.
var ErrTimeout = errors.New("oracle call timed out")

// Record extends req.Ledger with the exchange req produced. Oracle
// implementations use it so both ledger views grow by exactly one turn.
func Record(req *Request, raw string) *ledger.Ledger {
	return req.Ledger.Extend(ledger.Message{
		Role:    req.Role,
		Prompt:  req.UserInstruction,
		Content: raw,
		Images:  nonEmpty(req.ImagePaths),
	})
}

// BuildPrompt renders the system instruction, prior turns and the user
// instruction into the single prompt text sent to the model.
func BuildPrompt(req *Request) string {
	var sb strings.Builder

	if req.SystemInstruction != "" {
		sb.WriteString(strings.TrimSpace(req.SystemInstruction))
		sb.WriteString("\n\n")
	}

	if history := req.Ledger.History(); len(history) > 0 {
		sb.WriteString("# Conversation so far\n")
		for _, msg := range history {
			sb.WriteString(ledger.TranscriptLine(msg.Role, msg.Content))
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	if images := nonEmpty(req.ImagePaths); len(images) > 0 {
		sb.WriteString("# Attached images (in order)\n")
		for i, p := range images {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, p)
		}
		sb.WriteString("\n")
	}

	sb.WriteString(strings.TrimSpace(req.UserInstruction))
	return sb.String()
}

type timeoutOracle struct {
	inner   Oracle
	timeout time.Duration
}

// WithTimeout bounds every call to inner by d. A call that exceeds it fails
// with an error wrapping [ErrTimeout]. A non-positive d returns inner unchanged.
func WithTimeout(inner Oracle, d time.Duration) Oracle {
	if d <= 0 {
		return inner
	}
	return &timeoutOracle{inner: inner, timeout: d}
}

func (t *timeoutOracle) Call(ctx context.Context, req *Request) (*Response, error) {
	ctx, cancel := context.WithTimeoutCause(ctx, t.timeout, ErrTimeout)
	defer cancel()

	type result struct {
		resp *Response
		err  error
	}

	done := make(chan result, 1)
	go func() {
		resp, err := t.inner.Call(ctx, req)
		done <- result{resp, err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(context.Cause(ctx), ErrTimeout) {
			return nil, fmt.Errorf("%s call after %s: %w", req.Role, t.timeout, ErrTimeout)
		}
		return r.resp, r.err
	case <-ctx.Done():
		if errors.Is(context.Cause(ctx), ErrTimeout) {
			return nil, fmt.Errorf("%s call after %s: %w", req.Role, t.timeout, ErrTimeout)
		}
		return nil, ctx.Err()
	}
}

func nonEmpty(paths []string) []string {
	var out []string
	for _, p := range paths {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}
