package utils

import (
	"context"
	"log/slog"

	copilot "github.com/github/copilot-sdk/go"
)

// SessionToSlog forwards copilot session events to the default logger at
// debug level. It's a no-op unless debug logging is enabled.
func SessionToSlog(event copilot.SessionEvent) {
	if !slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		return
	}

	attrs := []any{
		"type", event.Type,
	}

	attrs = addIf(attrs, "content", event.Data.Content)
	attrs = addIf(attrs, "deltaContent", event.Data.DeltaContent)
	attrs = addIf(attrs, "message", event.Data.Message)
	attrs = addIf(attrs, "reasoningText", event.Data.ReasoningText)

	slog.Debug("Oracle event received", attrs...)
}

func addIf[T any](attrs []any, name string, v *T) []any {
	if v != nil {
		attrs = append(attrs, name, *v)
	}

	return attrs
}
