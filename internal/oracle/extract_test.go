package oracle

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want map[string]any
	}{
		{
			name: "json fence",
			raw:  "Here you go:\n\n```json\n{\"response\": \"hello\", \"language\": \"en\"}\n```\n",
			want: map[string]any{"response": "hello", "language": "en"},
		},
		{
			name: "json fence preferred over earlier plain fence",
			raw:  "```\n{\"a\": \"plain\"}\n```\n\n```json\n{\"a\": \"tagged\"}\n```\n",
			want: map[string]any{"a": "tagged"},
		},
		{
			name: "plain fence",
			raw:  "```\n{\"task_number\": \"none\"}\n```",
			want: map[string]any{"task_number": "none"},
		},
		{
			name: "bare object",
			raw:  "  {\"is_need_of_continuation\": 1}  ",
			want: map[string]any{"is_need_of_continuation": json.Number("1")},
		},
		{
			name: "malformed tagged block falls back to next candidate",
			raw:  "```json\n{\"broken\": \n```\n\n```\n{\"ok\": true}\n```",
			want: map[string]any{"ok": true},
		},
		{
			name: "multi-byte content",
			raw:  "```json\n{\"response\": \"こんにちは\"}\n```",
			want: map[string]any{"response": "こんにちは"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractJSONFailures(t *testing.T) {
	for _, raw := range []string{
		"",
		"I could not decide.",
		"```json\n[1, 2, 3]\n```",
		"```json\n{\"a\": 1} trailing\n```",
		"{\"a\": 1} and some prose",
	} {
		_, err := ExtractJSON(raw)
		require.ErrorIs(t, err, ErrNoJSONBlock, "raw: %q", raw)
	}
}
