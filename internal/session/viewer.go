package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// SessionFile represents a session log file on disk.
type SessionFile struct {
	Path      string
	Name      string
	Size      int64
	ModTime   time.Time
	NumEvents int
}

// ListSessions finds .jsonl session log files in dir.
func ListSessions(dir string) ([]SessionFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading session directory: %w", err)
	}

	var files []SessionFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !strings.HasSuffix(e.Name(), "-session.jsonl") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}

		path := filepath.Join(dir, e.Name())
		n, _ := countLines(path) //nolint:errcheck
		files = append(files, SessionFile{
			Path:      path,
			Name:      e.Name(),
			Size:      info.Size(),
			ModTime:   info.ModTime(),
			NumEvents: n,
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].ModTime.After(files[j].ModTime)
	})

	return files, nil
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close() //nolint:errcheck
	n := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		n++
	}
	return n, scanner.Err()
}

// ReadEvents parses all events from a session log file.
func ReadEvents(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening session file: %w", err)
	}
	defer f.Close() //nolint:errcheck

	var events []Event
	scanner := bufio.NewScanner(f)
	// Increase buffer for large lines.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue // skip malformed lines
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading session file: %w", err)
	}
	return events, nil
}

// RenderTimeline writes a human-readable session timeline to w.
//
//nolint:errcheck // display-only writes; errors are not actionable
func RenderTimeline(w io.Writer, events []Event) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No events found.")
		return
	}

	fmt.Fprintln(w, "═══════════════════════════════════════════════════════")
	fmt.Fprintln(w, " SESSION TIMELINE")
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════")
	fmt.Fprintln(w)

	start := events[0].Timestamp
	for _, ev := range events {
		elapsed := ev.Timestamp.Sub(start)
		ts := formatDuration(elapsed)

		switch ev.Type {
		case EventSessionStart:
			workplace, _ := ev.Data["workplace"].(string) //nolint:errcheck
			jobType, _ := ev.Data["job_type"].(string)    //nolint:errcheck
			model, _ := ev.Data["model"].(string)         //nolint:errcheck
			tasks := jsonNumber(ev.Data["task_count"])
			fmt.Fprintf(w, "[%s] 🚀 Session started  %s / %s  model=%s  tasks=%d\n", ts, workplace, jobType, model, tasks)

		case EventTurnStart:
			turn := jsonNumber(ev.Data["turn"])
			text, _ := ev.Data["text"].(string)         //nolint:errcheck
			hasImage, _ := ev.Data["has_image"].(bool) //nolint:errcheck
			attachment := ""
			if hasImage {
				attachment = "  [image]"
			}
			fmt.Fprintf(w, "[%s] ▶  Turn %d: %s%s\n", ts, turn, text, attachment)

		case EventDelegation:
			target, _ := ev.Data["target"].(string) //nolint:errcheck
			if task := jsonNumber(ev.Data["active_task"]); task > 0 {
				fmt.Fprintf(w, "[%s]    → %s (task %d)\n", ts, target, task)
			} else {
				fmt.Fprintf(w, "[%s]    → %s\n", ts, target)
			}

		case EventIssue:
			kind, _ := ev.Data["kind"].(string)   //nolint:errcheck
			role, _ := ev.Data["role"].(string)   //nolint:errcheck
			field, _ := ev.Data["field"].(string) //nolint:errcheck
			fmt.Fprintf(w, "[%s]    ⚠ %s %s.%s\n", ts, kind, role, field)

		case EventReply:
			text, _ := ev.Data["text"].(string) //nolint:errcheck
			fmt.Fprintf(w, "[%s]    💬 %s\n", ts, text)

		case EventVerdict:
			cont, _ := ev.Data["continue"].(bool)   //nolint:errcheck
			reason, _ := ev.Data["reason"].(string) //nolint:errcheck
			icon := "■"
			if cont {
				icon = "↻"
			}
			fmt.Fprintf(w, "[%s]    %s %s\n", ts, icon, reason)

		case EventError:
			msg, _ := ev.Data["message"].(string) //nolint:errcheck
			fmt.Fprintf(w, "[%s] ❌ Error: %s\n", ts, msg)

		case EventSessionEnd:
			turns := jsonNumber(ev.Data["turns"])
			issues := jsonNumber(ev.Data["issues"])
			score := jsonFloat(ev.Data["total_score"])
			dur := jsonNumber(ev.Data["duration_ms"])
			fmt.Fprintf(w, "[%s] 🏁 Session complete  %d turns  %d issues  score=%.2f  (%dms)\n",
				ts, turns, issues, score, dur)

		default:
			fmt.Fprintf(w, "[%s] %s %v\n", ts, ev.Type, ev.Data)
		}
	}
	fmt.Fprintln(w)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%6dms", d.Milliseconds())
	}
	return fmt.Sprintf("%6.1fs", d.Seconds())
}

// jsonNumber extracts a number from a JSON-decoded interface{} (float64 or json.Number).
func jsonNumber(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case json.Number:
		i, _ := n.Int64() //nolint:errcheck
		return int(i)
	}
	return 0
}

func jsonFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case json.Number:
		f, _ := n.Float64() //nolint:errcheck
		return f
	}
	return 0
}
