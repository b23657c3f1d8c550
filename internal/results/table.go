package results

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"
)

const maxReasonWidth = 48

// RenderTable writes entries as an aligned text table. Widths are measured
// in terminal cells so CJK job types line up.
//
//nolint:errcheck // display-only writes
func RenderTable(w io.Writer, entries []Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No results recorded.")
		return
	}

	headers := []string{"DATE", "WORKPLACE", "JOB TYPE", "TASK", "TURNS", "SCORE", "REASON"}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		task := "-"
		if e.ActiveTask != nil {
			task = strconv.Itoa(*e.ActiveTask)
		}
		score, reason := "-", ""
		if e.Outcome != nil {
			score = strconv.FormatFloat(e.Outcome.TotalScore, 'f', -1, 64)
			reason = runewidth.Truncate(oneLine(e.Outcome.TotalReason), maxReasonWidth, "…")
		}
		rows = append(rows, []string{
			e.GeneratedAt.Local().Format("2006-01-02 15:04"),
			e.Workplace,
			e.JobType,
			task,
			strconv.Itoa(e.Turns),
			score,
			reason,
		})
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}

	writeRow(w, headers, widths)
	for _, row := range rows {
		writeRow(w, row, widths)
	}
}

// Summary returns the number of entries with an outcome and their mean score.
func Summary(entries []Entry) (scored int, mean float64) {
	var total float64
	for _, e := range entries {
		if e.Outcome == nil {
			continue
		}
		scored++
		total += e.Outcome.TotalScore
	}
	if scored > 0 {
		mean = total / float64(scored)
	}
	return scored, mean
}

// Filter keeps entries whose job type matches jobType, newest first.
// An empty jobType keeps everything.
func Filter(entries []Entry, jobType string) []Entry {
	var out []Entry
	for _, e := range entries {
		if jobType == "" || strings.EqualFold(e.JobType, jobType) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].GeneratedAt.After(out[j].GeneratedAt)
	})
	return out
}

//nolint:errcheck
func writeRow(w io.Writer, cells []string, widths []int) {
	padded := make([]string, len(cells))
	for i, c := range cells {
		if i == len(cells)-1 {
			padded[i] = c
			continue
		}
		padded[i] = padRight(c, widths[i])
	}
	fmt.Fprintln(w, strings.TrimRight(strings.Join(padded, "  "), " "))
}

// padRight pads s with spaces so its terminal display width reaches width.
func padRight(s string, width int) string {
	sw := runewidth.StringWidth(s)
	if sw >= width {
		return s
	}
	return s + strings.Repeat(" ", width-sw)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
