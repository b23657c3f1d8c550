package orchestration

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// binaryFlag interprets a model-provided 0/1 flag. ok is false for anything
// that is not an integral 0 or 1, the strings "0" and "1", or a boolean.
func binaryFlag(v any) (set bool, ok bool) {
	switch f := v.(type) {
	case bool:
		return f, true
	case string:
		switch strings.TrimSpace(f) {
		case "0":
			return false, true
		case "1":
			return true, true
		}
		return false, false
	}

	n, ok := integral(v)
	if !ok {
		return false, false
	}
	switch n {
	case 0:
		return false, true
	case 1:
		return true, true
	}
	return false, false
}

// integral converts JSON-ish numeric values to an int64 when they carry no
// fractional part.
func integral(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return integral(f)
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) || n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	}
	return 0, false
}

type taskNumberKind int

const (
	taskNumberNone taskNumberKind = iota
	taskNumberInvalid
	taskNumberID
)

// parseTaskNumber classifies the broker's task_number. "none", "", null and
// 0 mean no match; positive integers, as numbers or digit strings, are
// candidate IDs; everything else is invalid.
func parseTaskNumber(v any) (int, taskNumberKind) {
	if v == nil {
		return 0, taskNumberNone
	}

	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if s == "" || strings.EqualFold(s, "none") {
			return 0, taskNumberNone
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, taskNumberInvalid
		}
		v = n
	}

	n, ok := integral(v)
	switch {
	case !ok || n < 0 || n > math.MaxInt32:
		return 0, taskNumberInvalid
	case n == 0:
		return 0, taskNumberNone
	default:
		return int(n), taskNumberID
	}
}
