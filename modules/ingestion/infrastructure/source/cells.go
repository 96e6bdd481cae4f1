package source

import (
	"regexp"
	"strconv"
	"strings"
)

var numeric = regexp.MustCompile(`^-?\d+(\.\d+)?([eE][+-]?\d+)?$`)

// coerce converts a raw cell to nil when blank and to float64 when it reads
// as a plain number. Anything else stays a string.
func coerce(raw string) any {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	if numeric.MatchString(s) {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return raw
}

func coerceRow(raw []string) []any {
	cells := make([]any, len(raw))
	for i, c := range raw {
		cells[i] = coerce(c)
	}
	return cells
}
