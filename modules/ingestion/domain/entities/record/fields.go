package record

import (
	"strconv"
	"strings"
)

const (
	FieldID        = "_id"
	FieldLabel     = "label"
	FieldCondition = "condition"
)

// Fields holds the type-specific values extracted for one entity. Values are
// strings, int64 ids, DateRange, or nested map[string]any composites.
type Fields map[string]any

// Text returns the value under key rendered as trimmed text, or "" when absent.
func (f Fields) Text(key string) string {
	v, ok := f[key]
	if !ok {
		return ""
	}
	s, _ := CellText(v)
	return strings.TrimSpace(s)
}

// ID returns the numeric _id carried by the fields, if any.
func (f Fields) ID() (int64, bool) {
	switch v := f[FieldID].(type) {
	case int64:
		return v, v > 0
	case int:
		return int64(v), v > 0
	case float64:
		return int64(v), v > 0 && v == float64(int64(v))
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n, err == nil && n > 0
	}
	return 0, false
}

func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Merge overlays other onto f.
func (f Fields) Merge(other Fields) {
	for k, v := range other {
		f[k] = v
	}
}

// CellText renders a scalar cell or field value as text. The boolean is false
// for nil and for values that have no scalar rendering.
func CellText(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case bool:
		return strconv.FormatBool(t), true
	case DateRange:
		return t.Label, t.Label != ""
	}
	return "", false
}
