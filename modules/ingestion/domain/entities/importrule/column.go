package importrule

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type ColumnType string

const (
	ColumnString    ColumnType = "string"
	ColumnDate      ColumnType = "date"
	ColumnCondition ColumnType = "condition"
)

// NoColumn marks a column rule that takes its value from CustomValue.
const NoColumn ColumnIndex = -1

// ColumnIndex is a zero-based source column. Rule payloads carry it either as
// a number or as a numeric string.
type ColumnIndex int

func (c *ColumnIndex) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*c = NoColumn
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		return c.parse(s)
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("column index: %w", err)
	}
	if f != float64(int(f)) {
		return fmt.Errorf("column index %v is not an integer", f)
	}
	*c = ColumnIndex(int(f))
	return nil
}

// UnmarshalYAML accepts the same forms as UnmarshalJSON.
func (c *ColumnIndex) UnmarshalYAML(unmarshal func(any) error) error {
	var raw any
	if err := unmarshal(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case nil:
		*c = NoColumn
	case int:
		*c = ColumnIndex(v)
	case float64:
		if v != float64(int(v)) {
			return fmt.Errorf("column index %v is not an integer", v)
		}
		*c = ColumnIndex(int(v))
	case string:
		return c.parse(v)
	default:
		return fmt.Errorf("column index: unsupported value %v", v)
	}
	return nil
}

func (c *ColumnIndex) parse(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		*c = NoColumn
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("column index %q: %w", s, err)
	}
	*c = ColumnIndex(n)
	return nil
}

// ColumnRule maps one source column, or a literal, onto one entity property.
// A rule with Children ignores Value and Custom and assembles a composite
// object from its children instead.
type ColumnRule struct {
	Property    string       `json:"property" yaml:"property"`
	Value       ColumnIndex  `json:"value" yaml:"value"`
	Custom      bool         `json:"custom,omitempty" yaml:"custom,omitempty"`
	CustomValue string       `json:"customValue,omitempty" yaml:"customValue,omitempty"`
	Type        ColumnType   `json:"type,omitempty" yaml:"type,omitempty"`
	Regexp      string       `json:"regexp,omitempty" yaml:"regexp,omitempty"`
	PrefixText  string       `json:"prefixText,omitempty" yaml:"prefixText,omitempty"`
	Children    []ColumnRule `json:"children,omitempty" yaml:"children,omitempty"`
}

// columnRuleFields drops ColumnRule's methods so decoding does not recurse.
type columnRuleFields ColumnRule

// UnmarshalJSON leaves Value at NoColumn when the payload has no value key.
func (c *ColumnRule) UnmarshalJSON(b []byte) error {
	f := columnRuleFields{Value: NoColumn}
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*c = ColumnRule(f)
	return nil
}

// UnmarshalYAML applies the same default as UnmarshalJSON.
func (c *ColumnRule) UnmarshalYAML(unmarshal func(any) error) error {
	f := columnRuleFields{Value: NoColumn}
	if err := unmarshal(&f); err != nil {
		return err
	}
	*c = ColumnRule(f)
	return nil
}

func (c ColumnRule) IsComposite() bool { return len(c.Children) > 0 }

func (c ColumnRule) IsCondition() bool { return c.Type == ColumnCondition }
