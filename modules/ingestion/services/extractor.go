package services

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dlclark/regexp2"

	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/domain/entities/importrule"
	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/domain/entities/record"
)

// DateNormalizer turns free text into a date range. A zero range means the
// text is not a date.
type DateNormalizer interface {
	Parse(raw string) record.DateRange
}

const regexpTimeout = time.Second

// Extractor evaluates one column rule against one row. Rule patterns are
// written for the rule builder's JavaScript engine, so they are compiled with
// regexp2 in ECMAScript mode and cached.
type Extractor struct {
	dates DateNormalizer

	mu       sync.Mutex
	patterns map[string]*regexp2.Regexp
}

func NewExtractor(dates DateNormalizer) *Extractor {
	return &Extractor{dates: dates, patterns: make(map[string]*regexp2.Regexp)}
}

// Extract returns the fields produced by col for row, or nil when nothing
// resolved. A condition column always yields a condition entry. temporal is
// set while evaluating a Temporal rule, where date columns are normalized.
func (e *Extractor) Extract(col importrule.ColumnRule, row record.RawRow, temporal bool) (record.Fields, error) {
	out, err := e.extract(col, row, temporal)
	if err != nil {
		return nil, err
	}
	if col.IsCondition() {
		fulfilled := false
		for _, v := range out {
			fulfilled = fulfilled || truthy(v)
		}
		return record.Fields{record.FieldCondition: fulfilled}, nil
	}
	return out, nil
}

func (e *Extractor) extract(col importrule.ColumnRule, row record.RawRow, temporal bool) (record.Fields, error) {
	if col.IsComposite() {
		return e.composite(col, row, temporal)
	}

	value, ok := resolve(col, row)
	if !ok {
		return nil, nil
	}
	if col.Regexp != "" {
		matched, ok, err := e.match(col.Regexp, value)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		value = matched
	}
	if prefix := strings.TrimSpace(col.PrefixText); prefix != "" {
		value = prefix + " " + value
	}

	property := col.Property
	if col.IsCondition() && property == "" {
		property = record.FieldCondition
	}
	if property == "" {
		return nil, nil
	}

	if property == record.FieldID {
		id, err := strconv.ParseFloat(value, 64)
		if err != nil || id != float64(int64(id)) || id <= 0 {
			return nil, nil
		}
		return record.Fields{property: int64(id)}, nil
	}

	if temporal && col.Type == importrule.ColumnDate && e.dates != nil {
		dr := e.dates.Parse(value)
		if dr.IsZero() {
			return nil, nil
		}
		return record.Fields{property: dr}, nil
	}
	return record.Fields{property: value}, nil
}

// composite assembles the children into one nested object under col.Property.
// A composite without a property is a plain container and its children's
// fields are returned flat.
func (e *Extractor) composite(col importrule.ColumnRule, row record.RawRow, temporal bool) (record.Fields, error) {
	merged := make(map[string]any, len(col.Children))
	for _, child := range col.Children {
		out, err := e.Extract(child, row, temporal)
		if err != nil {
			return nil, err
		}
		for k, v := range out {
			merged[k] = v
		}
	}
	if len(merged) == 0 {
		return nil, nil
	}
	if col.Property == "" {
		return record.Fields(merged), nil
	}
	return record.Fields{col.Property: merged}, nil
}

// resolve returns the trimmed scalar for col: the custom value when set,
// else the referenced cell. Blank values are absent.
func resolve(col importrule.ColumnRule, row record.RawRow) (string, bool) {
	var s string
	switch {
	case col.Custom:
		s = col.CustomValue
	case col.Value > importrule.NoColumn:
		text, ok := record.CellText(row.Cell(int(col.Value)))
		if !ok {
			return "", false
		}
		s = text
	default:
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

func (e *Extractor) match(pattern, value string) (string, bool, error) {
	re, err := e.compile(pattern)
	if err != nil {
		return "", false, err
	}
	m, err := re.FindStringMatch(value)
	if err != nil {
		return "", false, fmt.Errorf("regexp %q: %w", pattern, err)
	}
	if m == nil {
		return "", false, nil
	}
	s := strings.TrimSpace(m.String())
	return s, s != "", nil
}

func (e *Extractor) compile(pattern string) (*regexp2.Regexp, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if re, ok := e.patterns[pattern]; ok {
		return re, nil
	}
	expr, opts := jsPattern(pattern)
	re, err := regexp2.Compile(expr, opts)
	if err != nil {
		return nil, fmt.Errorf("compile regexp %q: %w", pattern, err)
	}
	re.MatchTimeout = regexpTimeout
	e.patterns[pattern] = re
	return re, nil
}

// jsPattern accepts both a bare pattern and a /pattern/flags literal.
func jsPattern(pattern string) (string, regexp2.RegexOptions) {
	opts := regexp2.RegexOptions(regexp2.ECMAScript)
	if len(pattern) < 2 || pattern[0] != '/' {
		return pattern, opts
	}
	end := strings.LastIndex(pattern, "/")
	if end <= 0 {
		return pattern, opts
	}
	flags := pattern[end+1:]
	if strings.Trim(flags, "gimsuy") != "" {
		return pattern, opts
	}
	for _, f := range flags {
		switch f {
		case 'i':
			opts |= regexp2.IgnoreCase
		case 'm':
			opts |= regexp2.Multiline
		case 's':
			// ECMAScript mode rejects Singleline.
			opts = opts&^regexp2.ECMAScript | regexp2.Singleline
		}
	}
	return pattern[1:end], opts
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return strings.TrimSpace(t) != ""
	case record.DateRange:
		return !t.IsZero()
	case map[string]any:
		return len(t) > 0
	}
	return true
}
