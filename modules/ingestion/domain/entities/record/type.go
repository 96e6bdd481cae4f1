package record

import (
	"fmt"
	"strings"
)

// Type is the closed set of entity kinds an import rule can produce.
type Type int

const (
	TypeUnknown Type = iota
	TypeEvent
	TypeOrganisation
	TypePerson
	TypeResource
	TypeSpatial
	TypeTemporal
)

// Types lists every entity type in persistence order.
var Types = []Type{
	TypeEvent,
	TypeOrganisation,
	TypePerson,
	TypeResource,
	TypeSpatial,
	TypeTemporal,
}

var typeNames = map[Type]string{
	TypeEvent:        "Event",
	TypeOrganisation: "Organisation",
	TypePerson:       "Person",
	TypeResource:     "Resource",
	TypeSpatial:      "Spatial",
	TypeTemporal:     "Temporal",
}

var bucketNames = map[Type]string{
	TypeEvent:        "events",
	TypeOrganisation: "organisations",
	TypePerson:       "people",
	TypeResource:     "resources",
	TypeSpatial:      "spatials",
	TypeTemporal:     "temporals",
}

// requiredFields holds, per type, the fields of which at least one must be non-empty.
var requiredFields = map[Type][]string{
	TypeEvent:        {"label"},
	TypeOrganisation: {"label"},
	TypePerson:       {"firstName", "lastName"},
	TypeResource:     {"label"},
	TypeSpatial:      {"label"},
	TypeTemporal:     {"label"},
}

func ParseType(s string) (Type, bool) {
	s = strings.TrimSpace(s)
	for t, name := range typeNames {
		if strings.EqualFold(name, s) {
			return t, true
		}
	}
	return TypeUnknown, false
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "Unknown"
}

// Bucket is the plural collection name used in summaries and logs.
func (t Type) Bucket() string {
	if name, ok := bucketNames[t]; ok {
		return name
	}
	return "unknown"
}

func (t Type) Valid() bool {
	_, ok := typeNames[t]
	return ok
}

// HasRequired reports whether fields satisfy the type's required-field check.
func (t Type) HasRequired(fields Fields) bool {
	for _, key := range requiredFields[t] {
		if fields.Text(key) != "" {
			return true
		}
	}
	return false
}

// MissingRequired returns validation messages for a failed required-field check.
func (t Type) MissingRequired(fields Fields) []string {
	if t.HasRequired(fields) {
		return nil
	}
	keys := requiredFields[t]
	if len(keys) == 1 {
		return []string{fmt.Sprintf("%s %s is required", t, keys[0])}
	}
	return []string{fmt.Sprintf("%s requires one of %s", t, strings.Join(keys, ", "))}
}

func (t Type) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid entity type %d", int(t))
	}
	return []byte(t.String()), nil
}

func (t *Type) UnmarshalText(b []byte) error {
	parsed, ok := ParseType(string(b))
	if !ok {
		return fmt.Errorf("unknown entity type %q", string(b))
	}
	*t = parsed
	return nil
}
