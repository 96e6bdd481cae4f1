package record

import (
	"context"
	"errors"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrTypeMismatch = errors.New("record type mismatch")
)

// SaveResult mirrors the entity save contract: Status is false when the
// record failed validation, in which case Errors explains why.
type SaveResult struct {
	Status bool
	Data   Record
	Errors []string
}

// EntityStore is the per-type load/save contract the pipeline needs.
type EntityStore interface {
	// Load returns the record with its relationships expanded.
	Load(ctx context.Context, id int64) (Record, error)
	// LoadUnpopulated returns the record's own fields only.
	LoadUnpopulated(ctx context.Context, id int64) (Record, error)
	Save(ctx context.Context, rec Record, actorID string) (SaveResult, error)
}

// Stores maps each entity type to its store.
type Stores map[Type]EntityStore

// Missing lists the entity types without a store.
func (s Stores) Missing() []Type {
	var out []Type
	for _, t := range Types {
		if s[t] == nil {
			out = append(out, t)
		}
	}
	return out
}

// Item is one end of a reference.
type Item struct {
	ID   int64  `json:"_id"`
	Type Type   `json:"type"`
	Role string `json:"role,omitempty"`
}

// Reference is a named edge between two persisted entities. TermLabel is
// matched against a taxonomy term's labelId or inverseLabelId; TermID, when
// set, selects the term directly.
type Reference struct {
	Items     [2]Item `json:"items"`
	TermID    int64   `json:"taxonomyTermId,omitempty"`
	TermLabel string  `json:"taxonomyTermLabel,omitempty"`
}

// Changes counts the relationship writes caused by one UpdateReference call.
type Changes struct {
	Created int `json:"created"`
	Matched int `json:"matched"`
}

// ReferenceStore creates relationships with MERGE semantics: writing the same
// reference twice leaves a single edge.
type ReferenceStore interface {
	UpdateReference(ctx context.Context, ref Reference) (Changes, error)
}

// Related is an expanded relationship on a populated record.
type Related struct {
	ID        int64  `json:"_id"`
	Type      Type   `json:"type"`
	TermLabel string `json:"term"`
	Outgoing  bool   `json:"outgoing"`
}

// ValidateForSave applies the required-field rules shared by every store.
func ValidateForSave(rec Record, want Type) []string {
	if rec.Type != want {
		return []string{ErrTypeMismatch.Error() + ": expected " + want.String() + ", got " + rec.Type.String()}
	}
	return want.MissingRequired(rec.Fields)
}
