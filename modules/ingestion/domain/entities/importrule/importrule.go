package importrule

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/domain/entities/record"
)

// SchemaVersion is the newest rule payload layout this package understands.
const SchemaVersion = 1

var (
	ErrUnsupportedSchema = errors.New("unsupported rule schema version")
	ErrEmptyRule         = errors.New("rule payload is empty")
)

// Rule is the decoded payload of an ImportRule.
type Rule struct {
	SchemaVersion int          `json:"schemaVersion,omitempty" yaml:"schemaVersion,omitempty"`
	EntityType    string       `json:"entityType" yaml:"entityType" validate:"required"`
	Columns       []ColumnRule `json:"columns" yaml:"columns"`
	CreatedAt     time.Time    `json:"createdAt,omitempty" yaml:"-"`

	// RefID is the owning ImportRule's id. It is stamped at decode time and
	// never serialized.
	RefID string `json:"-" yaml:"-"`
}

// Type resolves EntityType against the closed set of entity types.
func (r Rule) Type() (record.Type, bool) {
	return record.ParseType(r.EntityType)
}

// ImportRule is a stored rule row. Rule holds the JSON payload as written by
// the rule builder.
type ImportRule struct {
	ID           uuid.UUID
	ImportPlanID uuid.UUID
	Rule         json.RawMessage
	CreatedAt    time.Time
}

// New encodes rule as the payload of a fresh ImportRule for planID.
func New(planID uuid.UUID, rule Rule, createdAt time.Time) (ImportRule, error) {
	if rule.SchemaVersion == 0 {
		rule.SchemaVersion = SchemaVersion
	}
	rule.CreatedAt = createdAt
	payload, err := json.Marshal(rule)
	if err != nil {
		return ImportRule{}, fmt.Errorf("encode rule: %w", err)
	}
	return ImportRule{
		ID:           uuid.New(),
		ImportPlanID: planID,
		Rule:         payload,
		CreatedAt:    createdAt,
	}, nil
}

// Decode parses the payload and stamps RefID with the rule's id.
func (ir ImportRule) Decode() (Rule, error) {
	if len(ir.Rule) == 0 {
		return Rule{}, fmt.Errorf("rule %s: %w", ir.ID, ErrEmptyRule)
	}
	var r Rule
	if err := json.Unmarshal(ir.Rule, &r); err != nil {
		return Rule{}, fmt.Errorf("rule %s: decode: %w", ir.ID, err)
	}
	if r.SchemaVersion > SchemaVersion {
		return Rule{}, fmt.Errorf("rule %s: %w: %d", ir.ID, ErrUnsupportedSchema, r.SchemaVersion)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = ir.CreatedAt
	}
	r.RefID = ir.ID.String()
	return r, nil
}
