package importplan

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/domain/entities/record"
)

var validate = sync.OnceValue(func() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
})

// Validator returns the shared validator instance.
func Validator() *validator.Validate { return validate() }

// RelationTemplate declares that, for every row holding both a SrcID-tagged and
// a TargetID-tagged entity, a RelationLabel edge joins them. SrcID and TargetID
// are rule ids (or "custom"), not database ids.
type RelationTemplate struct {
	RelationLabel string      `json:"relationLabel" yaml:"relationLabel" validate:"required"`
	SrcID         string      `json:"srcId" yaml:"srcId" validate:"required"`
	SrcType       record.Type `json:"srcType" yaml:"srcType" validate:"required"`
	TargetID      string      `json:"targetId" yaml:"targetId" validate:"required"`
	TargetType    record.Type `json:"targetType" yaml:"targetType" validate:"required"`
}

func (t RelationTemplate) Validate() error {
	t.RelationLabel = strings.TrimSpace(t.RelationLabel)
	if err := validate().Struct(t); err != nil {
		return fmt.Errorf("relation template: %w", err)
	}
	if !t.SrcType.Valid() || !t.TargetType.Valid() {
		return fmt.Errorf("relation template %q: unknown entity type", t.RelationLabel)
	}
	return nil
}

// Involves reports whether refID plays either role in the template.
func (t RelationTemplate) Involves(refID string) bool {
	return t.SrcID == refID || t.TargetID == refID
}

// Counterpart returns the other side of the template for refID.
func (t RelationTemplate) Counterpart(refID string) (string, record.Type, bool) {
	switch refID {
	case t.SrcID:
		return t.TargetID, t.TargetType, true
	case t.TargetID:
		return t.SrcID, t.SrcType, true
	}
	return "", record.TypeUnknown, false
}

// ParseRelations decodes the stored JSON-encoded templates.
func ParseRelations(encoded []string) ([]RelationTemplate, error) {
	out := make([]RelationTemplate, 0, len(encoded))
	for i, s := range encoded {
		var t RelationTemplate
		if err := json.Unmarshal([]byte(s), &t); err != nil {
			return nil, fmt.Errorf("relation %d: %w", i, err)
		}
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("relation %d: %w", i, err)
		}
		out = append(out, t)
	}
	return out, nil
}

// EncodeRelations is the inverse of ParseRelations.
func EncodeRelations(templates []RelationTemplate) ([]string, error) {
	out := make([]string, 0, len(templates))
	for i, t := range templates {
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("relation %d: %w", i, err)
		}
		b, err := json.Marshal(t)
		if err != nil {
			return nil, err
		}
		out = append(out, string(b))
	}
	return out, nil
}
