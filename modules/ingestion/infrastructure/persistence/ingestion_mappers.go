package persistence

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/domain/aggregates/importplan"
	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/domain/entities/importrule"
	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/domain/entities/record"
	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/domain/entities/term"
	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/infrastructure/persistence/models"
)

func toDomainImportPlan(m models.ImportPlan) (importplan.ImportPlan, error) {
	s := importplan.Snapshot{
		ID:          m.ID,
		Label:       m.Label,
		FilePath:    m.FilePath,
		Status:      importplan.Status(m.Status),
		Progress:    m.Progress,
		Message:     m.Message,
		StartedAt:   fromTimestamptz(m.StartedAt),
		CompletedAt: fromTimestamptz(m.CompletedAt),
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
	for _, f := range []struct {
		name string
		raw  []byte
		dst  *[]string
	}{
		{"columns", m.Columns, &s.Columns},
		{"relations", m.Relations, &s.Relations},
		{"warnings", m.Warnings, &s.Warnings},
	} {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return importplan.ImportPlan{}, fmt.Errorf("import plan %s %s: %w", m.ID, f.name, err)
		}
	}
	return importplan.Hydrate(s), nil
}

func toDBImportPlan(p importplan.ImportPlan) (models.ImportPlan, error) {
	s := p.Snapshot()
	columns, err := stringsJSON(s.Columns)
	if err != nil {
		return models.ImportPlan{}, err
	}
	relations, err := stringsJSON(s.Relations)
	if err != nil {
		return models.ImportPlan{}, err
	}
	warnings, err := stringsJSON(s.Warnings)
	if err != nil {
		return models.ImportPlan{}, err
	}
	return models.ImportPlan{
		ID:          s.ID,
		Label:       s.Label,
		FilePath:    s.FilePath,
		Columns:     columns,
		Relations:   relations,
		Status:      int16(s.Status),
		Progress:    s.Progress,
		Message:     s.Message,
		StartedAt:   toTimestamptz(s.StartedAt),
		CompletedAt: toTimestamptz(s.CompletedAt),
		Warnings:    warnings,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}, nil
}

// stringsJSON encodes a nil slice as an empty array to satisfy NOT NULL.
func stringsJSON(v []string) ([]byte, error) {
	if v == nil {
		v = []string{}
	}
	return json.Marshal(v)
}

func toDomainImportRule(m models.ImportRule) importrule.ImportRule {
	return importrule.ImportRule{
		ID:           m.ID,
		ImportPlanID: m.ImportPlanID,
		Rule:         json.RawMessage(m.Rule),
		CreatedAt:    m.CreatedAt,
	}
}

func toDomainRecord(m models.Entity) (record.Record, error) {
	t, ok := record.ParseType(m.EntityType)
	if !ok {
		return record.Record{}, fmt.Errorf("entity %d: unknown type %q", m.ID, m.EntityType)
	}
	fields := record.Fields{}
	if len(m.Fields) > 0 {
		if err := json.Unmarshal(m.Fields, &fields); err != nil {
			return record.Record{}, fmt.Errorf("entity %d fields: %w", m.ID, err)
		}
	}
	return record.Record{Type: t, ID: m.ID, Fields: fields}, nil
}

// fieldsJSON drops pipeline-only keys before storage.
func fieldsJSON(f record.Fields) ([]byte, error) {
	out := f.Clone()
	delete(out, record.FieldID)
	delete(out, record.FieldCondition)
	return json.Marshal(out)
}

func toDomainTerm(m models.TaxonomyTerm) term.Term {
	return term.Term{
		ID:             m.ID,
		Label:          m.Label,
		LabelID:        m.LabelID,
		InverseLabel:   m.InverseLabel,
		InverseLabelID: m.InverseLabelID,
	}
}

func toTimestamptz(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func fromTimestamptz(ts pgtype.Timestamptz) time.Time {
	if !ts.Valid {
		return time.Time{}
	}
	return ts.Time
}
