package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/domain/entities/importrule"
	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/domain/entities/record"
)

const parseCheckEvery = 200

// Parser turns one entity rule and the source rows into provisional records.
type Parser struct {
	extractor *Extractor
	stores    record.Stores
	log       *logrus.Entry
}

func NewParser(extractor *Extractor, stores record.Stores, log *logrus.Entry) *Parser {
	if log == nil {
		log = logrusNop()
	}
	return &Parser{extractor: extractor, stores: stores, log: log}
}

// ParseEntities evaluates rule against every row. A row yields a record when
// its conditions, if any, are fulfilled and the type's required fields are
// present. Records carrying an _id are merged over the stored entity.
func (p *Parser) ParseEntities(ctx context.Context, t record.Type, rule importrule.Rule, rows []record.RawRow, warn *Warnings) ([]record.Record, error) {
	temporal := t == record.TypeTemporal
	var out []record.Record

	for i, row := range rows {
		if i%parseCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		fields := record.Fields{}
		hasConditions, fulfilled := false, false
		for _, col := range rule.Columns {
			res, err := p.extractor.Extract(col, row, temporal)
			if err != nil {
				return nil, fmt.Errorf("rule %s row %d: %w", rule.RefID, row.Key, err)
			}
			for k, v := range res {
				if k == record.FieldCondition {
					hasConditions = true
					if b, _ := v.(bool); b {
						fulfilled = true
					}
					continue
				}
				if dr, ok := v.(record.DateRange); ok && temporal {
					flattenDate(fields, dr)
					continue
				}
				fields[k] = v
			}
		}

		if hasConditions && !fulfilled {
			continue
		}
		if !t.HasRequired(fields) {
			continue
		}

		rec := record.Record{Type: t, RefID: rule.RefID, Row: row.Key, Fields: fields}
		if id, ok := fields.ID(); ok {
			merged, err := p.loadExisting(ctx, t, id, fields, row.Key, warn)
			if err != nil {
				return nil, err
			}
			rec.ID = merged.ID
			rec.Fields = merged.Fields
		}
		delete(rec.Fields, record.FieldID)
		out = append(out, rec)
	}
	return out, nil
}

// loadExisting overlays the extracted fields on the stored entity. A missing
// entity is reported and the record continues as a new one.
func (p *Parser) loadExisting(ctx context.Context, t record.Type, id int64, fields record.Fields, row int, warn *Warnings) (record.Record, error) {
	store := p.stores[t]
	if store == nil {
		return record.Record{}, fmt.Errorf("no store for %s", t)
	}
	existing, err := store.LoadUnpopulated(ctx, id)
	if errors.Is(err, record.ErrNotFound) {
		warn.Add("row %d: %s %d not found, importing as new", row, t, id)
		p.log.WithFields(logrus.Fields{"entity_type": t.String(), "row": row, "id": id}).Warn("ingestion: referenced entity not found")
		return record.Record{Fields: fields}, nil
	}
	if err != nil {
		return record.Record{}, fmt.Errorf("load %s %d: %w", t, id, err)
	}
	merged := existing.Fields.Clone()
	if merged == nil {
		merged = record.Fields{}
	}
	merged.Merge(fields)
	return record.Record{ID: id, Fields: merged}, nil
}

func flattenDate(fields record.Fields, dr record.DateRange) {
	if dr.StartDate != "" {
		fields["startDate"] = dr.StartDate
	}
	if dr.EndDate != "" {
		fields["endDate"] = dr.EndDate
	}
	if dr.Label != "" {
		fields[record.FieldLabel] = dr.Label
	}
}
