package persistence

import (
	"context"
	"errors"
	"fmt"

	gerrors "github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/domain/entities/record"
	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/infrastructure/persistence/models"
	"github.com/stavrosangelis/clericus-neo4j-sub002/pkg/composables"
)

// EntityRepository stores the entities of one type in the shared entities table.
type EntityRepository struct {
	t record.Type
}

var _ record.EntityStore = (*EntityRepository)(nil)

func NewEntityRepository(t record.Type) *EntityRepository {
	return &EntityRepository{t: t}
}

// NewEntityStores returns a repository for every entity type.
func NewEntityStores() record.Stores {
	out := make(record.Stores, len(record.Types))
	for _, t := range record.Types {
		out[t] = NewEntityRepository(t)
	}
	return out
}

func (r *EntityRepository) LoadUnpopulated(ctx context.Context, id int64) (record.Record, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return record.Record{}, err
	}
	var m models.Entity
	err = tx.QueryRow(ctx, `
		SELECT id, entity_type, fields
		FROM entities
		WHERE id = $1 AND entity_type = $2`, id, r.t.String(),
	).Scan(&m.ID, &m.EntityType, &m.Fields)
	if errors.Is(err, pgx.ErrNoRows) {
		return record.Record{}, fmt.Errorf("%s %d: %w", r.t, id, record.ErrNotFound)
	}
	if err != nil {
		return record.Record{}, gerrors.Wrap(err, "select entity")
	}
	return toDomainRecord(m)
}

func (r *EntityRepository) Load(ctx context.Context, id int64) (record.Record, error) {
	rec, err := r.LoadUnpopulated(ctx, id)
	if err != nil {
		return record.Record{}, err
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return record.Record{}, err
	}
	rows, err := tx.Query(ctx, `
		SELECT r.target_id, e.entity_type, t.label_id, true
		FROM entity_references r
		JOIN entities e ON e.id = r.target_id
		JOIN taxonomy_terms t ON t.id = r.term_id
		WHERE r.src_id = $1
		UNION ALL
		SELECT r.src_id, e.entity_type, COALESCE(NULLIF(t.inverse_label_id, ''), t.label_id), false
		FROM entity_references r
		JOIN entities e ON e.id = r.src_id
		JOIN taxonomy_terms t ON t.id = r.term_id
		WHERE r.target_id = $1`, id)
	if err != nil {
		return record.Record{}, gerrors.Wrap(err, "select entity references")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rel     record.Related
			relType string
		)
		if err := rows.Scan(&rel.ID, &relType, &rel.TermLabel, &rel.Outgoing); err != nil {
			return record.Record{}, gerrors.Wrap(err, "scan entity reference")
		}
		rel.Type, _ = record.ParseType(relType)
		rec.Related = append(rec.Related, rel)
	}
	if err := rows.Err(); err != nil {
		return record.Record{}, gerrors.Wrap(err, "iterate entity references")
	}
	return rec, nil
}

// Save inserts rec, or updates it when it carries an id. Validation problems
// and unknown ids are reported in the result, not as errors.
func (r *EntityRepository) Save(ctx context.Context, rec record.Record, actorID string) (record.SaveResult, error) {
	if errs := record.ValidateForSave(rec, r.t); len(errs) > 0 {
		return record.SaveResult{Status: false, Data: rec, Errors: errs}, nil
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return record.SaveResult{}, err
	}
	fields, err := fieldsJSON(rec.Fields)
	if err != nil {
		return record.SaveResult{}, fmt.Errorf("encode %s fields: %w", r.t, err)
	}

	var id int64
	if rec.ID > 0 {
		err = tx.QueryRow(ctx, `
			UPDATE entities SET fields = $2, updated_by = $3, updated_at = now()
			WHERE id = $1 AND entity_type = $4
			RETURNING id`, rec.ID, fields, actorID, r.t.String(),
		).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			return record.SaveResult{Status: false, Data: rec, Errors: []string{fmt.Sprintf("%s %d not found", r.t, rec.ID)}}, nil
		}
	} else {
		err = tx.QueryRow(ctx, `
			INSERT INTO entities (entity_type, fields, created_by, updated_by)
			VALUES ($1, $2, $3, $3)
			RETURNING id`, r.t.String(), fields, actorID,
		).Scan(&id)
	}
	if err != nil {
		return record.SaveResult{}, gerrors.Wrap(err, "save entity")
	}

	saved := record.Record{Type: r.t, ID: id, Fields: rec.Fields.Clone()}
	delete(saved.Fields, record.FieldID)
	return record.SaveResult{Status: true, Data: saved}, nil
}
