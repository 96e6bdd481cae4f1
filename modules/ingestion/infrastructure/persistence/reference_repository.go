package persistence

import (
	"context"
	"fmt"
	"sync"

	gerrors "github.com/go-faster/errors"

	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/domain/entities/record"
	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/domain/entities/term"
	"github.com/stavrosangelis/clericus-neo4j-sub002/pkg/composables"
)

// ReferenceRepository writes entity relationships. Terms are read once per
// repository; build a new one to pick up taxonomy changes.
type ReferenceRepository struct {
	terms term.Repository

	mu     sync.Mutex
	cached []term.Term
}

var _ record.ReferenceStore = (*ReferenceRepository)(nil)

func NewReferenceRepository(terms term.Repository) *ReferenceRepository {
	return &ReferenceRepository{terms: terms}
}

func (r *ReferenceRepository) loadTerms(ctx context.Context) ([]term.Term, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cached != nil {
		return r.cached, nil
	}
	terms, err := r.terms.List(ctx)
	if err != nil {
		return nil, err
	}
	if terms == nil {
		terms = []term.Term{}
	}
	r.cached = terms
	return terms, nil
}

// UpdateReference inserts the edge in the term's forward direction. An edge
// that already exists is reported as matched.
func (r *ReferenceRepository) UpdateReference(ctx context.Context, ref record.Reference) (record.Changes, error) {
	terms, err := r.loadTerms(ctx)
	if err != nil {
		return record.Changes{}, err
	}
	o, err := term.Orient(ref, terms)
	if err != nil {
		return record.Changes{}, err
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return record.Changes{}, err
	}

	var srcFound, tgtFound, inserted int64
	err = tx.QueryRow(ctx, `
		WITH src AS (
			SELECT id FROM entities WHERE id = $1 AND entity_type = $4
		), tgt AS (
			SELECT id FROM entities WHERE id = $2 AND entity_type = $5
		), ins AS (
			INSERT INTO entity_references (src_id, target_id, term_id)
			SELECT src.id, tgt.id, $3::bigint FROM src, tgt
			ON CONFLICT DO NOTHING
			RETURNING 1
		)
		SELECT (SELECT count(*) FROM src), (SELECT count(*) FROM tgt), (SELECT count(*) FROM ins)`,
		o.Source.ID, o.Target.ID, o.Term.ID, o.Source.Type.String(), o.Target.Type.String(),
	).Scan(&srcFound, &tgtFound, &inserted)
	if err != nil {
		return record.Changes{}, gerrors.Wrap(err, "insert entity reference")
	}

	switch {
	case srcFound == 0:
		return record.Changes{}, fmt.Errorf("%s %d: %w", o.Source.Type, o.Source.ID, record.ErrNotFound)
	case tgtFound == 0:
		return record.Changes{}, fmt.Errorf("%s %d: %w", o.Target.Type, o.Target.ID, record.ErrNotFound)
	case inserted > 0:
		return record.Changes{Created: 1}, nil
	}
	return record.Changes{Matched: 1}, nil
}
