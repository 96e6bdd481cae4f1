package persistence

import (
	"context"
	"strings"

	gerrors "github.com/go-faster/errors"

	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/domain/entities/term"
	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/infrastructure/persistence/models"
	"github.com/stavrosangelis/clericus-neo4j-sub002/pkg/composables"
)

type TermRepository struct{}

var _ term.Repository = (*TermRepository)(nil)

func NewTermRepository() *TermRepository {
	return &TermRepository{}
}

func (r *TermRepository) List(ctx context.Context) ([]term.Term, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, `
		SELECT id, label, label_id, inverse_label, inverse_label_id
		FROM taxonomy_terms
		ORDER BY id`)
	if err != nil {
		return nil, gerrors.Wrap(err, "select taxonomy terms")
	}
	defer rows.Close()

	var out []term.Term
	for rows.Next() {
		var m models.TaxonomyTerm
		if err := rows.Scan(&m.ID, &m.Label, &m.LabelID, &m.InverseLabel, &m.InverseLabelID); err != nil {
			return nil, gerrors.Wrap(err, "scan taxonomy term")
		}
		out = append(out, toDomainTerm(m))
	}
	if err := rows.Err(); err != nil {
		return nil, gerrors.Wrap(err, "iterate taxonomy terms")
	}
	return out, nil
}

// Upsert creates the term or refreshes the labels of the one with the same LabelID.
func (r *TermRepository) Upsert(ctx context.Context, t term.Term) (term.Term, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return term.Term{}, err
	}
	t.LabelID = strings.TrimSpace(t.LabelID)
	if t.LabelID == "" {
		return term.Term{}, gerrors.New("taxonomy term label id is required")
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO taxonomy_terms (label, label_id, inverse_label, inverse_label_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (label_id) DO UPDATE SET
			label = EXCLUDED.label,
			inverse_label = EXCLUDED.inverse_label,
			inverse_label_id = EXCLUDED.inverse_label_id
		RETURNING id`,
		t.Label, t.LabelID, t.InverseLabel, t.InverseLabelID,
	).Scan(&t.ID)
	if err != nil {
		return term.Term{}, gerrors.Wrap(err, "upsert taxonomy term")
	}
	return t, nil
}
