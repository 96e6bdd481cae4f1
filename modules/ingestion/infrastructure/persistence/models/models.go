package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type ImportPlan struct {
	ID          uuid.UUID
	Label       string
	FilePath    string
	Columns     []byte
	Relations   []byte
	Status      int16
	Progress    float64
	Message     string
	StartedAt   pgtype.Timestamptz
	CompletedAt pgtype.Timestamptz
	Warnings    []byte
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Dest lists scan targets in the column order of the plan select.
func (p *ImportPlan) Dest() []any {
	return []any{
		&p.ID, &p.Label, &p.FilePath, &p.Columns, &p.Relations,
		&p.Status, &p.Progress, &p.Message, &p.StartedAt, &p.CompletedAt,
		&p.Warnings, &p.CreatedAt, &p.UpdatedAt,
	}
}

type ImportRule struct {
	ID           uuid.UUID
	ImportPlanID uuid.UUID
	Rule         []byte
	CreatedAt    time.Time
}

type Entity struct {
	ID         int64
	EntityType string
	Fields     []byte
}

type TaxonomyTerm struct {
	ID             int64
	Label          string
	LabelID        string
	InverseLabel   string
	InverseLabelID string
}
