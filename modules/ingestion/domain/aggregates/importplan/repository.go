package importplan

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/domain/entities/importrule"
)

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (ImportPlan, error)
	Create(ctx context.Context, p ImportPlan) (ImportPlan, error)

	// Rules returns the plan's rules ordered by creation time.
	Rules(ctx context.Context, planID uuid.UUID) ([]importrule.ImportRule, error)
	AddRule(ctx context.Context, r importrule.ImportRule) (importrule.ImportRule, error)

	// TryStart atomically moves a NotStarted plan to Ongoing. When the plan is
	// in any other status it reports that status and false, changing nothing.
	TryStart(ctx context.Context, id uuid.UUID, startedAt time.Time) (Status, bool, error)
	UpdateIngestionStatus(ctx context.Context, id uuid.UUID, u StatusUpdate) error
	// MarkStale fails every Ongoing plan started before startedBefore.
	MarkStale(ctx context.Context, startedBefore time.Time, message string) (int, error)
	// Reset moves a Failed plan back to NotStarted.
	Reset(ctx context.Context, id uuid.UUID) error
}
