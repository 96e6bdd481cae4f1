package persistence

import (
	"context"
	"errors"
	"time"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/domain/aggregates/importplan"
	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/domain/entities/importrule"
	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/infrastructure/persistence/models"
	"github.com/stavrosangelis/clericus-neo4j-sub002/pkg/composables"
)

const foreignKeyViolation = "23503"

const selectImportPlanSQL = `
	SELECT id, label, file_path, columns, relations,
		ingestion_status, ingestion_progress, ingestion_message,
		ingestion_started_at, ingestion_completed_at, ingestion_warnings,
		created_at, updated_at
	FROM import_plans`

type ImportPlanRepository struct{}

var _ importplan.Repository = (*ImportPlanRepository)(nil)

func NewImportPlanRepository() importplan.Repository {
	return &ImportPlanRepository{}
}

func (r *ImportPlanRepository) GetByID(ctx context.Context, id uuid.UUID) (importplan.ImportPlan, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return importplan.ImportPlan{}, err
	}
	return scanImportPlan(tx.QueryRow(ctx, selectImportPlanSQL+` WHERE id = $1`, id))
}

func scanImportPlan(row pgx.Row) (importplan.ImportPlan, error) {
	var m models.ImportPlan
	if err := row.Scan(m.Dest()...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return importplan.ImportPlan{}, importplan.ErrNotFound
		}
		return importplan.ImportPlan{}, gerrors.Wrap(err, "scan import plan")
	}
	return toDomainImportPlan(m)
}

func (r *ImportPlanRepository) Create(ctx context.Context, p importplan.ImportPlan) (importplan.ImportPlan, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return importplan.ImportPlan{}, err
	}
	m, err := toDBImportPlan(p)
	if err != nil {
		return importplan.ImportPlan{}, err
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO import_plans (
			id, label, file_path, columns, relations,
			ingestion_status, ingestion_progress, ingestion_message,
			ingestion_started_at, ingestion_completed_at, ingestion_warnings
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`,
		m.ID, m.Label, m.FilePath, m.Columns, m.Relations,
		m.Status, m.Progress, m.Message,
		m.StartedAt, m.CompletedAt, m.Warnings,
	)
	if err := row.Scan(&m.CreatedAt, &m.UpdatedAt); err != nil {
		return importplan.ImportPlan{}, gerrors.Wrap(err, "insert import plan")
	}
	return toDomainImportPlan(m)
}

func (r *ImportPlanRepository) Rules(ctx context.Context, planID uuid.UUID) ([]importrule.ImportRule, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, `
		SELECT id, import_plan_id, rule, created_at
		FROM import_rules
		WHERE import_plan_id = $1
		ORDER BY created_at, id`, planID)
	if err != nil {
		return nil, gerrors.Wrap(err, "select import rules")
	}
	defer rows.Close()

	var out []importrule.ImportRule
	for rows.Next() {
		var m models.ImportRule
		if err := rows.Scan(&m.ID, &m.ImportPlanID, &m.Rule, &m.CreatedAt); err != nil {
			return nil, gerrors.Wrap(err, "scan import rule")
		}
		out = append(out, toDomainImportRule(m))
	}
	if err := rows.Err(); err != nil {
		return nil, gerrors.Wrap(err, "iterate import rules")
	}
	return out, nil
}

func (r *ImportPlanRepository) AddRule(ctx context.Context, rule importrule.ImportRule) (importrule.ImportRule, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return importrule.ImportRule{}, err
	}
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now()
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO import_rules (id, import_plan_id, rule, created_at)
		VALUES ($1, $2, $3, $4)`,
		rule.ID, rule.ImportPlanID, []byte(rule.Rule), rule.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return importrule.ImportRule{}, importplan.ErrNotFound
		}
		return importrule.ImportRule{}, gerrors.Wrap(err, "insert import rule")
	}
	return rule, nil
}

// TryStart is a single conditional update, so of two concurrent callers
// exactly one sees the row change.
func (r *ImportPlanRepository) TryStart(ctx context.Context, id uuid.UUID, startedAt time.Time) (importplan.Status, bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, false, err
	}
	var status int16
	err = tx.QueryRow(ctx, `
		UPDATE import_plans SET
			ingestion_status = $3,
			ingestion_progress = 0,
			ingestion_message = '',
			ingestion_started_at = $2,
			ingestion_completed_at = NULL,
			ingestion_warnings = '[]',
			updated_at = now()
		WHERE id = $1 AND ingestion_status = $4
		RETURNING ingestion_status`,
		id, startedAt, int16(importplan.StatusOngoing), int16(importplan.StatusNotStarted),
	).Scan(&status)
	if err == nil {
		return importplan.Status(status), true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, gerrors.Wrap(err, "start import plan")
	}

	err = tx.QueryRow(ctx, `SELECT ingestion_status FROM import_plans WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, importplan.ErrNotFound
	}
	if err != nil {
		return 0, false, gerrors.Wrap(err, "select import plan status")
	}
	return importplan.Status(status), false, nil
}

func (r *ImportPlanRepository) UpdateIngestionStatus(ctx context.Context, id uuid.UUID, u importplan.StatusUpdate) error {
	return r.modify(ctx, id, func(p importplan.ImportPlan) (importplan.ImportPlan, error) {
		return p.Apply(u)
	})
}

func (r *ImportPlanRepository) Reset(ctx context.Context, id uuid.UUID) error {
	return r.modify(ctx, id, func(p importplan.ImportPlan) (importplan.ImportPlan, error) {
		return p.Reset()
	})
}

// modify locks the plan row, applies fn and writes the status columns back.
func (r *ImportPlanRepository) modify(ctx context.Context, id uuid.UUID, fn func(importplan.ImportPlan) (importplan.ImportPlan, error)) error {
	return composables.InTx(ctx, func(ctx context.Context) error {
		tx, err := composables.UseTx(ctx)
		if err != nil {
			return err
		}
		p, err := scanImportPlan(tx.QueryRow(ctx, selectImportPlanSQL+` WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		next, err := fn(p)
		if err != nil {
			return err
		}
		m, err := toDBImportPlan(next)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			UPDATE import_plans SET
				ingestion_status = $2,
				ingestion_progress = $3,
				ingestion_message = $4,
				ingestion_started_at = $5,
				ingestion_completed_at = $6,
				ingestion_warnings = $7,
				updated_at = now()
			WHERE id = $1`,
			m.ID, m.Status, m.Progress, m.Message, m.StartedAt, m.CompletedAt, m.Warnings,
		)
		if err != nil {
			return gerrors.Wrap(err, "update import plan status")
		}
		return nil
	})
}

func (r *ImportPlanRepository) MarkStale(ctx context.Context, startedBefore time.Time, message string) (int, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}
	tag, err := tx.Exec(ctx, `
		UPDATE import_plans SET
			ingestion_status = $3,
			ingestion_message = $2,
			updated_at = now()
		WHERE ingestion_status = $4 AND ingestion_started_at < $1`,
		startedBefore, message, int16(importplan.StatusFailed), int16(importplan.StatusOngoing),
	)
	if err != nil {
		return 0, gerrors.Wrap(err, "mark stale import plans")
	}
	return int(tag.RowsAffected()), nil
}
