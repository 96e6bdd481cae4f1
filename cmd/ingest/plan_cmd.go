package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/domain/aggregates/importplan"
	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/infrastructure/persistence"
	"github.com/stavrosangelis/clericus-neo4j-sub002/pkg/composables"
)

func newPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Manage import plans",
	}
	cmd.AddCommand(newPlanApplyCmd())
	cmd.AddCommand(newPlanResetCmd())
	return cmd
}

func newPlanApplyCmd() *cobra.Command {
	var path string
	var pf planFile

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Create an import plan, its rules and its relation terms from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			built, err := pf.build(time.Now())
			if err != nil {
				return withCode(exitValidation, err)
			}
			return withDB(cmd.Context(), func(ctx context.Context) error {
				plan, err := applyPlan(ctx, built)
				if err != nil {
					return err
				}
				return writeJSONLine(cmd.OutOrStdout(), map[string]any{
					"_id":   plan.ID(),
					"label": plan.Label(),
					"rules": len(built.Rules),
					"terms": len(built.Terms),
				})
			})
		},
	}
	cmd.Flags().StringVarP(&path, "file", "f", "", "Plan YAML file (required)")
	_ = cmd.MarkFlagRequired("file")

	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(path)
		if err != nil {
			return withCode(exitUsage, fmt.Errorf("open plan file: %w", err))
		}
		defer f.Close()
		pf, err = parsePlanFile(f)
		if err != nil {
			return withCode(exitValidation, err)
		}
		return nil
	}
	return cmd
}

func applyPlan(ctx context.Context, built builtPlan) (importplan.ImportPlan, error) {
	plans := persistence.NewImportPlanRepository()
	terms := persistence.NewTermRepository()

	var created importplan.ImportPlan
	err := composables.InTx(ctx, func(ctx context.Context) error {
		for _, t := range built.Terms {
			if _, err := terms.Upsert(ctx, t); err != nil {
				return fmt.Errorf("term %s: %w", t.LabelID, err)
			}
		}
		p, err := plans.Create(ctx, built.Plan)
		if err != nil {
			return err
		}
		for _, r := range built.Rules {
			if _, err := plans.AddRule(ctx, r); err != nil {
				return err
			}
		}
		created = p
		return nil
	})
	if err != nil {
		return importplan.ImportPlan{}, withCode(exitDB, fmt.Errorf("apply plan: %w", err))
	}
	return created, nil
}

func newPlanResetCmd() *cobra.Command {
	var planID uuid.UUID
	var rawID string

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Move a failed plan back to not started",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd.Context(), func(ctx context.Context) error {
				plans := persistence.NewImportPlanRepository()
				if err := plans.Reset(ctx, planID); err != nil {
					return planError(err)
				}
				p, err := plans.GetByID(ctx, planID)
				if err != nil {
					return planError(err)
				}
				return writeJSONLine(cmd.OutOrStdout(), p.View())
			})
		},
	}
	cmd.Flags().StringVar(&rawID, "id", "", "Import plan UUID (required)")
	_ = cmd.MarkFlagRequired("id")

	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		id, err := parsePlanID(rawID)
		if err != nil {
			return err
		}
		planID = id
		return nil
	}
	return cmd
}

func parsePlanID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, withCode(exitUsage, fmt.Errorf("invalid --id %q", raw))
	}
	return id, nil
}
