package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/domain/aggregates/importplan"
	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/services"
)

func newRunCmd() *cobra.Command {
	var planID uuid.UUID
	var rawID string
	var quiet bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Ingest an import plan and print its progress as JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newIngestionService()
			if err != nil {
				return err
			}
			return withDB(cmd.Context(), func(ctx context.Context) error {
				if !quiet {
					unsubscribe := svc.Progress().Subscribe(func(_ context.Context, ev services.ProgressEvent) error {
						// Output errors must not fail the run.
						_ = writeJSONLine(cmd.OutOrStdout(), progressLine(ev))
						return nil
					})
					defer unsubscribe()
				}

				runErr := svc.Run(ctx, planID)
				if runErr != nil && services.IsConfigError(runErr) {
					return planError(runErr)
				}

				view, err := svc.LoadStatus(context.WithoutCancel(ctx), planID)
				if err != nil {
					return planError(err)
				}
				if err := writeJSONLine(cmd.OutOrStdout(), view); err != nil {
					return err
				}
				if view.Status == importplan.StatusFailed {
					return withCode(exitIngestFailed, fmt.Errorf("%s", view.Message))
				}
				if runErr != nil {
					return withCode(exitDB, runErr)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&rawID, "id", "", "Import plan UUID (required)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Print only the final status")
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

type progressOutput struct {
	PlanID   uuid.UUID `json:"_id"`
	Progress *float64  `json:"progress,omitempty"`
	State    string    `json:"state,omitempty"`
	Message  *string   `json:"message,omitempty"`
	Warnings int       `json:"warnings"`
}

func progressLine(ev services.ProgressEvent) progressOutput {
	out := progressOutput{
		PlanID:   ev.PlanID,
		Progress: ev.Progress,
		Message:  ev.Message,
		Warnings: len(ev.Warnings),
	}
	if ev.Status != nil {
		out.State = ev.Status.String()
	}
	return out
}
