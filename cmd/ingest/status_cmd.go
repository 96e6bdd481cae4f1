package main

import (
	"context"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var planID uuid.UUID
	var rawID string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the ingestion status of an import plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newIngestionService()
			if err != nil {
				return err
			}
			return withDB(cmd.Context(), func(ctx context.Context) error {
				view, err := svc.LoadStatus(ctx, planID)
				if err != nil {
					return planError(err)
				}
				return writeJSONLine(cmd.OutOrStdout(), view)
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
