package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stavrosangelis/clericus-neo4j-sub002/modules/ingestion/infrastructure/persistence"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the ingestion tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd.Context(), func(ctx context.Context) error {
				if err := persistence.Migrate(ctx); err != nil {
					return withCode(exitDB, fmt.Errorf("migrate: %w", err))
				}
				return writeJSONLine(cmd.OutOrStdout(), map[string]any{"migrated": true})
			})
		},
	}
}
