package persistence

import (
	"context"
	_ "embed"

	gerrors "github.com/go-faster/errors"

	"github.com/stavrosangelis/clericus-neo4j-sub002/pkg/composables"
)

//go:embed schema/ingestion-schema.sql
var schemaSQL string

// Migrate creates the ingestion tables when they are missing. It is safe to
// run repeatedly.
func Migrate(ctx context.Context) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, schemaSQL); err != nil {
		return gerrors.Wrap(err, "apply ingestion schema")
	}
	return nil
}
