package database

import (
	"context"
	_ "embed"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// Bootstrap creates the ledger, catalog and staging tables if they do not
// exist and registers the new-service placeholder. It never alters existing
// tables.
func Bootstrap(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("bootstrap schema: %w", err)
	}
	return nil
}
