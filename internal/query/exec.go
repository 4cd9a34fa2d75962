package query

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ambigdb/ambigdb/internal/failure"
	"github.com/ambigdb/ambigdb/internal/model"
)

// ExecuteStatements runs stmts in order inside one transaction. The first
// failing statement rolls the transaction back and is reported by position.
func ExecuteStatements(ctx context.Context, db *sqlx.DB, stmts []string) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("statement %d of %d: %w", i+1, len(stmts), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// CountColumns reports a structural failure for the first table with fewer
// than min columns. A min of zero or less disables the check.
func CountColumns(desc *model.SchemaDescriptor, min int) error {
	if min <= 0 {
		return nil
	}
	for _, t := range desc.RealTables() {
		if n := len(desc.ColumnsOf(t)); n < min {
			return failure.Structural("schema", "table %s has %d columns, need at least %d",
				desc.TableName(t), n, min)
		}
	}
	return nil
}
