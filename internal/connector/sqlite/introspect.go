package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/ambigdb/ambigdb/internal/model"
)

// tableInfoRow holds a row from PRAGMA table_info().
type tableInfoRow struct {
	CID     int     `db:"cid"`
	Name    string  `db:"name"`
	Type    string  `db:"type"`
	NotNull int     `db:"notnull"`
	Default *string `db:"dflt_value"`
	PK      int     `db:"pk"`
}

// foreignKeyRow holds a row from PRAGMA foreign_key_list(). To is NULL when
// the declaration references the parent's primary key implicitly.
type foreignKeyRow struct {
	ID       int            `db:"id"`
	Seq      int            `db:"seq"`
	Table    string         `db:"table"`
	From     string         `db:"from"`
	To       sql.NullString `db:"to"`
	OnUpdate string         `db:"on_update"`
	OnDelete string         `db:"on_delete"`
	Match    string         `db:"match"`
}

type masterRow struct {
	Name string         `db:"name"`
	SQL  sql.NullString `db:"sql"`
}

// IntrospectSchema returns every user table of the database in catalog
// (creation) order. Internal sqlite_* tables and views are skipped.
func (c *SQLiteConnector) IntrospectSchema(ctx context.Context, q sqlx.QueryerContext) (*model.Schema, error) {
	const query = `SELECT name, sql FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY rowid`

	var rows []masterRow
	if err := sqlx.SelectContext(ctx, q, &rows, query); err != nil {
		return nil, fmt.Errorf("introspect schema: %w", err)
	}

	schema := &model.Schema{Tables: make([]model.TableSchema, 0, len(rows))}
	for _, row := range rows {
		ts, err := c.introspectTable(ctx, q, row)
		if err != nil {
			return nil, fmt.Errorf("introspect table %q: %w", row.Name, err)
		}
		schema.Tables = append(schema.Tables, *ts)
	}
	return schema, nil
}

// IntrospectTable returns the schema for a single table.
func (c *SQLiteConnector) IntrospectTable(ctx context.Context, q sqlx.QueryerContext, tableName string) (*model.TableSchema, error) {
	var row masterRow
	err := sqlx.GetContext(ctx, q, &row,
		`SELECT name, sql FROM sqlite_master WHERE type = 'table' AND name = ?`, tableName)
	if err != nil {
		return nil, fmt.Errorf("table %q not found: %w", tableName, err)
	}
	return c.introspectTable(ctx, q, row)
}

func (c *SQLiteConnector) introspectTable(ctx context.Context, q sqlx.QueryerContext, master masterRow) (*model.TableSchema, error) {
	tableName := master.Name

	var columns []tableInfoRow
	pragma := fmt.Sprintf("PRAGMA table_info(%s)", c.QuoteIdentifier(tableName))
	if err := sqlx.SelectContext(ctx, q, &columns, pragma); err != nil {
		return nil, fmt.Errorf("table_info for %q: %w", tableName, err)
	}

	// table_info reports composite key members with their 1-based position
	// in the key.
	pkOrder := map[string]int{}
	for _, col := range columns {
		if col.PK > 0 {
			pkOrder[col.Name] = col.PK
		}
	}
	pkCols := make([]string, 0, len(pkOrder))
	for name := range pkOrder {
		pkCols = append(pkCols, name)
	}
	sort.Slice(pkCols, func(i, j int) bool { return pkOrder[pkCols[i]] < pkOrder[pkCols[j]] })

	rowidAlias := isRowidAlias(master.SQL.String, columns, pkCols)

	modelColumns := make([]model.Column, 0, len(columns))
	for _, col := range columns {
		isPK := col.PK > 0
		modelColumns = append(modelColumns, model.Column{
			Name:            col.Name,
			Position:        col.CID + 1,
			Type:            col.Type,
			Nullable:        col.NotNull == 0 && !isPK,
			IsPrimaryKey:    isPK,
			IsAutoIncrement: isPK && rowidAlias,
		})
	}

	var fkRows []foreignKeyRow
	fkPragma := fmt.Sprintf("PRAGMA foreign_key_list(%s)", c.QuoteIdentifier(tableName))
	if err := sqlx.SelectContext(ctx, q, &fkRows, fkPragma); err != nil {
		return nil, fmt.Errorf("foreign_key_list for %q: %w", tableName, err)
	}

	// SQLite numbers constraints from the last declared one; restore
	// declaration order.
	sort.SliceStable(fkRows, func(i, j int) bool {
		if fkRows[i].ID != fkRows[j].ID {
			return fkRows[i].ID > fkRows[j].ID
		}
		return fkRows[i].Seq < fkRows[j].Seq
	})

	foreignKeys := make([]model.ForeignKey, 0, len(fkRows))
	for _, fk := range fkRows {
		foreignKeys = append(foreignKeys, model.ForeignKey{
			Name:             fmt.Sprintf("fk_%s_%s", tableName, fk.From),
			ColumnName:       fk.From,
			ReferencedTable:  fk.Table,
			ReferencedColumn: fk.To.String,
			OnDelete:         fk.OnDelete,
			OnUpdate:         fk.OnUpdate,
		})
	}

	var count int64
	countQuery := "SELECT COUNT(*) FROM " + c.QuoteIdentifier(tableName)
	if err := sqlx.GetContext(ctx, q, &count, countQuery); err != nil {
		return nil, fmt.Errorf("count rows of %q: %w", tableName, err)
	}

	return &model.TableSchema{
		Name:        tableName,
		Type:        "table",
		Columns:     modelColumns,
		PrimaryKey:  pkCols,
		ForeignKeys: foreignKeys,
		RowCount:    &count,
	}, nil
}

// GetTableNames returns all user table names in catalog order.
func (c *SQLiteConnector) GetTableNames(ctx context.Context, q sqlx.QueryerContext) ([]string, error) {
	const query = `SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY rowid`

	var names []string
	if err := sqlx.SelectContext(ctx, q, &names, query); err != nil {
		return nil, fmt.Errorf("get table names: %w", err)
	}
	return names, nil
}

// isRowidAlias reports whether the single primary key column is declared
// INTEGER PRIMARY KEY, which makes it an alias for the auto-assigned rowid.
func isRowidAlias(createSQL string, columns []tableInfoRow, pkCols []string) bool {
	if len(pkCols) != 1 {
		return false
	}
	for _, col := range columns {
		if col.Name == pkCols[0] {
			if !strings.EqualFold(strings.TrimSpace(col.Type), "INTEGER") {
				return false
			}
			break
		}
	}
	return !strings.Contains(strings.ToUpper(createSQL), "WITHOUT ROWID")
}
