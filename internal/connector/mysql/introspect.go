package mysql

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/ambigdb/ambigdb/internal/connector"
	"github.com/ambigdb/ambigdb/internal/model"
)

// columnRow holds the result of querying information_schema.columns for MySQL.
type columnRow struct {
	TableName  string `db:"TABLE_NAME"`
	ColumnName string `db:"COLUMN_NAME"`
	DataType   string `db:"DATA_TYPE"`
	IsNullable string `db:"IS_NULLABLE"`
	Position   int    `db:"ORDINAL_POSITION"`
	Extra      string `db:"EXTRA"`
}

// pkRow holds a primary key column mapping.
type pkRow struct {
	TableName  string `db:"TABLE_NAME"`
	ColumnName string `db:"COLUMN_NAME"`
}

// fkRow holds a foreign key relationship.
type fkRow struct {
	ConstraintName   string `db:"CONSTRAINT_NAME"`
	TableName        string `db:"TABLE_NAME"`
	ColumnName       string `db:"COLUMN_NAME"`
	ReferencedTable  string `db:"REFERENCED_TABLE_NAME"`
	ReferencedColumn string `db:"REFERENCED_COLUMN_NAME"`
	DeleteRule       string `db:"DELETE_RULE"`
	UpdateRule       string `db:"UPDATE_RULE"`
}

// IntrospectSchema returns the base tables of the current database ordered by
// name.
func (c *MySQLConnector) IntrospectSchema(ctx context.Context, q sqlx.QueryerContext) (*model.Schema, error) {
	tables, err := c.GetTableNames(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("introspect tables: %w", err)
	}
	return c.introspect(ctx, q, tables, "")
}

// IntrospectTable returns the schema for a single table.
func (c *MySQLConnector) IntrospectTable(ctx context.Context, q sqlx.QueryerContext, tableName string) (*model.TableSchema, error) {
	schema, err := c.introspect(ctx, q, []string{tableName}, tableName)
	if err != nil {
		return nil, err
	}
	if len(schema.Tables[0].Columns) == 0 {
		return nil, fmt.Errorf("table %q not found in database %q", tableName, c.schemaName)
	}
	return &schema.Tables[0], nil
}

func (c *MySQLConnector) introspect(ctx context.Context, q sqlx.QueryerContext, tables []string, only string) (*model.Schema, error) {
	columns, err := c.fetchColumns(ctx, q, only)
	if err != nil {
		return nil, fmt.Errorf("introspect columns: %w", err)
	}
	pks, err := c.fetchPrimaryKeys(ctx, q, only)
	if err != nil {
		return nil, fmt.Errorf("introspect primary keys: %w", err)
	}
	fks, err := c.fetchForeignKeys(ctx, q, only)
	if err != nil {
		return nil, fmt.Errorf("introspect foreign keys: %w", err)
	}

	catalog := make([]connector.CatalogColumn, 0, len(columns))
	for _, col := range columns {
		catalog = append(catalog, connector.CatalogColumn{
			TableName:  col.TableName,
			ColumnName: col.ColumnName,
			DataType:   col.DataType,
			Nullable:   col.IsNullable == "YES",
			Position:   col.Position,
			AutoIncr:   strings.Contains(strings.ToLower(col.Extra), "auto_increment"),
		})
	}

	keys := make([]connector.KeyColumn, 0, len(pks))
	for _, pk := range pks {
		keys = append(keys, connector.KeyColumn{TableName: pk.TableName, ColumnName: pk.ColumnName})
	}

	fkMap := make(map[string][]model.ForeignKey)
	for _, fk := range fks {
		fkMap[fk.TableName] = append(fkMap[fk.TableName], model.ForeignKey{
			Name:             fk.ConstraintName,
			ColumnName:       fk.ColumnName,
			ReferencedTable:  fk.ReferencedTable,
			ReferencedColumn: fk.ReferencedColumn,
			OnDelete:         fk.DeleteRule,
			OnUpdate:         fk.UpdateRule,
		})
	}

	schema := connector.AssembleSchema(tables, catalog, keys, fkMap)
	for i := range schema.Tables {
		var count int64
		query := "SELECT COUNT(*) FROM " + c.QuoteIdentifier(schema.Tables[i].Name)
		if err := sqlx.GetContext(ctx, q, &count, query); err != nil {
			return nil, fmt.Errorf("count rows of %q: %w", schema.Tables[i].Name, err)
		}
		schema.Tables[i].RowCount = &count
	}
	return schema, nil
}

// GetTableNames returns the base table names of the current database.
func (c *MySQLConnector) GetTableNames(ctx context.Context, q sqlx.QueryerContext) ([]string, error) {
	const query = `SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = ? AND TABLE_TYPE = 'BASE TABLE'
		ORDER BY TABLE_NAME`

	var names []string
	if err := sqlx.SelectContext(ctx, q, &names, query, c.schemaName); err != nil {
		return nil, fmt.Errorf("get table names: %w", err)
	}
	return names, nil
}

// --- internal fetch helpers ---

func (c *MySQLConnector) fetchColumns(ctx context.Context, q sqlx.QueryerContext, tableName string) ([]columnRow, error) {
	query := `SELECT
			c.TABLE_NAME,
			c.COLUMN_NAME,
			c.DATA_TYPE,
			c.IS_NULLABLE,
			c.ORDINAL_POSITION,
			c.EXTRA
		FROM INFORMATION_SCHEMA.COLUMNS c
		WHERE c.TABLE_SCHEMA = ?`

	args := []interface{}{c.schemaName}
	if tableName != "" {
		query += ` AND c.TABLE_NAME = ?`
		args = append(args, tableName)
	}
	query += ` ORDER BY c.TABLE_NAME, c.ORDINAL_POSITION`

	var rows []columnRow
	if err := sqlx.SelectContext(ctx, q, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *MySQLConnector) fetchPrimaryKeys(ctx context.Context, q sqlx.QueryerContext, tableName string) ([]pkRow, error) {
	query := `SELECT TABLE_NAME, COLUMN_NAME
		FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
		WHERE TABLE_SCHEMA = ? AND CONSTRAINT_NAME = 'PRIMARY'`

	args := []interface{}{c.schemaName}
	if tableName != "" {
		query += ` AND TABLE_NAME = ?`
		args = append(args, tableName)
	}
	query += ` ORDER BY TABLE_NAME, ORDINAL_POSITION`

	var rows []pkRow
	if err := sqlx.SelectContext(ctx, q, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *MySQLConnector) fetchForeignKeys(ctx context.Context, q sqlx.QueryerContext, tableName string) ([]fkRow, error) {
	query := `SELECT
			kcu.CONSTRAINT_NAME,
			kcu.TABLE_NAME,
			kcu.COLUMN_NAME,
			kcu.REFERENCED_TABLE_NAME,
			kcu.REFERENCED_COLUMN_NAME,
			rc.DELETE_RULE,
			rc.UPDATE_RULE
		FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
		JOIN INFORMATION_SCHEMA.REFERENTIAL_CONSTRAINTS rc
			ON kcu.CONSTRAINT_NAME = rc.CONSTRAINT_NAME
			AND kcu.TABLE_SCHEMA = rc.CONSTRAINT_SCHEMA
		WHERE kcu.TABLE_SCHEMA = ?
			AND kcu.REFERENCED_TABLE_NAME IS NOT NULL`

	args := []interface{}{c.schemaName}
	if tableName != "" {
		query += ` AND kcu.TABLE_NAME = ?`
		args = append(args, tableName)
	}
	query += ` ORDER BY kcu.TABLE_NAME, kcu.CONSTRAINT_NAME, kcu.ORDINAL_POSITION`

	var rows []fkRow
	if err := sqlx.SelectContext(ctx, q, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
