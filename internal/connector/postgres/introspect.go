package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/ambigdb/ambigdb/internal/connector"
	"github.com/ambigdb/ambigdb/internal/model"
)

// columnRow holds the result of querying information_schema.columns.
type columnRow struct {
	TableName  string  `db:"table_name"`
	ColumnName string  `db:"column_name"`
	DataType   string  `db:"data_type"`
	IsNullable string  `db:"is_nullable"`
	Default    *string `db:"column_default"`
	Position   int     `db:"ordinal_position"`
}

// pkRow holds a primary key column mapping.
type pkRow struct {
	TableName  string `db:"table_name"`
	ColumnName string `db:"column_name"`
}

// fkRow holds a foreign key relationship.
type fkRow struct {
	ConstraintName   string `db:"constraint_name"`
	TableName        string `db:"table_name"`
	ColumnName       string `db:"column_name"`
	ReferencedTable  string `db:"referenced_table"`
	ReferencedColumn string `db:"referenced_column"`
	DeleteRule       string `db:"delete_rule"`
	UpdateRule       string `db:"update_rule"`
}

// IntrospectSchema returns the base tables of the configured schema ordered
// by name.
func (c *PostgresConnector) IntrospectSchema(ctx context.Context, q sqlx.QueryerContext) (*model.Schema, error) {
	tables, err := c.GetTableNames(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("introspect tables: %w", err)
	}
	return c.introspect(ctx, q, tables, "")
}

// IntrospectTable returns the schema for a single table.
func (c *PostgresConnector) IntrospectTable(ctx context.Context, q sqlx.QueryerContext, tableName string) (*model.TableSchema, error) {
	schema, err := c.introspect(ctx, q, []string{tableName}, tableName)
	if err != nil {
		return nil, err
	}
	if len(schema.Tables[0].Columns) == 0 {
		return nil, fmt.Errorf("table %q not found in schema %q", tableName, c.schemaName)
	}
	return &schema.Tables[0], nil
}

func (c *PostgresConnector) introspect(ctx context.Context, q sqlx.QueryerContext, tables []string, only string) (*model.Schema, error) {
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
			AutoIncr:   col.Default != nil && strings.Contains(*col.Default, "nextval"),
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
		query := "SELECT COUNT(*) FROM " + c.QuoteIdentifier(c.schemaName) + "." + c.QuoteIdentifier(schema.Tables[i].Name)
		if err := sqlx.GetContext(ctx, q, &count, query); err != nil {
			return nil, fmt.Errorf("count rows of %q: %w", schema.Tables[i].Name, err)
		}
		schema.Tables[i].RowCount = &count
	}
	return schema, nil
}

// GetTableNames returns the base table names of the configured schema.
func (c *PostgresConnector) GetTableNames(ctx context.Context, q sqlx.QueryerContext) ([]string, error) {
	const query = `SELECT table_name FROM information_schema.tables
		WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		ORDER BY table_name`

	var names []string
	if err := sqlx.SelectContext(ctx, q, &names, query, c.schemaName); err != nil {
		return nil, fmt.Errorf("get table names: %w", err)
	}
	return names, nil
}

// --- internal fetch helpers ---

func (c *PostgresConnector) fetchColumns(ctx context.Context, q sqlx.QueryerContext, tableName string) ([]columnRow, error) {
	query := `SELECT
			c.table_name,
			c.column_name,
			c.data_type,
			c.is_nullable,
			c.column_default,
			c.ordinal_position
		FROM information_schema.columns c
		WHERE c.table_schema = $1`

	args := []interface{}{c.schemaName}
	if tableName != "" {
		query += ` AND c.table_name = $2`
		args = append(args, tableName)
	}
	query += ` ORDER BY c.table_name, c.ordinal_position`

	var rows []columnRow
	if err := sqlx.SelectContext(ctx, q, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *PostgresConnector) fetchPrimaryKeys(ctx context.Context, q sqlx.QueryerContext, tableName string) ([]pkRow, error) {
	query := `SELECT kcu.table_name, kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY'
			AND tc.table_schema = $1`

	args := []interface{}{c.schemaName}
	if tableName != "" {
		query += ` AND tc.table_name = $2`
		args = append(args, tableName)
	}
	query += ` ORDER BY kcu.table_name, kcu.ordinal_position`

	var rows []pkRow
	if err := sqlx.SelectContext(ctx, q, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *PostgresConnector) fetchForeignKeys(ctx context.Context, q sqlx.QueryerContext, tableName string) ([]fkRow, error) {
	// key_column_usage.position_in_unique_constraint pairs each referencing
	// column with its referenced column for composite keys.
	query := `SELECT
			tc.constraint_name,
			tc.table_name,
			kcu.column_name,
			pk.table_name AS referenced_table,
			pk.column_name AS referenced_column,
			rc.delete_rule,
			rc.update_rule
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.referential_constraints rc
			ON tc.constraint_name = rc.constraint_name
			AND tc.table_schema = rc.constraint_schema
		JOIN information_schema.key_column_usage pk
			ON rc.unique_constraint_name = pk.constraint_name
			AND rc.unique_constraint_schema = pk.table_schema
			AND kcu.position_in_unique_constraint = pk.ordinal_position
		WHERE tc.constraint_type = 'FOREIGN KEY'
			AND tc.table_schema = $1`

	args := []interface{}{c.schemaName}
	if tableName != "" {
		query += ` AND tc.table_name = $2`
		args = append(args, tableName)
	}
	query += ` ORDER BY tc.table_name, tc.constraint_name, kcu.ordinal_position`

	var rows []fkRow
	if err := sqlx.SelectContext(ctx, q, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
