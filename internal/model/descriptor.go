package model

import "strings"

// Wildcard is the name of the synthetic table and column at index 0.
const Wildcard = "*"

// ColumnType is the coarse semantic type of a column, inferred from its
// declared storage type.
type ColumnType string

const (
	TypeText    ColumnType = "text"
	TypeNumber  ColumnType = "number"
	TypeTime    ColumnType = "time"
	TypeBoolean ColumnType = "boolean"
	TypeBlob    ColumnType = "blob"
	TypeOther   ColumnType = "others"
)

// ColumnRef locates a column by owning table index and original name.
type ColumnRef struct {
	Table int    `json:"table"`
	Name  string `json:"name"`
}

// ForeignKeyPair links a column index to the column index it references.
type ForeignKeyPair struct {
	Column int `json:"column"`
	Ref    int `json:"ref"`
}

// SchemaDescriptor is a normalized, index-based snapshot of a database
// schema. Index 0 of Tables and Columns is the wildcard; every other index is
// stable for the lifetime of the descriptor. Descriptors are never mutated
// after they are built.
type SchemaDescriptor struct {
	DBID        string           `json:"db_id"`
	Tables      []string         `json:"table_names_original"`
	Columns     []ColumnRef      `json:"column_names_original"`
	ColumnTypes []ColumnType     `json:"column_types"`
	PrimaryKeys []int            `json:"primary_keys"`
	ForeignKeys []ForeignKeyPair `json:"foreign_keys"`
}

// RealTables returns the indices of all non-wildcard tables in catalog order.
func (d *SchemaDescriptor) RealTables() []int {
	out := make([]int, 0, len(d.Tables))
	for i := 1; i < len(d.Tables); i++ {
		out = append(out, i)
	}
	return out
}

// TableIndex returns the index of the named table, or -1. The lookup is exact
// first, then case-insensitive.
func (d *SchemaDescriptor) TableIndex(name string) int {
	for i := 1; i < len(d.Tables); i++ {
		if d.Tables[i] == name {
			return i
		}
	}
	for i := 1; i < len(d.Tables); i++ {
		if strings.EqualFold(d.Tables[i], name) {
			return i
		}
	}
	return -1
}

// ColumnIndex returns the index of column in table, or -1.
func (d *SchemaDescriptor) ColumnIndex(table int, column string) int {
	for i := 1; i < len(d.Columns); i++ {
		if d.Columns[i].Table == table && d.Columns[i].Name == column {
			return i
		}
	}
	for i := 1; i < len(d.Columns); i++ {
		if d.Columns[i].Table == table && strings.EqualFold(d.Columns[i].Name, column) {
			return i
		}
	}
	return -1
}

// ColumnsOf returns the column indices of a table in declaration order.
func (d *SchemaDescriptor) ColumnsOf(table int) []int {
	var out []int
	for i := 1; i < len(d.Columns); i++ {
		if d.Columns[i].Table == table {
			out = append(out, i)
		}
	}
	return out
}

// TableName returns the name of table index t.
func (d *SchemaDescriptor) TableName(t int) string {
	if t < 0 || t >= len(d.Tables) {
		return ""
	}
	return d.Tables[t]
}

// TableOf returns the owning table index of column c.
func (d *SchemaDescriptor) TableOf(c int) int {
	if c < 0 || c >= len(d.Columns) {
		return -1
	}
	return d.Columns[c].Table
}

// ColumnName returns the original name of column c.
func (d *SchemaDescriptor) ColumnName(c int) string {
	if c < 0 || c >= len(d.Columns) {
		return ""
	}
	return d.Columns[c].Name
}

// ColumnType returns the inferred type of column c.
func (d *SchemaDescriptor) ColumnType(c int) ColumnType {
	if c < 0 || c >= len(d.ColumnTypes) {
		return TypeOther
	}
	return d.ColumnTypes[c]
}

// IsPrimaryKey reports whether column c is flagged as a primary key.
func (d *SchemaDescriptor) IsPrimaryKey(c int) bool {
	for _, pk := range d.PrimaryKeys {
		if pk == c {
			return true
		}
	}
	return false
}

// PrimaryKeyOf returns the primary key column indices of a table.
func (d *SchemaDescriptor) PrimaryKeyOf(table int) []int {
	var out []int
	for _, pk := range d.PrimaryKeys {
		if d.TableOf(pk) == table {
			out = append(out, pk)
		}
	}
	return out
}

// ForeignKeysOf returns the foreign key pairs whose source column belongs to
// table, in declaration order.
func (d *SchemaDescriptor) ForeignKeysOf(table int) []ForeignKeyPair {
	var out []ForeignKeyPair
	for _, fk := range d.ForeignKeys {
		if d.TableOf(fk.Column) == table {
			out = append(out, fk)
		}
	}
	return out
}
