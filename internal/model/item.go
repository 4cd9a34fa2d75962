package model

import (
	"encoding/json"
	"fmt"
)

// ItemKind says which structural level a DBItem anchors to.
type ItemKind int

const (
	ItemTable ItemKind = iota
	ItemColumn
	ItemValue
)

func (k ItemKind) String() string {
	switch k {
	case ItemTable:
		return "table"
	case ItemColumn:
		return "column"
	case ItemValue:
		return "value"
	default:
		return fmt.Sprintf("ItemKind(%d)", int(k))
	}
}

// DBItem is a located structural anchor: a table, a column of a table, or a
// value of a column. Fields are unexported so that the kind and the populated
// fields cannot disagree.
type DBItem struct {
	kind   ItemKind
	table  string
	column string
	value  interface{}
}

// TableItem anchors a whole table.
func TableItem(table string) DBItem {
	return DBItem{kind: ItemTable, table: table}
}

// ColumnItem anchors a column of a table.
func ColumnItem(table, column string) DBItem {
	return DBItem{kind: ItemColumn, table: table, column: column}
}

// ValueItem anchors a single value of a column. Byte slices are stored as
// strings.
func ValueItem(table, column string, value interface{}) DBItem {
	return DBItem{kind: ItemValue, table: table, column: column, value: NormalizeValue(value)}
}

// WithValue returns a value item for the same column. It panics when called on
// a table item, which has no column to hold the value.
func (i DBItem) WithValue(v interface{}) DBItem {
	if i.kind == ItemTable {
		panic("model: WithValue on table item " + i.table)
	}
	return ValueItem(i.table, i.column, v)
}

func (i DBItem) Kind() ItemKind     { return i.kind }
func (i DBItem) Table() string      { return i.table }
func (i DBItem) Column() string     { return i.column }
func (i DBItem) Value() interface{} { return i.value }
func (i DBItem) IsZero() bool       { return i.table == "" }

// Name returns the most specific identifier of the anchor: the value text,
// the column name, or the table name.
func (i DBItem) Name() string {
	switch i.kind {
	case ItemValue:
		return ValueString(i.value)
	case ItemColumn:
		return i.column
	default:
		return i.table
	}
}

func (i DBItem) String() string {
	switch i.kind {
	case ItemValue:
		return fmt.Sprintf("%s.%s=%q", i.table, i.column, ValueString(i.value))
	case ItemColumn:
		return i.table + "." + i.column
	default:
		return i.table
	}
}

type dbItemJSON struct {
	Kind       string      `json:"kind"`
	TableName  string      `json:"table_name"`
	ColumnName *string     `json:"column_name"`
	Value      interface{} `json:"value"`
}

// MarshalJSON renders {"kind", "table_name", "column_name", "value"}; absent
// fields are null.
func (i DBItem) MarshalJSON() ([]byte, error) {
	out := dbItemJSON{Kind: i.kind.String(), TableName: i.table}
	if i.kind != ItemTable {
		col := i.column
		out.ColumnName = &col
	}
	if i.kind == ItemValue {
		out.Value = i.value
	}
	return json.Marshal(out)
}

// UnmarshalJSON derives the kind from the populated fields: a value makes a
// value item, a column a column item, otherwise a table item.
func (i *DBItem) UnmarshalJSON(data []byte) error {
	var in dbItemJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch {
	case in.Value != nil:
		col := ""
		if in.ColumnName != nil {
			col = *in.ColumnName
		}
		*i = ValueItem(in.TableName, col, in.Value)
	case in.ColumnName != nil && *in.ColumnName != "":
		*i = ColumnItem(in.TableName, *in.ColumnName)
	default:
		*i = TableItem(in.TableName)
	}
	return nil
}

// NormalizeValue converts driver values into comparable Go values.
func NormalizeValue(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// ValueString renders a database value as text; NULL renders as "".
func ValueString(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

// IsEmptyValue reports whether a value is NULL or an empty string.
func IsEmptyValue(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case []byte:
		return len(x) == 0
	default:
		return false
	}
}
