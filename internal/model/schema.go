package model

// Schema is the raw catalog of a candidate database as read by a connector.
// Tables appear in catalog order.
type Schema struct {
	Tables []TableSchema `json:"tables"`
}

// TableSchema describes the structure of a single table.
type TableSchema struct {
	Name        string       `json:"name"`
	Type        string       `json:"type"` // "table" or "view"
	Columns     []Column     `json:"columns"`
	PrimaryKey  []string     `json:"primary_key"`
	ForeignKeys []ForeignKey `json:"foreign_keys"`
	RowCount    *int64       `json:"row_count,omitempty"`
}

// Column describes a single column within a table.
type Column struct {
	Name            string `json:"name"`
	Position        int    `json:"position"`
	Type            string `json:"db_type"`
	Nullable        bool   `json:"nullable"`
	IsPrimaryKey    bool   `json:"is_primary_key"`
	IsAutoIncrement bool   `json:"is_auto_increment"`
}

// ForeignKey describes a foreign key declaration as found in the catalog.
// ReferencedColumn is empty when the declaration references the parent's
// primary key implicitly.
type ForeignKey struct {
	Name             string `json:"name"`
	ColumnName       string `json:"column_name"`
	ReferencedTable  string `json:"referenced_table"`
	ReferencedColumn string `json:"referenced_column"`
	OnDelete         string `json:"on_delete"`
	OnUpdate         string `json:"on_update"`
}

// Table returns the table with the given name, or nil.
func (s *Schema) Table(name string) *TableSchema {
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return &s.Tables[i]
		}
	}
	return nil
}
