package connector

import "github.com/ambigdb/ambigdb/internal/model"

// CatalogColumn is one row of an information_schema style column listing.
type CatalogColumn struct {
	TableName  string
	ColumnName string
	DataType   string
	Nullable   bool
	Position   int
	AutoIncr   bool
}

// KeyColumn names one primary key member.
type KeyColumn struct {
	TableName  string
	ColumnName string
}

// AssembleSchema groups flat catalog listings into a model.Schema with tables
// in the given order. Columns, key members and foreign keys keep the order of
// their listings.
func AssembleSchema(tables []string, columns []CatalogColumn, pks []KeyColumn, fks map[string][]model.ForeignKey) *model.Schema {
	pkSet := make(map[string]map[string]bool)
	pkCols := make(map[string][]string)
	for _, pk := range pks {
		if pkSet[pk.TableName] == nil {
			pkSet[pk.TableName] = make(map[string]bool)
		}
		pkSet[pk.TableName][pk.ColumnName] = true
		pkCols[pk.TableName] = append(pkCols[pk.TableName], pk.ColumnName)
	}

	colMap := make(map[string][]model.Column)
	for _, col := range columns {
		isPK := pkSet[col.TableName][col.ColumnName]
		colMap[col.TableName] = append(colMap[col.TableName], model.Column{
			Name:            col.ColumnName,
			Position:        col.Position,
			Type:            col.DataType,
			Nullable:        col.Nullable && !isPK,
			IsPrimaryKey:    isPK,
			IsAutoIncrement: col.AutoIncr,
		})
	}

	schema := &model.Schema{Tables: make([]model.TableSchema, 0, len(tables))}
	for _, name := range tables {
		ts := model.TableSchema{
			Name:        name,
			Type:        "table",
			Columns:     colMap[name],
			PrimaryKey:  pkCols[name],
			ForeignKeys: fks[name],
		}
		if ts.Columns == nil {
			ts.Columns = []model.Column{}
		}
		if ts.PrimaryKey == nil {
			ts.PrimaryKey = []string{}
		}
		if ts.ForeignKeys == nil {
			ts.ForeignKeys = []model.ForeignKey{}
		}
		schema.Tables = append(schema.Tables, ts)
	}
	return schema
}
