// Package schema turns a database catalog into an index-based
// SchemaDescriptor and compares descriptors.
package schema

import (
	"context"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/ambigdb/ambigdb/internal/failure"
	"github.com/ambigdb/ambigdb/internal/model"
)

// Reader reads the raw catalog of a database through q.
type Reader interface {
	IntrospectSchema(ctx context.Context, q sqlx.QueryerContext) (*model.Schema, error)
}

// Introspect reads the catalog through r and builds its descriptor. Only a
// catalog read failure is an error; unresolvable foreign keys are logged at
// debug level and dropped.
func Introspect(ctx context.Context, r Reader, q sqlx.QueryerContext, dbID string, logger *slog.Logger) (*model.SchemaDescriptor, error) {
	catalog, err := r.IntrospectSchema(ctx, q)
	if err != nil {
		return nil, failure.Introspection(err, "read catalog of %s", dbID)
	}

	desc, dropped := Build(dbID, catalog)
	if logger != nil {
		for _, fk := range dropped {
			logger.Debug("dropping unresolved foreign key",
				"db_id", dbID,
				"constraint", fk.Name,
				"column", fk.ColumnName,
				"referenced_table", fk.ReferencedTable,
				"referenced_column", fk.ReferencedColumn,
			)
		}
	}
	return desc, nil
}

// Build converts a catalog into a descriptor. Tables and columns keep catalog
// order after the wildcard slot. Foreign keys are resolved by name, exactly
// and then case-insensitively; an empty referenced column means the
// referenced table's single-column primary key. Declarations that cannot be
// resolved are returned as dropped. Duplicate pairs are kept once.
func Build(dbID string, s *model.Schema) (*model.SchemaDescriptor, []model.ForeignKey) {
	desc := &model.SchemaDescriptor{
		DBID:        dbID,
		Tables:      []string{model.Wildcard},
		Columns:     []model.ColumnRef{{Table: 0, Name: model.Wildcard}},
		ColumnTypes: []model.ColumnType{model.TypeText},
		PrimaryKeys: []int{},
		ForeignKeys: []model.ForeignKeyPair{},
	}

	for _, ts := range s.Tables {
		tableIdx := len(desc.Tables)
		desc.Tables = append(desc.Tables, ts.Name)

		pk := make(map[string]bool, len(ts.PrimaryKey))
		for _, name := range ts.PrimaryKey {
			pk[name] = true
		}
		for _, col := range ts.Columns {
			desc.Columns = append(desc.Columns, model.ColumnRef{Table: tableIdx, Name: col.Name})
			desc.ColumnTypes = append(desc.ColumnTypes, ClassifyType(col.Type))
			if col.IsPrimaryKey || pk[col.Name] {
				desc.PrimaryKeys = append(desc.PrimaryKeys, len(desc.Columns)-1)
			}
		}
	}

	var dropped []model.ForeignKey
	seen := make(map[model.ForeignKeyPair]bool)
	for _, ts := range s.Tables {
		for _, fk := range ts.ForeignKeys {
			pair, ok := resolveForeignKey(desc, ts.Name, fk)
			if !ok {
				dropped = append(dropped, fk)
				continue
			}
			if seen[pair] {
				continue
			}
			seen[pair] = true
			desc.ForeignKeys = append(desc.ForeignKeys, pair)
		}
	}

	return desc, dropped
}

func resolveForeignKey(desc *model.SchemaDescriptor, table string, fk model.ForeignKey) (model.ForeignKeyPair, bool) {
	from := desc.TableIndex(table)
	to := desc.TableIndex(fk.ReferencedTable)
	if from < 0 || to < 0 {
		return model.ForeignKeyPair{}, false
	}

	col := desc.ColumnIndex(from, fk.ColumnName)
	if col < 0 {
		return model.ForeignKeyPair{}, false
	}

	var ref int
	if fk.ReferencedColumn == "" {
		pks := desc.PrimaryKeyOf(to)
		if len(pks) != 1 {
			return model.ForeignKeyPair{}, false
		}
		ref = pks[0]
	} else {
		ref = desc.ColumnIndex(to, fk.ReferencedColumn)
		if ref < 0 {
			return model.ForeignKeyPair{}, false
		}
	}
	return model.ForeignKeyPair{Column: col, Ref: ref}, true
}

// ClassifyType maps a declared storage type onto the coarse column types by
// substring rules, checked in order: text, number, time, boolean, blob.
func ClassifyType(declared string) model.ColumnType {
	t := strings.ToLower(declared)
	has := func(subs ...string) bool {
		for _, s := range subs {
			if strings.Contains(t, s) {
				return true
			}
		}
		return false
	}

	switch {
	case t == "" || has("char", "text", "var"):
		return model.TypeText
	case has("int", "numeric", "decimal", "number", "id", "real", "double", "float"):
		return model.TypeNumber
	case has("date", "time", "year"):
		return model.TypeTime
	case has("boolean"):
		return model.TypeBoolean
	case has("blob"):
		return model.TypeBlob
	default:
		return model.TypeOther
	}
}
