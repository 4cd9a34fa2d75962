package schema

import (
	"fmt"

	"github.com/ambigdb/ambigdb/internal/model"
)

// DriftType classifies the severity of a schema change.
type DriftType string

const (
	// DriftAdditive means a table, column or key was added.
	DriftAdditive DriftType = "additive"
	// DriftBreaking means something was removed or changed type.
	DriftBreaking DriftType = "breaking"
)

// DriftItem describes a single difference between two descriptors.
type DriftItem struct {
	Type        DriftType `json:"type"`
	Category    string    `json:"category"` // "table_added", "table_removed", "column_added", "column_removed", "type_changed", "primary_key_changed", "foreign_key_added", "foreign_key_removed"
	TableName   string    `json:"table_name"`
	ColumnName  string    `json:"column_name,omitempty"`
	OldValue    string    `json:"old_value,omitempty"`
	NewValue    string    `json:"new_value,omitempty"`
	Description string    `json:"description"`
}

// DriftReport summarizes all differences between two descriptors.
type DriftReport struct {
	DBID          string      `json:"db_id"`
	HasDrift      bool        `json:"has_drift"`
	HasBreaking   bool        `json:"has_breaking"`
	AdditiveCount int         `json:"additive_count"`
	BreakingCount int         `json:"breaking_count"`
	Items         []DriftItem `json:"items"`
}

type fkEdge struct {
	table, column, refTable, refColumn string
}

func (e fkEdge) String() string {
	return fmt.Sprintf("%s.%s -> %s.%s", e.table, e.column, e.refTable, e.refColumn)
}

// Diff compares two descriptors of the same database by table and column
// name. Indices are not compared, so a descriptor rebuilt from an unchanged
// catalog never drifts.
func Diff(before, after *model.SchemaDescriptor) DriftReport {
	report := DriftReport{DBID: after.DBID}
	add := func(item DriftItem) {
		report.Items = append(report.Items, item)
	}

	for _, t := range before.RealTables() {
		name := before.TableName(t)
		at := after.TableIndex(name)
		if at < 0 {
			add(DriftItem{
				Type:        DriftBreaking,
				Category:    "table_removed",
				TableName:   name,
				Description: fmt.Sprintf("Table %q was removed", name),
			})
			continue
		}
		diffColumns(before, after, t, at, add)
	}

	for _, t := range after.RealTables() {
		name := after.TableName(t)
		if before.TableIndex(name) < 0 {
			add(DriftItem{
				Type:        DriftAdditive,
				Category:    "table_added",
				TableName:   name,
				Description: fmt.Sprintf("Table %q was added", name),
			})
		}
	}

	beforeList, beforeFKs := edges(before)
	afterList, afterFKs := edges(after)
	for _, e := range beforeList {
		if !afterFKs[e] {
			add(DriftItem{
				Type:        DriftBreaking,
				Category:    "foreign_key_removed",
				TableName:   e.table,
				ColumnName:  e.column,
				OldValue:    e.String(),
				Description: fmt.Sprintf("Foreign key %s was removed", e),
			})
		}
	}
	for _, e := range afterList {
		if !beforeFKs[e] {
			add(DriftItem{
				Type:        DriftAdditive,
				Category:    "foreign_key_added",
				TableName:   e.table,
				ColumnName:  e.column,
				NewValue:    e.String(),
				Description: fmt.Sprintf("Foreign key %s was added", e),
			})
		}
	}

	for _, item := range report.Items {
		switch item.Type {
		case DriftAdditive:
			report.AdditiveCount++
		case DriftBreaking:
			report.BreakingCount++
		}
	}
	report.HasDrift = len(report.Items) > 0
	report.HasBreaking = report.BreakingCount > 0
	return report
}

func diffColumns(before, after *model.SchemaDescriptor, bt, at int, add func(DriftItem)) {
	table := before.TableName(bt)

	for _, bc := range before.ColumnsOf(bt) {
		name := before.ColumnName(bc)
		ac := after.ColumnIndex(at, name)
		if ac < 0 {
			add(DriftItem{
				Type:        DriftBreaking,
				Category:    "column_removed",
				TableName:   table,
				ColumnName:  name,
				OldValue:    string(before.ColumnType(bc)),
				Description: fmt.Sprintf("Column %q was removed from table %q", name, table),
			})
			continue
		}
		if oldType, newType := before.ColumnType(bc), after.ColumnType(ac); oldType != newType {
			add(DriftItem{
				Type:        DriftBreaking,
				Category:    "type_changed",
				TableName:   table,
				ColumnName:  name,
				OldValue:    string(oldType),
				NewValue:    string(newType),
				Description: fmt.Sprintf("Column %q type changed from %q to %q", name, oldType, newType),
			})
		}
		if bp, ap := before.IsPrimaryKey(bc), after.IsPrimaryKey(ac); bp != ap {
			add(DriftItem{
				Type:        DriftBreaking,
				Category:    "primary_key_changed",
				TableName:   table,
				ColumnName:  name,
				OldValue:    fmt.Sprint(bp),
				NewValue:    fmt.Sprint(ap),
				Description: fmt.Sprintf("Column %q primary key flag changed", name),
			})
		}
	}

	for _, ac := range after.ColumnsOf(at) {
		name := after.ColumnName(ac)
		if before.ColumnIndex(bt, name) < 0 {
			add(DriftItem{
				Type:        DriftAdditive,
				Category:    "column_added",
				TableName:   table,
				ColumnName:  name,
				NewValue:    string(after.ColumnType(ac)),
				Description: fmt.Sprintf("Column %q was added to table %q", name, table),
			})
		}
	}
}

func edges(d *model.SchemaDescriptor) ([]fkEdge, map[fkEdge]bool) {
	list := make([]fkEdge, 0, len(d.ForeignKeys))
	set := make(map[fkEdge]bool, len(d.ForeignKeys))
	for _, fk := range d.ForeignKeys {
		e := fkEdge{
			table:     d.TableName(d.TableOf(fk.Column)),
			column:    d.ColumnName(fk.Column),
			refTable:  d.TableName(d.TableOf(fk.Ref)),
			refColumn: d.ColumnName(fk.Ref),
		}
		list = append(list, e)
		set[e] = true
	}
	return list, set
}
