package resolver

import (
	"context"
	"fmt"

	"github.com/ambigdb/ambigdb/internal/failure"
	"github.com/ambigdb/ambigdb/internal/match"
	"github.com/ambigdb/ambigdb/internal/model"
)

const repairSavepoint = "ambigdb_repair"

// bridgeLinks describes how a bridge table links entities to components.
type bridgeLinks struct {
	table        string
	entityCol    string
	componentCol string
	entityKey    string
	componentKey string
	// surrogate is a numeric single-column key assigned MAX+1 on insert, or "".
	surrogate string
}

// AddCommonComponents links the binding's specific component to every entity
// through the bridge table, then makes sure the bridge also holds a link to
// some other component. Inserts clone an existing bridge row of the entity
// when there is one. A failing insert is logged and skipped; coverage is
// verified once all inserts ran. It returns the executed statements as
// literal SQL and updates b.Repair.
func (r *Resolver) AddCommonComponents(ctx context.Context, b *model.ScopeBinding) ([]string, error) {
	entT := r.desc.TableIndex(b.Entities.Table())
	compT := r.desc.TableIndex(b.Components.Table())
	bridgeT := r.desc.TableIndex(b.EntitiesComponents.Table())
	if entT < 0 || compT < 0 || bridgeT < 0 {
		return nil, failure.Structural("entities_components", "binding references tables missing from %s", r.desc.DBID)
	}

	links, err := r.bridgeLinks(b, entT, compT, bridgeT)
	if err != nil {
		return nil, err
	}
	defer func() { r.distinct = make(map[int][]interface{}) }()

	specKey, err := r.componentKey(ctx, b.SpecificComponent, links)
	if err != nil {
		return nil, err
	}

	// The repair widens an existing link; it never creates the first one.
	linked, err := r.count(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = ?",
		r.quote(links.table), r.quote(links.componentCol)), specKey)
	if err != nil {
		return nil, err
	}
	if linked == 0 {
		return nil, failure.DataInsertion("specific_component", "%s is not linked to any entity in %s",
			b.SpecificComponent, links.table)
	}

	entityKeys, err := r.column(ctx, fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL ORDER BY %s",
		r.quote(links.entityKey), r.quote(b.Entities.Table()), r.quote(links.entityKey), r.quote(links.entityKey)))
	if err != nil {
		return nil, err
	}

	stats := model.RepairStats{}
	if stats.EntityCount, err = r.tableRows(ctx, b.Entities.Table()); err != nil {
		return nil, err
	}
	if stats.BridgeRowsBefore, err = r.tableRows(ctx, links.table); err != nil {
		return nil, err
	}

	next, err := r.nextSurrogate(ctx, links)
	if err != nil {
		return nil, err
	}

	stmts := []string{}
	linkedQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = ? AND %s = ?",
		r.quote(links.table), r.quote(links.entityCol), r.quote(links.componentCol))
	for _, e := range entityKeys {
		n, err := r.count(ctx, linkedQuery, e, specKey)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			continue
		}

		stmt, ok, err := r.insertLink(ctx, links, e, specKey, &next)
		if err != nil {
			return nil, err
		}
		if ok {
			stmts = append(stmts, stmt)
			stats.LinksInserted++
		}
	}

	otherQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s <> ?", r.quote(links.table), r.quote(links.componentCol))
	others, err := r.count(ctx, otherQuery, specKey)
	if err != nil {
		return nil, err
	}
	if others == 0 && len(entityKeys) > 0 {
		alternatives, err := r.column(ctx, fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE %s <> ?",
			r.quote(links.componentKey), r.quote(b.Components.Table()), r.quote(links.componentKey)), specKey)
		if err != nil {
			return nil, err
		}
		var usable []interface{}
		for _, a := range alternatives {
			if !model.IsEmptyValue(a) {
				usable = append(usable, a)
			}
		}
		if len(usable) == 0 {
			return nil, failure.DataInsertion("specific_component", "%s holds no other component to link", b.Components.Table())
		}

		other := usable[r.opts.Rand.IntN(len(usable))]
		entity := entityKeys[r.opts.Rand.IntN(len(entityKeys))]
		stmt, ok, err := r.insertLink(ctx, links, entity, other, &next)
		if err != nil {
			return nil, err
		}
		if ok {
			stmts = append(stmts, stmt)
			stats.ExtraLinkInserted = true
		}
	}

	coverage, err := r.count(ctx, fmt.Sprintf("SELECT COUNT(DISTINCT %s) FROM %s WHERE %s = ?",
		r.quote(links.entityCol), r.quote(links.table), r.quote(links.componentCol)), specKey)
	if err != nil {
		return nil, err
	}
	if coverage < len(entityKeys) {
		return nil, failure.DataInsertion("specific_component", "%s is linked to %d of %d entities after repair",
			b.SpecificComponent, coverage, len(entityKeys))
	}
	if others, err = r.count(ctx, otherQuery, specKey); err != nil {
		return nil, err
	}
	if others == 0 {
		return nil, failure.DataInsertion("specific_component", "%s is the only component linked to any entity",
			b.SpecificComponent)
	}

	if stats.BridgeRowsAfter, err = r.tableRows(ctx, links.table); err != nil {
		return nil, err
	}
	b.Repair = stats
	r.logger.Info("scope repair complete",
		"bridge", links.table,
		"entities", stats.EntityCount,
		"links_inserted", stats.LinksInserted,
		"extra_link", stats.ExtraLinkInserted,
	)
	return stmts, nil
}

// bridgeLinks finds the bridge columns referencing entities and components,
// by foreign key first and by column name otherwise.
func (r *Resolver) bridgeLinks(b *model.ScopeBinding, entT, compT, bridgeT int) (*bridgeLinks, error) {
	links := &bridgeLinks{table: r.desc.TableName(bridgeT)}

	for _, fk := range r.desc.ForeignKeysOf(bridgeT) {
		switch r.desc.TableOf(fk.Ref) {
		case entT:
			if links.entityCol == "" {
				links.entityCol, links.entityKey = r.desc.ColumnName(fk.Column), r.desc.ColumnName(fk.Ref)
			}
		case compT:
			if links.componentCol == "" {
				links.componentCol, links.componentKey = r.desc.ColumnName(fk.Column), r.desc.ColumnName(fk.Ref)
			}
		}
	}

	pk := r.desc.PrimaryKeyOf(bridgeT)
	single := -1
	if len(pk) == 1 {
		single = pk[0]
	}
	byName := func(labels ...string) string {
		for _, c := range r.desc.ColumnsOf(bridgeT) {
			if c == single {
				continue
			}
			for _, l := range labels {
				if match.Partial(l, r.desc.ColumnName(c), match.RoleColumn) {
					return r.desc.ColumnName(c)
				}
			}
		}
		return ""
	}
	if links.entityCol == "" {
		links.entityCol = byName(b.Concept.Entities, b.Entities.Table())
		links.entityKey = r.keyColumn(entT)
	}
	if links.componentCol == "" {
		links.componentCol = byName(b.Concept.Components, b.Components.Table())
		links.componentKey = r.keyColumn(compT)
	}
	if links.entityCol == "" {
		return nil, failure.Structural("entities_components", "%s has no column linking to %s", links.table, b.Entities.Table())
	}
	if links.componentCol == "" || links.componentCol == links.entityCol {
		return nil, failure.Structural("entities_components", "%s has no column linking to %s", links.table, b.Components.Table())
	}

	if single > 0 {
		name := r.desc.ColumnName(single)
		if name != links.entityCol && name != links.componentCol && r.desc.ColumnType(single) == model.TypeNumber {
			links.surrogate = name
		}
	}
	return links, nil
}

// keyColumn returns the single primary key column of t, else its first
// column.
func (r *Resolver) keyColumn(t int) string {
	if pk := r.desc.PrimaryKeyOf(t); len(pk) == 1 {
		return r.desc.ColumnName(pk[0])
	}
	if cols := r.desc.ColumnsOf(t); len(cols) > 0 {
		return r.desc.ColumnName(cols[0])
	}
	return ""
}

// componentKey returns the key the bridge stores for the specific component.
func (r *Resolver) componentKey(ctx context.Context, spec model.DBItem, links *bridgeLinks) (interface{}, error) {
	if spec.Column() == links.componentKey {
		return spec.Value(), nil
	}
	keys, err := r.column(ctx, fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?",
		r.quote(links.componentKey), r.quote(spec.Table()), r.quote(spec.Column())), spec.Value())
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 || model.IsEmptyValue(keys[0]) {
		return nil, failure.DataInsertion("specific_component", "%s has no %s key", spec, links.componentKey)
	}
	return keys[0], nil
}

func (r *Resolver) nextSurrogate(ctx context.Context, links *bridgeLinks) (int64, error) {
	if links.surrogate == "" {
		return 0, nil
	}
	n, err := r.count(ctx, fmt.Sprintf("SELECT COALESCE(MAX(%s), 0) FROM %s", r.quote(links.surrogate), r.quote(links.table)))
	if err != nil {
		return 0, err
	}
	return int64(n) + 1, nil
}

// insertLink inserts a bridge row linking entity to component. It reports
// false without an error when the database rejects the insert.
func (r *Resolver) insertLink(ctx context.Context, links *bridgeLinks, entity, component interface{}, next *int64) (string, bool, error) {
	columns, values, err := r.linkRow(ctx, links, entity, component)
	if err != nil {
		return "", false, err
	}
	if links.surrogate != "" {
		replaced := false
		for i, c := range columns {
			if c == links.surrogate {
				values[i] = *next
				replaced = true
			}
		}
		if !replaced {
			columns = append(columns, links.surrogate)
			values = append(values, *next)
		}
	}

	query, args := r.buildInsert(links.table, columns, values)
	stmt := Render(query, args) + ";"

	if err := r.exec(ctx, "SAVEPOINT "+repairSavepoint); err != nil {
		return "", false, err
	}
	if err := r.exec(ctx, query, args...); err != nil {
		r.logger.Warn("skipping repair insert", "statement", stmt, "error", err)
		if rbErr := r.exec(ctx, "ROLLBACK TO SAVEPOINT "+repairSavepoint); rbErr != nil {
			return "", false, rbErr
		}
		return "", false, r.exec(ctx, "RELEASE SAVEPOINT "+repairSavepoint)
	}
	if err := r.exec(ctx, "RELEASE SAVEPOINT "+repairSavepoint); err != nil {
		return "", false, err
	}

	if links.surrogate != "" {
		*next++
	}
	r.logger.Info("inserted bridge row", "statement", stmt)
	return stmt, true, nil
}

// linkRow builds the column list and values of a new bridge row: a copy of
// an existing row of the entity with the component replaced, or just the two
// link columns.
func (r *Resolver) linkRow(ctx context.Context, links *bridgeLinks, entity, component interface{}) ([]string, []interface{}, error) {
	query := fmt.Sprintf("SELECT * FROM %s WHERE %s = ?", r.quote(links.table), r.quote(links.entityCol))
	rs, err := r.q.QueryxContext(ctx, r.q.Rebind(query), entity)
	if err != nil {
		return nil, nil, fmt.Errorf("query %q: %w", query, err)
	}
	defer rs.Close()

	if !rs.Next() {
		if err := rs.Err(); err != nil {
			return nil, nil, fmt.Errorf("iterate %q: %w", query, err)
		}
		return []string{links.entityCol, links.componentCol}, []interface{}{entity, component}, nil
	}

	columns, err := rs.Columns()
	if err != nil {
		return nil, nil, err
	}
	values, err := rs.SliceScan()
	if err != nil {
		return nil, nil, fmt.Errorf("scan %q: %w", query, err)
	}
	for i, c := range columns {
		values[i] = model.NormalizeValue(values[i])
		if c == links.componentCol {
			values[i] = component
		}
	}
	return columns, values, nil
}

func (r *Resolver) exec(ctx context.Context, query string, args ...interface{}) error {
	if _, err := r.q.ExecContext(ctx, r.q.Rebind(query), args...); err != nil {
		return fmt.Errorf("exec %q: %w", query, err)
	}
	return nil
}
