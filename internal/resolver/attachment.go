package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/ambigdb/ambigdb/internal/failure"
	"github.com/ambigdb/ambigdb/internal/graph"
	"github.com/ambigdb/ambigdb/internal/match"
	"github.com/ambigdb/ambigdb/internal/model"
)

// layout parametrizes the attachment resolver for one configuration.
type layout struct {
	// tables is 1 when class1 and class2 are values of one column, 2 when
	// they are separate tables or columns.
	tables int
	// ref is set when the common property lives in a table connected to the
	// class table(s) instead of inside them.
	ref bool
}

var layouts = map[model.Configuration]layout{
	model.Attachment1TabVal: {tables: 1},
	model.Attachment1TabRef: {tables: 1, ref: true},
	model.Attachment2TabVal: {tables: 2},
	model.Attachment2TabRef: {tables: 2, ref: true},
}

// classAnchors are the located class1/class2 anchors.
type classAnchors struct {
	// general is the shared column of a one-table layout.
	general      int
	sel1, sel2   selector
	item1, item2 model.DBItem
	// table1 and table2 are the owning tables; equal in one-table layouts.
	table1, table2 int
}

// propertyAnchor is the located common property. columns lists the output
// columns whose values are candidates: the matched column, or every non-key
// column when the property matched a table name.
type propertyAnchor struct {
	table   int
	columns []int
	item    model.DBItem
	// other is the matching column of the second class table (2tab_val).
	other int
}

// overlapPlan is the query yielding candidate common values and, per
// candidate column, the queries listing other values of that column across
// the anchoring relations.
type overlapPlan struct {
	query   string
	args    []interface{}
	outputs []int
	others  func(c int) []string
}

// ResolveAttachment validates an Attachment concept laid out as cfg.
func (r *Resolver) ResolveAttachment(ctx context.Context, cfg model.Configuration, concept model.AttachmentConcept) (*model.AttachmentBinding, error) {
	lay, ok := layouts[cfg]
	if !ok {
		return nil, fmt.Errorf("configuration %q is not an attachment layout", cfg)
	}

	var (
		cls *classAnchors
		err error
	)
	if lay.tables == 1 {
		cls, err = r.findClassValues(ctx, concept)
	} else {
		cls, err = r.findClassAnchors(concept)
	}
	if err != nil {
		return nil, err
	}

	prop, err := r.findProperty(lay, cls, concept)
	if err != nil {
		return nil, err
	}
	r.found("common_property", prop.item, "")

	plan, err := r.planOverlap(lay, cls, prop, concept)
	if err != nil {
		return nil, err
	}
	common, err := r.chooseCommonValue(ctx, plan)
	if err != nil {
		return nil, err
	}
	r.found("common_value", common, "")

	if concept.CommonValue != "" && model.ValueString(common.Value()) != concept.CommonValue {
		r.logger.Warn("common value differs from concept",
			"found", model.ValueString(common.Value()),
			"expected", concept.CommonValue,
		)
	}

	b := &model.AttachmentBinding{
		Domain:         r.desc.DBID,
		Type:           cfg,
		Template:       concept.Template,
		Concept:        concept,
		Class1:         cls.item1,
		Class2:         cls.item2,
		CommonProperty: common,
	}
	if lay.tables == 1 {
		g := model.ColumnItem(r.desc.TableName(cls.table1), r.desc.ColumnName(cls.general))
		b.GeneralClass = &g
	}
	return b, nil
}

// distinctPair returns the first pair of different candidates matching a and
// b under s. A value matching both labels does not hide a second value that
// matches only one of them.
func distinctPair(a, b string, candidates []string, s match.Strategy) (int, int, bool) {
	for i, ca := range candidates {
		if !s.Match(a, ca, match.RoleValue) {
			continue
		}
		for j, cb := range candidates {
			if j != i && s.Match(b, cb, match.RoleValue) {
				return i, j, true
			}
		}
	}
	return -1, -1, false
}

// findClassValues locates class1 and class2 as two distinct values of the
// same text column, in exact mode across every column before substring mode.
func (r *Resolver) findClassValues(ctx context.Context, concept model.AttachmentConcept) (*classAnchors, error) {
	type hit struct {
		column int
		v1, v2 interface{}
	}
	h, s, ok, err := match.Search(func(s match.Strategy) (hit, bool, error) {
		for c := 1; c < len(r.desc.Columns); c++ {
			if r.desc.ColumnType(c) != model.TypeText {
				continue
			}
			vals, err := r.distinctValues(ctx, c)
			if err != nil {
				return hit{}, false, err
			}
			if i1, i2, ok := distinctPair(concept.Class1, concept.Class2, valueStrings(vals), s); ok {
				return hit{column: c, v1: vals[i1], v2: vals[i2]}, true, nil
			}
		}
		return hit{}, false, nil
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, failure.Structural("class1/class2",
			"no text column holds both %q and %q", concept.Class1, concept.Class2)
	}

	newSelector := func(label string, v interface{}) selector {
		if !s.Like {
			return selector{value: v}
		}
		return selector{value: v, fragment: match.Fragment(label, model.ValueString(v)), like: true}
	}

	t := r.desc.TableOf(h.column)
	table, col := r.desc.TableName(t), r.desc.ColumnName(h.column)
	cls := &classAnchors{
		general: h.column,
		sel1:    newSelector(concept.Class1, h.v1),
		sel2:    newSelector(concept.Class2, h.v2),
		table1:  t,
		table2:  t,
	}
	cls.item1 = model.ValueItem(table, col, cls.sel1.display())
	cls.item2 = model.ValueItem(table, col, cls.sel2.display())
	r.found("class1", cls.item1, s.Name)
	r.found("class2", cls.item2, s.Name)
	return cls, nil
}

// findClassAnchors locates class1 and class2 as table names, falling back to
// text column names. The two must be of the same kind and in different
// tables.
func (r *Resolver) findClassAnchors(concept model.AttachmentConcept) (*classAnchors, error) {
	candidates := append(append([]string{}, r.tableNames()...), r.columnNames(true)...)

	item1, t1, s1, ok := r.findTableOrTextColumn(concept.Class1, -1)
	if !ok {
		return nil, failure.Structural("class1", "no table or text column matches %q", concept.Class1).
			WithCandidates(concept.Class1, candidates)
	}
	r.found("class1", item1, s1)

	item2, t2, s2, ok := r.findTableOrTextColumn(concept.Class2, t1)
	if !ok {
		return nil, failure.Structural("class2", "no table or text column outside %s matches %q",
			r.desc.TableName(t1), concept.Class2).WithCandidates(concept.Class2, candidates)
	}
	r.found("class2", item2, s2)

	if item1.Kind() != item2.Kind() {
		return nil, failure.Structural("class2", "class1 resolved to a %s (%s) but class2 to a %s (%s)",
			item1.Kind(), item1, item2.Kind(), item2)
	}
	return &classAnchors{item1: item1, item2: item2, table1: t1, table2: t2}, nil
}

// findTableOrTextColumn matches label against table names, then text column
// names, per strategy. Table exclude is skipped.
func (r *Resolver) findTableOrTextColumn(label string, exclude int) (model.DBItem, int, string, bool) {
	type hit struct {
		item  model.DBItem
		table int
	}
	h, s, ok, _ := match.Search(func(s match.Strategy) (hit, bool, error) {
		for _, t := range r.desc.RealTables() {
			if t != exclude && s.Match(label, r.desc.TableName(t), match.RoleTable) {
				return hit{item: model.TableItem(r.desc.TableName(t)), table: t}, true, nil
			}
		}
		for c := 1; c < len(r.desc.Columns); c++ {
			t := r.desc.TableOf(c)
			if t == exclude || r.desc.ColumnType(c) != model.TypeText {
				continue
			}
			if s.Match(label, r.desc.ColumnName(c), match.RoleColumn) {
				return hit{item: model.ColumnItem(r.desc.TableName(t), r.desc.ColumnName(c)), table: t}, true, nil
			}
		}
		return hit{}, false, nil
	})
	return h.item, h.table, s.Name, ok
}

func (r *Resolver) findProperty(lay layout, cls *classAnchors, concept model.AttachmentConcept) (*propertyAnchor, error) {
	label := concept.CommonProperty

	switch {
	case lay.tables == 1 && !lay.ref:
		t := cls.table1
		var cols []int
		for _, c := range r.desc.ColumnsOf(t) {
			if c != cls.general {
				cols = append(cols, c)
			}
		}
		c, ok := r.searchColumns(label, cols)
		if !ok {
			return nil, failure.Structural("common_property", "no column of %s matches %q", r.desc.TableName(t), label).
				WithCandidates(label, r.names(cols))
		}
		return &propertyAnchor{table: t, columns: []int{c}, item: r.columnItem(c)}, nil

	case lay.tables == 2 && !lay.ref:
		type pair struct{ c1, c2 int }
		p, _, ok, _ := match.Search(func(s match.Strategy) (pair, bool, error) {
			c1 := r.firstColumn(label, r.desc.ColumnsOf(cls.table1), s)
			c2 := r.firstColumn(label, r.desc.ColumnsOf(cls.table2), s)
			return pair{c1, c2}, c1 > 0 && c2 > 0, nil
		})
		if !ok {
			cols := append(r.desc.ColumnsOf(cls.table1), r.desc.ColumnsOf(cls.table2)...)
			return nil, failure.Structural("common_property", "no column matching %q exists in both %s and %s",
				label, r.desc.TableName(cls.table1), r.desc.TableName(cls.table2)).
				WithCandidates(label, r.names(cols))
		}
		return &propertyAnchor{table: cls.table1, columns: []int{p.c1}, other: p.c2, item: r.columnItem(p.c1)}, nil

	default:
		connected := r.propertyTables(lay, cls)
		prop, ok, err := r.searchConnected(label, connected)
		if err != nil {
			return nil, err
		}
		if !ok {
			var cols []int
			for _, t := range connected {
				cols = append(cols, r.desc.ColumnsOf(t)...)
			}
			return nil, failure.Structural("common_property", "no table connected to the classes matches %q", label).
				WithCandidates(label, append(r.tableNamesOf(connected), r.names(cols)...))
		}
		return prop, nil
	}
}

// propertyTables lists the tables a ref layout may take its property from:
// those connected to the class table (1tab) or to both class tables (2tab),
// excluding the class tables themselves.
func (r *Resolver) propertyTables(lay layout, cls *classAnchors) []int {
	first := r.graph.ConnectedTables(cls.table1)
	allowed := make(map[int]bool, len(first))
	for _, t := range first {
		allowed[t] = true
	}
	if lay.tables == 2 {
		second := make(map[int]bool)
		for _, t := range r.graph.ConnectedTables(cls.table2) {
			second[t] = true
		}
		for t := range allowed {
			if !second[t] {
				delete(allowed, t)
			}
		}
	}

	var out []int
	for _, t := range first {
		if allowed[t] && t != cls.table1 && t != cls.table2 {
			out = append(out, t)
		}
	}
	return out
}

// searchConnected matches label against the names of tables, then the
// columns of tables, per strategy.
func (r *Resolver) searchConnected(label string, tables []int) (*propertyAnchor, bool, error) {
	prop, _, ok, err := match.Search(func(s match.Strategy) (*propertyAnchor, bool, error) {
		for _, t := range tables {
			if !s.Match(label, r.desc.TableName(t), match.RoleTable) {
				continue
			}
			cols := r.nonKeyColumns(t)
			if len(cols) == 0 {
				return nil, false, failure.Structural("common_property", "table %s has no non-key columns", r.desc.TableName(t))
			}
			return &propertyAnchor{table: t, columns: cols, item: model.TableItem(r.desc.TableName(t))}, true, nil
		}
		for _, t := range tables {
			if c := r.firstColumn(label, r.desc.ColumnsOf(t), s); c > 0 {
				return &propertyAnchor{table: t, columns: []int{c}, item: r.columnItem(c)}, true, nil
			}
		}
		return nil, false, nil
	})
	return prop, ok, err
}

func (r *Resolver) searchColumns(label string, cols []int) (int, bool) {
	c, _, ok, _ := match.Search(func(s match.Strategy) (int, bool, error) {
		c := r.firstColumn(label, cols, s)
		return c, c > 0, nil
	})
	return c, ok
}

func (r *Resolver) firstColumn(label string, cols []int, s match.Strategy) int {
	for _, c := range cols {
		if s.Match(label, r.desc.ColumnName(c), match.RoleColumn) {
			return c
		}
	}
	return -1
}

func (r *Resolver) nonKeyColumns(t int) []int {
	var out []int
	for _, c := range r.desc.ColumnsOf(t) {
		if !r.desc.IsPrimaryKey(c) {
			out = append(out, c)
		}
	}
	return out
}

func (r *Resolver) columnItem(c int) model.DBItem {
	return model.ColumnItem(r.desc.TableName(r.desc.TableOf(c)), r.desc.ColumnName(c))
}

// names returns the names of column indices cols.
func (r *Resolver) names(cols []int) []string {
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		out = append(out, r.desc.ColumnName(c))
	}
	return out
}

func (r *Resolver) tableNamesOf(tables []int) []string {
	out := make([]string, 0, len(tables))
	for _, t := range tables {
		out = append(out, r.desc.TableName(t))
	}
	return out
}

// joinFrom renders the FROM clause joining the property table to target.
func (r *Resolver) joinFrom(from, target int, hint string) (string, error) {
	path := r.graph.ShortestPath(from, target)
	if len(path) == 0 {
		return "", failure.Structural("common_property", "%s is not connected to %s",
			r.desc.TableName(from), r.desc.TableName(target))
	}
	steps, err := r.graph.JoinColumns(path, hint)
	if err != nil {
		return "", failure.Structural("common_property", "%v", err)
	}
	return graph.FormatJoin(r.desc.TableName(from), steps, r.quote), nil
}

func (r *Resolver) planOverlap(lay layout, cls *classAnchors, prop *propertyAnchor, concept model.AttachmentConcept) (*overlapPlan, error) {
	outs := make([]string, len(prop.columns))
	for i, c := range prop.columns {
		outs[i] = r.qualified(r.desc.TableName(prop.table), r.desc.ColumnName(c))
	}
	selectList := strings.Join(outs, ", ")

	othersIn := func(froms ...string) func(c int) []string {
		return func(c int) []string {
			expr := r.qualified(r.desc.TableName(prop.table), r.desc.ColumnName(c))
			qs := make([]string, len(froms))
			for i, f := range froms {
				qs[i] = fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE %s <> ?", expr, f, expr)
			}
			return qs
		}
	}

	switch {
	case lay.tables == 1:
		from := r.quote(r.desc.TableName(cls.table1))
		if lay.ref {
			var err error
			from, err = r.joinFrom(prop.table, cls.table1, concept.GeneralClass)
			if err != nil {
				return nil, err
			}
		}
		general := r.qualified(r.desc.TableName(cls.table1), r.desc.ColumnName(cls.general))
		pred1, arg1 := cls.sel1.predicate(general)
		pred2, arg2 := cls.sel2.predicate(general)
		return &overlapPlan{
			query: fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE %s INTERSECT SELECT DISTINCT %s FROM %s WHERE %s",
				selectList, from, pred1, selectList, from, pred2),
			args:    []interface{}{arg1, arg2},
			outputs: prop.columns,
			// The guard scans the whole anchor relation rather than only the
			// rows of class1 and class2: a differing value anywhere in the
			// column keeps the shared value ambiguous.
			others: othersIn(from),
		}, nil

	case !lay.ref:
		t1, t2 := r.desc.TableName(cls.table1), r.desc.TableName(cls.table2)
		c1 := r.qualified(t1, r.desc.ColumnName(prop.columns[0]))
		c2 := r.qualified(t2, r.desc.ColumnName(prop.other))
		return &overlapPlan{
			query: fmt.Sprintf("SELECT DISTINCT %s FROM %s INNER JOIN %s ON %s = %s",
				c1, r.quote(t1), r.quote(t2), c1, c2),
			outputs: prop.columns,
			others: func(int) []string {
				return []string{
					fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE %s <> ?", c1, r.quote(t1), c1),
					fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE %s <> ?", c2, r.quote(t2), c2),
				}
			},
		}, nil

	default:
		from1, err := r.joinFrom(prop.table, cls.table1, concept.Class1)
		if err != nil {
			return nil, err
		}
		from2, err := r.joinFrom(prop.table, cls.table2, concept.Class2)
		if err != nil {
			return nil, err
		}
		return &overlapPlan{
			query: fmt.Sprintf("SELECT DISTINCT %s FROM %s INTERSECT SELECT DISTINCT %s FROM %s",
				selectList, from1, selectList, from2),
			outputs: prop.columns,
			others:  othersIn(from1, from2),
		}, nil
	}
}

// chooseCommonValue runs the overlap query and returns the first candidate,
// in random order, that passes the extra-row guard: some row of the anchoring
// relations must carry a non-empty value other than the candidate, otherwise
// the shared value is not ambiguous.
func (r *Resolver) chooseCommonValue(ctx context.Context, plan *overlapPlan) (model.DBItem, error) {
	rows, err := r.rows(ctx, plan.query, plan.args...)
	if err != nil {
		return model.DBItem{}, err
	}

	type candidate struct {
		column int
		values []interface{}
	}
	var candidates []candidate
	for i, c := range plan.outputs {
		seen := make(map[string]bool)
		var vals []interface{}
		for _, row := range rows {
			if i >= len(row) || model.IsEmptyValue(row[i]) {
				continue
			}
			key := model.ValueString(row[i])
			if !seen[key] {
				seen[key] = true
				vals = append(vals, row[i])
			}
		}
		if len(vals) > 0 {
			candidates = append(candidates, candidate{column: c, values: vals})
		}
	}
	if len(candidates) == 0 {
		if len(rows) == 0 {
			return model.DBItem{}, failure.DataInsertion("common_property", "the class rows share no property value")
		}
		return model.DBItem{}, failure.DataInsertion("common_property", "the shared property values are all empty")
	}

	r.opts.Rand.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })
	for _, cand := range candidates {
		vals := cand.values
		r.opts.Rand.Shuffle(len(vals), func(i, j int) { vals[i], vals[j] = vals[j], vals[i] })
		for _, v := range vals {
			ok, err := r.hasOtherValue(ctx, plan.others(cand.column), v)
			if err != nil {
				return model.DBItem{}, err
			}
			if ok {
				return r.columnItem(cand.column).WithValue(v), nil
			}
		}
	}
	return model.DBItem{}, failure.DataInsertion("common_property",
		"every shared property value covers all rows; no row carries a different value")
}

func (r *Resolver) hasOtherValue(ctx context.Context, queries []string, v interface{}) (bool, error) {
	for _, q := range queries {
		others, err := r.column(ctx, q, v)
		if err != nil {
			return false, err
		}
		for _, o := range others {
			if !model.IsEmptyValue(o) {
				return true, nil
			}
		}
	}
	return false, nil
}
