package resolver

import (
	"context"
	"fmt"

	"github.com/ambigdb/ambigdb/internal/failure"
	"github.com/ambigdb/ambigdb/internal/match"
	"github.com/ambigdb/ambigdb/internal/model"
)

// ResolveVague validates a Vague concept laid out as cfg.
func (r *Resolver) ResolveVague(ctx context.Context, cfg model.Configuration, concept model.VagueConcept) (*model.VagueBinding, error) {
	var (
		subject, cat1, cat2 model.DBItem
		err                 error
	)
	switch cfg {
	case model.Vague2Cols:
		subject, cat1, cat2, err = r.resolveTwoColumns(ctx, concept)
	case model.Vague2Tabs:
		subject, cat1, cat2, err = r.resolveTwoTables(ctx, concept)
	default:
		return nil, fmt.Errorf("configuration %q is not a vague layout", cfg)
	}
	if err != nil {
		return nil, err
	}
	return &model.VagueBinding{
		Type:             cfg,
		Template:         concept.Template,
		Concept:          concept,
		Subject:          subject,
		GeneralCategory1: cat1,
		GeneralCategory2: cat2,
	}, nil
}

// resolveTwoColumns requires both categories to be columns of one table, each
// with a non-empty value. The subject is a column anywhere, else a table.
func (r *Resolver) resolveTwoColumns(ctx context.Context, concept model.VagueConcept) (subject, cat1, cat2 model.DBItem, err error) {
	type pair struct{ c1, c2 int }
	p, s, ok, _ := match.Search(func(s match.Strategy) (pair, bool, error) {
		for _, t := range r.desc.RealTables() {
			cols := r.desc.ColumnsOf(t)
			c1 := r.firstColumn(concept.GeneralCategory1, cols, s)
			if c1 < 0 {
				continue
			}
			rest := make([]int, 0, len(cols))
			for _, c := range cols {
				if c != c1 {
					rest = append(rest, c)
				}
			}
			if c2 := r.firstColumn(concept.GeneralCategory2, rest, s); c2 > 0 {
				return pair{c1, c2}, true, nil
			}
		}
		return pair{}, false, nil
	})
	if !ok {
		return subject, cat1, cat2, r.diagnoseCategories(concept)
	}

	cat1, cat2 = r.columnItem(p.c1), r.columnItem(p.c2)
	r.found("general_category1", cat1, s.Name)
	r.found("general_category2", cat2, s.Name)

	for _, c := range []struct {
		role   string
		column int
	}{{"general_category1", p.c1}, {"general_category2", p.c2}} {
		n, err := r.populated(ctx, c.column)
		if err != nil {
			return subject, cat1, cat2, err
		}
		if n < 1 {
			return subject, cat1, cat2, failure.DataInsertion(c.role, "%s holds no values", r.columnItem(c.column))
		}
	}

	var others []int
	for c := 1; c < len(r.desc.Columns); c++ {
		if c != p.c1 && c != p.c2 {
			others = append(others, c)
		}
	}
	if c, ok := r.searchColumns(concept.Subject, others); ok {
		subject = r.columnItem(c)
	} else if t, ok := r.searchTables(concept.Subject, nil); ok {
		subject = model.TableItem(r.desc.TableName(t))
	} else {
		return subject, cat1, cat2, failure.Structural("subject", "no column or table matches %q", concept.Subject).
			WithCandidates(concept.Subject, append(r.columnNames(false), r.tableNames()...))
	}
	r.found("subject", subject, "")
	return subject, cat1, cat2, nil
}

func (r *Resolver) diagnoseCategories(concept model.VagueConcept) error {
	all := make([]int, 0, len(r.desc.Columns))
	for c := 1; c < len(r.desc.Columns); c++ {
		all = append(all, c)
	}
	names := r.columnNames(false)
	if _, ok := r.searchColumns(concept.GeneralCategory1, all); !ok {
		return failure.Structural("general_category1", "no column matches %q", concept.GeneralCategory1).
			WithCandidates(concept.GeneralCategory1, names)
	}
	if _, ok := r.searchColumns(concept.GeneralCategory2, all); !ok {
		return failure.Structural("general_category2", "no column matches %q", concept.GeneralCategory2).
			WithCandidates(concept.GeneralCategory2, names)
	}
	return failure.Structural("general_category2", "no table holds columns matching both %q and %q",
		concept.GeneralCategory1, concept.GeneralCategory2)
}

// resolveTwoTables resolves each role to a table (preferred) or a column in a
// table not already taken by another role, each populated. The subject table
// must share a foreign key with both category tables.
func (r *Resolver) resolveTwoTables(ctx context.Context, concept model.VagueConcept) (subject, cat1, cat2 model.DBItem, err error) {
	taken := make(map[int]bool)
	roles := []struct {
		name  string
		label string
		item  *model.DBItem
		table int
	}{
		{name: "general_category1", label: concept.GeneralCategory1, item: &cat1},
		{name: "general_category2", label: concept.GeneralCategory2, item: &cat2},
		{name: "subject", label: concept.Subject, item: &subject},
	}

	for i := range roles {
		role := &roles[i]
		item, t, ok := r.findTableOrColumn(role.name, role.label, taken)
		if !ok {
			return subject, cat1, cat2, failure.Structural(role.name, "no table or column matches %q", role.label).
				WithCandidates(role.label, append(r.tableNames(), r.columnNames(false)...))
		}
		if err := r.requirePopulated(ctx, role.name, item, t); err != nil {
			return subject, cat1, cat2, err
		}
		taken[t] = true
		*role.item = item
		role.table = t
	}

	subjectT := roles[2].table
	for _, role := range roles[:2] {
		if !r.graph.Adjacent(subjectT, role.table) {
			return subject, cat1, cat2, failure.Structural(role.name,
				"%s is not connected to subject table %s by a foreign key",
				r.desc.TableName(role.table), r.desc.TableName(subjectT))
		}
	}
	return subject, cat1, cat2, nil
}

// findTableOrColumn matches label against table names under every strategy,
// then against column names. Tables in taken are skipped.
func (r *Resolver) findTableOrColumn(role, label string, taken map[int]bool) (model.DBItem, int, bool) {
	if t, ok := r.searchTables(label, taken); ok {
		item := model.TableItem(r.desc.TableName(t))
		r.found(role, item, "")
		return item, t, true
	}

	var cols []int
	for c := 1; c < len(r.desc.Columns); c++ {
		if !taken[r.desc.TableOf(c)] {
			cols = append(cols, c)
		}
	}
	if c, ok := r.searchColumns(label, cols); ok {
		item := r.columnItem(c)
		r.found(role, item, "")
		return item, r.desc.TableOf(c), true
	}
	return model.DBItem{}, 0, false
}

func (r *Resolver) searchTables(label string, skip map[int]bool) (int, bool) {
	t, _, ok, _ := match.Search(func(s match.Strategy) (int, bool, error) {
		for _, t := range r.desc.RealTables() {
			if !skip[t] && s.Match(label, r.desc.TableName(t), match.RoleTable) {
				return t, true, nil
			}
		}
		return 0, false, nil
	})
	return t, ok
}

func (r *Resolver) requirePopulated(ctx context.Context, role string, item model.DBItem, t int) error {
	var (
		n   int
		err error
	)
	if item.Kind() == model.ItemTable {
		n, err = r.tableRows(ctx, item.Table())
	} else {
		n, err = r.populated(ctx, r.desc.ColumnIndex(t, item.Column()))
	}
	if err != nil {
		return err
	}
	if n < 1 {
		return failure.DataInsertion(role, "%s holds no values", item)
	}
	return nil
}
