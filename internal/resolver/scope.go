package resolver

import (
	"context"

	"github.com/ambigdb/ambigdb/internal/failure"
	"github.com/ambigdb/ambigdb/internal/match"
	"github.com/ambigdb/ambigdb/internal/model"
)

// ResolveScope locates the entities, components and bridge tables of a Scope
// concept and the specific component value, then runs AddCommonComponents.
// The returned statements are the inserts the repair executed.
func (r *Resolver) ResolveScope(ctx context.Context, concept model.ScopeConcept) (*model.ScopeBinding, []string, error) {
	specCol, specValue, err := r.findSpecificComponent(ctx, concept)
	if err != nil {
		return nil, nil, err
	}
	compT := r.desc.TableOf(specCol)

	entT, err := r.findEntities(ctx, concept, compT)
	if err != nil {
		return nil, nil, err
	}

	bridgeT, err := r.findBridge(concept, entT, compT)
	if err != nil {
		return nil, nil, err
	}

	b := &model.ScopeBinding{
		Template:           concept.TemplateText(),
		Concept:            concept,
		Entities:           model.TableItem(r.desc.TableName(entT)),
		Components:         model.TableItem(r.desc.TableName(compT)),
		SpecificComponent:  model.ValueItem(r.desc.TableName(compT), r.desc.ColumnName(specCol), specValue),
		EntitiesComponents: model.TableItem(r.desc.TableName(bridgeT)),
	}

	stmts, err := r.AddCommonComponents(ctx, b)
	if err != nil {
		return nil, nil, err
	}
	return b, stmts, nil
}

// findSpecificComponent scans column values for the specific component,
// starting with the tables whose names match the components label. The
// owning table must match that label and the column must hold enough
// distinct values to leave alternatives.
func (r *Resolver) findSpecificComponent(ctx context.Context, concept model.ScopeConcept) (int, interface{}, error) {
	var preferred, rest []int
	for c := 1; c < len(r.desc.Columns); c++ {
		if r.matchesTable(concept.Components, r.desc.TableOf(c)) {
			preferred = append(preferred, c)
		} else {
			rest = append(rest, c)
		}
	}
	order := append(preferred, rest...)

	type hit struct {
		column int
		value  interface{}
	}
	h, s, ok, err := match.Search(func(s match.Strategy) (hit, bool, error) {
		for _, c := range order {
			vals, err := r.distinctValues(ctx, c)
			if err != nil {
				return hit{}, false, err
			}
			if i := match.IndexOf(concept.SpecificComponent, valueStrings(vals), s, match.RoleValue); i >= 0 {
				return hit{column: c, value: vals[i]}, true, nil
			}
		}
		return hit{}, false, nil
	})
	if err != nil {
		return 0, nil, err
	}
	if !ok {
		return 0, nil, failure.DataInsertion("specific_component", "no column holds a value matching %q", concept.SpecificComponent)
	}

	t := r.desc.TableOf(h.column)
	item := r.columnItem(h.column).WithValue(h.value)
	r.found("specific_component", item, s.Name)

	if !r.matchesTable(concept.Components, t) {
		return 0, nil, failure.Structural("components", "specific component %s lives in %s, which does not match %q",
			item, r.desc.TableName(t), concept.Components).WithCandidates(concept.Components, r.tableNames())
	}
	n, err := r.populated(ctx, h.column)
	if err != nil {
		return 0, nil, err
	}
	if n < r.opts.MinComponentRows {
		return 0, nil, failure.Structural("components", "%s has %d distinct values, need at least %d",
			r.columnItem(h.column), n, r.opts.MinComponentRows)
	}
	r.found("components", model.TableItem(r.desc.TableName(t)), s.Name)
	return h.column, h.value, nil
}

// matchesTable reports whether table t is the one the label names. Only the
// exact strategy applies: "courses" names courses, not courses_offered.
func (r *Resolver) matchesTable(label string, t int) bool {
	return match.Exact(label, r.desc.TableName(t))
}

func (r *Resolver) findEntities(ctx context.Context, concept model.ScopeConcept, compT int) (int, error) {
	t, s, ok, _ := match.Search(func(s match.Strategy) (int, bool, error) {
		for _, t := range r.desc.RealTables() {
			if t != compT && s.Match(concept.Entities, r.desc.TableName(t), match.RoleTable) {
				return t, true, nil
			}
		}
		return 0, false, nil
	})
	if !ok {
		return 0, failure.Structural("entities", "no table matches %q", concept.Entities).
			WithCandidates(concept.Entities, r.tableNames())
	}

	n, err := r.tableRows(ctx, r.desc.TableName(t))
	if err != nil {
		return 0, err
	}
	if n < r.opts.MinEntityRows {
		return 0, failure.Structural("entities", "%s has %d rows, need at least %d",
			r.desc.TableName(t), n, r.opts.MinEntityRows)
	}
	r.found("entities", model.TableItem(r.desc.TableName(t)), s.Name)
	return t, nil
}

// findBridge locates the table linking entities to components: by a name
// matching both labels, else as the only table with foreign keys to both.
func (r *Resolver) findBridge(concept model.ScopeConcept, entT, compT int) (int, error) {
	for _, t := range r.desc.RealTables() {
		if t == entT || t == compT {
			continue
		}
		name := r.desc.TableName(t)
		if match.Partial(concept.Entities, name, match.RoleTable) && match.Partial(concept.Components, name, match.RoleTable) {
			r.found("entities_components", model.TableItem(name), "name")
			return t, nil
		}
	}

	var linking []int
	for _, t := range r.desc.RealTables() {
		if t == entT || t == compT {
			continue
		}
		var toEnt, toComp bool
		for _, fk := range r.desc.ForeignKeysOf(t) {
			switch r.desc.TableOf(fk.Ref) {
			case entT:
				toEnt = true
			case compT:
				toComp = true
			}
		}
		if toEnt && toComp {
			linking = append(linking, t)
		}
	}
	if len(linking) == 1 {
		r.found("entities_components", model.TableItem(r.desc.TableName(linking[0])), "foreign_keys")
		return linking[0], nil
	}

	if len(linking) > 1 {
		return 0, failure.Structural("entities_components", "%d tables reference both %s and %s: %v",
			len(linking), r.desc.TableName(entT), r.desc.TableName(compT), r.tableNamesOf(linking))
	}
	return 0, failure.Structural("entities_components", "no table links %s to %s",
		r.desc.TableName(entT), r.desc.TableName(compT))
}
