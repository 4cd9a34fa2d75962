// Package graph treats the foreign keys of a SchemaDescriptor as an
// undirected graph over its tables.
package graph

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ambigdb/ambigdb/internal/match"
	"github.com/ambigdb/ambigdb/internal/model"
)

// Graph is an undirected adjacency view of a descriptor's foreign keys.
// Neighbors are listed in foreign key declaration order.
type Graph struct {
	desc      *model.SchemaDescriptor
	neighbors map[int][]int
	logger    *slog.Logger
}

// New builds the graph for desc. Self-referencing keys add no edge.
func New(desc *model.SchemaDescriptor, logger *slog.Logger) *Graph {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Graph{desc: desc, neighbors: make(map[int][]int), logger: logger}
	for _, fk := range desc.ForeignKeys {
		a, b := desc.TableOf(fk.Column), desc.TableOf(fk.Ref)
		if a <= 0 || b <= 0 || a == b {
			continue
		}
		g.neighbors[a] = append(g.neighbors[a], b)
		g.neighbors[b] = append(g.neighbors[b], a)
	}
	return g
}

// Descriptor returns the descriptor the graph was built from.
func (g *Graph) Descriptor() *model.SchemaDescriptor { return g.desc }

func (g *Graph) known(t int) bool {
	return t > 0 && t < len(g.desc.Tables)
}

// ConnectedTables returns every table reachable from start, start first, in
// breadth-first discovery order. It returns nil when start is not a table.
func (g *Graph) ConnectedTables(start int) []int {
	if !g.known(start) {
		g.logger.Warn("table not found in schema", "db_id", g.desc.DBID, "table_index", start)
		return nil
	}

	visited := map[int]bool{start: true}
	order := []int{start}
	queue := []int{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, n := range g.neighbors[cur] {
			if !visited[n] {
				visited[n] = true
				order = append(order, n)
				queue = append(queue, n)
			}
		}
	}
	return order
}

// ShortestPath returns the first shortest path from start to end found by
// breadth-first search, or nil when end is unreachable.
func (g *Graph) ShortestPath(start, end int) []int {
	if !g.known(start) || !g.known(end) {
		return nil
	}
	if start == end {
		return []int{start}
	}

	prev := map[int]int{start: start}
	queue := []int{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, n := range g.neighbors[cur] {
			if _, seen := prev[n]; seen {
				continue
			}
			prev[n] = cur
			if n == end {
				return unwind(prev, start, end)
			}
			queue = append(queue, n)
		}
	}
	return nil
}

func unwind(prev map[int]int, start, end int) []int {
	var rev []int
	for cur := end; cur != start; cur = prev[cur] {
		rev = append(rev, cur)
	}
	rev = append(rev, start)
	path := make([]int, len(rev))
	for i, t := range rev {
		path[len(rev)-1-i] = t
	}
	return path
}

// Adjacent reports whether some foreign key has one endpoint in a and the
// other in b.
func (g *Graph) Adjacent(a, b int) bool {
	for _, n := range g.neighbors[a] {
		if n == b {
			return true
		}
	}
	return false
}

// JoinStep is one equi-join between consecutive tables of a path. Table is
// the side that comes first in the path.
type JoinStep struct {
	Table     string `json:"table"`
	Column    string `json:"column"`
	RefTable  string `json:"ref_table"`
	RefColumn string `json:"ref_column"`
}

// JoinColumns resolves one foreign key per consecutive pair of path. When
// several keys connect a pair, the first whose column names partially match
// hint wins; otherwise the first in declaration order.
func (g *Graph) JoinColumns(path []int, hint string) ([]JoinStep, error) {
	steps := make([]JoinStep, 0, len(path))
	for i := 0; i+1 < len(path); i++ {
		a, b := path[i], path[i+1]

		var candidates []JoinStep
		for _, fk := range g.desc.ForeignKeys {
			src, dst := g.desc.TableOf(fk.Column), g.desc.TableOf(fk.Ref)
			switch {
			case src == a && dst == b:
				candidates = append(candidates, g.step(fk.Column, fk.Ref))
			case src == b && dst == a:
				candidates = append(candidates, g.step(fk.Ref, fk.Column))
			}
		}
		if len(candidates) == 0 {
			return nil, fmt.Errorf("no foreign key joins %s and %s", g.desc.TableName(a), g.desc.TableName(b))
		}

		chosen := candidates[0]
		if len(candidates) > 1 && hint != "" {
			for _, c := range candidates {
				if match.Partial(hint, c.Column, match.RoleColumn) || match.Partial(hint, c.RefColumn, match.RoleColumn) {
					chosen = c
					break
				}
			}
		}
		steps = append(steps, chosen)
	}
	return steps, nil
}

func (g *Graph) step(from, to int) JoinStep {
	return JoinStep{
		Table:     g.desc.TableName(g.desc.TableOf(from)),
		Column:    g.desc.ColumnName(from),
		RefTable:  g.desc.TableName(g.desc.TableOf(to)),
		RefColumn: g.desc.ColumnName(to),
	}
}

// FormatJoin renders start and steps as a FROM-clause body such as
// "a JOIN b ON a.x = b.y JOIN c ON b.z = c.w". quote is applied to every
// identifier.
func FormatJoin(start string, steps []JoinStep, quote func(string) string) string {
	if quote == nil {
		quote = func(s string) string { return s }
	}
	var b strings.Builder
	b.WriteString(quote(start))
	for _, s := range steps {
		fmt.Fprintf(&b, " JOIN %s ON %s.%s = %s.%s",
			quote(s.RefTable),
			quote(s.Table), quote(s.Column),
			quote(s.RefTable), quote(s.RefColumn))
	}
	return b.String()
}
