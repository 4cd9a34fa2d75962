// Package resolver locates the tables, columns and values that realize an
// ambiguity concept inside a candidate database, and repairs Scope data so the
// concept holds.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ambigdb/ambigdb/internal/connector"
	"github.com/ambigdb/ambigdb/internal/graph"
	"github.com/ambigdb/ambigdb/internal/model"
)

// Options tunes the row-count thresholds and randomness of a Resolver.
type Options struct {
	// MinEntityRows is the minimum row count of a Scope entities table.
	MinEntityRows int
	// MinComponentRows is the minimum number of distinct values in the column
	// holding a Scope specific component.
	MinComponentRows int
	// Rand drives common-value selection and the repair's extra component.
	// A time-seeded source is used when nil.
	Rand *rand.Rand
	// Verbose logs every located anchor at info level instead of debug.
	Verbose bool
}

// DefaultOptions returns the thresholds used when none are configured.
func DefaultOptions() Options {
	return Options{MinEntityRows: 3, MinComponentRows: 3}
}

// NewRand returns a deterministic source for seed, or a time-seeded one when
// seed is zero.
func NewRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Resolver validates concepts against one candidate database. Queries are
// issued sequentially on q, which should be the candidate's transaction so
// repair inserts stay invisible until commit. A Resolver is not safe for
// concurrent use; create one per candidate.
type Resolver struct {
	q       sqlx.ExtContext
	desc    *model.SchemaDescriptor
	graph   *graph.Graph
	dialect connector.Dialect
	opts    Options
	logger  *slog.Logger

	distinct map[int][]interface{}
}

// New creates a Resolver over desc, which must describe the database behind q.
func New(q sqlx.ExtContext, desc *model.SchemaDescriptor, dialect connector.Dialect, opts Options, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultOptions()
	if opts.MinEntityRows <= 0 {
		opts.MinEntityRows = defaults.MinEntityRows
	}
	if opts.MinComponentRows <= 0 {
		opts.MinComponentRows = defaults.MinComponentRows
	}
	if opts.Rand == nil {
		opts.Rand = NewRand(0)
	}
	logger = logger.With("db_id", desc.DBID)
	return &Resolver{
		q:        q,
		desc:     desc,
		graph:    graph.New(desc, logger),
		dialect:  dialect,
		opts:     opts,
		logger:   logger,
		distinct: make(map[int][]interface{}),
	}
}

// Result is a successful resolution: the binding and any statements the
// repair step executed, rendered as literal SQL.
type Result struct {
	Binding    model.Binding `json:"binding"`
	Statements []string      `json:"statements"`
}

// Resolve validates spec against the database and returns its binding.
func (r *Resolver) Resolve(ctx context.Context, spec model.ConceptSpec) (*Result, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid concept: %w", err)
	}

	switch spec.Kind() {
	case model.KindAttachment:
		b, err := r.ResolveAttachment(ctx, spec.Configuration, *spec.Attachment)
		if err != nil {
			return nil, err
		}
		return &Result{Binding: b, Statements: []string{}}, nil
	case model.KindScope:
		b, stmts, err := r.ResolveScope(ctx, *spec.Scope)
		if err != nil {
			return nil, err
		}
		return &Result{Binding: b, Statements: stmts}, nil
	case model.KindVague:
		b, err := r.ResolveVague(ctx, spec.Configuration, *spec.Vague)
		if err != nil {
			return nil, err
		}
		return &Result{Binding: b, Statements: []string{}}, nil
	default:
		return nil, fmt.Errorf("unsupported configuration %q", spec.Configuration)
	}
}

func (r *Resolver) found(role string, item model.DBItem, strategy string) {
	level := slog.LevelDebug
	if r.opts.Verbose {
		level = slog.LevelInfo
	}
	attrs := []any{"role", role, "kind", item.Kind().String(), "anchor", item.String()}
	if strategy != "" {
		attrs = append(attrs, "strategy", strategy)
	}
	r.logger.Log(context.Background(), level, "found anchor", attrs...)
}

// tableNames returns every real table name, for suggestions.
func (r *Resolver) tableNames() []string {
	return r.desc.Tables[1:]
}

// columnNames returns the distinct names of every real column, optionally
// limited to text columns.
func (r *Resolver) columnNames(textOnly bool) []string {
	seen := make(map[string]bool)
	var out []string
	for c := 1; c < len(r.desc.Columns); c++ {
		if textOnly && r.desc.ColumnType(c) != model.TypeText {
			continue
		}
		name := r.desc.ColumnName(c)
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}
