package resolver

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ambigdb/ambigdb/internal/model"
)

func (r *Resolver) quote(name string) string {
	return r.dialect.QuoteIdentifier(name)
}

func (r *Resolver) qualified(table, column string) string {
	return r.quote(table) + "." + r.quote(column)
}

// rows runs query (written with ? placeholders) and returns every row as a
// slice of normalized values.
func (r *Resolver) rows(ctx context.Context, query string, args ...interface{}) ([][]interface{}, error) {
	rs, err := r.q.QueryxContext(ctx, r.q.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", query, err)
	}
	defer rs.Close()

	var out [][]interface{}
	for rs.Next() {
		row, err := rs.SliceScan()
		if err != nil {
			return nil, fmt.Errorf("scan %q: %w", query, err)
		}
		for i := range row {
			row[i] = model.NormalizeValue(row[i])
		}
		out = append(out, row)
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("iterate %q: %w", query, err)
	}
	return out, nil
}

// column runs query and returns its first output column.
func (r *Resolver) column(ctx context.Context, query string, args ...interface{}) ([]interface{}, error) {
	rows, err := r.rows(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	out := make([]interface{}, 0, len(rows))
	for _, row := range rows {
		if len(row) > 0 {
			out = append(out, row[0])
		}
	}
	return out, nil
}

func (r *Resolver) count(ctx context.Context, query string, args ...interface{}) (int, error) {
	var n int64
	if err := sqlx.GetContext(ctx, r.q, &n, r.q.Rebind(query), args...); err != nil {
		return 0, fmt.Errorf("count %q: %w", query, err)
	}
	return int(n), nil
}

func (r *Resolver) tableRows(ctx context.Context, table string) (int, error) {
	return r.count(ctx, "SELECT COUNT(*) FROM "+r.quote(table))
}

// distinctValues returns the distinct values of column index c. Results are
// cached for the lifetime of the Resolver, so callers must not use it after
// the repair step has modified the column's table.
func (r *Resolver) distinctValues(ctx context.Context, c int) ([]interface{}, error) {
	if vals, ok := r.distinct[c]; ok {
		return vals, nil
	}
	table := r.desc.TableName(r.desc.TableOf(c))
	query := fmt.Sprintf("SELECT DISTINCT %s FROM %s", r.quote(r.desc.ColumnName(c)), r.quote(table))
	vals, err := r.column(ctx, query)
	if err != nil {
		return nil, err
	}
	r.distinct[c] = vals
	return vals, nil
}

// populated counts the non-empty values of column index c.
func (r *Resolver) populated(ctx context.Context, c int) (int, error) {
	vals, err := r.distinctValues(ctx, c)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, v := range vals {
		if !model.IsEmptyValue(v) {
			n++
		}
	}
	return n, nil
}

func valueStrings(vals []interface{}) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = model.ValueString(v)
	}
	return out
}

// selector is how a class value is picked out of its column: by equality on
// the stored value, or by a case-insensitive LIKE on a matched fragment.
type selector struct {
	value    interface{}
	fragment string
	like     bool
}

// predicate renders the WHERE condition selecting rows of expr.
func (s selector) predicate(expr string) (string, interface{}) {
	if s.like {
		return "LOWER(" + expr + ") LIKE ?", "%" + strings.ToLower(s.fragment) + "%"
	}
	return expr + " = ?", s.value
}

// display is the value recorded in the binding.
func (s selector) display() interface{} {
	if s.like {
		return s.fragment
	}
	return s.value
}

// buildInsert renders a parameterized INSERT for one row.
func (r *Resolver) buildInsert(table string, columns []string, values []interface{}) (string, []interface{}) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(r.quote(table))

	b.WriteString(" (")
	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = r.quote(col)
	}
	b.WriteString(strings.Join(quoted, ", "))
	b.WriteString(") VALUES (")
	for i := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("?")
	}
	b.WriteString(")")

	args := make([]interface{}, len(values))
	copy(args, values)
	return b.String(), args
}

// Literal renders v as a SQL literal for audit output.
func Literal(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'"
	case []byte:
		return Literal(string(x))
	case bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case time.Time:
		return "'" + x.Format(time.RFC3339Nano) + "'"
	default:
		return fmt.Sprint(x)
	}
}

// Render substitutes each ? placeholder of query with the literal form of the
// matching argument. Placeholders inside quoted strings or identifiers are
// left alone.
func Render(query string, args []interface{}) string {
	var b strings.Builder
	next := 0
	var quote rune
	for _, ch := range query {
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
			b.WriteRune(ch)
		case ch == '\'' || ch == '"' || ch == '`':
			quote = ch
			b.WriteRune(ch)
		case ch == '?' && next < len(args):
			b.WriteString(Literal(args[next]))
			next++
		default:
			b.WriteRune(ch)
		}
	}
	return b.String()
}
