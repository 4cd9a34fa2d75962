package resolver_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ambigdb/ambigdb/internal/connector"
	"github.com/ambigdb/ambigdb/internal/connector/sqlite"
	"github.com/ambigdb/ambigdb/internal/failure"
	"github.com/ambigdb/ambigdb/internal/model"
	"github.com/ambigdb/ambigdb/internal/resolver"
	"github.com/ambigdb/ambigdb/internal/schema"
)

// candidate is a seeded SQLite database with an open transaction and a
// resolver bound to it.
type candidate struct {
	tx   *sqlx.Tx
	desc *model.SchemaDescriptor
	r    *resolver.Resolver
}

func newCandidate(t *testing.T, stmts ...string) *candidate {
	t.Helper()
	conn := sqlite.New()
	require.NoError(t, conn.Connect(connector.ConnectionConfig{
		DSN:    filepath.Join(t.TempDir(), "candidate.sqlite"),
		Create: true,
	}))
	t.Cleanup(func() { conn.Disconnect() })

	for _, stmt := range stmts {
		_, err := conn.DB().Exec(stmt)
		require.NoError(t, err, stmt)
	}

	ctx := context.Background()
	tx, err := conn.BeginTx(ctx, nil)
	require.NoError(t, err)
	t.Cleanup(func() { tx.Rollback() })

	desc, err := schema.Introspect(ctx, conn, tx, t.Name(), nil)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts := resolver.DefaultOptions()
	opts.Rand = resolver.NewRand(7)
	return &candidate{tx: tx, desc: desc, r: resolver.New(tx, desc, conn, opts, logger)}
}

func (c *candidate) count(t *testing.T, query string, args ...interface{}) int {
	t.Helper()
	var n int
	require.NoError(t, c.tx.Get(&n, query, args...), query)
	return n
}

func TestResolveDispatch(t *testing.T) {
	c := newCandidate(t,
		`CREATE TABLE Fruit (name TEXT, color TEXT)`,
		`INSERT INTO Fruit VALUES ('apple', 'red'), ('cherry', 'red'), ('banana', 'yellow')`,
	)

	var spec model.ConceptSpec
	require.NoError(t, json.Unmarshal([]byte(`{
		"configuration": "1tab_val",
		"concept": {"class1": "apple", "class2": "cherry", "common_property": "color", "common_value": "red"}
	}`), &spec))

	res, err := c.r.Resolve(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, model.KindAttachment, res.Binding.Kind())
	assert.Equal(t, model.Attachment1TabVal, res.Binding.Configuration())
	assert.Empty(t, res.Statements)
}

func TestResolveRejectsIncompleteConcept(t *testing.T) {
	c := newCandidate(t, `CREATE TABLE t (a TEXT)`)

	spec := model.ConceptSpec{
		Configuration: model.Vague2Cols,
		Vague:         &model.VagueConcept{Subject: "a"},
	}
	_, err := c.r.Resolve(context.Background(), spec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "general_category1")
	assert.Equal(t, failure.KindInternal, failure.KindOf(err))
}
