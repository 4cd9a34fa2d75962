package schema_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/ambigdb/ambigdb/internal/connector"
	"github.com/ambigdb/ambigdb/internal/connector/sqlite"
	"github.com/ambigdb/ambigdb/internal/failure"
	"github.com/ambigdb/ambigdb/internal/model"
	"github.com/ambigdb/ambigdb/internal/schema"
)

func openCandidate(t *testing.T, stmts ...string) connector.Connector {
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
	return conn
}

func TestIntrospectIsIdempotent(t *testing.T) {
	conn := openCandidate(t,
		`CREATE TABLE students (id INTEGER PRIMARY KEY, name TEXT)`,
		`CREATE TABLE courses (id INTEGER PRIMARY KEY, title TEXT)`,
		`CREATE TABLE enrollments (
			id INTEGER PRIMARY KEY,
			student_id INTEGER REFERENCES students(id),
			course_id INTEGER REFERENCES courses(id))`,
		`INSERT INTO students (name) VALUES ('Ann'), ('Bo'), ('Cy')`,
	)
	ctx := context.Background()

	first, err := schema.Introspect(ctx, conn, conn.DB(), "school", nil)
	require.NoError(t, err)
	second, err := schema.Introspect(ctx, conn, conn.DB(), "school", nil)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("descriptors differ (-first +second):\n%s", diff)
	}

	want := []model.ForeignKeyPair{{Column: 6, Ref: 1}, {Column: 7, Ref: 3}}
	if diff := cmp.Diff(want, first.ForeignKeys); diff != "" {
		t.Errorf("foreign keys (-want +got):\n%s", diff)
	}
}

type brokenReader struct{}

func (brokenReader) IntrospectSchema(context.Context, sqlx.QueryerContext) (*model.Schema, error) {
	return nil, errors.New("file is not a database")
}

func TestIntrospectWrapsCatalogFailure(t *testing.T) {
	_, err := schema.Introspect(context.Background(), brokenReader{}, nil, "bad", nil)
	require.Error(t, err)
	require.True(t, failure.IsIntrospection(err))
}
