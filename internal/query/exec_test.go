package query_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ambigdb/ambigdb/internal/connector"
	"github.com/ambigdb/ambigdb/internal/connector/sqlite"
	"github.com/ambigdb/ambigdb/internal/failure"
	"github.com/ambigdb/ambigdb/internal/query"
	"github.com/ambigdb/ambigdb/internal/schema"
)

func scratch(t *testing.T) connector.Connector {
	t.Helper()
	conn := sqlite.New()
	require.NoError(t, conn.Connect(connector.ConnectionConfig{
		DSN:    filepath.Join(t.TempDir(), "scratch.sqlite"),
		Create: true,
	}))
	t.Cleanup(func() { conn.Disconnect() })
	return conn
}

func TestExecuteSanitizedOutput(t *testing.T) {
	conn := scratch(t)
	s := query.Sanitize("```sql\n" +
		"CREATE TABLE Fruit (\n" +
		"  id INT PRIMARY KEY ,\n" +
		"  name TEXT NOT NULL UNIQUE,\n" +
		"  size ENUM('S', 'L'),\n" +
		"  CHECK (id > 0)\n" +
		");\n" +
		"INSERT INTO Fruit (id, name, size) VALUES (1, 'apple', 'S'), (2, 'apple', 'XL');\n" +
		"```\n")

	require.NoError(t, query.ExecuteStatements(context.Background(), conn.DB(), s.All()))

	var n int
	require.NoError(t, conn.DB().Get(&n, `SELECT COUNT(*) FROM Fruit WHERE name = 'apple'`))
	assert.Equal(t, 2, n)
}

func TestExecuteStatementsRollsBack(t *testing.T) {
	conn := scratch(t)
	err := query.ExecuteStatements(context.Background(), conn.DB(), []string{
		`CREATE TABLE t (id INTEGER PRIMARY KEY)`,
		`INSERT INTO t VALUES (1)`,
		`INSERT INTO missing VALUES (1)`,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "statement 3 of 3")

	var n int
	require.NoError(t, conn.DB().Get(&n, `SELECT COUNT(*) FROM sqlite_master WHERE name = 't'`))
	assert.Zero(t, n)
}

func TestCountColumns(t *testing.T) {
	conn := scratch(t)
	require.NoError(t, query.ExecuteStatements(context.Background(), conn.DB(), []string{
		`CREATE TABLE wide (a TEXT, b TEXT, c TEXT)`,
		`CREATE TABLE narrow (a TEXT)`,
	}))
	desc, err := schema.Introspect(context.Background(), conn, conn.DB(), "count", nil)
	require.NoError(t, err)

	assert.NoError(t, query.CountColumns(desc, 0))
	assert.NoError(t, query.CountColumns(desc, 1))

	err = query.CountColumns(desc, 2)
	require.Error(t, err)
	assert.True(t, failure.IsStructural(err))
	assert.Contains(t, err.Error(), "narrow")
}
