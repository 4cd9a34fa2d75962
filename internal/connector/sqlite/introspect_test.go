package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ambigdb/ambigdb/internal/connector"
)

func newTestConnector(t *testing.T, stmts ...string) *SQLiteConnector {
	t.Helper()
	c := New().(*SQLiteConnector)
	dsn := filepath.Join(t.TempDir(), "candidate.sqlite")
	require.NoError(t, c.Connect(connector.ConnectionConfig{DSN: dsn, Create: true}))
	t.Cleanup(func() { c.Disconnect() })

	for _, stmt := range stmts {
		_, err := c.DB().Exec(stmt)
		require.NoError(t, err, stmt)
	}
	return c
}

func TestIntrospectSchemaCatalogOrder(t *testing.T) {
	c := newTestConnector(t,
		`CREATE TABLE students (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL)`,
		`CREATE TABLE courses (course_id INT PRIMARY KEY, title VARCHAR(80))`,
		`CREATE TABLE enrollments (
			student_id INTEGER REFERENCES students(id),
			course_id INTEGER,
			grade REAL,
			PRIMARY KEY (student_id, course_id),
			FOREIGN KEY (course_id) REFERENCES courses)`,
		`INSERT INTO students (name) VALUES ('Ann'), ('Bo')`,
	)

	schema, err := c.IntrospectSchema(context.Background(), c.DB())
	require.NoError(t, err)

	// sqlite_sequence is created by AUTOINCREMENT and must be skipped.
	names := make([]string, 0, len(schema.Tables))
	for _, ts := range schema.Tables {
		names = append(names, ts.Name)
	}
	assert.Equal(t, []string{"students", "courses", "enrollments"}, names)

	students := schema.Table("students")
	require.NotNil(t, students)
	assert.Equal(t, []string{"id"}, students.PrimaryKey)
	assert.True(t, students.Columns[0].IsAutoIncrement)
	assert.False(t, students.Columns[1].Nullable)
	require.NotNil(t, students.RowCount)
	assert.EqualValues(t, 2, *students.RowCount)

	courses := schema.Table("courses")
	require.NotNil(t, courses)
	assert.False(t, courses.Columns[0].IsAutoIncrement, "INT PRIMARY KEY is not a rowid alias")

	enroll := schema.Table("enrollments")
	require.NotNil(t, enroll)
	assert.Equal(t, []string{"student_id", "course_id"}, enroll.PrimaryKey)
	require.Len(t, enroll.ForeignKeys, 2)
	assert.Equal(t, "student_id", enroll.ForeignKeys[0].ColumnName)
	assert.Equal(t, "id", enroll.ForeignKeys[0].ReferencedColumn)
	assert.Equal(t, "course_id", enroll.ForeignKeys[1].ColumnName)
	assert.Equal(t, "courses", enroll.ForeignKeys[1].ReferencedTable)
	assert.Empty(t, enroll.ForeignKeys[1].ReferencedColumn, "implicit parent key")
}

func TestIntrospectInsideTransaction(t *testing.T) {
	c := newTestConnector(t, `CREATE TABLE a (id INTEGER PRIMARY KEY)`)
	ctx := context.Background()

	tx, err := c.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()

	_, err = tx.Exec(`CREATE TABLE b (id INTEGER PRIMARY KEY, a_id INTEGER REFERENCES a(id))`)
	require.NoError(t, err)

	names, err := c.GetTableNames(ctx, tx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)

	ts, err := c.IntrospectTable(ctx, tx, "b")
	require.NoError(t, err)
	assert.Len(t, ts.ForeignKeys, 1)
}

func TestIntrospectTableMissing(t *testing.T) {
	c := newTestConnector(t)
	_, err := c.IntrospectTable(context.Background(), c.DB(), "nope")
	assert.Error(t, err)
}

func TestQuoteIdentifier(t *testing.T) {
	c := &SQLiteConnector{}
	assert.Equal(t, `"order"`, c.QuoteIdentifier("order"))
	assert.Equal(t, `"we""ird"`, c.QuoteIdentifier(`we"ird`))
}

func TestConnectRequiresExistingFile(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "absent.sqlite")
	err := New().Connect(connector.ConnectionConfig{DSN: dsn})
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)

	c := New()
	require.NoError(t, c.Connect(connector.ConnectionConfig{DSN: ":memory:"}))
	c.Disconnect()
}

func TestFilePath(t *testing.T) {
	tests := []struct {
		dsn  string
		want string
	}{
		{"/tmp/cand.sqlite", "/tmp/cand.sqlite"},
		{"file:/tmp/cand.sqlite?_pragma=busy_timeout(5000)", "/tmp/cand.sqlite"},
		{":memory:", ""},
		{"file:cand?mode=memory&cache=shared", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, filePath(tt.dsn), tt.dsn)
	}
}
