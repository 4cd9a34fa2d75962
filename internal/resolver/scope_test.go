package resolver_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ambigdb/ambigdb/internal/failure"
	"github.com/ambigdb/ambigdb/internal/model"
)

func schoolSchema(extra ...string) []string {
	return append([]string{
		`CREATE TABLE students (id INTEGER PRIMARY KEY, name TEXT)`,
		`CREATE TABLE courses (id INTEGER PRIMARY KEY, title TEXT)`,
		`CREATE TABLE enrollments (
			id INTEGER PRIMARY KEY,
			student_id INTEGER REFERENCES students(id),
			course_id INTEGER REFERENCES courses(id),
			grade TEXT)`,
		`INSERT INTO students (name) VALUES ('Ann'), ('Bo'), ('Cy'), ('Di'), ('Ed')`,
		`INSERT INTO courses (title) VALUES ('Math'), ('History'), ('Art')`,
	}, extra...)
}

func schoolConcept() model.ScopeConcept {
	return model.ScopeConcept{Entities: "students", Components: "courses", SpecificComponent: "Math"}
}

func TestScopeRepairLinksEveryEntity(t *testing.T) {
	c := newCandidate(t, schoolSchema(
		`INSERT INTO enrollments (student_id, course_id, grade) VALUES (1, 1, 'A'), (2, 1, 'B')`,
	)...)

	b, stmts, err := c.r.ResolveScope(context.Background(), schoolConcept())
	require.NoError(t, err)

	assert.Equal(t, model.TableItem("students"), b.Entities)
	assert.Equal(t, model.TableItem("courses"), b.Components)
	assert.Equal(t, model.ValueItem("courses", "title", "Math"), b.SpecificComponent)
	assert.Equal(t, model.TableItem("enrollments"), b.EntitiesComponents)
	assert.Equal(t, "Each students has many different courses. Among them, Math is common to many students.", b.Template)

	for id := 1; id <= 5; id++ {
		n := c.count(t, `SELECT COUNT(*) FROM enrollments WHERE student_id = ? AND course_id = 1`, id)
		assert.Equal(t, 1, n, "student %d", id)
	}
	assert.GreaterOrEqual(t, c.count(t, `SELECT COUNT(*) FROM enrollments WHERE course_id <> 1`), 1)

	assert.Len(t, stmts, 4)
	assert.Equal(t, `INSERT INTO "enrollments" ("student_id", "course_id", "id") VALUES (3, 1, 3);`, stmts[0])
	assert.Equal(t, model.RepairStats{
		EntityCount:       5,
		BridgeRowsBefore:  2,
		BridgeRowsAfter:   6,
		LinksInserted:     3,
		ExtraLinkInserted: true,
	}, b.Repair)
}

func TestScopeRepairClonesExistingRows(t *testing.T) {
	c := newCandidate(t, schoolSchema(
		`INSERT INTO enrollments (student_id, course_id, grade) VALUES
			(1, 1, 'A'), (2, 1, 'B'), (3, 2, 'C'), (4, 3, 'D'), (5, 2, 'E')`,
	)...)

	b, stmts, err := c.r.ResolveScope(context.Background(), schoolConcept())
	require.NoError(t, err)
	require.Len(t, stmts, 3)

	assert.Equal(t, `INSERT INTO "enrollments" ("id", "student_id", "course_id", "grade") VALUES (6, 3, 1, 'C');`, stmts[0])
	assert.False(t, b.Repair.ExtraLinkInserted)
	assert.Equal(t, 3, b.Repair.LinksInserted)
	assert.Equal(t, 3, c.count(t, `SELECT COUNT(*) FROM enrollments WHERE course_id = 1 AND grade IN ('C', 'D', 'E')`))
}

func TestScopeAlreadyComplete(t *testing.T) {
	c := newCandidate(t, schoolSchema(
		`INSERT INTO enrollments (student_id, course_id) VALUES (1, 1), (2, 1), (3, 1), (4, 1), (5, 1), (5, 2)`,
	)...)

	b, stmts, err := c.r.ResolveScope(context.Background(), schoolConcept())
	require.NoError(t, err)
	assert.Empty(t, stmts)
	assert.Equal(t, 6, b.Repair.BridgeRowsAfter)
}

func TestScopeBridgeByName(t *testing.T) {
	c := newCandidate(t,
		`CREATE TABLE student (id INTEGER PRIMARY KEY, name TEXT)`,
		`CREATE TABLE course (code TEXT PRIMARY KEY, title TEXT)`,
		`CREATE TABLE student_course (student_ref INTEGER, course_ref TEXT)`,
		`INSERT INTO student (name) VALUES ('Ann'), ('Bo'), ('Cy')`,
		`INSERT INTO course VALUES ('M1', 'Math'), ('H1', 'History'), ('A1', 'Art')`,
		`INSERT INTO student_course VALUES (1, 'M1'), (2, 'H1')`,
	)

	concept := model.ScopeConcept{Entities: "student", Components: "course", SpecificComponent: "math"}
	b, stmts, err := c.r.ResolveScope(context.Background(), concept)
	require.NoError(t, err)
	assert.Equal(t, model.TableItem("student_course"), b.EntitiesComponents)
	assert.Len(t, stmts, 2)
	assert.Equal(t, 3, c.count(t, `SELECT COUNT(*) FROM student_course WHERE course_ref = 'M1'`))
}

func TestScopeFailures(t *testing.T) {
	tests := []struct {
		name    string
		stmts   []string
		concept model.ScopeConcept
		kind    failure.Kind
		role    string
	}{
		{
			name:    "specific component absent",
			stmts:   schoolSchema(),
			concept: model.ScopeConcept{Entities: "students", Components: "courses", SpecificComponent: "Physics"},
			kind:    failure.KindDataInsertion,
			role:    "specific_component",
		},
		{
			name: "specific component linked to no entity",
			stmts: schoolSchema(
				`INSERT INTO enrollments (student_id, course_id) VALUES (1, 2), (2, 3)`,
			),
			concept: schoolConcept(),
			kind:    failure.KindDataInsertion,
			role:    "specific_component",
		},
		{
			name:    "specific component outside components table",
			stmts:   schoolSchema(),
			concept: model.ScopeConcept{Entities: "courses", Components: "teachers", SpecificComponent: "Ann"},
			kind:    failure.KindStructural,
			role:    "components",
		},
		{
			name: "too few components",
			stmts: []string{
				`CREATE TABLE students (id INTEGER PRIMARY KEY, name TEXT)`,
				`CREATE TABLE courses (id INTEGER PRIMARY KEY, title TEXT)`,
				`INSERT INTO students (name) VALUES ('Ann'), ('Bo'), ('Cy')`,
				`INSERT INTO courses (title) VALUES ('Math'), ('Art')`,
			},
			concept: schoolConcept(),
			kind:    failure.KindStructural,
			role:    "components",
		},
		{
			name: "too few entities",
			stmts: []string{
				`CREATE TABLE students (id INTEGER PRIMARY KEY, name TEXT)`,
				`CREATE TABLE courses (id INTEGER PRIMARY KEY, title TEXT)`,
				`INSERT INTO students (name) VALUES ('Ann'), ('Bo')`,
				`INSERT INTO courses (title) VALUES ('Math'), ('History'), ('Art')`,
			},
			concept: schoolConcept(),
			kind:    failure.KindStructural,
			role:    "entities",
		},
		{
			name: "no bridge",
			stmts: []string{
				`CREATE TABLE students (id INTEGER PRIMARY KEY, name TEXT)`,
				`CREATE TABLE courses (id INTEGER PRIMARY KEY, title TEXT)`,
				`INSERT INTO students (name) VALUES ('Ann'), ('Bo'), ('Cy')`,
				`INSERT INTO courses (title) VALUES ('Math'), ('History'), ('Art')`,
			},
			concept: schoolConcept(),
			kind:    failure.KindStructural,
			role:    "entities_components",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCandidate(t, tt.stmts...)
			_, _, err := c.r.ResolveScope(context.Background(), tt.concept)
			require.Error(t, err)
			assert.Equal(t, tt.kind, failure.KindOf(err), "got %v", err)
			assert.Contains(t, err.Error(), tt.role)
		})
	}
}

func TestScopeComponentsTableMatchesExactly(t *testing.T) {
	c := newCandidate(t,
		`CREATE TABLE students (id INTEGER PRIMARY KEY, name TEXT)`,
		`CREATE TABLE courses_offered (id INTEGER PRIMARY KEY, title TEXT)`,
		`CREATE TABLE enrollments (
			id INTEGER PRIMARY KEY,
			student_id INTEGER REFERENCES students(id),
			course_id INTEGER REFERENCES courses_offered(id))`,
		`INSERT INTO students (name) VALUES ('Ann'), ('Bo'), ('Cy')`,
		`INSERT INTO courses_offered (title) VALUES ('Math'), ('History'), ('Art')`,
		`INSERT INTO enrollments (student_id, course_id) VALUES (1, 1), (2, 2)`,
	)

	_, stmts, err := c.r.ResolveScope(context.Background(), schoolConcept())
	require.Error(t, err)
	assert.Equal(t, failure.KindStructural, failure.KindOf(err), "got %v", err)
	assert.Contains(t, err.Error(), "courses_offered")
	assert.Empty(t, stmts)
	assert.Equal(t, 2, c.count(t, `SELECT COUNT(*) FROM enrollments`))
}
