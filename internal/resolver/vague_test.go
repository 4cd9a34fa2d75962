package resolver_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ambigdb/ambigdb/internal/failure"
	"github.com/ambigdb/ambigdb/internal/model"
)

func TestVagueTwoTables(t *testing.T) {
	concept := model.VagueConcept{Subject: "books", GeneralCategory1: "authors", GeneralCategory2: "publishers"}

	t.Run("linked", func(t *testing.T) {
		c := newCandidate(t,
			`CREATE TABLE authors (id INTEGER PRIMARY KEY, name TEXT)`,
			`CREATE TABLE publishers (id INTEGER PRIMARY KEY, name TEXT)`,
			`CREATE TABLE books (
				id INTEGER PRIMARY KEY,
				title TEXT,
				author_id INTEGER REFERENCES authors(id),
				publisher_id INTEGER REFERENCES publishers(id))`,
			`INSERT INTO authors (name) VALUES ('Le Guin')`,
			`INSERT INTO publishers (name) VALUES ('Ace')`,
			`INSERT INTO books (title, author_id, publisher_id) VALUES ('Earthsea', 1, 1)`,
		)

		b, err := c.r.ResolveVague(context.Background(), model.Vague2Tabs, concept)
		require.NoError(t, err)
		assert.Equal(t, model.TableItem("books"), b.Subject)
		assert.Equal(t, model.TableItem("authors"), b.GeneralCategory1)
		assert.Equal(t, model.TableItem("publishers"), b.GeneralCategory2)
		assert.Equal(t, model.Vague2Tabs, b.Configuration())
	})

	t.Run("category not linked to subject", func(t *testing.T) {
		c := newCandidate(t,
			`CREATE TABLE authors (id INTEGER PRIMARY KEY, name TEXT)`,
			`CREATE TABLE publishers (id INTEGER PRIMARY KEY, name TEXT)`,
			`CREATE TABLE books (id INTEGER PRIMARY KEY, title TEXT, author_id INTEGER REFERENCES authors(id))`,
			`INSERT INTO authors (name) VALUES ('Le Guin')`,
			`INSERT INTO publishers (name) VALUES ('Ace')`,
			`INSERT INTO books (title, author_id) VALUES ('Earthsea', 1)`,
		)

		_, err := c.r.ResolveVague(context.Background(), model.Vague2Tabs, concept)
		require.Error(t, err)
		assert.True(t, failure.IsStructural(err))
		assert.Contains(t, err.Error(), "general_category2")
		assert.Contains(t, err.Error(), "publishers")
	})

	t.Run("empty category table", func(t *testing.T) {
		c := newCandidate(t,
			`CREATE TABLE authors (id INTEGER PRIMARY KEY, name TEXT)`,
			`CREATE TABLE publishers (id INTEGER PRIMARY KEY, name TEXT)`,
			`CREATE TABLE books (
				id INTEGER PRIMARY KEY,
				title TEXT,
				author_id INTEGER REFERENCES authors(id),
				publisher_id INTEGER REFERENCES publishers(id))`,
			`INSERT INTO authors (name) VALUES ('Le Guin')`,
		)

		_, err := c.r.ResolveVague(context.Background(), model.Vague2Tabs, concept)
		require.Error(t, err)
		assert.True(t, failure.IsDataInsertion(err))
		assert.Contains(t, err.Error(), "general_category2")
		assert.Equal(t, failure.ActionRegenerateInserts, failure.NextAction(err))
	})
}

func TestVagueTwoColumns(t *testing.T) {
	concept := model.VagueConcept{Subject: "title", GeneralCategory1: "director", GeneralCategory2: "producer"}

	tests := []struct {
		name    string
		stmts   []string
		concept model.VagueConcept
		subject model.DBItem
		kind    failure.Kind
		msg     string
	}{
		{
			name: "same table",
			stmts: []string{
				`CREATE TABLE films (id INTEGER PRIMARY KEY, title TEXT, director TEXT, producer TEXT)`,
				`INSERT INTO films (title, director, producer) VALUES ('Alien', 'Scott', 'Carroll')`,
			},
			concept: concept,
			subject: model.ColumnItem("films", "title"),
		},
		{
			name: "subject falls back to table",
			stmts: []string{
				`CREATE TABLE films (id INTEGER PRIMARY KEY, title TEXT, director TEXT, producer TEXT)`,
				`INSERT INTO films (title, director, producer) VALUES ('Alien', 'Scott', 'Carroll')`,
			},
			concept: model.VagueConcept{Subject: "films", GeneralCategory1: "director", GeneralCategory2: "producer"},
			subject: model.TableItem("films"),
		},
		{
			name: "empty category column",
			stmts: []string{
				`CREATE TABLE films (id INTEGER PRIMARY KEY, title TEXT, director TEXT, producer TEXT)`,
				`INSERT INTO films (title, director) VALUES ('Alien', 'Scott')`,
			},
			concept: concept,
			kind:    failure.KindDataInsertion,
			msg:     "general_category2",
		},
		{
			name: "categories in different tables",
			stmts: []string{
				`CREATE TABLE films (id INTEGER PRIMARY KEY, title TEXT, director TEXT)`,
				`CREATE TABLE studios (id INTEGER PRIMARY KEY, producer TEXT)`,
				`INSERT INTO films (title, director) VALUES ('Alien', 'Scott')`,
				`INSERT INTO studios (producer) VALUES ('Carroll')`,
			},
			concept: concept,
			kind:    failure.KindStructural,
			msg:     "no table holds columns matching both",
		},
		{
			name: "missing category",
			stmts: []string{
				`CREATE TABLE films (id INTEGER PRIMARY KEY, title TEXT, producer TEXT)`,
			},
			concept: concept,
			kind:    failure.KindStructural,
			msg:     "general_category1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCandidate(t, tt.stmts...)
			b, err := c.r.ResolveVague(context.Background(), model.Vague2Cols, tt.concept)
			if tt.msg != "" {
				require.Error(t, err)
				assert.Equal(t, tt.kind, failure.KindOf(err), "got %v", err)
				assert.Contains(t, err.Error(), tt.msg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.subject, b.Subject)
			assert.Equal(t, model.ColumnItem("films", "director"), b.GeneralCategory1)
			assert.Equal(t, model.ColumnItem("films", "producer"), b.GeneralCategory2)
		})
	}
}
