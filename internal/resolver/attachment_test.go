package resolver_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ambigdb/ambigdb/internal/failure"
	"github.com/ambigdb/ambigdb/internal/model"
)

func fruitConcept() model.AttachmentConcept {
	return model.AttachmentConcept{
		GeneralClass:   "fruit",
		Class1:         "apple",
		Class2:         "cherry",
		CommonProperty: "color",
		CommonValue:    "red",
		Template:       "Show me the apples and cherries that are red.",
	}
}

func TestAttachmentOneTableValue(t *testing.T) {
	c := newCandidate(t,
		`CREATE TABLE Fruit (name TEXT, color TEXT)`,
		`INSERT INTO Fruit VALUES ('apple', 'red'), ('cherry', 'red'), ('banana', 'yellow')`,
	)

	b, err := c.r.ResolveAttachment(context.Background(), model.Attachment1TabVal, fruitConcept())
	require.NoError(t, err)

	assert.Equal(t, model.ValueItem("Fruit", "color", "red"), b.CommonProperty)
	assert.Equal(t, model.ValueItem("Fruit", "name", "apple"), b.Class1)
	assert.Equal(t, model.ValueItem("Fruit", "name", "cherry"), b.Class2)
	require.NotNil(t, b.GeneralClass)
	assert.Equal(t, model.ColumnItem("Fruit", "name"), *b.GeneralClass)
	assert.Equal(t, model.Attachment1TabVal, b.Type)
	assert.Equal(t, t.Name(), b.Domain)
}

func TestAttachmentOneTableValueNeedsExtraRow(t *testing.T) {
	c := newCandidate(t,
		`CREATE TABLE Fruit (name TEXT, color TEXT)`,
		`INSERT INTO Fruit VALUES ('apple', 'red'), ('cherry', 'red')`,
	)

	_, err := c.r.ResolveAttachment(context.Background(), model.Attachment1TabVal, fruitConcept())
	require.Error(t, err)
	assert.True(t, failure.IsDataInsertion(err), "got %v", err)
	assert.Equal(t, failure.ActionRegenerateInserts, failure.NextAction(err))
}

func TestAttachmentOneTableValueNoOverlap(t *testing.T) {
	c := newCandidate(t,
		`CREATE TABLE Fruit (name TEXT, color TEXT)`,
		`INSERT INTO Fruit VALUES ('apple', 'green'), ('cherry', 'red'), ('banana', ''), ('kiwi', NULL)`,
	)

	_, err := c.r.ResolveAttachment(context.Background(), model.Attachment1TabVal, fruitConcept())
	require.Error(t, err)
	assert.True(t, failure.IsDataInsertion(err), "got %v", err)
}

func TestAttachmentOneTableValueSubstring(t *testing.T) {
	c := newCandidate(t,
		`CREATE TABLE produce (id INTEGER PRIMARY KEY, variety TEXT, colour TEXT)`,
		`INSERT INTO produce (variety, colour) VALUES
			('Green Apple', 'red'), ('Sour Cherry', 'red'), ('Banana', 'yellow')`,
	)

	concept := fruitConcept()
	concept.CommonProperty = "colours"
	b, err := c.r.ResolveAttachment(context.Background(), model.Attachment1TabVal, concept)
	require.NoError(t, err)

	assert.Equal(t, model.ValueItem("produce", "variety", "Apple"), b.Class1)
	assert.Equal(t, model.ValueItem("produce", "variety", "Cherry"), b.Class2)
	assert.Equal(t, model.ValueItem("produce", "colour", "red"), b.CommonProperty)
}

func TestAttachmentOneTableValueSharedSubstring(t *testing.T) {
	c := newCandidate(t,
		`CREATE TABLE produce (id INTEGER PRIMARY KEY, variety TEXT, colour TEXT)`,
		`INSERT INTO produce (variety, colour) VALUES
			('Red Apple Tart', 'red'), ('Green Apple', 'green'), ('Kiwi', 'brown'), ('Plum', 'red')`,
	)

	concept := model.AttachmentConcept{Class1: "apple", Class2: "red apple", CommonProperty: "colour"}
	b, err := c.r.ResolveAttachment(context.Background(), model.Attachment1TabVal, concept)
	require.NoError(t, err)

	assert.Equal(t, model.ValueItem("produce", "variety", "Apple"), b.Class1)
	assert.Equal(t, model.ValueItem("produce", "variety", "Red Apple"), b.Class2)
	assert.Equal(t, model.ValueItem("produce", "colour", "red"), b.CommonProperty)
}

func TestAttachmentStructuralFailures(t *testing.T) {
	tests := []struct {
		name    string
		concept func(model.AttachmentConcept) model.AttachmentConcept
		role    string
	}{
		{
			name: "missing class",
			concept: func(c model.AttachmentConcept) model.AttachmentConcept {
				c.Class2 = "durian"
				return c
			},
			role: "class1/class2",
		},
		{
			name: "missing property",
			concept: func(c model.AttachmentConcept) model.AttachmentConcept {
				c.CommonProperty = "weight"
				return c
			},
			role: "common_property",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCandidate(t,
				`CREATE TABLE Fruit (name TEXT, color TEXT)`,
				`INSERT INTO Fruit VALUES ('apple', 'red'), ('cherry', 'red'), ('banana', 'yellow')`,
			)
			_, err := c.r.ResolveAttachment(context.Background(), model.Attachment1TabVal, tt.concept(fruitConcept()))
			require.Error(t, err)
			assert.True(t, failure.IsStructural(err), "got %v", err)
			assert.Contains(t, err.Error(), tt.role)
		})
	}
}

func originsSchema() []string {
	return []string{
		`CREATE TABLE origins (id INTEGER PRIMARY KEY, country TEXT)`,
		`CREATE TABLE fruit (id INTEGER PRIMARY KEY, name TEXT, origin_id INTEGER REFERENCES origins(id))`,
		`INSERT INTO origins VALUES (1, 'Spain'), (2, 'Chile')`,
		`INSERT INTO fruit (name, origin_id) VALUES ('apple', 1), ('cherry', 1), ('banana', 2)`,
	}
}

func TestAttachmentOneTableRef(t *testing.T) {
	tests := []struct {
		name     string
		property string
		wantItem model.DBItem
	}{
		{"column property", "country", model.ValueItem("origins", "country", "Spain")},
		{"table property", "origin", model.ValueItem("origins", "country", "Spain")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCandidate(t, originsSchema()...)
			concept := fruitConcept()
			concept.CommonProperty = tt.property
			concept.CommonValue = "Spain"

			b, err := c.r.ResolveAttachment(context.Background(), model.Attachment1TabRef, concept)
			require.NoError(t, err)
			assert.Equal(t, tt.wantItem, b.CommonProperty)
			assert.Equal(t, model.ValueItem("fruit", "name", "apple"), b.Class1)
		})
	}
}

func TestAttachmentOneTableRefUnconnected(t *testing.T) {
	c := newCandidate(t,
		`CREATE TABLE origins (id INTEGER PRIMARY KEY, country TEXT)`,
		`CREATE TABLE fruit (id INTEGER PRIMARY KEY, name TEXT)`,
		`INSERT INTO origins VALUES (1, 'Spain')`,
		`INSERT INTO fruit (name) VALUES ('apple'), ('cherry')`,
	)
	concept := fruitConcept()
	concept.CommonProperty = "country"

	_, err := c.r.ResolveAttachment(context.Background(), model.Attachment1TabRef, concept)
	require.Error(t, err)
	assert.True(t, failure.IsStructural(err), "got %v", err)
}

func petsConcept() model.AttachmentConcept {
	return model.AttachmentConcept{
		GeneralClass:   "pets",
		Class1:         "cat",
		Class2:         "dog",
		CommonProperty: "color",
	}
}

func TestAttachmentTwoTableValue(t *testing.T) {
	c := newCandidate(t,
		`CREATE TABLE cats (id INTEGER PRIMARY KEY, name TEXT, color TEXT)`,
		`CREATE TABLE dogs (id INTEGER PRIMARY KEY, name TEXT, color TEXT)`,
		`INSERT INTO cats (name, color) VALUES ('Tom', 'black'), ('Kitty', 'white')`,
		`INSERT INTO dogs (name, color) VALUES ('Rex', 'black'), ('Fido', 'brown')`,
	)

	b, err := c.r.ResolveAttachment(context.Background(), model.Attachment2TabVal, petsConcept())
	require.NoError(t, err)
	assert.Equal(t, model.TableItem("cats"), b.Class1)
	assert.Equal(t, model.TableItem("dogs"), b.Class2)
	assert.Equal(t, model.ValueItem("cats", "color", "black"), b.CommonProperty)
	assert.Nil(t, b.GeneralClass)
}

func TestAttachmentTwoTableKindMismatch(t *testing.T) {
	c := newCandidate(t,
		`CREATE TABLE cats (id INTEGER PRIMARY KEY, name TEXT, color TEXT)`,
		`CREATE TABLE pets (id INTEGER PRIMARY KEY, dog TEXT, color TEXT)`,
		`INSERT INTO cats (name, color) VALUES ('Tom', 'black')`,
		`INSERT INTO pets (dog, color) VALUES ('Rex', 'black')`,
	)

	_, err := c.r.ResolveAttachment(context.Background(), model.Attachment2TabVal, petsConcept())
	require.Error(t, err)
	assert.True(t, failure.IsStructural(err), "got %v", err)
	assert.Contains(t, err.Error(), "class2")
}

func TestAttachmentTwoTableRef(t *testing.T) {
	c := newCandidate(t,
		`CREATE TABLE owners (id INTEGER PRIMARY KEY, name TEXT)`,
		`CREATE TABLE cats (id INTEGER PRIMARY KEY, name TEXT, owner_id INTEGER REFERENCES owners(id))`,
		`CREATE TABLE dogs (id INTEGER PRIMARY KEY, name TEXT, owner_id INTEGER REFERENCES owners(id))`,
		`INSERT INTO owners VALUES (1, 'Ann'), (2, 'Bob'), (3, 'Cy')`,
		`INSERT INTO cats (name, owner_id) VALUES ('Tom', 1), ('Kitty', 2)`,
		`INSERT INTO dogs (name, owner_id) VALUES ('Rex', 1), ('Fido', 3)`,
	)

	concept := petsConcept()
	concept.CommonProperty = "owner"
	b, err := c.r.ResolveAttachment(context.Background(), model.Attachment2TabRef, concept)
	require.NoError(t, err)
	assert.Equal(t, model.TableItem("cats"), b.Class1)
	assert.Equal(t, model.TableItem("dogs"), b.Class2)
	assert.Equal(t, model.ValueItem("owners", "name", "Ann"), b.CommonProperty)
}

func TestAttachmentRejectsOtherConfigurations(t *testing.T) {
	c := newCandidate(t, `CREATE TABLE t (a TEXT)`)
	_, err := c.r.ResolveAttachment(context.Background(), model.Vague2Cols, fruitConcept())
	require.Error(t, err)
}
