package graphstore_test

import (
	"path/filepath"
	"testing"

	"github.com/hupe1980/graphstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateNodeTableValidation(t *testing.T) {
	db := openTestDB(t, t.TempDir())
	createPersons(t, db)
	ctx := t.Context()

	tests := []struct {
		name  string
		table string
		props []graphstore.Property
		pk    string
		err   error
	}{
		{"exists", "Person", []graphstore.Property{{Name: "id", Type: graphstore.Int64}}, "id", graphstore.ErrTableExists},
		{"empty name", "", []graphstore.Property{{Name: "id", Type: graphstore.Int64}}, "id", graphstore.ErrInvalidArgument},
		{"no properties", "City", nil, "id", graphstore.ErrInvalidArgument},
		{"unknown primary key", "City", []graphstore.Property{{Name: "id", Type: graphstore.Int64}}, "name", graphstore.ErrInvalidArgument},
		{"duplicate property", "City", []graphstore.Property{{Name: "id", Type: graphstore.Int64}, {Name: "id", Type: graphstore.String}}, "id", graphstore.ErrPropertyExists},
		{"invalid type", "City", []graphstore.Property{{Name: "id", Type: graphstore.DataType(200)}}, "id", graphstore.ErrInvalidArgument},
		{"empty property name", "City", []graphstore.Property{{Name: "", Type: graphstore.Int64}}, "", graphstore.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := db.CreateNodeTable(ctx, tt.table, tt.props, tt.pk)
			assert.ErrorIs(t, err, tt.err)
		})
	}
	assert.Len(t, db.Tables(), 1)
}

func TestCreateRelTable(t *testing.T) {
	db := openTestDB(t, t.TempDir())
	createPersons(t, db)
	ctx := t.Context()
	_, err := db.CreateNodeTable(ctx, "City", []graphstore.Property{{Name: "id", Type: graphstore.Int64}}, "id")
	require.NoError(t, err)

	id, err := db.CreateRelTable(ctx, "LivesIn", "Person", "City", []graphstore.Property{{Name: "since", Type: graphstore.Int32}})
	require.NoError(t, err)

	info, err := db.Table("LivesIn")
	require.NoError(t, err)
	assert.Equal(t, id, info.ID)
	assert.Equal(t, graphstore.RelTableKind, info.Kind)
	assert.Equal(t, "Person", info.Src)
	assert.Equal(t, "City", info.Dst)
	assert.Equal(t, []graphstore.Property{{Name: "since", Type: graphstore.Int32}}, info.Properties)

	_, err = db.CreateRelTable(ctx, "Knows", "Person", "Nope", nil)
	assert.ErrorIs(t, err, graphstore.ErrTableNotFound)
	_, err = db.CreateRelTable(ctx, "Meta", "LivesIn", "Person", nil)
	assert.ErrorIs(t, err, graphstore.ErrInvalidArgument)
	_, err = db.CreateRelTable(ctx, "LivesIn", "Person", "City", nil)
	assert.ErrorIs(t, err, graphstore.ErrTableExists)
}

func TestDropTable(t *testing.T) {
	dir := t.TempDir()
	db := openTestDB(t, dir)
	createPersons(t, db)
	ctx := t.Context()
	_, err := db.CreateRelTable(ctx, "Knows", "Person", "Person", nil)
	require.NoError(t, err)
	insertPerson(t, db, "alice", 42)

	err = db.DropTable(ctx, "Person")
	var cv *graphstore.ErrConstraintViolation
	require.ErrorAs(t, err, &cv)
	assert.Equal(t, graphstore.ConstraintReferenced, cv.Constraint)

	require.NoError(t, db.DropTable(ctx, "Knows"))
	require.NoError(t, db.DropTable(ctx, "Person"))
	assert.ErrorIs(t, db.DropTable(ctx, "Person"), graphstore.ErrTableNotFound)
	assert.Empty(t, db.Tables())

	err = db.View(ctx, func(tx *graphstore.Tx) error {
		_, err := tx.Count("Person")
		return err
	})
	assert.ErrorIs(t, err, graphstore.ErrTableNotFound)

	// The name can be reused with a fresh id and an empty index.
	createPersons(t, db)
	info, err := db.Table("Person")
	require.NoError(t, err)
	assert.Equal(t, graphstore.TableID(2), info.ID)
	insertPerson(t, db, "alice", 1)

	require.NoError(t, db.Checkpoint(ctx))
	matches, err := filepath.Glob(filepath.Join(dir, "pk-000000-*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestAddProperty(t *testing.T) {
	dir := t.TempDir()
	db := openTestDB(t, dir, graphstore.WithNodeGroupSizeLog2(4))
	createPersons(t, db)
	for i := range 20 {
		insertPerson(t, db, personName(i), int64(i))
	}
	ctx := t.Context()

	require.NoError(t, db.AddProperty(ctx, "Person", graphstore.Property{Name: "active", Type: graphstore.Bool}, graphstore.NewBool(true)))
	require.NoError(t, db.AddProperty(ctx, "Person", graphstore.Property{Name: "city", Type: graphstore.String}, graphstore.Value{}))

	assert.ErrorIs(t, db.AddProperty(ctx, "Person", graphstore.Property{Name: "age", Type: graphstore.Int64}, graphstore.Value{}), graphstore.ErrPropertyExists)
	assert.ErrorIs(t, db.AddProperty(ctx, "Person", graphstore.Property{Name: "x", Type: graphstore.Int64}, graphstore.NewString("a")), graphstore.ErrTypeMismatch)
	assert.ErrorIs(t, db.AddProperty(ctx, "City", graphstore.Property{Name: "x", Type: graphstore.Int64}, graphstore.Value{}), graphstore.ErrTableNotFound)

	check := func(db *graphstore.DB) {
		require.NoError(t, db.View(ctx, func(tx *graphstore.Tx) error {
			off, err := tx.LookupPK("Person", graphstore.NewString(personName(17)))
			require.NoError(t, err)
			row, err := tx.Get("Person", off, "active", "city")
			require.NoError(t, err)
			assert.True(t, row.Values["active"].Bool())
			assert.True(t, row.Values["city"].IsNull())
			return nil
		}))
	}
	check(db)

	// New rows can set the new property.
	require.NoError(t, db.Update(ctx, func(tx *graphstore.Tx) error {
		_, err := tx.Insert("Person", map[string]graphstore.Value{
			"name": graphstore.NewString("zed"),
			"city": graphstore.NewString("Berlin"),
		})
		return err
	}))

	require.NoError(t, db.Close())
	db = openTestDB(t, dir)
	check(db)
	info, err := db.Table("Person")
	require.NoError(t, err)
	require.Len(t, info.Properties, 5)
	assert.Equal(t, "city", info.Properties[4].Name)
}

func TestDropProperty(t *testing.T) {
	db := openTestDB(t, t.TempDir())
	createPersons(t, db)
	insertPerson(t, db, "alice", 42)
	ctx := t.Context()

	err := db.DropProperty(ctx, "Person", "name")
	var cv *graphstore.ErrConstraintViolation
	require.ErrorAs(t, err, &cv)
	assert.Equal(t, graphstore.ConstraintPrimaryKey, cv.Constraint)

	assert.ErrorIs(t, db.DropProperty(ctx, "Person", "height"), graphstore.ErrPropertyNotFound)
	require.NoError(t, db.DropProperty(ctx, "Person", "age"))

	require.NoError(t, db.View(ctx, func(tx *graphstore.Tx) error {
		off, err := tx.LookupPK("Person", graphstore.NewString("alice"))
		require.NoError(t, err)
		row, err := tx.Get("Person", off)
		require.NoError(t, err)
		assert.Len(t, row.Values, 2)
		assert.NotContains(t, row.Values, "age")
		_, err = tx.Get("Person", off, "age")
		assert.ErrorIs(t, err, graphstore.ErrPropertyNotFound)
		return nil
	}))

	// A dropped name can be added again and starts out NULL.
	require.NoError(t, db.AddProperty(ctx, "Person", graphstore.Property{Name: "age", Type: graphstore.Int32}, graphstore.Value{}))
	require.NoError(t, db.View(ctx, func(tx *graphstore.Tx) error {
		row, err := tx.Get("Person", 0, "age")
		require.NoError(t, err)
		assert.True(t, row.Values["age"].IsNull())
		return nil
	}))
}

func TestRelTableProperties(t *testing.T) {
	dir := t.TempDir()
	db := openTestDB(t, dir)
	createPersons(t, db)
	ctx := t.Context()
	_, err := db.CreateRelTable(ctx, "Knows", "Person", "Person", nil)
	require.NoError(t, err)

	require.NoError(t, db.AddProperty(ctx, "Knows", graphstore.Property{Name: "since", Type: graphstore.Int32}, graphstore.Value{}))
	require.NoError(t, db.AddProperty(ctx, "Knows", graphstore.Property{Name: "weight", Type: graphstore.Double}, graphstore.Value{}))
	require.NoError(t, db.DropProperty(ctx, "Knows", "since"))
	require.NoError(t, db.Close())

	db = openTestDB(t, dir)
	info, err := db.Table("Knows")
	require.NoError(t, err)
	assert.Equal(t, []graphstore.Property{{Name: "weight", Type: graphstore.Double}}, info.Properties)
}
