package graphstore_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/hupe1980/graphstore"
	"github.com/hupe1980/graphstore/internal/fs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T, dir string, opts ...graphstore.Option) *graphstore.DB {
	t.Helper()
	db, err := graphstore.Open(t.Context(), dir, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func createPersons(t *testing.T, db *graphstore.DB) {
	t.Helper()
	_, err := db.CreateNodeTable(t.Context(), "Person", []graphstore.Property{
		{Name: "name", Type: graphstore.String},
		{Name: "age", Type: graphstore.Int64},
		{Name: "score", Type: graphstore.Double},
	}, "name")
	require.NoError(t, err)
}

func insertPerson(t *testing.T, db *graphstore.DB, name string, age int64) graphstore.Offset {
	t.Helper()
	var off graphstore.Offset
	err := db.Update(t.Context(), func(tx *graphstore.Tx) error {
		var err error
		off, err = tx.Insert("Person", map[string]graphstore.Value{
			"name": graphstore.NewString(name),
			"age":  graphstore.NewInt64(age),
		})
		return err
	})
	require.NoError(t, err)
	return off
}

func personName(i int) string { return fmt.Sprintf("person-%04d", i) }

func TestOpenCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "db")
	db := openTestDB(t, dir)

	assert.Equal(t, dir, db.Dir())
	assert.Equal(t, uint64(0), db.ManifestID())
	assert.Empty(t, db.Tables())

	_, err := os.Stat(filepath.Join(dir, "data.gs"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "wal.log"))
	assert.NoError(t, err)
}

func TestOpenInvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opt  graphstore.Option
	}{
		{"node group too small", graphstore.WithNodeGroupSizeLog2(1)},
		{"node group too large", graphstore.WithNodeGroupSizeLog2(30)},
		{"shards not power of two", graphstore.WithNumIndexShards(3)},
		{"zero shards", graphstore.WithNumIndexShards(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := graphstore.Open(t.Context(), t.TempDir(), tt.opt)
			assert.ErrorIs(t, err, graphstore.ErrInvalidArgument)
		})
	}
}

func TestReopenPreservesData(t *testing.T) {
	dir := t.TempDir()
	ctx := t.Context()

	db, err := graphstore.Open(ctx, dir, graphstore.WithNodeGroupSizeLog2(4))
	require.NoError(t, err)
	createPersons(t, db)
	_, err = db.CreateRelTable(ctx, "Knows", "Person", "Person", []graphstore.Property{{Name: "since", Type: graphstore.Int32}})
	require.NoError(t, err)
	for i := range 40 {
		insertPerson(t, db, personName(i), int64(i))
	}
	require.NoError(t, db.Update(ctx, func(tx *graphstore.Tx) error {
		off, err := tx.LookupPK("Person", graphstore.NewString(personName(7)))
		if err != nil {
			return err
		}
		return tx.Delete("Person", off)
	}))
	require.NoError(t, db.Close())

	// The existing node group size wins over the option.
	db = openTestDB(t, dir, graphstore.WithNodeGroupSizeLog2(8))
	assert.Equal(t, uint64(1), db.ManifestID())

	tables := db.Tables()
	require.Len(t, tables, 2)
	assert.Equal(t, "Person", tables[0].Name)
	assert.Equal(t, graphstore.NodeTableKind, tables[0].Kind)
	assert.Equal(t, "name", tables[0].PrimaryKey)
	assert.Equal(t, "Knows", tables[1].Name)
	assert.Equal(t, graphstore.RelTableKind, tables[1].Kind)
	assert.Equal(t, "Person", tables[1].Src)

	require.NoError(t, db.View(ctx, func(tx *graphstore.Tx) error {
		n, err := tx.Count("Person")
		require.NoError(t, err)
		assert.Equal(t, uint64(39), n)

		_, err = tx.LookupPK("Person", graphstore.NewString(personName(7)))
		assert.ErrorIs(t, err, graphstore.ErrNotFound)

		off, err := tx.LookupPK("Person", graphstore.NewString(personName(33)))
		require.NoError(t, err)
		row, err := tx.Get("Person", off)
		require.NoError(t, err)
		assert.Equal(t, int64(33), row.Values["age"].Int64())
		assert.True(t, row.Values["score"].IsNull())
		return nil
	}))

	// Deleted offsets are reused after reopening.
	off := insertPerson(t, db, "newcomer", 1)
	assert.Equal(t, graphstore.Offset(7), off)
}

func TestCheckpointAdvancesManifest(t *testing.T) {
	dir := t.TempDir()
	metrics := &graphstore.BasicMetricsCollector{}
	db := openTestDB(t, dir, graphstore.WithMetricsCollector(metrics))
	createPersons(t, db)

	for i := range 3 {
		insertPerson(t, db, personName(i), int64(i))
		require.NoError(t, db.Checkpoint(t.Context()))
		assert.Equal(t, uint64(i+1), db.ManifestID())
	}
	assert.Equal(t, int64(3), metrics.GetStats().CheckpointCount)

	// Only the newest manifests are kept.
	matches, err := filepath.Glob(filepath.Join(dir, "MANIFEST-*"))
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestCrashLosesUncheckpointedCommits(t *testing.T) {
	dir := t.TempDir()
	ctx := t.Context()

	db, err := graphstore.Open(ctx, dir)
	require.NoError(t, err)
	createPersons(t, db)
	require.NoError(t, db.Checkpoint(ctx))
	insertPerson(t, db, "alice", 30)

	// Simulate a crash by reopening without Close. The insert was never
	// checkpointed and is lost.
	crashed := openTestDB(t, dir, graphstore.WithReadOnly())
	require.NoError(t, crashed.View(ctx, func(tx *graphstore.Tx) error {
		n, err := tx.Count("Person")
		require.NoError(t, err)
		assert.Zero(t, n)
		return nil
	}))
	require.NoError(t, db.Close())
}

func TestReadOnly(t *testing.T) {
	dir := t.TempDir()
	db := openTestDB(t, dir)
	createPersons(t, db)
	insertPerson(t, db, "alice", 30)
	require.NoError(t, db.Close())

	ro := openTestDB(t, dir, graphstore.WithReadOnly())
	ctx := t.Context()

	_, err := ro.Begin(ctx, true)
	assert.ErrorIs(t, err, graphstore.ErrReadOnly)
	assert.ErrorIs(t, ro.Checkpoint(ctx), graphstore.ErrReadOnly)
	_, err = ro.CreateNodeTable(ctx, "City", []graphstore.Property{{Name: "id", Type: graphstore.Int64}}, "id")
	assert.ErrorIs(t, err, graphstore.ErrReadOnly)

	require.NoError(t, ro.View(ctx, func(tx *graphstore.Tx) error {
		_, err := tx.LookupPK("Person", graphstore.NewString("alice"))
		return err
	}))
}

func TestClose(t *testing.T) {
	db, err := graphstore.Open(t.Context(), t.TempDir())
	require.NoError(t, err)
	require.NoError(t, db.Close())

	assert.ErrorIs(t, db.Close(), graphstore.ErrClosed)
	_, err = db.Begin(t.Context(), false)
	assert.ErrorIs(t, err, graphstore.ErrClosed)
	assert.ErrorIs(t, db.Checkpoint(t.Context()), graphstore.ErrClosed)
}

func TestCloseWaitsForWriter(t *testing.T) {
	dir := t.TempDir()
	db, err := graphstore.Open(t.Context(), dir)
	require.NoError(t, err)
	createPersons(t, db)

	tx, err := db.Begin(t.Context(), true)
	require.NoError(t, err)
	_, err = tx.Insert("Person", map[string]graphstore.Value{"name": graphstore.NewString("alice")})
	require.NoError(t, err)

	closed := make(chan error, 1)
	go func() { closed <- db.Close() }()
	require.NoError(t, tx.Commit(t.Context()))
	require.NoError(t, <-closed)

	db = openTestDB(t, dir)
	require.NoError(t, db.View(t.Context(), func(tx *graphstore.Tx) error {
		_, err := tx.LookupPK("Person", graphstore.NewString("alice"))
		return err
	}))
}

// copyDir snapshots the files of a live database, as a crash would leave them.
func copyDir(t *testing.T, src string) string {
	t.Helper()
	dst := t.TempDir()
	entries, err := os.ReadDir(src)
	require.NoError(t, err)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(src, e.Name()))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dst, e.Name()), data, 0o644))
	}
	return dst
}

func indexFiles(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "pk-*"))
	require.NoError(t, err)
	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = filepath.Base(m)
	}
	return names
}

func TestCheckpointWritesNewIndexFile(t *testing.T) {
	dir := t.TempDir()
	db := openTestDB(t, dir)
	createPersons(t, db)
	insertPerson(t, db, "alice", 30)
	require.NoError(t, db.Checkpoint(t.Context()))
	assert.Equal(t, []string{"pk-000000-000001.idx", "pk-000000-000001.idx.ovf"}, indexFiles(t, dir))

	insertPerson(t, db, "bob", 31)
	require.NoError(t, db.Checkpoint(t.Context()))
	assert.Equal(t, []string{"pk-000000-000002.idx", "pk-000000-000002.idx.ovf"}, indexFiles(t, dir))
}

func TestFailedCheckpointKeepsLastManifestConsistent(t *testing.T) {
	dir := t.TempDir()
	ctx := t.Context()
	faulty := fs.NewFaultyFS(nil)

	db, err := graphstore.Open(ctx, dir, graphstore.WithFileSystem(faulty))
	require.NoError(t, err)
	createPersons(t, db)
	insertPerson(t, db, "alice", 30)
	require.NoError(t, db.Checkpoint(ctx))
	insertPerson(t, db, "bob", 31)

	// The index is written, then saving the manifest fails.
	faulty.AddRule("MANIFEST", fs.Fault{FailAfterBytes: -1, FailOnSync: true})
	require.ErrorIs(t, db.Checkpoint(ctx), fs.ErrInjected)
	faulty.ClearRules()
	assert.Equal(t, uint64(1), db.ManifestID())

	crashed := openTestDB(t, copyDir(t, dir))
	assert.Equal(t, uint64(1), crashed.ManifestID())
	_, found := lookupAge(t, crashed, "alice")
	assert.True(t, found)
	_, found = lookupAge(t, crashed, "bob")
	assert.False(t, found)
	// The key only the unsaved index knew about is free.
	insertPerson(t, crashed, "bob", 40)
	age, found := lookupAge(t, crashed, "bob")
	require.True(t, found)
	assert.Equal(t, int64(40), age)

	// The live database retries with the same file name and keeps going.
	require.NoError(t, db.Close())
	db = openTestDB(t, dir)
	assert.Equal(t, uint64(2), db.ManifestID())
	_, found = lookupAge(t, db, "bob")
	assert.True(t, found)
	// The index of the first manifest was orphaned and removed on open.
	assert.Equal(t, []string{"pk-000000-000002.idx", "pk-000000-000002.idx.ovf"}, indexFiles(t, dir))
}
