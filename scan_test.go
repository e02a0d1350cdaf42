package graphstore_test

import (
	"context"
	"testing"

	"github.com/hupe1980/graphstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loadAges inserts n persons whose age equals their index.
func loadAges(t *testing.T, db *graphstore.DB, n int) {
	t.Helper()
	require.NoError(t, db.Update(t.Context(), func(tx *graphstore.Tx) error {
		for i := range n {
			if _, err := tx.Insert("Person", map[string]graphstore.Value{
				"name": graphstore.NewString(personName(i)),
				"age":  graphstore.NewInt64(int64(i)),
			}); err != nil {
				return err
			}
		}
		return nil
	}))
}

func collect(t *testing.T, db *graphstore.DB, opts ...graphstore.ScanOption) []graphstore.Row {
	t.Helper()
	var rows []graphstore.Row
	require.NoError(t, db.View(t.Context(), func(tx *graphstore.Tx) error {
		for row, err := range tx.Scan(t.Context(), "Person", opts...) {
			if err != nil {
				return err
			}
			rows = append(rows, row)
		}
		return nil
	}))
	return rows
}

func TestScanAll(t *testing.T) {
	db := openTestDB(t, t.TempDir(), graphstore.WithNodeGroupSizeLog2(4))
	createPersons(t, db)
	loadAges(t, db, 50)

	rows := collect(t, db)
	require.Len(t, rows, 50)
	for i, row := range rows {
		assert.Equal(t, graphstore.Offset(i), row.Offset)
		assert.Len(t, row.Values, 3)
		assert.Equal(t, personName(i), row.Values["name"].Str())
	}
}

func TestScanFilterPrunesNodeGroups(t *testing.T) {
	metrics := &graphstore.BasicMetricsCollector{}
	db := openTestDB(t, t.TempDir(), graphstore.WithNodeGroupSizeLog2(4), graphstore.WithMetricsCollector(metrics))
	createPersons(t, db)
	loadAges(t, db, 64)

	rows := collect(t, db,
		graphstore.WithScanProperties("age"),
		graphstore.WithScanFilter("age", graphstore.Ge, graphstore.NewInt64(48)),
		graphstore.WithScanFilter("age", graphstore.Lt, graphstore.NewInt64(52)),
	)
	require.Len(t, rows, 4)
	for i, row := range rows {
		assert.Len(t, row.Values, 1)
		assert.Equal(t, int64(48+i), row.Values["age"].Int64())
	}

	stats := metrics.GetStats()
	assert.Equal(t, int64(1), stats.ScanCount)
	assert.Equal(t, int64(4), stats.ScanRows)
	assert.Equal(t, int64(3), stats.PrunedNodeGroups)
}

func TestScanOperators(t *testing.T) {
	db := openTestDB(t, t.TempDir())
	createPersons(t, db)
	loadAges(t, db, 10)

	tests := []struct {
		op   graphstore.Op
		want int
	}{
		{graphstore.Eq, 1},
		{graphstore.Ne, 9},
		{graphstore.Lt, 5},
		{graphstore.Le, 6},
		{graphstore.Gt, 4},
		{graphstore.Ge, 5},
	}
	for _, tt := range tests {
		rows := collect(t, db, graphstore.WithScanFilter("age", tt.op, graphstore.NewInt64(5)))
		assert.Len(t, rows, tt.want, "op %v", tt.op)
	}
}

func TestScanStringFilter(t *testing.T) {
	db := openTestDB(t, t.TempDir())
	createPersons(t, db)
	loadAges(t, db, 20)

	rows := collect(t, db, graphstore.WithScanFilter("name", graphstore.Eq, graphstore.NewString(personName(13))))
	require.Len(t, rows, 1)
	assert.Equal(t, int64(13), rows[0].Values["age"].Int64())
}

func TestScanSkipsDeletedAndNull(t *testing.T) {
	db := openTestDB(t, t.TempDir())
	createPersons(t, db)
	loadAges(t, db, 10)
	require.NoError(t, db.Update(t.Context(), func(tx *graphstore.Tx) error {
		if err := tx.Delete("Person", 2); err != nil {
			return err
		}
		return tx.Update("Person", 3, "score", graphstore.NewDouble(0.5))
	}))

	assert.Len(t, collect(t, db), 9)

	// NULL never matches a filter.
	rows := collect(t, db, graphstore.WithScanFilter("score", graphstore.Ge, graphstore.NewDouble(0)))
	require.Len(t, rows, 1)
	assert.Equal(t, graphstore.Offset(3), rows[0].Offset)
}

func TestScanEarlyBreak(t *testing.T) {
	db := openTestDB(t, t.TempDir(), graphstore.WithNodeGroupSizeLog2(4))
	createPersons(t, db)
	loadAges(t, db, 40)

	n := 0
	require.NoError(t, db.View(t.Context(), func(tx *graphstore.Tx) error {
		for _, err := range tx.Scan(t.Context(), "Person") {
			if err != nil {
				return err
			}
			n++
			if n == 3 {
				break
			}
		}
		return nil
	}))
	assert.Equal(t, 3, n)
}

func TestScanErrors(t *testing.T) {
	db := openTestDB(t, t.TempDir())
	createPersons(t, db)
	loadAges(t, db, 5)

	scanErr := func(ctx context.Context, table string, opts ...graphstore.ScanOption) error {
		var err error
		_ = db.View(t.Context(), func(tx *graphstore.Tx) error {
			for _, e := range tx.Scan(ctx, table, opts...) {
				if e != nil {
					err = e
					break
				}
			}
			return nil
		})
		return err
	}

	assert.ErrorIs(t, scanErr(t.Context(), "City"), graphstore.ErrTableNotFound)
	assert.ErrorIs(t, scanErr(t.Context(), "Person", graphstore.WithScanProperties("height")), graphstore.ErrPropertyNotFound)
	assert.ErrorIs(t, scanErr(t.Context(), "Person", graphstore.WithScanFilter("age", graphstore.Eq, graphstore.NewString("x"))), graphstore.ErrTypeMismatch)
	assert.ErrorIs(t, scanErr(t.Context(), "Person", graphstore.WithScanFilter("age", graphstore.Op(42), graphstore.NewInt64(1))), graphstore.ErrInvalidArgument)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	assert.ErrorIs(t, scanErr(ctx, "Person"), context.Canceled)
}
