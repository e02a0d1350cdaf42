package s3_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hupe1980/graphstore"
	"github.com/hupe1980/graphstore/blobstore"
	"github.com/hupe1980/graphstore/blobstore/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestIntegrationArchiveToS3 archives a database into a real bucket and
// restores it. It runs only when S3_BUCKET is set.
func TestIntegrationArchiveToS3(t *testing.T) {
	bucket := os.Getenv("S3_BUCKET")
	if bucket == "" {
		t.Skip("S3_BUCKET not set")
	}
	ctx := t.Context()
	prefix := fmt.Sprintf("graphstore-it-%d/", time.Now().UnixNano())
	store, err := s3.New(ctx, bucket, s3.WithPrefix(prefix))
	require.NoError(t, err)
	t.Cleanup(func() {
		// t.Context is already canceled here.
		cleanupCtx := context.Background()
		names, _ := store.List(cleanupCtx, "")
		for _, name := range names {
			_ = store.Delete(cleanupCtx, name)
		}
	})

	db, err := graphstore.Open(ctx, filepath.Join(t.TempDir(), "src"))
	require.NoError(t, err)
	defer db.Close()
	_, err = db.CreateNodeTable(ctx, "City", []graphstore.Property{
		{Name: "name", Type: graphstore.String},
		{Name: "population", Type: graphstore.Int64},
	}, "name")
	require.NoError(t, err)
	require.NoError(t, db.Update(ctx, func(tx *graphstore.Tx) error {
		for i := range 500 {
			if _, err := tx.Insert("City", map[string]graphstore.Value{
				"name":       graphstore.NewString(fmt.Sprintf("city-%d", i)),
				"population": graphstore.NewInt64(int64(i) * 1000),
			}); err != nil {
				return err
			}
		}
		return nil
	}))

	info, err := db.Archive(ctx, store, func(o *graphstore.ArchiveOptions) { o.Compression = "zstd" })
	require.NoError(t, err)

	current, err := blobstore.ReadFile(ctx, store, blobstore.CurrentName)
	require.NoError(t, err)
	assert.Contains(t, string(current), info.ID)

	dir := filepath.Join(t.TempDir(), "restored")
	_, err = graphstore.Restore(ctx, store, dir)
	require.NoError(t, err)
	restored, err := graphstore.Open(ctx, dir, graphstore.WithReadOnly())
	require.NoError(t, err)
	defer restored.Close()
	require.NoError(t, restored.View(ctx, func(tx *graphstore.Tx) error {
		n, err := tx.Count("City")
		assert.Equal(t, uint64(500), n)
		return err
	}))

	_, err = store.Open(ctx, "missing")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}
