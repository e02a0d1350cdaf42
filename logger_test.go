package graphstore_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/hupe1980/graphstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenLogsLostCommits(t *testing.T) {
	dir := t.TempDir()
	ctx := t.Context()

	db, err := graphstore.Open(ctx, dir, graphstore.WithLogger(graphstore.NoopLogger()))
	require.NoError(t, err)
	createPersons(t, db)
	require.NoError(t, db.Checkpoint(ctx))
	insertPerson(t, db, "alice", 30)
	insertPerson(t, db, "bob", 31)

	// Reopen while db still runs, as after a crash.
	var buf bytes.Buffer
	logger := graphstore.NewLogger(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	crashed, err := graphstore.Open(ctx, dir, graphstore.WithLogger(logger))
	require.NoError(t, err)
	require.NoError(t, crashed.Close())
	_ = db.Close()

	assert.Contains(t, buf.String(), `"msg":"transactions committed after the last checkpoint were lost"`)
	assert.Contains(t, buf.String(), `"transactions":2`)
}

func TestLoggerHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := graphstore.NewLogger(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	logger.WithTable("Person").WithTx(7).Info("hello")
	assert.Contains(t, buf.String(), "table=Person")
	assert.Contains(t, buf.String(), "tx=7")

	buf.Reset()
	logger.LogBulkLoad(t.Context(), "Person", 10, 1, 0, nil)
	assert.Contains(t, buf.String(), "bulk load completed")
	assert.Contains(t, buf.String(), "rows=10")

	buf.Reset()
	logger.LogCheckpoint(t.Context(), 3, 0, assert.AnError)
	assert.Contains(t, buf.String(), "level=ERROR")
	assert.Contains(t, buf.String(), "checkpoint failed")
}
