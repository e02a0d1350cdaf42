package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hupe1980/graphstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
node_group_size_log2: 6
log_level: warn
table:
  name: Person
  primary_key: id
  properties:
    - name: id
      type: int64
    - name: name
      type: string
    - name: score
      type: double
csv:
  header: true
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func writePeople(t *testing.T, dir, name string, first, n int) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("id,name,score\n")
	for i := first; i < first+n; i++ {
		score := ""
		if i%3 != 0 {
			score = fmt.Sprintf("%d.5", i)
		}
		fmt.Fprintf(&b, "%d,person %d,%s\n", i, i, score)
	}
	return writeFile(t, dir, name, b.String())
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "load.yaml", testConfig+"  files: [a.csv]\n")
	t.Setenv("GSLOAD_TABLE_NAME", "User")

	fs := newFlagSet()
	require.NoError(t, fs.Parse([]string{"-c", path, "--dir", "/tmp/db", "--file", "b.csv", "--file", "c.csv"}))
	cfg, err := LoadConfig(fs)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/db", cfg.Dir)
	assert.Equal(t, uint8(6), cfg.NodeGroupSizeLog2)
	assert.Equal(t, "User", cfg.Table.Name)
	assert.Equal(t, []string{"b.csv", "c.csv"}, cfg.CSV.Files)
	assert.Equal(t, ",", cfg.CSV.Delimiter)
	assert.Equal(t, "lz4", cfg.Archive.Compression)

	props, err := cfg.Properties()
	require.NoError(t, err)
	assert.Equal(t, []graphstore.Property{
		{Name: "id", Type: graphstore.Int64},
		{Name: "name", Type: graphstore.String},
		{Name: "score", Type: graphstore.Double},
	}, props)
}

func TestLoadConfigValidation(t *testing.T) {
	path := writeFile(t, t.TempDir(), "load.yaml", "csv:\n  delimiter: ';;'\nlog_level: loud\n")
	fs := newFlagSet()
	require.NoError(t, fs.Parse([]string{"--config", path}))

	_, err := LoadConfig(fs)
	require.Error(t, err)
	for _, want := range []string{"table.name", "table.properties", "table.primary_key", "CSV file", "csv.delimiter", "log_level"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestLoadConfigArchiveBackend(t *testing.T) {
	tests := []struct {
		name    string
		archive string
		args    []string
		enabled bool
		err     string
	}{
		{name: "local without dir", enabled: false},
		{name: "local", args: []string{"--archive-dir", "/backups"}, enabled: true},
		{name: "s3", args: []string{"--archive-backend", "s3", "--archive-bucket", "backups"}, enabled: true},
		{name: "s3 without bucket", args: []string{"--archive-backend", "s3"}, err: "archive.bucket"},
		{name: "minio", archive: "archive:\n  backend: minio\n  bucket: b\n  endpoint: localhost:9000\n", enabled: true},
		{name: "minio without endpoint", archive: "archive:\n  backend: minio\n  bucket: b\n", err: "archive.endpoint"},
		{name: "unknown", args: []string{"--archive-backend", "ftp"}, err: "archive.backend"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "load.yaml", testConfig+"  files: [a.csv]\n"+tt.archive)
			fs := newFlagSet()
			require.NoError(t, fs.Parse(append([]string{"-c", path}, tt.args...)))

			cfg, err := LoadConfig(fs)
			if tt.err != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.enabled, cfg.Archive.Enabled())
			assert.True(t, cfg.Archive.Secure)
		})
	}
}

func TestCountRows(t *testing.T) {
	dir := t.TempDir()
	n, err := countRows(writePeople(t, dir, "a.csv", 0, 1000), true)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), n)

	n, err = countRows(writeFile(t, dir, "empty.csv", ""), true)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = countRows(filepath.Join(dir, "missing.csv"), false)
	assert.Error(t, err)
}

func TestOpenArchiveStoreLocal(t *testing.T) {
	dir := t.TempDir()
	store, err := openArchiveStore(t.Context(), &ArchiveConfig{Backend: "local", Dir: dir})
	require.NoError(t, err)
	require.NoError(t, store.Put(t.Context(), "x", []byte("y")))
	_, err = os.Stat(filepath.Join(dir, "x"))
	assert.NoError(t, err)
}

func TestParseRecord(t *testing.T) {
	props := []graphstore.Property{
		{Name: "id", Type: graphstore.Int64},
		{Name: "name", Type: graphstore.String},
		{Name: "score", Type: graphstore.Double},
	}

	row, err := parseRecord([]string{"7", "", ""}, props, "")
	require.NoError(t, err)
	assert.Equal(t, int64(7), row[0].Int64())
	assert.False(t, row[1].IsNull())
	assert.Empty(t, row[1].Str())
	assert.True(t, row[2].IsNull())

	row, err = parseRecord([]string{"7", `\N`, "1.5"}, props, `\N`)
	require.NoError(t, err)
	assert.True(t, row[1].IsNull())
	assert.InDelta(t, 1.5, row[2].Float64(), 1e-9)

	_, err = parseRecord([]string{"x", "a", "1"}, props, "")
	assert.ErrorContains(t, err, "column id")
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "load.yaml", testConfig)
	a := writePeople(t, dir, "a.csv", 0, 150)
	b := writePeople(t, dir, "b.csv", 150, 50)
	dbDir := filepath.Join(dir, "db")
	archiveDir := filepath.Join(dir, "archive")

	var out bytes.Buffer
	err := run(t.Context(), []string{"-c", cfgPath, "-d", dbDir, "--file", a, "--file", b, "--archive-dir", archiveDir}, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "loaded 200 rows into Person (4 node groups)")
	assert.Contains(t, out.String(), "archived")

	db, err := graphstore.Open(t.Context(), dbDir, graphstore.WithReadOnly())
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.View(t.Context(), func(tx *graphstore.Tx) error {
		n, err := tx.Count("Person")
		require.NoError(t, err)
		assert.Equal(t, uint64(200), n)

		off, err := tx.LookupPK("Person", graphstore.NewInt64(161))
		require.NoError(t, err)
		row, err := tx.Get("Person", off)
		require.NoError(t, err)
		assert.Equal(t, "person 161", row.Values["name"].Str())
		assert.InDelta(t, 161.5, row.Values["score"].Float64(), 1e-9)
		return nil
	}))

	// The table now holds rows, so a second load is rejected.
	err = run(t.Context(), []string{"-c", cfgPath, "-d", dbDir, "--file", a}, &out)
	assert.ErrorIs(t, err, graphstore.ErrTableNotEmpty)
}

func TestRunBadCSV(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "load.yaml", testConfig)
	bad := writeFile(t, dir, "bad.csv", "id,name,score\n1,a,1.0\ntwo,b,2.0\n")

	err := run(t.Context(), []string{"-c", cfgPath, "-d", filepath.Join(dir, "db"), "--file", bad}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.csv:3")
	assert.Contains(t, err.Error(), "column id")
}
