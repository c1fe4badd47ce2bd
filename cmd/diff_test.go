package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/tramites-sync/internal/snapshot"
)

func writeSnapshot(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDiffFiles(t *testing.T) {
	dir := t.TempDir()
	prev := writeSnapshot(t, dir, "prev.jsonl",
		`{"id":101,"nombre":"Licencia","status":"activo"}`+"\n"+
			`{"id":103,"nombre":"Permiso","status":"activo"}`+"\n")
	cur := writeSnapshot(t, dir, "cur.jsonl",
		`{"id":101,"nombre":"Licencia","status":"inactivo"}`+"\n"+
			`{"id":102,"nombre":"Registro","status":"activo"}`+"\n")

	res, err := diffFiles(prev, cur, "id", time.Now())
	require.NoError(t, err)
	require.Len(t, res.Added, 1)
	assert.Equal(t, "102", res.Added[0].ID)
	require.Len(t, res.Removed, 1)
	assert.Equal(t, "103", res.Removed[0].ID)
	require.Len(t, res.Modified, 1)

	var buf bytes.Buffer
	formatDiff(&buf, res, "2006-01-02")
	out := buf.String()
	assert.Contains(t, out, "DIRECTION")
	assert.Contains(t, out, "removed")
	assert.Contains(t, out, "inactivo")
	assert.Contains(t, out, "1 added, 1 removed, 1 modified (1 field changes)")
}

func TestDiffFiles_MissingFile(t *testing.T) {
	dir := t.TempDir()
	cur := writeSnapshot(t, dir, "cur.jsonl", `{"id":1}`+"\n")

	_, err := diffFiles(filepath.Join(dir, "nope.jsonl"), cur, "id", time.Now())
	require.Error(t, err)
	assert.True(t, errors.Is(err, snapshot.ErrSnapshotUnavailable))
}

func TestFormatDiff_NoChanges(t *testing.T) {
	dir := t.TempDir()
	a := writeSnapshot(t, dir, "a.jsonl", `{"id":1,"x":1.0}`+"\n")
	b := writeSnapshot(t, dir, "b.jsonl", `{"id":1,"x":1}`+"\n")

	res, err := diffFiles(a, b, "id", time.Now())
	require.NoError(t, err)

	var buf bytes.Buffer
	formatDiff(&buf, res, "2006-01-02")
	assert.Equal(t, "No changes.\n", buf.String())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "corto", truncate("corto", 10))
	assert.Equal(t, "trámite...", truncate("trámites largos", 10))
}
