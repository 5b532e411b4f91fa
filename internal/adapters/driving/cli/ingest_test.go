package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/openkl/internal/core/domain"
)

func TestIngestCmd_RequiresPath(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	_, err := execute("ingest")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg(s)")
}

func TestIngestCmd_Files(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	dir := t.TempDir()
	a := filepath.Join(dir, "a.md")
	b := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(a, []byte("# A"), 0600))
	require.NoError(t, os.WriteFile(b, []byte("B"), 0600))

	out, err := execute("ingest", "--rechunk", a, b)

	require.NoError(t, err)
	mock := ingestService.(*mockIngestService)
	assert.Equal(t, []string{a, b}, mock.paths)
	assert.True(t, mock.lastOpts.Rechunk)
	assert.Contains(t, out, "✓ "+a)
	assert.Contains(t, out, "2 chunks")
}

func TestIngestCmd_Directory(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	dir := t.TempDir()
	mock := ingestService.(*mockIngestService)
	mock.results = []domain.IngestResult{
		{Path: filepath.Join(dir, "new.md"), DocID: mockDocID, Chunks: 3, Retired: "0badc0ffee00"},
		{Path: filepath.Join(dir, "same.md"), DocID: "aaaaaaaaaaaa", Skipped: true},
	}

	out, err := execute("ingest", dir)

	require.NoError(t, err)
	assert.Equal(t, []string{dir}, mock.paths)
	assert.False(t, mock.lastOpts.Rechunk)
	assert.Contains(t, out, "previous version 0badc0ffee00 retired")
	assert.Contains(t, out, "(unchanged)")
}

func TestIngestCmd_MissingPathFails(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	missing := filepath.Join(t.TempDir(), "missing.md")
	out, err := execute("ingest", missing)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 files failed")
	assert.Contains(t, out, "✗ "+missing)
}

func TestIngestCmd_JSONIncludesErrors(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	dir := t.TempDir()
	mock := ingestService.(*mockIngestService)
	mock.results = []domain.IngestResult{
		{Path: "ok.md", DocID: mockDocID, Chunks: 1},
		{Path: "bad.bin", Err: domain.ErrUnsupportedType},
	}

	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.SetArgs([]string{"ingest", "--json", dir})

	err := rootCmd.Execute()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 files failed")
	var views []map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &views))
	require.Len(t, views, 2)
	assert.Equal(t, "ok.md", views[0]["path"])
	assert.NotContains(t, views[0], "error")
	assert.Equal(t, domain.ErrUnsupportedType.Error(), views[1]["error"])
}

func TestIngestCmd_ServiceError(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	dir := t.TempDir()
	ingestService.(*mockIngestService).err = errMock

	_, err := execute("ingest", dir)

	require.Error(t, err)
	assert.True(t, errors.Is(err, errMock))
}

func TestWatchCmd_ReportsResults(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	mock := ingestService.(*mockIngestService)
	mock.results = []domain.IngestResult{{Path: "/w/a.md", DocID: mockDocID, Chunks: 1}}

	out, err := execute("watch", t.TempDir())

	require.NoError(t, err)
	assert.Contains(t, out, "Watching 1 directory")
	assert.Contains(t, out, "✓ /w/a.md")
}

func TestPlural(t *testing.T) {
	assert.Equal(t, "y", plural(1, "y", "ies"))
	assert.Equal(t, "ies", plural(2, "y", "ies"))
	assert.Equal(t, "ies", plural(0, "y", "ies"))
}
