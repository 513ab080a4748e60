package fetcher

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAtomicFile_GzipRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "2021.csv.gz")

	af, err := Create(path)
	require.NoError(t, err)
	_, err = io.WriteString(af, "dst,org\n6001,6075\n")
	require.NoError(t, err)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "file must not exist before commit")

	require.NoError(t, af.Commit())

	rc, err := Open(path)
	require.NoError(t, err)
	defer rc.Close() //nolint:errcheck
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "dst,org\n6001,6075\n", string(data))
}

func TestAtomicFile_Plain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "2021-01.csv")

	af, err := Create(path)
	require.NoError(t, err)
	_, err = io.WriteString(af, "hello")
	require.NoError(t, err)
	require.NoError(t, af.Commit())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	assert.Error(t, af.Commit(), "double commit")
}

func TestAtomicFile_Abort(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")

	af, err := Create(path)
	require.NoError(t, err)
	_, err = io.WriteString(af, "partial")
	require.NoError(t, err)
	af.Abort()
	af.Abort()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temp file must be removed")
}

func TestOpen_Missing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.csv.gz"))
	assert.Error(t, err)
}

func TestOpen_NotGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv.gz")
	require.NoError(t, os.WriteFile(path, []byte("plain text"), 0o644))
	_, err := Open(path)
	assert.Error(t, err)
}
