//go:build linux || darwin

package mmap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateOpenShareBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "region")

	w, err := Create(path, 4096, 0o600)
	require.NoError(t, err)
	defer w.Close()
	assert.True(t, w.Created)
	assert.Len(t, w.Data, 4096)

	// A second mapping of the same file sees writes through the first.
	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()
	assert.False(t, r.Created)
	require.Len(t, r.Data, 4096)

	copy(w.Data, "hello")
	assert.Equal(t, []byte("hello"), r.Data[:5])

	r.Data[5] = '!'
	assert.Equal(t, byte('!'), w.Data[5])
}

func TestCreateExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "region")

	w, err := Create(path, 4096, 0o600)
	require.NoError(t, err)
	defer w.Close()

	_, err = Create(path, 4096, 0o600)
	require.Error(t, err)
	assert.True(t, os.IsExist(err))
}

func TestCreateInvalidSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "region")
	_, err := Create(path, 0, 0o600)
	assert.Error(t, err)
	assert.False(t, pathExistsForTest(path))
}

func TestCreateMakesParentDirs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "region")

	w, err := Create(path, 4096, 0o600)
	require.NoError(t, err, "parent directories are created on demand")
	require.NoError(t, w.Close())
}

func TestOpenMissing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.True(t, os.IsNotExist(err))
}

func TestCloseIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "region")

	w, err := Create(path, 4096, 0o600)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.Nil(t, w.Data)
}

func TestRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "region")

	w, err := Create(path, 4096, 0o600)
	require.NoError(t, err)

	// The mapping survives removal of the backing file.
	require.NoError(t, Remove(path))
	w.Data[0] = 1
	assert.Equal(t, byte(1), w.Data[0])
	require.NoError(t, w.Close())
	assert.False(t, pathExistsForTest(path))
}

func pathExistsForTest(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
