package storage

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageSaveAndOpen(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStorage(dir)
	require.NoError(t, err)

	rel, err := store.Save("2026/cert.pdf", []byte("%PDF"))
	require.NoError(t, err)
	assert.Equal(t, "2026/cert.pdf", rel)
	assert.True(t, store.Exists(rel))

	f, err := store.Open(rel)
	require.NoError(t, err)
	body, err := io.ReadAll(f)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.Equal(t, "%PDF", string(body))
	assert.False(t, store.Exists("2026/other.pdf"))
}

func TestLocalStorageStaysInsideBaseDir(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStorage(filepath.Join(dir, "certs"))
	require.NoError(t, err)

	_, err = store.Save("../../escape.pdf", []byte("x"))
	require.NoError(t, err)

	_, statErr := os.Stat(filepath.Join(dir, "escape.pdf"))
	assert.True(t, os.IsNotExist(statErr))
	assert.True(t, store.Exists("escape.pdf"))
}
