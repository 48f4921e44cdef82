package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveStreamAndDownload(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	path, err := store.SaveStream("s1/doc.pdf", strings.NewReader("%PDF-1.4 content"))
	require.NoError(t, err)
	assert.Equal(t, "s1/doc.pdf", path)

	data, err := store.Download(path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 content", string(data))
}

func TestDownloadMissing(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.Download("absent/file.pdf")
	assert.Error(t, err)
}

func TestDelete(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	path, err := store.SaveStream("doc.txt", strings.NewReader("body"))
	require.NoError(t, err)
	require.NoError(t, store.Delete(path))

	_, err = store.Download(path)
	assert.Error(t, err)

	// deleting again is not an error
	assert.NoError(t, store.Delete(path))
}

func TestCleanupOlderThan(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStorage(dir)
	require.NoError(t, err)

	oldPath, err := store.SaveStream("old/doc.pdf", strings.NewReader("stale"))
	require.NoError(t, err)
	freshPath, err := store.SaveStream("fresh/doc.pdf", strings.NewReader("recent"))
	require.NoError(t, err)

	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, oldPath), past, past))

	deleted, err := store.CleanupOlderThan(24 * time.Hour)
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.Equal(t, filepath.FromSlash("old/doc.pdf"), deleted[0])

	_, err = store.Download(freshPath)
	assert.NoError(t, err)
}
