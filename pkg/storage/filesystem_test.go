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

func TestLocalStorageRelocateMovesFile(t *testing.T) {
	root := t.TempDir()
	staging := t.TempDir()
	store, err := NewLocalStorage(root)
	require.NoError(t, err)

	src := filepath.Join(staging, "upload.tmp")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o644))

	rel, err := store.Relocate(src, "personal-archives/9/file.pdf")
	require.NoError(t, err)
	assert.Equal(t, "personal-archives/9/file.pdf", rel)

	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err), "source should be gone after a move")

	ok, err := store.Exists(rel)
	require.NoError(t, err)
	assert.True(t, ok)

	f, err := store.Open(rel)
	require.NoError(t, err)
	defer f.Close()
	buf := make([]byte, 7)
	_, err = f.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(buf))
}

func TestLocalStorageDeleteIsIdempotent(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.SaveStream("a/b.txt", strings.NewReader("x"))
	require.NoError(t, err)
	require.NoError(t, store.Delete("a/b.txt"))
	require.NoError(t, store.Delete("a/b.txt"))

	ok, err := store.Exists("a/b.txt")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalStorageRejectsEscapingPaths(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.SaveStream("../outside.txt", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrOutsideRoot)
	_, err = store.Path("/etc/passwd")
	assert.ErrorIs(t, err, ErrOutsideRoot)
}

func TestLocalStorageWalkAndCleanup(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStorage(root)
	require.NoError(t, err)

	_, err = store.SaveStream("shared-archives/u1/old.pdf", strings.NewReader("old"))
	require.NoError(t, err)
	_, err = store.SaveStream("shared-archives/u1/new.pdf", strings.NewReader("new"))
	require.NoError(t, err)
	_, err = store.SaveStream(".staging/tmp.bin", strings.NewReader("tmp"))
	require.NoError(t, err)

	oldPath, err := store.Path("shared-archives/u1/old.pdf")
	require.NoError(t, err)
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(oldPath, past, past))

	files, err := store.Walk(filepath.Join(root, ".staging"))
	require.NoError(t, err)
	assert.Len(t, files, 2)

	deleted, err := store.CleanupOlderThan(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{"shared-archives/u1/old.pdf"}, deleted)
}
