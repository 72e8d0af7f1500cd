package localfs

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majacQ/cryptofs/internal/cerrors"
)

func TestCreateWriteReadRoundTrip(t *testing.T) {
	fs := New()
	p := filepath.Join(t.TempDir(), "file.bin")

	require.NoError(t, fs.WriteFile(p, []byte("hello")))
	got, err := fs.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
}

func TestStatMissingIsNotFound(t *testing.T) {
	fs := New()
	_, err := fs.Stat(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Equal(t, cerrors.NotFound, cerrors.GetKind(err))
}

func TestCreateExistingIsAlreadyExists(t *testing.T) {
	fs := New()
	p := filepath.Join(t.TempDir(), "file.bin")
	require.NoError(t, fs.WriteFile(p, []byte("x")))

	_, err := fs.Create(p)
	require.Error(t, err)
	assert.Equal(t, cerrors.AlreadyExists, cerrors.GetKind(err))
}

func TestMkdirAllThenReadDir(t *testing.T) {
	fs := New()
	root := t.TempDir()
	sub := filepath.Join(root, "a", "b")
	require.NoError(t, fs.MkdirAll(sub))
	require.NoError(t, fs.WriteFile(filepath.Join(sub, "f.txt"), []byte("x")))

	entries, err := fs.ReadDir(sub)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "f.txt", entries[0].Name())
}

func TestFileLockUnlockDoesNotError(t *testing.T) {
	fs := New()
	p := filepath.Join(t.TempDir(), "file.bin")
	require.NoError(t, fs.WriteFile(p, []byte("x")))

	f, err := fs.Open(p)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.Lock(false, 0, 1))
	require.NoError(t, f.Unlock(0, 1))
}
