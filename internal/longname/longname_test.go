package longname

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majacQ/cryptofs/internal/cerrors"
	"github.com/majacQ/cryptofs/internal/host/localfs"
)

func TestInstallIsIdempotent(t *testing.T) {
	fs := localfs.New()
	dir := t.TempDir()
	require.NoError(t, fs.MkdirAll(dir))

	fullName := strings.Repeat("a", 300) + ".c9r"

	shortName1, err := New(fs).Install(dir, fullName)
	require.NoError(t, err)
	shortName2, err := New(fs).Install(dir, fullName)
	require.NoError(t, err)
	assert.Equal(t, shortName1, shortName2)
}

func TestResolveReturnsInstalledName(t *testing.T) {
	fs := localfs.New()
	dir := t.TempDir()
	require.NoError(t, fs.MkdirAll(dir))
	store := New(fs)

	fullName := strings.Repeat("b", 300) + ".c9r"
	shortName, err := store.Install(dir, fullName)
	require.NoError(t, err)

	got, err := store.Resolve(dir, shortName)
	require.NoError(t, err)
	assert.Equal(t, fullName, got)
}

func TestInstallDetectsMismatch(t *testing.T) {
	fs := localfs.New()
	dir := t.TempDir()
	require.NoError(t, fs.MkdirAll(dir))
	store := New(fs)

	fullName := strings.Repeat("c", 300) + ".c9r"
	shortName, err := store.Install(dir, fullName)
	require.NoError(t, err)

	require.NoError(t, fs.WriteFile(filepath.Join(dir, shortName, NameFile), []byte("tampered")))

	_, err = store.Install(dir, fullName)
	require.Error(t, err)
	assert.Equal(t, cerrors.Corrupted, cerrors.GetKind(err))
}

func TestShouldShorten(t *testing.T) {
	assert.False(t, ShouldShorten(200, 220))
	assert.True(t, ShouldShorten(221, 220))
}
