package pathmap

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majacQ/cryptofs/internal/cerrors"
	"github.com/majacQ/cryptofs/internal/crypto"
	"github.com/majacQ/cryptofs/internal/host/localfs"
	"github.com/majacQ/cryptofs/internal/namecodec"
)

func newTestMapper(t *testing.T, threshold, maxNameLen int) *Mapper {
	t.Helper()
	key, err := crypto.NewMasterKey()
	require.NoError(t, err)
	cryptor, err := crypto.NewCryptor(key, crypto.ComboSIVGCM)
	require.NoError(t, err)
	codec := namecodec.New(cryptor, nil)

	fs := localfs.New()
	root := t.TempDir()
	m := New(fs, cryptor, codec, threshold, maxNameLen, root)

	rootHostPath, err := m.DirHostPath(RootDirID)
	require.NoError(t, err)
	require.NoError(t, fs.MkdirAll(rootHostPath))
	return m
}

func TestResolveRoot(t *testing.T) {
	m := newTestMapper(t, 220, 0)
	loc, err := m.Resolve("/")
	require.NoError(t, err)
	assert.Equal(t, Dir, loc.Kind)
	assert.Equal(t, RootDirID, loc.DirID)
}

func TestResolveMissingIsMissingKind(t *testing.T) {
	m := newTestMapper(t, 220, 0)
	loc, err := m.Resolve("/nope.txt")
	require.NoError(t, err)
	assert.Equal(t, Missing, loc.Kind)
}

func TestCreateDirThenResolve(t *testing.T) {
	m := newTestMapper(t, 220, 0)
	dirID, err := m.CreateDir("/documents")
	require.NoError(t, err)
	assert.NotEmpty(t, dirID)

	loc, err := m.Resolve("/documents")
	require.NoError(t, err)
	assert.Equal(t, Dir, loc.Kind)
	assert.Equal(t, dirID, loc.DirID)
}

func TestCreateDirTwiceFails(t *testing.T) {
	m := newTestMapper(t, 220, 0)
	_, err := m.CreateDir("/documents")
	require.NoError(t, err)

	_, err = m.CreateDir("/documents")
	require.Error(t, err)
	assert.Equal(t, cerrors.AlreadyExists, cerrors.GetKind(err))
}

func TestNewLeafPathsPlainFileHasNoWrapper(t *testing.T) {
	m := newTestMapper(t, 220, 0)
	entryHostPath, contentHostPath, _, err := m.NewLeafPaths(RootDirID, mustRootHostPath(t, m), "short.txt", false, "")
	require.NoError(t, err)
	assert.Equal(t, entryHostPath, contentHostPath)
}

func TestNewLeafPathsSymlinkAlwaysUsesSubdir(t *testing.T) {
	m := newTestMapper(t, 220, 0)
	entryHostPath, contentHostPath, _, err := m.NewLeafPaths(RootDirID, mustRootHostPath(t, m), "link", true, "symlink.c9r")
	require.NoError(t, err)
	assert.NotEqual(t, entryHostPath, contentHostPath)
	assert.Contains(t, contentHostPath, "symlink.c9r")
}

func TestNewLeafPathsShortensLongName(t *testing.T) {
	m := newTestMapper(t, 10, 0)
	longName := strings.Repeat("x", 50)
	entryHostPath, contentHostPath, _, err := m.NewLeafPaths(RootDirID, mustRootHostPath(t, m), longName, false, "contents.c9r")
	require.NoError(t, err)
	assert.NotEqual(t, entryHostPath, contentHostPath)
	assert.Contains(t, contentHostPath, "contents.c9r")
}

func TestAssertCleartextNameLengthOk(t *testing.T) {
	m := newTestMapper(t, 220, 5)
	require.NoError(t, m.AssertCleartextNameLengthOk("short"))
	err := m.AssertCleartextNameLengthOk("toolongname")
	require.Error(t, err)
	assert.Equal(t, cerrors.NameTooLong, cerrors.GetKind(err))
}

func mustRootHostPath(t *testing.T, m *Mapper) string {
	t.Helper()
	p, err := m.DirHostPath(RootDirID)
	require.NoError(t, err)
	return p
}
