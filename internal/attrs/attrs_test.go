package attrs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majacQ/cryptofs/internal/cerrors"
	"github.com/majacQ/cryptofs/internal/crypto"
	"github.com/majacQ/cryptofs/internal/host/localfs"
	"github.com/majacQ/cryptofs/internal/namecodec"
	"github.com/majacQ/cryptofs/internal/openfile"
	"github.com/majacQ/cryptofs/internal/pathmap"
)

func newTestView(t *testing.T) (*View, *pathmap.Mapper, *openfile.Registry) {
	t.Helper()
	key, err := crypto.NewMasterKey()
	require.NoError(t, err)
	cryptor, err := crypto.NewCryptor(key, crypto.ComboSIVGCM)
	require.NoError(t, err)
	codec := namecodec.New(cryptor, nil)

	fs := localfs.New()
	root := t.TempDir()
	mapper := pathmap.New(fs, cryptor, codec, 220, 0, root)
	rootHostPath, err := mapper.DirHostPath(pathmap.RootDirID)
	require.NoError(t, err)
	require.NoError(t, fs.MkdirAll(rootHostPath))

	registry := openfile.NewRegistry(fs, false)
	return New(fs, cryptor, mapper, registry, Posix), mapper, registry
}

func TestReadMissingIsNotFound(t *testing.T) {
	v, _, _ := newTestView(t)
	_, err := v.Read("/nope.txt")
	require.Error(t, err)
	assert.Equal(t, cerrors.NotFound, cerrors.GetKind(err))
}

func TestReadDirReportsDirKind(t *testing.T) {
	v, mapper, _ := newTestView(t)
	_, err := mapper.CreateDir("/docs")
	require.NoError(t, err)

	snap, err := v.Read("/docs")
	require.NoError(t, err)
	assert.True(t, snap.IsDir)
}

func TestReadFileWithoutLiveHandleRecomputesSize(t *testing.T) {
	v, mapper, registry := newTestView(t)
	parentDirID, parentHostPath, name, err := mapper.ParentOf("/note.txt")
	require.NoError(t, err)
	_, contentPath, _, err := mapper.NewLeafPaths(parentDirID, parentHostPath, name, false, "contents.c9r")
	require.NoError(t, err)

	f, err := registry.Get(contentPath, v.cryptor, openfile.Options{Writable: true, CreateNew: true})
	require.NoError(t, err)
	_, err = f.Write([]byte("hello"), 0)
	require.NoError(t, err)
	require.NoError(t, f.Force(true))
	require.NoError(t, f.Close())

	snap, err := v.Read("/note.txt")
	require.NoError(t, err)
	assert.True(t, snap.IsRegular)
	assert.Equal(t, int64(5), snap.Size)
}

func TestReadFileWithLiveHandleUsesInMemorySize(t *testing.T) {
	v, mapper, registry := newTestView(t)
	parentDirID, parentHostPath, name, err := mapper.ParentOf("/note.txt")
	require.NoError(t, err)
	_, contentPath, _, err := mapper.NewLeafPaths(parentDirID, parentHostPath, name, false, "contents.c9r")
	require.NoError(t, err)

	f, err := registry.Get(contentPath, v.cryptor, openfile.Options{Writable: true, CreateNew: true})
	require.NoError(t, err)
	defer f.Close()
	before := time.Now()
	_, err = f.Write([]byte("hello world"), 0)
	require.NoError(t, err)

	snap, err := v.Read("/note.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(11), snap.Size)
	assert.False(t, snap.LastModified.Before(before))
}
