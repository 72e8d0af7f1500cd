package openfile

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majacQ/cryptofs/internal/cerrors"
	"github.com/majacQ/cryptofs/internal/crypto"
	"github.com/majacQ/cryptofs/internal/host/localfs"
)

func newTestRegistry(t *testing.T, readonly bool) (*Registry, *crypto.Cryptor, string) {
	t.Helper()
	key, err := crypto.NewMasterKey()
	require.NoError(t, err)
	cryptor, err := crypto.NewCryptor(key, crypto.ComboSIVGCM)
	require.NoError(t, err)
	reg := NewRegistry(localfs.New(), readonly)
	path := filepath.Join(t.TempDir(), "entry.c9r")
	return reg, cryptor, path
}

func TestWriteReadRoundTripSingleChunk(t *testing.T) {
	reg, cryptor, path := newTestRegistry(t, false)

	f, err := reg.Get(path, cryptor, Options{Writable: true, CreateNew: true})
	require.NoError(t, err)

	payload := []byte("hello, vault")
	n, err := f.Write(payload, 0)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)
	require.NoError(t, f.Force(true))
	require.NoError(t, f.Close())

	f2, err := reg.Get(path, cryptor, Options{})
	require.NoError(t, err)
	defer f2.Close()

	assert.Equal(t, int64(len(payload)), f2.Size())
	buf := make([]byte, len(payload))
	n, err = f2.Read(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, payload, buf[:n])
}

func TestWriteAcrossChunkBoundary(t *testing.T) {
	reg, cryptor, path := newTestRegistry(t, false)
	f, err := reg.Get(path, cryptor, Options{Writable: true, CreateNew: true})
	require.NoError(t, err)

	size := crypto.ChunkPayloadSize + 100
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i)
	}
	_, err = f.Write(data, 0)
	require.NoError(t, err)
	require.NoError(t, f.Force(true))
	require.NoError(t, f.Close())

	f2, err := reg.Get(path, cryptor, Options{})
	require.NoError(t, err)
	defer f2.Close()

	got := make([]byte, size)
	total := 0
	for total < size {
		n, err := f2.Read(got[total:], int64(total))
		total += n
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}
	assert.Equal(t, data, got)
}

func TestSparseWriteZeroFillsGap(t *testing.T) {
	reg, cryptor, path := newTestRegistry(t, false)
	f, err := reg.Get(path, cryptor, Options{Writable: true, CreateNew: true})
	require.NoError(t, err)

	_, err = f.Write([]byte("tail"), 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(1004), f.Size())

	buf := make([]byte, 1004)
	n, err := f.Read(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 1004, n)
	for _, b := range buf[:1000] {
		assert.Equal(t, byte(0), b)
	}
	assert.Equal(t, "tail", string(buf[1000:]))
}

// Mirrors spec.md's sparse-gap scenario: on an empty file, write "x" at
// offset 100000 with P=32768, which straddles three fully-empty chunks
// (0, 1, 2) before reaching chunk 3. Those gap chunks must be
// materialized so a later Read doesn't try to authenticate ciphertext
// that was never written.
func TestSparseWriteZeroFillsGapAcrossMultipleChunks(t *testing.T) {
	reg, cryptor, path := newTestRegistry(t, false)
	f, err := reg.Get(path, cryptor, Options{Writable: true, CreateNew: true})
	require.NoError(t, err)

	_, err = f.Write([]byte("x"), 100000)
	require.NoError(t, err)
	assert.Equal(t, int64(100001), f.Size())

	buf := make([]byte, 100001)
	n, err := f.Read(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 100001, n)
	for _, b := range buf[:100000] {
		assert.Equal(t, byte(0), b)
	}
	assert.Equal(t, byte('x'), buf[100000])

	// The write must also survive a flush and reopen: the gap chunks were
	// marked dirty, so they need to actually reach the host file.
	require.NoError(t, f.Force(true))
	require.NoError(t, f.Close())

	f2, err := reg.Get(path, cryptor, Options{})
	require.NoError(t, err)
	defer f2.Close()

	got := make([]byte, 100001)
	total := 0
	for total < len(got) {
		n, err := f2.Read(got[total:], int64(total))
		total += n
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}
	assert.Equal(t, buf, got)
}

func TestTruncateShrinksAndZeroesTail(t *testing.T) {
	reg, cryptor, path := newTestRegistry(t, false)
	f, err := reg.Get(path, cryptor, Options{Writable: true, CreateNew: true})
	require.NoError(t, err)

	_, err = f.Write([]byte("0123456789"), 0)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(5))
	assert.Equal(t, int64(5), f.Size())

	buf := make([]byte, 5)
	n, err := f.Read(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "01234", string(buf[:n]))
}

func TestReadOnlyFileRejectsWrite(t *testing.T) {
	reg, cryptor, path := newTestRegistry(t, true)
	_, err := reg.Get(path, cryptor, Options{Writable: true, CreateNew: true})
	require.Error(t, err)
	assert.Equal(t, cerrors.ReadOnly, cerrors.GetKind(err))
}

func TestWrongKeyFailsHeaderAuthentication(t *testing.T) {
	reg, cryptor, path := newTestRegistry(t, false)
	f, err := reg.Get(path, cryptor, Options{Writable: true, CreateNew: true})
	require.NoError(t, err)
	_, err = f.Write([]byte("secret"), 0)
	require.NoError(t, err)
	require.NoError(t, f.Force(true))
	require.NoError(t, f.Close())

	otherKey, err := crypto.NewMasterKey()
	require.NoError(t, err)
	otherCryptor, err := crypto.NewCryptor(otherKey, crypto.ComboSIVGCM)
	require.NoError(t, err)

	_, err = reg.Get(path, otherCryptor, Options{})
	require.Error(t, err)
	assert.Equal(t, cerrors.AuthenticationFailed, cerrors.GetKind(err))
}

func TestRegistryReusesFileForSameKey(t *testing.T) {
	reg, cryptor, path := newTestRegistry(t, false)
	f1, err := reg.Get(path, cryptor, Options{Writable: true, CreateNew: true})
	require.NoError(t, err)

	f2, err := reg.Get(path, cryptor, Options{})
	require.NoError(t, err)
	assert.Same(t, f1, f2)
	assert.Equal(t, 2, f1.OpenCount())

	require.NoError(t, f1.Close())
	require.NoError(t, f2.Close())
}

func TestOverlappingLockOnSameChunkConflicts(t *testing.T) {
	reg, cryptor, path := newTestRegistry(t, false)
	f, err := reg.Get(path, cryptor, Options{Writable: true, CreateNew: true})
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.Lock(false, 0, 10))
	err = f.Lock(false, 5, 10)
	require.Error(t, err)
	assert.Equal(t, cerrors.Overlap, cerrors.GetKind(err))
}

func TestNonOverlappingLocksOnDifferentChunksSucceed(t *testing.T) {
	reg, cryptor, path := newTestRegistry(t, false)
	f, err := reg.Get(path, cryptor, Options{Writable: true, CreateNew: true})
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.Lock(false, 0, 10))
	require.NoError(t, f.Lock(false, crypto.ChunkPayloadSize, 10))
}

func TestSharedLocksDoNotConflict(t *testing.T) {
	reg, cryptor, path := newTestRegistry(t, false)
	f, err := reg.Get(path, cryptor, Options{Writable: true, CreateNew: true})
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.Lock(true, 0, 10))
	require.NoError(t, f.Lock(true, 5, 10))
}

func TestUnlockThenReacquire(t *testing.T) {
	reg, cryptor, path := newTestRegistry(t, false)
	f, err := reg.Get(path, cryptor, Options{Writable: true, CreateNew: true})
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.Lock(false, 0, 10))
	require.NoError(t, f.Unlock(0, 10))
	require.NoError(t, f.Lock(false, 0, 10))
}
