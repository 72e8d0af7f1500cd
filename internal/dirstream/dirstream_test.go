package dirstream

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majacQ/cryptofs/internal/crypto"
	"github.com/majacQ/cryptofs/internal/host/localfs"
	"github.com/majacQ/cryptofs/internal/longname"
	"github.com/majacQ/cryptofs/internal/namecodec"
)

func TestStreamDecodesPlainEntries(t *testing.T) {
	fs := localfs.New()
	dir := t.TempDir()

	key, err := crypto.NewMasterKey()
	require.NoError(t, err)
	cryptor, err := crypto.NewCryptor(key, crypto.ComboSIVGCM)
	require.NoError(t, err)
	codec := namecodec.New(cryptor, nil)
	longNames := longname.New(fs)

	names := []string{"alpha.txt", "beta.txt"}
	for _, n := range names {
		enc, err := codec.Encrypt(n, "")
		require.NoError(t, err)
		require.NoError(t, fs.WriteFile(dir+"/"+enc+".c9r", []byte("x")))
	}

	s, err := Open(fs, codec, longNames, "/docs", dir, "", nil)
	require.NoError(t, err)
	defer s.Close()

	var got []string
	for {
		entry, ok, err := s.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, entry.CleartextName)
	}
	sort.Strings(got)
	assert.Equal(t, names, got)
}

func TestStreamAppliesFilter(t *testing.T) {
	fs := localfs.New()
	dir := t.TempDir()

	key, err := crypto.NewMasterKey()
	require.NoError(t, err)
	cryptor, err := crypto.NewCryptor(key, crypto.ComboSIVGCM)
	require.NoError(t, err)
	codec := namecodec.New(cryptor, nil)
	longNames := longname.New(fs)

	for _, n := range []string{"keep.txt", "skip.txt"} {
		enc, err := codec.Encrypt(n, "")
		require.NoError(t, err)
		require.NoError(t, fs.WriteFile(dir+"/"+enc+".c9r", []byte("x")))
	}

	filter := func(name string) bool { return name == "keep.txt" }
	s, err := Open(fs, codec, longNames, "/docs", dir, "", filter)
	require.NoError(t, err)
	defer s.Close()

	entry, ok, err := s.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "keep.txt", entry.CleartextName)

	_, ok, err = s.Next()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStreamAfterCloseErrors(t *testing.T) {
	fs := localfs.New()
	dir := t.TempDir()

	key, err := crypto.NewMasterKey()
	require.NoError(t, err)
	cryptor, err := crypto.NewCryptor(key, crypto.ComboSIVGCM)
	require.NoError(t, err)
	codec := namecodec.New(cryptor, nil)
	longNames := longname.New(fs)

	s, err := Open(fs, codec, longNames, "/docs", dir, "", nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, _, err = s.Next()
	require.Error(t, err)
}
