package vaultdiag

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majacQ/cryptofs/internal/host/localfs"
)

func TestUnrelatedDirectory(t *testing.T) {
	fs := localfs.New()
	dir := t.TempDir()
	status, err := CheckDirStructure(fs, dir, "vault.cryptomator", "masterkey.cryptomator")
	require.NoError(t, err)
	assert.Equal(t, Unrelated, status)
}

func TestFullVaultStructure(t *testing.T) {
	fs := localfs.New()
	dir := t.TempDir()
	require.NoError(t, fs.MkdirAll(filepath.Join(dir, "d")))
	require.NoError(t, fs.WriteFile(filepath.Join(dir, "vault.cryptomator"), []byte("token")))

	status, err := CheckDirStructure(fs, dir, "vault.cryptomator", "masterkey.cryptomator")
	require.NoError(t, err)
	assert.Equal(t, Vault, status)
}

func TestMaybeLegacyStructure(t *testing.T) {
	fs := localfs.New()
	dir := t.TempDir()
	require.NoError(t, fs.MkdirAll(filepath.Join(dir, "d")))
	require.NoError(t, fs.WriteFile(filepath.Join(dir, "masterkey.cryptomator"), []byte("key")))

	status, err := CheckDirStructure(fs, dir, "vault.cryptomator", "masterkey.cryptomator")
	require.NoError(t, err)
	assert.Equal(t, MaybeLegacy, status)
}
