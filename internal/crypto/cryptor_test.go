package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func newTestCryptor(t *testing.T, combo string) *Cryptor {
	t.Helper()
	key, err := NewMasterKey()
	require.NoError(t, err)
	c, err := NewCryptor(key, combo)
	require.NoError(t, err)
	return c
}

func TestFilenameRoundTrip(t *testing.T) {
	for _, combo := range []string{ComboSIVGCM, ComboSIVCTRMAC} {
		c := newTestCryptor(t, combo)

		enc, err := c.EncryptFilename("hello world.txt", "parent-dir-id")
		require.NoError(t, err)

		dec, err := c.DecryptFilename(enc, "parent-dir-id")
		require.NoError(t, err)
		assert.Equal(t, "hello world.txt", dec)

		_, err = c.DecryptFilename(enc, "different-dir-id")
		assert.Error(t, err)
	}
}

func TestFilenameRoundTripProperty(t *testing.T) {
	c := newTestCryptor(t, ComboSIVGCM)
	rapid.Check(t, func(t *rapid.T) {
		name := rapid.StringN(1, 200, -1).Draw(t, "name")
		parent := rapid.String().Draw(t, "parent")

		enc, err := c.EncryptFilename(name, parent)
		require.NoError(t, err)
		dec, err := c.DecryptFilename(enc, parent)
		require.NoError(t, err)
		assert.Equal(t, name, dec)
	})
}

func TestEncryptDirIDDeterministic(t *testing.T) {
	c := newTestCryptor(t, ComboSIVGCM)
	a, err := c.EncryptDirID("some-dir-id")
	require.NoError(t, err)
	b, err := c.EncryptDirID("some-dir-id")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	other, err := c.EncryptDirID("other-dir-id")
	require.NoError(t, err)
	assert.NotEqual(t, a, other)
}

func TestChunkRoundTrip(t *testing.T) {
	for _, combo := range []string{ComboSIVGCM, ComboSIVCTRMAC} {
		c := newTestCryptor(t, combo)
		h, err := NewFileHeader(combo)
		require.NoError(t, err)

		plaintext := []byte("the quick brown fox jumps over the lazy dog")
		ciphertext, err := c.EncryptChunk(h, 0, plaintext)
		require.NoError(t, err)

		decrypted, err := c.DecryptChunk(h, 0, ciphertext)
		require.NoError(t, err)
		assert.Equal(t, plaintext, decrypted)

		// A chunk authenticated for index 0 must not authenticate at index 1.
		_, err = c.DecryptChunk(h, 1, ciphertext)
		assert.Error(t, err)
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	c := newTestCryptor(t, ComboSIVGCM)
	h, err := NewFileHeader(ComboSIVGCM)
	require.NoError(t, err)

	raw, err := c.MarshalHeader(h)
	require.NoError(t, err)
	assert.Len(t, raw, c.HeaderSize())

	got, err := c.UnmarshalHeader(raw)
	require.NoError(t, err)
	assert.Equal(t, h.ContentKey, got.ContentKey)
	assert.Equal(t, h.Nonce, got.Nonce)
}

func TestHeaderTamperedFailsAuthentication(t *testing.T) {
	c := newTestCryptor(t, ComboSIVGCM)
	h, err := NewFileHeader(ComboSIVGCM)
	require.NoError(t, err)
	raw, err := c.MarshalHeader(h)
	require.NoError(t, err)

	raw[len(raw)-1] ^= 0xFF
	_, err = c.UnmarshalHeader(raw)
	assert.Error(t, err)
}
