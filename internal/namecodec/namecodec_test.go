package namecodec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majacQ/cryptofs/internal/cerrors"
	"github.com/majacQ/cryptofs/internal/crypto"
)

func newTestCodec(t *testing.T, pepper []byte) *Codec {
	t.Helper()
	key, err := crypto.NewMasterKey()
	require.NoError(t, err)
	c, err := crypto.NewCryptor(key, crypto.ComboSIVGCM)
	require.NoError(t, err)
	return New(c, pepper)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c := newTestCodec(t, nil)

	enc, err := c.Encrypt("report.docx", "parent-id")
	require.NoError(t, err)

	dec, err := c.Decrypt(enc, "parent-id")
	require.NoError(t, err)
	assert.Equal(t, "report.docx", dec)
}

func TestEncryptRejectsEmptyOrSeparator(t *testing.T) {
	c := newTestCodec(t, nil)

	_, err := c.Encrypt("", "parent-id")
	require.Error(t, err)
	assert.Equal(t, cerrors.InvalidName, cerrors.GetKind(err))

	_, err = c.Encrypt("a/b", "parent-id")
	require.Error(t, err)
	assert.Equal(t, cerrors.InvalidName, cerrors.GetKind(err))
}

func TestDecryptWrongParentFails(t *testing.T) {
	c := newTestCodec(t, nil)
	enc, err := c.Encrypt("report.docx", "parent-id")
	require.NoError(t, err)

	_, err = c.Decrypt(enc, "other-parent-id")
	require.Error(t, err)
	assert.Equal(t, cerrors.AuthenticationFailed, cerrors.GetKind(err))
}

func TestPepperChangesCiphertext(t *testing.T) {
	key, err := crypto.NewMasterKey()
	require.NoError(t, err)
	cryptor, err := crypto.NewCryptor(key, crypto.ComboSIVGCM)
	require.NoError(t, err)

	withPepper := New(cryptor, []byte("pepper"))
	withoutPepper := New(cryptor, nil)

	encWith, err := withPepper.Encrypt("file.txt", "parent-id")
	require.NoError(t, err)

	_, err = withoutPepper.Decrypt(encWith, "parent-id")
	require.Error(t, err)
	assert.Equal(t, cerrors.AuthenticationFailed, cerrors.GetKind(err))
}
