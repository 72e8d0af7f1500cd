package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMasterKeyRoundTrip(t *testing.T) {
	key, err := NewMasterKey()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, key.Marshal(&buf, "correct horse battery staple"))

	got, err := UnmarshalMasterKey(bytes.NewReader(buf.Bytes()), "correct horse battery staple")
	require.NoError(t, err)

	assert.Equal(t, key.EncryptKey, got.EncryptKey)
	assert.Equal(t, key.MacKey, got.MacKey)
}

func TestMasterKeyWrongPassphraseFails(t *testing.T) {
	key, err := NewMasterKey()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, key.Marshal(&buf, "right password"))

	_, err = UnmarshalMasterKey(bytes.NewReader(buf.Bytes()), "wrong password")
	assert.Error(t, err)
}

func TestJWTKeyIsConcatenation(t *testing.T) {
	key, err := NewMasterKey()
	require.NoError(t, err)
	jwtKey := key.JWTKey()
	assert.Equal(t, key.EncryptKey, jwtKey[:MasterEncryptKeySize])
	assert.Equal(t, key.MacKey, jwtKey[MasterEncryptKeySize:])
}
