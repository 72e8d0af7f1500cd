// Package namecodec encrypts and decrypts a single cleartext path
// component, bound to its parent directory id. Grounded on
// backend/cryptomator's cryptor.go EncryptFilename/DecryptFilename, with
// the validation and suffix policy spec §4.1 assigns to the codec layer
// rather than the primitive cryptor.
package namecodec

import (
	"strings"

	"github.com/majacQ/cryptofs/internal/cerrors"
	"github.com/majacQ/cryptofs/internal/crypto"
)

// Codec encodes/decodes cleartext names under a parent directory id. It
// operates on the base name only; callers append the .c9r/.c9s suffix.
type Codec struct {
	cryptor *crypto.Cryptor
	pepper  string
}

// New builds a Codec over cryptor. pepper, if non-empty, is mixed into the
// parent-binding associated data of every name (spec §6 "pepper" option),
// so a vault opened with the wrong pepper fails the same way as one
// opened with the wrong master key.
func New(cryptor *crypto.Cryptor, pepper []byte) *Codec {
	return &Codec{cryptor: cryptor, pepper: string(pepper)}
}

func (c *Codec) bind(parentDirID string) string { return parentDirID + c.pepper }

// Encrypt returns the base64url ciphertext of cleartext under
// parentDirID. An empty cleartext or one containing a path separator can
// never have been produced by this codec, so it fails with
// cerrors.InvalidName rather than being silently accepted.
func (c *Codec) Encrypt(cleartext, parentDirID string) (string, error) {
	if err := validate(cleartext); err != nil {
		return "", err
	}
	return c.cryptor.EncryptFilename(cleartext, c.bind(parentDirID))
}

func validate(cleartext string) error {
	if cleartext == "" {
		return cerrors.New(cerrors.InvalidName, "namecodec.Encrypt", cleartext)
	}
	if strings.ContainsAny(cleartext, "/\\") {
		return cerrors.New(cerrors.InvalidName, "namecodec.Encrypt", cleartext)
	}
	return nil
}

// Decrypt is the inverse of Encrypt. It fails with
// cerrors.AuthenticationFailed if encoded was not produced by Encrypt
// under this exact parentDirID (and pepper).
func (c *Codec) Decrypt(encoded, parentDirID string) (string, error) {
	cleartext, err := c.cryptor.DecryptFilename(encoded, c.bind(parentDirID))
	if err != nil {
		return "", cerrors.Wrap(cerrors.AuthenticationFailed, "namecodec.Decrypt", encoded, err)
	}
	return cleartext, nil
}
