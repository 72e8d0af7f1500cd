package crypto

import (
	"crypto/aes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	aeswrap "github.com/NickBall/go-aes-key-wrap"
	"golang.org/x/crypto/scrypt"
)

const (
	// MasterEncryptKeySize is the size of a MasterKey's EncryptKey.
	MasterEncryptKeySize = 32
	// MasterMacKeySize is the size of a MasterKey's MacKey.
	MasterMacKeySize = MasterEncryptKeySize

	masterDefaultVersion         = 999
	masterDefaultScryptCostParam = 32 * 1024
	masterDefaultScryptBlockSize = 8
	masterDefaultScryptSaltSize  = 32
)

// MasterKey is the pair of AES keys a vault is encrypted with. It is the
// opaque key supplier's product: spec §6 treats loading it as an external
// collaborator, but a runnable vault still needs a concrete format to load
// it from, so this type also knows how to (un)wrap itself with a passphrase
// the way masterkey.cryptomator does on disk.
type MasterKey struct {
	EncryptKey []byte
	MacKey     []byte
}

type wrappedMasterKey struct {
	ScryptSalt       []byte `json:"scryptSalt"`
	ScryptCostParam  int    `json:"scryptCostParam"`
	ScryptBlockSize  int    `json:"scryptBlockSize"`
	PrimaryMasterKey []byte `json:"primaryMasterKey"`
	HmacMasterKey    []byte `json:"hmacMasterKey"`

	// Version and VersionMac are obsolete fields from older vault formats,
	// kept only so that legacy masterkey.cryptomator files still parse.
	Version    uint32 `json:"version"`
	VersionMac []byte `json:"versionMac"`
}

// NewMasterKey creates a new, randomly initialized MasterKey.
func NewMasterKey() (MasterKey, error) {
	m := MasterKey{
		EncryptKey: make([]byte, MasterEncryptKeySize),
		MacKey:     make([]byte, MasterMacKeySize),
	}
	if _, err := rand.Read(m.EncryptKey); err != nil {
		return MasterKey{}, err
	}
	if _, err := rand.Read(m.MacKey); err != nil {
		return MasterKey{}, err
	}
	return m, nil
}

// JWTKey returns the key used to sign and verify the vault config token:
// the concatenation of the encrypt and mac keys, per vault.cryptomator's
// keying convention.
func (m MasterKey) JWTKey() []byte {
	out := make([]byte, 0, len(m.EncryptKey)+len(m.MacKey))
	out = append(out, m.EncryptKey...)
	out = append(out, m.MacKey...)
	return out
}

// Marshal encrypts m with a scrypt-derived key-encryption-key wrapped with
// RFC 3394 AES key wrap, and writes the resulting JSON document — the
// on-disk format of masterkey.cryptomator.
func (m MasterKey) Marshal(w io.Writer, passphrase string) error {
	wrapped := wrappedMasterKey{
		Version:         masterDefaultVersion,
		ScryptCostParam: masterDefaultScryptCostParam,
		ScryptBlockSize: masterDefaultScryptBlockSize,
		ScryptSalt:      make([]byte, masterDefaultScryptSaltSize),
	}
	if _, err := rand.Read(wrapped.ScryptSalt); err != nil {
		return err
	}

	kek, err := scrypt.Key([]byte(passphrase), wrapped.ScryptSalt, wrapped.ScryptCostParam, wrapped.ScryptBlockSize, 1, MasterEncryptKeySize)
	if err != nil {
		return fmt.Errorf("deriving key-encryption-key: %w", err)
	}
	block, err := aes.NewCipher(kek)
	if err != nil {
		return err
	}
	if wrapped.PrimaryMasterKey, err = aeswrap.Wrap(block, m.EncryptKey); err != nil {
		return fmt.Errorf("wrapping encrypt key: %w", err)
	}
	if wrapped.HmacMasterKey, err = aeswrap.Wrap(block, m.MacKey); err != nil {
		return fmt.Errorf("wrapping mac key: %w", err)
	}

	mac := hmac.New(sha256.New, m.MacKey)
	if err := binary.Write(mac, binary.BigEndian, wrapped.Version); err != nil {
		return err
	}
	wrapped.VersionMac = mac.Sum(nil)

	return json.NewEncoder(w).Encode(wrapped)
}

// UnmarshalMasterKey reads a masterkey.cryptomator document and unwraps it
// with the given passphrase.
func UnmarshalMasterKey(r io.Reader, passphrase string) (MasterKey, error) {
	var wrapped wrappedMasterKey
	if err := json.NewDecoder(r).Decode(&wrapped); err != nil {
		return MasterKey{}, fmt.Errorf("parsing masterkey document: %w", err)
	}

	kek, err := scrypt.Key([]byte(passphrase), wrapped.ScryptSalt, wrapped.ScryptCostParam, wrapped.ScryptBlockSize, 1, MasterEncryptKeySize)
	if err != nil {
		return MasterKey{}, fmt.Errorf("deriving key-encryption-key: %w", err)
	}
	block, err := aes.NewCipher(kek)
	if err != nil {
		return MasterKey{}, err
	}

	var m MasterKey
	if m.EncryptKey, err = aeswrap.Unwrap(block, wrapped.PrimaryMasterKey); err != nil {
		return MasterKey{}, fmt.Errorf("unwrapping encrypt key: %w", err)
	}
	if m.MacKey, err = aeswrap.Unwrap(block, wrapped.HmacMasterKey); err != nil {
		return MasterKey{}, fmt.Errorf("unwrapping mac key: %w", err)
	}
	return m, nil
}
