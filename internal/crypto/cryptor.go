// Package crypto implements the primitive crypto operations a Cryptomator
// vault needs: directory-id and filename encryption (AES-SIV), per-chunk
// content encryption (AES-GCM or AES-CTR+HMAC), and the file header and
// master key envelopes those build on.
//
// Spec §1 lists "the primitive crypto library" as an out-of-scope external
// collaborator specified only as an interface; this package is the default,
// concrete implementation of that interface, ported from
// backend/cryptomator's cryptor.go/cryptor_gcm.go/cryptor_ctrmac.go.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base32"
	"encoding/base64"
	"fmt"
	"hash"

	"github.com/miscreant/miscreant.go"
)

// Cipher combo identifiers, as stored in vault.cryptomator's cipherCombo field.
const (
	// ComboSIVGCM uses AES-SIV for names and AES-GCM for content. Current default.
	ComboSIVGCM = "SIV_GCM"
	// ComboSIVCTRMAC uses AES-SIV for names and AES-CTR+HMAC-SHA256 for
	// content. Retained for reading vaults created before Cryptomator 1.7.
	ComboSIVCTRMAC = "SIV_CTRMAC"
)

// contentCryptor encrypts/decrypts the fixed-size chunks a file's body is
// split into, and knows the wire geometry of both its own chunks and the
// header it was constructed for.
type contentCryptor interface {
	encryptChunk(plaintext, nonce, additionalData []byte) []byte
	decryptChunk(ciphertext, additionalData []byte) ([]byte, error)
	fileAssociatedData(fileNonce []byte, chunkNr uint64) []byte
	nonceSize() int
	tagSize() int

	marshalHeader(h FileHeader) ([]byte, error)
	unmarshalHeader(raw []byte) (FileHeader, error)
	headerSize() int
}

// Cryptor bundles the directory-id/filename cryptor (always AES-SIV) with a
// content cryptor chosen per the vault's cipherCombo.
type Cryptor struct {
	masterKey   MasterKey
	siv         *miscreant.Cipher
	cipherCombo string
	header      contentCryptor // content cryptor keyed by the master key, used only for headers
}

// NewCryptor builds a Cryptor for the given master key and cipher combo.
func NewCryptor(key MasterKey, cipherCombo string) (*Cryptor, error) {
	siv, err := miscreant.NewAESCMACSIV(append(append([]byte{}, key.MacKey...), key.EncryptKey...))
	if err != nil {
		return nil, fmt.Errorf("constructing AES-SIV cipher: %w", err)
	}
	c := &Cryptor{masterKey: key, siv: siv, cipherCombo: cipherCombo}
	c.header, err = newContentCryptor(cipherCombo, key.EncryptKey, key.MacKey)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func newContentCryptor(cipherCombo string, encryptKey, macKey []byte) (contentCryptor, error) {
	block, err := aes.NewCipher(encryptKey)
	if err != nil {
		return nil, err
	}
	switch cipherCombo {
	case ComboSIVGCM:
		gcm, err := cipher.NewGCM(block)
		if err != nil {
			return nil, err
		}
		return &gcmContentCryptor{aesGCM: gcm}, nil
	case ComboSIVCTRMAC:
		return &ctrMacContentCryptor{aes: block, hmacKey: macKey}, nil
	default:
		return nil, fmt.Errorf("unsupported cipher combo %q", cipherCombo)
	}
}

// forHeader returns a content cryptor keyed by the given file header's
// content key, for encrypting/decrypting that file's chunks.
func (c *Cryptor) forHeader(h FileHeader) (contentCryptor, error) {
	return newContentCryptor(c.cipherCombo, h.ContentKey, c.masterKey.MacKey)
}

// CipherCombo returns the cipher combo this Cryptor was built for.
func (c *Cryptor) CipherCombo() string { return c.cipherCombo }

// EncryptDirID encrypts a directory id for use as a ciphertext path
// component: SIV-seal, then SHA-1 hash, then base32-encode — the hash keeps
// the resulting path segment short and fixed-length regardless of dirID
// length.
func (c *Cryptor) EncryptDirID(dirID string) (string, error) {
	ciphertext, err := c.siv.Seal(nil, []byte(dirID))
	if err != nil {
		return "", err
	}
	sum := sha1.Sum(ciphertext)
	return base32.StdEncoding.EncodeToString(sum[:]), nil
}

// EncryptFilename encrypts a single path component, binding it to its
// parent directory id so that moving the ciphertext file into a different
// directory makes it fail to decrypt (spec §4.1's relocation-attack note).
func (c *Cryptor) EncryptFilename(cleartext, parentDirID string) (string, error) {
	ciphertext, err := c.siv.Seal(nil, []byte(cleartext), []byte(parentDirID))
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(ciphertext), nil
}

// DecryptFilename is the inverse of EncryptFilename. It fails if encoded
// was not produced for this exact parentDirID.
func (c *Cryptor) DecryptFilename(encoded, parentDirID string) (string, error) {
	raw, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("invalid base64url filename: %w", err)
	}
	cleartext, err := c.siv.Open(nil, raw, []byte(parentDirID))
	if err != nil {
		return "", fmt.Errorf("siv open failed: %w", err)
	}
	return string(cleartext), nil
}

// ShortNameHash returns the base64url(sha1(fullEncName)) used as the
// host-visible directory name for a shortened entry (spec §3 ShortenedEntry).
func ShortNameHash(fullEncName string) string {
	sum := sha1.Sum([]byte(fullEncName))
	return base64.URLEncoding.EncodeToString(sum[:])
}

// --- GCM content cryptor -----------------------------------------------

const (
	headerGCMNonceSize = 12
	headerGCMTagSize   = 16
)

type gcmContentCryptor struct{ aesGCM cipher.AEAD }

func (c *gcmContentCryptor) nonceSize() int { return headerGCMNonceSize }
func (c *gcmContentCryptor) tagSize() int   { return headerGCMTagSize }

func (c *gcmContentCryptor) encryptChunk(plaintext, nonce, ad []byte) []byte {
	out := make([]byte, 0, len(nonce)+len(plaintext)+c.tagSize())
	out = append(out, nonce...)
	return c.aesGCM.Seal(out, nonce, plaintext, ad)
}

func (c *gcmContentCryptor) decryptChunk(ciphertext, ad []byte) ([]byte, error) {
	if len(ciphertext) < c.nonceSize() {
		return nil, fmt.Errorf("chunk shorter than nonce")
	}
	nonce := ciphertext[:c.nonceSize()]
	return c.aesGCM.Open(nil, nonce, ciphertext[c.nonceSize():], ad)
}

func (c *gcmContentCryptor) fileAssociatedData(fileNonce []byte, chunkNr uint64) []byte {
	return chunkAssociatedData(chunkNr, fileNonce, true)
}

func (c *gcmContentCryptor) headerSize() int {
	return headerGCMNonceSize + headerPayloadSize + headerGCMTagSize
}

func (c *gcmContentCryptor) marshalHeader(h FileHeader) ([]byte, error) {
	payload, err := encodeHeaderPayload(h)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, c.headerSize())
	out = append(out, h.Nonce...)
	return c.aesGCM.Seal(out, h.Nonce, payload, nil), nil
}

func (c *gcmContentCryptor) unmarshalHeader(raw []byte) (FileHeader, error) {
	if len(raw) != c.headerSize() {
		return FileHeader{}, fmt.Errorf("invalid header size %d", len(raw))
	}
	nonce := append([]byte{}, raw[:headerGCMNonceSize]...)
	payload, err := c.aesGCM.Open(nil, nonce, raw[headerGCMNonceSize:], nil)
	if err != nil {
		return FileHeader{}, fmt.Errorf("header authentication failed: %w", err)
	}
	return decodeHeaderPayload(nonce, payload)
}

// --- CTR+HMAC content cryptor -------------------------------------------

const (
	headerCTRMACNonceSize = 16
	headerCTRMACTagSize   = 32
)

type ctrMacContentCryptor struct {
	aes     cipher.Block
	hmacKey []byte
}

func (c *ctrMacContentCryptor) nonceSize() int { return headerCTRMACNonceSize }
func (c *ctrMacContentCryptor) tagSize() int   { return headerCTRMACTagSize }

func (c *ctrMacContentCryptor) newMAC() hash.Hash { return hmac.New(sha256.New, c.hmacKey) }

func (c *ctrMacContentCryptor) encryptChunk(plaintext, nonce, ad []byte) []byte {
	ciphertext := make([]byte, len(plaintext))
	cipher.NewCTR(c.aes, nonce).XORKeyStream(ciphertext, plaintext)

	out := make([]byte, 0, len(nonce)+len(ciphertext)+c.tagSize())
	out = append(out, nonce...)
	out = append(out, ciphertext...)

	mac := c.newMAC()
	mac.Write(ad)
	mac.Write(out)
	return mac.Sum(out)
}

func (c *ctrMacContentCryptor) decryptChunk(raw, ad []byte) ([]byte, error) {
	if len(raw) < c.nonceSize()+c.tagSize() {
		return nil, fmt.Errorf("chunk too short")
	}
	macStart := len(raw) - c.tagSize()
	body, tag := raw[:macStart], raw[macStart:]

	mac := c.newMAC()
	mac.Write(ad)
	mac.Write(body)
	if !hmac.Equal(tag, mac.Sum(nil)) {
		return nil, fmt.Errorf("chunk hmac mismatch")
	}

	nonce, ciphertext := body[:c.nonceSize()], body[c.nonceSize():]
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCTR(c.aes, nonce).XORKeyStream(plaintext, ciphertext)
	return plaintext, nil
}

func (c *ctrMacContentCryptor) fileAssociatedData(fileNonce []byte, chunkNr uint64) []byte {
	return chunkAssociatedData(chunkNr, fileNonce, false)
}

func (c *ctrMacContentCryptor) headerSize() int {
	return headerCTRMACNonceSize + headerPayloadSize + headerCTRMACTagSize
}

func (c *ctrMacContentCryptor) marshalHeader(h FileHeader) ([]byte, error) {
	payload, err := encodeHeaderPayload(h)
	if err != nil {
		return nil, err
	}
	encPayload := make([]byte, len(payload))
	cipher.NewCTR(c.aes, h.Nonce).XORKeyStream(encPayload, payload)

	out := make([]byte, 0, c.headerSize())
	out = append(out, h.Nonce...)
	out = append(out, encPayload...)

	mac := c.newMAC()
	mac.Write(out)
	return mac.Sum(out), nil
}

func (c *ctrMacContentCryptor) unmarshalHeader(raw []byte) (FileHeader, error) {
	if len(raw) != c.headerSize() {
		return FileHeader{}, fmt.Errorf("invalid header size %d", len(raw))
	}
	macStart := len(raw) - c.tagSize()
	body, tag := raw[:macStart], raw[macStart:]

	mac := c.newMAC()
	mac.Write(body)
	if !hmac.Equal(tag, mac.Sum(nil)) {
		return FileHeader{}, fmt.Errorf("header hmac mismatch")
	}

	nonce := append([]byte{}, body[:headerCTRMACNonceSize]...)
	encPayload := body[headerCTRMACNonceSize:]
	payload := make([]byte, len(encPayload))
	cipher.NewCTR(c.aes, nonce).XORKeyStream(payload, encPayload)
	return decodeHeaderPayload(nonce, payload)
}

// chunkAssociatedData builds the additional authenticated data binding a
// chunk to its file header nonce and chunk index. The GCM combo orders
// index-then-nonce; the legacy combo orders nonce-then-index — both are
// carried forward from cryptor_gcm.go/cryptor_ctrmac.go so that existing
// vaults of either combo remain readable.
func chunkAssociatedData(chunkNr uint64, fileNonce []byte, indexFirst bool) []byte {
	idx := make([]byte, 8)
	for i := 0; i < 8; i++ {
		idx[7-i] = byte(chunkNr >> (8 * i))
	}
	out := make([]byte, 0, len(idx)+len(fileNonce))
	if indexFirst {
		out = append(out, idx...)
		out = append(out, fileNonce...)
	} else {
		out = append(out, fileNonce...)
		out = append(out, idx...)
	}
	return out
}
