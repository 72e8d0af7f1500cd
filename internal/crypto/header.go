package crypto

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

const (
	// HeaderContentKeySize is the size of the per-file content key stored in
	// every header.
	HeaderContentKeySize = 32
	// headerReservedSize is the width of the reserved sentinel field.
	headerReservedSize = 8
	// headerPayloadSize is the cleartext size of a header's encrypted
	// payload: reserved || contentKey.
	headerPayloadSize = headerReservedSize + HeaderContentKeySize
	// headerReservedValue is written into every new header's reserved field
	// and checked on unmarshal; it has no purpose beyond that check, but it
	// doubles as a gate against truncated or zero-filled headers.
	headerReservedValue = uint64(0xFFFFFFFFFFFFFFFF)
)

// FileHeader is the fixed-size, per-file structure stored as the first
// bytes of every ciphertext file. It carries a random nonce (mixed into
// every chunk's associated data; chunk nonces themselves are drawn at
// random per chunk) and a content key unique to this
// file, so that compromising one file's key never discloses another's.
type FileHeader struct {
	Nonce      []byte
	ContentKey []byte
}

// newHeader creates a FileHeader with a fresh random nonce and content key,
// sized for the given content cryptor's nonce length.
func newHeader(nonceSize int) (FileHeader, error) {
	h := FileHeader{
		Nonce:      make([]byte, nonceSize),
		ContentKey: make([]byte, HeaderContentKeySize),
	}
	if _, err := rand.Read(h.Nonce); err != nil {
		return FileHeader{}, err
	}
	if _, err := rand.Read(h.ContentKey); err != nil {
		return FileHeader{}, err
	}
	return h, nil
}

// NewFileHeader creates a header suitable for a fresh file encrypted under
// the given cipher combo.
func NewFileHeader(cipherCombo string) (FileHeader, error) {
	switch cipherCombo {
	case ComboSIVGCM:
		return newHeader(headerGCMNonceSize)
	case ComboSIVCTRMAC:
		return newHeader(headerCTRMACNonceSize)
	default:
		return FileHeader{}, fmt.Errorf("unsupported cipher combo %q", cipherCombo)
	}
}

func encodeHeaderPayload(h FileHeader) ([]byte, error) {
	if len(h.ContentKey) != HeaderContentKeySize {
		return nil, fmt.Errorf("content key must be %d bytes, got %d", HeaderContentKeySize, len(h.ContentKey))
	}
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, headerReservedValue); err != nil {
		return nil, err
	}
	buf.Write(h.ContentKey)
	return buf.Bytes(), nil
}

func decodeHeaderPayload(nonce, payload []byte) (FileHeader, error) {
	if len(payload) != headerPayloadSize {
		return FileHeader{}, fmt.Errorf("invalid header payload size %d", len(payload))
	}
	reserved := binary.BigEndian.Uint64(payload[:headerReservedSize])
	if reserved != headerReservedValue {
		return FileHeader{}, fmt.Errorf("header reserved field mismatch: corrupt or foreign header")
	}
	return FileHeader{
		Nonce:      append([]byte{}, nonce...),
		ContentKey: append([]byte{}, payload[headerReservedSize:]...),
	}, nil
}

// MarshalHeader encrypts h for storage as the first bytes of a ciphertext
// file, using this Cryptor's content cryptor (keyed by the master key, not
// h.ContentKey — the header itself is encrypted with the vault's own key;
// only the chunks that follow it use h.ContentKey).
func (c *Cryptor) MarshalHeader(h FileHeader) ([]byte, error) {
	return c.header.marshalHeader(h)
}

// UnmarshalHeader decrypts and validates a file's header.
func (c *Cryptor) UnmarshalHeader(raw []byte) (FileHeader, error) {
	return c.header.unmarshalHeader(raw)
}

// HeaderSize returns the on-disk size of a marshaled header under this
// Cryptor's cipher combo.
func (c *Cryptor) HeaderSize() int { return c.header.headerSize() }
