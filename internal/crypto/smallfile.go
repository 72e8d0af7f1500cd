package crypto

import (
	"bytes"
	"fmt"
	"io"
)

// EncryptAll encrypts plaintext as a complete ciphertext file: a fresh
// header followed by its chunks. Used for small, whole-file blobs like
// dir.c9r and symlink.c9r that are never opened through the OpenFile
// runtime's incremental read/write path.
func (c *Cryptor) EncryptAll(plaintext []byte) ([]byte, error) {
	h, err := NewFileHeader(c.cipherCombo)
	if err != nil {
		return nil, err
	}
	headerBytes, err := c.MarshalHeader(h)
	if err != nil {
		return nil, err
	}
	var body bytes.Buffer
	w := NewContentWriter(c, h, &body, 0)
	if _, err := w.Write(plaintext); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(headerBytes)+body.Len())
	out = append(out, headerBytes...)
	out = append(out, body.Bytes()...)
	return out, nil
}

// DecryptAll is the inverse of EncryptAll.
func (c *Cryptor) DecryptAll(raw []byte) ([]byte, error) {
	headerSize := c.HeaderSize()
	if len(raw) < headerSize {
		return nil, fmt.Errorf("ciphertext shorter than header")
	}
	h, err := c.UnmarshalHeader(raw[:headerSize])
	if err != nil {
		return nil, err
	}
	r := NewContentReader(c, h, bytes.NewReader(raw[headerSize:]), 0)
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return plaintext, nil
}
