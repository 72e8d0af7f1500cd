package crypto

import (
	"crypto/rand"
	"fmt"

	"github.com/majacQ/cryptofs/internal/clog"
)

// ChunkPayloadSize is the cleartext size of every chunk but the last, per
// spec §4.2 invariant 1.
const ChunkPayloadSize = 32 * 1024

// EncryptedChunkSize returns the ciphertext size of a chunk whose cleartext
// payload is payloadSize bytes, under this Cryptor's cipher combo.
func (c *Cryptor) EncryptedChunkSize(payloadSize int) int {
	return c.header.nonceSize() + payloadSize + c.header.tagSize()
}

// chunkOverhead is EncryptedChunkSize(0): the fixed per-chunk nonce+tag cost.
func (c *Cryptor) chunkOverhead() int { return c.EncryptedChunkSize(0) }

// EncryptedFileSize computes the ciphertext size of a file whose cleartext
// body is cleartextSize bytes: a header plus one overhead-laden chunk per
// full or partial ChunkPayloadSize block (spec §4.2 invariant 1 and 2).
func (c *Cryptor) EncryptedFileSize(cleartextSize int64) int64 {
	if cleartextSize == 0 {
		return int64(c.HeaderSize())
	}
	fullChunks := cleartextSize / ChunkPayloadSize
	rem := cleartextSize % ChunkPayloadSize
	chunks := fullChunks
	if rem > 0 {
		chunks++
	}
	overhead := int64(c.chunkOverhead())
	return int64(c.HeaderSize()) + chunks*overhead + cleartextSize
}

// DecryptedFileSize computes the cleartext size of a file whose ciphertext
// body is ciphertextSize bytes. Per spec §4.2 invariant 3, an inconsistent
// (too-short) ciphertext size yields a cleartext size of 0 rather than a
// negative number, with a Notice-level log emitted — the geometry is
// trusted to be internally consistent only when the file was produced by
// this package; a foreign or truncated file must not panic or underflow.
func (c *Cryptor) DecryptedFileSize(subject clog.Subject, ciphertextSize int64) int64 {
	headerSize := int64(c.HeaderSize())
	if ciphertextSize < headerSize {
		clog.Noticef(subject, "ciphertext size %d is smaller than header size %d, treating as empty file", ciphertextSize, headerSize)
		return 0
	}
	bodySize := ciphertextSize - headerSize
	if bodySize == 0 {
		return 0
	}
	overhead := int64(c.chunkOverhead())
	chunkSize := overhead + ChunkPayloadSize
	fullChunks := bodySize / chunkSize
	rem := bodySize % chunkSize

	if rem == 0 {
		return fullChunks * ChunkPayloadSize
	}
	if rem <= int64(overhead) {
		clog.Noticef(subject, "trailing %d ciphertext bytes are smaller than chunk overhead %d, treating as truncated and dropping them", rem, overhead)
		return fullChunks * ChunkPayloadSize
	}
	return fullChunks*ChunkPayloadSize + (rem - int64(overhead))
}

// ChunkIndex returns the chunk index and intra-chunk offset that cleartext
// offset off falls into.
func ChunkIndex(off int64) (chunkNr uint64, offsetInChunk int) {
	chunkNr = uint64(off / ChunkPayloadSize)
	offsetInChunk = int(off % ChunkPayloadSize)
	return
}

// EncryptChunk encrypts the chunkNr'th cleartext chunk of a file whose
// header is h.
func (c *Cryptor) EncryptChunk(h FileHeader, chunkNr uint64, plaintext []byte) ([]byte, error) {
	cc, err := c.forHeader(h)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, cc.nonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	ad := cc.fileAssociatedData(h.Nonce, chunkNr)
	return cc.encryptChunk(plaintext, nonce, ad), nil
}

// DecryptChunk decrypts and authenticates the chunkNr'th ciphertext chunk
// of a file whose header is h.
func (c *Cryptor) DecryptChunk(h FileHeader, chunkNr uint64, ciphertext []byte) ([]byte, error) {
	cc, err := c.forHeader(h)
	if err != nil {
		return nil, err
	}
	ad := cc.fileAssociatedData(h.Nonce, chunkNr)
	plaintext, err := cc.decryptChunk(ciphertext, ad)
	if err != nil {
		return nil, fmt.Errorf("chunk %d: %w", chunkNr, err)
	}
	return plaintext, nil
}
