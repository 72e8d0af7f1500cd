package crypto

import (
	"fmt"
	"io"
)

// ContentReader decrypts a ciphertext body (everything after the header)
// chunk by chunk, presenting it as a cleartext io.Reader. Ported from
// backend/cryptomator's stream.go reader type.
type ContentReader struct {
	cryptor *Cryptor
	header  FileHeader
	src     io.Reader

	chunkNr  uint64
	buf      []byte
	bufOff   int
	finished bool
}

// NewContentReader wraps src — positioned at the first ciphertext chunk
// after the header — for decryption starting at chunk index startChunk.
func NewContentReader(c *Cryptor, h FileHeader, src io.Reader, startChunk uint64) *ContentReader {
	return &ContentReader{cryptor: c, header: h, src: src, chunkNr: startChunk}
}

func (r *ContentReader) Read(p []byte) (int, error) {
	if r.bufOff >= len(r.buf) {
		if r.finished {
			return 0, io.EOF
		}
		if err := r.readChunk(); err != nil {
			return 0, err
		}
	}
	n := copy(p, r.buf[r.bufOff:])
	r.bufOff += n
	return n, nil
}

func (r *ContentReader) readChunk() error {
	ciphertext, err := readChunkBytes(r.src, r.cryptor.EncryptedChunkSize(ChunkPayloadSize))
	if err != nil && err != io.ErrUnexpectedEOF {
		return err
	}
	if len(ciphertext) == 0 {
		r.finished = true
		return io.EOF
	}
	plaintext, derr := r.cryptor.DecryptChunk(r.header, r.chunkNr, ciphertext)
	if derr != nil {
		return fmt.Errorf("decrypting chunk %d: %w", r.chunkNr, derr)
	}
	r.chunkNr++
	r.buf = plaintext
	r.bufOff = 0
	if err == io.ErrUnexpectedEOF {
		r.finished = true
	}
	return nil
}

// readChunkBytes reads up to n bytes from src, tolerating a short final
// read (a last, partial chunk) by returning io.ErrUnexpectedEOF alongside
// whatever bytes it did get.
func readChunkBytes(src io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	read, err := io.ReadFull(src, buf)
	switch err {
	case nil:
		return buf, nil
	case io.EOF:
		return nil, io.EOF
	case io.ErrUnexpectedEOF:
		return buf[:read], io.ErrUnexpectedEOF
	default:
		return nil, err
	}
}

// ContentWriter encrypts a cleartext stream into ciphertext chunks written
// to dst as they fill. Ported from backend/cryptomator's stream.go writer
// type.
type ContentWriter struct {
	cryptor *Cryptor
	header  FileHeader
	dst     io.Writer

	chunkNr uint64
	buf     []byte
}

// NewContentWriter wraps dst to receive the ciphertext chunks produced by
// encrypting cleartext written to it, starting at chunk index startChunk.
func NewContentWriter(c *Cryptor, h FileHeader, dst io.Writer, startChunk uint64) *ContentWriter {
	return &ContentWriter{cryptor: c, header: h, dst: dst, chunkNr: startChunk, buf: make([]byte, 0, ChunkPayloadSize)}
}

func (w *ContentWriter) Write(p []byte) (int, error) {
	total := len(p)
	for len(p) > 0 {
		n := copy(w.buf[len(w.buf):cap(w.buf)], p)
		w.buf = w.buf[:len(w.buf)+n]
		p = p[n:]
		if len(w.buf) == cap(w.buf) {
			if err := w.flushChunk(); err != nil {
				return 0, err
			}
		}
	}
	return total, nil
}

func (w *ContentWriter) flushChunk() error {
	ciphertext, err := w.cryptor.EncryptChunk(w.header, w.chunkNr, w.buf)
	if err != nil {
		return err
	}
	if _, err := w.dst.Write(ciphertext); err != nil {
		return err
	}
	w.chunkNr++
	w.buf = w.buf[:0]
	return nil
}

// Close flushes any buffered partial final chunk. An entirely empty write
// (no bytes ever written) leaves the ciphertext as header-only, with no
// trailing empty chunk, matching EncryptedFileSize/DecryptedFileSize's
// geometry for a zero-length cleartext body.
func (w *ContentWriter) Close() error {
	if len(w.buf) == 0 {
		return nil
	}
	return w.flushChunk()
}
