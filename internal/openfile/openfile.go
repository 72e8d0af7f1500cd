// Package openfile implements the per-inode open-file runtime: header
// management, chunk-oriented content cryptography via a bounded write-back
// cache, size tracking, and lock translation. Grounded on spec §4.4-§4.5
// and backend/cryptomator's stream.go reader/writer (adapted here from a
// stream-only, create-or-replace object model to genuine random-access
// read/write/truncate, which backend/cryptomator never needed).
package openfile

import (
	"io"
	"sync"
	"time"

	"github.com/majacQ/cryptofs/internal/cerrors"
	"github.com/majacQ/cryptofs/internal/clog"
	"github.com/majacQ/cryptofs/internal/crypto"
	"github.com/majacQ/cryptofs/internal/host"
)

// cacheCapacity is the bounded ChunkCache size K from spec §4.4.
const cacheCapacity = 5

// State is an OpenFile's lifecycle stage (spec §4.4).
type State int

const (
	Uninitialized State = iota
	Open
	Closing
	Closed
)

// Options controls how a file's header is obtained on first open.
type Options struct {
	Writable         bool
	CreateNew        bool // fail if the file already has a header
	TruncateExisting bool // discard any existing header/content
}

// File is a single open-file's runtime state: header, live cleartext
// size, chunk cache, open count, deferred write-back errors and lock
// table. Exactly one File exists per host path at a time (enforced by
// Registry).
type File struct {
	mu sync.Mutex

	hostPath string
	hostFile host.File
	cryptor  *crypto.Cryptor
	forget   func()

	state     State
	openCount int
	writable  bool

	header crypto.FileHeader
	size   int64
	mtime  time.Time
	cache  *chunkCache

	pendingWriteErr error
	locks           []heldLock
}

// newFile constructs a File in the Uninitialized state. Callers must call
// open before using it; Registry.Get does this atomically.
func newFile(hostPath string, hostFile host.File, cryptor *crypto.Cryptor, forget func()) *File {
	return &File{
		hostPath: hostPath,
		hostFile: hostFile,
		cryptor:  cryptor,
		forget:   forget,
		cache:    newChunkCache(cacheCapacity),
	}
}

// open transitions Uninitialized/Closed -> Open (or bumps openCount if
// already Open), loading or creating the header per opts. ciphertextSize
// is the on-disk size of the host file at open time, used to compute the
// cleartext size from an existing header; initialMTime is that host
// file's modification time, used as the file's lastModified until the
// next Write (spec §4.8).
func (f *File) open(opts Options, ciphertextSize int64, initialMTime time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state == Open {
		f.openCount++
		return nil
	}

	if opts.TruncateExisting || opts.CreateNew {
		if opts.TruncateExisting {
			if err := f.hostFile.Truncate(0); err != nil {
				return cerrors.Wrap(cerrors.IO, "openfile.open", f.hostPath, err)
			}
		}
		h, err := crypto.NewFileHeader(f.cryptor.CipherCombo())
		if err != nil {
			return cerrors.Wrap(cerrors.IO, "openfile.open", f.hostPath, err)
		}
		f.header = h
		f.size = 0
		f.mtime = time.Now()
	} else {
		headerBytes := make([]byte, f.cryptor.HeaderSize())
		n, err := f.hostFile.ReadAt(headerBytes, 0)
		switch {
		case err != nil && err != io.EOF:
			return cerrors.Wrap(cerrors.IO, "openfile.open", f.hostPath, err)
		case n < len(headerBytes):
			clog.Noticef(f.hostPath, "ciphertext is smaller than header size %d, treating as empty file", len(headerBytes))
			h, err := crypto.NewFileHeader(f.cryptor.CipherCombo())
			if err != nil {
				return cerrors.Wrap(cerrors.IO, "openfile.open", f.hostPath, err)
			}
			f.header = h
			f.size = 0
			f.mtime = time.Now()
		default:
			h, err := f.cryptor.UnmarshalHeader(headerBytes)
			if err != nil {
				return cerrors.Wrap(cerrors.AuthenticationFailed, "openfile.open", f.hostPath, err)
			}
			f.header = h
			f.size = f.cryptor.DecryptedFileSize(f.hostPath, ciphertextSize)
			f.mtime = initialMTime
		}
	}

	f.state = Open
	f.openCount = 1
	f.writable = opts.Writable
	return nil
}

// HostPath returns the host path this File was opened against.
func (f *File) HostPath() string { return f.hostPath }

// OpenCount returns the current number of open handles referencing this File.
func (f *File) OpenCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.openCount
}

// Size returns the file's current cleartext size.
func (f *File) Size() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.size
}

// ModTime returns the file's last-modified time: the host file's mtime at
// open, bumped to now on every Write (spec §4.8).
func (f *File) ModTime() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mtime
}

// Read copies up to len(dst) cleartext bytes starting at position into
// dst, returning (0, io.EOF) if position is at or beyond the current size.
func (f *File) Read(dst []byte, position int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.checkPendingLocked(); err != nil {
		return 0, err
	}
	if position >= f.size {
		return 0, io.EOF
	}

	span := f.size - position
	if int64(len(dst)) > span {
		dst = dst[:span]
	}

	total := 0
	for total < len(dst) {
		pos := position + int64(total)
		chunkNr, offInChunk := crypto.ChunkIndex(pos)
		chunk, err := f.loadChunkLocked(chunkNr)
		if err != nil {
			return total, err
		}
		if offInChunk >= len(chunk) {
			break
		}
		n := copy(dst[total:], chunk[offInChunk:])
		total += n
	}
	return total, nil
}

// Write encrypts src into the chunk cache starting at cleartext position,
// zero-filling any gap if position is past the current size, and updates
// size eagerly.
func (f *File) Write(src []byte, position int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.writable {
		return 0, cerrors.New(cerrors.ReadOnly, "openfile.Write", f.hostPath)
	}
	if err := f.checkPendingLocked(); err != nil {
		return 0, err
	}
	oldSize := f.size

	// If position lands past the current size, the whole gap between them
	// must read back as cleartext zero bytes (spec §4.4). A partial chunk
	// straddling the old size is padded out to a full ChunkPayloadSize
	// when the gap runs past it, and every fully-empty chunk strictly
	// between it and position's chunk is materialized as a dirty all-zero
	// chunk. The chunk position falls in is built from zeros in the loop
	// below. Doing this here means loadChunkLocked never has to read
	// ciphertext that was never written, and a later Read never runs past
	// a short cached chunk.
	//
	// size is bumped to its final value up front, before any of these
	// chunks are inserted, so that a cache eviction triggered mid-fill
	// writes them back instead of treating them as already truncated
	// away (writeBackLocked gates on f.size).
	if position > f.size {
		startGapChunk, startOff := crypto.ChunkIndex(f.size)
		endGapChunk, _ := crypto.ChunkIndex(position)

		newEnd := position + int64(len(src))
		if newEnd > f.size {
			f.size = newEnd
		}

		if startOff > 0 {
			existing, err := f.loadChunkLocked(startGapChunk)
			if err != nil {
				return 0, err
			}
			if len(existing) < crypto.ChunkPayloadSize && startGapChunk < endGapChunk {
				padded := make([]byte, crypto.ChunkPayloadSize)
				copy(padded, existing)
				f.storeChunkLocked(startGapChunk, padded, true)
			}
			startGapChunk++
		}
		for chunkNr := startGapChunk; chunkNr < endGapChunk; chunkNr++ {
			f.storeChunkLocked(chunkNr, make([]byte, crypto.ChunkPayloadSize), true)
		}
	}

	total := 0
	for total < len(src) {
		pos := position + int64(total)
		chunkNr, offInChunk := crypto.ChunkIndex(pos)

		remaining := len(src) - total
		spaceInChunk := crypto.ChunkPayloadSize - offInChunk
		n := remaining
		if n > spaceInChunk {
			n = spaceInChunk
		}

		wholeChunk := offInChunk == 0 && n == crypto.ChunkPayloadSize
		var chunk []byte
		if wholeChunk {
			chunk = make([]byte, crypto.ChunkPayloadSize)
		} else {
			// A chunk lying wholly past the old size has no ciphertext on
			// the host yet; unless it is cached, it starts out empty.
			var existing []byte
			if e, ok := f.cache.get(chunkNr); ok {
				existing = e.data
			} else if int64(chunkNr)*crypto.ChunkPayloadSize < oldSize {
				loaded, err := f.loadChunkLocked(chunkNr)
				if err != nil {
					return total, err
				}
				existing = loaded
			}
			needed := offInChunk + n
			if needed > len(existing) {
				grown := make([]byte, needed)
				copy(grown, existing)
				existing = grown
			}
			chunk = existing
		}
		copy(chunk[offInChunk:offInChunk+n], src[total:total+n])
		f.storeChunkLocked(chunkNr, chunk, true)

		total += n
	}

	newEnd := position + int64(len(src))
	if newEnd > f.size {
		f.size = newEnd
	}
	f.mtime = time.Now()
	return total, nil
}

// Truncate sets the file's cleartext size to size, evicting (without
// write-back) any cached chunk beyond it and cutting the new last partial
// chunk short at size. After flushing, a shrunk file's host ciphertext is
// cut to the matching length, so a later open computes the same size.
func (f *File) Truncate(size int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.writable {
		return cerrors.New(cerrors.ReadOnly, "openfile.Truncate", f.hostPath)
	}
	oldSize := f.size

	lastChunk, offInLast := crypto.ChunkIndex(size)
	if offInLast > 0 || size == 0 {
		if chunk, err := f.loadChunkLocked(lastChunk); err == nil && len(chunk) > offInLast {
			trimmed := make([]byte, offInLast)
			copy(trimmed, chunk[:offInLast])
			f.storeChunkLocked(lastChunk, trimmed, true)
		}
		f.cache.evictTailFrom(lastChunk + 1)
	} else {
		f.cache.evictTailFrom(lastChunk)
	}

	f.size = size
	if err := f.flushLocked(false); err != nil {
		return err
	}
	if size < oldSize {
		if err := f.hostFile.Truncate(f.cryptor.EncryptedFileSize(size)); err != nil {
			return cerrors.Wrap(cerrors.IO, "openfile.Truncate", f.hostPath, err)
		}
	}
	return nil
}

// Force writes back all dirty chunks and the header, then fsyncs the host
// file. The header carries no size field: the cleartext size is not
// stored anywhere, and the next open recomputes it from the ciphertext
// length. metadataToo requests a full fsync rather than a data-only flush.
func (f *File) Force(metadataToo bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flushLocked(metadataToo)
}

func (f *File) flushLocked(metadataToo bool) error {
	if err := f.checkPendingLocked(); err != nil {
		return err
	}
	err := f.cache.forEach(func(chunkNr uint64, e *cacheEntry) error {
		if !e.dirty {
			return nil
		}
		if err := f.writeBackLocked(chunkNr, e.data); err != nil {
			return err
		}
		e.dirty = false
		return nil
	})
	if err != nil {
		return err
	}

	headerBytes, err := f.cryptor.MarshalHeader(f.header)
	if err != nil {
		return cerrors.Wrap(cerrors.IO, "openfile.Force", f.hostPath, err)
	}
	if _, err := f.hostFile.WriteAt(headerBytes, 0); err != nil {
		return cerrors.Wrap(cerrors.IO, "openfile.Force", f.hostPath, err)
	}
	if err := f.hostFile.Sync(metadataToo); err != nil {
		return cerrors.Wrap(cerrors.IO, "openfile.Force", f.hostPath, err)
	}
	return nil
}

// Close decrements openCount; at zero it flushes and releases the host
// handle, then invokes forget so the Registry drops this File.
func (f *File) Close() error {
	f.mu.Lock()
	f.openCount--
	if f.openCount > 0 {
		f.mu.Unlock()
		return nil
	}
	f.state = Closing
	var flushErr error
	if f.writable {
		flushErr = f.flushLocked(false)
	}
	closeErr := f.hostFile.Close()
	f.state = Closed
	forget := f.forget
	f.mu.Unlock()

	if forget != nil {
		forget()
	}
	if flushErr != nil {
		return flushErr
	}
	if closeErr != nil {
		return cerrors.Wrap(cerrors.IO, "openfile.Close", f.hostPath, closeErr)
	}
	return nil
}

// loadChunkLocked returns the cleartext bytes of chunkNr, from cache or by
// reading and decrypting from the host file. Caller must hold f.mu.
func (f *File) loadChunkLocked(chunkNr uint64) ([]byte, error) {
	if e, ok := f.cache.get(chunkNr); ok {
		return e.data, nil
	}

	payloadLen := f.chunkPayloadLenLocked(chunkNr)
	if payloadLen == 0 {
		data := make([]byte, 0)
		f.insertCacheLocked(chunkNr, data, false)
		return data, nil
	}

	ciphertextLen := f.cryptor.EncryptedChunkSize(payloadLen)
	buf := make([]byte, ciphertextLen)
	n, err := f.hostFile.ReadAt(buf, f.chunkCiphertextOffsetLocked(chunkNr))
	if err != nil && err != io.EOF {
		return nil, cerrors.Wrap(cerrors.IO, "openfile.loadChunk", f.hostPath, err)
	}
	buf = buf[:n]

	plaintext, err := f.cryptor.DecryptChunk(f.header, chunkNr, buf)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.AuthenticationFailed, "openfile.loadChunk", f.hostPath, err)
	}
	f.insertCacheLocked(chunkNr, plaintext, false)
	return plaintext, nil
}

func (f *File) storeChunkLocked(chunkNr uint64, data []byte, dirty bool) {
	if e, ok := f.cache.entries[chunkNr]; ok {
		e.data = data
		e.dirty = e.dirty || dirty
		f.cache.touch(chunkNr)
		return
	}
	f.insertCacheLocked(chunkNr, data, dirty)
}

func (f *File) insertCacheLocked(chunkNr uint64, data []byte, dirty bool) {
	entry := &cacheEntry{data: data, dirty: dirty}
	err := f.cache.put(chunkNr, entry, func(victimNr uint64, victim *cacheEntry) error {
		if !victim.dirty {
			return nil
		}
		if werr := f.writeBackLocked(victimNr, victim.data); werr != nil {
			f.pendingWriteErr = werr
			return nil // do not block the caller; surfaced on next user-visible op
		}
		return nil
	})
	if err != nil {
		f.pendingWriteErr = err
	}
}

// writeBackLocked encrypts and writes a single chunk at its ciphertext
// offset, only if its index is still within the current file size
// (otherwise it was truncated away and must not be resurrected on disk).
func (f *File) writeBackLocked(chunkNr uint64, plaintext []byte) error {
	if int64(chunkNr)*crypto.ChunkPayloadSize >= f.size {
		return nil
	}
	ciphertext, err := f.cryptor.EncryptChunk(f.header, chunkNr, plaintext)
	if err != nil {
		return cerrors.Wrap(cerrors.IO, "openfile.writeBack", f.hostPath, err)
	}
	if _, err := f.hostFile.WriteAt(ciphertext, f.chunkCiphertextOffsetLocked(chunkNr)); err != nil {
		return cerrors.Wrap(cerrors.IO, "openfile.writeBack", f.hostPath, err)
	}
	return nil
}

func (f *File) chunkCiphertextOffsetLocked(chunkNr uint64) int64 {
	fullChunkCiphertextSize := int64(f.cryptor.EncryptedChunkSize(crypto.ChunkPayloadSize))
	return int64(f.cryptor.HeaderSize()) + int64(chunkNr)*fullChunkCiphertextSize
}

func (f *File) chunkPayloadLenLocked(chunkNr uint64) int {
	start := int64(chunkNr) * crypto.ChunkPayloadSize
	if start >= f.size {
		return 0
	}
	remaining := f.size - start
	if remaining > crypto.ChunkPayloadSize {
		return crypto.ChunkPayloadSize
	}
	return int(remaining)
}

func (f *File) checkPendingLocked() error {
	if f.pendingWriteErr != nil {
		err := f.pendingWriteErr
		f.pendingWriteErr = nil
		return err
	}
	return nil
}
