package openfile

import (
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/majacQ/cryptofs/internal/cerrors"
	"github.com/majacQ/cryptofs/internal/crypto"
	"github.com/majacQ/cryptofs/internal/host"
)

// Registry interns at most one File per normalized host path, so
// concurrent openers of the same ciphertext file share its header, cache
// and lock table. Grounded on rclone's fs/cache.Get/PinUntilFinalized
// get-or-build pattern, adapted from pinning remote fs.Fs instances to
// pinning open ciphertext file handles.
type Registry struct {
	fs       host.FS
	readonly bool

	mu    sync.Mutex
	files map[string]*File
}

// NewRegistry builds a Registry over fs. readonly rejects every writable
// open at this boundary (spec §4.5), independent of host permissions.
func NewRegistry(fs host.FS, readonly bool) *Registry {
	return &Registry{fs: fs, readonly: readonly, files: make(map[string]*File)}
}

// Get returns the File for hostPath, creating it (and opening the
// underlying host handle) if this is the first opener. Concurrent callers
// requesting the same path serialize on construction; only one of them
// builds the File, the rest reuse it.
func (r *Registry) Get(hostPath string, cryptor *crypto.Cryptor, opts Options) (*File, error) {
	if opts.Writable && r.readonly {
		return nil, cerrors.New(cerrors.ReadOnly, "openfile.Registry.Get", hostPath)
	}

	key := filepath.Clean(hostPath)

	// The whole build-or-reuse decision is made under r.mu, so two
	// concurrent openers of the same key never both construct a File; the
	// second simply reuses what the first built (spec §4.5's
	// at-most-one-build-per-key guarantee). This serializes unrelated opens
	// too, trading some concurrency for a construction path simple enough
	// to reason about.
	r.mu.Lock()
	defer r.mu.Unlock()

	if f, ok := r.files[key]; ok {
		// Already open: its mtime is already tracked in memory, so the
		// host file's on-disk mtime at this moment is irrelevant.
		if err := f.open(opts, 0, time.Time{}); err != nil {
			return nil, err
		}
		return f, nil
	}

	hf, ciphertextSize, mtime, err := r.openHost(hostPath, opts)
	if err != nil {
		return nil, err
	}

	f := newFile(hostPath, hf, cryptor, func() { r.forget(key) })
	if err := f.open(opts, ciphertextSize, mtime); err != nil {
		hf.Close()
		return nil, err
	}

	r.files[key] = f
	return f, nil
}

func (r *Registry) openHost(hostPath string, opts Options) (host.File, int64, time.Time, error) {
	if opts.CreateNew {
		hf, err := r.fs.Create(hostPath)
		return hf, 0, time.Time{}, err
	}
	info, statErr := r.fs.Stat(hostPath)
	hf, err := r.fs.OpenOrCreate(hostPath)
	if err != nil {
		return nil, 0, time.Time{}, err
	}
	if statErr != nil {
		return hf, 0, time.Time{}, nil
	}
	return hf, info.Size(), info.ModTime(), nil
}

// Peek returns the File currently registered for hostPath without
// incrementing its open count, used by attribute reads that want a live
// file's in-memory size without participating in its lifecycle.
func (r *Registry) Peek(hostPath string) (*File, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[filepath.Clean(hostPath)]
	return f, ok
}

func (r *Registry) forget(key string) {
	r.mu.Lock()
	delete(r.files, key)
	r.mu.Unlock()
}

// CloseAll force-closes every currently open File, used on filesystem
// shutdown to guarantee no dangling host handles remain.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	files := make([]*File, 0, len(r.files))
	for _, f := range r.files {
		files = append(files, f)
	}
	r.mu.Unlock()

	var first error
	for _, f := range files {
		for f.OpenCount() > 0 {
			if err := f.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

var _ io.Closer = (*File)(nil)
