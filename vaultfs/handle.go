package vaultfs

import (
	"github.com/majacQ/cryptofs/internal/cerrors"
	"github.com/majacQ/cryptofs/internal/openfile"
	"github.com/majacQ/cryptofs/internal/pathmap"
)

// OpenOptions mirror spec §4.4's open-time bypass flags.
type OpenOptions struct {
	Writable         bool
	CreateNew        bool
	TruncateExisting bool
}

// Handle is a single open reference to a file's content, backed by an
// interned openfile.File. Multiple Handles on the same cleartext path
// share one underlying File (and its header, cache and locks) via the
// OpenFileRegistry.
type Handle struct {
	vault *Vault
	path  string
	file  *openfile.File
}

// OpenFile resolves cleartextPath and opens (or creates) its content for
// random-access I/O.
func (v *Vault) OpenFile(cleartextPath string, opts OpenOptions) (*Handle, error) {
	if opts.Writable && v.opts.Readonly {
		return nil, cerrors.New(cerrors.ReadOnly, "vaultfs.OpenFile", cleartextPath)
	}

	parentDirID, parentHostPath, name, err := v.mapper.ParentOf(cleartextPath)
	if err != nil {
		return nil, err
	}

	var contentPath string
	if opts.CreateNew {
		_, contentPath, _, err = v.mapper.NewLeafPaths(parentDirID, parentHostPath, name, false, "contents.c9r")
		if err != nil {
			return nil, err
		}
	} else {
		loc, err := v.mapper.Resolve(cleartextPath)
		if err != nil {
			return nil, err
		}
		switch loc.Kind {
		case pathmap.Missing:
			return nil, cerrors.New(cerrors.NotFound, "vaultfs.OpenFile", cleartextPath)
		case pathmap.Dir:
			return nil, cerrors.New(cerrors.IsADirectory, "vaultfs.OpenFile", cleartextPath)
		case pathmap.Symlink:
			return nil, cerrors.New(cerrors.NotADirectory, "vaultfs.OpenFile", cleartextPath)
		}
		contentPath = loc.ContentHostPath
	}

	f, err := v.registry.Get(contentPath, v.cryptor, openfile.Options{
		Writable:         opts.Writable,
		CreateNew:        opts.CreateNew,
		TruncateExisting: opts.TruncateExisting,
	})
	if err != nil {
		return nil, err
	}
	return &Handle{vault: v, path: cleartextPath, file: f}, nil
}

// Read reads into dst starting at the cleartext position.
func (h *Handle) Read(dst []byte, position int64) (int, error) { return h.file.Read(dst, position) }

// Write encrypts and writes src starting at the cleartext position.
func (h *Handle) Write(src []byte, position int64) (int, error) { return h.file.Write(src, position) }

// Truncate sets the file's cleartext size.
func (h *Handle) Truncate(size int64) error { return h.file.Truncate(size) }

// Force flushes dirty chunks and the header, optionally fsyncing metadata.
func (h *Handle) Force(metadataToo bool) error { return h.file.Force(metadataToo) }

// Size returns the file's current cleartext size.
func (h *Handle) Size() int64 { return h.file.Size() }

// Lock acquires a chunk-aligned advisory lock over [pos, pos+length).
func (h *Handle) Lock(shared bool, pos, length int64) error { return h.file.Lock(shared, pos, length) }

// Unlock releases a previously acquired lock.
func (h *Handle) Unlock(pos, length int64) error { return h.file.Unlock(pos, length) }

// Close releases this handle's reference to the underlying File.
func (h *Handle) Close() error { return h.file.Close() }
