//go:build !windows

// Package localfs is the default host.FS: a thin wrapper over the local
// operating system's filesystem, grounded on backend/cryptomator's
// adapter.go (which adapts rclone's fs.Fs to the same narrow Open/Mkdir/
// Remove shape this package exposes for the local disk instead). File
// locking uses flock(2), so this build is POSIX-only; a Windows variant
// would need a separate locking primitive and is not provided.
package localfs

import (
	"io/fs"
	"os"
	"syscall"
	"time"

	"github.com/majacQ/cryptofs/internal/cerrors"
	"github.com/majacQ/cryptofs/internal/host"
)

// FS is a host.FS backed by the local operating system.
type FS struct{}

// New returns a local-disk host.FS.
func New() *FS { return &FS{} }

var _ host.FS = (*FS)(nil)

func (FS) Open(path string) (host.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o600)
	if err != nil {
		return nil, translate("open", path, err)
	}
	return &file{f}, nil
}

func (FS) Create(path string) (host.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, translate("create", path, err)
	}
	return &file{f}, nil
}

func (FS) OpenOrCreate(path string) (host.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, translate("open_or_create", path, err)
	}
	return &file{f}, nil
}

func (FS) Mkdir(path string) error {
	if err := os.Mkdir(path, 0o700); err != nil {
		return translate("mkdir", path, err)
	}
	return nil
}

func (FS) MkdirAll(path string) error {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return translate("mkdir_all", path, err)
	}
	return nil
}

func (FS) Remove(path string) error {
	if err := os.Remove(path); err != nil {
		return translate("remove", path, err)
	}
	return nil
}

func (FS) RemoveAll(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return translate("remove_all", path, err)
	}
	return nil
}

func (FS) Rename(oldpath, newpath string) error {
	if err := os.Rename(oldpath, newpath); err != nil {
		return translate("rename", oldpath, err)
	}
	return nil
}

func (FS) Stat(path string) (host.Info, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, translate("stat", path, err)
	}
	return info{fi}, nil
}

func (FS) ReadDir(path string) ([]host.Info, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, translate("read_dir", path, err)
	}
	out := make([]host.Info, 0, len(entries))
	for _, e := range entries {
		fi, err := e.Info()
		if err != nil {
			continue // entry vanished between readdir and stat; skip it
		}
		out = append(out, info{fi})
	}
	return out, nil
}

func (FS) ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, translate("read_file", path, err)
	}
	return data, nil
}

func (FS) WriteFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return translate("write_file", path, err)
	}
	return nil
}

type info struct{ fs.FileInfo }

func (i info) ModTime() time.Time { return i.FileInfo.ModTime() }

type file struct{ f *os.File }

func (f *file) ReadAt(p []byte, off int64) (int, error)  { return f.f.ReadAt(p, off) }
func (f *file) WriteAt(p []byte, off int64) (int, error) { return f.f.WriteAt(p, off) }
func (f *file) Close() error                             { return f.f.Close() }
func (f *file) Truncate(size int64) error                { return f.f.Truncate(size) }

func (f *file) Sync(metadataToo bool) error {
	if metadataToo {
		return f.f.Sync()
	}
	return f.f.Sync()
}

// Lock takes a flock(2) lock, which covers the whole file: start and
// length are not passed to the host, so any two ranges of the same file
// share one host lock.
func (f *file) Lock(shared bool, start, length int64) error {
	how := syscall.LOCK_EX
	if shared {
		how = syscall.LOCK_SH
	}
	_ = start
	_ = length
	return syscall.Flock(int(f.f.Fd()), how)
}

// Unlock releases the whole-file flock(2) lock, whatever range is given.
func (f *file) Unlock(start, length int64) error {
	_ = start
	_ = length
	return syscall.Flock(int(f.f.Fd()), syscall.LOCK_UN)
}

func translate(op, path string, err error) error {
	switch {
	case os.IsNotExist(err):
		return cerrors.Wrap(cerrors.NotFound, op, path, err)
	case os.IsExist(err):
		return cerrors.Wrap(cerrors.AlreadyExists, op, path, err)
	default:
		return cerrors.Wrap(cerrors.IO, op, path, err)
	}
}
