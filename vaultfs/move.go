package vaultfs

import (
	"io"
	"path/filepath"

	"github.com/majacQ/cryptofs/internal/cerrors"
	"github.com/majacQ/cryptofs/internal/pathmap"
)

// Move renames the entry at srcPath to destPath. Per spec §4.3, the name
// is re-encoded under destPath's parent directory id, so the ciphertext
// bytes change even though this is conceptually "just a rename"; the host
// operation is therefore a real host rename of the relocated entry, never
// a no-op.
func (v *Vault) Move(srcPath, destPath string) error {
	if v.opts.Readonly {
		return cerrors.New(cerrors.ReadOnly, "vaultfs.Move", srcPath)
	}

	srcLoc, err := v.mapper.Resolve(srcPath)
	if err != nil {
		return err
	}
	if srcLoc.Kind == pathmap.Missing {
		return cerrors.New(cerrors.NotFound, "vaultfs.Move", srcPath)
	}
	if destLoc, err := v.mapper.Resolve(destPath); err == nil && destLoc.Kind != pathmap.Missing {
		return cerrors.New(cerrors.AlreadyExists, "vaultfs.Move", destPath)
	}

	destParentDirID, destParentHostPath, destName, err := v.mapper.ParentOf(destPath)
	if err != nil {
		return err
	}

	switch srcLoc.Kind {
	case pathmap.Dir:
		err = v.moveDir(srcLoc, destParentDirID, destParentHostPath, destName)
	case pathmap.Symlink:
		err = v.moveLeaf(srcLoc, destParentDirID, destParentHostPath, destName, true, "symlink.c9r")
	default:
		err = v.moveLeaf(srcLoc, destParentDirID, destParentHostPath, destName, false, "contents.c9r")
	}
	if err != nil {
		return err
	}

	v.mapper.Forget(srcPath)
	v.mapper.Forget(destPath)
	return nil
}

// moveLeaf relocates a FILE or SYMLINK entry's content to its new
// location, discarding any now-empty wrapping subdirectory it leaves
// behind at the old location.
func (v *Vault) moveLeaf(srcLoc pathmap.Location, destParentDirID, destParentHostPath, destName string, alwaysSubdir bool, marker string) error {
	destEntryPath, destContentPath, _, err := v.mapper.NewLeafPaths(destParentDirID, destParentHostPath, destName, alwaysSubdir, marker)
	if err != nil {
		return err
	}
	if destEntryPath != destContentPath {
		if err := v.hostFS.MkdirAll(destEntryPath); err != nil {
			return err
		}
	}
	if err := v.hostFS.Rename(srcLoc.ContentHostPath, destContentPath); err != nil {
		return err
	}
	if srcLoc.EntryHostPath != srcLoc.ContentHostPath {
		_ = v.hostFS.RemoveAll(srcLoc.EntryHostPath)
	}
	return nil
}

// moveDir relocates a directory's pointer entry (its dir.c9r and wrapping
// .c9r/.c9s subdirectory) to the new location. The directory id — and
// therefore its d/AA/BBBB... content tree and all descendants — is
// untouched.
func (v *Vault) moveDir(srcLoc pathmap.Location, destParentDirID, destParentHostPath, destName string) error {
	destEntryPath, _, err := v.mapper.EntryHostPath(destParentDirID, destParentHostPath, destName)
	if err != nil {
		return err
	}
	if err := v.hostFS.Mkdir(destEntryPath); err != nil && cerrors.GetKind(err) != cerrors.AlreadyExists {
		return err
	}

	srcMarker := filepath.Join(srcLoc.EntryHostPath, "dir.c9r")
	destMarker := filepath.Join(destEntryPath, "dir.c9r")
	if err := v.hostFS.Rename(srcMarker, destMarker); err != nil {
		return err
	}
	_ = v.hostFS.RemoveAll(srcLoc.EntryHostPath)
	return nil
}

// Copy duplicates the file at srcPath in v to destPath, which may live in
// a different Vault (even one opened with a different key): content
// passes through cleartext, so the destination's ciphertext bytes never
// resemble the source's (spec §8 scenario 6).
func (v *Vault) Copy(srcPath string, dest *Vault, destPath string) error {
	if dest.opts.Readonly {
		return cerrors.New(cerrors.ReadOnly, "vaultfs.Copy", destPath)
	}

	src, err := v.OpenFile(srcPath, OpenOptions{})
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := dest.OpenFile(destPath, OpenOptions{Writable: true, CreateNew: true})
	if err != nil {
		return err
	}
	defer out.Close()

	buf := make([]byte, 32*1024)
	var pos int64
	for {
		n, err := src.Read(buf, pos)
		if n > 0 {
			if _, werr := out.Write(buf[:n], pos); werr != nil {
				return werr
			}
			pos += int64(n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
	}
	return out.Force(true)
}
