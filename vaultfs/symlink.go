package vaultfs

import (
	"github.com/majacQ/cryptofs/internal/cerrors"
	"github.com/majacQ/cryptofs/internal/pathmap"
)

// CreateSymlink materializes a symlink at cleartextPath whose target is
// the UTF-8 string target, stored as an encrypted content file at
// <entry>/symlink.c9r (spec §4.7). The cleartext name is validated before
// any directory skeleton is created.
func (v *Vault) CreateSymlink(cleartextPath, target string) error {
	if v.opts.Readonly {
		return cerrors.New(cerrors.ReadOnly, "vaultfs.CreateSymlink", cleartextPath)
	}

	parentDirID, parentHostPath, name, err := v.mapper.ParentOf(cleartextPath)
	if err != nil {
		return err
	}
	if err := v.mapper.AssertCleartextNameLengthOk(name); err != nil {
		return err
	}

	if loc, err := v.mapper.Resolve(cleartextPath); err != nil {
		return err
	} else if loc.Kind != pathmap.Missing {
		return cerrors.New(cerrors.AlreadyExists, "vaultfs.CreateSymlink", cleartextPath)
	}
	entryHostPath, contentPath, _, err := v.mapper.NewLeafPaths(parentDirID, parentHostPath, name, true, "symlink.c9r")
	if err != nil {
		return err
	}
	if err := v.hostFS.MkdirAll(entryHostPath); err != nil {
		return err
	}

	encrypted, err := v.cryptor.EncryptAll([]byte(target))
	if err != nil {
		return err
	}
	return v.hostFS.WriteFile(contentPath, encrypted)
}

// ReadSymlink returns the cleartext target of the symlink at cleartextPath.
func (v *Vault) ReadSymlink(cleartextPath string) (string, error) {
	loc, err := v.mapper.Resolve(cleartextPath)
	if err != nil {
		return "", err
	}
	if loc.Kind == pathmap.Missing {
		return "", cerrors.New(cerrors.NotFound, "vaultfs.ReadSymlink", cleartextPath)
	}
	if loc.Kind != pathmap.Symlink {
		return "", cerrors.New(cerrors.NotADirectory, "vaultfs.ReadSymlink", cleartextPath)
	}

	raw, err := v.hostFS.ReadFile(loc.ContentHostPath)
	if err != nil {
		return "", err
	}
	target, err := v.cryptor.DecryptAll(raw)
	if err != nil {
		return "", cerrors.Wrap(cerrors.AuthenticationFailed, "vaultfs.ReadSymlink", cleartextPath, err)
	}
	return string(target), nil
}
