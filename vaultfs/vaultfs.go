// Package vaultfs is the Provider façade: it dispatches filesystem
// operations (open, create, move, copy, delete, symlink) to the
// PathMapper, OpenFileRegistry, DirectoryStream and AttributeView
// subsystems. Grounded on backend/cryptomator.go's Fs type, which plays
// the same dispatching role over rclone's fs.Fs interface.
package vaultfs

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/majacQ/cryptofs/internal/attrs"
	"github.com/majacQ/cryptofs/internal/cerrors"
	"github.com/majacQ/cryptofs/internal/clog"
	"github.com/majacQ/cryptofs/internal/crypto"
	"github.com/majacQ/cryptofs/internal/host"
	"github.com/majacQ/cryptofs/internal/longname"
	"github.com/majacQ/cryptofs/internal/namecodec"
	"github.com/majacQ/cryptofs/internal/openfile"
	"github.com/majacQ/cryptofs/internal/pathmap"
	"github.com/majacQ/cryptofs/internal/vaultconfig"
)

// Vault is an open, mounted encrypted filesystem rooted at a host
// directory.
type Vault struct {
	opts Options

	hostFS  host.FS
	root    string
	cryptor *crypto.Cryptor
	config  vaultconfig.Config

	codec     *namecodec.Codec
	longNames *longname.Store
	mapper    *pathmap.Mapper
	registry  *openfile.Registry
	attrs     *attrs.View
}

// Open loads an existing vault at root using key, verifying vault.cryptomator
// against it. A wrong key surfaces as cerrors.VaultKeyInvalid.
func Open(hostFS host.FS, root string, key crypto.MasterKey, opts ...Option) (*Vault, error) {
	o := apply(opts)

	raw, err := hostFS.ReadFile(filepath.Join(root, o.VaultConfigFilename))
	if err != nil {
		return nil, err
	}
	cfg, err := vaultconfig.Unmarshal(string(raw), key)
	if err != nil {
		return nil, err
	}

	cryptor, err := crypto.NewCryptor(key, cfg.CipherCombo)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.VaultKeyInvalid, "vaultfs.Open", root, err)
	}

	return newVault(hostFS, root, cryptor, cfg, o), nil
}

// Create initializes a brand-new vault at root: a fresh master key's
// public material is assumed already persisted by the caller (masterkey
// loading is an external collaborator per spec §1); Create writes
// vault.cryptomator and the root directory skeleton.
func Create(hostFS host.FS, root string, key crypto.MasterKey, opts ...Option) (*Vault, error) {
	o := apply(opts)
	if o.Readonly {
		return nil, cerrors.New(cerrors.ReadOnly, "vaultfs.Create", root)
	}

	if err := hostFS.MkdirAll(root); err != nil {
		return nil, err
	}

	cfg := vaultconfig.New(uuid.NewString())
	cryptor, err := crypto.NewCryptor(key, cfg.CipherCombo)
	if err != nil {
		return nil, err
	}

	signed, err := vaultconfig.Marshal(cfg)(key)
	if err != nil {
		return nil, err
	}
	if err := hostFS.WriteFile(filepath.Join(root, o.VaultConfigFilename), []byte(signed)); err != nil {
		return nil, err
	}

	v := newVault(hostFS, root, cryptor, cfg, o)

	rootHostPath, err := v.mapper.DirHostPath(pathmap.RootDirID)
	if err != nil {
		return nil, err
	}
	if err := hostFS.MkdirAll(rootHostPath); err != nil {
		return nil, err
	}

	return v, nil
}

func newVault(hostFS host.FS, root string, cryptor *crypto.Cryptor, cfg vaultconfig.Config, o Options) *Vault {
	codec := namecodec.New(cryptor, o.Pepper)
	mapper := pathmap.New(hostFS, cryptor, codec, shorteningThreshold(cfg), o.MaxCleartextNameLength, root)
	registry := openfile.NewRegistry(hostFS, o.Readonly)
	return &Vault{
		opts:      o,
		hostFS:    hostFS,
		root:      root,
		cryptor:   cryptor,
		config:    cfg,
		codec:     codec,
		longNames: longname.New(hostFS),
		mapper:    mapper,
		registry:  registry,
		attrs:     attrs.New(hostFS, cryptor, mapper, registry, attrs.Posix),
	}
}

// Mkdir creates a new directory at cleartextPath.
func (v *Vault) Mkdir(cleartextPath string) error {
	if v.opts.Readonly {
		return cerrors.New(cerrors.ReadOnly, "vaultfs.Mkdir", cleartextPath)
	}
	_, err := v.mapper.CreateDir(cleartextPath)
	return err
}

// Rmdir removes an empty directory at cleartextPath. Per spec invariant 2,
// the directory-id file is removed first so any concurrent reader of that
// DirId fails authentically rather than silently.
func (v *Vault) Rmdir(cleartextPath string) error {
	if v.opts.Readonly {
		return cerrors.New(cerrors.ReadOnly, "vaultfs.Rmdir", cleartextPath)
	}
	loc, err := v.mapper.Resolve(cleartextPath)
	if err != nil {
		return err
	}
	if loc.Kind == pathmap.Missing {
		return cerrors.New(cerrors.NotFound, "vaultfs.Rmdir", cleartextPath)
	}
	if loc.Kind != pathmap.Dir {
		return cerrors.New(cerrors.NotADirectory, "vaultfs.Rmdir", cleartextPath)
	}

	entries, err := v.hostFS.ReadDir(loc.DirHostPath)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Name() != "dirid.c9r" {
			return cerrors.New(cerrors.AlreadyExists, "vaultfs.Rmdir", cleartextPath)
		}
	}

	dirMarker := filepath.Join(loc.EntryHostPath, "dir.c9r")
	backup, err := v.hostFS.ReadFile(dirMarker)
	if err != nil {
		return err
	}
	if err := v.hostFS.Remove(dirMarker); err != nil {
		return err
	}

	// The dirid.c9r backup living inside the content folder is removed
	// before the folder itself, and restored alongside the pointer if the
	// rmdir below fails.
	dirIDBackupPath := filepath.Join(loc.DirHostPath, "dirid.c9r")
	dirIDBackup, backupErr := v.hostFS.ReadFile(dirIDBackupPath)
	switch {
	case backupErr == nil:
		if err := v.hostFS.Remove(dirIDBackupPath); err != nil {
			_ = v.hostFS.WriteFile(dirMarker, backup)
			return err
		}
	case cerrors.GetKind(backupErr) != cerrors.NotFound:
		_ = v.hostFS.WriteFile(dirMarker, backup)
		return backupErr
	}

	if err := v.hostFS.RemoveAll(loc.DirHostPath); err != nil {
		// best-effort rollback so a failed rmdir doesn't leave the DirId
		// pointer or its backup silently gone
		if backupErr == nil {
			_ = v.hostFS.WriteFile(dirIDBackupPath, dirIDBackup)
		}
		_ = v.hostFS.WriteFile(dirMarker, backup)
		return err
	}
	if err := v.hostFS.RemoveAll(loc.EntryHostPath); err != nil {
		return err
	}
	v.mapper.Forget(cleartextPath)
	return nil
}

// Delete removes a file or symlink at cleartextPath.
func (v *Vault) Delete(cleartextPath string) error {
	if v.opts.Readonly {
		return cerrors.New(cerrors.ReadOnly, "vaultfs.Delete", cleartextPath)
	}
	loc, err := v.mapper.Resolve(cleartextPath)
	if err != nil {
		return err
	}
	switch loc.Kind {
	case pathmap.Missing:
		return cerrors.New(cerrors.NotFound, "vaultfs.Delete", cleartextPath)
	case pathmap.Dir:
		return cerrors.New(cerrors.IsADirectory, "vaultfs.Delete", cleartextPath)
	}
	if loc.ContentHostPath != loc.EntryHostPath {
		// A symlink or shortened file: EntryHostPath is a wrapping
		// subdirectory, remove it whole.
		return v.hostFS.RemoveAll(loc.EntryHostPath)
	}
	return v.hostFS.Remove(loc.EntryHostPath)
}

// List opens a DirectoryStream over cleartextPath.
func (v *Vault) List(cleartextPath string) (*Stream, error) {
	loc, err := v.mapper.Resolve(cleartextPath)
	if err != nil {
		return nil, err
	}
	if loc.Kind == pathmap.Missing {
		return nil, cerrors.New(cerrors.NotFound, "vaultfs.List", cleartextPath)
	}
	if loc.Kind != pathmap.Dir {
		return nil, cerrors.New(cerrors.NotADirectory, "vaultfs.List", cleartextPath)
	}
	return v.newStream(cleartextPath, loc.DirHostPath, loc.DirID)
}

// Stat returns an attribute Snapshot for cleartextPath.
func (v *Vault) Stat(cleartextPath string) (attrs.Snapshot, error) {
	return v.attrs.Read(cleartextPath)
}

// Close closes every outstanding open handle.
func (v *Vault) Close() error {
	return v.registry.CloseAll()
}

func (v *Vault) String() string { return fmt.Sprintf("vault(%s)", v.root) }

// clog subject convenience so Vault satisfies clog.Subject via %v.
var _ = clog.Debugf
