// Package vaultdiag implements the directory-structure probe spec §6
// assigns to health-check diagnostics: a cheap, read-only classification
// of whether a host directory looks like a vault, a legacy-format vault,
// or something unrelated, without needing a master key.
package vaultdiag

import (
	"path/filepath"

	"github.com/majacQ/cryptofs/internal/cerrors"
	"github.com/majacQ/cryptofs/internal/host"
)

// Status is the result of CheckDirStructure.
type Status int

const (
	// Unrelated means path does not look like a vault at all.
	Unrelated Status = iota
	// MaybeLegacy means a d/ tree and a legacy masterkey file exist but no
	// vault config — possibly a pre-format-8 vault this module cannot open.
	MaybeLegacy
	// Vault means both d/ and the vault config file are present and readable.
	Vault
)

// CheckDirStructure classifies vaultPath per spec §6. masterkeyName is
// used only for the legacy probe; pass "" to skip it.
func CheckDirStructure(fs host.FS, vaultPath, vaultConfigName, masterkeyName string) (Status, error) {
	info, err := fs.Stat(vaultPath)
	if err != nil {
		return Unrelated, err
	}
	if !info.IsDir() {
		return Unrelated, cerrors.New(cerrors.NotADirectory, "vaultdiag.CheckDirStructure", vaultPath)
	}

	dInfo, dErr := fs.Stat(filepath.Join(vaultPath, "d"))
	hasD := dErr == nil && dInfo.IsDir()

	_, cfgErr := fs.Stat(filepath.Join(vaultPath, vaultConfigName))
	hasConfig := cfgErr == nil

	if hasD && hasConfig {
		return Vault, nil
	}

	if hasD && masterkeyName != "" {
		if _, mkErr := fs.Stat(filepath.Join(vaultPath, masterkeyName)); mkErr == nil {
			return MaybeLegacy, nil
		}
	}

	return Unrelated, nil
}
