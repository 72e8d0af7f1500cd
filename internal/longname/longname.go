// Package longname persists and resolves filenames whose encoded form
// would exceed the host filename limit, as `<hash>.c9s/name.c9s` shortened
// entries. Grounded on spec §4.2 and backend/cryptomator's leaf-path
// handling, which hashes an oversized encoded name down to a fixed-width
// host directory name.
package longname

import (
	"path/filepath"

	"github.com/majacQ/cryptofs/internal/cerrors"
	"github.com/majacQ/cryptofs/internal/crypto"
	"github.com/majacQ/cryptofs/internal/host"
)

// NameFile is the filename inside a shortened entry's subdirectory that
// stores the original, full-length encoded name.
const NameFile = "name.c9s"

// Store installs and resolves shortened entries inside ciphertext parent
// directories.
type Store struct {
	fs host.FS
}

// New builds a Store over fs.
func New(fs host.FS) *Store { return &Store{fs: fs} }

// HostName returns the host-visible directory name a shortened entry for
// fullEncName would use: sha1(fullEncName) base64url-encoded, plus the
// .c9s suffix.
func HostName(fullEncName string) string {
	return crypto.ShortNameHash(fullEncName) + ".c9s"
}

// Install creates (or, if it already matches, reuses) the shortened entry
// for fullEncName inside ciphertext parent directory dirHostPath, and
// returns the host-visible subdirectory name. Idempotent: calling Install
// twice with the same fullEncName returns the same name both times,
// without error, as long as the on-disk name.c9s still matches.
func (s *Store) Install(dirHostPath, fullEncName string) (string, error) {
	shortName := HostName(fullEncName)
	shortPath := filepath.Join(dirHostPath, shortName)
	namePath := filepath.Join(shortPath, NameFile)

	if info, err := s.fs.Stat(shortPath); err == nil {
		if !info.IsDir() {
			return "", cerrors.New(cerrors.Corrupted, "longname.Install", shortPath)
		}
		existing, err := s.fs.ReadFile(namePath)
		if err != nil {
			return "", cerrors.Wrap(cerrors.Corrupted, "longname.Install", namePath, err)
		}
		if string(existing) != fullEncName {
			return "", cerrors.New(cerrors.Corrupted, "longname.Install", namePath)
		}
		return shortName, nil
	} else if cerrors.GetKind(err) != cerrors.NotFound {
		return "", err
	}

	if err := s.fs.Mkdir(shortPath); err != nil {
		return "", err
	}
	if err := s.fs.WriteFile(namePath, []byte(fullEncName)); err != nil {
		return "", err
	}
	return shortName, nil
}

// Resolve reads back the full encoded name stored inside a shortened
// entry's subdirectory.
func (s *Store) Resolve(dirHostPath, shortName string) (string, error) {
	namePath := filepath.Join(dirHostPath, shortName, NameFile)
	data, err := s.fs.ReadFile(namePath)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ShouldShorten reports whether an encoded name of the given length (with
// its .c9r/.c9s suffix already accounted for) must be shortened under
// threshold.
func ShouldShorten(encodedNameWithSuffixLen, threshold int) bool {
	return encodedNameWithSuffixLen > threshold
}
