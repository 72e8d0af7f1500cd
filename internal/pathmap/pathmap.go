// Package pathmap resolves cleartext vault paths onto the ciphertext
// directory tree on the host filesystem, and classifies what it finds
// there. Grounded on backend/cryptomator.go's dirIDPath/leafPath/CreateDir
// logic, generalized from rclone's streaming-object model to random-access
// files and split out from the backend-specific fs.Fs it used to live in.
package pathmap

import (
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/majacQ/cryptofs/internal/cerrors"
	"github.com/majacQ/cryptofs/internal/crypto"
	"github.com/majacQ/cryptofs/internal/host"
	"github.com/majacQ/cryptofs/internal/longname"
	"github.com/majacQ/cryptofs/internal/namecodec"
)

// Kind classifies what a resolved cleartext path turned out to be.
type Kind int

const (
	Missing Kind = iota
	File
	Dir
	Symlink
)

const (
	dirMarkerFile     = "dir.c9r"
	dirIDBackupFile   = "dirid.c9r"
	symlinkMarkerFile = "symlink.c9r"
	contentsFile      = "contents.c9r"
	fileSuffix        = ".c9r"
	shortSuffix       = ".c9s"
)

// RootDirID is the directory id of the vault root.
const RootDirID = ""

// Location is the resolved ciphertext location of a cleartext path: the
// host path to its .c9r/.c9s entry, its kind, and — when it is itself a
// directory — the directory id and host directory path a caller can
// descend into.
type Location struct {
	Kind Kind

	// EntryHostPath is the host path of the <encName>.c9r or <hash>.c9s
	// entry representing this cleartext path. Empty for the root.
	EntryHostPath string

	// ParentDirID and ParentHostPath describe the ciphertext directory
	// this entry lives in.
	ParentDirID   string
	ParentHostPath string

	// EncName is the full encoded name (pre-shortening) of this entry.
	EncName string

	// ContentHostPath is where the entry's actual encrypted content lives:
	// EntryHostPath itself for a non-shortened FILE, or
	// EntryHostPath/contents.c9r / EntryHostPath/symlink.c9r for a
	// shortened FILE or a SYMLINK respectively.
	ContentHostPath string

	// DirID and DirHostPath are populated when Kind == Dir: the
	// directory's own id and the d/AA/BBBB... path it resolves to.
	DirID       string
	DirHostPath string
}

// Mapper maps cleartext vault paths to ciphertext host locations.
type Mapper struct {
	fs        host.FS
	cryptor   *crypto.Cryptor
	codec     *namecodec.Codec
	longNames *longname.Store

	vaultRoot              string
	shorteningThreshold    int
	maxCleartextNameLength int // 0 = unlimited

	mu       sync.Mutex
	dirIDFor map[string]string // cleartext dir path -> DirID, memoized
}

// New builds a Mapper rooted at vaultRoot.
func New(fs host.FS, cryptor *crypto.Cryptor, codec *namecodec.Codec, shorteningThreshold, maxCleartextNameLength int, vaultRoot string) *Mapper {
	return &Mapper{
		fs:                     fs,
		cryptor:                cryptor,
		codec:                  codec,
		longNames:              longname.New(fs),
		vaultRoot:              vaultRoot,
		shorteningThreshold:    shorteningThreshold,
		maxCleartextNameLength: maxCleartextNameLength,
		dirIDFor:               map[string]string{"/": RootDirID},
	}
}

// DirHostPath computes the d/<AA>/<BBBB...> host path for a directory id.
func (m *Mapper) DirHostPath(dirID string) (string, error) {
	hash, err := m.cryptor.EncryptDirID(dirID)
	if err != nil {
		return "", err
	}
	hash = strings.ToUpper(base32Normalize(hash))
	return filepath.Join(m.vaultRoot, "d", hash[:2], hash[2:]), nil
}

func base32Normalize(s string) string {
	// EncryptDirID's hash is already base32.StdEncoding output; Cryptomator
	// vaults use unpadded upper-case base32, so strip any '=' padding.
	return strings.TrimRight(s, "=")
}

func clean(cleartextPath string) string {
	p := path.Clean("/" + cleartextPath)
	return p
}

func split(cleartextPath string) (parent string, name string) {
	p := clean(cleartextPath)
	if p == "/" {
		return "/", ""
	}
	return path.Dir(p), path.Base(p)
}

// resolveDirID returns the directory id and host path of the ciphertext
// directory for cleartext directory path dirPath ("/" for the root),
// walking and caching component by component.
func (m *Mapper) resolveDirID(dirPath string) (dirID, hostPath string, err error) {
	dirPath = clean(dirPath)

	m.mu.Lock()
	if id, ok := m.dirIDFor[dirPath]; ok {
		m.mu.Unlock()
		hostPath, err = m.DirHostPath(id)
		return id, hostPath, err
	}
	m.mu.Unlock()

	if dirPath == "/" {
		hostPath, err = m.DirHostPath(RootDirID)
		return RootDirID, hostPath, err
	}

	parentDir, name := split(dirPath)
	parentDirID, parentHostPath, err := m.resolveDirID(parentDir)
	if err != nil {
		return "", "", err
	}

	loc, err := m.locate(parentDirID, parentHostPath, name)
	if err != nil {
		return "", "", err
	}
	if loc.Kind == Missing {
		return "", "", cerrors.New(cerrors.NotFound, "pathmap.resolveDirID", dirPath)
	}
	if loc.Kind != Dir {
		return "", "", cerrors.New(cerrors.NotADirectory, "pathmap.resolveDirID", dirPath)
	}

	m.mu.Lock()
	m.dirIDFor[dirPath] = loc.DirID
	m.mu.Unlock()
	return loc.DirID, loc.DirHostPath, nil
}

// Resolve classifies cleartextPath and returns its ciphertext Location.
func (m *Mapper) Resolve(cleartextPath string) (Location, error) {
	p := clean(cleartextPath)
	if p == "/" {
		hostPath, err := m.DirHostPath(RootDirID)
		if err != nil {
			return Location{}, err
		}
		return Location{Kind: Dir, DirID: RootDirID, DirHostPath: hostPath}, nil
	}

	parentDir, name := split(p)
	parentDirID, parentHostPath, err := m.resolveDirID(parentDir)
	if err != nil {
		return Location{}, err
	}
	return m.locate(parentDirID, parentHostPath, name)
}

// locate resolves a single cleartext component name inside the ciphertext
// directory identified by (parentDirID, parentHostPath).
func (m *Mapper) locate(parentDirID, parentHostPath, name string) (Location, error) {
	encName, err := m.codec.Encrypt(name, parentDirID)
	if err != nil {
		return Location{}, err
	}

	base := Location{ParentDirID: parentDirID, ParentHostPath: parentHostPath, EncName: encName}

	// Try the un-shortened form first.
	plainPath := filepath.Join(parentHostPath, encName+fileSuffix)
	if info, err := m.fs.Stat(plainPath); err == nil {
		return m.classifyEntry(base, plainPath, info)
	} else if cerrors.GetKind(err) != cerrors.NotFound {
		return Location{}, err
	}

	// Fall back to the shortened form.
	shortName := longname.HostName(encName + fileSuffix)
	shortPath := filepath.Join(parentHostPath, shortName)
	if info, err := m.fs.Stat(shortPath); err == nil {
		return m.classifyEntry(base, shortPath, info)
	} else if cerrors.GetKind(err) != cerrors.NotFound {
		return Location{}, err
	}

	base.Kind = Missing
	return base, nil
}

// classifyEntry inspects the on-disk entry at entryHostPath (already known
// to exist) and determines whether it is a FILE, DIRECTORY or SYMLINK.
func (m *Mapper) classifyEntry(base Location, entryHostPath string, info host.Info) (Location, error) {
	base.EntryHostPath = entryHostPath

	if !info.IsDir() {
		base.Kind = File
		base.ContentHostPath = entryHostPath
		return base, nil
	}

	symlinkPath := filepath.Join(entryHostPath, symlinkMarkerFile)
	dirMarkerPath := filepath.Join(entryHostPath, dirMarkerFile)
	contentsPath := filepath.Join(entryHostPath, contentsFile)

	_, symlinkErr := m.fs.Stat(symlinkPath)
	_, dirErr := m.fs.Stat(dirMarkerPath)
	_, contentsErr := m.fs.Stat(contentsPath)

	hasSymlink := symlinkErr == nil
	hasDir := dirErr == nil
	hasContents := contentsErr == nil

	switch {
	case hasSymlink:
		// Symlink takes precedence over a coexisting dir.c9r per spec
		// §4.3's tie-break; normal operation never writes both, so this
		// only fires on a corrupted entry.
		base.Kind = Symlink
		base.ContentHostPath = symlinkPath
		return base, nil
	case hasDir:
		raw, err := m.fs.ReadFile(dirMarkerPath)
		if err != nil {
			return Location{}, err
		}
		dirID, err := m.cryptor.DecryptAll(raw)
		if err != nil {
			return Location{}, cerrors.Wrap(cerrors.AuthenticationFailed, "pathmap.classifyEntry", dirMarkerPath, err)
		}
		base.Kind = Dir
		base.DirID = string(dirID)
		hostPath, err := m.DirHostPath(base.DirID)
		if err != nil {
			return Location{}, err
		}
		base.DirHostPath = hostPath
		return base, nil
	case hasContents:
		base.Kind = File
		base.ContentHostPath = contentsPath
		return base, nil
	default:
		return Location{}, cerrors.New(cerrors.Corrupted, "pathmap.classifyEntry", entryHostPath)
	}
}

// AssertCleartextNameLengthOk enforces the spec §6 maxCleartextNameLength
// option before any disk I/O happens, so a rejected create never leaves a
// partial ciphertext entry behind.
func (m *Mapper) AssertCleartextNameLengthOk(name string) error {
	if m.maxCleartextNameLength > 0 && len(name) > m.maxCleartextNameLength {
		return cerrors.New(cerrors.NameTooLong, "pathmap.AssertCleartextNameLengthOk", name)
	}
	return nil
}

// EntryHostPath computes the host path an entry for name under parentDirID
// would use, shortening it if required. It creates nothing unless the
// encoded name must be shortened; then it installs the shortened entry's
// subdirectory and its name.c9s indirection (spec §4.2 install is part of
// writing a new entry, not merely naming one). Suitable for entries that are always a
// subdirectory regardless of shortening, i.e. directories.
func (m *Mapper) EntryHostPath(parentDirID, parentHostPath, name string) (hostPath string, encName string, err error) {
	if err := m.AssertCleartextNameLengthOk(name); err != nil {
		return "", "", err
	}
	encName, err = m.codec.Encrypt(name, parentDirID)
	if err != nil {
		return "", "", err
	}
	full := encName + fileSuffix
	if !longname.ShouldShorten(len(full), m.shorteningThreshold) {
		return filepath.Join(parentHostPath, full), encName, nil
	}
	shortName, err := m.longNames.Install(parentHostPath, full)
	if err != nil {
		return "", "", err
	}
	return filepath.Join(parentHostPath, shortName), encName, nil
}

// NewLeafPaths computes the entry and content host paths for a brand-new
// FILE or SYMLINK entry for name under parentDirID, shortening if
// required. A plain (non-shortened) FILE has no wrapping subdirectory —
// entryHostPath and contentHostPath are the same bare .c9r file. Every
// other case (shortened FILE, or a SYMLINK of any length, which always
// uses the directory form) puts contentHostPath, a file named markerFile,
// inside the entryHostPath subdirectory. Only a shortened entry's
// subdirectory is created here (by the long-name install).
func (m *Mapper) NewLeafPaths(parentDirID, parentHostPath, name string, alwaysSubdir bool, markerFile string) (entryHostPath, contentHostPath, encName string, err error) {
	if err := m.AssertCleartextNameLengthOk(name); err != nil {
		return "", "", "", err
	}
	encName, err = m.codec.Encrypt(name, parentDirID)
	if err != nil {
		return "", "", "", err
	}
	full := encName + fileSuffix
	shortened := longname.ShouldShorten(len(full), m.shorteningThreshold)

	switch {
	case !shortened && !alwaysSubdir:
		plain := filepath.Join(parentHostPath, full)
		return plain, plain, encName, nil
	case !shortened && alwaysSubdir:
		entryHostPath = filepath.Join(parentHostPath, full)
	default:
		shortName, ierr := m.longNames.Install(parentHostPath, full)
		if ierr != nil {
			return "", "", "", ierr
		}
		entryHostPath = filepath.Join(parentHostPath, shortName)
	}
	return entryHostPath, filepath.Join(entryHostPath, markerFile), encName, nil
}

// CreateDir creates a brand-new ciphertext directory for cleartext path p,
// returning its freshly generated directory id. The parent entry
// (<encName>.c9r/) is created first with a dir.c9r pointer to the new
// DirID, then the actual d/AA/BBBB... directory is created and seeded with
// its own dirid.c9r backup — mirroring backend/cryptomator.go's CreateDir
// ordering.
func (m *Mapper) CreateDir(cleartextPath string) (dirID string, err error) {
	p := clean(cleartextPath)
	parentDir, name := split(p)
	parentDirID, parentHostPath, err := m.resolveDirID(parentDir)
	if err != nil {
		return "", err
	}

	if loc, err := m.locate(parentDirID, parentHostPath, name); err != nil {
		return "", err
	} else if loc.Kind != Missing {
		return "", cerrors.New(cerrors.AlreadyExists, "pathmap.CreateDir", p)
	}
	entryHostPath, _, err := m.EntryHostPath(parentDirID, parentHostPath, name)
	if err != nil {
		return "", err
	}

	dirID = uuid.NewString()
	marker, err := m.cryptor.EncryptAll([]byte(dirID))
	if err != nil {
		return "", err
	}

	if err := m.fs.MkdirAll(entryHostPath); err != nil {
		return "", err
	}
	if err := m.fs.WriteFile(filepath.Join(entryHostPath, dirMarkerFile), marker); err != nil {
		return "", err
	}

	dirHostPath, err := m.DirHostPath(dirID)
	if err != nil {
		return "", err
	}
	if err := m.fs.MkdirAll(dirHostPath); err != nil {
		return "", err
	}

	// dirid.c9r is a backup copy of the directory id, stored inside the
	// directory's own content folder rather than its parent pointer, so the
	// id survives even if the dir.c9r pointer above is lost or corrupted.
	backup, err := m.cryptor.EncryptAll([]byte(dirID))
	if err != nil {
		return "", err
	}
	if err := m.fs.WriteFile(filepath.Join(dirHostPath, dirIDBackupFile), backup); err != nil {
		return "", err
	}

	m.mu.Lock()
	m.dirIDFor[p] = dirID
	m.mu.Unlock()
	return dirID, nil
}

// Forget evicts any cached directory id for cleartextPath and everything
// nested under it, so a subsequent resolve re-walks the host (used after
// Rmdir/move invalidate cached mappings).
func (m *Mapper) Forget(cleartextPath string) {
	p := clean(cleartextPath)
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.dirIDFor {
		if k == p || strings.HasPrefix(k, p+"/") {
			delete(m.dirIDFor, k)
		}
	}
}

// ParentOf resolves the parent directory of cleartextPath, returning its
// DirID and host path — the building block Move/Copy need to re-encode a
// name under a (possibly different) destination parent.
func (m *Mapper) ParentOf(cleartextPath string) (dirID, hostPath, name string, err error) {
	parentDir, n := split(clean(cleartextPath))
	dirID, hostPath, err = m.resolveDirID(parentDir)
	return dirID, hostPath, n, err
}
