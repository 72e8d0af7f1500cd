// Package dirstream lazily enumerates a ciphertext directory back into
// authenticated cleartext entries, dereferencing long-name indirections
// and filtering internal bookkeeping entries. Grounded on spec §4.6 and
// backend/cryptomator.go's List, generalized from rclone's batch-style
// listing into a pull-based stream the way a local directory handle
// would be consumed.
package dirstream

import (
	"path/filepath"
	"strings"

	"github.com/majacQ/cryptofs/internal/cerrors"
	"github.com/majacQ/cryptofs/internal/clog"
	"github.com/majacQ/cryptofs/internal/host"
	"github.com/majacQ/cryptofs/internal/longname"
	"github.com/majacQ/cryptofs/internal/namecodec"
)

// Entry is one decoded directory member.
type Entry struct {
	// CleartextName is the decrypted base name of this entry.
	CleartextName string
	// CleartextPath is CleartextName joined onto the cleartext directory
	// path the Stream was opened against.
	CleartextPath string
}

// Filter decides whether an entry should be surfaced to the caller.
// Returning false skips the entry without an error.
type Filter func(name string) bool

// Stream lazily enumerates one ciphertext directory.
type Stream struct {
	fs        host.FS
	codec     *namecodec.Codec
	longNames *longname.Store

	cleartextDir string
	hostDir      string
	parentDirID  string
	filter       Filter

	hostEntries []host.Info
	pos         int
	closed      bool
}

// Open begins enumerating hostDir, the ciphertext directory corresponding
// to cleartextDir under parentDirID. filter, if non-nil, is applied to
// every decoded cleartext name.
func Open(fs host.FS, codec *namecodec.Codec, longNames *longname.Store, cleartextDir, hostDir, parentDirID string, filter Filter) (*Stream, error) {
	entries, err := fs.ReadDir(hostDir)
	if err != nil {
		return nil, err
	}
	return &Stream{
		fs:           fs,
		codec:        codec,
		longNames:    longNames,
		cleartextDir: cleartextDir,
		hostDir:      hostDir,
		parentDirID:  parentDirID,
		filter:       filter,
		hostEntries:  entries,
	}, nil
}

// Next returns the next surviving entry, or (Entry{}, false, nil) once
// enumeration is exhausted. Host order is whatever ReadDir returned; spec
// §4.6 makes no stability guarantee across calls.
func (s *Stream) Next() (Entry, bool, error) {
	if s.closed {
		return Entry{}, false, cerrors.New(cerrors.Closed, "dirstream.Next", s.hostDir)
	}
	for s.pos < len(s.hostEntries) {
		info := s.hostEntries[s.pos]
		s.pos++

		fullEncName, ok, err := s.fullEncodedName(info)
		if err != nil {
			clog.Infof(s.hostDir, "skipping unclassifiable entry %q: %v", info.Name(), err)
			continue
		}
		if !ok {
			continue
		}

		baseEncName := strings.TrimSuffix(fullEncName, ".c9r")
		cleartext, err := s.codec.Decrypt(baseEncName, s.parentDirID)
		if err != nil {
			clog.Infof(s.hostDir, "skipping entry %q: %v", info.Name(), err)
			continue
		}

		if s.filter != nil && !s.filter(cleartext) {
			continue
		}

		return Entry{
			CleartextName: cleartext,
			CleartextPath: filepath.Join(s.cleartextDir, cleartext),
		}, true, nil
	}
	return Entry{}, false, nil
}

// fullEncodedName recovers the full, pre-shortening encoded name (with its
// .c9r suffix) for a host directory entry, dereferencing .c9s shortened
// entries. ok is false for entries that are not part of the vault's
// namespace at all (wrong suffix, or internal bookkeeping files that are
// never themselves listed as children).
func (s *Stream) fullEncodedName(info host.Info) (string, bool, error) {
	name := info.Name()
	switch {
	case name == "dirid.c9r":
		return "", false, nil
	case strings.HasSuffix(name, ".c9r"):
		return name, true, nil
	case strings.HasSuffix(name, ".c9s"):
		full, err := s.longNames.Resolve(s.hostDir, name)
		if err != nil {
			return "", false, err
		}
		return full, true, nil
	default:
		return "", false, nil
	}
}

// Close releases the stream's host resources. Idempotent.
func (s *Stream) Close() error {
	s.closed = true
	return nil
}
