package vaultfs

import "github.com/majacQ/cryptofs/internal/dirstream"

// Stream is a lazy enumeration of a directory's cleartext entries.
type Stream struct{ s *dirstream.Stream }

func (v *Vault) newStream(cleartextDir, hostDir, dirID string) (*Stream, error) {
	s, err := dirstream.Open(v.hostFS, v.codec, v.longNames, cleartextDir, hostDir, dirID, nil)
	if err != nil {
		return nil, err
	}
	return &Stream{s: s}, nil
}

// Next returns the next entry, or ok=false once exhausted.
func (s *Stream) Next() (dirstream.Entry, bool, error) { return s.s.Next() }

// Close releases the stream's host resources.
func (s *Stream) Close() error { return s.s.Close() }
