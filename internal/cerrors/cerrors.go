// Package cerrors defines the error kinds a vault operation can fail with.
//
// The kind set mirrors spec §7: each kind is a stable identity callers can
// test for with errors.Is, independent of the human-readable message, the
// way rclone's backends use sentinel fs.Error* values and gobeaver/filekit's
// FileError uses a stable ErrorCode alongside a free-form message.
package cerrors

import (
	"errors"
	"fmt"
)

// Kind identifies the category of failure, independent of its phrasing.
type Kind string

// Error kinds, per spec §7.
const (
	NotFound      Kind = "not_found"
	AlreadyExists Kind = "already_exists"
	NotADirectory Kind = "not_a_directory"
	IsADirectory  Kind = "is_a_directory"
	NameTooLong   Kind = "name_too_long"
	// InvalidName surfaces when a cleartext name could never have been
	// produced by this codec to begin with (empty, or containing a path
	// separator), as distinct from NameTooLong's length-only rejection.
	InvalidName          Kind = "invalid_name"
	AuthenticationFailed Kind = "authentication_failed"
	VaultKeyInvalid      Kind = "vault_key_invalid"
	VaultVersionMismatch Kind = "vault_version_mismatch"
	ReadOnly             Kind = "read_only"
	Closed               Kind = "closed"
	Corrupted            Kind = "corrupted"
	IO                   Kind = "io"
	// Overlap surfaces when a lock request on a channel conflicts with a
	// lock already held on an overlapping (post chunk-translation) byte
	// range of the same OpenFile.
	Overlap Kind = "overlap"
)

// Error is the concrete error type returned by every exported operation in
// this module. Op and Path are best-effort context, not part of the kind's
// identity.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	var b []byte
	if e.Op != "" {
		b = append(b, e.Op...)
		b = append(b, ": "...)
	}
	if e.Path != "" {
		b = append(b, e.Path...)
		b = append(b, ": "...)
	}
	b = append(b, string(e.Kind)...)
	if e.Err != nil {
		b = append(b, ": "...)
		b = append(b, e.Err.Error()...)
	}
	return string(b)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target has the same Kind, so callers can write
// errors.Is(err, cerrors.New(cerrors.NotFound, "", "")) or, more simply,
// use the Is* helpers below.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// New constructs an *Error of the given kind.
func New(kind Kind, op, path string) *Error {
	return &Error{Kind: kind, Op: op, Path: path}
}

// Wrap constructs an *Error of the given kind around a causing error.
func Wrap(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// Wrapf is Wrap with a formatted cause.
func Wrapf(kind Kind, op, path, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: fmt.Errorf(format, args...)}
}

// Is reports whether err's Kind equals kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// GetKind returns err's Kind, or "" if err is not (or does not wrap) an *Error.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
