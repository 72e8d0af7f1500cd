// Package vaulturi parses the cryptomator:// vault URI scheme spec §6
// defines for public entry-point plumbing: identifying which vault to
// open and which cleartext path inside it to start from.
package vaulturi

import (
	"fmt"
	"net/url"
)

// Scheme is the required URI scheme.
const Scheme = "cryptomator"

// Parsed is a successfully parsed vault URI.
type Parsed struct {
	// VaultHostURI is the URI's authority, identifying the vault's host
	// directory (interpretation is up to the caller — it may
	// be a bare path or a nested URI of its own).
	VaultHostURI string
	// PathInsideVault is the cleartext path inside the vault, always
	// slash-rooted.
	PathInsideVault string
}

// Parse parses raw as a cryptomator:// URI. The scheme must be exactly
// "cryptomator", an authority is required, a path is required, and query
// strings or fragments are rejected.
func Parse(raw string) (Parsed, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Parsed{}, fmt.Errorf("invalid vault URI: %w", err)
	}
	if u.Scheme != Scheme {
		return Parsed{}, fmt.Errorf("unsupported scheme %q, want %q", u.Scheme, Scheme)
	}
	if u.Host == "" {
		return Parsed{}, fmt.Errorf("vault URI missing authority")
	}
	if u.Path == "" {
		return Parsed{}, fmt.Errorf("vault URI missing path")
	}
	if u.RawQuery != "" {
		return Parsed{}, fmt.Errorf("vault URI must not have a query string")
	}
	if u.Fragment != "" {
		return Parsed{}, fmt.Errorf("vault URI must not have a fragment")
	}
	return Parsed{VaultHostURI: u.Host, PathInsideVault: u.Path}, nil
}
