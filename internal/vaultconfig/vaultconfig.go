// Package vaultconfig reads and writes vault.cryptomator, the signed
// configuration document that pins a vault's format version, cipher combo
// and name-shortening threshold. Ported from backend/cryptomator's
// vault.go, which encodes the same fields as a compact JWT signed with the
// master key.
package vaultconfig

import (
	"fmt"

	"github.com/golang-jwt/jwt/v4"

	"github.com/majacQ/cryptofs/internal/cerrors"
	"github.com/majacQ/cryptofs/internal/crypto"
)

// kidHeader is the JWT "kid" header Cryptomator writes and expects,
// identifying which file the signing key came from.
const kidHeader = "masterkeyfile:masterkey.cryptomator"

// SupportedFormat is the only vault.cryptomator "format" value this
// package can read or write. Earlier formats use a different directory
// layout and are out of scope (spec §1 Non-goals: legacy vault formats).
const SupportedFormat = 8

// DefaultShorteningThreshold is the encoded-name-length threshold (the
// encrypted, base64url name plus its .c9r suffix) above which PathMapper
// shortens a name into a ShortenedEntry (spec §3).
const DefaultShorteningThreshold = 220

// Config is the decoded content of vault.cryptomator.
type Config struct {
	Format              int    `json:"format"`
	ShorteningThreshold int    `json:"shorteningThreshold"`
	CipherCombo         string `json:"cipherCombo"`
	JTI                 string `json:"jti"`
}

func defaultConfig() Config {
	return Config{
		Format:              SupportedFormat,
		ShorteningThreshold: DefaultShorteningThreshold,
		CipherCombo:         crypto.ComboSIVGCM,
	}
}

// claims adapts Config to jwt.Claims; vault.cryptomator carries no
// standard registered claims beyond what Config itself holds.
type claims struct {
	Format              int    `json:"format"`
	ShorteningThreshold int    `json:"shorteningThreshold"`
	CipherCombo         string `json:"cipherCombo"`
	JTI                 string `json:"jti"`
}

func (c claims) Valid() error {
	if c.Format != SupportedFormat {
		return fmt.Errorf("unsupported vault format %d, want %d", c.Format, SupportedFormat)
	}
	if c.ShorteningThreshold <= 0 {
		return fmt.Errorf("invalid shorteningThreshold %d", c.ShorteningThreshold)
	}
	switch c.CipherCombo {
	case crypto.ComboSIVGCM, crypto.ComboSIVCTRMAC:
	default:
		return fmt.Errorf("unsupported cipherCombo %q", c.CipherCombo)
	}
	return nil
}

// New builds a fresh vault config for a newly created vault, using jti as
// the vault's unique identifier. The jti is stored in the signed token;
// Unmarshal does not compare it against anything.
func New(jti string) Config {
	c := defaultConfig()
	c.JTI = jti
	return c
}

// Marshal signs cfg as a compact JWS using key's JWTKey, the on-disk
// format of vault.cryptomator.
func Marshal(cfg Config) func(key crypto.MasterKey) (string, error) {
	return func(key crypto.MasterKey) (string, error) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims(cfg))
		token.Header["kid"] = kidHeader
		signed, err := token.SignedString(key.JWTKey())
		if err != nil {
			return "", fmt.Errorf("signing vault config: %w", err)
		}
		return signed, nil
	}
}

// Unmarshal parses and verifies a vault.cryptomator token against key,
// returning a cerrors.VaultKeyInvalid error if the signature does not
// verify (wrong master key) and cerrors.VaultVersionMismatch if the
// signature verifies but the format is unsupported.
func Unmarshal(raw string, key crypto.MasterKey) (Config, error) {
	var c claims
	_, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return key.JWTKey(), nil
	})
	if err != nil {
		if ve, ok := err.(*jwt.ValidationError); ok && ve.Errors&jwt.ValidationErrorSignatureInvalid != 0 {
			return Config{}, cerrors.Wrap(cerrors.VaultKeyInvalid, "vaultconfig.Unmarshal", "", err)
		}
		if ve, ok := err.(*jwt.ValidationError); ok && ve.Errors&jwt.ValidationErrorClaimsInvalid != 0 {
			return Config{}, cerrors.Wrap(cerrors.VaultVersionMismatch, "vaultconfig.Unmarshal", "", err)
		}
		return Config{}, cerrors.Wrap(cerrors.VaultKeyInvalid, "vaultconfig.Unmarshal", "", err)
	}
	return Config(c), nil
}
