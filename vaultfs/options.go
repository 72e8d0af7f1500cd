package vaultfs

import "github.com/majacQ/cryptofs/internal/vaultconfig"

// Options is the set of process-level mount properties spec §6 lists as
// configurable.
type Options struct {
	VaultConfigFilename    string
	MasterkeyFilename      string
	Readonly               bool
	MaxCleartextNameLength int
	Pepper                 []byte
}

func defaultOptions() Options {
	return Options{
		VaultConfigFilename: "vault.cryptomator",
		MasterkeyFilename:   "masterkey.cryptomator",
	}
}

// Option customizes Options.
type Option func(*Options)

// WithVaultConfigFilename overrides the default vault.cryptomator name.
func WithVaultConfigFilename(name string) Option {
	return func(o *Options) { o.VaultConfigFilename = name }
}

// WithMasterkeyFilename overrides the legacy masterkey probe filename
// (spec §6: used only by the legacy directory-structure probe).
func WithMasterkeyFilename(name string) Option {
	return func(o *Options) { o.MasterkeyFilename = name }
}

// Readonly mounts the vault read-only: every mutating entry point fails
// with cerrors.ReadOnly without touching the host (spec §5, §9).
func Readonly() Option {
	return func(o *Options) { o.Readonly = true }
}

// MaxCleartextNameLength enables pre-flight NameTooLong rejection.
func MaxCleartextNameLength(n int) Option {
	return func(o *Options) { o.MaxCleartextNameLength = n }
}

// WithPepper mixes additional secret bytes into every name/dir-id binding.
func WithPepper(pepper []byte) Option {
	return func(o *Options) { o.Pepper = pepper }
}

func apply(opts []Option) Options {
	o := defaultOptions()
	for _, f := range opts {
		f(&o)
	}
	return o
}

// shorteningThreshold reads the active threshold off a loaded vault config.
func shorteningThreshold(cfg vaultconfig.Config) int {
	if cfg.ShorteningThreshold > 0 {
		return cfg.ShorteningThreshold
	}
	return vaultconfig.DefaultShorteningThreshold
}
