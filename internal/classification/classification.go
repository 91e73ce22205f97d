// Package classification defines the sensitivity tiers recognized by the
// encryption engine and the static registry that maps each tier to its
// cipher parameters.
package classification

import (
	"fmt"
)

// Classification is a declared sensitivity tier. Tiers are ordered from
// lowest (Public) to highest (TopSecret); higher tiers select stronger
// cipher parameters and a more expensive key derivation.
type Classification string

const (
	Public       Classification = "PUBLIC"
	Internal     Classification = "INTERNAL"
	Confidential Classification = "CONFIDENTIAL"
	Restricted   Classification = "RESTRICTED"
	TopSecret    Classification = "TOP_SECRET"
)

// Algorithm identifiers recorded in every envelope. The identifier stored
// with a ciphertext is authoritative for decryption; the registry only
// validates consistency.
const (
	AlgorithmAES128GCM         = "AES128-GCM"
	AlgorithmAES192GCM         = "AES192-GCM"
	AlgorithmAES256GCM         = "AES256-GCM"
	AlgorithmXChaCha20Poly1305 = "XChaCha20-Poly1305"
)

// All returns the defined tiers in ascending sensitivity order.
func All() []Classification {
	return []Classification{Public, Internal, Confidential, Restricted, TopSecret}
}

// Valid reports whether c is one of the five defined tiers.
func (c Classification) Valid() bool {
	switch c {
	case Public, Internal, Confidential, Restricted, TopSecret:
		return true
	}
	return false
}

// Rank returns the position of c in the tier ordering, with Public at 0.
// Unknown classifications return -1.
func (c Classification) Rank() int {
	for i, tier := range All() {
		if tier == c {
			return i
		}
	}
	return -1
}

// RequiresIntegrityHash reports whether envelopes for this tier carry the
// secondary keyed integrity hash in addition to the AEAD tag.
func (c Classification) RequiresIntegrityHash() bool {
	return c == Restricted || c == TopSecret
}

// Config holds the cipher parameters for one classification tier.
type Config struct {
	Classification Classification
	Algorithm      string
	KeyLength      int // bytes of derived key material
	NonceLength    int // bytes of AEAD nonce
	TagLength      int // bytes of AEAD authentication tag
	KDFCost        int // scrypt N parameter (power of two)
}

// Registry is an immutable tier-to-parameters table. The zero value is not
// usable; construct one with DefaultRegistry or NewRegistry. Lookups are
// safe for unsynchronized concurrent use.
type Registry struct {
	configs map[Classification]Config
}

// DefaultRegistry returns the production parameter table. Algorithm
// assignments for existing tiers must never change within a release line:
// previously stored envelopes record the algorithm they were sealed with,
// and a registry that disagrees makes them fail AlgorithmMismatch.
func DefaultRegistry() Registry {
	reg, err := NewRegistry(
		Config{Classification: Public, Algorithm: AlgorithmAES128GCM, KeyLength: 16, NonceLength: 12, TagLength: 16, KDFCost: 1 << 13},
		Config{Classification: Internal, Algorithm: AlgorithmAES192GCM, KeyLength: 24, NonceLength: 12, TagLength: 16, KDFCost: 1 << 14},
		Config{Classification: Confidential, Algorithm: AlgorithmAES256GCM, KeyLength: 32, NonceLength: 12, TagLength: 16, KDFCost: 1 << 15},
		Config{Classification: Restricted, Algorithm: AlgorithmAES256GCM, KeyLength: 32, NonceLength: 12, TagLength: 16, KDFCost: 1 << 16},
		Config{Classification: TopSecret, Algorithm: AlgorithmXChaCha20Poly1305, KeyLength: 32, NonceLength: 24, TagLength: 16, KDFCost: 1 << 17},
	)
	if err != nil {
		// The default table is defined at compile time; a failure here is a
		// programming error, not a runtime condition.
		panic(err)
	}
	return reg
}

// NewRegistry builds a registry from explicit per-tier configs. Every tier
// must appear exactly once and every config must be internally consistent.
func NewRegistry(configs ...Config) (Registry, error) {
	table := make(map[Classification]Config, len(configs))
	for _, cfg := range configs {
		if !cfg.Classification.Valid() {
			return Registry{}, fmt.Errorf("%w: %q", ErrUnknownClassification, cfg.Classification)
		}
		if _, dup := table[cfg.Classification]; dup {
			return Registry{}, fmt.Errorf("duplicate config for classification %s", cfg.Classification)
		}
		if err := validateConfig(cfg); err != nil {
			return Registry{}, fmt.Errorf("invalid config for %s: %w", cfg.Classification, err)
		}
		table[cfg.Classification] = cfg
	}
	for _, tier := range All() {
		if _, ok := table[tier]; !ok {
			return Registry{}, fmt.Errorf("missing config for classification %s", tier)
		}
	}
	return Registry{configs: table}, nil
}

func validateConfig(cfg Config) error {
	switch cfg.Algorithm {
	case AlgorithmAES128GCM, AlgorithmAES192GCM, AlgorithmAES256GCM, AlgorithmXChaCha20Poly1305:
	default:
		return fmt.Errorf("unsupported algorithm %q", cfg.Algorithm)
	}
	if cfg.KeyLength != 16 && cfg.KeyLength != 24 && cfg.KeyLength != 32 {
		return fmt.Errorf("invalid key length %d", cfg.KeyLength)
	}
	if cfg.NonceLength != 12 && cfg.NonceLength != 24 {
		return fmt.Errorf("invalid nonce length %d", cfg.NonceLength)
	}
	if cfg.TagLength != 16 {
		return fmt.Errorf("invalid tag length %d", cfg.TagLength)
	}
	if cfg.KDFCost < 2 || cfg.KDFCost&(cfg.KDFCost-1) != 0 {
		return fmt.Errorf("kdf cost must be a power of two > 1, got %d", cfg.KDFCost)
	}
	return nil
}

// ConfigFor returns the cipher parameters for the given tier.
func (r Registry) ConfigFor(c Classification) (Config, error) {
	cfg, ok := r.configs[c]
	if !ok {
		return Config{}, fmt.Errorf("%w: %q", ErrUnknownClassification, c)
	}
	return cfg, nil
}
