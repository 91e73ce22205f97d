package classification

import (
	"testing"
)

func TestClassificationValid(t *testing.T) {
	tests := []struct {
		name  string
		c     Classification
		valid bool
	}{
		{name: "public", c: Public, valid: true},
		{name: "internal", c: Internal, valid: true},
		{name: "confidential", c: Confidential, valid: true},
		{name: "restricted", c: Restricted, valid: true},
		{name: "top secret", c: TopSecret, valid: true},
		{name: "empty", c: "", valid: false},
		{name: "lowercase", c: "public", valid: false},
		{name: "unknown", c: "SECRET", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.c.Valid(); got != tt.valid {
				t.Errorf("Valid() = %v, want %v", got, tt.valid)
			}
		})
	}
}

func TestClassificationRank(t *testing.T) {
	for i, tier := range All() {
		if got := tier.Rank(); got != i {
			t.Errorf("Rank(%s) = %d, want %d", tier, got, i)
		}
	}
	if got := Classification("BOGUS").Rank(); got != -1 {
		t.Errorf("Rank(BOGUS) = %d, want -1", got)
	}
}

func TestRequiresIntegrityHash(t *testing.T) {
	tests := []struct {
		c    Classification
		want bool
	}{
		{Public, false},
		{Internal, false},
		{Confidential, false},
		{Restricted, true},
		{TopSecret, true},
	}

	for _, tt := range tests {
		if got := tt.c.RequiresIntegrityHash(); got != tt.want {
			t.Errorf("RequiresIntegrityHash(%s) = %v, want %v", tt.c, got, tt.want)
		}
	}
}

func TestDefaultRegistry(t *testing.T) {
	reg := DefaultRegistry()

	tests := []struct {
		c           Classification
		algorithm   string
		keyLength   int
		nonceLength int
		kdfCost     int
	}{
		{Public, AlgorithmAES128GCM, 16, 12, 1 << 13},
		{Internal, AlgorithmAES192GCM, 24, 12, 1 << 14},
		{Confidential, AlgorithmAES256GCM, 32, 12, 1 << 15},
		{Restricted, AlgorithmAES256GCM, 32, 12, 1 << 16},
		{TopSecret, AlgorithmXChaCha20Poly1305, 32, 24, 1 << 17},
	}

	var prevCost int
	for _, tt := range tests {
		cfg, err := reg.ConfigFor(tt.c)
		if err != nil {
			t.Fatalf("ConfigFor(%s) unexpected error: %v", tt.c, err)
		}
		if cfg.Algorithm != tt.algorithm {
			t.Errorf("%s algorithm = %s, want %s", tt.c, cfg.Algorithm, tt.algorithm)
		}
		if cfg.KeyLength != tt.keyLength {
			t.Errorf("%s key length = %d, want %d", tt.c, cfg.KeyLength, tt.keyLength)
		}
		if cfg.NonceLength != tt.nonceLength {
			t.Errorf("%s nonce length = %d, want %d", tt.c, cfg.NonceLength, tt.nonceLength)
		}
		if cfg.KDFCost != tt.kdfCost {
			t.Errorf("%s kdf cost = %d, want %d", tt.c, cfg.KDFCost, tt.kdfCost)
		}
		if cfg.TagLength != 16 {
			t.Errorf("%s tag length = %d, want 16", tt.c, cfg.TagLength)
		}
		// Derivation cost must strictly increase with sensitivity.
		if cfg.KDFCost <= prevCost {
			t.Errorf("%s kdf cost %d does not exceed previous tier cost %d", tt.c, cfg.KDFCost, prevCost)
		}
		prevCost = cfg.KDFCost
	}

	if _, err := reg.ConfigFor("BOGUS"); err == nil {
		t.Error("ConfigFor(BOGUS) expected error, got nil")
	}
}

func TestNewRegistryValidation(t *testing.T) {
	base := func() []Config {
		reg := DefaultRegistry()
		var configs []Config
		for _, tier := range All() {
			cfg, _ := reg.ConfigFor(tier)
			configs = append(configs, cfg)
		}
		return configs
	}

	tests := []struct {
		name   string
		mutate func([]Config) []Config
	}{
		{
			name:   "missing tier",
			mutate: func(c []Config) []Config { return c[1:] },
		},
		{
			name:   "duplicate tier",
			mutate: func(c []Config) []Config { return append(c, c[0]) },
		},
		{
			name: "unknown classification",
			mutate: func(c []Config) []Config {
				c[0].Classification = "BOGUS"
				return c
			},
		},
		{
			name: "bad algorithm",
			mutate: func(c []Config) []Config {
				c[0].Algorithm = "ROT13"
				return c
			},
		},
		{
			name: "bad key length",
			mutate: func(c []Config) []Config {
				c[0].KeyLength = 17
				return c
			},
		},
		{
			name: "non power of two kdf cost",
			mutate: func(c []Config) []Config {
				c[0].KDFCost = 1000
				return c
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRegistry(tt.mutate(base())...); err == nil {
				t.Error("NewRegistry() expected error, got nil")
			}
		})
	}
}
