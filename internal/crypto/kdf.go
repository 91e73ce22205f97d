package crypto

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/scrypt"

	"github.com/kenneth/fieldcipher/internal/classification"
)

const (
	// saltSize is the per-operation salt length in bytes (256 bits).
	saltSize = 32

	// scrypt r and p are fixed; the per-tier cost lives in the registry as
	// the N parameter. Changing r or p invalidates decryption of stored
	// envelopes, so they are constants rather than configuration.
	scryptR = 8
	scryptP = 1
)

// deriveKey derives exactly cfg.KeyLength bytes of key material from the
// master key and a per-operation salt using scrypt. The derivation is
// deterministic for identical inputs; decryption depends on that.
func deriveKey(masterKey, salt []byte, cfg classification.Config) ([]byte, error) {
	if len(masterKey) == 0 {
		return nil, ErrMissingMasterKey
	}
	if len(salt) != saltSize {
		return nil, fmt.Errorf("%w: salt must be %d bytes, got %d", ErrInvalidInput, saltSize, len(salt))
	}
	key, err := scrypt.Key(masterKey, salt, cfg.KDFCost, scryptR, scryptP, cfg.KeyLength)
	if err != nil {
		return nil, fmt.Errorf("key derivation failed: %w", err)
	}
	return key, nil
}

// generateSalt returns a fresh cryptographically random salt.
func generateSalt() ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// generateNonce returns a fresh random nonce of the given length.
func generateNonce(length int) ([]byte, error) {
	nonce := make([]byte, length)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return nonce, nil
}

// zeroBytes overwrites a byte slice with zeros for secure memory cleanup.
func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
