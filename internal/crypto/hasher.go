package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// comparisonSaltSize is the salt length for comparison hashes. Comparison
// salts only need to defeat precomputation, not feed a KDF, so they are
// shorter than encryption salts.
const comparisonSaltSize = 16

// HashForComparison produces a salted keyed hash of a value for exact-match
// lookup without ever storing or reversing the value. A random salt is
// generated when salt is nil. The output format is "<hash-hex>:<salt-hex>".
func (e *Engine) HashForComparison(value string, salt []byte) (string, error) {
	if value == "" {
		return "", fmt.Errorf("%w: value must be a non-empty string", ErrInvalidInput)
	}
	if salt == nil {
		var err error
		if salt, err = generateNonce(comparisonSaltSize); err != nil {
			return "", err
		}
	}
	masterKey, err := e.keys.Key()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMissingMasterKey, err)
	}
	return comparisonHash(masterKey, value, salt) + ":" + hex.EncodeToString(salt), nil
}

// VerifyHash recomputes the hash for value using the salt embedded in
// stored and compares in constant time. Malformed stored values verify as
// false rather than erroring, matching the lookup use case.
func (e *Engine) VerifyHash(value, stored string) bool {
	if value == "" {
		return false
	}
	hashHex, saltHex, ok := strings.Cut(stored, ":")
	if !ok {
		return false
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return false
	}
	masterKey, err := e.keys.Key()
	if err != nil {
		return false
	}
	expected := comparisonHash(masterKey, value, salt)
	return hmac.Equal([]byte(expected), []byte(hashHex))
}

func comparisonHash(masterKey []byte, value string, salt []byte) string {
	mac := hmac.New(sha256.New, masterKey)
	mac.Write([]byte(value))
	mac.Write(salt)
	return hex.EncodeToString(mac.Sum(nil))
}
