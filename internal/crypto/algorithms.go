package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/kenneth/fieldcipher/internal/classification"
)

// createAEAD constructs the AEAD cipher for the given algorithm identifier
// and key. The key length is validated against the algorithm rather than
// trusted, so a registry/envelope inconsistency fails loudly.
func createAEAD(algorithm string, key []byte) (cipher.AEAD, error) {
	switch algorithm {
	case classification.AlgorithmAES128GCM:
		return createAESGCM(key, 16)
	case classification.AlgorithmAES192GCM:
		return createAESGCM(key, 24)
	case classification.AlgorithmAES256GCM:
		return createAESGCM(key, 32)
	case classification.AlgorithmXChaCha20Poly1305:
		return createXChaCha20Poly1305(key)
	default:
		return nil, fmt.Errorf("unsupported algorithm: %s", algorithm)
	}
}

func createAESGCM(key []byte, keySize int) (cipher.AEAD, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("invalid key size for AES-%d: expected %d bytes, got %d", keySize*8, keySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

func createXChaCha20Poly1305(key []byte) (cipher.AEAD, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("invalid key size for XChaCha20: expected %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create XChaCha20-Poly1305 cipher: %w", err)
	}
	return aead, nil
}
