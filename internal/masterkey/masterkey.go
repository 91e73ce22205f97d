// Package masterkey loads and holds the process-wide master key.
//
// The key is loaded lazily on first use, cached for the process lifetime,
// and never rotated in-process. It must never appear in logs or envelopes.
package masterkey

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

const (
	// EnvVar is the environment variable carrying the base64-encoded key.
	EnvVar = "FIELDCIPHER_MASTER_KEY"

	// MinKeyBytes is the minimum accepted decoded key length.
	MinKeyBytes = 16
)

// ErrMissing is returned when no master key is configured in a production
// deployment. This is a fatal configuration error, not a per-call condition.
var ErrMissing = errors.New("master key is not configured")

// insecureDevKey substitutes for a real key in non-production environments
// only. It must never protect real user data.
var insecureDevKey = []byte("fieldcipher-insecure-dev-key-0000")

// Provider supplies the master key to the engine. Implementations must be
// safe for unsynchronized concurrent reads.
type Provider interface {
	Key() ([]byte, error)
}

// Static wraps a fixed key, used by tests and by callers that manage key
// material themselves.
type Static struct {
	key []byte
}

// NewStatic returns a Provider for a fixed key.
func NewStatic(key []byte) (*Static, error) {
	if len(key) < MinKeyBytes {
		return nil, fmt.Errorf("master key must be at least %d bytes, got %d", MinKeyBytes, len(key))
	}
	return &Static{key: key}, nil
}

func (s *Static) Key() ([]byte, error) {
	return s.key, nil
}

// Loader resolves the master key from the environment or a key file on
// first use and caches it for the process lifetime.
type Loader struct {
	keyFile    string
	production bool
	logger     *logrus.Logger

	once sync.Once
	key  []byte
	err  error
}

// NewLoader builds a lazy loader. keyFile may be empty; production controls
// whether a missing key is fatal or falls back to the insecure development
// key with a loud warning.
func NewLoader(keyFile string, production bool, logger *logrus.Logger) *Loader {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Loader{keyFile: keyFile, production: production, logger: logger}
}

// Key returns the cached master key, loading it on first call.
func (l *Loader) Key() ([]byte, error) {
	l.once.Do(func() {
		l.key, l.err = l.load()
	})
	return l.key, l.err
}

func (l *Loader) load() ([]byte, error) {
	if v := os.Getenv(EnvVar); v != "" {
		key, err := decodeKey(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvVar, err)
		}
		return key, nil
	}

	if l.keyFile != "" {
		data, err := os.ReadFile(l.keyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read master key file: %w", err)
		}
		key, err := decodeKey(strings.TrimSpace(string(data)))
		if err != nil {
			return nil, fmt.Errorf("invalid master key file %s: %w", l.keyFile, err)
		}
		return key, nil
	}

	if l.production {
		return nil, fmt.Errorf("%w: set %s or configure a key file", ErrMissing, EnvVar)
	}

	l.logger.Warn("SECURITY: no master key configured, using the insecure development key; this must never happen when serving real user data")
	return insecureDevKey, nil
}

// decodeKey accepts standard or raw-url base64 and validates the decoded
// length.
func decodeKey(encoded string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		if key, err = base64.RawURLEncoding.DecodeString(encoded); err != nil {
			return nil, fmt.Errorf("key is not valid base64: %w", err)
		}
	}
	if len(key) < MinKeyBytes {
		return nil, fmt.Errorf("decoded key must be at least %d bytes, got %d", MinKeyBytes, len(key))
	}
	return key, nil
}
