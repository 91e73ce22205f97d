package crypto

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kenneth/fieldcipher/internal/classification"
)

const (
	// EnvelopePrefix marks a serialized envelope. Values without the prefix
	// are treated as legacy plaintext; values with it that fail to parse are
	// malformed, never silently passed through. The version in the prefix is
	// bumped together with SchemaVersion.
	EnvelopePrefix = "fenc:v1:"

	// SchemaVersion identifies the envelope layout produced by this engine
	// version.
	SchemaVersion = 1
)

// Envelope is the persisted unit: everything needed to decrypt one value,
// minus the master key. Binary fields are hex encoded so the JSON form
// round-trips byte for byte. An envelope is immutable once created.
type Envelope struct {
	Ciphertext     string                        `json:"ciphertext_hex"`
	Nonce          string                        `json:"nonce_hex"`
	Tag            string                        `json:"tag_hex"`
	Salt           string                        `json:"salt_hex"`
	Algorithm      string                        `json:"algorithm_id"`
	Classification classification.Classification `json:"classification"`
	CreatedAtMS    int64                         `json:"created_at_ms"`
	SchemaVersion  int                           `json:"schema_version"`
	IntegrityHash  string                        `json:"integrity_hash_hex,omitempty"`
}

// MarshalEnvelope serializes an envelope to its single-string storage form:
// the prefix followed by base64 of the JSON encoding.
func MarshalEnvelope(env *Envelope) (string, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("failed to encode envelope: %w", err)
	}
	return EnvelopePrefix + base64.StdEncoding.EncodeToString(data), nil
}

// IsEnvelope reports whether a stored string carries the envelope prefix.
func IsEnvelope(stored string) bool {
	return strings.HasPrefix(stored, EnvelopePrefix)
}

// UnmarshalEnvelope parses a stored string back into an envelope. A missing
// prefix, undecodable payload, or structurally incomplete record returns
// ErrMalformedEnvelope.
func UnmarshalEnvelope(stored string) (*Envelope, error) {
	if !IsEnvelope(stored) {
		return nil, fmt.Errorf("%w: missing envelope prefix", ErrMalformedEnvelope)
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, EnvelopePrefix))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64 payload", ErrMalformedEnvelope)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: invalid envelope encoding", ErrMalformedEnvelope)
	}
	if err := env.validate(); err != nil {
		return nil, err
	}
	return &env, nil
}

// validate checks structural completeness. It deliberately does not consult
// the registry; classification/algorithm consistency is decided at decrypt
// time so the error taxonomy stays precise.
func (env *Envelope) validate() error {
	for _, f := range []struct {
		name  string
		value string
	}{
		{"ciphertext_hex", env.Ciphertext},
		{"nonce_hex", env.Nonce},
		{"tag_hex", env.Tag},
		{"salt_hex", env.Salt},
	} {
		if f.value == "" {
			// An empty ciphertext is still invalid: the engine rejects empty
			// plaintext before sealing, so every real envelope has content.
			return fmt.Errorf("%w: missing %s", ErrMalformedEnvelope, f.name)
		}
		if _, err := hex.DecodeString(f.value); err != nil {
			return fmt.Errorf("%w: %s is not valid hex", ErrMalformedEnvelope, f.name)
		}
	}
	if env.IntegrityHash != "" {
		if _, err := hex.DecodeString(env.IntegrityHash); err != nil {
			return fmt.Errorf("%w: integrity_hash_hex is not valid hex", ErrMalformedEnvelope)
		}
	}
	if env.Algorithm == "" {
		return fmt.Errorf("%w: missing algorithm_id", ErrMalformedEnvelope)
	}
	if env.Classification == "" {
		return fmt.Errorf("%w: missing classification", ErrMalformedEnvelope)
	}
	if env.CreatedAtMS <= 0 {
		return fmt.Errorf("%w: missing created_at_ms", ErrMalformedEnvelope)
	}
	if env.SchemaVersion != SchemaVersion {
		return fmt.Errorf("%w: unsupported schema version %d", ErrMalformedEnvelope, env.SchemaVersion)
	}
	return nil
}

func hexEncode(b []byte) string {
	return hex.EncodeToString(b)
}

func (env *Envelope) decodeBinary() (ciphertext, nonce, tag, salt []byte, err error) {
	if ciphertext, err = hex.DecodeString(env.Ciphertext); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("%w: bad ciphertext encoding", ErrMalformedEnvelope)
	}
	if nonce, err = hex.DecodeString(env.Nonce); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("%w: bad nonce encoding", ErrMalformedEnvelope)
	}
	if tag, err = hex.DecodeString(env.Tag); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("%w: bad tag encoding", ErrMalformedEnvelope)
	}
	if salt, err = hex.DecodeString(env.Salt); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("%w: bad salt encoding", ErrMalformedEnvelope)
	}
	return ciphertext, nonce, tag, salt, nil
}
