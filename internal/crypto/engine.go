// Package crypto implements the classification-tiered field encryption
// engine: per-operation key derivation, AEAD encryption, the tier-gated
// integrity envelope, the envelope codec, the recursive object walker, and
// the one-way comparison hasher.
//
// The engine is stateless per call. Salts, nonces, and derived keys are
// generated and discarded within a single invocation; the only long-lived
// resource is the master key provider, which is read-only after first load.
// Every call may run with unlimited parallelism.
package crypto

import (
	"fmt"
	"time"

	"github.com/kenneth/fieldcipher/internal/classification"
	"github.com/kenneth/fieldcipher/internal/masterkey"
)

const defaultMaxDepth = 32

// Engine encrypts and decrypts individual values and whole objects
// according to their classification tier.
type Engine struct {
	keys        masterkey.Provider
	registry    classification.Registry
	maxDepth    int
	kdfObserver func(c classification.Classification, d time.Duration)
}

// DecryptionResult is the typed outcome of a decryption. Failures carry an
// ErrorKind and never partial plaintext.
type DecryptionResult struct {
	Success        bool
	Plaintext      string
	Classification classification.Classification
	CreatedAtMS    int64
	SchemaVersion  int
	ErrorKind      ErrorKind
}

// NewEngine creates an engine using the production parameter registry.
func NewEngine(keys masterkey.Provider) (*Engine, error) {
	return NewEngineWithRegistry(keys, classification.DefaultRegistry())
}

// NewEngineWithRegistry creates an engine with an explicit registry. Tests
// inject a reduced-cost registry here; production callers should not.
func NewEngineWithRegistry(keys masterkey.Provider, registry classification.Registry) (*Engine, error) {
	if keys == nil {
		return nil, fmt.Errorf("%w: key provider is required", ErrInvalidInput)
	}
	return &Engine{
		keys:     keys,
		registry: registry,
		maxDepth: defaultMaxDepth,
	}, nil
}

// SetKDFObserver registers a callback invoked with the duration of every key
// derivation. Used to feed the KDF latency histogram.
func (e *Engine) SetKDFObserver(fn func(c classification.Classification, d time.Duration)) {
	e.kdfObserver = fn
}

// deriveKeyObserved wraps deriveKey with the registered duration observer.
func (e *Engine) deriveKeyObserved(masterKey, salt []byte, cfg classification.Config) ([]byte, error) {
	start := time.Now()
	key, err := deriveKey(masterKey, salt, cfg)
	if err == nil && e.kdfObserver != nil {
		e.kdfObserver(cfg.Classification, time.Since(start))
	}
	return key, err
}

// SetMaxDepth overrides the maximum object nesting depth. Zero or negative
// values keep the current depth.
func (e *Engine) SetMaxDepth(depth int) {
	if depth > 0 {
		e.maxDepth = depth
	}
}

// Registry returns the parameter registry the engine was built with.
func (e *Engine) Registry() classification.Registry {
	return e.registry
}

// Encrypt encrypts a non-empty value under the given classification and
// returns the populated envelope. Each call uses a fresh salt and nonce, so
// encrypting the same value twice always yields structurally different
// envelopes.
func (e *Engine) Encrypt(value string, c classification.Classification) (*Envelope, error) {
	if value == "" {
		return nil, fmt.Errorf("%w: value must be a non-empty string", ErrInvalidInput)
	}

	cfg, err := e.registry.ConfigFor(c)
	if err != nil {
		return nil, err
	}

	masterKey, err := e.keys.Key()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingMasterKey, err)
	}

	salt, err := generateSalt()
	if err != nil {
		return nil, err
	}
	nonce, err := generateNonce(cfg.NonceLength)
	if err != nil {
		return nil, err
	}

	key, err := e.deriveKeyObserved(masterKey, salt, cfg)
	if err != nil {
		return nil, err
	}
	defer zeroBytes(key)

	aead, err := createAEAD(cfg.Algorithm, key)
	if err != nil {
		return nil, err
	}

	// Seal appends the tag to the ciphertext; the envelope stores them as
	// separate fields, so split at the configured tag boundary.
	sealed := aead.Seal(nil, nonce, []byte(value), nil)
	if len(sealed) < cfg.TagLength {
		return nil, fmt.Errorf("sealed output shorter than tag length")
	}
	ciphertext := sealed[:len(sealed)-cfg.TagLength]
	tag := sealed[len(sealed)-cfg.TagLength:]

	env := &Envelope{
		Ciphertext:     hexEncode(ciphertext),
		Nonce:          hexEncode(nonce),
		Tag:            hexEncode(tag),
		Salt:           hexEncode(salt),
		Algorithm:      cfg.Algorithm,
		Classification: c,
		CreatedAtMS:    time.Now().UnixMilli(),
		SchemaVersion:  SchemaVersion,
	}

	if c.RequiresIntegrityHash() {
		env.IntegrityHash = computeIntegrityHash(env, key)
	}

	return env, nil
}

// Decrypt reverses Encrypt. It never returns partial plaintext: any failure
// yields Success=false with the matching ErrorKind, and the underlying
// cipher error is never surfaced.
func (e *Engine) Decrypt(env *Envelope) DecryptionResult {
	if env == nil {
		return failure(ErrorKindMalformedEnvelope)
	}
	if err := env.validate(); err != nil {
		return failure(KindOf(err))
	}

	cfg, err := e.registry.ConfigFor(env.Classification)
	if err != nil {
		return failure(ErrorKindUnknownClassification)
	}

	// The stored algorithm id is authoritative for the ciphertext, but it
	// must agree with the registry for the claimed tier; a disagreement
	// means the record was replayed under a different classification.
	if env.Algorithm != cfg.Algorithm {
		return failure(ErrorKindAlgorithmMismatch)
	}

	// The invariant runs both ways: the two highest tiers always carry the
	// hash, the lower tiers never do.
	if env.Classification.RequiresIntegrityHash() != (env.IntegrityHash != "") {
		return failure(ErrorKindMalformedEnvelope)
	}

	ciphertext, nonce, tag, salt, err := env.decodeBinary()
	if err != nil {
		return failure(ErrorKindMalformedEnvelope)
	}
	if len(nonce) != cfg.NonceLength || len(tag) != cfg.TagLength || len(salt) != saltSize {
		return failure(ErrorKindMalformedEnvelope)
	}

	masterKey, err := e.keys.Key()
	if err != nil {
		return failure(ErrorKindMissingMasterKey)
	}

	key, err := e.deriveKeyObserved(masterKey, salt, cfg)
	if err != nil {
		return failure(KindOf(err))
	}
	defer zeroBytes(key)

	// Integrity check runs before the AEAD open: fail fast on envelope
	// tampering and avoid acting as a decryption oracle.
	if env.IntegrityHash != "" && !verifyIntegrityHash(env, key) {
		return failure(ErrorKindIntegrityFailure)
	}

	aead, err := createAEAD(env.Algorithm, key)
	if err != nil {
		return failure(ErrorKindInternal)
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		// Tag mismatch and corrupted ciphertext are indistinguishable here;
		// the raw cipher error stays internal.
		return failure(ErrorKindAuthenticationFailure)
	}

	return DecryptionResult{
		Success:        true,
		Plaintext:      string(plaintext),
		Classification: env.Classification,
		CreatedAtMS:    env.CreatedAtMS,
		SchemaVersion:  env.SchemaVersion,
	}
}

// EncryptField encrypts a single field value to its opaque storage string.
// Empty input passes through unchanged so absent columns stay absent.
func (e *Engine) EncryptField(value string, c classification.Classification) (string, error) {
	if value == "" {
		return "", nil
	}
	env, err := e.Encrypt(value, c)
	if err != nil {
		return "", err
	}
	return MarshalEnvelope(env)
}

// DecryptField decrypts a stored field value. Strings without the envelope
// prefix are legacy plaintext and are returned unchanged; strings with the
// prefix that fail to parse or decrypt return an error.
func (e *Engine) DecryptField(stored string) (string, error) {
	if stored == "" || !IsEnvelope(stored) {
		return stored, nil
	}
	env, err := UnmarshalEnvelope(stored)
	if err != nil {
		return "", err
	}
	res := e.Decrypt(env)
	if !res.Success {
		return "", res.ErrorKind.Err()
	}
	return res.Plaintext, nil
}

// Err maps an ErrorKind back to its sentinel error for call sites that work
// with errors rather than results.
func (k ErrorKind) Err() error {
	switch k {
	case ErrorKindNone:
		return nil
	case ErrorKindInvalidInput:
		return ErrInvalidInput
	case ErrorKindUnknownClassification:
		return classification.ErrUnknownClassification
	case ErrorKindMalformedEnvelope:
		return ErrMalformedEnvelope
	case ErrorKindAlgorithmMismatch:
		return ErrAlgorithmMismatch
	case ErrorKindIntegrityFailure:
		return ErrIntegrityFailure
	case ErrorKindAuthenticationFailure:
		return ErrAuthenticationFailure
	case ErrorKindMissingMasterKey:
		return ErrMissingMasterKey
	default:
		return fmt.Errorf("decryption failed")
	}
}

func failure(kind ErrorKind) DecryptionResult {
	return DecryptionResult{Success: false, ErrorKind: kind}
}
