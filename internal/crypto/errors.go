package crypto

import (
	"errors"

	"github.com/kenneth/fieldcipher/internal/classification"
)

// ErrorKind labels an engine failure for callers, metrics, and audit logs.
// Kinds are stable strings; the raw underlying cipher errors are never
// surfaced to callers.
type ErrorKind string

const (
	ErrorKindNone                  ErrorKind = ""
	ErrorKindInvalidInput          ErrorKind = "invalid_input"
	ErrorKindUnknownClassification ErrorKind = "unknown_classification"
	ErrorKindMalformedEnvelope     ErrorKind = "malformed_envelope"
	ErrorKindAlgorithmMismatch     ErrorKind = "algorithm_mismatch"
	ErrorKindIntegrityFailure      ErrorKind = "integrity_failure"
	ErrorKindAuthenticationFailure ErrorKind = "authentication_failure"
	ErrorKindMissingMasterKey      ErrorKind = "missing_master_key"
	ErrorKindInternal              ErrorKind = "internal"
)

// Sentinel errors for the engine failure taxonomy. Wrap with fmt.Errorf and
// %w so errors.Is keeps working through added context.
var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrMalformedEnvelope     = errors.New("malformed envelope")
	ErrAlgorithmMismatch     = errors.New("algorithm does not match classification")
	ErrIntegrityFailure      = errors.New("envelope integrity check failed")
	ErrAuthenticationFailure = errors.New("authentication failed")
	ErrMissingMasterKey      = errors.New("master key is not available")
	ErrMaxDepthExceeded      = errors.New("maximum object depth exceeded")
)

// KindOf maps an error to its taxonomy kind. Unknown errors map to
// ErrorKindInternal so they are never mistaken for a benign condition.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ErrorKindNone
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrMaxDepthExceeded):
		return ErrorKindInvalidInput
	case errors.Is(err, classification.ErrUnknownClassification):
		return ErrorKindUnknownClassification
	case errors.Is(err, ErrMalformedEnvelope):
		return ErrorKindMalformedEnvelope
	case errors.Is(err, ErrAlgorithmMismatch):
		return ErrorKindAlgorithmMismatch
	case errors.Is(err, ErrIntegrityFailure):
		return ErrorKindIntegrityFailure
	case errors.Is(err, ErrAuthenticationFailure):
		return ErrorKindAuthenticationFailure
	case errors.Is(err, ErrMissingMasterKey):
		return ErrorKindMissingMasterKey
	default:
		return ErrorKindInternal
	}
}
