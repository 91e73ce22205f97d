package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/kenneth/fieldcipher/internal/crypto"
)

// APIError represents a JSON API error response. Messages are generic by
// contract: clients learn that an operation failed, not which cryptographic
// check rejected it. The precise error kind goes to logs and audit only.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("API Error: %s - %s", e.Code, e.Message)
}

// WriteJSON writes the error response in JSON format.
func (e *APIError) WriteJSON(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.HTTPStatus)

	if err := json.NewEncoder(w).Encode(struct {
		Error *APIError `json:"error"`
	}{Error: e}); err != nil {
		http.Error(w, e.Message, e.HTTPStatus)
	}
}

var (
	errBadRequest = &APIError{
		Code:       "InvalidRequest",
		Message:    "The request body is missing or not valid JSON.",
		HTTPStatus: http.StatusBadRequest,
	}
	errBodyTooLarge = &APIError{
		Code:       "RequestTooLarge",
		Message:    "The request body exceeds the configured size limit.",
		HTTPStatus: http.StatusRequestEntityTooLarge,
	}
)

// translateError maps an engine error to a client-facing API error. All
// decryption failures collapse into one opaque response so the API cannot be
// used as an oracle for which check failed.
func translateError(err error) *APIError {
	if err == nil {
		return nil
	}

	// Depth overflow folds into invalid_input in the taxonomy but deserves a
	// distinct client code, so it is checked before the kind switch.
	if errors.Is(err, crypto.ErrMaxDepthExceeded) {
		return &APIError{
			Code:       "ObjectTooDeep",
			Message:    "The object exceeds the maximum nesting depth.",
			HTTPStatus: http.StatusBadRequest,
		}
	}

	switch crypto.KindOf(err) {
	case crypto.ErrorKindInvalidInput:
		return &APIError{
			Code:       "InvalidInput",
			Message:    "The supplied value is not valid for this operation.",
			HTTPStatus: http.StatusBadRequest,
		}
	case crypto.ErrorKindUnknownClassification:
		return &APIError{
			Code:       "UnknownClassification",
			Message:    "The supplied classification is not recognized.",
			HTTPStatus: http.StatusBadRequest,
		}
	case crypto.ErrorKindMalformedEnvelope:
		return &APIError{
			Code:       "MalformedEnvelope",
			Message:    "The stored value is not a valid encrypted envelope.",
			HTTPStatus: http.StatusBadRequest,
		}
	case crypto.ErrorKindAlgorithmMismatch,
		crypto.ErrorKindIntegrityFailure,
		crypto.ErrorKindAuthenticationFailure:
		return &APIError{
			Code:       "DecryptionFailed",
			Message:    "The value could not be decrypted.",
			HTTPStatus: http.StatusUnprocessableEntity,
		}
	case crypto.ErrorKindMissingMasterKey:
		return &APIError{
			Code:       "ServiceUnavailable",
			Message:    "The service is not able to process requests right now.",
			HTTPStatus: http.StatusServiceUnavailable,
		}
	}

	return &APIError{
		Code:       "InternalError",
		Message:    "An internal error occurred.",
		HTTPStatus: http.StatusInternalServerError,
	}
}
