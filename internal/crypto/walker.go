package crypto

import (
	"fmt"

	"github.com/kenneth/fieldcipher/internal/classification"
)

// FieldError records a single field that failed during best-effort object
// decryption. Path is a dotted/bracketed locator like "user.cards[2].pan".
type FieldError struct {
	Path string    `json:"path"`
	Kind ErrorKind `json:"kind"`
}

// EncryptObject walks an arbitrary nested structure in the JSON value model
// (map[string]any, []any, string, float64, bool, nil) and encrypts every
// non-empty string leaf. The classification for a leaf is classMap[key] of
// the nearest enclosing map key, or def when the key has no entry. Nil and
// non-string scalars pass through unchanged.
//
// Recursion is bounded by a fixed maximum depth; inputs nested deeper than
// that (including cyclic graphs, which the JSON value model can express via
// `any`) fail with ErrMaxDepthExceeded instead of recursing forever.
func (e *Engine) EncryptObject(obj any, classMap map[string]classification.Classification, def classification.Classification) (any, error) {
	if !def.Valid() {
		return nil, fmt.Errorf("%w: %q", classification.ErrUnknownClassification, def)
	}
	return e.encryptValue(obj, "", classMap, def, e.maxDepth)
}

func (e *Engine) encryptValue(v any, key string, classMap map[string]classification.Classification, def classification.Classification, depth int) (any, error) {
	if depth <= 0 {
		return nil, ErrMaxDepthExceeded
	}
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		if val == "" {
			return val, nil
		}
		c := def
		if mapped, ok := classMap[key]; ok {
			c = mapped
		}
		return e.EncryptField(val, c)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			encrypted, err := e.encryptValue(child, k, classMap, def, depth-1)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", k, err)
			}
			out[k] = encrypted
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			// Array elements inherit the classification of the enclosing key.
			encrypted, err := e.encryptValue(child, key, classMap, def, depth-1)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			out[i] = encrypted
		}
		return out, nil
	default:
		// Numbers, booleans, and any other scalar are not encrypted.
		return v, nil
	}
}

// DecryptObject mirrors EncryptObject. String leaves without the envelope
// prefix pass through unchanged (legacy plaintext); leaves that look like
// envelopes but fail to parse or decrypt are replaced with an empty string
// and reported in the returned field errors. A corrupted field never aborts
// decryption of its siblings.
func (e *Engine) DecryptObject(obj any) (any, []FieldError, error) {
	var fieldErrs []FieldError
	out, err := e.decryptValue(obj, "", e.maxDepth, false, &fieldErrs)
	if err != nil {
		return nil, nil, err
	}
	return out, fieldErrs, nil
}

// DecryptObjectStrict behaves like DecryptObject but aborts on the first
// field failure, for callers that need all-or-nothing semantics.
func (e *Engine) DecryptObjectStrict(obj any) (any, error) {
	out, err := e.decryptValue(obj, "", e.maxDepth, true, nil)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) decryptValue(v any, path string, depth int, strict bool, fieldErrs *[]FieldError) (any, error) {
	if depth <= 0 {
		return nil, ErrMaxDepthExceeded
	}
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		if !IsEnvelope(val) {
			return val, nil
		}
		plaintext, err := e.DecryptField(val)
		if err != nil {
			if strict {
				return nil, fmt.Errorf("field %q: %w", path, err)
			}
			*fieldErrs = append(*fieldErrs, FieldError{Path: path, Kind: KindOf(err)})
			return "", nil
		}
		return plaintext, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			decrypted, err := e.decryptValue(child, joinPath(path, k), depth-1, strict, fieldErrs)
			if err != nil {
				return nil, err
			}
			out[k] = decrypted
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			decrypted, err := e.decryptValue(child, fmt.Sprintf("%s[%d]", path, i), depth-1, strict, fieldErrs)
			if err != nil {
				return nil, err
			}
			out[i] = decrypted
		}
		return out, nil
	default:
		return v, nil
	}
}

func joinPath(base, key string) string {
	if base == "" {
		return key
	}
	return base + "." + key
}
