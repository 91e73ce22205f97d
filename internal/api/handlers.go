// Package api exposes the encryption engine over a small JSON HTTP API.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/kenneth/fieldcipher/internal/audit"
	"github.com/kenneth/fieldcipher/internal/classification"
	"github.com/kenneth/fieldcipher/internal/config"
	"github.com/kenneth/fieldcipher/internal/crypto"
	"github.com/kenneth/fieldcipher/internal/metrics"
)

// Handler handles HTTP requests for engine operations.
type Handler struct {
	engine      *crypto.Engine
	logger      *logrus.Logger
	metrics     *metrics.Metrics
	auditLogger audit.Logger
	policies    *config.PolicyMatcher
	config      *config.Config
}

// NewHandler creates a new API handler. The policy matcher and audit logger
// may be nil; the corresponding features are then disabled.
func NewHandler(
	engine *crypto.Engine,
	logger *logrus.Logger,
	m *metrics.Metrics,
	auditLogger audit.Logger,
	policies *config.PolicyMatcher,
	cfg *config.Config,
) *Handler {
	return &Handler{
		engine:      engine,
		logger:      logger,
		metrics:     m,
		auditLogger: auditLogger,
		policies:    policies,
		config:      cfg,
	}
}

// RegisterRoutes registers all API routes.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", h.handleHealth).Methods("GET")

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/field/encrypt", h.handleFieldEncrypt).Methods("POST")
	v1.HandleFunc("/field/decrypt", h.handleFieldDecrypt).Methods("POST")
	v1.HandleFunc("/object/encrypt", h.handleObjectEncrypt).Methods("POST")
	v1.HandleFunc("/object/decrypt", h.handleObjectDecrypt).Methods("POST")
	v1.HandleFunc("/hash", h.handleHash).Methods("POST")
	v1.HandleFunc("/hash/verify", h.handleHashVerify).Methods("POST")
	v1.HandleFunc("/selftest", h.handleSelfTest).Methods("GET")
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type fieldEncryptRequest struct {
	Value          string `json:"value"`
	Classification string `json:"classification"`
}

type fieldEncryptResponse struct {
	Stored string `json:"stored"`
}

func (h *Handler) handleFieldEncrypt(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req fieldEncryptRequest
	if apiErr := h.decodeJSON(w, r, &req); apiErr != nil {
		apiErr.WriteJSON(w)
		return
	}

	c := h.resolveClassification(req.Classification)
	stored, err := h.engine.EncryptField(req.Value, c)
	duration := time.Since(start)

	kind := crypto.KindOf(err)
	h.recordOperation("field_encrypt", c, kind, duration, int64(len(req.Value)))
	if h.auditLogger != nil {
		h.auditLogger.LogEncrypt("", c, "", err == nil, string(kind), duration)
	}
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"operation":      "field_encrypt",
			"classification": c,
			"error_kind":     kind,
		}).Warn("Field encryption failed")
		translateError(err).WriteJSON(w)
		return
	}

	h.writeJSON(w, http.StatusOK, fieldEncryptResponse{Stored: stored})
}

type fieldDecryptRequest struct {
	Stored string `json:"stored"`
}

type fieldDecryptResponse struct {
	Value          string                        `json:"value"`
	Encrypted      bool                          `json:"encrypted"`
	Classification classification.Classification `json:"classification,omitempty"`
	CreatedAtMS    int64                         `json:"created_at_ms,omitempty"`
	SchemaVersion  int                           `json:"schema_version,omitempty"`
}

func (h *Handler) handleFieldDecrypt(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req fieldDecryptRequest
	if apiErr := h.decodeJSON(w, r, &req); apiErr != nil {
		apiErr.WriteJSON(w)
		return
	}

	// Values without the envelope prefix are legacy plaintext and echo back
	// unchanged rather than erroring.
	if !crypto.IsEnvelope(req.Stored) {
		h.writeJSON(w, http.StatusOK, fieldDecryptResponse{Value: req.Stored})
		return
	}

	env, err := crypto.UnmarshalEnvelope(req.Stored)
	if err != nil {
		duration := time.Since(start)
		kind := crypto.KindOf(err)
		h.recordOperation("field_decrypt", "", kind, duration, 0)
		if h.auditLogger != nil {
			h.auditLogger.LogDecrypt("", "", "", false, string(kind), duration)
		}
		h.logger.WithFields(logrus.Fields{
			"operation":  "field_decrypt",
			"error_kind": kind,
		}).Warn("Field decryption failed")
		translateError(err).WriteJSON(w)
		return
	}

	res := h.engine.Decrypt(env)
	duration := time.Since(start)

	h.recordOperation("field_decrypt", env.Classification, res.ErrorKind, duration, int64(len(res.Plaintext)))
	if h.auditLogger != nil {
		h.auditLogger.LogDecrypt("", env.Classification, env.Algorithm, res.Success, string(res.ErrorKind), duration)
	}
	if !res.Success {
		h.logger.WithFields(logrus.Fields{
			"operation":      "field_decrypt",
			"classification": env.Classification,
			"error_kind":     res.ErrorKind,
		}).Warn("Field decryption failed")
		translateError(res.ErrorKind.Err()).WriteJSON(w)
		return
	}

	h.writeJSON(w, http.StatusOK, fieldDecryptResponse{
		Value:          res.Plaintext,
		Encrypted:      true,
		Classification: res.Classification,
		CreatedAtMS:    res.CreatedAtMS,
		SchemaVersion:  res.SchemaVersion,
	})
}

type objectEncryptRequest struct {
	Object                any               `json:"object"`
	ClassificationMap     map[string]string `json:"classification_map"`
	DefaultClassification string            `json:"default_classification"`
}

type objectEncryptResponse struct {
	Object any `json:"object"`
}

func (h *Handler) handleObjectEncrypt(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req objectEncryptRequest
	if apiErr := h.decodeJSON(w, r, &req); apiErr != nil {
		apiErr.WriteJSON(w)
		return
	}

	def := h.resolveClassification(req.DefaultClassification)
	classMap, err := h.buildClassMap(req.ClassificationMap, req.Object)
	if err == nil {
		var out any
		out, err = h.engine.EncryptObject(req.Object, classMap, def)
		if err == nil {
			duration := time.Since(start)
			fields := countStringLeaves(req.Object, 0)
			h.recordOperation("object_encrypt", def, crypto.ErrorKindNone, duration, 0)
			h.logAudit(audit.EventTypeEncrypt, "object_encrypt", def, true, "", duration, fields)
			h.writeJSON(w, http.StatusOK, objectEncryptResponse{Object: out})
			return
		}
	}

	duration := time.Since(start)
	kind := crypto.KindOf(err)
	h.recordOperation("object_encrypt", def, kind, duration, 0)
	h.logAudit(audit.EventTypeEncrypt, "object_encrypt", def, false, string(kind), duration, 0)
	h.logger.WithFields(logrus.Fields{
		"operation":  "object_encrypt",
		"error_kind": kind,
	}).Warn("Object encryption failed")
	translateError(err).WriteJSON(w)
}

type objectDecryptRequest struct {
	Object any  `json:"object"`
	Strict bool `json:"strict"`
}

type objectDecryptResponse struct {
	Object      any                 `json:"object"`
	FieldErrors []crypto.FieldError `json:"field_errors,omitempty"`
}

func (h *Handler) handleObjectDecrypt(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req objectDecryptRequest
	if apiErr := h.decodeJSON(w, r, &req); apiErr != nil {
		apiErr.WriteJSON(w)
		return
	}

	var (
		out       any
		fieldErrs []crypto.FieldError
		err       error
	)
	if req.Strict {
		out, err = h.engine.DecryptObjectStrict(req.Object)
	} else {
		out, fieldErrs, err = h.engine.DecryptObject(req.Object)
	}
	duration := time.Since(start)

	kind := crypto.KindOf(err)
	h.recordOperation("object_decrypt", "", kind, duration, 0)
	h.logAudit(audit.EventTypeDecrypt, "object_decrypt", "", err == nil, string(kind), duration, len(fieldErrs))
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"operation":  "object_decrypt",
			"error_kind": kind,
			"strict":     req.Strict,
		}).Warn("Object decryption failed")
		translateError(err).WriteJSON(w)
		return
	}

	if len(fieldErrs) > 0 {
		h.logger.WithFields(logrus.Fields{
			"operation":   "object_decrypt",
			"field_count": len(fieldErrs),
		}).Warn("Object decryption completed with field errors")
	}

	h.writeJSON(w, http.StatusOK, objectDecryptResponse{Object: out, FieldErrors: fieldErrs})
}

type hashRequest struct {
	Value string `json:"value"`
}

type hashResponse struct {
	Hash string `json:"hash"`
}

func (h *Handler) handleHash(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req hashRequest
	if apiErr := h.decodeJSON(w, r, &req); apiErr != nil {
		apiErr.WriteJSON(w)
		return
	}

	hash, err := h.engine.HashForComparison(req.Value, nil)
	duration := time.Since(start)

	kind := crypto.KindOf(err)
	if h.auditLogger != nil {
		h.auditLogger.LogHash(err == nil, string(kind), duration)
	}
	if err != nil {
		h.recordOperation("hash", "", kind, duration, 0)
		h.logger.WithFields(logrus.Fields{
			"operation":  "hash",
			"error_kind": kind,
		}).Warn("Comparison hash failed")
		translateError(err).WriteJSON(w)
		return
	}

	h.recordOperation("hash", "", crypto.ErrorKindNone, duration, int64(len(req.Value)))
	h.writeJSON(w, http.StatusOK, hashResponse{Hash: hash})
}

type hashVerifyRequest struct {
	Value string `json:"value"`
	Hash  string `json:"hash"`
}

type hashVerifyResponse struct {
	OK bool `json:"ok"`
}

func (h *Handler) handleHashVerify(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req hashVerifyRequest
	if apiErr := h.decodeJSON(w, r, &req); apiErr != nil {
		apiErr.WriteJSON(w)
		return
	}

	ok := h.engine.VerifyHash(req.Value, req.Hash)
	duration := time.Since(start)

	h.recordOperation("hash_verify", "", crypto.ErrorKindNone, duration, 0)
	if h.auditLogger != nil {
		h.auditLogger.LogHash(true, "", duration)
	}

	h.writeJSON(w, http.StatusOK, hashVerifyResponse{OK: ok})
}

func (h *Handler) handleSelfTest(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	report := h.engine.SelfTest()
	duration := time.Since(start)

	if h.metrics != nil {
		h.metrics.RecordSelfTest(report.Passed)
	}
	if h.auditLogger != nil {
		h.auditLogger.LogSelfTest(report.Passed, duration)
	}

	status := http.StatusOK
	if !report.Passed {
		status = http.StatusInternalServerError
		h.logger.Error("Engine self-test failed")
	}
	h.writeJSON(w, status, report)
}

// decodeJSON reads and decodes a JSON request body, enforcing the configured
// body size limit. A non-nil return is ready to be written as the response.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, v any) *APIError {
	maxBytes := int64(10 << 20)
	if h.config != nil && h.config.Server.MaxBodyBytes > 0 {
		maxBytes = h.config.Server.MaxBodyBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return errBodyTooLarge
		}
		return errBadRequest
	}
	return nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.WithError(err).Error("Failed to write response")
	}
}

// resolveClassification applies the configured default when the request does
// not name a classification. Invalid names pass through so the engine rejects
// them with the proper error kind.
func (h *Handler) resolveClassification(name string) classification.Classification {
	if name != "" {
		return classification.Classification(name)
	}
	if h.config != nil && h.config.Encryption.DefaultClassification != "" {
		return classification.Classification(h.config.Encryption.DefaultClassification)
	}
	return classification.Confidential
}

// buildClassMap converts the request's classification map, falling back to
// the server-side field policies matched against the object's keys when the
// request supplies none.
func (h *Handler) buildClassMap(requested map[string]string, obj any) (map[string]classification.Classification, error) {
	if len(requested) > 0 {
		out := make(map[string]classification.Classification, len(requested))
		for key, name := range requested {
			c := classification.Classification(name)
			if !c.Valid() {
				return nil, fmt.Errorf("%w: %q", classification.ErrUnknownClassification, name)
			}
			out[key] = c
		}
		return out, nil
	}

	if h.policies == nil {
		return nil, nil
	}
	out := make(map[string]classification.Classification)
	for _, key := range collectMapKeys(obj, 0, nil) {
		if c, ok := h.policies.ClassificationFor(key); ok {
			out[key] = c
		}
	}
	return out, nil
}

func (h *Handler) recordOperation(operation string, c classification.Classification, kind crypto.ErrorKind, duration time.Duration, bytes int64) {
	if h.metrics == nil {
		return
	}
	if kind != crypto.ErrorKindNone {
		h.metrics.RecordError(operation, string(kind))
		return
	}
	h.metrics.RecordOperation(operation, string(c), "", duration, bytes)
}

func (h *Handler) logAudit(eventType audit.EventType, operation string, c classification.Classification, success bool, errorKind string, duration time.Duration, fieldCount int) {
	if h.auditLogger == nil {
		return
	}
	_ = h.auditLogger.Log(&audit.Event{
		Timestamp:      time.Now(),
		EventType:      eventType,
		Operation:      operation,
		Classification: c,
		Success:        success,
		ErrorKind:      errorKind,
		Duration:       duration,
		FieldCount:     fieldCount,
	})
}

const collectDepthLimit = 32

// collectMapKeys gathers the distinct map keys of a nested object so the
// policy matcher can assign classifications per key.
func collectMapKeys(obj any, depth int, seen []string) []string {
	if depth >= collectDepthLimit {
		return seen
	}
	switch val := obj.(type) {
	case map[string]any:
		for k, child := range val {
			if !containsKey(seen, k) {
				seen = append(seen, k)
			}
			seen = collectMapKeys(child, depth+1, seen)
		}
	case []any:
		for _, child := range val {
			seen = collectMapKeys(child, depth+1, seen)
		}
	}
	return seen
}

func containsKey(keys []string, k string) bool {
	for _, existing := range keys {
		if existing == k {
			return true
		}
	}
	return false
}

// countStringLeaves counts the non-empty string leaves of an object, for
// audit field counts.
func countStringLeaves(obj any, depth int) int {
	if depth >= collectDepthLimit {
		return 0
	}
	switch val := obj.(type) {
	case string:
		if val != "" {
			return 1
		}
	case map[string]any:
		n := 0
		for _, child := range val {
			n += countStringLeaves(child, depth+1)
		}
		return n
	case []any:
		n := 0
		for _, child := range val {
			n += countStringLeaves(child, depth+1)
		}
		return n
	}
	return 0
}
