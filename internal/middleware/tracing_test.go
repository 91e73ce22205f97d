package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTracingMiddleware_Redaction(t *testing.T) {
	// The middleware must pass the request through untouched; redaction only
	// affects span attributes, never the request the handler sees.
	var recordedHeaders map[string]string
	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers := make(map[string]string)
		for k, v := range r.Header {
			headers[strings.ToLower(k)] = strings.Join(v, ",")
		}
		recordedHeaders = headers
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	middleware := TracingMiddleware(true)
	handler := middleware(testHandler)

	req := httptest.NewRequest("POST", "/v1/field/encrypt?debug=1", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	req.Header.Set("X-Api-Key", "sensitive-key")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Custom-Header", "safe-value")

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())

	assert.Equal(t, "Bearer secret-token", recordedHeaders["authorization"])
	assert.Equal(t, "sensitive-key", recordedHeaders["x-api-key"])
	assert.Equal(t, "application/json", recordedHeaders["content-type"])
	assert.Equal(t, "safe-value", recordedHeaders["x-custom-header"])
}

func TestTracingMiddleware_NoRedaction(t *testing.T) {
	middleware := TracingMiddleware(false)
	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	handler := middleware(testHandler)

	req := httptest.NewRequest("POST", "/v1/field/decrypt", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTracingMiddleware_ErrorStatus(t *testing.T) {
	middleware := TracingMiddleware(true)
	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	})

	handler := middleware(testHandler)

	req := httptest.NewRequest("POST", "/v1/field/encrypt", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSpanName(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		want   string
	}{
		{
			name:   "field encrypt",
			method: "POST",
			path:   "/v1/field/encrypt",
			want:   "Fieldcipher EncryptField",
		},
		{
			name:   "field decrypt",
			method: "POST",
			path:   "/v1/field/decrypt",
			want:   "Fieldcipher DecryptField",
		},
		{
			name:   "object encrypt",
			method: "POST",
			path:   "/v1/object/encrypt",
			want:   "Fieldcipher EncryptObject",
		},
		{
			name:   "object decrypt",
			method: "POST",
			path:   "/v1/object/decrypt",
			want:   "Fieldcipher DecryptObject",
		},
		{
			name:   "hash",
			method: "POST",
			path:   "/v1/hash",
			want:   "Fieldcipher HashForComparison",
		},
		{
			name:   "hash verify",
			method: "POST",
			path:   "/v1/hash/verify",
			want:   "Fieldcipher VerifyHash",
		},
		{
			name:   "selftest",
			method: "GET",
			path:   "/v1/selftest",
			want:   "Fieldcipher SelfTest",
		},
		{
			name:   "unknown path",
			method: "GET",
			path:   "/healthz",
			want:   "HTTP GET",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := spanName(tt.method, tt.path)
			assert.Equal(t, tt.want, got)
		})
	}
}
