package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordHTTPRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newMetricsWithRegistry(reg)

	m.RecordHTTPRequest("POST", "/v1/field/encrypt", 200, 15*time.Millisecond)
	m.RecordHTTPRequest("POST", "/v1/field/encrypt", 200, 20*time.Millisecond)
	m.RecordHTTPRequest("POST", "/v1/field/decrypt", 422, 5*time.Millisecond)

	count := testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("POST", "/v1/field/encrypt", "200"))
	assert.Equal(t, 2.0, count)

	count = testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("POST", "/v1/field/decrypt", "422"))
	assert.Equal(t, 1.0, count)
}

func TestRecordOperation(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newMetricsWithRegistry(reg)

	m.RecordOperation("encrypt_field", "CONFIDENTIAL", "AES-256-GCM", 2*time.Millisecond, 128)
	m.RecordOperation("encrypt_field", "CONFIDENTIAL", "AES-256-GCM", 3*time.Millisecond, 64)
	m.RecordOperation("decrypt_field", "TOP_SECRET", "XChaCha20-Poly1305", 4*time.Millisecond, 32)

	count := testutil.ToFloat64(m.engineOperations.WithLabelValues("encrypt_field", "CONFIDENTIAL", "AES-256-GCM"))
	assert.Equal(t, 2.0, count)

	count = testutil.ToFloat64(m.engineOperations.WithLabelValues("decrypt_field", "TOP_SECRET", "XChaCha20-Poly1305"))
	assert.Equal(t, 1.0, count)

	bytes := testutil.ToFloat64(m.engineBytes.WithLabelValues("encrypt_field"))
	assert.Equal(t, 192.0, bytes)
}

func TestRecordError(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newMetricsWithRegistry(reg)

	m.RecordError("decrypt_field", "integrity_failure")
	m.RecordError("decrypt_field", "integrity_failure")
	m.RecordError("encrypt_field", "unknown_classification")

	count := testutil.ToFloat64(m.engineErrors.WithLabelValues("decrypt_field", "integrity_failure"))
	assert.Equal(t, 2.0, count)

	count = testutil.ToFloat64(m.engineErrors.WithLabelValues("encrypt_field", "unknown_classification"))
	assert.Equal(t, 1.0, count)
}

func TestRecordKDFDuration(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newMetricsWithRegistry(reg)

	m.RecordKDFDuration("TOP_SECRET", 120*time.Millisecond)
	m.RecordKDFDuration("PUBLIC", 10*time.Millisecond)

	families, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, family := range families {
		if family.GetName() == "fieldcipher_kdf_duration_seconds" {
			found = true
			assert.Len(t, family.GetMetric(), 2)
		}
	}
	assert.True(t, found, "fieldcipher_kdf_duration_seconds should be registered")
}

func TestRecordSelfTest(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newMetricsWithRegistry(reg)

	m.RecordSelfTest(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.selfTestPassed))

	m.RecordSelfTest(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.selfTestPassed))
}

func TestActiveConnections(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newMetricsWithRegistry(reg)

	m.IncrementActiveConnections()
	m.IncrementActiveConnections()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.activeConnections))

	m.DecrementActiveConnections()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeConnections))
}

func TestUpdateSystemMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newMetricsWithRegistry(reg)

	m.UpdateSystemMetrics()

	assert.Greater(t, testutil.ToFloat64(m.goroutines), 0.0)
	assert.Greater(t, testutil.ToFloat64(m.memoryAllocBytes), 0.0)
	assert.Greater(t, testutil.ToFloat64(m.memorySysBytes), 0.0)
}

func TestMetricDescriptions(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newMetricsWithRegistry(reg)

	m.RecordOperation("encrypt_field", "PUBLIC", "AES-128-GCM", time.Millisecond, 8)
	m.RecordSelfTest(true)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]string)
	for _, family := range families {
		names[family.GetName()] = family.GetHelp()
	}

	assert.Equal(t, "Total number of engine operations", names["fieldcipher_operations_total"])
	assert.Equal(t, "Whether the last engine self-test passed (1) or failed (0)", names["fieldcipher_selftest_passed"])
}
