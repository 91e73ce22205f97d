package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	promapi "github.com/prometheus/client_golang/api"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"github.com/sirupsen/logrus"
)

func main() {
	var (
		serverURL      = flag.String("server-url", "http://localhost:8080", "Fieldcipher service URL")
		duration       = flag.Duration("duration", 30*time.Second, "Test duration")
		workers        = flag.Int("workers", 5, "Number of worker goroutines")
		qps            = flag.Int("qps", 25, "Queries per second per worker")
		classification = flag.String("classification", "CONFIDENTIAL", "Classification tier to exercise")
		valueSize      = flag.Int("value-size", 256, "Plaintext value size in bytes")
		prometheusURL  = flag.String("prometheus-url", "", "Prometheus URL for server-side metrics")
		verbose        = flag.Bool("verbose", false, "Enable verbose logging")
	)

	flag.Parse()

	logger := logrus.New()
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	fmt.Println("=== Fieldcipher Load Test Runner ===")
	fmt.Printf("Server URL: %s\n", *serverURL)
	fmt.Printf("Duration: %v\n", *duration)
	fmt.Printf("Workers: %d\n", *workers)
	fmt.Printf("QPS per Worker: %d\n", *qps)
	fmt.Printf("Classification: %s\n", *classification)
	fmt.Printf("Value Size: %d bytes\n", *valueSize)
	fmt.Println()

	startTime := time.Now()
	results := runLoadTest(*serverURL, *workers, *duration, *qps, *classification, *valueSize, logger)
	endTime := time.Now()

	printResults(results, endTime.Sub(startTime))

	if *prometheusURL != "" {
		metrics, err := queryPrometheusMetrics(*prometheusURL, endTime)
		if err != nil {
			logger.WithError(err).Warn("Failed to query Prometheus metrics")
		} else {
			fmt.Println("--- Server-Side Metrics (Prometheus) ---")
			for name, value := range metrics {
				fmt.Printf("%s: %.6f\n", name, value)
			}
		}
	}

	if results.Errors > 0 || results.Mismatches > 0 {
		os.Exit(1)
	}
}

type loadTestResults struct {
	Requests   int64
	Errors     int64
	Mismatches int64
	Latencies  []time.Duration
}

// runLoadTest drives encrypt/decrypt round trips against the field API and
// verifies that every decrypted value matches what was encrypted.
func runLoadTest(serverURL string, workers int, duration time.Duration, qps int, classification string, valueSize int, logger *logrus.Logger) *loadTestResults {
	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	var (
		mu      sync.Mutex
		results loadTestResults
	)
	client := &http.Client{Timeout: 30 * time.Second}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()

			interval := time.Second / time.Duration(qps)
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)))

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					value := randomValue(rng, valueSize)
					start := time.Now()
					err := roundTrip(ctx, client, serverURL, value, classification)
					latency := time.Since(start)

					mu.Lock()
					results.Requests++
					results.Latencies = append(results.Latencies, latency)
					if err != nil {
						if err == errMismatch {
							results.Mismatches++
						} else {
							results.Errors++
						}
					}
					mu.Unlock()

					if err != nil && err != context.DeadlineExceeded {
						logger.WithError(err).Debug("Round trip failed")
					}
				}
			}
		}(i)
	}
	wg.Wait()

	return &results
}

var errMismatch = fmt.Errorf("decrypted value does not match plaintext")

func roundTrip(ctx context.Context, client *http.Client, serverURL, value, classification string) error {
	var encryptResp struct {
		Stored string `json:"stored"`
	}
	err := postJSON(ctx, client, serverURL+"/v1/field/encrypt", map[string]string{
		"value":          value,
		"classification": classification,
	}, &encryptResp)
	if err != nil {
		return fmt.Errorf("encrypt: %w", err)
	}

	var decryptResp struct {
		Value string `json:"value"`
	}
	err = postJSON(ctx, client, serverURL+"/v1/field/decrypt", map[string]string{
		"stored": encryptResp.Stored,
	}, &decryptResp)
	if err != nil {
		return fmt.Errorf("decrypt: %w", err)
	}

	if decryptResp.Value != value {
		return errMismatch
	}
	return nil
}

func postJSON(ctx context.Context, client *http.Client, url string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

const valueAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomValue(rng *rand.Rand, size int) string {
	b := make([]byte, size)
	for i := range b {
		b[i] = valueAlphabet[rng.Intn(len(valueAlphabet))]
	}
	return string(b)
}

func printResults(results *loadTestResults, elapsed time.Duration) {
	fmt.Println("--- Results ---")
	fmt.Printf("Total Requests: %d\n", results.Requests)
	fmt.Printf("Errors: %d\n", results.Errors)
	fmt.Printf("Mismatches: %d\n", results.Mismatches)
	if elapsed > 0 {
		fmt.Printf("Throughput: %.1f req/s\n", float64(results.Requests)/elapsed.Seconds())
	}

	if len(results.Latencies) > 0 {
		sorted := make([]time.Duration, len(results.Latencies))
		copy(sorted, results.Latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		fmt.Printf("Latency p50: %v\n", percentile(sorted, 0.50))
		fmt.Printf("Latency p95: %v\n", percentile(sorted, 0.95))
		fmt.Printf("Latency p99: %v\n", percentile(sorted, 0.99))
		fmt.Printf("Latency max: %v\n", sorted[len(sorted)-1])
	}
	fmt.Println()
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

// queryPrometheusMetrics pulls server-side percentiles for the test window.
func queryPrometheusMetrics(prometheusURL string, endTime time.Time) (map[string]float64, error) {
	client, err := promapi.NewClient(promapi.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, err
	}

	v1api := promv1.NewAPI(client)

	queries := map[string]string{
		"http_request_duration_p95": `histogram_quantile(0.95, rate(http_request_duration_seconds_bucket[5m]))`,
		"operation_duration_p95":    `histogram_quantile(0.95, rate(fieldcipher_operation_duration_seconds_bucket[5m]))`,
		"kdf_duration_p95":          `histogram_quantile(0.95, rate(fieldcipher_kdf_duration_seconds_bucket[5m]))`,
		"memory_alloc_bytes_avg":    `avg_over_time(memory_alloc_bytes[5m])`,
		"goroutines_avg":            `avg_over_time(goroutines_total[5m])`,
	}

	results := make(map[string]float64)
	for name, query := range queries {
		value, warnings, err := v1api.Query(context.Background(), query, endTime)
		if err != nil {
			return nil, fmt.Errorf("failed to query %s: %w", name, err)
		}
		if len(warnings) > 0 {
			fmt.Printf("Warnings for query %s: %v\n", name, warnings)
		}
		if vector, ok := value.(model.Vector); ok && len(vector) > 0 {
			results[name] = float64(vector[0].Value)
		}
	}

	return results, nil
}
