// Package audit records engine operations for the security audit layer.
// Events carry classifications, algorithms, and error kinds; they never
// carry plaintext, key material, or raw cipher errors.
package audit

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/kenneth/fieldcipher/internal/classification"
)

// EventType represents the type of audit event.
type EventType string

const (
	// EventTypeEncrypt represents a field or object encryption.
	EventTypeEncrypt EventType = "encrypt"
	// EventTypeDecrypt represents a field or object decryption.
	EventTypeDecrypt EventType = "decrypt"
	// EventTypeHash represents a comparison hash operation.
	EventTypeHash EventType = "hash"
	// EventTypeSelfTest represents an engine self-test run.
	EventTypeSelfTest EventType = "selftest"
)

// Event represents a single audit log event.
type Event struct {
	Timestamp      time.Time                     `json:"timestamp"`
	EventType      EventType                     `json:"event_type"`
	Operation      string                        `json:"operation"`
	Field          string                        `json:"field,omitempty"`
	Classification classification.Classification `json:"classification,omitempty"`
	Algorithm      string                        `json:"algorithm,omitempty"`
	Success        bool                          `json:"success"`
	ErrorKind      string                        `json:"error_kind,omitempty"`
	Duration       time.Duration                 `json:"duration_ms"`
	FieldCount     int                           `json:"field_count,omitempty"`
}

// Logger is the interface for audit logging.
type Logger interface {
	// Log logs an audit event.
	Log(event *Event) error

	// LogEncrypt logs an encryption operation.
	LogEncrypt(field string, c classification.Classification, algorithm string, success bool, errorKind string, duration time.Duration)

	// LogDecrypt logs a decryption operation.
	LogDecrypt(field string, c classification.Classification, algorithm string, success bool, errorKind string, duration time.Duration)

	// LogHash logs a comparison hash operation.
	LogHash(success bool, errorKind string, duration time.Duration)

	// LogSelfTest logs a self-test run.
	LogSelfTest(passed bool, duration time.Duration)
}

// auditLogger implements the Logger interface with a bounded in-memory
// buffer plus a pluggable writer.
type auditLogger struct {
	mu        sync.Mutex
	events    []*Event
	maxEvents int
	writer    EventWriter
}

// EventWriter is an interface for writing audit events.
type EventWriter interface {
	WriteEvent(event *Event) error
}

// NewLogger creates a new audit logger. A nil writer falls back to JSON on
// stdout.
func NewLogger(maxEvents int, writer EventWriter) Logger {
	if writer == nil {
		writer = &defaultWriter{}
	}
	return &auditLogger{
		events:    make([]*Event, 0, maxEvents),
		maxEvents: maxEvents,
		writer:    writer,
	}
}

// Log logs an audit event.
func (l *auditLogger) Log(event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.writer != nil {
		// Writer failures must not break the operation being audited.
		_ = l.writer.WriteEvent(event)
	}

	l.events = append(l.events, event)
	if len(l.events) > l.maxEvents {
		l.events = l.events[len(l.events)-l.maxEvents:]
	}
	return nil
}

func (l *auditLogger) LogEncrypt(field string, c classification.Classification, algorithm string, success bool, errorKind string, duration time.Duration) {
	l.Log(&Event{
		Timestamp:      time.Now(),
		EventType:      EventTypeEncrypt,
		Operation:      "encrypt",
		Field:          field,
		Classification: c,
		Algorithm:      algorithm,
		Success:        success,
		ErrorKind:      errorKind,
		Duration:       duration,
	})
}

func (l *auditLogger) LogDecrypt(field string, c classification.Classification, algorithm string, success bool, errorKind string, duration time.Duration) {
	l.Log(&Event{
		Timestamp:      time.Now(),
		EventType:      EventTypeDecrypt,
		Operation:      "decrypt",
		Field:          field,
		Classification: c,
		Algorithm:      algorithm,
		Success:        success,
		ErrorKind:      errorKind,
		Duration:       duration,
	})
}

func (l *auditLogger) LogHash(success bool, errorKind string, duration time.Duration) {
	l.Log(&Event{
		Timestamp: time.Now(),
		EventType: EventTypeHash,
		Operation: "hash",
		Success:   success,
		ErrorKind: errorKind,
		Duration:  duration,
	})
}

func (l *auditLogger) LogSelfTest(passed bool, duration time.Duration) {
	l.Log(&Event{
		Timestamp: time.Now(),
		EventType: EventTypeSelfTest,
		Operation: "selftest",
		Success:   passed,
		Duration:  duration,
	})
}

// GetEvents returns a copy of the buffered audit events.
func (l *auditLogger) GetEvents() []*Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	events := make([]*Event, len(l.events))
	copy(events, l.events)
	return events
}

// defaultWriter writes events to stdout as JSON.
type defaultWriter struct{}

func (w *defaultWriter) WriteEvent(event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	fmt.Printf("%s\n", string(data))
	return nil
}
