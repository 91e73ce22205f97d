package masterkey

import (
	"bytes"
	"encoding/base64"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestNewStatic(t *testing.T) {
	tests := []struct {
		name    string
		key     []byte
		wantErr bool
	}{
		{name: "32 byte key", key: bytes.Repeat([]byte{0x42}, 32), wantErr: false},
		{name: "minimum length key", key: bytes.Repeat([]byte{0x42}, MinKeyBytes), wantErr: false},
		{name: "short key", key: []byte("short"), wantErr: true},
		{name: "nil key", key: nil, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := NewStatic(tt.key)
			if tt.wantErr {
				if err == nil {
					t.Error("NewStatic() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewStatic() unexpected error: %v", err)
			}
			key, err := provider.Key()
			if err != nil {
				t.Fatalf("Key() failed: %v", err)
			}
			if !bytes.Equal(key, tt.key) {
				t.Error("Key() returned a different key")
			}
		})
	}
}

func TestLoaderFromEnv(t *testing.T) {
	raw := bytes.Repeat([]byte{0x42}, 32)
	t.Setenv(EnvVar, base64.StdEncoding.EncodeToString(raw))

	loader := NewLoader("", true, testLogger())
	key, err := loader.Key()
	if err != nil {
		t.Fatalf("Key() failed: %v", err)
	}
	if !bytes.Equal(key, raw) {
		t.Error("Key() does not match the environment key")
	}
}

func TestLoaderFromEnvRawURLEncoding(t *testing.T) {
	raw := bytes.Repeat([]byte{0xfb}, 32)
	t.Setenv(EnvVar, base64.RawURLEncoding.EncodeToString(raw))

	loader := NewLoader("", true, testLogger())
	key, err := loader.Key()
	if err != nil {
		t.Fatalf("Key() failed: %v", err)
	}
	if !bytes.Equal(key, raw) {
		t.Error("Key() does not match the environment key")
	}
}

func TestLoaderInvalidEnvKey(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{name: "not base64", value: "!!! definitely not base64 !!!"},
		{name: "too short", value: base64.StdEncoding.EncodeToString([]byte("short"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvVar, tt.value)
			loader := NewLoader("", true, testLogger())
			if _, err := loader.Key(); err == nil {
				t.Error("Key() expected error, got nil")
			}
		})
	}
}

func TestLoaderFromFile(t *testing.T) {
	t.Setenv(EnvVar, "")

	raw := bytes.Repeat([]byte{0x17}, 32)
	keyFile := filepath.Join(t.TempDir(), "master.key")
	encoded := base64.StdEncoding.EncodeToString(raw) + "\n"
	if err := os.WriteFile(keyFile, []byte(encoded), 0600); err != nil {
		t.Fatalf("failed to write key file: %v", err)
	}

	loader := NewLoader(keyFile, true, testLogger())
	key, err := loader.Key()
	if err != nil {
		t.Fatalf("Key() failed: %v", err)
	}
	if !bytes.Equal(key, raw) {
		t.Error("Key() does not match the file key")
	}
}

func TestLoaderEnvOverridesFile(t *testing.T) {
	envKey := bytes.Repeat([]byte{0x01}, 32)
	t.Setenv(EnvVar, base64.StdEncoding.EncodeToString(envKey))

	keyFile := filepath.Join(t.TempDir(), "master.key")
	fileKey := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0x02}, 32))
	if err := os.WriteFile(keyFile, []byte(fileKey), 0600); err != nil {
		t.Fatalf("failed to write key file: %v", err)
	}

	loader := NewLoader(keyFile, true, testLogger())
	key, err := loader.Key()
	if err != nil {
		t.Fatalf("Key() failed: %v", err)
	}
	if !bytes.Equal(key, envKey) {
		t.Error("environment key did not take precedence over the file")
	}
}

func TestLoaderMissingFile(t *testing.T) {
	t.Setenv(EnvVar, "")

	loader := NewLoader(filepath.Join(t.TempDir(), "absent.key"), true, testLogger())
	if _, err := loader.Key(); err == nil {
		t.Error("Key() expected error for missing key file, got nil")
	}
}

func TestLoaderProductionRequiresKey(t *testing.T) {
	t.Setenv(EnvVar, "")

	loader := NewLoader("", true, testLogger())
	if _, err := loader.Key(); !errors.Is(err, ErrMissing) {
		t.Errorf("Key() error = %v, want ErrMissing", err)
	}
}

func TestLoaderDevelopmentFallback(t *testing.T) {
	t.Setenv(EnvVar, "")

	loader := NewLoader("", false, testLogger())
	key, err := loader.Key()
	if err != nil {
		t.Fatalf("Key() failed: %v", err)
	}
	if len(key) < MinKeyBytes {
		t.Errorf("development key length = %d, want at least %d", len(key), MinKeyBytes)
	}
}

func TestLoaderCachesFirstResult(t *testing.T) {
	raw := bytes.Repeat([]byte{0x33}, 32)
	t.Setenv(EnvVar, base64.StdEncoding.EncodeToString(raw))

	loader := NewLoader("", true, testLogger())
	first, err := loader.Key()
	if err != nil {
		t.Fatalf("Key() failed: %v", err)
	}

	// A later environment change must not alter the cached key.
	t.Setenv(EnvVar, base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0x44}, 32)))
	second, err := loader.Key()
	if err != nil {
		t.Fatalf("second Key() failed: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("Key() changed after first load")
	}
}
