package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	config, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if config.ListenAddr != ":8080" {
		t.Errorf("expected ListenAddr :8080, got %s", config.ListenAddr)
	}
	if config.LogLevel != "info" {
		t.Errorf("expected LogLevel info, got %s", config.LogLevel)
	}
	if config.Environment != "development" {
		t.Errorf("expected Environment development, got %s", config.Environment)
	}
	if config.Encryption.DefaultClassification != "CONFIDENTIAL" {
		t.Errorf("expected default classification CONFIDENTIAL, got %s", config.Encryption.DefaultClassification)
	}
	if config.Encryption.MaxObjectDepth != 32 {
		t.Errorf("expected max object depth 32, got %d", config.Encryption.MaxObjectDepth)
	}
	if config.Server.MaxBodyBytes != 8<<20 {
		t.Errorf("expected max body bytes %d, got %d", 8<<20, config.Server.MaxBodyBytes)
	}
	if config.RateLimit.Enabled {
		t.Error("expected rate limiting disabled by default")
	}
	if config.Tracing.Exporter != "stdout" {
		t.Errorf("expected tracing exporter stdout, got %s", config.Tracing.Exporter)
	}
	if !config.Tracing.RedactSensitive {
		t.Error("expected sensitive span redaction enabled by default")
	}
	if config.IsProduction() {
		t.Error("IsProduction() = true for development default")
	}
}

func TestLoadConfig_FromFile(t *testing.T) {
	yaml := `
listen_addr: ":9999"
log_level: debug
environment: staging
encryption:
  key_file: /etc/fieldcipher/master.key
  default_classification: RESTRICTED
  max_object_depth: 16
policies:
  - pattern: "*.ssn"
    classification: TOP_SECRET
  - pattern: "user.email"
    classification: CONFIDENTIAL
rate_limit:
  enabled: true
  limit: 50
  window: 30s
audit:
  enabled: true
  max_events: 500
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if config.ListenAddr != ":9999" {
		t.Errorf("expected ListenAddr :9999, got %s", config.ListenAddr)
	}
	if config.Environment != "staging" {
		t.Errorf("expected Environment staging, got %s", config.Environment)
	}
	if config.Encryption.KeyFile != "/etc/fieldcipher/master.key" {
		t.Errorf("unexpected key file %s", config.Encryption.KeyFile)
	}
	if config.Encryption.DefaultClassification != "RESTRICTED" {
		t.Errorf("expected default classification RESTRICTED, got %s", config.Encryption.DefaultClassification)
	}
	if len(config.Policies) != 2 {
		t.Fatalf("expected 2 policies, got %d", len(config.Policies))
	}
	if config.Policies[0].Pattern != "*.ssn" || config.Policies[0].Classification != "TOP_SECRET" {
		t.Errorf("unexpected first policy: %+v", config.Policies[0])
	}
	if !config.RateLimit.Enabled || config.RateLimit.Limit != 50 || config.RateLimit.Window != 30*time.Second {
		t.Errorf("unexpected rate limit config: %+v", config.RateLimit)
	}
	if !config.Audit.Enabled || config.Audit.MaxEvents != 500 {
		t.Errorf("unexpected audit config: %+v", config.Audit)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":7070")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("FIELDCIPHER_ENV", "production")
	t.Setenv("FIELDCIPHER_DEFAULT_CLASSIFICATION", "INTERNAL")
	t.Setenv("FIELDCIPHER_MAX_OBJECT_DEPTH", "8")
	t.Setenv("SERVER_MAX_BODY_BYTES", "1048576")

	config, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if config.ListenAddr != ":7070" {
		t.Errorf("expected ListenAddr :7070, got %s", config.ListenAddr)
	}
	if config.LogLevel != "debug" {
		t.Errorf("expected LogLevel debug, got %s", config.LogLevel)
	}
	if !config.IsProduction() {
		t.Error("IsProduction() = false with FIELDCIPHER_ENV=production")
	}
	if config.Encryption.DefaultClassification != "INTERNAL" {
		t.Errorf("expected default classification INTERNAL, got %s", config.Encryption.DefaultClassification)
	}
	if config.Encryption.MaxObjectDepth != 8 {
		t.Errorf("expected max object depth 8, got %d", config.Encryption.MaxObjectDepth)
	}
	if config.Server.MaxBodyBytes != 1048576 {
		t.Errorf("expected max body bytes 1048576, got %d", config.Server.MaxBodyBytes)
	}
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	config, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if config.ListenAddr != ":8080" {
		t.Errorf("expected defaults for missing file, got ListenAddr %s", config.ListenAddr)
	}
}

func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := LoadConfig("")
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "default config", mutate: func(c *Config) {}, wantErr: false},
		{name: "empty listen addr", mutate: func(c *Config) { c.ListenAddr = "" }, wantErr: true},
		{name: "bad environment", mutate: func(c *Config) { c.Environment = "qa" }, wantErr: true},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "trace" }, wantErr: true},
		{name: "bad default classification", mutate: func(c *Config) { c.Encryption.DefaultClassification = "SECRET" }, wantErr: true},
		{name: "zero object depth", mutate: func(c *Config) { c.Encryption.MaxObjectDepth = 0 }, wantErr: true},
		{
			name: "policy without pattern",
			mutate: func(c *Config) {
				c.Policies = []FieldPolicy{{Pattern: "", Classification: "PUBLIC"}}
			},
			wantErr: true,
		},
		{
			name: "policy with bad classification",
			mutate: func(c *Config) {
				c.Policies = []FieldPolicy{{Pattern: "*.x", Classification: "SECRET"}}
			},
			wantErr: true,
		},
		{
			name:    "tls enabled without cert",
			mutate:  func(c *Config) { c.TLS.Enabled = true },
			wantErr: true,
		},
		{
			name: "tracing with bad exporter",
			mutate: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.Exporter = "zipkin"
			},
			wantErr: true,
		},
		{
			name: "tracing jaeger without endpoint",
			mutate: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.Exporter = "jaeger"
			},
			wantErr: true,
		},
		{
			name: "tracing sampling ratio out of range",
			mutate: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.SamplingRatio = 1.5
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("Validate() expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Validate() unexpected error: %v", err)
			}
		})
	}
}
