package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/logger"
	"github.com/kbukum/flowkit/pipeline"
)

func TestConfigApplyDefaults(t *testing.T) {
	tests := []struct {
		name       string
		cfg        Config
		wantEnv    string
		wantLevel  string
		wantFormat string
	}{
		{"empty environment is development", Config{Name: "svc"}, EnvDevelopment, "debug", "console"},
		{"production logs json", Config{Name: "svc", Environment: EnvProduction}, EnvProduction, "info", "json"},
		{"staging logs json", Config{Name: "svc", Environment: EnvStaging}, EnvStaging, "info", "json"},
		{
			name:       "explicit logging wins",
			cfg:        Config{Name: "svc", Environment: EnvDevelopment, Logging: logger.Config{Level: "warn", Format: "pretty"}},
			wantEnv:    EnvDevelopment,
			wantLevel:  "warn",
			wantFormat: "pretty",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := tc.cfg
			cfg.ApplyDefaults()
			if cfg.Environment != tc.wantEnv {
				t.Errorf("expected environment %q, got %q", tc.wantEnv, cfg.Environment)
			}
			if cfg.Logging.Level != tc.wantLevel || cfg.Logging.Format != tc.wantFormat {
				t.Errorf("expected logging %s/%s, got %s/%s", tc.wantLevel, tc.wantFormat, cfg.Logging.Level, cfg.Logging.Format)
			}
			if cfg.Tracing.ServiceName != "svc" || cfg.Metrics.Environment != tc.wantEnv {
				t.Errorf("observability should inherit identity, got %+v %+v", cfg.Tracing, cfg.Metrics)
			}
			if err := cfg.Validate(); err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		cfg    Config
		errMsg string
	}{
		{"missing name", Config{Environment: EnvProduction}, "name"},
		{"unknown environment", Config{Name: "svc", Environment: "qa"}, "environment"},
		{"unknown log format", Config{Name: "svc", Environment: EnvProduction, Logging: logger.Config{Format: "xml"}}, "logging.format"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := tc.cfg
			cfg.Logging.ApplyDefaults()
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.errMsg) {
				t.Errorf("expected error containing %q, got %q", tc.errMsg, err.Error())
			}
		})
	}
}

func TestLoadSearchesStandardLocations(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"command directory", filepath.Join("cmd", "ingest", "config.yml")},
		{"named file in config directory", filepath.Join("config", "ingest.yml")},
		{"shared file in config directory", filepath.Join("config", "config.yml")},
		{"working directory", "config.yml"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			full := filepath.Join(dir, tc.path)
			if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
				t.Fatalf("mkdir: %v", err)
			}
			if err := os.WriteFile(full, []byte("version: \"3.0.0\"\n"), 0o644); err != nil {
				t.Fatalf("failed to write config: %v", err)
			}
			t.Chdir(dir)

			cfg, err := Load("ingest")
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if cfg.Version != "3.0.0" {
				t.Errorf("expected version from %s, got %q", tc.path, cfg.Version)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load("nonexistent-service", WithConfigFile("/nonexistent/path.yml"))
	if err != nil {
		t.Fatalf("expected Load to succeed with missing file, got %v", err)
	}
	if cfg.Name != "nonexistent-service" {
		t.Errorf("expected name from service, got %q", cfg.Name)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadPipelineConfig(t *testing.T) {
	path := writeConfig(t, `
name: ingest
environment: production
version: "2.1.0"
logging:
  level: debug
  format: json
tracing:
  endpoint: "collector:4318"
  sample_rate: 0.25
metrics:
  interval: 30s
monitor:
  enabled: true
  addr: "0.0.0.0:9191"
stages:
  parse:
    error_policy: forward
    buffer: 0
  enrich:
    concurrency: 8
    queue_limit: 64
    rate_limit: 100
    burst: 10
    retry:
      max_attempts: 3
      initial_backoff: 10ms
`)

	cfg, err := Load("ingest", WithConfigFile(path))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Environment != EnvProduction {
		t.Errorf("expected production, got %q", cfg.Environment)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Output != "stdout" {
		t.Errorf("unexpected logging config: %+v", cfg.Logging)
	}
	if cfg.Tracing.ServiceName != "ingest" || cfg.Tracing.ServiceVersion != "2.1.0" {
		t.Errorf("tracing should inherit identity from base, got %+v", cfg.Tracing)
	}
	if cfg.Tracing.SampleRate != 0.25 {
		t.Errorf("expected sample rate 0.25, got %v", cfg.Tracing.SampleRate)
	}
	if cfg.Metrics.Interval != 30*time.Second || cfg.Metrics.Environment != "production" {
		t.Errorf("unexpected metrics config: %+v", cfg.Metrics)
	}

	if !cfg.Monitor.Enabled || cfg.Monitor.Addr != "0.0.0.0:9191" || cfg.Monitor.ShutdownTimeout != 5*time.Second {
		t.Errorf("unexpected monitor config: %+v", cfg.Monitor)
	}

	parse := cfg.Stage("parse")
	if parse.ErrorPolicy != pipeline.PolicyForward {
		t.Errorf("expected forward policy, got %q", parse.ErrorPolicy)
	}
	if parse.Buffer == nil || *parse.Buffer != 0 {
		t.Errorf("expected explicit zero buffer, got %v", parse.Buffer)
	}

	enrich := cfg.Stage("enrich")
	if enrich.Concurrency != 8 || enrich.QueueLimit != 64 {
		t.Errorf("unexpected enrich config: %+v", enrich)
	}
	if enrich.Retry == nil || enrich.Retry.MaxAttempts != 3 || enrich.Retry.InitialBackoff != 10*time.Millisecond {
		t.Errorf("unexpected retry config: %+v", enrich.Retry)
	}
	if got := len(enrich.Options()); got != 4 {
		t.Errorf("expected 4 stage options, got %d", got)
	}

	if missing := cfg.Stage("unknown"); len(missing.Options()) != 0 {
		t.Errorf("unknown stage should yield no options, got %+v", missing)
	}
}

func TestLoadDefaultsNameFromService(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: warn\n")

	cfg, err := Load("billing", WithConfigFile(path))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Name != "billing" || cfg.Environment != EnvDevelopment {
		t.Errorf("unexpected identity %q %q", cfg.Name, cfg.Environment)
	}
	if cfg.Metrics.ServiceName != "billing" {
		t.Errorf("expected metrics service name billing, got %q", cfg.Metrics.ServiceName)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{
			name:    "unknown error policy",
			content: "stages:\n  parse:\n    error_policy: retry\n",
			errMsg:  "error_policy",
		},
		{
			name:    "negative concurrency",
			content: "stages:\n  parse:\n    concurrency: -1\n",
			errMsg:  "concurrency",
		},
		{
			name:    "sample rate above one",
			content: "tracing:\n  sample_rate: 2\n",
			errMsg:  "sample_rate",
		},
		{
			name:    "bad logging level",
			content: "logging:\n  level: loud\n",
			errMsg:  "logging.level",
		},
		{
			name:    "bad environment",
			content: "environment: qa\n",
			errMsg:  "environment",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.content)
			_, err := Load("svc", WithConfigFile(path))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.errMsg) {
				t.Errorf("expected error containing %q, got %q", tc.errMsg, err.Error())
			}
		})
	}
}

func TestLoadValidationErrorIsAppError(t *testing.T) {
	path := writeConfig(t, "stages:\n  parse:\n    burst: -3\n")
	_, err := Load("svc", WithConfigFile(path))
	if !errors.IsAppError(err) {
		t.Fatalf("expected AppError, got %T: %v", err, err)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := writeConfig(t, "stages: [unterminated\n")
	if _, err := Load("svc", WithConfigFile(path)); err == nil {
		t.Fatal("expected error for malformed YAML")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "name: from-file\ntracing:\n  endpoint: \"file:4318\"\n")
	t.Setenv("TRACING_ENDPOINT", "env:4318")

	cfg, err := Load("svc", WithConfigFile(path))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Tracing.Endpoint != "env:4318" {
		t.Errorf("expected env override, got %q", cfg.Tracing.Endpoint)
	}
	if cfg.Name != "from-file" {
		t.Errorf("expected name from file, got %q", cfg.Name)
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	content := "FLOWKIT_VERSION=9.9.9\nMONITOR_ADDR=127.0.0.1:9999\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}
	// Registered so the values loaded from the file are removed afterwards.
	t.Setenv("FLOWKIT_VERSION", "")
	t.Setenv("MONITOR_ADDR", "")
	os.Unsetenv("FLOWKIT_VERSION")
	os.Unsetenv("MONITOR_ADDR")

	cfg, err := Load("svc", WithConfigFile(filepath.Join(dir, "missing.yml")), WithEnvFile(envPath))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Version != "9.9.9" {
		t.Errorf("expected version from .env, got %q", cfg.Version)
	}
	if cfg.Monitor.Addr != "127.0.0.1:9999" {
		t.Errorf("expected monitor addr from .env, got %q", cfg.Monitor.Addr)
	}
}

func TestLoadIdentityEnvNames(t *testing.T) {
	path := writeConfig(t, "name: from-file\nenvironment: staging\n")
	t.Setenv("NAME", "shell-host")
	t.Setenv("FLOWKIT_ENV", "production")

	cfg, err := Load("svc", WithConfigFile(path))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Name != "from-file" {
		t.Errorf("NAME must not override the process name, got %q", cfg.Name)
	}
	if cfg.Environment != EnvProduction {
		t.Errorf("expected FLOWKIT_ENV override, got %q", cfg.Environment)
	}
}
