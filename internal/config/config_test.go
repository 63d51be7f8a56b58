package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	yaml := `
api:
  base_url: "https://school.example.com"
  timeout: 15s
  headers:
    X-Family: f1
retry:
  max_attempts: 4
  backoff_factor: 2
  max_delay: 8s
channel:
  reconnect_delay: 2s
  max_attempts: 10
session:
  subject: "student-7"
  subjects: [math, art]
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.API.BaseURL != "https://school.example.com" {
		t.Errorf("API.BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.API.Timeout != 15*time.Second {
		t.Errorf("API.Timeout = %v, want 15s", cfg.API.Timeout)
	}
	if cfg.API.Headers["X-Family"] != "f1" {
		t.Errorf("API.Headers = %v", cfg.API.Headers)
	}
	if cfg.Retry.MaxAttempts != 4 || cfg.Retry.BackoffFactor != 2 || cfg.Retry.MaxDelay != 8*time.Second {
		t.Errorf("Retry = %+v", cfg.Retry)
	}
	if cfg.Channel.ReconnectDelay != 2*time.Second || cfg.Channel.MaxAttempts != 10 {
		t.Errorf("Channel = %+v", cfg.Channel)
	}
	if cfg.Session.Subject != "student-7" || len(cfg.Session.Subjects) != 2 {
		t.Errorf("Session = %+v", cfg.Session)
	}

	// Defaults should still be applied for unspecified fields.
	if cfg.Retry.Delay != time.Second {
		t.Errorf("Retry.Delay = %v, want default 1s", cfg.Retry.Delay)
	}
	if cfg.Poll.RefreshInterval != 30*time.Second {
		t.Errorf("Poll.RefreshInterval = %v, want default 30s", cfg.Poll.RefreshInterval)
	}
	if len(cfg.Retry.StatusCodes) != 1 || cfg.Retry.StatusCodes[0] != 503 {
		t.Errorf("Retry.StatusCodes = %v, want [503]", cfg.Retry.StatusCodes)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("Load() on missing file should return error")
	}
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("LoadOrDefault() error: %v", err)
	}
	if cfg.Channel.ReconnectDelay != 5*time.Second {
		t.Errorf("Channel.ReconnectDelay = %v, want default 5s", cfg.Channel.ReconnectDelay)
	}
	if cfg.Channel.MaxAttempts != 0 {
		t.Errorf("Channel.MaxAttempts = %d, want default 0 (unbounded)", cfg.Channel.MaxAttempts)
	}
	if cfg.Retry.MaxAttempts != 2 {
		t.Errorf("Retry.MaxAttempts = %d, want default 2", cfg.Retry.MaxAttempts)
	}
	if cfg.API.Timeout != 0 {
		t.Errorf("API.Timeout = %v, want no deadline", cfg.API.Timeout)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(cfgPath, []byte(":::not valid yaml"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(cfgPath)
	if err == nil {
		t.Fatal("Load() with invalid YAML should return error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"defaults", func(*Config) {}, ""},
		{"empty base url", func(c *Config) { c.API.BaseURL = " " }, "api.base_url"},
		{"zero attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }, "retry.max_attempts"},
		{"zero reconnect", func(c *Config) { c.Channel.ReconnectDelay = 0 }, "channel.reconnect_delay"},
		{"zero refresh", func(c *Config) { c.Poll.RefreshInterval = 0 }, "poll.refresh_interval"},
		{"negative channel attempts", func(c *Config) { c.Channel.MaxAttempts = -1 }, "channel.max_attempts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.want == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvAPIURL:   "http://override:9000",
		EnvToken:    "tok",
		EnvSubject:  "kid-1",
		EnvLogLevel: "debug",
	}
	cfg := defaultConfig()
	cfg.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	if cfg.API.BaseURL != "http://override:9000" || cfg.API.Token != "tok" {
		t.Errorf("API = %+v", cfg.API)
	}
	if cfg.Session.Subject != "kid-1" || cfg.Log.Level != "debug" {
		t.Errorf("Session.Subject = %q, Log.Level = %q", cfg.Session.Subject, cfg.Log.Level)
	}
}

func TestLoadDotenv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("MRSUNKWN_TEST_DOTENV=from-file\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MRSUNKWN_TEST_DOTENV", "")
	os.Unsetenv("MRSUNKWN_TEST_DOTENV")

	if err := LoadDotenv(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("LoadDotenv() error: %v", err)
	}
	if got := os.Getenv("MRSUNKWN_TEST_DOTENV"); got != "from-file" {
		t.Errorf("MRSUNKWN_TEST_DOTENV = %q, want from-file", got)
	}
}

func TestStreamOrigin(t *testing.T) {
	cfg := defaultConfig()
	if got := cfg.StreamOrigin(); got != cfg.API.BaseURL {
		t.Errorf("StreamOrigin() = %q, want base url", got)
	}
	cfg.Channel.Origin = "https://push.example.com"
	if got := cfg.StreamOrigin(); got != "https://push.example.com" {
		t.Errorf("StreamOrigin() = %q", got)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf)
	if err != nil {
		t.Fatal(err)
	}
	defer closer.Close()

	logger.Info("hidden")
	logger.Warn("shown", "k", "v")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"k":"v"`) {
		t.Errorf("log output = %q", out)
	}

	if _, _, err := (LogConfig{Level: "loud"}).NewLogger(&buf); err == nil {
		t.Error("unknown level accepted")
	}
	if _, _, err := (LogConfig{Format: "xml"}).NewLogger(&buf); err == nil {
		t.Error("unknown format accepted")
	}
}

func TestExampleConfigIsValid(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "mrsunkwn.example.yaml"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if cfg.Channel.ReconnectDelay != 5*time.Second || cfg.Retry.MaxAttempts != 2 {
		t.Errorf("example drifted from the documented defaults: %+v %+v", cfg.Channel, cfg.Retry)
	}
}
