package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	EnvAPIURL   = "MRSUNKWN_API_URL"
	EnvToken    = "MRSUNKWN_TOKEN"
	EnvSubject  = "MRSUNKWN_SUBJECT"
	EnvLogLevel = "MRSUNKWN_LOG_LEVEL"
)

type Config struct {
	API       APIConfig       `yaml:"api"`
	Retry     RetryConfig     `yaml:"retry"`
	Channel   ChannelConfig   `yaml:"channel"`
	Poll      PollConfig      `yaml:"poll"`
	Session   SessionConfig   `yaml:"session"`
	Log       LogConfig       `yaml:"log"`
	DevServer DevServerConfig `yaml:"devserver"`
}

type APIConfig struct {
	BaseURL string            `yaml:"base_url"`
	Token   string            `yaml:"token"`
	Timeout time.Duration     `yaml:"timeout"` // 0 = no per-request deadline
	Headers map[string]string `yaml:"headers"`
}

type RetryConfig struct {
	StatusCodes   []int         `yaml:"status_codes"`
	Delay         time.Duration `yaml:"delay"`
	MaxAttempts   int           `yaml:"max_attempts"`
	BackoffFactor float64       `yaml:"backoff_factor"`
	MaxDelay      time.Duration `yaml:"max_delay"`
}

type ChannelConfig struct {
	// Origin is the HTTP origin the stream URL is derived from. Empty means
	// the API base URL.
	Origin            string        `yaml:"origin"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
	MaxReconnectDelay time.Duration `yaml:"max_reconnect_delay"`
	BackoffFactor     float64       `yaml:"backoff_factor"`
	MaxAttempts       int           `yaml:"max_attempts"` // 0 = unbounded
	PingInterval      time.Duration `yaml:"ping_interval"`
	PongTimeout       time.Duration `yaml:"pong_timeout"`
}

type PollConfig struct {
	RefreshInterval        time.Duration `yaml:"refresh_interval"`
	SessionRefreshInterval time.Duration `yaml:"session_refresh_interval"`
	AutoRefresh            bool          `yaml:"auto_refresh"`
}

type SessionConfig struct {
	Subject            string   `yaml:"subject"`
	FamilyID           string   `yaml:"family_id"`
	StudentID          string   `yaml:"student_id"`
	Subjects           []string `yaml:"subjects"`
	RecentEventsWindow int      `yaml:"recent_events_window"`
	HistoryWindow      int      `yaml:"history_window"`
	AssistantEnabled   bool     `yaml:"assistant_enabled"`
	LearningMode       string   `yaml:"learning_mode"`
	DifficultyLevel    int      `yaml:"difficulty_level"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
	File   string `yaml:"file"`
}

type DevServerConfig struct {
	Host          string        `yaml:"host"`
	Port          int           `yaml:"port"`
	FailEvery     int           `yaml:"fail_every"` // every Nth API request gets a 503; 0 = never
	EventInterval time.Duration `yaml:"event_interval"`
}

func defaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "http://127.0.0.1:8000",
		},
		Retry: RetryConfig{
			StatusCodes:   []int{503},
			Delay:         time.Second,
			MaxAttempts:   2,
			BackoffFactor: 1,
		},
		Channel: ChannelConfig{
			ReconnectDelay: 5 * time.Second,
			BackoffFactor:  1,
			PingInterval:   30 * time.Second,
			PongTimeout:    60 * time.Second,
		},
		Poll: PollConfig{
			RefreshInterval:        30 * time.Second,
			SessionRefreshInterval: 5 * time.Second,
			AutoRefresh:            true,
		},
		Session: SessionConfig{
			RecentEventsWindow: 50,
			HistoryWindow:      100,
			AssistantEnabled:   true,
			LearningMode:       "socratic",
			DifficultyLevel:    5,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		DevServer: DevServerConfig{
			Host:          "127.0.0.1",
			Port:          8000,
			EventInterval: 3 * time.Second,
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

// Load reads a YAML file over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return defaultConfig(), nil
	}
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return defaultConfig(), nil
	}
	return cfg, err
}

// LoadDotenv loads KEY=value pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are skipped.
func LoadDotenv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides file values with MRSUNKWN_* environment variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookup(EnvAPIURL); ok && v != "" {
		c.API.BaseURL = v
	}
	if v, ok := lookup(EnvToken); ok {
		c.API.Token = v
	}
	if v, ok := lookup(EnvSubject); ok && v != "" {
		c.Session.Subject = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	var errs []string
	if strings.TrimSpace(c.API.BaseURL) == "" {
		errs = append(errs, "api.base_url is empty")
	}
	if c.API.Timeout < 0 {
		errs = append(errs, "api.timeout is negative")
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, "retry.max_attempts must be at least 1")
	}
	if c.Retry.Delay < 0 {
		errs = append(errs, "retry.delay is negative")
	}
	if c.Channel.ReconnectDelay <= 0 {
		errs = append(errs, "channel.reconnect_delay must be positive")
	}
	if c.Channel.MaxAttempts < 0 {
		errs = append(errs, "channel.max_attempts is negative")
	}
	if c.Poll.RefreshInterval <= 0 {
		errs = append(errs, "poll.refresh_interval must be positive")
	}
	if c.Poll.SessionRefreshInterval <= 0 {
		errs = append(errs, "poll.session_refresh_interval must be positive")
	}
	if c.Session.RecentEventsWindow < 1 {
		errs = append(errs, "session.recent_events_window must be at least 1")
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// StreamOrigin returns the origin used to build the event stream URL.
func (c *Config) StreamOrigin() string {
	if c.Channel.Origin != "" {
		return c.Channel.Origin
	}
	return c.API.BaseURL
}

// DevServerAddr returns host:port for the development server.
func (c *Config) DevServerAddr() string {
	return fmt.Sprintf("%s:%d", c.DevServer.Host, c.DevServer.Port)
}
