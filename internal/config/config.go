// Package config provides the configuration schema and loader for the
// VoiceClear relay server.
package config

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by Load when the corresponding field is absent.
const (
	DefaultListenAddr = ":3001"

	// DefaultBackendURL is the built-in inference backend used until an
	// admin replaces it at runtime.
	DefaultBackendURL = "http://localhost:5000"

	// DefaultMonitorIntervalMinutes is how often each monitored backend
	// is probed.
	DefaultMonitorIntervalMinutes = 60

	// DefaultProbeTimeoutSeconds bounds a single health probe.
	DefaultProbeTimeoutSeconds = 10

	// DefaultFailureThreshold is the number of consecutive probe failures
	// before a backend is marked unhealthy and a notification fires.
	DefaultFailureThreshold = 1

	// DefaultCooldownMinutes is the minimum gap between two notifications
	// sharing the same (severity, title, target) key.
	DefaultCooldownMinutes = 180

	// DefaultPollIntervalSeconds is how often a running task is polled
	// for status.
	DefaultPollIntervalSeconds = 2

	// DefaultSessionTTLHours is how long finished task sessions are kept
	// before cleanup.
	DefaultSessionTTLHours = 24

	// DefaultUploadBurst is the upload rate limiter burst size.
	DefaultUploadBurst = 5

	// DefaultUploadsPerMinute is the sustained upload rate limit.
	DefaultUploadsPerMinute = 30
)

// LogLevel controls log verbosity for the relay server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for the relay server.
// It is typically loaded from a YAML file using Load or LoadFromReader.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Backend BackendConfig `yaml:"backend"`
	Admin   AdminConfig   `yaml:"admin"`
	Monitor MonitorConfig `yaml:"monitor"`
	Notify  NotifyConfig  `yaml:"notify"`
	Tasks   TasksConfig   `yaml:"tasks"`
	Samples SamplesConfig `yaml:"samples"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the relay listens on (e.g., ":3001").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// BackendConfig holds settings for the external inference backend.
type BackendConfig struct {
	// DefaultURL is the inference backend base URL used until an admin
	// replaces it via POST /api/config.
	DefaultURL string `yaml:"default_url"`

	// Description is a free-text label for the default backend.
	Description string `yaml:"description"`
}

// AdminConfig holds the admin credential for runtime configuration changes.
type AdminConfig struct {
	// Password is the shared secret checked by POST /api/config.
	// The VOICECLEAR_ADMIN_PASSWORD environment variable overrides it.
	Password string `yaml:"password"`
}

// MonitorConfig holds health monitor settings.
type MonitorConfig struct {
	// IntervalMinutes is the gap between scheduled probes per URL.
	IntervalMinutes int `yaml:"interval_minutes"`

	// ProbeTimeoutSeconds bounds a single health probe request.
	ProbeTimeoutSeconds int `yaml:"probe_timeout_seconds"`

	// FailureThreshold is how many consecutive failures flip a backend
	// to unhealthy.
	FailureThreshold int `yaml:"failure_threshold"`
}

// Interval returns the probe interval as a duration.
func (m MonitorConfig) Interval() time.Duration {
	return time.Duration(m.IntervalMinutes) * time.Minute
}

// ProbeTimeout returns the probe timeout as a duration.
func (m MonitorConfig) ProbeTimeout() time.Duration {
	return time.Duration(m.ProbeTimeoutSeconds) * time.Second
}

// NotifyConfig holds notification transport settings. Both transports are
// optional; with neither configured every notification is a logged no-op.
type NotifyConfig struct {
	// CooldownMinutes is the minimum gap between notifications sharing
	// the same key.
	CooldownMinutes int `yaml:"cooldown_minutes"`

	Email   EmailConfig   `yaml:"email"`
	Discord DiscordConfig `yaml:"discord"`
}

// Cooldown returns the notification cooldown as a duration.
func (n NotifyConfig) Cooldown() time.Duration {
	return time.Duration(n.CooldownMinutes) * time.Minute
}

// EmailConfig holds SMTP relay settings for operator email.
type EmailConfig struct {
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
}

// Configured reports whether enough fields are set to attempt delivery.
func (e EmailConfig) Configured() bool {
	return e.Host != "" && e.From != "" && len(e.To) > 0
}

// DiscordConfig holds the Discord webhook target for operator chat alerts.
type DiscordConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

// Configured reports whether a webhook target is set.
func (d DiscordConfig) Configured() bool {
	return d.WebhookURL != ""
}

// TasksConfig holds task workflow settings.
type TasksConfig struct {
	// PollIntervalSeconds is how often a submitted task is polled.
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`

	// SessionTTLHours is how long finished sessions are retained.
	SessionTTLHours int `yaml:"session_ttl_hours"`

	// UploadsPerMinute is the sustained upload rate limit.
	UploadsPerMinute int `yaml:"uploads_per_minute"`

	// UploadBurst is the upload rate limiter burst size.
	UploadBurst int `yaml:"upload_burst"`
}

// PollInterval returns the task poll interval as a duration.
func (t TasksConfig) PollInterval() time.Duration {
	return time.Duration(t.PollIntervalSeconds) * time.Second
}

// SessionTTL returns the session retention period as a duration.
func (t TasksConfig) SessionTTL() time.Duration {
	return time.Duration(t.SessionTTLHours) * time.Hour
}

// SamplesConfig points at the bundled demo audio files.
type SamplesConfig struct {
	Basic   string `yaml:"basic"`
	Complex string `yaml:"complex"`
}

// Load reads the YAML configuration file at path and returns a validated
// Config with defaults applied.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// environment overrides, and validates the result. Useful in tests where
// configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = DefaultListenAddr
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
	if c.Backend.DefaultURL == "" {
		c.Backend.DefaultURL = DefaultBackendURL
	}
	if c.Monitor.IntervalMinutes == 0 {
		c.Monitor.IntervalMinutes = DefaultMonitorIntervalMinutes
	}
	if c.Monitor.ProbeTimeoutSeconds == 0 {
		c.Monitor.ProbeTimeoutSeconds = DefaultProbeTimeoutSeconds
	}
	if c.Monitor.FailureThreshold == 0 {
		c.Monitor.FailureThreshold = DefaultFailureThreshold
	}
	if c.Notify.CooldownMinutes == 0 {
		c.Notify.CooldownMinutes = DefaultCooldownMinutes
	}
	if c.Notify.Email.Port == 0 {
		c.Notify.Email.Port = 587
	}
	if c.Tasks.PollIntervalSeconds == 0 {
		c.Tasks.PollIntervalSeconds = DefaultPollIntervalSeconds
	}
	if c.Tasks.SessionTTLHours == 0 {
		c.Tasks.SessionTTLHours = DefaultSessionTTLHours
	}
	if c.Tasks.UploadsPerMinute == 0 {
		c.Tasks.UploadsPerMinute = DefaultUploadsPerMinute
	}
	if c.Tasks.UploadBurst == 0 {
		c.Tasks.UploadBurst = DefaultUploadBurst
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("VOICECLEAR_ADMIN_PASSWORD"); v != "" {
		c.Admin.Password = v
	}
	if v := os.Getenv("VOICECLEAR_SMTP_PASSWORD"); v != "" {
		c.Notify.Email.Password = v
	}
	if v := os.Getenv("VOICECLEAR_DISCORD_WEBHOOK"); v != "" {
		c.Notify.Discord.WebhookURL = v
	}
}

// Validate checks that the configuration contains a coherent set of values.
func (c *Config) Validate() error {
	if !c.Server.LogLevel.IsValid() {
		return fmt.Errorf("config: invalid log level %q", c.Server.LogLevel)
	}
	if err := validateHTTPURL(c.Backend.DefaultURL); err != nil {
		return fmt.Errorf("config: backend default_url: %w", err)
	}
	if c.Admin.Password == "" {
		return fmt.Errorf("config: admin password is required (set admin.password or VOICECLEAR_ADMIN_PASSWORD)")
	}
	if c.Monitor.IntervalMinutes < 0 || c.Monitor.ProbeTimeoutSeconds < 0 {
		return fmt.Errorf("config: monitor intervals must be positive")
	}
	if c.Monitor.FailureThreshold < 1 {
		return fmt.Errorf("config: failure_threshold must be at least 1")
	}
	if c.Notify.Discord.Configured() {
		if err := validateHTTPURL(c.Notify.Discord.WebhookURL); err != nil {
			return fmt.Errorf("config: discord webhook_url: %w", err)
		}
	}
	return nil
}

// validateHTTPURL checks that raw parses as an absolute http(s) URL.
func validateHTTPURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("url cannot be empty")
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url format: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("url must use http or https (got %q)", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("url must include a hostname")
	}
	return nil
}
