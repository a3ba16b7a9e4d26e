// Package config provides configuration types and defaults for flowsync.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zjrosen/flowsync/internal/log"
	"github.com/zjrosen/flowsync/internal/metrics"
	"github.com/zjrosen/flowsync/internal/paths"
	"github.com/zjrosen/flowsync/internal/remote"
	"github.com/zjrosen/flowsync/internal/templates"
	"github.com/zjrosen/flowsync/internal/tracing"
)

// ErrMissingCredentials is returned by Validate when the selected auth mode
// has no credentials configured. It is fatal at startup.
var ErrMissingCredentials = errors.New("missing remote credentials")

// Metadata backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendNone   = "none"
)

// Config holds all configuration options for flowsync.
type Config struct {
	Root       string         `mapstructure:"root"`
	Extensions []string       `mapstructure:"extensions"`
	Recursive  bool           `mapstructure:"recursive"`
	Cache      CacheConfig    `mapstructure:"cache"`
	Remote     RemoteConfig   `mapstructure:"remote"`
	Metadata   MetadataConfig `mapstructure:"metadata"`
	Watch      WatchConfig    `mapstructure:"watch"`
	Tracing    tracing.Config `mapstructure:"tracing"`
	Metrics    MetricsConfig  `mapstructure:"metrics"`
	Log        LogConfig      `mapstructure:"log"`

	// Flags toggles opt-in behaviour by name, e.g. {"prune-cache": true}.
	Flags map[string]bool `mapstructure:"flags"`
}

// CacheConfig locates the fingerprint cache.
type CacheConfig struct {
	// Location is a file path or a blob bucket URL with a key parameter,
	// e.g. "s3://bucket?region=eu-west-1&key=flowsync/cache.json".
	Location string `mapstructure:"location"`
}

// RemoteConfig holds the orchestration API settings. Credentials have no
// defaults and must come from the config file or FLOWSYNC_REMOTE_* env.
type RemoteConfig struct {
	URL            string        `mapstructure:"url"`
	Auth           string        `mapstructure:"auth"` // "basic" (default) or "bearer"
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	Token          string        `mapstructure:"token"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RequestDelay   time.Duration `mapstructure:"request_delay"`
	BodyFormat     string        `mapstructure:"body_format"` // "json" (default) or "yaml"
	UpdateStatuses []int         `mapstructure:"update_statuses"`
}

// MetadataConfig selects and configures the metadata store.
type MetadataConfig struct {
	Backend       string        `mapstructure:"backend"` // sqlite (default), redis, none
	SQLitePath    string        `mapstructure:"sqlite_path"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	RedisPrefix   string        `mapstructure:"redis_prefix"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// WatchConfig holds watch mode settings.
type WatchConfig struct {
	Debounce    time.Duration `mapstructure:"debounce"`
	InitialSync bool          `mapstructure:"initial_sync"`
	StatusAddr  string        `mapstructure:"status_addr"` // empty disables the status server
	StatusTTL   time.Duration `mapstructure:"status_ttl"`
}

// MetricsConfig configures StatsD emission.
type MetricsConfig struct {
	StatsdAddr string   `mapstructure:"statsd_addr"`
	SampleRate float64  `mapstructure:"sample_rate"`
	Tags       []string `mapstructure:"tags"`
}

// LogConfig configures the global logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // console (default) or json
	File   string `mapstructure:"file"`
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		Root:       "kestra/workflows",
		Extensions: append([]string(nil), paths.DefaultExtensions...),
		Recursive:  true,
		Cache: CacheConfig{
			Location: filepath.Join(paths.StateDir, "workflow_cache.json"),
		},
		Remote: RemoteConfig{
			URL:            "http://localhost:8080",
			Auth:           remote.AuthBasic,
			Timeout:        remote.DefaultTimeout,
			RequestDelay:   time.Second,
			BodyFormat:     remote.BodyJSON,
			UpdateStatuses: []int{409, 422},
		},
		Metadata: MetadataConfig{
			Backend:     BackendSQLite,
			SQLitePath:  filepath.Join(paths.StateDir, "metadata.db"),
			RedisAddr:   "localhost:6379",
			RedisPrefix: "flowsync:automation:",
			Timeout:     10 * time.Second,
		},
		Watch: WatchConfig{
			Debounce:    500 * time.Millisecond,
			InitialSync: true,
			StatusTTL:   time.Hour,
		},
		Tracing: tracing.DefaultConfig(),
		Metrics: MetricsConfig{
			SampleRate: 1.0,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// DefaultTracesFilePath returns ~/.config/flowsync/traces/traces.jsonl, or
// "" if the home directory is unavailable.
func DefaultTracesFilePath() string {
	dir := paths.UserConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "traces", "traces.jsonl")
}

// Validate checks the whole configuration. Missing credentials wrap
// ErrMissingCredentials.
func Validate(c Config) error {
	if c.Root == "" {
		return fmt.Errorf("root is required")
	}
	if err := ValidateRemote(c.Remote); err != nil {
		return err
	}
	if err := ValidateMetadata(c.Metadata); err != nil {
		return err
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative, got %v", c.Watch.Debounce)
	}
	if err := c.Tracing.Validate(); err != nil {
		return err
	}
	if c.Metrics.SampleRate < 0 || c.Metrics.SampleRate > 1 {
		return fmt.Errorf("metrics.sample_rate must be between 0.0 and 1.0, got %v", c.Metrics.SampleRate)
	}
	switch c.Log.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("log.format must be \"console\" or \"json\", got %q", c.Log.Format)
	}
	return nil
}

// ValidateRemote checks the orchestration API settings.
func ValidateRemote(r RemoteConfig) error {
	if r.URL == "" {
		return fmt.Errorf("remote.url is required")
	}
	switch r.Auth {
	case "", remote.AuthBasic:
		var missing []string
		if r.Username == "" {
			missing = append(missing, "remote.username")
		}
		if r.Password == "" {
			missing = append(missing, "remote.password")
		}
		if len(missing) > 0 {
			return fmt.Errorf("%w: basic auth requires %v", ErrMissingCredentials, missing)
		}
	case remote.AuthBearer:
		if r.Token == "" {
			return fmt.Errorf("%w: bearer auth requires remote.token", ErrMissingCredentials)
		}
	default:
		return fmt.Errorf("remote.auth must be \"basic\" or \"bearer\", got %q", r.Auth)
	}
	switch r.BodyFormat {
	case "", remote.BodyJSON, remote.BodyYAML:
	default:
		return fmt.Errorf("remote.body_format must be \"json\" or \"yaml\", got %q", r.BodyFormat)
	}
	if r.Timeout < 0 || r.RequestDelay < 0 {
		return fmt.Errorf("remote.timeout and remote.request_delay must not be negative")
	}
	for _, s := range r.UpdateStatuses {
		if s < 100 || s > 599 {
			return fmt.Errorf("remote.update_statuses: %d is not an HTTP status", s)
		}
	}
	return nil
}

// ValidateMetadata checks the metadata backend settings.
func ValidateMetadata(m MetadataConfig) error {
	switch m.Backend {
	case "", BackendSQLite:
		if m.SQLitePath == "" {
			return fmt.Errorf("metadata.sqlite_path is required for the sqlite backend")
		}
	case BackendRedis:
		if m.RedisAddr == "" {
			return fmt.Errorf("metadata.redis_addr is required for the redis backend")
		}
	case BackendNone:
	default:
		return fmt.Errorf("metadata.backend must be \"sqlite\", \"redis\", or \"none\", got %q", m.Backend)
	}
	return nil
}

// ClientOptions converts the remote settings to client options.
func (r RemoteConfig) ClientOptions(userAgent string) remote.Options {
	return remote.Options{
		BaseURL:    r.URL,
		Auth:       r.Auth,
		Username:   r.Username,
		Password:   r.Password,
		Token:      r.Token,
		Timeout:    r.Timeout,
		BodyFormat: r.BodyFormat,
		UserAgent:  userAgent,
	}
}

// Client converts to the metrics client config.
func (m MetricsConfig) Client() metrics.Config {
	return metrics.Config{Addr: m.StatsdAddr, SampleRate: m.SampleRate, Tags: m.Tags}
}

// LogOptions converts to logger options.
func (l LogConfig) LogOptions() log.Options {
	return log.Options{Level: log.ParseLevel(l.Level), Format: l.Format, File: l.File}
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	redact := func(s string) string {
		if s == "" {
			return ""
		}
		return "********"
	}
	c.Remote.Password = redact(c.Remote.Password)
	c.Remote.Token = redact(c.Remote.Token)
	c.Metadata.RedisPassword = redact(c.Metadata.RedisPassword)
	c.Extensions = append([]string(nil), c.Extensions...)
	return c
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return templates.DefaultConfig()
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
