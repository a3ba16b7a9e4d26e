package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/zjrosen/flowsync/internal/config"
	"github.com/zjrosen/flowsync/internal/log"
	"github.com/zjrosen/flowsync/internal/paths"
)

const envPrefix = "FLOWSYNC"

var (
	version   = "dev"
	cfgFile   string
	cfg       config.Config
	cfgErr    error
	debugFlag bool

	logCleanup func()
)

var rootCmd = &cobra.Command{
	Use:   "flowsync",
	Short: "Keep a directory of workflow definitions in sync with an orchestration service",
	Long: `flowsync pushes declarative workflow definitions (one YAML file per flow)
to a Kestra-compatible orchestration API and publishes a metadata projection of
each flow to a secondary store. Unchanged files are skipped using a content
fingerprint cache.

Run "flowsync sync" for a one-shot pass or "flowsync watch" to follow changes.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(*cobra.Command, []string) {
		if logCleanup != nil {
			logCleanup()
			logCleanup = nil
		}
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: .flowsync/config.yaml, then ~/.config/flowsync/config.yaml)")
	rootCmd.PersistentFlags().StringP("root", "r", "", "definitions directory (overrides config)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "log format: console or json")
	rootCmd.PersistentFlags().String("log-file", "", "append logs to this file")
	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false, "shorthand for --log-level debug")
}

func initConfig() {
	v := viper.GetViper()
	bindFlags(v)
	cfg, cfgErr = loadConfig(v, cfgFile)
}

// bindFlags maps command line flags onto config keys. It runs at execution
// time, once every subcommand has registered its flags.
func bindFlags(v *viper.Viper) {
	bindings := []struct {
		key   string
		flags interface{ Lookup(string) *pflag.Flag }
		name  string
	}{
		{"root", rootCmd.PersistentFlags(), "root"},
		{"log.level", rootCmd.PersistentFlags(), "log-level"},
		{"log.format", rootCmd.PersistentFlags(), "log-format"},
		{"log.file", rootCmd.PersistentFlags(), "log-file"},
		{"watch.status_addr", watchCmd.Flags(), "status-addr"},
		{"watch.debounce", watchCmd.Flags(), "debounce"},
	}
	for _, b := range bindings {
		if f := b.flags.Lookup(b.name); f != nil {
			_ = v.BindPFlag(b.key, f)
		}
	}
}

// setDefaults registers every key so environment variables can override
// keys that are absent from the config file.
func setDefaults(v *viper.Viper) {
	d := config.Defaults()
	v.SetDefault("root", d.Root)
	v.SetDefault("extensions", d.Extensions)
	v.SetDefault("recursive", d.Recursive)
	v.SetDefault("cache.location", d.Cache.Location)

	v.SetDefault("remote.url", d.Remote.URL)
	v.SetDefault("remote.auth", d.Remote.Auth)
	v.SetDefault("remote.username", "")
	v.SetDefault("remote.password", "")
	v.SetDefault("remote.token", "")
	v.SetDefault("remote.timeout", d.Remote.Timeout)
	v.SetDefault("remote.request_delay", d.Remote.RequestDelay)
	v.SetDefault("remote.body_format", d.Remote.BodyFormat)
	v.SetDefault("remote.update_statuses", d.Remote.UpdateStatuses)

	v.SetDefault("metadata.backend", d.Metadata.Backend)
	v.SetDefault("metadata.sqlite_path", d.Metadata.SQLitePath)
	v.SetDefault("metadata.redis_addr", d.Metadata.RedisAddr)
	v.SetDefault("metadata.redis_password", "")
	v.SetDefault("metadata.redis_db", d.Metadata.RedisDB)
	v.SetDefault("metadata.redis_prefix", d.Metadata.RedisPrefix)
	v.SetDefault("metadata.timeout", d.Metadata.Timeout)

	v.SetDefault("watch.debounce", d.Watch.Debounce)
	v.SetDefault("watch.initial_sync", d.Watch.InitialSync)
	v.SetDefault("watch.status_addr", d.Watch.StatusAddr)
	v.SetDefault("watch.status_ttl", d.Watch.StatusTTL)

	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file_path", d.Tracing.FilePath)
	v.SetDefault("tracing.file_truncate", d.Tracing.FileTruncate)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)

	v.SetDefault("metrics.statsd_addr", d.Metrics.StatsdAddr)
	v.SetDefault("metrics.sample_rate", d.Metrics.SampleRate)
	v.SetDefault("metrics.tags", d.Metrics.Tags)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)
}

// loadConfig reads configuration into a fresh Config. Lookup order:
//  1. explicit path (--config)
//  2. .flowsync/config.yaml (current directory)
//  3. ~/.config/flowsync/config.yaml (user config)
//
// No config file at all is not an error; defaults and FLOWSYNC_* env apply.
func loadConfig(v *viper.Viper, path string) (config.Config, error) {
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	local := filepath.Join(paths.StateDir, "config.yaml")
	switch {
	case path != "":
		v.SetConfigFile(path)
	case fileExists(local):
		v.SetConfigFile(local)
	default:
		if dir := paths.UserConfigDir(); dir != "" {
			v.AddConfigPath(dir)
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return config.Config{}, fmt.Errorf("reading config: %w", err)
		}
	}

	c := config.Defaults()
	if err := v.Unmarshal(&c); err != nil {
		return config.Config{}, fmt.Errorf("decoding config: %w", err)
	}
	return c, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// setup runs before every subcommand: it surfaces config errors and starts
// the logger.
func setup(cmd *cobra.Command, _ []string) error {
	if cfgErr != nil {
		return cfgErr
	}
	if debugFlag {
		cfg.Log.Level = "debug"
	}

	opts := cfg.Log.LogOptions()
	opts.Output = cmd.ErrOrStderr()
	cleanup, err := log.Init(opts)
	if err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	logCleanup = cleanup

	log.Debug(log.CatConfig, "configuration loaded",
		"file", viper.ConfigFileUsed(),
		"root", cfg.Root,
		"remote", cfg.Remote.URL,
		"metadata", cfg.Metadata.Backend)
	return nil
}

// requireRemote enforces the startup checks for commands that talk to the
// orchestration API. Missing credentials are fatal.
func requireRemote() error {
	if err := config.Validate(cfg); err != nil {
		if errors.Is(err, config.ErrMissingCredentials) {
			log.ErrorErr(log.CatConfig, "missing credentials", err)
			return fmt.Errorf("%w (set them in the config file or via %s_REMOTE_* environment variables)", err, envPrefix)
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
