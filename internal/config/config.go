package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. CHUNKDL_DOWNLOAD_CHUNK_SIZE
const EnvPrefix = "CHUNKDL"

// Config represents the entire application configuration
type Config struct {
	Download    DownloadConfig    `mapstructure:"download"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Status      StatusConfig      `mapstructure:"status"`
}

// DownloadConfig contains download engine settings
type DownloadConfig struct {
	ChunkSize           string `mapstructure:"chunk_size"` // human bytes, e.g. "8MiB"
	MaxRetries          int    `mapstructure:"max_retries"`
	BaseBackoff         string `mapstructure:"base_backoff"`
	MaxBackoff          string `mapstructure:"max_backoff"`
	RequestTimeout      string `mapstructure:"request_timeout"`
	BandwidthLimit      string `mapstructure:"bandwidth_limit"` // bytes per second, "0" disables
	Coalesce            bool   `mapstructure:"coalesce"`
	Resume              bool   `mapstructure:"resume"`
	CheckpointInterval  string `mapstructure:"checkpoint_interval"`
	MaxIdleConnsPerHost int    `mapstructure:"max_idle_conns_per_host"`
	UserAgent           string `mapstructure:"user_agent"`
	SkipTLSVerify       bool   `mapstructure:"skip_tls_verify"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig contains checkpoint database settings
type DatabaseConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Path          string `mapstructure:"path"`
	BusyTimeoutMs int    `mapstructure:"busy_timeout_ms"`
}

// MaintenanceConfig contains checkpoint cleanup settings
type MaintenanceConfig struct {
	CheckpointMaxAge string `mapstructure:"checkpoint_max_age"`
	PruneInterval    string `mapstructure:"prune_interval"`
}

// StatusConfig contains the optional status server settings
type StatusConfig struct {
	BindAddr string `mapstructure:"bind_addr"` // empty disables
}

// DefaultDatabasePath returns the checkpoint database location under the
// user cache directory
func DefaultDatabasePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "chunkdl", "checkpoints.db")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("download.chunk_size", "8MiB")
	v.SetDefault("download.max_retries", 3)
	v.SetDefault("download.base_backoff", "500ms")
	v.SetDefault("download.max_backoff", "30s")
	v.SetDefault("download.request_timeout", "30s")
	v.SetDefault("download.bandwidth_limit", "0")
	v.SetDefault("download.coalesce", false)
	v.SetDefault("download.resume", true)
	v.SetDefault("download.checkpoint_interval", "5s")
	v.SetDefault("download.max_idle_conns_per_host", 50)
	v.SetDefault("download.user_agent", "chunkdl")
	v.SetDefault("download.skip_tls_verify", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("database.enabled", true)
	v.SetDefault("database.path", DefaultDatabasePath())
	v.SetDefault("database.busy_timeout_ms", 5000)
	v.SetDefault("maintenance.checkpoint_max_age", "168h")
	v.SetDefault("maintenance.prune_interval", "1h")
	v.SetDefault("status.bind_addr", "")
}

// Load reads configuration from configPath, or from chunkdl.yaml in the
// working or user config directory when configPath is empty. Environment
// variables prefixed with CHUNKDL_ override file values.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("chunkdl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "chunkdl"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	size, err := parseBytes(c.Download.ChunkSize)
	if err != nil {
		return fmt.Errorf("invalid download.chunk_size: %w", err)
	}
	if size <= 0 {
		return fmt.Errorf("download.chunk_size must be positive")
	}
	if c.Download.MaxRetries < 0 {
		return fmt.Errorf("download.max_retries must not be negative")
	}
	if _, err := parseBytes(c.Download.BandwidthLimit); err != nil {
		return fmt.Errorf("invalid download.bandwidth_limit: %w", err)
	}

	durations := map[string]string{
		"download.base_backoff":          c.Download.BaseBackoff,
		"download.max_backoff":           c.Download.MaxBackoff,
		"download.request_timeout":       c.Download.RequestTimeout,
		"download.checkpoint_interval":   c.Download.CheckpointInterval,
		"maintenance.checkpoint_max_age": c.Maintenance.CheckpointMaxAge,
		"maintenance.prune_interval":     c.Maintenance.PruneInterval,
	}
	for key, value := range durations {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}

	if c.Database.Enabled && c.Database.Path == "" {
		return fmt.Errorf("database.path is required when the database is enabled")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
		// Valid formats
	default:
		return fmt.Errorf("invalid logging.format: %s", c.Logging.Format)
	}

	return nil
}

func parseBytes(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	return int64(n), nil
}

// GetChunkSize returns the chunk size in bytes
func (c *DownloadConfig) GetChunkSize() int64 {
	n, _ := parseBytes(c.ChunkSize)
	if n <= 0 {
		return 8 * 1024 * 1024 // 8MiB default
	}
	return n
}

// GetBandwidthLimit returns the bandwidth cap in bytes per second, 0 if
// unlimited
func (c *DownloadConfig) GetBandwidthLimit() int64 {
	n, _ := parseBytes(c.BandwidthLimit)
	return n
}

// GetBaseBackoff returns the base retry delay as time.Duration
func (c *DownloadConfig) GetBaseBackoff() time.Duration {
	d, _ := time.ParseDuration(c.BaseBackoff)
	if d == 0 {
		return 500 * time.Millisecond
	}
	return d
}

// GetMaxBackoff returns the retry delay cap as time.Duration
func (c *DownloadConfig) GetMaxBackoff() time.Duration {
	d, _ := time.ParseDuration(c.MaxBackoff)
	if d == 0 {
		return 30 * time.Second
	}
	return d
}

// GetRequestTimeout returns the response header timeout as time.Duration
func (c *DownloadConfig) GetRequestTimeout() time.Duration {
	d, _ := time.ParseDuration(c.RequestTimeout)
	if d == 0 {
		return 30 * time.Second
	}
	return d
}

// GetCheckpointInterval returns the minimum time between checkpoint writes
func (c *DownloadConfig) GetCheckpointInterval() time.Duration {
	d, _ := time.ParseDuration(c.CheckpointInterval)
	if d == 0 {
		return 5 * time.Second
	}
	return d
}

// GetBusyTimeout returns the SQLite busy timeout as time.Duration
func (c *DatabaseConfig) GetBusyTimeout() time.Duration {
	if c.BusyTimeoutMs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.BusyTimeoutMs) * time.Millisecond
}

// GetCheckpointMaxAge returns how long untouched checkpoints are kept
func (c *MaintenanceConfig) GetCheckpointMaxAge() time.Duration {
	d, _ := time.ParseDuration(c.CheckpointMaxAge)
	if d == 0 {
		return 7 * 24 * time.Hour
	}
	return d
}

// GetPruneInterval returns how often checkpoints are pruned
func (c *MaintenanceConfig) GetPruneInterval() time.Duration {
	d, _ := time.ParseDuration(c.PruneInterval)
	if d == 0 {
		return time.Hour
	}
	return d
}
