package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chunkdl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: info\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, int64(8*1024*1024), cfg.Download.GetChunkSize())
	assert.Equal(t, 3, cfg.Download.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.Download.GetBaseBackoff())
	assert.Equal(t, 30*time.Second, cfg.Download.GetMaxBackoff())
	assert.Equal(t, 30*time.Second, cfg.Download.GetRequestTimeout())
	assert.Equal(t, 5*time.Second, cfg.Download.GetCheckpointInterval())
	assert.Equal(t, int64(0), cfg.Download.GetBandwidthLimit())
	assert.True(t, cfg.Download.Resume)
	assert.False(t, cfg.Download.Coalesce)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.True(t, cfg.Database.Enabled)
	assert.Equal(t, DefaultDatabasePath(), cfg.Database.Path)
	assert.Equal(t, 5*time.Second, cfg.Database.GetBusyTimeout())
	assert.Equal(t, 7*24*time.Hour, cfg.Maintenance.GetCheckpointMaxAge())
	assert.Equal(t, time.Hour, cfg.Maintenance.GetPruneInterval())
	assert.Empty(t, cfg.Status.BindAddr)
}

func TestLoad_FileValues(t *testing.T) {
	path := writeConfig(t, `
download:
  chunk_size: 1MiB
  max_retries: 5
  base_backoff: 1s
  max_backoff: 1m
  bandwidth_limit: 2MB
  coalesce: true
logging:
  level: debug
  format: json
database:
  path: /tmp/chunkdl-test.db
  busy_timeout_ms: 250
maintenance:
  checkpoint_max_age: 24h
status:
  bind_addr: 127.0.0.1:9090
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, int64(1024*1024), cfg.Download.GetChunkSize())
	assert.Equal(t, 5, cfg.Download.MaxRetries)
	assert.Equal(t, time.Second, cfg.Download.GetBaseBackoff())
	assert.Equal(t, time.Minute, cfg.Download.GetMaxBackoff())
	assert.Equal(t, int64(2_000_000), cfg.Download.GetBandwidthLimit())
	assert.True(t, cfg.Download.Coalesce)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "/tmp/chunkdl-test.db", cfg.Database.Path)
	assert.Equal(t, 250*time.Millisecond, cfg.Database.GetBusyTimeout())
	assert.Equal(t, 24*time.Hour, cfg.Maintenance.GetCheckpointMaxAge())
	assert.Equal(t, "127.0.0.1:9090", cfg.Status.BindAddr)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "download:\n  chunk_size: 1MiB\n")
	t.Setenv("CHUNKDL_DOWNLOAD_CHUNK_SIZE", "64KiB")
	t.Setenv("CHUNKDL_DOWNLOAD_MAX_RETRIES", "9")
	t.Setenv("CHUNKDL_LOGGING_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(64*1024), cfg.Download.GetChunkSize())
	assert.Equal(t, 9, cfg.Download.MaxRetries)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Download: DownloadConfig{
				ChunkSize:          "1MiB",
				BaseBackoff:        "1s",
				MaxBackoff:         "10s",
				RequestTimeout:     "30s",
				BandwidthLimit:     "0",
				CheckpointInterval: "5s",
			},
			Logging:     LoggingConfig{Level: "info", Format: "json"},
			Database:    DatabaseConfig{Enabled: true, Path: "x.db"},
			Maintenance: MaintenanceConfig{CheckpointMaxAge: "1h", PruneInterval: "1h"},
		}
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad chunk size", func(c *Config) { c.Download.ChunkSize = "lots" }},
		{"zero chunk size", func(c *Config) { c.Download.ChunkSize = "0" }},
		{"negative retries", func(c *Config) { c.Download.MaxRetries = -1 }},
		{"bad bandwidth", func(c *Config) { c.Download.BandwidthLimit = "fast" }},
		{"bad backoff", func(c *Config) { c.Download.BaseBackoff = "soon" }},
		{"bad max age", func(c *Config) { c.Maintenance.CheckpointMaxAge = "forever" }},
		{"missing db path", func(c *Config) { c.Database.Path = "" }},
		{"bad level", func(c *Config) { c.Logging.Level = "trace" }},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := valid()
	cfg.Database = DatabaseConfig{Enabled: false}
	assert.NoError(t, cfg.Validate(), "path not needed when disabled")
}
