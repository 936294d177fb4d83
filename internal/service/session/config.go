package session

import (
	"fmt"
	"io"
	"time"

	"github.com/vertextoedge/chunkdl/internal/domain"
)

// Config contains per-session download configuration
type Config struct {
	// ChunkSize is the maximum number of bytes requested per fetch
	ChunkSize int64

	// MaxRetries is the number of retries allowed per chunk after the
	// first attempt. The counter resets after every delivered chunk.
	MaxRetries int

	// BaseBackoff is the delay before the first retry. Each further retry
	// doubles it up to MaxBackoff.
	BaseBackoff time.Duration
	MaxBackoff  time.Duration

	// CheckpointInterval is the minimum time between checkpoint writes
	CheckpointInterval time.Duration

	// Resume starts from a stored checkpoint when one exists
	Resume bool

	// Sink receives the downloaded bytes in order. Optional.
	Sink io.Writer
}

// DefaultConfig returns default session configuration
func DefaultConfig() *Config {
	return &Config{
		ChunkSize:          8 * 1024 * 1024, // 8MiB
		MaxRetries:         3,
		BaseBackoff:        500 * time.Millisecond,
		MaxBackoff:         30 * time.Second,
		CheckpointInterval: 5 * time.Second,
	}
}

// Validate checks the configuration and fills zero durations with defaults
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", domain.ErrInvalidInput, c.ChunkSize)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must not be negative, got %d", domain.ErrInvalidInput, c.MaxRetries)
	}

	def := DefaultConfig()
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = def.BaseBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = def.MaxBackoff
	}
	if c.MaxBackoff < c.BaseBackoff {
		c.MaxBackoff = c.BaseBackoff
	}
	if c.CheckpointInterval <= 0 {
		c.CheckpointInterval = def.CheckpointInterval
	}
	return nil
}

// Backoff returns the delay before retry number attempt (1-based):
// BaseBackoff * 2^(attempt-1), capped at MaxBackoff.
func (c *Config) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := c.BaseBackoff
	for i := 1; i < attempt; i++ {
		if d >= c.MaxBackoff/2 {
			return c.MaxBackoff
		}
		d *= 2
	}
	if d > c.MaxBackoff {
		return c.MaxBackoff
	}
	return d
}
