package progress

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/vertextoedge/chunkdl/internal/domain"
)

// FormatBytes formats bytes using IEC units (KiB, MiB, ...)
func FormatBytes(b int64) string {
	if b < 0 {
		return "unknown"
	}
	return humanize.IBytes(uint64(b))
}

// ParseBytes parses a human-readable size such as "8MiB", "256MB" or "1024".
func ParseBytes(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("invalid byte string: empty")
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid byte string %q: %w", s, err)
	}
	if n > 1<<62 {
		return 0, fmt.Errorf("byte string %q out of range", s)
	}
	return int64(n), nil
}

// Percent returns completion in [0,100], or -1 when total is unknown
func Percent(p domain.ProgressPayload) float64 {
	if p.Total == nil {
		return -1
	}
	if *p.Total == 0 {
		return 100
	}
	return float64(p.Progress) / float64(*p.Total) * 100
}

// Describe renders a payload as a one-line status
func Describe(p domain.ProgressPayload) string {
	if p.Total == nil {
		return fmt.Sprintf("%s: %s (+%s)", p.URL, FormatBytes(p.Progress), FormatBytes(p.ChunkSize))
	}
	return fmt.Sprintf("%s: %s / %s (%.1f%%)", p.URL, FormatBytes(p.Progress), FormatBytes(*p.Total), Percent(p))
}
