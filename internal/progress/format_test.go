package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vertextoedge/chunkdl/internal/domain"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		input    int64
		expected string
	}{
		{0, "0 B"},
		{100, "100 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{1024 * 1024, "1.0 MiB"},
		{-1, "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, FormatBytes(tt.input), "FormatBytes(%d)", tt.input)
	}
}

func TestParseBytes(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
	}{
		{"100", 100},
		{"100B", 100},
		{"1KiB", 1024},
		{"8MiB", 8 * 1024 * 1024},
		{"1GiB", 1024 * 1024 * 1024},
		{"1KB", 1000},
		{"1MB", 1000 * 1000},
		{" 4 MiB ", 4 * 1024 * 1024},
	}

	for _, tt := range tests {
		got, err := ParseBytes(tt.input)
		require.NoError(t, err, "ParseBytes(%q)", tt.input)
		assert.Equal(t, tt.expected, got, "ParseBytes(%q)", tt.input)
	}
}

func TestParseBytesInvalid(t *testing.T) {
	for _, in := range []string{"", "invalid", "12XB"} {
		_, err := ParseBytes(in)
		assert.Error(t, err, "ParseBytes(%q)", in)
	}
}

func TestDescribe(t *testing.T) {
	total := int64(1000)
	known := domain.ProgressPayload{URL: "u", ChunkSize: 100, Progress: 500, Total: &total}
	assert.Equal(t, "u: 500 B / 1000 B (50.0%)", Describe(known))
	assert.InDelta(t, 50.0, Percent(known), 0.001)

	unknown := domain.ProgressPayload{URL: "u", ChunkSize: 100, Progress: 500}
	assert.Equal(t, "u: 500 B (+100 B)", Describe(unknown))
	assert.Equal(t, -1.0, Percent(unknown))
}
