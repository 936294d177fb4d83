package port

import (
	"context"
	"io"
)

// Chunk is the outcome of one ranged retrieval
type Chunk struct {
	Data []byte

	// EOF is set when the end of the resource was reached
	EOF bool

	// Total is the resource size reported by the server, or
	// domain.UnknownTotal
	Total int64

	ETag string
}

// ChunkFetcher performs ranged reads against a remote resource.
// Implementations hold no per-download state across calls.
type ChunkFetcher interface {
	// Fetch retrieves at most maxLen bytes starting at offset
	Fetch(ctx context.Context, url string, offset, maxLen int64) (*Chunk, error)

	// FetchAll retrieves the whole resource. Used when the server does not
	// support ranges. total is domain.UnknownTotal when not advertised.
	FetchAll(ctx context.Context, url string) (body io.ReadCloser, total int64, err error)
}
