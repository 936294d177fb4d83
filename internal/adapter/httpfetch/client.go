package httpfetch

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/vertextoedge/chunkdl/internal/domain"
	"github.com/vertextoedge/chunkdl/internal/port"
)

// Options configures the fetcher
type Options struct {
	// MaxIdleConnsPerHost sets the maximum idle connections per host.
	// Default: 50
	MaxIdleConnsPerHost int

	// ResponseHeaderTimeout bounds the wait for response headers. The body
	// transfer itself is bounded only by the caller's context.
	// Default: 30s
	ResponseHeaderTimeout time.Duration

	// BandwidthLimit caps read throughput in bytes per second. 0 disables.
	BandwidthLimit int64

	// BufferSize sets the transport read buffer size.
	// Default: 1MiB
	BufferSize int

	// SkipTLSVerify disables certificate verification
	SkipTLSVerify bool

	UserAgent string
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxIdleConnsPerHost:   50,
		ResponseHeaderTimeout: 30 * time.Second,
		BufferSize:            1024 * 1024,
		UserAgent:             "chunkdl",
	}
}

// Fetcher implements port.ChunkFetcher over HTTP range requests
type Fetcher struct {
	client  *http.Client
	opts    Options
	limiter *rate.Limiter
	logger  *zap.Logger
}

// Ensure Fetcher implements port.ChunkFetcher
var _ port.ChunkFetcher = (*Fetcher)(nil)

// New creates a fetcher with its own connection pool
func New(opts Options, logger *zap.Logger) *Fetcher {
	def := DefaultOptions()
	if opts.MaxIdleConnsPerHost <= 0 {
		opts.MaxIdleConnsPerHost = def.MaxIdleConnsPerHost
	}
	if opts.ResponseHeaderTimeout <= 0 {
		opts.ResponseHeaderTimeout = def.ResponseHeaderTimeout
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = def.BufferSize
	}
	if opts.UserAgent == "" {
		opts.UserAgent = def.UserAgent
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: opts.SkipTLSVerify,
		},
		MaxIdleConns:          opts.MaxIdleConnsPerHost * 2,
		MaxIdleConnsPerHost:   opts.MaxIdleConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		ReadBufferSize:        opts.BufferSize,
		ForceAttemptHTTP2:     true,
		DisableCompression:    true, // byte offsets must refer to the raw representation
		ResponseHeaderTimeout: opts.ResponseHeaderTimeout,
	}

	return NewWithClient(&http.Client{Transport: transport}, opts, logger)
}

// NewWithClient creates a fetcher around an existing http.Client
func NewWithClient(client *http.Client, opts Options, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Fetcher{
		client: client,
		opts:   opts,
		logger: logger,
	}
	if opts.BandwidthLimit > 0 {
		burst := int(opts.BandwidthLimit)
		if burst > 4*1024*1024 {
			burst = 4 * 1024 * 1024
		}
		f.limiter = rate.NewLimiter(rate.Limit(opts.BandwidthLimit), burst)
	}
	return f
}

// Fetch performs one ranged GET for [offset, offset+maxLen)
func (f *Fetcher) Fetch(ctx context.Context, url string, offset, maxLen int64) (*port.Chunk, error) {
	if offset < 0 || maxLen <= 0 {
		return nil, fmt.Errorf("%w: offset=%d maxLen=%d", domain.ErrInvalidInput, offset, maxLen)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, offset+maxLen-1))
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, domain.NewTransportError(url, 0, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent:
	case http.StatusOK:
		// Some servers answer 200 but still honour the range
		if resp.Header.Get("Content-Range") == "" {
			return nil, &domain.RangeUnsupportedError{URL: url, StatusCode: resp.StatusCode}
		}
	case http.StatusRequestedRangeNotSatisfiable:
		if offset == 0 {
			return nil, &domain.RangeUnsupportedError{URL: url, StatusCode: resp.StatusCode}
		}
		// Offset is past the end of a resource whose size we did not know
		total := domain.UnknownTotal
		if cr, err := ParseContentRange(resp.Header.Get("Content-Range")); err == nil {
			total = cr.Total
		}
		f.logger.Debug("range past end of resource",
			zap.String("url", url),
			zap.Int64("offset", offset),
			zap.Int64("total", total))
		return &port.Chunk{EOF: true, Total: total, ETag: cleanETag(resp.Header.Get("ETag"))}, nil
	default:
		return nil, statusError(url, resp)
	}

	cr, err := ParseContentRange(resp.Header.Get("Content-Range"))
	if err != nil {
		return nil, &domain.CorruptResponseError{URL: url, Reason: err.Error(), Expected: offset, Actual: -1}
	}
	if cr.Start != offset {
		return nil, &domain.CorruptResponseError{URL: url, Reason: "range start mismatch", Expected: offset, Actual: cr.Start}
	}
	span := cr.Length()
	if span > maxLen {
		return nil, &domain.CorruptResponseError{URL: url, Reason: "range exceeds request", Expected: maxLen, Actual: span}
	}
	if cr.Total >= 0 && cr.End >= cr.Total {
		return nil, &domain.CorruptResponseError{URL: url, Reason: "range end beyond total", Expected: cr.Total - 1, Actual: cr.End}
	}

	data, err := io.ReadAll(io.LimitReader(f.limitReader(ctx, resp.Body), span+1))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, &domain.CorruptResponseError{URL: url, Reason: "body shorter than content-length", Expected: resp.ContentLength, Actual: int64(len(data))}
		}
		return nil, domain.NewTransportError(url, 0, fmt.Errorf("read body: %w", err))
	}

	n := int64(len(data))
	if resp.ContentLength >= 0 && resp.ContentLength != n {
		return nil, &domain.CorruptResponseError{URL: url, Reason: "content-length mismatch", Expected: resp.ContentLength, Actual: n}
	}
	if n != span {
		return nil, &domain.CorruptResponseError{URL: url, Reason: "content-range length mismatch", Expected: span, Actual: n}
	}

	// A short range only ends the resource when the total is unknown
	eof := n < maxLen
	if cr.Total >= 0 {
		eof = offset+n >= cr.Total
	}

	return &port.Chunk{
		Data:  data,
		EOF:   eof,
		Total: cr.Total,
		ETag:  cleanETag(resp.Header.Get("ETag")),
	}, nil
}

// FetchAll performs a plain GET for servers without range support
func (f *Fetcher) FetchAll(ctx context.Context, url string) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, 0, ctxErr
		}
		return nil, 0, domain.NewTransportError(url, 0, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, 0, statusError(url, resp)
	}

	total := resp.ContentLength
	if total < 0 {
		total = domain.UnknownTotal
	}

	return &readCloser{Reader: f.limitReader(ctx, resp.Body), Closer: resp.Body}, total, nil
}

func (f *Fetcher) limitReader(ctx context.Context, r io.Reader) io.Reader {
	if f.limiter == nil {
		return r
	}
	return &rateLimitedReader{reader: r, limiter: f.limiter, ctx: ctx}
}

type readCloser struct {
	io.Reader
	io.Closer
}

// rateLimitedReader throttles reads to the shared limiter
type rateLimitedReader struct {
	reader  io.Reader
	limiter *rate.Limiter
	ctx     context.Context
}

func (r *rateLimitedReader) Read(p []byte) (int, error) {
	if burst := r.limiter.Burst(); len(p) > burst {
		p = p[:burst]
	}
	n, err := r.reader.Read(p)
	if n > 0 {
		if werr := r.limiter.WaitN(r.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}

// statusError maps a non-success response to a TransportError
func statusError(url string, resp *http.Response) error {
	te := domain.NewTransportError(url, resp.StatusCode, errors.New(http.StatusText(resp.StatusCode)))
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
			te.RetryAfter = time.Duration(secs) * time.Second
		} else if t, err := http.ParseTime(ra); err == nil {
			if d := time.Until(t); d > 0 {
				te.RetryAfter = d
			}
		}
	}
	return te
}
