package session

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vertextoedge/chunkdl/internal/adapter/memory"
	"github.com/vertextoedge/chunkdl/internal/domain"
	"github.com/vertextoedge/chunkdl/internal/domain/event"
	"github.com/vertextoedge/chunkdl/internal/port"
	"github.com/vertextoedge/chunkdl/internal/util/clock"
)

const testURL = "http://example.test/blob.bin"

// scriptedFetcher serves content as ranges. errs are returned, one per
// call, before content is served.
type scriptedFetcher struct {
	mu        sync.Mutex
	content   []byte
	etag      string
	totalFrom int // report the total from this call index on; -1 never
	rangeless bool
	errs      []error
	offsets   []int64
	onFetch   func(ctx context.Context, call int) error
}

func newScriptedFetcher(content []byte) *scriptedFetcher {
	return &scriptedFetcher{content: content}
}

func (f *scriptedFetcher) Fetch(ctx context.Context, url string, offset, maxLen int64) (*port.Chunk, error) {
	f.mu.Lock()
	call := len(f.offsets)
	f.offsets = append(f.offsets, offset)
	var scripted error
	if len(f.errs) > 0 {
		scripted = f.errs[0]
		f.errs = f.errs[1:]
	}
	hook := f.onFetch
	f.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, call); err != nil {
			return nil, err
		}
	}
	if scripted != nil {
		return nil, scripted
	}
	if f.rangeless {
		return nil, &domain.RangeUnsupportedError{URL: url, StatusCode: 200}
	}

	size := int64(len(f.content))
	total := size
	if f.totalFrom < 0 || call < f.totalFrom {
		total = domain.UnknownTotal
	}
	if offset >= size {
		return &port.Chunk{EOF: true, Total: total, ETag: f.etag}, nil
	}

	end := min(offset+maxLen, size)
	n := end - offset
	return &port.Chunk{
		Data:  bytes.Clone(f.content[offset:end]),
		EOF:   eof(n, maxLen, end, total),
		Total: total,
		ETag:  f.etag,
	}, nil
}

// eof mirrors the HTTP fetcher: a known total alone decides the end
func eof(n, maxLen, end, total int64) bool {
	if total >= 0 {
		return end >= total
	}
	return n < maxLen
}

func (f *scriptedFetcher) FetchAll(ctx context.Context, url string) (io.ReadCloser, int64, error) {
	total := int64(len(f.content))
	if f.totalFrom < 0 {
		total = domain.UnknownTotal
	}
	return io.NopCloser(bytes.NewReader(f.content)), total, nil
}

func (f *scriptedFetcher) Offsets() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.offsets...)
}

// fetchFunc adapts a function to port.ChunkFetcher without fallback support
type fetchFunc func(ctx context.Context, offset, maxLen int64) (*port.Chunk, error)

func (f fetchFunc) Fetch(ctx context.Context, url string, offset, maxLen int64) (*port.Chunk, error) {
	return f(ctx, offset, maxLen)
}

func (f fetchFunc) FetchAll(ctx context.Context, url string) (io.ReadCloser, int64, error) {
	return nil, 0, errors.New("whole retrieval not supported")
}

// recorder collects notifications
type recorder struct {
	mu       sync.Mutex
	payloads []domain.ProgressPayload
	results  []domain.Result
	errs     []error
}

func (r *recorder) subscriber() Subscriber {
	return Subscriber{
		OnProgress: func(p domain.ProgressPayload) {
			r.mu.Lock()
			r.payloads = append(r.payloads, p)
			r.mu.Unlock()
		},
		OnComplete: func(res domain.Result) {
			r.mu.Lock()
			r.results = append(r.results, res)
			r.mu.Unlock()
		},
		OnError: func(err error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) Payloads() []domain.ProgressPayload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ProgressPayload(nil), r.payloads...)
}

func (r *recorder) Results() []domain.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Result(nil), r.results...)
}

func (r *recorder) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

// countingRepo counts checkpoint writes
type countingRepo struct {
	*memory.CheckpointRepository
	saves atomic.Int64
}

func (r *countingRepo) Save(cp *domain.Checkpoint) error {
	r.saves.Add(1)
	return r.CheckpointRepository.Save(cp)
}

type failingWriter struct{ err error }

func (w failingWriter) Write(p []byte) (int, error) { return 0, w.err }

type harness struct {
	session *Session
	rec     *recorder
	clock   *clock.Fake
	metrics *event.MetricsHandler
}

func testConfig(chunkSize int64) *Config {
	return &Config{
		ChunkSize:          chunkSize,
		MaxRetries:         3,
		BaseBackoff:        100 * time.Millisecond,
		MaxBackoff:         time.Second,
		CheckpointInterval: time.Hour,
	}
}

func newHarness(t *testing.T, fetcher port.ChunkFetcher, cfg *Config, repo port.CheckpointRepository) *harness {
	t.Helper()

	metrics := event.NewMetricsHandler()
	dispatcher := event.NewInMemoryDispatcher(false, zap.NewNop())
	dispatcher.Subscribe(metrics)

	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	s, err := New(testURL, cfg, fetcher, repo, dispatcher, clk, zap.NewNop())
	require.NoError(t, err)

	rec := &recorder{}
	_, err = s.Subscribe(rec.subscriber())
	require.NoError(t, err)

	return &harness{session: s, rec: rec, clock: clk, metrics: metrics}
}

func (h *harness) run(t *testing.T) {
	t.Helper()
	h.session.Start(context.Background())
	waitDone(t, h.session)
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not finish")
	}
}

func testContent(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 253)
	}
	return data
}

func total(n int64) *int64 { return &n }
