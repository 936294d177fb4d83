package event

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/vertextoedge/chunkdl/internal/domain"
)

type recordingHandler struct {
	mu     sync.Mutex
	names  []string
	events []string
	err    error
}

func (h *recordingHandler) Handle(e DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, e.EventName())
	return h.err
}

func (h *recordingHandler) HandledEvents() []string { return h.names }

func (h *recordingHandler) seen() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.events...)
}

func TestInMemoryDispatcher_RoutesByName(t *testing.T) {
	d := NewInMemoryDispatcher(false, zap.NewNop())
	progress := &recordingHandler{names: []string{NameDownloadProgress}}
	all := &recordingHandler{names: []string{"*"}}
	d.Subscribe(progress)
	d.Subscribe(all)

	d.Dispatch(NewDownloadStarted("http://x/a", 10, 0))
	d.Dispatch(NewDownloadProgress(domain.ProgressPayload{URL: "http://x/a", ChunkSize: 10, Progress: 10}))

	assert.Equal(t, []string{NameDownloadProgress}, progress.seen())
	assert.Equal(t, []string{NameDownloadStarted, NameDownloadProgress}, all.seen())
}

func TestInMemoryDispatcher_Unsubscribe(t *testing.T) {
	d := NewInMemoryDispatcher(false, nil)
	h := &recordingHandler{names: []string{NameDownloadFailed}}
	d.Subscribe(h)
	d.Unsubscribe(h)

	d.Dispatch(NewDownloadFailed("http://x/a", 0, "boom", 1))

	assert.Empty(t, h.seen())
}

func TestInMemoryDispatcher_HandlerErrorDoesNotStopOthers(t *testing.T) {
	d := NewInMemoryDispatcher(false, zap.NewNop())
	failing := &recordingHandler{names: []string{"*"}, err: errors.New("nope")}
	ok := &recordingHandler{names: []string{"*"}}
	d.Subscribe(failing)
	d.Subscribe(ok)

	d.Dispatch(NewDownloadCancelled("http://x/a", 5))

	assert.Len(t, failing.seen(), 1)
	assert.Len(t, ok.seen(), 1)
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetricsHandler()
	d := NewInMemoryDispatcher(false, zap.NewNop())
	d.Subscribe(m)

	d.Dispatch(NewDownloadStarted("u", 300, 0))
	for _, n := range []int64{300, 300, 300, 100} {
		d.Dispatch(NewDownloadProgress(domain.ProgressPayload{URL: "u", ChunkSize: n}))
	}
	d.Dispatch(NewDownloadRetrying("u", 600, 1, 0, "503"))
	d.Dispatch(NewDownloadCompleted(domain.Result{URL: "u", Bytes: 1000}))

	got := m.GetMetrics()
	assert.Equal(t, int64(1), got["downloads_started"])
	assert.Equal(t, int64(4), got["chunks_delivered"])
	assert.Equal(t, int64(1000), got["bytes_delivered"])
	assert.Equal(t, int64(1), got["chunk_retries"])
	assert.Equal(t, int64(1), got["downloads_completed"])
	assert.Equal(t, int64(0), got["downloads_failed"])
}

func TestLoggingHandler_HandlesAllEvents(t *testing.T) {
	h := NewLoggingHandler(zap.NewNop())
	total := int64(10)
	events := []DomainEvent{
		NewDownloadStarted("u", 1, 0),
		NewDownloadProgress(domain.ProgressPayload{URL: "u", ChunkSize: 1, Progress: 1, Total: &total}),
		NewDownloadRetrying("u", 1, 1, 0, "x"),
		NewDownloadCompleted(domain.Result{URL: "u", Bytes: 10}),
		NewDownloadFailed("u", 1, "x", 2),
		NewDownloadCancelled("u", 1),
	}
	for _, e := range events {
		assert.NoError(t, h.Handle(e))
	}
	assert.Equal(t, []string{"*"}, h.HandledEvents())
}
