package progress

import (
	"sync"

	"github.com/vertextoedge/chunkdl/internal/domain"
)

// Aggregator accumulates chunk deltas for one url
type Aggregator struct {
	url string

	mu       sync.Mutex
	progress int64
	total    int64
	last     int64
}

// New creates an aggregator starting at zero. A negative total means unknown.
func New(url string, total int64) *Aggregator {
	return NewAt(url, 0, total)
}

// NewAt creates an aggregator that already accounts for start bytes, used
// when resuming from a checkpoint.
func NewAt(url string, start, total int64) *Aggregator {
	if total < 0 {
		total = domain.UnknownTotal
	}
	if start < 0 {
		start = 0
	}
	return &Aggregator{url: url, progress: start, total: total}
}

// Record adds delta bytes and returns the resulting payload
func (a *Aggregator) Record(delta int64) (domain.ProgressPayload, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if delta <= 0 {
		return domain.ProgressPayload{}, domain.ErrInvalidDelta
	}
	if a.total >= 0 && a.progress+delta > a.total {
		return domain.ProgressPayload{}, &domain.OverflowError{
			Progress: a.progress,
			Delta:    delta,
			Total:    a.total,
		}
	}

	a.progress += delta
	a.last = delta
	return a.payloadLocked(), nil
}

// SetTotal records the resource size. It may be set once; repeating the
// same value is a no-op.
func (a *Aggregator) SetTotal(total int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if total < 0 {
		return domain.ErrInvalidInput
	}
	if a.total >= 0 {
		if a.total == total {
			return nil
		}
		return &domain.TotalAlreadyKnownError{Current: a.total, Attempted: total}
	}
	if a.progress > total {
		return &domain.OverflowError{Progress: a.progress, Delta: 0, Total: total}
	}
	a.total = total
	return nil
}

// Snapshot returns the current state as a payload. ChunkSize is the most
// recently recorded delta.
func (a *Aggregator) Snapshot() domain.ProgressPayload {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.payloadLocked()
}

// Progress returns cumulative bytes
func (a *Aggregator) Progress() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.progress
}

// Total returns the total, or domain.UnknownTotal
func (a *Aggregator) Total() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.total
}

// Remaining returns bytes left to reach the total, or domain.UnknownTotal
func (a *Aggregator) Remaining() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.total < 0 {
		return domain.UnknownTotal
	}
	return a.total - a.progress
}

// Done returns true once a known total has been reached
func (a *Aggregator) Done() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.total >= 0 && a.progress == a.total
}

func (a *Aggregator) payloadLocked() domain.ProgressPayload {
	return domain.ProgressPayload{
		URL:       a.url,
		ChunkSize: a.last,
		Progress:  a.progress,
		Total:     domain.TotalPtr(a.total),
	}
}
