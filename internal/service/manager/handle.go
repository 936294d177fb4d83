package manager

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/vertextoedge/chunkdl/internal/domain"
	"github.com/vertextoedge/chunkdl/internal/service/session"
)

// Handle is one caller's view of a download
type Handle struct {
	ID  uuid.UUID
	URL string

	// Coalesced is set when the handle attached to an already running
	// session
	Coalesced bool

	manager *Manager
	session *session.Session
	subID   uint64

	once   sync.Once
	done   chan struct{}
	mu     sync.Mutex
	err    error
	result *domain.Result
}

func newHandle(m *Manager, s *session.Session, coalesced bool) *Handle {
	return &Handle{
		ID:        uuid.New(),
		URL:       s.URL(),
		Coalesced: coalesced,
		manager:   m,
		session:   s,
		done:      make(chan struct{}),
	}
}

// subscriber wraps the caller's callbacks so the handle records its own
// terminal outcome
func (h *Handle) subscriber(opts Options) session.Subscriber {
	return session.Subscriber{
		OnProgress: opts.OnProgress,
		OnComplete: func(r domain.Result) {
			h.finish(&r, nil)
			if opts.OnComplete != nil {
				opts.OnComplete(r)
			}
		},
		OnError: func(err error) {
			h.finish(nil, err)
			if opts.OnError != nil {
				opts.OnError(err)
			}
		},
	}
}

func (h *Handle) finish(r *domain.Result, err error) {
	h.once.Do(func() {
		h.mu.Lock()
		h.result = r
		h.err = err
		h.mu.Unlock()
		close(h.done)
	})
}

// Done is closed once this handle received its terminal notification
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the handle is done or ctx ends
func (h *Handle) Wait(ctx context.Context) (*domain.Result, error) {
	select {
	case <-h.done:
		return h.Result(), h.Err()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Err returns the terminal error delivered to this handle
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Result returns the completion result delivered to this handle
func (h *Handle) Result() *domain.Result {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result
}

// State returns the state of the underlying session, or StateCancelled if
// this handle was cancelled on its own
func (h *Handle) State() domain.SessionState {
	if errors.Is(h.Err(), domain.ErrCancelled) {
		return domain.StateCancelled
	}
	return h.session.State()
}

// Progress returns the session's latest progress
func (h *Handle) Progress() domain.ProgressPayload {
	return h.session.Snapshot()
}

// Cancel is shorthand for Manager.Cancel(h)
func (h *Handle) Cancel() bool {
	return h.manager.Cancel(h)
}
