// Package manager keeps at most one download session per url and hands
// out handles to callers.
package manager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/vertextoedge/chunkdl/internal/domain"
	"github.com/vertextoedge/chunkdl/internal/domain/event"
	"github.com/vertextoedge/chunkdl/internal/port"
	"github.com/vertextoedge/chunkdl/internal/service/session"
)

// ErrShutdown is returned by StartDownload after Shutdown
var ErrShutdown = errors.New("download manager shut down")

// Config contains manager configuration
type Config struct {
	// Session holds the defaults applied to every new session
	Session session.Config

	// Coalesce attaches duplicate starts to the running session instead of
	// rejecting them
	Coalesce bool
}

// DefaultConfig returns default manager configuration
func DefaultConfig() *Config {
	return &Config{
		Session: *session.DefaultConfig(),
	}
}

// Options configures one StartDownload call. Zero values fall back to the
// manager defaults.
type Options struct {
	ChunkSize int64

	// MaxRetries overrides the default retry budget. Negative disables
	// retries.
	MaxRetries int

	OnProgress func(domain.ProgressPayload)
	OnComplete func(domain.Result)
	OnError    func(error)

	// Coalesce attaches to an already running session for the same url.
	// The session's chunk size, retry budget and sink stay those of the
	// call that created it.
	Coalesce bool

	Sink   io.Writer
	Resume bool
}

// Manager owns the url to session registry
type Manager struct {
	config      *Config
	fetcher     port.ChunkFetcher
	checkpoints port.CheckpointRepository
	dispatcher  event.EventDispatcher
	clock       port.Clock
	logger      *zap.Logger

	mu       sync.Mutex
	sessions map[string]*session.Session
	closed   bool
}

// New creates a new Manager. checkpoints, dispatcher and clk may be nil.
func New(
	cfg *Config,
	fetcher port.ChunkFetcher,
	checkpoints port.CheckpointRepository,
	dispatcher event.EventDispatcher,
	clk port.Clock,
	logger *zap.Logger,
) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		config:      cfg,
		fetcher:     fetcher,
		checkpoints: checkpoints,
		dispatcher:  dispatcher,
		clock:       clk,
		logger:      logger,
		sessions:    make(map[string]*session.Session),
	}
}

// StartDownload begins downloading url and returns without waiting for any
// network activity. A second start for an active url fails with
// *domain.DuplicateDownloadError unless coalescing is enabled.
func (m *Manager) StartDownload(ctx context.Context, url string, opts Options) (*Handle, error) {
	if url == "" {
		return nil, fmt.Errorf("%w: empty url", domain.ErrInvalidInput)
	}
	if opts.ChunkSize < 0 {
		return nil, fmt.Errorf("%w: chunk size must not be negative", domain.ErrInvalidInput)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrShutdown
	}

	if existing, ok := m.sessions[url]; ok {
		if !opts.Coalesce && !m.config.Coalesce {
			return nil, &domain.DuplicateDownloadError{URL: url}
		}

		h := newHandle(m, existing, true)
		id, err := existing.Subscribe(h.subscriber(opts))
		if err == nil {
			h.subID = id
			m.logger.Debug("attached to running download",
				zap.String("url", url),
				zap.String("handle", h.ID.String()))
			return h, nil
		}
		// Terminal but not yet deregistered; replace it below
		m.logger.Debug("running download already finishing, starting a new one",
			zap.String("url", url))
	}

	s, err := session.New(url, m.sessionConfig(opts), m.fetcher, m.checkpoints, m.dispatcher, m.clock, m.logger)
	if err != nil {
		return nil, err
	}

	h := newHandle(m, s, false)
	id, err := s.Subscribe(h.subscriber(opts))
	if err != nil {
		return nil, err
	}
	h.subID = id

	s.OnTerminal(m.remove)
	m.sessions[url] = s
	s.Start(ctx)

	m.logger.Debug("download registered",
		zap.String("url", url),
		zap.String("handle", h.ID.String()))

	return h, nil
}

// Cancel detaches the handle's subscriber. The session itself is cancelled
// once no subscriber remains. It returns false if the handle had already
// received its terminal notification.
func (m *Manager) Cancel(h *Handle) bool {
	if h == nil {
		return false
	}
	if !h.session.Detach(h.subID) {
		return false
	}
	m.logger.Debug("download handle cancelled",
		zap.String("url", h.URL),
		zap.String("handle", h.ID.String()))
	return true
}

// Active returns the urls with a running session, sorted
func (m *Manager) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	urls := make([]string, 0, len(m.sessions))
	for url := range m.sessions {
		urls = append(urls, url)
	}
	sort.Strings(urls)
	return urls
}

// Progress returns the latest progress of the active session for url
func (m *Manager) Progress(url string) (domain.ProgressPayload, bool) {
	m.mu.Lock()
	s, ok := m.sessions[url]
	m.mu.Unlock()
	if !ok {
		return domain.ProgressPayload{}, false
	}
	return s.Snapshot(), true
}

// Shutdown rejects new downloads, cancels every active session and waits
// for them to finish or for ctx to end
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	sessions := make([]*session.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	if len(sessions) > 0 {
		m.logger.Info("cancelling active downloads", zap.Int("count", len(sessions)))
	}

	for _, s := range sessions {
		s.Cancel()
	}
	for _, s := range sessions {
		select {
		case <-s.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// remove deregisters s if it is still the registered session for its url
func (m *Manager) remove(s *session.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[s.URL()] == s {
		delete(m.sessions, s.URL())
	}
}

func (m *Manager) sessionConfig(opts Options) *session.Config {
	cfg := m.config.Session
	if opts.ChunkSize > 0 {
		cfg.ChunkSize = opts.ChunkSize
	}
	switch {
	case opts.MaxRetries > 0:
		cfg.MaxRetries = opts.MaxRetries
	case opts.MaxRetries < 0:
		cfg.MaxRetries = 0
	}
	cfg.Sink = opts.Sink
	cfg.Resume = cfg.Resume || opts.Resume
	return &cfg
}
