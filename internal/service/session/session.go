package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/chunkdl/internal/domain"
	"github.com/vertextoedge/chunkdl/internal/domain/event"
	"github.com/vertextoedge/chunkdl/internal/port"
	"github.com/vertextoedge/chunkdl/internal/progress"
	"github.com/vertextoedge/chunkdl/internal/util/clock"
	"github.com/vertextoedge/chunkdl/internal/util/ratelimiter"
)

// Session downloads one url chunk by chunk on its own goroutine
type Session struct {
	url         string
	config      *Config
	fetcher     port.ChunkFetcher
	checkpoints port.CheckpointRepository
	dispatcher  event.EventDispatcher
	clock       port.Clock
	logger      *zap.Logger
	saveLimiter *ratelimiter.Limiter

	// Fields below are owned by the run goroutine
	cursor      int64
	etag        string
	ranged      bool
	resumedFrom int64
	retries     int
	startedAt   time.Time

	mu         sync.Mutex
	state      domain.SessionState
	agg        *progress.Aggregator
	subs       []*subscription
	nextSubID  uint64
	started    bool
	cancel     context.CancelFunc
	err        error
	result     *domain.Result
	onTerminal func(*Session)
	done       chan struct{}
}

// New creates a session in the Pending state. checkpoints, dispatcher and
// clk may be nil.
func New(
	url string,
	cfg *Config,
	fetcher port.ChunkFetcher,
	checkpoints port.CheckpointRepository,
	dispatcher event.EventDispatcher,
	clk port.Clock,
	logger *zap.Logger,
) (*Session, error) {
	if url == "" {
		return nil, fmt.Errorf("%w: empty url", domain.ErrInvalidInput)
	}
	if fetcher == nil {
		return nil, fmt.Errorf("%w: nil fetcher", domain.ErrInvalidInput)
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := *cfg
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if dispatcher == nil {
		dispatcher = event.NewNullDispatcher()
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Session{
		url:         url,
		config:      &c,
		fetcher:     fetcher,
		checkpoints: checkpoints,
		dispatcher:  dispatcher,
		clock:       clk,
		logger:      logger.With(zap.String("url", url)),
		saveLimiter: ratelimiter.NewWithClock(c.CheckpointInterval, clk.Now),
		state:       domain.StatePending,
		agg:         progress.New(url, domain.UnknownTotal),
		done:        make(chan struct{}),
	}, nil
}

// URL returns the session's url
func (s *Session) URL() string {
	return s.url
}

// State returns the current lifecycle state
func (s *Session) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed after the terminal notifications have been delivered
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns the terminal error, nil while running or after completion
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Result returns the completion result, or nil if the session did not
// complete
func (s *Session) Result() *domain.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return nil
	}
	r := *s.result
	return &r
}

// Snapshot returns the current progress
func (s *Session) Snapshot() domain.ProgressPayload {
	s.mu.Lock()
	agg := s.agg
	s.mu.Unlock()
	return agg.Snapshot()
}

// OnTerminal registers fn to run once the session reaches a terminal state,
// before any subscriber is notified. Must be called before Start.
func (s *Session) OnTerminal(fn func(*Session)) {
	s.mu.Lock()
	s.onTerminal = fn
	s.mu.Unlock()
}

// Subscribe attaches a subscriber and returns its id
func (s *Session) Subscribe(sub Subscriber) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.IsTerminal() {
		return 0, domain.ErrSessionTerminal
	}
	s.nextSubID++
	s.subs = append(s.subs, &subscription{id: s.nextSubID, sub: sub})
	return s.nextSubID, nil
}

// Detach removes a subscriber, reporting domain.ErrCancelled to it. When no
// subscriber remains the session is cancelled. It returns false if id was
// not attached.
func (s *Session) Detach(id uint64) bool {
	s.mu.Lock()
	idx := -1
	for i, sc := range s.subs {
		if sc.id == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	removed := s.subs[idx].sub
	s.subs[idx].detached = true
	s.subs = append(s.subs[:idx:idx], s.subs[idx+1:]...)
	remaining := len(s.subs)
	s.mu.Unlock()

	removed.fail(domain.ErrCancelled)

	if remaining == 0 {
		s.Cancel()
	}
	return true
}

// Start launches the download goroutine. It is a no-op if already started.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	go s.run(ctx)
}

// Cancel stops the session. No progress callback starts once Cancel
// returns, including for the remaining subscribers of a payload whose
// delivery is under way. It returns false if the session was already
// terminal.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	if s.state.IsTerminal() {
		s.mu.Unlock()
		return false
	}
	s.state = domain.StateCancelled
	cancel := s.cancel
	started := s.started
	s.started = true
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if !started {
		// Never launched, so finish on our own
		go s.finish(domain.ErrCancelled)
	}
	s.logger.Debug("session cancel requested")
	return true
}

// Wait blocks until the session is terminal or ctx is done
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) run(ctx context.Context) {
	s.startedAt = s.clock.Now()
	s.ranged = true

	if err := s.resume(); err != nil {
		s.finish(err)
		return
	}

	s.logger.Info("download started",
		zap.Int64("chunk_size", s.config.ChunkSize),
		zap.Int64("resume_from", s.resumedFrom))
	s.dispatcher.Dispatch(event.NewDownloadStarted(s.url, s.config.ChunkSize, s.resumedFrom))

	s.finish(s.download(ctx))
}

// download fetches chunks until the end of the resource
func (s *Session) download(ctx context.Context) error {
	for {
		if err := s.checkActive(ctx); err != nil {
			return err
		}

		maxLen := s.config.ChunkSize
		if total := s.agg.Total(); total >= 0 {
			remaining := total - s.cursor
			if remaining <= 0 {
				return nil
			}
			if remaining < maxLen {
				maxLen = remaining
			}
		}

		chunk, err := s.fetchWithRetry(ctx, maxLen)
		if err != nil {
			if domain.IsRangeUnsupported(err) && s.cursor == 0 {
				s.logger.Info("range requests unsupported, retrieving whole resource")
				s.ranged = false
				return s.downloadWhole(ctx)
			}
			return err
		}

		if err := s.checkSource(chunk.ETag); err != nil {
			return err
		}
		if chunk.Total >= 0 {
			if err := s.agg.SetTotal(chunk.Total); err != nil {
				return err
			}
		}

		if len(chunk.Data) > 0 {
			if err := s.deliver(chunk.Data); err != nil {
				return err
			}
		}

		if chunk.EOF {
			if total := s.agg.Total(); total >= 0 && s.cursor < total {
				return &domain.CorruptResponseError{
					URL:      s.url,
					Reason:   "end of resource before total",
					Expected: total,
					Actual:   s.cursor,
				}
			}
			return nil
		}
		if len(chunk.Data) == 0 {
			return &domain.CorruptResponseError{
				URL:      s.url,
				Reason:   "empty chunk before end of resource",
				Expected: maxLen,
				Actual:   0,
			}
		}
	}
}

// fetchWithRetry fetches one chunk, retrying transient failures with
// exponential backoff
func (s *Session) fetchWithRetry(ctx context.Context, maxLen int64) (*port.Chunk, error) {
	for attempt := 0; ; attempt++ {
		chunk, err := s.fetcher.Fetch(ctx, s.url, s.cursor, maxLen)
		if err == nil {
			return chunk, nil
		}
		if err := s.checkActive(ctx); err != nil {
			return nil, err
		}
		if !domain.IsRetryable(err) || attempt >= s.config.MaxRetries {
			return nil, err
		}

		if err := s.backoff(ctx, attempt+1, err); err != nil {
			return nil, err
		}
	}
}

// backoff sleeps before retry number attempt
func (s *Session) backoff(ctx context.Context, attempt int, cause error) error {
	delay := s.config.Backoff(attempt)
	if ra, ok := domain.GetRetryAfter(cause); ok && ra > delay {
		delay = min(ra, s.config.MaxBackoff)
	}
	s.retries++

	s.logger.Warn("chunk fetch failed, retrying",
		zap.Int64("offset", s.cursor),
		zap.Int("attempt", attempt),
		zap.Int("max_retries", s.config.MaxRetries),
		zap.Duration("delay", delay),
		zap.Error(cause))
	s.dispatcher.Dispatch(event.NewDownloadRetrying(s.url, s.cursor, attempt, delay, cause.Error()))

	if err := s.clock.Sleep(ctx, delay); err != nil {
		return err
	}
	return s.checkActive(ctx)
}

// deliver accounts for data, writes it to the sink and emits one payload
func (s *Session) deliver(data []byte) error {
	payload, err := s.agg.Record(int64(len(data)))
	if err != nil {
		return err
	}
	if s.config.Sink != nil {
		if _, err := s.config.Sink.Write(data); err != nil {
			return fmt.Errorf("write sink: %w", err)
		}
	}
	s.cursor = payload.Progress
	s.maybeCheckpoint()
	return s.emit(payload)
}

// emit delivers payload to every subscriber unless the session has
// already left the running states. The state is checked again before each
// callback, so a subscriber that cancels or detaches another one stops the
// rest of the delivery.
func (s *Session) emit(payload domain.ProgressPayload) error {
	s.mu.Lock()
	if s.state.IsTerminal() {
		s.mu.Unlock()
		return domain.ErrCancelled
	}
	if s.state == domain.StatePending {
		s.state = domain.StateInProgress
	}
	subs := make([]*subscription, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sc := range subs {
		s.mu.Lock()
		cancelled := s.state == domain.StateCancelled
		detached := sc.detached
		s.mu.Unlock()

		if cancelled {
			return domain.ErrCancelled
		}
		if detached {
			continue
		}
		sc.sub.progress(payload)
	}
	s.dispatcher.Dispatch(event.NewDownloadProgress(payload))
	return nil
}

// checkActive returns domain.ErrCancelled once the session was cancelled
// or its context ended
func (s *Session) checkActive(ctx context.Context) error {
	s.mu.Lock()
	cancelled := s.state == domain.StateCancelled
	s.mu.Unlock()
	if cancelled {
		return domain.ErrCancelled
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

// checkSource fails the session when the resource changed under us
func (s *Session) checkSource(etag string) error {
	if etag == "" {
		return nil
	}
	if s.etag == "" {
		s.etag = etag
		return nil
	}
	if s.etag != etag {
		s.logger.Warn("resource changed during download",
			zap.String("expected_etag", s.etag),
			zap.String("etag", etag))
		return fmt.Errorf("%w: etag %q, was %q", domain.ErrSourceChanged, etag, s.etag)
	}
	return nil
}

// finish moves the session to its terminal state and notifies subscribers
func (s *Session) finish(runErr error) {
	s.mu.Lock()
	switch {
	case s.state == domain.StateCancelled:
		runErr = domain.ErrCancelled
	case runErr == nil:
		if s.state == domain.StatePending {
			s.state = domain.StateInProgress
		}
		s.state = domain.StateCompleted
	case errors.Is(runErr, domain.ErrCancelled), errors.Is(runErr, context.Canceled):
		runErr = domain.ErrCancelled
		s.state = domain.StateCancelled
	default:
		s.state = domain.StateFailed
	}
	state := s.state
	subs := s.subs
	s.subs = nil
	onTerminal := s.onTerminal
	s.mu.Unlock()

	if s.cancel != nil {
		defer s.cancel()
	}

	progressed := s.agg.Progress()
	var result *domain.Result

	switch state {
	case domain.StateCompleted:
		if s.agg.Total() < 0 {
			_ = s.agg.SetTotal(progressed)
		}
		result = &domain.Result{
			URL:         s.url,
			Bytes:       progressed,
			Total:       domain.TotalPtr(s.agg.Total()),
			Resumed:     s.resumedFrom > 0,
			ResumedFrom: s.resumedFrom,
			Duration:    s.clock.Now().Sub(s.startedAt),
		}
		s.clearCheckpoint()
	case domain.StateFailed:
		if errors.Is(runErr, domain.ErrSourceChanged) {
			s.clearCheckpoint()
		} else {
			s.saveCheckpoint(runErr)
		}
	case domain.StateCancelled:
		s.saveCheckpoint(runErr)
	}

	s.mu.Lock()
	if state != domain.StateCompleted {
		s.err = runErr
	}
	s.result = result
	s.mu.Unlock()

	// Deregister before notifying so callbacks can start a new download
	// for the same url
	if onTerminal != nil {
		onTerminal(s)
	}

	switch state {
	case domain.StateCompleted:
		s.logger.Info("download completed",
			zap.Int64("bytes", result.Bytes),
			zap.Duration("duration", result.Duration),
			zap.Int("retries", s.retries))
		s.dispatcher.Dispatch(event.NewDownloadCompleted(*result))
		for _, sc := range subs {
			sc.sub.complete(*result)
		}
	case domain.StateCancelled:
		s.logger.Info("download cancelled", zap.Int64("progress", progressed))
		s.dispatcher.Dispatch(event.NewDownloadCancelled(s.url, progressed))
		for _, sc := range subs {
			sc.sub.fail(runErr)
		}
	default:
		s.logger.Error("download failed",
			zap.Int64("progress", progressed),
			zap.Int("retries", s.retries),
			zap.Error(runErr))
		s.dispatcher.Dispatch(event.NewDownloadFailed(s.url, progressed, runErr.Error(), s.retries))
		for _, sc := range subs {
			sc.sub.fail(runErr)
		}
	}

	close(s.done)
}
