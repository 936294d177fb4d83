package session

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/vertextoedge/chunkdl/internal/domain"
)

// downloadWhole retrieves the resource in one request and delivers it in
// ChunkSize pieces
func (s *Session) downloadWhole(ctx context.Context) error {
	body, total, err := s.fetchAllWithRetry(ctx)
	if err != nil {
		return err
	}
	defer body.Close()

	if total >= 0 {
		if err := s.agg.SetTotal(total); err != nil {
			return err
		}
	}

	buf := make([]byte, s.config.ChunkSize)
	for {
		if err := s.checkActive(ctx); err != nil {
			return err
		}

		n, rerr := io.ReadFull(body, buf)
		if n > 0 {
			if err := s.deliver(buf[:n]); err != nil {
				return err
			}
		}
		if rerr == nil {
			continue
		}
		if errors.Is(rerr, io.EOF) || errors.Is(rerr, io.ErrUnexpectedEOF) {
			break
		}
		if err := s.checkActive(ctx); err != nil {
			return err
		}
		// Without ranges the body cannot be resumed, so read errors are final
		return fmt.Errorf("read body: %w", rerr)
	}

	if total >= 0 && s.agg.Progress() != total {
		return &domain.CorruptResponseError{
			URL:      s.url,
			Reason:   "body shorter than content-length",
			Expected: total,
			Actual:   s.agg.Progress(),
		}
	}
	return nil
}

func (s *Session) fetchAllWithRetry(ctx context.Context) (io.ReadCloser, int64, error) {
	for attempt := 0; ; attempt++ {
		body, total, err := s.fetcher.FetchAll(ctx, s.url)
		if err == nil {
			return body, total, nil
		}
		if err := s.checkActive(ctx); err != nil {
			return nil, 0, err
		}
		if !domain.IsRetryable(err) || attempt >= s.config.MaxRetries {
			return nil, 0, err
		}
		if err := s.backoff(ctx, attempt+1, err); err != nil {
			return nil, 0, err
		}
	}
}
