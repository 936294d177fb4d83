package session

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/vertextoedge/chunkdl/internal/domain"
	"github.com/vertextoedge/chunkdl/internal/progress"
)

// resume positions the session at the stored checkpoint, if any
func (s *Session) resume() error {
	if !s.config.Resume || s.checkpoints == nil {
		return nil
	}

	cp, err := s.checkpoints.Load(s.url)
	if err != nil {
		s.logger.Warn("failed to load checkpoint, starting fresh", zap.Error(err))
		return nil
	}
	if !cp.CanResume() {
		return nil
	}

	cursor := cp.Cursor

	// A sink holding fewer bytes than recorded wins
	if st, ok := s.config.Sink.(interface{ Stat() (os.FileInfo, error) }); ok {
		fi, err := st.Stat()
		if err != nil {
			return fmt.Errorf("stat sink: %w", err)
		}
		if fi.Size() < cursor {
			s.logger.Info("sink shorter than checkpoint, resuming from sink size",
				zap.Int64("checkpoint", cursor),
				zap.Int64("sink_size", fi.Size()))
			cursor = fi.Size()
		}
	}
	if cursor == 0 {
		return nil
	}

	if tr, ok := s.config.Sink.(interface{ Truncate(int64) error }); ok {
		if err := tr.Truncate(cursor); err != nil {
			return fmt.Errorf("truncate sink: %w", err)
		}
	}
	if sk, ok := s.config.Sink.(io.Seeker); ok {
		if _, err := sk.Seek(cursor, io.SeekStart); err != nil {
			return fmt.Errorf("seek sink: %w", err)
		}
	}

	s.cursor = cursor
	s.etag = cp.ETag
	s.resumedFrom = cursor

	agg := progress.NewAt(s.url, cursor, cp.Total)
	s.mu.Lock()
	s.agg = agg
	s.mu.Unlock()

	s.logger.Info("resuming download",
		zap.Int64("from_byte", cursor),
		zap.Int64("total", cp.Total),
		zap.String("etag", cp.ETag))
	return nil
}

// maybeCheckpoint saves progress at most once per CheckpointInterval
func (s *Session) maybeCheckpoint() {
	if s.checkpoints == nil || !s.ranged {
		return
	}
	if ok, _ := s.saveLimiter.Allow(); ok {
		s.saveCheckpoint(nil)
	}
}

// saveCheckpoint stores the current cursor. cause is recorded as the last
// error when non-nil.
func (s *Session) saveCheckpoint(cause error) {
	if s.checkpoints == nil || !s.ranged || s.cursor <= 0 {
		return
	}

	now := s.clock.Now()
	cp := &domain.Checkpoint{URL: s.url, CreatedAt: now}
	cp.Advance(s.cursor, s.agg.Total(), s.etag, now)
	if cause != nil {
		cp.LastError = cause.Error()
	}

	if err := s.checkpoints.Save(cp); err != nil {
		s.logger.Warn("failed to save checkpoint",
			zap.Int64("cursor", s.cursor),
			zap.Error(err))
	}
}

func (s *Session) clearCheckpoint() {
	if s.checkpoints == nil {
		return
	}
	if err := s.checkpoints.Delete(s.url); err != nil {
		s.logger.Warn("failed to delete checkpoint", zap.Error(err))
	}
}
