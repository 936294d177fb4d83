package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/chunkdl/internal/port"
)

// Config contains maintenance service configuration
type Config struct {
	// PruneInterval is how often to run the cleanup pass
	PruneInterval time.Duration

	// CheckpointMaxAge is how long an untouched checkpoint is kept
	CheckpointMaxAge time.Duration

	// PartialMaxAge is the age after which a partial file is abandoned
	PartialMaxAge time.Duration
}

// DefaultConfig returns default maintenance configuration
func DefaultConfig() *Config {
	return &Config{
		PruneInterval:    time.Hour,
		CheckpointMaxAge: 7 * 24 * time.Hour,
		PartialMaxAge:    7 * 24 * time.Hour,
	}
}

// Report summarises one cleanup pass
type Report struct {
	Checkpoints int
	Partials    int
}

// Service handles periodic maintenance tasks
type Service struct {
	config      *Config
	checkpoints port.CheckpointRepository
	partials    port.PartialFiles
	logger      *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a new maintenance Service. checkpoints and partials may be
// nil to skip that part of the pass.
func New(cfg *Config, checkpoints port.CheckpointRepository, partials port.PartialFiles, logger *zap.Logger) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.PruneInterval == 0 {
		cfg.PruneInterval = time.Hour
	}
	if cfg.CheckpointMaxAge == 0 {
		cfg.CheckpointMaxAge = 7 * 24 * time.Hour
	}
	if cfg.PartialMaxAge == 0 {
		cfg.PartialMaxAge = cfg.CheckpointMaxAge
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		config:      cfg,
		checkpoints: checkpoints,
		partials:    partials,
		logger:      logger,
	}
}

// Start runs a cleanup pass immediately and then every PruneInterval until
// ctx is done or Stop is called
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("maintenance service already running")
	}
	s.running = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.logger.Info("maintenance service started",
		zap.Duration("prune_interval", s.config.PruneInterval),
		zap.Duration("checkpoint_max_age", s.config.CheckpointMaxAge))

	s.wg.Add(1)
	go s.maintenanceLoop(ctx)

	<-ctx.Done()
	s.wg.Wait()
	s.logger.Info("maintenance service stopped")
	return nil
}

// Stop stops the maintenance service
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.running = false
}

// RunOnce performs one cleanup pass
func (s *Service) RunOnce() (Report, error) {
	var report Report

	pruned, err := s.pruneCheckpoints()
	if err != nil {
		return report, err
	}
	report.Checkpoints = pruned

	removed, err := s.cleanupPartials()
	if err != nil {
		return report, err
	}
	report.Partials = removed

	return report, nil
}

func (s *Service) maintenanceLoop(ctx context.Context) {
	defer s.wg.Done()

	s.runLogged()

	ticker := time.NewTicker(s.config.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runLogged()
		}
	}
}

func (s *Service) runLogged() {
	if _, err := s.RunOnce(); err != nil {
		s.logger.Error("maintenance pass failed", zap.Error(err))
	}
}

// pruneCheckpoints removes checkpoints nobody resumed in time
func (s *Service) pruneCheckpoints() (int, error) {
	if s.checkpoints == nil {
		return 0, nil
	}
	pruned, err := s.checkpoints.PruneOlderThan(s.config.CheckpointMaxAge)
	if err != nil {
		return 0, fmt.Errorf("prune checkpoints: %w", err)
	}
	if pruned > 0 {
		s.logger.Info("pruned stale checkpoints", zap.Int("count", pruned))
	}
	return pruned, nil
}

// cleanupPartials removes abandoned partial files
func (s *Service) cleanupPartials() (int, error) {
	if s.partials == nil {
		return 0, nil
	}
	removed, err := s.partials.CleanOldPartials(s.config.PartialMaxAge)
	if err != nil {
		return 0, fmt.Errorf("clean partial files: %w", err)
	}
	if removed > 0 {
		s.logger.Info("cleaned up abandoned partial files", zap.Int("count", removed))
	}
	return removed, nil
}
