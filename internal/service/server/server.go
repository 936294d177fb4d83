package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/chunkdl/internal/domain"
	"github.com/vertextoedge/chunkdl/internal/port"
)

// Downloads lists running downloads and their progress
type Downloads interface {
	Active() []string
	Progress(url string) (domain.ProgressPayload, bool)
}

// MetricsSource exposes event counters
type MetricsSource interface {
	GetMetrics() map[string]int64
}

// Config contains status server configuration
type Config struct {
	BindAddr     string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		BindAddr:     "127.0.0.1:8080",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Server serves download status over HTTP
type Server struct {
	config       *Config
	checkpoints  port.CheckpointRepository
	logger       *zap.Logger
	server       *http.Server
	debugHandler *DebugHandler
}

// New creates a new status server. checkpoints and metrics may be nil.
func New(cfg *Config, downloads Downloads, checkpoints port.CheckpointRepository, metrics MetricsSource, logger *zap.Logger) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		config:      cfg,
		checkpoints: checkpoints,
		logger:      logger,
	}

	s.debugHandler = NewDebugHandler(downloads, checkpoints, metrics, logger)

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", s.handleHealth)

	// Debug endpoints
	mux.HandleFunc("/debug/downloads", s.debugHandler.HandleDownloads)
	mux.HandleFunc("/debug/checkpoints", s.debugHandler.HandleCheckpoints)
	mux.HandleFunc("/debug/metrics", s.debugHandler.HandleMetrics)

	s.server = &http.Server{
		Addr:         cfg.BindAddr,
		Handler:      LoggingMiddleware(logger)(mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start listens on the configured address and serves until Stop
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on an existing listener until Stop
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("starting status server", zap.String("addr", ln.Addr().String()))
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping status server")
	return s.server.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if p, ok := s.checkpoints.(interface{ Ping() error }); ok {
		if err := p.Ping(); err != nil {
			s.logger.Error("health check failed", zap.Error(err))
			http.Error(w, "Database connection failed", http.StatusServiceUnavailable)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}
