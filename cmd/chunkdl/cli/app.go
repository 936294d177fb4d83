package cli

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/chunkdl/internal/adapter/httpfetch"
	"github.com/vertextoedge/chunkdl/internal/adapter/memory"
	"github.com/vertextoedge/chunkdl/internal/adapter/sqlite"
	"github.com/vertextoedge/chunkdl/internal/config"
	"github.com/vertextoedge/chunkdl/internal/domain/event"
	"github.com/vertextoedge/chunkdl/internal/logger"
	"github.com/vertextoedge/chunkdl/internal/port"
	"github.com/vertextoedge/chunkdl/internal/service/maintenance"
	"github.com/vertextoedge/chunkdl/internal/service/manager"
	"github.com/vertextoedge/chunkdl/internal/service/server"
	"github.com/vertextoedge/chunkdl/internal/service/session"
	"github.com/vertextoedge/chunkdl/internal/util/clock"
)

// shutdownTimeout bounds how long Close waits for sessions to stop
const shutdownTimeout = 30 * time.Second

// App holds the services shared by the subcommands
type App struct {
	Config      *config.Config
	Logger      *zap.Logger
	Checkpoints port.CheckpointRepository
	Dispatcher  *event.InMemoryDispatcher
	Metrics     *event.MetricsHandler
	Fetcher     *httpfetch.Fetcher
	Manager     *manager.Manager

	store *sqlite.Store
}

// NewApp loads configuration and wires the download engine
func NewApp(configPath string, verbose bool) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	if err := logger.Init(level, cfg.Logging.Format); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	zapLogger := logger.GetZapLogger()

	app := &App{
		Config: cfg,
		Logger: zapLogger,
	}

	if cfg.Database.Enabled {
		store, err := sqlite.Open(cfg.Database.Path, cfg.Database.GetBusyTimeout())
		if err != nil {
			return nil, fmt.Errorf("failed to open checkpoint database: %w", err)
		}
		app.store = store
		app.Checkpoints = store
		zapLogger.Debug("checkpoint database opened", zap.String("path", cfg.Database.Path))
	} else {
		app.Checkpoints = memory.NewCheckpointRepository()
	}

	app.Dispatcher = event.NewInMemoryDispatcher(false, zapLogger)
	app.Metrics = event.NewMetricsHandler()
	app.Dispatcher.Subscribe(event.NewLoggingHandler(logger.Named("events")))
	app.Dispatcher.Subscribe(app.Metrics)

	dl := cfg.Download
	app.Fetcher = httpfetch.New(httpfetch.Options{
		MaxIdleConnsPerHost:   dl.MaxIdleConnsPerHost,
		ResponseHeaderTimeout: dl.GetRequestTimeout(),
		BandwidthLimit:        dl.GetBandwidthLimit(),
		SkipTLSVerify:         dl.SkipTLSVerify,
		UserAgent:             dl.UserAgent,
	}, logger.Named("fetcher"))

	managerCfg := &manager.Config{
		Session: session.Config{
			ChunkSize:          dl.GetChunkSize(),
			MaxRetries:         dl.MaxRetries,
			BaseBackoff:        dl.GetBaseBackoff(),
			MaxBackoff:         dl.GetMaxBackoff(),
			CheckpointInterval: dl.GetCheckpointInterval(),
			Resume:             dl.Resume,
		},
		Coalesce: dl.Coalesce,
	}
	app.Manager = manager.New(managerCfg, app.Fetcher, app.Checkpoints, app.Dispatcher, clock.Real{}, logger.Named("manager"))

	return app, nil
}

// Maintenance returns a maintenance service over the app's checkpoints.
// partials may be nil to skip partial file cleanup.
func (a *App) Maintenance(partials port.PartialFiles) *maintenance.Service {
	return maintenance.New(&maintenance.Config{
		PruneInterval:    a.Config.Maintenance.GetPruneInterval(),
		CheckpointMaxAge: a.Config.Maintenance.GetCheckpointMaxAge(),
	}, a.Checkpoints, partials, logger.Named("maintenance"))
}

// StartStatusServer serves download status on addr until the returned
// function is called
func (a *App) StartStatusServer(addr string) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	cfg := server.DefaultConfig()
	cfg.BindAddr = addr
	srv := server.New(cfg, a.Manager, a.Checkpoints, a.Metrics, logger.Named("status"))

	go func() {
		if err := srv.Serve(ln); err != nil {
			a.Logger.Error("status server stopped with error", zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Stop(ctx); err != nil {
			a.Logger.Error("failed to stop status server gracefully", zap.Error(err))
		}
	}, nil
}

// Close stops running downloads and releases the database
func (a *App) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.Manager.Shutdown(ctx); err != nil {
		a.Logger.Error("failed to stop downloads gracefully", zap.Error(err))
	}

	a.Logger.Debug("download metrics", zap.Any("metrics", a.Metrics.GetMetrics()))

	var err error
	if a.store != nil {
		err = a.store.Close()
	}
	_ = logger.Sync()
	return err
}
