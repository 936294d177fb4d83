package event

import (
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// LoggingHandler logs all events
type LoggingHandler struct {
	logger *zap.Logger
}

// NewLoggingHandler creates a new LoggingHandler
func NewLoggingHandler(logger *zap.Logger) *LoggingHandler {
	return &LoggingHandler{logger: logger}
}

// Handle logs the event
func (h *LoggingHandler) Handle(event DomainEvent) error {
	switch e := event.(type) {
	case DownloadStarted:
		h.logger.Info("download started",
			zap.String("url", e.URL),
			zap.Int64("chunk_size", e.ChunkSize),
			zap.Int64("resumed_from", e.ResumedFrom),
		)
	case DownloadProgress:
		fields := []zap.Field{
			zap.String("url", e.Payload.URL),
			zap.Int64("chunk_size", e.Payload.ChunkSize),
			zap.Int64("progress", e.Payload.Progress),
		}
		if e.Payload.Total != nil {
			fields = append(fields, zap.Int64("total", *e.Payload.Total))
		}
		h.logger.Debug("download progress", fields...)
	case DownloadRetrying:
		h.logger.Warn("retrying chunk",
			zap.String("url", e.URL),
			zap.Int64("offset", e.Offset),
			zap.Int("attempt", e.Attempt),
			zap.Duration("delay", e.Delay),
			zap.String("error", e.Error),
		)
	case DownloadCompleted:
		h.logger.Info("download completed",
			zap.String("url", e.URL),
			zap.Int64("size", e.Size),
			zap.String("size_human", humanize.IBytes(uint64(e.Size))),
			zap.Bool("resumed", e.Resumed),
			zap.Duration("duration", e.Duration),
		)
	case DownloadFailed:
		h.logger.Error("download failed",
			zap.String("url", e.URL),
			zap.Int64("progress", e.Progress),
			zap.String("error", e.Error),
			zap.Int("attempts", e.Attempts),
		)
	case DownloadCancelled:
		h.logger.Info("download cancelled",
			zap.String("url", e.URL),
			zap.Int64("progress", e.Progress),
		)
	default:
		h.logger.Debug("domain event",
			zap.String("event", event.EventName()),
			zap.Time("occurred_at", event.OccurredAt()),
		)
	}
	return nil
}

// HandledEvents returns the events this handler handles
func (h *LoggingHandler) HandledEvents() []string {
	return []string{"*"}
}

// MetricsHandler collects counters from events
type MetricsHandler struct {
	started    atomic.Int64
	completed  atomic.Int64
	failed     atomic.Int64
	cancelled  atomic.Int64
	retries    atomic.Int64
	chunks     atomic.Int64
	bytesMoved atomic.Int64
}

// NewMetricsHandler creates a new MetricsHandler
func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

// Handle updates metrics based on the event
func (h *MetricsHandler) Handle(event DomainEvent) error {
	switch e := event.(type) {
	case DownloadStarted:
		h.started.Add(1)
	case DownloadProgress:
		h.chunks.Add(1)
		h.bytesMoved.Add(e.Payload.ChunkSize)
	case DownloadRetrying:
		h.retries.Add(1)
	case DownloadCompleted:
		h.completed.Add(1)
	case DownloadFailed:
		h.failed.Add(1)
	case DownloadCancelled:
		h.cancelled.Add(1)
	}
	return nil
}

// HandledEvents returns the events this handler handles
func (h *MetricsHandler) HandledEvents() []string {
	return []string{
		NameDownloadStarted,
		NameDownloadProgress,
		NameDownloadRetrying,
		NameDownloadCompleted,
		NameDownloadFailed,
		NameDownloadCancelled,
	}
}

// GetMetrics returns current metrics
func (h *MetricsHandler) GetMetrics() map[string]int64 {
	return map[string]int64{
		"downloads_started":   h.started.Load(),
		"downloads_completed": h.completed.Load(),
		"downloads_failed":    h.failed.Load(),
		"downloads_cancelled": h.cancelled.Load(),
		"chunk_retries":       h.retries.Load(),
		"chunks_delivered":    h.chunks.Load(),
		"bytes_delivered":     h.bytesMoved.Load(),
	}
}
