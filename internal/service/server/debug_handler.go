package server

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/chunkdl/internal/domain"
	"github.com/vertextoedge/chunkdl/internal/port"
)

// DebugHandler handles debug endpoint requests
type DebugHandler struct {
	downloads   Downloads
	checkpoints port.CheckpointRepository
	metrics     MetricsSource
	logger      *zap.Logger
}

// NewDebugHandler creates a new DebugHandler
func NewDebugHandler(downloads Downloads, checkpoints port.CheckpointRepository, metrics MetricsSource, logger *zap.Logger) *DebugHandler {
	return &DebugHandler{
		downloads:   downloads,
		checkpoints: checkpoints,
		metrics:     metrics,
		logger:      logger,
	}
}

// HandleDownloads lists the latest progress payload of every running download
func (h *DebugHandler) HandleDownloads(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	payloads := []domain.ProgressPayload{}
	for _, url := range h.downloads.Active() {
		// Finished between Active and Progress
		if p, ok := h.downloads.Progress(url); ok {
			payloads = append(payloads, p)
		}
	}

	writeJSON(w, payloads)
}

// checkpointView is the JSON form of a stored checkpoint
type checkpointView struct {
	URL       string    `json:"url"`
	Cursor    int64     `json:"cursor"`
	Total     *int64    `json:"total"`
	ETag      string    `json:"etag,omitempty"`
	LastError string    `json:"lastError,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HandleCheckpoints lists stored checkpoints with aggregate statistics
func (h *DebugHandler) HandleCheckpoints(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.checkpoints == nil {
		http.Error(w, "Checkpoints disabled", http.StatusNotFound)
		return
	}

	list, err := h.checkpoints.List()
	if err != nil {
		h.logger.Error("failed to list checkpoints", zap.Error(err))
		http.Error(w, "Failed to list checkpoints", http.StatusInternalServerError)
		return
	}

	stats, err := h.checkpoints.Stats()
	if err != nil {
		h.logger.Error("failed to get checkpoint stats", zap.Error(err))
		http.Error(w, "Failed to get checkpoint stats", http.StatusInternalServerError)
		return
	}

	views := make([]checkpointView, 0, len(list))
	for _, cp := range list {
		views = append(views, checkpointView{
			URL:       cp.URL,
			Cursor:    cp.Cursor,
			Total:     domain.TotalPtr(cp.Total),
			ETag:      cp.ETag,
			LastError: cp.LastError,
			UpdatedAt: cp.UpdatedAt,
		})
	}

	writeJSON(w, map[string]interface{}{
		"checkpoints": views,
		"stats": map[string]interface{}{
			"count":       stats.Count,
			"bytesStored": stats.BytesStored,
			"failed":      stats.FailedCount,
		},
	})
}

// HandleMetrics returns event counters
func (h *DebugHandler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.metrics == nil {
		writeJSON(w, map[string]int64{})
		return
	}

	writeJSON(w, h.metrics.GetMetrics())
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
