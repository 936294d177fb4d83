package port

import (
	"time"

	"github.com/vertextoedge/chunkdl/internal/domain"
)

// CheckpointRepository persists per-url download progress so an
// interrupted download can resume
type CheckpointRepository interface {
	// Load returns the checkpoint for url, or nil if none is stored
	Load(url string) (*domain.Checkpoint, error)

	// Save creates or replaces the checkpoint for cp.URL
	Save(cp *domain.Checkpoint) error

	// Delete removes the checkpoint for url. Missing rows are not an error.
	Delete(url string) error

	// List returns all stored checkpoints ordered by most recent update
	List() ([]*domain.Checkpoint, error)

	// PruneOlderThan removes checkpoints not updated within the duration
	PruneOlderThan(age time.Duration) (int, error)

	// Stats returns aggregate checkpoint statistics
	Stats() (*domain.CheckpointStats, error)
}
