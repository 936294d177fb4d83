// Package memory provides in-process implementations of the repository
// ports, used when no database is configured.
package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/vertextoedge/chunkdl/internal/domain"
	"github.com/vertextoedge/chunkdl/internal/port"
)

// CheckpointRepository keeps checkpoints in a map
type CheckpointRepository struct {
	mu    sync.RWMutex
	items map[string]domain.Checkpoint
	now   func() time.Time
}

// Ensure CheckpointRepository implements port.CheckpointRepository
var _ port.CheckpointRepository = (*CheckpointRepository)(nil)

// NewCheckpointRepository creates an empty repository
func NewCheckpointRepository() *CheckpointRepository {
	return &CheckpointRepository{
		items: make(map[string]domain.Checkpoint),
		now:   time.Now,
	}
}

// Load returns a copy of the checkpoint for url, or nil
func (r *CheckpointRepository) Load(url string) (*domain.Checkpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cp, ok := r.items[url]
	if !ok {
		return nil, nil
	}
	return &cp, nil
}

// Save creates or replaces the checkpoint, keeping the original CreatedAt
func (r *CheckpointRepository) Save(cp *domain.Checkpoint) error {
	if cp == nil || cp.URL == "" {
		return domain.ErrInvalidInput
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *cp
	now := r.now()
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = now
	}
	if existing, ok := r.items[cp.URL]; ok {
		stored.CreatedAt = existing.CreatedAt
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	r.items[cp.URL] = stored
	return nil
}

// Delete removes the checkpoint for url
func (r *CheckpointRepository) Delete(url string) error {
	r.mu.Lock()
	delete(r.items, url)
	r.mu.Unlock()
	return nil
}

// List returns all checkpoints, most recently updated first
func (r *CheckpointRepository) List() ([]*domain.Checkpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Checkpoint, 0, len(r.items))
	for _, cp := range r.items {
		c := cp
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// PruneOlderThan removes checkpoints not updated within age
func (r *CheckpointRepository) PruneOlderThan(age time.Duration) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-age)
	removed := 0
	for url, cp := range r.items {
		if cp.UpdatedAt.Before(cutoff) {
			delete(r.items, url)
			removed++
		}
	}
	return removed, nil
}

// Stats returns aggregate statistics
func (r *CheckpointRepository) Stats() (*domain.CheckpointStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := &domain.CheckpointStats{Count: len(r.items)}
	for _, cp := range r.items {
		stats.BytesStored += cp.Cursor
		if cp.LastError != "" {
			stats.FailedCount++
		}
	}
	return stats, nil
}
