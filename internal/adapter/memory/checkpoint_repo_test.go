package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vertextoedge/chunkdl/internal/domain"
)

func TestCheckpointRepository_SaveLoadDelete(t *testing.T) {
	repo := NewCheckpointRepository()

	cp, err := repo.Load("http://x/a")
	require.NoError(t, err)
	assert.Nil(t, cp)

	require.NoError(t, repo.Save(&domain.Checkpoint{URL: "http://x/a", Cursor: 300, Total: 1000, ETag: "v1"}))

	cp, err = repo.Load("http://x/a")
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, int64(300), cp.Cursor)
	assert.Equal(t, "v1", cp.ETag)
	assert.False(t, cp.CreatedAt.IsZero())

	created := cp.CreatedAt
	require.NoError(t, repo.Save(&domain.Checkpoint{URL: "http://x/a", Cursor: 600, Total: 1000}))
	cp, _ = repo.Load("http://x/a")
	assert.Equal(t, int64(600), cp.Cursor)
	assert.Equal(t, created, cp.CreatedAt)

	require.NoError(t, repo.Delete("http://x/a"))
	require.NoError(t, repo.Delete("http://x/a"))
	cp, _ = repo.Load("http://x/a")
	assert.Nil(t, cp)
}

func TestCheckpointRepository_SaveRejectsEmptyURL(t *testing.T) {
	repo := NewCheckpointRepository()
	assert.ErrorIs(t, repo.Save(&domain.Checkpoint{}), domain.ErrInvalidInput)
	assert.ErrorIs(t, repo.Save(nil), domain.ErrInvalidInput)
}

func TestCheckpointRepository_ListPruneStats(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	repo := NewCheckpointRepository()
	repo.now = func() time.Time { return now }

	require.NoError(t, repo.Save(&domain.Checkpoint{URL: "old", Cursor: 10, UpdatedAt: now.Add(-48 * time.Hour)}))
	require.NoError(t, repo.Save(&domain.Checkpoint{URL: "new", Cursor: 20, LastError: "boom", UpdatedAt: now.Add(-time.Minute)}))

	list, err := repo.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "new", list[0].URL)

	stats, err := repo.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Count)
	assert.Equal(t, int64(30), stats.BytesStored)
	assert.Equal(t, 1, stats.FailedCount)

	removed, err := repo.PruneOlderThan(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	list, _ = repo.List()
	require.Len(t, list, 1)
	assert.Equal(t, "new", list[0].URL)
}
