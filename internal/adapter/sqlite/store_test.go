package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vertextoedge/chunkdl/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "nested", "chunkdl.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestOpen_CreatesSchemaAndReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunkdl.db")

	store, err := Open(path, time.Second)
	require.NoError(t, err)
	require.NoError(t, store.Ping())
	require.NoError(t, store.Save(&domain.Checkpoint{URL: "http://x/a", Cursor: 42, Total: 100}))
	require.NoError(t, store.Close())

	store, err = Open(path, time.Second)
	require.NoError(t, err)
	defer store.Close()

	cp, err := store.Load("http://x/a")
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, int64(42), cp.Cursor)
}

func TestCheckpoint_SaveLoad(t *testing.T) {
	store := openTestStore(t)

	cp, err := store.Load("http://x/missing")
	require.NoError(t, err)
	assert.Nil(t, cp)

	created := time.UnixMilli(time.Now().UnixMilli())
	require.NoError(t, store.Save(&domain.Checkpoint{
		URL:       "http://x/a",
		Cursor:    300,
		Total:     domain.UnknownTotal,
		ETag:      "abc",
		CreatedAt: created,
		UpdatedAt: created,
	}))

	cp, err = store.Load("http://x/a")
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, "http://x/a", cp.URL)
	assert.Equal(t, int64(300), cp.Cursor)
	assert.Equal(t, domain.UnknownTotal, cp.Total)
	assert.Equal(t, "abc", cp.ETag)
	assert.Empty(t, cp.LastError)
	assert.True(t, created.Equal(cp.CreatedAt))
}

func TestCheckpoint_SaveUpsertKeepsCreatedAt(t *testing.T) {
	store := openTestStore(t)

	first := time.UnixMilli(1_700_000_000_000)
	require.NoError(t, store.Save(&domain.Checkpoint{URL: "u", Cursor: 1, Total: 10, CreatedAt: first, UpdatedAt: first}))

	later := first.Add(time.Hour)
	require.NoError(t, store.Save(&domain.Checkpoint{URL: "u", Cursor: 5, Total: 10, LastError: "boom", CreatedAt: later, UpdatedAt: later}))

	cp, err := store.Load("u")
	require.NoError(t, err)
	assert.Equal(t, int64(5), cp.Cursor)
	assert.Equal(t, "boom", cp.LastError)
	assert.True(t, first.Equal(cp.CreatedAt))
	assert.True(t, later.Equal(cp.UpdatedAt))
}

func TestCheckpoint_SaveRejectsInvalid(t *testing.T) {
	store := openTestStore(t)
	assert.ErrorIs(t, store.Save(nil), domain.ErrInvalidInput)
	assert.ErrorIs(t, store.Save(&domain.Checkpoint{Cursor: 1}), domain.ErrInvalidInput)
}

func TestCheckpoint_Delete(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.Save(&domain.Checkpoint{URL: "u", Cursor: 1}))
	require.NoError(t, store.Delete("u"))
	require.NoError(t, store.Delete("u"))

	cp, err := store.Load("u")
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestCheckpoint_ListPruneStats(t *testing.T) {
	store := openTestStore(t)
	now := time.UnixMilli(1_750_000_000_000)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Save(&domain.Checkpoint{URL: "old", Cursor: 100, Total: 1000, UpdatedAt: now.Add(-72 * time.Hour)}))
	require.NoError(t, store.Save(&domain.Checkpoint{URL: "mid", Cursor: 200, Total: 1000, LastError: "cancelled", UpdatedAt: now.Add(-time.Hour)}))
	require.NoError(t, store.Save(&domain.Checkpoint{URL: "new", Cursor: 300, Total: 1000}))

	list, err := store.List()
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"new", "mid", "old"}, []string{list[0].URL, list[1].URL, list[2].URL})

	stats, err := store.Stats()
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Count)
	assert.Equal(t, int64(600), stats.BytesStored)
	assert.Equal(t, 1, stats.FailedCount)

	removed, err := store.PruneOlderThan(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	list, err = store.List()
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestCheckpoint_StatsEmpty(t *testing.T) {
	store := openTestStore(t)

	stats, err := store.Stats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Count)
	assert.Equal(t, int64(0), stats.BytesStored)
}
