package sqlite

import (
	"database/sql"
	"errors"
	"time"

	"github.com/vertextoedge/chunkdl/internal/domain"
	"github.com/vertextoedge/chunkdl/internal/port"
)

// Ensure Store implements port.CheckpointRepository
var _ port.CheckpointRepository = (*Store)(nil)

const checkpointColumns = `url, cursor, total, etag, last_error, created_at, updated_at`

// Load returns the checkpoint for url, or nil if none is stored
func (s *Store) Load(url string) (*domain.Checkpoint, error) {
	row := s.db.QueryRow(`SELECT `+checkpointColumns+` FROM checkpoints WHERE url = ?`, url)

	cp, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return cp, nil
}

// Save creates or replaces the checkpoint for cp.URL. created_at of an
// existing row is kept.
func (s *Store) Save(cp *domain.Checkpoint) error {
	if cp == nil || cp.URL == "" {
		return domain.ErrInvalidInput
	}

	now := s.now()
	created := cp.CreatedAt
	if created.IsZero() {
		created = now
	}
	updated := cp.UpdatedAt
	if updated.IsZero() {
		updated = now
	}

	query := `
		INSERT INTO checkpoints (url, cursor, total, etag, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			cursor = excluded.cursor,
			total = excluded.total,
			etag = excluded.etag,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at
	`

	_, err := s.db.Exec(query,
		cp.URL, cp.Cursor, cp.Total, nullString(cp.ETag), nullString(cp.LastError),
		created.UnixMilli(), updated.UnixMilli())
	return err
}

// Delete removes the checkpoint for url
func (s *Store) Delete(url string) error {
	_, err := s.db.Exec("DELETE FROM checkpoints WHERE url = ?", url)
	return err
}

// List returns all checkpoints, most recently updated first
func (s *Store) List() ([]*domain.Checkpoint, error) {
	rows, err := s.db.Query(`SELECT ` + checkpointColumns + ` FROM checkpoints ORDER BY updated_at DESC, url ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var checkpoints []*domain.Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		checkpoints = append(checkpoints, cp)
	}
	return checkpoints, rows.Err()
}

// PruneOlderThan removes checkpoints not updated within age
func (s *Store) PruneOlderThan(age time.Duration) (int, error) {
	cutoff := s.now().Add(-age)

	result, err := s.db.Exec("DELETE FROM checkpoints WHERE updated_at < ?", cutoff.UnixMilli())
	if err != nil {
		return 0, err
	}

	count, err := result.RowsAffected()
	return int(count), err
}

// Stats returns aggregate checkpoint statistics
func (s *Store) Stats() (*domain.CheckpointStats, error) {
	stats := &domain.CheckpointStats{}

	var stored sql.NullInt64
	err := s.db.QueryRow(`
		SELECT COUNT(*), SUM(cursor),
			COUNT(CASE WHEN last_error IS NOT NULL AND last_error != '' THEN 1 END)
		FROM checkpoints
	`).Scan(&stats.Count, &stored, &stats.FailedCount)
	if err != nil {
		return nil, err
	}
	stats.BytesStored = stored.Int64

	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(row rowScanner) (*domain.Checkpoint, error) {
	cp := &domain.Checkpoint{}
	var etag, lastError sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(&cp.URL, &cp.Cursor, &cp.Total, &etag, &lastError, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if etag.Valid {
		cp.ETag = etag.String
	}
	if lastError.Valid {
		cp.LastError = lastError.String
	}
	cp.CreatedAt = time.UnixMilli(createdAt)
	cp.UpdatedAt = time.UnixMilli(updatedAt)

	return cp, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
