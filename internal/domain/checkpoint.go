package domain

import "time"

// Checkpoint stores how far a download got so a later session can resume
type Checkpoint struct {
	URL    string
	Cursor int64
	Total  int64 // UnknownTotal if not discovered
	ETag   string

	// LastError is the terminal error of the session that wrote the
	// checkpoint, if any
	LastError string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CanResume returns true if the checkpoint records progress worth resuming
func (c *Checkpoint) CanResume() bool {
	if c == nil || c.Cursor <= 0 {
		return false
	}
	return c.Total < 0 || c.Cursor < c.Total
}

// Advance records a new cursor position observed at
func (c *Checkpoint) Advance(cursor, total int64, etag string, at time.Time) {
	c.Cursor = cursor
	c.Total = total
	if etag != "" {
		c.ETag = etag
	}
	c.UpdatedAt = at
}

// CheckpointStats summarises stored checkpoints
type CheckpointStats struct {
	Count       int
	BytesStored int64
	FailedCount int
}
