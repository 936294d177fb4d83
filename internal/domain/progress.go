package domain

import "time"

// UnknownTotal marks a resource whose size has not been discovered yet
const UnknownTotal int64 = -1

// ProgressPayload is emitted once per delivered chunk of a download
type ProgressPayload struct {
	URL       string `json:"url"`
	ChunkSize int64  `json:"chunkSize"`
	Progress  int64  `json:"progress"`
	Total     *int64 `json:"total"`
}

// TotalKnown returns true if the payload carries a total
func (p ProgressPayload) TotalKnown() bool {
	return p.Total != nil
}

// TotalPtr converts a total to its payload form. Negative means unknown.
func TotalPtr(total int64) *int64 {
	if total < 0 {
		return nil
	}
	t := total
	return &t
}

// Result describes a completed download
type Result struct {
	URL string

	// Bytes is the number of bytes delivered, including resumed bytes
	Bytes int64
	Total *int64

	// Resumed indicates the session started from a stored checkpoint
	Resumed     bool
	ResumedFrom int64

	Duration time.Duration
}
