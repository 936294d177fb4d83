package port

import "time"

// PartialFiles manages files of downloads that have not completed
type PartialFiles interface {
	// CleanOldPartials removes partial files not modified within olderThan
	// and returns how many were removed
	CleanOldPartials(olderThan time.Duration) (int, error)
}
