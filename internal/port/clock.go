package port

import (
	"context"
	"time"
)

// Clock abstracts time so retry backoff can be tested without waiting
type Clock interface {
	Now() time.Time

	// Sleep blocks for d or until ctx is done, returning ctx.Err() in the
	// latter case
	Sleep(ctx context.Context, d time.Duration) error
}
