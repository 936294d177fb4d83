package domain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Common domain errors
var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrCancelled     = errors.New("download cancelled")
	ErrSourceChanged = errors.New("source changed since checkpoint")

	// Aggregator errors
	ErrInvalidDelta = errors.New("chunk delta must be positive")

	// Session errors
	ErrSessionTerminal = errors.New("session already in terminal state")
)

// TransportError is returned when a chunk fetch fails at the transport
// level: connection failure or a non-success status.
type TransportError struct {
	URL        string
	StatusCode int // 0 when no response was received
	Err        error
	Permanent  bool
	RetryAfter time.Duration
}

// Error returns the error message
func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("transport: %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("transport: %s: status %d", e.URL, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("transport: %s: %v", e.URL, e.Err)
	}
	return "transport error"
}

// Unwrap returns the underlying error
func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError classifies a failed request. Connection failures, 408,
// 429 and 5xx are transient; any other status is permanent.
func NewTransportError(url string, statusCode int, err error) *TransportError {
	te := &TransportError{URL: url, StatusCode: statusCode, Err: err}
	switch {
	case statusCode == 0:
		te.Permanent = false
	case statusCode >= 500:
		te.Permanent = false
	case statusCode == http.StatusTooManyRequests, statusCode == http.StatusRequestTimeout:
		te.Permanent = false
	default:
		te.Permanent = true
	}
	return te
}

// RangeUnsupportedError is returned when the resource cannot be retrieved
// in parts. Callers fall back to whole-resource retrieval.
type RangeUnsupportedError struct {
	URL        string
	StatusCode int
}

func (e *RangeUnsupportedError) Error() string {
	return fmt.Sprintf("range requests not supported: %s (status %d)", e.URL, e.StatusCode)
}

// CorruptResponseError is returned when the reported length of a response
// disagrees with the bytes actually received.
type CorruptResponseError struct {
	URL      string
	Reason   string
	Expected int64
	Actual   int64
}

func (e *CorruptResponseError) Error() string {
	return fmt.Sprintf("corrupt response from %s: %s (expected %d, got %d)", e.URL, e.Reason, e.Expected, e.Actual)
}

// OverflowError is returned when recording a delta would push cumulative
// progress past a known total.
type OverflowError struct {
	Progress int64
	Delta    int64
	Total    int64
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("progress overflow: %d + %d exceeds total %d", e.Progress, e.Delta, e.Total)
}

// TotalAlreadyKnownError is returned when a different total is set after
// one has already been established.
type TotalAlreadyKnownError struct {
	Current   int64
	Attempted int64
}

func (e *TotalAlreadyKnownError) Error() string {
	return fmt.Sprintf("total already known: %d (attempted %d)", e.Current, e.Attempted)
}

// DuplicateDownloadError is returned when a download for a url is already
// active and coalescing is disabled.
type DuplicateDownloadError struct {
	URL string
}

func (e *DuplicateDownloadError) Error() string {
	return fmt.Sprintf("download already in progress: %s", e.URL)
}

// IsRetryable returns true if the error should be retried by the session.
// Only non-permanent transport errors qualify.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var te *TransportError
	if errors.As(err, &te) {
		return !te.Permanent
	}
	return false
}

// GetRetryAfter returns the server-advertised retry delay if any
func GetRetryAfter(err error) (time.Duration, bool) {
	var te *TransportError
	if errors.As(err, &te) && te.RetryAfter > 0 {
		return te.RetryAfter, true
	}
	return 0, false
}

// IsRangeUnsupported returns true if err reports missing range support
func IsRangeUnsupported(err error) bool {
	var re *RangeUnsupportedError
	return errors.As(err, &re)
}

// IsDuplicate returns true if err is a DuplicateDownloadError
func IsDuplicate(err error) bool {
	var de *DuplicateDownloadError
	return errors.As(err, &de)
}
