package event

import (
	"time"

	"github.com/vertextoedge/chunkdl/internal/domain"
)

// Event names
const (
	NameDownloadStarted   = "download.started"
	NameDownloadProgress  = "download.progress"
	NameDownloadCompleted = "download.completed"
	NameDownloadFailed    = "download.failed"
	NameDownloadCancelled = "download.cancelled"
	NameDownloadRetrying  = "download.retrying"
)

// DomainEvent is the interface for all domain events
type DomainEvent interface {
	// EventName returns the name of the event
	EventName() string
	// OccurredAt returns when the event occurred
	OccurredAt() time.Time
}

// BaseEvent provides common fields for all events
type BaseEvent struct {
	Timestamp time.Time
}

// OccurredAt returns when the event occurred
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// DownloadStarted is raised when a session begins fetching
type DownloadStarted struct {
	BaseEvent
	URL         string
	ChunkSize   int64
	ResumedFrom int64
}

// EventName returns the event name
func (e DownloadStarted) EventName() string {
	return NameDownloadStarted
}

// NewDownloadStarted creates a new DownloadStarted event
func NewDownloadStarted(url string, chunkSize, resumedFrom int64) DownloadStarted {
	return DownloadStarted{
		BaseEvent:   BaseEvent{Timestamp: time.Now()},
		URL:         url,
		ChunkSize:   chunkSize,
		ResumedFrom: resumedFrom,
	}
}

// DownloadProgress wraps a progress payload
type DownloadProgress struct {
	BaseEvent
	Payload domain.ProgressPayload
}

// EventName returns the event name
func (e DownloadProgress) EventName() string {
	return NameDownloadProgress
}

// NewDownloadProgress creates a new DownloadProgress event
func NewDownloadProgress(p domain.ProgressPayload) DownloadProgress {
	return DownloadProgress{
		BaseEvent: BaseEvent{Timestamp: time.Now()},
		Payload:   p,
	}
}

// DownloadRetrying is raised before a transient failure is retried
type DownloadRetrying struct {
	BaseEvent
	URL     string
	Offset  int64
	Attempt int
	Delay   time.Duration
	Error   string
}

// EventName returns the event name
func (e DownloadRetrying) EventName() string {
	return NameDownloadRetrying
}

// NewDownloadRetrying creates a new DownloadRetrying event
func NewDownloadRetrying(url string, offset int64, attempt int, delay time.Duration, err string) DownloadRetrying {
	return DownloadRetrying{
		BaseEvent: BaseEvent{Timestamp: time.Now()},
		URL:       url,
		Offset:    offset,
		Attempt:   attempt,
		Delay:     delay,
		Error:     err,
	}
}

// DownloadCompleted is raised when a session reaches the end of the resource
type DownloadCompleted struct {
	BaseEvent
	URL      string
	Size     int64
	Resumed  bool
	Duration time.Duration
}

// EventName returns the event name
func (e DownloadCompleted) EventName() string {
	return NameDownloadCompleted
}

// NewDownloadCompleted creates a new DownloadCompleted event
func NewDownloadCompleted(r domain.Result) DownloadCompleted {
	return DownloadCompleted{
		BaseEvent: BaseEvent{Timestamp: time.Now()},
		URL:       r.URL,
		Size:      r.Bytes,
		Resumed:   r.Resumed,
		Duration:  r.Duration,
	}
}

// DownloadFailed is raised when a session fails
type DownloadFailed struct {
	BaseEvent
	URL      string
	Progress int64
	Error    string
	Attempts int
}

// EventName returns the event name
func (e DownloadFailed) EventName() string {
	return NameDownloadFailed
}

// NewDownloadFailed creates a new DownloadFailed event
func NewDownloadFailed(url string, progress int64, err string, attempts int) DownloadFailed {
	return DownloadFailed{
		BaseEvent: BaseEvent{Timestamp: time.Now()},
		URL:       url,
		Progress:  progress,
		Error:     err,
		Attempts:  attempts,
	}
}

// DownloadCancelled is raised when a session is cancelled
type DownloadCancelled struct {
	BaseEvent
	URL      string
	Progress int64
}

// EventName returns the event name
func (e DownloadCancelled) EventName() string {
	return NameDownloadCancelled
}

// NewDownloadCancelled creates a new DownloadCancelled event
func NewDownloadCancelled(url string, progress int64) DownloadCancelled {
	return DownloadCancelled{
		BaseEvent: BaseEvent{Timestamp: time.Now()},
		URL:       url,
		Progress:  progress,
	}
}
