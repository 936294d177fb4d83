package session

import "github.com/vertextoedge/chunkdl/internal/domain"

// Subscriber receives notifications for one session. Any callback may be
// nil. Each subscriber gets exactly one of OnComplete or OnError.
type Subscriber struct {
	OnProgress func(domain.ProgressPayload)
	OnComplete func(domain.Result)
	OnError    func(error)
}

type subscription struct {
	id  uint64
	sub Subscriber

	// detached is set under the session mutex once the subscriber got its
	// terminal notification from Detach
	detached bool
}

func (s Subscriber) progress(p domain.ProgressPayload) {
	if s.OnProgress != nil {
		s.OnProgress(p)
	}
}

func (s Subscriber) complete(r domain.Result) {
	if s.OnComplete != nil {
		s.OnComplete(r)
	}
}

func (s Subscriber) fail(err error) {
	if s.OnError != nil {
		s.OnError(err)
	}
}
