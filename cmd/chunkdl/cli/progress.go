package cli

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/vertextoedge/chunkdl/internal/domain"
	"github.com/vertextoedge/chunkdl/internal/progress"
	"github.com/vertextoedge/chunkdl/internal/util/ratelimiter"
)

// progressInterval is the minimum time between two lines for one url
const progressInterval = 500 * time.Millisecond

// Progress modes accepted by --progress
const (
	progressAuto  = "auto"
	progressTTY   = "tty"
	progressPlain = "plain"
)

// shouldShowProgress reports whether progress lines go to w. Auto mode
// prints only when w is a terminal.
func shouldShowProgress(mode string, w io.Writer) (bool, error) {
	switch mode {
	case progressPlain:
		return false, nil
	case progressTTY:
		return true, nil
	case progressAuto, "":
		f, ok := w.(*os.File)
		return ok && term.IsTerminal(int(f.Fd())), nil
	default:
		return false, fmt.Errorf("invalid --progress %q: want auto, tty or plain", mode)
	}
}

// progressPrinter writes one status line per url at most every interval
type progressPrinter struct {
	mu       sync.Mutex
	out      io.Writer
	interval time.Duration
	limiters map[string]*ratelimiter.Limiter
}

func newProgressPrinter(out io.Writer, interval time.Duration) *progressPrinter {
	return &progressPrinter{
		out:      out,
		interval: interval,
		limiters: make(map[string]*ratelimiter.Limiter),
	}
}

// callback returns an OnProgress function, or nil when printing is disabled
func (p *progressPrinter) callback() func(domain.ProgressPayload) {
	if p == nil {
		return nil
	}
	return p.print
}

func (p *progressPrinter) print(payload domain.ProgressPayload) {
	p.mu.Lock()
	defer p.mu.Unlock()

	lim, ok := p.limiters[payload.URL]
	if !ok {
		lim = ratelimiter.New(p.interval)
		p.limiters[payload.URL] = lim
	}

	done := payload.Total != nil && payload.Progress == *payload.Total
	if allowed, _ := lim.Allow(); !allowed && !done {
		return
	}
	fmt.Fprintln(p.out, progress.Describe(payload))
}
