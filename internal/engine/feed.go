package engine

import (
	"sync"

	"quantbroker/internal/domain"
)

// Feed is a bar source the Runner can step.
type Feed interface {
	domain.Feed
	Advance() bool
}

// peeker is implemented by feeds that know their next bar, which lets
// the Runner keep several feeds aligned on time.
type peeker interface {
	Peek() (domain.Bar, bool)
}

// StreamFeed buffers bars pushed from a live source. Push may be called
// from any goroutine, the other methods belong to the Runner.
type StreamFeed struct {
	name string

	mu      sync.Mutex
	pending []domain.Bar
	current domain.Bar
	has     bool
}

// NewStreamFeed creates an empty live feed.
func NewStreamFeed(name string) *StreamFeed {
	return &StreamFeed{name: name}
}

func (f *StreamFeed) Name() string { return f.name }

// Push queues a completed bar.
func (f *StreamFeed) Push(b domain.Bar) {
	f.mu.Lock()
	f.pending = append(f.pending, b)
	f.mu.Unlock()
}

// Advance moves to the oldest queued bar, false when none is waiting.
func (f *StreamFeed) Advance() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pending) == 0 {
		return false
	}
	f.current, f.has = f.pending[0], true
	f.pending = f.pending[1:]
	return true
}

// Current returns the last bar advanced to.
func (f *StreamFeed) Current() (domain.Bar, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current, f.has
}
