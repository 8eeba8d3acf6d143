// Package ratelimit implements a fixed-window request limiter keyed by
// (subject, route).
//
// A window opens on the first request after the previous window lapsed and
// admits up to max requests until it resets. Counts are never decremented
// retroactively, so a burst straddling a window boundary can briefly admit
// up to 2x max; that over-admission is an accepted tradeoff for keeping the
// bookkeeping to one counter and one deadline per identifier.
package ratelimit

import (
	"sync"
	"time"
)

// Result describes the outcome of a Check. A disallowed request is not an
// error: callers answer 429 with the remaining/reset metadata as retry hints.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

type window struct {
	count   int
	resetAt time.Time
}

// Limiter tracks one fixed window per identifier. State grows with the
// number of distinct identifiers until the periodic sweep drops windows
// whose deadline has passed.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window

	now  func() time.Time
	done chan struct{}
	once sync.Once
}

// DefaultSweepInterval is how often expired windows are dropped.
const DefaultSweepInterval = 5 * time.Minute

// New returns a limiter whose sweep runs every sweepInterval. A non-positive
// interval disables the sweep.
func New(sweepInterval time.Duration) *Limiter {
	l := &Limiter{
		windows: make(map[string]*window),
		now:     time.Now,
		done:    make(chan struct{}),
	}
	if sweepInterval > 0 {
		go l.sweepLoop(sweepInterval)
	}
	return l
}

// Check records one request for subject on route and reports whether it fits
// inside the current window of max requests per windowDur.
func (l *Limiter) Check(subject, route string, max int, windowDur time.Duration) Result {
	key := subject + ":" + route
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{count: 1, resetAt: now.Add(windowDur)}
		l.windows[key] = w
		return Result{Allowed: true, Remaining: max - 1, ResetAt: w.resetAt}
	}

	w.count++
	remaining := max - w.count
	if remaining < 0 {
		remaining = 0
	}
	return Result{Allowed: w.count <= max, Remaining: remaining, ResetAt: w.resetAt}
}

// Close stops the background sweep.
func (l *Limiter) Close() {
	l.once.Do(func() { close(l.done) })
}

func (l *Limiter) sweepLoop(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-t.C:
			l.sweep()
		}
	}
}

func (l *Limiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for k, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, k)
		}
	}
}
