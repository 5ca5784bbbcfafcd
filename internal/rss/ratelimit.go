package rss

import (
	"sync"
	"time"
)

// CounterStore tracks fixed-window request counts per identity. The in-memory
// implementation below covers a single instance; a shared store (e.g. Redis)
// can be dropped in behind the same interface for a fleet.
type CounterStore interface {
	// Incr bumps identity's counter for the window containing now, resetting
	// the counter when the previous window has elapsed, and returns the
	// post-increment count.
	Incr(identity string, now time.Time, window time.Duration) int
}

type windowCounter struct {
	start time.Time
	count int
}

// MemoryCounters is the single-instance CounterStore: a mutex-guarded map of
// per-identity window counters.
type MemoryCounters struct {
	mu      sync.Mutex
	windows map[string]*windowCounter
}

func NewMemoryCounters() *MemoryCounters {
	return &MemoryCounters{windows: make(map[string]*windowCounter)}
}

func (m *MemoryCounters) Incr(identity string, now time.Time, window time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[identity]
	if !ok || now.Sub(w.start) >= window {
		w = &windowCounter{start: now}
		m.windows[identity] = w
	}
	w.count++
	return w.count
}

// RateLimiter bounds how often one identity may trigger fetches: a fixed
// window of max operations, reset when the window elapses. Checked before any
// network or storage side effect.
type RateLimiter struct {
	store  CounterStore
	window time.Duration
	max    int
	now    func() time.Time
}

func NewRateLimiter(store CounterStore, window time.Duration, max int) *RateLimiter {
	return &RateLimiter{
		store:  store,
		window: window,
		max:    max,
		now:    time.Now,
	}
}

// Allow reports whether identity may proceed. Denied calls still count
// against the window.
func (rl *RateLimiter) Allow(identity string) bool {
	return rl.store.Incr(identity, rl.now(), rl.window) <= rl.max
}
