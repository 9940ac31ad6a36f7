package ratelimit

import (
	"context"
	"sort"
	"sync"
	"time"
)

// DefaultMaxKeys bounds the in-process window table.
const DefaultMaxKeys = 100000

type window struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter keeps fixed windows in process. It is only correct for a
// single API instance.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	maxKeys int
	now     func() time.Time
}

// NewMemoryLimiter creates a limiter tracking at most maxKeys keys.
func NewMemoryLimiter(maxKeys int) *MemoryLimiter {
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}
	return &MemoryLimiter{
		windows: make(map[string]*window),
		maxKeys: maxKeys,
		now:     time.Now,
	}
}

// Allow implements Limiter.
func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, win time.Duration) (Decision, error) {
	if err := validate(limit, win); err != nil {
		return Decision{}, err
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		if !ok && len(l.windows) >= l.maxKeys {
			l.gc(now)
		}
		w = &window{resetAt: now.Add(win)}
		l.windows[key] = w
	}
	w.count++

	return decide(w.count, limit, w.resetAt), nil
}

// Len reports how many keys are tracked.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// gc drops expired windows. If every window is still live it evicts the
// ones closest to expiry, a sixteenth of the table at a time, so callers
// deep into a fresh window keep their count.
func (l *MemoryLimiter) gc(now time.Time) {
	for k, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, k)
		}
	}
	if len(l.windows) < l.maxKeys {
		return
	}

	keys := make([]string, 0, len(l.windows))
	for k := range l.windows {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return l.windows[keys[i]].resetAt.Before(l.windows[keys[j]].resetAt)
	})
	evict := len(keys)/16 + 1
	for _, k := range keys[:evict] {
		delete(l.windows, k)
	}
}
