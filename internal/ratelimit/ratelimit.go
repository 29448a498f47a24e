// Package ratelimit paces outbound provider calls to stay under each
// provider's requests-per-minute ceiling, so the gateway sheds load locally
// instead of burning retry budget on upstream 429s. Supports in-memory
// (single instance) and Redis (distributed) backends.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter reports whether a call to a provider may proceed, how much of the
// window remains, and when the window resets.
type Limiter interface {
	Allow(ctx context.Context, providerID string, limit int) (allowed bool, remaining int, resetAt time.Time, err error)
}

// MemoryLimiter tracks fixed one-minute windows per provider in process
// memory.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

type window struct {
	count   int
	resetAt time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

func (l *MemoryLimiter) Allow(ctx context.Context, providerID string, limit int) (bool, int, time.Time, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	w, ok := l.windows[providerID]
	if !ok || now.After(w.resetAt) {
		w = &window{resetAt: now.Add(time.Minute)}
		l.windows[providerID] = w
	}

	if w.count >= limit {
		return false, 0, w.resetAt, nil
	}

	w.count++
	return true, limit - w.count, w.resetAt, nil
}
