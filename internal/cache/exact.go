package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/agentlab/inference-gateway/internal/domain"
)

// Entry is one cached generation. The stored request is kept alongside the
// result so a fingerprint collision can be detected by full compare.
type Entry struct {
	Request   domain.GenerationRequest `json:"request"`
	Result    domain.GenerationResult  `json:"result"`
	CreatedAt time.Time                `json:"created_at"`
}

// DurableStore is an optional second tier behind the in-memory map,
// shared across processes. A miss returns (nil, nil). Unreadable or
// malformed entries return an error wrapping domain.ErrCacheCorruption
// and are treated as misses by the cache, never surfaced to callers.
type DurableStore interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, key string, entry *Entry, ttl time.Duration) error
}

// ExactCache is a bounded in-memory map with FIFO eviction by insertion
// order and lazy TTL expiry, optionally backed by a DurableStore. Eviction
// deliberately ignores access recency: FIFO is cheaper than LRU and
// deterministic to test.
type ExactCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	entries  map[string]*Entry
	order    []string
	durable  DurableStore

	now func() time.Time
}

// NewExactCache creates a cache holding at most capacity entries
// (capacity <= 0 means unbounded) whose entries expire after ttl
// (ttl <= 0 means never).
func NewExactCache(capacity int, ttl time.Duration, durable DurableStore) *ExactCache {
	return &ExactCache{
		capacity: capacity,
		ttl:      ttl,
		entries:  make(map[string]*Entry),
		durable:  durable,
		now:      time.Now,
	}
}

// Get looks up req, checking memory first and falling back to the durable
// store. A durable hit is promoted into memory.
func (c *ExactCache) Get(ctx context.Context, req domain.GenerationRequest) (domain.GenerationResult, bool) {
	key := Key(req)

	c.mu.Lock()
	if entry, ok := c.entries[key]; ok {
		if c.expired(entry) {
			c.removeLocked(key)
		} else if sameRequest(entry.Request, req) {
			result := entry.Result
			c.mu.Unlock()
			return result, true
		} else {
			// Fingerprint collision with a different request.
			c.mu.Unlock()
			return domain.GenerationResult{}, false
		}
	}
	c.mu.Unlock()

	if c.durable == nil {
		return domain.GenerationResult{}, false
	}

	entry, err := c.durable.Get(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrCacheCorruption) {
			slog.Warn("corrupt durable cache entry, treating as miss", "key", key, "error", err)
		} else {
			slog.Warn("durable cache lookup failed", "key", key, "error", err)
		}
		return domain.GenerationResult{}, false
	}
	if entry == nil || c.expired(entry) || !sameRequest(entry.Request, req) {
		return domain.GenerationResult{}, false
	}

	c.mu.Lock()
	c.putLocked(key, entry)
	c.mu.Unlock()

	return entry.Result, true
}

// Put stores the result for req in memory and, best-effort, in the
// durable store. Storage failures are logged and never fail the request.
func (c *ExactCache) Put(ctx context.Context, req domain.GenerationRequest, result domain.GenerationResult) {
	key := Key(req)
	entry := &Entry{
		Request:   req,
		Result:    result,
		CreatedAt: c.now(),
	}

	c.mu.Lock()
	c.putLocked(key, entry)
	c.mu.Unlock()

	if c.durable != nil {
		if err := c.durable.Set(ctx, key, entry, c.ttl); err != nil {
			slog.Warn("durable cache write failed", "key", key, "error", err)
		}
	}
}

// Len reports the number of live in-memory entries.
func (c *ExactCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *ExactCache) expired(entry *Entry) bool {
	return c.ttl > 0 && c.now().Sub(entry.CreatedAt) > c.ttl
}

func (c *ExactCache) putLocked(key string, entry *Entry) {
	if _, exists := c.entries[key]; exists {
		// Same key keeps its original insertion position.
		c.entries[key] = entry
		return
	}

	c.entries[key] = entry
	c.order = append(c.order, key)

	if c.capacity > 0 && len(c.entries) > c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}

func (c *ExactCache) removeLocked(key string) {
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
