package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/agentlab/inference-gateway/internal/domain"
)

func reqN(i int) domain.GenerationRequest {
	return domain.GenerationRequest{Model: "m1", Prompt: fmt.Sprintf("prompt %d", i)}
}

func resN(i int) domain.GenerationResult {
	return domain.GenerationResult{Text: fmt.Sprintf("answer %d", i), Model: "m1"}
}

func TestExactCache_PutAndGet(t *testing.T) {
	c := NewExactCache(10, time.Minute, nil)
	ctx := context.Background()

	c.Put(ctx, reqN(1), resN(1))

	got, ok := c.Get(ctx, reqN(1))
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.Text != "answer 1" {
		t.Errorf("Text = %q, want %q", got.Text, "answer 1")
	}
}

func TestExactCache_Miss(t *testing.T) {
	c := NewExactCache(10, time.Minute, nil)

	if _, ok := c.Get(context.Background(), reqN(1)); ok {
		t.Error("expected cache miss")
	}
}

func TestExactCache_LazyExpiry(t *testing.T) {
	c := NewExactCache(10, time.Minute, nil)
	ctx := context.Background()

	now := time.Now()
	c.now = func() time.Time { return now }

	c.Put(ctx, reqN(1), resN(1))

	if _, ok := c.Get(ctx, reqN(1)); !ok {
		t.Fatal("expected hit before expiry")
	}

	c.now = func() time.Time { return now.Add(2 * time.Minute) }

	if _, ok := c.Get(ctx, reqN(1)); ok {
		t.Error("expected miss after TTL")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry should be removed on read, Len = %d", c.Len())
	}
}

func TestExactCache_FIFOEviction(t *testing.T) {
	const capacity = 5
	c := NewExactCache(capacity, time.Minute, nil)
	ctx := context.Background()

	for i := 0; i < capacity+1; i++ {
		c.Put(ctx, reqN(i), resN(i))
	}

	if c.Len() != capacity {
		t.Fatalf("Len = %d, want %d", c.Len(), capacity)
	}

	// The oldest entry (and only it) is gone.
	if _, ok := c.Get(ctx, reqN(0)); ok {
		t.Error("oldest entry should be evicted")
	}
	for i := 1; i <= capacity; i++ {
		if _, ok := c.Get(ctx, reqN(i)); !ok {
			t.Errorf("entry %d should survive", i)
		}
	}
}

func TestExactCache_OverwriteKeepsPosition(t *testing.T) {
	c := NewExactCache(2, time.Minute, nil)
	ctx := context.Background()

	c.Put(ctx, reqN(1), resN(1))
	c.Put(ctx, reqN(2), resN(2))
	c.Put(ctx, reqN(1), domain.GenerationResult{Text: "updated"})
	c.Put(ctx, reqN(3), resN(3))

	// Re-putting entry 1 does not refresh its insertion slot, so it is
	// still the oldest and gets evicted by entry 3.
	if _, ok := c.Get(ctx, reqN(1)); ok {
		t.Error("entry 1 should have been evicted as oldest")
	}
	if _, ok := c.Get(ctx, reqN(2)); !ok {
		t.Error("entry 2 should survive")
	}
}

func TestExactCache_CollisionFullCompare(t *testing.T) {
	c := NewExactCache(10, time.Minute, nil)
	ctx := context.Background()

	// Force a colliding key by storing an entry whose stored request does
	// not match the probe. A real SHA-256 collision cannot be constructed,
	// so the map is seeded directly.
	probe := reqN(1)
	key := Key(probe)

	c.mu.Lock()
	c.putLocked(key, &Entry{
		Request:   reqN(2),
		Result:    resN(2),
		CreatedAt: time.Now(),
	})
	c.mu.Unlock()

	if _, ok := c.Get(ctx, probe); ok {
		t.Error("colliding key with different request must be a miss")
	}
}

// stubDurable is an in-memory DurableStore for tests.
type stubDurable struct {
	entries map[string]*Entry
	getErr  error
	gets    int
	sets    int
}

func newStubDurable() *stubDurable {
	return &stubDurable{entries: make(map[string]*Entry)}
}

func (s *stubDurable) Get(ctx context.Context, key string) (*Entry, error) {
	s.gets++
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.entries[key], nil
}

func (s *stubDurable) Set(ctx context.Context, key string, entry *Entry, ttl time.Duration) error {
	s.sets++
	s.entries[key] = entry
	return nil
}

func TestExactCache_DurableFallbackAndPromotion(t *testing.T) {
	durable := newStubDurable()
	ctx := context.Background()

	req := reqN(1)
	durable.entries[Key(req)] = &Entry{
		Request:   req,
		Result:    resN(1),
		CreatedAt: time.Now(),
	}

	c := NewExactCache(10, time.Minute, durable)

	got, ok := c.Get(ctx, req)
	if !ok {
		t.Fatal("expected durable hit")
	}
	if got.Text != "answer 1" {
		t.Errorf("Text = %q, want %q", got.Text, "answer 1")
	}

	// Promoted: second lookup is served from memory.
	c.Get(ctx, req)
	if durable.gets != 1 {
		t.Errorf("durable gets = %d, want 1 (promotion into memory)", durable.gets)
	}
}

func TestExactCache_DurableWriteThrough(t *testing.T) {
	durable := newStubDurable()
	c := NewExactCache(10, time.Minute, durable)

	c.Put(context.Background(), reqN(1), resN(1))

	if durable.sets != 1 {
		t.Errorf("durable sets = %d, want 1", durable.sets)
	}
}

func TestExactCache_CorruptDurableEntryIsMiss(t *testing.T) {
	durable := newStubDurable()
	durable.getErr = fmt.Errorf("%w: bad json", domain.ErrCacheCorruption)

	c := NewExactCache(10, time.Minute, durable)

	if _, ok := c.Get(context.Background(), reqN(1)); ok {
		t.Error("corrupt durable entry must be treated as a miss")
	}
}

func TestExactCache_ExpiredDurableEntryIsMiss(t *testing.T) {
	durable := newStubDurable()
	ctx := context.Background()

	req := reqN(1)
	durable.entries[Key(req)] = &Entry{
		Request:   req,
		Result:    resN(1),
		CreatedAt: time.Now().Add(-2 * time.Minute),
	}

	c := NewExactCache(10, time.Minute, durable)

	if _, ok := c.Get(ctx, req); ok {
		t.Error("expired durable entry must be a miss")
	}
}

func BenchmarkExactCache_Get(b *testing.B) {
	c := NewExactCache(1024, time.Hour, nil)
	ctx := context.Background()

	for i := 0; i < 1024; i++ {
		c.Put(ctx, reqN(i), resN(i))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Get(ctx, reqN(i%1024))
	}
}

func BenchmarkExactCache_Put(b *testing.B) {
	c := NewExactCache(1024, time.Hour, nil)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Put(ctx, reqN(i), resN(i))
	}
}
