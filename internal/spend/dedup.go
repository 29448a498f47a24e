package spend

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduplicator decides whether an alert at a given level has already been
// dispatched, by this instance or another one.
type Deduplicator interface {
	// ShouldAlert returns true exactly once per level until Clear is called
	// or the distributed lock expires.
	ShouldAlert(ctx context.Context, level AlertLevel) bool

	// Clear forgets dispatched levels; called when spend drops back under
	// the warning threshold (after a ledger reset).
	Clear(ctx context.Context)
}

// InMemoryDeduplicator tracks dispatched levels in process memory.
type InMemoryDeduplicator struct {
	mu   sync.Mutex
	sent map[AlertLevel]bool
}

func NewInMemoryDeduplicator() *InMemoryDeduplicator {
	return &InMemoryDeduplicator{sent: make(map[AlertLevel]bool)}
}

func (d *InMemoryDeduplicator) ShouldAlert(ctx context.Context, level AlertLevel) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.sent[level] {
		return false
	}
	d.sent[level] = true
	return true
}

func (d *InMemoryDeduplicator) Clear(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = make(map[AlertLevel]bool)
}

// RedisDeduplicator shares alert state across gateway instances via SETNX.
type RedisDeduplicator struct {
	client  *redis.Client
	lockTTL time.Duration
}

func NewRedisDeduplicator(redisURL string, lockTTL time.Duration) (*RedisDeduplicator, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisDeduplicator{client: client, lockTTL: lockTTL}, nil
}

func NewRedisDeduplicatorWithClient(client *redis.Client, lockTTL time.Duration) *RedisDeduplicator {
	return &RedisDeduplicator{client: client, lockTTL: lockTTL}
}

func (d *RedisDeduplicator) alertKey(level AlertLevel) string {
	return fmt.Sprintf("spend:alert:%s", level)
}

func (d *RedisDeduplicator) ShouldAlert(ctx context.Context, level AlertLevel) bool {
	acquired, err := d.client.SetNX(ctx, d.alertKey(level), time.Now().Unix(), d.lockTTL).Result()
	if err != nil {
		// Fail open on Redis errors so alerts are never dropped.
		return true
	}
	return acquired
}

func (d *RedisDeduplicator) Clear(ctx context.Context) {
	for _, level := range []AlertLevel{AlertLevelWarning, AlertLevelCritical, AlertLevelExceeded} {
		d.client.Del(ctx, d.alertKey(level))
	}
}

func (d *RedisDeduplicator) Close() error {
	return d.client.Close()
}
