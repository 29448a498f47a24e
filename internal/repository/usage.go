// Package repository persists per-request usage records for offline
// analysis. The in-memory ledger answers "what has this run spent"; the
// store answers "what happened last Tuesday".
package repository

import (
	"context"
	"sort"
	"sync"
	"time"
)

// UsageRecord is one completed generation: what ran, what it consumed, and
// whether a cache tier absorbed it.
type UsageRecord struct {
	RequestID    string    `json:"request_id"`
	Model        string    `json:"model"`
	Provider     string    `json:"provider"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	CostUSD      float64   `json:"cost_usd"`
	CacheSource  string    `json:"cache_source"`
	LatencyMs    int64     `json:"latency_ms"`
	Timestamp    time.Time `json:"timestamp"`
}

// UsageStore is satisfied by the in-memory and Postgres implementations.
// Record failures are logged by callers but never fail the generation.
type UsageStore interface {
	Record(ctx context.Context, record UsageRecord) error
	Since(ctx context.Context, since time.Time) ([]UsageRecord, error)
	TotalCost(ctx context.Context, since time.Time) (float64, error)
}

// InMemoryUsageStore keeps records in process memory. The default when no
// DATABASE_URL is configured.
type InMemoryUsageStore struct {
	mu      sync.RWMutex
	records []UsageRecord
}

func NewInMemoryUsageStore() *InMemoryUsageStore {
	return &InMemoryUsageStore{}
}

func (s *InMemoryUsageStore) Record(ctx context.Context, record UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

func (s *InMemoryUsageStore) Since(ctx context.Context, since time.Time) ([]UsageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []UsageRecord
	for _, r := range s.records {
		if !r.Timestamp.Before(since) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

func (s *InMemoryUsageStore) TotalCost(ctx context.Context, since time.Time) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total float64
	for _, r := range s.records {
		if !r.Timestamp.Before(since) {
			total += r.CostUSD
		}
	}
	return total, nil
}
