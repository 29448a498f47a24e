package cache

import (
	"context"
	"math"
	"sync"

	"github.com/agentlab/inference-gateway/internal/domain"
)

// Embedder turns prompt text into a vector. Lookups and inserts must use
// the same embedder for similarity scores to be meaningful.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

type semanticEntry struct {
	embedding []float64
	result    domain.GenerationResult
}

// SemanticCache reuses generations across paraphrased prompts. Entries
// are scoped per model: a result cached for one model is never returned
// for another. Within a scope, lookup scans every stored embedding and
// returns the highest-similarity entry at or above the threshold; ties
// keep the entry inserted first. Eviction is FIFO per scope, independent
// of similarity score.
//
// False positives above the threshold are an accepted trade-off for
// paraphrase recall, tuned via the threshold.
type SemanticCache struct {
	mu        sync.Mutex
	embedder  Embedder
	threshold float64
	capacity  int
	scopes    map[string][]semanticEntry
}

// NewSemanticCache creates a cache holding at most capacity entries per
// model scope (capacity <= 0 means unbounded).
func NewSemanticCache(embedder Embedder, threshold float64, capacity int) *SemanticCache {
	return &SemanticCache{
		embedder:  embedder,
		threshold: threshold,
		capacity:  capacity,
		scopes:    make(map[string][]semanticEntry),
	}
}

// Get looks up the combined prompt text under the model's scope. The error
// is non-nil only when embedding fails; callers treat that as a miss.
func (c *SemanticCache) Get(ctx context.Context, model, text string) (domain.GenerationResult, bool, error) {
	embedding, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return domain.GenerationResult{}, false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	best := -1
	bestSim := 0.0
	for i, entry := range c.scopes[model] {
		sim := cosineSimilarity(embedding, entry.embedding)
		// Strict greater-than keeps the first-inserted entry on ties.
		if sim >= c.threshold && sim > bestSim {
			best = i
			bestSim = sim
		}
	}

	if best < 0 {
		return domain.GenerationResult{}, false, nil
	}
	return c.scopes[model][best].result, true, nil
}

// Put inserts a new entry after a miss and a successful generation.
// Entries are never mutated once stored.
func (c *SemanticCache) Put(ctx context.Context, model, text string, result domain.GenerationResult) error {
	embedding, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entries := append(c.scopes[model], semanticEntry{embedding: embedding, result: result})
	if c.capacity > 0 && len(entries) > c.capacity {
		entries = entries[len(entries)-c.capacity:]
	}
	c.scopes[model] = entries

	return nil
}

// Len reports the number of entries stored for a model scope.
func (c *SemanticCache) Len(model string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.scopes[model])
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
