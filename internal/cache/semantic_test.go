package cache

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/agentlab/inference-gateway/internal/domain"
)

// stubEmbedder maps known texts to fixed vectors.
type stubEmbedder struct {
	vectors map[string][]float64
	err     error
}

func (e *stubEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if e.err != nil {
		return nil, e.err
	}
	v, ok := e.vectors[text]
	if !ok {
		return nil, fmt.Errorf("no vector for %q", text)
	}
	return v, nil
}

func TestSemanticCache_HitAboveThreshold(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string][]float64{
		"What is 2+2?":      {1, 0, 0},
		"What's two plus 2": {0.99, 0.14, 0}, // cos ≈ 0.990
	}}
	c := NewSemanticCache(embedder, 0.95, 10)
	ctx := context.Background()

	if err := c.Put(ctx, "m1", "What is 2+2?", domain.GenerationResult{Text: "4"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, ok, err := c.Get(ctx, "m1", "What's two plus 2")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("expected semantic hit for paraphrase")
	}
	if got.Text != "4" {
		t.Errorf("Text = %q, want %q", got.Text, "4")
	}
}

func TestSemanticCache_MissBelowThreshold(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string][]float64{
		"What is 2+2?":       {1, 0, 0},
		"Write a sonnet":     {0, 1, 0},
		"Mostly orthogonal?": {0.5, 0.87, 0},
	}}
	c := NewSemanticCache(embedder, 0.95, 10)
	ctx := context.Background()

	c.Put(ctx, "m1", "What is 2+2?", domain.GenerationResult{Text: "4"})

	for _, query := range []string{"Write a sonnet", "Mostly orthogonal?"} {
		if _, ok, _ := c.Get(ctx, "m1", query); ok {
			t.Errorf("query %q should miss below threshold", query)
		}
	}
}

func TestSemanticCache_ThresholdTunable(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string][]float64{
		"a": {1, 0},
		"b": {0.9, 0.44}, // cos ≈ 0.898
	}}
	ctx := context.Background()

	strict := NewSemanticCache(embedder, 0.95, 10)
	strict.Put(ctx, "m1", "a", domain.GenerationResult{Text: "A"})
	if _, ok, _ := strict.Get(ctx, "m1", "b"); ok {
		t.Error("strict threshold should miss")
	}

	loose := NewSemanticCache(embedder, 0.85, 10)
	loose.Put(ctx, "m1", "a", domain.GenerationResult{Text: "A"})
	if _, ok, _ := loose.Get(ctx, "m1", "b"); !ok {
		t.Error("loose threshold should hit")
	}
}

func TestSemanticCache_ModelScopeIsolation(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string][]float64{
		"What is 2+2?": {1, 0, 0},
	}}
	c := NewSemanticCache(embedder, 0.95, 10)
	ctx := context.Background()

	c.Put(ctx, "m1", "What is 2+2?", domain.GenerationResult{Text: "4", Model: "m1"})

	if _, ok, _ := c.Get(ctx, "m2", "What is 2+2?"); ok {
		t.Error("a cache entry from one model must never be returned for another")
	}
}

func TestSemanticCache_TieBreakFirstInserted(t *testing.T) {
	// Two entries with identical embeddings: the one inserted first wins.
	embedder := &stubEmbedder{vectors: map[string][]float64{
		"first":  {1, 0},
		"second": {1, 0},
		"query":  {1, 0},
	}}
	c := NewSemanticCache(embedder, 0.95, 10)
	ctx := context.Background()

	c.Put(ctx, "m1", "first", domain.GenerationResult{Text: "first answer"})
	c.Put(ctx, "m1", "second", domain.GenerationResult{Text: "second answer"})

	got, ok, _ := c.Get(ctx, "m1", "query")
	if !ok {
		t.Fatal("expected hit")
	}
	if got.Text != "first answer" {
		t.Errorf("Text = %q, want first-inserted entry", got.Text)
	}
}

func TestSemanticCache_FIFOEvictionPerScope(t *testing.T) {
	vectors := make(map[string][]float64)
	for i := 0; i < 4; i++ {
		v := make([]float64, 4)
		v[i] = 1
		vectors[fmt.Sprintf("p%d", i)] = v
	}
	embedder := &stubEmbedder{vectors: vectors}

	c := NewSemanticCache(embedder, 0.95, 3)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		c.Put(ctx, "m1", fmt.Sprintf("p%d", i), domain.GenerationResult{Text: fmt.Sprintf("a%d", i)})
	}

	if c.Len("m1") != 3 {
		t.Fatalf("Len = %d, want 3", c.Len("m1"))
	}
	if _, ok, _ := c.Get(ctx, "m1", "p0"); ok {
		t.Error("oldest entry should be evicted")
	}
	if _, ok, _ := c.Get(ctx, "m1", "p3"); !ok {
		t.Error("newest entry must be present")
	}
}

func TestSemanticCache_EvictionIndependentPerScope(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string][]float64{
		"p0": {1, 0}, "p1": {0, 1},
	}}
	c := NewSemanticCache(embedder, 0.95, 1)
	ctx := context.Background()

	c.Put(ctx, "m1", "p0", domain.GenerationResult{Text: "m1-a0"})
	c.Put(ctx, "m2", "p1", domain.GenerationResult{Text: "m2-a1"})

	// Capacity applies per scope, so neither insert evicts the other.
	if _, ok, _ := c.Get(ctx, "m1", "p0"); !ok {
		t.Error("m1 entry should survive inserts into m2's scope")
	}
	if _, ok, _ := c.Get(ctx, "m2", "p1"); !ok {
		t.Error("m2 entry should be present")
	}
}

func TestSemanticCache_EmbedderErrorPropagates(t *testing.T) {
	embedder := &stubEmbedder{err: errors.New("embedding service down")}
	c := NewSemanticCache(embedder, 0.95, 10)

	if _, _, err := c.Get(context.Background(), "m1", "anything"); err == nil {
		t.Error("expected embedder error from Get")
	}
	if err := c.Put(context.Background(), "m1", "anything", domain.GenerationResult{}); err == nil {
		t.Error("expected embedder error from Put")
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{"identical", []float64{1, 2, 3}, []float64{1, 2, 3}, 1},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0},
		{"opposite", []float64{1, 0}, []float64{-1, 0}, -1},
		{"length mismatch", []float64{1, 0}, []float64{1, 0, 0}, 0},
		{"zero vector", []float64{0, 0}, []float64{1, 0}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cosineSimilarity(tt.a, tt.b)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("cosineSimilarity = %v, want %v", got, tt.want)
			}
		})
	}
}
