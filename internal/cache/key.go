// Package cache provides the two response caches in front of the
// providers: an exact-match cache keyed by a deterministic fingerprint of
// the request, and a semantic cache keyed by embedding similarity.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/agentlab/inference-gateway/internal/domain"
)

// Key returns the deterministic fingerprint of a request: a SHA-256 hash
// over a canonical JSON serialization of the fields that define its
// identity. Per-call credential overrides and reporting flags are
// excluded. The hash is stable across runs and processes.
func Key(req domain.GenerationRequest) string {
	data, _ := json.Marshal(struct {
		Model        string   `json:"model"`
		SystemPrompt string   `json:"system_prompt"`
		Prompt       string   `json:"prompt"`
		Temperature  *float64 `json:"temperature"`
		MaxTokens    *int     `json:"max_tokens"`
	}{
		Model:        req.Model,
		SystemPrompt: req.SystemPrompt,
		Prompt:       req.Prompt,
		Temperature:  req.Temperature,
		MaxTokens:    req.MaxTokens,
	})

	hash := sha256.Sum256(data)
	return "gen:" + hex.EncodeToString(hash[:])
}

// sameRequest reports whether two requests agree on every identity field.
// A hash collision where the stored request disagrees is treated as a
// miss, so a key always maps to exactly one request.
func sameRequest(a, b domain.GenerationRequest) bool {
	return a.Model == b.Model &&
		a.Prompt == b.Prompt &&
		a.SystemPrompt == b.SystemPrompt &&
		eqFloatPtr(a.Temperature, b.Temperature) &&
		eqIntPtr(a.MaxTokens, b.MaxTokens)
}

func eqFloatPtr(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func eqIntPtr(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
