package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limit", &ProviderError{Provider: "openai", Status: 429, Transient: true}, true},
		{"server error", &ProviderError{Provider: "openai", Status: 503, Transient: true}, true},
		{"bad auth", &ProviderError{Provider: "openai", Status: 401, Transient: false}, false},
		{"bad request", &ProviderError{Provider: "openai", Status: 400, Transient: false}, false},
		{"wrapped provider error", fmt.Errorf("call failed: %w", &ProviderError{Transient: true}), true},
		{"circuit open", ErrCircuitOpen, true},
		{"unsupported model", ErrUnsupportedModel, false},
		{"plain error", errors.New("boom"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProviderUnavailableError_Unwrap(t *testing.T) {
	cause := &ProviderError{Provider: "anthropic", Status: 429, Transient: true, Message: "rate limited"}
	err := &ProviderUnavailableError{Provider: "anthropic", Attempts: 5, Cause: cause}

	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatal("expected to unwrap to ProviderError")
	}
	if pe.Status != 429 {
		t.Errorf("unwrapped Status = %d, want 429", pe.Status)
	}
}

func TestCacheSource_String(t *testing.T) {
	if CacheNone.String() != "none" || CacheExact.String() != "exact" || CacheSemantic.String() != "semantic" {
		t.Errorf("unexpected CacheSource strings: %s %s %s", CacheNone, CacheExact, CacheSemantic)
	}
}
