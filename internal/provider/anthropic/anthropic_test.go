package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/agentlab/inference-gateway/internal/domain"
)

func TestProvider_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if key := r.Header.Get("x-api-key"); key != "sk-ant" {
			t.Errorf("x-api-key = %q", key)
		}
		if v := r.Header.Get("anthropic-version"); v != anthropicVersion {
			t.Errorf("anthropic-version = %q", v)
		}

		var req messagesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.System != "You are terse." {
			t.Errorf("system = %q", req.System)
		}
		if req.MaxTokens != defaultMaxTokens {
			t.Errorf("max_tokens = %d, want default %d", req.MaxTokens, defaultMaxTokens)
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Errorf("messages = %+v", req.Messages)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{
				{"type": "text", "text": "The answer "},
				{"type": "text", "text": "is 4."},
			},
			"usage": map[string]any{"input_tokens": 35, "output_tokens": 15},
		})
	}))
	defer server.Close()

	p := NewWithBaseURL("sk-ant", server.URL)

	gen, err := p.Generate(context.Background(), domain.GenerationRequest{
		Model:        "claude-3-5-sonnet-20241022",
		SystemPrompt: "You are terse.",
		Prompt:       "What is 2+2?",
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if gen.Text != "The answer is 4." {
		t.Errorf("text = %q, want concatenated blocks", gen.Text)
	}
	if gen.Usage.InputTokens != 35 || gen.Usage.OutputTokens != 15 {
		t.Errorf("usage = %+v", gen.Usage)
	}
}

func TestProvider_Generate_OverloadedIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"type":"error","error":{"type":"overloaded_error"}}`, 529)
	}))
	defer server.Close()

	p := NewWithBaseURL("sk-ant", server.URL)

	_, err := p.Generate(context.Background(), domain.GenerationRequest{Model: "claude-3-5-haiku-20241022", Prompt: "hi"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !domain.IsTransient(err) {
		t.Errorf("529 should be transient: %v", err)
	}
}

func TestProvider_HealthCheck(t *testing.T) {
	if err := New("sk-ant").HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() = %v with key set", err)
	}
	if err := New("").HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() = nil without key")
	}
}
