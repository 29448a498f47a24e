// Package ollama adapts a local Ollama server. Local models are free, so
// their profiles carry zero pricing and the ledger records usage only.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/agentlab/inference-gateway/internal/domain"
	"github.com/agentlab/inference-gateway/internal/httputil"
	"github.com/agentlab/inference-gateway/internal/provider"
	"github.com/agentlab/inference-gateway/internal/tokens"
)

type Provider struct {
	baseURL string
	client  *http.Client
}

func New(baseURL string) *Provider {
	return &Provider{
		baseURL: baseURL,
		client:  httputil.DefaultClient(),
	}
}

func (p *Provider) ID() string {
	return "ollama"
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  *chatOptions  `json:"options,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type chatResponse struct {
	Message         chatMessage `json:"message"`
	Done            bool        `json:"done"`
	PromptEvalCount int         `json:"prompt_eval_count,omitempty"`
	EvalCount       int         `json:"eval_count,omitempty"`
}

func (p *Provider) Generate(ctx context.Context, req domain.GenerationRequest) (*domain.Generation, error) {
	messages := make([]chatMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	ollamaReq := chatRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   false,
	}
	if req.Temperature != nil || req.MaxTokens != nil {
		ollamaReq.Options = &chatOptions{}
		if req.Temperature != nil {
			ollamaReq.Options.Temperature = *req.Temperature
		}
		if req.MaxTokens != nil {
			ollamaReq.Options.NumPredict = *req.MaxTokens
		}
	}

	body, err := json.Marshal(ollamaReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, provider.WrapTransportError(p.ID(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, provider.ClassifyStatus(p.ID(), resp.StatusCode, string(bodyBytes))
	}

	var ollamaResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	text := ollamaResp.Message.Content

	usage := domain.Usage{
		InputTokens:  ollamaResp.PromptEvalCount,
		OutputTokens: ollamaResp.EvalCount,
	}
	if usage.InputTokens == 0 && usage.OutputTokens == 0 {
		usage.InputTokens = tokens.EstimatePrompt(req.SystemPrompt, req.Prompt)
		usage.OutputTokens = tokens.Estimate(text)
	}

	return &domain.Generation{Text: text, Usage: usage}, nil
}

func (p *Provider) CountTokens(req domain.GenerationRequest) int {
	return provider.EstimateInput(req)
}

func (p *Provider) Models() []domain.ModelProfile {
	return []domain.ModelProfile{
		{
			ID:           "llama3.1",
			Provider:     "ollama",
			TokenLimit:   128000,
			Capabilities: []domain.Capability{domain.CapabilityToolUse, domain.CapabilityStreaming},
		},
		{
			ID:           "llama3.1:70b",
			Provider:     "ollama",
			TokenLimit:   128000,
			Capabilities: []domain.Capability{domain.CapabilityToolUse, domain.CapabilityStreaming},
		},
		{
			ID:           "mistral",
			Provider:     "ollama",
			TokenLimit:   32000,
			Capabilities: []domain.Capability{domain.CapabilityStreaming},
		},
	}
}

func (p *Provider) HealthCheck(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama unhealthy: status=%d", resp.StatusCode)
	}

	return nil
}
