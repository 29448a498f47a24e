// Package deepseek adapts DeepSeek's OpenAI-compatible chat API.
package deepseek

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
	apiKey  string
	baseURL string
	client  *http.Client
}

func New(apiKey, baseURL string) *Provider {
	return &Provider{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  httputil.DefaultClient(),
	}
}

func (p *Provider) ID() string {
	return "deepseek"
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (p *Provider) Generate(ctx context.Context, req domain.GenerationRequest) (*domain.Generation, error) {
	messages := make([]message, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, message{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, message{Role: "user", Content: req.Prompt})

	// "deepseek-chat" upstream serves the deepseek-v3 alias used by callers.
	model := req.Model
	if model == "deepseek-v3" {
		model = "deepseek-chat"
	}

	body, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	apiKey := p.apiKey
	if req.APIKey != "" {
		apiKey = req.APIKey
	}
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, provider.WrapTransportError(p.ID(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, provider.ClassifyStatus(p.ID(), resp.StatusCode, string(bodyBytes))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return nil, &domain.ProviderError{Provider: p.ID(), Message: "response contained no choices"}
	}

	text := chatResp.Choices[0].Message.Content

	usage := domain.Usage{
		InputTokens:  chatResp.Usage.PromptTokens,
		OutputTokens: chatResp.Usage.CompletionTokens,
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
			ID:           "deepseek-chat",
			Provider:     "deepseek",
			TokenLimit:   64000,
			Capabilities: []domain.Capability{domain.CapabilityToolUse, domain.CapabilityStreaming},
			InputPer1K:   0.00027,
			OutputPer1K:  0.0011,
		},
		{
			ID:           "deepseek-v3",
			Provider:     "deepseek",
			TokenLimit:   64000,
			Capabilities: []domain.Capability{domain.CapabilityToolUse, domain.CapabilityStreaming},
			InputPer1K:   0.00027,
			OutputPer1K:  0.0011,
		},
		{
			ID:           "deepseek-reasoner",
			Provider:     "deepseek",
			TokenLimit:   64000,
			Capabilities: []domain.Capability{domain.CapabilityStreaming},
			InputPer1K:   0.00055,
			OutputPer1K:  0.00219,
		},
	}
}

func (p *Provider) HealthCheck(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("deepseek unhealthy: status=%d", resp.StatusCode)
	}

	return nil
}
