package openai

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
	return "openai"
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
		Message      message `json:"message"`
		FinishReason string  `json:"finish_reason"`
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

	body, err := json.Marshal(chatRequest{
		Model:       req.Model,
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
	httpReq.Header.Set("Authorization", "Bearer "+p.key(req))

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

// key honors the per-call API key override without touching adapter state.
func (p *Provider) key(req domain.GenerationRequest) string {
	if req.APIKey != "" {
		return req.APIKey
	}
	return p.apiKey
}

func (p *Provider) CountTokens(req domain.GenerationRequest) int {
	return provider.EstimateInput(req)
}

func (p *Provider) Models() []domain.ModelProfile {
	return []domain.ModelProfile{
		{
			ID:           "gpt-4o",
			Provider:     "openai",
			TokenLimit:   128000,
			Capabilities: []domain.Capability{domain.CapabilityToolUse, domain.CapabilityStreaming, domain.CapabilityVision},
			InputPer1K:   0.0025,
			OutputPer1K:  0.01,
		},
		{
			ID:           "gpt-4o-mini",
			Provider:     "openai",
			TokenLimit:   128000,
			Capabilities: []domain.Capability{domain.CapabilityToolUse, domain.CapabilityStreaming, domain.CapabilityVision},
			InputPer1K:   0.00015,
			OutputPer1K:  0.0006,
		},
		{
			ID:           "o1-mini",
			Provider:     "openai",
			TokenLimit:   128000,
			Capabilities: []domain.Capability{domain.CapabilityStreaming},
			InputPer1K:   0.0011,
			OutputPer1K:  0.0044,
		},
		{
			ID:           "o1-preview",
			Provider:     "openai",
			TokenLimit:   128000,
			Capabilities: []domain.Capability{domain.CapabilityStreaming},
			InputPer1K:   0.015,
			OutputPer1K:  0.06,
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
		return fmt.Errorf("openai unhealthy: status=%d", resp.StatusCode)
	}

	return nil
}
