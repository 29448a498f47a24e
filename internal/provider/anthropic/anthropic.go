package anthropic

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

const (
	defaultBaseURL   = "https://api.anthropic.com/v1"
	anthropicVersion = "2023-06-01"

	// The messages API requires max_tokens; used when the caller sets none.
	defaultMaxTokens = 4096
)

type Provider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func New(apiKey string) *Provider {
	return NewWithBaseURL(apiKey, defaultBaseURL)
}

func NewWithBaseURL(apiKey, baseURL string) *Provider {
	return &Provider{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  httputil.DefaultClient(),
	}
}

func (p *Provider) ID() string {
	return "anthropic"
}

type messagesRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	System      string        `json:"system,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []contentBlock `json:"content"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (p *Provider) Generate(ctx context.Context, req domain.GenerationRequest) (*domain.Generation, error) {
	maxTokens := defaultMaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	body, err := json.Marshal(messagesRequest{
		Model:       req.Model,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
		MaxTokens:   maxTokens,
		System:      req.SystemPrompt,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	apiKey := p.apiKey
	if req.APIKey != "" {
		apiKey = req.APIKey
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, provider.WrapTransportError(p.ID(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, provider.ClassifyStatus(p.ID(), resp.StatusCode, string(bodyBytes))
	}

	var msgResp messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&msgResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	var text string
	for _, block := range msgResp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	usage := domain.Usage{
		InputTokens:  msgResp.Usage.InputTokens,
		OutputTokens: msgResp.Usage.OutputTokens,
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
			ID:           "claude-3-5-sonnet-20241022",
			Provider:     "anthropic",
			TokenLimit:   200000,
			Capabilities: []domain.Capability{domain.CapabilityToolUse, domain.CapabilityStreaming, domain.CapabilityVision},
			InputPer1K:   0.003,
			OutputPer1K:  0.015,
		},
		{
			ID:           "claude-3-5-haiku-20241022",
			Provider:     "anthropic",
			TokenLimit:   200000,
			Capabilities: []domain.Capability{domain.CapabilityToolUse, domain.CapabilityStreaming},
			InputPer1K:   0.0008,
			OutputPer1K:  0.004,
		},
		{
			ID:           "claude-3-opus-20240229",
			Provider:     "anthropic",
			TokenLimit:   200000,
			Capabilities: []domain.Capability{domain.CapabilityToolUse, domain.CapabilityStreaming, domain.CapabilityVision},
			InputPer1K:   0.015,
			OutputPer1K:  0.075,
		},
	}
}

func (p *Provider) HealthCheck(ctx context.Context) error {
	// Anthropic exposes no cheap unauthenticated probe; a configured key is
	// the healthiest signal available without spending tokens.
	if p.apiKey == "" {
		return fmt.Errorf("anthropic: no api key configured")
	}
	return nil
}
