// Package bedrock adapts Anthropic models served through AWS Bedrock.
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go"

	"github.com/agentlab/inference-gateway/internal/domain"
	"github.com/agentlab/inference-gateway/internal/provider"
	"github.com/agentlab/inference-gateway/internal/tokens"
)

const defaultMaxTokens = 4096

// InvokeAPI is the slice of the Bedrock runtime client the adapter uses.
type InvokeAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

type Provider struct {
	client InvokeAPI
	region string
}

func New(ctx context.Context, region string) (*Provider, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &Provider{
		client: bedrockruntime.NewFromConfig(cfg),
		region: region,
	}, nil
}

func NewWithClient(client InvokeAPI, region string) *Provider {
	return &Provider{client: client, region: region}
}

func (p *Provider) ID() string {
	return "bedrock"
}

type invokeRequest struct {
	AnthropicVersion string        `json:"anthropic_version"`
	MaxTokens        int           `json:"max_tokens"`
	Messages         []chatMessage `json:"messages"`
	System           string        `json:"system,omitempty"`
	Temperature      *float64      `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type invokeResponse struct {
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

// Short aliases accepted alongside full Bedrock model identifiers.
var modelAliases = map[string]string{
	"claude-3-5-sonnet": "anthropic.claude-3-5-sonnet-20241022-v2:0",
	"claude-3-5-haiku":  "anthropic.claude-3-5-haiku-20241022-v1:0",
	"claude-3-opus":     "anthropic.claude-3-opus-20240229-v1:0",
}

func resolveModelID(model string) string {
	if full, ok := modelAliases[model]; ok {
		return full
	}
	return model
}

func (p *Provider) Generate(ctx context.Context, req domain.GenerationRequest) (*domain.Generation, error) {
	maxTokens := defaultMaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	body, err := json.Marshal(invokeRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        maxTokens,
		Messages:         []chatMessage{{Role: "user", Content: req.Prompt}},
		System:           req.SystemPrompt,
		Temperature:      req.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	output, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(resolveModelID(req.Model)),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, classifyInvokeError(err)
	}

	var invokeResp invokeResponse
	if err := json.Unmarshal(output.Body, &invokeResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	var text string
	for _, block := range invokeResp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	usage := domain.Usage{
		InputTokens:  invokeResp.Usage.InputTokens,
		OutputTokens: invokeResp.Usage.OutputTokens,
	}
	if usage.InputTokens == 0 && usage.OutputTokens == 0 {
		usage.InputTokens = tokens.EstimatePrompt(req.SystemPrompt, req.Prompt)
		usage.OutputTokens = tokens.Estimate(text)
	}

	return &domain.Generation{Text: text, Usage: usage}, nil
}

// classifyInvokeError maps the SDK's typed faults onto the shared transient
// vs permanent split. Throttling and server faults are retryable.
func classifyInvokeError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "ServiceUnavailableException", "ModelNotReadyException", "InternalServerException":
			return &domain.ProviderError{Provider: "bedrock", Transient: true, Message: apiErr.ErrorMessage()}
		default:
			return &domain.ProviderError{Provider: "bedrock", Transient: false, Message: apiErr.ErrorMessage()}
		}
	}
	return provider.WrapTransportError("bedrock", err)
}

func (p *Provider) CountTokens(req domain.GenerationRequest) int {
	return provider.EstimateInput(req)
}

func (p *Provider) Models() []domain.ModelProfile {
	return []domain.ModelProfile{
		{
			ID:           "anthropic.claude-3-5-sonnet-20241022-v2:0",
			Provider:     "bedrock",
			TokenLimit:   200000,
			Capabilities: []domain.Capability{domain.CapabilityToolUse, domain.CapabilityStreaming, domain.CapabilityVision},
			InputPer1K:   0.003,
			OutputPer1K:  0.015,
		},
		{
			ID:           "anthropic.claude-3-5-haiku-20241022-v1:0",
			Provider:     "bedrock",
			TokenLimit:   200000,
			Capabilities: []domain.Capability{domain.CapabilityToolUse, domain.CapabilityStreaming},
			InputPer1K:   0.0008,
			OutputPer1K:  0.004,
		},
	}
}

func (p *Provider) HealthCheck(ctx context.Context) error {
	if p.client == nil {
		return fmt.Errorf("bedrock: client not configured")
	}
	return nil
}
