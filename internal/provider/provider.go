// Package provider defines the adapter contract that every model backend
// implements, plus shared failure classification for HTTP-based backends.
package provider

import (
	"context"
	"net/http"

	"github.com/agentlab/inference-gateway/internal/domain"
	"github.com/agentlab/inference-gateway/internal/tokens"
)

// Adapter is a uniform front over one model backend. Adapters are stateless
// beyond their credentials and HTTP client, and safe for concurrent use.
type Adapter interface {
	// ID returns the stable provider identifier ("openai", "anthropic", ...).
	ID() string

	// Generate performs one non-streaming completion. Failures are
	// classified: transport errors and retryable statuses come back as
	// transient *domain.ProviderError, everything else as permanent.
	Generate(ctx context.Context, req domain.GenerationRequest) (*domain.Generation, error)

	// CountTokens estimates the input token footprint of a request without
	// calling the backend.
	CountTokens(req domain.GenerationRequest) int

	// Models lists the profiles this adapter can serve.
	Models() []domain.ModelProfile

	HealthCheck(ctx context.Context) error
}

// ClassifyStatus turns a non-2xx provider response into a *domain.ProviderError.
// Rate limits, request timeouts, and server-side failures are transient;
// everything else (bad request, bad credentials, missing model) is permanent.
func ClassifyStatus(providerID string, status int, body string) error {
	transient := status == http.StatusTooManyRequests ||
		status == http.StatusRequestTimeout ||
		status >= http.StatusInternalServerError

	return &domain.ProviderError{
		Provider:  providerID,
		Status:    status,
		Transient: transient,
		Message:   body,
	}
}

// WrapTransportError classifies a failure to complete the HTTP exchange at
// all (dial, TLS, reset). The backend may well be healthy a moment later,
// so these are always transient.
func WrapTransportError(providerID string, err error) error {
	return &domain.ProviderError{
		Provider:  providerID,
		Transient: true,
		Message:   err.Error(),
	}
}

// EstimateInput is the shared CountTokens implementation for adapters whose
// backends do not expose a tokenizer endpoint.
func EstimateInput(req domain.GenerationRequest) int {
	return tokens.EstimatePrompt(req.SystemPrompt, req.Prompt)
}
