// Package api exposes the gateway over HTTP: generation, batch dispatch,
// cost reporting, model listing, and health.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agentlab/inference-gateway/internal/circuitbreaker"
	"github.com/agentlab/inference-gateway/internal/domain"
	"github.com/agentlab/inference-gateway/internal/queue"
	"github.com/agentlab/inference-gateway/internal/router"
)

// Service is the dispatch surface the HTTP layer talks to.
type Service interface {
	Generate(ctx context.Context, req domain.GenerationRequest) (*domain.GenerationResult, error)
	GenerateBatch(ctx context.Context, reqs []domain.GenerationRequest) []domain.BatchItem
	ReportCost() string
	TotalCost() float64
}

type HandlerConfig struct {
	Service  Service
	Router   *router.Router
	Breakers *circuitbreaker.Manager
	// Queue enables POST /v1/jobs for async batch submission. Optional.
	Queue queue.Queue
}

type Handler struct {
	service  Service
	router   *router.Router
	breakers *circuitbreaker.Manager
	queue    queue.Queue
	mux      *http.ServeMux
}

func NewHandler(cfg HandlerConfig) *Handler {
	h := &Handler{
		service:  cfg.Service,
		router:   cfg.Router,
		breakers: cfg.Breakers,
		queue:    cfg.Queue,
		mux:      http.NewServeMux(),
	}

	h.mux.HandleFunc("POST /v1/generate", h.handleGenerate)
	h.mux.HandleFunc("POST /v1/generate/batch", h.handleGenerateBatch)
	h.mux.HandleFunc("POST /v1/jobs", h.handleSubmitJob)
	h.mux.HandleFunc("GET /v1/cost", h.handleCost)
	h.mux.HandleFunc("GET /v1/models", h.handleListModels)
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /health/live", h.handleHealthLive)
	h.mux.HandleFunc("GET /health/providers", h.handleProviderHealth)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// GenerateRequest is the wire form of one generation request. The API key
// override travels in the body but is never echoed back or cached.
type GenerateRequest struct {
	Model        string   `json:"model"`
	Prompt       string   `json:"prompt"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	MaxTokens    *int     `json:"max_tokens,omitempty"`
	APIKey       string   `json:"api_key,omitempty"`
	Quiet        bool     `json:"quiet,omitempty"`
}

func (r GenerateRequest) domain() domain.GenerationRequest {
	return domain.GenerationRequest{
		Model:        r.Model,
		Prompt:       r.Prompt,
		SystemPrompt: r.SystemPrompt,
		Temperature:  r.Temperature,
		MaxTokens:    r.MaxTokens,
		APIKey:       r.APIKey,
		Quiet:        r.Quiet,
	}
}

func (r GenerateRequest) validate() string {
	if r.Model == "" {
		return "model is required"
	}
	if r.Prompt == "" {
		return "prompt is required"
	}
	return ""
}

type batchRequest struct {
	Requests []GenerateRequest `json:"requests"`
}

type batchItemResponse struct {
	Result *domain.GenerationResult `json:"result,omitempty"`
	Error  string                   `json:"error,omitempty"`
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	requestID := requestIDFrom(r)

	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	result, err := h.service.Generate(ctx, req.domain())
	if err != nil {
		slog.Warn("generation failed",
			"request_id", requestID,
			"model", req.Model,
			"error", err,
		)
		writeError(w, statusForError(err), err.Error())
		return
	}

	slog.Info("generation completed",
		"request_id", requestID,
		"model", req.Model,
		"served_from_cache", result.ServedFromCache.String(),
		"latency_ms", time.Since(start).Milliseconds(),
	)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	json.NewEncoder(w).Encode(result)
}

func (h *Handler) handleGenerateBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	requestID := requestIDFrom(r)

	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Requests) == 0 {
		writeError(w, http.StatusBadRequest, "requests is required")
		return
	}
	for i, item := range req.Requests {
		if msg := item.validate(); msg != "" {
			writeError(w, http.StatusBadRequest, "request "+strconv.Itoa(i)+": "+msg)
			return
		}
	}

	reqs := make([]domain.GenerationRequest, len(req.Requests))
	for i, item := range req.Requests {
		reqs[i] = item.domain()
	}

	items := h.service.GenerateBatch(ctx, reqs)

	resp := make([]batchItemResponse, len(items))
	succeeded := 0
	for i, item := range items {
		if item.Err != nil {
			resp[i] = batchItemResponse{Error: item.Err.Error()}
			continue
		}
		resp[i] = batchItemResponse{Result: item.Result}
		succeeded++
	}

	slog.Info("batch completed",
		"request_id", requestID,
		"items", len(items),
		"succeeded", succeeded,
		"latency_ms", time.Since(start).Milliseconds(),
	)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	json.NewEncoder(w).Encode(map[string]any{
		"items": resp,
	})
}

func (h *Handler) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	if h.queue == nil {
		writeError(w, http.StatusServiceUnavailable, "async jobs not configured")
		return
	}

	ctx := r.Context()

	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Requests) == 0 {
		writeError(w, http.StatusBadRequest, "requests is required")
		return
	}

	job := queue.GenerationJob{
		ID:        uuid.New().String(),
		Requests:  make([]domain.GenerationRequest, len(req.Requests)),
		CreatedAt: time.Now().UTC(),
	}
	for i, item := range req.Requests {
		job.Requests[i] = item.domain()
	}

	if err := h.queue.SendJob(ctx, job); err != nil {
		slog.Error("job submission failed", "job_id", job.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to enqueue job")
		return
	}

	slog.Info("job accepted", "job_id", job.ID, "items", len(job.Requests))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"job_id": job.ID,
		"items":  len(job.Requests),
	})
}

func (h *Handler) handleCost(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"report":    h.service.ReportCost(),
		"total_usd": h.service.TotalCost(),
	})
}

func (h *Handler) handleListModels(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"object": "list",
		"data":   h.router.Models(),
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":  "healthy",
		"version": "0.1.0",
	}
	if h.breakers != nil {
		resp["circuit_breakers"] = h.breakers.States()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *Handler) handleHealthLive(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (h *Handler) handleProviderHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	providers := make(map[string]string)
	allHealthy := true
	for _, providerID := range h.router.Providers() {
		adapter, ok := h.router.Adapter(providerID)
		if !ok {
			continue
		}
		if err := adapter.HealthCheck(ctx); err != nil {
			providers[providerID] = "unhealthy"
			allHealthy = false
		} else {
			providers[providerID] = "ok"
		}
	}

	status := "healthy"
	if !allHealthy {
		status = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":    status,
		"providers": providers,
	})
}

// statusForError maps dispatch failures onto HTTP statuses. Upstream
// provider failures surface as 502 so callers can tell them apart from
// gateway-side rejections.
func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnsupportedModel):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrCircuitOpen):
		return http.StatusServiceUnavailable
	}

	var unavailable *domain.ProviderUnavailableError
	if errors.As(err, &unavailable) {
		return http.StatusBadGateway
	}
	var pe *domain.ProviderError
	if errors.As(err, &pe) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func requestIDFrom(r *http.Request) string {
	if id := r.Header.Get("X-Request-ID"); id != "" {
		return id
	}
	return uuid.New().String()
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": message,
			"type":    "error",
			"code":    status,
		},
	})
}
