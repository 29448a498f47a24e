package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/agentlab/inference-gateway/internal/auth"
	"github.com/agentlab/inference-gateway/internal/domain"
	"github.com/agentlab/inference-gateway/internal/queue"
	"github.com/agentlab/inference-gateway/internal/repository"
	"github.com/agentlab/inference-gateway/internal/router"
)

type mockService struct {
	GenerateFunc      func(ctx context.Context, req domain.GenerationRequest) (*domain.GenerationResult, error)
	GenerateBatchFunc func(ctx context.Context, reqs []domain.GenerationRequest) []domain.BatchItem
	ReportCostFunc    func() string
	TotalCostFunc     func() float64
	ResetLedgerFunc   func()
}

func (m *mockService) Generate(ctx context.Context, req domain.GenerationRequest) (*domain.GenerationResult, error) {
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	return &domain.GenerationResult{Text: "ok", Model: req.Model}, nil
}

func (m *mockService) GenerateBatch(ctx context.Context, reqs []domain.GenerationRequest) []domain.BatchItem {
	if m.GenerateBatchFunc != nil {
		return m.GenerateBatchFunc(ctx, reqs)
	}
	items := make([]domain.BatchItem, len(reqs))
	for i, req := range reqs {
		items[i] = domain.BatchItem{Result: &domain.GenerationResult{Text: "ok", Model: req.Model}}
	}
	return items
}

func (m *mockService) ReportCost() string {
	if m.ReportCostFunc != nil {
		return m.ReportCostFunc()
	}
	return "no usage recorded"
}

func (m *mockService) TotalCost() float64 {
	if m.TotalCostFunc != nil {
		return m.TotalCostFunc()
	}
	return 0
}

func (m *mockService) ResetLedger() {
	if m.ResetLedgerFunc != nil {
		m.ResetLedgerFunc()
	}
}

type apiStubAdapter struct {
	healthErr error
}

func (a *apiStubAdapter) ID() string { return "stub" }

func (a *apiStubAdapter) Generate(ctx context.Context, req domain.GenerationRequest) (*domain.Generation, error) {
	return &domain.Generation{Text: "ok"}, nil
}

func (a *apiStubAdapter) CountTokens(req domain.GenerationRequest) int { return 0 }

func (a *apiStubAdapter) Models() []domain.ModelProfile {
	return []domain.ModelProfile{{ID: "stub-model", Provider: "stub", TokenLimit: 8192}}
}

func (a *apiStubAdapter) HealthCheck(ctx context.Context) error { return a.healthErr }

func newTestHandler(svc Service, q queue.Queue) *Handler {
	return NewHandler(HandlerConfig{
		Service: svc,
		Router:  router.New(&apiStubAdapter{}),
		Queue:   q,
	})
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleGenerate(t *testing.T) {
	svc := &mockService{
		GenerateFunc: func(ctx context.Context, req domain.GenerationRequest) (*domain.GenerationResult, error) {
			if req.APIKey != "sk-override" {
				t.Errorf("APIKey = %q, want override", req.APIKey)
			}
			return &domain.GenerationResult{
				Text:            "four",
				InputTokens:     10,
				OutputTokens:    2,
				Model:           req.Model,
				ServedFromCache: domain.CacheNone,
			}, nil
		},
	}
	h := newTestHandler(svc, nil)

	rec := postJSON(t, h, "/v1/generate", GenerateRequest{
		Model:  "stub-model",
		Prompt: "What is 2+2?",
		APIKey: "sk-override",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing")
	}

	var result domain.GenerationResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if result.Text != "four" || result.InputTokens != 10 {
		t.Fatalf("result = %+v", result)
	}
}

func TestHandleGenerateValidation(t *testing.T) {
	h := newTestHandler(&mockService{}, nil)

	tests := []struct {
		name string
		req  GenerateRequest
	}{
		{"missing model", GenerateRequest{Prompt: "hi"}},
		{"missing prompt", GenerateRequest{Model: "stub-model"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, h, "/v1/generate", tt.req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestHandleGenerateErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unsupported model", domain.ErrUnsupportedModel, http.StatusBadRequest},
		{"timeout", domain.ErrTimeout, http.StatusGatewayTimeout},
		{"circuit open", domain.ErrCircuitOpen, http.StatusServiceUnavailable},
		{
			"retries exhausted",
			&domain.ProviderUnavailableError{Provider: "stub", Attempts: 5, Cause: domain.ErrCircuitOpen},
			http.StatusBadGateway,
		},
		{
			"permanent provider error",
			&domain.ProviderError{Provider: "stub", Status: 401, Message: "bad key"},
			http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockService{
				GenerateFunc: func(ctx context.Context, req domain.GenerationRequest) (*domain.GenerationResult, error) {
					return nil, tt.err
				},
			}
			h := newTestHandler(svc, nil)

			rec := postJSON(t, h, "/v1/generate", GenerateRequest{Model: "stub-model", Prompt: "hi"})
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestHandleGenerateBatch(t *testing.T) {
	svc := &mockService{
		GenerateBatchFunc: func(ctx context.Context, reqs []domain.GenerationRequest) []domain.BatchItem {
			items := make([]domain.BatchItem, len(reqs))
			for i, req := range reqs {
				if req.Prompt == "boom" {
					items[i] = domain.BatchItem{Err: &domain.ProviderError{Provider: "stub", Status: 400, Message: "bad request"}}
					continue
				}
				items[i] = domain.BatchItem{Result: &domain.GenerationResult{Text: "echo:" + req.Prompt, Model: req.Model}}
			}
			return items
		},
	}
	h := newTestHandler(svc, nil)

	rec := postJSON(t, h, "/v1/generate/batch", batchRequest{Requests: []GenerateRequest{
		{Model: "stub-model", Prompt: "one"},
		{Model: "stub-model", Prompt: "boom"},
		{Model: "stub-model", Prompt: "three"},
	}})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Items []batchItemResponse `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(resp.Items) != 3 {
		t.Fatalf("items = %d, want 3", len(resp.Items))
	}
	if resp.Items[0].Result == nil || resp.Items[0].Result.Text != "echo:one" {
		t.Fatalf("item 0 = %+v", resp.Items[0])
	}
	if resp.Items[1].Error == "" {
		t.Fatal("item 1 should carry an error")
	}
	if resp.Items[2].Result == nil || resp.Items[2].Result.Text != "echo:three" {
		t.Fatalf("item 2 = %+v", resp.Items[2])
	}
}

func TestHandleGenerateBatchEmpty(t *testing.T) {
	h := newTestHandler(&mockService{}, nil)

	rec := postJSON(t, h, "/v1/generate/batch", batchRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleSubmitJob(t *testing.T) {
	q := queue.NewInMemoryQueue()
	h := newTestHandler(&mockService{}, q)

	rec := postJSON(t, h, "/v1/jobs", batchRequest{Requests: []GenerateRequest{
		{Model: "stub-model", Prompt: "one"},
		{Model: "stub-model", Prompt: "two"},
	}})

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		JobID string `json:"job_id"`
		Items int    `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.JobID == "" || resp.Items != 2 {
		t.Fatalf("resp = %+v", resp)
	}

	jobs, err := q.ReceiveJobs(context.Background(), 10)
	if err != nil {
		t.Fatalf("ReceiveJobs: %v", err)
	}
	if len(jobs) != 1 || len(jobs[0].Job.Requests) != 2 {
		t.Fatalf("jobs = %+v", jobs)
	}
}

func TestHandleSubmitJobNotConfigured(t *testing.T) {
	h := newTestHandler(&mockService{}, nil)

	rec := postJSON(t, h, "/v1/jobs", batchRequest{Requests: []GenerateRequest{
		{Model: "stub-model", Prompt: "one"},
	}})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestHandleCost(t *testing.T) {
	svc := &mockService{
		ReportCostFunc: func() string { return "total: $1.23" },
		TotalCostFunc:  func() float64 { return 1.23 },
	}
	h := newTestHandler(svc, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/cost", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp struct {
		Report   string  `json:"report"`
		TotalUSD float64 `json:"total_usd"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Report != "total: $1.23" || resp.TotalUSD != 1.23 {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestHandleListModels(t *testing.T) {
	h := newTestHandler(&mockService{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp struct {
		Object string                `json:"object"`
		Data   []domain.ModelProfile `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Object != "list" || len(resp.Data) != 1 || resp.Data[0].ID != "stub-model" {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestHandleHealth(t *testing.T) {
	h := newTestHandler(&mockService{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHandleProviderHealth(t *testing.T) {
	h := newTestHandler(&mockService{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health/providers", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp struct {
		Status    string            `json:"status"`
		Providers map[string]string `json:"providers"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Status != "healthy" || resp.Providers["stub"] != "ok" {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestAdminRequiresAuth(t *testing.T) {
	hash, err := auth.HashPassword("secret")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	authenticator := auth.NewAuthenticator("admin", hash)

	reset := false
	svc := &mockService{ResetLedgerFunc: func() { reset = true }}
	h := NewAdminHandler(svc, nil, authenticator)

	req := httptest.NewRequest(http.MethodPost, "/admin/ledger/reset", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status without creds = %d, want 401", rec.Code)
	}
	if reset {
		t.Fatal("ledger reset without auth")
	}

	req = httptest.NewRequest(http.MethodPost, "/admin/ledger/reset", nil)
	req.SetBasicAuth("admin", "secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status with creds = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !reset {
		t.Fatal("ledger not reset")
	}
}

func TestAdminListUsage(t *testing.T) {
	store := repository.NewInMemoryUsageStore()
	record := repository.UsageRecord{
		RequestID:    "r1",
		Model:        "stub-model",
		Provider:     "stub",
		InputTokens:  10,
		OutputTokens: 5,
		CostUSD:      0.01,
		CacheSource:  "none",
		Timestamp:    time.Now(),
	}
	if err := store.Record(context.Background(), record); err != nil {
		t.Fatalf("Record: %v", err)
	}

	h := NewAdminHandler(&mockService{}, store, nil)

	req := httptest.NewRequest(http.MethodGet, "/admin/usage", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Count    int     `json:"count"`
		TotalUSD float64 `json:"total_usd"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Count != 1 || resp.TotalUSD != 0.01 {
		t.Fatalf("resp = %+v", resp)
	}
}
