package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/agentlab/inference-gateway/internal/auth"
	"github.com/agentlab/inference-gateway/internal/repository"
)

// AdminService is the subset of the dispatcher the admin surface needs.
type AdminService interface {
	ReportCost() string
	TotalCost() float64
	ResetLedger()
}

type AdminHandler struct {
	service AdminService
	usage   repository.UsageStore
	mux     *http.ServeMux
}

// NewAdminHandler wires the admin endpoints. When authenticator is non-nil
// every route sits behind HTTP basic auth.
func NewAdminHandler(service AdminService, usage repository.UsageStore, authenticator *auth.Authenticator) http.Handler {
	h := &AdminHandler{
		service: service,
		usage:   usage,
		mux:     http.NewServeMux(),
	}

	h.mux.HandleFunc("GET /admin/cost", h.getCost)
	h.mux.HandleFunc("POST /admin/ledger/reset", h.resetLedger)
	h.mux.HandleFunc("GET /admin/usage", h.listUsage)

	if authenticator != nil {
		return authenticator.RequireAuth(h)
	}
	return h
}

func (h *AdminHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *AdminHandler) getCost(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"report":    h.service.ReportCost(),
		"total_usd": h.service.TotalCost(),
	})
}

func (h *AdminHandler) resetLedger(w http.ResponseWriter, r *http.Request) {
	h.service.ResetLedger()

	slog.Info("cost ledger reset")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "reset"})
}

func (h *AdminHandler) listUsage(w http.ResponseWriter, r *http.Request) {
	if h.usage == nil {
		writeAdminError(w, http.StatusServiceUnavailable, "usage store not configured")
		return
	}

	ctx := r.Context()

	since := time.Now().Add(-24 * time.Hour)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeAdminError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		since = parsed
	}

	records, err := h.usage.Since(ctx, since)
	if err != nil {
		slog.Error("usage query failed", "error", err)
		writeAdminError(w, http.StatusInternalServerError, "failed to query usage")
		return
	}

	total, err := h.usage.TotalCost(ctx, since)
	if err != nil {
		slog.Error("usage cost query failed", "error", err)
		writeAdminError(w, http.StatusInternalServerError, "failed to query usage")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"records":   records,
		"count":     len(records),
		"total_usd": total,
		"since":     since.Format(time.RFC3339),
	})
}

func writeAdminError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": message,
	})
}
