package api

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/erazemk/garrison/internal/metrics"
	"github.com/erazemk/garrison/internal/rbac"
	"github.com/erazemk/garrison/internal/store"
)

// AdminHandler serves the administrative maintenance endpoints.
type AdminHandler struct {
	DB *sql.DB
}

var permAdminPanel = rbac.P(rbac.VerbAccess, rbac.ScopeNone, rbac.ResourceAdminPanel)

// ListReturns handles GET /api/admin/returns.
func (h *AdminHandler) ListReturns(w http.ResponseWriter, r *http.Request) {
	if !require(w, r, permAdminPanel) {
		return
	}

	returns, err := store.ListInventoryReturns(r.Context(), h.DB)
	if err != nil {
		writeStoreError(w, r, err, "list inventory returns")
		return
	}
	jsonResponse(w, http.StatusOK, returns)
}

// RetryReturns handles POST /api/admin/returns/retry.
func (h *AdminHandler) RetryReturns(w http.ResponseWriter, r *http.Request) {
	if !require(w, r, permAdminPanel) {
		return
	}

	ctx := r.Context()
	result, err := store.RetryInventoryReturns(ctx, h.DB)
	if err != nil {
		writeStoreError(w, r, err, "retry inventory returns")
		return
	}
	if pending, err := store.CountInventoryReturns(ctx, h.DB); err == nil {
		metrics.SetPendingReturns(pending)
	}

	slog.Info("inventory returns retried", "user", GetPrincipal(ctx).Username,
		"applied", result.Applied, "failed", result.Failed)
	jsonResponse(w, http.StatusOK, result)
}
