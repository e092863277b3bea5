package api

import (
	"bytes"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/erazemk/garrison/internal/rbac"
	"github.com/erazemk/garrison/internal/report"
	"github.com/erazemk/garrison/internal/store"
)

// ReportsHandler serves the spreadsheet export and the inventory audit.
type ReportsHandler struct {
	DB *sql.DB
}

const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var (
	permExportData    = rbac.P(rbac.VerbExport, rbac.ScopeNone, rbac.ResourceData)
	permSystemReports = rbac.P(rbac.VerbView, rbac.ScopeNone, rbac.ResourceSystemReports)
)

// Export handles GET /api/reports/export. The workbook holds the records the
// caller can see, optionally limited to a creation window.
func (h *ReportsHandler) Export(w http.ResponseWriter, r *http.Request) {
	if !require(w, r, permExportData) {
		return
	}
	from, to, err := queryWindow(r)
	if err != nil {
		writeStoreError(w, r, err, "export data")
		return
	}

	p := GetPrincipal(r.Context())
	v := rbac.Resolve(p)
	ctx := r.Context()

	var data report.Export
	if data.Purchases, err = store.ListPurchases(ctx, h.DB, v, store.PurchaseFilter{From: from, To: to}); err != nil {
		writeStoreError(w, r, err, "export data")
		return
	}
	if data.Assignments, err = store.ListAssignments(ctx, h.DB, v, store.AssignmentFilter{From: from, To: to}); err != nil {
		writeStoreError(w, r, err, "export data")
		return
	}
	if data.Transfers, err = store.ListTransfers(ctx, h.DB, v, store.TransferFilter{From: from, To: to}); err != nil {
		writeStoreError(w, r, err, "export data")
		return
	}
	if data.Expenditures, err = store.ListExpenditures(ctx, h.DB, v, store.ExpenditureFilter{From: from, To: to}); err != nil {
		writeStoreError(w, r, err, "export data")
		return
	}

	// Buffer so a failed write still yields a clean 500.
	var buf bytes.Buffer
	if err := report.WriteXLSX(&buf, data); err != nil {
		writeStoreError(w, r, err, "export data")
		return
	}

	filename := fmt.Sprintf("garrison-export-%s.xlsx", time.Now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", xlsxMIME)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		slog.Error("failed to write export", "error", err)
		return
	}

	slog.Info("data exported", "user", p.Username,
		"purchases", len(data.Purchases), "assignments", len(data.Assignments),
		"transfers", len(data.Transfers), "expenditures", len(data.Expenditures))
}

// InventoryAudit handles GET /api/reports/inventory-audit.
func (h *ReportsHandler) InventoryAudit(w http.ResponseWriter, r *http.Request) {
	if !require(w, r, permSystemReports) {
		return
	}

	entries, err := store.AuditInventory(r.Context(), h.DB)
	if err != nil {
		writeStoreError(w, r, err, "audit inventory")
		return
	}
	jsonResponse(w, http.StatusOK, entries)
}
