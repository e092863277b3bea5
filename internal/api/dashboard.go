package api

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/erazemk/garrison/internal/model"
	"github.com/erazemk/garrison/internal/rbac"
	"github.com/erazemk/garrison/internal/report"
	"github.com/erazemk/garrison/internal/store"
)

// DashboardHandler serves the aggregated dashboard views.
type DashboardHandler struct {
	DB *sql.DB
}

// movementLimit caps each record kind of the movement detail.
const movementLimit = 50

// scope resolves the dashboard visibility. Admins may narrow it to one base
// with the base query parameter; others always see their own base.
func (h *DashboardHandler) scope(w http.ResponseWriter, r *http.Request) (rbac.Visibility, bool) {
	p := GetPrincipal(r.Context())
	if !rbac.CanView(p, rbac.ResourceDashboard) {
		writeStoreError(w, r, &model.PermissionError{
			Permission: rbac.P(rbac.VerbView, rbac.ScopeBase, rbac.ResourceDashboard).String(),
		}, "")
		return rbac.Visibility{}, false
	}
	return rbac.Resolve(p).Narrow(r.URL.Query().Get("base")), true
}

type recordSet struct {
	purchases    []model.Purchase
	assignments  []model.Assignment
	transfers    []model.Transfer
	expenditures []model.Expenditure
}

// records loads the four record kinds through one visibility and filter set.
func (h *DashboardHandler) records(r *http.Request, v rbac.Visibility, department string, from, to *time.Time, limit int) (recordSet, error) {
	ctx := r.Context()
	var (
		rs  recordSet
		err error
	)
	rs.purchases, err = store.ListPurchases(ctx, h.DB, v, store.PurchaseFilter{
		Department: department, From: from, To: to, Limit: limit,
	})
	if err != nil {
		return rs, err
	}
	rs.assignments, err = store.ListAssignments(ctx, h.DB, v, store.AssignmentFilter{From: from, To: to, Limit: limit})
	if err != nil {
		return rs, err
	}
	rs.transfers, err = store.ListTransfers(ctx, h.DB, v, store.TransferFilter{From: from, To: to, Limit: limit})
	if err != nil {
		return rs, err
	}
	rs.expenditures, err = store.ListExpenditures(ctx, h.DB, v, store.ExpenditureFilter{
		Department: department, From: from, To: to, Limit: limit,
	})
	return rs, err
}

// Metrics handles GET /api/dashboard/metrics.
func (h *DashboardHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	v, ok := h.scope(w, r)
	if !ok {
		return
	}
	from, to, err := queryWindow(r)
	if err != nil {
		writeStoreError(w, r, err, "load dashboard")
		return
	}
	department := r.URL.Query().Get("department")

	rs, err := h.records(r, v, department, from, to, 0)
	if err != nil {
		writeStoreError(w, r, err, "load dashboard")
		return
	}
	users, err := store.ListUsers(r.Context(), h.DB, v, store.UserFilter{Department: department})
	if err != nil {
		writeStoreError(w, r, err, "load dashboard")
		return
	}

	jsonResponse(w, http.StatusOK, report.BuildDashboard(report.Input{
		Base:         v.Base(),
		From:         from,
		To:           to,
		Purchases:    rs.purchases,
		Assignments:  rs.assignments,
		Transfers:    rs.transfers,
		Expenditures: rs.expenditures,
		Users:        users,
	}))
}

// Departments handles GET /api/dashboard/departments.
func (h *DashboardHandler) Departments(w http.ResponseWriter, r *http.Request) {
	v, ok := h.scope(w, r)
	if !ok {
		return
	}
	from, to, err := queryWindow(r)
	if err != nil {
		writeStoreError(w, r, err, "summarize departments")
		return
	}

	expenditures, err := store.ListExpenditures(r.Context(), h.DB, v, store.ExpenditureFilter{From: from, To: to})
	if err != nil {
		writeStoreError(w, r, err, "summarize departments")
		return
	}
	jsonResponse(w, http.StatusOK, report.DepartmentSummary(expenditures))
}

// Activities handles GET /api/dashboard/activities.
func (h *DashboardHandler) Activities(w http.ResponseWriter, r *http.Request) {
	v, ok := h.scope(w, r)
	if !ok {
		return
	}
	limit := queryInt(r, "limit", 20, 100)

	rs, err := h.records(r, v, "", nil, nil, report.PerKindLimit(limit))
	if err != nil {
		writeStoreError(w, r, err, "load activities")
		return
	}
	jsonResponse(w, http.StatusOK, report.RecentActivities(limit, rs.purchases, rs.assignments, rs.transfers, rs.expenditures))
}

// Movement handles GET /api/dashboard/movement.
func (h *DashboardHandler) Movement(w http.ResponseWriter, r *http.Request) {
	v, ok := h.scope(w, r)
	if !ok {
		return
	}
	from, to, err := queryWindow(r)
	if err != nil {
		writeStoreError(w, r, err, "load movement")
		return
	}

	ctx := r.Context()
	purchases, err := store.ListPurchases(ctx, h.DB, v, store.PurchaseFilter{From: from, To: to, Limit: movementLimit})
	if err != nil {
		writeStoreError(w, r, err, "load movement")
		return
	}
	transfers, err := store.ListTransfers(ctx, h.DB, v, store.TransferFilter{From: from, To: to, Limit: movementLimit})
	if err != nil {
		writeStoreError(w, r, err, "load movement")
		return
	}

	detail := report.NetMovement(v.Base(), purchases, transfers)
	detail.Period = report.Period(from, to)
	jsonResponse(w, http.StatusOK, detail)
}
