package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strings"

	"github.com/erazemk/garrison/internal/lifecycle"
	"github.com/erazemk/garrison/internal/model"
	"github.com/erazemk/garrison/internal/rbac"
	"github.com/erazemk/garrison/internal/report"
	"github.com/erazemk/garrison/internal/store"
)

// ExpendituresHandler handles expenditure endpoints.
type ExpendituresHandler struct {
	DB *sql.DB
}

type expenditureRequest struct {
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Category    string  `json:"category"`
	Department  string  `json:"department"`
}

func (req *expenditureRequest) apply(e *model.Expenditure) {
	e.Description = strings.TrimSpace(req.Description)
	e.Amount = req.Amount
	e.Category = req.Category
	e.Department = strings.TrimSpace(req.Department)
}

var (
	permCreateExpenditure = rbac.P(rbac.VerbCreate, rbac.ScopeNone, rbac.ResourceExpenditure)
	permUpdateExpenditure = rbac.P(rbac.VerbUpdate, rbac.ScopeAny, rbac.ResourceExpenditure)
	permDeleteExpenditure = rbac.P(rbac.VerbDelete, rbac.ScopeAny, rbac.ResourceExpenditure)
)

func (h *ExpendituresHandler) list(w http.ResponseWriter, r *http.Request, action string) ([]model.Expenditure, bool) {
	v, ok := viewScope(w, r, rbac.ResourceExpenditure)
	if !ok {
		return nil, false
	}
	from, to, err := queryWindow(r)
	if err != nil {
		writeStoreError(w, r, err, action)
		return nil, false
	}

	status, err := queryStatus(r, lifecycle.Expenditure)
	if err != nil {
		writeStoreError(w, r, err, action)
		return nil, false
	}

	q := r.URL.Query()
	expenditures, err := store.ListExpenditures(r.Context(), h.DB, v, store.ExpenditureFilter{
		Status:     status,
		Category:   q.Get("category"),
		Department: q.Get("department"),
		From:       from,
		To:         to,
	})
	if err != nil {
		writeStoreError(w, r, err, action)
		return nil, false
	}
	return expenditures, true
}

// List handles GET /api/expenditures.
func (h *ExpendituresHandler) List(w http.ResponseWriter, r *http.Request) {
	if expenditures, ok := h.list(w, r, "list expenditures"); ok {
		jsonResponse(w, http.StatusOK, expenditures)
	}
}

// Summary handles GET /api/expenditures/summary.
func (h *ExpendituresHandler) Summary(w http.ResponseWriter, r *http.Request) {
	if expenditures, ok := h.list(w, r, "summarize expenditures"); ok {
		jsonResponse(w, http.StatusOK, report.DepartmentSummary(expenditures))
	}
}

// Create handles POST /api/expenditures.
func (h *ExpendituresHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !require(w, r, permCreateExpenditure) {
		return
	}

	var req expenditureRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p := GetPrincipal(r.Context())
	e := &model.Expenditure{RequestedBy: p.ID}
	req.apply(e)

	created, err := store.CreateExpenditure(r.Context(), h.DB, e)
	if err != nil {
		writeStoreError(w, r, err, "create expenditure")
		return
	}

	slog.Info("expenditure recorded", "user", p.Username, "expenditure_id", created.ID,
		"amount", created.Amount, "category", created.Category)
	jsonResponse(w, http.StatusCreated, created)
}

func (h *ExpendituresHandler) load(w http.ResponseWriter, r *http.Request, v *rbac.Visibility) (*model.Expenditure, bool) {
	id, ok := pathID(w, r, "expenditure")
	if !ok {
		return nil, false
	}
	e, err := store.GetExpenditure(r.Context(), h.DB, id)
	if err != nil {
		writeStoreError(w, r, err, "get expenditure")
		return nil, false
	}
	if e == nil || (v != nil && !v.Admits(e.RequesterBase)) {
		jsonError(w, http.StatusNotFound, "expenditure not found")
		return nil, false
	}
	return e, true
}

// Get handles GET /api/expenditures/{id}.
func (h *ExpendituresHandler) Get(w http.ResponseWriter, r *http.Request) {
	v, ok := viewScope(w, r, rbac.ResourceExpenditure)
	if !ok {
		return
	}
	if e, ok := h.load(w, r, &v); ok {
		jsonResponse(w, http.StatusOK, e)
	}
}

// Update handles PUT /api/expenditures/{id}.
func (h *ExpendituresHandler) Update(w http.ResponseWriter, r *http.Request) {
	e, ok := h.load(w, r, nil)
	if !ok {
		return
	}
	if !authorizeRecord(w, r, permUpdateExpenditure, e.RequestedBy, e.RequesterBase) {
		return
	}
	if !editable(w, r, lifecycle.Expenditure, e.Status) {
		return
	}

	var req expenditureRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.apply(e)

	updated, err := store.UpdateExpenditure(r.Context(), h.DB, e)
	if err != nil {
		writeStoreError(w, r, err, "update expenditure")
		return
	}

	slog.Info("expenditure updated", "user", GetPrincipal(r.Context()).Username, "expenditure_id", updated.ID)
	jsonResponse(w, http.StatusOK, updated)
}

// Delete handles DELETE /api/expenditures/{id}.
func (h *ExpendituresHandler) Delete(w http.ResponseWriter, r *http.Request) {
	e, ok := h.load(w, r, nil)
	if !ok {
		return
	}
	if !authorizeRecord(w, r, permDeleteExpenditure, e.RequestedBy, e.RequesterBase) {
		return
	}

	if err := store.DeleteExpenditure(r.Context(), h.DB, e.ID); err != nil {
		writeStoreError(w, r, err, "delete expenditure")
		return
	}

	slog.Info("expenditure deleted", "user", GetPrincipal(r.Context()).Username, "expenditure_id", e.ID)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "expenditure deleted"})
}

// UpdateStatus handles PATCH /api/expenditures/{id}/status.
func (h *ExpendituresHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	e, ok := h.load(w, r, nil)
	if !ok {
		return
	}
	status, ok := decodeStatus(w, r)
	if !ok {
		return
	}
	if !authorizeStatus(w, r, rbac.ResourceExpenditure, status, e.RequestedBy, e.RequesterBase) {
		return
	}

	p := GetPrincipal(r.Context())
	updated, err := store.TransitionExpenditure(r.Context(), h.DB, e.ID, status, p.ID)
	observeTransition("expenditure", status, err)
	if err != nil {
		writeStoreError(w, r, err, "update expenditure status")
		return
	}

	slog.Info("expenditure status changed", "user", p.Username, "expenditure_id", e.ID, "from", e.Status, "to", updated.Status)
	jsonResponse(w, http.StatusOK, updated)
}
