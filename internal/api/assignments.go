package api

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/erazemk/garrison/internal/metrics"
	"github.com/erazemk/garrison/internal/lifecycle"
	"github.com/erazemk/garrison/internal/model"
	"github.com/erazemk/garrison/internal/rbac"
	"github.com/erazemk/garrison/internal/store"
)

// AssignmentsHandler handles personnel assignment endpoints.
type AssignmentsHandler struct {
	DB *sql.DB
}

type assignmentRequest struct {
	PersonnelID         int64    `json:"personnel_id"`
	Assignment          string   `json:"assignment"`
	Unit                string   `json:"unit"`
	Location            string   `json:"location"`
	Priority            string   `json:"priority"`
	Description         string   `json:"description"`
	Duties              []string `json:"duties"`
	EquipmentPurchaseID *int64   `json:"equipment_purchase_id"`
	EquipmentQuantity   int      `json:"equipment_quantity"`
	StartDate           string   `json:"start_date"`
	EndDate             string   `json:"end_date"`
}

func (req *assignmentRequest) apply(a *model.Assignment) error {
	start, err := parseDate("start_date", req.StartDate)
	if err != nil {
		return err
	}
	end, err := parseDate("end_date", req.EndDate)
	if err != nil {
		return err
	}
	if start == nil || end == nil {
		return model.Invalid("start_date", "and end_date are required")
	}
	a.PersonnelID = req.PersonnelID
	a.Title = req.Assignment
	a.Unit = strings.TrimSpace(req.Unit)
	a.Location = strings.TrimSpace(req.Location)
	a.Priority = req.Priority
	a.Description = req.Description
	a.Duties = req.Duties
	a.EquipmentPurchaseID = req.EquipmentPurchaseID
	a.EquipmentQuantity = req.EquipmentQuantity
	a.StartDate = *start
	a.EndDate = *end
	return nil
}

type assignmentStatusResponse struct {
	*model.Assignment
	ReturnedQuantity int  `json:"returned_quantity,omitempty"`
	ReturnQueued     bool `json:"return_queued,omitempty"`
}

var (
	permCreateAssignment = rbac.P(rbac.VerbCreate, rbac.ScopeNone, rbac.ResourceAssignment)
	permUpdateAssignment = rbac.P(rbac.VerbUpdate, rbac.ScopeAny, rbac.ResourceAssignment)
	permDeleteAssignment = rbac.P(rbac.VerbDelete, rbac.ScopeAny, rbac.ResourceAssignment)
)

// List handles GET /api/assignments.
func (h *AssignmentsHandler) List(w http.ResponseWriter, r *http.Request) {
	v, ok := viewScope(w, r, rbac.ResourceAssignment)
	if !ok {
		return
	}
	from, to, err := queryWindow(r)
	if err != nil {
		writeStoreError(w, r, err, "list assignments")
		return
	}

	status, err := queryStatus(r, lifecycle.Assignment)
	if err != nil {
		writeStoreError(w, r, err, "list assignments")
		return
	}

	q := r.URL.Query()
	f := store.AssignmentFilter{Status: status, From: from, To: to}
	if s := q.Get("personnel_id"); s != "" {
		if f.PersonnelID, err = strconv.ParseInt(s, 10, 64); err != nil {
			jsonError(w, http.StatusBadRequest, "invalid personnel_id")
			return
		}
	}

	assignments, err := store.ListAssignments(r.Context(), h.DB, v, f)
	if err != nil {
		writeStoreError(w, r, err, "list assignments")
		return
	}
	jsonResponse(w, http.StatusOK, assignments)
}

// checkReferences makes sure the caller can see the assigned member and the
// equipment lot.
func (h *AssignmentsHandler) checkReferences(r *http.Request, a *model.Assignment) error {
	v := rbac.Resolve(GetPrincipal(r.Context()))

	personnel, err := store.GetUser(r.Context(), h.DB, a.PersonnelID)
	if err != nil {
		return err
	}
	if personnel == nil || personnel.DeletedAt != nil || !v.Admits(personnel.Base) {
		return model.Invalid("personnel_id", "does not reference a visible user")
	}

	if a.EquipmentPurchaseID != nil {
		lot, err := store.GetPurchase(r.Context(), h.DB, *a.EquipmentPurchaseID)
		if err != nil {
			return err
		}
		if lot == nil || !v.Admits(lot.RequesterBase) {
			return model.Invalid("equipment_purchase_id", "does not reference a visible purchase")
		}
	}
	return nil
}

// Create handles POST /api/assignments.
func (h *AssignmentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !require(w, r, permCreateAssignment) {
		return
	}

	var req assignmentRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p := GetPrincipal(r.Context())
	a := &model.Assignment{AssignedBy: p.ID}
	if err := req.apply(a); err != nil {
		writeStoreError(w, r, err, "create assignment")
		return
	}
	if err := h.checkReferences(r, a); err != nil {
		writeStoreError(w, r, err, "create assignment")
		return
	}

	created, err := store.CreateAssignment(r.Context(), h.DB, a)
	if err != nil {
		writeStoreError(w, r, err, "create assignment")
		return
	}

	slog.Info("assignment created", "user", p.Username, "assignment_id", created.ID, "personnel_id", created.PersonnelID)
	jsonResponse(w, http.StatusCreated, created)
}

func (h *AssignmentsHandler) load(w http.ResponseWriter, r *http.Request, v *rbac.Visibility) (*model.Assignment, bool) {
	id, ok := pathID(w, r, "assignment")
	if !ok {
		return nil, false
	}
	a, err := store.GetAssignment(r.Context(), h.DB, id)
	if err != nil {
		writeStoreError(w, r, err, "get assignment")
		return nil, false
	}
	if a == nil || (v != nil && !v.Admits(a.PersonnelBase, a.AssignerBase)) {
		jsonError(w, http.StatusNotFound, "assignment not found")
		return nil, false
	}
	return a, true
}

// Get handles GET /api/assignments/{id}.
func (h *AssignmentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	v, ok := viewScope(w, r, rbac.ResourceAssignment)
	if !ok {
		return
	}
	if a, ok := h.load(w, r, &v); ok {
		jsonResponse(w, http.StatusOK, a)
	}
}

// Update handles PUT /api/assignments/{id}.
func (h *AssignmentsHandler) Update(w http.ResponseWriter, r *http.Request) {
	a, ok := h.load(w, r, nil)
	if !ok {
		return
	}
	if !authorizeRecord(w, r, permUpdateAssignment, a.AssignedBy, a.PersonnelBase, a.AssignerBase) {
		return
	}
	if !editable(w, r, lifecycle.Assignment, a.Status) {
		return
	}

	var req assignmentRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.apply(a); err != nil {
		writeStoreError(w, r, err, "update assignment")
		return
	}
	if err := h.checkReferences(r, a); err != nil {
		writeStoreError(w, r, err, "update assignment")
		return
	}

	updated, err := store.UpdateAssignment(r.Context(), h.DB, a)
	if err != nil {
		writeStoreError(w, r, err, "update assignment")
		return
	}

	slog.Info("assignment updated", "user", GetPrincipal(r.Context()).Username, "assignment_id", updated.ID)
	jsonResponse(w, http.StatusOK, updated)
}

// Delete handles DELETE /api/assignments/{id}.
func (h *AssignmentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	a, ok := h.load(w, r, nil)
	if !ok {
		return
	}
	if !authorizeRecord(w, r, permDeleteAssignment, a.AssignedBy, a.PersonnelBase, a.AssignerBase) {
		return
	}

	if err := store.DeleteAssignment(r.Context(), h.DB, a.ID); err != nil {
		writeStoreError(w, r, err, "delete assignment")
		return
	}

	slog.Info("assignment deleted", "user", GetPrincipal(r.Context()).Username, "assignment_id", a.ID)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "assignment deleted"})
}

// UpdateStatus handles PATCH /api/assignments/{id}/status. A failed equipment
// return does not fail the request; it is logged and queued for retry.
func (h *AssignmentsHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	a, ok := h.load(w, r, nil)
	if !ok {
		return
	}
	status, ok := decodeStatus(w, r)
	if !ok {
		return
	}
	if !authorizeStatus(w, r, rbac.ResourceAssignment, status, a.AssignedBy, a.PersonnelBase, a.AssignerBase) {
		return
	}

	p := GetPrincipal(r.Context())
	res, err := store.TransitionAssignment(r.Context(), h.DB, a.ID, status, p.ID)
	observeTransition("assignment", status, err)
	if err != nil {
		if errors.Is(err, model.ErrInsufficientInventory) {
			metrics.AllocationRejected()
			slog.Warn("assignment activation rejected", "user", p.Username, "assignment_id", a.ID, "error", err)
		}
		writeStoreError(w, r, err, "update assignment status")
		return
	}

	if res.ReturnErr != nil {
		metrics.ReturnFailed()
		slog.Error("inventory return failed", "user", p.Username, "assignment_id", a.ID,
			"purchase_id", res.ReturnErr.PurchaseID, "quantity", res.ReturnErr.Quantity, "error", res.ReturnErr)
		if n, err := store.CountInventoryReturns(r.Context(), h.DB); err == nil {
			metrics.SetPendingReturns(n)
		}
	}

	slog.Info("assignment status changed", "user", p.Username, "assignment_id", a.ID, "from", res.From,
		"to", res.Assignment.Status, "returned", res.Returned)
	jsonResponse(w, http.StatusOK, assignmentStatusResponse{
		Assignment:       res.Assignment,
		ReturnedQuantity: res.Returned,
		ReturnQueued:     res.ReturnErr != nil,
	})
}
