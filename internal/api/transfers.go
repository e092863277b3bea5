package api

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/erazemk/garrison/internal/lifecycle"
	"github.com/erazemk/garrison/internal/model"
	"github.com/erazemk/garrison/internal/rbac"
	"github.com/erazemk/garrison/internal/store"
)

// TransfersHandler handles inter-base transfer endpoints.
type TransfersHandler struct {
	DB *sql.DB
}

type transferRequest struct {
	Equipment       string `json:"equipment"`
	Quantity        int    `json:"quantity"`
	SourceBase      string `json:"source_base"`
	DestinationBase string `json:"destination_base"`
	ExpectedDate    string `json:"expected_date"`
	Description     string `json:"description"`
}

func (req *transferRequest) apply(t *model.Transfer) error {
	expected, err := parseDate("expected_date", req.ExpectedDate)
	if err != nil {
		return err
	}
	t.Equipment = req.Equipment
	t.Quantity = req.Quantity
	t.SourceBase = req.SourceBase
	t.DestinationBase = req.DestinationBase
	t.ExpectedDate = expected
	t.Description = req.Description
	return nil
}

var (
	permCreateTransfer = rbac.P(rbac.VerbCreate, rbac.ScopeNone, rbac.ResourceTransfer)
	permUpdateTransfer = rbac.P(rbac.VerbUpdate, rbac.ScopeAny, rbac.ResourceTransfer)
	permDeleteTransfer = rbac.P(rbac.VerbDelete, rbac.ScopeAny, rbac.ResourceTransfer)
)

// checkBases keeps base-scoped callers to transfers that touch their base.
func checkBases(r *http.Request, t *model.Transfer) error {
	if !rbac.Resolve(GetPrincipal(r.Context())).Admits(t.SourceBase, t.DestinationBase) {
		return model.Invalid("source_base", "or destination_base must be your base")
	}
	return nil
}

// List handles GET /api/transfers.
func (h *TransfersHandler) List(w http.ResponseWriter, r *http.Request) {
	v, ok := viewScope(w, r, rbac.ResourceTransfer)
	if !ok {
		return
	}
	from, to, err := queryWindow(r)
	if err != nil {
		writeStoreError(w, r, err, "list transfers")
		return
	}

	status, err := queryStatus(r, lifecycle.Transfer)
	if err != nil {
		writeStoreError(w, r, err, "list transfers")
		return
	}

	q := r.URL.Query()
	transfers, err := store.ListTransfers(r.Context(), h.DB, v, store.TransferFilter{
		Status: status,
		Base:   q.Get("base"),
		From:   from,
		To:     to,
	})
	if err != nil {
		writeStoreError(w, r, err, "list transfers")
		return
	}
	jsonResponse(w, http.StatusOK, transfers)
}

// Create handles POST /api/transfers.
func (h *TransfersHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !require(w, r, permCreateTransfer) {
		return
	}

	var req transferRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p := GetPrincipal(r.Context())
	t := &model.Transfer{RequestedBy: p.ID}
	if err := req.apply(t); err != nil {
		writeStoreError(w, r, err, "create transfer")
		return
	}
	if err := checkBases(r, t); err != nil {
		writeStoreError(w, r, err, "create transfer")
		return
	}

	transfer, err := store.CreateTransfer(r.Context(), h.DB, t)
	if err != nil {
		writeStoreError(w, r, err, "create transfer")
		return
	}

	slog.Info("transfer created", "user", p.Username,
		"equipment", transfer.Equipment, "quantity", transfer.Quantity,
		"from", transfer.SourceBase, "to", transfer.DestinationBase)
	jsonResponse(w, http.StatusCreated, transfer)
}

func (h *TransfersHandler) load(w http.ResponseWriter, r *http.Request, v *rbac.Visibility) (*model.Transfer, bool) {
	id, ok := pathID(w, r, "transfer")
	if !ok {
		return nil, false
	}
	t, err := store.GetTransfer(r.Context(), h.DB, id)
	if err != nil {
		writeStoreError(w, r, err, "get transfer")
		return nil, false
	}
	if t == nil || (v != nil && !v.Admits(t.SourceBase, t.DestinationBase)) {
		jsonError(w, http.StatusNotFound, "transfer not found")
		return nil, false
	}
	return t, true
}

// Get handles GET /api/transfers/{id}.
func (h *TransfersHandler) Get(w http.ResponseWriter, r *http.Request) {
	v, ok := viewScope(w, r, rbac.ResourceTransfer)
	if !ok {
		return
	}
	if t, ok := h.load(w, r, &v); ok {
		jsonResponse(w, http.StatusOK, t)
	}
}

// Update handles PUT /api/transfers/{id}.
func (h *TransfersHandler) Update(w http.ResponseWriter, r *http.Request) {
	t, ok := h.load(w, r, nil)
	if !ok {
		return
	}
	if !authorizeRecord(w, r, permUpdateTransfer, t.RequestedBy, t.SourceBase, t.DestinationBase) {
		return
	}
	if !editable(w, r, lifecycle.Transfer, t.Status) {
		return
	}

	var req transferRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.apply(t); err != nil {
		writeStoreError(w, r, err, "update transfer")
		return
	}
	if err := checkBases(r, t); err != nil {
		writeStoreError(w, r, err, "update transfer")
		return
	}

	updated, err := store.UpdateTransfer(r.Context(), h.DB, t)
	if err != nil {
		writeStoreError(w, r, err, "update transfer")
		return
	}

	slog.Info("transfer updated", "user", GetPrincipal(r.Context()).Username, "transfer_id", updated.ID)
	jsonResponse(w, http.StatusOK, updated)
}

// Delete handles DELETE /api/transfers/{id}.
func (h *TransfersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	t, ok := h.load(w, r, nil)
	if !ok {
		return
	}
	if !authorizeRecord(w, r, permDeleteTransfer, t.RequestedBy, t.SourceBase, t.DestinationBase) {
		return
	}

	if err := store.DeleteTransfer(r.Context(), h.DB, t.ID); err != nil {
		writeStoreError(w, r, err, "delete transfer")
		return
	}

	slog.Info("transfer deleted", "user", GetPrincipal(r.Context()).Username, "transfer_id", t.ID)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "transfer deleted"})
}

// UpdateStatus handles PATCH /api/transfers/{id}/status.
func (h *TransfersHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	t, ok := h.load(w, r, nil)
	if !ok {
		return
	}
	status, ok := decodeStatus(w, r)
	if !ok {
		return
	}
	if !authorizeStatus(w, r, rbac.ResourceTransfer, status, t.RequestedBy, t.SourceBase, t.DestinationBase) {
		return
	}

	p := GetPrincipal(r.Context())
	updated, err := store.TransitionTransfer(r.Context(), h.DB, t.ID, status, p.ID)
	observeTransition("transfer", status, err)
	if err != nil {
		writeStoreError(w, r, err, "update transfer status")
		return
	}

	slog.Info("transfer status changed", "user", p.Username, "transfer_id", t.ID, "from", t.Status, "to", updated.Status)
	jsonResponse(w, http.StatusOK, updated)
}
