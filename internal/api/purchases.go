package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strings"

	"github.com/erazemk/garrison/internal/imaging"
	"github.com/erazemk/garrison/internal/lifecycle"
	"github.com/erazemk/garrison/internal/model"
	"github.com/erazemk/garrison/internal/rbac"
	"github.com/erazemk/garrison/internal/store"
)

// PurchasesHandler handles equipment purchase endpoints.
type PurchasesHandler struct {
	DB *sql.DB
}

type purchaseRequest struct {
	Item           string  `json:"item"`
	Category       string  `json:"category"`
	Quantity       int     `json:"quantity"`
	UnitPrice      float64 `json:"unit_price"`
	Supplier       string  `json:"supplier"`
	Department     string  `json:"department"`
	RequiredDate   string  `json:"required_date"`
	Justification  string  `json:"justification"`
	Specifications string  `json:"specifications"`
	Description    string  `json:"description"`
}

func (req *purchaseRequest) apply(p *model.Purchase) error {
	required, err := parseDate("required_date", req.RequiredDate)
	if err != nil {
		return err
	}
	p.Item = req.Item
	p.Category = req.Category
	p.Quantity = req.Quantity
	p.UnitPrice = req.UnitPrice
	p.Supplier = strings.TrimSpace(req.Supplier)
	p.Department = strings.TrimSpace(req.Department)
	p.RequiredDate = required
	p.Justification = req.Justification
	p.Specifications = req.Specifications
	p.Description = req.Description
	return nil
}

var (
	permCreatePurchase = rbac.P(rbac.VerbCreate, rbac.ScopeNone, rbac.ResourcePurchase)
	permUpdatePurchase = rbac.P(rbac.VerbUpdate, rbac.ScopeAny, rbac.ResourcePurchase)
	permDeletePurchase = rbac.P(rbac.VerbDelete, rbac.ScopeAny, rbac.ResourcePurchase)
)

// List handles GET /api/purchases.
func (h *PurchasesHandler) List(w http.ResponseWriter, r *http.Request) {
	v, ok := viewScope(w, r, rbac.ResourcePurchase)
	if !ok {
		return
	}
	from, to, err := queryWindow(r)
	if err != nil {
		writeStoreError(w, r, err, "list purchases")
		return
	}

	status, err := queryStatus(r, lifecycle.Purchase)
	if err != nil {
		writeStoreError(w, r, err, "list purchases")
		return
	}

	q := r.URL.Query()
	purchases, err := store.ListPurchases(r.Context(), h.DB, v, store.PurchaseFilter{
		Status:     status,
		Category:   q.Get("category"),
		Department: q.Get("department"),
		Search:     q.Get("search"),
		From:       from,
		To:         to,
	})
	if err != nil {
		writeStoreError(w, r, err, "list purchases")
		return
	}
	jsonResponse(w, http.StatusOK, purchases)
}

// Available handles GET /api/purchases/available: delivered lots with
// unallocated units, for picking assignment equipment.
func (h *PurchasesHandler) Available(w http.ResponseWriter, r *http.Request) {
	v, ok := viewScope(w, r, rbac.ResourcePurchase)
	if !ok {
		return
	}

	q := r.URL.Query()
	purchases, err := store.ListPurchases(r.Context(), h.DB, v, store.PurchaseFilter{
		Search:        q.Get("search"),
		Category:      q.Get("category"),
		AvailableOnly: true,
		Limit:         queryInt(r, "limit", 50, 50),
	})
	if err != nil {
		writeStoreError(w, r, err, "list available equipment")
		return
	}
	jsonResponse(w, http.StatusOK, purchases)
}

// Create handles POST /api/purchases.
func (h *PurchasesHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !require(w, r, permCreatePurchase) {
		return
	}

	var req purchaseRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p := GetPrincipal(r.Context())
	purchase := &model.Purchase{RequestedBy: p.ID}
	if err := req.apply(purchase); err != nil {
		writeStoreError(w, r, err, "create purchase")
		return
	}

	created, err := store.CreatePurchase(r.Context(), h.DB, purchase)
	if err != nil {
		writeStoreError(w, r, err, "create purchase")
		return
	}

	slog.Info("purchase requested", "user", p.Username, "purchase_id", created.ID, "item", created.Item, "quantity", created.Quantity)
	jsonResponse(w, http.StatusCreated, created)
}

// load fetches a purchase by path id. With a visibility, purchases outside
// it are reported as missing.
func (h *PurchasesHandler) load(w http.ResponseWriter, r *http.Request, v *rbac.Visibility) (*model.Purchase, bool) {
	id, ok := pathID(w, r, "purchase")
	if !ok {
		return nil, false
	}
	purchase, err := store.GetPurchase(r.Context(), h.DB, id)
	if err != nil {
		writeStoreError(w, r, err, "get purchase")
		return nil, false
	}
	if purchase == nil || (v != nil && !v.Admits(purchase.RequesterBase)) {
		jsonError(w, http.StatusNotFound, "purchase not found")
		return nil, false
	}
	return purchase, true
}

// Get handles GET /api/purchases/{id}.
func (h *PurchasesHandler) Get(w http.ResponseWriter, r *http.Request) {
	v, ok := viewScope(w, r, rbac.ResourcePurchase)
	if !ok {
		return
	}
	if purchase, ok := h.load(w, r, &v); ok {
		jsonResponse(w, http.StatusOK, purchase)
	}
}

// Update handles PUT /api/purchases/{id}.
func (h *PurchasesHandler) Update(w http.ResponseWriter, r *http.Request) {
	purchase, ok := h.load(w, r, nil)
	if !ok {
		return
	}
	if !authorizeRecord(w, r, permUpdatePurchase, purchase.RequestedBy, purchase.RequesterBase) {
		return
	}
	if !editable(w, r, lifecycle.Purchase, purchase.Status) {
		return
	}

	var req purchaseRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.apply(purchase); err != nil {
		writeStoreError(w, r, err, "update purchase")
		return
	}

	updated, err := store.UpdatePurchase(r.Context(), h.DB, purchase)
	if err != nil {
		writeStoreError(w, r, err, "update purchase")
		return
	}

	slog.Info("purchase updated", "user", GetPrincipal(r.Context()).Username, "purchase_id", updated.ID)
	jsonResponse(w, http.StatusOK, updated)
}

// Delete handles DELETE /api/purchases/{id}.
func (h *PurchasesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	purchase, ok := h.load(w, r, nil)
	if !ok {
		return
	}
	if !authorizeRecord(w, r, permDeletePurchase, purchase.RequestedBy, purchase.RequesterBase) {
		return
	}

	if err := store.DeletePurchase(r.Context(), h.DB, purchase.ID); err != nil {
		writeStoreError(w, r, err, "delete purchase")
		return
	}

	slog.Info("purchase deleted", "user", GetPrincipal(r.Context()).Username, "purchase_id", purchase.ID)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "purchase deleted"})
}

// UpdateStatus handles PATCH /api/purchases/{id}/status.
func (h *PurchasesHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	purchase, ok := h.load(w, r, nil)
	if !ok {
		return
	}
	status, ok := decodeStatus(w, r)
	if !ok {
		return
	}
	if !authorizeStatus(w, r, rbac.ResourcePurchase, status, purchase.RequestedBy, purchase.RequesterBase) {
		return
	}

	p := GetPrincipal(r.Context())
	updated, err := store.TransitionPurchase(r.Context(), h.DB, purchase.ID, status, p.ID)
	observeTransition("purchase", status, err)
	if err != nil {
		writeStoreError(w, r, err, "update purchase status")
		return
	}

	slog.Info("purchase status changed", "user", p.Username, "purchase_id", purchase.ID, "from", purchase.Status, "to", updated.Status)
	jsonResponse(w, http.StatusOK, updated)
}

// UploadImage handles PUT /api/purchases/{id}/image.
func (h *PurchasesHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	purchase, ok := h.load(w, r, nil)
	if !ok {
		return
	}
	if !authorizeRecord(w, r, permUpdatePurchase, purchase.RequestedBy, purchase.RequesterBase) {
		return
	}
	if !editable(w, r, lifecycle.Purchase, purchase.Status) {
		return
	}

	// Leave room for the multipart envelope around the photo.
	r.Body = http.MaxBytesReader(w, r.Body, imaging.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(imaging.MaxUploadBytes); err != nil {
		jsonError(w, http.StatusBadRequest, "file too large or invalid multipart form")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "image file required")
		return
	}
	defer file.Close()

	photo, err := imaging.Process(file)
	if err != nil {
		writeStoreError(w, r, err, "process image")
		return
	}

	if err := store.SetPurchaseImage(r.Context(), h.DB, purchase.ID, photo.Data, photo.MIME); err != nil {
		writeStoreError(w, r, err, "save image")
		return
	}

	slog.Info("purchase image uploaded", "user", GetPrincipal(r.Context()).Username, "purchase_id", purchase.ID,
		"width", photo.Width, "height", photo.Height, "bytes", len(photo.Data))
	jsonResponse(w, http.StatusOK, map[string]string{"message": "image uploaded"})
}

// GetImage handles GET /api/purchases/{id}/image.
func (h *PurchasesHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	v, ok := viewScope(w, r, rbac.ResourcePurchase)
	if !ok {
		return
	}
	purchase, ok := h.load(w, r, &v)
	if !ok {
		return
	}

	data, mime, err := store.GetPurchaseImage(r.Context(), h.DB, purchase.ID)
	if err != nil {
		writeStoreError(w, r, err, "get image")
		return
	}
	if data == nil {
		jsonError(w, http.StatusNotFound, "no image")
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	_, _ = w.Write(data)
}
