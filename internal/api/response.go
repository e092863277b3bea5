package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/erazemk/garrison/internal/lifecycle"
	"github.com/erazemk/garrison/internal/model"
)

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("error encoding response", "error", err)
		}
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]any{"error": message})
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}

// writeStoreError maps an error kind to its HTTP status. Unknown errors are
// logged and reported as 500 without detail.
func writeStoreError(w http.ResponseWriter, r *http.Request, err error, action string) {
	var (
		te *model.TransitionError
		ie *model.InventoryError
		pe *model.PermissionError
		nf *model.NotFoundError
	)
	switch {
	case errors.As(err, &te):
		jsonResponse(w, http.StatusBadRequest, map[string]any{
			"error": err.Error(), "current": te.Current, "requested": te.Requested,
		})
	case errors.As(err, &ie):
		jsonResponse(w, http.StatusBadRequest, map[string]any{
			"error": err.Error(), "required": ie.Required, "available": ie.Available,
		})
	case errors.As(err, &pe):
		jsonResponse(w, http.StatusForbidden, map[string]any{
			"error": "insufficient permissions", "permission": pe.Permission,
		})
	case errors.As(err, &nf):
		jsonError(w, http.StatusNotFound, nf.Entity+" not found")
	case errors.Is(err, model.ErrEntityLocked), errors.Is(err, model.ErrValidation):
		jsonError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("failed to "+action, "error", err, "request_id", requestID(r.Context()))
		jsonError(w, http.StatusInternalServerError, "failed to "+action)
	}
}

// pathID parses the {id} path value.
func pathID(w http.ResponseWriter, r *http.Request, entity string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		jsonError(w, http.StatusBadRequest, "invalid "+entity+" id")
		return 0, false
	}
	return id, true
}

// queryInt parses an optional integer query parameter, clamped to [1, max].
func queryInt(r *http.Request, key string, def, max int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n < 1 {
		return def
	}
	return min(n, max)
}

// parseDate parses a date (2006-01-02) or RFC 3339 timestamp from a request
// field. Empty input is nil.
func parseDate(field, s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, model.Invalid(field, "must be a date (YYYY-MM-DD)")
	}
	return &t, nil
}

// queryDate parses an optional date (2006-01-02) or RFC 3339 query parameter.
// A bare "to" date covers the whole day.
func queryDate(r *http.Request, key string) (*time.Time, error) {
	s := r.URL.Query().Get(key)
	t, err := parseDate(key, s)
	if t == nil || err != nil {
		return t, err
	}
	if key == "to" && !strings.Contains(s, "T") {
		end := t.Add(24*time.Hour - time.Second)
		t = &end
	}
	return t, nil
}

// queryWindow parses the from/to query parameters.
func queryWindow(r *http.Request) (from, to *time.Time, err error) {
	if from, err = queryDate(r, "from"); err != nil {
		return nil, nil, err
	}
	if to, err = queryDate(r, "to"); err != nil {
		return nil, nil, err
	}
	if from != nil && to != nil && to.Before(*from) {
		return nil, nil, model.Invalid("to", "must not be before from")
	}
	return from, to, nil
}

type statusRequest struct {
	Status string `json:"status"`
}

func decodeStatus(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return "", false
	}
	if strings.TrimSpace(req.Status) == "" {
		jsonError(w, http.StatusBadRequest, "status required")
		return "", false
	}
	return req.Status, true
}

// queryStatus reads the optional status filter, rejecting statuses m does not know.
func queryStatus(r *http.Request, m *lifecycle.Machine) (string, error) {
	s := r.URL.Query().Get("status")
	if s != "" && !m.Valid(s) {
		return "", model.Invalid("status", "unknown "+m.Entity()+" status "+strconv.Quote(s))
	}
	return s, nil
}
