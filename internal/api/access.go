package api

import (
	"errors"
	"net/http"

	"github.com/erazemk/garrison/internal/lifecycle"
	"github.com/erazemk/garrison/internal/metrics"
	"github.com/erazemk/garrison/internal/model"
	"github.com/erazemk/garrison/internal/rbac"
)

// viewScope returns the caller's visibility, or writes 403 when the role
// cannot view the resource at all.
func viewScope(w http.ResponseWriter, r *http.Request, resource rbac.Resource) (rbac.Visibility, bool) {
	p := GetPrincipal(r.Context())
	if !rbac.CanView(p, resource) {
		writeStoreError(w, r, &model.PermissionError{Permission: rbac.P(rbac.VerbView, rbac.ScopeBase, resource).String()}, "")
		return rbac.Visibility{}, false
	}
	return rbac.Resolve(p), true
}

// authorizeRecord checks perm against a record owned by ownerID that lives at
// the given bases, writing 403 on refusal.
func authorizeRecord(w http.ResponseWriter, r *http.Request, perm rbac.Permission, ownerID int64, bases ...string) bool {
	p := GetPrincipal(r.Context())
	if err := rbac.Authorize(p, perm, ownerID, rbac.Resolve(p).Admits(bases...)); err != nil {
		writeStoreError(w, r, err, "")
		return false
	}
	return true
}

// require checks a permission not tied to a record, writing 403 on refusal.
func require(w http.ResponseWriter, r *http.Request, perm rbac.Permission) bool {
	if err := rbac.Require(GetPrincipal(r.Context()), perm); err != nil {
		writeStoreError(w, r, err, "")
		return false
	}
	return true
}

// authorizeStatus checks a status change. Approvers may move a record along
// its table; a cancellation is also allowed to whoever may edit the record.
func authorizeStatus(w http.ResponseWriter, r *http.Request, resource rbac.Resource, requested string, ownerID int64, bases ...string) bool {
	p := GetPrincipal(r.Context())
	visible := rbac.Resolve(p).Admits(bases...)
	if requested == "Cancelled" {
		if rbac.Authorize(p, rbac.P(rbac.VerbUpdate, rbac.ScopeAny, resource), ownerID, visible) == nil {
			return true
		}
	}
	if err := rbac.Authorize(p, rbac.P(rbac.VerbApprove, rbac.ScopeNone, resource), 0, visible); err != nil {
		writeStoreError(w, r, err, "")
		return false
	}
	return true
}

// editable writes the locked error for a record whose status no longer
// accepts changes, before any payload is read.
func editable(w http.ResponseWriter, r *http.Request, m *lifecycle.Machine, status string) bool {
	if err := m.CheckEditable(status); err != nil {
		writeStoreError(w, r, err, "edit "+m.Entity())
		return false
	}
	return true
}

func observeTransition(entity, to string, err error) {
	outcome := metrics.OutcomeOK
	switch {
	case err == nil:
	case errors.Is(err, model.ErrInvalidTransition), errors.Is(err, model.ErrInsufficientInventory),
		errors.Is(err, model.ErrEntityLocked), errors.Is(err, model.ErrNotFound):
		outcome = metrics.OutcomeRejected
	default:
		outcome = metrics.OutcomeError
	}
	metrics.ObserveTransition(entity, to, outcome)
}
