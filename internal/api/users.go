package api

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/garrison/internal/model"
	"github.com/erazemk/garrison/internal/rbac"
	"github.com/erazemk/garrison/internal/store"
)

// UsersHandler handles personnel and account endpoints.
type UsersHandler struct {
	DB *sql.DB
}

type userRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Rank       string `json:"rank"`
	Role       string `json:"role"`
	Base       string `json:"base"`
	Department string `json:"department"`
}

func (req *userRequest) apply(u *model.User) {
	u.FirstName = strings.TrimSpace(req.FirstName)
	u.LastName = strings.TrimSpace(req.LastName)
	u.Rank = strings.TrimSpace(req.Rank)
	u.Role = req.Role
	u.Base = strings.TrimSpace(req.Base)
	u.Department = strings.TrimSpace(req.Department)
}

type resetPasswordRequest struct {
	Password string `json:"password"`
}

var (
	permCreateUser = rbac.P(rbac.VerbCreate, rbac.ScopeNone, rbac.ResourceUser)
	permUpdateUser = rbac.P(rbac.VerbUpdate, rbac.ScopeNone, rbac.ResourceUser)
	permDeleteUser = rbac.P(rbac.VerbDelete, rbac.ScopeNone, rbac.ResourceUser)
)

// List handles GET /api/users.
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	v, ok := viewScope(w, r, rbac.ResourceUser)
	if !ok {
		return
	}
	q := r.URL.Query()
	users, err := store.ListUsers(r.Context(), h.DB, v, store.UserFilter{
		Role:       q.Get("role"),
		Department: q.Get("department"),
	})
	if err != nil {
		writeStoreError(w, r, err, "list users")
		return
	}
	jsonResponse(w, http.StatusOK, users)
}

// Search handles GET /api/users/search.
func (h *UsersHandler) Search(w http.ResponseWriter, r *http.Request) {
	v, ok := viewScope(w, r, rbac.ResourceUser)
	if !ok {
		return
	}
	q := r.URL.Query()
	users, err := store.ListUsers(r.Context(), h.DB, v, store.UserFilter{
		Search:     q.Get("q"),
		Department: q.Get("department"),
		Rank:       q.Get("rank"),
		Limit:      queryInt(r, "limit", 50, 200),
	})
	if err != nil {
		writeStoreError(w, r, err, "search users")
		return
	}
	jsonResponse(w, http.StatusOK, users)
}

// Create handles POST /api/users.
func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !require(w, r, permCreateUser) {
		return
	}

	var req userRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := model.ValidatePassword(req.Password); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	u := &model.User{Username: req.Username, PasswordHash: string(hash)}
	req.apply(u)
	user, err := store.CreateUser(r.Context(), h.DB, u)
	if err != nil {
		writeStoreError(w, r, err, "create user")
		return
	}

	slog.Info("user created", "user", GetPrincipal(r.Context()).Username, "new_user", user.Username, "role", user.Role, "base", user.Base)
	jsonResponse(w, http.StatusCreated, user)
}

// load fetches an active user the caller can see, writing 404 otherwise.
func (h *UsersHandler) load(w http.ResponseWriter, r *http.Request, v rbac.Visibility) (*model.User, bool) {
	id, ok := pathID(w, r, "user")
	if !ok {
		return nil, false
	}
	user, err := store.GetUser(r.Context(), h.DB, id)
	if err != nil {
		writeStoreError(w, r, err, "get user")
		return nil, false
	}
	if user == nil || user.DeletedAt != nil || !v.Admits(user.Base) {
		jsonError(w, http.StatusNotFound, "user not found")
		return nil, false
	}
	return user, true
}

// Get handles GET /api/users/{id}.
func (h *UsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	v, ok := viewScope(w, r, rbac.ResourceUser)
	if !ok {
		return
	}
	if user, ok := h.load(w, r, v); ok {
		jsonResponse(w, http.StatusOK, user)
	}
}

// Update handles PUT /api/users/{id}.
func (h *UsersHandler) Update(w http.ResponseWriter, r *http.Request) {
	if !require(w, r, permUpdateUser) {
		return
	}
	user, ok := h.load(w, r, rbac.Resolve(GetPrincipal(r.Context())))
	if !ok {
		return
	}

	var req userRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	wasAdmin := user.Role == model.RoleAdmin
	req.apply(user)
	if wasAdmin && user.Role != model.RoleAdmin {
		admins, err := store.CountActiveAdmins(r.Context(), h.DB)
		if err != nil {
			writeStoreError(w, r, err, "update user")
			return
		}
		if admins <= 1 {
			writeStoreError(w, r, &model.LockedError{Entity: "user", Reason: "cannot demote the last admin"}, "update user")
			return
		}
	}

	updated, err := store.UpdateUser(r.Context(), h.DB, user)
	if err != nil {
		writeStoreError(w, r, err, "update user")
		return
	}

	slog.Info("user updated", "user", GetPrincipal(r.Context()).Username, "target_user", updated.Username, "role", updated.Role, "base", updated.Base)
	jsonResponse(w, http.StatusOK, updated)
}

// ResetPassword handles PUT /api/users/{id}/password.
func (h *UsersHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	if !require(w, r, permUpdateUser) {
		return
	}
	user, ok := h.load(w, r, rbac.Resolve(GetPrincipal(r.Context())))
	if !ok {
		return
	}

	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := model.ValidatePassword(req.Password); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	if err := store.UpdateUserPassword(r.Context(), h.DB, user.ID, string(hash)); err != nil {
		writeStoreError(w, r, err, "reset password")
		return
	}

	slog.Info("user password reset", "user", GetPrincipal(r.Context()).Username, "target_user", user.Username)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "password reset"})
}

// Delete handles DELETE /api/users/{id}.
func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if !require(w, r, permDeleteUser) {
		return
	}
	id, ok := pathID(w, r, "user")
	if !ok {
		return
	}

	p := GetPrincipal(r.Context())
	if p.ID == id {
		jsonError(w, http.StatusBadRequest, "cannot delete yourself")
		return
	}

	// Look up target name before deleting.
	target, _ := store.GetUser(r.Context(), h.DB, id)
	targetName := fmt.Sprintf("id:%d", id)
	if target != nil {
		targetName = target.Username
	}

	if err := store.DeleteUser(r.Context(), h.DB, id); err != nil {
		writeStoreError(w, r, err, "delete user")
		return
	}

	slog.Info("user deleted", "user", p.Username, "deleted_user", targetName)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "user deleted"})
}
