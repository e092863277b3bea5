// Package api serves the JSON REST interface.
package api

import (
	"database/sql"
	"net/http"
	"time"
)

// Options configures the API router.
type Options struct {
	JWTSecret         string
	TokenTTL          time.Duration
	AllowRegistration bool
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(db *sql.DB, opts Options) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: db, JWTSecret: opts.JWTSecret, TokenTTL: opts.TokenTTL, AllowRegistration: opts.AllowRegistration}
	usersHandler := &UsersHandler{DB: db}
	purchasesHandler := &PurchasesHandler{DB: db}
	assignmentsHandler := &AssignmentsHandler{DB: db}
	transfersHandler := &TransfersHandler{DB: db}
	expendituresHandler := &ExpendituresHandler{DB: db}
	dashboardHandler := &DashboardHandler{DB: db}
	reportsHandler := &ReportsHandler{DB: db}
	adminHandler := &AdminHandler{DB: db}

	authMW := AuthMiddleware(opts.JWTSecret, db)
	protected := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, authMW(h))
	}

	// Public.
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.HandleFunc("POST /api/auth/register", authHandler.Register)

	protected("GET /api/auth/me", authHandler.Me)
	protected("PUT /api/auth/password", authHandler.ChangePassword)
	protected("POST /api/auth/logout", authHandler.Logout)

	protected("GET /api/users", usersHandler.List)
	protected("POST /api/users", usersHandler.Create)
	protected("GET /api/users/search", usersHandler.Search)
	protected("GET /api/users/{id}", usersHandler.Get)
	protected("PUT /api/users/{id}", usersHandler.Update)
	protected("PUT /api/users/{id}/password", usersHandler.ResetPassword)
	protected("DELETE /api/users/{id}", usersHandler.Delete)

	protected("GET /api/purchases", purchasesHandler.List)
	protected("POST /api/purchases", purchasesHandler.Create)
	protected("GET /api/purchases/available", purchasesHandler.Available)
	protected("GET /api/purchases/{id}", purchasesHandler.Get)
	protected("PUT /api/purchases/{id}", purchasesHandler.Update)
	protected("DELETE /api/purchases/{id}", purchasesHandler.Delete)
	protected("PATCH /api/purchases/{id}/status", purchasesHandler.UpdateStatus)
	protected("PUT /api/purchases/{id}/image", purchasesHandler.UploadImage)
	protected("GET /api/purchases/{id}/image", purchasesHandler.GetImage)

	protected("GET /api/assignments", assignmentsHandler.List)
	protected("POST /api/assignments", assignmentsHandler.Create)
	protected("GET /api/assignments/{id}", assignmentsHandler.Get)
	protected("PUT /api/assignments/{id}", assignmentsHandler.Update)
	protected("DELETE /api/assignments/{id}", assignmentsHandler.Delete)
	protected("PATCH /api/assignments/{id}/status", assignmentsHandler.UpdateStatus)

	protected("GET /api/transfers", transfersHandler.List)
	protected("POST /api/transfers", transfersHandler.Create)
	protected("GET /api/transfers/{id}", transfersHandler.Get)
	protected("PUT /api/transfers/{id}", transfersHandler.Update)
	protected("DELETE /api/transfers/{id}", transfersHandler.Delete)
	protected("PATCH /api/transfers/{id}/status", transfersHandler.UpdateStatus)

	protected("GET /api/expenditures", expendituresHandler.List)
	protected("POST /api/expenditures", expendituresHandler.Create)
	protected("GET /api/expenditures/summary", expendituresHandler.Summary)
	protected("GET /api/expenditures/{id}", expendituresHandler.Get)
	protected("PUT /api/expenditures/{id}", expendituresHandler.Update)
	protected("DELETE /api/expenditures/{id}", expendituresHandler.Delete)
	protected("PATCH /api/expenditures/{id}/status", expendituresHandler.UpdateStatus)

	protected("GET /api/dashboard/metrics", dashboardHandler.Metrics)
	protected("GET /api/dashboard/departments", dashboardHandler.Departments)
	protected("GET /api/dashboard/activities", dashboardHandler.Activities)
	protected("GET /api/dashboard/movement", dashboardHandler.Movement)

	protected("GET /api/reports/export", reportsHandler.Export)
	protected("GET /api/reports/inventory-audit", reportsHandler.InventoryAudit)

	protected("GET /api/admin/returns", adminHandler.ListReturns)
	protected("POST /api/admin/returns/retry", adminHandler.RetryReturns)

	return mux
}
