package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/garrison/internal/db"
	"github.com/erazemk/garrison/internal/model"
	"github.com/erazemk/garrison/internal/report"
	"github.com/erazemk/garrison/internal/store"
)

const (
	testJWTSecret = "test-secret"
	testPassword  = "password123"
)

type testEnv struct {
	server *httptest.Server
	db     *sql.DB
	admin  string
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	database := db.NewTestDB(t)
	opts.JWTSecret = testJWTSecret
	if opts.TokenTTL == 0 {
		opts.TokenTTL = time.Hour
	}
	server := httptest.NewServer(NewRouter(database, opts))
	t.Cleanup(server.Close)

	env := &testEnv{server: server, db: database}
	env.createUser(t, "admin", model.RoleAdmin, "HQ", "Command")
	env.admin = env.login(t, "admin")
	return env
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnv(t, Options{})
}

func (e *testEnv) createUser(t *testing.T, username, role, base, department string) *model.User {
	t.Helper()
	hash, _ := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	u, err := store.CreateUser(context.Background(), e.db, &model.User{
		Username:     username,
		PasswordHash: string(hash),
		FirstName:    username,
		LastName:     "Tester",
		Role:         role,
		Base:         base,
		Department:   department,
	})
	if err != nil {
		t.Fatalf("creating user %s: %v", username, err)
	}
	return u
}

func (e *testEnv) login(t *testing.T, username string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"username": username, "password": testPassword})
	resp, err := http.Post(e.server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login failed for %s: %d", username, resp.StatusCode)
	}

	var loginResp struct {
		Token string `json:"token"`
	}
	json.NewDecoder(resp.Body).Decode(&loginResp)
	if loginResp.Token == "" {
		t.Fatal("empty token from login")
	}
	return loginResp.Token
}

func authRequest(method, url, token string, body any) (*http.Request, error) {
	var bodyReader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(data)
	} else {
		bodyReader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// call performs an authenticated request and decodes a JSON response into out
// when out is non-nil.
func (e *testEnv) call(t *testing.T, method, path, token string, body, out any) int {
	t.Helper()
	req, err := authRequest(method, e.server.URL+path, token, body)
	if err != nil {
		t.Fatalf("building %s %s: %v", method, path, err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decoding %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func (e *testEnv) setStatus(t *testing.T, path, token, status string, want int) map[string]any {
	t.Helper()
	var out map[string]any
	if code := e.call(t, http.MethodPatch, path+"/status", token, map[string]string{"status": status}, &out); code != want {
		t.Fatalf("PATCH %s -> %s: expected %d, got %d (%v)", path, status, want, code, out)
	}
	return out
}

func (e *testEnv) deliveredPurchase(t *testing.T, quantity int) int64 {
	t.Helper()
	var p model.Purchase
	code := e.call(t, http.MethodPost, "/api/purchases", e.admin, map[string]any{
		"item": "Field radio", "category": "Communications", "quantity": quantity,
		"unit_price": 100, "supplier": "Signal Corp", "department": "Signals",
	}, &p)
	if code != http.StatusCreated {
		t.Fatalf("create purchase: expected 201, got %d", code)
	}
	path := "/api/purchases/" + itoa(p.ID)
	for _, s := range []string{"Approved", "Processing", "Delivered"} {
		e.setStatus(t, path, e.admin, s, http.StatusOK)
	}
	return p.ID
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }

func TestLoginEndpoint(t *testing.T) {
	env := setupTestServer(t)

	// Test invalid credentials.
	body, _ := json.Marshal(map[string]string{"username": "admin", "password": "wrong"})
	resp, _ := http.Post(env.server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for bad password, got %d", resp.StatusCode)
	}

	var me model.User
	if code := env.call(t, http.MethodGet, "/api/auth/me", env.admin, nil, &me); code != http.StatusOK {
		t.Fatalf("expected 200 from me, got %d", code)
	}
	if me.Username != "admin" || me.Role != model.RoleAdmin {
		t.Errorf("unexpected me response: %+v", me)
	}
}

func TestUnauthenticatedAccess(t *testing.T) {
	env := setupTestServer(t)

	resp, _ := http.Get(env.server.URL + "/api/purchases")
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", resp.StatusCode)
	}

	if code := env.call(t, http.MethodGet, "/api/purchases", "not-a-token", nil, nil); code != http.StatusUnauthorized {
		t.Errorf("expected 401 with bad token, got %d", code)
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	env := setupTestServer(t)
	token := env.login(t, "admin")

	if code := env.call(t, http.MethodPost, "/api/auth/logout", token, nil, nil); code != http.StatusOK {
		t.Fatalf("expected 200 from logout, got %d", code)
	}
	if code := env.call(t, http.MethodGet, "/api/auth/me", token, nil, nil); code != http.StatusUnauthorized {
		t.Errorf("expected 401 after logout, got %d", code)
	}
	// Other sessions are unaffected.
	if code := env.call(t, http.MethodGet, "/api/auth/me", env.admin, nil, nil); code != http.StatusOK {
		t.Errorf("expected 200 for other session, got %d", code)
	}
}

func TestDeletedUserTokenRejected(t *testing.T) {
	env := setupTestServer(t)
	officer := env.createUser(t, "officer", model.RoleLogisticsOfficer, "Base A", "Supply")
	token := env.login(t, "officer")

	if code := env.call(t, http.MethodDelete, "/api/users/"+itoa(officer.ID), env.admin, nil, nil); code != http.StatusOK {
		t.Fatalf("expected 200 deleting user, got %d", code)
	}
	if code := env.call(t, http.MethodGet, "/api/purchases", token, nil, nil); code != http.StatusUnauthorized {
		t.Errorf("expected 401 for deleted user, got %d", code)
	}
}

func TestRegistration(t *testing.T) {
	body := map[string]string{
		"username": "newbie", "password": testPassword, "first_name": "New", "last_name": "Recruit", "base": "Base A",
	}

	env := setupTestServer(t)
	if code := env.call(t, http.MethodPost, "/api/auth/register", "", body, nil); code != http.StatusForbidden {
		t.Errorf("expected 403 with registration disabled, got %d", code)
	}

	open := newTestEnv(t, Options{AllowRegistration: true})
	var resp loginResponse
	if code := open.call(t, http.MethodPost, "/api/auth/register", "", body, &resp); code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", code)
	}
	if resp.Token == "" || resp.User.Role != model.RoleLogisticsOfficer {
		t.Errorf("unexpected registration response: %+v", resp.User)
	}
}

func TestLogisticsOfficerCannotCreateAssignment(t *testing.T) {
	env := setupTestServer(t)
	officer := env.createUser(t, "officer", model.RoleLogisticsOfficer, "Base A", "Supply")
	token := env.login(t, "officer")

	var out map[string]any
	code := env.call(t, http.MethodPost, "/api/assignments", token, map[string]any{
		"personnel_id": officer.ID, "assignment": "Guard duty",
		"start_date": "2026-01-01", "end_date": "2026-02-01",
	}, &out)
	if code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", code)
	}
	if out["permission"] != "create_assignment" {
		t.Errorf("expected permission create_assignment, got %v", out["permission"])
	}

	// Officers may still read assignments at their base.
	if code := env.call(t, http.MethodGet, "/api/assignments", token, nil, nil); code != http.StatusOK {
		t.Errorf("expected 200 listing assignments, got %d", code)
	}
}

func TestOfficerEditsOnlyOwnPurchases(t *testing.T) {
	env := setupTestServer(t)
	env.createUser(t, "alice", model.RoleLogisticsOfficer, "Base A", "Supply")
	env.createUser(t, "bob", model.RoleLogisticsOfficer, "Base A", "Supply")
	alice := env.login(t, "alice")
	bob := env.login(t, "bob")

	var p model.Purchase
	req := map[string]any{"item": "Tents", "category": "Other", "quantity": 5, "unit_price": 40}
	if code := env.call(t, http.MethodPost, "/api/purchases", alice, req, &p); code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", code)
	}
	path := "/api/purchases/" + itoa(p.ID)

	req["quantity"] = 6
	if code := env.call(t, http.MethodPut, path, bob, req, nil); code != http.StatusForbidden {
		t.Errorf("expected 403 for non-owner update, got %d", code)
	}
	if code := env.call(t, http.MethodPut, path, alice, req, &p); code != http.StatusOK || p.Quantity != 6 {
		t.Errorf("owner update: code %d, quantity %d", code, p.Quantity)
	}

	// Approval needs approve_purchase, which officers never hold.
	out := env.setStatus(t, path, alice, "Approved", http.StatusForbidden)
	if out["permission"] != "approve_purchase" {
		t.Errorf("expected approve_purchase, got %v", out["permission"])
	}
	// The owner may cancel.
	env.setStatus(t, path, alice, "Cancelled", http.StatusOK)
}

func TestTransferCannotSkipTransit(t *testing.T) {
	env := setupTestServer(t)

	var tr model.Transfer
	code := env.call(t, http.MethodPost, "/api/transfers", env.admin, map[string]any{
		"equipment": "Generators", "quantity": 2, "source_base": "Base A", "destination_base": "Base B",
	}, &tr)
	if code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", code)
	}
	path := "/api/transfers/" + itoa(tr.ID)

	out := env.setStatus(t, path, env.admin, "Completed", http.StatusBadRequest)
	if out["current"] != "Pending" || out["requested"] != "Completed" {
		t.Errorf("unexpected transition error body: %v", out)
	}

	env.call(t, http.MethodGet, path, env.admin, nil, &tr)
	if tr.Status != "Pending" {
		t.Errorf("expected transfer to stay Pending, got %s", tr.Status)
	}

	env.setStatus(t, path, env.admin, "In Transit", http.StatusOK)
	out = env.setStatus(t, path, env.admin, "Completed", http.StatusOK)
	if out["actual_date"] == nil {
		t.Error("expected completion to stamp actual_date")
	}
}

func TestListRejectsUnknownStatus(t *testing.T) {
	env := setupTestServer(t)

	env.call(t, http.MethodPost, "/api/transfers", env.admin, map[string]any{
		"equipment": "Radios", "quantity": 3, "source_base": "Base A", "destination_base": "Base B",
	}, nil)

	var pending []model.Transfer
	if code := env.call(t, http.MethodGet, "/api/transfers?status=Pending", env.admin, nil, &pending); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if len(pending) != 1 {
		t.Errorf("expected 1 pending transfer, got %d", len(pending))
	}

	for _, path := range []string{"/api/transfers", "/api/purchases", "/api/assignments", "/api/expenditures"} {
		if code := env.call(t, http.MethodGet, path+"?status=Lost", env.admin, nil, nil); code != http.StatusBadRequest {
			t.Errorf("%s: expected 400 for unknown status, got %d", path, code)
		}
	}
}

func TestTransferMustTouchCallerBase(t *testing.T) {
	env := setupTestServer(t)
	env.createUser(t, "officer", model.RoleLogisticsOfficer, "Base A", "Supply")
	token := env.login(t, "officer")

	code := env.call(t, http.MethodPost, "/api/transfers", token, map[string]any{
		"equipment": "Fuel cans", "quantity": 3, "source_base": "Base B", "destination_base": "Base C",
	}, nil)
	if code != http.StatusBadRequest {
		t.Errorf("expected 400 for a transfer between other bases, got %d", code)
	}
}

func TestAssignmentAllocationFlow(t *testing.T) {
	env := setupTestServer(t)
	soldier := env.createUser(t, "soldier", model.RoleLogisticsOfficer, "Base A", "Infantry")
	lot := env.deliveredPurchase(t, 10)

	newAssignment := func(quantity int) string {
		t.Helper()
		var a model.Assignment
		code := env.call(t, http.MethodPost, "/api/assignments", env.admin, map[string]any{
			"personnel_id": soldier.ID, "assignment": "Patrol", "priority": "High",
			"equipment_purchase_id": lot, "equipment_quantity": quantity,
			"start_date": "2026-01-01", "end_date": "2026-02-01",
		}, &a)
		if code != http.StatusCreated {
			t.Fatalf("expected 201 creating assignment, got %d", code)
		}
		return "/api/assignments/" + itoa(a.ID)
	}
	availableNow := func() int {
		t.Helper()
		var p model.Purchase
		env.call(t, http.MethodGet, "/api/purchases/"+itoa(lot), env.admin, nil, &p)
		if p.QuantityAvailable == nil {
			t.Fatal("delivered purchase has no available quantity")
		}
		return *p.QuantityAvailable
	}

	first := newAssignment(4)
	second := newAssignment(7)

	env.setStatus(t, first, env.admin, "Active", http.StatusOK)
	if got := availableNow(); got != 6 {
		t.Fatalf("expected 6 available after activation, got %d", got)
	}

	out := env.setStatus(t, second, env.admin, "Active", http.StatusBadRequest)
	if out["required"] != float64(7) || out["available"] != float64(6) {
		t.Errorf("unexpected inventory error body: %v", out)
	}
	if got := availableNow(); got != 6 {
		t.Errorf("rejected activation changed availability to %d", got)
	}

	out = env.setStatus(t, first, env.admin, "Completed", http.StatusOK)
	if out["returned_quantity"] != float64(4) {
		t.Errorf("expected 4 returned, got %v", out["returned_quantity"])
	}
	if got := availableNow(); got != 10 {
		t.Errorf("expected 10 available after completion, got %d", got)
	}

	var audit []store.AuditEntry
	if code := env.call(t, http.MethodGet, "/api/reports/inventory-audit", env.admin, nil, &audit); code != http.StatusOK {
		t.Fatalf("expected 200 from audit, got %d", code)
	}
	if len(audit) != 1 || !audit[0].Consistent {
		t.Errorf("unexpected audit: %+v", audit)
	}
}

func TestVisibilityHidesOtherBases(t *testing.T) {
	env := setupTestServer(t)
	env.createUser(t, "officer", model.RoleLogisticsOfficer, "Base A", "Supply")
	env.createUser(t, "commander", model.RoleBaseCommander, "Base B", "Command")
	officer := env.login(t, "officer")
	commander := env.login(t, "commander")

	var p model.Purchase
	env.call(t, http.MethodPost, "/api/purchases", officer, map[string]any{
		"item": "Boots", "category": "Protective", "quantity": 20, "unit_price": 60,
	}, &p)

	if code := env.call(t, http.MethodGet, "/api/purchases/"+itoa(p.ID), commander, nil, nil); code != http.StatusNotFound {
		t.Errorf("expected 404 for purchase at another base, got %d", code)
	}
	var list []model.Purchase
	env.call(t, http.MethodGet, "/api/purchases", commander, nil, &list)
	if len(list) != 0 {
		t.Errorf("expected empty list for Base B, got %d", len(list))
	}

	// The commander's approve grant does not reach another base.
	env.setStatus(t, "/api/purchases/"+itoa(p.ID), commander, "Approved", http.StatusForbidden)

	env.call(t, http.MethodGet, "/api/purchases", env.admin, nil, &list)
	if len(list) != 1 {
		t.Errorf("expected admin to see 1 purchase, got %d", len(list))
	}
}

func TestDashboardMetrics(t *testing.T) {
	env := setupTestServer(t)
	env.createUser(t, "commander", model.RoleBaseCommander, "Base A", "Command")
	env.createUser(t, "officer", model.RoleLogisticsOfficer, "Base A", "Supply")
	env.createUser(t, "other", model.RoleLogisticsOfficer, "Base B", "Supply")
	commander := env.login(t, "commander")
	officer := env.login(t, "officer")
	other := env.login(t, "other")

	env.call(t, http.MethodPost, "/api/expenditures", officer, map[string]any{
		"description": "Diesel", "amount": 120.5, "category": "Fuel", "department": "Motor Pool",
	}, nil)
	env.call(t, http.MethodPost, "/api/expenditures", other, map[string]any{
		"description": "Rations", "amount": 50, "category": "Rations", "department": "Mess",
	}, nil)

	var d report.Dashboard
	if code := env.call(t, http.MethodGet, "/api/dashboard/metrics", commander, nil, &d); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if d.Base != "Base A" || d.Summary.TotalExpenditures != 120.5 {
		t.Errorf("unexpected base dashboard: base %q, expenditures %v", d.Base, d.Summary.TotalExpenditures)
	}
	if d.Personnel.Total != 2 || d.Summary.Period != "All-time" {
		t.Errorf("unexpected personnel %d or period %q", d.Personnel.Total, d.Summary.Period)
	}

	// Commanders cannot widen their scope.
	env.call(t, http.MethodGet, "/api/dashboard/metrics?base=Base+B", commander, nil, &d)
	if d.Base != "Base A" {
		t.Errorf("commander dashboard widened to %q", d.Base)
	}

	env.call(t, http.MethodGet, "/api/dashboard/metrics?base=Base+B", env.admin, nil, &d)
	if d.Base != "Base B" || d.Summary.TotalExpenditures != 50 {
		t.Errorf("unexpected narrowed admin dashboard: %q %v", d.Base, d.Summary.TotalExpenditures)
	}

	var summary []report.DepartmentTotal
	env.call(t, http.MethodGet, "/api/dashboard/departments", env.admin, nil, &summary)
	if len(summary) != 2 || summary[0].Department != "Motor Pool" {
		t.Errorf("unexpected department summary: %+v", summary)
	}

	var feed []report.Activity
	env.call(t, http.MethodGet, "/api/dashboard/activities?limit=8", commander, nil, &feed)
	if len(feed) != 1 || feed[0].Type != "expenditure" {
		t.Errorf("unexpected activity feed: %+v", feed)
	}

	if code := env.call(t, http.MethodGet, "/api/dashboard/metrics?from=2026-02-01&to=2026-01-01", env.admin, nil, nil); code != http.StatusBadRequest {
		t.Errorf("expected 400 for inverted window, got %d", code)
	}
}

func TestExportReturnsWorkbook(t *testing.T) {
	env := setupTestServer(t)
	env.deliveredPurchase(t, 3)
	env.createUser(t, "officer", model.RoleLogisticsOfficer, "Base A", "Supply")

	if code := env.call(t, http.MethodGet, "/api/reports/export", env.login(t, "officer"), nil, nil); code != http.StatusForbidden {
		t.Errorf("expected 403 exporting as officer, got %d", code)
	}

	req, _ := authRequest(http.MethodGet, env.server.URL+"/api/reports/export", env.admin, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != xlsxMIME {
		t.Errorf("unexpected content type %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.HasPrefix(cd, "attachment;") {
		t.Errorf("unexpected content disposition %q", cd)
	}

	f, err := excelize.OpenReader(resp.Body)
	if err != nil {
		t.Fatalf("opening workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(report.SheetPurchases)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[1][1] != "Field radio" {
		t.Errorf("unexpected purchase rows: %v", rows)
	}
}

// uploadImage sends a small PNG as the photo of a purchase and returns the status code.
func (e *testEnv) uploadImage(t *testing.T, purchaseID int64) int {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 8))
	for x := 0; x < 16; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.RGBA{80, 90, 40, 255})
		}
	}
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, _ := mw.CreateFormFile("image", "helmet.png")
	png.Encode(part, img)
	mw.Close()

	req, _ := http.NewRequest(http.MethodPut, e.server.URL+"/api/purchases/"+itoa(purchaseID)+"/image", &body)
	req.Header.Set("Authorization", "Bearer "+e.admin)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func TestPurchaseImageUpload(t *testing.T) {
	env := setupTestServer(t)

	var p model.Purchase
	env.call(t, http.MethodPost, "/api/purchases", env.admin, map[string]any{
		"item": "Helmets", "category": "Protective", "quantity": 4, "unit_price": 80,
	}, &p)

	if code := env.uploadImage(t, p.ID); code != http.StatusOK {
		t.Fatalf("expected 200 uploading image, got %d", code)
	}

	req, _ := authRequest(http.MethodGet, env.server.URL+"/api/purchases/"+itoa(p.ID)+"/image", env.admin, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/jpeg" {
		t.Errorf("unexpected image response: %d %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
}

func TestDeliveredPurchaseRejectsImage(t *testing.T) {
	env := setupTestServer(t)
	id := env.deliveredPurchase(t, 3)

	var before model.Purchase
	env.call(t, http.MethodGet, "/api/purchases/"+itoa(id), env.admin, nil, &before)

	if code := env.uploadImage(t, id); code != http.StatusBadRequest {
		t.Fatalf("expected 400 uploading to a delivered purchase, got %d", code)
	}

	var after model.Purchase
	env.call(t, http.MethodGet, "/api/purchases/"+itoa(id), env.admin, nil, &after)
	if !after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Errorf("rejected upload bumped updated_at from %v to %v", before.UpdatedAt, after.UpdatedAt)
	}
}

func TestLockedTransferEditReportsLock(t *testing.T) {
	env := setupTestServer(t)

	var tr model.Transfer
	env.call(t, http.MethodPost, "/api/transfers", env.admin, map[string]any{
		"equipment": "Tents", "quantity": 6, "source_base": "Base A", "destination_base": "Base B",
	}, &tr)
	path := "/api/transfers/" + itoa(tr.ID)
	env.setStatus(t, path, env.admin, "In Transit", http.StatusOK)
	env.setStatus(t, path, env.admin, "Completed", http.StatusOK)

	// The payload is invalid too; the lock must still be what is reported.
	var out map[string]any
	code := env.call(t, http.MethodPut, path, env.admin, map[string]any{
		"equipment": "", "quantity": 0, "source_base": "Base A", "destination_base": "Base A",
	}, &out)
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
	if msg, _ := out["error"].(string); !strings.Contains(msg, "Completed transfer") {
		t.Errorf("expected locked error, got %q", msg)
	}
}

func TestAdminReturnsEndpoints(t *testing.T) {
	env := setupTestServer(t)
	env.createUser(t, "commander", model.RoleBaseCommander, "Base A", "Command")

	if code := env.call(t, http.MethodGet, "/api/admin/returns", env.login(t, "commander"), nil, nil); code != http.StatusForbidden {
		t.Errorf("expected 403 for commander, got %d", code)
	}

	var returns []model.InventoryReturn
	if code := env.call(t, http.MethodGet, "/api/admin/returns", env.admin, nil, &returns); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if len(returns) != 0 {
		t.Errorf("expected empty queue, got %d", len(returns))
	}

	var result store.RetryResult
	if code := env.call(t, http.MethodPost, "/api/admin/returns/retry", env.admin, nil, &result); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if result.Applied != 0 || result.Failed != 0 {
		t.Errorf("unexpected retry result: %+v", result)
	}
}

func TestLastAdminCannotBeDemoted(t *testing.T) {
	env := setupTestServer(t)

	var me model.User
	env.call(t, http.MethodGet, "/api/auth/me", env.admin, nil, &me)

	code := env.call(t, http.MethodPut, "/api/users/"+itoa(me.ID), env.admin, map[string]any{
		"first_name": "admin", "role": model.RoleBaseCommander, "base": "HQ",
	}, nil)
	if code != http.StatusBadRequest {
		t.Errorf("expected 400 demoting the last admin, got %d", code)
	}
}
