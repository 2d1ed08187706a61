package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"konterhp/backend/internal/cache"
	"konterhp/backend/internal/service"
	"konterhp/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, cache.NoopDashboardCache{}, 5*time.Second)
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	return New(svc, auth, "*")
}

func newEmptyAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.New()
	svc := service.New(repo, cache.NoopDashboardCache{}, 5*time.Second)
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	return New(svc, auth, "*")
}

func doJSON(t *testing.T, handler http.Handler, method string, path string, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body struct {
		Data map[string]any `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v (raw: %s)", err, rec.Body.String())
	}
	return body.Data
}

func loginAs(t *testing.T, handler http.Handler, username string, password string) string {
	t.Helper()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": username,
		"password": password,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login as %s failed: %d (body: %s)", username, rec.Code, rec.Body.String())
	}
	data := decodeData(t, rec)
	token, _ := data["access_token"].(string)
	if token == "" {
		t.Fatalf("expected access token, got %v", data)
	}
	return token
}

func TestHandleHealth(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "admin",
		"password": "wrongpassword",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestProductsRequireAuth(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/products", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestAgentCannotCreateProduct(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := loginAs(t, handler, "agent", "agent123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/products", token, map[string]any{
		"sku":         "HP-TEST-01",
		"name":        "Test Phone",
		"category":    "phone",
		"price_cents": 1_000_000,
		"stock":       5,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for agent product create, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestSaleLifecycleOverHTTP(t *testing.T) {
	handler := newTestAPI(t).Handler()
	adminToken := loginAs(t, handler, "admin", "admin123")
	agentToken := loginAs(t, handler, "agent", "agent123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/products", adminToken, map[string]any{
		"sku":             "ACC-HTTP-01",
		"name":            "Test Cable",
		"category":        "accessory",
		"price_cents":     45_000,
		"stock":           10,
		"alert_threshold": 2,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 for product create, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	productID := int64(decodeData(t, rec)["id"].(float64))

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/sales", agentToken, map[string]any{
		"payment_method": "cash",
		"discount_cents": 5_000,
		"items": []map[string]any{
			{"product_id": productID, "qty": 2},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 for sale create, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	saleData := decodeData(t, rec)
	if saleData["total_cents"].(float64) != 85_000 {
		t.Fatalf("expected total 85000, got %v", saleData["total_cents"])
	}
	saleID := int64(saleData["id"].(float64))

	// Agents work the register, so they can cancel their own mistakes.
	cancelPath := fmt.Sprintf("/api/v1/sales/%d/cancel", saleID)
	rec = doJSON(t, handler, http.MethodPost, cancelPath, agentToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for agent cancel, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	if status := decodeData(t, rec)["status"]; status != "cancelled" {
		t.Fatalf("expected cancelled status, got %v", status)
	}

	rec = doJSON(t, handler, http.MethodPost, cancelPath, adminToken, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for second cancel, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, fmt.Sprintf("/api/v1/products/%d", productID), agentToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for product get, got %d", rec.Code)
	}
	if stock := decodeData(t, rec)["stock"].(float64); stock != 10 {
		t.Fatalf("expected stock restored to 10, got %v", stock)
	}
}

// Reads are open to every authenticated role; product, customer and repair
// mutations need manager or admin; sales and cash sessions belong to the
// register and are open to agents too.
func TestRoleMatrix(t *testing.T) {
	handler := newTestAPI(t).Handler()
	agentToken := loginAs(t, handler, "agent", "agent123")

	forbidden := []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodPost, "/api/v1/customers", map[string]any{"phone": "0812000001", "name": "Baru"}},
		{http.MethodPatch, "/api/v1/customers/1", map[string]any{"name": "Ganti"}},
		{http.MethodPost, "/api/v1/repairs", map[string]any{"device": "Redmi 9", "issue": "lcd"}},
		{http.MethodPatch, "/api/v1/repairs/1", map[string]any{"status": "ready"}},
	}
	for _, tc := range forbidden {
		rec := doJSON(t, handler, tc.method, tc.path, agentToken, tc.body)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("%s %s as agent: expected 403, got %d (body: %s)", tc.method, tc.path, rec.Code, rec.Body.String())
		}
	}

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/customers", agentToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 listing customers as agent, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/cash-sessions", agentToken, map[string]any{
		"opening_cents": 50_000,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 for agent session open, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	sessionID := int64(decodeData(t, rec)["id"].(float64))

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/cash-sessions", agentToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 listing sessions as agent, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, fmt.Sprintf("/api/v1/cash-sessions/%d", sessionID), agentToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 reading session as agent, got %d", rec.Code)
	}
}

func TestCashSessionOverHTTP(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := loginAs(t, handler, "admin", "admin123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/cash-sessions", token, map[string]any{
		"opening_cents": 100_000,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 for open, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	sessionID := int64(decodeData(t, rec)["id"].(float64))

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/cash-sessions", token, map[string]any{
		"opening_cents": 50_000,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for second open, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/cash-sessions/current", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for current session, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, fmt.Sprintf("/api/v1/cash-sessions/%d/close", sessionID), token, map[string]any{
		"closing_cents": 100_000,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for close, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	closed := decodeData(t, rec)
	if closed["expected_cents"].(float64) != 100_000 || closed["difference_cents"].(float64) != 0 {
		t.Fatalf("unexpected close arithmetic: %v", closed)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/cash-sessions/current", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after close, got %d", rec.Code)
	}
}

func TestSetupAdminSealsAfterFirstUse(t *testing.T) {
	handler := newEmptyAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/setup-admin", "", map[string]string{
		"username": "boss",
		"password": "secret123",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 for first setup, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/auth/setup-admin", "", map[string]string{
		"username": "intruder",
		"password": "secret123",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 once an admin exists, got %d", rec.Code)
	}

	// The bootstrap account can log in right away.
	token := loginAs(t, handler, "boss", "secret123")
	rec = doJSON(t, handler, http.MethodGet, "/api/admin/users", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 listing users as new admin, got %d", rec.Code)
	}
}

func TestAgentForbiddenFromAuditLogs(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := loginAs(t, handler, "agent", "agent123")

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/audit-logs", token, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for agent audit logs, got %d", rec.Code)
	}
}

func TestRoleAssignmentOverHTTP(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := loginAs(t, handler, "admin", "admin123")

	rec := doJSON(t, handler, http.MethodPost, "/api/admin/users", token, map[string]string{
		"username": "siti",
		"password": "secret123",
		"role":     "agent",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 for user create, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPatch, "/api/admin/users/siti/role", token, map[string]string{
		"role": "manager",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for role assign, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	if role := decodeData(t, rec)["role"]; role != "manager" {
		t.Fatalf("expected manager role, got %v", role)
	}

	// The promoted user can now create products.
	sitiToken := loginAs(t, handler, "siti", "secret123")
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/products", sitiToken, map[string]any{
		"sku":         "ACC-ROLE-01",
		"name":        "Holder",
		"category":    "accessory",
		"price_cents": 20_000,
		"stock":       5,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 after promotion, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestUnknownJSONFieldRejected(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := loginAs(t, handler, "admin", "admin123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/customers", token, map[string]any{
		"phone": "0855555555",
		"name":  "Test",
		"bogus": true,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rec.Code)
	}
}
