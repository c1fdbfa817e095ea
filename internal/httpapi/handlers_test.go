package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"resalewallet/backend/internal/cache"
	"resalewallet/backend/internal/domain"
	"resalewallet/backend/internal/service"
	"resalewallet/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, cache.NoopStatsCache{}, 5*time.Second)
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	return New(svc, auth, "*")
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

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

func TestHandleLogin_Success(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(map[string]string{
		"email":    memory.DemoEmail,
		"password": "demo1234",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["access_token"] == "" || body["access_token"] == nil {
		t.Fatalf("expected access_token in response, got %v", body)
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(map[string]string{
		"email":    memory.DemoEmail,
		"password": "wrongpassword",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleRegister_DuplicateEmailConflicts(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(map[string]string{
		"email":    memory.DemoEmail,
		"password": "another-password",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleRegister_NewAccountStartsEmpty(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(map[string]string{
		"email":    "fresh@example.com",
		"password": "fresh-password",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var resp domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode register response: %v", err)
	}

	listReq := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	listReq.Header.Set("Authorization", "Bearer "+resp.AccessToken)
	listRec := httptest.NewRecorder()
	handler.ServeHTTP(listRec, listReq)

	if listRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", listRec.Code, listRec.Body.String())
	}
	var body struct {
		Products []domain.Product `json:"products"`
	}
	if err := json.NewDecoder(listRec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Products) != 0 {
		t.Fatalf("expected new account to have no products, got %d", len(body.Products))
	}
}

func TestHandleProducts_RequiresAuth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleProducts_WithValidToken(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAsDemo(t, api)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body struct {
		Products []domain.Product `json:"products"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Products) != 6 {
		t.Fatalf("expected 6 seeded products, got %d", len(body.Products))
	}
}

func TestHandleSales_RecordAndConflict(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAsDemo(t, api)
	csrf := fetchCSRFToken(t, api)

	// Find a variant with exactly one unit in stock.
	listReq := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	listReq.Header.Set("Authorization", "Bearer "+token)
	listRec := httptest.NewRecorder()
	handler.ServeHTTP(listRec, listReq)

	var listing struct {
		Products []domain.Product `json:"products"`
	}
	if err := json.NewDecoder(listRec.Body).Decode(&listing); err != nil {
		t.Fatalf("decode products: %v", err)
	}
	var productID, variantID string
	for _, p := range listing.Products {
		if p.Name == "Zara Blazer" {
			productID = p.ID
			variantID = p.Variants[0].ID
		}
	}
	if productID == "" || variantID == "" {
		t.Fatalf("seeded blazer not found in listing")
	}

	post := func(qty int) *httptest.ResponseRecorder {
		payload, _ := json.Marshal(domain.RecordSaleRequest{
			ProductID:  productID,
			VariantID:  variantID,
			Qty:        qty,
			PriceCents: 4800,
		})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/sales", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("X-CSRF-Token", csrf)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	if rec := post(1); rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 recording sale, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	// The variant only held one unit.
	if rec := post(1); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 when stock is gone, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleStatsOverview(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAsDemo(t, api)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats/overview", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body struct {
		Stats domain.Stats `json:"stats"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Stats.TotalEarnedCents != 23200 {
		t.Fatalf("expected earned 23200, got %d", body.Stats.TotalEarnedCents)
	}
}

func TestHandleStatsPeriod_InvalidType(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAsDemo(t, api)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats/period?type=quarter", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown period type, got %d", rec.Code)
	}
}

func TestHandleSettings_RoundTrip(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAsDemo(t, api)
	csrf := fetchCSRFToken(t, api)

	payload, _ := json.Marshal(domain.SettingsUpdateRequest{StartingBudgetCents: 75000})
	putReq := httptest.NewRequest(http.MethodPut, "/api/v1/settings", bytes.NewReader(payload))
	putReq.Header.Set("Content-Type", "application/json")
	putReq.Header.Set("Authorization", "Bearer "+token)
	putReq.Header.Set("X-CSRF-Token", csrf)
	putRec := httptest.NewRecorder()
	handler.ServeHTTP(putRec, putReq)

	if putRec.Code != http.StatusOK {
		t.Fatalf("expected 200 updating settings, got %d (body: %s)", putRec.Code, putRec.Body.String())
	}

	getReq := httptest.NewRequest(http.MethodGet, "/api/v1/settings", nil)
	getReq.Header.Set("Authorization", "Bearer "+token)
	getRec := httptest.NewRecorder()
	handler.ServeHTTP(getRec, getReq)

	var body struct {
		Settings domain.UserSettings `json:"settings"`
	}
	if err := json.NewDecoder(getRec.Body).Decode(&body); err != nil {
		t.Fatalf("decode settings: %v", err)
	}
	if body.Settings.StartingBudgetCents != 75000 {
		t.Fatalf("expected budget 75000, got %d", body.Settings.StartingBudgetCents)
	}
}

func TestHandleProductDelete_RequiresCSRF(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAsDemo(t, api)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/products/prd-anything", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without CSRF token, got %d", rec.Code)
	}
}
