package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tokopos/backend/internal/domain"
	"tokopos/backend/internal/metrics"
	"tokopos/backend/internal/payment"
	"tokopos/backend/internal/service"
	"tokopos/backend/internal/store/memory"
)

const testSecret = "test-secret-key-with-at-least-32-chars"

type stubGateway struct{}

func (stubGateway) CreateSession(_ context.Context, req payment.SessionRequest) (payment.SessionResult, error) {
	return payment.SessionResult{Token: "tok", QRString: "000201" + req.GatewayOrderID}, nil
}

type testEnv struct {
	handler http.Handler
	repo    *memory.Store
	api     *API
}

// newTestEnv builds the full API over the seeded in-memory store so handler
// tests exercise the complete request path.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	repo := memory.NewSeeded()
	m := metrics.New()
	svc := service.New(repo, nil, nil, m)
	adapter := payment.NewAdapter(svc, stubGateway{}, nil, nil, payment.Config{}, nil, m)
	auth, err := NewAuthManager(context.Background(), testSecret, time.Hour, "482913", repo, nil)
	if err != nil {
		t.Fatalf("auth manager: %v", err)
	}

	api := New(svc, adapter, auth, Options{AllowedOrigin: "*", Metrics: m})
	return &testEnv{handler: api.Handler(), repo: repo, api: api}
}

func (e *testEnv) token(t *testing.T, username string, role domain.Role) string {
	t.Helper()
	token, err := e.api.auth.sign(username, credential{role: role, displayName: username}, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(v)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

func (e *testEnv) stock(t *testing.T, id string) int {
	t.Helper()
	p, err := e.repo.GetProduct(context.Background(), id)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	return p.Stock
}

func TestHandleHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody[map[string]any](t, rec)
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" || rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("missing security headers: %v", rec.Header())
	}
}

func TestHandleLogin(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "manager", "password": "manager123"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	resp := decodeBody[domain.LoginResponse](t, rec)
	if resp.AccessToken == "" || resp.Role != domain.RoleManager {
		t.Fatalf("unexpected login response %+v", resp)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/payments/orders", resp.AccessToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected manager token to work, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "manager", "password": "nope"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireAuthRejectsMissingAndForeignRole(t *testing.T) {
	env := newTestEnv(t)

	if rec := env.do(t, http.MethodGet, "/api/v1/products", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/v1/products", "garbage", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", rec.Code)
	}
	cashier := env.token(t, "cashier", domain.RoleCashier)
	if rec := env.do(t, http.MethodGet, "/api/v1/audit-logs", cashier, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	admin := env.token(t, "admin", domain.RoleAdmin)
	if rec := env.do(t, http.MethodPost, "/api/v1/orders", admin, map[string]any{}); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for admin creating orders, got %d", rec.Code)
	}
}

func TestCashOrderFlow(t *testing.T) {
	env := newTestEnv(t)
	cashier := env.token(t, "cashier", domain.RoleCashier)

	rec := env.do(t, http.MethodPost, "/api/v1/orders", cashier, map[string]any{
		"payment_method": "CASH",
		"items":          []map[string]any{{"product_id": "prd-kopi-susu", "quantity": 3}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	order := decodeBody[domain.Order](t, rec)
	if order.PaymentStatus != domain.StatusPaid || order.Total != 54000 {
		t.Fatalf("unexpected order %+v", order)
	}
	if got := env.stock(t, "prd-kopi-susu"); got != 47 {
		t.Fatalf("expected stock 47, got %d", got)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/orders/"+order.ID+"/confirm-cash", cashier, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for confirming a paid order, got %d", rec.Code)
	}
}

func TestInsufficientStockReturnsDetail(t *testing.T) {
	env := newTestEnv(t)
	cashier := env.token(t, "cashier", domain.RoleCashier)

	rec := env.do(t, http.MethodPost, "/api/v1/orders", cashier, map[string]any{
		"payment_method": "GATEWAY",
		"items":          []map[string]any{{"product_id": "prd-mie-goreng", "quantity": 26}},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	body := decodeBody[map[string]any](t, rec)
	if body["product_name"] != "Mie Goreng" || body["available"] != float64(25) || body["requested"] != float64(26) {
		t.Fatalf("unexpected shortfall body %v", body)
	}
	if got := env.stock(t, "prd-mie-goreng"); got != 25 {
		t.Fatalf("expected stock 25, got %d", got)
	}
}

func TestCreateOrderRejectsUnknownFields(t *testing.T) {
	env := newTestEnv(t)
	cashier := env.token(t, "cashier", domain.RoleCashier)

	rec := env.do(t, http.MethodPost, "/api/v1/orders", cashier, []byte(`{"payment_method":"CASH","items":[],"discount":10}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGatewayWebhookFlow(t *testing.T) {
	env := newTestEnv(t)
	cashier := env.token(t, "cashier", domain.RoleCashier)

	rec := env.do(t, http.MethodPost, "/api/v1/orders", cashier, map[string]any{
		"payment_method": "QRIS",
		"items":          []map[string]any{{"product_id": "prd-roti-bakar", "quantity": 2}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create order: %d %s", rec.Code, rec.Body.String())
	}
	order := decodeBody[domain.Order](t, rec)
	if order.PaymentStatus != domain.StatusPending || env.stock(t, "prd-roti-bakar") != 30 {
		t.Fatalf("expected PENDING with untouched stock")
	}

	rec = env.do(t, http.MethodPost, "/api/v1/payments/sessions/"+order.ID, cashier, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create session: %d %s", rec.Code, rec.Body.String())
	}
	session := decodeBody[domain.PaymentSession](t, rec)
	if !strings.HasPrefix(session.GatewayOrderID, "POS-"+order.ID+"-") {
		t.Fatalf("unexpected gateway order id %q", session.GatewayOrderID)
	}

	notification := []byte(fmt.Sprintf(`{"order_id":%q,"transaction_status":"settlement","status_code":"200","gross_amount":"30000.00"}`, session.GatewayOrderID))
	for i := 0; i < 2; i++ {
		rec = env.do(t, http.MethodPost, "/api/v1/payments/notifications", "", notification)
		if rec.Code != http.StatusOK {
			t.Fatalf("webhook #%d: expected 200, got %d", i+1, rec.Code)
		}
		if got := env.stock(t, "prd-roti-bakar"); got != 28 {
			t.Fatalf("webhook #%d: expected stock 28, got %d", i+1, got)
		}
	}

	rec = env.do(t, http.MethodGet, "/api/v1/payments/status/"+session.GatewayOrderID, cashier, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	snap := decodeBody[domain.StatusSnapshot](t, rec)
	if snap.PaymentStatus != domain.StatusPaid || snap.ReferenceNumber != order.ReferenceCode {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestWebhookAlwaysAcknowledges(t *testing.T) {
	env := newTestEnv(t)
	for _, body := range [][]byte{[]byte(`not json`), []byte(`{"order_id":"POS-unknown","transaction_status":"settlement"}`)} {
		rec := env.do(t, http.MethodPost, "/api/v1/payments/notifications", "", body)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 for %s, got %d", body, rec.Code)
		}
		if resp := decodeBody[map[string]any](t, rec); resp["received"] != true {
			t.Fatalf("expected received:true, got %v", resp)
		}
	}
}

func TestPaymentSessionForCashOrderIsRejected(t *testing.T) {
	env := newTestEnv(t)
	cashier := env.token(t, "cashier", domain.RoleCashier)

	rec := env.do(t, http.MethodPost, "/api/v1/orders", cashier, map[string]any{
		"payment_method": "CASH",
		"items":          []map[string]any{{"product_id": "prd-teh-manis", "quantity": 1}},
	})
	order := decodeBody[domain.Order](t, rec)

	rec = env.do(t, http.MethodPost, "/api/v1/payments/sessions/"+order.ID, cashier, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestManualFailRequiresManagerPIN(t *testing.T) {
	env := newTestEnv(t)
	cashier := env.token(t, "cashier", domain.RoleCashier)

	rec := env.do(t, http.MethodPost, "/api/v1/orders", cashier, map[string]any{
		"payment_method": "CASH",
		"items":          []map[string]any{{"product_id": "prd-air-mineral", "quantity": 4}},
	})
	order := decodeBody[domain.Order](t, rec)
	path := "/api/v1/orders/" + order.ID + "/payment-status"

	if rec := env.do(t, http.MethodPut, path, cashier, map[string]any{"status": "FAILED"}); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without pin, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPut, path, cashier, map[string]any{"status": "FAILED", "manager_pin": "000000"}); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 with wrong pin, got %d", rec.Code)
	}
	if got := env.stock(t, "prd-air-mineral"); got != 116 {
		t.Fatalf("expected stock 116, got %d", got)
	}

	rec = env.do(t, http.MethodPut, path, cashier, map[string]any{"status": "FAILED", "manager_pin": "482913"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	if got := env.stock(t, "prd-air-mineral"); got != 120 {
		t.Fatalf("expected restored stock 120, got %d", got)
	}

	if rec := env.do(t, http.MethodPut, path, cashier, map[string]any{"status": "PAID"}); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 leaving FAILED, got %d", rec.Code)
	}
}

func TestProductAndLedgerEndpoints(t *testing.T) {
	env := newTestEnv(t)
	manager := env.token(t, "manager", domain.RoleManager)
	cashier := env.token(t, "cashier", domain.RoleCashier)

	rec := env.do(t, http.MethodPost, "/api/v1/products", manager, map[string]any{"name": "Pisang Goreng", "price": 12000, "initial_stock": 0})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create product: %d %s", rec.Code, rec.Body.String())
	}
	product := decodeBody[domain.Product](t, rec)

	if rec := env.do(t, http.MethodPost, "/api/v1/products", cashier, map[string]any{"name": "X", "price": 1}); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/api/v1/products", manager, map[string]any{"name": "", "price": 0}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid product, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/api/v1/products/"+product.ID+"/stock-adjustments", manager, map[string]any{"delta": -1}); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for negative stock, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/ledger/stock-purchases", manager, map[string]any{
		"product_id":    product.ID,
		"quantity":      20,
		"total_amount":  150000,
		"supplier_name": "Pasar Induk",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("stock purchase: %d %s", rec.Code, rec.Body.String())
	}
	if got := env.stock(t, product.ID); got != 20 {
		t.Fatalf("expected restocked 20, got %d", got)
	}

	if rec := env.do(t, http.MethodPost, "/api/v1/ledger/expenses", cashier, map[string]any{"description": "Gas LPG", "amount": 25000}); rec.Code != http.StatusCreated {
		t.Fatalf("expense: %d %s", rec.Code, rec.Body.String())
	}
	if rec := env.do(t, http.MethodPost, "/api/v1/ledger/expenses", cashier, map[string]any{"type": "INCOME", "description": "x", "amount": 1}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for income entry, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/v1/ledger", cashier, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 listing ledger as cashier, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/ledger/summary", cashier, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("summary: %d", rec.Code)
	}
	summary := decodeBody[domain.FinancialSummary](t, rec)
	if summary.TotalExpense != 175000 || summary.StockPurchaseExpense != 150000 || summary.ManualExpense != 25000 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/healthz", "", nil)

	rec := env.do(t, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "tokopos_http_requests_total") {
		t.Fatalf("expected http request metrics in output")
	}
}
