package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"otsopos/backend/internal/auth"
	"otsopos/backend/internal/cache"
	"otsopos/backend/internal/service"
	"otsopos/backend/internal/session"
	"otsopos/backend/internal/store/memory"
)

const testAdminPIN = "482913"

// newTestAPI builds the full stack on the seeded memory store so handler
// tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := memory.NewSeeded()
	svc := service.New(repo, service.Options{StoreName: "Test Store"})
	authMgr := auth.NewManager(auth.Config{
		Secret:   strings.Repeat("k", 32),
		TokenTTL: time.Hour,
		GrantTTL: time.Minute,
	}, repo, repo, cache.NewMemoryGrantStore(nil))
	return New(svc, authMgr, session.NewManager(nil), Options{AllowedOrigin: "*", ReceiptWidth: 32})
}

func doJSON(t *testing.T, api *API, method, path, token string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			t.Fatalf("marshal body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dest); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
}

func loginAsAdmin(t *testing.T, api *API) string {
	t.Helper()
	rec := doJSON(t, api, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "admin@otsopos.local", "password": "admin123",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var body struct {
		AccessToken string `json:"accessToken"`
	}
	decode(t, rec, &body)
	if body.AccessToken == "" {
		t.Fatalf("login returned no token")
	}
	return body.AccessToken
}

func requestGrant(t *testing.T, api *API, token, action string) string {
	t.Helper()
	rec := doJSON(t, api, http.MethodPost, "/api/v1/auth/grants", token, map[string]string{
		"action": action, "pin": testAdminPIN,
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("grant %s: expected 201, got %d (%s)", action, rec.Code, rec.Body.String())
	}
	var body struct {
		Grant struct {
			Token string `json:"token"`
		} `json:"grant"`
	}
	decode(t, rec, &body)
	return body.Grant.Token
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	rec := doJSON(t, api, http.MethodGet, "/healthz", "", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	decode(t, rec, &body)
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)
	if strings.Count(token, ".") != 2 {
		t.Fatalf("expected a JWT, got %q", token)
	}

	rec := doJSON(t, api, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "admin@otsopos.local", "password": "nope",
	}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad password, got %d", rec.Code)
	}
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	api := newTestAPI(t)
	if rec := doJSON(t, api, http.MethodGet, "/api/v1/products", "", nil, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	if rec := doJSON(t, api, http.MethodGet, "/api/v1/products", "not-a-token", nil, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with garbage token, got %d", rec.Code)
	}

	token := loginAsAdmin(t, api)
	rec := doJSON(t, api, http.MethodGet, "/api/v1/products", token, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var body struct {
		Products []map[string]any `json:"products"`
	}
	decode(t, rec, &body)
	if len(body.Products) == 0 {
		t.Fatalf("expected seeded products")
	}
}

func TestLogoutEndsSession(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	if rec := doJSON(t, api, http.MethodPost, "/api/v1/auth/logout", token, nil, nil); rec.Code != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", rec.Code)
	}
	if rec := doJSON(t, api, http.MethodGet, "/api/v1/cart", token, nil, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", rec.Code)
	}
}

func TestCartSettleFlow(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	if rec := doJSON(t, api, http.MethodPost, "/api/v1/shifts/start", token, map[string]any{"openingCash": "1000"}, nil); rec.Code != http.StatusCreated {
		t.Fatalf("start shift: expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}

	for i := 0; i < 2; i++ {
		rec := doJSON(t, api, http.MethodPost, "/api/v1/cart/lines", token, map[string]string{"productId": "prod-coke-330"}, nil)
		if rec.Code != http.StatusCreated {
			t.Fatalf("add line: expected 201, got %d (%s)", rec.Code, rec.Body.String())
		}
	}

	var cartBody struct {
		Cart struct {
			GrandTotal string `json:"grandTotal"`
			Lines      []struct {
				Quantity int `json:"quantity"`
			} `json:"lines"`
		} `json:"cart"`
	}
	decode(t, doJSON(t, api, http.MethodGet, "/api/v1/cart", token, nil, nil), &cartBody)
	if len(cartBody.Cart.Lines) != 1 || cartBody.Cart.Lines[0].Quantity != 2 {
		t.Fatalf("expected one line of qty 2, got %+v", cartBody.Cart.Lines)
	}
	if cartBody.Cart.GrandTotal != "50" {
		t.Fatalf("expected grand total 50, got %s", cartBody.Cart.GrandTotal)
	}

	settle := map[string]any{"tender": map[string]any{"kind": "cash", "cashReceived": "100"}}
	rec := doJSON(t, api, http.MethodPost, "/api/v1/cart/settle", token, settle, map[string]string{"Idempotency-Key": "till-1-0001"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("settle: expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	var sale struct {
		Sale struct {
			ID                string `json:"id"`
			TransactionNumber string `json:"transactionNumber"`
		} `json:"sale"`
		Breakdown struct {
			Change string `json:"change"`
		} `json:"breakdown"`
		LedgerUpdated bool   `json:"ledgerUpdated"`
		Receipt       string `json:"receipt"`
	}
	decode(t, rec, &sale)
	if sale.Breakdown.Change != "50" || !sale.LedgerUpdated {
		t.Fatalf("unexpected settlement: %+v", sale)
	}
	if !strings.Contains(sale.Receipt, sale.Sale.TransactionNumber) {
		t.Fatalf("receipt missing transaction number:\n%s", sale.Receipt)
	}

	// Same key again replays without a second sale and leaves the next
	// customer's cart alone.
	if rec := doJSON(t, api, http.MethodPost, "/api/v1/cart/lines", token, map[string]string{"productId": "prod-kopiko-3in1"}, nil); rec.Code != http.StatusCreated {
		t.Fatalf("add line: expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, api, http.MethodPost, "/api/v1/cart/settle", token, settle, map[string]string{"Idempotency-Key": "till-1-0001"})
	if rec.Code != http.StatusOK {
		t.Fatalf("replay: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var replay map[string]any
	decode(t, rec, &replay)
	if replay["duplicate"] != true {
		t.Fatalf("expected duplicate:true, got %v", replay)
	}
	if _, ok := replay["ledgerUpdated"]; ok {
		t.Fatalf("replay must not report ledgerUpdated, got %v", replay)
	}
	decode(t, doJSON(t, api, http.MethodGet, "/api/v1/cart", token, nil, nil), &cartBody)
	if len(cartBody.Cart.Lines) != 1 || cartBody.Cart.GrandTotal != "12" {
		t.Fatalf("expected pending kopiko line after replay, got %+v", cartBody.Cart)
	}

	var shift struct {
		Shift struct {
			ExpectedCash string `json:"expectedCash"`
		} `json:"shift"`
	}
	decode(t, doJSON(t, api, http.MethodGet, "/api/v1/shifts/current", token, nil, nil), &shift)
	if shift.Shift.ExpectedCash != "1050" {
		t.Fatalf("expected drawer 1050, got %s", shift.Shift.ExpectedCash)
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/transactions/"+sale.Sale.ID+"/receipt?format=html", token, nil, nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Header().Get("Content-Type"), "text/html") {
		t.Fatalf("html receipt: got %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	rec = doJSON(t, api, http.MethodGet, "/api/v1/transactions?format=csv", token, nil, nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), sale.Sale.TransactionNumber) {
		t.Fatalf("csv export: got %d %q", rec.Code, rec.Body.String())
	}
}

func TestSettleEmptyCartIsBadRequest(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)
	rec := doJSON(t, api, http.MethodPost, "/api/v1/cart/settle", token, map[string]any{
		"tender": map[string]any{"kind": "Cash", "cashReceived": "10"},
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestOutOfStockIsConflict(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)
	rec := doJSON(t, api, http.MethodPost, "/api/v1/cart/lines", token, map[string]string{"productId": "prod-zonrox"}, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestEndShiftWithoutOpenShift(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)
	grant := requestGrant(t, api, token, auth.ActionShiftClose)
	rec := doJSON(t, api, http.MethodPost, "/api/v1/shifts/end", token, map[string]any{"closingCash": "0"}, map[string]string{headerGrant: grant})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestResumeIntoBusyCartIsConflict(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	doJSON(t, api, http.MethodPost, "/api/v1/cart/lines", token, map[string]string{"productId": "prod-coke-330"}, nil)
	grant := requestGrant(t, api, token, auth.ActionSaleSuspend)
	rec := doJSON(t, api, http.MethodPost, "/api/v1/cart/suspend", token, nil, map[string]string{headerGrant: grant})
	if rec.Code != http.StatusCreated {
		t.Fatalf("suspend: expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	var parked struct {
		Suspended struct {
			ID string `json:"id"`
		} `json:"suspended"`
	}
	decode(t, rec, &parked)
	path := "/api/v1/suspended/" + parked.Suspended.ID + "/resume"

	doJSON(t, api, http.MethodPost, "/api/v1/cart/lines", token, map[string]string{"productId": "prod-kopiko-3in1"}, nil)
	if rec := doJSON(t, api, http.MethodPost, path, token, nil, nil); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 while cart is busy, got %d (%s)", rec.Code, rec.Body.String())
	}

	var list struct {
		Suspended []map[string]any `json:"suspended"`
	}
	decode(t, doJSON(t, api, http.MethodGet, "/api/v1/suspended", token, nil, nil), &list)
	if len(list.Suspended) != 1 {
		t.Fatalf("refused resume must keep the parked sale, got %d", len(list.Suspended))
	}

	void := requestGrant(t, api, token, auth.ActionCartVoid)
	if rec := doJSON(t, api, http.MethodDelete, "/api/v1/cart", token, nil, map[string]string{headerGrant: void}); rec.Code != http.StatusOK {
		t.Fatalf("clear: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, api, http.MethodPost, path, token, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("resume: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var body struct {
		Cart struct {
			GrandTotal string `json:"grandTotal"`
		} `json:"cart"`
	}
	decode(t, rec, &body)
	if body.Cart.GrandTotal != "25" {
		t.Fatalf("expected resumed total 25, got %s", body.Cart.GrandTotal)
	}
}
