package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"otsopos/backend/internal/auth"
	"otsopos/backend/internal/domain"
)

func TestMiddlewareSetsSecurityHeaders(t *testing.T) {
	api := newTestAPI(t)
	rec := doJSON(t, api, http.MethodGet, "/healthz", "", nil, nil)

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected X-Content-Type-Options nosniff, got %q", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("expected X-Frame-Options DENY, got %q", got)
	}
	if got := rec.Header().Get("Referrer-Policy"); got == "" {
		t.Fatalf("expected Referrer-Policy to be set")
	}
	if got := rec.Header().Get("X-Request-ID"); got == "" {
		t.Fatalf("expected X-Request-ID to be set")
	}
}

func TestLoginRateLimitReturns429(t *testing.T) {
	api := newTestAPI(t)
	body, _ := json.Marshal(domain.LoginRequest{Email: "admin@otsopos.local", Password: "wrong-pass"})

	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "127.0.0.1:5000"
		rec := httptest.NewRecorder()

		api.Handler().ServeHTTP(rec, req)

		if i < 5 && rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d expected 401 before limit, got %d", i+1, rec.Code)
		}
		if i == 5 && rec.Code != http.StatusTooManyRequests {
			t.Fatalf("attempt 6 expected 429, got %d", rec.Code)
		}
	}
}

func TestJSONBodyTooLargeRejected(t *testing.T) {
	api := newTestAPI(t)
	veryLong := strings.Repeat("a", (1<<20)+1024)
	body := fmt.Sprintf(`{"email":"%s","password":"x"}`, veryLong)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized body, got %d", rec.Code)
	}
}

func TestGatedRouteNeedsGrant(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)
	product := map[string]any{"name": "Mang Tomas 330g", "retailPrice": "48.00", "wholesalePrice": "40.00"}

	if rec := doJSON(t, api, http.MethodPost, "/api/v1/products", token, product, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without grant, got %d (%s)", rec.Code, rec.Body.String())
	}

	grant := requestGrant(t, api, token, auth.ActionCatalogManage)
	headers := map[string]string{headerGrant: grant}
	if rec := doJSON(t, api, http.MethodPost, "/api/v1/products", token, product, headers); rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 with grant, got %d (%s)", rec.Code, rec.Body.String())
	}
	// Grants are single use.
	if rec := doJSON(t, api, http.MethodPost, "/api/v1/products", token, product, headers); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 on reused grant, got %d", rec.Code)
	}
}

func TestGrantIsBoundToAction(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)
	grant := requestGrant(t, api, token, auth.ActionExpenseManage)

	rec := doJSON(t, api, http.MethodGet, "/api/v1/users", token, nil, map[string]string{headerGrant: grant})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for grant of another action, got %d", rec.Code)
	}
}

func TestWrongPINIsForbidden(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)
	rec := doJSON(t, api, http.MethodPost, "/api/v1/auth/grants", token, map[string]string{
		"action": auth.ActionUserManage, "pin": "000000",
	}, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestPINRateLimitReturns429(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	var last int
	for i := 0; i < 9; i++ {
		rec := doJSON(t, api, http.MethodPost, "/api/v1/auth/grants", token, map[string]string{
			"action": auth.ActionUserManage, "pin": "000000",
		}, nil)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after repeated PIN failures, got %d", last)
	}
}

func TestDecreaseToZeroNeedsVoidGrant(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/cart/lines", token, map[string]string{"productId": "prod-kopiko-3in1"}, nil)
	var added struct {
		Line struct {
			LineID string `json:"lineId"`
		} `json:"line"`
	}
	decode(t, rec, &added)
	path := "/api/v1/cart/lines/" + added.Line.LineID + "/decrease"

	if rec := doJSON(t, api, http.MethodPost, path, token, nil, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without void grant, got %d", rec.Code)
	}
	grant := requestGrant(t, api, token, auth.ActionCartVoid)
	if rec := doJSON(t, api, http.MethodPost, path, token, nil, map[string]string{headerGrant: grant}); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with grant, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestAttemptLimiterRefills(t *testing.T) {
	now := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	l := newAttemptLimiter(2, time.Minute)
	l.now = func() time.Time { return now }

	if !l.Allow("a") || !l.Allow("a") {
		t.Fatalf("expected first two attempts to pass")
	}
	if l.Allow("a") {
		t.Fatalf("expected third attempt to be throttled")
	}
	if !l.Allow("b") {
		t.Fatalf("expected other keys to be independent")
	}
	now = now.Add(31 * time.Second)
	if !l.Allow("a") {
		t.Fatalf("expected a token after half the window")
	}
}

func TestParsePositiveLimitCaps(t *testing.T) {
	cases := []struct {
		raw  string
		want int
	}{
		{"", 50},
		{"abc", 50},
		{"-3", 50},
		{"10", 10},
		{"5000", 200},
	}
	for _, tc := range cases {
		if got := parsePositiveLimit(tc.raw, 50, 200); got != tc.want {
			t.Fatalf("parsePositiveLimit(%q) = %d, want %d", tc.raw, got, tc.want)
		}
	}
}
