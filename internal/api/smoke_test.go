// Package api_test runs HTTP-level smoke tests using net/http/httptest.
// These tests do NOT require a PostgreSQL database — they verify:
//   - Gin router routing and middleware wiring
//   - Request validation error responses (400)
//   - JWT auth middleware (401 without token, 401 with bad token)
//   - The shared-secret gate on the lifecycle run trigger
//   - Response format consistency (success/error envelope)
//   - CORS preflight handling
package api_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/saleyard/auctions/internal/api"
	"github.com/saleyard/auctions/internal/config"
	"github.com/saleyard/auctions/internal/domain"
	"github.com/saleyard/auctions/internal/service"
)

// ── Test helpers ──────────────────────────────────────────────────────────────

func testCfg() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Env:  "development",
			Port: "8080",
		},
		JWT: config.JWTConfig{
			AccessSecret: "test-access-secret-abcdefghijklmnop",
		},
		Auction: config.AuctionConfig{
			Timezone:      "Europe/London",
			OpenWeekday:   1,
			OpenHour:      1,
			CloseWeekday:  0,
			CloseHour:     23,
			MaxBidRetries: 3,
			BatchSize:     100,
			MaxBatches:    50,
		},
		Scheduler: config.SchedulerConfig{
			RunSecret: "test-run-secret",
		},
	}
}

// buildTestRouter creates a Gin engine with a real LifecycleService (the
// window read needs no DB) and nil for everything that does.
func buildTestRouter(t *testing.T) http.Handler {
	t.Helper()
	cfg := testCfg()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	lifecycleSvc := service.NewLifecycleService(nil, nil, nil, domain.SystemClock, cfg, logger)

	return api.SetupRouter(api.RouterDeps{
		BidSvc:       nil,
		LifecycleSvc: lifecycleSvc,
		ListingRepo:  nil,
		BidRepo:      nil,
		Clock:        domain.SystemClock,
		Hub:          nil,
		Cfg:          cfg,
	})
}

func do(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf *bytes.Buffer
	if body != "" {
		buf = bytes.NewBufferString(body)
	} else {
		buf = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&m); err != nil {
		t.Fatalf("response is not valid JSON: %v — body: %s", err, rr.Body.String())
	}
	return m
}

// ── /health ───────────────────────────────────────────────────────────────────

func TestHealthEndpoint(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodGet, "/health", "", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("GET /health = %d, want 200", rr.Code)
	}
}

// ── Auction window (public) ───────────────────────────────────────────────────

func TestAuctionWindow_IsPublic(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodGet, "/api/auctions/window", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("GET /api/auctions/window = %d, want 200", rr.Code)
	}
	body := decodeBody(t, rr)
	data, ok := body["data"].(map[string]interface{})
	if !ok {
		t.Fatalf("window response missing data object: %v", body)
	}
	for _, field := range []string{"current_start", "current_end", "next_start", "next_end"} {
		if data[field] == nil {
			t.Errorf("window data missing %q: %v", field, data)
		}
	}
}

// ── JWT auth middleware (no token → 401) ──────────────────────────────────────

func TestPlaceBid_NoToken_Returns401(t *testing.T) {
	h := buildTestRouter(t)
	payload := `{"amount":"150"}`
	rr := do(t, h, http.MethodPost, "/api/listings/11111111-1111-1111-1111-111111111111/bids", payload, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("POST bid without token = %d, want 401", rr.Code)
	}
}

func TestCreateListing_NoToken_Returns401(t *testing.T) {
	h := buildTestRouter(t)
	payload := `{"title":"Stock trailer","starting_price":"100"}`
	rr := do(t, h, http.MethodPost, "/api/listings", payload, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("POST /api/listings without token = %d, want 401", rr.Code)
	}
}

func TestMyBids_NoToken_Returns401(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodGet, "/api/bids/my", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("GET /api/bids/my without token = %d, want 401", rr.Code)
	}
}

func TestAdminApprove_NoToken_Returns401(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodPost, "/api/admin/listings/11111111-1111-1111-1111-111111111111/approve", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("admin approve without token = %d, want 401", rr.Code)
	}
}

// ── JWT auth middleware (invalid token → 401) ─────────────────────────────────

func TestPlaceBid_InvalidToken_Returns401(t *testing.T) {
	h := buildTestRouter(t)
	// A well-formed JWT header+payload but wrong signature.
	fakeJWT := "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9" +
		".eyJzdWIiOiIxMjM0NTY3ODkwIiwicm9sZSI6InVzZXIifQ" +
		".BADSIG"
	rr := do(t, h, http.MethodPost, "/api/listings/11111111-1111-1111-1111-111111111111/bids",
		`{"amount":"150"}`, map[string]string{"Authorization": "Bearer " + fakeJWT})
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("POST bid with invalid JWT = %d, want 401", rr.Code)
	}
}

// ── Lifecycle run trigger — shared secret gate ────────────────────────────────

func TestRunTrigger_NoSecret_Returns401(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodPost, "/internal/auctions/run", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("POST /internal/auctions/run without secret = %d, want 401", rr.Code)
	}
}

func TestRunTrigger_WrongSecret_Returns401(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodPost, "/internal/auctions/run", "", map[string]string{
		"X-Run-Secret": "wrong",
	})
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("POST /internal/auctions/run with wrong secret = %d, want 401", rr.Code)
	}
}

// ── Public listing reads ──────────────────────────────────────────────────────

func TestGetListing_IsPublic(t *testing.T) {
	h := buildTestRouter(t)
	// No token: should NOT be 401. Bad uuid short-circuits before the nil repo.
	rr := do(t, h, http.MethodGet, "/api/listings/not-a-uuid", "", nil)
	if rr.Code == http.StatusUnauthorized {
		t.Error("GET /api/listings/:id should be a public endpoint (no 401)")
	}
	if rr.Code != http.StatusBadRequest {
		t.Errorf("GET /api/listings/not-a-uuid = %d, want 400", rr.Code)
	}
}

func TestListBids_IsPublic(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodGet, "/api/listings/not-a-uuid/bids", "", nil)
	if rr.Code == http.StatusUnauthorized {
		t.Error("GET /api/listings/:id/bids should be public (no 401)")
	}
}

// ── Error envelope format ─────────────────────────────────────────────────────

func TestErrorEnvelope_HasRequiredFields(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodGet, "/api/listings/not-a-uuid", "", nil)
	body := decodeBody(t, rr)

	for _, field := range []string{"success", "error", "code"} {
		if _, ok := body[field]; !ok {
			t.Errorf("error envelope missing field %q, got: %v", field, body)
		}
	}
	if body["success"] != false {
		t.Errorf("error envelope.success = %v, want false", body["success"])
	}
}

// ── CORS headers ──────────────────────────────────────────────────────────────

func TestCORSOptionsRequest(t *testing.T) {
	h := buildTestRouter(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/listings", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent && rr.Code != http.StatusOK {
		t.Errorf("OPTIONS /api/listings = %d, want 204 or 200", rr.Code)
	}
	allow := rr.Header().Get("Access-Control-Allow-Methods")
	if !strings.Contains(allow, "POST") {
		t.Errorf("Access-Control-Allow-Methods missing POST, got %q", allow)
	}
}

func TestCORSAllowOrigin_Dev(t *testing.T) {
	h := buildTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	// In dev mode, CORS origin should be wildcard
	origin := rr.Header().Get("Access-Control-Allow-Origin")
	if origin != "*" {
		t.Errorf("Dev CORS origin = %q, want *", origin)
	}
}
