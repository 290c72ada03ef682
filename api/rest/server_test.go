package rest

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"freyr/service"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	svc, err := service.New(service.Config{
		WALDir:      t.TempDir(),
		SnapshotDir: t.TempDir(),
		Admin:       "admin",
	}, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return NewServer(svc, zap.NewNop())
}

func doJSON(t *testing.T, srv *Server, method, path, account string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if account != "" {
		req.Header.Set("X-Account", account)
	}
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)

	out := map[string]any{}
	if rr.Body.Len() > 0 {
		if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
			t.Fatalf("%s %s: bad response body %q", method, path, rr.Body.String())
		}
	}
	return rr, out
}

func TestDepositAndBalance(t *testing.T) {
	srv := newTestServer(t)

	rr, body := doJSON(t, srv, http.MethodPost, "/v1/deposits", "alice",
		map[string]string{"token": "TK1", "amount": "100"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %v", rr.Code, body)
	}
	if body["balance"] != "100" {
		t.Fatalf("balance = %v, want 100", body["balance"])
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatal("missing X-Request-ID header")
	}

	rr, body = doJSON(t, srv, http.MethodGet, "/v1/balances/TK1", "alice", nil)
	if rr.Code != http.StatusOK || body["balance"] != "100" {
		t.Fatalf("status = %d, body %v", rr.Code, body)
	}
}

func TestAnonymousWriteRejected(t *testing.T) {
	srv := newTestServer(t)

	rr, _ := doJSON(t, srv, http.MethodPost, "/v1/deposits", "",
		map[string]string{"token": "TK1", "amount": "1"})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}

func TestOfferLifecycle(t *testing.T) {
	srv := newTestServer(t)

	doJSON(t, srv, http.MethodPost, "/v1/deposits", "alice",
		map[string]string{"token": "TK1", "amount": "100"})
	doJSON(t, srv, http.MethodPut, "/v1/admin/trading", "admin",
		map[string]bool{"enabled": true})

	rr, body := doJSON(t, srv, http.MethodPost, "/v1/offers", "alice", map[string]any{
		"sell_amount": "30", "sell_token": "TK1",
		"buy_amount": "10", "buy_token": "TK2",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("make offer status = %d, body %v", rr.Code, body)
	}
	id := body["order_id"].(float64)
	if id != 1 {
		t.Fatalf("order_id = %v, want 1", id)
	}

	rr, body = doJSON(t, srv, http.MethodGet, "/v1/offers/1", "alice", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("details status = %d", rr.Code)
	}
	order := body["order"].(map[string]any)
	if order["sell_amount"] != "30" || order["owner"] != "alice" {
		t.Fatalf("order = %v", order)
	}

	rr, body = doJSON(t, srv, http.MethodGet, "/v1/books/TK1/TK2", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("book status = %d", rr.Code)
	}
	if body["first"].(float64) != 1 {
		t.Fatalf("book first = %v", body["first"])
	}
	if len(body["depth"].([]any)) != 1 {
		t.Fatalf("depth = %v", body["depth"])
	}

	// Bob funds and takes half of the offer's demand.
	doJSON(t, srv, http.MethodPost, "/v1/deposits", "bob",
		map[string]string{"token": "TK2", "amount": "10"})
	rr, body = doJSON(t, srv, http.MethodPost, "/v1/offers/1/take", "bob",
		map[string]string{"amount": "5"})
	if rr.Code != http.StatusOK {
		t.Fatalf("take status = %d, body %v", rr.Code, body)
	}
	order = body["order"].(map[string]any)
	if order["sell_amount"] != "15" || order["buy_amount"] != "5" {
		t.Fatalf("order after take = %v", order)
	}

	// Cancel by a stranger is forbidden; by the owner it works.
	rr, _ = doJSON(t, srv, http.MethodDelete, "/v1/offers/1", "bob", nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("foreign cancel status = %d, want 403", rr.Code)
	}
	rr, _ = doJSON(t, srv, http.MethodDelete, "/v1/offers/1", "alice", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("cancel status = %d", rr.Code)
	}

	rr, body = doJSON(t, srv, http.MethodGet, "/v1/balances/TK1", "alice", nil)
	if body["balance"] != "85" {
		t.Fatalf("alice TK1 = %v, want 85 (70 free + 15 refunded)", body["balance"])
	}
}

func TestErrorMapping(t *testing.T) {
	srv := newTestServer(t)

	// Unknown order id.
	rr, _ := doJSON(t, srv, http.MethodDelete, "/v1/offers/99", "alice", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown order status = %d, want 404", rr.Code)
	}

	// Overdrawn withdrawal.
	rr, _ = doJSON(t, srv, http.MethodPost, "/v1/withdrawals", "alice",
		map[string]string{"token": "TK1", "amount": "5"})
	if rr.Code != http.StatusConflict {
		t.Fatalf("overdraw status = %d, want 409", rr.Code)
	}

	// Gate toggled by a non-admin.
	rr, _ = doJSON(t, srv, http.MethodPut, "/v1/admin/trading", "mallory",
		map[string]bool{"enabled": true})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("non-admin gate status = %d, want 403", rr.Code)
	}

	// Malformed amount.
	rr, _ = doJSON(t, srv, http.MethodPost, "/v1/deposits", "alice",
		map[string]string{"token": "TK1", "amount": "not-a-number"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad amount status = %d, want 400", rr.Code)
	}

	// Offer while trading disabled still rests, so MakeOffer is fine;
	// a directed take while disabled is the conflict case.
	doJSON(t, srv, http.MethodPost, "/v1/deposits", "alice",
		map[string]string{"token": "TK1", "amount": "10"})
	doJSON(t, srv, http.MethodPost, "/v1/offers", "alice", map[string]any{
		"sell_amount": "10", "sell_token": "TK1",
		"buy_amount": "10", "buy_token": "TK2",
	})
	rr, _ = doJSON(t, srv, http.MethodPost, "/v1/offers/1/take", "bob",
		map[string]string{"amount": "1"})
	if rr.Code != http.StatusConflict {
		t.Fatalf("gated take status = %d, want 409", rr.Code)
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	rr, body := doJSON(t, srv, http.MethodGet, "/v1/healthz", "", nil)
	if rr.Code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("health = %d %v", rr.Code, body)
	}
}
