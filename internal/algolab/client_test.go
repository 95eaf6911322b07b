package algolab

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/erdoganonur/bist-trading-platform-sub007/internal/domain"
	"github.com/erdoganonur/bist-trading-platform-sub007/internal/infra"
)

func testConfig(baseURL string) *infra.Config {
	cfg := &infra.Config{}
	cfg.AlgoLab.BaseURL = baseURL
	cfg.AlgoLab.Username = "user"
	cfg.AlgoLab.Password = "pass"
	cfg.AlgoLab.RequestTimeoutSec = 2
	cfg.AlgoLab.OrderIntervalMS = 1
	return cfg
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	signer, err := NewSigner(testAPIKey, "https://www.algolab.com.tr")
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	return NewClient(testConfig(baseURL), signer)
}

func jsonResponse(w http.ResponseWriter, success bool, message string, content any) {
	raw, _ := json.Marshal(content)
	json.NewEncoder(w).Encode(envelope{Success: success, Message: message, Content: raw})
}

func TestSendOrder_Success(t *testing.T) {
	var gotHeaders http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != endpointSendOrder {
			t.Errorf("path = %s", r.URL.Path)
		}
		gotHeaders = r.Header.Clone()
		jsonResponse(w, true, "", orderContent{ID: "EXT-1"})
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)

	id, err := c.SendOrder(context.Background(), "session-hash", sendOrderRequest{
		Symbol: "GARAN", Direction: "BUY", PriceType: "limit", Price: "45.5", Lot: "10",
	})
	if err != nil {
		t.Fatalf("SendOrder: %v", err)
	}
	if id != "EXT-1" {
		t.Errorf("id = %q, want EXT-1", id)
	}

	if gotHeaders.Get("APIKEY") != testAPIKey {
		t.Error("APIKEY header missing")
	}
	if gotHeaders.Get("Authorization") != "session-hash" {
		t.Error("Authorization header missing")
	}
	if len(gotHeaders.Get("Checker")) != 64 {
		t.Error("Checker header missing or malformed")
	}
}

func TestSendOrder_BusinessRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, false, "insufficient balance", nil)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)

	_, err := c.SendOrder(context.Background(), "hash", sendOrderRequest{Symbol: "GARAN"})
	if !domain.IsRejection(err) {
		t.Fatalf("want RejectionError, got %v", err)
	}
	if domain.IsTransient(err) {
		t.Error("a business rejection must never be retryable")
	}
}

func TestPost_UnauthorizedMapsToSessionInvalid(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)

	_, err := c.SendOrder(context.Background(), "stale", sendOrderRequest{Symbol: "GARAN"})
	if !errors.Is(err, domain.ErrSessionInvalid) {
		t.Fatalf("want ErrSessionInvalid, got %v", err)
	}
	if !domain.IsTransient(err) {
		t.Error("session invalid must be retryable after re-auth")
	}
}

func TestPost_ServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)

	err := c.SessionRefresh(context.Background(), "hash")
	if !domain.IsTransient(err) {
		t.Fatalf("want a transient error, got %v", err)
	}
}

func TestPost_ConnectionErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse connections

	c := newTestClient(t, server.URL)

	err := c.SessionRefresh(context.Background(), "hash")
	if !domain.IsTransient(err) {
		t.Fatalf("want a transient error, got %v", err)
	}
}

func TestLoginFlow(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case endpointLogin:
			var req loginRequest
			json.NewDecoder(r.Body).Decode(&req)
			if req.Username == "" || req.Password == "" {
				t.Error("credentials must be present and encrypted")
			}
			if req.Username == "user" {
				t.Error("username must not travel in plaintext")
			}
			jsonResponse(w, true, "", loginContent{Token: "tok-1"})
		case endpointLoginControl:
			jsonResponse(w, true, "", controlContent{Hash: "hash-1"})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	ctx := context.Background()

	token, err := c.LoginUser(ctx)
	if err != nil {
		t.Fatalf("LoginUser: %v", err)
	}
	if token != "tok-1" {
		t.Errorf("token = %q", token)
	}

	hash, err := c.LoginUserControl(ctx, token, "123456")
	if err != nil {
		t.Fatalf("LoginUserControl: %v", err)
	}
	if hash != "hash-1" {
		t.Errorf("hash = %q", hash)
	}
}

func TestLoginUser_BadCredentialsFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, false, "invalid credentials", nil)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)

	_, err := c.LoginUser(context.Background())
	if !domain.IsFatalAuth(err) {
		t.Fatalf("want a fatal auth error, got %v", err)
	}
	if domain.IsTransient(err) {
		t.Error("bad credentials must never be retried")
	}
}

func TestSessionRefresh_GoneSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, false, "session not found", nil)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)

	err := c.SessionRefresh(context.Background(), "stale")
	if !errors.Is(err, domain.ErrSessionInvalid) {
		t.Fatalf("want ErrSessionInvalid, got %v", err)
	}
}
