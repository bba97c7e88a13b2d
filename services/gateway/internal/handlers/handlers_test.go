package handlers

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/opskap1/temnos/pkg/auth"
	"github.com/opskap1/temnos/pkg/config"
	"github.com/opskap1/temnos/services/gateway/internal/proxy"
)

const testSecret = "test-secret"

func testConfig() *config.Config {
	return &config.Config{
		Auth: config.AuthConfig{JWTSecret: testSecret},
	}
}

type recordedRequest struct {
	method string
	path   string
	query  string
	body   string
	header http.Header
}

func newBackend(t *testing.T, status int, response string) (*httptest.Server, *recordedRequest) {
	t.Helper()

	rec := &recordedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rec.method = r.Method
		rec.path = r.URL.Path
		rec.query = r.URL.RawQuery
		rec.body = string(body)
		rec.header = r.Header.Clone()

		w.WriteHeader(status)
		w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func newHandlers(backendURL string) *Handlers {
	p := proxy.NewServiceProxy(backendURL)
	return New(p, p, p, p, testConfig())
}

func TestProxyAuthStripsPrefix(t *testing.T) {
	backend, rec := newBackend(t, http.StatusOK, `{"ok":true}`)
	h := newHandlers(backend.URL)

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", strings.NewReader(`{"email":"a@b.c"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	h.ProxyAuth(w, req)

	if rec.path != "/login" {
		t.Errorf("expected path /login, got %s", rec.path)
	}
	if rec.method != http.MethodPost {
		t.Errorf("expected POST, got %s", rec.method)
	}
	if rec.body != `{"email":"a@b.c"}` {
		t.Errorf("unexpected forwarded body %q", rec.body)
	}
	if rec.header.Get("X-Gateway-Forwarded") != "true" {
		t.Error("expected the gateway marker header")
	}
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if w.Body.String() != `{"ok":true}` {
		t.Errorf("unexpected response body %q", w.Body.String())
	}
}

func TestProxyTokensKeepsServicePathAndQuery(t *testing.T) {
	backend, rec := newBackend(t, http.StatusOK, `{}`)
	h := newHandlers(backend.URL)

	req := httptest.NewRequest(http.MethodGet, "/v1/tokens/qr.png?data=abc&size=256", nil)
	w := httptest.NewRecorder()

	h.ProxyTokens(w, req)

	if rec.path != "/tokens/qr.png" {
		t.Errorf("expected path /tokens/qr.png, got %s", rec.path)
	}
	if rec.query != "data=abc&size=256" {
		t.Errorf("expected query forwarded, got %q", rec.query)
	}
}

func TestProxyPropagatesBackendStatus(t *testing.T) {
	backend, _ := newBackend(t, http.StatusConflict, `{"error":"conflict"}`)
	h := newHandlers(backend.URL)

	req := httptest.NewRequest(http.MethodPost, "/v1/campaigns/camp-1/schedule", nil)
	w := httptest.NewRecorder()

	h.ProxyCampaigns(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 passed through, got %d", w.Code)
	}
}

func TestProxyBackendDown(t *testing.T) {
	h := newHandlers("http://127.0.0.1:1") // nothing listens here

	req := httptest.NewRequest(http.MethodGet, "/v1/orders/", nil)
	w := httptest.NewRecorder()

	h.ProxyOrders(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

func TestRequireJWT(t *testing.T) {
	backend, rec := newBackend(t, http.StatusOK, `{}`)
	h := newHandlers(backend.URL)

	protected := h.RequireJWT(auth.RoleOwner)(http.HandlerFunc(h.ProxyOrders))

	t.Run("missing token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/orders/", nil)
		w := httptest.NewRecorder()
		protected.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", w.Code)
		}
	})

	t.Run("wrong role", func(t *testing.T) {
		token, err := auth.NewAccessToken(1, "s@x.t", auth.RoleStation, "rest-1", "tokens:verify", testSecret, time.Hour)
		if err != nil {
			t.Fatalf("mint token: %v", err)
		}
		req := httptest.NewRequest(http.MethodGet, "/v1/orders/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		protected.ServeHTTP(w, req)
		if w.Code != http.StatusForbidden {
			t.Errorf("expected 403, got %d", w.Code)
		}
	})

	t.Run("owner reaches the backend", func(t *testing.T) {
		token, err := auth.NewAccessToken(1, "o@x.t", auth.RoleOwner, "rest-1", "orders:read", testSecret, time.Hour)
		if err != nil {
			t.Fatalf("mint token: %v", err)
		}
		req := httptest.NewRequest(http.MethodGet, "/v1/orders/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		protected.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", w.Code)
		}
		if rec.header.Get("Authorization") == "" {
			t.Error("expected the bearer token forwarded to the backend")
		}
	})
}
