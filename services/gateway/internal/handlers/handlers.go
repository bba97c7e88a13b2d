package handlers

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/opskap1/temnos/pkg/auth"
	"github.com/opskap1/temnos/pkg/config"
	"github.com/opskap1/temnos/pkg/logger"
	"github.com/opskap1/temnos/services/gateway/internal/proxy"
)

type Handlers struct {
	authProxy      *proxy.ServiceProxy
	tokensProxy    *proxy.ServiceProxy
	campaignsProxy *proxy.ServiceProxy
	ordersProxy    *proxy.ServiceProxy
	config         *config.Config
}

func New(authProxy, tokensProxy, campaignsProxy, ordersProxy *proxy.ServiceProxy, config *config.Config) *Handlers {
	return &Handlers{
		authProxy:      authProxy,
		tokensProxy:    tokensProxy,
		campaignsProxy: campaignsProxy,
		ordersProxy:    ordersProxy,
		config:         config,
	}
}

// proxyRequest forwards the request to a backing service under the given
// path, carrying the query string, safe headers, and the response verbatim.
func (h *Handlers) proxyRequest(w http.ResponseWriter, r *http.Request, serviceProxy *proxy.ServiceProxy, path string) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if r.URL.RawQuery != "" {
		path += "?" + r.URL.RawQuery
	}

	headers := make(map[string]string)
	for key, values := range r.Header {
		if len(values) > 0 && shouldCopyHeader(key) {
			headers[key] = values[0]
		}
	}

	resp, err := serviceProxy.ProxyRequest(r.Context(), r.Method, path, body, headers)
	if err != nil {
		logger.ErrorContext(r.Context(), "Service proxy error", "error", err, "path", path)
		http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
		return
	}
	defer resp.Body.Close()

	for key, values := range resp.Header {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}

	w.WriteHeader(resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		logger.ErrorContext(r.Context(), "Failed to copy response body", "error", err)
	}
}

func shouldCopyHeader(key string) bool {
	key = strings.ToLower(key)
	skipHeaders := []string{
		"host",
		"connection",
		"upgrade",
		"proxy-connection",
		"proxy-authenticate",
		"proxy-authorization",
		"te",
		"trailers",
		"transfer-encoding",
	}

	for _, skip := range skipHeaders {
		if key == skip {
			return false
		}
	}
	return true
}

// stripPrefix maps the public /v1 path onto a service's own route space.
func stripPrefix(r *http.Request, prefix string) string {
	path := strings.TrimPrefix(r.URL.Path, prefix)
	if path == "" {
		path = "/"
	}
	return path
}

// Auth service routes mount at the service root, so /v1/auth is dropped
// entirely.
func (h *Handlers) ProxyAuth(w http.ResponseWriter, r *http.Request) {
	h.proxyRequest(w, r, h.authProxy, stripPrefix(r, "/v1/auth"))
}

func (h *Handlers) ProxyTokens(w http.ResponseWriter, r *http.Request) {
	h.proxyRequest(w, r, h.tokensProxy, stripPrefix(r, "/v1"))
}

func (h *Handlers) ProxyCampaigns(w http.ResponseWriter, r *http.Request) {
	h.proxyRequest(w, r, h.campaignsProxy, stripPrefix(r, "/v1"))
}

func (h *Handlers) ProxyOrders(w http.ResponseWriter, r *http.Request) {
	h.proxyRequest(w, r, h.ordersProxy, stripPrefix(r, "/v1"))
}

// PaymentWebhook lands on the orders service's webhook endpoint, which
// verifies the Stripe signature itself.
func (h *Handlers) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	h.proxyRequest(w, r, h.ordersProxy, "/webhook")
}

// RequireJWT rejects requests without a valid token in one of the given
// roles. The backing services enforce their own authorization as well; the
// edge check keeps garbage traffic off them.
func (h *Handlers) RequireJWT(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				http.Error(w, "Missing or invalid authorization header", http.StatusUnauthorized)
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")
			claims, err := auth.Parse(token, h.config.Auth.JWTSecret)
			if err != nil {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			allowed := claims.Role == auth.RoleAdmin
			for _, role := range roles {
				if claims.Role == role {
					allowed = true
					break
				}
			}
			if !allowed {
				http.Error(w, "Insufficient permissions", http.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), logger.UserIDKey, claims.Sub)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
