package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/opskap1/temnos/pkg/auth"
	"github.com/opskap1/temnos/pkg/config"
	"github.com/opskap1/temnos/pkg/logger"
	mw "github.com/opskap1/temnos/pkg/middleware"
	"github.com/opskap1/temnos/services/orders/internal/payments"
	"github.com/opskap1/temnos/services/orders/internal/service"
)

type Handlers struct {
	orders   service.OrderService
	provider *payments.StripeProvider
	store    mw.IdempotencyStore
	config   *config.Config
}

func New(orders service.OrderService, provider *payments.StripeProvider, store mw.IdempotencyStore, config *config.Config) *Handlers {
	return &Handlers{
		orders:   orders,
		provider: provider,
		store:    store,
		config:   config,
	}
}

func (h *Handlers) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/orders", func(r chi.Router) {
		r.Use(h.RequireJWT(auth.RoleOwner))
		r.With(mw.Idempotency(h.store)).Post("/", h.CreateOrder)
		r.Get("/", h.ListOrders)
		r.Get("/quote", h.QuoteOrder)
		r.Get("/{id}", h.GetOrder)

		r.Group(func(r chi.Router) {
			r.Use(h.RequireJWT(auth.RoleAdmin))
			r.Get("/admin/all", h.ListAllOrders)
			r.Post("/{id}/status", h.AdvanceOrderStatus)
			r.Post("/{id}/proof", h.SetProofOfDelivery)
		})
	})

	// Stripe signs the webhook itself; no bearer token.
	r.Post("/webhook", h.PaymentWebhook)

	return r
}

type claimsKey struct{}

func (h *Handlers) RequireJWT(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				writeError(w, http.StatusUnauthorized, "Missing or invalid authorization header", "UNAUTHORIZED")
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")
			claims, err := auth.Parse(token, h.config.Auth.JWTSecret)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Invalid token", "INVALID_TOKEN")
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
				writeError(w, http.StatusForbidden, "Insufficient permissions", "FORBIDDEN")
				return
			}

			ctx := context.WithValue(r.Context(), logger.UserIDKey, claims.Sub)
			ctx = context.WithValue(ctx, claimsKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func getClaims(r *http.Request) *auth.Claims {
	if claims, ok := r.Context().Value(claimsKey{}).(*auth.Claims); ok {
		return claims
	}
	return nil
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, statusCode int, message, code string) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
		"code":  code,
	})
}

func parsePagination(r *http.Request) (limit, offset int) {
	limit = 20
	offset = 0

	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
