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
	"github.com/opskap1/temnos/services/campaigns/internal/service"
)

type Handlers struct {
	campaigns service.CampaignService
	promos    service.PromoService
	customers service.CustomerService
	config    *config.Config
}

func New(
	campaigns service.CampaignService,
	promos service.PromoService,
	customers service.CustomerService,
	config *config.Config,
) *Handlers {
	return &Handlers{
		campaigns: campaigns,
		promos:    promos,
		customers: customers,
		config:    config,
	}
}

func (h *Handlers) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/campaigns", func(r chi.Router) {
		r.Use(h.RequireJWT(auth.RoleOwner, auth.RoleStaff))
		r.Post("/", h.CreateCampaign)
		r.Get("/", h.ListCampaigns)
		r.Get("/{id}", h.GetCampaign)
		r.Get("/{id}/audience", h.EstimateAudience)
		r.Post("/{id}/schedule", h.ScheduleCampaign)
		r.Post("/{id}/pause", h.PauseCampaign)
		r.Post("/{id}/resume", h.ResumeCampaign)
		r.Post("/{id}/cancel", h.CancelCampaign)
		r.Post("/{id}/send", h.SendCampaign)

		r.With(h.RequireJWT(auth.RoleOwner)).Get("/{id}/audit", h.CampaignAudit)
	})

	r.Route("/promos", func(r chi.Router) {
		r.Use(h.RequireJWT(auth.RoleOwner, auth.RoleStaff))
		r.Post("/", h.CreatePromo)
		r.Get("/", h.ListPromos)
		r.Post("/validate", h.ValidatePromo)
		r.Post("/redeem", h.RedeemPromo)

		r.With(h.RequireJWT(auth.RoleOwner)).Post("/{id}/deactivate", h.DeactivatePromo)
	})

	r.Route("/customers", func(r chi.Router) {
		r.Use(h.RequireJWT(auth.RoleOwner, auth.RoleStaff))
		r.Get("/{id}", h.GetCustomer)
		r.Put("/{id}/tags", h.SetCustomerTags)
		r.Put("/{id}/consent", h.SetCustomerConsent)
	})

	return r
}

type claimsKey struct{}

// RequireJWT admits any of the listed roles (admin always passes) and
// requires the token to be restaurant-bound.
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
			if claims.RestaurantID == "" {
				writeError(w, http.StatusForbidden, "Token is not bound to a restaurant", "FORBIDDEN")
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
			ctx = context.WithValue(ctx, logger.RestaurantIDKey, claims.RestaurantID)
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

func actor(r *http.Request) string {
	if claims := getClaims(r); claims != nil && claims.Email != "" {
		return claims.Email
	}
	return "unknown"
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
