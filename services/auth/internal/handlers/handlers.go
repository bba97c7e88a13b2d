package handlers

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opskap1/temnos/pkg/auth"
	"github.com/opskap1/temnos/pkg/cache"
	"github.com/opskap1/temnos/pkg/config"
	"github.com/opskap1/temnos/pkg/logger"
	"github.com/opskap1/temnos/services/auth/internal/service"
)

type Handlers struct {
	authService service.AuthService
	limiter     *cache.RateLimiter
	config      *config.Config
}

func New(authService service.AuthService, limiter *cache.RateLimiter, config *config.Config) *Handlers {
	return &Handlers{
		authService: authService,
		limiter:     limiter,
		config:      config,
	}
}

func (h *Handlers) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/register", h.Register)
	r.With(h.loginRateLimit).Post("/login", h.Login)
	r.Post("/verify-email", h.VerifyEmail)
	r.Post("/resend-verification", h.ResendVerification)
	r.Post("/refresh", h.RefreshToken)

	r.Route("/stations", func(r chi.Router) {
		r.With(h.RequireJWT(auth.RoleOwner)).Post("/pair-code", h.CreatePairingCode)
		// Unauthenticated: the kiosk presents only the code.
		r.With(h.pairRateLimit).Post("/pair", h.PairStation)
	})

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

func (h *Handlers) loginRateLimit(next http.Handler) http.Handler {
	return h.rateLimit("login", 10, next)
}

func (h *Handlers) pairRateLimit(next http.Handler) http.Handler {
	return h.rateLimit("pair", 5, next)
}

func (h *Handlers) rateLimit(name string, limit int, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := name + ":" + getClientIP(r)

		allowed, err := h.limiter.Allow(r.Context(), key, limit, time.Minute)
		if err != nil {
			logger.ErrorContext(r.Context(), "Rate limit check failed", "error", err)
			// fail open
		} else if !allowed {
			writeError(w, http.StatusTooManyRequests, "Too many requests. Please try again later.", "RATE_LIMIT_EXCEEDED")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func getClaims(r *http.Request) *auth.Claims {
	if claims, ok := r.Context().Value(claimsKey{}).(*auth.Claims); ok {
		return claims
	}
	return nil
}

func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
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
