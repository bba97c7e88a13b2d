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
	"github.com/opskap1/temnos/pkg/qr"
	"github.com/opskap1/temnos/services/tokens/internal/service"
)

type claimsKey struct{}

type Handlers struct {
	tokens  service.TokenService
	limiter *cache.RateLimiter
	config  *config.Config
}

func New(tokens service.TokenService, limiter *cache.RateLimiter, cfg *config.Config) *Handlers {
	return &Handlers{
		tokens:  tokens,
		limiter: limiter,
		config:  cfg,
	}
}

func (h *Handlers) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/tokens", func(r chi.Router) {
		r.Use(h.RequireJWT(auth.RoleStaff, auth.RoleOwner))
		r.Post("/customer", h.IssueCustomerToken)
		r.Post("/redemption", h.IssueRedemptionToken)
		r.Get("/qr.png", h.RenderQR)
		r.Get("/info", h.TokenInfo)
		r.Post("/cleanup", h.Cleanup)
	})

	r.Route("/scan", func(r chi.Router) {
		r.Use(h.RequireJWT(auth.RoleStation, auth.RoleStaff, auth.RoleOwner))
		r.With(h.ScanRateLimit).Post("/verify", h.VerifyScan)
	})

	return r
}

// RequireJWT admits any of the listed roles (admin always passes) and binds
// the claims to the request context.
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

			if claims.RestaurantID == "" {
				writeError(w, http.StatusForbidden, "Token is not bound to a restaurant", "FORBIDDEN")
				return
			}

			ctx := context.WithValue(r.Context(), logger.RestaurantIDKey, claims.RestaurantID)
			ctx = context.WithValue(ctx, claimsKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ScanRateLimit throttles verify attempts per station and address. The verify
// error messages are deliberately vague; this closes the remaining brute
// force angle.
func (h *Handlers) ScanRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := getClaims(r)
		key := "scan:" + claims.RestaurantID + ":" + clientIP(r)

		allowed, err := h.limiter.Allow(r.Context(), key, 30, time.Minute)
		if err == nil && !allowed {
			writeError(w, http.StatusTooManyRequests, "Too many scan attempts. Please try again later.", "RATE_LIMIT_EXCEEDED")
			return
		}

		next.ServeHTTP(w, r)
	})
}

type issueRequest struct {
	CustomerID string `json:"customer_id"`
	RewardID   string `json:"reward_id,omitempty"`
	TTLMinutes int    `json:"ttl_minutes,omitempty"`
}

type issueResponse struct {
	QRData string `json:"qr_data"`
}

func (h *Handlers) IssueCustomerToken(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CustomerID == "" {
		writeError(w, http.StatusBadRequest, "customer_id is required", "BAD_REQUEST")
		return
	}

	claims := getClaims(r)
	encoded, err := h.tokens.IssueCustomerToken(r.Context(), claims.RestaurantID, req.CustomerID, time.Duration(req.TTLMinutes)*time.Minute)
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to issue customer token", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to generate QR token", "TOKEN_ISSUE_FAILED")
		return
	}

	writeJSON(w, http.StatusCreated, issueResponse{QRData: encoded})
}

func (h *Handlers) IssueRedemptionToken(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CustomerID == "" || req.RewardID == "" {
		writeError(w, http.StatusBadRequest, "customer_id and reward_id are required", "BAD_REQUEST")
		return
	}

	claims := getClaims(r)
	encoded, err := h.tokens.IssueRedemptionToken(r.Context(), claims.RestaurantID, req.CustomerID, req.RewardID, time.Duration(req.TTLMinutes)*time.Minute)
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to issue redemption token", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to generate redemption QR token", "TOKEN_ISSUE_FAILED")
		return
	}

	writeJSON(w, http.StatusCreated, issueResponse{QRData: encoded})
}

// RenderQR draws an already-issued payload as a PNG for display on tablets
// and customer phones.
func (h *Handlers) RenderQR(w http.ResponseWriter, r *http.Request) {
	data := r.URL.Query().Get("data")
	if data == "" {
		writeError(w, http.StatusBadRequest, "data query parameter is required", "BAD_REQUEST")
		return
	}

	size := 256
	if v := r.URL.Query().Get("size"); v == "512" {
		size = 512
	}

	png, err := qr.RenderPNG(data, size)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Could not render QR code", "RENDER_FAILED")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

type verifyRequest struct {
	QRData string `json:"qr_data"`
}

func (h *Handlers) VerifyScan(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", "BAD_REQUEST")
		return
	}

	result := h.tokens.VerifyAndConsume(r.Context(), req.QRData)
	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) TokenInfo(w http.ResponseWriter, r *http.Request) {
	data := r.URL.Query().Get("data")
	if data == "" {
		writeError(w, http.StatusBadRequest, "data query parameter is required", "BAD_REQUEST")
		return
	}

	rec, err := h.tokens.TokenInfo(r.Context(), data)
	if err != nil {
		logger.ErrorContext(r.Context(), "Token info lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Lookup failed", "LOOKUP_FAILED")
		return
	}

	claims := getClaims(r)
	if rec != nil && rec.RestaurantID != claims.RestaurantID {
		rec = nil
	}

	writeJSON(w, http.StatusOK, rec)
}

func (h *Handlers) Cleanup(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)

	deleted, err := h.tokens.CleanupExpired(r.Context(), claims.RestaurantID)
	if err != nil {
		logger.ErrorContext(r.Context(), "Token cleanup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Cleanup failed", "CLEANUP_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

// Helper functions
func getClaims(r *http.Request) *auth.Claims {
	if claims, ok := r.Context().Value(claimsKey{}).(*auth.Claims); ok {
		return claims
	}
	return &auth.Claims{}
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
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
