package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/opskap1/temnos/services/auth/internal/domain"
)

// Register creates a restaurant and its first owner account.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format", "INVALID_INPUT")
		return
	}

	owner, verifyURL, err := h.authService.Register(r.Context(), &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "REGISTRATION_FAILED")
		return
	}

	response := map[string]interface{}{
		"message": "Registration successful. Please check your email to verify your account.",
		"owner":   owner.ToOwnerInfo(),
	}
	if h.config.Email.DevMode {
		response["dev_verify_url"] = verifyURL
	}

	writeJSON(w, http.StatusCreated, response)
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format", "INVALID_INPUT")
		return
	}

	response, err := h.authService.Login(r.Context(), &req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error(), "LOGIN_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, response)
}

func (h *Handlers) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "Missing verification token", "INVALID_INPUT")
		return
	}

	owner, err := h.authService.VerifyEmail(r.Context(), token)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VERIFICATION_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Email verified successfully",
		"owner":   owner.ToOwnerInfo(),
	})
}

func (h *Handlers) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		writeError(w, http.StatusBadRequest, "Email is required", "INVALID_INPUT")
		return
	}

	if err := h.authService.ResendVerification(r.Context(), req.Email); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "RESEND_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Verification email sent",
	})
}

func (h *Handlers) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req domain.RefreshTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format", "INVALID_INPUT")
		return
	}

	response, err := h.authService.RefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error(), "REFRESH_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, response)
}

// CreatePairingCode issues a pairing code for the caller's restaurant.
func (h *Handlers) CreatePairingCode(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)
	if claims == nil || claims.RestaurantID == "" {
		writeError(w, http.StatusForbidden, "Token is not bound to a restaurant", "FORBIDDEN")
		return
	}

	code, err := h.authService.CreatePairingCode(r.Context(), claims.Sub, claims.RestaurantID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create pairing code", "PAIRING_FAILED")
		return
	}

	writeJSON(w, http.StatusCreated, code)
}

// PairStation exchanges a valid pairing code for a station token.
func (h *Handlers) PairStation(w http.ResponseWriter, r *http.Request) {
	var req domain.PairStationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format", "INVALID_INPUT")
		return
	}

	response, err := h.authService.PairStation(r.Context(), &req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error(), "PAIRING_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, response)
}
