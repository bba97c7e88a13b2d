package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opskap1/temnos/services/campaigns/internal/domain"
)

func (h *Handlers) CreatePromo(w http.ResponseWriter, r *http.Request) {
	var req domain.CreatePromoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format", "INVALID_INPUT")
		return
	}

	claims := getClaims(r)
	promo, err := h.promos.Create(r.Context(), claims.RestaurantID, actor(r), &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "PROMO_CREATE_FAILED")
		return
	}

	writeJSON(w, http.StatusCreated, promo)
}

func (h *Handlers) ListPromos(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)
	limit, offset := parsePagination(r)

	promos, err := h.promos.List(r.Context(), claims.RestaurantID, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list promo codes", "INTERNAL_ERROR")
		return
	}

	writeJSON(w, http.StatusOK, promos)
}

func (h *Handlers) DeactivatePromo(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)

	if err := h.promos.Deactivate(r.Context(), claims.RestaurantID, actor(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusNotFound, "Promo code not found", "NOT_FOUND")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

func (h *Handlers) ValidatePromo(w http.ResponseWriter, r *http.Request) {
	var req domain.RedeemPromoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		writeError(w, http.StatusBadRequest, "code is required", "INVALID_INPUT")
		return
	}

	claims := getClaims(r)
	result, err := h.promos.Validate(r.Context(), claims.RestaurantID, &req)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error(), "PROMO_INVALID")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) RedeemPromo(w http.ResponseWriter, r *http.Request) {
	var req domain.RedeemPromoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" || req.CustomerID == "" {
		writeError(w, http.StatusBadRequest, "code and customer_id are required", "INVALID_INPUT")
		return
	}

	claims := getClaims(r)
	result, err := h.promos.Redeem(r.Context(), claims.RestaurantID, &req)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error(), "PROMO_REDEEM_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) GetCustomer(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)

	customer, err := h.customers.Get(r.Context(), claims.RestaurantID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load customer", "INTERNAL_ERROR")
		return
	}
	if customer == nil {
		writeError(w, http.StatusNotFound, "Customer not found", "NOT_FOUND")
		return
	}

	writeJSON(w, http.StatusOK, customer)
}

func (h *Handlers) SetCustomerTags(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tags []string `json:"tags"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format", "INVALID_INPUT")
		return
	}

	claims := getClaims(r)
	if err := h.customers.SetTags(r.Context(), claims.RestaurantID, chi.URLParam(r, "id"), req.Tags); err != nil {
		writeError(w, http.StatusNotFound, "Customer not found", "NOT_FOUND")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handlers) SetCustomerConsent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Channel domain.Channel `json:"channel"`
		Granted bool           `json:"granted"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Channel == "" {
		writeError(w, http.StatusBadRequest, "channel is required", "INVALID_INPUT")
		return
	}

	claims := getClaims(r)
	if err := h.customers.SetConsent(r.Context(), claims.RestaurantID, chi.URLParam(r, "id"), req.Channel, req.Granted); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "CONSENT_UPDATE_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}
