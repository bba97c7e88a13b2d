package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/stripe/stripe-go/v76"

	"github.com/opskap1/temnos/pkg/auth"
	"github.com/opskap1/temnos/pkg/logger"
	"github.com/opskap1/temnos/services/orders/internal/domain"
)

// maxWebhookBody caps the Stripe webhook payload read.
const maxWebhookBody = 64 * 1024

func (h *Handlers) CreateOrder(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)

	var req domain.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", "INVALID_REQUEST")
		return
	}

	result, err := h.orders.Create(r.Context(), claims.Sub, claims.RestaurantID, "", &req)
	if err != nil {
		if strings.Contains(err.Error(), "validation failed") {
			writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
			return
		}
		logger.ErrorContext(r.Context(), "Failed to create order", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create order", "ORDER_CREATE_FAILED")
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

func (h *Handlers) QuoteOrder(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)
	includesTablet := r.URL.Query().Get("includes_tablet") == "true"

	quote, err := h.orders.Quote(r.Context(), claims.Sub, includesTablet)
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to quote order", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to quote order", "QUOTE_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, quote)
}

func (h *Handlers) ListOrders(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)
	limit, offset := parsePagination(r)

	orders, err := h.orders.ListByOwner(r.Context(), claims.Sub, limit, offset)
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to list orders", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list orders", "LIST_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"orders": orders,
		"limit":  limit,
		"offset": offset,
	})
}

func (h *Handlers) ListAllOrders(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)

	orders, err := h.orders.ListAll(r.Context(), limit, offset)
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to list orders", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list orders", "LIST_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"orders": orders,
		"limit":  limit,
		"offset": offset,
	})
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)
	id := chi.URLParam(r, "id")

	order, err := h.orders.Get(r.Context(), claims.Sub, claims.Role == auth.RoleAdmin, id)
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to get order", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get order", "GET_FAILED")
		return
	}
	if order == nil {
		writeError(w, http.StatusNotFound, "Order not found", "NOT_FOUND")
		return
	}

	writeJSON(w, http.StatusOK, order)
}

func (h *Handlers) AdvanceOrderStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Status domain.OrderStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", "INVALID_REQUEST")
		return
	}

	order, err := h.orders.AdvanceStatus(r.Context(), id, req.Status)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, "Order not found", "NOT_FOUND")
			return
		}
		if strings.Contains(err.Error(), "cannot move") || strings.Contains(err.Error(), "concurrently") {
			writeError(w, http.StatusConflict, err.Error(), "INVALID_TRANSITION")
			return
		}
		logger.ErrorContext(r.Context(), "Failed to advance order status", "error", err, "order_id", id)
		writeError(w, http.StatusInternalServerError, "Failed to update order", "UPDATE_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, order)
}

func (h *Handlers) SetProofOfDelivery(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "Invalid request body", "INVALID_REQUEST")
		return
	}

	if err := h.orders.SetProofOfDelivery(r.Context(), id, req.URL); err != nil {
		logger.ErrorContext(r.Context(), "Failed to set proof of delivery", "error", err, "order_id", id)
		writeError(w, http.StatusInternalServerError, "Failed to update order", "UPDATE_FAILED")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read payload", "INVALID_REQUEST")
		return
	}

	event, err := h.provider.VerifyWebhook(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		logger.WarnContext(r.Context(), "Webhook signature verification failed", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid signature", "INVALID_SIGNATURE")
		return
	}

	switch event.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			writeError(w, http.StatusBadRequest, "Malformed event payload", "INVALID_REQUEST")
			return
		}

		succeeded := event.Type == "payment_intent.succeeded"
		if err := h.orders.HandlePaymentResult(r.Context(), intent.ID, succeeded); err != nil {
			logger.ErrorContext(r.Context(), "Failed to handle payment result", "error", err, "payment_intent_id", intent.ID)
			writeError(w, http.StatusInternalServerError, "Failed to process event", "WEBHOOK_FAILED")
			return
		}
	default:
		// Other event types are subscribed but not acted on.
	}

	writeJSON(w, http.StatusOK, map[string]string{"received": "true"})
}
