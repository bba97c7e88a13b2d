package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opskap1/temnos/services/campaigns/internal/domain"
)

func (h *Handlers) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format", "INVALID_INPUT")
		return
	}

	claims := getClaims(r)
	campaign, err := h.campaigns.Create(r.Context(), claims.RestaurantID, actor(r), &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "CAMPAIGN_CREATE_FAILED")
		return
	}

	writeJSON(w, http.StatusCreated, campaign)
}

func (h *Handlers) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)
	limit, offset := parsePagination(r)

	campaigns, err := h.campaigns.List(r.Context(), claims.RestaurantID, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list campaigns", "INTERNAL_ERROR")
		return
	}

	writeJSON(w, http.StatusOK, campaigns)
}

func (h *Handlers) GetCampaign(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)

	campaign, err := h.campaigns.Get(r.Context(), claims.RestaurantID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load campaign", "INTERNAL_ERROR")
		return
	}
	if campaign == nil {
		writeError(w, http.StatusNotFound, "Campaign not found", "NOT_FOUND")
		return
	}

	writeJSON(w, http.StatusOK, campaign)
}

func (h *Handlers) EstimateAudience(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)

	count, err := h.campaigns.EstimateAudience(r.Context(), claims.RestaurantID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "AUDIENCE_ESTIMATE_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"recipients": count})
}

func (h *Handlers) ScheduleCampaign(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScheduledAt time.Time `json:"scheduled_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ScheduledAt.IsZero() {
		writeError(w, http.StatusBadRequest, "scheduled_at is required", "INVALID_INPUT")
		return
	}

	claims := getClaims(r)
	if err := h.campaigns.Schedule(r.Context(), claims.RestaurantID, actor(r), chi.URLParam(r, "id"), req.ScheduledAt); err != nil {
		writeError(w, http.StatusConflict, err.Error(), "SCHEDULE_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": string(domain.StatusScheduled)})
}

func (h *Handlers) PauseCampaign(w http.ResponseWriter, r *http.Request) {
	h.applyTransition(w, r, h.campaigns.Pause, domain.StatusPaused)
}

func (h *Handlers) ResumeCampaign(w http.ResponseWriter, r *http.Request) {
	h.applyTransition(w, r, h.campaigns.Resume, domain.StatusScheduled)
}

func (h *Handlers) CancelCampaign(w http.ResponseWriter, r *http.Request) {
	h.applyTransition(w, r, h.campaigns.Cancel, domain.StatusCancelled)
}

func (h *Handlers) SendCampaign(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TestMode  bool   `json:"test_mode"`
		TestPhone string `json:"test_phone,omitempty"`
	}
	// Body is optional for a straight send
	_ = json.NewDecoder(r.Body).Decode(&req)

	claims := getClaims(r)
	if err := h.campaigns.Send(r.Context(), claims.RestaurantID, actor(r), chi.URLParam(r, "id"), req.TestMode, req.TestPhone); err != nil {
		writeError(w, http.StatusConflict, err.Error(), "SEND_FAILED")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": string(domain.StatusSending)})
}

func (h *Handlers) CampaignAudit(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)

	entries, err := h.campaigns.AuditTrail(r.Context(), claims.RestaurantID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load audit trail", "INTERNAL_ERROR")
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

func (h *Handlers) applyTransition(
	w http.ResponseWriter,
	r *http.Request,
	fn func(ctx context.Context, restaurantID, actor, id string) error,
	result domain.CampaignStatus,
) {
	claims := getClaims(r)
	if err := fn(r.Context(), claims.RestaurantID, actor(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusConflict, err.Error(), "TRANSITION_FAILED")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(result)})
}
