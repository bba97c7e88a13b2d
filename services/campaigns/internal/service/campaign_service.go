package service

import (
	"context"
	"fmt"
	"time"

	"github.com/opskap1/temnos/pkg/events"
	"github.com/opskap1/temnos/pkg/logger"
	"github.com/opskap1/temnos/services/campaigns/internal/domain"
	"github.com/opskap1/temnos/services/campaigns/internal/repository"
)

type CampaignService interface {
	Create(ctx context.Context, restaurantID, actor string, req *domain.CreateCampaignRequest) (*domain.Campaign, error)
	Get(ctx context.Context, restaurantID, id string) (*domain.Campaign, error)
	List(ctx context.Context, restaurantID string, limit, offset int) ([]domain.Campaign, error)
	Schedule(ctx context.Context, restaurantID, actor, id string, at time.Time) error
	Pause(ctx context.Context, restaurantID, actor, id string) error
	Resume(ctx context.Context, restaurantID, actor, id string) error
	Cancel(ctx context.Context, restaurantID, actor, id string) error
	// Send moves the campaign to sending and asks the notify service to
	// deliver it. In test mode delivery goes to a single test recipient.
	Send(ctx context.Context, restaurantID, actor, id string, testMode bool, testPhone string) error
	EstimateAudience(ctx context.Context, restaurantID, id string) (int, error)
	AuditTrail(ctx context.Context, restaurantID, id string) ([]domain.AuditEntry, error)
	// DispatchDue promotes scheduled campaigns whose time has come. Run from
	// the background loop; safe to run on several instances at once.
	DispatchDue(ctx context.Context) (int, error)
}

type campaignService struct {
	campaigns repository.CampaignRepository
	customers repository.CustomerRepository
	audit     repository.AuditRepository
	eventBus  events.EventBus
}

func NewCampaignService(
	campaigns repository.CampaignRepository,
	customers repository.CustomerRepository,
	audit repository.AuditRepository,
	eventBus events.EventBus,
) CampaignService {
	return &campaignService{
		campaigns: campaigns,
		customers: customers,
		audit:     audit,
		eventBus:  eventBus,
	}
}

func (s *campaignService) Create(ctx context.Context, restaurantID, actor string, req *domain.CreateCampaignRequest) (*domain.Campaign, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	status := domain.StatusDraft
	if req.Type == domain.TypeScheduled && req.ScheduledAt != nil {
		if !req.ScheduledAt.After(time.Now()) {
			return nil, fmt.Errorf("scheduled_at must be in the future")
		}
		status = domain.StatusScheduled
	}

	campaign, err := s.campaigns.Create(ctx, &domain.Campaign{
		RestaurantID:  restaurantID,
		Name:          req.Name,
		Type:          req.Type,
		Status:        status,
		Channel:       req.Channel,
		Subject:       req.Subject,
		Body:          req.Body,
		Audience:      req.Audience,
		AudienceTags:  req.AudienceTags,
		LastOrderDays: req.LastOrderDays,
		ScheduledAt:   req.ScheduledAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create campaign: %w", err)
	}

	s.recordAudit(ctx, restaurantID, actor, "create", campaign.ID, string(status))
	s.publish(ctx, events.CampaignCreated, map[string]string{
		"campaign_id":   campaign.ID,
		"restaurant_id": restaurantID,
	})

	return campaign, nil
}

func (s *campaignService) Get(ctx context.Context, restaurantID, id string) (*domain.Campaign, error) {
	return s.campaigns.FindByID(ctx, restaurantID, id)
}

func (s *campaignService) List(ctx context.Context, restaurantID string, limit, offset int) ([]domain.Campaign, error) {
	return s.campaigns.List(ctx, restaurantID, limit, offset)
}

func (s *campaignService) Schedule(ctx context.Context, restaurantID, actor, id string, at time.Time) error {
	if !at.After(time.Now()) {
		return fmt.Errorf("scheduled_at must be in the future")
	}

	if err := s.transition(ctx, restaurantID, actor, id, domain.StatusScheduled); err != nil {
		return err
	}
	if err := s.campaigns.SetSchedule(ctx, restaurantID, id, at); err != nil {
		return fmt.Errorf("failed to set schedule: %w", err)
	}

	s.publish(ctx, events.CampaignScheduled, map[string]string{
		"campaign_id":   id,
		"restaurant_id": restaurantID,
		"scheduled_at":  at.Format(time.RFC3339),
	})
	return nil
}

func (s *campaignService) Pause(ctx context.Context, restaurantID, actor, id string) error {
	return s.transition(ctx, restaurantID, actor, id, domain.StatusPaused)
}

func (s *campaignService) Resume(ctx context.Context, restaurantID, actor, id string) error {
	return s.transition(ctx, restaurantID, actor, id, domain.StatusScheduled)
}

func (s *campaignService) Cancel(ctx context.Context, restaurantID, actor, id string) error {
	if err := s.transition(ctx, restaurantID, actor, id, domain.StatusCancelled); err != nil {
		return err
	}
	s.publish(ctx, events.CampaignCancelled, map[string]string{
		"campaign_id":   id,
		"restaurant_id": restaurantID,
	})
	return nil
}

func (s *campaignService) Send(ctx context.Context, restaurantID, actor, id string, testMode bool, testPhone string) error {
	if err := s.transition(ctx, restaurantID, actor, id, domain.StatusSending); err != nil {
		return err
	}

	s.publish(ctx, events.CampaignDispatchRequested, events.CampaignDispatchRequestedEvent{
		CampaignID:   id,
		RestaurantID: restaurantID,
		TestMode:     testMode,
		TestPhone:    testPhone,
		RequestedBy:  actor,
	})
	return nil
}

func (s *campaignService) EstimateAudience(ctx context.Context, restaurantID, id string) (int, error) {
	campaign, err := s.campaigns.FindByID(ctx, restaurantID, id)
	if err != nil {
		return 0, fmt.Errorf("failed to find campaign: %w", err)
	}
	if campaign == nil {
		return 0, fmt.Errorf("campaign not found")
	}
	return s.customers.EstimateAudience(ctx, campaign)
}

func (s *campaignService) AuditTrail(ctx context.Context, restaurantID, id string) ([]domain.AuditEntry, error) {
	return s.audit.ListByEntity(ctx, restaurantID, "campaign", id)
}

func (s *campaignService) DispatchDue(ctx context.Context) (int, error) {
	due, err := s.campaigns.ListDue(ctx, time.Now(), 50)
	if err != nil {
		return 0, fmt.Errorf("failed to list due campaigns: %w", err)
	}

	dispatched := 0
	for _, c := range due {
		// Conditional update: only one instance wins the promotion.
		moved, err := s.campaigns.UpdateStatus(ctx, c.RestaurantID, c.ID, domain.StatusScheduled, domain.StatusSending)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to promote due campaign", "error", err, "campaign_id", c.ID)
			continue
		}
		if !moved {
			continue
		}

		s.recordAudit(ctx, c.RestaurantID, "scheduler", "dispatch", c.ID, string(domain.StatusSending))
		s.publish(ctx, events.CampaignDispatchRequested, events.CampaignDispatchRequestedEvent{
			CampaignID:   c.ID,
			RestaurantID: c.RestaurantID,
		})
		dispatched++
	}
	return dispatched, nil
}

// transition validates the move against the current status, then applies it
// conditionally so concurrent writers cannot double-apply.
func (s *campaignService) transition(ctx context.Context, restaurantID, actor, id string, to domain.CampaignStatus) error {
	campaign, err := s.campaigns.FindByID(ctx, restaurantID, id)
	if err != nil {
		return fmt.Errorf("failed to find campaign: %w", err)
	}
	if campaign == nil {
		return fmt.Errorf("campaign not found")
	}

	if !domain.CanTransition(campaign.Status, to) {
		return fmt.Errorf("cannot move campaign from %s to %s", campaign.Status, to)
	}

	moved, err := s.campaigns.UpdateStatus(ctx, restaurantID, id, campaign.Status, to)
	if err != nil {
		return fmt.Errorf("failed to update campaign status: %w", err)
	}
	if !moved {
		return fmt.Errorf("campaign status changed concurrently, retry")
	}

	s.recordAudit(ctx, restaurantID, actor, "status_change", id, string(to))
	return nil
}

func (s *campaignService) recordAudit(ctx context.Context, restaurantID, actor, action, campaignID, detail string) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, &domain.AuditEntry{
		RestaurantID: restaurantID,
		Actor:        actor,
		Action:       action,
		EntityType:   "campaign",
		EntityID:     campaignID,
		Detail:       detail,
	})
	if err != nil {
		logger.ErrorContext(ctx, "Failed to record audit entry", "error", err, "campaign_id", campaignID)
	}
}

func (s *campaignService) publish(ctx context.Context, subject string, payload interface{}) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.Publish(ctx, subject, payload); err != nil {
		logger.ErrorContext(ctx, "Failed to publish event", "error", err, "subject", subject)
	}
}
