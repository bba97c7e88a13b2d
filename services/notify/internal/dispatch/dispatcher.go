package dispatch

import (
	"context"
	"fmt"

	"github.com/opskap1/temnos/pkg/events"
	"github.com/opskap1/temnos/pkg/logger"
	"github.com/opskap1/temnos/services/notify/internal/domain"
	"github.com/opskap1/temnos/services/notify/internal/repository"
	"github.com/opskap1/temnos/services/notify/internal/sender"
	"github.com/opskap1/temnos/services/notify/internal/template"
)

type Dispatcher struct {
	repo    repository.DispatchRepository
	senders sender.Registry
}

func New(repo repository.DispatchRepository, senders sender.Registry) *Dispatcher {
	return &Dispatcher{repo: repo, senders: senders}
}

// DispatchCampaign delivers a campaign to its audience and completes it.
// In test mode the rendered message goes to the single test recipient and
// the campaign is completed without touching the real audience.
func (d *Dispatcher) DispatchCampaign(ctx context.Context, evt *events.CampaignDispatchRequestedEvent) (*domain.DispatchResult, error) {
	campaign, err := d.repo.FindCampaign(ctx, evt.CampaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign: %w", err)
	}
	if campaign == nil {
		return nil, fmt.Errorf("campaign %s not found", evt.CampaignID)
	}
	if campaign.Status != "sending" {
		// Duplicate dispatch request; another worker already ran it.
		logger.WarnContext(ctx, "Campaign not in sending state, skipping",
			"campaign_id", campaign.ID, "status", campaign.Status)
		return &domain.DispatchResult{CampaignID: campaign.ID, TestMode: evt.TestMode}, nil
	}

	send, ok := d.senders[campaign.Channel]
	if !ok {
		return nil, fmt.Errorf("no sender for channel %s", campaign.Channel)
	}

	result := &domain.DispatchResult{CampaignID: campaign.ID, TestMode: evt.TestMode}

	recipients, err := d.resolveRecipients(ctx, campaign, evt)
	if err != nil {
		return nil, err
	}

	for _, rec := range recipients {
		address := rec.Address(campaign.Channel)
		if address == "" {
			result.Skipped++
			continue
		}

		vars := template.Variables(rec.Name, campaign.RestaurantName, campaign.PromoCode)
		msg := &sender.Message{
			Recipient: address,
			Subject:   template.Render(campaign.Subject, vars),
			Body:      template.Render(campaign.Body, vars),
		}

		if err := send.Send(ctx, msg); err != nil {
			logger.ErrorContext(ctx, "Failed to deliver campaign message",
				"error", err, "campaign_id", campaign.ID, "customer_id", rec.CustomerID)
			result.Failed++
			continue
		}
		result.Sent++
	}

	marked, err := d.repo.MarkSent(ctx, campaign.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark campaign sent: %w", err)
	}
	if !marked {
		logger.WarnContext(ctx, "Campaign already completed by another worker", "campaign_id", campaign.ID)
	}

	logger.InfoContext(ctx, "Campaign dispatched",
		"campaign_id", campaign.ID,
		"sent", result.Sent,
		"failed", result.Failed,
		"skipped", result.Skipped,
		"test_mode", result.TestMode,
	)
	return result, nil
}

func (d *Dispatcher) resolveRecipients(ctx context.Context, campaign *domain.Campaign, evt *events.CampaignDispatchRequestedEvent) ([]domain.Recipient, error) {
	if evt.TestMode {
		if evt.TestPhone == "" {
			return nil, fmt.Errorf("test dispatch without a test recipient")
		}
		// Test sends address the recipient on every channel; for email the
		// "phone" field carries the address.
		return []domain.Recipient{{
			CustomerID: "test",
			Name:       "Test Customer",
			Email:      evt.TestPhone,
			Phone:      evt.TestPhone,
		}}, nil
	}

	recipients, err := d.repo.ListRecipients(ctx, campaign)
	if err != nil {
		return nil, fmt.Errorf("failed to list recipients: %w", err)
	}
	return recipients, nil
}

// SendNotification delivers a one-off message from a notify.send event.
// When the event names a customer, their channel consent gates delivery.
func (d *Dispatcher) SendNotification(ctx context.Context, evt *events.NotificationEvent) error {
	channel := domain.Channel(evt.Channel)
	send, ok := d.senders[channel]
	if !ok {
		return fmt.Errorf("no sender for channel %s", evt.Channel)
	}

	if evt.CustomerID != "" && evt.RestaurantID != "" {
		granted, err := d.repo.HasConsent(ctx, evt.RestaurantID, evt.CustomerID, channel)
		if err != nil {
			return fmt.Errorf("failed to check consent: %w", err)
		}
		if !granted {
			logger.InfoContext(ctx, "Notification suppressed, no consent",
				"customer_id", evt.CustomerID, "channel", evt.Channel)
			return nil
		}
	}

	vars := template.Coerce(evt.Variables)
	msg := &sender.Message{
		Recipient: evt.Recipient,
		Subject:   template.Render(evt.Subject, vars),
		Body:      template.Render(evt.Template, vars),
	}
	return send.Send(ctx, msg)
}
