package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/opskap1/temnos/services/campaigns/internal/domain"
	"github.com/opskap1/temnos/services/campaigns/internal/repository"
)

type CustomerService interface {
	Get(ctx context.Context, restaurantID, id string) (*domain.Customer, error)
	SetTags(ctx context.Context, restaurantID, customerID string, tags []string) error
	SetConsent(ctx context.Context, restaurantID, customerID string, channel domain.Channel, granted bool) error
}

type customerService struct {
	customers repository.CustomerRepository
}

func NewCustomerService(customers repository.CustomerRepository) CustomerService {
	return &customerService{customers: customers}
}

func (s *customerService) Get(ctx context.Context, restaurantID, id string) (*domain.Customer, error) {
	return s.customers.FindByID(ctx, restaurantID, id)
}

func (s *customerService) SetTags(ctx context.Context, restaurantID, customerID string, tags []string) error {
	cleaned := make([]string, 0, len(tags))
	seen := make(map[string]bool)
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		cleaned = append(cleaned, tag)
	}

	if err := s.customers.SetTags(ctx, restaurantID, customerID, cleaned); err != nil {
		return fmt.Errorf("failed to set tags: %w", err)
	}
	return nil
}

func (s *customerService) SetConsent(ctx context.Context, restaurantID, customerID string, channel domain.Channel, granted bool) error {
	switch channel {
	case domain.ChannelEmail, domain.ChannelWhatsApp, domain.ChannelSMS:
	default:
		return fmt.Errorf("invalid channel: %s", channel)
	}

	err := s.customers.UpsertConsent(ctx, &domain.Consent{
		CustomerID:   customerID,
		RestaurantID: restaurantID,
		Channel:      channel,
		Granted:      granted,
	})
	if err != nil {
		return fmt.Errorf("failed to update consent: %w", err)
	}
	return nil
}
