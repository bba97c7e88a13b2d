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

type PromoService interface {
	Create(ctx context.Context, restaurantID, actor string, req *domain.CreatePromoRequest) (*domain.PromoCode, error)
	List(ctx context.Context, restaurantID string, limit, offset int) ([]domain.PromoCode, error)
	Deactivate(ctx context.Context, restaurantID, actor, id string) error
	// Validate checks a code against an order without burning a use.
	Validate(ctx context.Context, restaurantID string, req *domain.RedeemPromoRequest) (*domain.RedeemPromoResult, error)
	// Redeem burns a use and returns the discount applied.
	Redeem(ctx context.Context, restaurantID string, req *domain.RedeemPromoRequest) (*domain.RedeemPromoResult, error)
}

type promoService struct {
	promos   repository.PromoRepository
	audit    repository.AuditRepository
	eventBus events.EventBus
}

func NewPromoService(promos repository.PromoRepository, audit repository.AuditRepository, eventBus events.EventBus) PromoService {
	return &promoService{promos: promos, audit: audit, eventBus: eventBus}
}

func (s *promoService) Create(ctx context.Context, restaurantID, actor string, req *domain.CreatePromoRequest) (*domain.PromoCode, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	code, err := domain.GeneratePromoCode(req.Prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to generate promo code: %w", err)
	}

	promo, err := s.promos.Create(ctx, &domain.PromoCode{
		RestaurantID:     restaurantID,
		CampaignID:       req.CampaignID,
		Code:             code,
		DiscountType:     req.DiscountType,
		DiscountValue:    req.DiscountValue,
		MinSpend:         req.MinSpend,
		MaxRedemptions:   req.MaxRedemptions,
		PerCustomerLimit: req.PerCustomerLimit,
		ValidFrom:        req.ValidFrom,
		ValidUntil:       req.ValidUntil,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create promo code: %w", err)
	}

	s.recordAudit(ctx, restaurantID, actor, "create", promo.ID, promo.Code)
	return promo, nil
}

func (s *promoService) List(ctx context.Context, restaurantID string, limit, offset int) ([]domain.PromoCode, error) {
	return s.promos.List(ctx, restaurantID, limit, offset)
}

func (s *promoService) Deactivate(ctx context.Context, restaurantID, actor, id string) error {
	if err := s.promos.Deactivate(ctx, restaurantID, id); err != nil {
		return fmt.Errorf("failed to deactivate promo code: %w", err)
	}
	s.recordAudit(ctx, restaurantID, actor, "deactivate", id, "")
	return nil
}

func (s *promoService) Validate(ctx context.Context, restaurantID string, req *domain.RedeemPromoRequest) (*domain.RedeemPromoResult, error) {
	promo, err := s.promos.FindByCode(ctx, restaurantID, req.Code)
	if err != nil {
		return nil, fmt.Errorf("failed to look up promo code: %w", err)
	}
	if promo == nil || !promo.Active {
		return nil, fmt.Errorf("promo code is not valid")
	}

	now := time.Now()
	if promo.ValidFrom != nil && now.Before(*promo.ValidFrom) {
		return nil, fmt.Errorf("promo code is not active yet")
	}
	if promo.ValidUntil != nil && !now.Before(*promo.ValidUntil) {
		return nil, fmt.Errorf("promo code has expired")
	}
	if promo.MaxRedemptions > 0 && promo.Redemptions >= promo.MaxRedemptions {
		return nil, fmt.Errorf("promo code is fully redeemed")
	}
	if req.OrderAmount < promo.MinSpend {
		return nil, fmt.Errorf("order does not meet the minimum spend of %.2f", promo.MinSpend)
	}

	discount := promo.Discount(req.OrderAmount)
	return &domain.RedeemPromoResult{
		PromoCodeID: promo.ID,
		Discount:    discount,
		FinalAmount: req.OrderAmount - discount,
	}, nil
}

func (s *promoService) Redeem(ctx context.Context, restaurantID string, req *domain.RedeemPromoRequest) (*domain.RedeemPromoResult, error) {
	if req.CustomerID == "" {
		return nil, fmt.Errorf("customer_id is required")
	}

	// Min spend is checked before the burn; the conditional update handles
	// everything that must be race-free.
	if _, err := s.Validate(ctx, restaurantID, req); err != nil {
		return nil, err
	}

	promo, redeemed, err := s.promos.Redeem(ctx, restaurantID, req.Code, req.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("failed to redeem promo code: %w", err)
	}
	if !redeemed {
		return nil, fmt.Errorf("promo code has no redemptions left")
	}

	discount := promo.Discount(req.OrderAmount)
	result := &domain.RedeemPromoResult{
		PromoCodeID: promo.ID,
		Discount:    discount,
		FinalAmount: req.OrderAmount - discount,
	}

	s.recordAudit(ctx, restaurantID, req.CustomerID, "redeem", promo.ID, promo.Code)
	s.publish(ctx, events.PromoRedeemed, events.PromoRedeemedEvent{
		PromoCodeID:     promo.ID,
		RestaurantID:    restaurantID,
		CustomerID:      req.CustomerID,
		OrderAmount:     req.OrderAmount,
		DiscountApplied: discount,
		RedeemedAt:      time.Now(),
	})

	return result, nil
}

func (s *promoService) recordAudit(ctx context.Context, restaurantID, actor, action, promoID, detail string) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, &domain.AuditEntry{
		RestaurantID: restaurantID,
		Actor:        actor,
		Action:       action,
		EntityType:   "promo_code",
		EntityID:     promoID,
		Detail:       detail,
	})
	if err != nil {
		logger.ErrorContext(ctx, "Failed to record audit entry", "error", err, "promo_id", promoID)
	}
}

func (s *promoService) publish(ctx context.Context, subject string, payload interface{}) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.Publish(ctx, subject, payload); err != nil {
		logger.ErrorContext(ctx, "Failed to publish event", "error", err, "subject", subject)
	}
}
