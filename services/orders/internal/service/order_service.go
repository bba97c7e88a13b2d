package service

import (
	"context"
	"fmt"
	"time"

	"github.com/opskap1/temnos/pkg/events"
	"github.com/opskap1/temnos/pkg/logger"
	"github.com/opskap1/temnos/services/orders/internal/domain"
	"github.com/opskap1/temnos/services/orders/internal/payments"
	"github.com/opskap1/temnos/services/orders/internal/repository"
)

// CreateOrderResult carries the order plus the payment intent the client
// must confirm when the order is not free.
type CreateOrderResult struct {
	Order  *domain.Order    `json:"order"`
	Intent *payments.Intent `json:"payment,omitempty"`
}

type OrderService interface {
	Create(ctx context.Context, ownerID int64, restaurantID, restaurantName string, req *domain.CreateOrderRequest) (*CreateOrderResult, error)
	Quote(ctx context.Context, ownerID int64, includesTablet bool) (*domain.Quote, error)
	Get(ctx context.Context, ownerID int64, isAdmin bool, id string) (*domain.Order, error)
	ListByOwner(ctx context.Context, ownerID int64, limit, offset int) ([]domain.Order, error)
	ListAll(ctx context.Context, limit, offset int) ([]domain.Order, error)
	// AdvanceStatus moves an order forward through the fulfilment pipeline.
	AdvanceStatus(ctx context.Context, id string, to domain.OrderStatus) (*domain.Order, error)
	SetProofOfDelivery(ctx context.Context, id, url string) error
	// HandlePaymentResult records the outcome reported by the payment
	// provider's webhook.
	HandlePaymentResult(ctx context.Context, paymentIntentID string, succeeded bool) error
}

type orderService struct {
	orders   repository.OrderRepository
	provider payments.Provider
	eventBus events.EventBus
}

func NewOrderService(orders repository.OrderRepository, provider payments.Provider, eventBus events.EventBus) OrderService {
	return &orderService{orders: orders, provider: provider, eventBus: eventBus}
}

func (s *orderService) Create(ctx context.Context, ownerID int64, restaurantID, restaurantName string, req *domain.CreateOrderRequest) (*CreateOrderResult, error) {
	if err := req.Address.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	quote, err := s.Quote(ctx, ownerID, req.IncludesTablet)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	eta := domain.EstimateDelivery(now)

	// A free order needs no payment, so it is completed on the spot.
	paymentStatus := domain.PaymentPending
	if quote.TotalCost == 0 {
		paymentStatus = domain.PaymentCompleted
	}

	order, err := s.orders.Create(ctx, &domain.Order{
		OwnerID:           ownerID,
		RestaurantID:      restaurantID,
		RestaurantName:    restaurantName,
		Status:            domain.StatusReceived,
		IncludesTablet:    req.IncludesTablet,
		BasePackCost:      quote.BasePackCost,
		TabletCost:        quote.TabletCost,
		TotalCost:         quote.TotalCost,
		PaymentStatus:     paymentStatus,
		IsFirstFreeOrder:  quote.FirstOrderFree,
		Address:           req.Address,
		EstimatedDelivery: &eta,
		StatusTimestamps: map[string]time.Time{
			string(domain.StatusReceived): now,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	result := &CreateOrderResult{Order: order}

	if quote.TotalCost > 0 {
		intent, err := s.provider.CreateIntent(ctx, order.ID, int64(quote.TotalCost*100))
		if err != nil {
			return nil, fmt.Errorf("failed to start payment: %w", err)
		}
		if err := s.orders.SetPaymentIntent(ctx, order.ID, intent.ID); err != nil {
			return nil, fmt.Errorf("failed to attach payment intent: %w", err)
		}
		order.PaymentIntentID = intent.ID
		result.Intent = intent
	}

	s.publish(ctx, events.OrderCreated, events.OrderCreatedEvent{
		OrderID:      order.ID,
		UserID:       ownerID,
		RestaurantID: restaurantID,
		TotalCost:    order.TotalCost,
		CreatedAt:    order.CreatedAt,
	})

	return result, nil
}

func (s *orderService) Quote(ctx context.Context, ownerID int64, includesTablet bool) (*domain.Quote, error) {
	hasOrder, err := s.orders.HasCompletedOrder(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to check order history: %w", err)
	}
	paidSub, err := s.orders.HasActivePaidSubscription(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to check subscription: %w", err)
	}

	quote := domain.PriceOrder(!hasOrder, paidSub, includesTablet)
	return &quote, nil
}

func (s *orderService) Get(ctx context.Context, ownerID int64, isAdmin bool, id string) (*domain.Order, error) {
	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find order: %w", err)
	}
	if order == nil {
		return nil, nil
	}
	if !isAdmin && order.OwnerID != ownerID {
		return nil, nil
	}
	return order, nil
}

func (s *orderService) ListByOwner(ctx context.Context, ownerID int64, limit, offset int) ([]domain.Order, error) {
	return s.orders.ListByOwner(ctx, ownerID, limit, offset)
}

func (s *orderService) ListAll(ctx context.Context, limit, offset int) ([]domain.Order, error) {
	return s.orders.ListAll(ctx, limit, offset)
}

func (s *orderService) AdvanceStatus(ctx context.Context, id string, to domain.OrderStatus) (*domain.Order, error) {
	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find order: %w", err)
	}
	if order == nil {
		return nil, fmt.Errorf("order not found")
	}
	if !domain.CanAdvance(order.Status, to) {
		return nil, fmt.Errorf("cannot move order from %s to %s", order.Status, to)
	}

	moved, err := s.orders.UpdateStatus(ctx, id, order.Status, to, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}
	if !moved {
		return nil, fmt.Errorf("order status changed concurrently, retry")
	}

	s.publish(ctx, events.OrderStatusChanged, events.OrderStatusChangedEvent{
		OrderID:   id,
		Status:    string(to),
		ChangedAt: time.Now(),
	})

	return s.orders.FindByID(ctx, id)
}

func (s *orderService) SetProofOfDelivery(ctx context.Context, id, url string) error {
	if err := s.orders.SetProofOfDelivery(ctx, id, url); err != nil {
		return fmt.Errorf("failed to record proof of delivery: %w", err)
	}
	return nil
}

func (s *orderService) HandlePaymentResult(ctx context.Context, paymentIntentID string, succeeded bool) error {
	order, err := s.orders.FindByPaymentIntent(ctx, paymentIntentID)
	if err != nil {
		return fmt.Errorf("failed to find order for payment intent: %w", err)
	}
	if order == nil {
		// Webhooks can race order creation or belong to another product;
		// acknowledge and move on.
		logger.WarnContext(ctx, "No order for payment intent", "payment_intent_id", paymentIntentID)
		return nil
	}

	status := domain.PaymentFailed
	if succeeded {
		status = domain.PaymentCompleted
	}
	if err := s.orders.UpdatePaymentStatus(ctx, order.ID, status); err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}

	s.publish(ctx, events.OrderPaymentStatus, map[string]string{
		"order_id":       order.ID,
		"payment_status": string(status),
	})
	return nil
}

func (s *orderService) publish(ctx context.Context, subject string, payload interface{}) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.Publish(ctx, subject, payload); err != nil {
		logger.ErrorContext(ctx, "Failed to publish event", "error", err, "subject", subject)
	}
}
