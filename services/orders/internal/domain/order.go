package domain

import (
	"fmt"
	"strings"
	"time"
)

type OrderStatus string

const (
	StatusPending        OrderStatus = "pending"
	StatusReceived       OrderStatus = "received"
	StatusPreparing      OrderStatus = "preparing"
	StatusConfiguring    OrderStatus = "configuring"
	StatusOutForDelivery OrderStatus = "out_for_delivery"
	StatusDelivered      OrderStatus = "delivered"
)

// statusOrder defines the fulfilment pipeline; an order only ever moves
// forward through it.
var statusOrder = []OrderStatus{
	StatusPending,
	StatusReceived,
	StatusPreparing,
	StatusConfiguring,
	StatusOutForDelivery,
	StatusDelivered,
}

func StatusIndex(s OrderStatus) int {
	for i, candidate := range statusOrder {
		if candidate == s {
			return i
		}
	}
	return -1
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// Pricing in AED. The base pack is waived on the first order for owners
// holding an active paid subscription.
const (
	BasePackCost = 50
	TabletCost   = 499
)

type DeliveryAddress struct {
	Line1         string `json:"address_line1"`
	Line2         string `json:"address_line2,omitempty"`
	City          string `json:"city"`
	Emirate       string `json:"emirate"`
	ContactNumber string `json:"contact_number"`
}

func (a *DeliveryAddress) Validate() error {
	if strings.TrimSpace(a.Line1) == "" {
		return fmt.Errorf("address_line1 is required")
	}
	if strings.TrimSpace(a.City) == "" {
		return fmt.Errorf("city is required")
	}
	if strings.TrimSpace(a.Emirate) == "" {
		return fmt.Errorf("emirate is required")
	}
	if strings.TrimSpace(a.ContactNumber) == "" {
		return fmt.Errorf("contact_number is required")
	}
	return nil
}

type Order struct {
	ID                string               `json:"id"`
	OwnerID           int64                `json:"owner_id"`
	RestaurantID      string               `json:"restaurant_id"`
	RestaurantName    string               `json:"restaurant_name,omitempty"`
	Status            OrderStatus          `json:"order_status"`
	IncludesTablet    bool                 `json:"includes_tablet"`
	BasePackCost      float64              `json:"base_pack_cost"`
	TabletCost        float64              `json:"tablet_cost"`
	TotalCost         float64              `json:"total_cost"`
	PaymentStatus     PaymentStatus        `json:"payment_status"`
	PaymentIntentID   string               `json:"stripe_payment_intent_id,omitempty"`
	IsFirstFreeOrder  bool                 `json:"is_first_free_order"`
	Address           DeliveryAddress      `json:"delivery_address"`
	ProofOfDelivery   string               `json:"proof_of_delivery_url,omitempty"`
	EstimatedDelivery *time.Time           `json:"estimated_delivery,omitempty"`
	DeliveredAt       *time.Time           `json:"delivered_at,omitempty"`
	StatusTimestamps  map[string]time.Time `json:"status_timestamps,omitempty"`
	CreatedAt         time.Time            `json:"created_at"`
	UpdatedAt         time.Time            `json:"updated_at"`
}

type CreateOrderRequest struct {
	IncludesTablet bool            `json:"includes_tablet"`
	Address        DeliveryAddress `json:"delivery_address"`
}

type Quote struct {
	BasePackCost   float64 `json:"base_pack_cost"`
	TabletCost     float64 `json:"tablet_cost"`
	TotalCost      float64 `json:"total_cost"`
	FirstOrderFree bool    `json:"first_order_free"`
}

// PriceOrder applies the pricing rules: the base pack is free only on a
// first order backed by an active paid subscription; the tablet is always
// charged when included.
func PriceOrder(firstOrder, paidSubscription, includesTablet bool) Quote {
	q := Quote{BasePackCost: BasePackCost}
	if firstOrder && paidSubscription {
		q.BasePackCost = 0
		q.FirstOrderFree = true
	}
	if includesTablet {
		q.TabletCost = TabletCost
	}
	q.TotalCost = q.BasePackCost + q.TabletCost
	return q
}

// EstimateDelivery promises same-day delivery nine hours out for orders
// placed before 17:00, next business day at 10:00 otherwise. Weekends roll
// forward to Monday.
func EstimateDelivery(orderedAt time.Time) time.Time {
	eta := orderedAt
	if orderedAt.Hour() >= 17 {
		eta = time.Date(eta.Year(), eta.Month(), eta.Day()+1, 10, 0, 0, 0, eta.Location())
	} else {
		eta = time.Date(eta.Year(), eta.Month(), eta.Day(), eta.Hour()+9, 0, 0, 0, eta.Location())
	}
	for eta.Weekday() == time.Saturday || eta.Weekday() == time.Sunday {
		eta = time.Date(eta.Year(), eta.Month(), eta.Day()+1, 10, 0, 0, 0, eta.Location())
	}
	return eta
}

// CanAdvance reports whether an order may move from one status to another.
// Backward moves and skips of the delivered gate are rejected; forward skips
// within the pipeline are allowed so support can fast-track an order.
func CanAdvance(from, to OrderStatus) bool {
	fromIdx, toIdx := StatusIndex(from), StatusIndex(to)
	if fromIdx < 0 || toIdx < 0 {
		return false
	}
	return toIdx > fromIdx
}
