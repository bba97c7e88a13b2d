package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/opskap1/temnos/pkg/logger"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Close() error
}

type Subscriber interface {
	Subscribe(subject string, handler func(msg *Message)) error
	QueueSubscribe(subject, queue string, handler func(msg *Message)) error
	Close() error
}

type EventBus interface {
	Publisher
	Subscriber
}

type Message struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	ID        string
}

type NATSEventBus struct {
	conn *nats.Conn
}

func NewNATSEventBus(url string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSEventBus{conn: conn}, nil
}

func (n *NATSEventBus) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	logger.DebugContext(ctx, "Publishing event", "subject", subject, "data", string(payload))

	return n.conn.Publish(subject, payload)
}

func (n *NATSEventBus) Subscribe(subject string, handler func(msg *Message)) error {
	_, err := n.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
			ID:        fmt.Sprintf("%d", time.Now().UnixNano()),
		})
	})
	return err
}

func (n *NATSEventBus) QueueSubscribe(subject, queue string, handler func(msg *Message)) error {
	_, err := n.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
			ID:        fmt.Sprintf("%d", time.Now().UnixNano()),
		})
	})
	return err
}

func (n *NATSEventBus) Close() error {
	n.conn.Close()
	return nil
}

// Event subjects
const (
	// QR token events
	TokenIssued   = "token.issued"
	TokenConsumed = "token.consumed"
	TokenSwept    = "token.swept"

	// Campaign events
	CampaignCreated           = "campaign.created"
	CampaignScheduled         = "campaign.scheduled"
	CampaignCancelled         = "campaign.cancelled"
	CampaignDispatchRequested = "campaign.dispatch.requested"

	// Promo events
	PromoRedeemed = "promo.redeemed"

	// Starter pack order events
	OrderCreated       = "order.created"
	OrderPaymentStatus = "order.payment.status"
	OrderStatusChanged = "order.status.changed"

	// Notification events
	NotifySend = "notify.send"
)

// Event payloads
type TokenIssuedEvent struct {
	TokenID      string    `json:"token_id"`
	RestaurantID string    `json:"restaurant_id"`
	CustomerID   string    `json:"customer_id"`
	RewardID     string    `json:"reward_id,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	IssuedAt     time.Time `json:"issued_at"`
}

type TokenConsumedEvent struct {
	TokenID      string    `json:"token_id"`
	RestaurantID string    `json:"restaurant_id"`
	CustomerID   string    `json:"customer_id"`
	RewardID     string    `json:"reward_id,omitempty"`
	ConsumedAt   time.Time `json:"consumed_at"`
}

type CampaignDispatchRequestedEvent struct {
	CampaignID   string `json:"campaign_id"`
	RestaurantID string `json:"restaurant_id"`
	TestMode     bool   `json:"test_mode"`
	TestPhone    string `json:"test_phone,omitempty"`
	RequestedBy  string `json:"requested_by,omitempty"`
}

type PromoRedeemedEvent struct {
	PromoCodeID     string    `json:"promo_code_id"`
	RestaurantID    string    `json:"restaurant_id"`
	CustomerID      string    `json:"customer_id"`
	OrderAmount     float64   `json:"order_amount"`
	DiscountApplied float64   `json:"discount_applied"`
	RedeemedAt      time.Time `json:"redeemed_at"`
}

type OrderCreatedEvent struct {
	OrderID      string    `json:"order_id"`
	UserID       int64     `json:"user_id"`
	RestaurantID string    `json:"restaurant_id,omitempty"`
	TotalCost    float64   `json:"total_cost"`
	CreatedAt    time.Time `json:"created_at"`
}

type OrderStatusChangedEvent struct {
	OrderID   string    `json:"order_id"`
	Status    string    `json:"status"`
	ChangedAt time.Time `json:"changed_at"`
}

type NotificationEvent struct {
	Channel      string                 `json:"channel"` // email, whatsapp, sms
	Recipient    string                 `json:"recipient"`
	Subject      string                 `json:"subject,omitempty"`
	Template     string                 `json:"template"`
	Variables    map[string]interface{} `json:"variables,omitempty"`
	RestaurantID string                 `json:"restaurant_id,omitempty"`
	CustomerID   string                 `json:"customer_id,omitempty"`
}
