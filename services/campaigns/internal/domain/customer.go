package domain

import "time"

type Customer struct {
	ID           string     `json:"id"`
	RestaurantID string     `json:"restaurant_id"`
	Name         string     `json:"name"`
	Email        string     `json:"email,omitempty"`
	Phone        string     `json:"phone,omitempty"`
	Tags         []string   `json:"tags,omitempty"`
	LastOrderAt  *time.Time `json:"last_order_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Consent records whether a customer accepts marketing on a channel. No row
// means no consent.
type Consent struct {
	CustomerID   string    `json:"customer_id"`
	RestaurantID string    `json:"restaurant_id"`
	Channel      Channel   `json:"channel"`
	Granted      bool      `json:"granted"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type AuditEntry struct {
	ID           int64     `json:"id"`
	RestaurantID string    `json:"restaurant_id"`
	Actor        string    `json:"actor"`
	Action       string    `json:"action"`
	EntityType   string    `json:"entity_type"`
	EntityID     string    `json:"entity_id"`
	Detail       string    `json:"detail,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
