package domain

import (
	"fmt"
	"strings"
	"time"
)

type CampaignType string

const (
	TypeOneTime   CampaignType = "one_time"
	TypeScheduled CampaignType = "scheduled"
	TypeRecurring CampaignType = "recurring"
	TypeABTest    CampaignType = "ab_test"
)

type CampaignStatus string

const (
	StatusDraft     CampaignStatus = "draft"
	StatusScheduled CampaignStatus = "scheduled"
	StatusSending   CampaignStatus = "sending"
	StatusSent      CampaignStatus = "sent"
	StatusCancelled CampaignStatus = "cancelled"
	StatusPaused    CampaignStatus = "paused"
)

type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelSMS      Channel = "sms"
)

type Audience string

const (
	AudienceAll       Audience = "all"
	AudienceTagged    Audience = "tagged"
	AudienceLastOrder Audience = "last_order"
)

type Campaign struct {
	ID           string         `json:"id"`
	RestaurantID string         `json:"restaurant_id"`
	Name         string         `json:"name"`
	Type         CampaignType   `json:"type"`
	Status       CampaignStatus `json:"status"`
	Channel      Channel        `json:"channel"`
	Subject      string         `json:"subject,omitempty"`
	Body         string         `json:"body"`
	Audience     Audience       `json:"audience"`
	AudienceTags []string       `json:"audience_tags,omitempty"`
	// LastOrderDays narrows the audience to customers whose latest order is
	// at most this many days old. Only meaningful for AudienceLastOrder.
	LastOrderDays int        `json:"last_order_days,omitempty"`
	ScheduledAt   *time.Time `json:"scheduled_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type CreateCampaignRequest struct {
	Name          string       `json:"name"`
	Type          CampaignType `json:"type"`
	Channel       Channel      `json:"channel"`
	Subject       string       `json:"subject,omitempty"`
	Body          string       `json:"body"`
	Audience      Audience     `json:"audience"`
	AudienceTags  []string     `json:"audience_tags,omitempty"`
	LastOrderDays int          `json:"last_order_days,omitempty"`
	ScheduledAt   *time.Time   `json:"scheduled_at,omitempty"`
}

var validTypes = map[CampaignType]bool{
	TypeOneTime:   true,
	TypeScheduled: true,
	TypeRecurring: true,
	TypeABTest:    true,
}

var validChannels = map[Channel]bool{
	ChannelEmail:    true,
	ChannelWhatsApp: true,
	ChannelSMS:      true,
}

var validAudiences = map[Audience]bool{
	AudienceAll:       true,
	AudienceTagged:    true,
	AudienceLastOrder: true,
}

// transitions holds the allowed status moves. Anything absent is rejected;
// sent and cancelled are terminal.
var transitions = map[CampaignStatus][]CampaignStatus{
	StatusDraft:     {StatusScheduled, StatusSending, StatusCancelled},
	StatusScheduled: {StatusPaused, StatusSending, StatusCancelled},
	StatusPaused:    {StatusScheduled, StatusCancelled},
	StatusSending:   {StatusSent},
}

func CanTransition(from, to CampaignStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (r *CreateCampaignRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Subject = strings.TrimSpace(r.Subject)
	if r.Audience == "" {
		r.Audience = AudienceAll
	}
}

func (r *CreateCampaignRequest) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !validTypes[r.Type] {
		return fmt.Errorf("invalid campaign type: %s", r.Type)
	}
	if !validChannels[r.Channel] {
		return fmt.Errorf("invalid channel: %s", r.Channel)
	}
	if r.Body == "" {
		return fmt.Errorf("body is required")
	}
	if r.Channel == ChannelEmail && r.Subject == "" {
		return fmt.Errorf("subject is required for email campaigns")
	}
	if !validAudiences[r.Audience] {
		return fmt.Errorf("invalid audience: %s", r.Audience)
	}
	if r.Audience == AudienceTagged && len(r.AudienceTags) == 0 {
		return fmt.Errorf("audience_tags is required for a tagged audience")
	}
	if r.Audience == AudienceLastOrder && r.LastOrderDays <= 0 {
		return fmt.Errorf("last_order_days must be positive for a last_order audience")
	}
	if r.Type == TypeScheduled && r.ScheduledAt == nil {
		return fmt.Errorf("scheduled_at is required for scheduled campaigns")
	}
	return nil
}
