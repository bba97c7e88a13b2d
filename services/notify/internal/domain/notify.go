package domain

type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelSMS      Channel = "sms"
)

// Campaign is the slice of a campaign row the dispatcher needs to deliver
// it. The campaigns service owns the full shape.
type Campaign struct {
	ID             string
	RestaurantID   string
	RestaurantName string
	Channel        Channel
	Subject        string
	Body           string
	Audience       string
	AudienceTags   []string
	LastOrderDays  int
	Status         string
	PromoCode      string
}

// Recipient is one deliverable audience member.
type Recipient struct {
	CustomerID string
	Name       string
	Email      string
	Phone      string
}

// Address returns the recipient's address on the given channel, or empty
// when the customer has none.
func (r *Recipient) Address(ch Channel) string {
	if ch == ChannelEmail {
		return r.Email
	}
	return r.Phone
}

// DispatchResult summarizes one campaign delivery run.
type DispatchResult struct {
	CampaignID string `json:"campaign_id"`
	Sent       int    `json:"sent"`
	Failed     int    `json:"failed"`
	Skipped    int    `json:"skipped"`
	TestMode   bool   `json:"test_mode"`
}
