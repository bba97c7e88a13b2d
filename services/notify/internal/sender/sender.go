package sender

import (
	"context"

	"github.com/opskap1/temnos/pkg/config"
	"github.com/opskap1/temnos/services/notify/internal/domain"
)

// Message is a rendered, ready-to-deliver notification.
type Message struct {
	Recipient string
	Subject   string
	Body      string
}

// Sender delivers messages on one channel.
type Sender interface {
	Send(ctx context.Context, msg *Message) error
}

// Registry maps each supported channel to its sender.
type Registry map[domain.Channel]Sender

// NewRegistry wires the channel senders from config. Email picks the dev,
// MailerSend, or SMTP transport in that order; whatsapp and sms run against
// their provider gateways when credentials are present and log-only
// otherwise.
func NewRegistry(cfg *config.Config) Registry {
	return Registry{
		domain.ChannelEmail:    newEmailSender(cfg.Email),
		domain.ChannelWhatsApp: NewWhatsAppSender(cfg.Channels),
		domain.ChannelSMS:      NewSMSSender(cfg.Channels),
	}
}
