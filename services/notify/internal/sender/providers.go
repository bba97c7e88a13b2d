package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/opskap1/temnos/pkg/config"
	"github.com/opskap1/temnos/pkg/logger"
)

// providerSender posts messages to an HTTP messaging gateway. Without
// credentials it degrades to log-only delivery so development environments
// work with no provider account.
type providerSender struct {
	name     string
	endpoint string
	apiKey   string
	sender   string
	client   *http.Client
}

func NewWhatsAppSender(cfg config.ChannelsConfig) Sender {
	return &providerSender{
		name:     "whatsapp",
		endpoint: "https://graph.facebook.com/v18.0/messages",
		apiKey:   cfg.WhatsAppAPIKey,
		sender:   cfg.WhatsAppSender,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func NewSMSSender(cfg config.ChannelsConfig) Sender {
	return &providerSender{
		name:     "sms",
		endpoint: "https://rest.clicksend.com/v3/sms/send",
		apiKey:   cfg.SMSAPIKey,
		sender:   cfg.SMSSender,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *providerSender) Send(ctx context.Context, msg *Message) error {
	if msg.Recipient == "" {
		return fmt.Errorf("empty recipient phone")
	}

	if s.apiKey == "" {
		logger.InfoContext(ctx, "[DEV "+s.name+"] Campaign message",
			"to", msg.Recipient,
			"body_len", len(msg.Body),
		)
		return nil
	}

	payload, err := json.Marshal(map[string]string{
		"from": s.sender,
		"to":   msg.Recipient,
		"body": msg.Body,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s provider request failed: %w", s.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s provider returned status %d", s.name, resp.StatusCode)
	}
	return nil
}
