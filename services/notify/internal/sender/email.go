package sender

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/mailersend/mailersend-go"

	"github.com/opskap1/temnos/pkg/config"
	"github.com/opskap1/temnos/pkg/logger"
)

func newEmailSender(cfg config.EmailConfig) Sender {
	if cfg.DevMode {
		return &devEmailSender{}
	}
	if cfg.MailerSendKey != "" {
		return &mailerSendSender{
			client: mailersend.NewMailersend(cfg.MailerSendKey),
			from:   mailersend.From{Name: cfg.FromName, Email: cfg.SMTPFrom},
		}
	}
	return &smtpSender{cfg: cfg}
}

type devEmailSender struct{}

func (s *devEmailSender) Send(ctx context.Context, msg *Message) error {
	logger.InfoContext(ctx, "[DEV MAIL] Campaign message",
		"to", msg.Recipient,
		"subject", msg.Subject,
	)

	fmt.Printf("\n"+
		"=================================================================\n"+
		"CAMPAIGN MESSAGE (DEV MODE)\n"+
		"=================================================================\n"+
		"To: %s\n"+
		"Subject: %s\n"+
		"\n"+
		"%s\n"+
		"=================================================================\n\n",
		msg.Recipient, msg.Subject, msg.Body)

	return nil
}

type mailerSendSender struct {
	client *mailersend.Mailersend
	from   mailersend.From
}

func (s *mailerSendSender) Send(ctx context.Context, msg *Message) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	m := s.client.Email.NewMessage()
	m.SetFrom(s.from)
	m.SetRecipients([]mailersend.Recipient{{Email: msg.Recipient}})
	m.SetSubject(msg.Subject)
	m.SetText(msg.Body)

	_, err := s.client.Email.Send(ctx, m)
	return err
}

type smtpSender struct {
	cfg config.EmailConfig
}

func (s *smtpSender) Send(ctx context.Context, msg *Message) error {
	recipient := strings.TrimSpace(msg.Recipient)
	if recipient == "" {
		return fmt.Errorf("empty recipient email")
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", s.cfg.SMTPFrom)
	fmt.Fprintf(&buf, "To: %s\r\n", recipient)
	fmt.Fprintf(&buf, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: text/plain; charset=utf-8\r\n\r\n")
	fmt.Fprintf(&buf, "%s\r\n", msg.Body)

	addr := fmt.Sprintf("%s:%d", s.cfg.SMTPHost, s.cfg.SMTPPort)

	// Mailpit or development SMTP (no auth, no TLS)
	if s.cfg.SMTPUser == "" {
		return smtp.SendMail(addr, nil, s.cfg.SMTPFrom, []string{recipient}, buf.Bytes())
	}

	auth := smtp.PlainAuth("", s.cfg.SMTPUser, s.cfg.SMTPPass, s.cfg.SMTPHost)
	return smtp.SendMail(addr, auth, s.cfg.SMTPFrom, []string{recipient}, buf.Bytes())
}
