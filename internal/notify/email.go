package notify

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
)

// EmailSender defines the interface for sending emails.
// Implementations can be swapped (SendGrid, SMTP) without changing callers.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage represents an email to be sent.
type EmailMessage struct {
	To          string
	ToName      string
	BCC         string
	Subject     string
	Body        string // Plain text body
	HTML        string // Optional HTML body
	Attachments []Attachment
}

// EmailConfig selects and configures the email provider.
type EmailConfig struct {
	SendGridAPIKey string
	SendGridURL    string
	SMTPHost       string
	SMTPPort       int
	SMTPUsername   string
	SMTPPassword   string
	FromEmail      string
	FromName       string
}

// NewEmailSender prefers the SendGrid API when a key is configured, falls
// back to SMTP submission when a host is configured, and otherwise logs
// messages without sending them.
func NewEmailSender(cfg EmailConfig, logger zerolog.Logger) EmailSender {
	switch {
	case cfg.SendGridAPIKey != "":
		logger.Info().Msg("email provider: sendgrid")
		return NewSendGridSender(SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			BaseURL:   cfg.SendGridURL,
			FromEmail: cfg.FromEmail,
			FromName:  cfg.FromName,
		}, logger)
	case cfg.SMTPHost != "":
		logger.Info().Str("host", cfg.SMTPHost).Int("port", cfg.SMTPPort).Msg("email provider: smtp")
		return NewSMTPSender(SMTPConfig{
			Host:      cfg.SMTPHost,
			Port:      cfg.SMTPPort,
			Username:  cfg.SMTPUsername,
			Password:  cfg.SMTPPassword,
			FromEmail: cfg.FromEmail,
			FromName:  cfg.FromName,
		}, logger)
	default:
		logger.Warn().Msg("no email provider configured, using stub sender")
		return NewStubEmailSender(logger)
	}
}

// EmailChannel delivers the email rendition of a message.
type EmailChannel struct {
	sender EmailSender
	bcc    string
}

// NewEmailChannel builds the channel. bcc, when set, receives a copy of
// every email.
func NewEmailChannel(sender EmailSender, bcc string) *EmailChannel {
	return &EmailChannel{sender: sender, bcc: bcc}
}

func (c *EmailChannel) Name() string { return "email" }

func (c *EmailChannel) Send(ctx context.Context, to Recipient, msg Message) error {
	addr := strings.TrimSpace(to.Email)
	if addr == "" {
		return ErrNoAddress
	}

	email := EmailMessage{
		To:      addr,
		ToName:  to.Name,
		Subject: msg.Subject,
		Body:    msg.Text,
		HTML:    msg.HTML,
	}
	if c.bcc != "" && !strings.EqualFold(c.bcc, addr) {
		email.BCC = c.bcc
	}
	if msg.Attachment != nil {
		email.Attachments = []Attachment{*msg.Attachment}
	}

	return c.sender.Send(ctx, email)
}

// StubEmailSender is a no-op sender for testing or when email is disabled.
type StubEmailSender struct {
	logger zerolog.Logger
}

// NewStubEmailSender creates a stub email sender that logs but doesn't send.
func NewStubEmailSender(logger zerolog.Logger) *StubEmailSender {
	return &StubEmailSender{logger: logger}
}

// Send logs the email but doesn't actually send it.
func (s *StubEmailSender) Send(ctx context.Context, msg EmailMessage) error {
	s.logger.Info().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Int("attachments", len(msg.Attachments)).
		Msg("stub email sender: would send email")
	return nil
}
