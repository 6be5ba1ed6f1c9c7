package notify

import (
	"bytes"
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/wneessen/go-mail"
)

// SMTPConfig holds the mail submission settings.
type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
}

// SMTPSender submits mail directly to an SMTP server.
type SMTPSender struct {
	cfg    SMTPConfig
	logger zerolog.Logger
}

func NewSMTPSender(cfg SMTPConfig, logger zerolog.Logger) *SMTPSender {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.FromName == "" {
		cfg.FromName = "Therapy Booking"
	}
	return &SMTPSender{cfg: cfg, logger: logger}
}

func (s *SMTPSender) buildMessage(msg EmailMessage) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.FromFormat(s.cfg.FromName, s.cfg.FromEmail); err != nil {
		return nil, fmt.Errorf("notify: invalid from address: %w", err)
	}
	if err := m.AddToFormat(msg.ToName, msg.To); err != nil {
		return nil, fmt.Errorf("notify: invalid recipient %q: %w", msg.To, err)
	}
	if msg.BCC != "" {
		if err := m.Bcc(msg.BCC); err != nil {
			return nil, fmt.Errorf("notify: invalid bcc %q: %w", msg.BCC, err)
		}
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)
	if msg.HTML != "" {
		m.AddAlternativeString(mail.TypeTextHTML, msg.HTML)
	}
	for _, att := range msg.Attachments {
		m.AttachReadSeeker(att.Filename, bytes.NewReader(att.Content),
			mail.WithFileContentType(mail.ContentType(att.ContentType)))
	}
	return m, nil
}

func (s *SMTPSender) Send(ctx context.Context, msg EmailMessage) error {
	m, err := s.buildMessage(msg)
	if err != nil {
		return err
	}

	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}
	if s.cfg.Port == 465 {
		opts = append(opts, mail.WithSSL())
	}

	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("notify: smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		s.logger.Error().Err(err).Str("to", msg.To).Msg("smtp send failed")
		return fmt.Errorf("notify: smtp send failed: %w", err)
	}

	s.logger.Info().Str("to", msg.To).Str("subject", msg.Subject).Msg("email sent via smtp")
	return nil
}
