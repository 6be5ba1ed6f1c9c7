package notify

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMTPBuildMessage(t *testing.T) {
	sender := NewSMTPSender(SMTPConfig{
		Host:      "smtp.example.com",
		FromEmail: "hola@example.com",
		FromName:  "Red de Terapia",
	}, zerolog.Nop())
	assert.Equal(t, 587, sender.cfg.Port)

	m, err := sender.buildMessage(EmailMessage{
		To:      "ana@example.com",
		ToName:  "Ana",
		BCC:     "records@example.com",
		Subject: "Session rescheduled",
		Body:    "Your session has moved.",
		HTML:    "<p>Your session has moved.</p>",
		Attachments: []Attachment{{
			Filename:    "session.ics",
			ContentType: "text/calendar; charset=utf-8; method=PUBLISH",
			Content:     []byte("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"),
		}},
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = m.WriteTo(&buf)
	require.NoError(t, err)

	raw := buf.String()
	assert.Contains(t, raw, "Subject: Session rescheduled")
	assert.Contains(t, raw, "ana@example.com")
	assert.Contains(t, raw, "hola@example.com")
	assert.Contains(t, raw, "session.ics")
	assert.Contains(t, raw, "text/html")
}

func TestSMTPBuildMessageInvalidRecipient(t *testing.T) {
	sender := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", FromEmail: "hola@example.com"}, zerolog.Nop())

	_, err := sender.buildMessage(EmailMessage{To: "not an address", Subject: "x", Body: "y"})
	assert.Error(t, err)
}
