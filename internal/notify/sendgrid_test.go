package notify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sendGridPayload struct {
	From struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	} `json:"from"`
	Subject          string `json:"subject"`
	Personalizations []struct {
		To []struct {
			Email string `json:"email"`
		} `json:"to"`
		BCC []struct {
			Email string `json:"email"`
		} `json:"bcc"`
	} `json:"personalizations"`
	Content []struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	} `json:"content"`
	Attachments []struct {
		Content  string `json:"content"`
		Type     string `json:"type"`
		Filename string `json:"filename"`
	} `json:"attachments"`
}

func TestSendGridSend(t *testing.T) {
	var payload sendGridPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer SG.test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	sender := NewSendGridSender(SendGridConfig{
		APIKey:    "SG.test",
		BaseURL:   server.URL + "/v3/mail/send",
		FromEmail: "hola@example.com",
		FromName:  "Red de Terapia",
	}, zerolog.Nop())
	require.NotNil(t, sender)

	err := sender.Send(context.Background(), EmailMessage{
		To:      "ana@example.com",
		ToName:  "Ana",
		BCC:     "records@example.com",
		Subject: "Your session is booked",
		Body:    "plain",
		HTML:    "<p>html</p>",
		Attachments: []Attachment{{
			Filename:    "session.ics",
			ContentType: "text/calendar",
			Content:     []byte("BEGIN:VCALENDAR"),
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, "hola@example.com", payload.From.Email)
	assert.Equal(t, "Your session is booked", payload.Subject)
	require.Len(t, payload.Personalizations, 1)
	assert.Equal(t, "ana@example.com", payload.Personalizations[0].To[0].Email)
	require.Len(t, payload.Personalizations[0].BCC, 1)
	assert.Equal(t, "records@example.com", payload.Personalizations[0].BCC[0].Email)
	require.Len(t, payload.Content, 2)
	assert.Equal(t, "text/plain", payload.Content[0].Type)
	require.Len(t, payload.Attachments, 1)
	assert.Equal(t, "session.ics", payload.Attachments[0].Filename)
	decoded, err := base64.StdEncoding.DecodeString(payload.Attachments[0].Content)
	require.NoError(t, err)
	assert.Equal(t, "BEGIN:VCALENDAR", string(decoded))
}

func TestSendGridErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errors":[{"message":"bad key"}]}`))
	}))
	defer server.Close()

	sender := NewSendGridSender(SendGridConfig{APIKey: "SG.bad", BaseURL: server.URL}, zerolog.Nop())
	err := sender.Send(context.Background(), EmailMessage{To: "ana@example.com", Subject: "x", Body: "y"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestNewSendGridSenderWithoutKey(t *testing.T) {
	assert.Nil(t, NewSendGridSender(SendGridConfig{}, zerolog.Nop()))

	var sender *SendGridSender
	assert.Error(t, sender.Send(context.Background(), EmailMessage{}))
}
