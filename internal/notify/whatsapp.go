package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const twilioAPIBase = "https://api.twilio.com"

// WhatsAppSender sends a text message to an E.164 number.
type WhatsAppSender interface {
	SendWhatsApp(ctx context.Context, to, body string) error
}

// TwilioWhatsAppSender posts WhatsApp messages using Twilio's REST API.
type TwilioWhatsAppSender struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	// From is the sender number in E.164, with or without the whatsapp: prefix.
	From    string
	BaseURL string
}

// NewTwilioWhatsAppSender builds a sender with sane defaults.
func NewTwilioWhatsAppSender(cfg TwilioConfig, logger zerolog.Logger) *TwilioWhatsAppSender {
	if cfg.BaseURL == "" {
		cfg.BaseURL = twilioAPIBase
	}
	return &TwilioWhatsAppSender{
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		from:       whatsappAddress(cfg.From),
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

func whatsappAddress(number string) string {
	number = strings.TrimSpace(number)
	if number == "" || strings.HasPrefix(number, "whatsapp:") {
		return number
	}
	return "whatsapp:" + number
}

// SendWhatsApp makes a single attempt; a failed message is picked up again by
// whatever scan produced it.
func (s *TwilioWhatsAppSender) SendWhatsApp(ctx context.Context, to, body string) error {
	if s.accountSID == "" || s.authToken == "" {
		return errors.New("notify: twilio credentials missing")
	}
	if s.from == "" {
		return errors.New("notify: whatsapp from number required")
	}
	if to == "" {
		return errors.New("notify: to required")
	}
	if strings.TrimSpace(body) == "" {
		return errors.New("notify: body required")
	}

	payload := url.Values{}
	payload.Set("To", whatsappAddress(to))
	payload.Set("From", s.from)
	payload.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", s.baseURL, s.accountSID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(payload.Encode()))
	if err != nil {
		return fmt.Errorf("notify: build twilio request: %w", err)
	}
	req.SetBasicAuth(s.accountSID, s.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notify: twilio request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notify: twilio send failed: %s", formatTwilioError(resp.StatusCode, respBody))
	}

	var parsed struct {
		SID    string `json:"sid"`
		Status string `json:"status"`
	}
	_ = json.Unmarshal(respBody, &parsed)
	s.logger.Info().Str("to", to).Str("sid", parsed.SID).Str("status", parsed.Status).Msg("whatsapp message sent")
	return nil
}

type twilioAPIError struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
	Status   int    `json:"status"`
}

func formatTwilioError(status int, body []byte) string {
	body = []byte(strings.TrimSpace(string(body)))
	if len(body) == 0 {
		return fmt.Sprintf("status %d", status)
	}
	var parsed twilioAPIError
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Message != "" {
		if parsed.Code != 0 {
			return fmt.Sprintf("status %d code %d: %s", status, parsed.Code, parsed.Message)
		}
		return fmt.Sprintf("status %d: %s", status, parsed.Message)
	}
	return fmt.Sprintf("status %d: %s", status, string(body))
}

// WhatsAppChannel delivers the short rendition of a message.
type WhatsAppChannel struct {
	sender WhatsAppSender
	region string
	logger zerolog.Logger
}

func NewWhatsAppChannel(sender WhatsAppSender, region string, logger zerolog.Logger) *WhatsAppChannel {
	if region == "" {
		region = DefaultPhoneRegion
	}
	return &WhatsAppChannel{sender: sender, region: region, logger: logger}
}

func (c *WhatsAppChannel) Name() string { return "whatsapp" }

func (c *WhatsAppChannel) Send(ctx context.Context, to Recipient, msg Message) error {
	if strings.TrimSpace(to.Phone) == "" {
		return ErrNoAddress
	}
	number, err := NormalizeE164(to.Phone, c.region)
	if err != nil {
		c.logger.Debug().Str("role", string(to.Role)).Msg("phone number not normalizable, skipping whatsapp")
		return ErrNoAddress
	}
	body := msg.Short
	if body == "" {
		body = msg.Text
	}
	return c.sender.SendWhatsApp(ctx, number, body)
}
