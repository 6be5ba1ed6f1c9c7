package notify

import (
	"errors"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultPhoneRegion is used for numbers written without a country code.
const DefaultPhoneRegion = "MX"

var ErrInvalidPhone = errors.New("notify: phone number cannot be normalized")

// NormalizeE164 parses a free-form phone number and returns it in E.164
// format. Numbers without a leading + are read in region.
func NormalizeE164(raw, region string) (string, error) {
	raw = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "whatsapp:"))
	if raw == "" {
		return "", ErrInvalidPhone
	}
	if region == "" {
		region = DefaultPhoneRegion
	}
	if strings.HasPrefix(raw, "00") {
		raw = "+" + raw[2:]
	}

	num, err := phonenumbers.Parse(raw, strings.ToUpper(region))
	if err != nil {
		return "", ErrInvalidPhone
	}
	if !phonenumbers.IsPossibleNumber(num) {
		return "", ErrInvalidPhone
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}
