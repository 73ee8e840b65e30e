package leads

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const DefaultRegion = "BR"

// NormalizePhone formats a sender id to E.164. WhatsApp ids such as
// "5511999990000@s.whatsapp.net" always carry the country code; bare
// numbers without "+" are read in defaultRegion.
func NormalizePhone(raw, defaultRegion string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrMissingContact
	}
	if defaultRegion == "" {
		defaultRegion = DefaultRegion
	}
	if at := strings.IndexByte(trimmed, '@'); at >= 0 {
		trimmed = "+" + strings.TrimPrefix(trimmed[:at], "+")
		if colon := strings.IndexByte(trimmed, ':'); colon >= 0 {
			// multi-device suffix, e.g. 5511999990000:12@s.whatsapp.net
			trimmed = trimmed[:colon]
		}
	}

	number, err := phonenumbers.Parse(trimmed, defaultRegion)
	if err != nil || !phonenumbers.IsValidNumber(number) {
		// Numbers that include the country code but no "+" fail as national
		// numbers; retry as international.
		if !strings.HasPrefix(trimmed, "+") {
			if alt, altErr := phonenumbers.Parse("+"+trimmed, defaultRegion); altErr == nil && phonenumbers.IsValidNumber(alt) {
				return phonenumbers.Format(alt, phonenumbers.E164), nil
			}
		}
		return "", ErrInvalidPhone
	}
	return phonenumbers.Format(number, phonenumbers.E164), nil
}
