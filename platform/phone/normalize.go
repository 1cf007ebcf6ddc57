// Package phone provides phone number utilities.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// defaultRegion is used for numbers written in national format (leading 0).
const defaultRegion = "ID"

var (
	nonDigits  = regexp.MustCompile(`\D`)
	contactJID = regexp.MustCompile(`^(\d+)@c\.us$`)
)

// NormalizeDigits reduces a phone number to international digits without the
// leading plus, e.g. "0812-0000-0000" -> "6281200000000". Numbers that the
// metadata cannot validate keep their raw digits. Blank input returns "".
func NormalizeDigits(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return ""
	}

	digits := nonDigits.ReplaceAllString(trimmed, "")
	if digits == "" {
		return ""
	}

	candidate := "+" + digits
	region := ""
	if strings.HasPrefix(digits, "0") {
		candidate = digits
		region = defaultRegion
	}

	number, err := phonenumbers.Parse(candidate, region)
	if err != nil || !phonenumbers.IsValidNumber(number) {
		return digits
	}

	return strings.TrimPrefix(phonenumbers.Format(number, phonenumbers.E164), "+")
}

// FromChatID extracts the phone digits from a personal chat id such as
// "6281200000000@c.us". Group ids, "@lid" placeholders and anything else
// yield "" so the caller can leave the phone unset.
func FromChatID(chatID string) string {
	m := contactJID.FindStringSubmatch(strings.TrimSpace(chatID))
	if m == nil {
		return ""
	}
	return m[1]
}

// Resolve picks the sender phone for an inbound event: an explicit phone
// wins, otherwise the digits embedded in the chat id.
func Resolve(explicit, chatID string) string {
	if normalized := NormalizeDigits(explicit); normalized != "" {
		return normalized
	}
	return NormalizeDigits(FromChatID(chatID))
}
