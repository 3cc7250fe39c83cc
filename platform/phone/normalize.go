// Package phone provides phone number utilities.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const defaultRegion = "US"

// NormalizeE164 formats a US-centric phone number to E.164 using digit-count
// rules: an 11-digit number starting with 1 gets a leading "+", a 10-digit
// number gets "+1", anything longer gets "+". Input that fits none of the
// rules is returned unchanged, so malformed numbers pass through silently.
func NormalizeE164(input string) string {
	digits := stripNonDigits(input)
	switch {
	case len(digits) == 11 && strings.HasPrefix(digits, "1"):
		return "+" + digits
	case len(digits) == 10:
		return "+1" + digits
	case len(digits) > 11:
		return "+" + digits
	default:
		return input
	}
}

// IsValid reports whether a number parses as a valid phone number.
// Used for logging only; it never gates a send attempt.
func IsValid(number string) bool {
	parsed, err := phonenumbers.Parse(number, defaultRegion)
	if err != nil {
		return false
	}
	return phonenumbers.IsValidNumber(parsed)
}

func stripNonDigits(input string) string {
	var b strings.Builder
	for _, r := range input {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
