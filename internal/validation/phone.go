package validation

import (
	"strings"

	"paycore/internal/apperr"
)

type mobileRule struct {
	prefix string
	length int
}

// mobileRules holds the national mobile format per dialing code.
var mobileRules = map[string]mobileRule{
	"966": {prefix: "5", length: 9}, // Saudi Arabia
	"971": {prefix: "5", length: 9}, // UAE
	"965": {prefix: "", length: 8},  // Kuwait
	"973": {prefix: "3", length: 8}, // Bahrain
}

// NormalizePhone returns the phone as +<country><subscriber>. It accepts local numbers with a
// trunk zero (0501234567), international numbers with a 00 or + prefix, and bare subscriber
// numbers. Separators are ignored.
func NormalizePhone(raw, countryCode string) (string, error) {
	countryCode = strings.TrimLeft(countryCode, "+0")
	rule, ok := mobileRules[countryCode]
	if !ok {
		return "", apperr.Newf(apperr.InvalidPhoneNumber, "unsupported country code %q", countryCode)
	}

	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' || r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return "", apperr.Newf(apperr.InvalidPhoneNumber, "phone number contains %q", r)
		}
	}
	digits := b.String()
	digits = strings.TrimPrefix(digits, "00")
	if strings.HasPrefix(digits, countryCode) {
		// +966 0501234567 is a common way to write the trunk zero after the country code
		if rest := strings.TrimPrefix(digits[len(countryCode):], "0"); len(rest) == rule.length {
			digits = rest
		}
	}
	digits = strings.TrimPrefix(digits, "0")

	if len(digits) != rule.length || !strings.HasPrefix(digits, rule.prefix) {
		return "", apperr.New(apperr.InvalidPhoneNumber, "phone number is not a valid mobile number")
	}
	return "+" + countryCode + digits, nil
}
