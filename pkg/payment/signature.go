package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"paycore/internal/apperr"
)

// SignatureHeader carries the HMAC of the raw body for providers that sign that way.
const SignatureHeader = "X-Webhook-Signature"

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// missingSecret is the ValidateWebhook result when no webhook secret is configured. Only
// providers whose signing is optional (optional=true) can yield ErrUnsigned, and only when the
// provider's settings opt in.
func missingSecret(s Settings, optional bool) error {
	if optional && s.AllowUnsignedWebhooks {
		return ErrUnsigned
	}
	return apperr.New(apperr.WebhookValidationFailed, "webhook secret not configured")
}

func verifyHMAC(secret string, body []byte, signature string) error {
	if secret == "" {
		return ErrUnsigned
	}
	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	if signature == "" {
		return apperr.New(apperr.WebhookValidationFailed, "missing webhook signature")
	}
	if !hmac.Equal([]byte(strings.ToLower(signature)), []byte(Sign(secret, body))) {
		return apperr.New(apperr.WebhookValidationFailed, "invalid webhook signature")
	}
	return nil
}
