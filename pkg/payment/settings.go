package payment

import (
	"fmt"
	"strings"
)

// Settings is a provider's enabled flag and credential bag as stored by the settings store.
type Settings struct {
	Enabled       bool
	SecretKey     string
	APIToken      string
	PublicKey     string
	WebhookSecret string
	MerchantURL   string
	MerchantCode  string
	BaseURL       string
	TestMode      bool
	// AllowUnsignedWebhooks lets a provider whose callbacks may arrive unsigned skip
	// verification when no WebhookSecret is set. Providers that always sign ignore it.
	AllowUnsignedWebhooks bool
}

// SettingsFromConfig reads the opaque config bag. Unknown keys are ignored.
func SettingsFromConfig(enabled bool, cfg map[string]any) Settings {
	return Settings{
		Enabled:       enabled,
		SecretKey:     str(cfg, "secretKey"),
		APIToken:      str(cfg, "apiToken"),
		PublicKey:     str(cfg, "publicKey"),
		WebhookSecret: str(cfg, "webhookSecret"),
		MerchantURL:   str(cfg, "merchantUrl"),
		MerchantCode:  str(cfg, "merchantCode"),
		BaseURL:       strings.TrimRight(str(cfg, "baseUrl"), "/"),
		TestMode:      flag(cfg, "testMode"),

		AllowUnsignedWebhooks: flag(cfg, "allowUnsignedWebhooks"),
	}
}

// Credential is the key used to authenticate API calls.
func (s Settings) Credential() string {
	if s.SecretKey != "" {
		return s.SecretKey
	}
	return s.APIToken
}

func (s Settings) endpoint(live, sandbox string) string {
	if s.BaseURL != "" {
		return s.BaseURL
	}
	if s.TestMode {
		return sandbox
	}
	return live
}

func str(cfg map[string]any, key string) string {
	v, ok := cfg[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func flag(cfg map[string]any, key string) bool {
	switch v := cfg[key].(type) {
	case bool:
		return v
	case string:
		return v == "true" || v == "1"
	}
	return false
}

// SecretKeys lists config keys that must never be echoed back to clients.
var SecretKeys = []string{"secretKey", "apiToken", "webhookSecret", "password", "apiSecret"}
