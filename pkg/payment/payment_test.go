package payment

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paycore/internal/apperr"
	"paycore/internal/domain"
)

func TestSettingsFromConfig(t *testing.T) {
	s := SettingsFromConfig(true, map[string]any{
		"secretKey":     "sk",
		"webhookSecret": "wh",
		"baseUrl":       "http://localhost:9000/",
		"testMode":      "true",
		"unknown":       42,
	})
	assert.True(t, s.Enabled)
	assert.Equal(t, "sk", s.Credential())
	assert.Equal(t, "wh", s.WebhookSecret)
	assert.Equal(t, "http://localhost:9000", s.BaseURL)
	assert.True(t, s.TestMode)

	s = SettingsFromConfig(false, map[string]any{"apiToken": "tok", "testMode": true})
	assert.Equal(t, "tok", s.Credential())
	assert.Equal(t, "https://sandbox", s.endpoint("https://live", "https://sandbox"))
	s.TestMode = false
	assert.Equal(t, "https://live", s.endpoint("https://live", "https://sandbox"))
}

func TestVerifyHMAC(t *testing.T) {
	body := []byte(`{"id":"pay_1"}`)
	sig := Sign("secret", body)

	assert.NoError(t, verifyHMAC("secret", body, sig))
	assert.NoError(t, verifyHMAC("secret", body, "sha256="+strings.ToUpper(sig)))
	assert.ErrorIs(t, verifyHMAC("", body, sig), ErrUnsigned)
	assert.True(t, apperr.Is(verifyHMAC("secret", body, ""), apperr.WebhookValidationFailed))
	assert.True(t, apperr.Is(verifyHMAC("secret", []byte(`{"id":"pay_2"}`), sig), apperr.WebhookValidationFailed))
}

func TestDefaultRegistryCoversEveryProvider(t *testing.T) {
	reg := DefaultRegistry(time.Second)
	for _, p := range domain.Providers {
		a, ok := reg.Get(p)
		require.True(t, ok, p)
		assert.Equal(t, p, a.Name())
	}
	_, ok := reg.Get(domain.Provider("paypal"))
	assert.False(t, ok)

	// BNPL adapters need underwriting data and a merchant authorisation step
	for _, p := range []domain.Provider{domain.ProviderTabby, domain.ProviderTamara} {
		a, _ := reg.Get(p)
		_, isAuth := a.(Authorizer)
		fc, isFull := a.(FullCheckout)
		assert.True(t, isAuth, p)
		assert.True(t, isFull && fc.RequiresFullCheckout(), p)
	}
}

func TestCashOnDelivery(t *testing.T) {
	cod := NewCashOnDelivery()
	res, err := cod.CreateCheckout(context.Background(), Settings{}, sampleCheckout())
	require.NoError(t, err)
	assert.True(t, res.Settled)
	assert.True(t, strings.HasPrefix(res.ExternalID, "cod_"))
	assert.Empty(t, res.RedirectURL)
	assert.True(t, cod.Keyless())

	other, _ := cod.CreateCheckout(context.Background(), Settings{}, sampleCheckout())
	assert.NotEqual(t, res.ExternalID, other.ExternalID)

	assert.True(t, apperr.Is(cod.ValidateWebhook(Settings{}, WebhookRequest{}), apperr.WebhookValidationFailed))
}
