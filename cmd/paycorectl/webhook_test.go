package main

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paycore/internal/domain"
	"paycore/pkg/payment"
)

// Notifications built by the tool must pass the real adapters' checks.
func TestFakeNotificationsValidate(t *testing.T) {
	registry := payment.DefaultRegistry(time.Second)
	cases := []struct {
		provider domain.Provider
		status   string
		paid     bool
	}{
		{domain.ProviderCard, "paid", true},
		{domain.ProviderCard, "expired", false},
		{domain.ProviderTabby, "closed", true},
		{domain.ProviderTamara, "fully_captured", true},
		{domain.ProviderInvoice, "Paid", true},
		{domain.ProviderInvoice, "Declined", false},
	}
	for _, tc := range cases {
		t.Run(string(tc.provider)+"/"+tc.status, func(t *testing.T) {
			adapter, ok := registry.Get(tc.provider)
			require.True(t, ok)
			n := fakeNotification{
				Provider:   tc.provider,
				ExternalID: "ext_1",
				OrderID:    "O1",
				Status:     tc.status,
				Amount:     decimal.NewFromInt(250),
				Currency:   "SAR",
				Secret:     "whsec_test",
				Now:        time.Now(),
			}
			req, err := n.build()
			require.NoError(t, err)

			require.NoError(t, adapter.ValidateWebhook(payment.Settings{WebhookSecret: "whsec_test"}, req))
			assert.Error(t, adapter.ValidateWebhook(payment.Settings{WebhookSecret: "other"}, req))

			ev, err := adapter.ParseWebhook(req.Body)
			require.NoError(t, err)
			assert.Equal(t, "ext_1", ev.ExternalID)
			assert.Equal(t, "O1", ev.OrderRef)
			assert.Equal(t, tc.paid, ev.Paid)
			assert.True(t, ev.Terminal)
		})
	}
}

func TestFakeNotificationUnsigned(t *testing.T) {
	req, err := fakeNotification{Provider: domain.ProviderTabby, ExternalID: "p1", Status: "closed"}.build()
	require.NoError(t, err)
	assert.Empty(t, req.Header.Get(payment.SignatureHeader))

	_, err = fakeNotification{Provider: domain.ProviderCOD}.build()
	assert.Error(t, err)
}
