package payment

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinorUnits(t *testing.T) {
	tests := []struct {
		amount   string
		currency string
		minor    int64
		text     string
	}{
		{"250", "SAR", 25000, "250.00"},
		{"12.345", "kwd", 12350, "12.345"},
		{"7.5", "BHD", 7500, "7.500"},
		{"1500", "JPY", 1500, "1500"},
	}
	for _, tc := range tests {
		t.Run(tc.currency, func(t *testing.T) {
			d := decimal.RequireFromString(tc.amount)
			assert.Equal(t, tc.minor, stripeMinorUnits(d, tc.currency))
			assert.Equal(t, tc.text, FormatAmount(d, tc.currency))
		})
	}
	assert.Equal(t, "12.35", stripeFromMinorUnits(12350, "KWD").String())
	assert.Equal(t, "250", stripeFromMinorUnits(25000, "sar").String())
}

func TestCardStatusUsesCurrencyExponent(t *testing.T) {
	srv, _ := fakeProvider(t, map[string]func(http.ResponseWriter, *http.Request){
		"GET /v1/checkout/sessions/cs_kwd": reply(http.StatusOK, map[string]any{
			"id": "cs_kwd", "object": "checkout.session", "status": "complete",
			"payment_status": "paid", "amount_total": 12340, "currency": "kwd",
		}),
	})
	st, err := NewCardGateway(time.Second).RetrieveStatus(context.Background(), cardSettings(srv.URL), "cs_kwd")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("12.34").Equal(st.Amount))
}

func TestTabbyRefundFormatsThreeDecimalCurrency(t *testing.T) {
	srv, rec := fakeProvider(t, map[string]func(http.ResponseWriter, *http.Request){
		"POST /api/v2/payments/pay_1/refunds": reply(http.StatusOK, map[string]any{"id": "pay_1", "status": "CLOSED"}),
	})
	_, err := NewTabby(time.Second).Refund(context.Background(), tabbySettings(srv.URL), "pay_1", decimal.RequireFromString("10.5"), "KWD", "")
	require.NoError(t, err)
	assert.Equal(t, "10.500", rec.all()[0].Body["amount"])
}
