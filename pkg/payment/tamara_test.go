package payment

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paycore/internal/apperr"
)

func tamaraSettings(base string) Settings {
	return Settings{Enabled: true, APIToken: "tm_token", WebhookSecret: "notify-key", BaseURL: base}
}

func TestTamaraCreateCheckout(t *testing.T) {
	srv, rec := fakeProvider(t, map[string]func(http.ResponseWriter, *http.Request){
		"POST /checkout": reply(http.StatusOK, map[string]any{
			"order_id":     "tm_order_1",
			"checkout_id":  "chk_1",
			"checkout_url": "https://checkout.tamara.co/chk_1",
			"status":       "new",
		}),
	})
	res, err := NewTamara(time.Second).CreateCheckout(context.Background(), tamaraSettings(srv.URL), sampleCheckout())
	require.NoError(t, err)
	assert.Equal(t, "tm_order_1", res.ExternalID)
	assert.Equal(t, "https://checkout.tamara.co/chk_1", res.RedirectURL)

	body := rec.all()[0].Body
	assert.Equal(t, "O1", body["order_reference_id"])
	total := body["total_amount"].(map[string]any)
	assert.Equal(t, 250.0, total["amount"])
	assert.Equal(t, "SAR", total["currency"])
	consumer := body["consumer"].(map[string]any)
	assert.Equal(t, "+966501234567", consumer["phone_number"])
	assert.Len(t, body["items"], 1)
}

func TestTamaraAuthorize(t *testing.T) {
	srv, _ := fakeProvider(t, map[string]func(http.ResponseWriter, *http.Request){
		"POST /orders/tm_1/authorise": reply(http.StatusOK, map[string]any{"order_id": "tm_1", "status": "authorised"}),
	})
	paid, err := NewTamara(time.Second).Authorize(context.Background(), tamaraSettings(srv.URL), "tm_1", decimal.NewFromInt(250), "SAR")
	require.NoError(t, err)
	assert.True(t, paid)
}

func TestTamaraCancelSendsOrderTotal(t *testing.T) {
	srv, rec := fakeProvider(t, map[string]func(http.ResponseWriter, *http.Request){
		"GET /orders/tm_1": reply(http.StatusOK, map[string]any{
			"order_id": "tm_1", "status": "approved",
			"total_amount": map[string]any{"amount": 250, "currency": "SAR"},
		}),
		"POST /orders/tm_1/cancel": reply(http.StatusOK, map[string]any{}),
	})
	require.NoError(t, NewTamara(time.Second).Cancel(context.Background(), tamaraSettings(srv.URL), "tm_1", "customer request"))

	calls := rec.all()
	require.Len(t, calls, 2)
	total := calls[1].Body["total_amount"].(map[string]any)
	assert.Equal(t, 250.0, total["amount"])
}

func TestTamaraRetrieveStatus(t *testing.T) {
	srv, _ := fakeProvider(t, map[string]func(http.ResponseWriter, *http.Request){
		"GET /orders/tm_1": reply(http.StatusOK, map[string]any{
			"order_id": "tm_1", "status": "declined",
			"total_amount": map[string]any{"amount": "250.00", "currency": "SAR"},
		}),
	})
	st, err := NewTamara(time.Second).RetrieveStatus(context.Background(), tamaraSettings(srv.URL), "tm_1")
	require.NoError(t, err)
	assert.False(t, st.Paid)
	assert.True(t, st.Terminal)
	assert.True(t, decimal.NewFromInt(250).Equal(st.Amount))
}

func TestTamaraWebhookToken(t *testing.T) {
	tm := NewTamara(time.Second)
	s := tamaraSettings("")
	body := []byte(`{"order_id":"tm_1","order_reference_id":"O1","event_type":"order_approved"}`)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("notify-key"))
	require.NoError(t, err)

	q := url.Values{}
	q.Set("tamaraToken", signed)
	assert.NoError(t, tm.ValidateWebhook(s, WebhookRequest{Body: body, Header: http.Header{}, Query: q}))

	h := http.Header{}
	h.Set("Authorization", "Bearer "+signed)
	assert.NoError(t, tm.ValidateWebhook(s, WebhookRequest{Body: body, Header: h, Query: url.Values{}}))

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"iat": time.Now().Unix()}).SignedString([]byte("wrong"))
	require.NoError(t, err)
	q.Set("tamaraToken", forged)
	assert.True(t, apperr.Is(tm.ValidateWebhook(s, WebhookRequest{Body: body, Header: http.Header{}, Query: q}), apperr.WebhookValidationFailed))

	err = tm.ValidateWebhook(s, WebhookRequest{Body: body, Header: http.Header{}, Query: url.Values{}})
	assert.True(t, apperr.Is(err, apperr.WebhookValidationFailed))

	s.WebhookSecret = ""
	s.AllowUnsignedWebhooks = true
	err = tm.ValidateWebhook(s, WebhookRequest{Body: body, Header: http.Header{}, Query: url.Values{}})
	assert.True(t, apperr.Is(err, apperr.WebhookValidationFailed))
	assert.NotErrorIs(t, err, ErrUnsigned)
}

func TestTamaraParseWebhook(t *testing.T) {
	tm := NewTamara(time.Second)

	ev, err := tm.ParseWebhook([]byte(`{"order_id":"tm_1","order_reference_id":"O1","event_type":"order_approved"}`))
	require.NoError(t, err)
	assert.Equal(t, "tm_1", ev.ExternalID)
	assert.Equal(t, "O1", ev.OrderRef)
	assert.True(t, ev.InProgress)
	assert.False(t, ev.Paid)

	ev, err = tm.ParseWebhook([]byte(`{"order_id":"tm_1","order_status":"expired","event_type":"order_expired"}`))
	require.NoError(t, err)
	assert.True(t, ev.Terminal)
	assert.False(t, ev.Paid)

	_, err = tm.ParseWebhook([]byte(`{"event_type":"order_approved"}`))
	assert.True(t, apperr.Is(err, apperr.Invalid))
}
