package validation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"paycore/internal/apperr"
	"paycore/pkg/payment"
)

func fullRequest() payment.CheckoutRequest {
	return payment.CheckoutRequest{
		OrderID:  "O1",
		Amount:   decimal.NewFromInt(250),
		Currency: "SAR",
		Consumer: payment.Consumer{FirstName: "Sara", LastName: "Ali", Email: "sara@example.com", Phone: "+966501234567"},
		BillingAddress: payment.Address{
			Line1: "King Fahd Rd", City: "Riyadh", Country: "SA",
		},
		ShippingAddress: payment.Address{
			Line1: "King Fahd Rd", City: "Riyadh", Country: "SA",
		},
		Items: []payment.Item{{ReferenceID: "1", Name: "Lamp", Quantity: 1, UnitPrice: decimal.NewFromInt(250)}},
		URLs: payment.MerchantURLs{
			Success:      "https://shop.example.com/success",
			Failure:      "https://shop.example.com/failure",
			Cancel:       "https://shop.example.com/cancel",
			Notification: "https://api.example.com/webhook",
		},
	}
}

func TestRequireCheckoutFieldsComplete(t *testing.T) {
	assert.NoError(t, RequireCheckoutFields(fullRequest()))
}

func TestRequireCheckoutFieldsNamesMissingField(t *testing.T) {
	cases := map[string]func(*payment.CheckoutRequest){
		"consumer.first_name":   func(r *payment.CheckoutRequest) { r.Consumer.FirstName = "" },
		"billing_address.line1": func(r *payment.CheckoutRequest) { r.BillingAddress.Line1 = "" },
		"shipping_address.city": func(r *payment.CheckoutRequest) { r.ShippingAddress.City = "" },
		"items":                 func(r *payment.CheckoutRequest) { r.Items = nil },
		"merchant_urls.success": func(r *payment.CheckoutRequest) { r.URLs.Success = "" },
		"items[0].name":         func(r *payment.CheckoutRequest) { r.Items[0].Name = "" },
	}
	for field, mutate := range cases {
		req := fullRequest()
		mutate(&req)
		err := RequireCheckoutFields(req)
		assert.True(t, apperr.Is(err, apperr.IncompleteCheckoutData), field)
		e, _ := apperr.As(err)
		if assert.NotNil(t, e, field) {
			assert.Equal(t, field, e.Field)
		}
	}
}

func TestRequireCheckoutFieldsInvalidValue(t *testing.T) {
	req := fullRequest()
	req.Consumer.Email = "not-an-email"
	err := RequireCheckoutFields(req)
	assert.True(t, apperr.Is(err, apperr.IncompleteCheckoutData))
	e, _ := apperr.As(err)
	assert.Equal(t, "consumer.email", e.Field)
}

func TestRequireCallbackURLs(t *testing.T) {
	assert.NoError(t, RequireCallbackURLs(fullRequest().URLs))
	err := RequireCallbackURLs(payment.MerchantURLs{Success: "x"})
	assert.True(t, apperr.Is(err, apperr.IncompleteCheckoutData))
}
