package payment

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
)

type recorded struct {
	Method string
	Path   string
	Header http.Header
	Body   map[string]any
}

type recorder struct {
	mu    sync.Mutex
	calls []recorded
}

func (r *recorder) all() []recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recorded(nil), r.calls...)
}

// fakeProvider serves canned JSON per "METHOD /path" and records what it received.
func fakeProvider(t *testing.T, routes map[string]func(w http.ResponseWriter, r *http.Request)) (*httptest.Server, *recorder) {
	t.Helper()
	rc := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{Method: r.Method, Path: r.URL.Path, Header: r.Header.Clone()}
		if b, _ := io.ReadAll(r.Body); len(b) > 0 {
			_ = json.Unmarshal(b, &rec.Body)
		}
		rc.mu.Lock()
		rc.calls = append(rc.calls, rec)
		rc.mu.Unlock()
		h, ok := routes[r.Method+" "+r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, rc
}

func reply(status int, body any) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

func sampleCheckout() CheckoutRequest {
	return CheckoutRequest{
		OrderID:     "O1",
		Amount:      decimal.NewFromInt(250),
		Currency:    "SAR",
		Shipping:    decimal.NewFromInt(25),
		Tax:         decimal.NewFromInt(25),
		Discount:    decimal.Zero,
		CountryCode: "SA",
		Locale:      "ar",
		Consumer: Consumer{
			FirstName: "Sara",
			LastName:  "Ali",
			Email:     "sara@example.com",
			Phone:     "+966501234567",
		},
		BillingAddress:  Address{Line1: "King Fahd Rd", City: "Riyadh", Country: "SA"},
		ShippingAddress: Address{Line1: "King Fahd Rd", City: "Riyadh", Country: "SA"},
		Items: []Item{
			{ReferenceID: "1", Name: "Lamp", SKU: "LAMP", Quantity: 4, UnitPrice: decimal.NewFromInt(50)},
		},
		URLs: MerchantURLs{
			Success:      "https://shop.example.com/checkout/success",
			Failure:      "https://shop.example.com/checkout/failure",
			Cancel:       "https://shop.example.com/checkout/cancel",
			Notification: "https://api.example.com/api/v1/payments/tamara/webhook",
		},
	}
}
