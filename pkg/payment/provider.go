// Package payment defines the contract every payment provider adapter satisfies and the
// adapters themselves. Adapters translate between the engine's normalized types and each
// provider's wire format; they never touch storage.
package payment

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	"paycore/internal/domain"
)

// ErrUnsigned is returned by ValidateWebhook when no webhook secret is configured, so the
// payload cannot be verified. The caller decides whether to accept it.
var ErrUnsigned = errors.New("webhook secret not configured")

// Provider is the capability contract shared by all adapters.
type Provider interface {
	Name() domain.Provider
	CreateCheckout(ctx context.Context, s Settings, req CheckoutRequest) (*CheckoutResult, error)
	RetrieveStatus(ctx context.Context, s Settings, externalID string) (*StatusResult, error)
	Refund(ctx context.Context, s Settings, externalID string, amount decimal.Decimal, currency, reason string) (*RefundResult, error)
	Cancel(ctx context.Context, s Settings, externalID, reason string) error
	ValidateWebhook(s Settings, r WebhookRequest) error
	ParseWebhook(payload []byte) (*Event, error)
}

// Authorizer is implemented by providers that need the merchant to authorise or capture an
// approved order before funds settle. A true result is a paid signal.
type Authorizer interface {
	Authorize(ctx context.Context, s Settings, externalID string, amount decimal.Decimal, currency string) (bool, error)
}

// FullCheckout is implemented by providers that underwrite the customer and therefore
// need consumer, billing and shipping details.
type FullCheckout interface {
	RequiresFullCheckout() bool
}

// Keyless is implemented by providers that work without credentials.
type Keyless interface {
	Keyless() bool
}

type Consumer struct {
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	Phone     string `json:"phone" validate:"required"`
}

type Address struct {
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Line1     string `json:"line1" validate:"required"`
	Line2     string `json:"line2,omitempty"`
	City      string `json:"city" validate:"required"`
	Region    string `json:"region,omitempty"`
	ZipCode   string `json:"zip_code,omitempty"`
	Country   string `json:"country" validate:"required,len=2"`
	Phone     string `json:"phone,omitempty"`
}

type Item struct {
	ReferenceID string          `json:"reference_id" validate:"required"`
	Name        string          `json:"name" validate:"required"`
	SKU         string          `json:"sku,omitempty"`
	Quantity    int             `json:"quantity" validate:"gt=0"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

func (i Item) Total() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type MerchantURLs struct {
	Success      string `json:"success" validate:"required,url"`
	Failure      string `json:"failure" validate:"required,url"`
	Cancel       string `json:"cancel" validate:"required,url"`
	Notification string `json:"notification" validate:"required,url"`
}

// CheckoutRequest is everything an adapter may need to open a checkout for one order.
type CheckoutRequest struct {
	OrderID         string          `json:"order_id" validate:"required"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency" validate:"required,len=3"`
	Shipping        decimal.Decimal `json:"shipping"`
	Tax             decimal.Decimal `json:"tax"`
	Discount        decimal.Decimal `json:"discount"`
	Description     string          `json:"description"`
	CountryCode     string          `json:"country_code"`
	Locale          string          `json:"locale"`
	Consumer        Consumer        `json:"consumer"`
	BillingAddress  Address         `json:"billing_address"`
	ShippingAddress Address         `json:"shipping_address"`
	Items           []Item          `json:"items" validate:"required,min=1,dive"`
	URLs            MerchantURLs    `json:"merchant_urls"`
}

type CheckoutResult struct {
	ExternalID     string
	RedirectURL    string
	ProviderStatus string
	// Settled means the charge needs no further confirmation (cash on delivery).
	Settled bool
}

type StatusResult struct {
	Paid       bool
	Terminal   bool
	InProgress bool
	Status     string
	Amount     decimal.Decimal
	CaptureID  string
}

// Event converts a polled status into the normalized webhook shape.
func (r *StatusResult) Event(externalID, orderRef string) *Event {
	return &Event{
		ExternalID: externalID,
		OrderRef:   orderRef,
		Paid:       r.Paid,
		Terminal:   r.Terminal || r.Paid,
		InProgress: r.InProgress,
		RawStatus:  r.Status,
		Amount:     r.Amount,
		CaptureID:  r.CaptureID,
	}
}

type RefundResult struct {
	RefundID string
	Status   string
}

// Event is a provider notification in the shape the reconciliation engine understands.
type Event struct {
	ExternalID string
	OrderRef   string
	Paid       bool
	Terminal   bool
	// InProgress means approved or authorized by the provider but not yet captured.
	InProgress bool
	RawStatus  string
	Amount     decimal.Decimal
	CaptureID  string
}

// WebhookRequest is the part of an inbound HTTP callback adapters need to verify it.
type WebhookRequest struct {
	Body   []byte
	Header http.Header
	Query  url.Values
}
