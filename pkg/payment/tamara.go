package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"

	"paycore/internal/apperr"
	"paycore/internal/domain"
)

const (
	tamaraLiveURL    = "https://api.tamara.co"
	tamaraSandboxURL = "https://api-sandbox.tamara.co"
	tamaraTokenParam = "tamaraToken"
)

// Tamara is the second BNPL adapter. An approved order must be authorised by the merchant
// before it counts as paid; notifications carry an HS256 token signed with the notification key.
type Tamara struct {
	api apiClient
}

func NewTamara(timeout time.Duration) *Tamara {
	return &Tamara{api: newAPIClient("tamara", timeout)}
}

func (t *Tamara) Name() domain.Provider { return domain.ProviderTamara }

func (t *Tamara) RequiresFullCheckout() bool { return true }

type tamaraMoney struct {
	Amount   json.Number `json:"amount"`
	Currency string      `json:"currency"`
}

func money(d decimal.Decimal, currency string) tamaraMoney {
	return tamaraMoney{Amount: number(d), Currency: currency}
}

func (m tamaraMoney) value() decimal.Decimal {
	d, err := decimal.NewFromString(m.Amount.String())
	if err != nil {
		return decimal.Zero
	}
	return d
}

type tamaraConsumer struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	PhoneNumber string `json:"phone_number"`
	Email       string `json:"email"`
}

type tamaraAddress struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Line1       string `json:"line1"`
	Line2       string `json:"line2,omitempty"`
	Region      string `json:"region,omitempty"`
	City        string `json:"city"`
	CountryCode string `json:"country_code"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

type tamaraItem struct {
	ReferenceID string      `json:"reference_id"`
	Type        string      `json:"type"`
	Name        string      `json:"name"`
	SKU         string      `json:"sku"`
	Quantity    int         `json:"quantity"`
	UnitPrice   tamaraMoney `json:"unit_price"`
	TotalAmount tamaraMoney `json:"total_amount"`
}

type tamaraCheckoutRequest struct {
	OrderReferenceID string         `json:"order_reference_id"`
	TotalAmount      tamaraMoney    `json:"total_amount"`
	Description      string         `json:"description"`
	CountryCode      string         `json:"country_code"`
	PaymentType      string         `json:"payment_type"`
	Locale           string         `json:"locale"`
	Items            []tamaraItem   `json:"items"`
	Consumer         tamaraConsumer `json:"consumer"`
	BillingAddress   tamaraAddress  `json:"billing_address"`
	ShippingAddress  tamaraAddress  `json:"shipping_address"`
	TaxAmount        tamaraMoney    `json:"tax_amount"`
	ShippingAmount   tamaraMoney    `json:"shipping_amount"`
	Discount         struct {
		Name   string      `json:"name"`
		Amount tamaraMoney `json:"amount"`
	} `json:"discount"`
	MerchantURL struct {
		Success      string `json:"success"`
		Failure      string `json:"failure"`
		Cancel       string `json:"cancel"`
		Notification string `json:"notification"`
	} `json:"merchant_url"`
}

type tamaraCheckoutResponse struct {
	OrderID     string `json:"order_id"`
	CheckoutID  string `json:"checkout_id"`
	CheckoutURL string `json:"checkout_url"`
	Status      string `json:"status"`
}

type tamaraOrder struct {
	OrderID          string      `json:"order_id"`
	OrderReferenceID string      `json:"order_reference_id"`
	Status           string      `json:"status"`
	TotalAmount      tamaraMoney `json:"total_amount"`
	CaptureID        string      `json:"capture_id"`
}

type tamaraNotification struct {
	OrderID          string `json:"order_id"`
	OrderReferenceID string `json:"order_reference_id"`
	OrderStatus      string `json:"order_status"`
	EventType        string `json:"event_type"`
}

func (t *Tamara) url(s Settings, path string) string {
	return s.endpoint(tamaraLiveURL, tamaraSandboxURL) + path
}

func tamaraAddr(a Address, c Consumer) tamaraAddress {
	first, last := a.FirstName, a.LastName
	if first == "" {
		first, last = c.FirstName, c.LastName
	}
	phone := a.Phone
	if phone == "" {
		phone = c.Phone
	}
	return tamaraAddress{
		FirstName:   first,
		LastName:    last,
		Line1:       a.Line1,
		Line2:       a.Line2,
		Region:      a.Region,
		City:        a.City,
		CountryCode: a.Country,
		PhoneNumber: phone,
	}
}

func (t *Tamara) CreateCheckout(ctx context.Context, s Settings, req CheckoutRequest) (*CheckoutResult, error) {
	if err := requireCredential("tamara", s); err != nil {
		return nil, err
	}
	body := tamaraCheckoutRequest{
		OrderReferenceID: req.OrderID,
		TotalAmount:      money(req.Amount, req.Currency),
		Description:      req.Description,
		CountryCode:      req.ShippingAddress.Country,
		PaymentType:      "PAY_BY_INSTALMENTS",
		Locale:           tamaraLocale(req.Locale),
		Consumer: tamaraConsumer{
			FirstName:   req.Consumer.FirstName,
			LastName:    req.Consumer.LastName,
			PhoneNumber: req.Consumer.Phone,
			Email:       req.Consumer.Email,
		},
		BillingAddress:  tamaraAddr(req.BillingAddress, req.Consumer),
		ShippingAddress: tamaraAddr(req.ShippingAddress, req.Consumer),
		TaxAmount:       money(req.Tax, req.Currency),
		ShippingAmount:  money(req.Shipping, req.Currency),
	}
	if body.Description == "" {
		body.Description = "Order " + req.OrderID
	}
	body.Discount.Name = "discount"
	body.Discount.Amount = money(req.Discount, req.Currency)
	for _, it := range req.Items {
		body.Items = append(body.Items, tamaraItem{
			ReferenceID: it.ReferenceID,
			Type:        "Physical",
			Name:        it.Name,
			SKU:         it.SKU,
			Quantity:    it.Quantity,
			UnitPrice:   money(it.UnitPrice, req.Currency),
			TotalAmount: money(it.Total(), req.Currency),
		})
	}
	body.MerchantURL.Success = req.URLs.Success
	body.MerchantURL.Failure = req.URLs.Failure
	body.MerchantURL.Cancel = req.URLs.Cancel
	body.MerchantURL.Notification = req.URLs.Notification

	var resp tamaraCheckoutResponse
	if err := t.api.do(ctx, http.MethodPost, t.url(s, "/checkout"), bearer(s.Credential()), body, &resp); err != nil {
		return nil, err
	}
	if resp.OrderID == "" || resp.CheckoutURL == "" {
		return nil, apperr.New(apperr.ProviderRejected, "tamara returned no checkout url")
	}
	return &CheckoutResult{
		ExternalID:     resp.OrderID,
		RedirectURL:    resp.CheckoutURL,
		ProviderStatus: resp.Status,
	}, nil
}

func (t *Tamara) order(ctx context.Context, s Settings, id string) (*tamaraOrder, error) {
	var o tamaraOrder
	if err := t.api.do(ctx, http.MethodGet, t.url(s, "/orders/"+id), bearer(s.Credential()), nil, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (t *Tamara) RetrieveStatus(ctx context.Context, s Settings, externalID string) (*StatusResult, error) {
	if err := requireCredential("tamara", s); err != nil {
		return nil, err
	}
	o, err := t.order(ctx, s, externalID)
	if err != nil {
		return nil, err
	}
	st := tamaraStatus(o.Status)
	st.Amount = o.TotalAmount.value()
	st.CaptureID = o.CaptureID
	return st, nil
}

// Authorize confirms an approved order to Tamara. Funds are guaranteed from that point on.
func (t *Tamara) Authorize(ctx context.Context, s Settings, externalID string, _ decimal.Decimal, _ string) (bool, error) {
	if err := requireCredential("tamara", s); err != nil {
		return false, err
	}
	var o tamaraOrder
	if err := t.api.do(ctx, http.MethodPost, t.url(s, "/orders/"+externalID+"/authorise"), bearer(s.Credential()), nil, &o); err != nil {
		return false, err
	}
	return tamaraStatus(o.Status).Paid, nil
}

func (t *Tamara) Refund(ctx context.Context, s Settings, externalID string, amount decimal.Decimal, currency, reason string) (*RefundResult, error) {
	if err := requireCredential("tamara", s); err != nil {
		return nil, err
	}
	in := struct {
		TotalAmount tamaraMoney `json:"total_amount"`
		Comment     string      `json:"comment"`
	}{money(amount, currency), reason}
	var resp struct {
		RefundID string `json:"refund_id"`
		Status   string `json:"status"`
	}
	if err := t.api.do(ctx, http.MethodPost, t.url(s, "/payments/simplified-refund/"+externalID), bearer(s.Credential()), in, &resp); err != nil {
		return nil, err
	}
	return &RefundResult{RefundID: resp.RefundID, Status: resp.Status}, nil
}

// Cancel needs the order total, so the order is fetched first.
func (t *Tamara) Cancel(ctx context.Context, s Settings, externalID, reason string) error {
	if err := requireCredential("tamara", s); err != nil {
		return err
	}
	o, err := t.order(ctx, s, externalID)
	if err != nil {
		return err
	}
	in := struct {
		TotalAmount tamaraMoney `json:"total_amount"`
		Comment     string      `json:"comment,omitempty"`
	}{o.TotalAmount, reason}
	return t.api.do(ctx, http.MethodPost, t.url(s, "/orders/"+externalID+"/cancel"), bearer(s.Credential()), in, nil)
}

func (t *Tamara) ValidateWebhook(s Settings, r WebhookRequest) error {
	if s.WebhookSecret == "" {
		return missingSecret(s, false)
	}
	token := r.Query.Get(tamaraTokenParam)
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	if token == "" {
		return apperr.New(apperr.WebhookValidationFailed, "missing tamara notification token")
	}
	_, err := jwt.Parse(token, func(*jwt.Token) (any, error) {
		return []byte(s.WebhookSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return apperr.Wrap(apperr.WebhookValidationFailed, "invalid tamara notification token", err)
	}
	return nil
}

func (t *Tamara) ParseWebhook(payload []byte) (*Event, error) {
	var n tamaraNotification
	if err := decodeEvent(payload, &n); err != nil {
		return nil, err
	}
	if n.OrderID == "" {
		return nil, apperr.New(apperr.Invalid, "tamara notification without order id")
	}
	status := n.OrderStatus
	if status == "" {
		status = strings.TrimPrefix(n.EventType, "order_")
	}
	return tamaraStatus(status).Event(n.OrderID, n.OrderReferenceID), nil
}

func tamaraStatus(status string) *StatusResult {
	out := &StatusResult{Status: strings.ToLower(status)}
	switch out.Status {
	case "authorised", "partially_captured", "fully_captured", "captured":
		out.Paid, out.Terminal = true, true
	case "approved":
		out.InProgress = true
	case "declined", "expired", "canceled", "cancelled":
		out.Terminal = true
	}
	return out
}

func tamaraLocale(locale string) string {
	if strings.HasPrefix(strings.ToLower(locale), "en") {
		return "en_US"
	}
	return "ar_SA"
}
