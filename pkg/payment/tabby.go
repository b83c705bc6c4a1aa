package payment

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"paycore/internal/apperr"
	"paycore/internal/domain"
)

const tabbyLiveURL = "https://api.tabby.ai"

// Tabby is the first BNPL adapter. A payment is AUTHORIZED when the customer is approved and
// CLOSED once the merchant captured the full amount.
type Tabby struct {
	api apiClient
}

func NewTabby(timeout time.Duration) *Tabby {
	return &Tabby{api: newAPIClient("tabby", timeout)}
}

func (t *Tabby) Name() domain.Provider      { return domain.ProviderTabby }
func (t *Tabby) RequiresFullCheckout() bool { return true }

type tabbyBuyer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type tabbyAddress struct {
	City    string `json:"city"`
	Address string `json:"address"`
	Zip     string `json:"zip"`
}

type tabbyItem struct {
	ReferenceID string `json:"reference_id"`
	Title       string `json:"title"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	Category    string `json:"category"`
}

type tabbyOrder struct {
	ReferenceID    string      `json:"reference_id"`
	Items          []tabbyItem `json:"items"`
	TaxAmount      string      `json:"tax_amount"`
	ShippingAmount string      `json:"shipping_amount"`
	DiscountAmount string      `json:"discount_amount"`
}

type tabbyPaymentRequest struct {
	Amount          string       `json:"amount"`
	Currency        string       `json:"currency"`
	Description     string       `json:"description,omitempty"`
	Buyer           tabbyBuyer   `json:"buyer"`
	ShippingAddress tabbyAddress `json:"shipping_address"`
	Order           tabbyOrder   `json:"order"`
}

type tabbyCheckoutRequest struct {
	Payment      tabbyPaymentRequest `json:"payment"`
	Lang         string              `json:"lang"`
	MerchantCode string              `json:"merchant_code"`
	MerchantURLs struct {
		Success string `json:"success"`
		Cancel  string `json:"cancel"`
		Failure string `json:"failure"`
	} `json:"merchant_urls"`
}

type tabbyPayment struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Amount decimal.Decimal `json:"amount"`
	Order  struct {
		ReferenceID string `json:"reference_id"`
	} `json:"order"`
	Captures []struct {
		ID string `json:"id"`
	} `json:"captures"`
	Refunds []struct {
		ID string `json:"id"`
	} `json:"refunds"`
}

type tabbyCheckoutResponse struct {
	ID            string       `json:"id"`
	Status        string       `json:"status"`
	Payment       tabbyPayment `json:"payment"`
	Configuration struct {
		AvailableProducts struct {
			Installments []struct {
				WebURL string `json:"web_url"`
			} `json:"installments"`
		} `json:"available_products"`
	} `json:"configuration"`
}

func (t *Tabby) url(s Settings, path string) string {
	return s.endpoint(tabbyLiveURL, tabbyLiveURL) + path
}

func (t *Tabby) CreateCheckout(ctx context.Context, s Settings, req CheckoutRequest) (*CheckoutResult, error) {
	if err := requireCredential("tabby", s); err != nil {
		return nil, err
	}
	body := tabbyCheckoutRequest{
		Payment: tabbyPaymentRequest{
			Amount:      FormatAmount(req.Amount, req.Currency),
			Currency:    req.Currency,
			Description: req.Description,
			Buyer: tabbyBuyer{
				Name:  strings.TrimSpace(req.Consumer.FirstName + " " + req.Consumer.LastName),
				Email: req.Consumer.Email,
				Phone: req.Consumer.Phone,
			},
			ShippingAddress: tabbyAddress{
				City:    req.ShippingAddress.City,
				Address: strings.TrimSpace(req.ShippingAddress.Line1 + " " + req.ShippingAddress.Line2),
				Zip:     req.ShippingAddress.ZipCode,
			},
			Order: tabbyOrder{
				ReferenceID:    req.OrderID,
				TaxAmount:      FormatAmount(req.Tax, req.Currency),
				ShippingAmount: FormatAmount(req.Shipping, req.Currency),
				DiscountAmount: FormatAmount(req.Discount, req.Currency),
			},
		},
		Lang:         tabbyLang(req.Locale),
		MerchantCode: s.MerchantCode,
	}
	for _, it := range req.Items {
		body.Payment.Order.Items = append(body.Payment.Order.Items, tabbyItem{
			ReferenceID: it.ReferenceID,
			Title:       it.Name,
			Quantity:    it.Quantity,
			UnitPrice:   FormatAmount(it.UnitPrice, req.Currency),
			Category:    "general",
		})
	}
	body.MerchantURLs.Success = req.URLs.Success
	body.MerchantURLs.Cancel = req.URLs.Cancel
	body.MerchantURLs.Failure = req.URLs.Failure

	var resp tabbyCheckoutResponse
	if err := t.api.do(ctx, http.MethodPost, t.url(s, "/api/v2/checkout"), bearer(s.Credential()), body, &resp); err != nil {
		return nil, err
	}
	if strings.EqualFold(resp.Status, "rejected") {
		return nil, apperr.New(apperr.ProviderRejected, "tabby rejected the customer for this order")
	}
	installments := resp.Configuration.AvailableProducts.Installments
	if resp.Payment.ID == "" || len(installments) == 0 || installments[0].WebURL == "" {
		return nil, apperr.New(apperr.ProviderRejected, "tabby returned no checkout url")
	}
	return &CheckoutResult{
		ExternalID:     resp.Payment.ID,
		RedirectURL:    installments[0].WebURL,
		ProviderStatus: resp.Status,
	}, nil
}

func (t *Tabby) payment(ctx context.Context, s Settings, id string) (*tabbyPayment, error) {
	var p tabbyPayment
	if err := t.api.do(ctx, http.MethodGet, t.url(s, "/api/v2/payments/"+id), bearer(s.Credential()), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (t *Tabby) RetrieveStatus(ctx context.Context, s Settings, externalID string) (*StatusResult, error) {
	if err := requireCredential("tabby", s); err != nil {
		return nil, err
	}
	p, err := t.payment(ctx, s, externalID)
	if err != nil {
		return nil, err
	}
	return p.status(), nil
}

// Authorize captures the full authorized amount. A CLOSED payment afterwards is settled.
func (t *Tabby) Authorize(ctx context.Context, s Settings, externalID string, amount decimal.Decimal, currency string) (bool, error) {
	if err := requireCredential("tabby", s); err != nil {
		return false, err
	}
	var p tabbyPayment
	in := map[string]string{"amount": FormatAmount(amount, currency)}
	if err := t.api.do(ctx, http.MethodPost, t.url(s, "/api/v2/payments/"+externalID+"/captures"), bearer(s.Credential()), in, &p); err != nil {
		return false, err
	}
	return p.status().Paid, nil
}

func (t *Tabby) Refund(ctx context.Context, s Settings, externalID string, amount decimal.Decimal, currency, reason string) (*RefundResult, error) {
	if err := requireCredential("tabby", s); err != nil {
		return nil, err
	}
	in := map[string]string{"amount": FormatAmount(amount, currency), "reason": reason}
	var p tabbyPayment
	if err := t.api.do(ctx, http.MethodPost, t.url(s, "/api/v2/payments/"+externalID+"/refunds"), bearer(s.Credential()), in, &p); err != nil {
		return nil, err
	}
	out := &RefundResult{Status: strings.ToLower(p.Status)}
	if n := len(p.Refunds); n > 0 {
		out.RefundID = p.Refunds[n-1].ID
	}
	return out, nil
}

// Cancel closes an authorized payment without capturing it.
func (t *Tabby) Cancel(ctx context.Context, s Settings, externalID, reason string) error {
	if err := requireCredential("tabby", s); err != nil {
		return err
	}
	return t.api.do(ctx, http.MethodPost, t.url(s, "/api/v2/payments/"+externalID+"/close"), bearer(s.Credential()), nil, nil)
}

func (t *Tabby) ValidateWebhook(s Settings, r WebhookRequest) error {
	if s.WebhookSecret == "" {
		return missingSecret(s, false)
	}
	return verifyHMAC(s.WebhookSecret, r.Body, r.Header.Get(SignatureHeader))
}

func (t *Tabby) ParseWebhook(payload []byte) (*Event, error) {
	var p tabbyPayment
	if err := decodeEvent(payload, &p); err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, apperr.New(apperr.Invalid, "tabby notification without payment id")
	}
	return p.status().Event(p.ID, p.Order.ReferenceID), nil
}

func (p *tabbyPayment) status() *StatusResult {
	out := &StatusResult{Status: strings.ToUpper(p.Status), Amount: p.Amount}
	switch out.Status {
	case "CLOSED":
		out.Paid, out.Terminal = true, true
	case "AUTHORIZED":
		out.InProgress = true
	case "REJECTED", "EXPIRED":
		out.Terminal = true
	}
	if n := len(p.Captures); n > 0 {
		out.CaptureID = p.Captures[n-1].ID
	}
	return out
}

func tabbyLang(locale string) string {
	if strings.HasPrefix(strings.ToLower(locale), "en") {
		return "en"
	}
	return "ar"
}
