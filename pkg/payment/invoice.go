package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"paycore/internal/apperr"
	"paycore/internal/domain"
)

const (
	invoiceLiveURL    = "https://restapi.paylink.sa"
	invoiceSandboxURL = "https://restpilot.paylink.sa"
)

// InvoiceGateway issues hosted payment invoices. Every call first exchanges the API id and
// secret for a short-lived token. Callbacks are unsigned unless a webhook secret is set.
type InvoiceGateway struct {
	api apiClient
}

func NewInvoiceGateway(timeout time.Duration) *InvoiceGateway {
	return &InvoiceGateway{api: newAPIClient("invoice gateway", timeout)}
}

func (g *InvoiceGateway) Name() domain.Provider { return domain.ProviderInvoice }

type invoiceProduct struct {
	Title       string      `json:"title"`
	Price       json.Number `json:"price"`
	Qty         int         `json:"qty"`
	Description string      `json:"description,omitempty"`
	IsDigital   bool        `json:"isDigital"`
}

type invoiceRequest struct {
	OrderNumber  string           `json:"orderNumber"`
	Amount       json.Number      `json:"amount"`
	Currency     string           `json:"currency"`
	CallBackURL  string           `json:"callBackUrl"`
	CancelURL    string           `json:"cancelUrl"`
	ClientName   string           `json:"clientName"`
	ClientEmail  string           `json:"clientEmail,omitempty"`
	ClientMobile string           `json:"clientMobile"`
	Note         string           `json:"note,omitempty"`
	Products     []invoiceProduct `json:"products"`
}

type invoice struct {
	TransactionNo       string          `json:"transactionNo"`
	URL                 string          `json:"url"`
	OrderStatus         string          `json:"orderStatus"`
	Amount              decimal.Decimal `json:"amount"`
	MerchantOrderNumber string          `json:"merchantOrderNumber"`
	GatewayOrderRequest struct {
		OrderNumber string `json:"orderNumber"`
	} `json:"gatewayOrderRequest"`
}

func (g *InvoiceGateway) url(s Settings, path string) string {
	return s.endpoint(invoiceLiveURL, invoiceSandboxURL) + path
}

func (g *InvoiceGateway) token(ctx context.Context, s Settings) (string, error) {
	if err := requireCredential("invoice gateway", s); err != nil {
		return "", err
	}
	apiID := s.PublicKey
	if apiID == "" {
		apiID = s.MerchantCode
	}
	in := map[string]any{"apiId": apiID, "secretKey": s.Credential(), "persistToken": false}
	var resp struct {
		IDToken string `json:"id_token"`
	}
	if err := g.api.do(ctx, http.MethodPost, g.url(s, "/api/auth"), nil, in, &resp); err != nil {
		return "", err
	}
	if resp.IDToken == "" {
		return "", apperr.New(apperr.ProviderRejected, "invoice gateway returned no token")
	}
	return resp.IDToken, nil
}

func (g *InvoiceGateway) CreateCheckout(ctx context.Context, s Settings, req CheckoutRequest) (*CheckoutResult, error) {
	tok, err := g.token(ctx, s)
	if err != nil {
		return nil, err
	}
	body := invoiceRequest{
		OrderNumber:  req.OrderID,
		Amount:       number(req.Amount),
		Currency:     req.Currency,
		CallBackURL:  req.URLs.Success,
		CancelURL:    req.URLs.Cancel,
		ClientName:   strings.TrimSpace(req.Consumer.FirstName + " " + req.Consumer.LastName),
		ClientEmail:  req.Consumer.Email,
		ClientMobile: req.Consumer.Phone,
		Note:         req.Description,
	}
	if body.ClientName == "" {
		body.ClientName = "Customer"
	}
	for _, it := range req.Items {
		body.Products = append(body.Products, invoiceProduct{
			Title: it.Name,
			Price: number(it.UnitPrice),
			Qty:   it.Quantity,
		})
	}
	var inv invoice
	if err := g.api.do(ctx, http.MethodPost, g.url(s, "/api/addInvoice"), bearer(tok), body, &inv); err != nil {
		return nil, err
	}
	if inv.TransactionNo == "" || inv.URL == "" {
		return nil, apperr.New(apperr.ProviderRejected, "invoice gateway returned no payment url")
	}
	return &CheckoutResult{
		ExternalID:     inv.TransactionNo,
		RedirectURL:    inv.URL,
		ProviderStatus: inv.OrderStatus,
	}, nil
}

func (g *InvoiceGateway) RetrieveStatus(ctx context.Context, s Settings, externalID string) (*StatusResult, error) {
	tok, err := g.token(ctx, s)
	if err != nil {
		return nil, err
	}
	var inv invoice
	if err := g.api.do(ctx, http.MethodGet, g.url(s, "/api/getInvoice/"+externalID), bearer(tok), nil, &inv); err != nil {
		return nil, err
	}
	st := invoiceStatus(inv.OrderStatus)
	st.Amount = inv.Amount
	return st, nil
}

// Refund is not offered by the invoice API; refunds are issued from the merchant portal.
func (g *InvoiceGateway) Refund(context.Context, Settings, string, decimal.Decimal, string, string) (*RefundResult, error) {
	return nil, apperr.New(apperr.ProviderRejected, "invoice gateway does not support refunds through the API")
}

func (g *InvoiceGateway) Cancel(ctx context.Context, s Settings, externalID, reason string) error {
	tok, err := g.token(ctx, s)
	if err != nil {
		return err
	}
	in := map[string]string{"transactionNo": externalID}
	return g.api.do(ctx, http.MethodPost, g.url(s, "/api/cancelInvoice"), bearer(tok), in, nil)
}

// ValidateWebhook checks the optional HMAC header. Merchants on plans without callback signing
// can set allowUnsignedWebhooks; those callbacks are then confirmed by polling.
func (g *InvoiceGateway) ValidateWebhook(s Settings, r WebhookRequest) error {
	if s.WebhookSecret == "" {
		return missingSecret(s, true)
	}
	return verifyHMAC(s.WebhookSecret, r.Body, r.Header.Get(SignatureHeader))
}

func (g *InvoiceGateway) ParseWebhook(payload []byte) (*Event, error) {
	var inv invoice
	if err := decodeEvent(payload, &inv); err != nil {
		return nil, err
	}
	if inv.TransactionNo == "" {
		return nil, apperr.New(apperr.Invalid, "invoice callback without transaction number")
	}
	ref := inv.MerchantOrderNumber
	if ref == "" {
		ref = inv.GatewayOrderRequest.OrderNumber
	}
	st := invoiceStatus(inv.OrderStatus)
	st.Amount = inv.Amount
	return st.Event(inv.TransactionNo, ref), nil
}

func invoiceStatus(status string) *StatusResult {
	out := &StatusResult{Status: status}
	switch strings.ToLower(status) {
	case "paid", "completed":
		out.Paid, out.Terminal = true, true
	case "canceled", "cancelled", "declined", "expired", "failed":
		out.Terminal = true
	}
	return out
}
