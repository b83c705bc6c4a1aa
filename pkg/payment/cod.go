package payment

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"paycore/internal/apperr"
	"paycore/internal/domain"
)

// CashOnDelivery is the provider with no remote side. Checkout succeeds immediately with a
// synthetic reference; there is nothing to poll, refund or notify.
type CashOnDelivery struct{}

func NewCashOnDelivery() *CashOnDelivery { return &CashOnDelivery{} }

func (CashOnDelivery) Name() domain.Provider { return domain.ProviderCOD }

func (CashOnDelivery) Keyless() bool { return true }

func (CashOnDelivery) CreateCheckout(_ context.Context, _ Settings, _ CheckoutRequest) (*CheckoutResult, error) {
	return &CheckoutResult{
		ExternalID:     "cod_" + uuid.NewString(),
		ProviderStatus: "on_delivery",
		Settled:        true,
	}, nil
}

func (CashOnDelivery) RetrieveStatus(_ context.Context, _ Settings, _ string) (*StatusResult, error) {
	return &StatusResult{Paid: true, Terminal: true, Status: "on_delivery"}, nil
}

func (CashOnDelivery) Refund(context.Context, Settings, string, decimal.Decimal, string, string) (*RefundResult, error) {
	return &RefundResult{RefundID: "cod_refund_" + uuid.NewString(), Status: "manual"}, nil
}

func (CashOnDelivery) Cancel(context.Context, Settings, string, string) error { return nil }

func (CashOnDelivery) ValidateWebhook(Settings, WebhookRequest) error {
	return apperr.New(apperr.WebhookValidationFailed, "cash on delivery does not accept webhooks")
}

func (CashOnDelivery) ParseWebhook([]byte) (*Event, error) {
	return nil, apperr.New(apperr.Invalid, "cash on delivery does not accept webhooks")
}
