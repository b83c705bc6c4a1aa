package domain

const (
	RoleCustomer = "CUSTOMER"
	RoleAdmin    = "ADMIN"
)

// Provider identifies a payment provider adapter.
type Provider string

const (
	ProviderCard    Provider = "card"    // hosted card gateway
	ProviderTabby   Provider = "tabby"   // buy-now-pay-later A
	ProviderTamara  Provider = "tamara"  // buy-now-pay-later B
	ProviderInvoice Provider = "invoice" // invoice gateway
	ProviderCOD     Provider = "cod"     // cash on delivery
)

var Providers = []Provider{ProviderCard, ProviderTabby, ProviderTamara, ProviderInvoice, ProviderCOD}

func ParseProvider(s string) (Provider, bool) {
	for _, p := range Providers {
		if string(p) == s {
			return p, true
		}
	}
	return "", false
}

// Order-side payment and fulfilment statuses written by the engine.
const (
	PaymentStatusPending   = "pending"
	PaymentStatusPaid      = "paid"
	PaymentStatusFailed    = "failed"
	PaymentStatusRefunded  = "refunded"
	PaymentStatusCancelled = "cancelled"
)

const (
	OrderStatusProcessing = "processing"
	OrderStatusConfirmed  = "confirmed"
	OrderStatusCancelled  = "cancelled"
)

// Order payment methods. COD orders deduct stock when the order is placed.
const (
	PaymentMethodCOD = "cod"
)

// Metadata keys stored on an intent.
const (
	MetaRefundID      = "refund_id"
	MetaRefundAmount  = "refund_amount"
	MetaRefundReason  = "refund_reason"
	MetaCancelReason  = "cancel_reason"
	MetaCaptureID     = "capture_id"
	MetaSettlement    = "settlement"
	MetaAmountAdjust  = "amount_adjusted_from"
	MetaFailureStatus = "failure_status"
)

// Webhook audit outcomes.
const (
	WebhookApplied   = "applied"
	WebhookDuplicate = "duplicate"
	WebhookIgnored   = "ignored"
	WebhookRejected  = "rejected"
	WebhookError     = "error"
)
