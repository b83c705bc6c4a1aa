package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
	"github.com/stripe/stripe-go/v74/webhook"

	"paycore/internal/apperr"
	"paycore/internal/domain"
)

// ErrIgnoredEvent marks a well-formed notification the engine has no use for.
var ErrIgnoredEvent = errors.New("webhook event type not handled")

const stripeSignatureHeader = "Stripe-Signature"

// CardGateway opens hosted card checkout sessions through Stripe. The session id is the
// intent's transaction id; refunds go through the session's payment intent.
type CardGateway struct {
	timeout time.Duration
}

func NewCardGateway(timeout time.Duration) *CardGateway {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &CardGateway{timeout: timeout}
}

func (g *CardGateway) Name() domain.Provider { return domain.ProviderCard }

func (g *CardGateway) api(s Settings) *client.API {
	cfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: g.timeout},
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
	}
	if s.BaseURL != "" {
		cfg.URL = stripe.String(s.BaseURL)
	}
	return client.New(s.Credential(), &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, cfg),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, cfg),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, cfg),
	})
}

func (g *CardGateway) CreateCheckout(ctx context.Context, s Settings, req CheckoutRequest) (*CheckoutResult, error) {
	if err := requireCredential("card gateway", s); err != nil {
		return nil, err
	}
	name := req.Description
	if name == "" {
		name = "Order " + req.OrderID
	}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(req.OrderID),
		SuccessURL:        stripe.String(req.URLs.Success),
		CancelURL:         stripe.String(req.URLs.Cancel),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(strings.ToLower(req.Currency)),
				UnitAmount:  stripe.Int64(stripeMinorUnits(req.Amount, req.Currency)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{Name: stripe.String(name)},
			},
		}},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{"order_id": req.OrderID},
		},
	}
	if req.Consumer.Email != "" {
		params.CustomerEmail = stripe.String(req.Consumer.Email)
	}
	params.AddMetadata("order_id", req.OrderID)
	params.Context = ctx
	params.SetIdempotencyKey("checkout-" + req.OrderID)

	sess, err := g.api(s).CheckoutSessions.New(params)
	if err != nil {
		return nil, stripeError(err)
	}
	return &CheckoutResult{
		ExternalID:     sess.ID,
		RedirectURL:    sess.URL,
		ProviderStatus: string(sess.Status),
	}, nil
}

func (g *CardGateway) session(ctx context.Context, s Settings, id string) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("payment_intent")
	sess, err := g.api(s).CheckoutSessions.Get(id, params)
	if err != nil {
		return nil, stripeError(err)
	}
	return sess, nil
}

func (g *CardGateway) RetrieveStatus(ctx context.Context, s Settings, externalID string) (*StatusResult, error) {
	if err := requireCredential("card gateway", s); err != nil {
		return nil, err
	}
	sess, err := g.session(ctx, s, externalID)
	if err != nil {
		return nil, err
	}
	return sessionStatus(sess), nil
}

func (g *CardGateway) Refund(ctx context.Context, s Settings, externalID string, amount decimal.Decimal, currency, reason string) (*RefundResult, error) {
	if err := requireCredential("card gateway", s); err != nil {
		return nil, err
	}
	sess, err := g.session(ctx, s, externalID)
	if err != nil {
		return nil, err
	}
	if sess.PaymentIntent == nil || sess.PaymentIntent.ID == "" {
		return nil, apperr.New(apperr.ProviderRejected, "checkout session has no captured payment")
	}
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(sess.PaymentIntent.ID),
		Amount:        stripe.Int64(stripeMinorUnits(amount, currency)),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	if reason != "" {
		params.AddMetadata("reason", reason)
	}
	params.Context = ctx
	ref, err := g.api(s).Refunds.New(params)
	if err != nil {
		return nil, stripeError(err)
	}
	if ref.Status == stripe.RefundStatusFailed || ref.Status == stripe.RefundStatusCanceled {
		return nil, apperr.Newf(apperr.ProviderRejected, "refund %s", ref.Status)
	}
	return &RefundResult{RefundID: ref.ID, Status: string(ref.Status)}, nil
}

// Cancel expires an open checkout session.
func (g *CardGateway) Cancel(ctx context.Context, s Settings, externalID, reason string) error {
	if err := requireCredential("card gateway", s); err != nil {
		return err
	}
	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx
	if _, err := g.api(s).CheckoutSessions.Expire(externalID, params); err != nil {
		return stripeError(err)
	}
	return nil
}

func (g *CardGateway) ValidateWebhook(s Settings, r WebhookRequest) error {
	if s.WebhookSecret == "" {
		return missingSecret(s, false)
	}
	sig := r.Header.Get(stripeSignatureHeader)
	if sig == "" {
		return apperr.New(apperr.WebhookValidationFailed, "missing Stripe-Signature header")
	}
	if err := webhook.ValidatePayload(r.Body, sig, s.WebhookSecret); err != nil {
		return apperr.Wrap(apperr.WebhookValidationFailed, "invalid webhook signature", err)
	}
	return nil
}

func (g *CardGateway) ParseWebhook(payload []byte) (*Event, error) {
	var ev stripe.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, apperr.Wrap(apperr.Invalid, "malformed card gateway event", err)
	}
	if !strings.HasPrefix(string(ev.Type), "checkout.session.") || ev.Data == nil {
		return nil, ErrIgnoredEvent
	}
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(ev.Data.Raw, &sess); err != nil {
		return nil, apperr.Wrap(apperr.Invalid, "malformed checkout session", err)
	}
	out := &Event{
		ExternalID: sess.ID,
		OrderRef:   sess.ClientReferenceID,
		RawStatus:  string(ev.Type),
		Amount:     stripeFromMinorUnits(sess.AmountTotal, string(sess.Currency)),
	}
	switch ev.Type {
	case "checkout.session.completed":
		st := sessionStatus(&sess)
		out.Paid = st.Paid
		out.Terminal = st.Paid
		out.InProgress = !st.Paid
	case "checkout.session.async_payment_succeeded":
		out.Paid, out.Terminal = true, true
	case "checkout.session.async_payment_failed", "checkout.session.expired":
		out.Terminal = true
	default:
		return nil, ErrIgnoredEvent
	}
	if sess.PaymentIntent != nil {
		out.CaptureID = sess.PaymentIntent.ID
	}
	return out, nil
}

func sessionStatus(sess *stripe.CheckoutSession) *StatusResult {
	out := &StatusResult{
		Status: string(sess.PaymentStatus),
		Amount: stripeFromMinorUnits(sess.AmountTotal, string(sess.Currency)),
	}
	switch {
	case sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
		out.Paid = true
		out.Terminal = true
	case sess.Status == stripe.CheckoutSessionStatusExpired:
		out.Status = string(sess.Status)
		out.Terminal = true
	case sess.Status == stripe.CheckoutSessionStatusComplete:
		// completed but the async payment method has not cleared yet
		out.InProgress = true
	}
	if sess.PaymentIntent != nil {
		out.CaptureID = sess.PaymentIntent.ID
	}
	return out
}

func stripeError(err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		if se.HTTPStatusCode >= 500 || se.HTTPStatusCode == http.StatusTooManyRequests || se.HTTPStatusCode == 0 {
			return apperr.Wrap(apperr.ProviderUnavailable, "card gateway unavailable", err)
		}
		msg := se.Msg
		if msg == "" {
			msg = "card gateway rejected the request"
		}
		return apperr.Wrap(apperr.ProviderRejected, msg, err)
	}
	return apperr.Wrap(apperr.ProviderUnavailable, "card gateway unreachable", err)
}
