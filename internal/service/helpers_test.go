package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"paycore/config"
	"paycore/internal/apperr"
	"paycore/internal/domain"
	"paycore/internal/events"
	"paycore/internal/lock"
	"paycore/internal/models"
	"paycore/internal/repository"
	"paycore/internal/testutil"
	"paycore/pkg/payment"
)

const testSignatureHeader = "X-Test-Signature"

// fakeGateway is a scriptable provider. Its webhooks are {"id","order","status"} documents
// signed by echoing the webhook secret in testSignatureHeader.
type fakeGateway struct {
	name domain.Provider

	mu          sync.Mutex
	checkouts   int
	refunds     []decimal.Decimal
	cancels     []string
	status      payment.StatusResult
	checkoutErr error
	refundErr   error
	lastRequest payment.CheckoutRequest
	// checkoutDelay widens the window between the duplicate check and the insert.
	checkoutDelay time.Duration
}

func newFakeGateway(name domain.Provider) *fakeGateway {
	return &fakeGateway{name: name}
}

func (f *fakeGateway) Name() domain.Provider { return f.name }

func (f *fakeGateway) CreateCheckout(_ context.Context, _ payment.Settings, req payment.CheckoutRequest) (*payment.CheckoutResult, error) {
	time.Sleep(f.checkoutDelay)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.checkoutErr != nil {
		return nil, f.checkoutErr
	}
	f.checkouts++
	f.lastRequest = req
	return &payment.CheckoutResult{
		ExternalID:     "ext_" + req.OrderID,
		RedirectURL:    "https://pay.example.com/" + req.OrderID,
		ProviderStatus: "open",
	}, nil
}

func (f *fakeGateway) RetrieveStatus(context.Context, payment.Settings, string) (*payment.StatusResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.status
	return &st, nil
}

func (f *fakeGateway) Refund(_ context.Context, _ payment.Settings, _ string, amount decimal.Decimal, _, _ string) (*payment.RefundResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refundErr != nil {
		return nil, f.refundErr
	}
	f.refunds = append(f.refunds, amount)
	return &payment.RefundResult{RefundID: "re_" + uuid.NewString()[:8], Status: "succeeded"}, nil
}

func (f *fakeGateway) Cancel(_ context.Context, _ payment.Settings, externalID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, externalID)
	return nil
}

func (f *fakeGateway) ValidateWebhook(s payment.Settings, r payment.WebhookRequest) error {
	if s.WebhookSecret == "" {
		if s.AllowUnsignedWebhooks {
			return payment.ErrUnsigned
		}
		return apperr.New(apperr.WebhookValidationFailed, "webhook secret not configured")
	}
	if r.Header.Get(testSignatureHeader) != s.WebhookSecret {
		return apperr.New(apperr.WebhookValidationFailed, "invalid webhook signature")
	}
	return nil
}

func (f *fakeGateway) ParseWebhook(body []byte) (*payment.Event, error) {
	var doc struct {
		ID     string `json:"id"`
		Order  string `json:"order"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, apperr.Wrap(apperr.Invalid, "malformed webhook payload", err)
	}
	ev := &payment.Event{ExternalID: doc.ID, OrderRef: doc.Order, RawStatus: doc.Status}
	switch doc.Status {
	case "paid":
		ev.Paid, ev.Terminal = true, true
	case "approved":
		ev.InProgress = true
	case "failed", "expired":
		ev.Terminal = true
	case "pending":
	default:
		return nil, payment.ErrIgnoredEvent
	}
	return ev, nil
}

func (f *fakeGateway) cancelled() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cancels...)
}

func (f *fakeGateway) refundCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.refunds)
}

// fakeBNPL needs full checkout data and authorises approved orders.
type fakeBNPL struct {
	*fakeGateway
	authorized int
	authorize  bool
}

func (f *fakeBNPL) RequiresFullCheckout() bool { return true }

func (f *fakeBNPL) Authorize(context.Context, payment.Settings, string, decimal.Decimal, string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authorized++
	return f.authorize, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.IntentEvent
}

func (r *recordingPublisher) Publish(_ context.Context, e events.IntentEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingPublisher) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func testPaymentConfig() config.PaymentConfig {
	return config.PaymentConfig{
		DefaultCurrency: "SAR",
		CountryCode:     "966",
		AmountTolerance: decimal.RequireFromString("0.01"),
		ProviderTimeout: 5 * time.Second,
		LockTTL:         5 * time.Second,
		PublicBaseURL:   "https://api.example.com",
		StorefrontURL:   "https://shop.example.com",
	}
}

type fixture struct {
	db        *gorm.DB
	svc       *PaymentService
	settings  *SettingsService
	published *recordingPublisher
	intents   *repository.IntentRepository
	orders    *repository.OrderRepository
}

func newFixture(t *testing.T, cfg config.PaymentConfig, log *zap.Logger, adapters ...payment.Provider) *fixture {
	t.Helper()
	if log == nil {
		log = zap.NewNop()
	}
	db := testutil.NewDB(t)
	settings := NewSettingsService(repository.NewSettingRepository(db), payment.NewRegistry(adapters...))
	pub := &recordingPublisher{}
	return &fixture{
		db:        db,
		svc:       NewPaymentService(db, settings, lock.NewLocalLocker(), pub, cfg, log),
		settings:  settings,
		published: pub,
		intents:   repository.NewIntentRepository(db),
		orders:    repository.NewOrderRepository(db),
	}
}

func (f *fixture) intent(t *testing.T, orderID string) *models.PaymentIntent {
	t.Helper()
	p, err := f.intents.GetByOrderID(context.Background(), orderID)
	if err != nil {
		t.Fatalf("load intent %s: %v", orderID, err)
	}
	return p
}

func (f *fixture) order(t *testing.T, orderID string) *models.Order {
	t.Helper()
	o, err := f.orders.GetByID(context.Background(), orderID)
	if err != nil {
		t.Fatalf("load order %s: %v", orderID, err)
	}
	return o
}

func cardSettings() map[string]any {
	return map[string]any{"secretKey": "sk_test_1", "webhookSecret": "whsec_1"}
}

func webhook(id, order, status, signature string) payment.WebhookRequest {
	body, _ := json.Marshal(map[string]string{"id": id, "order": order, "status": status})
	req := payment.WebhookRequest{Body: body, Header: map[string][]string{}}
	if signature != "" {
		req.Header.Set(testSignatureHeader, signature)
	}
	return req
}
