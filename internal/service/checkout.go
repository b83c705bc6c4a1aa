package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"paycore/internal/apperr"
	"paycore/internal/domain"
	"paycore/internal/models"
	"paycore/internal/repository"
	"paycore/internal/validation"
	"paycore/pkg/payment"
)

// CheckoutDetails overrides what the order record carries. BNPL providers need all of it.
type CheckoutDetails struct {
	Consumer        *payment.Consumer `json:"consumer"`
	BillingAddress  *payment.Address  `json:"billing_address"`
	ShippingAddress *payment.Address  `json:"shipping_address"`
	Locale          string            `json:"locale"`
	Description     string            `json:"description"`
}

type CreateIntentInput struct {
	OrderID  string
	UserID   uint
	Provider domain.Provider
	// Amount is the client's declared total; zero means use the order total.
	Amount   decimal.Decimal
	Currency string
	Checkout *CheckoutDetails
}

// CreateIntent opens a checkout with the provider and records a PENDING intent for the order.
// Cash on delivery settles immediately and is stored as COMPLETED with its projection marked
// applied, since stock for COD orders is taken when the order is placed.
//
// The order lock is held from the duplicate check until the intent is stored, so a second
// checkout for the same order is refused before it reaches the provider.
func (s *PaymentService) CreateIntent(ctx context.Context, in CreateIntentInput) (*models.PaymentIntent, error) {
	release, err := s.lockOrder(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}
	defer release()

	if _, err := s.intents.GetByOrderID(ctx, in.OrderID); err == nil {
		return nil, apperr.Newf(apperr.DuplicateIntent, "a payment already exists for order %s", in.OrderID)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	order, err := s.orders.GetByID(ctx, in.OrderID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && order.UserID != in.UserID) {
		return nil, apperr.Newf(apperr.OrderNotFound, "order %s not found", in.OrderID)
	}
	if err != nil {
		return nil, err
	}
	if order.PaymentStatus == domain.PaymentStatusPaid {
		return nil, apperr.Newf(apperr.InvalidState, "order %s is already paid", in.OrderID)
	}

	adapter, settings, err := s.settings.ForCheckout(ctx, in.Provider)
	if err != nil {
		return nil, err
	}

	req, declared, err := s.buildCheckout(order, in)
	if err != nil {
		return nil, err
	}
	if err := s.validateCheckout(adapter, req); err != nil {
		return nil, err
	}

	pctx, cancel := s.providerCtx(ctx)
	res, err := adapter.CreateCheckout(pctx, settings, req)
	cancel()
	if err != nil {
		s.log.Warn("create checkout failed",
			zap.String("order_id", in.OrderID),
			zap.String("provider", string(in.Provider)),
			zap.Error(err),
		)
		return nil, err
	}

	// The charge exists at the provider now; the intent must be recorded even if the caller
	// has gone away.
	persistCtx := context.WithoutCancel(ctx)
	intent := s.newIntent(order, in, req, res, declared)
	if err := s.intents.Create(persistCtx, intent); err != nil {
		s.log.Error("persist intent after provider accepted checkout",
			zap.String("order_id", in.OrderID),
			zap.String("provider", string(in.Provider)),
			zap.String("transaction_id", res.ExternalID),
			zap.Error(err),
		)
		s.voidCheckout(persistCtx, adapter, settings, in.OrderID, res.ExternalID)
		if errors.Is(err, repository.ErrDuplicateIntent) {
			return nil, apperr.Newf(apperr.DuplicateIntent, "a payment already exists for order %s", in.OrderID)
		}
		return nil, apperr.Wrap(apperr.Internal, "could not record payment", err)
	}

	s.log.Info("payment intent created", append(intentFields(intent), zap.String("status", string(intent.Status)))...)
	s.publish(ctx, intent, "")
	return intent, nil
}

func (s *PaymentService) newIntent(order *models.Order, in CreateIntentInput, req payment.CheckoutRequest, res *payment.CheckoutResult, declared decimal.Decimal) *models.PaymentIntent {
	ext := res.ExternalID
	p := &models.PaymentIntent{
		OrderID:        order.ID,
		UserID:         order.UserID,
		Amount:         req.Amount,
		Currency:       req.Currency,
		Provider:       in.Provider,
		Status:         domain.StatusPending,
		PaymentURL:     res.RedirectURL,
		ProviderStatus: res.ProviderStatus,
		Metadata:       datatypes.JSONMap{},
	}
	if ext != "" {
		p.TransactionID = &ext
	}
	if !declared.IsZero() && !declared.Equal(req.Amount) {
		p.Metadata[domain.MetaAmountAdjust] = payment.FormatAmount(declared, req.Currency)
	}
	if res.Settled {
		now := s.now()
		p.Status = domain.StatusCompleted
		p.CompletedAt = &now
		p.OrderSyncedAt = &now
		p.Metadata[domain.MetaSettlement] = "on_delivery"
	}
	return p
}

// voidCheckout cancels a provider checkout that has no intent recording it. Providers that
// deduplicate by order can hand the same checkout to two callers; if a stored intent already
// points at it, it is live and left alone.
func (s *PaymentService) voidCheckout(ctx context.Context, adapter payment.Provider, settings payment.Settings, orderID, externalID string) {
	if externalID == "" {
		return
	}
	if stored, err := s.intents.GetByOrderID(ctx, orderID); err == nil && stored.ExternalID() == externalID {
		s.log.Warn("checkout already recorded by another request",
			zap.String("order_id", orderID),
			zap.String("transaction_id", externalID),
		)
		return
	}
	cctx, cancel := s.providerCtx(ctx)
	defer cancel()
	if err := adapter.Cancel(cctx, settings, externalID, "intent could not be recorded"); err != nil {
		s.log.Error("void orphaned checkout",
			zap.String("provider", string(adapter.Name())),
			zap.String("transaction_id", externalID),
			zap.Error(err),
		)
	}
}

func (s *PaymentService) validateCheckout(adapter payment.Provider, req payment.CheckoutRequest) error {
	if fc, ok := adapter.(payment.FullCheckout); ok && fc.RequiresFullCheckout() {
		return validation.RequireCheckoutFields(req)
	}
	if k, ok := adapter.(payment.Keyless); ok && k.Keyless() {
		return nil
	}
	return validation.RequireCallbackURLs(req.URLs)
}

// buildCheckout assembles the provider request from the order and the optional details, and
// settles the amount to charge. It returns the declared amount for the audit trail.
func (s *PaymentService) buildCheckout(order *models.Order, in CreateIntentInput) (payment.CheckoutRequest, decimal.Decimal, error) {
	var req payment.CheckoutRequest
	currency := strings.ToUpper(in.Currency)
	if currency == "" {
		currency = order.Currency
	}
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}
	if order.Currency != "" && currency != order.Currency {
		return req, decimal.Zero, apperr.Newf(apperr.Invalid, "currency %s does not match order currency %s", currency, order.Currency)
	}

	details := in.Checkout
	if details == nil {
		details = &CheckoutDetails{}
	}
	consumer := payment.Consumer{
		FirstName: order.BillingAddress.FirstName,
		LastName:  order.BillingAddress.LastName,
		Email:     order.CustomerEmail,
		Phone:     order.CustomerPhone,
	}
	if details.Consumer != nil {
		consumer = *details.Consumer
	}
	if consumer.Phone != "" {
		phone, err := validation.NormalizePhone(consumer.Phone, s.cfg.CountryCode)
		if err != nil {
			return req, decimal.Zero, err
		}
		consumer.Phone = phone
	}

	billing := fromOrderAddress(order.BillingAddress)
	if details.BillingAddress != nil {
		billing = *details.BillingAddress
	}
	shipping := fromOrderAddress(order.ShippingAddress)
	if details.ShippingAddress != nil {
		shipping = *details.ShippingAddress
	}
	for _, a := range []*payment.Address{&billing, &shipping} {
		if a.Phone == "" {
			continue
		}
		phone, err := validation.NormalizePhone(a.Phone, s.cfg.CountryCode)
		if err != nil {
			return req, decimal.Zero, err
		}
		a.Phone = phone
	}

	amounts := validation.Amounts{
		Declared: in.Amount,
		Shipping: order.ShippingAmount,
		Tax:      order.TaxAmount,
		Discount: order.DiscountAmount,
	}
	if amounts.Declared.IsZero() {
		amounts.Declared = order.Total
	}
	items := make([]payment.Item, 0, len(order.Items))
	for _, it := range order.Items {
		items = append(items, payment.Item{
			ReferenceID: fmt.Sprint(it.ProductID),
			Name:        it.Name,
			SKU:         it.SKU,
			Quantity:    it.Quantity,
			UnitPrice:   it.Price,
		})
		amounts.Lines = append(amounts.Lines, it.LineTotal())
	}
	total, err := validation.ReconcileAmounts(s.log, order.ID, amounts, validation.AmountPolicy{
		Tolerance: s.cfg.AmountTolerance,
		HardLimit: s.cfg.AmountHardLimit,
	})
	if err != nil {
		return req, decimal.Zero, err
	}

	req = payment.CheckoutRequest{
		OrderID:         order.ID,
		Amount:          total,
		Currency:        currency,
		Shipping:        order.ShippingAmount,
		Tax:             order.TaxAmount,
		Discount:        order.DiscountAmount,
		Description:     details.Description,
		CountryCode:     s.cfg.CountryCode,
		Locale:          details.Locale,
		Consumer:        consumer,
		BillingAddress:  billing,
		ShippingAddress: shipping,
		Items:           items,
		URLs:            s.merchantURLs(in.Provider, order.ID),
	}
	return req, amounts.Declared, nil
}

func (s *PaymentService) merchantURLs(p domain.Provider, orderID string) payment.MerchantURLs {
	store := strings.TrimRight(s.cfg.StorefrontURL, "/")
	api := strings.TrimRight(s.cfg.PublicBaseURL, "/")
	q := "?order_id=" + url.QueryEscape(orderID)
	return payment.MerchantURLs{
		Success:      store + "/checkout/success" + q,
		Failure:      store + "/checkout/failure" + q,
		Cancel:       store + "/checkout/cancel" + q,
		Notification: api + "/api/v1/payments/" + string(p) + "/webhook",
	}
}

func fromOrderAddress(a models.Address) payment.Address {
	return payment.Address{
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Line1:     a.Line1,
		Line2:     a.Line2,
		City:      a.City,
		Region:    a.Region,
		ZipCode:   a.ZipCode,
		Country:   a.Country,
		Phone:     a.Phone,
	}
}
