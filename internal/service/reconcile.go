package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"paycore/internal/apperr"
	"paycore/internal/domain"
	"paycore/internal/models"
	"paycore/internal/repository"
	"paycore/pkg/payment"
)

// Result is what reconciling one provider signal did.
type Result string

const (
	ResultApplied   Result = "applied"
	ResultDuplicate Result = "duplicate"
	ResultIgnored   Result = "ignored"
	ResultNoop      Result = "noop"
)

type Outcome struct {
	Result   Result              `json:"result"`
	OrderID  string              `json:"order_id,omitempty"`
	IntentID uint                `json:"intent_id,omitempty"`
	Status   domain.IntentStatus `json:"status,omitempty"`
}

func outcome(r Result, p *models.PaymentIntent) *Outcome {
	if p == nil {
		return &Outcome{Result: r}
	}
	return &Outcome{Result: r, OrderID: p.OrderID, IntentID: p.ID, Status: p.Status}
}

// Reconcile converges the intent named by ev with what the provider reported. Webhooks and
// manual verification both end here. It is safe to call any number of times with the same
// event, in any order, concurrently: the order lock serializes callers, status changes are
// conditional updates, and the order projection is claimed once per intent.
func (s *PaymentService) Reconcile(ctx context.Context, provider domain.Provider, ev *payment.Event) (*Outcome, error) {
	p, err := s.findIntent(ctx, provider, ev)
	if errors.Is(err, repository.ErrNotFound) {
		s.log.Info("reconcile: no intent for provider event",
			zap.String("provider", string(provider)),
			zap.String("external_id", ev.ExternalID),
			zap.String("order_ref", ev.OrderRef),
			zap.String("raw_status", ev.RawStatus),
		)
		return outcome(ResultIgnored, nil), nil
	}
	if err != nil {
		return nil, err
	}

	release, err := s.lockOrder(ctx, p.OrderID)
	if err != nil {
		return nil, err
	}
	defer release()

	if p, err = s.intents.GetByID(ctx, p.ID); err != nil {
		return nil, err
	}
	if p.TransactionID == nil && ev.ExternalID != "" {
		if err := s.intents.SetTransactionID(ctx, p.ID, ev.ExternalID); err != nil {
			return nil, err
		}
		ext := ev.ExternalID
		p.TransactionID = &ext
	}
	return s.apply(ctx, p, ev)
}

func (s *PaymentService) findIntent(ctx context.Context, provider domain.Provider, ev *payment.Event) (*models.PaymentIntent, error) {
	if ev.ExternalID != "" {
		p, err := s.intents.GetByTransactionID(ctx, provider, ev.ExternalID)
		if !errors.Is(err, repository.ErrNotFound) {
			return p, err
		}
	}
	if ev.OrderRef == "" {
		return nil, repository.ErrNotFound
	}
	p, err := s.intents.GetByOrderID(ctx, ev.OrderRef)
	if err != nil {
		return nil, err
	}
	// the order's intent belongs to another provider or another charge
	if p.Provider != provider || (p.TransactionID != nil && ev.ExternalID != "" && *p.TransactionID != ev.ExternalID) {
		return nil, repository.ErrNotFound
	}
	return p, nil
}

// apply must run under the order lock.
func (s *PaymentService) apply(ctx context.Context, p *models.PaymentIntent, ev *payment.Event) (*Outcome, error) {
	switch {
	case p.Status == domain.StatusCompleted:
		if p.OrderSyncedAt != nil {
			return outcome(ResultDuplicate, p), nil
		}
		// a previous run committed the transition but not the projection
		applied, err := s.projectPaid(ctx, p)
		if err != nil {
			return nil, err
		}
		if !applied {
			return outcome(ResultDuplicate, p), nil
		}
		s.log.Info("replayed paid projection", intentFields(p)...)
		return outcome(ResultApplied, p), nil

	case p.Status == domain.StatusRefunded && ev.Paid:
		// providers keep redelivering the original capture after a refund
		return outcome(ResultDuplicate, p), nil

	case ev.Paid && !p.Status.IsTerminal():
		return s.complete(ctx, p, ev)

	case ev.InProgress && (p.Status == domain.StatusPending || p.Status == domain.StatusProcessing):
		return s.progress(ctx, p, ev)

	case ev.Terminal && !ev.Paid && !p.Status.IsTerminal():
		return s.fail(ctx, p, ev)

	case p.Status == domain.StatusFailed && p.OrderSyncedAt == nil:
		if _, err := s.projectFailed(ctx, p); err != nil {
			return nil, err
		}
		return outcome(ResultApplied, p), nil
	}

	if ev.Paid && p.Status.IsTerminal() {
		// money moved for a failed or cancelled intent; needs a human
		s.log.Error("paid signal for closed intent",
			append(intentFields(p), zap.String("status", string(p.Status)), zap.String("raw_status", ev.RawStatus))...)
	}
	if ev.RawStatus != "" && ev.RawStatus != p.ProviderStatus && !p.Status.IsTerminal() {
		if err := s.intents.UpdateProviderStatus(ctx, p.ID, ev.RawStatus); err != nil {
			s.log.Warn("update provider status", append(intentFields(p), zap.Error(err))...)
		}
	}
	return outcome(ResultNoop, p), nil
}

func (s *PaymentService) complete(ctx context.Context, p *models.PaymentIntent, ev *payment.Event) (*Outcome, error) {
	prev := p.Status
	now := s.now()
	fields := map[string]any{
		"completed_at":    now,
		"provider_status": ev.RawStatus,
	}
	if ev.CaptureID != "" {
		fields["metadata"] = withMeta(p.Metadata, domain.MetaCaptureID, ev.CaptureID)
	}
	moved, err := s.intents.Transition(ctx, p.ID, domain.Sources(domain.StatusCompleted), domain.StatusCompleted, fields)
	if err != nil {
		return nil, err
	}
	if !moved {
		return outcome(ResultDuplicate, p), nil
	}
	s.log.Info("payment completed", append(intentFields(p), zap.String("raw_status", ev.RawStatus))...)

	if ev.Amount.IsPositive() && !ev.Amount.Equal(p.Amount) {
		s.log.Warn("provider reported a different amount",
			append(intentFields(p), zap.String("expected", p.Amount.StringFixed(2)), zap.String("reported", ev.Amount.StringFixed(2)))...)
	}

	p.Status = domain.StatusCompleted
	if _, err := s.projectPaid(ctx, p); err != nil {
		// the intent stays COMPLETED with order_synced_at NULL and is replayed later
		s.log.Error("apply paid projection", append(intentFields(p), zap.Error(err))...)
		s.published(ctx, p.ID, prev)
		return nil, err
	}
	cur := s.published(ctx, p.ID, prev)
	if cur == nil {
		cur = p
	}
	return outcome(ResultApplied, cur), nil
}

// progress handles an approved-but-not-captured signal. Providers that need the merchant to
// authorise are asked to; a successful authorisation completes the intent.
func (s *PaymentService) progress(ctx context.Context, p *models.PaymentIntent, ev *payment.Event) (*Outcome, error) {
	result := ResultNoop
	if p.Status == domain.StatusPending {
		moved, err := s.intents.Transition(ctx, p.ID, domain.Sources(domain.StatusProcessing), domain.StatusProcessing,
			map[string]any{"provider_status": ev.RawStatus})
		if err != nil {
			return nil, err
		}
		if moved {
			result = ResultApplied
			if cur := s.published(ctx, p.ID, domain.StatusPending); cur != nil {
				p = cur
			} else {
				p.Status = domain.StatusProcessing
			}
		}
	}

	adapter, settings, err := s.settings.ForOperation(ctx, p.Provider)
	if err != nil {
		return nil, err
	}
	authz, ok := adapter.(payment.Authorizer)
	if !ok {
		return outcome(result, p), nil
	}
	pctx, cancel := s.providerCtx(ctx)
	paid, err := authz.Authorize(pctx, settings, p.ExternalID(), p.Amount, p.Currency)
	cancel()
	if err != nil {
		s.log.Warn("authorise approved payment", append(intentFields(p), zap.Error(err))...)
		return nil, err
	}
	if !paid {
		return outcome(result, p), nil
	}
	return s.complete(ctx, p, &payment.Event{
		ExternalID: p.ExternalID(),
		OrderRef:   p.OrderID,
		Paid:       true,
		Terminal:   true,
		RawStatus:  "authorised",
		Amount:     p.Amount,
		CaptureID:  ev.CaptureID,
	})
}

func (s *PaymentService) fail(ctx context.Context, p *models.PaymentIntent, ev *payment.Event) (*Outcome, error) {
	prev := p.Status
	moved, err := s.intents.Transition(ctx, p.ID, domain.Sources(domain.StatusFailed), domain.StatusFailed, map[string]any{
		"provider_status": ev.RawStatus,
		"metadata":        withMeta(p.Metadata, domain.MetaFailureStatus, ev.RawStatus),
	})
	if err != nil {
		return nil, err
	}
	if !moved {
		return outcome(ResultDuplicate, p), nil
	}
	s.log.Info("payment failed", append(intentFields(p), zap.String("raw_status", ev.RawStatus))...)
	p.Status = domain.StatusFailed
	if _, err := s.projectFailed(ctx, p); err != nil {
		s.log.Error("apply failed projection", append(intentFields(p), zap.Error(err))...)
		s.published(ctx, p.ID, prev)
		return nil, err
	}
	cur := s.published(ctx, p.ID, prev)
	if cur == nil {
		cur = p
	}
	return outcome(ResultApplied, cur), nil
}

// projectPaid marks the order paid and, except for cash-on-delivery orders whose stock was
// taken at placement, deducts stock. It runs at most once per intent.
func (s *PaymentService) projectPaid(ctx context.Context, p *models.PaymentIntent) (bool, error) {
	return s.project(ctx, p, func(tx *gorm.DB, order *models.Order, now time.Time) error {
		if err := s.orders.WithTx(tx).MarkPaid(ctx, order.ID, now); err != nil {
			return err
		}
		if order.PaymentMethod == domain.PaymentMethodCOD {
			return nil
		}
		lines := make([]repository.StockLine, 0, len(order.Items))
		for _, it := range order.Items {
			lines = append(lines, repository.StockLine{ProductID: it.ProductID, Qty: it.Quantity})
		}
		return s.products.WithTx(tx).DeductSold(ctx, lines)
	})
}

func (s *PaymentService) projectFailed(ctx context.Context, p *models.PaymentIntent) (bool, error) {
	return s.project(ctx, p, func(tx *gorm.DB, order *models.Order, _ time.Time) error {
		return s.orders.WithTx(tx).MarkFailed(ctx, order.ID)
	})
}

// project claims the intent's projection marker and applies fn in the same transaction. A lost
// claim means another caller already applied it and fn is skipped.
func (s *PaymentService) project(ctx context.Context, p *models.PaymentIntent, fn func(tx *gorm.DB, order *models.Order, now time.Time) error) (bool, error) {
	applied := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now()
		won, err := s.intents.WithTx(tx).ClaimProjection(ctx, p.ID, now)
		if err != nil || !won {
			return err
		}
		order, err := s.orders.WithTx(tx).GetByID(ctx, p.OrderID)
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.Newf(apperr.OrderNotFound, "order %s not found", p.OrderID)
		}
		if err != nil {
			return err
		}
		if err := fn(tx, order, now); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}
