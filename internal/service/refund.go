package service

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"paycore/internal/apperr"
	"paycore/internal/domain"
	"paycore/internal/models"
	"paycore/pkg/payment"
)

// Refund returns money for a completed payment. A zero amount refunds the whole intent.
// Stock is not restored.
func (s *PaymentService) Refund(ctx context.Context, orderID string, amount decimal.Decimal, reason string) (*models.PaymentIntent, error) {
	release, err := s.lockOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	defer release()

	p, err := s.intentByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if p.Status != domain.StatusCompleted {
		return nil, apperr.Newf(apperr.InvalidState, "payment for order %s is %s, only completed payments can be refunded", orderID, p.Status)
	}
	if amount.IsZero() {
		amount = p.Amount
	}
	if amount.IsNegative() || amount.GreaterThan(p.Amount) {
		return nil, apperr.Newf(apperr.Invalid, "refund amount must be between 0 and %s", payment.FormatAmount(p.Amount, p.Currency))
	}
	if p.OrderSyncedAt == nil {
		// the order must reflect the payment before it can reflect the refund
		if _, err := s.projectPaid(ctx, p); err != nil {
			return nil, err
		}
	}

	adapter, settings, err := s.settings.ForOperation(ctx, p.Provider)
	if err != nil {
		return nil, err
	}
	pctx, cancel := s.providerCtx(ctx)
	res, err := adapter.Refund(pctx, settings, p.ExternalID(), amount, p.Currency, reason)
	cancel()
	if err != nil {
		s.log.Warn("provider refund", append(intentFields(p), zap.Error(err))...)
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		moved, err := s.intents.WithTx(tx).Transition(ctx, p.ID, domain.Sources(domain.StatusRefunded), domain.StatusRefunded, map[string]any{
			"refunded_at": s.now(),
			"metadata": withMeta(p.Metadata,
				domain.MetaRefundID, res.RefundID,
				domain.MetaRefundAmount, payment.FormatAmount(amount, p.Currency),
				domain.MetaRefundReason, reason,
			),
		})
		if err != nil {
			return err
		}
		if !moved {
			return apperr.Newf(apperr.InvalidState, "payment for order %s changed during refund", orderID)
		}
		return s.orders.WithTx(tx).MarkRefunded(ctx, orderID)
	})
	if err != nil {
		// the provider refunded; the record needs fixing by hand
		s.log.Error("persist refund", append(intentFields(p), zap.String("refund_id", res.RefundID), zap.Error(err))...)
		return nil, err
	}
	s.log.Info("payment refunded", append(intentFields(p),
		zap.String("refund_id", res.RefundID),
		zap.String("amount", amount.StringFixed(2)),
	)...)
	return s.published(ctx, p.ID, domain.StatusCompleted), nil
}

// Cancel voids a payment that has not settled yet.
func (s *PaymentService) Cancel(ctx context.Context, orderID, reason string) (*models.PaymentIntent, error) {
	release, err := s.lockOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	defer release()

	p, err := s.intentByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if p.Status != domain.StatusPending && p.Status != domain.StatusProcessing {
		return nil, apperr.Newf(apperr.InvalidState, "payment for order %s is %s and can no longer be cancelled", orderID, p.Status)
	}

	adapter, settings, err := s.settings.ForOperation(ctx, p.Provider)
	if err != nil {
		return nil, err
	}
	if p.ExternalID() != "" {
		pctx, cancel := s.providerCtx(ctx)
		err = adapter.Cancel(pctx, settings, p.ExternalID(), reason)
		cancel()
		if err != nil {
			s.log.Warn("provider cancel", append(intentFields(p), zap.Error(err))...)
			return nil, err
		}
	}

	prev := p.Status
	ctx = context.WithoutCancel(ctx)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		moved, err := s.intents.WithTx(tx).Transition(ctx, p.ID, domain.Sources(domain.StatusCancelled), domain.StatusCancelled, map[string]any{
			"metadata": withMeta(p.Metadata, domain.MetaCancelReason, reason),
		})
		if err != nil {
			return err
		}
		if !moved {
			return apperr.Newf(apperr.InvalidState, "payment for order %s changed during cancel", orderID)
		}
		if _, err := s.intents.WithTx(tx).ClaimProjection(ctx, p.ID, s.now()); err != nil {
			return err
		}
		return s.orders.WithTx(tx).MarkCancelled(ctx, orderID)
	})
	if err != nil {
		s.log.Error("persist cancel", append(intentFields(p), zap.Error(err))...)
		return nil, err
	}
	s.log.Info("payment cancelled", append(intentFields(p), zap.String("reason", reason))...)
	return s.published(ctx, p.ID, prev), nil
}
