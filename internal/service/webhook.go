package service

import (
	"context"
	"encoding/json"
	"errors"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"paycore/internal/apperr"
	"paycore/internal/domain"
	"paycore/internal/models"
	"paycore/pkg/payment"
)

// HandleWebhook authenticates, audits and reconciles one provider callback. A nil error means
// the delivery should be acknowledged; returned errors are either validation failures or
// conditions the provider should retry.
func (s *PaymentService) HandleWebhook(ctx context.Context, provider domain.Provider, req payment.WebhookRequest) (*Outcome, error) {
	adapter, settings, err := s.settings.ForWebhook(ctx, provider)
	if err != nil {
		return nil, err
	}
	audit := &models.WebhookEvent{Provider: provider, Payload: auditPayload(req.Body)}

	unsigned := false
	if err := adapter.ValidateWebhook(settings, req); err != nil {
		if !errors.Is(err, payment.ErrUnsigned) {
			s.log.Warn("webhook rejected", zap.String("provider", string(provider)), zap.Error(err))
			s.audit(ctx, audit, domain.WebhookRejected, err)
			if apperr.Is(err, apperr.WebhookValidationFailed) {
				return nil, err
			}
			return nil, apperr.Wrap(apperr.WebhookValidationFailed, "invalid webhook signature", err)
		}
		if !s.cfg.AllowUnsignedWebhooks {
			s.log.Warn("unsigned webhook refused", zap.String("provider", string(provider)))
			s.audit(ctx, audit, domain.WebhookRejected, err)
			return nil, apperr.New(apperr.WebhookValidationFailed, "webhook secret not configured")
		}
		s.log.Warn("accepting unsigned webhook", zap.String("provider", string(provider)))
		unsigned = true
	}

	ev, err := adapter.ParseWebhook(req.Body)
	if errors.Is(err, payment.ErrIgnoredEvent) {
		s.audit(ctx, audit, domain.WebhookIgnored, nil)
		return outcome(ResultIgnored, nil), nil
	}
	if err != nil {
		// malformed bodies are acknowledged so the provider stops resending them
		s.log.Warn("unparseable webhook", zap.String("provider", string(provider)), zap.Error(err))
		s.audit(ctx, audit, domain.WebhookIgnored, err)
		return outcome(ResultIgnored, nil), nil
	}
	audit.ExternalID = ev.ExternalID
	audit.RawStatus = ev.RawStatus

	if unsigned {
		// nothing in an unsigned body is trusted; the provider's own view decides
		if ev, err = s.confirmUnsigned(ctx, adapter, settings, ev); err != nil {
			s.log.Warn("confirm unsigned webhook",
				zap.String("provider", string(provider)),
				zap.String("external_id", audit.ExternalID),
				zap.Error(err),
			)
			s.audit(ctx, audit, domain.WebhookError, err)
			return nil, err
		}
	}

	out, err := s.Reconcile(ctx, provider, ev)
	if err != nil {
		s.log.Error("reconcile webhook",
			zap.String("provider", string(provider)),
			zap.String("external_id", ev.ExternalID),
			zap.Error(err),
		)
		s.audit(ctx, audit, domain.WebhookError, err)
		return nil, err
	}
	s.audit(ctx, audit, string(out.Result), nil)
	return out, nil
}

// confirmUnsigned replaces the claimed status of an unsigned callback with the status the
// provider reports for the same external id.
func (s *PaymentService) confirmUnsigned(ctx context.Context, adapter payment.Provider, settings payment.Settings, claimed *payment.Event) (*payment.Event, error) {
	if claimed.ExternalID == "" {
		return nil, apperr.New(apperr.WebhookValidationFailed, "unsigned webhook without external id")
	}
	pctx, cancel := s.providerCtx(ctx)
	defer cancel()
	st, err := adapter.RetrieveStatus(pctx, settings, claimed.ExternalID)
	if apperr.Is(err, apperr.ProviderRejected) {
		// the provider does not know this charge
		return nil, apperr.Wrap(apperr.WebhookValidationFailed, "unsigned webhook for unknown charge", err)
	}
	if err != nil {
		return nil, err
	}
	confirmed := st.Event(claimed.ExternalID, claimed.OrderRef)
	if confirmed.Paid != claimed.Paid || confirmed.Terminal != claimed.Terminal {
		s.log.Warn("unsigned webhook disagrees with provider",
			zap.String("provider", string(adapter.Name())),
			zap.String("external_id", claimed.ExternalID),
			zap.String("claimed_status", claimed.RawStatus),
			zap.String("provider_status", confirmed.RawStatus),
		)
	}
	return confirmed, nil
}

func (s *PaymentService) audit(ctx context.Context, e *models.WebhookEvent, result string, cause error) {
	e.Outcome = result
	e.ReceivedAt = s.now()
	if cause != nil {
		msg := clip(cause.Error(), 255)
		e.Error = &msg
	}
	if err := s.webhooks.Create(context.WithoutCancel(ctx), e); err != nil {
		s.log.Warn("write webhook audit", zap.String("provider", string(e.Provider)), zap.Error(err))
	}
}

// clip cuts s to at most n bytes without splitting a UTF-8 sequence.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// auditPayload keeps JSON bodies as they are and stores anything else as a JSON string.
func auditPayload(body []byte) datatypes.JSON {
	if json.Valid(body) {
		return datatypes.JSON(body)
	}
	b, _ := json.Marshal(string(body))
	return datatypes.JSON(b)
}
