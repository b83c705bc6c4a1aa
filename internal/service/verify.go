package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"paycore/internal/apperr"
	"paycore/internal/domain"
	"paycore/internal/models"
	"paycore/internal/repository"
)

// VerifyByOrder asks the provider for the current state of the order's charge and
// reconciles it, for customers returning from a hosted checkout before the webhook lands.
func (s *PaymentService) VerifyByOrder(ctx context.Context, orderID string, userID uint, admin bool) (*models.PaymentIntent, error) {
	p, err := s.Status(ctx, orderID, userID, admin)
	if err != nil {
		return nil, err
	}
	return s.verify(ctx, p)
}

// VerifyByExternalID is VerifyByOrder for redirects that only carry the provider's reference.
func (s *PaymentService) VerifyByExternalID(ctx context.Context, provider domain.Provider, externalID string, userID uint, admin bool) (*models.PaymentIntent, error) {
	p, err := s.intents.GetByTransactionID(ctx, provider, externalID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && !admin && p.UserID != userID) {
		return nil, apperr.Newf(apperr.NotFound, "no %s payment %s", provider, externalID)
	}
	if err != nil {
		return nil, err
	}
	return s.verify(ctx, p)
}

func (s *PaymentService) verify(ctx context.Context, p *models.PaymentIntent) (*models.PaymentIntent, error) {
	if p.Status.IsTerminal() && p.OrderSyncedAt != nil {
		return p, nil
	}
	if p.Status.IsTerminal() && p.Status != domain.StatusRefunded && p.Status != domain.StatusCancelled {
		// settled locally; only the projection is outstanding
		return s.replay(ctx, p)
	}
	if p.ExternalID() == "" {
		return p, nil
	}
	adapter, settings, err := s.settings.ForOperation(ctx, p.Provider)
	if err != nil {
		return nil, err
	}
	pctx, cancel := s.providerCtx(ctx)
	st, err := adapter.RetrieveStatus(pctx, settings, p.ExternalID())
	cancel()
	if err != nil {
		s.log.Warn("retrieve provider status", append(intentFields(p), zap.Error(err))...)
		return nil, err
	}
	if _, err := s.Reconcile(ctx, p.Provider, st.Event(p.ExternalID(), p.OrderID)); err != nil {
		return nil, err
	}
	return s.intents.GetByID(ctx, p.ID)
}

func (s *PaymentService) replay(ctx context.Context, p *models.PaymentIntent) (*models.PaymentIntent, error) {
	release, err := s.lockOrder(ctx, p.OrderID)
	if err != nil {
		return nil, err
	}
	defer release()
	if p, err = s.intents.GetByID(ctx, p.ID); err != nil {
		return nil, err
	}
	switch p.Status {
	case domain.StatusCompleted:
		_, err = s.projectPaid(ctx, p)
	case domain.StatusFailed:
		_, err = s.projectFailed(ctx, p)
	}
	if err != nil {
		return nil, err
	}
	return s.intents.GetByID(ctx, p.ID)
}

// ReplayReport summarizes one ReplayProjections run.
type ReplayReport struct {
	Scanned  int      `json:"scanned"`
	Replayed int      `json:"replayed"`
	Failed   []string `json:"failed,omitempty"`
}

// ReplayProjections applies outstanding order projections for settled intents whose
// projection transaction did not commit.
func (s *PaymentService) ReplayProjections(ctx context.Context, limit int) (*ReplayReport, error) {
	list, err := s.intents.ListUnsynced(ctx, limit)
	if err != nil {
		return nil, err
	}
	report := &ReplayReport{Scanned: len(list)}
	for i := range list {
		p := &list[i]
		cur, err := s.replay(ctx, p)
		if err != nil {
			s.log.Error("replay projection", append(intentFields(p), zap.Error(err))...)
			report.Failed = append(report.Failed, p.OrderID)
			continue
		}
		if cur.OrderSyncedAt != nil {
			report.Replayed++
		}
	}
	if report.Scanned > 0 {
		s.log.Info("projection replay finished",
			zap.Int("scanned", report.Scanned),
			zap.Int("replayed", report.Replayed),
			zap.Int("failed", len(report.Failed)),
		)
	}
	return report, nil
}
