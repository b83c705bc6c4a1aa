package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"paycore/config"
	"paycore/internal/apperr"
	"paycore/internal/domain"
	"paycore/internal/events"
	"paycore/internal/lock"
	"paycore/internal/models"
	"paycore/internal/repository"
)

// PaymentService owns the intent lifecycle: checkout, reconciliation of provider signals,
// refunds and cancellations. The intent is the source of truth; order status and stock are
// projections of it applied at most once.
type PaymentService struct {
	db        *gorm.DB
	intents   *repository.IntentRepository
	orders    *repository.OrderRepository
	products  *repository.ProductRepository
	webhooks  *repository.WebhookEventRepository
	settings  *SettingsService
	locker    lock.Locker
	publisher events.Publisher
	cfg       config.PaymentConfig
	log       *zap.Logger
	now       func() time.Time
}

func NewPaymentService(
	db *gorm.DB,
	settings *SettingsService,
	locker lock.Locker,
	publisher events.Publisher,
	cfg config.PaymentConfig,
	log *zap.Logger,
) *PaymentService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	return &PaymentService{
		db:        db,
		intents:   repository.NewIntentRepository(db),
		orders:    repository.NewOrderRepository(db),
		products:  repository.NewProductRepository(db),
		webhooks:  repository.NewWebhookEventRepository(db),
		settings:  settings,
		locker:    locker,
		publisher: publisher,
		cfg:       cfg,
		log:       log.Named("payments"),
		now:       time.Now,
	}
}

func (s *PaymentService) providerCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.ProviderTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.ProviderTimeout)
}

// lockOrder serializes every state change of one order's intent.
func (s *PaymentService) lockOrder(ctx context.Context, orderID string) (func(), error) {
	release, err := s.locker.Acquire(ctx, "order:"+orderID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "could not lock order "+orderID, err)
	}
	return release, nil
}

func (s *PaymentService) intentByOrder(ctx context.Context, orderID string) (*models.PaymentIntent, error) {
	p, err := s.intents.GetByOrderID(ctx, orderID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Newf(apperr.NotFound, "no payment for order %s", orderID)
	}
	return p, err
}

// Status returns the intent for orderID if userID owns it or admin is set.
func (s *PaymentService) Status(ctx context.Context, orderID string, userID uint, admin bool) (*models.PaymentIntent, error) {
	p, err := s.intentByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !admin && p.UserID != userID {
		return nil, apperr.Newf(apperr.NotFound, "no payment for order %s", orderID)
	}
	return p, nil
}

// published reloads the intent and announces its new status. Failures are logged only.
func (s *PaymentService) published(ctx context.Context, id uint, prev domain.IntentStatus) *models.PaymentIntent {
	p, err := s.intents.GetByID(ctx, id)
	if err != nil {
		s.log.Error("reload intent after transition", zap.Uint("intent_id", id), zap.Error(err))
		return nil
	}
	s.publish(ctx, p, prev)
	return p
}

func (s *PaymentService) publish(ctx context.Context, p *models.PaymentIntent, prev domain.IntentStatus) {
	if err := s.publisher.Publish(context.WithoutCancel(ctx), events.NewIntentEvent(p, prev)); err != nil {
		s.log.Warn("publish intent event",
			zap.String("order_id", p.OrderID),
			zap.String("status", string(p.Status)),
			zap.Error(err),
		)
	}
}

func withMeta(meta datatypes.JSONMap, kv ...string) datatypes.JSONMap {
	out := datatypes.JSONMap{}
	for k, v := range meta {
		out[k] = v
	}
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] != "" {
			out[kv[i]] = kv[i+1]
		}
	}
	return out
}

func intentFields(p *models.PaymentIntent) []zap.Field {
	return []zap.Field{
		zap.Uint("intent_id", p.ID),
		zap.String("order_id", p.OrderID),
		zap.String("provider", string(p.Provider)),
		zap.String("transaction_id", p.ExternalID()),
	}
}
