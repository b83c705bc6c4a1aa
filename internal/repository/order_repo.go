package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"paycore/internal/domain"
	"paycore/internal/models"
)

// OrderRepository reads orders and writes the payment projection fields.
type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) WithTx(tx *gorm.DB) *OrderRepository {
	return &OrderRepository{db: tx}
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	var o models.Order
	if err := r.db.WithContext(ctx).Preload("Items").First(&o, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &o, nil
}

// MarkPaid sets the paid projection. paid_at is written only the first time.
func (r *OrderRepository) MarkPaid(ctx context.Context, id string, at time.Time) error {
	db := r.db.WithContext(ctx)
	if err := db.Model(&models.Order{}).Where("id = ?", id).Updates(map[string]any{
		"payment_status": domain.PaymentStatusPaid,
		"order_status":   domain.OrderStatusConfirmed,
	}).Error; err != nil {
		return err
	}
	return db.Model(&models.Order{}).Where("id = ? AND paid_at IS NULL", id).Update("paid_at", at).Error
}

func (r *OrderRepository) MarkFailed(ctx context.Context, id string) error {
	return r.setStatuses(ctx, id, domain.PaymentStatusFailed, domain.OrderStatusCancelled)
}

func (r *OrderRepository) MarkRefunded(ctx context.Context, id string) error {
	return r.setStatuses(ctx, id, domain.PaymentStatusRefunded, domain.OrderStatusCancelled)
}

func (r *OrderRepository) MarkCancelled(ctx context.Context, id string) error {
	return r.setStatuses(ctx, id, domain.PaymentStatusCancelled, domain.OrderStatusCancelled)
}

func (r *OrderRepository) setStatuses(ctx context.Context, id, payment, order string) error {
	return r.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", id).Updates(map[string]any{
		"payment_status": payment,
		"order_status":   order,
	}).Error
}
