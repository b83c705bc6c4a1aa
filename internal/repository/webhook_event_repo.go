package repository

import (
	"context"

	"gorm.io/gorm"

	"paycore/internal/models"
)

type WebhookEventRepository struct {
	db *gorm.DB
}

func NewWebhookEventRepository(db *gorm.DB) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

func (r *WebhookEventRepository) Create(ctx context.Context, e *models.WebhookEvent) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *WebhookEventRepository) ListByExternalID(ctx context.Context, externalID string) ([]models.WebhookEvent, error) {
	var list []models.WebhookEvent
	err := r.db.WithContext(ctx).Where("external_id = ?", externalID).Order("id ASC").Find(&list).Error
	return list, err
}
