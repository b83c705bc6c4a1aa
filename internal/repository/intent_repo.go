package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"paycore/internal/domain"
	"paycore/internal/models"
)

var ErrDuplicateIntent = errors.New("payment intent already exists for order")

type IntentRepository struct {
	db *gorm.DB
}

func NewIntentRepository(db *gorm.DB) *IntentRepository {
	return &IntentRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *IntentRepository) WithTx(tx *gorm.DB) *IntentRepository {
	return &IntentRepository{db: tx}
}

// Create inserts p. A second intent for the same order or the same transaction id
// fails with ErrDuplicateIntent.
func (r *IntentRepository) Create(ctx context.Context, p *models.PaymentIntent) error {
	err := r.db.WithContext(ctx).Create(p).Error
	if isDuplicate(err) {
		return ErrDuplicateIntent
	}
	return err
}

func (r *IntentRepository) GetByID(ctx context.Context, id uint) (*models.PaymentIntent, error) {
	var p models.PaymentIntent
	if err := r.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *IntentRepository) GetByOrderID(ctx context.Context, orderID string) (*models.PaymentIntent, error) {
	var p models.PaymentIntent
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&p).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *IntentRepository) GetByTransactionID(ctx context.Context, provider domain.Provider, txID string) (*models.PaymentIntent, error) {
	var p models.PaymentIntent
	err := r.db.WithContext(ctx).
		Where("provider = ? AND transaction_id = ?", provider, txID).
		First(&p).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// GetForUpdate loads the intent with a row lock when the dialect supports it.
func (r *IntentRepository) GetForUpdate(ctx context.Context, id uint) (*models.PaymentIntent, error) {
	var p models.PaymentIntent
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&p, id).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// Transition moves the intent to `to` only if its current status is one of `from`.
// It reports false when another writer got there first.
func (r *IntentRepository) Transition(ctx context.Context, id uint, from []domain.IntentStatus, to domain.IntentStatus, fields map[string]any) (bool, error) {
	updates := map[string]any{"status": to, "updated_at": time.Now()}
	for k, v := range fields {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).Model(&models.PaymentIntent{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ClaimProjection marks the order projection for this intent as applied. Exactly one
// caller wins; the rest get false.
func (r *IntentRepository) ClaimProjection(ctx context.Context, id uint, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.PaymentIntent{}).
		Where("id = ? AND order_synced_at IS NULL", id).
		Update("order_synced_at", at)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// SetTransactionID fills the external id when the intent was created without one.
func (r *IntentRepository) SetTransactionID(ctx context.Context, id uint, txID string) error {
	return r.db.WithContext(ctx).Model(&models.PaymentIntent{}).
		Where("id = ? AND transaction_id IS NULL", id).
		Update("transaction_id", txID).Error
}

func (r *IntentRepository) UpdateProviderStatus(ctx context.Context, id uint, status string) error {
	return r.db.WithContext(ctx).Model(&models.PaymentIntent{}).
		Where("id = ?", id).
		Update("provider_status", status).Error
}

// ListUnsynced returns settled intents whose order projection has not been applied.
func (r *IntentRepository) ListUnsynced(ctx context.Context, limit int) ([]models.PaymentIntent, error) {
	if limit <= 0 {
		limit = 100
	}
	var list []models.PaymentIntent
	err := r.db.WithContext(ctx).
		Where("status IN ? AND order_synced_at IS NULL", []domain.IntentStatus{domain.StatusCompleted, domain.StatusFailed}).
		Order("id ASC").
		Limit(limit).
		Find(&list).Error
	return list, err
}
