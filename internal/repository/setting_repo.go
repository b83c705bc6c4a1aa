package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"paycore/internal/domain"
	"paycore/internal/models"
)

type SettingRepository struct {
	db *gorm.DB
}

func NewSettingRepository(db *gorm.DB) *SettingRepository {
	return &SettingRepository{db: db}
}

func (r *SettingRepository) Get(ctx context.Context, provider domain.Provider) (*models.ProviderSetting, error) {
	var s models.ProviderSetting
	if err := r.db.WithContext(ctx).Where("provider = ?", provider).First(&s).Error; err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func (r *SettingRepository) List(ctx context.Context) ([]models.ProviderSetting, error) {
	var list []models.ProviderSetting
	err := r.db.WithContext(ctx).Order("provider ASC").Find(&list).Error
	return list, err
}

func (r *SettingRepository) Upsert(ctx context.Context, s *models.ProviderSetting) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider"}},
		DoUpdates: clause.AssignmentColumns([]string{"enabled", "config", "updated_at"}),
	}).Create(s).Error
}
