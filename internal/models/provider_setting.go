package models

import (
	"time"

	"gorm.io/datatypes"

	"paycore/internal/domain"
)

// ProviderSetting holds the enabled flag and credential bag for one provider.
type ProviderSetting struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	Provider  domain.Provider   `gorm:"size:20;not null;uniqueIndex" json:"provider"`
	Enabled   bool              `gorm:"not null;default:false" json:"enabled"`
	Config    datatypes.JSONMap `json:"config"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func (ProviderSetting) TableName() string { return "provider_settings" }
