package models

import (
	"time"

	"gorm.io/datatypes"

	"paycore/internal/domain"
)

// WebhookEvent is an audit row for one provider callback delivery.
type WebhookEvent struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	Provider   domain.Provider `gorm:"size:20;not null;index:ix_webhook_events_provider_ext,priority:1" json:"provider"`
	ExternalID string          `gorm:"size:191;index:ix_webhook_events_provider_ext,priority:2" json:"external_id"`
	RawStatus  string          `gorm:"size:64" json:"raw_status"`
	Outcome    string          `gorm:"size:20;not null" json:"outcome"`
	Payload    datatypes.JSON  `json:"payload"`
	Error      *string         `gorm:"size:255" json:"error,omitempty"`
	ReceivedAt time.Time       `gorm:"not null" json:"received_at"`
}

func (WebhookEvent) TableName() string { return "payment_webhook_events" }
