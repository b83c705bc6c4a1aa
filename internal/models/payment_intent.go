package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"paycore/internal/domain"
)

// PaymentIntent is the durable record of one checkout attempt for one order.
// It is never deleted; the order's payment fields are projections of it.
type PaymentIntent struct {
	ID             uint                `gorm:"primaryKey" json:"id"`
	OrderID        string              `gorm:"size:64;not null;uniqueIndex" json:"order_id"`
	UserID         uint                `gorm:"index" json:"user_id"`
	Amount         decimal.Decimal     `gorm:"type:decimal(14,3);not null" json:"amount"`
	Currency       string              `gorm:"size:3;not null" json:"currency"`
	Provider       domain.Provider     `gorm:"size:20;not null;index" json:"provider"`
	Status         domain.IntentStatus `gorm:"size:20;not null;index" json:"status"`
	PaymentURL     string              `gorm:"size:1024" json:"payment_url,omitempty"`
	TransactionID  *string             `gorm:"size:191;uniqueIndex" json:"transaction_id,omitempty"`
	ProviderStatus string              `gorm:"size:50" json:"provider_status,omitempty"`
	Metadata       datatypes.JSONMap   `json:"metadata,omitempty"`
	// OrderSyncedAt is set once the order projection for the current terminal state has
	// been applied. Claiming it is what makes stock deduction run once.
	OrderSyncedAt *time.Time `gorm:"index" json:"order_synced_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	RefundedAt    *time.Time `json:"refunded_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (PaymentIntent) TableName() string { return "payment_intents" }

func (p *PaymentIntent) ExternalID() string {
	if p.TransactionID == nil {
		return ""
	}
	return *p.TransactionID
}

func (p *PaymentIntent) MetaString(key string) string {
	if p.Metadata == nil {
		return ""
	}
	if v, ok := p.Metadata[key].(string); ok {
		return v
	}
	return ""
}
