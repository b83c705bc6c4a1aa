package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Address is embedded into Order for billing and shipping.
type Address struct {
	FirstName string `gorm:"size:100" json:"first_name"`
	LastName  string `gorm:"size:100" json:"last_name"`
	Line1     string `gorm:"size:255" json:"line1"`
	Line2     string `gorm:"size:255" json:"line2,omitempty"`
	City      string `gorm:"size:100" json:"city"`
	Region    string `gorm:"size:100" json:"region,omitempty"`
	ZipCode   string `gorm:"size:20" json:"zip_code,omitempty"`
	Country   string `gorm:"size:2" json:"country"`
	Phone     string `gorm:"size:32" json:"phone,omitempty"`
}

func (a Address) IsZero() bool {
	return a.Line1 == "" && a.City == "" && a.Country == ""
}

// Order is owned by the storefront. The engine reads totals and items and writes only
// PaymentStatus, OrderStatus and PaidAt.
type Order struct {
	ID              string          `gorm:"primaryKey;size:64" json:"id"`
	UserID          uint            `gorm:"index" json:"user_id"`
	Currency        string          `gorm:"size:3;not null" json:"currency"`
	Subtotal        decimal.Decimal `gorm:"type:decimal(14,3)" json:"subtotal"`
	ShippingAmount  decimal.Decimal `gorm:"type:decimal(14,3)" json:"shipping_amount"`
	TaxAmount       decimal.Decimal `gorm:"type:decimal(14,3)" json:"tax_amount"`
	DiscountAmount  decimal.Decimal `gorm:"type:decimal(14,3)" json:"discount_amount"`
	Total           decimal.Decimal `gorm:"type:decimal(14,3);not null" json:"total"`
	PaymentMethod   string          `gorm:"size:20" json:"payment_method"`
	PaymentStatus   string          `gorm:"size:20;not null;default:'pending'" json:"payment_status"`
	OrderStatus     string          `gorm:"size:20;not null;default:'processing'" json:"order_status"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
	CustomerEmail   string          `gorm:"size:255" json:"customer_email"`
	CustomerPhone   string          `gorm:"size:32" json:"customer_phone"`
	BillingAddress  Address         `gorm:"embedded;embeddedPrefix:billing_" json:"billing_address"`
	ShippingAddress Address         `gorm:"embedded;embeddedPrefix:shipping_" json:"shipping_address"`
	Items           []OrderItem     `gorm:"foreignKey:OrderID" json:"items"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (Order) TableName() string { return "orders" }

type OrderItem struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	OrderID   string          `gorm:"size:64;not null;index" json:"order_id"`
	ProductID uint            `gorm:"not null;index" json:"product_id"`
	Name      string          `gorm:"size:255" json:"name"`
	SKU       string          `gorm:"size:100" json:"sku"`
	Quantity  int             `gorm:"not null" json:"quantity"`
	Price     decimal.Decimal `gorm:"type:decimal(14,3);not null" json:"price"`
}

func (OrderItem) TableName() string { return "order_items" }

func (i OrderItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Product struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	Name      string          `gorm:"size:255;not null" json:"name"`
	SKU       string          `gorm:"size:100;uniqueIndex" json:"sku"`
	Price     decimal.Decimal `gorm:"type:decimal(14,3)" json:"price"`
	Stock     int             `gorm:"not null;default:0" json:"stock"`
	Sales     int             `gorm:"not null;default:0" json:"sales"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (Product) TableName() string { return "products" }
