// Package testutil builds fixtures shared by package tests.
package testutil

import (
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"paycore/internal/database"
	"paycore/internal/domain"
	"paycore/internal/models"
)

// NewDB opens a private in-memory SQLite database with all tables migrated.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// One connection keeps the shared in-memory database alive and serializes writers.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// SeedProduct inserts a product with the given stock.
func SeedProduct(t *testing.T, db *gorm.DB, sku string, stock int) *models.Product {
	t.Helper()
	p := &models.Product{Name: "Product " + sku, SKU: sku, Price: decimal.NewFromInt(50), Stock: stock}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return p
}

// SeedOrder inserts an order with one line per product, quantity qty each, priced from the product.
func SeedOrder(t *testing.T, db *gorm.DB, id, method string, qty int, products ...*models.Product) *models.Order {
	t.Helper()
	o := &models.Order{
		ID:             id,
		UserID:         7,
		Currency:       "SAR",
		PaymentMethod:  method,
		PaymentStatus:  domain.PaymentStatusPending,
		OrderStatus:    domain.OrderStatusProcessing,
		ShippingAmount: decimal.Zero,
		TaxAmount:      decimal.Zero,
		DiscountAmount: decimal.Zero,
		CustomerEmail:  "buyer@example.com",
		CustomerPhone:  "0501234567",
		BillingAddress: models.Address{
			FirstName: "Sara", LastName: "Ali", Line1: "King Fahd Rd", City: "Riyadh", Country: "SA",
		},
		ShippingAddress: models.Address{
			FirstName: "Sara", LastName: "Ali", Line1: "King Fahd Rd", City: "Riyadh", Country: "SA",
		},
	}
	total := decimal.Zero
	for _, p := range products {
		item := models.OrderItem{ProductID: p.ID, Name: p.Name, SKU: p.SKU, Quantity: qty, Price: p.Price}
		o.Items = append(o.Items, item)
		total = total.Add(item.LineTotal())
	}
	o.Subtotal = total
	o.Total = total
	if err := db.Create(o).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return o
}

// SeedSetting enables a provider with the given config bag.
func SeedSetting(t *testing.T, db *gorm.DB, provider domain.Provider, enabled bool, cfg map[string]any) {
	t.Helper()
	s := &models.ProviderSetting{Provider: provider, Enabled: enabled, Config: cfg}
	if err := db.Create(s).Error; err != nil {
		t.Fatalf("seed setting: %v", err)
	}
}

func Stock(t *testing.T, db *gorm.DB, productID uint) (stock, sales int) {
	t.Helper()
	var p models.Product
	if err := db.First(&p, productID).Error; err != nil {
		t.Fatalf("load product: %v", err)
	}
	return p.Stock, p.Sales
}
