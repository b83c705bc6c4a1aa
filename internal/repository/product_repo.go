package repository

import (
	"context"
	"sort"

	"gorm.io/gorm"

	"paycore/internal/models"
)

type ProductRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

func (r *ProductRepository) WithTx(tx *gorm.DB) *ProductRepository {
	return &ProductRepository{db: tx}
}

// StockLine is one product quantity to deduct.
type StockLine struct {
	ProductID uint
	Qty       int
}

// DeductSold decrements stock and increments sales for each line. Lines are applied in
// product id order so concurrent deductions lock rows in the same order.
func (r *ProductRepository) DeductSold(ctx context.Context, lines []StockLine) error {
	want := make(map[uint]int, len(lines))
	for _, ln := range lines {
		if ln.Qty < 1 {
			continue
		}
		want[ln.ProductID] += ln.Qty
	}
	ids := make([]uint, 0, len(want))
	for id := range want {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		q := want[id]
		err := r.db.WithContext(ctx).Model(&models.Product{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"stock": gorm.Expr("stock - ?", q),
				"sales": gorm.Expr("sales + ?", q),
			}).Error
		if err != nil {
			return err
		}
	}
	return nil
}
