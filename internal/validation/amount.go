package validation

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"paycore/internal/apperr"
)

// Amounts is a checkout's declared total and the parts it should add up to.
type Amounts struct {
	Declared decimal.Decimal
	Lines    []decimal.Decimal
	Shipping decimal.Decimal
	Tax      decimal.Decimal
	Discount decimal.Decimal
}

func (a Amounts) Computed() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range a.Lines {
		sum = sum.Add(l)
	}
	return sum.Add(a.Shipping).Add(a.Tax).Sub(a.Discount)
}

type AmountPolicy struct {
	Tolerance decimal.Decimal
	// HardLimit, when positive, rejects mismatches larger than it instead of correcting them.
	HardLimit decimal.Decimal
}

// ReconcileAmounts returns the total to charge. A declared total further than Tolerance from
// the computed total is replaced by the computed one and logged at WARN.
func ReconcileAmounts(log *zap.Logger, orderID string, a Amounts, p AmountPolicy) (decimal.Decimal, error) {
	computed := a.Computed()
	if !computed.IsPositive() {
		return decimal.Zero, apperr.New(apperr.Invalid, "order total must be positive")
	}
	if a.Declared.IsZero() {
		return computed, nil
	}
	diff := a.Declared.Sub(computed).Abs()
	if diff.LessThanOrEqual(p.Tolerance) {
		return a.Declared, nil
	}
	if p.HardLimit.IsPositive() && diff.GreaterThan(p.HardLimit) {
		log.Warn("checkout amount mismatch rejected",
			zap.String("order_id", orderID),
			zap.String("declared", a.Declared.StringFixed(2)),
			zap.String("computed", computed.StringFixed(2)),
		)
		return decimal.Zero, apperr.Newf(apperr.Invalid, "amount mismatch: declared %s, expected %s",
			a.Declared.StringFixed(2), computed.StringFixed(2))
	}
	log.Warn("checkout amount corrected",
		zap.String("order_id", orderID),
		zap.String("declared", a.Declared.StringFixed(2)),
		zap.String("computed", computed.StringFixed(2)),
		zap.String("difference", diff.StringFixed(2)),
	)
	return computed, nil
}
