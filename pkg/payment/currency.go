package payment

import (
	"strings"

	"github.com/shopspring/decimal"
)

// minorExponents lists ISO 4217 currencies whose minor unit is not cents.
var minorExponents = map[string]int32{
	"BHD": 3, "JOD": 3, "KWD": 3, "OMR": 3, "TND": 3,
	"JPY": 0, "KRW": 0, "VND": 0, "CLP": 0, "ISK": 0, "UGX": 0,
}

// MinorUnitExponent is the number of decimal places of currency's minor unit.
func MinorUnitExponent(currency string) int32 {
	if e, ok := minorExponents[strings.ToUpper(currency)]; ok {
		return e
	}
	return 2
}

// FormatAmount renders d with the currency's decimal places.
func FormatAmount(d decimal.Decimal, currency string) string {
	return d.StringFixed(MinorUnitExponent(currency))
}

// stripeMinorUnits converts to the integer amount Stripe expects. Stripe takes three-decimal
// currencies in thousandths but requires the last digit to be zero.
func stripeMinorUnits(d decimal.Decimal, currency string) int64 {
	exp := MinorUnitExponent(currency)
	if exp == 3 {
		d = d.Round(2)
	}
	return d.Shift(exp).Round(0).IntPart()
}

func stripeFromMinorUnits(v int64, currency string) decimal.Decimal {
	return decimal.New(v, -MinorUnitExponent(currency))
}
